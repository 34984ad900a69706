package filelifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/nextlevelbuilder/halo/internal/registry"
)

type fakeRemote struct {
	failVectorStore bool
	failOpenAI      bool
	vectorCalls     []string
	openAICalls     []string
}

func (f *fakeRemote) DeleteVectorStoreFile(ctx context.Context, id string) error {
	f.vectorCalls = append(f.vectorCalls, id)
	if f.failVectorStore {
		return errors.New("boom")
	}
	return nil
}

func (f *fakeRemote) DeleteOpenAIFile(ctx context.Context, id string) error {
	f.openAICalls = append(f.openAICalls, id)
	if f.failOpenAI {
		return errors.New("boom")
	}
	return nil
}

func strPtr(s string) *string { return &s }

func seedRegistry(t *testing.T, store *registry.Store, scopeID string, recs ...registry.Record) {
	t.Helper()
	for i, r := range recs {
		if _, err := store.Upsert(scopeID, r, int64(i+1)); err != nil {
			t.Fatalf("seed upsert: %v", err)
		}
	}
}

func TestDelete_ScopeNotFound(t *testing.T) {
	store := registry.NewStore(t.TempDir())
	_, err := Delete(context.Background(), store, "missing", "x", false, &fakeRemote{}, 1)
	var le *Error
	if !errors.As(err, &le) || le.Code != CodeScopeNotFound {
		t.Fatalf("err = %v, want scope_not_found", err)
	}
}

func TestDelete_FileNotFound(t *testing.T) {
	store := registry.NewStore(t.TempDir())
	seedRegistry(t, store, "s1", registry.Record{TelegramFileUniqueID: "u1", Status: registry.StatusCompleted})
	_, err := Delete(context.Background(), store, "s1", "nope", false, &fakeRemote{}, 2)
	var le *Error
	if !errors.As(err, &le) || le.Code != CodeFileNotFound {
		t.Fatalf("err = %v, want file_not_found", err)
	}
}

func TestDelete_RemoteFailureLeavesRegistryUnchanged(t *testing.T) {
	store := registry.NewStore(t.TempDir())
	seedRegistry(t, store, "s1", registry.Record{
		TelegramFileUniqueID: "u1",
		VectorStoreFileID:    strPtr("vsf1"),
		Status:                registry.StatusCompleted,
	})

	remote := &fakeRemote{failVectorStore: true}
	_, err := Delete(context.Background(), store, "s1", "u1", false, remote, 2)
	var le *Error
	if !errors.As(err, &le) || le.Code != CodeRemoteDeleteFailed {
		t.Fatalf("err = %v, want remote_delete_failed", err)
	}

	reg, _ := store.Read("s1")
	if len(reg.Files) != 1 {
		t.Fatalf("registry mutated after remote failure: %+v", reg.Files)
	}
}

func TestDelete_RemovesRecordOnSuccess(t *testing.T) {
	store := registry.NewStore(t.TempDir())
	seedRegistry(t, store, "s1",
		registry.Record{TelegramFileUniqueID: "u1", VectorStoreFileID: strPtr("vsf1"), Status: registry.StatusCompleted},
		registry.Record{TelegramFileUniqueID: "u2", Status: registry.StatusCompleted},
	)

	remote := &fakeRemote{}
	res, err := Delete(context.Background(), store, "s1", "u1", false, remote, 3)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if res.ScopeID != "s1" || res.FileRef != "u1" {
		t.Fatalf("res = %+v", res)
	}
	if len(remote.vectorCalls) != 1 || remote.vectorCalls[0] != "vsf1" {
		t.Fatalf("vector calls = %v", remote.vectorCalls)
	}

	reg, _ := store.Read("s1")
	if len(reg.Files) != 1 || reg.Files[0].TelegramFileUniqueID != "u2" {
		t.Fatalf("registry after delete = %+v", reg.Files)
	}
}

func TestPurge_CollectsErrorsAndKeepsFailedFiles(t *testing.T) {
	store := registry.NewStore(t.TempDir())
	seedRegistry(t, store, "s1",
		registry.Record{TelegramFileUniqueID: "u1", VectorStoreFileID: strPtr("vsf1"), Status: registry.StatusCompleted},
		registry.Record{TelegramFileUniqueID: "u2", VectorStoreFileID: strPtr("vsf2"), Status: registry.StatusCompleted},
	)

	remote := &fakeRemote{failVectorStore: true}
	res, err := Purge(context.Background(), store, "s1", false, remote, 10)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if res.OK {
		t.Fatalf("expected OK=false with remote failures")
	}
	if res.RemovedCount != 0 || res.RemainingCount != 2 || len(res.Errors) != 2 {
		t.Fatalf("res = %+v", res)
	}
}

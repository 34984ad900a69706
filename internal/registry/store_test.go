package registry

import (
	"sync"
	"testing"
)

func TestStore_UpsertThenRead(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	rec := Record{TelegramFileUniqueID: "u1", Filename: "a.pdf", Status: StatusCompleted, UploadedAtMs: 1000}
	if _, err := store.Upsert("telegram:dm:1", rec, 1000); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	reg, err := store.Read("telegram:dm:1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if reg == nil || len(reg.Files) != 1 {
		t.Fatalf("reg = %+v, want 1 file", reg)
	}
	if reg.Files[0].TelegramFileUniqueID != "u1" {
		t.Fatalf("file id = %s", reg.Files[0].TelegramFileUniqueID)
	}
}

func TestStore_UpsertUpdatesExistingByUniqueID(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	if _, err := store.Upsert("s1", Record{TelegramFileUniqueID: "u1", Status: StatusInProgress, UploadedAtMs: 1}, 1); err != nil {
		t.Fatalf("upsert 1: %v", err)
	}
	if _, err := store.Upsert("s1", Record{TelegramFileUniqueID: "u1", Status: StatusCompleted, UploadedAtMs: 1}, 2); err != nil {
		t.Fatalf("upsert 2: %v", err)
	}

	reg, _ := store.Read("s1")
	if len(reg.Files) != 1 {
		t.Fatalf("expected update-in-place, got %d files", len(reg.Files))
	}
	if reg.Files[0].Status != StatusCompleted {
		t.Fatalf("status = %v, want completed", reg.Files[0].Status)
	}
	if reg.UpdatedAtMs != 2 {
		t.Fatalf("updatedAtMs = %d, want 2", reg.UpdatedAtMs)
	}
}

func TestStore_MissingRegistryReadsNil(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	reg, err := store.Read("missing-scope")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if reg != nil {
		t.Fatalf("expected nil registry, got %+v", reg)
	}
}

func TestStore_SetAndGetVectorStoreID(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	if _, err := store.SetVectorStoreID("s1", "vs_1", 1); err != nil {
		t.Fatalf("set: %v", err)
	}
	id, ok, err := store.VectorStoreID("s1")
	if err != nil || !ok || id != "vs_1" {
		t.Fatalf("got (%q, %v, %v)", id, ok, err)
	}
}

// TestStore_ConcurrentUpsertsNeverLoseAWrite exercises the at-most-one-writer
// invariant: N goroutines each upsert a distinct record into the same scope;
// all N must survive, with UpdatedAtMs never observed going backward.
func TestStore_ConcurrentUpsertsNeverLoseAWrite(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			rec := Record{TelegramFileUniqueID: string(rune('a' + i)), Status: StatusCompleted, UploadedAtMs: int64(i)}
			if _, err := store.Upsert("concurrent-scope", rec, int64(i+1)); err != nil {
				t.Errorf("upsert %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	reg, err := store.Read("concurrent-scope")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(reg.Files) != n {
		t.Fatalf("files = %d, want %d", len(reg.Files), n)
	}
}

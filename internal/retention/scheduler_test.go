package retention

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/halo/internal/config"
	"github.com/nextlevelbuilder/halo/internal/registry"
)

type memRegistries struct {
	mu   sync.Mutex
	regs map[string]*registry.Registry
}

func newMemRegistries() *memRegistries {
	return &memRegistries{regs: make(map[string]*registry.Registry)}
}

func (m *memRegistries) ListScopeIDs() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.regs))
	for id := range m.regs {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *memRegistries) Read(scopeID string) (*registry.Registry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.regs[scopeID]
	if !ok {
		return nil, nil
	}
	// return a copy so pipeline mutation (sorting) never touches test state.
	cp := *r
	cp.Files = append([]registry.Record{}, r.Files...)
	return &cp, nil
}

func (m *memRegistries) remove(scopeID, fileRef string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.regs[scopeID]
	if r == nil {
		return
	}
	kept := make([]registry.Record, 0, len(r.Files))
	for _, f := range r.Files {
		if f.TelegramFileUniqueID != fileRef {
			kept = append(kept, f)
		}
	}
	r.Files = kept
}

func baseConfig() Config {
	return Config{
		Enabled:                  true,
		MaxAgeDays:               30,
		IntervalMs:               60000,
		DeleteOpenAIFiles:        true,
		MaxFilesPerRun:           10,
		KeepRecentPerScope:       1,
		MaxDeletesPerScopePerRun: 1,
		PolicyPreset:             PresetAll,
	}
}

func TestRetention_CapsWithProtection(t *testing.T) {
	now := int64(100 * 24 * 60 * 60 * 1000)
	day := dayMs

	regs := newMemRegistries()
	regs.regs["a"] = &registry.Registry{ScopeID: "a", Files: []registry.Record{
		{TelegramFileUniqueID: "a-80", Status: registry.StatusCompleted, UploadedAtMs: now - 80*day},
		{TelegramFileUniqueID: "a-40", Status: registry.StatusInProgress, UploadedAtMs: now - 40*day},
		{TelegramFileUniqueID: "a-90", Status: registry.StatusCompleted, UploadedAtMs: now - 90*day},
	}}
	regs.regs["b"] = &registry.Registry{ScopeID: "b", Files: []registry.Record{
		{TelegramFileUniqueID: "b-85", Status: registry.StatusCompleted, UploadedAtMs: now - 85*day},
		{TelegramFileUniqueID: "b-75", Status: registry.StatusCompleted, UploadedAtMs: now - 75*day},
		{TelegramFileUniqueID: "b-70", Status: registry.StatusCompleted, UploadedAtMs: now - 70*day},
	}}

	var deletedOrder []string
	deleteFn := func(req DeleteRequest) error {
		deletedOrder = append(deletedOrder, req.ScopeID+":"+req.FileRef)
		regs.remove(req.ScopeID, req.FileRef)
		return nil
	}

	sched := New(baseConfig(), nil, regs, deleteFn, nil)
	sched.clock = func() int64 { return now }

	summary := sched.RunNow(context.Background(), RunOptions{})

	// The global cap admits candidates in ascending uploadedAtMs order
	// (oldest first, spec.md §4.4 step 6): a-90 is 90 days stale, the oldest
	// candidate across both scopes once each scope's most-recent file is
	// protected, so it is admitted (and deleted) ahead of b-85.
	wantOrder := []string{"a:a-90", "b:b-85"}
	if len(deletedOrder) != 2 || deletedOrder[0] != wantOrder[0] || deletedOrder[1] != wantOrder[1] {
		t.Fatalf("deletedOrder = %v, want %v", deletedOrder, wantOrder)
	}
	if summary.SkippedInProgressCount != 1 {
		t.Fatalf("skippedInProgress = %d, want 1", summary.SkippedInProgressCount)
	}
	if summary.ProtectedRecentCount != 2 {
		t.Fatalf("protectedRecent = %d, want 2", summary.ProtectedRecentCount)
	}
	if summary.DeferredByScopeCapCount != 1 {
		t.Fatalf("deferredByScopeCap = %d, want 1", summary.DeferredByScopeCapCount)
	}
}

func TestRetention_DisabledRunNowIsNoOp(t *testing.T) {
	cfg := baseConfig()
	cfg.Enabled = false
	regs := newMemRegistries()
	sched := New(cfg, nil, regs, func(DeleteRequest) error { return nil }, nil)

	summary := sched.RunNow(context.Background(), RunOptions{})
	if summary.DeletedCount != 0 || summary.AttemptedCount != 0 {
		t.Fatalf("expected no-op summary, got %+v", summary)
	}
}

func TestRetention_SequentialFIFORunsDoNotInterleave(t *testing.T) {
	now := int64(1000)
	regs := newMemRegistries()
	regs.regs["s1"] = &registry.Registry{ScopeID: "s1", Files: []registry.Record{
		{TelegramFileUniqueID: "f1", Status: registry.StatusCompleted, UploadedAtMs: 0},
	}}

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	deleteFn := func(req DeleteRequest) error {
		started <- struct{}{}
		<-release
		regs.remove(req.ScopeID, req.FileRef)
		return nil
	}

	cfg := baseConfig()
	cfg.KeepRecentPerScope = 0
	sched := New(cfg, nil, regs, deleteFn, nil)
	sched.clock = func() int64 { return now }

	done1 := make(chan RunSummary, 1)
	go func() { done1 <- sched.RunNow(context.Background(), RunOptions{}) }()

	<-started // first delete is blocked inside deleteFn

	done2 := make(chan RunSummary, 1)
	go func() { done2 <- sched.RunNow(context.Background(), RunOptions{}) }()

	select {
	case <-done2:
		t.Fatalf("second run completed before first was released")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-done1
	<-done2
}

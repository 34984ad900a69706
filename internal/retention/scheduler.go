package retention

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/halo/internal/config"
)

// Clock returns the current time in epoch milliseconds. Injected so tests
// can control time deterministically instead of reaching for time.Now().
type Clock func() int64

func systemClock() int64 { return time.Now().UnixMilli() }

type runRequest struct {
	opts   RunOptions
	result chan RunSummary
}

// Scheduler is the file retention background worker: one interval timer
// plus one FIFO queue of manual runNow requests, drained by a single
// goroutine so no two runs ever overlap (spec.md §4.4, §5).
type Scheduler struct {
	cfg         Config
	memberRoles map[string]config.Role
	registries  RegistrySource
	deleteFn    DeleteScopedFileFunc
	logger      *slog.Logger
	clock       Clock

	queue    chan runRequest
	stopCh   chan struct{}
	doneCh   chan struct{}
	wg       sync.WaitGroup
	startMu  sync.Mutex
	started  bool

	statusMu sync.Mutex
	status   Status
}

// New constructs a Scheduler and launches its drain loop, so RunNow requests
// are served whether or not Start is called. memberRoles maps memberId to
// role, used for preset classification of telegram:dm:<memberId> scopes.
func New(cfg Config, memberRoles map[string]config.Role, registries RegistrySource, deleteFn DeleteScopedFileFunc, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	enabled := cfg.effectiveEnabled()
	s := &Scheduler{
		cfg:         cfg,
		memberRoles: memberRoles,
		registries:  registries,
		deleteFn:    deleteFn,
		logger:      logger,
		clock:       systemClock,
		queue:       make(chan runRequest, 64),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		status: Status{
			Enabled:                  enabled,
			IntervalMinutes:          float64(cfg.IntervalMs) / 60000.0,
			MaxAgeDays:               cfg.MaxAgeDays,
			DeleteOpenAIFiles:        cfg.DeleteOpenAIFiles,
			MaxFilesPerRun:           cfg.MaxFilesPerRun,
			DryRun:                   cfg.DryRun,
			KeepRecentPerScope:       cfg.KeepRecentPerScope,
			MaxDeletesPerScopePerRun: cfg.MaxDeletesPerScopePerRun,
			AllowScopeIDs:            append([]string{}, cfg.AllowScopeIDs...),
			DenyScopeIDs:             append([]string{}, cfg.DenyScopeIDs...),
			PolicyPreset:             cfg.PolicyPreset,
		},
	}
	s.wg.Add(1)
	go s.drainLoop()
	return s
}

// Start launches the interval timer, whose first scheduled run fires
// immediately. Start is idempotent: a disabled scheduler's Start is a no-op,
// and calling Start twice has no additional effect.
func (s *Scheduler) Start(ctx context.Context) {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if s.started {
		return
	}
	s.started = true

	if !s.status.Enabled {
		return
	}

	s.wg.Add(1)
	go s.tick(ctx)
}

// Stop clears the interval timer and waits for any in-flight run to finish.
// The manual-run queue is not re-entered after Stop (spec.md §5).
func (s *Scheduler) Stop() {
	s.startMu.Lock()
	if !s.started {
		s.startMu.Unlock()
		return
	}
	s.startMu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
}

func (s *Scheduler) tick(ctx context.Context) {
	defer s.wg.Done()
	interval := time.Duration(s.cfg.IntervalMs) * time.Millisecond
	timer := time.NewTimer(0) // fire immediately on start
	defer timer.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-timer.C:
			s.RunNow(ctx, RunOptions{})
			timer.Reset(interval)
		}
	}
}

func (s *Scheduler) drainLoop() {
	defer s.wg.Done()
	for {
		select {
		case req := <-s.queue:
			summary := s.execute(req.opts)
			req.result <- summary
		case <-s.stopCh:
			return
		}
	}
}

// RunNow enqueues a manual run request and blocks until it has been drained
// and finished. A disabled scheduler resolves immediately with a no-op
// summary, observable even though no scan occurred (spec.md §9 open
// question resolution).
func (s *Scheduler) RunNow(ctx context.Context, opts RunOptions) RunSummary {
	if !s.status.Enabled {
		return RunSummary{DryRun: opts.resolveDryRun(s.cfg.DryRun), Filters: opts}
	}

	req := runRequest{opts: opts, result: make(chan RunSummary, 1)}
	select {
	case s.queue <- req:
	case <-ctx.Done():
		return RunSummary{Filters: opts}
	}

	select {
	case summary := <-req.result:
		return summary
	case <-ctx.Done():
		return RunSummary{Filters: opts}
	}
}

// execute performs one full scan-filter-cap-delete run and updates status.
func (s *Scheduler) execute(opts RunOptions) RunSummary {
	startedAt := s.clock()
	s.setRunning(true, startedAt)

	scan, err := scanScopes(s.cfg, s.memberRoles, s.registries, opts, startedAt)
	if err != nil {
		s.logger.Error("retention scan failed", "error", err)
		finishedAt := s.clock()
		s.setRunning(false, finishedAt)
		return RunSummary{Filters: opts}
	}

	admitted, deferredRunCap, deferredScopeCap := applyCaps(scan.candidates, s.cfg.MaxFilesPerRun, s.cfg.MaxDeletesPerScopePerRun)

	summary := scan.summary
	summary.ScopeCount = scan.scopeCount
	summary.StaleCount = scan.staleCount
	summary.CandidateCount = len(scan.candidates)
	summary.AttemptedCount = len(admitted)
	summary.DeferredByRunCapCount = deferredRunCap
	summary.DeferredByScopeCapCount = deferredScopeCap
	summary.Filters = opts

	dryRun := opts.resolveDryRun(s.cfg.DryRun)
	summary.DryRun = dryRun

	var lastErr *LastError
	if dryRun {
		summary.SkippedDryRunCount = len(admitted)
	} else {
		for _, c := range admitted {
			err := s.deleteFn(DeleteRequest{
				ScopeID:          c.scopeID,
				FileRef:          c.record.TelegramFileUniqueID,
				DeleteOpenAIFile: s.cfg.DeleteOpenAIFiles,
			})
			if err != nil {
				summary.FailedCount++
				lastErr = &LastError{ScopeID: c.scopeID, FileRef: c.record.TelegramFileUniqueID, Message: err.Error(), AtMs: s.clock()}
				s.logger.Warn("retention delete failed", "scope", c.scopeID, "file", c.record.TelegramFileUniqueID, "error", err)
				continue
			}
			summary.DeletedCount++
		}
	}

	finishedAt := s.clock()
	s.finishRun(finishedAt, summary, lastErr)
	return summary
}

func (s *Scheduler) setRunning(running bool, atMs int64) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status.Running = running
	if running {
		s.status.LastRunStartedAtMs = atMs
	}
}

func (s *Scheduler) finishRun(finishedAt int64, summary RunSummary, lastErr *LastError) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status.Running = false
	s.status.LastRunFinishedAtMs = finishedAt
	s.status.TotalRuns++
	s.status.TotalDeleted += int64(summary.DeletedCount)
	s.status.TotalFailures += int64(summary.FailedCount)
	summaryCopy := summary
	s.status.LastRunSummary = &summaryCopy
	if lastErr != nil {
		s.status.LastError = lastErr
	}
	if summary.FailedCount == 0 {
		s.status.LastSuccessAtMs = finishedAt
	}
}

// Status returns a deep copy of the current scheduler status.
func (s *Scheduler) Status() Status {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.status.clone()
}

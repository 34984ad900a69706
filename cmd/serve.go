package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/halo/internal/admin"
	"github.com/nextlevelbuilder/halo/internal/audit"
	"github.com/nextlevelbuilder/halo/internal/config"
	"github.com/nextlevelbuilder/halo/internal/externals"
	"github.com/nextlevelbuilder/halo/internal/filelifecycle"
	"github.com/nextlevelbuilder/halo/internal/halohome"
	"github.com/nextlevelbuilder/halo/internal/memoryindex"
	"github.com/nextlevelbuilder/halo/internal/registry"
	"github.com/nextlevelbuilder/halo/internal/retention"
	"github.com/nextlevelbuilder/halo/internal/telemetry"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the retention scheduler, memory sync watcher, and admin HTTP surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verboseFlag {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func runServe(ctx context.Context) error {
	logger := newLogger()
	home := resolveHome()

	runtimeCfg, err := config.LoadRuntimeConfig(halohome.ConfigPath(home))
	if err != nil {
		return fmt.Errorf("serve: load runtime config: %w", err)
	}

	familyPath := resolveFamilyConfigPath(home, runtimeCfg)
	family, err := config.Load(familyPath)
	if err != nil {
		return fmt.Errorf("serve: load family config: %w", err)
	}
	logger.Info("serve.config_loaded", "path", familyPath, "members", len(family.Members))

	shutdownTelemetry, err := telemetry.Init(ctx, runtimeCfg.Telemetry)
	if err != nil {
		return fmt.Errorf("serve: init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			logger.Warn("serve.telemetry_shutdown_failed", "error", err)
		}
	}()

	regStore := registry.NewStore(home)

	dbPath := filepath.Join(halohome.MemoryScopesDir(home), "index.sqlite")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return fmt.Errorf("serve: prepare memory index dir: %w", err)
	}
	idxStore, err := memoryindex.Open(dbPath)
	if err != nil {
		return fmt.Errorf("serve: open memory index: %w", err)
	}
	defer idxStore.Close()

	embedder := newEmbedder(logger)
	syncManager := memoryindex.NewManager(idxStore, embedder, logger)
	searchEngine := memoryindex.NewEngine(idxStore)

	remote := newRemoteDeleter(logger)

	deleteFn := func(req retention.DeleteRequest) error {
		dctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		_, err := filelifecycle.Delete(dctx, regStore, req.ScopeID, req.FileRef, req.DeleteOpenAIFile, remote, time.Now().UnixMilli())
		return err
	}

	memberRoles := make(map[string]config.Role, len(family.Members))
	for _, m := range family.Members {
		memberRoles[m.MemberID] = m.Role
	}

	retCfg := retention.Config{
		Enabled:                  runtimeCfg.Retention.Enabled,
		MaxAgeDays:               runtimeCfg.Retention.MaxAgeDays,
		IntervalMs:               runtimeCfg.Retention.IntervalMs,
		DeleteOpenAIFiles:        runtimeCfg.Retention.DeleteOpenAIFiles,
		MaxFilesPerRun:           runtimeCfg.Retention.MaxFilesPerRun,
		DryRun:                   runtimeCfg.Retention.DryRun,
		KeepRecentPerScope:       runtimeCfg.Retention.KeepRecentPerScope,
		MaxDeletesPerScopePerRun: runtimeCfg.Retention.MaxDeletesPerScopePerRun,
		AllowScopeIDs:            runtimeCfg.Retention.AllowScopeIDs,
		DenyScopeIDs:             runtimeCfg.Retention.DenyScopeIDs,
		PolicyPreset:             retention.PolicyPreset(runtimeCfg.Retention.PolicyPreset),
	}
	scheduler := retention.New(retCfg, memberRoles, regStore, deleteFn, logger)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	auditLog := audit.NewLog(halohome.OperationalAuditFile(home))

	router := admin.NewRouter(admin.Deps{
		Root:                home,
		Family:              family,
		Scheduler:           scheduler,
		RegistryStore:       regStore,
		SyncManager:         syncManager,
		SearchEngine:        searchEngine,
		Remote:              remote,
		Audit:               auditLog,
		Clock:               func() int64 { return time.Now().UnixMilli() },
		FileMemoryEnabled:   runtimeCfg.FileMemory.Enabled,
		RetentionEnabled:    runtimeCfg.Retention.Enabled,
		DistillationEnabled: runtimeCfg.Distillation.Enabled,
		DeleteOpenAIFiles:   runtimeCfg.Retention.DeleteOpenAIFiles,
		Logger:              logger,
	})

	srv := &http.Server{
		Addr:    runtimeCfg.Admin.ListenAddr,
		Handler: admin.NewServer(router),
	}

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	if runtimeCfg.FileMemory.Enabled {
		startMemoryWatcher(watchCtx, home, syncManager, logger)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serve.admin_listen", "addr", runtimeCfg.Admin.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("serve.shutdown_signal")
	case err := <-errCh:
		logger.Error("serve.admin_listen_failed", "error", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newEmbedder returns the unconfigured stand-in embedder (spec.md §1: remote
// embedding API is a named out-of-scope external collaborator), wrapped in
// the spec §7 retry/backoff policy. No real embedder is wired here; whether
// OPENAI_API_KEY is set only decides whether a startup warning is logged.
func newEmbedder(logger *slog.Logger) memoryindex.Embedder {
	if os.Getenv("OPENAI_API_KEY") == "" {
		logger.Warn("serve.embedder_unconfigured", "reason", "OPENAI_API_KEY not set")
	}
	return memoryindex.NewRetryingEmbedder(externals.UnconfiguredEmbedder{}, memoryindex.DefaultRetryConfig())
}

func newRemoteDeleter(logger *slog.Logger) filelifecycle.RemoteDeleter {
	if os.Getenv("OPENAI_API_KEY") == "" {
		logger.Warn("serve.remote_deleter_unconfigured", "reason", "OPENAI_API_KEY not set")
	}
	return externals.UnconfiguredRemoteDeleter{}
}

// startMemoryWatcher runs an fsnotify watch over the markdown memory tree as
// a best-effort accelerant: any write event triggers an immediate
// SyncMarkdownScope for that scope, ahead of whatever polling schedule a
// caller otherwise drives it on (spec.md §12).
func startMemoryWatcher(ctx context.Context, home string, mgr *memoryindex.Manager, logger *slog.Logger) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("serve.fsnotify_unavailable", "error", err)
		return
	}

	root := halohome.MemoryScopesDir(home)
	if err := os.MkdirAll(root, 0o700); err != nil {
		logger.Error("serve.memory_scopes_dir", "error", err)
		watcher.Close()
		return
	}
	if err := watcher.Add(root); err != nil {
		logger.Error("serve.fsnotify_watch_root", "error", err)
		watcher.Close()
		return
	}
	entries, _ := os.ReadDir(root)
	for _, e := range entries {
		if e.IsDir() {
			_ = watcher.Add(filepath.Join(root, e.Name()))
		}
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				scopeID := filepath.Base(filepath.Dir(event.Name))
				syncCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
				syncCtx, span := telemetry.Tracer("halo/memoryindex").Start(syncCtx, "memory_watch_sync")
				if err := mgr.SyncMarkdownScope(syncCtx, scopeID, filepath.Dir(event.Name), time.Now().UnixMilli()); err != nil {
					logger.Error("serve.memory_watch_sync_failed", "scope", scopeID, "error", err)
					span.RecordError(err)
				}
				span.End()
				cancel()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Error("serve.fsnotify_error", "error", err)
			}
		}
	}()
}

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/halo/internal/config"
	"github.com/nextlevelbuilder/halo/internal/externals"
	"github.com/nextlevelbuilder/halo/internal/filelifecycle"
	"github.com/nextlevelbuilder/halo/internal/halohome"
	"github.com/nextlevelbuilder/halo/internal/registry"
	"github.com/nextlevelbuilder/halo/internal/retention"
)

func retentionCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "retention",
		Short: "Inspect or manually trigger the file retention scheduler",
	}
	root.AddCommand(retentionRunCmd())
	return root
}

func retentionRunCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the file retention scheduler once, outside its normal interval",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRetentionOnce(cmd.Context(), dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be deleted without deleting")
	return cmd
}

func runRetentionOnce(ctx context.Context, dryRun bool) error {
	logger := newLogger()
	home := resolveHome()

	runtimeCfg, err := config.LoadRuntimeConfig(halohome.ConfigPath(home))
	if err != nil {
		return fmt.Errorf("retention run: load runtime config: %w", err)
	}
	familyPath := resolveFamilyConfigPath(home, runtimeCfg)
	family, err := config.Load(familyPath)
	if err != nil {
		return fmt.Errorf("retention run: load family config: %w", err)
	}

	memberRoles := make(map[string]config.Role, len(family.Members))
	for _, m := range family.Members {
		memberRoles[m.MemberID] = m.Role
	}

	regStore := registry.NewStore(home)
	remote := externals.UnconfiguredRemoteDeleter{}
	deleteFn := func(req retention.DeleteRequest) error {
		dctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		_, err := filelifecycle.Delete(dctx, regStore, req.ScopeID, req.FileRef, req.DeleteOpenAIFile, remote, time.Now().UnixMilli())
		return err
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

	opts := retention.RunOptions{}
	if dryRun {
		opts.DryRun = &dryRun
	}

	summary := scheduler.RunNow(ctx, opts)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

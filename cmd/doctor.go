package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/halo/internal/config"
	"github.com/nextlevelbuilder/halo/internal/halohome"
	"github.com/nextlevelbuilder/halo/internal/memoryindex"
	"github.com/nextlevelbuilder/halo/internal/registry"
	"github.com/nextlevelbuilder/halo/internal/retention"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and subsystem health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("halo doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	home := resolveHome()
	fmt.Printf("  Home:     %s\n", home)

	runtimeCfg, err := config.LoadRuntimeConfig(halohome.ConfigPath(home))
	if err != nil {
		fmt.Printf("  Runtime config load error: %s\n", err)
		return
	}

	familyPath := resolveFamilyConfigPath(home, runtimeCfg)
	fmt.Printf("  Config:   %s", familyPath)
	if _, err := os.Stat(familyPath); err != nil {
		fmt.Println(" (NOT FOUND, defaults apply)")
	} else {
		fmt.Println(" (OK)")
	}

	family, err := config.Load(familyPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}
	issues := config.Validate(family)
	if len(issues) == 0 {
		fmt.Printf("  Validate: OK (%d members)\n", len(family.Members))
	} else {
		fmt.Printf("  Validate: %d issue(s)\n", len(issues))
		for _, issue := range issues {
			fmt.Printf("    - %s\n", issue)
		}
	}

	fmt.Println()
	fmt.Println("  Retention scheduler:")
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
	regStore := registry.NewStore(home)
	scheduler := retention.New(retCfg, memberRoles, regStore, nil, nil)
	status := scheduler.Status()
	if status.Enabled {
		fmt.Printf("    %-12s enabled, every %.0f min, preset %s\n", "Status:", status.IntervalMinutes, status.PolicyPreset)
	} else {
		fmt.Printf("    %-12s disabled\n", "Status:")
	}

	fmt.Println()
	fmt.Println("  Memory index:")
	dbPath := filepath.Join(halohome.MemoryScopesDir(home), "index.sqlite")
	fmt.Printf("    %-12s %s", "Path:", dbPath)
	if _, err := os.Stat(dbPath); err != nil {
		fmt.Println(" (NOT FOUND, created on first serve)")
	} else {
		fmt.Println(" (OK)")
		idxStore, err := memoryindex.Open(dbPath)
		if err != nil {
			fmt.Printf("    %-12s OPEN FAILED (%s)\n", "Status:", err)
		} else {
			defer idxStore.Close()
			fmt.Printf("    %-12s OK\n", "Status:")
		}
	}

	fmt.Println()
	fmt.Println("  Providers:")
	checkEnvProvider("OpenAI (env)", "OPENAI_API_KEY")
}

func checkEnvProvider(label, envVar string) {
	if os.Getenv(envVar) != "" {
		fmt.Printf("    %-20s configured\n", label+":")
	} else {
		fmt.Printf("    %-20s not configured\n", label+":")
	}
}

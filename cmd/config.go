package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/halo/internal/config"
	"github.com/nextlevelbuilder/halo/internal/halohome"
)

func configCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate the household configuration",
	}
	root.AddCommand(configValidateCmd())
	return root
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the family/household configuration",
		Run: func(cmd *cobra.Command, args []string) {
			runConfigValidate()
		},
	}
}

func runConfigValidate() {
	home := resolveHome()
	runtimeCfg, err := config.LoadRuntimeConfig(halohome.ConfigPath(home))
	if err != nil {
		fmt.Fprintf(os.Stderr, "halo config validate: load runtime config: %s\n", err)
		os.Exit(1)
	}
	path := resolveFamilyConfigPath(home, runtimeCfg)

	family, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "halo config validate: %s: %s\n", path, err)
		os.Exit(1)
	}

	issues := config.Validate(family)
	if len(issues) == 0 {
		fmt.Printf("%s: OK (schemaVersion %d, %d members)\n", path, family.SchemaVersion, len(family.Members))
		return
	}

	fmt.Printf("%s: %d issue(s)\n", path, len(issues))
	for _, issue := range issues {
		fmt.Printf("  - %s\n", issue)
	}
	os.Exit(1)
}

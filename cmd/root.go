// Package cmd implements the halo CLI: serve, doctor, retention, and config
// subcommands, following the teacher's cobra root/subcommand split
// (cmd/root.go, cmd/doctor.go).
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/halo/internal/halohome"
)

// Version is set at build time via -ldflags "-X github.com/nextlevelbuilder/halo/cmd.Version=v1.0.0".
var Version = "dev"

var (
	homeFlag    string
	verboseFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "halo",
	Short: "Halo — household AI assistant gateway",
	Long:  "Halo: a household AI assistant gateway. Evaluates per-message decision envelopes, runs the file retention scheduler, and keeps the transcript/memory semantic index in sync.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&homeFlag, "home", "", "HALO_HOME directory (default: $HALO_HOME or ~/.halo)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(doctorCmd())
	rootCmd.AddCommand(retentionCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(versionCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("halo %s\n", Version)
		},
	}
}

// resolveHome returns the HALO_HOME root, preferring --home over the
// HALO_HOME environment variable over the default.
func resolveHome() string {
	if homeFlag != "" {
		return homeFlag
	}
	return halohome.Root()
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

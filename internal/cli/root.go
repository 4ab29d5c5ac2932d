package cli

import (
	"github.com/spf13/cobra"

	"github.com/vmforge/vmforge/internal/logging"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "vmforge",
	Short: "Declarative Azure VM fleet provisioning",
	Long: `VMForge provisions virtual machine fleets and their network plumbing
on Azure from a declarative PKL configuration.

It builds a dependency graph from your resource declarations, diffs the
desired configuration against recorded state, and applies the resulting
plan in parallel while respecting resource ordering.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(logLevel)
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(outputCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(workspaceCmd)
	rootCmd.AddCommand(versionCmd)
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vmforge/vmforge/internal/engine"
)

var (
	validateVars     map[string]string
	validateVarFiles []string
)

var validateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Validate the configuration",
	Long: `Checks that the configuration evaluates, that every variable has a
value passing its validation rule, and that resource references form a
valid dependency graph with no cycles or dangling targets.

No provider is contacted and no state is modified.`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringToStringVar(&validateVars, "var", nil, "Set a variable (format: name=value)")
	validateCmd.Flags().StringArrayVar(&validateVarFiles, "var-file", nil, "Load variables from a YAML file")
}

func runValidate(cmd *cobra.Command, args []string) error {
	wd, entryPoint, err := resolveEntryPoint(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	cfg, err := loadConfig(ctx, wd, entryPoint, validateVars, validateVarFiles)
	if err != nil {
		return err
	}

	expanded, err := engine.ExpandCount(cfg.Resources)
	if err != nil {
		return err
	}
	if _, err := engine.BuildDAG(expanded); err != nil {
		return err
	}

	fmt.Printf("Configuration is valid. %d resource(s) declared.\n", len(expanded))
	return nil
}

package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vmforge/vmforge/internal/engine"
)

var (
	planOutFile  string
	planVars     map[string]string
	planVarFiles []string
)

var planCmd = &cobra.Command{
	Use:   "plan [path]",
	Short: "Generate an execution plan",
	Long: `Generates an execution plan showing what actions VMForge will take
to reach the desired state defined in your configuration.

The plan shows:
  • Resources to be created
  • Resources to be updated (with diff)
  • Resources to be deleted`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVarP(&planOutFile, "out", "o", "", "Write plan to file as JSON")
	planCmd.Flags().StringToStringVar(&planVars, "var", nil, "Set a variable (format: name=value)")
	planCmd.Flags().StringArrayVar(&planVarFiles, "var-file", nil, "Load variables from a YAML file")
}

func runPlan(cmd *cobra.Command, args []string) error {
	wd, entryPoint, err := resolveEntryPoint(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	fmt.Print("Loading configuration... ")
	cfg, err := loadConfig(ctx, wd, entryPoint, planVars, planVarFiles)
	if err != nil {
		fmt.Println("FAILED")
		return err
	}
	fmt.Println("OK")

	store, err := openStore(wd, cfg)
	if err != nil {
		return err
	}
	snapshot, err := store.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	registry := newRegistry()
	if err := loadRequiredProviders(ctx, registry, cfg); err != nil {
		return err
	}
	if err := loadStateProviders(ctx, registry, snapshot, cfg); err != nil {
		return err
	}

	eng := engine.NewEngine(registry)

	fmt.Print("Calculating plan... ")
	plan, err := eng.Plan(ctx, cfg, snapshot)
	if err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("plan generation failed: %w", err)
	}
	fmt.Println("OK")

	if plan.Empty() {
		fmt.Println("\nNo changes. Infrastructure is up-to-date.")
		return nil
	}

	fmt.Println("\nVMForge will perform the following actions:")
	renderPlanOperations(plan)
	renderPlanSummary(plan)

	if planOutFile != "" {
		data, err := json.MarshalIndent(plan, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to serialize plan: %w", err)
		}
		if err := os.WriteFile(planOutFile, data, 0o644); err != nil {
			return fmt.Errorf("failed to write plan file: %w", err)
		}
		fmt.Printf("\nPlan written to %s\n", planOutFile)
	}
	return nil
}

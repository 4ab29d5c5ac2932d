package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vmforge/vmforge/internal/engine"
)

var (
	destroyAutoApprove bool
	destroyParallelism int
	destroyVars        map[string]string
	destroyVarFiles    []string
)

var destroyCmd = &cobra.Command{
	Use:   "destroy [path]",
	Short: "Destroy all managed infrastructure",
	Long: `Deletes every resource recorded in state, in reverse dependency
order. Resources that others depend on are removed last.`,
	RunE: runDestroy,
}

func init() {
	destroyCmd.Flags().BoolVar(&destroyAutoApprove, "auto-approve", false, "Skip interactive approval before destroying")
	destroyCmd.Flags().IntVar(&destroyParallelism, "parallelism", engine.DefaultParallelism, "Maximum number of concurrent operations")
	destroyCmd.Flags().StringToStringVar(&destroyVars, "var", nil, "Set a variable (format: name=value)")
	destroyCmd.Flags().StringArrayVar(&destroyVarFiles, "var-file", nil, "Load variables from a YAML file")
}

func runDestroy(cmd *cobra.Command, args []string) error {
	wd, entryPoint, err := resolveEntryPoint(args)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Configuration is optional for destroy; it only supplies backend and
	// provider settings when present.
	cfg, err := loadConfig(ctx, wd, entryPoint, destroyVars, destroyVarFiles)
	if err != nil {
		cfg = nil
	}

	store, err := openStore(wd, cfg)
	if err != nil {
		return err
	}
	if err := store.Lock(); err != nil {
		return err
	}
	defer store.Unlock()

	snapshot, err := store.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}
	if len(snapshot.Resources) == 0 {
		fmt.Println("Nothing to destroy. State is empty.")
		return nil
	}

	registry := newRegistry()
	if err := loadStateProviders(ctx, registry, snapshot, cfg); err != nil {
		return err
	}

	eng := engine.NewEngine(registry)
	eng.Parallelism = destroyParallelism

	plan, err := eng.PlanDestroy(ctx, snapshot)
	if err != nil {
		return fmt.Errorf("destroy plan generation failed: %w", err)
	}

	fmt.Println("VMForge will destroy the following resources:")
	renderPlanOperations(plan)
	renderPlanSummary(plan)

	if !destroyAutoApprove {
		fmt.Print("\nDo you really want to destroy all resources? (y/n): ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "yes" {
			fmt.Println("Destroy cancelled.")
			return nil
		}
	}

	fmt.Printf("\nDestroying %d resource(s)...\n", len(plan.Operations))

	report, applyErr := eng.Apply(ctx, plan, store, func(event engine.ApplyEvent) {
		if event.Status == "started" {
			fmt.Printf("  %s: destroying...\n", event.Address)
		}
	})
	renderRunReport(report)

	if applyErr != nil {
		return fmt.Errorf("destroy failed: %w", applyErr)
	}

	fmt.Println("\nDestroy complete!")
	return nil
}

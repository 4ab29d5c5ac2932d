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
	applyAutoApprove bool
	applyParallelism int
	applyVars        map[string]string
	applyVarFiles    []string
)

var applyCmd = &cobra.Command{
	Use:   "apply [path]",
	Short: "Apply a configuration",
	Long: `Builds or changes infrastructure according to the VMForge configuration.

A plan is computed first and shown for approval. Operations execute in
dependency order on a bounded worker pool; a failed operation skips its
dependents while unrelated resources continue. Interrupting an apply
stops new operations from starting but lets running ones finish.`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().BoolVar(&applyAutoApprove, "auto-approve", false, "Skip interactive approval of plan before applying")
	applyCmd.Flags().IntVar(&applyParallelism, "parallelism", engine.DefaultParallelism, "Maximum number of concurrent operations")
	applyCmd.Flags().StringToStringVar(&applyVars, "var", nil, "Set a variable (format: name=value)")
	applyCmd.Flags().StringArrayVar(&applyVarFiles, "var-file", nil, "Load variables from a YAML file")
}

func runApply(cmd *cobra.Command, args []string) error {
	wd, entryPoint, err := resolveEntryPoint(args)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Print("Loading configuration... ")
	cfg, err := loadConfig(ctx, wd, entryPoint, applyVars, applyVarFiles)
	if err != nil {
		fmt.Println("FAILED")
		return err
	}
	fmt.Println("OK")

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

	registry := newRegistry()
	if err := loadRequiredProviders(ctx, registry, cfg); err != nil {
		return err
	}
	if err := loadStateProviders(ctx, registry, snapshot, cfg); err != nil {
		return err
	}

	eng := engine.NewEngine(registry)
	eng.Parallelism = applyParallelism

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

	if !applyAutoApprove {
		fmt.Print("\nDo you want to perform these actions? (y/n): ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "yes" {
			fmt.Println("Apply cancelled.")
			return nil
		}
	}

	fmt.Printf("\nApplying %d operation(s)...\n", len(plan.Operations))

	report, applyErr := eng.Apply(ctx, plan, store, func(event engine.ApplyEvent) {
		if event.Status == "started" {
			fmt.Printf("  %s: %s...\n", event.Address, event.Kind)
		}
	})
	renderRunReport(report)

	if applyErr != nil {
		// State for completed operations is already persisted.
		return fmt.Errorf("apply failed: %w", applyErr)
	}

	fmt.Println("\nApply complete!")
	renderOutputs(report.Outputs, cfg.Outputs)
	return nil
}

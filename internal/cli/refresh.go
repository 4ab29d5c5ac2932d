package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vmforge/vmforge/internal/engine"
)

var refreshParallelism int

var refreshCmd = &cobra.Command{
	Use:   "refresh [path]",
	Short: "Reconcile state with real infrastructure",
	Long: `Reads every tracked resource back from its provider and updates
recorded state to match. Resources deleted outside of VMForge are
dropped from state and will be recreated by the next apply.`,
	RunE: runRefresh,
}

func init() {
	refreshCmd.Flags().IntVar(&refreshParallelism, "parallelism", engine.DefaultParallelism, "Maximum number of concurrent reads")
}

func runRefresh(cmd *cobra.Command, args []string) error {
	wd, entryPoint, err := resolveEntryPoint(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	cfg, err := loadConfig(ctx, wd, entryPoint, nil, nil)
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
		fmt.Println("State is empty. Nothing to refresh.")
		return nil
	}

	registry := newRegistry()
	if err := loadStateProviders(ctx, registry, snapshot, cfg); err != nil {
		return err
	}

	eng := engine.NewEngine(registry)
	eng.Parallelism = refreshParallelism

	fmt.Printf("Refreshing %d resource(s)...\n", len(snapshot.Resources))
	results, err := eng.Refresh(ctx, store)
	if err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}

	gone, changed := 0, 0
	for _, res := range results {
		switch {
		case res.Gone:
			gone++
			fmt.Printf("  - %s no longer exists\n", res.Address)
		case res.Changed:
			changed++
			fmt.Printf("  ~ %s drifted, state updated\n", res.Address)
		}
	}
	fmt.Printf("\nRefresh complete. %d drifted, %d removed.\n", changed, gone)
	return nil
}

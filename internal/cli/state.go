package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect and modify recorded state",
}

var stateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List resources tracked in state",
	RunE:  runStateList,
}

var stateShowCmd = &cobra.Command{
	Use:   "show <address>",
	Short: "Show the recorded state of one resource",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateShow,
}

var stateRmCmd = &cobra.Command{
	Use:   "rm <address>",
	Short: "Forget a resource without destroying it",
	Long: `Removes a resource from state without touching the real
infrastructure. The resource will be recreated by the next apply unless
its declaration is also removed.`,
	Args: cobra.ExactArgs(1),
	RunE: runStateRm,
}

func init() {
	stateCmd.AddCommand(stateListCmd)
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateRmCmd)
}

func runStateList(cmd *cobra.Command, args []string) error {
	wd, entryPoint, err := resolveEntryPoint(nil)
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
	snapshot, err := store.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	if len(snapshot.Resources) == 0 {
		fmt.Println("State is empty.")
		return nil
	}
	for _, rec := range snapshot.Resources {
		fmt.Println(rec.Addr())
	}
	return nil
}

func runStateShow(cmd *cobra.Command, args []string) error {
	wd, entryPoint, err := resolveEntryPoint(nil)
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

	rec, err := store.Get(ctx, args[0])
	if err != nil {
		return fmt.Errorf("resource %s: %w", args[0], err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runStateRm(cmd *cobra.Command, args []string) error {
	wd, entryPoint, err := resolveEntryPoint(nil)
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

	if err := store.Delete(ctx, args[0]); err != nil {
		return fmt.Errorf("failed to remove %s: %w", args[0], err)
	}
	fmt.Printf("Removed %s from state.\n", args[0])
	return nil
}

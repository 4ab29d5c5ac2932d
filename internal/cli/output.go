package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vmforge/vmforge/internal/ir"
)

var (
	outputJSON      bool
	outputSensitive bool
)

var outputCmd = &cobra.Command{
	Use:   "output [name]",
	Short: "Show output values from state",
	Long: `Reads output values from recorded state.

If no name is given, all outputs are displayed. Sensitive outputs are
masked unless --show-sensitive is set.`,
	RunE: runOutput,
}

func init() {
	outputCmd.Flags().BoolVar(&outputJSON, "json", false, "Output in JSON format")
	outputCmd.Flags().BoolVar(&outputSensitive, "show-sensitive", false, "Show sensitive output values in plaintext")
}

// sensitiveOutputSet returns the outputs that must be masked: those
// recorded sensitive in state plus those declared sensitive in the
// configuration. State carries its own copy of the flags, so masking
// holds even when the configuration cannot be loaded.
func sensitiveOutputSet(snapshot *ir.State, cfg *ir.Config) map[string]bool {
	masked := make(map[string]bool)
	for _, name := range snapshot.SensitiveOutputs {
		masked[name] = true
	}
	if cfg != nil {
		for name, decl := range cfg.Outputs {
			if decl.Sensitive {
				masked[name] = true
			}
		}
	}
	return masked
}

func runOutput(cmd *cobra.Command, args []string) error {
	wd, entryPoint, err := resolveEntryPoint(nil)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	// Config supplies backend settings and the sensitivity of each output.
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

	masked := sensitiveOutputSet(snapshot, cfg)
	sensitive := func(name string) bool {
		if outputSensitive {
			return false
		}
		return masked[name]
	}

	if len(args) > 0 {
		name := args[0]
		val, ok := snapshot.Outputs[name]
		if !ok {
			return fmt.Errorf("output %q not found", name)
		}
		if sensitive(name) {
			return fmt.Errorf("output %q is sensitive; use --show-sensitive to display it", name)
		}
		if outputJSON {
			data, _ := json.Marshal(val)
			fmt.Println(string(data))
		} else {
			fmt.Println(val)
		}
		return nil
	}

	if len(snapshot.Outputs) == 0 {
		fmt.Println("No outputs recorded.")
		return nil
	}

	if outputJSON {
		masked := make(map[string]any, len(snapshot.Outputs))
		for k, v := range snapshot.Outputs {
			if sensitive(k) {
				masked[k] = "(sensitive)"
			} else {
				masked[k] = v
			}
		}
		data, _ := json.MarshalIndent(masked, "", "  ")
		fmt.Println(string(data))
		return nil
	}

	for k, v := range snapshot.Outputs {
		if sensitive(k) {
			fmt.Printf("%s = (sensitive)\n", k)
		} else {
			fmt.Printf("%s = %v\n", k, v)
		}
	}
	return nil
}

package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vmforge/vmforge/internal/engine"
	"github.com/vmforge/vmforge/internal/eval"
	"github.com/vmforge/vmforge/internal/ir"
	"github.com/vmforge/vmforge/internal/provider"
	"github.com/vmforge/vmforge/internal/state"
	"github.com/vmforge/vmforge/internal/vars"
	azureprovider "github.com/vmforge/vmforge/providers/azure"
	nullprovider "github.com/vmforge/vmforge/providers/null"
)

const (
	dataDir       = ".vmforge"
	workspaceFile = "workspace"
)

// resolveEntryPoint determines the working directory and entry point file
// from the command arguments. A directory argument selects main.pkl inside
// it; a file argument selects that file.
func resolveEntryPoint(args []string) (wd string, entryPoint string, err error) {
	wd, err = os.Getwd()
	if err != nil {
		return "", "", fmt.Errorf("failed to get working directory: %w", err)
	}
	entryPoint = "main.pkl"

	if len(args) > 0 {
		absPath, err := filepath.Abs(args[0])
		if err != nil {
			return "", "", fmt.Errorf("failed to resolve path %s: %w", args[0], err)
		}
		info, err := os.Stat(absPath)
		if err != nil {
			return "", "", fmt.Errorf("failed to stat path %s: %w", args[0], err)
		}
		if info.IsDir() {
			wd = absPath
		} else {
			wd = filepath.Dir(absPath)
			entryPoint = filepath.Base(absPath)
		}
	}
	return wd, entryPoint, nil
}

// currentWorkspace reads the selected workspace name, defaulting to "default".
func currentWorkspace(wd string) string {
	data, err := os.ReadFile(filepath.Join(wd, dataDir, workspaceFile))
	if err != nil {
		return "default"
	}
	ws := strings.TrimSpace(string(data))
	if ws == "" {
		return "default"
	}
	return ws
}

// openStore builds the state store for the configuration's backend, or the
// local file backend when none is declared.
func openStore(wd string, cfg *ir.Config) (state.Store, error) {
	workspace := currentWorkspace(wd)

	storeCfg := state.Config{
		Type:      "local",
		Workspace: workspace,
		Path:      filepath.Join(wd, dataDir, fmt.Sprintf("state.%s.json", workspace)),
	}
	if cfg != nil && cfg.Backend != nil {
		storeCfg.Type = cfg.Backend.Type
		storeCfg.Options = cfg.Backend.Config
	}
	return state.New(&storeCfg)
}

// newRegistry returns a registry with the built-in provider factories.
func newRegistry() *provider.Registry {
	registry := provider.NewRegistry()
	registry.RegisterFactory("azure", func() provider.Interface { return azureprovider.New() })
	registry.RegisterFactory("null", func() provider.Interface { return nullprovider.New() })
	return registry
}

// loadConfig evaluates the configuration and resolves variables into it.
func loadConfig(ctx context.Context, wd, entryPoint string, cliVars map[string]string, varFiles []string) (*ir.Config, error) {
	evaluator := eval.NewEvaluator(wd)
	cfg, err := evaluator.LoadConfig(ctx, entryPoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	values, err := vars.Resolve(cfg, cliVars, varFiles)
	if err != nil {
		return nil, err
	}
	if err := vars.Interpolate(cfg, values); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadRequiredProviders loads and configures every provider referenced by
// config resources.
func loadRequiredProviders(ctx context.Context, registry *provider.Registry, cfg *ir.Config) error {
	seen := make(map[string]bool)
	for _, res := range cfg.Resources {
		if res.Provider == "" || seen[res.Provider] {
			continue
		}
		seen[res.Provider] = true
		if err := configureProvider(ctx, registry, res.Provider, cfg.Providers[res.Provider]); err != nil {
			return err
		}
	}
	return nil
}

// loadStateProviders loads providers referenced by state records, which is
// needed to delete resources that are no longer declared.
func loadStateProviders(ctx context.Context, registry *provider.Registry, snapshot *ir.State, cfg *ir.Config) error {
	seen := make(map[string]bool)
	for _, rec := range snapshot.Resources {
		if rec.Provider == "" || seen[rec.Provider] {
			continue
		}
		seen[rec.Provider] = true
		var settings map[string]string
		if cfg != nil {
			settings = cfg.Providers[rec.Provider]
		}
		if err := configureProvider(ctx, registry, rec.Provider, settings); err != nil {
			return err
		}
	}
	return nil
}

func configureProvider(ctx context.Context, registry *provider.Registry, name string, settings map[string]string) error {
	if err := registry.Load(name); err != nil {
		return fmt.Errorf("failed to load provider %s: %w", name, err)
	}
	p, err := registry.Get(name)
	if err != nil {
		return err
	}
	if err := p.Configure(ctx, settings); err != nil {
		return fmt.Errorf("failed to configure provider %s: %w", name, err)
	}
	return nil
}

const timeRound = 10 * time.Millisecond

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
)

// renderPlanOperations prints the detailed change list for a plan.
func renderPlanOperations(plan *ir.Plan) {
	for _, op := range plan.Operations {
		symbol := "~"
		color := colorReset
		switch op.Kind {
		case ir.OpCreate:
			symbol = "+"
			color = colorGreen
		case ir.OpDelete:
			symbol = "-"
			color = colorRed
		case ir.OpUpdate:
			color = colorYellow
		}

		fmt.Printf("\n%s  # %s will be %s%s\n", color, op.Address, strings.ToLower(string(op.Kind))+"d", colorReset)
		fmt.Printf("%s  %s %s {%s\n", color, symbol, op.Address, colorReset)
		renderAttributeDiff(op)
		fmt.Printf("%s    }%s\n", color, colorReset)
	}
}

func renderAttributeDiff(op *ir.Operation) {
	for key, diff := range op.Diff {
		switch diff.Action {
		case "create":
			fmt.Printf("%s      + %s = %v%s\n", colorGreen, key, formatValue(diff.After), colorReset)
		case "delete":
			fmt.Printf("%s      - %s = %v%s\n", colorRed, key, formatValue(diff.Before), colorReset)
		case "update":
			fmt.Printf("%s      ~ %s = %v -> %v%s\n", colorYellow, key, formatValue(diff.Before), formatValue(diff.After), colorReset)
		default:
			fmt.Printf("        %s = %v\n", key, formatValue(diff.After))
		}
	}
}

// formatValue returns a human-readable representation of a value.
func formatValue(v any) string {
	if v == nil {
		return "null"
	}
	switch val := v.(type) {
	case string:
		return fmt.Sprintf("%q", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// renderPlanSummary prints the plan summary counts.
func renderPlanSummary(plan *ir.Plan) {
	fmt.Println("\nPlan Summary:")
	fmt.Printf("  Create: %d\n", plan.Summary.Create)
	fmt.Printf("  Update: %d\n", plan.Summary.Update)
	fmt.Printf("  Delete: %d\n", plan.Summary.Delete)
	fmt.Printf("  NoOp:   %d\n", plan.Summary.NoOp)
}

// renderRunReport prints per-operation outcomes after an apply.
func renderRunReport(report *engine.RunReport) {
	fmt.Println()
	for _, res := range report.Results {
		switch res.Status {
		case engine.StatusApplied:
			fmt.Printf("%s  ✓ %s applied (%s)%s\n", colorGreen, res.Address, res.Duration.Round(timeRound), colorReset)
		case engine.StatusFailed:
			fmt.Printf("%s  ✗ %s failed: %s%s\n", colorRed, res.Address, res.Reason, colorReset)
		case engine.StatusSkipped:
			fmt.Printf("%s  - %s skipped: %s%s\n", colorYellow, res.Address, res.Reason, colorReset)
		}
	}
}

// renderOutputs prints resolved outputs, masking sensitive values.
func renderOutputs(outputs map[string]any, declarations map[string]*ir.Output) {
	if len(outputs) == 0 {
		return
	}
	fmt.Println("\nOutputs:")
	for name, value := range outputs {
		if decl, ok := declarations[name]; ok && decl.Sensitive {
			fmt.Printf("  %s = (sensitive)\n", name)
			continue
		}
		fmt.Printf("  %s = %v\n", name, value)
	}
}

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vmforge/vmforge/internal/engine"
)

var (
	graphVars     map[string]string
	graphVarFiles []string
)

var graphCmd = &cobra.Command{
	Use:   "graph [path]",
	Short: "Print the resource dependency graph",
	Long:  `Prints the dependency graph of the configuration in DOT format.`,
	RunE:  runGraph,
}

func init() {
	graphCmd.Flags().StringToStringVar(&graphVars, "var", nil, "Set a variable (format: name=value)")
	graphCmd.Flags().StringArrayVar(&graphVarFiles, "var-file", nil, "Load variables from a YAML file")
}

func runGraph(cmd *cobra.Command, args []string) error {
	wd, entryPoint, err := resolveEntryPoint(args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd.Context(), wd, entryPoint, graphVars, graphVarFiles)
	if err != nil {
		return err
	}

	expanded, err := engine.ExpandCount(cfg.Resources)
	if err != nil {
		return err
	}
	dag, err := engine.BuildDAG(expanded)
	if err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString("digraph resources {\n")
	b.WriteString("  rankdir = \"LR\";\n")
	for _, addr := range dag.CreationOrder() {
		fmt.Fprintf(&b, "  %q;\n", addr)
		for _, dep := range dag.Dependencies(addr) {
			fmt.Fprintf(&b, "  %q -> %q;\n", addr, dep)
		}
	}
	b.WriteString("}\n")

	fmt.Print(b.String())
	return nil
}

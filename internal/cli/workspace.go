package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var workspaceCmd = &cobra.Command{
	Use:   "workspace",
	Short: "Manage workspaces",
	Long: `Workspaces manage multiple distinct sets of infrastructure with the
same configuration. Each workspace has its own state.

The default workspace is called "default".`,
}

var workspaceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workspaces",
	RunE:  runWorkspaceList,
}

var workspaceNewCmd = &cobra.Command{
	Use:   "new <name>",
	Short: "Create a new workspace and switch to it",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkspaceNew,
}

var workspaceSelectCmd = &cobra.Command{
	Use:   "select <name>",
	Short: "Switch to another workspace",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkspaceSelect,
}

var workspaceShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current workspace name",
	RunE:  runWorkspaceShow,
}

func init() {
	workspaceCmd.AddCommand(workspaceListCmd)
	workspaceCmd.AddCommand(workspaceNewCmd)
	workspaceCmd.AddCommand(workspaceSelectCmd)
	workspaceCmd.AddCommand(workspaceShowCmd)
}

func runWorkspaceList(cmd *cobra.Command, args []string) error {
	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	current := currentWorkspace(wd)

	for _, ws := range listWorkspaces(wd) {
		marker := "  "
		if ws == current {
			marker = "* "
		}
		fmt.Printf("%s%s\n", marker, ws)
	}
	return nil
}

// listWorkspaces returns the known workspace names in sorted order. A
// workspace is known if a state file exists for it; "default" always is.
func listWorkspaces(wd string) []string {
	seen := map[string]bool{"default": true}
	entries, _ := os.ReadDir(filepath.Join(wd, dataDir))
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, "state.") && strings.HasSuffix(name, ".json") {
			seen[strings.TrimSuffix(strings.TrimPrefix(name, "state."), ".json")] = true
		}
	}

	names := make([]string, 0, len(seen))
	for ws := range seen {
		names = append(names, ws)
	}
	sort.Strings(names)
	return names
}

func runWorkspaceNew(cmd *cobra.Command, args []string) error {
	return selectWorkspace(args[0])
}

func runWorkspaceSelect(cmd *cobra.Command, args []string) error {
	return selectWorkspace(args[0])
}

func runWorkspaceShow(cmd *cobra.Command, args []string) error {
	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	fmt.Println(currentWorkspace(wd))
	return nil
}

func selectWorkspace(name string) error {
	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	dir := filepath.Join(wd, dataDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, workspaceFile), []byte(name+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to record workspace: %w", err)
	}
	fmt.Printf("Switched to workspace %q.\n", name)
	return nil
}

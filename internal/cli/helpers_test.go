package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmforge/vmforge/internal/ir"
)

func TestResolveEntryPoint_Default(t *testing.T) {
	wd, entryPoint, err := resolveEntryPoint(nil)
	require.NoError(t, err)
	assert.NotEmpty(t, wd)
	assert.Equal(t, "main.pkl", entryPoint)
}

func TestResolveEntryPoint_DirectoryArgument(t *testing.T) {
	dir := t.TempDir()

	wd, entryPoint, err := resolveEntryPoint([]string{dir})
	require.NoError(t, err)
	assert.Equal(t, dir, wd)
	assert.Equal(t, "main.pkl", entryPoint)
}

func TestResolveEntryPoint_FileArgument(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "fleet.pkl")
	require.NoError(t, os.WriteFile(file, []byte("amends \"config.pkl\"\n"), 0o644))

	wd, entryPoint, err := resolveEntryPoint([]string{file})
	require.NoError(t, err)
	assert.Equal(t, dir, wd)
	assert.Equal(t, "fleet.pkl", entryPoint)
}

func TestResolveEntryPoint_MissingPath(t *testing.T) {
	_, _, err := resolveEntryPoint([]string{filepath.Join(t.TempDir(), "nope.pkl")})
	require.Error(t, err)
}

func TestCurrentWorkspace_DefaultsWhenUnset(t *testing.T) {
	assert.Equal(t, "default", currentWorkspace(t.TempDir()))
}

func TestCurrentWorkspace_ReadsSelection(t *testing.T) {
	wd := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(wd, dataDir), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(wd, dataDir, workspaceFile), []byte("staging\n"), 0o644))

	assert.Equal(t, "staging", currentWorkspace(wd))
}

func TestCurrentWorkspace_EmptyFileFallsBack(t *testing.T) {
	wd := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(wd, dataDir), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(wd, dataDir, workspaceFile), []byte("  \n"), 0o644))

	assert.Equal(t, "default", currentWorkspace(wd))
}

func TestOpenStore_LocalDefault(t *testing.T) {
	wd := t.TempDir()

	store, err := openStore(wd, nil)
	require.NoError(t, err)
	assert.Equal(t, "default", store.Workspace())
}

func TestOpenStore_UnknownBackend(t *testing.T) {
	cfg := &ir.Config{Backend: &ir.Backend{Type: "consul"}}

	_, err := openStore(t.TempDir(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown state backend")
}

func TestNewRegistry_BuiltinsRegistered(t *testing.T) {
	registry := newRegistry()

	require.NoError(t, registry.Load("null"))
	p, err := registry.Get("null")
	require.NoError(t, err)
	assert.Equal(t, "null", p.Name())

	require.NoError(t, registry.Load("azure"))
	assert.Error(t, registry.Load("gcp"))
}

func TestListWorkspaces_SortedWithDefault(t *testing.T) {
	wd := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(wd, dataDir), 0o755))
	for _, ws := range []string{"staging", "prod", "ci"} {
		path := filepath.Join(wd, dataDir, "state."+ws+".json")
		require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))
	}

	assert.Equal(t, []string{"ci", "default", "prod", "staging"}, listWorkspaces(wd))
}

func TestListWorkspaces_EmptyDirHasDefault(t *testing.T) {
	assert.Equal(t, []string{"default"}, listWorkspaces(t.TempDir()))
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "null", formatValue(nil))
	assert.Equal(t, `"eastus"`, formatValue("eastus"))
	assert.Equal(t, "3", formatValue(3))
	assert.Equal(t, "true", formatValue(true))
}

func TestRootCommand_RegistersSubcommands(t *testing.T) {
	expected := []string{"validate", "plan", "apply", "destroy", "refresh", "output", "graph", "state", "workspace", "version"}
	for _, name := range expected {
		found := false
		for _, cmd := range rootCmd.Commands() {
			if cmd.Name() == name {
				found = true
				break
			}
		}
		assert.True(t, found, "missing subcommand %s", name)
	}
}

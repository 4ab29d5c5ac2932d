package state

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmforge/vmforge/internal/ir"
)

func newTestStore(t *testing.T) (Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.default.json")
	return NewLocal(path, "default"), path
}

func sampleRecord(name string) *ir.ResourceState {
	return &ir.ResourceState{
		Type:     "azure:Network.Vnet",
		Name:     name,
		Provider: "azure",
		ID:       "/subscriptions/sub/resourceGroups/rg/providers/Microsoft.Network/virtualNetworks/" + name,
		Inputs:   map[string]any{"addressSpaces": []any{"10.0.0.0/16"}},
		Outputs:  map[string]any{"id": "vnet-" + name},
	}
}

func TestLocalStore_GetMissingReturnsErrNotFound(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Get(context.Background(), "azure:Network.Vnet.ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStore_PutThenGet(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	rec := sampleRecord("main")
	require.NoError(t, store.Put(ctx, rec.Addr(), rec))

	got, err := store.Get(ctx, "azure:Network.Vnet.main")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "vnet-main", got.Outputs["id"])
}

func TestLocalStore_PutOverwritesExistingRecord(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	rec := sampleRecord("main")
	require.NoError(t, store.Put(ctx, rec.Addr(), rec))

	updated := sampleRecord("main")
	updated.Inputs["addressSpaces"] = []any{"10.1.0.0/16"}
	require.NoError(t, store.Put(ctx, updated.Addr(), updated))

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Resources, 1)
	assert.Equal(t, []any{"10.1.0.0/16"}, snap.Resources[0].Inputs["addressSpaces"])
}

func TestLocalStore_DeleteRemovesRecord(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	rec := sampleRecord("main")
	require.NoError(t, store.Put(ctx, rec.Addr(), rec))
	require.NoError(t, store.Delete(ctx, rec.Addr()))

	_, err := store.Get(ctx, rec.Addr())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStore_DeleteMissingIsNoError(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.Delete(context.Background(), "azure:Network.Vnet.ghost"))
}

func TestLocalStore_FreshStateHasLineage(t *testing.T) {
	store, _ := newTestStore(t)

	snap, err := store.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Version)
	assert.Equal(t, 0, snap.Serial)
	assert.NotEmpty(t, snap.Lineage)
	assert.Equal(t, "default", snap.Workspace)
}

func TestLocalStore_PersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.default.json")
	ctx := context.Background()

	first := NewLocal(path, "default")
	rec := sampleRecord("main")
	require.NoError(t, first.Put(ctx, rec.Addr(), rec))

	firstSnap, err := first.Snapshot(ctx)
	require.NoError(t, err)

	second := NewLocal(path, "default")
	secondSnap, err := second.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, firstSnap.Lineage, secondSnap.Lineage)
	require.Len(t, secondSnap.Resources, 1)
	assert.Equal(t, rec.ID, secondSnap.Resources[0].ID)
}

func TestLocalStore_SnapshotIsIsolated(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	rec := sampleRecord("main")
	require.NoError(t, store.Put(ctx, rec.Addr(), rec))

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)
	snap.Resources[0].Outputs["id"] = "mutated"

	got, err := store.Get(ctx, rec.Addr())
	require.NoError(t, err)
	assert.Equal(t, "vnet-main", got.Outputs["id"])
}

func TestLocalStore_SetOutputsBumpsSerial(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	outputs := map[string]any{"vmIds": []any{"a", "b"}, "adminPassword": "hunter2"}
	require.NoError(t, store.SetOutputs(ctx, outputs, []string{"adminPassword"}))

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Serial)
	assert.Equal(t, []any{"a", "b"}, snap.Outputs["vmIds"])
	assert.Equal(t, []string{"adminPassword"}, snap.SensitiveOutputs)
}

func TestLocalStore_CorruptFileIsUnavailable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.default.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	store := NewLocal(path, "default")
	_, err := store.Snapshot(context.Background())
	require.Error(t, err)

	var uerr *UnavailableError
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, "local", uerr.Backend)
}

func TestLocalStore_LockBlocksSecondLock(t *testing.T) {
	store, path := newTestStore(t)

	require.NoError(t, store.Lock())
	defer store.Unlock()

	other := NewLocal(path, "default")
	err := other.Lock()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked by another process")
}

func TestLocalStore_LockIsExclusiveCreate(t *testing.T) {
	store, path := newTestStore(t)

	// A pre-existing fresh lock file must not be overwritten.
	require.NoError(t, os.WriteFile(path+".lock", []byte("pid=1\n"), 0o644))
	err := store.Lock()
	require.Error(t, err)

	raw, readErr := os.ReadFile(path + ".lock")
	require.NoError(t, readErr)
	assert.Equal(t, "pid=1\n", string(raw))
}

func TestLocalStore_StaleLockIsTakenOver(t *testing.T) {
	store, path := newTestStore(t)
	lockPath := path + ".lock"

	require.NoError(t, os.WriteFile(lockPath, []byte("pid=1\n"), 0o644))
	old := time.Now().Add(-11 * time.Minute)
	require.NoError(t, os.Chtimes(lockPath, old, old))

	require.NoError(t, store.Lock())
	defer store.Unlock()

	raw, err := os.ReadFile(lockPath)
	require.NoError(t, err)
	assert.NotEqual(t, "pid=1\n", string(raw))
}

func TestLocalStore_UnlockAllowsRelock(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.Lock())
	require.NoError(t, store.Unlock())
	require.NoError(t, store.Lock())
	require.NoError(t, store.Unlock())
}

func TestLocalStore_UnlockWithoutLockIsNoError(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.Unlock())
}

func TestNew_UnknownBackendType(t *testing.T) {
	_, err := New(&Config{Type: "etcd"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown state backend")
}

func TestNew_DefaultsToLocal(t *testing.T) {
	store, err := New(&Config{Path: filepath.Join(t.TempDir(), "s.json"), Workspace: "prod"})
	require.NoError(t, err)
	assert.Equal(t, "prod", store.Workspace())
}

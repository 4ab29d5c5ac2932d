package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmforge/vmforge/internal/ir"
)

func TestPlan_CycleFailsBeforeAnyProviderCall(t *testing.T) {
	fake := newFakeProvider()
	eng, _ := testEngine(t, fake)

	cfg := &ir.Config{Resources: []*ir.Resource{
		fakeResource("a", nil, "fake:Thing.b"),
		fakeResource("b", nil, "fake:Thing.a"),
	}}

	_, err := eng.Plan(context.Background(), cfg, &ir.State{})
	var cycleErr *CycleError
	require.True(t, errors.As(err, &cycleErr))
	assert.Empty(t, fake.callNames(), "a cyclic configuration must not touch any provider")
}

func TestPlan_SecondRunIsAllNoOps(t *testing.T) {
	fake := newFakeProvider()
	eng, store := testEngine(t, fake)
	ctx := context.Background()

	cfg := &ir.Config{Resources: []*ir.Resource{
		fakeResource("parent", map[string]any{"v": "x"}),
		fakeResource("child", map[string]any{"parentId": "ptr://fake:Thing/parent/id"}),
	}}

	plan, err := eng.Plan(ctx, cfg, &ir.State{})
	require.NoError(t, err)
	_, err = eng.Apply(ctx, plan, store, nil)
	require.NoError(t, err)

	second, err := eng.Plan(ctx, cfg, mustSnapshot(t, store))
	require.NoError(t, err)
	assert.True(t, second.Empty(), "an unchanged configuration plans no operations")
	assert.Equal(t, 2, second.Summary.NoOp)
}

func TestPlan_MetadataCarriesWorkspaceAndSerial(t *testing.T) {
	fake := newFakeProvider()
	eng, _ := testEngine(t, fake)

	plan, err := eng.Plan(context.Background(), &ir.Config{}, &ir.State{Workspace: "staging", Serial: 7})
	require.NoError(t, err)
	assert.Equal(t, "staging", plan.Metadata.Workspace)
	assert.Equal(t, 7, plan.Metadata.StateSerial)
	assert.NotEmpty(t, plan.Metadata.Timestamp)
}

func TestPlan_SatisfiedDependenciesImposeNoOrdering(t *testing.T) {
	fake := newFakeProvider()
	eng, store := testEngine(t, fake)
	ctx := context.Background()

	cfg := &ir.Config{Resources: []*ir.Resource{
		fakeResource("parent", map[string]any{"v": "x"}),
		fakeResource("child", map[string]any{"v": "y"}, "fake:Thing.parent"),
	}}
	plan, err := eng.Plan(ctx, cfg, &ir.State{})
	require.NoError(t, err)
	_, err = eng.Apply(ctx, plan, store, nil)
	require.NoError(t, err)

	// Change only the child; the parent is a no-op and the child's
	// operation must not wait for it.
	cfg.Resources[1].Attributes["v"] = "changed"
	second, err := eng.Plan(ctx, cfg, mustSnapshot(t, store))
	require.NoError(t, err)
	require.Len(t, second.Operations, 1)
	assert.Equal(t, ir.OpUpdate, second.Operations[0].Kind)
	assert.Empty(t, second.Operations[0].DependsOn)
}

func TestPlan_MissingProviderFails(t *testing.T) {
	fake := newFakeProvider()
	eng, _ := testEngine(t, fake)

	cfg := &ir.Config{Resources: []*ir.Resource{
		{Type: "ghost:Thing", Name: "a", Provider: "ghost"},
	}}
	_, err := eng.Plan(context.Background(), cfg, &ir.State{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

func TestPlan_DeleteWaitsForRecordedDependents(t *testing.T) {
	fake := newFakeProvider()
	eng, _ := testEngine(t, fake)
	ctx := context.Background()

	// "old" is no longer declared. "survivor" recorded a dependency on it
	// and is being updated away from the reference, so the delete must
	// wait for the update.
	snapshot := &ir.State{Resources: []*ir.ResourceState{
		{Type: "fake:Thing", Name: "old", Provider: "fake", ID: "fake-old",
			Inputs: map[string]any{"v": 1}},
		{Type: "fake:Thing", Name: "survivor", Provider: "fake", ID: "fake-survivor",
			Inputs:       map[string]any{"ref": "fake-old"},
			Dependencies: []string{"fake:Thing.old"}},
	}}
	cfg := &ir.Config{Resources: []*ir.Resource{
		fakeResource("survivor", map[string]any{"ref": "standalone"}),
	}}

	plan, err := eng.Plan(ctx, cfg, snapshot)
	require.NoError(t, err)
	require.Len(t, plan.Operations, 2)

	var deleteOp *ir.Operation
	for _, op := range plan.Operations {
		if op.Kind == ir.OpDelete {
			deleteOp = op
		}
	}
	require.NotNil(t, deleteOp)
	assert.Equal(t, "fake:Thing.old", deleteOp.Address)
	assert.Contains(t, deleteOp.DependsOn, "fake:Thing.survivor")
}

func TestPlanDestroy_ReverseDependencyOrder(t *testing.T) {
	fake := newFakeProvider()
	eng, store := testEngine(t, fake)
	ctx := context.Background()

	cfg := &ir.Config{Resources: []*ir.Resource{
		fakeResource("base", map[string]any{"v": 1}),
		fakeResource("top", map[string]any{"baseId": "ptr://fake:Thing/base/id"}),
	}}
	plan, err := eng.Plan(ctx, cfg, &ir.State{})
	require.NoError(t, err)
	_, err = eng.Apply(ctx, plan, store, nil)
	require.NoError(t, err)

	destroy, err := eng.PlanDestroy(ctx, mustSnapshot(t, store))
	require.NoError(t, err)
	require.Len(t, destroy.Operations, 2)
	assert.Equal(t, 2, destroy.Summary.Delete)

	for _, op := range destroy.Operations {
		assert.Equal(t, ir.OpDelete, op.Kind)
		if op.Address == "fake:Thing.base" {
			assert.Contains(t, op.DependsOn, "fake:Thing.top",
				"the referenced resource is deleted only after its dependent")
		}
	}

	report, err := eng.Apply(ctx, destroy, store, nil)
	require.NoError(t, err)
	for _, res := range report.Results {
		assert.Equal(t, StatusApplied, res.Status)
	}
	assert.Empty(t, mustSnapshot(t, store).Resources)
}

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmforge/vmforge/internal/ir"
)

func TestDiffer_CreateWhenNotRecorded(t *testing.T) {
	resources := []*ir.Resource{
		{Type: "null:Resource", Name: "a", Provider: "null", Attributes: map[string]any{"x": 1}},
	}
	d := newDiffer(resources, &ir.State{})

	op := d.classify("null:Resource.a")
	assert.Equal(t, ir.OpCreate, op.Kind)
	assert.Equal(t, "create", op.Diff["x"].Action)
}

func TestDiffer_NoOpWhenUnchanged(t *testing.T) {
	resources := []*ir.Resource{
		{Type: "null:Resource", Name: "a", Provider: "null", Attributes: map[string]any{"x": "hello", "n": 3}},
	}
	state := &ir.State{Resources: []*ir.ResourceState{
		{Type: "null:Resource", Name: "a", Provider: "null", ID: "null-a",
			Inputs: map[string]any{"x": "hello", "n": 3}},
	}}

	op := newDiffer(resources, state).classify("null:Resource.a")
	assert.Equal(t, ir.OpNoOp, op.Kind)
	assert.Empty(t, op.Diff)
}

func TestDiffer_NumericTypeMismatchIsNoOp(t *testing.T) {
	// JSON state decodes numbers as float64; config frontends produce int.
	resources := []*ir.Resource{
		{Type: "null:Resource", Name: "a", Provider: "null", Attributes: map[string]any{"n": 3}},
	}
	state := &ir.State{Resources: []*ir.ResourceState{
		{Type: "null:Resource", Name: "a", Provider: "null",
			Inputs: map[string]any{"n": float64(3)}},
	}}

	op := newDiffer(resources, state).classify("null:Resource.a")
	assert.Equal(t, ir.OpNoOp, op.Kind)
}

func TestDiffer_UpdateWhenAttributeChanged(t *testing.T) {
	resources := []*ir.Resource{
		{Type: "null:Resource", Name: "a", Provider: "null", Attributes: map[string]any{"x": "new"}},
	}
	state := &ir.State{Resources: []*ir.ResourceState{
		{Type: "null:Resource", Name: "a", Provider: "null",
			Inputs: map[string]any{"x": "old"}},
	}}

	op := newDiffer(resources, state).classify("null:Resource.a")
	require.Equal(t, ir.OpUpdate, op.Kind)
	require.Contains(t, op.Diff, "x")
	assert.Equal(t, "old", op.Diff["x"].Before)
	assert.Equal(t, "new", op.Diff["x"].After)
	assert.Equal(t, "update", op.Diff["x"].Action)
}

func TestDiffer_AttributeAddedAndRemoved(t *testing.T) {
	resources := []*ir.Resource{
		{Type: "null:Resource", Name: "a", Provider: "null", Attributes: map[string]any{"added": true}},
	}
	state := &ir.State{Resources: []*ir.ResourceState{
		{Type: "null:Resource", Name: "a", Provider: "null",
			Inputs: map[string]any{"removed": true}},
	}}

	op := newDiffer(resources, state).classify("null:Resource.a")
	require.Equal(t, ir.OpUpdate, op.Kind)
	assert.Equal(t, "create", op.Diff["added"].Action)
	assert.Equal(t, "delete", op.Diff["removed"].Action)
}

func TestDiffer_ReferenceChangePropagates(t *testing.T) {
	// base's declared cidr changes; dependent's reference resolves to the
	// new planned value, so the dependent becomes an update too.
	resources := []*ir.Resource{
		{Type: "null:Resource", Name: "base", Provider: "null",
			Attributes: map[string]any{"cidr": "10.0.0.0/8"}},
		{Type: "null:Resource", Name: "dep", Provider: "null",
			Attributes: map[string]any{"parentCidr": "ptr://null:Resource/base/cidr"}},
	}
	state := &ir.State{Resources: []*ir.ResourceState{
		{Type: "null:Resource", Name: "base", Provider: "null",
			Inputs: map[string]any{"cidr": "10.1.0.0/16"}},
		{Type: "null:Resource", Name: "dep", Provider: "null",
			Inputs: map[string]any{"parentCidr": "10.1.0.0/16"}},
	}}

	d := newDiffer(resources, state)

	baseOp := d.classify("null:Resource.base")
	require.Equal(t, ir.OpUpdate, baseOp.Kind)

	depOp := d.classify("null:Resource.dep")
	require.Equal(t, ir.OpUpdate, depOp.Kind)
	assert.Equal(t, "10.0.0.0/8", depOp.Diff["parentCidr"].After)
}

func TestDiffer_TransitiveReferenceChain(t *testing.T) {
	resources := []*ir.Resource{
		{Type: "null:Resource", Name: "a", Provider: "null",
			Attributes: map[string]any{"v": "changed"}},
		{Type: "null:Resource", Name: "b", Provider: "null",
			Attributes: map[string]any{"v": "ptr://null:Resource/a/v"}},
		{Type: "null:Resource", Name: "c", Provider: "null",
			Attributes: map[string]any{"v": "ptr://null:Resource/b/v"}},
	}
	state := &ir.State{Resources: []*ir.ResourceState{
		{Type: "null:Resource", Name: "a", Provider: "null", Inputs: map[string]any{"v": "orig"}},
		{Type: "null:Resource", Name: "b", Provider: "null", Inputs: map[string]any{"v": "orig"}},
		{Type: "null:Resource", Name: "c", Provider: "null", Inputs: map[string]any{"v": "orig"}},
	}}

	d := newDiffer(resources, state)
	assert.Equal(t, ir.OpUpdate, d.classify("null:Resource.c").Kind,
		"a change two hops away should propagate through the chain")
}

func TestDiffer_ReferenceFallsBackToRecordedOutputs(t *testing.T) {
	// The referenced attribute is provider-assigned, so the planned value
	// comes from the target's recorded outputs.
	resources := []*ir.Resource{
		{Type: "null:Resource", Name: "base", Provider: "null", Attributes: map[string]any{}},
		{Type: "null:Resource", Name: "dep", Provider: "null",
			Attributes: map[string]any{"baseId": "ptr://null:Resource/base/id"}},
	}
	state := &ir.State{Resources: []*ir.ResourceState{
		{Type: "null:Resource", Name: "base", Provider: "null", ID: "null-base",
			Inputs: map[string]any{}, Outputs: map[string]any{"id": "null-base"}},
		{Type: "null:Resource", Name: "dep", Provider: "null",
			Inputs: map[string]any{"baseId": "null-base"}},
	}}

	op := newDiffer(resources, state).classify("null:Resource.dep")
	assert.Equal(t, ir.OpNoOp, op.Kind)
}

func TestDiffer_UnresolvableRefStaysSymbolic(t *testing.T) {
	// Target is being created, so its id is unknown until apply. The
	// reference stays symbolic and the dependent is a create anyway.
	resources := []*ir.Resource{
		{Type: "null:Resource", Name: "base", Provider: "null", Attributes: map[string]any{}},
		{Type: "null:Resource", Name: "dep", Provider: "null",
			Attributes: map[string]any{"baseId": "ptr://null:Resource/base/id"}},
	}

	d := newDiffer(resources, &ir.State{})
	op := d.classify("null:Resource.dep")
	require.Equal(t, ir.OpCreate, op.Kind)
	assert.Equal(t, "ptr://null:Resource/base/id", op.New["baseId"])
}

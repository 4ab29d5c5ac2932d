package engine

import (
	"fmt"

	"github.com/vmforge/vmforge/internal/ir"
)

// differ classifies each desired resource against its recorded state.
// Reference expressions are resolved transitively against planned values
// before comparison, so a change in a referenced resource's declared value
// propagates to everything that references it.
type differ struct {
	desired  map[string]*ir.Resource
	recorded map[string]*ir.ResourceState
	resolved map[string]map[string]any // memoized resolved desired attributes
}

func newDiffer(resources []*ir.Resource, state *ir.State) *differ {
	d := &differ{
		desired:  make(map[string]*ir.Resource),
		recorded: make(map[string]*ir.ResourceState),
		resolved: make(map[string]map[string]any),
	}
	for _, res := range resources {
		d.desired[ResourceAddr(res)] = res
	}
	for _, rec := range state.Resources {
		d.recorded[rec.Addr()] = rec
	}
	return d
}

// resolveDesired returns the resource's attributes with every reference
// replaced by its planned value. The graph is already known to be acyclic,
// so the recursion terminates.
func (d *differ) resolveDesired(addr string) map[string]any {
	if cached, ok := d.resolved[addr]; ok {
		return cached
	}
	res := d.desired[addr]
	if res == nil {
		return nil
	}

	out := make(map[string]any, len(res.Attributes))
	for k, v := range res.Attributes {
		out[k] = d.resolveValue(normalizeValue(v))
	}
	d.resolved[addr] = out
	return out
}

func (d *differ) resolveValue(v any) any {
	switch val := v.(type) {
	case string:
		if !IsRef(val) {
			return val
		}
		return d.resolveRef(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = d.resolveValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = d.resolveValue(item)
		}
		return out
	default:
		return v
	}
}

// resolveRef resolves one reference. Declared values win over recorded
// ones: if the target declares the attribute, the planned (resolved) value
// is used; otherwise the last-applied outputs and inputs are consulted.
// Values only known after apply (e.g. a provider-assigned id of a resource
// being created) stay as the reference expression.
func (d *differ) resolveRef(ref string) any {
	addr := refToAddr(ref)
	attr := refAttr(ref)
	if addr == "" || attr == "" {
		return ref
	}

	if _, ok := d.desired[addr]; ok {
		if planned := d.resolveDesired(addr); planned != nil {
			if v, ok := planned[attr]; ok {
				return v
			}
		}
	}
	if rec, ok := d.recorded[addr]; ok {
		if v, ok := rec.Outputs[attr]; ok {
			return v
		}
		if v, ok := rec.Inputs[attr]; ok {
			return v
		}
	}
	return ref
}

// classify produces the operation for one desired resource, or a no-op.
func (d *differ) classify(addr string) *ir.Operation {
	res := d.desired[addr]
	resolved := d.resolveDesired(addr)

	rec, exists := d.recorded[addr]
	if !exists {
		return &ir.Operation{
			Kind:      ir.OpCreate,
			Address:   addr,
			Provider:  res.Provider,
			Desired:   res,
			New:       resolved,
			Diff:      buildCreateDiff(resolved),
			DeclIndex: res.DeclIndex,
		}
	}

	diff := buildAttributeDiff(rec.Inputs, resolved)
	if len(diff) == 0 {
		return &ir.Operation{
			Kind:      ir.OpNoOp,
			Address:   addr,
			Provider:  res.Provider,
			Desired:   res,
			Old:       rec.Inputs,
			New:       resolved,
			DeclIndex: res.DeclIndex,
		}
	}

	return &ir.Operation{
		Kind:      ir.OpUpdate,
		Address:   addr,
		Provider:  res.Provider,
		Desired:   res,
		Old:       rec.Inputs,
		New:       resolved,
		Diff:      diff,
		DeclIndex: res.DeclIndex,
	}
}

// buildAttributeDiff compares recorded and desired attributes by value
// equality and returns the changed subset.
func buildAttributeDiff(old, new map[string]any) map[string]*ir.AttributeDiff {
	diff := make(map[string]*ir.AttributeDiff)

	allKeys := make(map[string]bool)
	for k := range old {
		allKeys[k] = true
	}
	for k := range new {
		allKeys[k] = true
	}

	for k := range allKeys {
		oldVal, inOld := old[k]
		newVal, inNew := new[k]

		switch {
		case !inOld:
			diff[k] = &ir.AttributeDiff{After: newVal, Action: "create"}
		case !inNew:
			diff[k] = &ir.AttributeDiff{Before: oldVal, Action: "delete"}
		case !valuesEqual(oldVal, newVal):
			diff[k] = &ir.AttributeDiff{Before: oldVal, After: newVal, Action: "update"}
		}
	}

	return diff
}

func buildCreateDiff(attrs map[string]any) map[string]*ir.AttributeDiff {
	diff := make(map[string]*ir.AttributeDiff)
	for k, v := range attrs {
		diff[k] = &ir.AttributeDiff{After: v, Action: "create"}
	}
	return diff
}

func buildDeleteDiff(attrs map[string]any) map[string]*ir.AttributeDiff {
	diff := make(map[string]*ir.AttributeDiff)
	for k, v := range attrs {
		diff[k] = &ir.AttributeDiff{Before: v, Action: "delete"}
	}
	return diff
}

// valuesEqual compares attribute values after canonicalizing collection
// types. Numeric values decoded from JSON and config frontends may differ
// in Go type, so scalars are compared by their printed form.
func valuesEqual(a, b any) bool {
	return fmt.Sprintf("%v", normalizeValue(a)) == fmt.Sprintf("%v", normalizeValue(b))
}

package engine

import (
	"fmt"
	"strings"

	"github.com/vmforge/vmforge/internal/ir"
)

// ExpandCount expands resources with Count > 1 into individual definitions
// named "name[i]", substituting ${count.index} inside attributes and adding
// an explicit index attribute. Expanded instances carry no edges between
// each other, so sibling indexes remain independently schedulable.
// Declaration indexes are reassigned in expansion order.
func ExpandCount(resources []*ir.Resource) ([]*ir.Resource, error) {
	var expanded []*ir.Resource
	decl := 0

	for _, res := range resources {
		if res.Count < 0 {
			return nil, fmt.Errorf("resource %s: count must not be negative (got %d)", ResourceAddr(res), res.Count)
		}
		if res.Count == 0 || res.Count == 1 {
			clone := cloneResource(res)
			clone.Count = 0
			clone.DeclIndex = decl
			decl++
			expanded = append(expanded, clone)
			continue
		}

		for i := 0; i < res.Count; i++ {
			clone := cloneResource(res)
			clone.Count = 0
			clone.Name = fmt.Sprintf("%s[%d]", res.Name, i)
			clone.Attributes = substituteIndex(clone.Attributes, i)
			if clone.Attributes == nil {
				clone.Attributes = make(map[string]any)
			}
			if _, ok := clone.Attributes["index"]; !ok {
				clone.Attributes["index"] = i
			}
			clone.DeclIndex = decl
			decl++
			expanded = append(expanded, clone)
		}
	}

	return expanded, nil
}

func cloneResource(res *ir.Resource) *ir.Resource {
	clone := &ir.Resource{
		Type:      res.Type,
		Name:      res.Name,
		Provider:  res.Provider,
		Count:     res.Count,
		CountVar:  res.CountVar,
		DeclIndex: res.DeclIndex,
	}
	clone.DependsOn = append([]string{}, res.DependsOn...)
	clone.Attributes = deepCopyMap(res.Attributes)
	return clone
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	result := make(map[string]any)
	for k, v := range m {
		result[k] = deepCopyValue(v)
	}
	return result
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		clone := make([]any, len(val))
		for i, item := range val {
			clone[i] = deepCopyValue(item)
		}
		return clone
	default:
		return v
	}
}

func substituteIndex(attrs map[string]any, index int) map[string]any {
	if attrs == nil {
		return nil
	}
	result := make(map[string]any)
	for k, v := range attrs {
		result[k] = substituteValue(v, "${count.index}", fmt.Sprintf("%d", index))
	}
	return result
}

func substituteValue(v any, old, new string) any {
	switch val := v.(type) {
	case string:
		return strings.ReplaceAll(val, old, new)
	case map[string]any:
		result := make(map[string]any)
		for k, item := range val {
			result[k] = substituteValue(item, old, new)
		}
		return result
	case []any:
		result := make([]any, len(val))
		for i, item := range val {
			result[i] = substituteValue(item, old, new)
		}
		return result
	default:
		return v
	}
}

package engine

import (
	"fmt"
	"strings"

	"github.com/vmforge/vmforge/internal/ir"
)

// Attribute references use the ptr:// scheme:
//
//	ptr://azure:Network.Subnet/internal/id
//
// meaning "attribute id of resource azure:Network.Subnet.internal".
const refScheme = "ptr://"

// ResourceAddr returns the address of a resource (type.name).
func ResourceAddr(res *ir.Resource) string {
	return fmt.Sprintf("%s.%s", res.Type, res.Name)
}

// IsRef reports whether a value is a reference expression.
func IsRef(v any) bool {
	s, ok := v.(string)
	return ok && strings.HasPrefix(s, refScheme)
}

// extractRefs collects all ptr:// references inside an attribute value.
func extractRefs(v any) []string {
	var refs []string
	switch val := v.(type) {
	case string:
		if strings.HasPrefix(val, refScheme) {
			refs = append(refs, val)
		}
	case map[string]any:
		for _, v := range val {
			refs = append(refs, extractRefs(v)...)
		}
	case map[any]any:
		for _, v := range val {
			refs = append(refs, extractRefs(v)...)
		}
	case []any:
		for _, v := range val {
			refs = append(refs, extractRefs(v)...)
		}
	}
	return refs
}

// refToAddr converts a ptr:// reference to a resource address.
// ptr://azure:Network.Subnet/internal/id -> azure:Network.Subnet.internal
func refToAddr(ref string) string {
	if !strings.HasPrefix(ref, refScheme) {
		return ""
	}
	parts := strings.SplitN(ref[len(refScheme):], "/", 3)
	if len(parts) < 2 {
		return ""
	}
	return fmt.Sprintf("%s.%s", parts[0], parts[1])
}

// refAttr returns the attribute path of a ptr:// reference, or "".
func refAttr(ref string) string {
	if !strings.HasPrefix(ref, refScheme) {
		return ""
	}
	parts := strings.SplitN(ref[len(refScheme):], "/", 3)
	if len(parts) < 3 {
		return ""
	}
	return parts[2]
}

// normalizeValue canonicalizes maps and slices so that values decoded from
// different frontends compare equal.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case map[any]any:
		newMap := make(map[string]any)
		for k, v := range val {
			newMap[fmt.Sprintf("%v", k)] = normalizeValue(v)
		}
		return newMap
	case map[string]any:
		newMap := make(map[string]any)
		for k, v := range val {
			newMap[k] = normalizeValue(v)
		}
		return newMap
	case []any:
		newSlice := make([]any, len(val))
		for i, v := range val {
			newSlice[i] = normalizeValue(v)
		}
		return newSlice
	default:
		return val
	}
}

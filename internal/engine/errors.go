package engine

import (
	"fmt"
	"strings"
)

// CycleError reports a reference cycle in the declared resources.
// No provider call is ever made for a cyclic configuration.
type CycleError struct {
	// Path is the cycle, first and last element equal.
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Path, " -> "))
}

// UnresolvedReferenceError reports a reference to a resource that is not
// declared in the configuration.
type UnresolvedReferenceError struct {
	Address   string // the referencing resource
	Reference string // the dangling target
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("resource %s references undeclared resource %s", e.Address, e.Reference)
}

package engine

import (
	"fmt"
	"sort"

	"github.com/vmforge/vmforge/internal/ir"
)

// DAG represents a directed acyclic graph of resources for dependency ordering.
type DAG struct {
	nodes    map[string]*dagNode
	order    []string   // topological order (creation order)
	revOrder []string   // reverse topological order (destruction order)
	levels   [][]string // nodes grouped by dependency depth; one level's nodes share no edges
}

type dagNode struct {
	addr      string
	declIndex int
	edges     []string // resources this node depends on
	revEdges  []string // resources that depend on this node
}

// BuildDAG constructs a dependency graph from resources. It resolves both
// explicit dependsOn entries and implicit ptr:// attribute references.
// A reference to an undeclared resource yields UnresolvedReferenceError;
// a cycle yields CycleError.
func BuildDAG(resources []*ir.Resource) (*DAG, error) {
	dag := &DAG{
		nodes: make(map[string]*dagNode),
	}

	for _, res := range resources {
		addr := ResourceAddr(res)
		if _, exists := dag.nodes[addr]; exists {
			return nil, fmt.Errorf("duplicate resource address: %s", addr)
		}
		dag.nodes[addr] = &dagNode{addr: addr, declIndex: res.DeclIndex}
	}

	for _, res := range resources {
		addr := ResourceAddr(res)
		node := dag.nodes[addr]
		seen := make(map[string]bool)

		for _, dep := range res.DependsOn {
			if _, ok := dag.nodes[dep]; !ok {
				return nil, &UnresolvedReferenceError{Address: addr, Reference: dep}
			}
			if dep != addr && !seen[dep] {
				seen[dep] = true
				node.edges = append(node.edges, dep)
			}
		}

		for _, ref := range extractRefs(res.Attributes) {
			depAddr := refToAddr(ref)
			if depAddr == "" {
				return nil, &UnresolvedReferenceError{Address: addr, Reference: ref}
			}
			if _, ok := dag.nodes[depAddr]; !ok {
				return nil, &UnresolvedReferenceError{Address: addr, Reference: depAddr}
			}
			if depAddr != addr && !seen[depAddr] {
				seen[depAddr] = true
				node.edges = append(node.edges, depAddr)
			}
		}
	}

	for addr, node := range dag.nodes {
		for _, dep := range node.edges {
			dag.nodes[dep].revEdges = append(dag.nodes[dep].revEdges, addr)
		}
	}

	if err := dag.detectCycles(); err != nil {
		return nil, err
	}

	dag.computeLevels()

	return dag, nil
}

// detectCycles runs a depth-first traversal with recursion-stack tracking
// and reports the first cycle found, including its path.
func (d *DAG) detectCycles() error {
	visited := make(map[string]bool)
	inStack := make(map[string]bool)

	// Deterministic traversal order keeps the reported cycle stable.
	addrs := d.sortedAddrs()

	var visit func(addr string, path []string) *CycleError
	visit = func(addr string, path []string) *CycleError {
		visited[addr] = true
		inStack[addr] = true
		path = append(path, addr)

		for _, dep := range d.nodes[addr].edges {
			if inStack[dep] {
				// Close the loop for the error message.
				start := 0
				for i, p := range path {
					if p == dep {
						start = i
						break
					}
				}
				cycle := append(append([]string{}, path[start:]...), dep)
				return &CycleError{Path: cycle}
			}
			if !visited[dep] {
				if err := visit(dep, path); err != nil {
					return err
				}
			}
		}

		inStack[addr] = false
		return nil
	}

	for _, addr := range addrs {
		if !visited[addr] {
			if err := visit(addr, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// computeLevels groups nodes by dependency depth (Kahn's algorithm).
// Within a level, nodes are ordered by declaration index so that scheduling
// is deterministic and stable.
func (d *DAG) computeLevels() {
	inDegree := make(map[string]int)
	for addr, node := range d.nodes {
		inDegree[addr] = len(node.edges)
	}

	var current []string
	for addr, deg := range inDegree {
		if deg == 0 {
			current = append(current, addr)
		}
	}

	d.levels = nil
	d.order = nil
	for len(current) > 0 {
		sort.Slice(current, func(i, j int) bool {
			return d.nodes[current[i]].declIndex < d.nodes[current[j]].declIndex
		})
		d.levels = append(d.levels, current)
		d.order = append(d.order, current...)

		var next []string
		for _, addr := range current {
			for _, dependent := range d.nodes[addr].revEdges {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		current = next
	}

	d.revOrder = make([]string, len(d.order))
	for i, addr := range d.order {
		d.revOrder[len(d.order)-1-i] = addr
	}
}

func (d *DAG) sortedAddrs() []string {
	addrs := make([]string, 0, len(d.nodes))
	for addr := range d.nodes {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return d.nodes[addrs[i]].declIndex < d.nodes[addrs[j]].declIndex
	})
	return addrs
}

// CreationOrder returns resources in dependency-respecting creation order.
func (d *DAG) CreationOrder() []string {
	return d.order
}

// DestructionOrder returns resources in reverse dependency order (safe for deletion).
func (d *DAG) DestructionOrder() []string {
	return d.revOrder
}

// Levels returns the nodes grouped by dependency depth. Nodes within one
// level have no edges between them and may execute concurrently.
func (d *DAG) Levels() [][]string {
	return d.levels
}

// Dependencies returns the list of dependencies for a given address.
func (d *DAG) Dependencies(addr string) []string {
	if node, ok := d.nodes[addr]; ok {
		return node.edges
	}
	return nil
}

// Dependents returns the addresses that depend on the given address.
func (d *DAG) Dependents(addr string) []string {
	if node, ok := d.nodes[addr]; ok {
		return node.revEdges
	}
	return nil
}

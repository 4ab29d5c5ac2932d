package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/vmforge/vmforge/internal/ir"
	"github.com/vmforge/vmforge/internal/logging"
	"github.com/vmforge/vmforge/internal/provider"
)

// DefaultParallelism bounds concurrent provider operations unless overridden.
const DefaultParallelism = 4

// Engine orchestrates planning and execution of resource operations.
type Engine struct {
	registry *provider.Registry

	// Parallelism bounds concurrently executing operations.
	Parallelism int

	// OperationTimeout bounds a single provider call including retries.
	OperationTimeout time.Duration

	// Retry governs backoff for transient provider errors.
	Retry *RetryPolicy
}

func NewEngine(registry *provider.Registry) *Engine {
	return &Engine{
		registry:         registry,
		Parallelism:      DefaultParallelism,
		OperationTimeout: DefaultTimeout,
		Retry:            DefaultRetryPolicy(),
	}
}

// Plan computes the ordered operation set that reconciles the declared
// configuration with recorded state. The returned plan is immutable and
// meant to be consumed exactly once by Apply.
func (e *Engine) Plan(ctx context.Context, cfg *ir.Config, state *ir.State) (*ir.Plan, error) {
	logging.Debug("creating plan", "resources", len(cfg.Resources), "state_resources", len(state.Resources))

	expanded, err := ExpandCount(cfg.Resources)
	if err != nil {
		return nil, err
	}

	for _, res := range expanded {
		if res.Provider == "" {
			return nil, fmt.Errorf("resource %s has no provider", ResourceAddr(res))
		}
		if err := e.registry.Load(res.Provider); err != nil {
			return nil, fmt.Errorf("failed to load provider %s: %w", res.Provider, err)
		}
	}

	dag, err := BuildDAG(expanded)
	if err != nil {
		return nil, err
	}

	plan := &ir.Plan{
		Metadata: &ir.PlanMetadata{
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
			Workspace:   state.Workspace,
			StateSerial: state.Serial,
		},
		Summary: &ir.PlanSummary{},
		Outputs: cfg.Outputs,
	}

	d := newDiffer(expanded, state)
	actionable := make(map[string]bool)

	for _, addr := range dag.CreationOrder() {
		op := d.classify(addr)
		switch op.Kind {
		case ir.OpCreate:
			plan.Summary.Create++
		case ir.OpUpdate:
			plan.Summary.Update++
		case ir.OpNoOp:
			plan.Summary.NoOp++
			continue
		}
		op.DependsOn = dag.Dependencies(addr)
		actionable[addr] = true
		plan.Operations = append(plan.Operations, op)
	}

	// Creates and updates only wait for dependencies that themselves have
	// an operation in this plan; satisfied dependencies impose no ordering.
	for _, op := range plan.Operations {
		op.DependsOn = filterAddrs(op.DependsOn, actionable)
	}

	deletes := e.planDeletes(state, d.desired)
	for _, op := range deletes {
		plan.Summary.Delete++
		plan.Operations = append(plan.Operations, op)
	}

	// Deletes may also need to wait for surviving resources that recorded
	// a dependency on them and are being updated away from the reference.
	deleteSet := make(map[string]bool, len(deletes))
	for _, op := range deletes {
		deleteSet[op.Address] = true
	}
	recDeps := make(map[string][]string)
	for _, rec := range state.Resources {
		recDeps[rec.Addr()] = rec.Dependencies
	}
	for _, op := range deletes {
		for other, deps := range recDeps {
			if other == op.Address {
				continue
			}
			for _, dep := range deps {
				if dep != op.Address {
					continue
				}
				// other referenced op.Address; it must be deleted or
				// updated first.
				if deleteSet[other] || actionable[other] {
					op.DependsOn = append(op.DependsOn, other)
				}
			}
		}
		sort.Strings(op.DependsOn)
	}

	return plan, nil
}

// planDeletes produces delete operations for every recorded resource that
// is no longer declared, in a stable order.
func (e *Engine) planDeletes(state *ir.State, desired map[string]*ir.Resource) []*ir.Operation {
	var deletes []*ir.Operation
	for i, rec := range state.Resources {
		addr := rec.Addr()
		if _, declared := desired[addr]; declared {
			continue
		}
		deletes = append(deletes, &ir.Operation{
			Kind:      ir.OpDelete,
			Address:   addr,
			Provider:  rec.Provider,
			Old:       rec.Inputs,
			Diff:      buildDeleteDiff(rec.Inputs),
			DeclIndex: i,
		})
	}
	return deletes
}

// PlanDestroy computes a plan that deletes everything in recorded state,
// ordered so a resource is removed only after everything referencing it.
func (e *Engine) PlanDestroy(ctx context.Context, state *ir.State) (*ir.Plan, error) {
	plan := &ir.Plan{
		Metadata: &ir.PlanMetadata{
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
			Workspace:   state.Workspace,
			StateSerial: state.Serial,
		},
		Summary: &ir.PlanSummary{},
	}

	recDeps := make(map[string][]string)
	for _, rec := range state.Resources {
		recDeps[rec.Addr()] = rec.Dependencies
	}

	for i, rec := range state.Resources {
		addr := rec.Addr()
		if err := e.registry.Load(rec.Provider); err != nil {
			return nil, fmt.Errorf("failed to load provider %s: %w", rec.Provider, err)
		}
		op := &ir.Operation{
			Kind:      ir.OpDelete,
			Address:   addr,
			Provider:  rec.Provider,
			Old:       rec.Inputs,
			Diff:      buildDeleteDiff(rec.Inputs),
			DeclIndex: i,
		}
		// A resource waits for every recorded dependent.
		for other, deps := range recDeps {
			for _, dep := range deps {
				if dep == addr && other != addr {
					op.DependsOn = append(op.DependsOn, other)
				}
			}
		}
		sort.Strings(op.DependsOn)
		plan.Summary.Delete++
		plan.Operations = append(plan.Operations, op)
	}

	return plan, nil
}

func filterAddrs(addrs []string, keep map[string]bool) []string {
	var out []string
	for _, a := range addrs {
		if keep[a] {
			out = append(out, a)
		}
	}
	return out
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vmforge/vmforge/internal/ir"
	"github.com/vmforge/vmforge/internal/logging"
	"github.com/vmforge/vmforge/internal/provider"
	"github.com/vmforge/vmforge/internal/state"
)

// OperationStatus is the final outcome of one plan operation.
type OperationStatus string

const (
	StatusApplied OperationStatus = "applied"
	StatusFailed  OperationStatus = "failed"
	StatusSkipped OperationStatus = "skipped"
)

// OperationResult reports one operation's outcome.
type OperationResult struct {
	Address  string
	Kind     ir.OpKind
	Status   OperationStatus
	Reason   string // failure detail or skip cause
	Duration time.Duration
}

// RunReport is the per-run execution report.
type RunReport struct {
	RunID     string
	Workspace string
	Results   []OperationResult
	Outputs   map[string]any
}

// Failed reports whether any operation failed.
func (r *RunReport) Failed() bool {
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			return true
		}
	}
	return false
}

// ApplyEvent represents a progress event during apply.
type ApplyEvent struct {
	Address  string
	Kind     ir.OpKind
	Status   string // "started", "completed", "failed", "skipped"
	Duration time.Duration
	Error    error
}

// ApplyCallback is called for each apply event if set.
type ApplyCallback func(event ApplyEvent)

// Apply executes a plan against the providers and records every successful
// transition in the state store. Operations run on a bounded worker pool;
// an operation never starts before all of its graph predecessors have
// completed or been skipped. A failed operation marks its transitive
// dependents Skipped while independent branches continue. Cancelling the
// context stops dispatch of new operations but lets in-flight operations
// finish and persist their state.
func (e *Engine) Apply(ctx context.Context, plan *ir.Plan, store state.Store, callback ApplyCallback) (*RunReport, error) {
	report := &RunReport{
		RunID:     uuid.NewString(),
		Workspace: store.Workspace(),
	}
	emit := func(event ApplyEvent) {
		if callback != nil {
			callback(event)
		}
	}

	parallelism := e.Parallelism
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}

	deps := make(map[string][]string, len(plan.Operations))
	inPlan := make(map[string]bool, len(plan.Operations))
	for _, op := range plan.Operations {
		inPlan[op.Address] = true
	}
	for _, op := range plan.Operations {
		deps[op.Address] = filterAddrs(op.DependsOn, inPlan)
	}

	var (
		mu      sync.Mutex
		cond    = sync.NewCond(&mu)
		done    = make(map[string]OperationStatus, len(plan.Operations))
		results = make(map[string]OperationResult, len(plan.Operations))
		wg      sync.WaitGroup
		sem     = make(chan struct{}, parallelism)
	)

	finish := func(res OperationResult) {
		mu.Lock()
		done[res.Address] = res.Status
		results[res.Address] = res
		mu.Unlock()
		cond.Broadcast()
	}

	for _, op := range plan.Operations {
		wg.Add(1)
		go func(op *ir.Operation) {
			defer wg.Done()

			// Wait until every predecessor has completed or been skipped.
			mu.Lock()
			skipReason := ""
			for skipReason == "" {
				pending := false
				for _, dep := range deps[op.Address] {
					status, ok := done[dep]
					if !ok {
						pending = true
						continue
					}
					if status != StatusApplied {
						skipReason = fmt.Sprintf("dependency %s %s", dep, status)
						break
					}
				}
				if skipReason != "" || !pending {
					break
				}
				cond.Wait()
			}
			mu.Unlock()

			if skipReason != "" {
				emit(ApplyEvent{Address: op.Address, Kind: op.Kind, Status: "skipped"})
				finish(OperationResult{Address: op.Address, Kind: op.Kind, Status: StatusSkipped, Reason: skipReason})
				return
			}

			// A cancelled run stops dispatching, but anything already
			// executing is allowed to finish and commit.
			if err := ctx.Err(); err != nil {
				emit(ApplyEvent{Address: op.Address, Kind: op.Kind, Status: "skipped"})
				finish(OperationResult{Address: op.Address, Kind: op.Kind, Status: StatusSkipped, Reason: "run cancelled"})
				return
			}

			sem <- struct{}{}
			defer func() { <-sem }()

			start := time.Now()
			emit(ApplyEvent{Address: op.Address, Kind: op.Kind, Status: "started"})

			err := e.executeOperation(ctx, op, store)
			duration := time.Since(start)
			if err != nil {
				logging.Error("operation failed", "address", op.Address, "kind", string(op.Kind), "error", err)
				emit(ApplyEvent{Address: op.Address, Kind: op.Kind, Status: "failed", Duration: duration, Error: err})
				finish(OperationResult{Address: op.Address, Kind: op.Kind, Status: StatusFailed, Reason: err.Error(), Duration: duration})
				return
			}

			emit(ApplyEvent{Address: op.Address, Kind: op.Kind, Status: "completed", Duration: duration})
			finish(OperationResult{Address: op.Address, Kind: op.Kind, Status: StatusApplied, Duration: duration})
		}(op)
	}

	wg.Wait()

	var errs []error
	for _, op := range plan.Operations {
		res := results[op.Address]
		report.Results = append(report.Results, res)
		if res.Status == StatusFailed {
			errs = append(errs, fmt.Errorf("%s: %s", res.Address, res.Reason))
		}
	}

	outputs, outErr := e.resolveOutputs(ctx, plan.Outputs, store)
	if outErr != nil {
		errs = append(errs, outErr)
	} else if outputs != nil {
		if err := store.SetOutputs(ctx, outputs, sensitiveOutputNames(plan.Outputs)); err != nil {
			errs = append(errs, fmt.Errorf("failed to record outputs: %w", err))
		}
		report.Outputs = outputs
	}

	if len(errs) > 0 {
		return report, fmt.Errorf("%d operation(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return report, nil
}

// executeOperation performs one provider call with retry and commits the
// resulting state transition. State writes for an address only ever happen
// here, after the provider call succeeded.
func (e *Engine) executeOperation(ctx context.Context, op *ir.Operation, store state.Store) error {
	prov, err := e.registry.Get(op.Provider)
	if err != nil {
		return provider.NewPermanent(string(op.Kind), op.Address, err)
	}

	timeout := e.OperationTimeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	// The operation context deliberately does not inherit cancellation:
	// once dispatched, an operation runs to completion so state is never
	// recorded for a half-finished provider call.
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	switch op.Kind {
	case ir.OpCreate, ir.OpUpdate:
		attrs, err := e.resolveForApply(opCtx, op.New, store)
		if err != nil {
			return provider.NewPermanent(string(op.Kind), op.Address, err)
		}
		resolved, ok := attrs.(map[string]any)
		if !ok {
			return provider.NewPermanent(string(op.Kind), op.Address, fmt.Errorf("resolved attributes are not a map"))
		}

		req := &provider.Request{
			Kind:       op.Desired.Type,
			Name:       op.Desired.Name,
			Attributes: resolved,
		}

		if op.Kind == ir.OpUpdate {
			prior, err := store.Get(opCtx, op.Address)
			if err != nil {
				return fmt.Errorf("missing state record for %s: %w", op.Address, err)
			}
			req.ID = prior.ID
			req.Prior = prior.Outputs
		}

		var resp *provider.Response
		err = RetryWithBackoff(ctx, e.Retry, func() error {
			var callErr error
			if op.Kind == ir.OpCreate {
				resp, callErr = prov.Create(opCtx, req)
			} else {
				resp, callErr = prov.Update(opCtx, req)
			}
			return callErr
		}, provider.IsTransient)
		if err != nil {
			return err
		}

		rec := &ir.ResourceState{
			Type:         op.Desired.Type,
			Name:         op.Desired.Name,
			Provider:     op.Provider,
			ID:           resp.ID,
			Inputs:       resolved,
			Outputs:      resp.Outputs,
			Dependencies: resourceDependencies(op.Desired),
		}
		return store.Put(opCtx, op.Address, rec)

	case ir.OpDelete:
		prior, err := store.Get(opCtx, op.Address)
		if errors.Is(err, state.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		req := &provider.Request{
			Kind:  prior.Type,
			Name:  prior.Name,
			ID:    prior.ID,
			Prior: prior.Outputs,
		}
		err = RetryWithBackoff(ctx, e.Retry, func() error {
			return prov.Delete(opCtx, req)
		}, provider.IsTransient)
		if err != nil {
			return err
		}
		return store.Delete(opCtx, op.Address)

	default:
		return nil
	}
}

// resolveForApply replaces every reference with the value recorded in the
// state store. Dependency ordering guarantees the referenced records exist
// by the time an operation executes; a reference that still cannot be
// resolved is a configuration fault.
func (e *Engine) resolveForApply(ctx context.Context, v any, store state.Store) (any, error) {
	switch val := v.(type) {
	case string:
		if !IsRef(val) {
			return val, nil
		}
		addr := refToAddr(val)
		attr := refAttr(val)
		if addr == "" || attr == "" {
			return nil, fmt.Errorf("malformed reference %q", val)
		}
		rec, err := store.Get(ctx, addr)
		if err != nil {
			return nil, fmt.Errorf("reference %q: %w", val, err)
		}
		if out, ok := rec.Outputs[attr]; ok {
			return out, nil
		}
		if in, ok := rec.Inputs[attr]; ok {
			return in, nil
		}
		return nil, fmt.Errorf("reference %q: attribute %q not present on %s", val, attr, addr)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			resolved, err := e.resolveForApply(ctx, item, store)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			resolved, err := e.resolveForApply(ctx, item, store)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

// resolveOutputs evaluates declared output expressions against final state.
// Outputs referencing failed resources stay unresolved rather than failing
// the whole run; they resolve on the next successful apply.
func (e *Engine) resolveOutputs(ctx context.Context, outputs map[string]*ir.Output, store state.Store) (map[string]any, error) {
	if outputs == nil {
		return nil, nil
	}
	resolved := make(map[string]any, len(outputs))
	for name, out := range outputs {
		v, err := e.resolveForApply(ctx, normalizeValue(out.Value), store)
		if err != nil {
			logging.Warn("output not resolvable", "output", name, "error", err)
			resolved[name] = out.Value
			continue
		}
		resolved[name] = v
	}
	return resolved, nil
}

// sensitiveOutputNames returns the sorted names of outputs declared
// sensitive, for recording alongside their values.
func sensitiveOutputNames(outputs map[string]*ir.Output) []string {
	var names []string
	for name, out := range outputs {
		if out.Sensitive {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// resourceDependencies returns the addresses a resource depends on, for
// recording in state so deletes stay ordered after the declaration is gone.
func resourceDependencies(res *ir.Resource) []string {
	seen := make(map[string]bool)
	var deps []string
	for _, dep := range res.DependsOn {
		if !seen[dep] {
			seen[dep] = true
			deps = append(deps, dep)
		}
	}
	for _, ref := range extractRefs(res.Attributes) {
		if addr := refToAddr(ref); addr != "" && !seen[addr] {
			seen[addr] = true
			deps = append(deps, addr)
		}
	}
	return deps
}

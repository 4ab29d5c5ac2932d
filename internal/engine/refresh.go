package engine

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/vmforge/vmforge/internal/ir"
	"github.com/vmforge/vmforge/internal/logging"
	"github.com/vmforge/vmforge/internal/provider"
	"github.com/vmforge/vmforge/internal/state"
)

// RefreshResult describes what the refresh found for one resource.
type RefreshResult struct {
	Address string
	Gone    bool
	Changed bool
}

// Refresh reads every tracked resource back from its provider and
// reconciles the state store with what actually exists. Resources the
// provider no longer knows about are dropped from state; drifted outputs
// are recorded. Reads run concurrently, bounded by the engine parallelism.
func (e *Engine) Refresh(ctx context.Context, store state.Store) ([]RefreshResult, error) {
	snapshot, err := store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	parallelism := e.Parallelism
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}

	var (
		mu      sync.Mutex
		results []RefreshResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for _, rec := range snapshot.Resources {
		g.Go(func() error {
			prov, err := e.registry.Get(rec.Provider)
			if err != nil {
				return fmt.Errorf("%s: %w", rec.Addr(), err)
			}

			resp, err := prov.Read(gctx, &provider.Request{
				Kind:       rec.Type,
				Name:       rec.Name,
				ID:         rec.ID,
				Attributes: rec.Inputs,
				Prior:      rec.Outputs,
			})
			if err != nil {
				return fmt.Errorf("refresh %s: %w", rec.Addr(), err)
			}

			res := RefreshResult{Address: rec.Addr()}
			if resp == nil {
				logging.Info("resource no longer exists, removing from state", "address", rec.Addr())
				if err := store.Delete(gctx, rec.Addr()); err != nil {
					return err
				}
				res.Gone = true
			} else if drifted(rec, resp) {
				updated := &ir.ResourceState{
					Type:         rec.Type,
					Name:         rec.Name,
					Provider:     rec.Provider,
					ID:           resp.ID,
					Inputs:       rec.Inputs,
					Outputs:      resp.Outputs,
					Dependencies: rec.Dependencies,
				}
				if err := store.Put(gctx, rec.Addr(), updated); err != nil {
					return err
				}
				res.Changed = true
			}

			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func drifted(rec *ir.ResourceState, resp *provider.Response) bool {
	if resp.ID != rec.ID {
		return true
	}
	if len(resp.Outputs) != len(rec.Outputs) {
		return true
	}
	for k, v := range resp.Outputs {
		old, ok := rec.Outputs[k]
		if !ok || !valuesEqual(old, v) {
			return true
		}
	}
	return false
}

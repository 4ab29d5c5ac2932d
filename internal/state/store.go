package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/vmforge/vmforge/internal/ir"
)

// ErrNotFound is returned by Get when no record exists for an address.
var ErrNotFound = errors.New("resource not in state")

// UnavailableError indicates the backing persistence medium cannot be
// reached or read. It is fatal for the whole run: no plan may execute
// without a readable state baseline.
type UnavailableError struct {
	Backend string
	Err     error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("state store (%s) unavailable: %v", e.Backend, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// Store persists last-applied resource records for a single workspace.
// Mutations are atomic per resource address; store-wide consistency is
// last-writer-wins per address.
type Store interface {
	// Workspace returns the workspace this store is scoped to.
	Workspace() string

	// Snapshot returns the full recorded state.
	Snapshot(ctx context.Context) (*ir.State, error)

	// Get returns the record for a resource address, or ErrNotFound.
	Get(ctx context.Context, addr string) (*ir.ResourceState, error)

	// Put records a resource's last-applied values.
	Put(ctx context.Context, addr string, rec *ir.ResourceState) error

	// Delete removes a resource's record.
	Delete(ctx context.Context, addr string) error

	// SetOutputs records the run's final output values, the names of the
	// outputs declared sensitive, and bumps the state serial. Called once
	// at the end of a run.
	SetOutputs(ctx context.Context, outputs map[string]any, sensitive []string) error

	// Lock acquires an exclusive lock on the workspace state.
	Lock() error

	// Unlock releases the lock.
	Unlock() error
}

// Config selects and configures a backend.
type Config struct {
	Type      string // "local" (default), "s3"
	Workspace string
	Path      string            // local backend state file path
	Options   map[string]string // backend-specific settings
}

// New creates a state store from configuration.
func New(cfg *Config) (Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("state store configuration is nil")
	}
	switch cfg.Type {
	case "local", "":
		return NewLocal(cfg.Path, cfg.Workspace), nil
	case "s3":
		return newS3Store(cfg.Options, cfg.Workspace)
	default:
		return nil, fmt.Errorf("unknown state backend type: %s", cfg.Type)
	}
}

func findRecord(s *ir.State, addr string) int {
	for i, rec := range s.Resources {
		if rec.Addr() == addr {
			return i
		}
	}
	return -1
}

func upsertRecord(s *ir.State, addr string, rec *ir.ResourceState) {
	if i := findRecord(s, addr); i >= 0 {
		s.Resources[i] = rec
		return
	}
	s.Resources = append(s.Resources, rec)
}

func removeRecord(s *ir.State, addr string) bool {
	i := findRecord(s, addr)
	if i < 0 {
		return false
	}
	s.Resources = append(s.Resources[:i], s.Resources[i+1:]...)
	return true
}

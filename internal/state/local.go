package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vmforge/vmforge/internal/ir"
)

// localStore keeps workspace state in a JSON file on disk. Every mutation
// rewrites the file atomically (temp file + rename); writes are serialized
// by the store mutex so no two operations can interleave a record write.
type localStore struct {
	path      string
	workspace string

	mu  sync.Mutex
	doc *ir.State // loaded lazily
}

// NewLocal returns a file-backed store for one workspace.
func NewLocal(path, workspace string) Store {
	if workspace == "" {
		workspace = "default"
	}
	return &localStore{path: path, workspace: workspace}
}

func (s *localStore) Workspace() string {
	return s.workspace
}

func (s *localStore) load() (*ir.State, error) {
	if s.doc != nil {
		return s.doc, nil
	}

	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.doc = &ir.State{
			Version:   1,
			Serial:    0,
			Lineage:   uuid.NewString(),
			Workspace: s.workspace,
		}
		return s.doc, nil
	}
	if err != nil {
		return nil, &UnavailableError{Backend: "local", Err: err}
	}

	if IsEncrypted(raw) {
		raw, err = Decrypt(raw)
		if err != nil {
			return nil, &UnavailableError{Backend: "local", Err: err}
		}
	}

	var doc ir.State
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &UnavailableError{Backend: "local", Err: fmt.Errorf("corrupt state file %s: %w", s.path, err)}
	}
	s.doc = &doc
	return s.doc, nil
}

func (s *localStore) persist() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize state: %w", err)
	}
	data = append(data, '\n')

	data, err = Encrypt(data)
	if err != nil {
		return fmt.Errorf("failed to encrypt state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return &UnavailableError{Backend: "local", Err: err}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return &UnavailableError{Backend: "local", Err: err}
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return &UnavailableError{Backend: "local", Err: err}
	}
	return nil
}

func (s *localStore) Snapshot(ctx context.Context) (*ir.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	// Deep copy via JSON so callers cannot mutate the store's view.
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to copy state: %w", err)
	}
	var out ir.State
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to copy state: %w", err)
	}
	return &out, nil
}

func (s *localStore) Get(ctx context.Context, addr string) (*ir.ResourceState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	if i := findRecord(doc, addr); i >= 0 {
		return doc.Resources[i], nil
	}
	return nil, ErrNotFound
}

func (s *localStore) Put(ctx context.Context, addr string, rec *ir.ResourceState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	upsertRecord(doc, addr, rec)
	return s.persist()
}

func (s *localStore) Delete(ctx context.Context, addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	if !removeRecord(doc, addr) {
		return nil
	}
	return s.persist()
}

func (s *localStore) SetOutputs(ctx context.Context, outputs map[string]any, sensitive []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	doc.Outputs = outputs
	doc.SensitiveOutputs = sensitive
	doc.Serial++
	return s.persist()
}

// Lock acquires a file lock on the state to prevent concurrent runs.
// Creating the lock file with O_EXCL is the acquire itself, so two
// processes can never both succeed.
func (s *localStore) Lock() error {
	lockPath := s.lockPath()
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	if err := s.createLock(lockPath); err == nil {
		return nil
	} else if !os.IsExist(err) {
		return fmt.Errorf("failed to create lock file: %w", err)
	}

	// A lock older than 10 minutes is considered stale and taken over.
	// Removal may race with another taker; only the winner of the second
	// exclusive create holds the lock.
	if info, err := os.Stat(lockPath); err == nil && time.Since(info.ModTime()) > 10*time.Minute {
		os.Remove(lockPath)
		if err := s.createLock(lockPath); err == nil {
			return nil
		}
	}

	return fmt.Errorf("state is locked by another process (lock file: %s). "+
		"If this is an error, remove the lock file manually", lockPath)
}

func (s *localStore) createLock(lockPath string) error {
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	fmt.Fprintf(f, "pid=%d\ntime=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	return f.Close()
}

// Unlock releases the state lock.
func (s *localStore) Unlock() error {
	if err := os.Remove(s.lockPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

func (s *localStore) lockPath() string {
	return s.path + ".lock"
}

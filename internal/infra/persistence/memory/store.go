// Package memory provides an in-memory session snapshot store used for tests
// and ephemeral environments. The durable backends embed it as their read
// model.
package memory

import (
	"context"
	"sort"
	"sync"

	"skylink/pkg/domain"
	"skylink/pkg/errors"
)

var _ domain.SnapshotStore = (*Store)(nil)

// Store keeps snapshots keyed by name.
type Store struct {
	mu        sync.RWMutex
	snapshots map[string]domain.SessionSnapshot
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{snapshots: make(map[string]domain.SessionSnapshot)}
}

// Save stores a copy of the snapshot, replacing any snapshot of the same name.
func (s *Store) Save(_ context.Context, snapshot domain.SessionSnapshot) error {
	if snapshot.Name == "" {
		return errors.New("snapshot name required")
	}
	s.mu.Lock()
	s.snapshots[snapshot.Name] = snapshot.Clone()
	s.mu.Unlock()
	return nil
}

// Load returns a copy of the named snapshot.
func (s *Store) Load(_ context.Context, name string) (domain.SessionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[name]
	if !ok {
		return domain.SessionSnapshot{}, domain.NotFoundf("snapshot %s", name)
	}
	return snap.Clone(), nil
}

// List summarises stored snapshots ordered by name.
func (s *Store) List(_ context.Context) ([]domain.SnapshotInfo, error) {
	s.mu.RLock()
	out := make([]domain.SnapshotInfo, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		out = append(out, snap.Info())
	}
	s.mu.RUnlock()
	domain.SortInfos(out)
	return out, nil
}

// Delete removes the named snapshot.
func (s *Store) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.snapshots[name]; !ok {
		return domain.NotFoundf("snapshot %s", name)
	}
	delete(s.snapshots, name)
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// Names returns stored snapshot names, sorted.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.snapshots))
	for name := range s.snapshots {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Import replaces the store contents; durable backends use it to hydrate.
func (s *Store) Import(snapshots []domain.SessionSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = make(map[string]domain.SessionSnapshot, len(snapshots))
	for _, snap := range snapshots {
		s.snapshots[snap.Name] = snap.Clone()
	}
}

package memory

import (
	"context"
	"slices"
	"sync"

	audit "enrollment/pkg/platform/audit"
)

// Store is an in-memory audit.Store for tests and local runs.
type Store struct {
	mu      sync.RWMutex
	entries []audit.Entry
}

// New creates an empty in-memory audit store.
func New() *Store {
	return &Store{}
}

// Append records an entry.
func (s *Store) Append(_ context.Context, entry audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

// ListByEntity returns entries for one entity, newest first.
func (s *Store) ListByEntity(_ context.Context, entityType audit.EntityType, entityID string, limit int) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []audit.Entry
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if e.EntityType != entityType || e.EntityID != entityID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// All returns every entry in append order.
func (s *Store) All() []audit.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.entries)
}

// Snapshot captures the entry log for tx.MemoryRunner.
func (s *Store) Snapshot() func() {
	s.mu.RLock()
	n := len(s.entries)
	s.mu.RUnlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if len(s.entries) > n {
			s.entries = s.entries[:n]
		}
	}
}

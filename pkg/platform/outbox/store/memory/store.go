package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"enrollment/pkg/platform/outbox"
)

type record struct {
	entry        outbox.Entry
	seq          int
	claimedUntil time.Time
}

// Store is an in-memory outbox.Store for tests and local runs.
type Store struct {
	mu      sync.Mutex
	seq     int
	records map[uuid.UUID]*record
}

// New creates an empty in-memory outbox.
func New() *Store {
	return &Store{records: make(map[uuid.UUID]*record)}
}

// Append adds a new entry.
func (s *Store) Append(_ context.Context, entry *outbox.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.records[entry.ID] = &record{entry: *entry, seq: s.seq}
	return nil
}

// Claim leases up to limit pending entries in insertion order.
func (s *Store) Claim(_ context.Context, limit int, lease time.Duration, now time.Time) ([]*outbox.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []*record
	for _, r := range s.records {
		if !r.entry.IsPending() || r.claimedUntil.After(now) {
			continue
		}
		candidates = append(candidates, r)
	}
	slices.SortFunc(candidates, func(a, b *record) int { return a.seq - b.seq })
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]*outbox.Entry, 0, len(candidates))
	for _, r := range candidates {
		r.claimedUntil = now.Add(lease)
		r.entry.Attempts++
		e := r.entry
		out = append(out, &e)
	}
	return out, nil
}

// MarkProcessed marks an entry as delivered.
func (s *Store) MarkProcessed(_ context.Context, id uuid.UUID, processedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok || r.entry.ProcessedAt != nil {
		return fmt.Errorf("outbox entry not found or already processed: %s", id)
	}
	r.entry.ProcessedAt = &processedAt
	return nil
}

// MarkFailed records a failed delivery.
func (s *Store) MarkFailed(_ context.Context, id uuid.UUID, lastError string, retryAt time.Time, dead bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return fmt.Errorf("outbox entry not found: %s", id)
	}
	r.entry.LastError = lastError
	if dead {
		r.entry.DeadAt = &retryAt
		return nil
	}
	r.claimedUntil = retryAt
	return nil
}

// CountPending returns the number of entries awaiting delivery.
func (s *Store) CountPending(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, r := range s.records {
		if r.entry.IsPending() {
			n++
		}
	}
	return n, nil
}

// DeleteProcessedBefore removes processed entries older than before.
func (s *Store) DeleteProcessedBefore(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, r := range s.records {
		if r.entry.ProcessedAt != nil && r.entry.ProcessedAt.Before(before) {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

// Entries returns a copy of every entry in insertion order.
func (s *Store) Entries() []outbox.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs := slices.Collect(maps.Values(s.records))
	slices.SortFunc(rs, func(a, b *record) int { return a.seq - b.seq })
	out := make([]outbox.Entry, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.entry)
	}
	return out
}

// Snapshot captures the outbox for tx.MemoryRunner.
func (s *Store) Snapshot() func() {
	s.mu.Lock()
	saved := make(map[uuid.UUID]record, len(s.records))
	for id, r := range s.records {
		saved[id] = *r
	}
	seq := s.seq
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.records = make(map[uuid.UUID]*record, len(saved))
		for id, r := range saved {
			r := r
			s.records[id] = &r
		}
		s.seq = seq
	}
}

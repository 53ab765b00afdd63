package search

import (
	"context"
	"slices"
	"sync"
)

// Index is the search index contract. Put and PutBatch are version-guarded: a document
// older than the stored one is skipped, which makes replays and out-of-order deliveries
// harmless.
type Index interface {
	// Put stores doc unless a newer version is already indexed. It reports whether doc was written.
	Put(ctx context.Context, doc Document) (bool, error)
	PutBatch(ctx context.Context, docs []Document) error
	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, voterID string) error
	// Versions returns the stored version of each id that is indexed. Missing ids are absent.
	Versions(ctx context.Context, voterIDs []string) (map[string]int64, error)
	Query(ctx context.Context, q Query) (Result, error)
	// ScanIDs iterates indexed ids. A returned cursor of 0 means the scan is complete.
	ScanIDs(ctx context.Context, cursor uint64, count int) ([]string, uint64, error)
}

// MemoryIndex is an in-process Index for tests and local runs.
type MemoryIndex struct {
	mu   sync.RWMutex
	docs map[string]Document
}

// NewMemoryIndex creates an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{docs: make(map[string]Document)}
}

func (m *MemoryIndex) Put(ctx context.Context, doc Document) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.put(doc), nil
}

func (m *MemoryIndex) PutBatch(ctx context.Context, docs []Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, doc := range docs {
		m.put(doc)
	}
	return nil
}

func (m *MemoryIndex) put(doc Document) bool {
	if existing, ok := m.docs[doc.VoterID]; ok && existing.Version() > doc.Version() {
		return false
	}
	doc.References = slices.Clone(doc.References)
	m.docs[doc.VoterID] = doc
	return true
}

func (m *MemoryIndex) Delete(ctx context.Context, voterID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, voterID)
	return nil
}

func (m *MemoryIndex) Versions(ctx context.Context, voterIDs []string) (map[string]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int64, len(voterIDs))
	for _, voterID := range voterIDs {
		if doc, ok := m.docs[voterID]; ok {
			out[voterID] = doc.Version()
		}
	}
	return out, nil
}

func (m *MemoryIndex) Query(ctx context.Context, q Query) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	want := QueryTerms(q)
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for voterID, doc := range m.docs {
		have := Terms(doc)
		if containsAll(have, want) {
			ids = append(ids, voterID)
		}
	}
	slices.Sort(ids)
	res := Result{Total: len(ids), Documents: []Document{}}
	for _, voterID := range page(ids, q.Offset, q.Limit) {
		res.Documents = append(res.Documents, m.docs[voterID])
	}
	return res, nil
}

func (m *MemoryIndex) ScanIDs(ctx context.Context, cursor uint64, count int) ([]string, uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	m.mu.RLock()
	ids := make([]string, 0, len(m.docs))
	for voterID := range m.docs {
		ids = append(ids, voterID)
	}
	m.mu.RUnlock()
	slices.Sort(ids)

	start := int(cursor)
	if start >= len(ids) {
		return nil, 0, nil
	}
	end := min(start+count, len(ids))
	next := uint64(end)
	if end == len(ids) {
		next = 0
	}
	return ids[start:end], next, nil
}

// Get returns the stored document. Used by tests.
func (m *MemoryIndex) Get(voterID string) (Document, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[voterID]
	return doc, ok
}

// Len returns the number of stored documents.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

func containsAll(sorted, want []string) bool {
	for _, w := range want {
		if _, ok := slices.BinarySearch(sorted, w); !ok {
			return false
		}
	}
	return true
}

func page(ids []string, offset, limit int) []string {
	if offset >= len(ids) {
		return nil
	}
	end := len(ids)
	if limit > 0 {
		end = min(offset+limit, len(ids))
	}
	return ids[offset:end]
}

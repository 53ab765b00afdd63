// Package documents is the narrow contract the core uses to reach the object store that
// holds uploaded enrollment documents. Upload, compression and bucket layout live
// outside this service.
package documents

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"enrollment/pkg/platform/sentinel"
)

// Store is the object store contract.
type Store interface {
	Put(ctx context.Context, key string, data []byte) (string, error)
	Delete(ctx context.Context, key string) error
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// MemoryStore is an in-process Store for tests and local runs.
type MemoryStore struct {
	mu      sync.RWMutex
	baseURL string
	blobs   map[string][]byte
	now     func() time.Time
}

// NewMemoryStore creates a store whose URLs start with baseURL.
func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{baseURL: baseURL, blobs: make(map[string][]byte), now: time.Now}
}

// Put stores data under key and returns its unsigned URL.
func (s *MemoryStore) Put(_ context.Context, key string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = append([]byte(nil), data...)
	return s.baseURL + "/" + url.PathEscape(key), nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	return nil
}

// SignedURL returns a time-limited URL for key.
func (s *MemoryStore) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	s.mu.RLock()
	_, ok := s.blobs[key]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("document %q: %w", key, sentinel.ErrNotFound)
	}
	expires := s.now().Add(ttl).Unix()
	return s.baseURL + "/" + url.PathEscape(key) + "?expires=" + strconv.FormatInt(expires, 10), nil
}

// Has reports whether key is stored.
func (s *MemoryStore) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[key]
	return ok
}

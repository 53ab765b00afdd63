package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"enrollment/internal/admin/models"
	id "enrollment/pkg/domain"
	"enrollment/pkg/platform/sentinel"
	"enrollment/pkg/requestcontext"
)

// InMemoryStore keeps admins in memory for tests and local runs.
type InMemoryStore struct {
	mu     sync.RWMutex
	admins map[id.AdminID]*models.Admin
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{admins: make(map[id.AdminID]*models.Admin)}
}

func (s *InMemoryStore) Create(_ context.Context, a *models.Admin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.admins {
		if existing.Email == a.Email {
			return fmt.Errorf("insert admin: %w: email", sentinel.ErrAlreadyUsed)
		}
	}
	if _, ok := s.admins[a.ID]; ok {
		return fmt.Errorf("insert admin: %w: id", sentinel.ErrAlreadyUsed)
	}
	copied := *a
	s.admins[a.ID] = &copied
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, adminID id.AdminID) (*models.Admin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.admins[adminID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *a
	return &copied, nil
}

func (s *InMemoryStore) List(_ context.Context) ([]*models.Admin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Admin, 0, len(s.admins))
	for _, a := range s.admins {
		copied := *a
		out = append(out, &copied)
	}
	slices.SortFunc(out, func(a, b *models.Admin) int { return cmp.Compare(a.Email, b.Email) })
	return out, nil
}

func (s *InMemoryStore) SetActive(_ context.Context, a *models.Admin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.admins[a.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	existing.Active = a.Active
	existing.UpdatedAt = a.UpdatedAt
	return nil
}

func (s *InMemoryStore) ActiveRole(_ context.Context, adminID id.AdminID) (requestcontext.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.admins[adminID]
	if !ok || !a.Active {
		return "", sentinel.ErrNotFound
	}
	return a.Role, nil
}

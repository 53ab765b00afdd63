package store

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"enrollment/internal/voter/models"
	id "enrollment/pkg/domain"
	"enrollment/pkg/platform/sentinel"
)

// InMemoryStore keeps voters and references in memory for tests and local runs.
// It follows the same error contract as PostgresStore. Lock* methods do not lock;
// tx.MemoryRunner serializes units of work instead.
type InMemoryStore struct {
	mu         sync.RWMutex
	voters     map[id.VoterID]*models.Voter
	identities map[string]id.VoterID
	references map[id.ReferenceID]*models.Reference
}

// NewInMemory constructs an empty in-memory voter store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		voters:     make(map[id.VoterID]*models.Voter),
		identities: make(map[string]id.VoterID),
		references: make(map[id.ReferenceID]*models.Reference),
	}
}

func (s *InMemoryStore) CreateVoter(_ context.Context, v *models.Voter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.identities[v.IdentityNumber]; ok {
		return fmt.Errorf("insert voter: %w: identity_number", sentinel.ErrAlreadyUsed)
	}
	if _, ok := s.voters[v.ID]; ok {
		return fmt.Errorf("insert voter: %w: id", sentinel.ErrAlreadyUsed)
	}
	s.voters[v.ID] = v.Clone()
	s.identities[v.IdentityNumber] = v.ID
	return nil
}

func (s *InMemoryStore) GetVoter(_ context.Context, voterID id.VoterID) (*models.Voter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.voters[voterID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return v.Clone(), nil
}

func (s *InMemoryStore) LockVoter(ctx context.Context, voterID id.VoterID) (*models.Voter, error) {
	return s.GetVoter(ctx, voterID)
}

func (s *InMemoryStore) UpdateVoter(_ context.Context, v *models.Voter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.voters[v.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	updated := v.Clone()
	updated.IdentityNumber = existing.IdentityNumber
	updated.CreatedAt = existing.CreatedAt
	s.voters[v.ID] = updated
	return nil
}

func (s *InMemoryStore) TouchVoter(_ context.Context, voterID id.VoterID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.voters[voterID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if at.After(v.UpdatedAt) {
		v.UpdatedAt = at
	} else {
		v.UpdatedAt = v.UpdatedAt.Add(time.Microsecond)
	}
	return nil
}

func (s *InMemoryStore) DeleteVoter(_ context.Context, voterID id.VoterID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.voters[voterID]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.voters, voterID)
	delete(s.identities, v.IdentityNumber)
	for refID, ref := range s.references {
		if ref.VoterID == voterID {
			delete(s.references, refID)
		}
	}
	return nil
}

func (s *InMemoryStore) ListVoters(_ context.Context, filter models.ListVotersFilter) ([]*models.Voter, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Voter
	for _, v := range s.voters {
		if filter.VerificationStatus != nil && v.VerificationStatus != *filter.VerificationStatus {
			continue
		}
		matched = append(matched, v)
	}
	slices.SortFunc(matched, func(a, b *models.Voter) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return compareIDs(a.ID, b.ID)
	})

	total := len(matched)
	start := min(filter.Offset, total)
	end := total
	if filter.Limit > 0 {
		end = min(start+filter.Limit, total)
	}
	out := make([]*models.Voter, 0, end-start)
	for _, v := range matched[start:end] {
		out = append(out, v.Clone())
	}
	return out, total, nil
}

func (s *InMemoryStore) ListVotersAfter(_ context.Context, after id.VoterID, limit int) ([]*models.Voter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Voter
	for _, voterID := range s.sortedIDsAfter(after, limit) {
		out = append(out, s.voters[voterID].Clone())
	}
	return out, nil
}

func (s *InMemoryStore) ListVoterVersions(_ context.Context, after id.VoterID, limit int) ([]models.VoterVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.VoterVersion
	for _, voterID := range s.sortedIDsAfter(after, limit) {
		out = append(out, models.VoterVersion{ID: voterID, UpdatedAt: s.voters[voterID].UpdatedAt})
	}
	return out, nil
}

func (s *InMemoryStore) CreateReference(_ context.Context, ref *models.Reference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.voters[ref.VoterID]; !ok {
		return fmt.Errorf("insert reference: %w: voter", sentinel.ErrNotFound)
	}
	if _, ok := s.references[ref.ID]; ok {
		return fmt.Errorf("insert reference: %w: id", sentinel.ErrAlreadyUsed)
	}
	s.references[ref.ID] = ref.Clone()
	return nil
}

func (s *InMemoryStore) GetReference(_ context.Context, refID id.ReferenceID) (*models.Reference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ref, ok := s.references[refID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return ref.Clone(), nil
}

func (s *InMemoryStore) LockReference(ctx context.Context, refID id.ReferenceID) (*models.Reference, error) {
	return s.GetReference(ctx, refID)
}

func (s *InMemoryStore) UpdateReferenceStatus(_ context.Context, ref *models.Reference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.references[ref.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	existing.Status = ref.Status
	existing.StatusUpdatedAt = ref.StatusUpdatedAt
	return nil
}

func (s *InMemoryStore) MarkNotificationSent(_ context.Context, refID id.ReferenceID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.references[refID]
	if !ok {
		return sentinel.ErrNotFound
	}
	ref.NotificationSent = true
	if ref.NotificationSentAt == nil {
		sentAt := at
		ref.NotificationSentAt = &sentAt
	}
	return nil
}

func (s *InMemoryStore) RecordNotificationFailure(_ context.Context, refID id.ReferenceID, attempts int, nextAttemptAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.references[refID]
	if !ok {
		return sentinel.ErrNotFound
	}
	next := nextAttemptAt
	ref.NotifyAttempts = attempts
	ref.NextNotifyAt = &next
	return nil
}

func (s *InMemoryStore) ListReferences(_ context.Context, voterID id.VoterID) ([]*models.Reference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.referencesOf(voterID), nil
}

func (s *InMemoryStore) ListReferencesByVoters(_ context.Context, voterIDs []id.VoterID) (map[id.VoterID][]*models.Reference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[id.VoterID][]*models.Reference, len(voterIDs))
	for _, voterID := range voterIDs {
		if refs := s.referencesOf(voterID); len(refs) > 0 {
			out[voterID] = refs
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListPendingNotifications(_ context.Context, q models.PendingQuery) ([]models.PendingNotification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	type due struct {
		at time.Time
		p  models.PendingNotification
	}
	var matched []due
	for _, ref := range s.references {
		if ref.NotificationSent || ref.Status != models.ReferenceContacted || !ref.StatusUpdatedAt.Before(q.StatusBefore) {
			continue
		}
		if ref.NotifyAttempts >= q.MaxAttempts {
			continue
		}
		at := ref.StatusUpdatedAt
		if ref.NextNotifyAt != nil {
			if ref.NextNotifyAt.After(q.DueBy) {
				continue
			}
			at = *ref.NextNotifyAt
		}
		matched = append(matched, due{at: at, p: models.PendingNotification{
			ReferenceID:     ref.ID,
			VoterID:         ref.VoterID,
			Status:          ref.Status,
			StatusUpdatedAt: ref.StatusUpdatedAt,
			NotifyAttempts:  ref.NotifyAttempts,
		}})
	}
	slices.SortFunc(matched, func(a, b due) int {
		if c := a.at.Compare(b.at); c != 0 {
			return c
		}
		return bytes.Compare(a.p.ReferenceID[:], b.p.ReferenceID[:])
	})
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	out := make([]models.PendingNotification, len(matched))
	for i, m := range matched {
		out[i] = m.p
	}
	return out, nil
}

// Snapshot captures the full store state for tx.MemoryRunner.
func (s *InMemoryStore) Snapshot() func() {
	s.mu.RLock()
	voters := make(map[id.VoterID]*models.Voter, len(s.voters))
	for k, v := range s.voters {
		voters[k] = v.Clone()
	}
	identities := maps.Clone(s.identities)
	references := make(map[id.ReferenceID]*models.Reference, len(s.references))
	for k, r := range s.references {
		references[k] = r.Clone()
	}
	s.mu.RUnlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.voters = voters
		s.identities = identities
		s.references = references
	}
}

func (s *InMemoryStore) referencesOf(voterID id.VoterID) []*models.Reference {
	var out []*models.Reference
	for _, ref := range s.references {
		if ref.VoterID == voterID {
			out = append(out, ref.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.Reference) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return bytes.Compare(a.ID[:], b.ID[:])
	})
	return out
}

func (s *InMemoryStore) sortedIDsAfter(after id.VoterID, limit int) []id.VoterID {
	ids := make([]id.VoterID, 0, len(s.voters))
	for voterID := range s.voters {
		if compareIDs(voterID, after) > 0 {
			ids = append(ids, voterID)
		}
	}
	slices.SortFunc(ids, compareIDs)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids
}

// compareIDs orders ids the way Postgres orders uuid columns.
func compareIDs(a, b id.VoterID) int {
	ua, ub := uuid.UUID(a), uuid.UUID(b)
	return bytes.Compare(ua[:], ub[:])
}

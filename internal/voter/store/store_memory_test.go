package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enrollment/internal/voter/models"
	id "enrollment/pkg/domain"
	"enrollment/pkg/platform/sentinel"
)

func newVoter(identity string, at time.Time) *models.Voter {
	return &models.Voter{
		ID:                 id.NewVoterID(),
		IdentityNumber:     identity,
		FullName:           "Test Voter",
		VerificationStatus: models.VerificationUnverified,
		CreatedAt:          at,
		UpdatedAt:          at,
	}
}

func TestInMemoryStoreIdentityIsUnique(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	now := time.Now()

	require.NoError(t, s.CreateVoter(ctx, newVoter("123456789012", now)))
	err := s.CreateVoter(ctx, newVoter("123456789012", now))
	assert.True(t, errors.Is(err, sentinel.ErrAlreadyUsed))
}

func TestInMemoryStoreDeleteCascades(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	now := time.Now()
	v := newVoter("123456789012", now)
	require.NoError(t, s.CreateVoter(ctx, v))
	ref := &models.Reference{ID: id.NewReferenceID(), VoterID: v.ID, Name: "R", Contact: "9876500001", Status: models.ReferencePending, CreatedAt: now}
	require.NoError(t, s.CreateReference(ctx, ref))

	require.NoError(t, s.DeleteVoter(ctx, v.ID))

	_, err := s.GetReference(ctx, ref.ID)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	require.NoError(t, s.CreateVoter(ctx, newVoter("123456789012", now)), "identity is free again after delete")
}

func TestInMemoryStoreMarkNotificationSentKeepsFirstTimestamp(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	now := time.Now()
	v := newVoter("123456789012", now)
	require.NoError(t, s.CreateVoter(ctx, v))
	ref := &models.Reference{ID: id.NewReferenceID(), VoterID: v.ID, Status: models.ReferenceContacted, CreatedAt: now}
	require.NoError(t, s.CreateReference(ctx, ref))

	require.NoError(t, s.MarkNotificationSent(ctx, ref.ID, now))
	require.NoError(t, s.MarkNotificationSent(ctx, ref.ID, now.Add(time.Hour)))

	got, err := s.GetReference(ctx, ref.ID)
	require.NoError(t, err)
	assert.True(t, got.NotificationSent)
	assert.True(t, got.NotificationSentAt.Equal(now))
}

func TestInMemoryStoreSnapshotRestores(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	now := time.Now()
	v := newVoter("123456789012", now)
	require.NoError(t, s.CreateVoter(ctx, v))

	restore := s.Snapshot()
	v.FullName = "Changed"
	require.NoError(t, s.UpdateVoter(ctx, v))
	require.NoError(t, s.CreateVoter(ctx, newVoter("999999999999", now)))
	restore()

	got, err := s.GetVoter(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "Test Voter", got.FullName)
	_, total, err := s.ListVoters(ctx, models.ListVotersFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestInMemoryStoreVersionsPageInIDOrder(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	now := time.Now()
	for _, identity := range []string{"100000000001", "100000000002", "100000000003"} {
		require.NoError(t, s.CreateVoter(ctx, newVoter(identity, now)))
	}

	first, err := s.ListVoterVersions(ctx, id.VoterID{}, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	rest, err := s.ListVoterVersions(ctx, first[1].ID, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Negative(t, compareIDs(first[1].ID, rest[0].ID))
}

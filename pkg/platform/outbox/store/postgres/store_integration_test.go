//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"enrollment/pkg/platform/outbox"
	"enrollment/pkg/platform/outbox/store/postgres"
	"enrollment/pkg/testutil/containers"
)

type OutboxStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
	ctx      context.Context
	now      time.Time
}

func TestOutboxStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(OutboxStoreSuite))
}

func (s *OutboxStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = postgres.New(s.postgres.DB)
	s.ctx = context.Background()
}

func (s *OutboxStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateAll(s.ctx))
	s.now = time.Now().UTC().Truncate(time.Microsecond)
}

func (s *OutboxStoreSuite) seed(n int) []*outbox.Entry {
	entries := make([]*outbox.Entry, n)
	for i := range entries {
		payload := fmt.Appendf(nil, `{"voter_id":"voter-%d"}`, i)
		entries[i] = outbox.NewEntry("voter", fmt.Sprintf("voter-%d", i), "voter.projection", payload,
			s.now.Add(time.Duration(i)*time.Millisecond))
		s.Require().NoError(s.store.Append(s.ctx, entries[i]))
	}
	return entries
}

func (s *OutboxStoreSuite) TestClaimLeasesInInsertOrder() {
	entries := s.seed(3)

	claimed, err := s.store.Claim(s.ctx, 2, time.Minute, s.now)
	s.Require().NoError(err)
	s.Require().Len(claimed, 2)
	s.Equal(entries[0].ID, claimed[0].ID)
	s.Equal(entries[1].ID, claimed[1].ID)
	s.Equal(1, claimed[0].Attempts)
	s.JSONEq(string(entries[0].Payload), string(claimed[0].Payload))

	// Leased entries are skipped until the lease runs out.
	rest, err := s.store.Claim(s.ctx, 10, time.Minute, s.now)
	s.Require().NoError(err)
	s.Require().Len(rest, 1)
	s.Equal(entries[2].ID, rest[0].ID)

	expired, err := s.store.Claim(s.ctx, 10, time.Minute, s.now.Add(2*time.Minute))
	s.Require().NoError(err)
	s.Len(expired, 3)
	s.Equal(2, expired[0].Attempts)
}

func (s *OutboxStoreSuite) TestConcurrentClaimersNeverShareEntries() {
	s.seed(20)

	const workers = 5
	var (
		mu   sync.Mutex
		seen = map[uuid.UUID]int{}
		wg   sync.WaitGroup
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := s.store.Claim(s.ctx, 4, time.Minute, s.now)
			if !s.NoError(err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			for _, e := range claimed {
				seen[e.ID]++
			}
		}()
	}
	wg.Wait()

	for entryID, n := range seen {
		s.Equal(1, n, "entry %s claimed more than once", entryID)
	}

	leftover, err := s.store.Claim(s.ctx, 20, time.Minute, s.now)
	s.Require().NoError(err)
	for _, e := range leftover {
		s.NotContains(seen, e.ID)
	}
	s.Equal(20, len(seen)+len(leftover))
}

func (s *OutboxStoreSuite) TestMarkFailedSchedulesRetry() {
	entries := s.seed(1)
	_, err := s.store.Claim(s.ctx, 1, time.Minute, s.now)
	s.Require().NoError(err)

	retryAt := s.now.Add(5 * time.Minute)
	s.Require().NoError(s.store.MarkFailed(s.ctx, entries[0].ID, "broker unavailable", retryAt, false))

	early, err := s.store.Claim(s.ctx, 1, time.Minute, s.now.Add(2*time.Minute))
	s.Require().NoError(err)
	s.Empty(early)

	due, err := s.store.Claim(s.ctx, 1, time.Minute, retryAt.Add(time.Second))
	s.Require().NoError(err)
	s.Require().Len(due, 1)
	s.Equal("broker unavailable", due[0].LastError)
	s.Equal(2, due[0].Attempts)
}

func (s *OutboxStoreSuite) TestDeadEntriesLeaveThePendingSet() {
	entries := s.seed(2)
	s.Require().NoError(s.store.MarkFailed(s.ctx, entries[0].ID, "poison payload", s.now, true))

	pending, err := s.store.CountPending(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), pending)

	claimed, err := s.store.Claim(s.ctx, 10, time.Minute, s.now.Add(time.Hour))
	s.Require().NoError(err)
	s.Require().Len(claimed, 1)
	s.Equal(entries[1].ID, claimed[0].ID)
}

func (s *OutboxStoreSuite) TestMarkProcessedOnce() {
	entries := s.seed(1)
	s.Require().NoError(s.store.MarkProcessed(s.ctx, entries[0].ID, s.now))
	s.Error(s.store.MarkProcessed(s.ctx, entries[0].ID, s.now))

	pending, err := s.store.CountPending(s.ctx)
	s.Require().NoError(err)
	s.Zero(pending)
}

func (s *OutboxStoreSuite) TestDeleteProcessedBefore() {
	entries := s.seed(3)
	s.Require().NoError(s.store.MarkProcessed(s.ctx, entries[0].ID, s.now.Add(-48*time.Hour)))
	s.Require().NoError(s.store.MarkProcessed(s.ctx, entries[1].ID, s.now))

	deleted, err := s.store.DeleteProcessedBefore(s.ctx, s.now.Add(-24*time.Hour))
	s.Require().NoError(err)
	s.Equal(int64(1), deleted)

	var remaining int
	s.Require().NoError(s.postgres.QueryRow(s.ctx, `SELECT count(*) FROM outbox`).Scan(&remaining))
	s.Equal(2, remaining)
}

package reconcile_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"enrollment/internal/reconcile"
	"enrollment/internal/search"
	"enrollment/internal/voter/models"
	"enrollment/internal/voter/store"
	id "enrollment/pkg/domain"
	dErrors "enrollment/pkg/domain-errors"
)

type SweeperSuite struct {
	suite.Suite
	ctx       context.Context
	store     *store.InMemoryStore
	index     *search.MemoryIndex
	projector *search.Projector
	now       time.Time
}

func TestSweeperSuite(t *testing.T) {
	suite.Run(t, new(SweeperSuite))
}

func (s *SweeperSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = store.NewInMemory()
	s.index = search.NewMemoryIndex()
	s.projector = search.NewProjector(s.index, s.store)
	s.now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
}

func (s *SweeperSuite) seedVoter(n int) *models.Voter {
	v := &models.Voter{
		ID:                 id.NewVoterID(),
		IdentityNumber:     fmt.Sprintf("2000000%05d", n),
		FullName:           fmt.Sprintf("Voter %d", n),
		VerificationStatus: models.VerificationUnverified,
		CreatedAt:          s.now,
		UpdatedAt:          s.now,
	}
	s.Require().NoError(s.store.CreateVoter(s.ctx, v))
	return v
}

func (s *SweeperSuite) TestIndexTimeoutThenSweepRepairs() {
	v := s.seedVoter(1)

	// the synchronous projection after create times out
	slow := search.NewProjector(stalledIndex{s.index}, s.store, search.WithTimeout(5*time.Millisecond))
	err := slow.Index(s.ctx, v, nil)
	s.Require().True(dErrors.HasCode(err, dErrors.CodeIndexUnavailable))
	_, ok := s.index.Get(v.ID.String())
	s.Require().False(ok)

	stats, err := reconcile.NewSweeper(s.store, s.projector).Run(s.ctx)
	s.Require().NoError(err)
	s.Equal(reconcile.Stats{Scanned: 1, Missing: 1, Repaired: 1}, stats)

	res, err := s.projector.Search(s.ctx, search.Query{IdentityNumber: v.IdentityNumber})
	s.Require().NoError(err)
	s.Equal(1, res.Total)
}

func (s *SweeperSuite) TestStaleDocumentIsRefreshed() {
	v := s.seedVoter(1)
	s.Require().NoError(s.projector.Index(s.ctx, v, nil))

	updated := v.Clone()
	updated.FullName = "Asha Kumari"
	updated.UpdatedAt = s.now.Add(time.Minute)
	s.Require().NoError(s.store.UpdateVoter(s.ctx, updated))

	stats, err := reconcile.NewSweeper(s.store, s.projector).Run(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, stats.Stale)
	s.Equal(1, stats.Repaired)

	doc, _ := s.index.Get(v.ID.String())
	s.Equal("Asha Kumari", doc.FullName)
}

func (s *SweeperSuite) TestConsistentIndexNeedsNoRepair() {
	for n := range 7 {
		v := s.seedVoter(n)
		s.Require().NoError(s.projector.Index(s.ctx, v, nil))
	}

	stats, err := reconcile.NewSweeper(s.store, s.projector, reconcile.WithBatchSize(3)).Run(s.ctx)
	s.Require().NoError(err)
	s.Equal(reconcile.Stats{Scanned: 7}, stats)
}

func (s *SweeperSuite) TestDocumentOfDeletedVoterIsPruned() {
	kept := s.seedVoter(1)
	s.Require().NoError(s.projector.Index(s.ctx, kept, nil))
	deleted := s.seedVoter(2)
	s.Require().NoError(s.store.DeleteVoter(s.ctx, deleted.ID))

	// a refresh elsewhere read the voter before the delete and wrote after it
	s.Require().NoError(s.projector.Index(s.ctx, deleted, nil))
	s.Require().Equal(2, s.index.Len())

	stats, err := reconcile.NewSweeper(s.store, s.projector, reconcile.WithBatchSize(1)).Run(s.ctx)
	s.Require().NoError(err)
	s.Equal(reconcile.Stats{Scanned: 1, Orphans: 1}, stats)

	_, ok := s.index.Get(deleted.ID.String())
	s.False(ok)
	_, ok = s.index.Get(kept.ID.String())
	s.True(ok)
}

func (s *SweeperSuite) TestPagesAcrossBatches() {
	for n := range 7 {
		s.seedVoter(n)
	}
	stats, err := reconcile.NewSweeper(s.store, s.projector, reconcile.WithBatchSize(3), reconcile.WithConcurrency(2)).Run(s.ctx)
	s.Require().NoError(err)
	s.Equal(7, stats.Missing)
	s.Equal(7, stats.Repaired)
	s.Equal(7, s.index.Len())
}

func (s *SweeperSuite) TestSingleFlightInProcess() {
	s.seedVoter(1)
	gate := &gatedSource{Source: s.store, entered: make(chan struct{}), release: make(chan struct{})}
	sweeper := reconcile.NewSweeper(gate, s.projector)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := sweeper.Run(s.ctx)
		s.NoError(err)
	}()
	<-gate.entered

	_, err := sweeper.Run(s.ctx)
	s.ErrorIs(err, reconcile.ErrSweepInProgress)

	close(gate.release)
	wg.Wait()
}

func (s *SweeperSuite) TestLockHeldElsewhereSkips() {
	s.seedVoter(1)
	sweeper := reconcile.NewSweeper(s.store, s.projector, reconcile.WithLocker(heldLocker{}, "", 0))
	_, err := sweeper.Run(s.ctx)
	s.ErrorIs(err, reconcile.ErrSweepInProgress)
	s.Equal(0, s.index.Len())
}

func (s *SweeperSuite) TestIndexOutageAbortsRun() {
	s.seedVoter(1)
	down := search.NewProjector(stalledIndex{s.index}, s.store, search.WithTimeout(5*time.Millisecond))
	_, err := reconcile.NewSweeper(s.store, down).Run(s.ctx)
	s.Error(err)
}

// stalledIndex never answers before the caller's deadline.
type stalledIndex struct {
	*search.MemoryIndex
}

func (i stalledIndex) Put(ctx context.Context, _ search.Document) (bool, error) {
	<-ctx.Done()
	return false, ctx.Err()
}

func (i stalledIndex) Versions(ctx context.Context, _ []string) (map[string]int64, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type gatedSource struct {
	reconcile.Source
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedSource) ListVoterVersions(ctx context.Context, after id.VoterID, limit int) ([]models.VoterVersion, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return g.Source.ListVoterVersions(ctx, after, limit)
}

type heldLocker struct{}

func (heldLocker) TryLock(context.Context, string, time.Duration) (func(context.Context) error, bool, error) {
	return nil, false, nil
}

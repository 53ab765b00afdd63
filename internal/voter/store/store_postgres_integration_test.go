//go:build integration

package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"enrollment/internal/platform/database"
	"enrollment/internal/voter/models"
	"enrollment/internal/voter/service"
	"enrollment/internal/voter/store"
	id "enrollment/pkg/domain"
	dErrors "enrollment/pkg/domain-errors"
	audit "enrollment/pkg/platform/audit"
	auditpostgres "enrollment/pkg/platform/audit/store/postgres"
	outboxpostgres "enrollment/pkg/platform/outbox/store/postgres"
	"enrollment/pkg/platform/sentinel"
	"enrollment/pkg/requestcontext"
	"enrollment/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	ctx      context.Context
	now      time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.ctx = context.Background()
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateAll(s.ctx))
	s.now = time.Now().UTC().Truncate(time.Microsecond)
}

func (s *PostgresStoreSuite) voter(identity string) *models.Voter {
	return &models.Voter{
		ID:             id.NewVoterID(),
		IdentityNumber: identity,
		FullName:       "Asha Devi",
		Demographics: models.Demographics{
			DateOfBirth: "1990-04-12",
			Gender:      "female",
			Mobile:      "+919876543210",
		},
		Address: models.Address{
			Line1:    "12 Lake Road",
			City:     "Pune",
			District: "Pune",
			State:    "Maharashtra",
			PinCode:  "411001",
		},
		IsRegisteredElector: true,
		Elector: &models.Elector{
			EpicNumber:           "ABC1234567",
			AssemblyConstituency: "Kasba Peth",
			PollingStation:       "PS 14",
		},
		Education:          models.Education{Qualification: "BSc", YearOfPassing: 2011},
		Documents:          []models.Document{{Kind: "photo", Key: "voters/asha/photo.jpg"}},
		VerificationStatus: models.VerificationUnverified,
		CreatedAt:          s.now,
		UpdatedAt:          s.now,
	}
}

func (s *PostgresStoreSuite) reference(voterID id.VoterID, status models.ReferenceStatus, statusAt time.Time) *models.Reference {
	return &models.Reference{
		ID:              id.NewReferenceID(),
		VoterID:         voterID,
		Name:            "Ravi",
		Contact:         "9123456780",
		Status:          status,
		StatusUpdatedAt: statusAt,
		CreatedAt:       s.now,
	}
}

func (s *PostgresStoreSuite) seedVoter(identity string) *models.Voter {
	v := s.voter(identity)
	s.Require().NoError(s.store.CreateVoter(s.ctx, v))
	return v
}

func (s *PostgresStoreSuite) TestCreateAndGetRoundTripsJSONColumns() {
	v := s.seedVoter("900000000001")

	got, err := s.store.GetVoter(s.ctx, v.ID)
	s.Require().NoError(err)
	s.Equal(v.IdentityNumber, got.IdentityNumber)
	s.Equal(v.Demographics, got.Demographics)
	s.Equal(v.Address, got.Address)
	s.Require().NotNil(got.Elector)
	s.Equal(*v.Elector, *got.Elector)
	s.Equal(v.Education, got.Education)
	s.Equal(v.Documents, got.Documents)
	s.Equal(models.VerificationUnverified, got.VerificationStatus)
	s.Nil(got.VerifiedBy)
	s.Nil(got.VerifiedAt)
	s.True(v.UpdatedAt.Equal(got.UpdatedAt))
}

func (s *PostgresStoreSuite) TestDuplicateIdentityNumber() {
	s.seedVoter("900000000001")

	err := s.store.CreateVoter(s.ctx, s.voter("900000000001"))
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)
}

func (s *PostgresStoreSuite) TestGetMissingVoter() {
	_, err := s.store.GetVoter(s.ctx, id.NewVoterID())
	s.ErrorIs(err, sentinel.ErrNotFound)

	err = s.store.DeleteVoter(s.ctx, id.NewVoterID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestReferenceForMissingVoter() {
	err := s.store.CreateReference(s.ctx, s.reference(id.NewVoterID(), models.ReferencePending, s.now))
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestDeleteVoterCascadesReferences() {
	v := s.seedVoter("900000000001")
	ref := s.reference(v.ID, models.ReferencePending, s.now)
	s.Require().NoError(s.store.CreateReference(s.ctx, ref))

	s.Require().NoError(s.store.DeleteVoter(s.ctx, v.ID))

	_, err := s.store.GetReference(s.ctx, ref.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	refs, err := s.store.ListReferences(s.ctx, v.ID)
	s.Require().NoError(err)
	s.Empty(refs)
}

func (s *PostgresStoreSuite) TestTouchVoterAlwaysMovesForward() {
	v := s.seedVoter("900000000001")

	// A clock behind the stored value still produces a newer version.
	s.Require().NoError(s.store.TouchVoter(s.ctx, v.ID, s.now.Add(-time.Hour)))
	got, err := s.store.GetVoter(s.ctx, v.ID)
	s.Require().NoError(err)
	s.True(got.UpdatedAt.After(v.UpdatedAt))

	later := s.now.Add(time.Minute)
	s.Require().NoError(s.store.TouchVoter(s.ctx, v.ID, later))
	got, err = s.store.GetVoter(s.ctx, v.ID)
	s.Require().NoError(err)
	s.True(later.Equal(got.UpdatedAt))

	s.ErrorIs(s.store.TouchVoter(s.ctx, id.NewVoterID(), later), sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestListReferencesByVoters() {
	a := s.seedVoter("900000000001")
	b := s.seedVoter("900000000002")
	c := s.seedVoter("900000000003")
	for _, v := range []*models.Voter{a, a, b} {
		s.Require().NoError(s.store.CreateReference(s.ctx, s.reference(v.ID, models.ReferencePending, s.now)))
	}

	grouped, err := s.store.ListReferencesByVoters(s.ctx, []id.VoterID{a.ID, b.ID, c.ID})
	s.Require().NoError(err)
	s.Len(grouped[a.ID], 2)
	s.Len(grouped[b.ID], 1)
	s.Empty(grouped[c.ID])

	empty, err := s.store.ListReferencesByVoters(s.ctx, nil)
	s.Require().NoError(err)
	s.Empty(empty)
}

func (s *PostgresStoreSuite) TestMarkNotificationSentKeepsFirstTimestamp() {
	v := s.seedVoter("900000000001")
	ref := s.reference(v.ID, models.ReferenceContacted, s.now)
	s.Require().NoError(s.store.CreateReference(s.ctx, ref))

	s.Require().NoError(s.store.MarkNotificationSent(s.ctx, ref.ID, s.now))
	s.Require().NoError(s.store.MarkNotificationSent(s.ctx, ref.ID, s.now.Add(time.Hour)))

	got, err := s.store.GetReference(s.ctx, ref.ID)
	s.Require().NoError(err)
	s.True(got.NotificationSent)
	s.Require().NotNil(got.NotificationSentAt)
	s.True(s.now.Equal(*got.NotificationSentAt))
}

func (s *PostgresStoreSuite) TestPendingNotificationsHonourBackoffAndCap() {
	v := s.seedVoter("900000000001")
	contactedAt := s.now.Add(-time.Hour)

	due := s.reference(v.ID, models.ReferenceContacted, contactedAt)
	backedOff := s.reference(v.ID, models.ReferenceContacted, contactedAt.Add(-time.Minute))
	exhausted := s.reference(v.ID, models.ReferenceContacted, contactedAt.Add(-2*time.Minute))
	fresh := s.reference(v.ID, models.ReferenceContacted, s.now)
	sent := s.reference(v.ID, models.ReferenceContacted, contactedAt)
	pending := s.reference(v.ID, models.ReferencePending, contactedAt)
	for _, ref := range []*models.Reference{due, backedOff, exhausted, fresh, sent, pending} {
		s.Require().NoError(s.store.CreateReference(s.ctx, ref))
	}
	s.Require().NoError(s.store.MarkNotificationSent(s.ctx, sent.ID, s.now))
	s.Require().NoError(s.store.RecordNotificationFailure(s.ctx, backedOff.ID, 1, s.now.Add(10*time.Minute)))
	s.Require().NoError(s.store.RecordNotificationFailure(s.ctx, exhausted.ID, 3, s.now.Add(-time.Minute)))

	q := models.PendingQuery{
		StatusBefore: s.now.Add(-time.Minute),
		DueBy:        s.now,
		MaxAttempts:  3,
		Limit:        10,
	}
	got, err := s.store.ListPendingNotifications(s.ctx, q)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(due.ID, got[0].ReferenceID)
	s.Equal(v.ID, got[0].VoterID)
	s.Equal(0, got[0].NotifyAttempts)

	// Once the backoff has elapsed the retried reference comes back, ordered by due time.
	q.DueBy = s.now.Add(11 * time.Minute)
	got, err = s.store.ListPendingNotifications(s.ctx, q)
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal(due.ID, got[0].ReferenceID)
	s.Equal(backedOff.ID, got[1].ReferenceID)
	s.Equal(1, got[1].NotifyAttempts)

	ref, err := s.store.GetReference(s.ctx, backedOff.ID)
	s.Require().NoError(err)
	s.Equal(1, ref.NotifyAttempts)
	s.Require().NotNil(ref.NextNotifyAt)
	s.True(s.now.Add(10 * time.Minute).Equal(*ref.NextNotifyAt))
}

func (s *PostgresStoreSuite) TestLockReferenceBlocksSecondWriter() {
	v := s.seedVoter("900000000001")
	ref := s.reference(v.ID, models.ReferencePending, s.now)
	s.Require().NoError(s.store.CreateReference(s.ctx, ref))

	holder := database.NewPostgresTx(s.postgres.DB, 5*time.Second, 0)
	waiter := database.NewPostgresTx(s.postgres.DB, 5*time.Second, 100*time.Millisecond)

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- holder.RunInTx(s.ctx, func(ctx context.Context) error {
			if _, err := s.store.LockReference(ctx, ref.ID); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	err := waiter.RunInTx(s.ctx, func(ctx context.Context) error {
		_, err := s.store.LockReference(ctx, ref.ID)
		return err
	})
	s.ErrorIs(err, sentinel.ErrConflict)

	close(release)
	s.Require().NoError(<-done)
}

func (s *PostgresStoreSuite) TestConcurrentStatusChangesSerialize() {
	v := s.seedVoter("900000000001")
	ref := s.reference(v.ID, models.ReferencePending, s.now)
	s.Require().NoError(s.store.CreateReference(s.ctx, ref))

	svc := service.New(s.store,
		database.NewPostgresTx(s.postgres.DB, 5*time.Second, 2*time.Second),
		audit.NewWriter(auditpostgres.New(s.postgres.DB), nil),
		outboxpostgres.New(s.postgres.DB),
	)
	ctx := requestcontext.WithActor(s.ctx, requestcontext.Actor{ID: id.NewAdminID().String(), Role: requestcontext.RoleAdmin})

	const writers = 4
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.SetReferenceStatus(ctx, ref.ID, &models.SetReferenceStatusRequest{Status: models.ReferenceContacted})
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition) || dErrors.HasCode(err, dErrors.CodeStorageConflict),
			"unexpected error: %v", err)
	}
	s.Equal(1, succeeded)

	var notices, changes int
	s.Require().NoError(s.postgres.QueryRow(s.ctx,
		`SELECT count(*) FROM outbox WHERE event_type = $1 AND aggregate_id = $2`,
		models.EventReferenceContacted, ref.ID.String()).Scan(&notices))
	s.Require().NoError(s.postgres.QueryRow(s.ctx,
		`SELECT count(*) FROM audit_log WHERE action = $1 AND entity_id = $2`,
		string(audit.ActionReferenceStatusChanged), ref.ID.String()).Scan(&changes))
	s.Equal(1, notices)
	s.Equal(1, changes)

	got, err := s.store.GetReference(s.ctx, ref.ID)
	s.Require().NoError(err)
	s.Equal(models.ReferenceContacted, got.Status)
}

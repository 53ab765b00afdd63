package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"enrollment/internal/search"
	"enrollment/internal/voter/models"
	"enrollment/internal/voter/service"
	"enrollment/internal/voter/store"
	id "enrollment/pkg/domain"
	dErrors "enrollment/pkg/domain-errors"
	audit "enrollment/pkg/platform/audit"
	auditmemory "enrollment/pkg/platform/audit/store/memory"
	"enrollment/pkg/platform/outbox"
	outboxmemory "enrollment/pkg/platform/outbox/store/memory"
	txcontext "enrollment/pkg/platform/tx"
	"enrollment/pkg/requestcontext"
	"enrollment/pkg/testutil"
)

type ServiceSuite struct {
	suite.Suite
	store   *store.InMemoryStore
	audits  *auditmemory.Store
	outbox  *outboxmemory.Store
	index   *search.MemoryIndex
	runner  *txcontext.MemoryRunner
	service *service.Service
	now     time.Time
	admin   requestcontext.Actor
	seeded  int
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.store = store.NewInMemory()
	s.audits = auditmemory.New()
	s.outbox = outboxmemory.New()
	s.index = search.NewMemoryIndex()
	s.runner = txcontext.NewMemoryRunner(s.store, s.audits, s.outbox)
	s.service = service.New(s.store, s.runner, audit.NewWriter(s.audits, nil), s.outbox,
		service.WithProjector(search.NewProjector(s.index, s.store)),
	)
	s.admin = requestcontext.Actor{ID: id.NewAdminID().String(), Role: requestcontext.RoleAdmin}
}

func (s *ServiceSuite) as(actor requestcontext.Actor) context.Context {
	ctx := requestcontext.WithTime(context.Background(), s.now)
	return requestcontext.WithActor(ctx, actor)
}

func (s *ServiceSuite) adminCtx() context.Context {
	return s.as(s.admin)
}

func (s *ServiceSuite) form(identity string) *models.CreateVoterRequest {
	return &models.CreateVoterRequest{
		IdentityNumber: identity,
		FullName:       "Asha Devi",
		Demographics: models.Demographics{
			DateOfBirth: "1990-04-12",
			Gender:      "female",
			Mobile:      "+91 98765 43210",
		},
		Address: models.Address{
			Line1:    "12 Lake Road",
			City:     "Pune",
			District: "Pune",
			State:    "Maharashtra",
			PinCode:  "411001",
		},
		Education:  models.Education{Qualification: "BSc"},
		References: []models.ReferenceInput{{Name: "Ravi", Contact: "9123456780"}},
	}
}

func (s *ServiceSuite) create() *models.VoterDetail {
	s.seeded++
	detail, err := s.service.CreateVoter(s.as(requestcontext.ActorPublic), s.form(fmt.Sprintf("9000000%05d", s.seeded)))
	s.Require().NoError(err)
	return detail
}

func (s *ServiceSuite) events(eventType string) []outbox.Entry {
	var out []outbox.Entry
	for _, e := range s.outbox.Entries() {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (s *ServiceSuite) actions(entityType audit.EntityType, entityID string) []audit.Action {
	entries, err := s.audits.ListByEntity(context.Background(), entityType, entityID, 50)
	s.Require().NoError(err)
	out := make([]audit.Action, len(entries))
	for i, e := range entries {
		out[i] = e.Action
	}
	return out
}

func (s *ServiceSuite) TestCreateVoterWritesAuditProjectionAndIndex() {
	detail := s.create()

	s.Equal(models.VerificationUnverified, detail.VerificationStatus)
	s.Require().Len(detail.References, 1)
	s.Equal(models.ReferencePending, detail.References[0].Status)
	s.Equal([]audit.Action{audit.ActionVoterCreated}, s.actions(audit.EntityVoter, detail.ID.String()))
	s.Equal([]audit.Action{audit.ActionReferenceCreated}, s.actions(audit.EntityReference, detail.References[0].ID.String()))
	s.Len(s.events(models.EventVoterProjection), 1)

	doc, ok := s.index.Get(detail.ID.String())
	s.Require().True(ok, "fresh intake is indexed right after commit")
	s.Equal("Asha Devi", doc.FullName)

	entries := s.audits.All()
	s.Equal(requestcontext.ActorPublic.ID, entries[0].ActorID)
}

func (s *ServiceSuite) TestDuplicateIdentityLeavesNoPartialState() {
	first := s.create()
	auditsBefore := len(s.audits.All())
	outboxBefore := len(s.outbox.Entries())

	_, err := s.service.CreateVoter(s.adminCtx(), s.form(first.IdentityNumber))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeDuplicateIdentity))

	s.Len(s.audits.All(), auditsBefore)
	s.Len(s.outbox.Entries(), outboxBefore)
	page, err := s.service.ListVoters(s.adminCtx(), models.ListVotersFilter{})
	s.Require().NoError(err)
	s.Equal(1, page.Total)
}

func (s *ServiceSuite) TestConcurrentDuplicateSubmissionsCreateOneVoter() {
	res := testutil.RunConcurrent(10, func(int) error {
		_, err := s.service.CreateVoter(s.as(requestcontext.ActorPublic), s.form("900000099999"))
		return err
	})

	s.Equal(1, res.Successes)
	s.Equal(9, res.Codes[dErrors.CodeDuplicateIdentity])
	s.Empty(res.Other)
	page, err := s.service.ListVoters(s.adminCtx(), models.ListVotersFilter{})
	s.Require().NoError(err)
	s.Equal(1, page.Total)
	s.Len(s.outbox.Entries(), 1)
}

func (s *ServiceSuite) TestCreateRequiresActor() {
	_, err := s.service.CreateVoter(context.Background(), s.form("900000000001"))
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *ServiceSuite) TestCreateReportsFieldErrors() {
	form := s.form("123")
	form.Address.PinCode = ""
	_, err := s.service.CreateVoter(s.adminCtx(), form)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	var fields []string
	for _, f := range dErrors.FieldsOf(err) {
		fields = append(fields, f.Field)
	}
	s.Contains(fields, "identity_number")
	s.Contains(fields, "address.pin_code")
	s.Empty(s.audits.All())
}

func (s *ServiceSuite) TestUpdateKeepsIdentityAndAdvancesVersion() {
	detail := s.create()

	name := "Asha Rao"
	updated, err := s.service.UpdateVoter(s.adminCtx(), detail.ID, &models.UpdateVoterRequest{FullName: &name})
	s.Require().NoError(err)
	s.Equal("Asha Rao", updated.FullName)
	s.True(updated.UpdatedAt.After(detail.UpdatedAt), "same clock still yields a newer version")

	other := "111122223333"
	_, err = s.service.UpdateVoter(s.adminCtx(), detail.ID, &models.UpdateVoterRequest{IdentityNumber: &other})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.service.UpdateVoter(s.as(requestcontext.ActorPublic), detail.ID, &models.UpdateVoterRequest{FullName: &name})
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	_, err = s.service.UpdateVoter(s.adminCtx(), id.NewVoterID(), &models.UpdateVoterRequest{FullName: &name})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestVerificationNoOpIsAudited() {
	detail := s.create()
	yes, no := true, false

	voter, err := s.service.SetVerification(s.adminCtx(), detail.ID, &models.SetVerificationRequest{Verified: &yes})
	s.Require().NoError(err)
	s.Equal(models.VerificationVerified, voter.VerificationStatus)
	s.Require().NotNil(voter.VerifiedBy)
	s.Equal(s.admin.ID, voter.VerifiedBy.String())
	s.Require().NotNil(voter.VerifiedAt)

	_, err = s.service.SetVerification(s.adminCtx(), detail.ID, &models.SetVerificationRequest{Verified: &yes})
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadyInState))

	stored, err := s.store.GetVoter(context.Background(), detail.ID)
	s.Require().NoError(err)
	s.Equal(*voter.VerifiedAt, *stored.VerifiedAt, "no-op leaves timestamps alone")

	voter, err = s.service.SetVerification(s.adminCtx(), detail.ID, &models.SetVerificationRequest{Verified: &no})
	s.Require().NoError(err)
	s.Nil(voter.VerifiedBy)
	s.Nil(voter.VerifiedAt)

	s.Equal([]audit.Action{
		audit.ActionVoterUnverified,
		audit.ActionVoterVerificationNoop,
		audit.ActionVoterVerified,
		audit.ActionVoterCreated,
	}, s.actions(audit.EntityVoter, detail.ID.String()))
}

// unavailableAuditStore rejects every append.
type unavailableAuditStore struct {
	*auditmemory.Store
}

func (unavailableAuditStore) Append(context.Context, audit.Entry) error {
	return errors.New("audit log unavailable")
}

func (s *ServiceSuite) TestAuditFailureRollsBackMutation() {
	detail := s.create()
	refID := detail.References[0].ID
	auditsBefore := len(s.audits.All())
	outboxBefore := len(s.outbox.Entries())

	broken := service.New(s.store, s.runner, audit.NewWriter(unavailableAuditStore{s.audits}, nil), s.outbox)

	yes := true
	_, err := broken.SetVerification(s.adminCtx(), detail.ID, &models.SetVerificationRequest{Verified: &yes})
	s.Require().Error(err)
	voter, err := s.store.GetVoter(context.Background(), detail.ID)
	s.Require().NoError(err)
	s.Equal(models.VerificationUnverified, voter.VerificationStatus)
	s.Nil(voter.VerifiedBy)
	s.Nil(voter.VerifiedAt)
	s.Equal(detail.UpdatedAt, voter.UpdatedAt)

	_, err = broken.SetReferenceStatus(s.adminCtx(), refID, &models.SetReferenceStatusRequest{Status: "CONTACTED"})
	s.Require().Error(err)
	ref, err := s.store.GetReference(context.Background(), refID)
	s.Require().NoError(err)
	s.Equal(models.ReferencePending, ref.Status)
	s.Empty(s.events(models.EventReferenceContacted))

	s.Len(s.audits.All(), auditsBefore)
	s.Len(s.outbox.Entries(), outboxBefore)
}

func (s *ServiceSuite) TestPublicCannotVerify() {
	detail := s.create()
	yes := true
	_, err := s.service.SetVerification(s.as(requestcontext.ActorPublic), detail.ID, &models.SetVerificationRequest{Verified: &yes})
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *ServiceSuite) TestContactedQueuesOneNotice() {
	detail := s.create()
	refID := detail.References[0].ID

	ref, err := s.service.SetReferenceStatus(s.adminCtx(), refID, &models.SetReferenceStatusRequest{Status: "contacted"})
	s.Require().NoError(err)
	s.Equal(models.ReferenceContacted, ref.Status)
	s.Len(s.events(models.EventReferenceContacted), 1)

	// the dispatcher delivered it
	s.Require().NoError(s.store.MarkNotificationSent(context.Background(), refID, s.now))

	_, err = s.service.SetReferenceStatus(s.adminCtx(), refID, &models.SetReferenceStatusRequest{Status: "PENDING"})
	s.Require().NoError(err)
	_, err = s.service.SetReferenceStatus(s.adminCtx(), refID, &models.SetReferenceStatusRequest{Status: "CONTACTED"})
	s.Require().NoError(err)
	s.Len(s.events(models.EventReferenceContacted), 1, "the sent flag never clears")

	got, err := s.store.GetReference(context.Background(), refID)
	s.Require().NoError(err)
	s.True(got.NotificationSent)
}

func (s *ServiceSuite) TestReferenceStatusErrors() {
	detail := s.create()
	refID := detail.References[0].ID

	_, err := s.service.SetReferenceStatus(s.adminCtx(), refID, &models.SetReferenceStatusRequest{Status: "PENDING"})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))

	_, err = s.service.SetReferenceStatus(s.adminCtx(), refID, &models.SetReferenceStatusRequest{Status: "REJECTED"})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))

	_, err = s.service.SetReferenceStatus(s.adminCtx(), id.NewReferenceID(), &models.SetReferenceStatusRequest{Status: "CONTACTED"})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestBulkStatusReportsPerItem() {
	detail := s.create()
	refID := detail.References[0].ID
	missing := id.NewReferenceID()

	results, err := s.service.BulkSetReferenceStatus(s.adminCtx(), &models.BulkReferenceStatusRequest{
		Items: []models.BulkStatusItem{
			{ReferenceID: refID.String(), Status: "contacted"},
			{ReferenceID: missing.String(), Status: "contacted"},
		},
	})
	s.Require().NoError(err)
	s.Require().Len(results, 2)
	s.True(results[0].OK)
	s.Equal("CONTACTED", results[0].Status)
	s.False(results[1].OK)
	s.Require().NotNil(results[1].Error)
	s.Equal(string(dErrors.CodeNotFound), results[1].Error.Code)
}

func (s *ServiceSuite) TestRetryNotification() {
	detail := s.create()
	refID := detail.References[0].ID

	err := s.service.RetryNotification(s.adminCtx(), refID)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition), "pending references have nothing to retry")

	_, err = s.service.SetReferenceStatus(s.adminCtx(), refID, &models.SetReferenceStatusRequest{Status: "CONTACTED"})
	s.Require().NoError(err)
	s.Require().NoError(s.service.RetryNotification(s.adminCtx(), refID))
	s.Len(s.events(models.EventReferenceContacted), 2)

	s.Require().NoError(s.store.MarkNotificationSent(context.Background(), refID, s.now))
	err = s.service.RetryNotification(s.adminCtx(), refID)
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadyInState))
}

func (s *ServiceSuite) TestAddReferences() {
	detail := s.create()

	refs, err := s.service.AddReferences(s.adminCtx(), detail.ID, &models.AddReferencesRequest{
		References: []models.ReferenceInput{{Name: "Meena", Contact: "9000012345"}},
	})
	s.Require().NoError(err)
	s.Require().Len(refs, 1)

	all, err := s.service.ListReferences(s.adminCtx(), detail.ID)
	s.Require().NoError(err)
	s.Len(all, 2)

	_, err = s.service.ListReferences(s.adminCtx(), id.NewVoterID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestDeleteCascadesAndQueuesRemoval() {
	detail := s.create()
	refID := detail.References[0].ID

	s.Require().NoError(s.service.DeleteVoter(s.adminCtx(), detail.ID))

	_, err := s.service.GetVoter(s.adminCtx(), detail.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	_, err = s.store.GetReference(context.Background(), refID)
	s.Error(err)
	s.Len(s.events(models.EventVoterProjection), 2)

	history, err := s.service.History(s.adminCtx(), audit.EntityVoter, detail.ID.String(), 0)
	s.Require().NoError(err)
	s.Equal(audit.ActionVoterDeleted, history[0].Action)

	err = s.service.DeleteVoter(s.adminCtx(), detail.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestListFiltersByVerification() {
	first := s.create()
	s.create()
	yes := true
	_, err := s.service.SetVerification(s.adminCtx(), first.ID, &models.SetVerificationRequest{Verified: &yes})
	s.Require().NoError(err)

	verified := models.VerificationVerified
	page, err := s.service.ListVoters(s.adminCtx(), models.ListVotersFilter{VerificationStatus: &verified})
	s.Require().NoError(err)
	s.Equal(1, page.Total)
	s.Equal(first.ID, page.Voters[0].ID)
	s.Equal(50, page.Limit)
}

func (s *ServiceSuite) TestHistoryRejectsUnknownEntity() {
	_, err := s.service.History(s.adminCtx(), audit.EntityType("ballot"), "x", 10)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

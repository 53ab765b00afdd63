package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"enrollment/internal/documents"
	"enrollment/internal/verification"
	"enrollment/internal/voter/metrics"
	"enrollment/internal/voter/models"
	id "enrollment/pkg/domain"
	dErrors "enrollment/pkg/domain-errors"
	audit "enrollment/pkg/platform/audit"
	"enrollment/pkg/platform/outbox"
	"enrollment/pkg/platform/sentinel"
	txcontext "enrollment/pkg/platform/tx"
	"enrollment/pkg/requestcontext"
	"enrollment/pkg/validation"
)

// Store defines the canonical persistence interface for voters and references.
// Error Contract:
// - Get*/Lock* return sentinel.ErrNotFound when no record exists
// - CreateVoter returns sentinel.ErrAlreadyUsed for a taken identity number
// - Any method may return sentinel.ErrConflict on lock contention
type Store interface {
	CreateVoter(ctx context.Context, v *models.Voter) error
	GetVoter(ctx context.Context, voterID id.VoterID) (*models.Voter, error)
	LockVoter(ctx context.Context, voterID id.VoterID) (*models.Voter, error)
	UpdateVoter(ctx context.Context, v *models.Voter) error
	TouchVoter(ctx context.Context, voterID id.VoterID, at time.Time) error
	DeleteVoter(ctx context.Context, voterID id.VoterID) error
	ListVoters(ctx context.Context, filter models.ListVotersFilter) ([]*models.Voter, int, error)

	CreateReference(ctx context.Context, ref *models.Reference) error
	GetReference(ctx context.Context, refID id.ReferenceID) (*models.Reference, error)
	LockReference(ctx context.Context, refID id.ReferenceID) (*models.Reference, error)
	UpdateReferenceStatus(ctx context.Context, ref *models.Reference) error
	ListReferences(ctx context.Context, voterID id.VoterID) ([]*models.Reference, error)
}

// Auditor appends audit entries inside the caller's transaction.
type Auditor interface {
	Record(ctx context.Context, entry audit.Entry) error
	History(ctx context.Context, entityType audit.EntityType, entityID string, limit int) ([]audit.Entry, error)
}

// Outbox queues follow-up jobs inside the caller's transaction.
type Outbox interface {
	Append(ctx context.Context, entry *outbox.Entry) error
}

// Projector refreshes the search document of a voter. Failures are not fatal.
type Projector interface {
	Index(ctx context.Context, v *models.Voter, refs []*models.Reference) error
}

type Option func(*Service)

const (
	defaultSignedURLTTL = 15 * time.Minute
	defaultHistoryLimit = 100
)

// Service is the record store adapter: it owns every canonical mutation of voters and
// references. Each mutation runs in one transaction together with its audit entry and
// the follow-up jobs it causes; search projection and notification happen after commit.
type Service struct {
	store        Store
	tx           txcontext.Runner
	auditor      Auditor
	outbox       Outbox
	projector    Projector
	documents    documents.Store
	metrics      *metrics.Metrics
	logger       *slog.Logger
	signedURLTTL time.Duration
}

// New creates the voter service.
func New(store Store, tx txcontext.Runner, auditor Auditor, ob Outbox, opts ...Option) *Service {
	svc := &Service{
		store:        store,
		tx:           tx,
		auditor:      auditor,
		outbox:       ob,
		signedURLTTL: defaultSignedURLTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	return svc
}

// WithProjector enables the synchronous best-effort projection after create.
func WithProjector(p Projector) Option {
	return func(s *Service) {
		s.projector = p
	}
}

// WithDocuments sets the object store used for signed URLs and blob cleanup.
func WithDocuments(d documents.Store) Option {
	return func(s *Service) {
		s.documents = d
	}
}

// WithMetrics sets the metrics instance for the service.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLogger sets the logger instance for the service.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithSignedURLTTL sets how long document URLs in voter detail stay valid.
func WithSignedURLTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.signedURLTTL = ttl
		}
	}
}

// CreateVoter enrolls a voter and the references supplied with the form.
func (s *Service) CreateVoter(ctx context.Context, req *models.CreateVoterRequest) (*models.VoterDetail, error) {
	defer s.observe("create_voter", time.Now())

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	voter := req.Voter()
	voter.ID = id.NewVoterID()
	voter.CreatedAt = now
	voter.UpdatedAt = now
	refs := newReferences(voter.ID, req.References, now)

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.CreateVoter(ctx, voter); err != nil {
			return err
		}
		if err := s.auditor.Record(ctx, audit.Entry{
			EntityType: audit.EntityVoter,
			EntityID:   voter.ID.String(),
			Action:     audit.ActionVoterCreated,
			After:      audit.Snapshot(voter),
		}); err != nil {
			return err
		}
		if err := s.insertReferences(ctx, refs); err != nil {
			return err
		}
		return s.enqueueProjection(ctx, voter.ID)
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) && s.metrics != nil {
			s.metrics.IncrementDuplicateIdentity()
		}
		return nil, s.translate(err, "create_voter", "voter not found")
	}

	s.logger.InfoContext(ctx, "voter created",
		"voter_id", voter.ID.String(),
		"references", len(refs),
		"actor_id", actor.ID,
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.metrics != nil {
		s.metrics.IncrementVotersCreated(createSource(actor))
	}

	// The outbox job covers this too; indexing right away keeps fresh intake searchable
	// without waiting for the worker. Only reached after commit.
	s.projectNow(ctx, voter, refs)

	return &models.VoterDetail{Voter: voter, References: refs}, nil
}

// UpdateVoter applies a partial update. The identity number cannot change.
func (s *Service) UpdateVoter(ctx context.Context, voterID id.VoterID, req *models.UpdateVoterRequest) (*models.Voter, error) {
	defer s.observe("update_voter", time.Now())

	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var updated *models.Voter
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		voter, err := s.store.LockVoter(ctx, voterID)
		if err != nil {
			return err
		}
		before := voter.Clone()
		if err := req.Apply(voter); err != nil {
			return err
		}
		voter.UpdatedAt = laterOf(requestcontext.Now(ctx), before.UpdatedAt)
		if err := s.store.UpdateVoter(ctx, voter); err != nil {
			return err
		}
		if err := s.auditor.Record(ctx, audit.Entry{
			EntityType: audit.EntityVoter,
			EntityID:   voterID.String(),
			Action:     audit.ActionVoterUpdated,
			Before:     audit.Snapshot(before),
			After:      audit.Snapshot(voter),
		}); err != nil {
			return err
		}
		updated = voter
		return s.enqueueProjection(ctx, voterID)
	})
	if err != nil {
		return nil, s.translate(err, "update_voter", "voter not found")
	}
	return updated, nil
}

// SetVerification verifies or un-verifies a voter. Requesting the current state commits a
// no-op audit entry and returns an AlreadyInState error; timestamps are not touched.
func (s *Service) SetVerification(ctx context.Context, voterID id.VoterID, req *models.SetVerificationRequest) (*models.Voter, error) {
	defer s.observe("set_verification", time.Now())

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	target := req.Target()
	if _, err := verification.DecideVoter(models.VerificationUnverified, target, actor.Role); err != nil {
		return nil, err
	}
	adminID, err := id.ParseAdminID(actor.ID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeForbidden, "only admins can change verification status")
	}

	var (
		updated  *models.Voter
		decision verification.VoterDecision
	)
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		voter, err := s.store.LockVoter(ctx, voterID)
		if err != nil {
			return err
		}
		decision, err = verification.DecideVoter(voter.VerificationStatus, target, actor.Role)
		if err != nil {
			return err
		}
		before := voter.Verification()
		if decision.NoOp {
			return s.auditor.Record(ctx, audit.Entry{
				EntityType: audit.EntityVoter,
				EntityID:   voterID.String(),
				Action:     decision.Action,
				Before:     audit.Snapshot(before),
				After:      audit.Snapshot(before),
			})
		}

		verification.ApplyVoter(voter, decision, adminID, laterOf(requestcontext.Now(ctx), voter.UpdatedAt))
		if err := s.store.UpdateVoter(ctx, voter); err != nil {
			return err
		}
		if err := s.auditor.Record(ctx, audit.Entry{
			EntityType: audit.EntityVoter,
			EntityID:   voterID.String(),
			Action:     decision.Action,
			Before:     audit.Snapshot(before),
			After:      audit.Snapshot(voter.Verification()),
		}); err != nil {
			return err
		}
		updated = voter
		return s.enqueueProjection(ctx, voterID)
	})
	if err != nil {
		return nil, s.translate(err, "set_verification", "voter not found")
	}
	if s.metrics != nil {
		s.metrics.IncrementVerificationChange(string(decision.Action))
	}
	if decision.NoOp {
		return nil, dErrors.New(dErrors.CodeAlreadyInState, fmt.Sprintf("voter is already %s", target))
	}
	return updated, nil
}

// DeleteVoter removes a voter and its references. Document blobs are removed after
// commit on a best-effort basis.
func (s *Service) DeleteVoter(ctx context.Context, voterID id.VoterID) error {
	defer s.observe("delete_voter", time.Now())

	if _, err := requireAdmin(ctx); err != nil {
		return err
	}

	var deleted *models.Voter
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		voter, err := s.store.LockVoter(ctx, voterID)
		if err != nil {
			return err
		}
		refs, err := s.store.ListReferences(ctx, voterID)
		if err != nil {
			return err
		}
		if err := s.store.DeleteVoter(ctx, voterID); err != nil {
			return err
		}
		if err := s.auditor.Record(ctx, audit.Entry{
			EntityType: audit.EntityVoter,
			EntityID:   voterID.String(),
			Action:     audit.ActionVoterDeleted,
			Before:     audit.Snapshot(models.VoterDetail{Voter: voter, References: refs}),
		}); err != nil {
			return err
		}
		deleted = voter
		return s.enqueueProjection(ctx, voterID)
	})
	if err != nil {
		return s.translate(err, "delete_voter", "voter not found")
	}
	if s.metrics != nil {
		s.metrics.IncrementVotersDeleted()
	}
	s.removeDocuments(ctx, deleted)
	return nil
}

// AddReferences attaches more references to an existing voter.
func (s *Service) AddReferences(ctx context.Context, voterID id.VoterID, req *models.AddReferencesRequest) ([]*models.Reference, error) {
	defer s.observe("add_references", time.Now())

	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var refs []*models.Reference
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.store.LockVoter(ctx, voterID); err != nil {
			return err
		}
		now := requestcontext.Now(ctx)
		refs = newReferences(voterID, req.References, now)
		if err := s.insertReferences(ctx, refs); err != nil {
			return err
		}
		if err := s.store.TouchVoter(ctx, voterID, now); err != nil {
			return err
		}
		return s.enqueueProjection(ctx, voterID)
	})
	if err != nil {
		return nil, s.translate(err, "add_references", "voter not found")
	}
	return refs, nil
}

// SetReferenceStatus moves one reference to a new status. Entering CONTACTED for a
// reference that was never notified queues exactly one contact notice.
func (s *Service) SetReferenceStatus(ctx context.Context, refID id.ReferenceID, req *models.SetReferenceStatusRequest) (*models.Reference, error) {
	defer s.observe("set_reference_status", time.Now())

	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// Read the owner first so locks are always taken voter before reference.
	current, err := s.store.GetReference(ctx, refID)
	if err != nil {
		return nil, s.translate(err, "set_reference_status", "reference not found")
	}

	var (
		updated  *models.Reference
		decision verification.ReferenceDecision
	)
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.store.LockVoter(ctx, current.VoterID); err != nil {
			return err
		}
		ref, err := s.store.LockReference(ctx, refID)
		if err != nil {
			return err
		}
		decision, err = verification.DecideReference(ref, req.Status)
		if err != nil {
			return err
		}
		before := ref.Snapshot()
		now := requestcontext.Now(ctx)
		verification.ApplyReference(ref, decision, now)
		if err := s.store.UpdateReferenceStatus(ctx, ref); err != nil {
			return err
		}
		if err := s.auditor.Record(ctx, audit.Entry{
			EntityType: audit.EntityReference,
			EntityID:   refID.String(),
			Action:     audit.ActionReferenceStatusChanged,
			Before:     audit.Snapshot(before),
			After:      audit.Snapshot(ref.Snapshot()),
		}); err != nil {
			return err
		}
		if err := s.store.TouchVoter(ctx, ref.VoterID, now); err != nil {
			return err
		}
		if err := s.enqueueProjection(ctx, ref.VoterID); err != nil {
			return err
		}
		if decision.Notify {
			if err := s.enqueueContactNotice(ctx, ref); err != nil {
				return err
			}
		}
		updated = ref
		return nil
	})
	if err != nil {
		return nil, s.translate(err, "set_reference_status", "reference not found")
	}
	if s.metrics != nil {
		s.metrics.IncrementReferenceStatusChange(string(decision.To))
		if decision.Notify {
			s.metrics.IncrementNotificationsEnqueued()
		}
	}
	return updated, nil
}

// BulkSetReferenceStatus applies each item in its own transaction. The call succeeds as
// long as the request is well-formed; per-item failures are reported in the results.
func (s *Service) BulkSetReferenceStatus(ctx context.Context, req *models.BulkReferenceStatusRequest) ([]models.BulkStatusResult, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	results := make([]models.BulkStatusResult, 0, len(req.Items))
	for _, item := range req.Items {
		result := models.BulkStatusResult{ReferenceID: item.ReferenceID}
		refID, err := id.ParseReferenceID(item.ReferenceID)
		if err == nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = dErrors.Wrap(ctxErr, dErrors.CodeTimeout, "request cancelled before item was applied")
			} else {
				var ref *models.Reference
				ref, err = s.SetReferenceStatus(ctx, refID, &models.SetReferenceStatusRequest{Status: item.Status})
				if err == nil {
					result.Status = string(ref.Status)
				}
			}
		}
		if err != nil {
			result.Error = itemError(err)
		} else {
			result.OK = true
		}
		results = append(results, result)
	}
	return results, nil
}

// RetryNotification re-queues the contact notice of a reference that qualifies for one
// but has not been sent. It never resends a notice that already went out.
func (s *Service) RetryNotification(ctx context.Context, refID id.ReferenceID) error {
	if _, err := requireActor(ctx); err != nil {
		return err
	}
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		ref, err := s.store.LockReference(ctx, refID)
		if err != nil {
			return err
		}
		if ref.NotificationSent {
			return dErrors.New(dErrors.CodeAlreadyInState, "notification already sent")
		}
		if !verification.NeedsNotice(ref) {
			return dErrors.New(dErrors.CodeInvalidTransition, "reference has not been contacted")
		}
		return s.enqueueContactNotice(ctx, ref)
	})
	if err != nil {
		return s.translate(err, "retry_notification", "reference not found")
	}
	return nil
}

// GetVoter returns a committed voter with references and signed document URLs.
func (s *Service) GetVoter(ctx context.Context, voterID id.VoterID) (*models.VoterDetail, error) {
	voter, err := s.store.GetVoter(ctx, voterID)
	if err != nil {
		return nil, s.translate(err, "get_voter", "voter not found")
	}
	refs, err := s.store.ListReferences(ctx, voterID)
	if err != nil {
		return nil, s.translate(err, "get_voter", "voter not found")
	}
	if refs == nil {
		refs = []*models.Reference{}
	}
	return &models.VoterDetail{Voter: voter, References: refs, DocumentURLs: s.signDocuments(ctx, voter)}, nil
}

// ListVoters pages through committed voters.
func (s *Service) ListVoters(ctx context.Context, filter models.ListVotersFilter) (*models.Page, error) {
	filter.Limit = validation.ClampPageSize(filter.Limit, 50)
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	voters, total, err := s.store.ListVoters(ctx, filter)
	if err != nil {
		return nil, s.translate(err, "list_voters", "voter not found")
	}
	if voters == nil {
		voters = []*models.Voter{}
	}
	return &models.Page{Voters: voters, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// ListReferences returns the references of one voter.
func (s *Service) ListReferences(ctx context.Context, voterID id.VoterID) ([]*models.Reference, error) {
	if _, err := s.store.GetVoter(ctx, voterID); err != nil {
		return nil, s.translate(err, "list_references", "voter not found")
	}
	refs, err := s.store.ListReferences(ctx, voterID)
	if err != nil {
		return nil, s.translate(err, "list_references", "voter not found")
	}
	if refs == nil {
		refs = []*models.Reference{}
	}
	return refs, nil
}

// History returns the audit trail of one record, newest first.
func (s *Service) History(ctx context.Context, entityType audit.EntityType, entityID string, limit int) ([]audit.Entry, error) {
	if entityType != audit.EntityVoter && entityType != audit.EntityReference {
		return nil, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unknown entity type %q", entityType))
	}
	if limit <= 0 || limit > defaultHistoryLimit {
		limit = defaultHistoryLimit
	}
	entries, err := s.auditor.History(ctx, entityType, entityID, limit)
	if err != nil {
		return nil, s.translate(err, "history", "record not found")
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	return entries, nil
}

func (s *Service) insertReferences(ctx context.Context, refs []*models.Reference) error {
	for _, ref := range refs {
		if err := s.store.CreateReference(ctx, ref); err != nil {
			return err
		}
		if err := s.auditor.Record(ctx, audit.Entry{
			EntityType: audit.EntityReference,
			EntityID:   ref.ID.String(),
			Action:     audit.ActionReferenceCreated,
			After:      audit.Snapshot(ref),
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) enqueueProjection(ctx context.Context, voterID id.VoterID) error {
	entry, err := outbox.NewJSONEntry(models.AggregateVoter, voterID.String(), models.EventVoterProjection,
		models.ProjectionPayload{VoterID: voterID.String()}, requestcontext.Now(ctx))
	if err != nil {
		return err
	}
	return s.outbox.Append(ctx, entry)
}

func (s *Service) enqueueContactNotice(ctx context.Context, ref *models.Reference) error {
	entry, err := outbox.NewJSONEntry(models.AggregateReference, ref.ID.String(), models.EventReferenceContacted,
		models.ContactedPayload{ReferenceID: ref.ID.String(), VoterID: ref.VoterID.String()}, requestcontext.Now(ctx))
	if err != nil {
		return err
	}
	return s.outbox.Append(ctx, entry)
}

func (s *Service) projectNow(ctx context.Context, voter *models.Voter, refs []*models.Reference) {
	if s.projector == nil {
		return
	}
	if err := s.projector.Index(context.WithoutCancel(ctx), voter, refs); err != nil {
		s.logger.WarnContext(ctx, "search projection deferred to follow-up worker",
			"voter_id", voter.ID.String(),
			"error", err,
		)
	}
}

func (s *Service) signDocuments(ctx context.Context, voter *models.Voter) map[string]string {
	if s.documents == nil || len(voter.Documents) == 0 {
		return nil
	}
	urls := make(map[string]string, len(voter.Documents))
	for _, doc := range voter.Documents {
		u, err := s.documents.SignedURL(ctx, doc.Key, s.signedURLTTL)
		if err != nil {
			s.logger.WarnContext(ctx, "failed to sign document url", "key", doc.Key, "error", err)
			continue
		}
		urls[doc.Key] = u
	}
	return urls
}

func (s *Service) removeDocuments(ctx context.Context, voter *models.Voter) {
	if s.documents == nil || voter == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, doc := range voter.Documents {
		if err := s.documents.Delete(ctx, doc.Key); err != nil {
			s.logger.WarnContext(ctx, "failed to delete document blob",
				"voter_id", voter.ID.String(),
				"key", doc.Key,
				"error", err,
			)
		}
	}
}

// translate maps store and infrastructure errors onto domain errors exactly once.
func (s *Service) translate(err error, op, notFoundMsg string) error {
	var domainErr *dErrors.Error
	switch {
	case errors.As(err, &domainErr):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, notFoundMsg)
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.Wrap(err, dErrors.CodeDuplicateIdentity, "a voter with this identity number already exists")
	case errors.Is(err, sentinel.ErrConflict):
		if s.metrics != nil {
			s.metrics.IncrementStorageConflict(op)
		}
		return dErrors.Wrap(err, dErrors.CodeStorageConflict, "record is being modified concurrently, retry the request")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "operation timed out")
	case errors.Is(err, audit.ErrMissingActor):
		return dErrors.Wrap(err, dErrors.CodeUnauthorized, "authentication required")
	default:
		s.logger.Error("voter store operation failed", "operation", op, "error", err)
		return dErrors.Wrap(err, dErrors.CodeInternal, "internal error")
	}
}

func (s *Service) observe(op string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveMutationLatency(op, time.Since(start).Seconds())
	}
}

func newReferences(voterID id.VoterID, inputs []models.ReferenceInput, now time.Time) []*models.Reference {
	refs := make([]*models.Reference, 0, len(inputs))
	for _, in := range inputs {
		refs = append(refs, &models.Reference{
			ID:              id.NewReferenceID(),
			VoterID:         voterID,
			Name:            in.Name,
			Contact:         in.Contact,
			Status:          models.ReferencePending,
			StatusUpdatedAt: now,
			CreatedAt:       now,
		})
	}
	return refs
}

func requireActor(ctx context.Context) (requestcontext.Actor, error) {
	actor, ok := requestcontext.ActorFrom(ctx)
	if !ok || actor.ID == "" {
		return requestcontext.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	return actor, nil
}

func requireAdmin(ctx context.Context) (requestcontext.Actor, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return actor, err
	}
	if !actor.Role.IsAdmin() {
		return actor, dErrors.New(dErrors.CodeForbidden, "admin role required")
	}
	return actor, nil
}

func createSource(actor requestcontext.Actor) string {
	if actor.Role.IsAdmin() {
		return "admin"
	}
	return "public"
}

// laterOf keeps updated_at strictly increasing so projection versions never go backwards.
func laterOf(now, previous time.Time) time.Time {
	if now.After(previous) {
		return now
	}
	return previous.Add(time.Microsecond)
}

func itemError(err error) *models.ItemError {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		return &models.ItemError{Code: string(domainErr.Code), Message: domainErr.Message}
	}
	return &models.ItemError{Code: string(dErrors.CodeInternal), Message: "internal error"}
}

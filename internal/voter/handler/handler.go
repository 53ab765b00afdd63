package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"enrollment/internal/voter/models"
	id "enrollment/pkg/domain"
	dErrors "enrollment/pkg/domain-errors"
	audit "enrollment/pkg/platform/audit"
	"enrollment/pkg/platform/httputil"
	authmw "enrollment/pkg/platform/middleware/auth"
	"enrollment/pkg/requestcontext"
)

// Service defines the voter operations exposed over HTTP.
type Service interface {
	CreateVoter(ctx context.Context, req *models.CreateVoterRequest) (*models.VoterDetail, error)
	UpdateVoter(ctx context.Context, voterID id.VoterID, req *models.UpdateVoterRequest) (*models.Voter, error)
	SetVerification(ctx context.Context, voterID id.VoterID, req *models.SetVerificationRequest) (*models.Voter, error)
	DeleteVoter(ctx context.Context, voterID id.VoterID) error
	AddReferences(ctx context.Context, voterID id.VoterID, req *models.AddReferencesRequest) ([]*models.Reference, error)
	SetReferenceStatus(ctx context.Context, refID id.ReferenceID, req *models.SetReferenceStatusRequest) (*models.Reference, error)
	BulkSetReferenceStatus(ctx context.Context, req *models.BulkReferenceStatusRequest) ([]models.BulkStatusResult, error)
	RetryNotification(ctx context.Context, refID id.ReferenceID) error
	GetVoter(ctx context.Context, voterID id.VoterID) (*models.VoterDetail, error)
	ListVoters(ctx context.Context, filter models.ListVotersFilter) (*models.Page, error)
	ListReferences(ctx context.Context, voterID id.VoterID) ([]*models.Reference, error)
	History(ctx context.Context, entityType audit.EntityType, entityID string, limit int) ([]audit.Entry, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// ReferencesResponse wraps a list of references.
type ReferencesResponse struct {
	References []*models.Reference `json:"references"`
}

// BulkStatusResponse carries one result per requested item, in request order.
type BulkStatusResponse struct {
	Results []models.BulkStatusResult `json:"results"`
}

// HistoryResponse is the audit trail of one record, newest first.
type HistoryResponse struct {
	Entries []audit.Entry `json:"entries"`
}

// RegisterPublic mounts the unauthenticated intake route.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.With(authmw.WithActor(requestcontext.ActorPublic)).Post("/api/v1/enrollments", h.HandleCreate)
}

// Register mounts the admin routes. The caller installs authentication.
func (h *Handler) Register(r chi.Router) {
	r.Get("/admin/voters", h.HandleList)
	r.Post("/admin/voters", h.HandleCreate)
	r.Get("/admin/voters/{id}", h.HandleGet)
	r.Patch("/admin/voters/{id}", h.HandleUpdate)
	r.Delete("/admin/voters/{id}", h.HandleDelete)
	r.Put("/admin/voters/{id}/verification", h.HandleSetVerification)
	r.Get("/admin/voters/{id}/references", h.HandleListReferences)
	r.Post("/admin/voters/{id}/references", h.HandleAddReferences)
	r.Get("/admin/voters/{id}/history", h.HandleVoterHistory)

	r.Post("/admin/references/status", h.HandleBulkStatus)
	r.Put("/admin/references/{id}/status", h.HandleSetReferenceStatus)
	r.Post("/admin/references/{id}/notification/retry", h.HandleRetryNotification)
	r.Get("/admin/references/{id}/history", h.HandleReferenceHistory)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeJSON[models.CreateVoterRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	detail, err := h.service.CreateVoter(ctx, req)
	if err != nil {
		h.logger.WarnContext(ctx, "create voter failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusCreated, detail)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter, err := parseListFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	page, err := h.service.ListVoters(ctx, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "list voters failed", "error", err, "request_id", requestcontext.RequestID(ctx))
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, page)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	voterID, ok := voterIDParam(w, r)
	if !ok {
		return
	}
	detail, err := h.service.GetVoter(ctx, voterID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, detail)
}

// HandleUpdate applies a partial update. The service normalizes and validates the patch
// against the stored record, so the body is only decoded here.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	voterID, ok := voterIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeJSON[models.UpdateVoterRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	voter, err := h.service.UpdateVoter(ctx, voterID, req)
	if err != nil {
		h.logger.WarnContext(ctx, "update voter failed", "error", err, "request_id", requestID, "voter_id", voterID.String())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, voter)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	voterID, ok := voterIDParam(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteVoter(ctx, voterID); err != nil {
		h.logger.WarnContext(ctx, "delete voter failed", "error", err, "request_id", requestID, "voter_id", voterID.String())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, map[string]string{"id": voterID.String()})
}

func (h *Handler) HandleSetVerification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	voterID, ok := voterIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.SetVerificationRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	voter, err := h.service.SetVerification(ctx, voterID, req)
	if err != nil {
		h.logger.WarnContext(ctx, "set verification failed", "error", err, "request_id", requestID, "voter_id", voterID.String())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, voter)
}

func (h *Handler) HandleListReferences(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	voterID, ok := voterIDParam(w, r)
	if !ok {
		return
	}
	refs, err := h.service.ListReferences(ctx, voterID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, ReferencesResponse{References: refs})
}

func (h *Handler) HandleAddReferences(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	voterID, ok := voterIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeJSON[models.AddReferencesRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	refs, err := h.service.AddReferences(ctx, voterID, req)
	if err != nil {
		h.logger.WarnContext(ctx, "add references failed", "error", err, "request_id", requestID, "voter_id", voterID.String())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusCreated, ReferencesResponse{References: refs})
}

func (h *Handler) HandleSetReferenceStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	refID, ok := referenceIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeJSON[models.SetReferenceStatusRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	ref, err := h.service.SetReferenceStatus(ctx, refID, req)
	if err != nil {
		h.logger.WarnContext(ctx, "set reference status failed", "error", err, "request_id", requestID, "reference_id", refID.String())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, ref)
}

// HandleBulkStatus applies each item independently. The response is 200 whenever the
// request itself is valid; failed items carry their own error.
func (h *Handler) HandleBulkStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeJSON[models.BulkReferenceStatusRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	results, err := h.service.BulkSetReferenceStatus(ctx, req)
	if err != nil {
		h.logger.WarnContext(ctx, "bulk reference status failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, BulkStatusResponse{Results: results})
}

// HandleRetryNotification queues the contact notice again. Delivery happens
// asynchronously, hence 202.
func (h *Handler) HandleRetryNotification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	refID, ok := referenceIDParam(w, r)
	if !ok {
		return
	}
	if err := h.service.RetryNotification(ctx, refID); err != nil {
		h.logger.WarnContext(ctx, "retry notification failed", "error", err, "request_id", requestID, "reference_id", refID.String())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusAccepted, map[string]string{"reference_id": refID.String()})
}

func (h *Handler) HandleVoterHistory(w http.ResponseWriter, r *http.Request) {
	voterID, ok := voterIDParam(w, r)
	if !ok {
		return
	}
	h.writeHistory(w, r, audit.EntityVoter, voterID.String())
}

func (h *Handler) HandleReferenceHistory(w http.ResponseWriter, r *http.Request) {
	refID, ok := referenceIDParam(w, r)
	if !ok {
		return
	}
	h.writeHistory(w, r, audit.EntityReference, refID.String())
}

func (h *Handler) writeHistory(w http.ResponseWriter, r *http.Request, entityType audit.EntityType, entityID string) {
	ctx := r.Context()
	limit, err := intParam(r, "limit")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	entries, err := h.service.History(ctx, entityType, entityID, limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, HistoryResponse{Entries: entries})
}

func voterIDParam(w http.ResponseWriter, r *http.Request) (id.VoterID, bool) {
	voterID, err := id.ParseVoterID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid voter id"))
		return id.VoterID{}, false
	}
	return voterID, true
}

func referenceIDParam(w http.ResponseWriter, r *http.Request) (id.ReferenceID, bool) {
	refID, err := id.ParseReferenceID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid reference id"))
		return id.ReferenceID{}, false
	}
	return refID, true
}

func parseListFilter(r *http.Request) (models.ListVotersFilter, error) {
	var filter models.ListVotersFilter
	var err error
	if filter.Limit, err = intParam(r, "limit"); err != nil {
		return filter, err
	}
	if filter.Offset, err = intParam(r, "offset"); err != nil {
		return filter, err
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("verification_status")); raw != "" {
		status := models.VerificationStatus(strings.ToUpper(raw))
		if !status.IsValid() {
			return filter, dErrors.NewValidation("verification_status is invalid",
				dErrors.FieldError{Field: "verification_status", Reason: "must be UNVERIFIED or VERIFIED"})
		}
		filter.VerificationStatus = &status
	}
	return filter, nil
}

func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, dErrors.NewValidation(name+" must be a non-negative integer",
			dErrors.FieldError{Field: name, Reason: "must be a non-negative integer"})
	}
	return n, nil
}

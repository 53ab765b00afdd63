package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"enrollment/internal/admin/models"
	id "enrollment/pkg/domain"
	dErrors "enrollment/pkg/domain-errors"
	"enrollment/pkg/platform/httputil"
	adminmw "enrollment/pkg/platform/middleware/admin"
	"enrollment/pkg/requestcontext"
)

// Service defines the admin management operations.
type Service interface {
	CreateAdmin(ctx context.Context, req *models.CreateAdminRequest) (*models.Admin, error)
	Deactivate(ctx context.Context, adminID id.AdminID) (*models.Admin, error)
	List(ctx context.Context) ([]*models.Admin, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the superadmin-only routes. The caller installs authentication.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(adminmw.RequireSuperAdmin(h.logger))
		r.Get("/admin/admins", h.HandleList)
		r.Post("/admin/admins", h.HandleCreate)
		r.Post("/admin/admins/{id}/deactivate", h.HandleDeactivate)
	})
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	admins, err := h.service.List(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "list admins failed", "error", err, "request_id", requestcontext.RequestID(ctx))
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, models.ListAdminsResponse{Admins: admins})
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.CreateAdminRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	admin, err := h.service.CreateAdmin(ctx, req)
	if err != nil {
		h.logger.WarnContext(ctx, "create admin failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusCreated, admin)
}

func (h *Handler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	adminID, err := id.ParseAdminID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid admin id"))
		return
	}

	admin, err := h.service.Deactivate(ctx, adminID)
	if err != nil {
		h.logger.WarnContext(ctx, "deactivate admin failed", "error", err, "request_id", requestID, "admin_id", adminID.String())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, admin)
}

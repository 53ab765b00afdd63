package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"enrollment/internal/reconcile"
	dErrors "enrollment/pkg/domain-errors"
	"enrollment/pkg/platform/httputil"
	adminmw "enrollment/pkg/platform/middleware/admin"
	"enrollment/pkg/requestcontext"
)

// Sweeper runs one reconciliation pass.
type Sweeper interface {
	Run(ctx context.Context) (reconcile.Stats, error)
}

type Handler struct {
	sweeper Sweeper
	logger  *slog.Logger
}

func New(sweeper Sweeper, logger *slog.Logger) *Handler {
	return &Handler{sweeper: sweeper, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.With(adminmw.RequireSuperAdmin(h.logger)).Post("/admin/reconcile", h.HandleRun)
}

// HandleRun triggers a sweep and waits for it. A sweep already in progress yields 409.
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	stats, err := h.sweeper.Run(context.WithoutCancel(ctx))
	switch {
	case errors.Is(err, reconcile.ErrSweepInProgress):
		httputil.WriteError(w, dErrors.New(dErrors.CodeConflict, "a reconciliation sweep is already running"))
		return
	case err != nil:
		h.logger.ErrorContext(ctx, "manual reconciliation sweep failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeIndexUnavailable, "reconciliation sweep failed"))
		return
	}
	h.logger.InfoContext(ctx, "manual reconciliation sweep completed",
		"scanned", stats.Scanned,
		"repaired", stats.Repaired,
		"request_id", requestID,
	)
	httputil.WriteSuccess(w, http.StatusOK, stats)
}

package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"enrollment/internal/search"
	dErrors "enrollment/pkg/domain-errors"
	"enrollment/pkg/platform/httputil"
	adminmw "enrollment/pkg/platform/middleware/admin"
	"enrollment/pkg/requestcontext"
)

// Projector is the subset of search.Projector the HTTP layer uses.
type Projector interface {
	Search(ctx context.Context, q search.Query) (search.Result, error)
	BulkReindex(ctx context.Context, cursor string) (next string, done bool, err error)
	Rebuild(ctx context.Context) (search.RebuildStats, error)
}

type Handler struct {
	projector Projector
	logger    *slog.Logger
}

func New(projector Projector, logger *slog.Logger) *Handler {
	return &Handler{projector: projector, logger: logger}
}

// ReindexRequest resumes a bulk reindex from the cursor of the previous page.
type ReindexRequest struct {
	Cursor string `json:"cursor"`
}

// ReindexResponse carries the cursor of the next page.
type ReindexResponse struct {
	NextCursor string `json:"next_cursor,omitempty"`
	Done       bool   `json:"done"`
}

// Register mounts search routes. Rebuild is superadmin-only.
func (h *Handler) Register(r chi.Router) {
	r.Get("/admin/search", h.HandleSearch)
	r.Post("/admin/search/reindex", h.HandleReindex)
	r.With(adminmw.RequireSuperAdmin(h.logger)).Post("/admin/search/rebuild", h.HandleRebuild)
}

// HandleSearch queries the projection. Results may lag the canonical store by seconds.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q, err := parseQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := h.projector.Search(ctx, q)
	if err != nil {
		h.logger.WarnContext(ctx, "search failed", "error", err, "request_id", requestcontext.RequestID(ctx))
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, res)
}

func (h *Handler) HandleReindex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeJSON[ReindexRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	next, done, err := h.projector.BulkReindex(ctx, req.Cursor)
	if err != nil {
		h.logger.WarnContext(ctx, "bulk reindex failed", "error", err, "cursor", req.Cursor, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, ReindexResponse{NextCursor: next, Done: done})
}

func (h *Handler) HandleRebuild(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	stats, err := h.projector.Rebuild(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "search rebuild failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "search rebuild completed",
		"indexed", stats.Indexed,
		"orphans_removed", stats.OrphansRemoved,
		"request_id", requestID,
	)
	httputil.WriteSuccess(w, http.StatusOK, stats)
}

func parseQuery(r *http.Request) (search.Query, error) {
	v := r.URL.Query()
	q := search.Query{
		Name:               v.Get("name"),
		IdentityNumber:     v.Get("identity_number"),
		Contact:            v.Get("contact"),
		VerificationStatus: v.Get("verification_status"),
		ReferenceStatus:    v.Get("reference_status"),
		Assembly:           v.Get("assembly"),
		PollingStation:     v.Get("polling_station"),
	}
	var err error
	if q.Limit, err = intParam(v.Get("limit"), "limit"); err != nil {
		return search.Query{}, err
	}
	if q.Offset, err = intParam(v.Get("offset"), "offset"); err != nil {
		return search.Query{}, err
	}
	return q, nil
}

func intParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, dErrors.NewValidation(name+" must be an integer",
			dErrors.FieldError{Field: name, Reason: "must be an integer"})
	}
	return n, nil
}

package admin

import (
	"log/slog"
	"net/http"
	"slices"

	dErrors "enrollment/pkg/domain-errors"
	"enrollment/pkg/platform/httputil"
	"enrollment/pkg/requestcontext"
)

// RequireRole lets a request through only when the authenticated actor holds one of roles.
// It must run after auth.RequireAdmin.
func RequireRole(logger *slog.Logger, roles ...requestcontext.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			actor, ok := requestcontext.ActorFrom(ctx)
			if !ok {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
				return
			}
			if !slices.Contains(roles, actor.Role) {
				logger.WarnContext(ctx, "admin role insufficient",
					"actor_id", actor.ID,
					"role", actor.Role,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "insufficient role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSuperAdmin guards operational endpoints such as reindex and sweep.
func RequireSuperAdmin(logger *slog.Logger) func(http.Handler) http.Handler {
	return RequireRole(logger, requestcontext.RoleSuperAdmin)
}

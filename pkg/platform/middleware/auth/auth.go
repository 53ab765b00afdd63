package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	id "enrollment/pkg/domain"
	dErrors "enrollment/pkg/domain-errors"
	"enrollment/pkg/platform/httputil"
	"enrollment/pkg/platform/sentinel"
	"enrollment/pkg/requestcontext"
)

// TokenValidator validates bearer tokens.
type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// AdminDirectory resolves the current role of an admin. It returns sentinel.ErrNotFound
// for unknown or deactivated admins.
type AdminDirectory interface {
	ActiveRole(ctx context.Context, adminID id.AdminID) (requestcontext.Role, error)
}

// Claims are the token claims the middleware needs.
type Claims struct {
	AdminID string
	Role    string
	JTI     string
}

func unauthorized(w http.ResponseWriter, msg string) {
	httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, msg))
}

// parseClaims converts the subject to a typed admin id.
func parseClaims(claims *Claims) (id.AdminID, error) {
	adminID, err := id.ParseAdminID(claims.AdminID)
	if err != nil {
		return id.AdminID{}, fmt.Errorf("invalid admin subject: %w", err)
	}
	return adminID, nil
}

// RequireAdmin validates the bearer token, checks the admin is still active and stores
// the actor in the context. The role comes from the directory, not the token, so a
// demotion takes effect before the token expires.
func RequireAdmin(validator TokenValidator, directory AdminDirectory, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				unauthorized(w, "missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				unauthorized(w, "invalid or expired token")
				return
			}

			adminID, err := parseClaims(claims)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - malformed token claims",
					"error", err,
					"request_id", requestID,
				)
				unauthorized(w, "invalid or expired token")
				return
			}

			role, err := directory.ActiveRole(ctx, adminID)
			if errors.Is(err, sentinel.ErrNotFound) {
				logger.WarnContext(ctx, "unauthorized access - unknown or inactive admin",
					"admin_id", adminID.String(),
					"request_id", requestID,
				)
				unauthorized(w, "admin is not active")
				return
			}
			if err != nil {
				logger.ErrorContext(ctx, "failed to resolve admin",
					"error", err,
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to validate token"))
				return
			}

			ctx = requestcontext.WithActor(ctx, requestcontext.Actor{ID: adminID.String(), Role: role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithActor attaches a fixed actor. Used for the public intake route.
func WithActor(actor requestcontext.Actor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestcontext.WithActor(r.Context(), actor)))
		})
	}
}

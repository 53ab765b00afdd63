package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	dErrors "enrollment/pkg/domain-errors"
	"enrollment/pkg/requestcontext"
)

// SuccessEnvelope wraps every successful API response.
type SuccessEnvelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

// ErrorEnvelope wraps every failed API response.
type ErrorEnvelope struct {
	Success bool      `json:"success"`
	Error   ErrorBody `json:"error"`
}

// ErrorBody is the machine-readable part of an error response.
type ErrorBody struct {
	Code    string               `json:"code"`
	Message string               `json:"message,omitempty"`
	Fields  []dErrors.FieldError `json:"fields,omitempty"`
}

// WriteJSON writes response as-is. API handlers use WriteSuccess/WriteError instead.
func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Errors after WriteHeader cannot change the status code, so we ignore encoding errors.
	_ = json.NewEncoder(w).Encode(response)
}

// WriteSuccess writes data inside the success envelope.
func WriteSuccess(w http.ResponseWriter, status int, data any) {
	WriteJSON(w, status, SuccessEnvelope{Success: true, Data: data})
}

// WriteError centralizes domain error translation to HTTP responses.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		WriteJSON(w, DomainCodeToHTTPStatus(domainErr.Code), ErrorEnvelope{
			Error: ErrorBody{
				Code:    string(domainErr.Code),
				Message: domainErr.Message,
				Fields:  domainErr.Fields,
			},
		})
		return
	}

	// Fallback for unexpected errors; never leak internals.
	WriteJSON(w, http.StatusInternalServerError, ErrorEnvelope{
		Error: ErrorBody{Code: string(dErrors.CodeInternal), Message: "internal error"},
	})
}

// DomainCodeToHTTPStatus translates domain error codes to HTTP status codes.
func DomainCodeToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeBadRequest, dErrors.CodeValidation:
		return http.StatusBadRequest
	case dErrors.CodeConflict, dErrors.CodeDuplicateIdentity, dErrors.CodeAlreadyInState, dErrors.CodeStorageConflict:
		return http.StatusConflict
	case dErrors.CodeInvalidTransition:
		return http.StatusUnprocessableEntity
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case dErrors.CodeIndexUnavailable, dErrors.CodeNotificationFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RequireActor extracts the authenticated actor from context.
// Returns a domain error suitable for HTTP response on failure.
func RequireActor(ctx context.Context, logger *slog.Logger) (requestcontext.Actor, error) {
	actor, ok := requestcontext.ActorFrom(ctx)
	if !ok || actor.ID == "" {
		if logger != nil {
			logger.ErrorContext(ctx, "actor missing from context despite auth middleware",
				"request_id", requestcontext.RequestID(ctx))
		}
		return requestcontext.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	return actor, nil
}

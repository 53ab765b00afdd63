package validation

import (
	"fmt"

	dErrors "enrollment/pkg/domain-errors"
)

// HTTP body limits
const (
	// MaxBodySize is the maximum allowed request body size (64 KB).
	MaxBodySize = 64 * 1024
)

// Slice element count limits
const (
	// MaxReferences is the maximum number of references attached in one request.
	MaxReferences = 10

	// MaxDocuments is the maximum number of document keys on a voter.
	MaxDocuments = 20

	// MaxBulkItems is the maximum number of references in one bulk status update.
	MaxBulkItems = 500

	// MaxPageSize caps list and search result pages.
	MaxPageSize = 200
)

// CheckSliceCount validates that a slice does not exceed the maximum count.
func CheckSliceCount(fieldName string, count, max int) error {
	if count > max {
		return dErrors.NewValidation(fmt.Sprintf("too many %s: max %d allowed", fieldName, max),
			dErrors.FieldError{Field: fieldName, Reason: fmt.Sprintf("must have at most %d items", max)})
	}
	return nil
}

// CheckStringLength validates that a string does not exceed the maximum length.
func CheckStringLength(fieldName, value string, max int) error {
	if len(value) > max {
		return dErrors.NewValidation(fmt.Sprintf("%s exceeds max length of %d", fieldName, max),
			dErrors.FieldError{Field: fieldName, Reason: fmt.Sprintf("must be at most %d characters", max)})
	}
	return nil
}

// ClampPageSize applies the default and ceiling to a requested page size.
func ClampPageSize(requested, fallback int) int {
	if requested <= 0 {
		return fallback
	}
	if requested > MaxPageSize {
		return MaxPageSize
	}
	return requested
}

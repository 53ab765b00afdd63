package models

import (
	"strings"
	"time"

	id "enrollment/pkg/domain"
	dErrors "enrollment/pkg/domain-errors"
	"enrollment/pkg/requestcontext"
	"enrollment/pkg/validation"
)

// Admin is a back-office operator allowed to edit enrollment records.
type Admin struct {
	ID        id.AdminID          `json:"id"`
	Email     string              `json:"email"`
	Name      string              `json:"name"`
	Role      requestcontext.Role `json:"role"`
	Active    bool                `json:"active"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// CreateAdminRequest registers a new admin.
type CreateAdminRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
	Name  string `json:"name" validate:"required,max=120"`
	Role  string `json:"role" validate:"required,oneof=admin superadmin"`
}

func (r *CreateAdminRequest) Normalize() {
	if r == nil {
		return
	}
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Name = strings.TrimSpace(r.Name)
	r.Role = strings.ToLower(strings.TrimSpace(r.Role))
}

func (r *CreateAdminRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validation.Validate(r)
}

// ListAdminsResponse is returned by the admin listing endpoint.
type ListAdminsResponse struct {
	Admins []*Admin `json:"admins"`
}

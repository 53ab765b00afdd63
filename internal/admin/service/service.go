// Package service manages back-office admins and answers the auth middleware's
// "is this admin still allowed in" question.
package service

import (
	"context"
	"errors"
	"log/slog"

	"enrollment/internal/admin/models"
	id "enrollment/pkg/domain"
	dErrors "enrollment/pkg/domain-errors"
	"enrollment/pkg/platform/sentinel"
	"enrollment/pkg/requestcontext"
)

// Store persists admins.
// Error Contract:
// - Get/SetActive/ActiveRole return sentinel.ErrNotFound when no active record exists
// - Create returns sentinel.ErrAlreadyUsed for a taken email
type Store interface {
	Create(ctx context.Context, a *models.Admin) error
	Get(ctx context.Context, adminID id.AdminID) (*models.Admin, error)
	List(ctx context.Context) ([]*models.Admin, error)
	SetActive(ctx context.Context, a *models.Admin) error
	ActiveRole(ctx context.Context, adminID id.AdminID) (requestcontext.Role, error)
}

type Service struct {
	store  Store
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(store Store, opts ...Option) *Service {
	svc := &Service{store: store}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	return svc
}

// CreateAdmin registers an admin. Only superadmins and the operator CLI may do this.
func (s *Service) CreateAdmin(ctx context.Context, req *models.CreateAdminRequest) (*models.Admin, error) {
	actor, err := requireManager(ctx)
	if err != nil {
		return nil, err
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	admin := &models.Admin{
		ID:        id.NewAdminID(),
		Email:     req.Email,
		Name:      req.Name,
		Role:      requestcontext.Role(req.Role),
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, admin); err != nil {
		return nil, s.translate(err, "create_admin")
	}
	s.logAudit(ctx, "admin_created", admin, actor)
	return admin, nil
}

// Deactivate disables an admin. Their tokens stop working on the next request.
func (s *Service) Deactivate(ctx context.Context, adminID id.AdminID) (*models.Admin, error) {
	actor, err := requireManager(ctx)
	if err != nil {
		return nil, err
	}
	if actor.ID == adminID.String() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "admins cannot deactivate themselves")
	}
	admin, err := s.store.Get(ctx, adminID)
	if err != nil {
		return nil, s.translate(err, "deactivate_admin")
	}
	if !admin.Active {
		return nil, dErrors.New(dErrors.CodeAlreadyInState, "admin is already inactive")
	}
	admin.Active = false
	admin.UpdatedAt = requestcontext.Now(ctx)
	if err := s.store.SetActive(ctx, admin); err != nil {
		return nil, s.translate(err, "deactivate_admin")
	}
	s.logAudit(ctx, "admin_deactivated", admin, actor)
	return admin, nil
}

func (s *Service) List(ctx context.Context) ([]*models.Admin, error) {
	if _, err := requireManager(ctx); err != nil {
		return nil, err
	}
	admins, err := s.store.List(ctx)
	if err != nil {
		return nil, s.translate(err, "list_admins")
	}
	if admins == nil {
		admins = []*models.Admin{}
	}
	return admins, nil
}

// ActiveRole implements the auth middleware's admin directory. Store errors pass
// through untranslated so the middleware can tell unknown admins from outages.
func (s *Service) ActiveRole(ctx context.Context, adminID id.AdminID) (requestcontext.Role, error) {
	return s.store.ActiveRole(ctx, adminID)
}

func (s *Service) translate(err error, op string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "admin not found")
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.Wrap(err, dErrors.CodeConflict, "an admin with this email already exists")
	default:
		s.logger.Error("admin store operation failed", "operation", op, "error", err)
		return dErrors.Wrap(err, dErrors.CodeInternal, "internal error")
	}
}

func (s *Service) logAudit(ctx context.Context, action string, admin *models.Admin, actor requestcontext.Actor) {
	s.logger.InfoContext(ctx, action,
		"log_type", "audit",
		"admin_id", admin.ID.String(),
		"role", string(admin.Role),
		"actor_id", actor.ID,
		"request_id", requestcontext.RequestID(ctx),
	)
}

func requireManager(ctx context.Context) (requestcontext.Actor, error) {
	actor, ok := requestcontext.ActorFrom(ctx)
	if !ok || actor.ID == "" {
		return requestcontext.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if actor.Role != requestcontext.RoleSuperAdmin && actor.ID != requestcontext.ActorCLI.ID {
		return actor, dErrors.New(dErrors.CodeForbidden, "superadmin role required")
	}
	return actor, nil
}

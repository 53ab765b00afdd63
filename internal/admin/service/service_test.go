package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"enrollment/internal/admin/models"
	"enrollment/internal/admin/store"
	id "enrollment/pkg/domain"
	dErrors "enrollment/pkg/domain-errors"
	"enrollment/pkg/platform/sentinel"
	"enrollment/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	store   *store.InMemoryStore
	service *Service
	super   requestcontext.Actor
	now     time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = store.NewInMemory()
	s.service = New(s.store)
	s.super = requestcontext.Actor{ID: id.NewAdminID().String(), Role: requestcontext.RoleSuperAdmin}
	s.now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
}

func (s *ServiceSuite) ctxAs(actor requestcontext.Actor) context.Context {
	ctx := requestcontext.WithTime(context.Background(), s.now)
	return requestcontext.WithActor(ctx, actor)
}

func (s *ServiceSuite) TestCreateAdminNormalizesInput() {
	admin, err := s.service.CreateAdmin(s.ctxAs(s.super), &models.CreateAdminRequest{
		Email: "  Meera@Example.org ",
		Name:  "Meera",
		Role:  "Admin",
	})
	s.Require().NoError(err)
	s.Equal("meera@example.org", admin.Email)
	s.Equal(requestcontext.RoleAdmin, admin.Role)
	s.True(admin.Active)
	s.Equal(s.now, admin.CreatedAt)
}

func (s *ServiceSuite) TestCreateAdminRules() {
	s.Run("duplicate email conflicts", func() {
		req := &models.CreateAdminRequest{Email: "dup@example.org", Name: "A", Role: "admin"}
		_, err := s.service.CreateAdmin(s.ctxAs(s.super), req)
		s.Require().NoError(err)
		_, err = s.service.CreateAdmin(s.ctxAs(s.super), &models.CreateAdminRequest{Email: "dup@example.org", Name: "B", Role: "admin"})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("unknown role fails validation", func() {
		_, err := s.service.CreateAdmin(s.ctxAs(s.super), &models.CreateAdminRequest{Email: "x@example.org", Name: "X", Role: "system"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("plain admins cannot create admins", func() {
		actor := requestcontext.Actor{ID: id.NewAdminID().String(), Role: requestcontext.RoleAdmin}
		_, err := s.service.CreateAdmin(s.ctxAs(actor), &models.CreateAdminRequest{Email: "y@example.org", Name: "Y", Role: "admin"})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("operator cli may bootstrap", func() {
		_, err := s.service.CreateAdmin(s.ctxAs(requestcontext.ActorCLI), &models.CreateAdminRequest{Email: "root@example.org", Name: "Root", Role: "superadmin"})
		s.NoError(err)
	})

	s.Run("anonymous callers are rejected", func() {
		_, err := s.service.CreateAdmin(context.Background(), &models.CreateAdminRequest{Email: "z@example.org", Name: "Z", Role: "admin"})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *ServiceSuite) TestDeactivateRevokesRole() {
	admin, err := s.service.CreateAdmin(s.ctxAs(s.super), &models.CreateAdminRequest{Email: "meera@example.org", Name: "Meera", Role: "admin"})
	s.Require().NoError(err)

	role, err := s.service.ActiveRole(context.Background(), admin.ID)
	s.Require().NoError(err)
	s.Equal(requestcontext.RoleAdmin, role)

	_, err = s.service.Deactivate(s.ctxAs(s.super), admin.ID)
	s.Require().NoError(err)

	_, err = s.service.ActiveRole(context.Background(), admin.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.service.Deactivate(s.ctxAs(s.super), admin.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadyInState))
}

func (s *ServiceSuite) TestDeactivateEdgeCases() {
	superID, err := id.ParseAdminID(s.super.ID)
	s.Require().NoError(err)
	_, err = s.service.Deactivate(s.ctxAs(s.super), superID)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))

	_, err = s.service.Deactivate(s.ctxAs(s.super), id.NewAdminID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestListReturnsEmptySlice() {
	admins, err := s.service.List(s.ctxAs(s.super))
	s.Require().NoError(err)
	s.NotNil(admins)
	s.Empty(admins)
}

package verification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enrollment/internal/voter/models"
	id "enrollment/pkg/domain"
	dErrors "enrollment/pkg/domain-errors"
	audit "enrollment/pkg/platform/audit"
	"enrollment/pkg/requestcontext"
)

func TestDecideVoter(t *testing.T) {
	tests := []struct {
		name     string
		current  models.VerificationStatus
		target   models.VerificationStatus
		role     requestcontext.Role
		wantCode dErrors.Code
		wantNoOp bool
		action   audit.Action
	}{
		{"verify", models.VerificationUnverified, models.VerificationVerified, requestcontext.RoleAdmin, "", false, audit.ActionVoterVerified},
		{"unverify", models.VerificationVerified, models.VerificationUnverified, requestcontext.RoleSuperAdmin, "", false, audit.ActionVoterUnverified},
		{"already verified", models.VerificationVerified, models.VerificationVerified, requestcontext.RoleAdmin, "", true, audit.ActionVoterVerificationNoop},
		{"system actor", models.VerificationUnverified, models.VerificationVerified, requestcontext.RoleSystem, dErrors.CodeForbidden, false, ""},
		{"unknown target", models.VerificationUnverified, "MAYBE", requestcontext.RoleAdmin, dErrors.CodeInvalidTransition, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := DecideVoter(tt.current, tt.target, tt.role)
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, tt.wantCode))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantNoOp, d.NoOp)
			assert.Equal(t, tt.action, d.Action)
		})
	}
}

func TestApplyVoterKeepsVerificationFieldsTogether(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	admin := id.NewAdminID()
	v := &models.Voter{VerificationStatus: models.VerificationUnverified}

	d, err := DecideVoter(v.VerificationStatus, models.VerificationVerified, requestcontext.RoleAdmin)
	require.NoError(t, err)
	ApplyVoter(v, d, admin, now)
	require.NotNil(t, v.VerifiedBy)
	require.NotNil(t, v.VerifiedAt)
	assert.Equal(t, admin, *v.VerifiedBy)

	d, err = DecideVoter(v.VerificationStatus, models.VerificationUnverified, requestcontext.RoleAdmin)
	require.NoError(t, err)
	ApplyVoter(v, d, admin, now.Add(time.Hour))
	assert.Nil(t, v.VerifiedBy)
	assert.Nil(t, v.VerifiedAt)
	assert.Equal(t, now.Add(time.Hour), v.UpdatedAt)
}

func TestDecideReference(t *testing.T) {
	tests := []struct {
		name         string
		from         models.ReferenceStatus
		sent         bool
		to           models.ReferenceStatus
		wantErr      bool
		wantNotify   bool
		wantOverride bool
	}{
		{"pending to contacted notifies", models.ReferencePending, false, models.ReferenceContacted, false, true, false},
		{"contacted to applied", models.ReferenceContacted, true, models.ReferenceApplied, false, false, false},
		{"revert to pending is an override", models.ReferenceContacted, true, models.ReferencePending, false, false, true},
		{"re-entering contacted after send does not notify", models.ReferencePending, true, models.ReferenceContacted, false, false, false},
		{"skip to applied", models.ReferencePending, false, models.ReferenceApplied, false, false, true},
		{"applied back to contacted without send notifies", models.ReferenceApplied, false, models.ReferenceContacted, false, true, true},
		{"same status", models.ReferenceContacted, false, models.ReferenceContacted, true, false, false},
		{"unknown status", models.ReferencePending, false, "REJECTED", true, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := &models.Reference{Status: tt.from, NotificationSent: tt.sent}
			d, err := DecideReference(ref, tt.to)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantNotify, d.Notify)
			assert.Equal(t, tt.wantOverride, d.Override)
		})
	}
}

func TestApplyReferenceNeverClearsNotificationFlag(t *testing.T) {
	now := time.Now()
	ref := &models.Reference{Status: models.ReferenceContacted, NotificationSent: true}

	d, err := DecideReference(ref, models.ReferencePending)
	require.NoError(t, err)
	ApplyReference(ref, d, now)

	assert.Equal(t, models.ReferencePending, ref.Status)
	assert.True(t, ref.NotificationSent)
	assert.False(t, NeedsNotice(ref))
}

// Package verification holds the state rules for voter verification and reference
// progress. It is pure: callers load the record under lock, ask for a decision, apply it
// and persist the result in the same transaction.
//
// Voter: UNVERIFIED <-> VERIFIED, admin only. Asking for the current state is a no-op
// that is still audited.
//
// Reference: PENDING -> CONTACTED -> APPLIED, with admin override to any other state.
// Entering CONTACTED while no notice has been sent yields Notify. Once NotificationSent
// is true it stays true, so moving back to PENDING and forward again never re-notifies.
package verification

import (
	"fmt"
	"time"

	"enrollment/internal/voter/models"
	id "enrollment/pkg/domain"
	dErrors "enrollment/pkg/domain-errors"
	audit "enrollment/pkg/platform/audit"
	"enrollment/pkg/requestcontext"
)

// VoterDecision is the outcome of a verification request.
type VoterDecision struct {
	From   models.VerificationStatus
	To     models.VerificationStatus
	NoOp   bool
	Action audit.Action
}

// DecideVoter validates a verification change requested by role.
func DecideVoter(current, target models.VerificationStatus, role requestcontext.Role) (VoterDecision, error) {
	if !role.IsAdmin() {
		return VoterDecision{}, dErrors.New(dErrors.CodeForbidden, "only admins can change verification status")
	}
	if !target.IsValid() {
		return VoterDecision{}, dErrors.New(dErrors.CodeInvalidTransition, fmt.Sprintf("unknown verification status %q", target))
	}
	if current == target {
		return VoterDecision{From: current, To: target, NoOp: true, Action: audit.ActionVoterVerificationNoop}, nil
	}
	action := audit.ActionVoterUnverified
	if target == models.VerificationVerified {
		action = audit.ActionVoterVerified
	}
	return VoterDecision{From: current, To: target, Action: action}, nil
}

// ApplyVoter writes a non-no-op decision onto v. Verifying stamps the admin and time;
// un-verifying clears both so they stay null together.
func ApplyVoter(v *models.Voter, d VoterDecision, by id.AdminID, now time.Time) {
	if d.NoOp {
		return
	}
	v.VerificationStatus = d.To
	if d.To == models.VerificationVerified {
		admin := by
		at := now
		v.VerifiedBy = &admin
		v.VerifiedAt = &at
	} else {
		v.VerifiedBy = nil
		v.VerifiedAt = nil
	}
	v.UpdatedAt = now
}

// ReferenceDecision is the outcome of a reference status change.
type ReferenceDecision struct {
	From     models.ReferenceStatus
	To       models.ReferenceStatus
	Override bool // not the next forward step
	Notify   bool // enqueue the one-time contact notice
}

var forward = map[models.ReferenceStatus]models.ReferenceStatus{
	models.ReferencePending:   models.ReferenceContacted,
	models.ReferenceContacted: models.ReferenceApplied,
}

// DecideReference validates moving ref to status to.
func DecideReference(ref *models.Reference, to models.ReferenceStatus) (ReferenceDecision, error) {
	if !to.IsValid() {
		return ReferenceDecision{}, dErrors.New(dErrors.CodeInvalidTransition, fmt.Sprintf("unknown reference status %q", to))
	}
	if ref.Status == to {
		return ReferenceDecision{}, dErrors.New(dErrors.CodeInvalidTransition, fmt.Sprintf("reference is already %s", to))
	}
	return ReferenceDecision{
		From:     ref.Status,
		To:       to,
		Override: forward[ref.Status] != to,
		Notify:   to == models.ReferenceContacted && !ref.NotificationSent,
	}, nil
}

// ApplyReference writes the decision onto ref. The notification flag is not touched.
func ApplyReference(ref *models.Reference, d ReferenceDecision, now time.Time) {
	ref.Status = d.To
	ref.StatusUpdatedAt = now
}

// NeedsNotice reports whether a queued contact notice for ref should still go out.
// APPLIED counts too: the reference may have moved on before the job ran.
func NeedsNotice(ref *models.Reference) bool {
	if ref.NotificationSent {
		return false
	}
	return ref.Status == models.ReferenceContacted || ref.Status == models.ReferenceApplied
}

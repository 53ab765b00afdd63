package audit

import (
	"encoding/json"
	"time"

	id "enrollment/pkg/domain"
)

// EntityType names the kind of record an audit entry describes.
type EntityType string

const (
	EntityVoter     EntityType = "voter"
	EntityReference EntityType = "reference"
)

// Action is the audited operation.
type Action string

const (
	ActionVoterCreated           Action = "voter_created"
	ActionVoterUpdated           Action = "voter_updated"
	ActionVoterVerified          Action = "voter_verified"
	ActionVoterUnverified        Action = "voter_unverified"
	ActionVoterVerificationNoop  Action = "voter_verification_noop"
	ActionVoterDeleted           Action = "voter_deleted"
	ActionReferenceCreated       Action = "reference_created"
	ActionReferenceStatusChanged Action = "reference_status_changed"
	ActionNotificationSent       Action = "notification_sent"
	ActionNotificationFailed     Action = "notification_failed"
)

// Entry is one immutable row of the audit trail. Before and After hold JSON
// snapshots of the fields the action touched; either may be empty.
type Entry struct {
	ID         id.AuditID      `json:"id"`
	EntityType EntityType      `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Action     Action          `json:"action"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	ActorID    string          `json:"actor_id"`
	ActorRole  string          `json:"actor_role"`
	ActorIP    string          `json:"actor_ip,omitempty"`
	Device     string          `json:"device,omitempty"`
	RequestID  string          `json:"request_id,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Snapshot marshals v for use as Before/After. Marshalling failures yield an
// empty snapshot; callers pass plain structs so this does not happen in practice.
func Snapshot(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"github.com/google/uuid"

	dErrors "enrollment/pkg/domain-errors"
)

// Distinct ID types - compiler prevents passing VoterID where ReferenceID is expected.
type (
	VoterID     uuid.UUID
	ReferenceID uuid.UUID
	AdminID     uuid.UUID
	AuditID     uuid.UUID
)

// New* helpers mint fresh random identifiers.

func NewVoterID() VoterID         { return VoterID(uuid.New()) }
func NewReferenceID() ReferenceID { return ReferenceID(uuid.New()) }
func NewAdminID() AdminID         { return AdminID(uuid.New()) }
func NewAuditID() AuditID         { return AuditID(uuid.New()) }

// Parse functions - use at trust boundaries (handlers, API inputs).

func ParseVoterID(s string) (VoterID, error) {
	id, err := parseUUID(s, "voter ID")
	return VoterID(id), err
}

func ParseReferenceID(s string) (ReferenceID, error) {
	id, err := parseUUID(s, "reference ID")
	return ReferenceID(id), err
}

func ParseAdminID(s string) (AdminID, error) {
	id, err := parseUUID(s, "admin ID")
	return AdminID(id), err
}

// String methods - for logging and debugging.

func (id VoterID) String() string     { return uuid.UUID(id).String() }
func (id ReferenceID) String() string { return uuid.UUID(id).String() }
func (id AdminID) String() string     { return uuid.UUID(id).String() }
func (id AuditID) String() string     { return uuid.UUID(id).String() }

// IsNil checks - used for service-layer validation.

func (id VoterID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id ReferenceID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id AdminID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }

// MarshalText lets typed IDs appear as plain UUID strings in JSON payloads.

func (id VoterID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id ReferenceID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id AdminID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id AuditID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }

func (id *VoterID) UnmarshalText(b []byte) error     { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ReferenceID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *AdminID) UnmarshalText(b []byte) error     { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *AuditID) UnmarshalText(b []byte) error     { return (*uuid.UUID)(id).UnmarshalText(b) }

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, label+" cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, "invalid "+label+" format")
	}
	if id == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, label+" cannot be nil")
	}
	return id, nil
}

package models

import (
	"time"

	id "enrollment/pkg/domain"
)

// VerificationStatus is the admin verification state of a voter record.
type VerificationStatus string

const (
	VerificationUnverified VerificationStatus = "UNVERIFIED"
	VerificationVerified   VerificationStatus = "VERIFIED"
)

// IsValid returns true if the status is one of the supported values.
func (s VerificationStatus) IsValid() bool {
	return s == VerificationUnverified || s == VerificationVerified
}

// ReferenceStatus tracks how far a referred contact has progressed.
type ReferenceStatus string

const (
	ReferencePending   ReferenceStatus = "PENDING"
	ReferenceContacted ReferenceStatus = "CONTACTED"
	ReferenceApplied   ReferenceStatus = "APPLIED"
)

// IsValid returns true if the status is one of the supported values.
func (s ReferenceStatus) IsValid() bool {
	switch s {
	case ReferencePending, ReferenceContacted, ReferenceApplied:
		return true
	}
	return false
}

// Demographics holds the personal details captured at enrollment.
type Demographics struct {
	DateOfBirth  string `json:"date_of_birth" validate:"required,datetime=2006-01-02"`
	Gender       string `json:"gender" validate:"required,oneof=male female other"`
	Mobile       string `json:"mobile" validate:"required,phone"`
	Email        string `json:"email,omitempty" validate:"omitempty,email,max=254"`
	GuardianName string `json:"guardian_name,omitempty" validate:"max=120"`
}

// Address is the residential address of the voter.
type Address struct {
	Line1    string `json:"line1" validate:"required,notblank,max=200"`
	Line2    string `json:"line2,omitempty" validate:"max=200"`
	City     string `json:"city" validate:"required,notblank,max=100"`
	District string `json:"district" validate:"required,notblank,max=100"`
	State    string `json:"state" validate:"required,notblank,max=100"`
	PinCode  string `json:"pin_code" validate:"required,pincode"`
}

// Elector is the electoral-roll registration of a voter. Its fields are either all
// populated (IsRegisteredElector) or all empty.
type Elector struct {
	EpicNumber           string `json:"epic_number" validate:"omitempty,epic"`
	AssemblyConstituency string `json:"assembly_constituency" validate:"max=120"`
	PollingStation       string `json:"polling_station" validate:"max=120"`
}

// IsEmpty reports whether no elector field is populated.
func (e *Elector) IsEmpty() bool {
	return e == nil || (e.EpicNumber == "" && e.AssemblyConstituency == "" && e.PollingStation == "")
}

// IsComplete reports whether every elector field is populated.
func (e *Elector) IsComplete() bool {
	return e != nil && e.EpicNumber != "" && e.AssemblyConstituency != "" && e.PollingStation != ""
}

// Education is the highest qualification declared by the voter.
type Education struct {
	Qualification string `json:"qualification" validate:"max=120"`
	Institution   string `json:"institution,omitempty" validate:"max=200"`
	YearOfPassing int    `json:"year_of_passing,omitempty" validate:"omitempty,min=1900,max=2100"`
}

// Document points at an uploaded blob in the object store.
type Document struct {
	Kind string `json:"kind" validate:"required,oneof=photo identity_proof address_proof education_proof other"`
	Key  string `json:"key" validate:"required,notblank,max=512"`
}

// Voter is the canonical enrollment record. It is the root aggregate: references and
// documents belong to exactly one voter and go away with it.
//
// Invariants:
//   - IdentityNumber is unique and never reassigned once set
//   - VerifiedBy and VerifiedAt are both nil or both set
//   - Elector is non-nil and complete iff IsRegisteredElector
type Voter struct {
	ID                  id.VoterID         `json:"id"`
	IdentityNumber      string             `json:"identity_number"`
	FullName            string             `json:"full_name"`
	Demographics        Demographics       `json:"demographics"`
	Address             Address            `json:"address"`
	IsRegisteredElector bool               `json:"is_registered_elector"`
	Elector             *Elector           `json:"elector,omitempty"`
	Education           Education          `json:"education"`
	Documents           []Document         `json:"documents,omitempty"`
	VerificationStatus  VerificationStatus `json:"verification_status"`
	VerifiedBy          *id.AdminID        `json:"verified_by,omitempty"`
	VerifiedAt          *time.Time         `json:"verified_at,omitempty"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

// IsVerified reports whether an admin has verified the record.
func (v *Voter) IsVerified() bool {
	return v.VerificationStatus == VerificationVerified
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (v *Voter) Clone() *Voter {
	if v == nil {
		return nil
	}
	out := *v
	if v.Elector != nil {
		e := *v.Elector
		out.Elector = &e
	}
	if v.Documents != nil {
		out.Documents = append([]Document(nil), v.Documents...)
	}
	if v.VerifiedBy != nil {
		by := *v.VerifiedBy
		out.VerifiedBy = &by
	}
	if v.VerifiedAt != nil {
		at := *v.VerifiedAt
		out.VerifiedAt = &at
	}
	return &out
}

// VerificationSnapshot is the audit view of the verification fields.
type VerificationSnapshot struct {
	Status     VerificationStatus `json:"verification_status"`
	VerifiedBy *id.AdminID        `json:"verified_by,omitempty"`
	VerifiedAt *time.Time         `json:"verified_at,omitempty"`
}

// Verification returns the current verification fields.
func (v *Voter) Verification() VerificationSnapshot {
	return VerificationSnapshot{Status: v.VerificationStatus, VerifiedBy: v.VerifiedBy, VerifiedAt: v.VerifiedAt}
}

// Reference is a contact referred by a voter during enrollment.
//
// NotificationSent is monotonic: once true it never goes back to false, even when
// an admin moves the status back to PENDING. The dispatcher relies on this to send
// at most one contact notice per reference.
type Reference struct {
	ID                 id.ReferenceID  `json:"id"`
	VoterID            id.VoterID      `json:"voter_id"`
	Name               string          `json:"name"`
	Contact            string          `json:"contact"`
	Status             ReferenceStatus `json:"status"`
	NotificationSent   bool            `json:"notification_sent"`
	NotificationSentAt *time.Time      `json:"notification_sent_at,omitempty"`
	NotifyAttempts     int             `json:"notify_attempts"`
	NextNotifyAt       *time.Time      `json:"next_notify_at,omitempty"`
	StatusUpdatedAt    time.Time       `json:"status_updated_at"`
	CreatedAt          time.Time       `json:"created_at"`
}

// Clone returns a copy of the reference.
func (r *Reference) Clone() *Reference {
	if r == nil {
		return nil
	}
	out := *r
	if r.NotificationSentAt != nil {
		at := *r.NotificationSentAt
		out.NotificationSentAt = &at
	}
	if r.NextNotifyAt != nil {
		at := *r.NextNotifyAt
		out.NextNotifyAt = &at
	}
	return &out
}

// StatusSnapshot is the audit view of a reference status change.
type StatusSnapshot struct {
	Status           ReferenceStatus `json:"status"`
	NotificationSent bool            `json:"notification_sent"`
}

// Snapshot returns the audit view of the reference state.
func (r *Reference) Snapshot() StatusSnapshot {
	return StatusSnapshot{Status: r.Status, NotificationSent: r.NotificationSent}
}

// VoterVersion pairs a voter id with its last canonical modification time.
type VoterVersion struct {
	ID        id.VoterID
	UpdatedAt time.Time
}

// PendingNotification is a reference that qualifies for a contact notice but has not
// been sent one yet.
type PendingNotification struct {
	ReferenceID     id.ReferenceID
	VoterID         id.VoterID
	Status          ReferenceStatus
	StatusUpdatedAt time.Time
	NotifyAttempts  int
}

// PendingQuery selects notices owed by the retry worker. A reference qualifies when its
// status changed before StatusBefore, it has failed fewer than MaxAttempts times and
// its next attempt is due by DueBy. Results are ordered by due time.
type PendingQuery struct {
	StatusBefore time.Time
	DueBy        time.Time
	MaxAttempts  int
	Limit        int
}

// VoterDetail is a voter together with its references, as returned by reads.
type VoterDetail struct {
	*Voter
	References   []*Reference      `json:"references"`
	DocumentURLs map[string]string `json:"document_urls,omitempty"`
}

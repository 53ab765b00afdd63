package search

import (
	"time"

	dErrors "enrollment/pkg/domain-errors"
	"enrollment/pkg/validation"
)

// Document is the denormalized search projection of a voter and its references.
// It is derived and disposable: the canonical store can rebuild it at any time.
type Document struct {
	VoterID              string         `json:"voter_id"`
	IdentityNumber       string         `json:"identity_number"`
	FullName             string         `json:"full_name"`
	Mobile               string         `json:"mobile"`
	City                 string         `json:"city"`
	District             string         `json:"district"`
	State                string         `json:"state"`
	PinCode              string         `json:"pin_code"`
	EpicNumber           string         `json:"epic_number,omitempty"`
	AssemblyConstituency string         `json:"assembly_constituency,omitempty"`
	PollingStation       string         `json:"polling_station,omitempty"`
	VerificationStatus   string         `json:"verification_status"`
	References           []ReferenceDoc `json:"references,omitempty"`
	SourceUpdatedAt      time.Time      `json:"source_updated_at"`
}

// ReferenceDoc is the searchable part of a reference.
type ReferenceDoc struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Contact string `json:"contact"`
	Status  string `json:"status"`
}

// Version is the ordering key of a document: the canonical updated_at in microseconds,
// the precision Postgres stores.
func (d Document) Version() int64 {
	return VersionOf(d.SourceUpdatedAt)
}

// VersionOf converts a canonical timestamp into an index version.
func VersionOf(t time.Time) int64 {
	return t.UnixMicro()
}

// Query selects documents by field. Every supplied field must match.
type Query struct {
	Name               string `json:"name,omitempty"`
	IdentityNumber     string `json:"identity_number,omitempty"`
	Contact            string `json:"contact,omitempty"`
	VerificationStatus string `json:"verification_status,omitempty"`
	ReferenceStatus    string `json:"reference_status,omitempty"`
	Assembly           string `json:"assembly,omitempty"`
	PollingStation     string `json:"polling_station,omitempty"`
	Limit              int    `json:"limit,omitempty"`
	Offset             int    `json:"offset,omitempty"`
}

// Validate rejects queries with no filter; the index does not support full scans.
func (q *Query) Validate() error {
	if len(QueryTerms(*q)) == 0 {
		return dErrors.NewValidation("at least one search field is required")
	}
	if q.Offset < 0 {
		return dErrors.NewValidation("offset must not be negative",
			dErrors.FieldError{Field: "offset", Reason: "must be at least 0"})
	}
	q.Limit = validation.ClampPageSize(q.Limit, 20)
	return nil
}

// Result is one page of matching documents.
type Result struct {
	Total     int        `json:"total"`
	Documents []Document `json:"documents"`
}

package models

import (
	"fmt"
	"strings"

	dErrors "enrollment/pkg/domain-errors"
	s "enrollment/pkg/string"
	"enrollment/pkg/validation"
)

// ReferenceInput is a referred contact supplied at enrollment or added later.
type ReferenceInput struct {
	Name    string `json:"name" validate:"required,notblank,max=120"`
	Contact string `json:"contact" validate:"required,phone"`
}

func (r *ReferenceInput) normalize() {
	r.Name = s.CollapseSpaces(r.Name)
	r.Contact = s.DigitsOnly(r.Contact)
}

// CreateVoterRequest is the enrollment form. It is used by the public intake
// endpoint and by admins entering records on a voter's behalf.
type CreateVoterRequest struct {
	IdentityNumber      string           `json:"identity_number" validate:"required,identity12"`
	FullName            string           `json:"full_name" validate:"required,notblank,max=120"`
	Demographics        Demographics     `json:"demographics"`
	Address             Address          `json:"address"`
	IsRegisteredElector bool             `json:"is_registered_elector"`
	Elector             *Elector         `json:"elector,omitempty"`
	Education           Education        `json:"education"`
	Documents           []Document       `json:"documents,omitempty" validate:"max=20,dive"`
	References          []ReferenceInput `json:"references,omitempty" validate:"max=10,dive"`
}

// Normalize trims whitespace and canonicalizes numbers so validation and the unique
// identity constraint see the same value regardless of input formatting.
func (r *CreateVoterRequest) Normalize() {
	if r == nil {
		return
	}
	r.IdentityNumber = normalizeIdentity(r.IdentityNumber)
	r.FullName = s.CollapseSpaces(r.FullName)
	normalizeDemographics(&r.Demographics)
	normalizeAddress(&r.Address)
	r.Elector = normalizeElector(r.Elector)
	normalizeEducation(&r.Education)
	normalizeDocuments(r.Documents)
	for i := range r.References {
		r.References[i].normalize()
	}
}

// Validate checks the request shape and the elector all-or-none rule. Every rejected
// field is reported, not only the first.
func (r *CreateVoterRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	var fields []dErrors.FieldError
	if err := validation.Validate(r); err != nil {
		found := dErrors.FieldsOf(err)
		if len(found) == 0 {
			return err
		}
		fields = append(fields, found...)
	}
	fields = append(fields, electorFieldErrors(r.IsRegisteredElector, r.Elector)...)
	fields = append(fields, duplicateContactErrors(r.References)...)
	return fieldsError(fields)
}

// Voter builds the record described by the request. IDs and timestamps are set by the service.
func (r *CreateVoterRequest) Voter() *Voter {
	v := &Voter{
		IdentityNumber:      r.IdentityNumber,
		FullName:            r.FullName,
		Demographics:        r.Demographics,
		Address:             r.Address,
		IsRegisteredElector: r.IsRegisteredElector,
		Education:           r.Education,
		Documents:           append([]Document(nil), r.Documents...),
		VerificationStatus:  VerificationUnverified,
	}
	if r.IsRegisteredElector && r.Elector != nil {
		e := *r.Elector
		v.Elector = &e
	}
	return v
}

// UpdateVoterRequest is a partial update. Nil fields are left unchanged. Verification
// fields are not part of the patch; they change only through SetVerification.
type UpdateVoterRequest struct {
	IdentityNumber      *string       `json:"identity_number,omitempty"`
	FullName            *string       `json:"full_name,omitempty" validate:"omitempty,notblank,max=120"`
	Demographics        *Demographics `json:"demographics,omitempty"`
	Address             *Address      `json:"address,omitempty"`
	IsRegisteredElector *bool         `json:"is_registered_elector,omitempty"`
	Elector             *Elector      `json:"elector,omitempty"`
	Education           *Education    `json:"education,omitempty"`
	Documents           []Document    `json:"documents,omitempty" validate:"omitempty,max=20,dive"`
}

// Normalize trims and canonicalizes the supplied fields.
func (r *UpdateVoterRequest) Normalize() {
	if r == nil {
		return
	}
	if r.IdentityNumber != nil {
		v := normalizeIdentity(*r.IdentityNumber)
		r.IdentityNumber = &v
	}
	if r.FullName != nil {
		v := s.CollapseSpaces(*r.FullName)
		r.FullName = &v
	}
	if r.Demographics != nil {
		normalizeDemographics(r.Demographics)
	}
	if r.Address != nil {
		normalizeAddress(r.Address)
	}
	r.Elector = normalizeElector(r.Elector)
	if r.Education != nil {
		normalizeEducation(r.Education)
	}
	normalizeDocuments(r.Documents)
}

// Validate checks the supplied fields in isolation.
func (r *UpdateVoterRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.IsEmpty() {
		return dErrors.NewValidation("at least one field must be supplied")
	}
	return validation.Validate(r)
}

// IsEmpty reports whether the patch changes nothing.
func (r *UpdateVoterRequest) IsEmpty() bool {
	return r.IdentityNumber == nil && r.FullName == nil && r.Demographics == nil && r.Address == nil &&
		r.IsRegisteredElector == nil && r.Elector == nil && r.Education == nil && r.Documents == nil
}

// Apply merges the patch into v and re-checks the record-level invariants on the result.
// The identity number is immutable: supplying a different one is a validation error.
func (r *UpdateVoterRequest) Apply(v *Voter) error {
	var fields []dErrors.FieldError
	if r.IdentityNumber != nil && *r.IdentityNumber != v.IdentityNumber {
		fields = append(fields, dErrors.FieldError{Field: "identity_number", Reason: "cannot be changed"})
	}
	if r.FullName != nil {
		v.FullName = *r.FullName
	}
	if r.Demographics != nil {
		v.Demographics = *r.Demographics
	}
	if r.Address != nil {
		v.Address = *r.Address
	}
	if r.IsRegisteredElector != nil {
		v.IsRegisteredElector = *r.IsRegisteredElector
		if !v.IsRegisteredElector && r.Elector == nil {
			v.Elector = nil
		}
	}
	if r.Elector != nil {
		e := *r.Elector
		v.Elector = &e
	}
	if r.Education != nil {
		v.Education = *r.Education
	}
	if r.Documents != nil {
		v.Documents = append([]Document(nil), r.Documents...)
	}
	fields = append(fields, electorFieldErrors(v.IsRegisteredElector, v.Elector)...)
	if err := fieldsError(fields); err != nil {
		return err
	}
	if !v.IsRegisteredElector {
		v.Elector = nil
	}
	return nil
}

// SetVerificationRequest verifies or un-verifies a voter.
type SetVerificationRequest struct {
	Verified *bool `json:"verified" validate:"required"`
}

// Validate checks that the request is well-formed.
func (r *SetVerificationRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validation.Validate(r)
}

// Target returns the requested verification status.
func (r *SetVerificationRequest) Target() VerificationStatus {
	if r.Verified != nil && *r.Verified {
		return VerificationVerified
	}
	return VerificationUnverified
}

// AddReferencesRequest attaches more referred contacts to an existing voter.
type AddReferencesRequest struct {
	References []ReferenceInput `json:"references" validate:"required,min=1,max=10,dive"`
}

// Normalize trims and canonicalizes the references.
func (r *AddReferencesRequest) Normalize() {
	if r == nil {
		return
	}
	for i := range r.References {
		r.References[i].normalize()
	}
}

// Validate checks that the request is well-formed.
func (r *AddReferencesRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	var fields []dErrors.FieldError
	if err := validation.Validate(r); err != nil {
		found := dErrors.FieldsOf(err)
		if len(found) == 0 {
			return err
		}
		fields = append(fields, found...)
	}
	fields = append(fields, duplicateContactErrors(r.References)...)
	return fieldsError(fields)
}

// SetReferenceStatusRequest moves one reference to a new status. Unknown statuses are
// rejected by the state machine rather than by shape validation.
type SetReferenceStatusRequest struct {
	Status ReferenceStatus `json:"status" validate:"required"`
}

// Normalize upper-cases the status.
func (r *SetReferenceStatusRequest) Normalize() {
	if r == nil {
		return
	}
	r.Status = ReferenceStatus(strings.ToUpper(strings.TrimSpace(string(r.Status))))
}

// Validate checks that the request is well-formed.
func (r *SetReferenceStatusRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validation.Validate(r)
}

// BulkStatusItem is one entry of a bulk reference status update.
type BulkStatusItem struct {
	ReferenceID string          `json:"reference_id" validate:"required,uuid"`
	Status      ReferenceStatus `json:"status" validate:"required"`
}

// BulkReferenceStatusRequest updates many references. Items are applied one by one;
// a failing item does not undo the others.
type BulkReferenceStatusRequest struct {
	Items []BulkStatusItem `json:"items" validate:"required,min=1,max=500,dive"`
}

// Normalize upper-cases every status.
func (r *BulkReferenceStatusRequest) Normalize() {
	if r == nil {
		return
	}
	for i := range r.Items {
		r.Items[i].ReferenceID = strings.TrimSpace(r.Items[i].ReferenceID)
		r.Items[i].Status = ReferenceStatus(strings.ToUpper(strings.TrimSpace(string(r.Items[i].Status))))
	}
}

// Validate checks that the request is well-formed.
func (r *BulkReferenceStatusRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validation.Validate(r)
}

// BulkStatusResult reports the outcome of one bulk item.
type BulkStatusResult struct {
	ReferenceID string     `json:"reference_id"`
	Status      string     `json:"status,omitempty"`
	OK          bool       `json:"ok"`
	Error       *ItemError `json:"error,omitempty"`
}

// ItemError is the error part of a bulk item result.
type ItemError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ListVotersFilter narrows and pages the voter listing.
type ListVotersFilter struct {
	VerificationStatus *VerificationStatus
	Limit              int
	Offset             int
}

// Page is one page of a voter listing.
type Page struct {
	Voters []*Voter `json:"voters"`
	Total  int      `json:"total"`
	Limit  int      `json:"limit"`
	Offset int      `json:"offset"`
}

func normalizeIdentity(v string) string {
	v = strings.TrimSpace(v)
	return strings.NewReplacer(" ", "", "-", "").Replace(v)
}

func normalizeDemographics(d *Demographics) {
	s.TrimStrings(&d.DateOfBirth, &d.GuardianName)
	d.Gender = strings.ToLower(strings.TrimSpace(d.Gender))
	d.Mobile = s.DigitsOnly(d.Mobile)
	d.Email = strings.ToLower(strings.TrimSpace(d.Email))
	d.GuardianName = s.CollapseSpaces(d.GuardianName)
}

func normalizeAddress(a *Address) {
	s.TrimStrings(&a.Line1, &a.Line2, &a.City, &a.District, &a.State, &a.PinCode)
}

func normalizeElector(e *Elector) *Elector {
	if e == nil {
		return nil
	}
	e.EpicNumber = strings.ToUpper(strings.TrimSpace(e.EpicNumber))
	e.AssemblyConstituency = s.CollapseSpaces(e.AssemblyConstituency)
	e.PollingStation = s.CollapseSpaces(e.PollingStation)
	return e
}

func normalizeEducation(e *Education) {
	s.TrimStrings(&e.Qualification, &e.Institution)
}

func normalizeDocuments(docs []Document) {
	for i := range docs {
		s.TrimStrings(&docs[i].Kind, &docs[i].Key)
		docs[i].Kind = strings.ToLower(docs[i].Kind)
	}
}

// electorFieldErrors enforces the all-or-none rule for the elector sub-record.
func electorFieldErrors(registered bool, e *Elector) []dErrors.FieldError {
	if registered {
		var out []dErrors.FieldError
		if e == nil {
			e = &Elector{}
		}
		if e.EpicNumber == "" {
			out = append(out, dErrors.FieldError{Field: "elector.epic_number", Reason: "is required"})
		}
		if e.AssemblyConstituency == "" {
			out = append(out, dErrors.FieldError{Field: "elector.assembly_constituency", Reason: "is required"})
		}
		if e.PollingStation == "" {
			out = append(out, dErrors.FieldError{Field: "elector.polling_station", Reason: "is required"})
		}
		return out
	}
	if !e.IsEmpty() {
		return []dErrors.FieldError{{Field: "elector", Reason: "must be empty unless is_registered_elector is true"}}
	}
	return nil
}

func duplicateContactErrors(refs []ReferenceInput) []dErrors.FieldError {
	var out []dErrors.FieldError
	seen := make(map[string]struct{}, len(refs))
	for i, ref := range refs {
		if ref.Contact == "" {
			continue
		}
		if _, ok := seen[ref.Contact]; ok {
			out = append(out, dErrors.FieldError{Field: fmt.Sprintf("references[%d].contact", i), Reason: "is duplicated"})
			continue
		}
		seen[ref.Contact] = struct{}{}
	}
	return out
}

func fieldsError(fields []dErrors.FieldError) error {
	if len(fields) == 0 {
		return nil
	}
	msg := fields[0].Field + " " + fields[0].Reason
	if len(fields) > 1 {
		msg = fmt.Sprintf("%s (and %d more)", msg, len(fields)-1)
	}
	return dErrors.NewValidation(msg, fields...)
}

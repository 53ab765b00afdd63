package search

import (
	"slices"
	"strings"

	"enrollment/internal/voter/models"
	s "enrollment/pkg/string"
)

// Term fields.
const (
	FieldName            = "name"
	FieldIdentity        = "identity"
	FieldContact         = "contact"
	FieldVerification    = "vstatus"
	FieldReferenceStatus = "rstatus"
	FieldAssembly        = "assembly"
	FieldStation         = "station"
)

// Project maps a voter and its references onto a search document. It is a pure
// function: the same input always yields the same document.
func Project(v *models.Voter, refs []*models.Reference) Document {
	doc := Document{
		VoterID:            v.ID.String(),
		IdentityNumber:     v.IdentityNumber,
		FullName:           v.FullName,
		Mobile:             v.Demographics.Mobile,
		City:               v.Address.City,
		District:           v.Address.District,
		State:              v.Address.State,
		PinCode:            v.Address.PinCode,
		VerificationStatus: string(v.VerificationStatus),
		SourceUpdatedAt:    v.UpdatedAt.UTC(),
	}
	if v.IsRegisteredElector && v.Elector != nil {
		doc.EpicNumber = v.Elector.EpicNumber
		doc.AssemblyConstituency = v.Elector.AssemblyConstituency
		doc.PollingStation = v.Elector.PollingStation
	}
	for _, ref := range refs {
		doc.References = append(doc.References, ReferenceDoc{
			ID:      ref.ID.String(),
			Name:    ref.Name,
			Contact: ref.Contact,
			Status:  string(ref.Status),
		})
	}
	return doc
}

// Terms returns the sorted, de-duplicated index terms of a document.
func Terms(doc Document) []string {
	var terms []string
	add := func(field, value string) {
		if value = normalizeTerm(value); value != "" {
			terms = append(terms, field+":"+value)
		}
	}

	for _, tok := range nameTokens(doc.FullName) {
		add(FieldName, tok)
	}
	add(FieldIdentity, doc.IdentityNumber)
	add(FieldContact, contactKey(doc.Mobile))
	add(FieldVerification, doc.VerificationStatus)
	add(FieldAssembly, doc.AssemblyConstituency)
	add(FieldStation, doc.PollingStation)
	for _, ref := range doc.References {
		add(FieldContact, contactKey(ref.Contact))
		add(FieldReferenceStatus, ref.Status)
	}

	slices.Sort(terms)
	return slices.Compact(terms)
}

// QueryTerms returns the terms a document must carry to match q.
func QueryTerms(q Query) []string {
	var terms []string
	add := func(field, value string) {
		if value = normalizeTerm(value); value != "" {
			terms = append(terms, field+":"+value)
		}
	}

	for _, tok := range nameTokens(q.Name) {
		add(FieldName, tok)
	}
	add(FieldIdentity, strings.NewReplacer(" ", "", "-", "").Replace(q.IdentityNumber))
	add(FieldContact, contactKey(q.Contact))
	add(FieldVerification, q.VerificationStatus)
	add(FieldReferenceStatus, q.ReferenceStatus)
	add(FieldAssembly, q.Assembly)
	add(FieldStation, q.PollingStation)

	slices.Sort(terms)
	return slices.Compact(terms)
}

func nameTokens(name string) []string {
	return strings.Fields(strings.ToLower(name))
}

// contactKey reduces a phone number to its last ten digits so "+91 98765 43210" and
// "9876543210" meet on the same term.
func contactKey(v string) string {
	d := strings.TrimPrefix(s.DigitsOnly(v), "+")
	if len(d) > 10 {
		d = d[len(d)-10:]
	}
	return d
}

func normalizeTerm(v string) string {
	return strings.ToLower(s.CollapseSpaces(v))
}

package models

// Follow-up job types written to the outbox in the same transaction as the mutation
// that caused them.
const (
	// EventVoterProjection asks the search projector to re-read the voter and refresh
	// (or remove) its search document.
	EventVoterProjection = "voter.projection"

	// EventReferenceContacted asks the notification dispatcher to send the one-time
	// contact notice for a reference.
	EventReferenceContacted = "reference.contacted"
)

// Outbox aggregate types.
const (
	AggregateVoter     = "voter"
	AggregateReference = "reference"
)

// ProjectionPayload is the body of a voter.projection job. The handler always re-reads
// canonical state, so the payload only names the record.
type ProjectionPayload struct {
	VoterID string `json:"voter_id"`
}

// ContactedPayload is the body of a reference.contacted job.
type ContactedPayload struct {
	ReferenceID string `json:"reference_id"`
	VoterID     string `json:"voter_id"`
}

package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Entry represents a pending follow-up job in the outbox table.
// It is written in the same transaction as the mutation that caused it and
// becomes visible to workers only after that transaction commits.
type Entry struct {
	ID            uuid.UUID
	AggregateType string // e.g. "voter", "reference"
	AggregateID   string
	EventType     string // e.g. "voter.projection"
	Payload       []byte // JSON-encoded event payload
	CreatedAt     time.Time
	Attempts      int
	LastError     string
	ProcessedAt   *time.Time // NULL = pending
	DeadAt        *time.Time // set once the entry exhausts its attempts
}

// IsPending returns true if this entry has not been processed or dead-lettered.
func (e *Entry) IsPending() bool {
	return e.ProcessedAt == nil && e.DeadAt == nil
}

// NewEntry creates a new outbox entry with a generated UUID.
func NewEntry(aggregateType, aggregateID, eventType string, payload []byte, now time.Time) *Entry {
	return &Entry{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     now,
	}
}

// NewJSONEntry marshals payload and wraps it in an entry.
func NewJSONEntry(aggregateType, aggregateID, eventType string, payload any, now time.Time) (*Entry, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return NewEntry(aggregateType, aggregateID, eventType, b, now), nil
}

// Decode unmarshals the entry payload into v.
func (e *Entry) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return Permanent(fmt.Errorf("decode %s payload: %w", e.EventType, err))
	}
	return nil
}

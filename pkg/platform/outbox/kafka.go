package outbox

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"enrollment/internal/platform/kafka/producer"
)

// Kafka header names carried by published entries.
const (
	HeaderEntryID       = "entry_id"
	HeaderEventType     = "event_type"
	HeaderAggregateType = "aggregate_type"
	HeaderAggregateID   = "aggregate_id"
	HeaderCreatedAt     = "created_at"
)

// Producer is the subset of the Kafka producer the sink needs.
type Producer interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// PublisherSink publishes entries to a Kafka topic instead of handling them in-process.
// Messages are keyed by aggregate so jobs for one record stay on one partition.
type PublisherSink struct {
	producer Producer
	topic    string
}

// NewPublisherSink creates a sink publishing to topic.
func NewPublisherSink(p Producer, topic string) *PublisherSink {
	return &PublisherSink{producer: p, topic: topic}
}

// Deliver publishes entry synchronously.
func (s *PublisherSink) Deliver(ctx context.Context, entry *Entry) error {
	return s.producer.Produce(ctx, &producer.Message{
		Topic: s.topic,
		Key:   []byte(entry.AggregateType + ":" + entry.AggregateID),
		Value: entry.Payload,
		Headers: map[string]string{
			HeaderEntryID:       entry.ID.String(),
			HeaderEventType:     entry.EventType,
			HeaderAggregateType: entry.AggregateType,
			HeaderAggregateID:   entry.AggregateID,
			HeaderCreatedAt:     strconv.FormatInt(entry.CreatedAt.UnixNano(), 10),
		},
	})
}

// EntryFromMessage rebuilds an entry from a consumed Kafka message.
func EntryFromMessage(headers map[string]string, value []byte) (*Entry, error) {
	entryID, err := uuid.Parse(headers[HeaderEntryID])
	if err != nil {
		return nil, Permanent(fmt.Errorf("invalid %s header: %w", HeaderEntryID, err))
	}
	if headers[HeaderEventType] == "" {
		return nil, Permanent(fmt.Errorf("missing %s header", HeaderEventType))
	}
	entry := &Entry{
		ID:            entryID,
		AggregateType: headers[HeaderAggregateType],
		AggregateID:   headers[HeaderAggregateID],
		EventType:     headers[HeaderEventType],
		Payload:       value,
	}
	if nanos, err := strconv.ParseInt(headers[HeaderCreatedAt], 10, 64); err == nil {
		entry.CreatedAt = time.Unix(0, nanos).UTC()
	}
	return entry, nil
}

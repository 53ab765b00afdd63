// Package followup routes outbox jobs to the search projector and the notification
// dispatcher, either in-process or behind the Kafka consumer.
package followup

import (
	"context"
	"fmt"
	"log/slog"

	"enrollment/internal/platform/kafka/consumer"
	"enrollment/internal/voter/models"
	id "enrollment/pkg/domain"
	"enrollment/pkg/platform/outbox"
)

// Projector refreshes the search document of one voter from canonical state.
type Projector interface {
	IndexByID(ctx context.Context, voterID id.VoterID) error
}

// Notifier handles reference.contacted jobs.
type Notifier interface {
	HandleContacted(ctx context.Context, entry *outbox.Entry) error
}

// NewRouter registers the voter follow-up handlers on a fresh router.
func NewRouter(projector Projector, notifier Notifier) *outbox.Router {
	r := outbox.NewRouter()
	r.Handle(models.EventVoterProjection, ProjectionHandler(projector))
	r.Handle(models.EventReferenceContacted, notifier.HandleContacted)
	return r
}

// ProjectionHandler re-indexes the voter named by a voter.projection job. Index errors
// are returned so the outbox retries; entries that exhaust their attempts are left to
// the reconciliation sweep.
func ProjectionHandler(projector Projector) outbox.Handler {
	return func(ctx context.Context, entry *outbox.Entry) error {
		var payload models.ProjectionPayload
		if err := entry.Decode(&payload); err != nil {
			return err
		}
		voterID, err := id.ParseVoterID(payload.VoterID)
		if err != nil {
			return outbox.Permanent(fmt.Errorf("projection job %s: %w", entry.ID, err))
		}
		return projector.IndexByID(ctx, voterID)
	}
}

// ConsumerHandler feeds consumed Kafka messages into sink. Malformed messages and
// permanent handler errors are logged and acknowledged so they do not block the partition.
func ConsumerHandler(sink outbox.Sink, logger *slog.Logger) consumer.Handler {
	return consumer.HandlerFunc(func(ctx context.Context, msg *consumer.Message) error {
		entry, err := outbox.EntryFromMessage(msg.Headers, msg.Value)
		if err == nil {
			err = sink.Deliver(ctx, entry)
		}
		if err != nil && outbox.IsPermanent(err) {
			logger.ErrorContext(ctx, "dropping follow-up message",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"event_type", msg.Headers[outbox.HeaderEventType],
				"error", err,
			)
			return nil
		}
		return err
	})
}

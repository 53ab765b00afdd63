package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	id "enrollment/pkg/domain"
	"enrollment/pkg/requestcontext"
)

// Store persists audit entries. Append must join the transaction carried by ctx
// so the entry commits or rolls back with the mutation it describes.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListByEntity(ctx context.Context, entityType EntityType, entityID string, limit int) ([]Entry, error)
}

// ErrMissingActor is returned when an entry cannot be attributed to anyone.
var ErrMissingActor = errors.New("audit entry has no actor")

// Writer stamps entries with actor and request metadata, appends them to the
// store and mirrors them to the structured log.
type Writer struct {
	store  Store
	logger *slog.Logger
}

// NewWriter creates an audit writer. logger may be nil.
func NewWriter(store Store, logger *slog.Logger) *Writer {
	return &Writer{store: store, logger: logger}
}

// Record appends entry. Actor fields left empty are filled from the context actor;
// an entry with no resolvable actor is rejected. The returned error is fatal for the
// surrounding transaction.
func (w *Writer) Record(ctx context.Context, entry Entry) error {
	if entry.ActorID == "" {
		actor, ok := requestcontext.ActorFrom(ctx)
		if !ok || actor.ID == "" {
			return ErrMissingActor
		}
		entry.ActorID = actor.ID
		entry.ActorRole = string(actor.Role)
		if entry.ActorIP == "" {
			entry.ActorIP = actor.IP
		}
	}
	if entry.ID == (id.AuditID{}) {
		entry.ID = id.NewAuditID()
	}
	if entry.RequestID == "" {
		entry.RequestID = requestcontext.RequestID(ctx)
	}
	if entry.Device == "" {
		entry.Device = requestcontext.Device(ctx)
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = requestcontext.Now(ctx)
	}

	if err := w.store.Append(ctx, entry); err != nil {
		return fmt.Errorf("append audit entry %s: %w", entry.Action, err)
	}
	w.logToText(ctx, entry)
	return nil
}

// History returns the newest entries for one entity, newest first.
func (w *Writer) History(ctx context.Context, entityType EntityType, entityID string, limit int) ([]Entry, error) {
	return w.store.ListByEntity(ctx, entityType, entityID, limit)
}

func (w *Writer) logToText(ctx context.Context, entry Entry) {
	if w.logger == nil {
		return
	}
	w.logger.InfoContext(ctx, string(entry.Action),
		"event", string(entry.Action),
		"log_type", "audit",
		"entity_type", string(entry.EntityType),
		"entity_id", entry.EntityID,
		"actor_id", entry.ActorID,
		"actor_role", entry.ActorRole,
		"request_id", entry.RequestID,
	)
}

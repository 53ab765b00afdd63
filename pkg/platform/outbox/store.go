package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store defines the outbox persistence operations.
// Implementations must be safe for concurrent use.
type Store interface {
	// Append adds a new entry to the outbox.
	// This must be called within the same transaction as the business operation.
	Append(ctx context.Context, entry *Entry) error

	// Claim leases up to limit pending entries until now+lease and increments their
	// attempt counters. Entries whose lease has not expired are skipped, so concurrent
	// workers never hold the same entry.
	Claim(ctx context.Context, limit int, lease time.Duration, now time.Time) ([]*Entry, error)

	// MarkProcessed marks an entry as successfully delivered.
	MarkProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time) error

	// MarkFailed records a delivery failure. The entry becomes claimable again at
	// retryAt, or is dead-lettered when dead is true.
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string, retryAt time.Time, dead bool) error

	// CountPending returns the number of entries still awaiting delivery.
	CountPending(ctx context.Context) (int64, error)

	// DeleteProcessedBefore removes old processed entries for cleanup.
	DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
}

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"github.com/google/uuid"

	id "enrollment/pkg/domain"
	audit "enrollment/pkg/platform/audit"
	txcontext "enrollment/pkg/platform/tx"
)

// Store implements audit.Store using PostgreSQL. The table is append-only; this
// type deliberately has no update or delete path.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append inserts an entry, joining the transaction carried by ctx when present.
func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	query := `
		INSERT INTO audit_log (
			id, entity_type, entity_id, action, before, after,
			actor_id, actor_role, actor_ip, device, request_id, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(entry.ID),
		string(entry.EntityType),
		entry.EntityID,
		string(entry.Action),
		nullJSON(entry.Before),
		nullJSON(entry.After),
		entry.ActorID,
		entry.ActorRole,
		entry.ActorIP,
		entry.Device,
		entry.RequestID,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ListByEntity returns entries for one entity, newest first.
func (s *Store) ListByEntity(ctx context.Context, entityType audit.EntityType, entityID string, limit int) ([]audit.Entry, error) {
	if limit <= 0 || limit > math.MaxInt32 {
		limit = math.MaxInt32
	}
	query := `
		SELECT id, entity_type, entity_id, action, before, after,
			   actor_id, actor_role, actor_ip, device, request_id, created_at
		FROM audit_log
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC, seq DESC
		LIMIT $3
	`
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, query, string(entityType), entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var (
			entry         audit.Entry
			entryID       uuid.UUID
			entity        string
			action        string
			before, after []byte
		)
		if err := rows.Scan(&entryID, &entity, &entry.EntityID, &action, &before, &after,
			&entry.ActorID, &entry.ActorRole, &entry.ActorIP, &entry.Device, &entry.RequestID, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.ID = id.AuditID(entryID)
		entry.EntityType = audit.EntityType(entity)
		entry.Action = audit.Action(action)
		entry.Before = before
		entry.After = after
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

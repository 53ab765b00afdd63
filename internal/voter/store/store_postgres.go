package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"enrollment/internal/platform/database"
	"enrollment/internal/voter/models"
	id "enrollment/pkg/domain"
	"enrollment/pkg/platform/sentinel"
	txcontext "enrollment/pkg/platform/tx"
)

// Error Contract:
// All store methods follow this error pattern:
// - Return sentinel.ErrNotFound when the requested record does not exist
// - Return sentinel.ErrAlreadyUsed when the identity number is taken
// - Return sentinel.ErrConflict on lock timeout, deadlock or serialization failure
// - Return wrapped errors with context for other infrastructure failures

// PostgresStore persists voters and references in PostgreSQL. Every method joins the
// transaction carried by ctx when one is active.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed voter store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const voterColumns = `
	id, identity_number, full_name, demographics, address, is_registered_elector,
	elector, education, documents, verification_status, verified_by, verified_at,
	created_at, updated_at`

const referenceColumns = `
	id, voter_id, name, contact, status, notification_sent, notification_sent_at,
	notify_attempts, next_notify_at, status_updated_at, created_at`

// CreateVoter inserts a new voter. A duplicate identity number yields sentinel.ErrAlreadyUsed.
func (s *PostgresStore) CreateVoter(ctx context.Context, v *models.Voter) error {
	cols, err := encodeVoter(v)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO voters (` + voterColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = txcontext.Exec(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(v.ID), v.IdentityNumber, v.FullName,
		cols.demographics, cols.address, v.IsRegisteredElector, cols.elector,
		cols.education, cols.documents, string(v.VerificationStatus),
		nullAdmin(v.VerifiedBy), v.VerifiedAt, v.CreatedAt, v.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert voter: %w", database.Classify(err))
	}
	return nil
}

// GetVoter reads a committed voter.
func (s *PostgresStore) GetVoter(ctx context.Context, voterID id.VoterID) (*models.Voter, error) {
	query := `SELECT ` + voterColumns + ` FROM voters WHERE id = $1`
	v, err := scanVoter(txcontext.Exec(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(voterID)))
	if err != nil {
		return nil, fmt.Errorf("get voter: %w", database.Classify(err))
	}
	return v, nil
}

// LockVoter reads a voter and holds its row lock until the surrounding transaction ends.
func (s *PostgresStore) LockVoter(ctx context.Context, voterID id.VoterID) (*models.Voter, error) {
	query := `SELECT ` + voterColumns + ` FROM voters WHERE id = $1 FOR UPDATE`
	v, err := scanVoter(txcontext.Exec(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(voterID)))
	if err != nil {
		return nil, fmt.Errorf("lock voter: %w", database.Classify(err))
	}
	return v, nil
}

// UpdateVoter overwrites every mutable column. The identity number is not written.
func (s *PostgresStore) UpdateVoter(ctx context.Context, v *models.Voter) error {
	cols, err := encodeVoter(v)
	if err != nil {
		return err
	}
	query := `
		UPDATE voters
		SET full_name = $2, demographics = $3, address = $4, is_registered_elector = $5,
			elector = $6, education = $7, documents = $8, verification_status = $9,
			verified_by = $10, verified_at = $11, updated_at = $12
		WHERE id = $1
	`
	res, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(v.ID), v.FullName, cols.demographics, cols.address, v.IsRegisteredElector,
		cols.elector, cols.education, cols.documents, string(v.VerificationStatus),
		nullAdmin(v.VerifiedBy), v.VerifiedAt, v.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update voter: %w", database.Classify(err))
	}
	return requireRow(res, "update voter")
}

// TouchVoter bumps updated_at so the search projection sees a newer version. The new
// value is always strictly greater than the stored one.
func (s *PostgresStore) TouchVoter(ctx context.Context, voterID id.VoterID, at time.Time) error {
	res, err := txcontext.Exec(ctx, s.db).ExecContext(ctx,
		`UPDATE voters SET updated_at = GREATEST(updated_at + interval '1 microsecond', $2) WHERE id = $1`,
		uuid.UUID(voterID), at)
	if err != nil {
		return fmt.Errorf("touch voter: %w", database.Classify(err))
	}
	return requireRow(res, "touch voter")
}

// DeleteVoter removes a voter. References go with it through ON DELETE CASCADE.
func (s *PostgresStore) DeleteVoter(ctx context.Context, voterID id.VoterID) error {
	res, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, `DELETE FROM voters WHERE id = $1`, uuid.UUID(voterID))
	if err != nil {
		return fmt.Errorf("delete voter: %w", database.Classify(err))
	}
	return requireRow(res, "delete voter")
}

// ListVoters returns one page of voters, newest first, plus the total match count.
func (s *PostgresStore) ListVoters(ctx context.Context, filter models.ListVotersFilter) ([]*models.Voter, int, error) {
	where := ""
	args := []any{}
	if filter.VerificationStatus != nil {
		where = " WHERE verification_status = $1"
		args = append(args, string(*filter.VerificationStatus))
	}

	var total int
	if err := txcontext.Exec(ctx, s.db).QueryRowContext(ctx, `SELECT count(*) FROM voters`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count voters: %w", database.Classify(err))
	}

	query := fmt.Sprintf(`SELECT %s FROM voters%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		voterColumns, where, len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)
	voters, err := s.queryVoters(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list voters: %w", err)
	}
	return voters, total, nil
}

// ListVotersAfter pages voters in id order, starting after the given id.
func (s *PostgresStore) ListVotersAfter(ctx context.Context, after id.VoterID, limit int) ([]*models.Voter, error) {
	query := `SELECT ` + voterColumns + ` FROM voters WHERE id > $1 ORDER BY id LIMIT $2`
	voters, err := s.queryVoters(ctx, query, uuid.UUID(after), limit)
	if err != nil {
		return nil, fmt.Errorf("list voters after: %w", err)
	}
	return voters, nil
}

// ListVoterVersions pages (id, updated_at) pairs in id order for reconciliation.
func (s *PostgresStore) ListVoterVersions(ctx context.Context, after id.VoterID, limit int) ([]models.VoterVersion, error) {
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx,
		`SELECT id, updated_at FROM voters WHERE id > $1 ORDER BY id LIMIT $2`, uuid.UUID(after), limit)
	if err != nil {
		return nil, fmt.Errorf("list voter versions: %w", database.Classify(err))
	}
	defer rows.Close()

	var out []models.VoterVersion
	for rows.Next() {
		var (
			rawID     uuid.UUID
			updatedAt time.Time
		)
		if err := rows.Scan(&rawID, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan voter version: %w", err)
		}
		out = append(out, models.VoterVersion{ID: id.VoterID(rawID), UpdatedAt: updatedAt})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate voter versions: %w", err)
	}
	return out, nil
}

// CreateReference inserts a reference for an existing voter.
func (s *PostgresStore) CreateReference(ctx context.Context, ref *models.Reference) error {
	query := `
		INSERT INTO voter_references (` + referenceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(ref.ID), uuid.UUID(ref.VoterID), ref.Name, ref.Contact, string(ref.Status),
		ref.NotificationSent, ref.NotificationSentAt, ref.NotifyAttempts, ref.NextNotifyAt,
		ref.StatusUpdatedAt, ref.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert reference: %w", database.Classify(err))
	}
	return nil
}

// GetReference reads a committed reference.
func (s *PostgresStore) GetReference(ctx context.Context, refID id.ReferenceID) (*models.Reference, error) {
	query := `SELECT ` + referenceColumns + ` FROM voter_references WHERE id = $1`
	ref, err := scanReference(txcontext.Exec(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(refID)))
	if err != nil {
		return nil, fmt.Errorf("get reference: %w", database.Classify(err))
	}
	return ref, nil
}

// LockReference reads a reference and holds its row lock until the transaction ends.
func (s *PostgresStore) LockReference(ctx context.Context, refID id.ReferenceID) (*models.Reference, error) {
	query := `SELECT ` + referenceColumns + ` FROM voter_references WHERE id = $1 FOR UPDATE`
	ref, err := scanReference(txcontext.Exec(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(refID)))
	if err != nil {
		return nil, fmt.Errorf("lock reference: %w", database.Classify(err))
	}
	return ref, nil
}

// UpdateReferenceStatus writes the status columns only.
func (s *PostgresStore) UpdateReferenceStatus(ctx context.Context, ref *models.Reference) error {
	res, err := txcontext.Exec(ctx, s.db).ExecContext(ctx,
		`UPDATE voter_references SET status = $2, status_updated_at = $3 WHERE id = $1`,
		uuid.UUID(ref.ID), string(ref.Status), ref.StatusUpdatedAt)
	if err != nil {
		return fmt.Errorf("update reference status: %w", database.Classify(err))
	}
	return requireRow(res, "update reference status")
}

// MarkNotificationSent sets the notification flag. There is no statement that clears it.
func (s *PostgresStore) MarkNotificationSent(ctx context.Context, refID id.ReferenceID, at time.Time) error {
	res, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, `
		UPDATE voter_references
		SET notification_sent = TRUE, notification_sent_at = COALESCE(notification_sent_at, $2)
		WHERE id = $1`, uuid.UUID(refID), at)
	if err != nil {
		return fmt.Errorf("mark notification sent: %w", database.Classify(err))
	}
	return requireRow(res, "mark notification sent")
}

// RecordNotificationFailure stores the failure count of a notice and when it is due again.
func (s *PostgresStore) RecordNotificationFailure(ctx context.Context, refID id.ReferenceID, attempts int, nextAttemptAt time.Time) error {
	res, err := txcontext.Exec(ctx, s.db).ExecContext(ctx,
		`UPDATE voter_references SET notify_attempts = $2, next_notify_at = $3 WHERE id = $1`,
		uuid.UUID(refID), attempts, nextAttemptAt)
	if err != nil {
		return fmt.Errorf("record notification failure: %w", database.Classify(err))
	}
	return requireRow(res, "record notification failure")
}

// ListReferences returns the references of one voter in creation order.
func (s *PostgresStore) ListReferences(ctx context.Context, voterID id.VoterID) ([]*models.Reference, error) {
	query := `SELECT ` + referenceColumns + ` FROM voter_references WHERE voter_id = $1 ORDER BY created_at, id`
	refs, err := s.queryReferences(ctx, query, uuid.UUID(voterID))
	if err != nil {
		return nil, fmt.Errorf("list references: %w", err)
	}
	return refs, nil
}

// ListReferencesByVoters returns references grouped by voter for a batch of voters.
func (s *PostgresStore) ListReferencesByVoters(ctx context.Context, voterIDs []id.VoterID) (map[id.VoterID][]*models.Reference, error) {
	out := make(map[id.VoterID][]*models.Reference, len(voterIDs))
	if len(voterIDs) == 0 {
		return out, nil
	}
	ids := make([]string, len(voterIDs))
	for i, v := range voterIDs {
		ids[i] = v.String()
	}
	query := `SELECT ` + referenceColumns + ` FROM voter_references WHERE voter_id = ANY($1::uuid[]) ORDER BY created_at, id`
	refs, err := s.queryReferences(ctx, query, uuidArray(ids))
	if err != nil {
		return nil, fmt.Errorf("list references by voters: %w", err)
	}
	for _, ref := range refs {
		out[ref.VoterID] = append(out[ref.VoterID], ref)
	}
	return out, nil
}

// ListPendingNotifications returns CONTACTED references that still have no notice,
// are under the attempt cap and are due, earliest due first.
func (s *PostgresStore) ListPendingNotifications(ctx context.Context, q models.PendingQuery) ([]models.PendingNotification, error) {
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, `
		SELECT id, voter_id, status, status_updated_at, notify_attempts
		FROM voter_references
		WHERE notification_sent = FALSE AND status = $1 AND status_updated_at < $2
			AND notify_attempts < $3
			AND (next_notify_at IS NULL OR next_notify_at <= $4)
		ORDER BY COALESCE(next_notify_at, status_updated_at), id
		LIMIT $5`, string(models.ReferenceContacted), q.StatusBefore, q.MaxAttempts, q.DueBy, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("list pending notifications: %w", database.Classify(err))
	}
	defer rows.Close()

	var out []models.PendingNotification
	for rows.Next() {
		var (
			p              models.PendingNotification
			refID, voterID uuid.UUID
			status         string
		)
		if err := rows.Scan(&refID, &voterID, &status, &p.StatusUpdatedAt, &p.NotifyAttempts); err != nil {
			return nil, fmt.Errorf("scan pending notification: %w", err)
		}
		p.ReferenceID = id.ReferenceID(refID)
		p.VoterID = id.VoterID(voterID)
		p.Status = models.ReferenceStatus(status)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending notifications: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) queryVoters(ctx context.Context, query string, args ...any) ([]*models.Voter, error) {
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, database.Classify(err)
	}
	defer rows.Close()

	var out []*models.Voter
	for rows.Next() {
		v, err := scanVoter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *PostgresStore) queryReferences(ctx context.Context, query string, args ...any) ([]*models.Reference, error) {
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, database.Classify(err)
	}
	defer rows.Close()

	var out []*models.Reference
	for rows.Next() {
		ref, err := scanReference(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

type voterJSON struct {
	demographics, address, education, documents string
	elector                                     any
}

func encodeVoter(v *models.Voter) (voterJSON, error) {
	var out voterJSON
	parts := []struct {
		dst *string
		src any
	}{
		{&out.demographics, v.Demographics},
		{&out.address, v.Address},
		{&out.education, v.Education},
		{&out.documents, documentsOrEmpty(v.Documents)},
	}
	for _, p := range parts {
		b, err := json.Marshal(p.src)
		if err != nil {
			return out, fmt.Errorf("encode voter: %w", err)
		}
		*p.dst = string(b)
	}
	if v.Elector != nil {
		b, err := json.Marshal(v.Elector)
		if err != nil {
			return out, fmt.Errorf("encode voter elector: %w", err)
		}
		out.elector = string(b)
	}
	return out, nil
}

func scanVoter(row rowScanner) (*models.Voter, error) {
	var (
		v                                           models.Voter
		rawID                                       uuid.UUID
		demographics, address, education, documents []byte
		elector                                     []byte
		status                                      string
		verifiedBy                                  uuid.NullUUID
		verifiedAt                                  sql.NullTime
	)
	if err := row.Scan(&rawID, &v.IdentityNumber, &v.FullName, &demographics, &address,
		&v.IsRegisteredElector, &elector, &education, &documents, &status,
		&verifiedBy, &verifiedAt, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, err
	}
	v.ID = id.VoterID(rawID)
	v.VerificationStatus = models.VerificationStatus(status)
	for _, p := range []struct {
		raw []byte
		dst any
	}{
		{demographics, &v.Demographics},
		{address, &v.Address},
		{education, &v.Education},
		{documents, &v.Documents},
	} {
		if len(p.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(p.raw, p.dst); err != nil {
			return nil, fmt.Errorf("decode voter %s: %w", v.ID, err)
		}
	}
	if len(elector) > 0 {
		v.Elector = &models.Elector{}
		if err := json.Unmarshal(elector, v.Elector); err != nil {
			return nil, fmt.Errorf("decode voter %s elector: %w", v.ID, err)
		}
	}
	if len(v.Documents) == 0 {
		v.Documents = nil
	}
	if verifiedBy.Valid {
		admin := id.AdminID(verifiedBy.UUID)
		v.VerifiedBy = &admin
	}
	if verifiedAt.Valid {
		at := verifiedAt.Time
		v.VerifiedAt = &at
	}
	return &v, nil
}

func scanReference(row rowScanner) (*models.Reference, error) {
	var (
		ref            models.Reference
		refID, voterID uuid.UUID
		status         string
		sentAt, nextAt sql.NullTime
	)
	if err := row.Scan(&refID, &voterID, &ref.Name, &ref.Contact, &status, &ref.NotificationSent,
		&sentAt, &ref.NotifyAttempts, &nextAt, &ref.StatusUpdatedAt, &ref.CreatedAt); err != nil {
		return nil, err
	}
	ref.ID = id.ReferenceID(refID)
	ref.VoterID = id.VoterID(voterID)
	ref.Status = models.ReferenceStatus(status)
	if sentAt.Valid {
		at := sentAt.Time
		ref.NotificationSentAt = &at
	}
	if nextAt.Valid {
		at := nextAt.Time
		ref.NextNotifyAt = &at
	}
	return &ref, nil
}

func documentsOrEmpty(docs []models.Document) []models.Document {
	if docs == nil {
		return []models.Document{}
	}
	return docs
}

func nullAdmin(a *id.AdminID) any {
	if a == nil {
		return nil
	}
	return uuid.UUID(*a)
}

// uuidArray renders ids as a Postgres array literal for ANY($1::uuid[]).
func uuidArray(ids []string) string {
	b, _ := json.Marshal(ids)
	out := []byte(b)
	out[0], out[len(out)-1] = '{', '}'
	return string(out)
}

func requireRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, sentinel.ErrNotFound)
	}
	return nil
}

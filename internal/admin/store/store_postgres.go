package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"enrollment/internal/admin/models"
	"enrollment/internal/platform/database"
	id "enrollment/pkg/domain"
	"enrollment/pkg/platform/sentinel"
	txcontext "enrollment/pkg/platform/tx"
	"enrollment/pkg/requestcontext"
)

// PostgresStore persists admins in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed admin store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const adminColumns = `id, email, name, role, active, created_at, updated_at`

// Create inserts an admin. A duplicate email yields sentinel.ErrAlreadyUsed.
func (s *PostgresStore) Create(ctx context.Context, a *models.Admin) error {
	query := `INSERT INTO admins (` + adminColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(a.ID), a.Email, a.Name, string(a.Role), a.Active, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert admin: %w", database.Classify(err))
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, adminID id.AdminID) (*models.Admin, error) {
	query := `SELECT ` + adminColumns + ` FROM admins WHERE id = $1`
	a, err := scanAdmin(txcontext.Exec(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(adminID)))
	if err != nil {
		return nil, fmt.Errorf("get admin: %w", database.Classify(err))
	}
	return a, nil
}

// List returns every admin ordered by email.
func (s *PostgresStore) List(ctx context.Context) ([]*models.Admin, error) {
	query := `SELECT ` + adminColumns + ` FROM admins ORDER BY email`
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	defer rows.Close()

	var out []*models.Admin
	for rows.Next() {
		a, err := scanAdmin(rows)
		if err != nil {
			return nil, fmt.Errorf("scan admin: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate admins: %w", err)
	}
	return out, nil
}

// SetActive flips the active flag. Unknown admins yield sentinel.ErrNotFound.
func (s *PostgresStore) SetActive(ctx context.Context, a *models.Admin) error {
	query := `UPDATE admins SET active = $2, updated_at = $3 WHERE id = $1`
	res, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, query, uuid.UUID(a.ID), a.Active, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update admin: %w", database.Classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update admin: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// ActiveRole returns the role of an active admin, or sentinel.ErrNotFound.
func (s *PostgresStore) ActiveRole(ctx context.Context, adminID id.AdminID) (requestcontext.Role, error) {
	var role string
	query := `SELECT role FROM admins WHERE id = $1 AND active`
	err := txcontext.Exec(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(adminID)).Scan(&role)
	if err != nil {
		return "", fmt.Errorf("get admin role: %w", database.Classify(err))
	}
	return requestcontext.Role(role), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAdmin(row rowScanner) (*models.Admin, error) {
	var (
		a     models.Admin
		rawID uuid.UUID
		role  string
	)
	if err := row.Scan(&rawID, &a.Email, &a.Name, &role, &a.Active, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.ID = id.AdminID(rawID)
	a.Role = requestcontext.Role(role)
	return &a, nil
}

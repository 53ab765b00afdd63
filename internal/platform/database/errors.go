package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"enrollment/pkg/platform/sentinel"
)

// Postgres SQLSTATE codes the stores care about.
const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// Classify maps driver errors onto sentinel errors, keeping the original error in the chain.
//
//   - no rows -> sentinel.ErrNotFound
//   - unique violation -> sentinel.ErrAlreadyUsed
//   - FK violation -> sentinel.ErrNotFound
//   - lock timeout, serialization failure, deadlock -> sentinel.ErrConflict
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %w", sentinel.ErrNotFound, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s: %w", sentinel.ErrAlreadyUsed, pgErr.ConstraintName, err)
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: %s: %w", sentinel.ErrNotFound, pgErr.ConstraintName, err)
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return fmt.Errorf("%w: %w", sentinel.ErrConflict, err)
		}
	}
	return err
}

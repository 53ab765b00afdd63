package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dErrors "enrollment/pkg/domain-errors"
	txcontext "enrollment/pkg/platform/tx"
)

const defaultTxTimeout = 5 * time.Second

// PostgresTx runs units of work in a single Postgres transaction. Row-lock waits
// inside the transaction are bounded by lock_timeout.
type PostgresTx struct {
	db          *sql.DB
	timeout     time.Duration
	lockTimeout time.Duration
}

// NewPostgresTx creates a transaction runner. Zero durations fall back to defaults
// (5s overall, no lock_timeout override).
func NewPostgresTx(db *sql.DB, timeout, lockTimeout time.Duration) *PostgresTx {
	return &PostgresTx{db: db, timeout: timeout, lockTimeout: lockTimeout}
}

// RunInTx executes fn inside a transaction. Nested calls join the outer transaction.
// Commit failures caused by serialization or lock contention surface as
// sentinel.ErrConflict.
func (t *PostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx)
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return Classify(err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // rollback after commit is no-op; error already captured
	}()

	if t.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", t.lockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return Classify(err)
		}
	}

	txCtx := txcontext.WithTx(ctx, tx)
	if err := fn(txCtx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return Classify(err)
	}
	return nil
}

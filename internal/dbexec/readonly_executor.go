package dbexec

import (
	"context"
	"database/sql"
	"fmt"
)

// ReadOnlyExecutor runs every query in its own read-only transaction, so a
// statement can never write even if the connecting user is allowed to.
// The transaction is committed when the returned rows are closed.
type ReadOnlyExecutor struct {
	db        *sql.DB
	isolation sql.IsolationLevel
}

// ReadOnlyExecutorConfig controls transaction options.
type ReadOnlyExecutorConfig struct {
	DB *sql.DB
	// Isolation defaults to the driver's default level.
	Isolation sql.IsolationLevel
}

// NewReadOnlyExecutor creates an executor that wraps each query in a read-only transaction.
func NewReadOnlyExecutor(cfg ReadOnlyExecutorConfig) *ReadOnlyExecutor {
	return &ReadOnlyExecutor{db: cfg.DB, isolation: cfg.Isolation}
}

func (e *ReadOnlyExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	if e.db == nil {
		return nil, sql.ErrConnDone
	}
	tx, err := e.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true, Isolation: e.isolation})
	if err != nil {
		return nil, fmt.Errorf("failed to begin read-only transaction: %w", err)
	}

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	return &txRows{Rows: rows, tx: tx}, nil
}

type txRows struct {
	*sql.Rows
	tx *sql.Tx
}

func (r *txRows) Close() error {
	closeErr := r.Rows.Close()
	if r.Rows.Err() != nil || closeErr != nil {
		_ = r.tx.Rollback()
		return closeErr
	}
	if err := r.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit read-only transaction: %w", err)
	}
	return nil
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Transaction is a unit of writes bound to one pooled connection.
type Transaction interface {
	// Exec runs a statement once and returns the number of affected rows.
	// Retrying belongs to the caller: after a deadlock the server may have
	// aborted or rolled back the whole transaction.
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	Commit() error
	Rollback() error
}

type tx struct {
	label string
	conn  *sql.Conn
	tx    *sql.Tx
}

// Begin pins one connection from the pool and opens a transaction on it.
func (db *DB) Begin(ctx context.Context) (Transaction, error) {
	conn, err := db.conn.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to acquire connection: %w", db.label, err)
	}
	sqlTx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%s: failed to begin transaction: %w", db.label, err)
	}
	return &tx{label: db.label, conn: conn, tx: sqlTx}, nil
}

func (t *tx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func (t *tx) Commit() error {
	defer t.conn.Close()
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("%s: failed to commit: %w", t.label, err)
	}
	return nil
}

func (t *tx) Rollback() error {
	defer t.conn.Close()
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("%s: failed to roll back: %w", t.label, err)
	}
	return nil
}

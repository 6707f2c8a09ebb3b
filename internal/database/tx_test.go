package database

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"db-sync/internal/dialect"
	"db-sync/internal/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newSQLiteDB(t *testing.T) *DB {
	t.Helper()
	conn, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "t.db"))
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = conn.Close() })
	_, err = conn.Exec(`CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`)
	require.NoError(t, err)

	d, err := dialect.GetDialect("mysql")
	require.NoError(t, err)
	return New("items", "mysql", conn, d, retry.Policy{MaxRetries: 2, BaseDelay: time.Millisecond})
}

func TestTransactionCommit(t *testing.T) {
	ctx := context.Background()
	db := newSQLiteDB(t)
	insert := db.Dialect().InsertQuery("items", []string{"id", "name"})

	tx, err := db.Begin(ctx)
	require.NoError(t, err)
	n, err := tx.Exec(ctx, insert, int64(1), "one")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	_, err = tx.Exec(ctx, insert, int64(2), "two")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	count, err := db.RowCount(ctx, "items", "")
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	rs, err := db.QueryWithRetry(ctx, "SELECT id, name FROM items ORDER BY id")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, rs.Columns)
	assert.Equal(t, [][]any{{int64(1), "one"}, {int64(2), "two"}}, rs.Rows)
}

func TestTransactionRollback(t *testing.T) {
	ctx := context.Background()
	db := newSQLiteDB(t)
	insert := db.Dialect().InsertQuery("items", []string{"id", "name"})

	tx, err := db.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Exec(ctx, insert, int64(1), "one")
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())
	require.NoError(t, tx.Rollback(), "a second rollback is harmless")

	count, err := db.RowCount(ctx, "items", "")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestTransactionStatementErrorKeepsTransaction(t *testing.T) {
	ctx := context.Background()
	db := newSQLiteDB(t)
	insert := db.Dialect().InsertQuery("items", []string{"id", "name"})

	tx, err := db.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Exec(ctx, insert, int64(1), "one")
	require.NoError(t, err)

	_, err = tx.Exec(ctx, insert, int64(1), "again")
	require.Error(t, err)
	assert.False(t, IsTransient(err), "constraint violations are permanent")

	_, err = tx.Exec(ctx, db.Dialect().DeleteQuery("items", "id"), int64(1))
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	count, err := db.RowCount(ctx, "items", "")
	require.NoError(t, err)
	assert.Zero(t, count)
}

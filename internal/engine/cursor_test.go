package engine

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"db-sync/internal/config"
	"db-sync/internal/database"
	"db-sync/internal/dialect"
	"db-sync/internal/retry"
	"db-sync/internal/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// openSQLite returns an endpoint over a fresh SQLite file. The mysql dialect
// generates SQL that SQLite accepts for everything a strategy issues.
func openSQLite(t *testing.T, name string, ddl ...string) (*database.DB, *sql.DB) {
	t.Helper()
	conn, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), name+".db"))
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = conn.Close() })
	for _, q := range ddl {
		_, err := conn.Exec(q)
		require.NoError(t, err)
	}
	d, err := dialect.GetDialect("mysql")
	require.NoError(t, err)
	return database.New(name, "mysql", conn, d, retry.Policy{MaxRetries: 2, BaseDelay: time.Millisecond}), conn
}

func newStore(t *testing.T) *state.SQLiteStore {
	t.Helper()
	store, err := state.NewSQLiteStore(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	require.NoError(t, store.Init(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestFullLoadFollowsCollationOrder(t *testing.T) {
	ctx := context.Background()
	src, srcConn := openSQLite(t, "source",
		`CREATE TABLE codes (code TEXT COLLATE NOCASE PRIMARY KEY, n INTEGER)`,
		`INSERT INTO codes VALUES ('a', 1), ('B', 2), ('c', 3), ('D', 4), ('e', 5)`)
	dst, dstConn := openSQLite(t, "destination",
		`CREATE TABLE codes_copy (code TEXT COLLATE NOCASE PRIMARY KEY, n INTEGER)`)
	store := newStore(t)
	codes := state.Pair{Source: "codes", Dest: "codes_copy"}

	job := &config.Job{
		Name:        "codes",
		Source:      config.Endpoint{Driver: "sqlite", Table: "codes"},
		Destination: config.Endpoint{Driver: "sqlite", Table: "codes_copy"},
		BatchSize:   2,
	}
	load := &FullLoad{&runEnv{
		job:     job,
		pair:    codes,
		source:  src,
		dest:    dst,
		store:   store,
		uow:     NewUnitOfWork(dst, 0),
		query:   "SELECT code, n FROM codes",
		columns: []string{"code", "n"},
		key:     "code",
	}}

	stats, err := load.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Batches)
	assert.EqualValues(t, 5, stats.RowsInserted)
	assert.Zero(t, stats.RowsFailed)

	rows, err := dstConn.QueryContext(ctx, `SELECT code FROM codes_copy ORDER BY code`)
	require.NoError(t, err)
	defer rows.Close()
	var got []string
	for rows.Next() {
		var c string
		require.NoError(t, rows.Scan(&c))
		got = append(got, c)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"a", "B", "c", "D", "e"}, got)

	cp, err := store.GetCheckpoint(ctx, codes, state.ModeFull)
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, cp.Status)
	assert.Equal(t, "e", cp.LastKey)

	// a late row that sorts after e only under the collation
	_, err = srcConn.ExecContext(ctx, `INSERT INTO codes VALUES ('F', 6)`)
	require.NoError(t, err)
	inc := &IncrementalLoad{load.runEnv}
	stats, err = inc.Execute(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.RowsInserted)

	wm, err := store.GetLastProcessedValue(ctx, codes, "code")
	require.NoError(t, err)
	assert.Equal(t, "F", wm.Value)
}

func TestIncrementalLoadWithTimeKey(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	events := state.Pair{Source: "events", Dest: "events_copy"}
	cols := []string{"created_at", "name"}
	types := []string{"datetime", "varchar"}

	src := newFakeDB("source", "postgres")
	dst := newFakeDB("destination", "postgres")
	srcT := src.addTable("events", "created_at", cols, types)
	dstT := dst.addTable("events_copy", "created_at", cols, types)

	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := range 5 {
		srcT.rows = append(srcT.rows, []any{t0.Add(time.Duration(i) * time.Minute), "e"})
	}
	// the first two are already copied
	dstT.rows = append(dstT.rows, srcT.rows[0], srcT.rows[1])
	require.NoError(t, store.UpdateLastProcessedValue(ctx, &state.Watermark{
		Pair: events, KeyColumn: "created_at", Value: t0.Add(time.Minute).Format(time.RFC3339Nano), KeyType: KeyTime,
	}))

	job := &config.Job{
		Name:        "events",
		Destination: config.Endpoint{Table: "events_copy"},
		BatchSize:   2,
	}
	load := &IncrementalLoad{&runEnv{
		job:     job,
		pair:    events,
		source:  src,
		dest:    dst,
		store:   store,
		uow:     NewUnitOfWork(dst, 0),
		query:   "SELECT created_at, name FROM events",
		columns: cols,
		key:     "created_at",
	}}

	stats, err := load.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Batches)
	assert.EqualValues(t, 3, stats.RowsInserted)
	assert.Zero(t, stats.RowsFailed)
	assert.Len(t, dstT.rows, 5)
	assert.Contains(t, src.queries[0], "WHERE created_at > $1 ORDER BY created_at ASC LIMIT 2")

	wm, err := store.GetLastProcessedValue(ctx, events, "created_at")
	require.NoError(t, err)
	assert.Equal(t, KeyTime, wm.KeyType)
	assert.Equal(t, t0.Add(4*time.Minute).Format(time.RFC3339Nano), wm.Value)
}

package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const defaultSQLitePath = "db-sync-state.db"

// SQLiteStore keeps engine state in an embedded SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ Store = (*SQLiteStore)(nil)

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = defaultSQLitePath
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open state db %s: %w", path, err)
	}
	// One writer; keeps SQLite from returning SQLITE_BUSY between our own connections.
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db, path: path}, nil
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS etl_checkpoints (
            source_table TEXT NOT NULL,
            dest_table TEXT NOT NULL,
            mode TEXT NOT NULL,
            key_column TEXT NOT NULL DEFAULT '',
            last_key TEXT NOT NULL DEFAULT '',
            key_type TEXT NOT NULL DEFAULT '',
            batch_number INTEGER NOT NULL DEFAULT 0,
            rows_processed INTEGER NOT NULL DEFAULT 0,
            rows_inserted INTEGER NOT NULL DEFAULT 0,
            status TEXT NOT NULL,
            updated_at TEXT NOT NULL,
            PRIMARY KEY (source_table, dest_table, mode)
        )`,
		`CREATE TABLE IF NOT EXISTS etl_watermarks (
            source_table TEXT NOT NULL,
            dest_table TEXT NOT NULL,
            key_column TEXT NOT NULL,
            last_value TEXT NOT NULL,
            key_type TEXT NOT NULL DEFAULT '',
            updated_at TEXT NOT NULL,
            PRIMARY KEY (source_table, dest_table, key_column)
        )`,
		`CREATE TABLE IF NOT EXISTS etl_deleted_records (
            source_table TEXT NOT NULL,
            dest_table TEXT NOT NULL,
            record_id TEXT NOT NULL,
            processed INTEGER NOT NULL DEFAULT 0,
            created_at TEXT NOT NULL,
            processed_at TEXT,
            PRIMARY KEY (source_table, dest_table, record_id)
        )`,
		`CREATE INDEX IF NOT EXISTS idx_deleted_pending ON etl_deleted_records(source_table, dest_table, processed)`,
		`CREATE TABLE IF NOT EXISTS etl_run_history (
            id TEXT PRIMARY KEY,
            source_table TEXT NOT NULL,
            dest_table TEXT NOT NULL,
            mode TEXT NOT NULL,
            reason TEXT NOT NULL DEFAULT '',
            rows_processed INTEGER NOT NULL DEFAULT 0,
            rows_inserted INTEGER NOT NULL DEFAULT 0,
            rows_deleted INTEGER NOT NULL DEFAULT 0,
            rows_failed INTEGER NOT NULL DEFAULT 0,
            batches INTEGER NOT NULL DEFAULT 0,
            status TEXT NOT NULL,
            error TEXT NOT NULL DEFAULT '',
            row_errors TEXT NOT NULL DEFAULT '[]',
            started_at TEXT NOT NULL,
            finished_at TEXT NOT NULL,
            duration_ms INTEGER NOT NULL DEFAULT 0
        )`,
		`CREATE INDEX IF NOT EXISTS idx_run_history_started ON etl_run_history(started_at)`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("init state schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func now() string {
	return formatTime(time.Now())
}

// timeLayout is fixed-width so that text order in SQL is chronological.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

const checkpointColumns = `source_table, dest_table, mode, key_column, last_key, key_type, batch_number, rows_processed, rows_inserted, status, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row scanner) (*Checkpoint, error) {
	var cp Checkpoint
	var mode, status, updated string
	if err := row.Scan(&cp.Source, &cp.Dest, &mode, &cp.KeyColumn, &cp.LastKey, &cp.KeyType,
		&cp.BatchNumber, &cp.RowsProcessed, &cp.RowsInserted, &status, &updated); err != nil {
		return nil, err
	}
	cp.Mode = Mode(mode)
	cp.Status = Status(status)
	cp.UpdatedAt = parseTime(updated)
	return &cp, nil
}

func (s *SQLiteStore) GetCheckpoint(ctx context.Context, pair Pair, mode Mode) (*Checkpoint, error) {
	q := `SELECT ` + checkpointColumns + ` FROM etl_checkpoints
          WHERE source_table = ? AND dest_table = ? AND mode = ? AND status = ?`
	cp, err := scanCheckpoint(s.db.QueryRowContext(ctx, q, pair.Source, pair.Dest, string(mode), string(StatusInProgress)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint %s: %w", pair, err)
	}
	return cp, nil
}

func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, cp *Checkpoint) error {
	q := `INSERT INTO etl_checkpoints (` + checkpointColumns + `)
          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
          ON CONFLICT (source_table, dest_table, mode) DO UPDATE SET
            key_column = excluded.key_column,
            last_key = excluded.last_key,
            key_type = excluded.key_type,
            batch_number = excluded.batch_number,
            rows_processed = excluded.rows_processed,
            rows_inserted = excluded.rows_inserted,
            status = excluded.status,
            updated_at = excluded.updated_at`
	cp.Status = StatusInProgress
	cp.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, q, cp.Source, cp.Dest, string(cp.Mode), cp.KeyColumn, cp.LastKey, cp.KeyType,
		cp.BatchNumber, cp.RowsProcessed, cp.RowsInserted, string(cp.Status), formatTime(cp.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", cp.Pair, err)
	}
	return nil
}

func (s *SQLiteStore) CompleteCheckpoint(ctx context.Context, pair Pair, mode Mode) error {
	q := `UPDATE etl_checkpoints SET status = ?, updated_at = ?
          WHERE source_table = ? AND dest_table = ? AND mode = ?`
	if _, err := s.db.ExecContext(ctx, q, string(StatusCompleted), now(), pair.Source, pair.Dest, string(mode)); err != nil {
		return fmt.Errorf("complete checkpoint %s: %w", pair, err)
	}
	return nil
}

func (s *SQLiteStore) ClearCheckpoint(ctx context.Context, pair Pair, mode Mode) error {
	q := `DELETE FROM etl_checkpoints WHERE source_table = ? AND dest_table = ? AND mode = ?`
	if _, err := s.db.ExecContext(ctx, q, pair.Source, pair.Dest, string(mode)); err != nil {
		return fmt.Errorf("clear checkpoint %s: %w", pair, err)
	}
	return nil
}

func (s *SQLiteStore) ClearCheckpoints(ctx context.Context, pair Pair) error {
	q := `DELETE FROM etl_checkpoints WHERE source_table = ? AND dest_table = ?`
	if _, err := s.db.ExecContext(ctx, q, pair.Source, pair.Dest); err != nil {
		return fmt.Errorf("clear checkpoints %s: %w", pair, err)
	}
	return nil
}

func (s *SQLiteStore) ClearAllCheckpoints(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM etl_checkpoints`); err != nil {
		return fmt.Errorf("clear all checkpoints: %w", err)
	}
	return nil
}

func (s *SQLiteStore) HasCheckpoint(ctx context.Context, pair Pair) (bool, error) {
	var n int
	q := `SELECT COUNT(*) FROM etl_checkpoints WHERE source_table = ? AND dest_table = ?`
	if err := s.db.QueryRowContext(ctx, q, pair.Source, pair.Dest).Scan(&n); err != nil {
		return false, fmt.Errorf("has checkpoint %s: %w", pair, err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListCheckpoints(ctx context.Context) ([]Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+checkpointColumns+` FROM etl_checkpoints ORDER BY source_table, dest_table, mode`)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("list checkpoints: %w", err)
		}
		out = append(out, *cp)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetLastProcessedValue(ctx context.Context, pair Pair, keyColumn string) (*Watermark, error) {
	q := `SELECT last_value, key_type, updated_at FROM etl_watermarks
          WHERE source_table = ? AND dest_table = ? AND key_column = ?`
	wm := &Watermark{Pair: pair, KeyColumn: keyColumn}
	var updated string
	err := s.db.QueryRowContext(ctx, q, pair.Source, pair.Dest, keyColumn).Scan(&wm.Value, &wm.KeyType, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get watermark %s: %w", pair, err)
	}
	wm.UpdatedAt = parseTime(updated)
	return wm, nil
}

func (s *SQLiteStore) UpdateLastProcessedValue(ctx context.Context, wm *Watermark) error {
	q := `INSERT INTO etl_watermarks (source_table, dest_table, key_column, last_value, key_type, updated_at)
          VALUES (?, ?, ?, ?, ?, ?)
          ON CONFLICT (source_table, dest_table, key_column) DO UPDATE SET
            last_value = excluded.last_value,
            key_type = excluded.key_type,
            updated_at = excluded.updated_at`
	wm.UpdatedAt = time.Now().UTC()
	if _, err := s.db.ExecContext(ctx, q, wm.Source, wm.Dest, wm.KeyColumn, wm.Value, wm.KeyType, formatTime(wm.UpdatedAt)); err != nil {
		return fmt.Errorf("update watermark %s: %w", wm.Pair, err)
	}
	return nil
}

func (s *SQLiteStore) ClearWatermarks(ctx context.Context, pair Pair) error {
	q := `DELETE FROM etl_watermarks WHERE source_table = ? AND dest_table = ?`
	if _, err := s.db.ExecContext(ctx, q, pair.Source, pair.Dest); err != nil {
		return fmt.Errorf("clear watermarks %s: %w", pair, err)
	}
	return nil
}

func (s *SQLiteStore) ListWatermarks(ctx context.Context) ([]Watermark, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source_table, dest_table, key_column, last_value, key_type, updated_at
        FROM etl_watermarks ORDER BY source_table, dest_table`)
	if err != nil {
		return nil, fmt.Errorf("list watermarks: %w", err)
	}
	defer rows.Close()

	var out []Watermark
	for rows.Next() {
		var wm Watermark
		var updated string
		if err := rows.Scan(&wm.Source, &wm.Dest, &wm.KeyColumn, &wm.Value, &wm.KeyType, &updated); err != nil {
			return nil, fmt.Errorf("list watermarks: %w", err)
		}
		wm.UpdatedAt = parseTime(updated)
		out = append(out, wm)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddDeletedRecord(ctx context.Context, pair Pair, recordID string) error {
	q := `INSERT INTO etl_deleted_records (source_table, dest_table, record_id, processed, created_at)
          VALUES (?, ?, ?, 0, ?)
          ON CONFLICT (source_table, dest_table, record_id) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, q, pair.Source, pair.Dest, recordID, now()); err != nil {
		return fmt.Errorf("add tombstone %s/%s: %w", pair, recordID, err)
	}
	return nil
}

func (s *SQLiteStore) MarkDeletedRecordsProcessed(ctx context.Context, pair Pair, recordIDs []string) error {
	if len(recordIDs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mark tombstones %s: %w", pair, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE etl_deleted_records SET processed = 1, processed_at = ?
        WHERE source_table = ? AND dest_table = ? AND record_id = ?`)
	if err != nil {
		return fmt.Errorf("mark tombstones %s: %w", pair, err)
	}
	defer stmt.Close()

	ts := now()
	for _, id := range recordIDs {
		if _, err := stmt.ExecContext(ctx, ts, pair.Source, pair.Dest, id); err != nil {
			return fmt.Errorf("mark tombstone %s/%s: %w", pair, id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("mark tombstones %s: %w", pair, err)
	}
	return nil
}

func (s *SQLiteStore) PendingDeletedRecords(ctx context.Context, pair Pair) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT record_id FROM etl_deleted_records
        WHERE source_table = ? AND dest_table = ? AND processed = 0 ORDER BY created_at, record_id`, pair.Source, pair.Dest)
	if err != nil {
		return nil, fmt.Errorf("pending tombstones %s: %w", pair, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) ClearDeletedRecords(ctx context.Context, pair Pair) error {
	q := `DELETE FROM etl_deleted_records WHERE source_table = ? AND dest_table = ?`
	if _, err := s.db.ExecContext(ctx, q, pair.Source, pair.Dest); err != nil {
		return fmt.Errorf("clear tombstones %s: %w", pair, err)
	}
	return nil
}

func (s *SQLiteStore) ResetPair(ctx context.Context, pair Pair) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("reset %s: %w", pair, err)
	}
	defer tx.Rollback()

	for _, table := range []string{"etl_checkpoints", "etl_watermarks", "etl_deleted_records"} {
		q := fmt.Sprintf("DELETE FROM %s WHERE source_table = ? AND dest_table = ?", table)
		if _, err := tx.ExecContext(ctx, q, pair.Source, pair.Dest); err != nil {
			return fmt.Errorf("reset %s (%s): %w", pair, table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("reset %s: %w", pair, err)
	}
	return nil
}

func (s *SQLiteStore) RecordRun(ctx context.Context, run *RunResult) error {
	if run.ID == "" {
		run.ID = NewRunID()
	}
	rowErrors, err := json.Marshal(run.RowErrors)
	if err != nil {
		return fmt.Errorf("record run %s: %w", run.ID, err)
	}
	q := `INSERT INTO etl_run_history (id, source_table, dest_table, mode, reason, rows_processed, rows_inserted,
            rows_deleted, rows_failed, batches, status, error, row_errors, started_at, finished_at, duration_ms)
          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, q, run.ID, run.Source, run.Dest, string(run.Mode), run.Reason,
		run.RowsProcessed, run.RowsInserted, run.RowsDeleted, run.RowsFailed, run.Batches,
		string(run.Status), run.Error, string(rowErrors),
		formatTime(run.StartedAt), formatTime(run.FinishedAt), run.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("record run %s: %w", run.ID, err)
	}
	return nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunResult, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, source_table, dest_table, mode, reason, rows_processed, rows_inserted,
            rows_deleted, rows_failed, batches, status, error, row_errors, started_at, finished_at, duration_ms
        FROM etl_run_history ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunResult
	for rows.Next() {
		var r RunResult
		var mode, status, rowErrors, started, finished string
		var durationMS int64
		if err := rows.Scan(&r.ID, &r.Source, &r.Dest, &mode, &r.Reason, &r.RowsProcessed, &r.RowsInserted,
			&r.RowsDeleted, &r.RowsFailed, &r.Batches, &status, &r.Error, &rowErrors, &started, &finished, &durationMS); err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		r.Mode = Mode(mode)
		r.Status = Status(status)
		r.StartedAt = parseTime(started)
		r.FinishedAt = parseTime(finished)
		r.Duration = time.Duration(durationMS) * time.Millisecond
		_ = json.Unmarshal([]byte(rowErrors), &r.RowErrors)
		out = append(out, r)
	}
	return out, rows.Err()
}

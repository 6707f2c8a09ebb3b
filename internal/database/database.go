package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"db-sync/internal/dialect"
	"db-sync/internal/retry"
	"db-sync/internal/schema"
)

const pingTimeout = 5 * time.Second

// Options describe how to reach one endpoint.
type Options struct {
	Driver          string
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
	Retry           retry.Policy
}

// DB is one side of a sync pair: a pooled handle plus the SQL dialect and the
// retry policy every statement against it runs under.
type DB struct {
	label   string
	driver  string
	conn    *sql.DB
	dialect dialect.Dialect
	policy  retry.Policy
}

// Open prepares the pool without connecting; call Ping to verify the endpoint.
func Open(label string, opts Options) (*DB, error) {
	d, err := dialect.GetDialect(opts.Driver)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}

	conn, err := sql.Open(opts.Driver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to open db: %w", label, err)
	}
	if opts.MaxOpen > 0 {
		conn.SetMaxOpenConns(opts.MaxOpen)
	}
	if opts.MaxIdle > 0 {
		conn.SetMaxIdleConns(opts.MaxIdle)
	}
	if opts.ConnMaxLifetime > 0 {
		conn.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	return New(label, opts.Driver, conn, d, opts.Retry), nil
}

// New wraps an already opened pool.
func New(label, driver string, conn *sql.DB, d dialect.Dialect, policy retry.Policy) *DB {
	if policy.MaxRetries == 0 && policy.BaseDelay == 0 {
		policy = retry.DefaultPolicy
	}
	return &DB{label: label, driver: driver, conn: conn, dialect: d, policy: policy}
}

func (db *DB) Name() string              { return db.label }
func (db *DB) Driver() string            { return db.driver }
func (db *DB) Dialect() dialect.Dialect  { return db.dialect }
func (db *DB) RetryPolicy() retry.Policy { return db.policy }

func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping validates connectivity within a bounded time.
func (db *DB) Ping(ctx context.Context) error {
	ctxPing, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.conn.PingContext(ctxPing); err != nil {
		return fmt.Errorf("%s: failed to connect to db: %w", db.label, err)
	}
	return nil
}

// Query runs a SELECT once and materializes the whole result.
func (db *DB) Query(ctx context.Context, query string, args ...any) (*ResultSet, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

// QueryWithRetry is Query under the endpoint's retry policy. Reads are
// idempotent so they are retried outside any transaction.
func (db *DB) QueryWithRetry(ctx context.Context, query string, args ...any) (*ResultSet, error) {
	return retry.Do(ctx, db.policy, IsTransient, db.label+" query", func(ctx context.Context) (*ResultSet, error) {
		return db.Query(ctx, query, args...)
	})
}

func (db *DB) queryInt(ctx context.Context, query string, args ...any) (int64, error) {
	return retry.Do(ctx, db.policy, IsTransient, db.label+" query", func(ctx context.Context) (int64, error) {
		var n int64
		err := db.conn.QueryRowContext(ctx, query, args...).Scan(&n)
		return n, err
	})
}

// RowCount counts rows of table, optionally filtered by a raw WHERE condition.
func (db *DB) RowCount(ctx context.Context, table, where string) (int64, error) {
	n, err := db.queryInt(ctx, db.dialect.CountQuery(table, where))
	if err != nil {
		return 0, fmt.Errorf("%s: failed to count %s: %w", db.label, table, err)
	}
	return n, nil
}

func (db *DB) TableExists(ctx context.Context, table string) (bool, error) {
	q, args := db.dialect.TableExistsQuery(table)
	n, err := db.queryInt(ctx, q, args...)
	if err != nil {
		return false, fmt.Errorf("%s: failed to look up table %s: %w", db.label, table, err)
	}
	return n > 0, nil
}

func (db *DB) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	t, err := db.TableSchema(ctx, table)
	if err != nil {
		return false, err
	}
	return t.Find(column) != nil, nil
}

func (db *DB) PrimaryKeyColumns(ctx context.Context, table string) ([]string, error) {
	t, err := db.TableSchema(ctx, table)
	if err != nil {
		return nil, err
	}
	return t.PrimaryKey(), nil
}

// TableSchema reads the declared columns of a table from the catalog.
func (db *DB) TableSchema(ctx context.Context, table string) (*schema.Table, error) {
	q, args := db.dialect.ColumnsQuery(table)

	cols, err := retry.Do(ctx, db.policy, IsTransient, db.label+" columns", func(ctx context.Context) ([]*schema.Column, error) {
		rows, err := db.conn.QueryContext(ctx, q, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var cols []*schema.Column
		for rows.Next() {
			var cName, dType, isNull, cKey, extra sql.NullString
			if err := rows.Scan(&cName, &dType, &isNull, &cKey, &extra); err != nil {
				return nil, fmt.Errorf("failed to scan column: %w", err)
			}
			if !cName.Valid {
				continue
			}
			cols = append(cols, db.catalogColumn(cName.String, dType.String, isNull.String, cKey.String, extra.String))
		}
		return cols, rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("%s: failed to query columns of %s: %w", db.label, table, err)
	}

	return &schema.Table{Name: table, Columns: cols}, nil
}

func (db *DB) catalogColumn(name, dataType, isNull, key, extra string) *schema.Column {
	col := schema.NewColumn(name, db.dialect.NormalizeType(dataType), isNull == "YES" || isNull == "Y")
	col.IsPK = strings.Contains(key, "PRI")

	extraLower := strings.ToLower(extra)
	col.IsAutoInc = strings.Contains(extraLower, "auto_increment") ||
		strings.Contains(extraLower, "identity") ||
		strings.Contains(extraLower, "nextval")
	return col
}

// QueryColumnMetadata describes the result columns of an arbitrary SELECT by
// running it wrapped in a zero-row probe.
func (db *DB) QueryColumnMetadata(ctx context.Context, query string) ([]*schema.Column, error) {
	probe := db.dialect.ProbeQuery(query)

	cols, err := retry.Do(ctx, db.policy, IsTransient, db.label+" probe", func(ctx context.Context) ([]*schema.Column, error) {
		rows, err := db.conn.QueryContext(ctx, probe)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		types, err := rows.ColumnTypes()
		if err != nil {
			return nil, err
		}
		cols := make([]*schema.Column, 0, len(types))
		for _, ct := range types {
			nullable, ok := ct.Nullable()
			if !ok {
				nullable = true
			}
			col := schema.NewColumn(ct.Name(), db.dialect.NormalizeType(ct.DatabaseTypeName()), nullable)
			if length, ok := ct.Length(); ok && length > 0 && length < 1<<31 {
				col.Length = int(length)
			}
			cols = append(cols, col)
		}
		return cols, rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("%s: failed to probe query: %w", db.label, err)
	}
	return cols, nil
}

package engine

import (
	"context"

	"db-sync/internal/database"
	"db-sync/internal/dialect"
	"db-sync/internal/retry"
	"db-sync/internal/schema"
)

// Database is what the engine needs from an endpoint.
type Database interface {
	Name() string
	Dialect() dialect.Dialect
	RetryPolicy() retry.Policy
	Ping(ctx context.Context) error

	QueryWithRetry(ctx context.Context, query string, args ...any) (*database.ResultSet, error)
	Begin(ctx context.Context) (database.Transaction, error)

	RowCount(ctx context.Context, table, where string) (int64, error)
	TableExists(ctx context.Context, table string) (bool, error)
	ColumnExists(ctx context.Context, table, column string) (bool, error)
	PrimaryKeyColumns(ctx context.Context, table string) ([]string, error)
	TableSchema(ctx context.Context, table string) (*schema.Table, error)
	QueryColumnMetadata(ctx context.Context, query string) ([]*schema.Column, error)
}

var _ Database = (*database.DB)(nil)

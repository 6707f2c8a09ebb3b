package state

import (
	"context"
	"fmt"
)

// Store is the durable memory of the engine. Implementations must make every
// single method atomic; ResetPair and MarkDeletedRecordsProcessed span
// several records and run in one transaction where the backend allows it.
type Store interface {
	Init(ctx context.Context) error
	Close() error

	// GetCheckpoint returns the in_progress checkpoint, or nil when the
	// pair has none for this mode.
	GetCheckpoint(ctx context.Context, pair Pair, mode Mode) (*Checkpoint, error)
	// SaveCheckpoint upserts cp with status in_progress.
	SaveCheckpoint(ctx context.Context, cp *Checkpoint) error
	CompleteCheckpoint(ctx context.Context, pair Pair, mode Mode) error
	ClearCheckpoint(ctx context.Context, pair Pair, mode Mode) error
	ClearCheckpoints(ctx context.Context, pair Pair) error
	ClearAllCheckpoints(ctx context.Context) error
	// HasCheckpoint reports any checkpoint for the pair, whatever its status.
	HasCheckpoint(ctx context.Context, pair Pair) (bool, error)
	ListCheckpoints(ctx context.Context) ([]Checkpoint, error)

	// GetLastProcessedValue returns nil when no watermark exists.
	GetLastProcessedValue(ctx context.Context, pair Pair, keyColumn string) (*Watermark, error)
	UpdateLastProcessedValue(ctx context.Context, wm *Watermark) error
	ClearWatermarks(ctx context.Context, pair Pair) error
	ListWatermarks(ctx context.Context) ([]Watermark, error)

	// AddDeletedRecord is idempotent: re-adding a known id is a no-op.
	AddDeletedRecord(ctx context.Context, pair Pair, recordID string) error
	MarkDeletedRecordsProcessed(ctx context.Context, pair Pair, recordIDs []string) error
	PendingDeletedRecords(ctx context.Context, pair Pair) ([]string, error)
	ClearDeletedRecords(ctx context.Context, pair Pair) error

	// ResetPair drops checkpoints, watermarks and tombstones of a pair.
	ResetPair(ctx context.Context, pair Pair) error

	RecordRun(ctx context.Context, run *RunResult) error
	// ListRuns returns the newest runs first; limit <= 0 means all.
	ListRuns(ctx context.Context, limit int) ([]RunResult, error)
}

// Options select and address a Store backend.
type Options struct {
	Backend  string `mapstructure:"backend"`
	Path     string `mapstructure:"path"`
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

// Open builds the configured backend. Call Init before use.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "", "sqlite":
		return NewSQLiteStore(opts.Path)
	case "mongo", "mongodb":
		return NewMongoStore(ctx, opts.URI, opts.Database)
	default:
		return nil, fmt.Errorf("unknown state backend %q", opts.Backend)
	}
}

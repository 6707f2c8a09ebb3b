package state

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

type Mode string

const (
	ModeFull        Mode = "full"
	ModeIncremental Mode = "incremental"
	ModeDelta       Mode = "delta"
)

// ParseMode accepts the lower-case mode names used in config and flags.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeFull, ModeIncremental, ModeDelta:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown mode %q (want full, incremental or delta)", s)
	}
}

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Pair identifies a synchronization by its source and destination tables.
type Pair struct {
	Source string `json:"source_table" yaml:"source_table" bson:"source_table"`
	Dest   string `json:"dest_table" yaml:"dest_table" bson:"dest_table"`
}

func (p Pair) String() string {
	return p.Source + " -> " + p.Dest
}

// Checkpoint is the resumable position of one (pair, mode) run.
// LastKey is the text form of the cursor, KeyType says how to bind it back.
type Checkpoint struct {
	Pair          `yaml:",inline" bson:",inline"`
	Mode          Mode      `json:"mode" yaml:"mode" bson:"mode"`
	KeyColumn     string    `json:"key_column" yaml:"key_column" bson:"key_column"`
	LastKey       string    `json:"last_key" yaml:"last_key" bson:"last_key"`
	KeyType       string    `json:"key_type" yaml:"key_type" bson:"key_type"`
	BatchNumber   int       `json:"batch_number" yaml:"batch_number" bson:"batch_number"`
	RowsProcessed int64     `json:"rows_processed" yaml:"rows_processed" bson:"rows_processed"`
	RowsInserted  int64     `json:"rows_inserted" yaml:"rows_inserted" bson:"rows_inserted"`
	Status        Status    `json:"status" yaml:"status" bson:"status"`
	UpdatedAt     time.Time `json:"updated_at" yaml:"updated_at" bson:"updated_at"`
}

// Watermark is the highest key an incremental load has copied for a pair.
type Watermark struct {
	Pair      `yaml:",inline" bson:",inline"`
	KeyColumn string    `json:"key_column" yaml:"key_column" bson:"key_column"`
	Value     string    `json:"value" yaml:"value" bson:"value"`
	KeyType   string    `json:"key_type" yaml:"key_type" bson:"key_type"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at" bson:"updated_at"`
}

// Tombstone records a source deletion that must be applied to the destination.
type Tombstone struct {
	Pair      `yaml:",inline" bson:",inline"`
	RecordID  string    `json:"record_id" yaml:"record_id" bson:"record_id"`
	Processed bool      `json:"processed" yaml:"processed" bson:"processed"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at" bson:"created_at"`
}

// RunResult is the append-only audit record of one orchestrated run.
type RunResult struct {
	ID            string `json:"id" yaml:"id" bson:"_id"`
	Pair          `yaml:",inline" bson:",inline"`
	Mode          Mode          `json:"mode" yaml:"mode" bson:"mode"`
	Reason        string        `json:"reason,omitempty" yaml:"reason,omitempty" bson:"reason"`
	RowsProcessed int64         `json:"rows_processed" yaml:"rows_processed" bson:"rows_processed"`
	RowsInserted  int64         `json:"rows_inserted" yaml:"rows_inserted" bson:"rows_inserted"`
	RowsDeleted   int64         `json:"rows_deleted" yaml:"rows_deleted" bson:"rows_deleted"`
	RowsFailed    int64         `json:"rows_failed" yaml:"rows_failed" bson:"rows_failed"`
	Batches       int           `json:"batches" yaml:"batches" bson:"batches"`
	Status        Status        `json:"status" yaml:"status" bson:"status"`
	Error         string        `json:"error,omitempty" yaml:"error,omitempty" bson:"error"`
	RowErrors     []string      `json:"row_errors,omitempty" yaml:"row_errors,omitempty" bson:"row_errors"`
	StartedAt     time.Time     `json:"started_at" yaml:"started_at" bson:"started_at"`
	FinishedAt    time.Time     `json:"finished_at" yaml:"finished_at" bson:"finished_at"`
	Duration      time.Duration `json:"duration" yaml:"duration" bson:"duration"`
}

// NewRunID returns a lexically sortable run identifier.
func NewRunID() string {
	return ulid.Make().String()
}

package engine

import (
	"db-sync/internal/state"

	"github.com/gookit/slog"
)

// maxRowErrors bounds the row errors kept in memory and in run history.
const maxRowErrors = 100

// Stats accumulate over the batches of one strategy run.
type Stats struct {
	RowsProcessed int64
	RowsInserted  int64
	RowsDeleted   int64
	RowsFailed    int64
	Batches       int
	RowErrors     []string
}

func (s *Stats) addFailures(pair state.Pair, failures []RowError) {
	for _, f := range failures {
		s.RowsFailed++
		if len(s.RowErrors) < maxRowErrors {
			s.RowErrors = append(s.RowErrors, f.String())
			slog.Errorf("[%s] row %s failed: %v", pair, f.Key, f.Err)
		}
	}
}

// Progress is reported after every committed batch.
type Progress struct {
	Mode          state.Mode
	Batch         int
	BatchRows     int
	RowsProcessed int64
}

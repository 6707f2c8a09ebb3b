package engine

import (
	"context"
	"fmt"
	"strings"

	"db-sync/internal/config"
	"db-sync/internal/database"
	"db-sync/internal/state"

	"github.com/gookit/slog"
)

// Strategy is one load mode.
type Strategy interface {
	Execute(ctx context.Context) (*Stats, error)
}

// runEnv is everything a strategy needs for one run.
type runEnv struct {
	job      *config.Job
	pair     state.Pair
	source   Database
	dest     Database
	store    state.Store
	uow      *UnitOfWork
	query    string
	columns  []string
	key      string
	progress func(Progress)
}

func newStrategy(mode state.Mode, env *runEnv) (Strategy, error) {
	switch mode {
	case state.ModeFull:
		return &FullLoad{env}, nil
	case state.ModeIncremental:
		return &IncrementalLoad{env}, nil
	case state.ModeDelta:
		return &DeltaLoad{env}, nil
	default:
		return nil, newError(KindConfiguration, "select strategy", fmt.Errorf("unknown mode %q", mode))
	}
}

func (e *runEnv) keyIndex() int {
	for i, c := range e.columns {
		if strings.EqualFold(c, e.key) {
			return i
		}
	}
	return -1
}

// fetch reads one page from the source under the retry policy.
func (e *runEnv) fetch(ctx context.Context, query string, args ...any) (*database.ResultSet, error) {
	rs, err := e.source.QueryWithRetry(ctx, query, args...)
	if err != nil {
		return nil, newError(classify(err), "read source batch", err)
	}
	return rs, nil
}

// keysetQuery is one page of `key > cursor ORDER BY key ASC`.
func (e *runEnv) keysetQuery(base string, cursor any) (string, []any) {
	d := e.source.Dialect()
	q := base
	var args []any
	if cursor != nil {
		q = mergeCondition(base, fmt.Sprintf("%s > %s", e.key, d.Placeholder(0)))
		args = []any{cursor}
	}
	return d.Paginate(q, e.key+" ASC", e.job.BatchSize, 0), args
}

// insertStatements turns a source page into one INSERT per row.
func (e *runEnv) insertStatements(rs *database.ResultSet, keyIdx int) []Statement {
	q := e.dest.Dialect().InsertQuery(e.job.Destination.Table, rs.Columns)
	stmts := make([]Statement, len(rs.Rows))
	for i, row := range rs.Rows {
		key := fmt.Sprintf("row %d", i+1)
		if keyIdx >= 0 {
			key = fmt.Sprintf("%s=%s", e.key, keyString(row[keyIdx]))
		}
		stmts[i] = Statement{SQL: q, Args: row, Key: key}
	}
	return stmts
}

func (e *runEnv) report(mode state.Mode, stats *Stats, batchRows int) {
	slog.WithFields(slog.M{
		"job":   e.job.Name,
		"mode":  string(mode),
		"batch": stats.Batches,
		"rows":  batchRows,
		"total": stats.RowsProcessed,
	}).Info("batch committed")
	if e.progress != nil {
		e.progress(Progress{Mode: mode, Batch: stats.Batches, BatchRows: batchRows, RowsProcessed: stats.RowsProcessed})
	}
}

func (e *runEnv) saveError(op string, err error) error {
	return newError(KindBatch, op, err)
}

package seed

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"db-sync/internal/engine"
	"db-sync/internal/schema"

	"github.com/gookit/slog"
	"github.com/samber/lo"
)

// Options describe one fill of a table.
type Options struct {
	Table         string
	Count         int
	BatchSize     int
	KeyColumn     string
	DeletedColumn string
	// DeletedRatio is the share of rows written with the deleted flag set.
	DeletedRatio float64
	// Truncate deletes every existing row first.
	Truncate bool
}

type Result struct {
	Table    string
	Target   int
	Inserted int
	Failed   int
	Flagged  int
}

// Seeder fills a table with fake rows through the same unit of work the
// sync engine writes with.
type Seeder struct {
	db       engine.Database
	gen      *Generator
	uow      *engine.UnitOfWork
	progress func(n int)
}

func NewSeeder(db engine.Database, gen *Generator, progress func(n int)) *Seeder {
	return &Seeder{db: db, gen: gen, uow: engine.NewUnitOfWork(db, 0), progress: progress}
}

func (s *Seeder) Fill(ctx context.Context, opts Options) (*Result, error) {
	if opts.BatchSize < 1 {
		opts.BatchSize = 500
	}
	res := &Result{Table: opts.Table, Target: opts.Count}

	table, err := s.db.TableSchema(ctx, opts.Table)
	if err != nil {
		return res, fmt.Errorf("read schema of %s: %w", opts.Table, err)
	}
	if len(table.Columns) == 0 {
		return res, fmt.Errorf("table %s has no columns", opts.Table)
	}
	count := capacity(table, opts.Count)

	if opts.Truncate {
		out, err := s.uow.Apply(ctx, []engine.Statement{{SQL: "DELETE FROM " + opts.Table, Key: "truncate"}})
		if err != nil {
			return res, fmt.Errorf("truncate %s: %w", opts.Table, err)
		}
		if len(out.Failures) > 0 {
			return res, fmt.Errorf("truncate %s: %v", opts.Table, out.Failures[0].Err)
		}
		slog.Infof("seed: removed %d rows from %s", out.Affected, opts.Table)
	}

	cols := lo.Filter(table.Columns, func(c *schema.Column, _ int) bool { return !c.IsAutoInc })
	names := lo.Map(cols, func(c *schema.Column, _ int) string { return c.Name })
	insert := s.db.Dialect().InsertQuery(opts.Table, names)

	keyIdx, next, err := s.keyStart(ctx, opts, cols)
	if err != nil {
		return res, err
	}
	delIdx := -1
	if opts.DeletedColumn != "" {
		delIdx = lo.IndexOf(lo.Map(names, func(n string, _ int) string { return strings.ToLower(n) }), strings.ToLower(opts.DeletedColumn))
	}

	for done := 0; done < count; {
		n := min(opts.BatchSize, count-done)
		stmts := make([]engine.Statement, n)
		for i := range stmts {
			row := make([]any, len(cols))
			for j, c := range cols {
				row[j] = s.gen.Value(c)
			}
			if keyIdx >= 0 {
				row[keyIdx] = next
				next++
			}
			if delIdx >= 0 {
				flag := s.gen.faker.Number(1, 1000) <= int(opts.DeletedRatio*1000)
				row[delIdx] = flagValue(cols[delIdx], flag)
				if flag {
					res.Flagged++
				}
			}
			stmts[i] = engine.Statement{SQL: insert, Args: row, Key: fmt.Sprintf("row %d", done+i+1)}
		}

		out, err := s.uow.Apply(ctx, stmts)
		if err != nil {
			return res, err
		}
		res.Inserted += out.Applied
		res.Failed += len(out.Failures)
		for _, f := range lo.Slice(out.Failures, 0, 3) {
			slog.Warnf("seed: %s %s: %v", opts.Table, f.Key, f.Err)
		}
		done += n
		if s.progress != nil {
			s.progress(n)
		}
	}
	return res, nil
}

// keyStart finds an integer key column that the generator must fill with
// unique ascending values, and the first free value.
func (s *Seeder) keyStart(ctx context.Context, opts Options, cols []*schema.Column) (int, int64, error) {
	if opts.KeyColumn == "" {
		return -1, 0, nil
	}
	idx := lo.IndexOf(lo.Map(cols, func(c *schema.Column, _ int) string { return strings.ToLower(c.Name) }), strings.ToLower(opts.KeyColumn))
	if idx < 0 || cols[idx].Category != schema.CategoryInteger {
		return -1, 0, nil
	}

	rs, err := s.db.QueryWithRetry(ctx, fmt.Sprintf("SELECT MAX(%s) FROM %s", opts.KeyColumn, opts.Table))
	if err != nil {
		return -1, 0, fmt.Errorf("read max %s: %w", opts.KeyColumn, err)
	}
	if rs.Len() == 0 || rs.Rows[0][0] == nil {
		return idx, 1, nil
	}
	top, err := strconv.ParseInt(fmt.Sprint(rs.Rows[0][0]), 10, 64)
	if err != nil {
		return -1, 0, fmt.Errorf("max %s is not an integer: %w", opts.KeyColumn, err)
	}
	return idx, top + 1, nil
}

func flagValue(col *schema.Column, set bool) any {
	if col.Category == schema.CategoryBoolean {
		return set
	}
	if set {
		return int64(1)
	}
	return int64(0)
}

// capacity caps count so an identity column of a small integer type does
// not overflow.
func capacity(table *schema.Table, count int) int {
	for _, c := range table.Columns {
		if !c.IsAutoInc {
			continue
		}
		limit := 0
		switch strings.ToLower(c.DataType) {
		case "tinyint":
			limit = 255
		case "smallint":
			limit = 32767
		case "mediumint":
			limit = 8388607
		}
		if limit > 0 && limit < count {
			slog.Warnf("seed: identity column %s.%s (%s) limits the fill to %d rows", table.Name, c.Name, c.DataType, limit)
			count = limit
		}
	}
	return count
}

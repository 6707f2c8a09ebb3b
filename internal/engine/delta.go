package engine

import (
	"context"
	"fmt"
	"strconv"

	"db-sync/internal/state"

	"github.com/gookit/slog"
	"github.com/samber/lo"
)

// DeltaLoad propagates soft deletes: every source row flagged in the
// deleted column is removed from the destination by key.
type DeltaLoad struct {
	*runEnv
}

func (l *DeltaLoad) Execute(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	src := l.source.Dialect()

	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s", l.key, l.job.Source.Table, l.job.DeletedColumn, src.TrueLiteral())
	rs, err := l.fetch(ctx, q)
	if err != nil {
		return stats, err
	}

	// text form -> value as read, so the DELETE binds the driver's own type
	values := make(map[string]any, rs.Len())
	var ids []string
	for _, row := range rs.Rows {
		if row[0] == nil {
			continue
		}
		id := keyString(row[0])
		if _, dup := values[id]; dup {
			continue
		}
		values[id] = row[0]
		ids = append(ids, id)
	}

	// deletions an interrupted run recorded but never applied
	pending, err := l.store.PendingDeletedRecords(ctx, l.pair)
	if err != nil {
		return stats, l.saveError("load pending tombstones", err)
	}
	resumed := 0
	for _, id := range pending {
		if _, ok := values[id]; ok {
			continue
		}
		values[id] = tombstoneKey(id)
		ids = append(ids, id)
		resumed++
	}
	if resumed > 0 {
		slog.Infof("[%s] resuming %d pending deletions from an interrupted run", l.job.Name, resumed)
	}

	stats.RowsProcessed = int64(len(ids))
	if len(ids) == 0 {
		slog.Infof("[%s] no flagged rows to delete", l.job.Name)
		return stats, nil
	}

	// tombstones first: a crash from here on still knows what is pending
	for _, id := range ids {
		if err := l.store.AddDeletedRecord(ctx, l.pair, id); err != nil {
			return stats, l.saveError("record tombstone", err)
		}
	}
	slog.Infof("[%s] %d tombstones recorded", l.job.Name, len(ids))

	del := l.dest.Dialect().DeleteQuery(l.job.Destination.Table, l.key)
	for _, chunk := range lo.Chunk(ids, l.job.BatchSize) {
		stmts := lo.Map(chunk, func(id string, _ int) Statement {
			return Statement{SQL: del, Args: []any{values[id]}, Key: fmt.Sprintf("%s=%s", l.key, id)}
		})

		out, err := l.uow.Apply(ctx, stmts)
		if err != nil {
			return stats, err
		}

		// failed deletes are marked too; they are logged and not retried
		if err := l.store.MarkDeletedRecordsProcessed(ctx, l.pair, chunk); err != nil {
			return stats, l.saveError("mark tombstones", err)
		}

		stats.Batches++
		stats.RowsDeleted += out.Affected
		stats.addFailures(l.pair, out.Failures)
		l.report(state.ModeDelta, stats, len(chunk))
	}
	return stats, nil
}

// tombstoneKey binds a stored tombstone id. Integer keys are stored in
// decimal form and bind as integers, anything else binds as text.
func tombstoneKey(id string) any {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}

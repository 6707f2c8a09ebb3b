package engine

import (
	"context"
	"fmt"

	"db-sync/internal/state"

	"github.com/gookit/slog"
)

// IncrementalLoad copies rows whose key is above the stored watermark and
// moves the watermark after every committed batch.
type IncrementalLoad struct {
	*runEnv
}

func (l *IncrementalLoad) Execute(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	keyIdx := l.keyIndex()
	if keyIdx < 0 {
		return stats, newError(KindConfiguration, "incremental load",
			fmt.Errorf("key column %q is not part of the extraction result", l.key))
	}

	var cursor any
	wm, err := l.store.GetLastProcessedValue(ctx, l.pair, l.key)
	if err != nil {
		return stats, l.saveError("load watermark", err)
	}
	if wm != nil {
		cursor, err = decodeKey(wm.Value, wm.KeyType)
		if err != nil {
			return stats, newError(KindConfiguration, "decode watermark", err)
		}
		slog.Infof("[%s] incremental load after %s=%s", l.job.Name, l.key, wm.Value)
	} else {
		slog.Infof("[%s] no watermark for %s, incremental load starts unbounded", l.job.Name, l.key)
	}

	base, _ := splitOrderBy(l.query)
	for {
		q, args := l.keysetQuery(base, cursor)
		rs, err := l.fetch(ctx, q, args...)
		if err != nil {
			return stats, err
		}
		if rs.Len() == 0 {
			break
		}

		out, err := l.uow.Apply(ctx, l.insertStatements(rs, keyIdx))
		if err != nil {
			return stats, err
		}

		next, err := nextCursor(cursor, rs.Rows, keyIdx, l.key)
		if err != nil {
			return stats, newError(KindBatch, "advance watermark", err)
		}
		cursor = next

		stats.Batches++
		stats.RowsProcessed += int64(rs.Len())
		stats.RowsInserted += int64(out.Applied)
		stats.addFailures(l.pair, out.Failures)

		text, typ, err := encodeKey(cursor)
		if err != nil {
			return stats, newError(KindConfiguration, "encode watermark", err)
		}
		if err := l.store.UpdateLastProcessedValue(ctx, &state.Watermark{Pair: l.pair, KeyColumn: l.key, Value: text, KeyType: typ}); err != nil {
			return stats, l.saveError("update watermark", err)
		}
		err = l.store.SaveCheckpoint(ctx, &state.Checkpoint{
			Pair:          l.pair,
			Mode:          state.ModeIncremental,
			KeyColumn:     l.key,
			LastKey:       text,
			KeyType:       typ,
			BatchNumber:   stats.Batches,
			RowsProcessed: stats.RowsProcessed,
			RowsInserted:  stats.RowsInserted,
		})
		if err != nil {
			return stats, l.saveError("save checkpoint", err)
		}
		l.report(state.ModeIncremental, stats, rs.Len())
	}

	if stats.Batches > 0 {
		if err := l.store.CompleteCheckpoint(ctx, l.pair, state.ModeIncremental); err != nil {
			return stats, l.saveError("complete checkpoint", err)
		}
	}
	return stats, nil
}

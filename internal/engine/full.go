package engine

import (
	"context"
	"strings"

	"db-sync/internal/state"

	"github.com/gookit/slog"
)

// FullLoad copies the whole extraction result. With the key column in the
// result it pages by key and resumes from its checkpoint; without it, it
// pages by offset and always starts over.
type FullLoad struct {
	*runEnv
}

func (f *FullLoad) Execute(ctx context.Context) (*Stats, error) {
	if idx := f.keyIndex(); idx >= 0 {
		return f.keyset(ctx, idx)
	}
	slog.Warnf("[%s] key column %q not in extraction result, using offset pagination (no resume)", f.job.Name, f.key)
	return f.offset(ctx)
}

func (f *FullLoad) keyset(ctx context.Context, keyIdx int) (*Stats, error) {
	stats := &Stats{}
	var cursor any

	cp, err := f.store.GetCheckpoint(ctx, f.pair, state.ModeFull)
	if err != nil {
		return stats, f.saveError("load checkpoint", err)
	}
	if cp != nil && cp.LastKey != "" && strings.EqualFold(cp.KeyColumn, f.key) {
		cursor, err = decodeKey(cp.LastKey, cp.KeyType)
		if err != nil {
			return stats, newError(KindConfiguration, "decode checkpoint key", err)
		}
		stats.Batches = cp.BatchNumber
		stats.RowsProcessed = cp.RowsProcessed
		stats.RowsInserted = cp.RowsInserted
		slog.Infof("[%s] resuming full load after %s=%s (batch %d)", f.job.Name, f.key, cp.LastKey, cp.BatchNumber)
	}

	base, _ := splitOrderBy(f.query)
	for {
		q, args := f.keysetQuery(base, cursor)
		rs, err := f.fetch(ctx, q, args...)
		if err != nil {
			return stats, err
		}
		if rs.Len() == 0 {
			break
		}

		out, err := f.uow.Apply(ctx, f.insertStatements(rs, keyIdx))
		if err != nil {
			return stats, err
		}

		next, err := nextCursor(cursor, rs.Rows, keyIdx, f.key)
		if err != nil {
			return stats, newError(KindBatch, "advance cursor", err)
		}
		cursor = next

		stats.Batches++
		stats.RowsProcessed += int64(rs.Len())
		stats.RowsInserted += int64(out.Applied)
		stats.addFailures(f.pair, out.Failures)

		text, typ, err := encodeKey(cursor)
		if err != nil {
			return stats, newError(KindConfiguration, "encode cursor", err)
		}
		err = f.store.SaveCheckpoint(ctx, &state.Checkpoint{
			Pair:          f.pair,
			Mode:          state.ModeFull,
			KeyColumn:     f.key,
			LastKey:       text,
			KeyType:       typ,
			BatchNumber:   stats.Batches,
			RowsProcessed: stats.RowsProcessed,
			RowsInserted:  stats.RowsInserted,
		})
		if err != nil {
			return stats, f.saveError("save checkpoint", err)
		}
		f.report(state.ModeFull, stats, rs.Len())
	}

	if err := f.store.CompleteCheckpoint(ctx, f.pair, state.ModeFull); err != nil {
		return stats, f.saveError("complete checkpoint", err)
	}
	if cursor != nil {
		if err := f.seedWatermark(ctx, cursor); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// seedWatermark lets the next incremental run start after the loaded range.
// The last key of a completed scan is the source maximum, so it replaces any
// older watermark.
func (f *FullLoad) seedWatermark(ctx context.Context, cursor any) error {
	text, typ, err := encodeKey(cursor)
	if err != nil {
		return newError(KindConfiguration, "encode watermark", err)
	}
	if err := f.store.UpdateLastProcessedValue(ctx, &state.Watermark{Pair: f.pair, KeyColumn: f.key, Value: text, KeyType: typ}); err != nil {
		return f.saveError("seed watermark", err)
	}
	return nil
}

func (f *FullLoad) offset(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	cp, err := f.store.GetCheckpoint(ctx, f.pair, state.ModeFull)
	if err != nil {
		return stats, f.saveError("load checkpoint", err)
	}
	if cp != nil {
		slog.Warnf("[%s] discarding checkpoint at batch %d: offset pagination cannot resume", f.job.Name, cp.BatchNumber)
		if err := f.store.ClearCheckpoint(ctx, f.pair, state.ModeFull); err != nil {
			return stats, f.saveError("clear checkpoint", err)
		}
	}

	base, orderBy := splitOrderBy(f.query)
	for {
		q := f.source.Dialect().Paginate(base, orderBy, f.job.BatchSize, stats.Batches*f.job.BatchSize)
		rs, err := f.fetch(ctx, q)
		if err != nil {
			return stats, err
		}
		if rs.Len() == 0 {
			break
		}

		out, err := f.uow.Apply(ctx, f.insertStatements(rs, -1))
		if err != nil {
			return stats, err
		}

		stats.Batches++
		stats.RowsProcessed += int64(rs.Len())
		stats.RowsInserted += int64(out.Applied)
		stats.addFailures(f.pair, out.Failures)

		err = f.store.SaveCheckpoint(ctx, &state.Checkpoint{
			Pair:          f.pair,
			Mode:          state.ModeFull,
			BatchNumber:   stats.Batches,
			RowsProcessed: stats.RowsProcessed,
			RowsInserted:  stats.RowsInserted,
		})
		if err != nil {
			return stats, f.saveError("save checkpoint", err)
		}
		f.report(state.ModeFull, stats, rs.Len())
	}

	if err := f.store.CompleteCheckpoint(ctx, f.pair, state.ModeFull); err != nil {
		return stats, f.saveError("complete checkpoint", err)
	}
	return stats, nil
}

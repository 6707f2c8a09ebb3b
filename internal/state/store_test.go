package state_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"db-sync/internal/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var pair = state.Pair{Source: "orders", Dest: "orders_copy"}

// mongoURI enables the MongoDB backend in every store test.
const mongoURI = "DB_SYNC_MONGO_URI"

func newSQLiteStore(t *testing.T) state.Store {
	t.Helper()
	s, err := state.NewSQLiteStore(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	require.NoError(t, s.Init(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// newMongoStore opens a store on a throwaway database that is dropped
// when the test ends.
func newMongoStore(t *testing.T, uri string) state.Store {
	t.Helper()
	ctx := context.Background()
	name := "db_sync_test_" + strings.ToLower(state.NewRunID())

	s, err := state.NewMongoStore(ctx, uri, name)
	require.NoError(t, err)
	require.NoError(t, s.Init(ctx))
	t.Cleanup(func() {
		_ = s.Close()
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
		if err != nil {
			return
		}
		defer client.Disconnect(ctx)
		_ = client.Database(name).Drop(ctx)
	})
	return s
}

// eachStore runs fn against SQLite, and against MongoDB when
// DB_SYNC_MONGO_URI is set.
func eachStore(t *testing.T, fn func(t *testing.T, s state.Store)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, newSQLiteStore(t)) })
	t.Run("mongo", func(t *testing.T) {
		uri := os.Getenv(mongoURI)
		if uri == "" {
			t.Skipf("%s not set", mongoURI)
		}
		fn(t, newMongoStore(t, uri))
	})
}

func TestCheckpointLifecycle(t *testing.T) {
	eachStore(t, func(t *testing.T, s state.Store) {
		ctx := context.Background()

		cp, err := s.GetCheckpoint(ctx, pair, state.ModeFull)
		require.NoError(t, err)
		assert.Nil(t, cp, "fresh pair has no checkpoint")

		require.NoError(t, s.SaveCheckpoint(ctx, &state.Checkpoint{
			Pair: pair, Mode: state.ModeFull, KeyColumn: "id", LastKey: "1000", KeyType: "int",
			BatchNumber: 1, RowsProcessed: 1000, RowsInserted: 1000,
		}))
		require.NoError(t, s.SaveCheckpoint(ctx, &state.Checkpoint{
			Pair: pair, Mode: state.ModeFull, KeyColumn: "id", LastKey: "2000", KeyType: "int",
			BatchNumber: 2, RowsProcessed: 2000, RowsInserted: 1999,
		}))

		cp, err = s.GetCheckpoint(ctx, pair, state.ModeFull)
		require.NoError(t, err)
		require.NotNil(t, cp)
		assert.Equal(t, "2000", cp.LastKey)
		assert.Equal(t, 2, cp.BatchNumber)
		assert.Equal(t, int64(1999), cp.RowsInserted)
		assert.Equal(t, state.StatusInProgress, cp.Status)

		all, err := s.ListCheckpoints(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1, "upsert keeps one row per pair and mode")

		require.NoError(t, s.CompleteCheckpoint(ctx, pair, state.ModeFull))
		cp, err = s.GetCheckpoint(ctx, pair, state.ModeFull)
		require.NoError(t, err)
		assert.Nil(t, cp, "completed checkpoints are not resumable")

		has, err := s.HasCheckpoint(ctx, pair)
		require.NoError(t, err)
		assert.True(t, has, "completed checkpoints still count")

		require.NoError(t, s.ClearCheckpoint(ctx, pair, state.ModeFull))
		has, err = s.HasCheckpoint(ctx, pair)
		require.NoError(t, err)
		assert.False(t, has)
	})
}

func TestClearAllCheckpoints(t *testing.T) {
	eachStore(t, func(t *testing.T, s state.Store) {
		ctx := context.Background()

		other := state.Pair{Source: "users", Dest: "users_copy"}
		require.NoError(t, s.SaveCheckpoint(ctx, &state.Checkpoint{Pair: pair, Mode: state.ModeFull}))
		require.NoError(t, s.SaveCheckpoint(ctx, &state.Checkpoint{Pair: other, Mode: state.ModeIncremental}))

		require.NoError(t, s.ClearCheckpoints(ctx, pair))
		all, err := s.ListCheckpoints(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, other, all[0].Pair)

		require.NoError(t, s.ClearAllCheckpoints(ctx))
		all, err = s.ListCheckpoints(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)
	})
}

func TestWatermarks(t *testing.T) {
	eachStore(t, func(t *testing.T, s state.Store) {
		ctx := context.Background()

		wm, err := s.GetLastProcessedValue(ctx, pair, "id")
		require.NoError(t, err)
		assert.Nil(t, wm)

		require.NoError(t, s.UpdateLastProcessedValue(ctx, &state.Watermark{Pair: pair, KeyColumn: "id", Value: "500", KeyType: "int"}))
		require.NoError(t, s.UpdateLastProcessedValue(ctx, &state.Watermark{Pair: pair, KeyColumn: "id", Value: "510", KeyType: "int"}))

		wm, err = s.GetLastProcessedValue(ctx, pair, "id")
		require.NoError(t, err)
		require.NotNil(t, wm)
		assert.Equal(t, "510", wm.Value)
		assert.Equal(t, "int", wm.KeyType)
		assert.False(t, wm.UpdatedAt.IsZero())

		list, err := s.ListWatermarks(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 1)

		require.NoError(t, s.ClearWatermarks(ctx, pair))
		wm, err = s.GetLastProcessedValue(ctx, pair, "id")
		require.NoError(t, err)
		assert.Nil(t, wm)
	})
}

func TestTombstones(t *testing.T) {
	eachStore(t, func(t *testing.T, s state.Store) {
		ctx := context.Background()

		for _, id := range []string{"7", "9", "12", "9"} {
			require.NoError(t, s.AddDeletedRecord(ctx, pair, id))
		}

		pending, err := s.PendingDeletedRecords(ctx, pair)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"7", "9", "12"}, pending, "duplicate ids are ignored")

		require.NoError(t, s.MarkDeletedRecordsProcessed(ctx, pair, []string{"7", "12"}))
		pending, err = s.PendingDeletedRecords(ctx, pair)
		require.NoError(t, err)
		assert.Equal(t, []string{"9"}, pending)

		// re-adding a processed id does not resurrect it
		require.NoError(t, s.AddDeletedRecord(ctx, pair, "7"))
		pending, err = s.PendingDeletedRecords(ctx, pair)
		require.NoError(t, err)
		assert.Equal(t, []string{"9"}, pending)
	})
}

func TestResetPair(t *testing.T) {
	eachStore(t, func(t *testing.T, s state.Store) {
		ctx := context.Background()

		require.NoError(t, s.SaveCheckpoint(ctx, &state.Checkpoint{Pair: pair, Mode: state.ModeFull, LastKey: "10"}))
		require.NoError(t, s.UpdateLastProcessedValue(ctx, &state.Watermark{Pair: pair, KeyColumn: "id", Value: "10"}))
		require.NoError(t, s.AddDeletedRecord(ctx, pair, "3"))

		require.NoError(t, s.ResetPair(ctx, pair))

		has, err := s.HasCheckpoint(ctx, pair)
		require.NoError(t, err)
		assert.False(t, has)
		wm, err := s.GetLastProcessedValue(ctx, pair, "id")
		require.NoError(t, err)
		assert.Nil(t, wm)
		pending, err := s.PendingDeletedRecords(ctx, pair)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})
}

func TestRunHistory(t *testing.T) {
	eachStore(t, func(t *testing.T, s state.Store) {
		ctx := context.Background()

		start := time.Now().Add(-time.Minute)
		first := &state.RunResult{Pair: pair, Mode: state.ModeFull, Status: state.StatusCompleted,
			RowsProcessed: 2500, RowsInserted: 2500, Batches: 3,
			StartedAt: start, FinishedAt: start.Add(time.Second), Duration: time.Second}
		second := &state.RunResult{Pair: pair, Mode: state.ModeIncremental, Status: state.StatusFailed,
			Error: "connection refused", RowErrors: []string{"row 3: duplicate key"},
			StartedAt: start.Add(30 * time.Second), FinishedAt: start.Add(31 * time.Second)}

		require.NoError(t, s.RecordRun(ctx, first))
		require.NoError(t, s.RecordRun(ctx, second))
		assert.NotEmpty(t, first.ID)

		runs, err := s.ListRuns(ctx, 0)
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, second.ID, runs[0].ID, "newest first")
		assert.Equal(t, state.StatusFailed, runs[0].Status)
		assert.Equal(t, []string{"row 3: duplicate key"}, runs[0].RowErrors)
		assert.Equal(t, int64(2500), runs[1].RowsInserted)
		assert.Equal(t, time.Second, runs[1].Duration)

		runs, err = s.ListRuns(ctx, 1)
		require.NoError(t, err)
		assert.Len(t, runs, 1)
	})
}

func TestRunHistoryOrdersWithinOneSecond(t *testing.T) {
	eachStore(t, func(t *testing.T, s state.Store) {
		ctx := context.Background()

		whole := time.Date(2024, 5, 1, 10, 0, 5, 0, time.UTC)
		later := &state.RunResult{Pair: pair, Mode: state.ModeIncremental, Status: state.StatusCompleted,
			StartedAt: whole.Add(500 * time.Millisecond)}
		earlier := &state.RunResult{Pair: pair, Mode: state.ModeIncremental, Status: state.StatusCompleted,
			StartedAt: whole}

		require.NoError(t, s.RecordRun(ctx, later))
		require.NoError(t, s.RecordRun(ctx, earlier))

		runs, err := s.ListRuns(ctx, 0)
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, later.ID, runs[0].ID)
		assert.True(t, runs[0].StartedAt.Equal(whole.Add(500*time.Millisecond)))
		assert.True(t, runs[1].StartedAt.Equal(whole))
	})
}

func TestParseMode(t *testing.T) {
	m, err := state.ParseMode("delta")
	require.NoError(t, err)
	assert.Equal(t, state.ModeDelta, m)

	_, err = state.ParseMode("FULL")
	assert.Error(t, err)
}

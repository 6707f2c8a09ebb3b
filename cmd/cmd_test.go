package cmd

import (
	"bytes"
	"context"
	"testing"
	"time"

	"db-sync/internal/config"
	"db-sync/internal/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectJobs(t *testing.T) {
	cfg := &config.Config{Jobs: []config.Job{{Name: "orders"}, {Name: "users"}}}

	all, err := selectJobs(cfg, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	all[0].BatchSize = 7
	assert.Equal(t, 7, cfg.Jobs[0].BatchSize, "jobs are returned by reference")

	one, err := selectJobs(cfg, "users")
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "users", one[0].Name)

	_, err = selectJobs(cfg, "missing")
	assert.Error(t, err)
}

func TestWriteHistory(t *testing.T) {
	runs := []state.RunResult{{
		ID:            "01J0000000000000000000000A",
		Pair:          state.Pair{Source: "orders", Dest: "orders_copy"},
		Mode:          state.ModeFull,
		Status:        state.StatusCompleted,
		RowsProcessed: 2500,
		RowsInserted:  2500,
		StartedAt:     time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Duration:      1500 * time.Millisecond,
	}}

	var buf bytes.Buffer
	require.NoError(t, writeHistory(&buf, runs, "table"))
	assert.Contains(t, buf.String(), "orders_copy")
	assert.Contains(t, buf.String(), "1.5s")

	buf.Reset()
	require.NoError(t, writeHistory(&buf, runs, "yaml"))
	assert.Contains(t, buf.String(), "source_table: orders")
	assert.Contains(t, buf.String(), "status: completed")

	assert.Error(t, writeHistory(&buf, runs, "xml"))
}

func TestDrainContextOutlivesSignalByGrace(t *testing.T) {
	signals, interrupt := context.WithCancel(context.Background())
	ctx, cancel := drainContext(signals, 50*time.Millisecond)
	defer cancel()

	interrupt()
	assert.NoError(t, ctx.Err(), "running job keeps its context during the grace period")
	assert.Eventually(t, func() bool { return ctx.Err() != nil }, time.Second, 5*time.Millisecond)
}

func TestDrainContextCancelWithoutSignal(t *testing.T) {
	signals, interrupt := context.WithCancel(context.Background())
	defer interrupt()
	ctx, cancel := drainContext(signals, time.Hour)

	cancel()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.NoError(t, signals.Err())
}

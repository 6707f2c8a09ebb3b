package scheduler

import (
	"context"
	"testing"
	"time"

	"db-sync/internal/engine"
	"db-sync/internal/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runnerFunc func(ctx context.Context) (*state.RunResult, error)

func (f runnerFunc) Run(ctx context.Context) (*state.RunResult, error) { return f(ctx) }

func TestAdd(t *testing.T) {
	s := New(time.Second)
	noop := runnerFunc(func(context.Context) (*state.RunResult, error) { return nil, nil })

	require.NoError(t, s.Add("orders", "*/5 * * * *", noop))
	require.NoError(t, s.Add("customers", "@hourly", noop))
	assert.Error(t, s.Add("orders", "@daily", noop), "duplicate name")
	assert.Error(t, s.Add("broken", "every now and then", noop))

	entries := s.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "customers", entries[0].Job)
	assert.Equal(t, "orders", entries[1].Job)
}

func TestFireRecordsLastRun(t *testing.T) {
	s := New(time.Second)
	j := &job{name: "orders"}

	s.fire(j, runnerFunc(func(context.Context) (*state.RunResult, error) {
		return &state.RunResult{ID: "01RUN", Status: state.StatusCompleted}, nil
	}))
	require.NotNil(t, j.last)
	assert.Equal(t, "01RUN", j.last.ID)
	assert.Equal(t, state.StatusCompleted, j.last.Status)

	s.fire(j, runnerFunc(func(context.Context) (*state.RunResult, error) {
		return nil, engine.ErrRunInProgress
	}))
	assert.Equal(t, "01RUN", j.last.ID, "skipped run leaves the last result alone")
	assert.False(t, j.running)
}

func TestStopCancelsAfterGrace(t *testing.T) {
	s := New(50 * time.Millisecond)
	started := make(chan struct{})
	cancelled := make(chan struct{})

	require.NoError(t, s.Add("slow", "@every 1s", runnerFunc(func(ctx context.Context) (*state.RunResult, error) {
		close(started)
		<-ctx.Done()
		close(cancelled)
		return nil, ctx.Err()
	})))
	s.Start()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job never started")
	}

	s.Stop()
	select {
	case <-cancelled:
	default:
		t.Fatal("running job was not cancelled")
	}
}

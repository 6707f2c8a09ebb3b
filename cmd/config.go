package cmd

import (
	"context"
	"fmt"
	"time"

	"db-sync/internal/config"
	"db-sync/internal/database"
	"db-sync/internal/engine"
	"db-sync/internal/state"

	"github.com/gookit/slog"
	"github.com/spf13/viper"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	if len(cfg.Jobs) == 0 {
		return nil, fmt.Errorf("no jobs configured")
	}
	return cfg, nil
}

// selectJobs returns the named job, or every job when name is empty.
func selectJobs(cfg *config.Config, name string) ([]*config.Job, error) {
	if name != "" {
		job, err := cfg.Job(name)
		if err != nil {
			return nil, err
		}
		return []*config.Job{job}, nil
	}
	jobs := make([]*config.Job, len(cfg.Jobs))
	for i := range cfg.Jobs {
		jobs[i] = &cfg.Jobs[i]
	}
	return jobs, nil
}

func openStore(ctx context.Context, cfg *config.Config) (state.Store, error) {
	store, err := state.Open(ctx, cfg.State)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	if err := store.Init(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("init state store: %w", err)
	}
	return store, nil
}

// endpoints holds both connection pools of a job.
type endpoints struct {
	source *database.DB
	dest   *database.DB
}

func openEndpoints(job *config.Job) (*endpoints, error) {
	src, err := database.Open(job.Name+"/source", job.SourceOptions())
	if err != nil {
		return nil, err
	}
	dst, err := database.Open(job.Name+"/destination", job.DestinationOptions())
	if err != nil {
		_ = src.Close()
		return nil, err
	}
	return &endpoints{source: src, dest: dst}, nil
}

func (e *endpoints) Close() {
	_ = e.source.Close()
	_ = e.dest.Close()
}

func newOrchestrator(job *config.Job, ep *endpoints, store state.Store, opts ...engine.Option) *engine.Orchestrator {
	return engine.NewOrchestrator(job, ep.source, ep.dest, store, opts...)
}

// drainContext detaches a run from signals: once signals is done the run
// gets grace to finish its current batch before its context is cancelled.
func drainContext(signals context.Context, grace time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(signals))
	go func() {
		select {
		case <-signals.Done():
		case <-ctx.Done():
			return
		}
		slog.Warnf("interrupted, waiting up to %s for the running job", grace)
		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-timer.C:
			slog.Warnf("grace period over, cancelling the running job")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

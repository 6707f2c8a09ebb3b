package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"db-sync/internal/config"
	"db-sync/internal/schema"
	"db-sync/internal/state"

	"github.com/gookit/slog"
	"golang.org/x/sync/errgroup"
)

// Orchestrator runs one job: pre-flight, schema gate, mode selection and
// the chosen strategy. One run at a time per orchestrator.
type Orchestrator struct {
	job      *config.Job
	source   Database
	dest     Database
	store    state.Store
	progress func(Progress)
	now      func() time.Time

	running atomic.Bool
}

type Option func(*Orchestrator)

// WithProgress registers a callback fired after every committed batch.
func WithProgress(fn func(Progress)) Option {
	return func(o *Orchestrator) { o.progress = fn }
}

func NewOrchestrator(job *config.Job, source, dest Database, store state.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		job:    job,
		source: source,
		dest:   dest,
		store:  store,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Init prepares the state store. A store shared between orchestrators is
// initialized once by its owner instead.
func (o *Orchestrator) Init(ctx context.Context) error {
	if err := o.store.Init(ctx); err != nil {
		return newError(KindConnectivity, "init state store", err)
	}
	return nil
}

func (o *Orchestrator) Close() error {
	return o.store.Close()
}

// Run executes the job once. The returned RunResult is also recorded in
// the store, whatever the outcome, unless the configuration is invalid or
// another run is active.
func (o *Orchestrator) Run(ctx context.Context) (res *state.RunResult, err error) {
	if err := o.job.Validate(); err != nil {
		return nil, newError(KindConfiguration, "validate job", err)
	}
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer o.running.Store(false)

	pair := o.job.Pair()
	res = &state.RunResult{
		ID:        state.NewRunID(),
		Pair:      pair,
		Status:    state.StatusInProgress,
		StartedAt: o.now(),
	}
	defer o.finalize(ctx, res, &err)

	slog.Infof("[%s] run %s started: %s", o.job.Name, res.ID, pair)

	if err := o.preflight(ctx); err != nil {
		return res, err
	}
	if err := o.freshStart(ctx); err != nil {
		return res, err
	}
	report, columns, err := o.gate(ctx)
	if err != nil {
		return res, err
	}
	logFindings(o.job.Name, report)

	decision, err := o.decide(ctx)
	if err != nil {
		return res, err
	}
	res.Mode = decision.Mode
	res.Reason = decision.Reason
	slog.Infof("[%s] mode %s", o.job.Name, decision)

	key := decision.KeyColumn
	if key == "" {
		key = o.job.PrimaryKey
	}
	strategy, err := newStrategy(decision.Mode, &runEnv{
		job:      o.job,
		pair:     pair,
		source:   o.source,
		dest:     o.dest,
		store:    o.store,
		uow:      NewUnitOfWork(o.dest, o.job.ThrottleDelay),
		query:    o.job.ExtractionQuery(),
		columns:  columns,
		key:      key,
		progress: o.progress,
	})
	if err != nil {
		return res, err
	}

	stats, err := strategy.Execute(ctx)
	if stats != nil {
		res.RowsProcessed = stats.RowsProcessed
		res.RowsInserted = stats.RowsInserted
		res.RowsDeleted = stats.RowsDeleted
		res.RowsFailed = stats.RowsFailed
		res.Batches = stats.Batches
		res.RowErrors = stats.RowErrors
	}
	return res, err
}

func (o *Orchestrator) finalize(ctx context.Context, res *state.RunResult, errp *error) {
	res.FinishedAt = o.now()
	res.Duration = res.FinishedAt.Sub(res.StartedAt)
	if *errp != nil {
		res.Status = state.StatusFailed
		res.Error = (*errp).Error()
		slog.Errorf("[%s] run %s failed after %s: %v", o.job.Name, res.ID, res.Duration, *errp)
	} else {
		res.Status = state.StatusCompleted
		slog.WithFields(slog.M{
			"job":       o.job.Name,
			"run":       res.ID,
			"mode":      string(res.Mode),
			"processed": res.RowsProcessed,
			"inserted":  res.RowsInserted,
			"deleted":   res.RowsDeleted,
			"failed":    res.RowsFailed,
			"batches":   res.Batches,
			"duration":  res.Duration.String(),
		}).Info("run completed")
	}

	// the run may have been cancelled; history is still written
	if err := o.store.RecordRun(context.WithoutCancel(ctx), res); err != nil {
		slog.Errorf("[%s] record run %s: %v", o.job.Name, res.ID, err)
	}
}

// Validate runs pre-flight and the schema gate without moving data.
func (o *Orchestrator) Validate(ctx context.Context) (*schema.Report, error) {
	if err := o.job.Validate(); err != nil {
		return nil, newError(KindConfiguration, "validate job", err)
	}
	if err := o.preflight(ctx); err != nil {
		return nil, err
	}
	report, _, err := o.gate(ctx)
	return report, err
}

func (o *Orchestrator) preflight(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, db := range []Database{o.source, o.dest} {
		g.Go(func() error {
			if err := db.Ping(gctx); err != nil {
				return fmt.Errorf("%s: %w", db.Name(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return newError(KindConnectivity, "ping", err)
	}

	checks := []struct {
		db    Database
		table string
	}{
		{o.source, o.job.Source.Table},
		{o.dest, o.job.Destination.Table},
	}
	for _, c := range checks {
		ok, err := c.db.TableExists(ctx, c.table)
		if err != nil {
			return newError(KindConnectivity, "check table", fmt.Errorf("%s: %w", c.db.Name(), err))
		}
		if !ok {
			return newError(KindSchema, "check table", fmt.Errorf("%s: table %s does not exist", c.db.Name(), c.table))
		}
	}
	return nil
}

// freshStart drops stored state when a refresh is forced or when the
// destination was emptied behind our back.
func (o *Orchestrator) freshStart(ctx context.Context) error {
	pair := o.job.Pair()
	reason := ""
	if o.job.ForceFullRefresh {
		reason = "full refresh forced"
	} else {
		count, err := o.dest.RowCount(ctx, o.job.Destination.Table, "")
		if err != nil {
			return newError(KindConnectivity, "count destination rows", err)
		}
		if count == 0 {
			has, err := o.store.HasCheckpoint(ctx, pair)
			if err != nil {
				return newError(KindBatch, "look up checkpoints", err)
			}
			if has {
				reason = "destination is empty but checkpoints exist"
			}
		}
	}
	if reason == "" {
		return nil
	}
	slog.Warnf("[%s] resetting stored state: %s", o.job.Name, reason)
	if err := o.store.ResetPair(ctx, pair); err != nil {
		return newError(KindBatch, "reset state", err)
	}
	return nil
}

// gate probes the extraction query and compares its columns with the
// destination table.
func (o *Orchestrator) gate(ctx context.Context) (*schema.Report, []string, error) {
	srcCols, err := o.source.QueryColumnMetadata(ctx, o.job.ExtractionQuery())
	if err != nil {
		return nil, nil, newError(KindConfiguration, "probe extraction query", err)
	}
	destCols, err := o.dest.TableSchema(ctx, o.job.Destination.Table)
	if err != nil {
		return nil, nil, newError(KindConnectivity, "read destination schema", err)
	}

	targetPK := ""
	if o.job.VerifyTargetKey {
		targetPK = o.job.PrimaryKey
	}
	report := schema.Compare(srcCols, destCols.Columns, targetPK)
	if !report.Compatible {
		return &report, nil, newError(KindSchema, "schema gate", errors.New(report.Summary()))
	}

	names := make([]string, len(srcCols))
	for i, c := range srcCols {
		names[i] = c.Name
	}
	return &report, names, nil
}

func (o *Orchestrator) decide(ctx context.Context) (Decision, error) {
	switch {
	case o.job.ForceFullRefresh:
		return Forced(state.ModeFull, o.job.PrimaryKey, "full refresh forced"), nil
	case o.job.Mode != "":
		mode, err := state.ParseMode(o.job.Mode)
		if err != nil {
			return Decision{}, newError(KindConfiguration, "parse mode", err)
		}
		return Forced(mode, o.job.PrimaryKey, "mode set in configuration"), nil
	}
	// an interrupted full load finishes before anything else is detected
	cp, err := o.store.GetCheckpoint(ctx, o.job.Pair(), state.ModeFull)
	if err != nil {
		return Decision{}, newError(KindBatch, "look up full-load checkpoint", err)
	}
	if cp != nil {
		return Decision{
			Mode:      state.ModeFull,
			KeyColumn: o.job.PrimaryKey,
			Reason:    fmt.Sprintf("resuming interrupted full load at batch %d", cp.BatchNumber),
		}, nil
	}
	d := &Detector{Source: o.source, Dest: o.dest, Job: o.job}
	return d.Detect(ctx)
}

func logFindings(job string, r *schema.Report) {
	for _, f := range r.Warnings {
		slog.Warnf("[%s] schema: %s", job, f)
	}
}

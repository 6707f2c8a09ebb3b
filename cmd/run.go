package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"db-sync/internal/config"
	"db-sync/internal/engine"
	"db-sync/internal/state"

	"github.com/gookit/slog"
	"github.com/gosuri/uiprogress"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	runJob       string
	runMode      string
	runForceFull bool
	runNoBar     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one job, or every configured job, once",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		jobs, err := selectJobs(cfg, runJob)
		if err != nil {
			return err
		}

		signals, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx, cancel := drainContext(signals, cfg.ShutdownGrace)
		defer cancel()

		failed := 0
		for _, job := range jobs {
			if runMode != "" {
				job.Mode = runMode
			}
			if runForceFull {
				job.ForceFullRefresh = true
			}
			res, err := runOnce(ctx, cfg, job)
			printRun(job, res, err)
			if err != nil {
				failed++
			}
			if signals.Err() != nil {
				break
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d jobs failed", failed, len(jobs))
		}
		return nil
	},
}

// runOnce gives the orchestrator its own store handle and lets it own the
// handle's lifecycle.
func runOnce(ctx context.Context, cfg *config.Config, job *config.Job) (*state.RunResult, error) {
	store, err := state.Open(ctx, cfg.State)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	ep, err := openEndpoints(job)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	defer ep.Close()

	var opts []engine.Option
	if !runNoBar && term.IsTerminal(int(os.Stdout.Fd())) {
		bar := newProgressBar(ctx, job, ep)
		defer uiprogress.Stop()
		opts = append(opts, engine.WithProgress(bar))
	}
	o := newOrchestrator(job, ep, store, opts...)
	defer o.Close()
	if err := o.Init(ctx); err != nil {
		return nil, err
	}
	return o.Run(ctx)
}

// newProgressBar sizes the bar from the source row count; it is only a
// hint, so a failed count leaves the bar unbounded.
func newProgressBar(ctx context.Context, job *config.Job, ep *endpoints) func(engine.Progress) {
	total, err := ep.source.RowCount(ctx, job.Source.Table, "")
	if err != nil || total == 0 {
		total = 1
	}

	uiprogress.Start()
	bar := uiprogress.AddBar(int(total)).AppendCompleted().PrependElapsed()
	var mode atomic.Value
	mode.Store("")
	bar.PrependFunc(func(b *uiprogress.Bar) string {
		return fmt.Sprintf("%s %-11s", job.Name, mode.Load())
	})
	return func(p engine.Progress) {
		mode.Store(string(p.Mode))
		_ = bar.Set(int(min(p.RowsProcessed, total)))
	}
}

func printRun(job *config.Job, res *state.RunResult, err error) {
	if res == nil {
		fmt.Printf("[!] %s: %v\n", job.Name, err)
		return
	}
	icon := "✓"
	if res.Status != state.StatusCompleted {
		icon = "!"
	}
	fmt.Printf("[%s] %s %s: %d processed, %d inserted, %d deleted, %d failed in %d batches (%s)\n",
		icon, job.Name, res.Mode, res.RowsProcessed, res.RowsInserted, res.RowsDeleted, res.RowsFailed,
		res.Batches, res.Duration.Round(time.Millisecond))
	if err != nil {
		slog.Errorf("[%s] %s error: %v", job.Name, engine.KindOf(err), err)
	}
}

func init() {
	RootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runJob, "job", "j", "", "job to run (default: all jobs)")
	runCmd.Flags().StringVar(&runMode, "mode", "", "force a load mode: full, incremental or delta")
	runCmd.Flags().BoolVar(&runForceFull, "force-full", false, "drop stored state and run a full load")
	runCmd.Flags().BoolVar(&runNoBar, "no-progress", false, "disable the progress bar")
}

package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"db-sync/internal/scheduler"
	"db-sync/internal/server"

	"github.com/gookit/slog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run scheduled jobs and serve their status over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		sched := scheduler.New(cfg.ShutdownGrace)
		jobs, _ := selectJobs(cfg, "")
		for _, job := range jobs {
			if job.Schedule == "" {
				slog.Infof("job %s has no schedule, skipping", job.Name)
				continue
			}
			if err := job.Validate(); err != nil {
				return err
			}
			ep, err := openEndpoints(job)
			if err != nil {
				return err
			}
			defer ep.Close()
			if err := sched.Add(job.Name, job.Schedule, newOrchestrator(job, ep, store)); err != nil {
				return err
			}
		}
		if len(sched.Entries()) == 0 {
			return fmt.Errorf("no job has a schedule")
		}

		srv := server.New(cfg.Server.Listen, sched, store)
		sched.Start()

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return srv.ListenAndServe(gctx) })
		g.Go(func() error {
			<-gctx.Done()
			slog.Infof("shutting down, waiting up to %s for running jobs", cfg.ShutdownGrace)
			sched.Stop()
			return nil
		})
		return g.Wait()
	},
}

func init() {
	RootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", "", "status API address (default :8080)")
	_ = viper.BindPFlag("server.listen", serveCmd.Flags().Lookup("listen"))
}

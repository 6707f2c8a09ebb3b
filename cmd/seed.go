package cmd

import (
	"fmt"
	"os"
	"time"

	"db-sync/internal/seed"

	"github.com/gookit/slog"
	"github.com/gosuri/uiprogress"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var (
	seedJob      string
	seedCount    int
	seedDeleted  float64
	seedTruncate bool
	seedRandSeed int64
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Fill a job's source table with fake rows",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		job, err := cfg.Job(seedJob)
		if err != nil {
			return err
		}
		if err := job.Validate(); err != nil {
			return err
		}
		ep, err := openEndpoints(job)
		if err != nil {
			return err
		}
		defer ep.Close()
		if err := ep.source.Ping(cmd.Context()); err != nil {
			return err
		}

		count := viper.GetInt("seed.count")
		var progress func(int)
		if term.IsTerminal(int(os.Stdout.Fd())) {
			uiprogress.Start()
			bar := uiprogress.AddBar(max(count, 1)).AppendCompleted().PrependElapsed()
			bar.PrependFunc(func(b *uiprogress.Bar) string { return "Seeding " + job.Source.Table + ": " })
			progress = func(n int) { _ = bar.Set(min(bar.Current()+n, count)) }
			defer uiprogress.Stop()
		}

		start := time.Now()
		s := seed.NewSeeder(ep.source, seed.NewGenerator(seedRandSeed), progress)
		res, err := s.Fill(cmd.Context(), seed.Options{
			Table:         job.Source.Table,
			Count:         count,
			BatchSize:     job.BatchSize,
			KeyColumn:     job.PrimaryKey,
			DeletedColumn: job.DeletedColumn,
			DeletedRatio:  seedDeleted,
			Truncate:      seedTruncate,
		})
		if err != nil {
			return err
		}

		fmt.Printf("%s: %d rows inserted (target %d), %d failed, %d flagged deleted\n",
			res.Table, res.Inserted, res.Target, res.Failed, res.Flagged)
		slog.Infof("seed done in %s", time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() {
	RootCmd.AddCommand(seedCmd)

	seedCmd.Flags().StringVarP(&seedJob, "job", "j", "", "job whose source table to fill")
	seedCmd.Flags().IntVar(&seedCount, "count", 0, "number of rows to generate (overrides config)")
	seedCmd.Flags().Float64Var(&seedDeleted, "deleted-ratio", 0, "share of rows flagged in the job's deleted column")
	seedCmd.Flags().BoolVar(&seedTruncate, "truncate", false, "delete existing rows first")
	seedCmd.Flags().Int64Var(&seedRandSeed, "seed", 0, "random seed (0 picks one)")
	_ = seedCmd.MarkFlagRequired("job")

	_ = viper.BindPFlag("seed.count", seedCmd.Flags().Lookup("count"))
	viper.SetDefault("seed.count", 100)
}

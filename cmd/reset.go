package cmd

import (
	"fmt"

	"github.com/gookit/slog"
	"github.com/spf13/cobra"
)

var (
	resetJob string
	resetAll bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop stored sync state so the next run starts fresh",
	Long: `reset --job NAME drops the checkpoints, watermarks and tombstones of one job.
reset --all drops every checkpoint of every job; watermarks are kept.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if resetJob == "" && !resetAll {
			return fmt.Errorf("either --job or --all is required")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		if resetAll {
			if err := store.ClearAllCheckpoints(cmd.Context()); err != nil {
				return err
			}
			slog.Infof("all checkpoints cleared")
			return nil
		}

		job, err := cfg.Job(resetJob)
		if err != nil {
			return err
		}
		if err := store.ResetPair(cmd.Context(), job.Pair()); err != nil {
			return err
		}
		slog.Infof("state of %s (%s) cleared", job.Name, job.Pair())
		return nil
	},
}

func init() {
	RootCmd.AddCommand(resetCmd)
	resetCmd.Flags().StringVarP(&resetJob, "job", "j", "", "job whose state to drop")
	resetCmd.Flags().BoolVar(&resetAll, "all", false, "drop the checkpoints of all jobs")
	resetCmd.MarkFlagsMutuallyExclusive("job", "all")
}

package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"db-sync/internal/state"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	historyLimit  int
	historyOutput string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.ListRuns(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		return writeHistory(os.Stdout, runs, historyOutput)
	},
}

func writeHistory(w io.Writer, runs []state.RunResult, format string) error {
	switch format {
	case "yaml":
		b, err := yaml.Marshal(runs)
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	case "table", "":
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"ID", "SOURCE", "DEST", "MODE", "STATUS", "PROCESSED", "INSERTED", "DELETED", "FAILED", "STARTED", "DURATION"})
		for _, r := range runs {
			table.Append([]string{
				r.ID, r.Source, r.Dest, string(r.Mode), string(r.Status),
				strconv.FormatInt(r.RowsProcessed, 10),
				strconv.FormatInt(r.RowsInserted, 10),
				strconv.FormatInt(r.RowsDeleted, 10),
				strconv.FormatInt(r.RowsFailed, 10),
				r.StartedAt.Local().Format("2006-01-02 15:04:05"),
				r.Duration.Round(time.Millisecond).String(),
			})
		}
		table.Render()
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want table or yaml)", format)
	}
}

func init() {
	RootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to show (0 for all)")
	historyCmd.Flags().StringVarP(&historyOutput, "output", "o", "table", "output format: table or yaml")
}

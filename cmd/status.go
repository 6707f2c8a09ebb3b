package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stored checkpoints, watermarks and pending deletions",
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

		cps, err := store.ListCheckpoints(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println("Checkpoints")
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"SOURCE", "DEST", "MODE", "KEY", "LAST KEY", "BATCH", "PROCESSED", "INSERTED", "STATUS", "UPDATED"})
		for _, cp := range cps {
			table.Append([]string{
				cp.Source, cp.Dest, string(cp.Mode), cp.KeyColumn, cp.LastKey,
				strconv.Itoa(cp.BatchNumber),
				strconv.FormatInt(cp.RowsProcessed, 10),
				strconv.FormatInt(cp.RowsInserted, 10),
				string(cp.Status),
				cp.UpdatedAt.Local().Format("2006-01-02 15:04:05"),
			})
		}
		table.Render()

		wms, err := store.ListWatermarks(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println("\nWatermarks")
		table = tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"SOURCE", "DEST", "KEY", "VALUE", "TYPE", "UPDATED"})
		for _, wm := range wms {
			table.Append([]string{
				wm.Source, wm.Dest, wm.KeyColumn, wm.Value, wm.KeyType,
				wm.UpdatedAt.Local().Format("2006-01-02 15:04:05"),
			})
		}
		table.Render()

		fmt.Println("\nPending deletions")
		table = tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"JOB", "SOURCE", "DEST", "PENDING", "SAMPLE"})
		for _, job := range cfg.Jobs {
			if job.DeletedColumn == "" {
				continue
			}
			pending, err := store.PendingDeletedRecords(cmd.Context(), job.Pair())
			if err != nil {
				return err
			}
			table.Append([]string{
				job.Name, job.Source.Table, job.Destination.Table,
				strconv.Itoa(len(pending)),
				strings.Join(lo.Slice(pending, 0, 5), ", "),
			})
		}
		table.Render()
		return nil
	},
}

func init() {
	RootCmd.AddCommand(statusCmd)
}

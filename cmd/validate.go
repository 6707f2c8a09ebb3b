package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateJob string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check connectivity, tables and schema compatibility without moving data",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		jobs, err := selectJobs(cfg, validateJob)
		if err != nil {
			return err
		}
		bad := 0
		for _, job := range jobs {
			ep, err := openEndpoints(job)
			if err != nil {
				fmt.Printf("[!] %s: %v\n", job.Name, err)
				bad++
				continue
			}
			report, err := newOrchestrator(job, ep, nil).Validate(cmd.Context())
			ep.Close()

			if report != nil {
				for _, f := range report.Errors {
					fmt.Printf("    ERROR   %s\n", f)
				}
				for _, f := range report.Warnings {
					fmt.Printf("    WARNING %s\n", f)
				}
			}
			if err != nil {
				fmt.Printf("[!] %s: %v\n", job.Name, err)
				bad++
				continue
			}
			fmt.Printf("[✓] %s: %s is compatible\n", job.Name, job.Pair())
		}
		if bad > 0 {
			return fmt.Errorf("%d of %d jobs failed validation", bad, len(jobs))
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVarP(&validateJob, "job", "j", "", "job to validate (default: all jobs)")
}

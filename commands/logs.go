// commands/logs.go
package commands

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jszwec/csvutil"
	"github.com/spf13/cobra"

	"github.com/gewnthar/envscrape/models"
)

func newLogsCmd(a *app) *cobra.Command {
	var (
		limit int
		asCSV bool
	)
	cmd := &cobra.Command{
		Use:   "logs [source] [--limit n] [--csv]",
		Short: "Shows the newest ingestion log entries.",
		Args:  cobra.MaximumNArgs(1),
		RunE: a.with(func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return fmt.Errorf("--limit must be positive")
			}
			var (
				entries []models.IngestionLogEntry
				err     error
			)
			sources := map[int64]string{}
			var jobID *int64
			if len(args) == 1 {
				job, jerr := a.jobs.GetJobByName(cmd.Context(), args[0])
				if jerr != nil {
					return jerr
				}
				sources[job.ID] = job.SourceName
				jobID = &job.ID
				entries, err = a.logs.ListByJob(cmd.Context(), job.ID, limit)
			} else {
				entries, err = a.logs.Recent(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if asCSV {
				if len(entries) == 0 {
					return nil
				}
				out, err := csvutil.Marshal(entries)
				if err != nil {
					return fmt.Errorf("failed to encode logs as CSV: %w", err)
				}
				_, err = w.Write(out)
				return err
			}

			if len(sources) == 0 {
				jobs, err := a.jobs.ListJobs(cmd.Context())
				if err != nil {
					return err
				}
				for _, j := range jobs {
					sources[j.ID] = j.SourceName
				}
			}
			t := newTable(w, table.Row{"Log", "Source", "Fetched", "Status", "Processed", "Created", "Updated", "Code", "Time", "Message"})
			for _, e := range entries {
				code, msg := "", ""
				if e.ResponseCode != nil {
					code = fmt.Sprint(*e.ResponseCode)
				}
				if e.ErrorMessage != nil {
					msg = truncate(*e.ErrorMessage, 60)
				}
				t.AppendRow(table.Row{
					e.ID, sources[e.ScraperJobID], formatTime(&e.FetchTimestamp), e.Status,
					e.RecordsProcessed, e.RecordsCreated, e.RecordsUpdated, code,
					fmt.Sprintf("%.2fs", e.ExecutionTime), msg,
				})
			}
			t.Render()

			counts, err := a.logs.Summary(cmd.Context(), jobID)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "Total: %d  Success: %d  Partial: %d  Skipped: %d  Error: %d\n",
				counts.Total, counts.Success, counts.Partial, counts.Skipped, counts.Error)
			return nil
		}),
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of entries.")
	cmd.Flags().BoolVar(&asCSV, "csv", false, "Write CSV instead of a table.")
	return cmd
}

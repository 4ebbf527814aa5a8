// commands/list.go
package commands

import (
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/gewnthar/envscrape/models"
)

func newListCmd(a *app) *cobra.Command {
	var includeInactive bool
	cmd := &cobra.Command{
		Use:   "list [--inactive]",
		Short: "Lists active jobs with their last and next run times.",
		Args:  cobra.NoArgs,
		RunE: a.with(func(cmd *cobra.Command, args []string) error {
			var (
				jobs []models.ScraperJob
				err  error
			)
			if includeInactive {
				jobs, err = a.jobs.ListJobs(cmd.Context())
			} else {
				jobs, err = a.jobs.ListActiveJobs(cmd.Context())
			}
			if err != nil {
				return err
			}

			t := newTable(cmd.OutOrStdout(), table.Row{"ID", "Source", "Type", "Frequency", "Active", "Last Run", "Next Run"})
			for _, j := range jobs {
				next := formatTime(j.NextRun)
				if j.IsActive && j.NextRun == nil {
					next = "now"
				}
				t.AppendRow(table.Row{j.ID, j.SourceName, j.SourceType, j.RunFrequency, j.IsActive, formatTime(j.LastRun), next})
			}
			t.Render()
			return nil
		}),
	}
	cmd.Flags().BoolVar(&includeInactive, "inactive", false, "Include deactivated jobs.")
	return cmd
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}

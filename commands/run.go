// commands/run.go
package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/gewnthar/envscrape/models"
	"github.com/gewnthar/envscrape/services"
)

// ErrRunFailed is returned when a non-dry run logged an error status.
var ErrRunFailed = errors.New("one or more jobs failed")

func newRunCmd(a *app) *cobra.Command {
	var all, due, dryRun bool
	cmd := &cobra.Command{
		Use:   "run [<source> | --all | --due] [--dry-run]",
		Short: "Runs one job, every active job or every due job.",
		Long: "Runs scraper jobs. --dry-run fetches and extracts but writes no entities,\n" +
			"no log entry and leaves the schedule untouched.",
		Args: cobra.MaximumNArgs(1),
		RunE: a.with(func(cmd *cobra.Command, args []string) error {
			selected := 0
			for _, set := range []bool{len(args) == 1, all, due} {
				if set {
					selected++
				}
			}
			if selected != 1 {
				return fmt.Errorf("run needs exactly one of <source>, --all or --due")
			}

			orch := a.orchestrator()
			opts := services.RunOptions{DryRun: dryRun}
			var (
				results []services.RunResult
				err     error
			)
			switch {
			case all:
				results, err = orch.RunAll(cmd.Context(), opts)
			case due:
				results, err = orch.RunDue(cmd.Context(), opts)
			default:
				var res *services.RunResult
				res, err = orch.RunJob(cmd.Context(), args[0], opts)
				if res != nil {
					results = []services.RunResult{*res}
				}
			}
			if err != nil {
				return err
			}
			return report(cmd.OutOrStdout(), results, dryRun)
		}),
	}
	cmd.Flags().BoolVar(&all, "all", false, "Run every active job.")
	cmd.Flags().BoolVar(&due, "due", false, "Run only the active jobs whose next run is due.")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Fetch and extract without writing anything.")
	return cmd
}

// report prints a per-job summary and the final banner. It returns ErrRunFailed
// when a logged run ended in error or could not be recorded.
func report(w io.Writer, results []services.RunResult, dryRun bool) error {
	if len(results) == 0 {
		fmt.Fprintln(w, "No jobs to run.")
		return nil
	}

	t := newTable(w, table.Row{"Source", "Status", "Pages", "Processed", "Created", "Updated", "Time", "Message"})
	failed := 0
	for _, r := range results {
		msg := ""
		if r.Entry.ErrorMessage != nil {
			msg = *r.Entry.ErrorMessage
		}
		if r.Err != nil {
			msg = r.Err.Error()
		}
		t.AppendRow(table.Row{
			r.SourceName, r.Status(), r.Pages,
			r.Entry.RecordsProcessed, r.Entry.RecordsCreated, r.Entry.RecordsUpdated,
			fmt.Sprintf("%.2fs", r.Entry.ExecutionTime), truncate(msg, 60),
		})
		if r.Status() == models.StatusError || r.Err != nil {
			failed++
		}
	}
	t.Render()

	switch {
	case dryRun:
		fmt.Fprintf(w, "DRY RUN: %d job(s) fetched and extracted, nothing written.\n", len(results))
		return nil
	case failed > 0:
		fmt.Fprintf(w, "FAILED: %d of %d job(s) reported errors.\n", failed, len(results))
		return ErrRunFailed
	default:
		fmt.Fprintf(w, "OK: %d job(s) completed.\n", len(results))
		return nil
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// commands/test.go
package commands

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/gewnthar/envscrape/scraper"
)

func newTestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "test <source>",
		Short: "Fetches a job's URL once and reports status, size and selector matches.",
		Long: "Performs a single fetch with no retries and evaluates every configured selector\n" +
			"against the response, even when the source returns an error page. Nothing is written.",
		Args: cobra.ExactArgs(1),
		RunE: a.with(func(cmd *cobra.Command, args []string) error {
			job, err := a.jobs.GetJobByName(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()

			res := a.fetcher.Probe(cmd.Context(), job)
			fmt.Fprintf(w, "Source:   %s (%s)\n", job.SourceName, job.SourceType)
			fmt.Fprintf(w, "URL:      %s\n", res.URL)
			if res.Err != nil {
				fmt.Fprintf(w, "Error:    %v\n", res.Err)
				return res.Err
			}
			fmt.Fprintf(w, "Status:   %d\n", res.StatusCode)
			fmt.Fprintf(w, "Bytes:    %d\n", res.Size)
			fmt.Fprintf(w, "Elapsed:  %s\n", res.Elapsed.Round(time.Millisecond))
			fmt.Fprintf(w, "Hash:     %s\n", res.Hash)

			x := scraper.NewExtractor()
			matches, err := x.Probe(res.Body, job.SourceType, job.Config)
			if err != nil {
				fmt.Fprintf(w, "Parse:    %v\n", err)
				return nil
			}
			records, err := x.Extract(res.Body, job.SourceType, job.Config)
			if err != nil {
				fmt.Fprintf(w, "Records:  error: %v\n", err)
			} else {
				fmt.Fprintf(w, "Records:  %d\n", len(records))
			}

			t := newTable(w, table.Row{"Field", "Selector", "Matches", "Error"})
			for _, m := range matches {
				t.AppendRow(table.Row{m.Name, m.Selector, m.Matches, m.Error})
			}
			t.Render()
			return nil
		}),
	}
}

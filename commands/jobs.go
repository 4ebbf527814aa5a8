// commands/jobs.go
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gewnthar/envscrape/services"
)

func newJobsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Manages job definitions.",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "import <file>",
			Short: "Creates or replaces jobs from a YAML, JSON or JSON5 file.",
			Args:  cobra.ExactArgs(1),
			RunE: a.with(func(cmd *cobra.Command, args []string) error {
				jobs, err := services.LoadJobFile(args[0])
				if err != nil {
					return err
				}
				n, err := services.ImportJobs(cmd.Context(), a.jobs, jobs, a.logger)
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d of %d job(s).\n", n, len(jobs))
				return err
			}),
		},
		&cobra.Command{
			Use:   "seed",
			Short: "Installs the built-in jobs when no job exists yet.",
			Args:  cobra.NoArgs,
			RunE: a.with(func(cmd *cobra.Command, args []string) error {
				n, err := services.SeedDefaults(cmd.Context(), a.jobs, a.logger)
				if err != nil {
					return err
				}
				if n == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Registry already has jobs, nothing seeded.")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d job(s).\n", n)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "deactivate <source>",
			Short: "Deactivates a job. Its log history is kept.",
			Args:  cobra.ExactArgs(1),
			RunE: a.with(func(cmd *cobra.Command, args []string) error {
				if err := a.jobs.Deactivate(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deactivated %s.\n", args[0])
				return nil
			}),
		},
	)
	return cmd
}

// commands/migrate.go
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gewnthar/envscrape/database"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Creates the job, log and entity tables if they do not exist.",
		Args:  cobra.NoArgs,
		RunE: a.with(func(cmd *cobra.Command, args []string) error {
			if err := database.Migrate(cmd.Context(), a.db, a.dialect); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema is up to date (%s).\n", a.dialect)
			return nil
		}),
	}
}

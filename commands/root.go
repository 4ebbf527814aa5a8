// commands/root.go
package commands

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/gewnthar/envscrape/config"
	"github.com/gewnthar/envscrape/database"
	"github.com/gewnthar/envscrape/scraper"
	"github.com/gewnthar/envscrape/services"
)

// commandName keys the command table.
type commandName string

const (
	cmdRun     commandName = "run"
	cmdList    commandName = "list"
	cmdTest    commandName = "test"
	cmdLogs    commandName = "logs"
	cmdJobs    commandName = "jobs"
	cmdServe   commandName = "serve"
	cmdMigrate commandName = "migrate"
)

// commandTable maps every command name to its constructor.
var commandTable = []struct {
	name  commandName
	build func(a *app) *cobra.Command
}{
	{cmdRun, newRunCmd},
	{cmdList, newListCmd},
	{cmdTest, newTestCmd},
	{cmdLogs, newLogsCmd},
	{cmdJobs, newJobsCmd},
	{cmdServe, newServeCmd},
	{cmdMigrate, newMigrateCmd},
}

// app holds the dependencies commands share. They are built on first use so
// that help and flag errors never touch the database.
type app struct {
	configPath string

	cfg      *config.Config
	logger   *slog.Logger
	db       *sql.DB
	dialect  database.Dialect
	jobs     *database.JobStore
	logs     *database.LogStore
	entities *database.EntityStore
	fetcher  *scraper.Fetcher
}

// NewRootCommand builds the envscrape command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "envscrape",
		Short:         "envscrape runs scheduled scraper jobs and ingests their records.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to the YAML config file (default "+config.DefaultPath+").")
	for _, c := range commandTable {
		cmd := c.build(a)
		if cmd.Name() != string(c.name) {
			panic(fmt.Sprintf("command %q registered as %q", cmd.Name(), c.name))
		}
		root.AddCommand(cmd)
	}
	return root
}

// ExecuteContext runs the command line and returns the first error.
func ExecuteContext(ctx context.Context, args []string) error {
	root := NewRootCommand()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// with wraps a command body so that dependencies are opened before it runs and
// closed after.
func (a *app) with(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := a.open(cmd.Context(), cmd.ErrOrStderr()); err != nil {
			return err
		}
		defer a.close()
		return fn(cmd, args)
	}
}

func (a *app) open(ctx context.Context, logOut io.Writer) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a.cfg = cfg
	a.logger = cfg.NewLogger(logOut)
	slog.SetDefault(a.logger)

	db, dialect, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	a.db = db
	a.dialect = dialect
	a.jobs = database.NewJobStore(db)
	a.logs = database.NewLogStore(db)
	a.entities = database.NewEntityStore(db)
	a.fetcher = scraper.NewFetcher(cfg.Fetcher)
	return nil
}

func (a *app) close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("database: close failed", "error", err)
		}
		a.db = nil
	}
}

func (a *app) orchestrator() *services.Orchestrator {
	writer := services.NewIngestionWriter(a.entities, a.cfg.Orchestrator.RequireManualReview, a.logger)
	return services.NewOrchestrator(a.jobs, a.logs, a.fetcher, scraper.NewExtractor(), writer, services.Options{
		Workers:   a.cfg.Orchestrator.Workers,
		RunBudget: a.cfg.Orchestrator.RunBudget,
		Logger:    a.logger,
	})
}

func newTable(w io.Writer, header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(header)
	t.SetStyle(table.StyleRounded)
	return t
}

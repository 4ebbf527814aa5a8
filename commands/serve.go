// commands/serve.go
package commands

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/gewnthar/envscrape/database"
	"github.com/gewnthar/envscrape/handlers"
	"github.com/gewnthar/envscrape/services"
)

func newServeCmd(a *app) *cobra.Command {
	var noScheduler bool
	cmd := &cobra.Command{
		Use:   "serve [--no-scheduler]",
		Short: "Runs the scheduler and the admin HTTP API until interrupted.",
		Args:  cobra.NoArgs,
		RunE: a.with(func(cmd *cobra.Command, args []string) error {
			ctx, stop := context.WithCancel(cmd.Context())
			defer stop()
			if err := database.Migrate(ctx, a.db, a.dialect); err != nil {
				return err
			}
			orch := a.orchestrator()

			var wg sync.WaitGroup
			if !noScheduler {
				sched := services.NewScheduler(orch, a.cfg.Scheduler.CheckInterval, a.logger)
				wg.Add(1)
				go func() {
					defer wg.Done()
					sched.Run(ctx)
				}()
			}

			srv := &http.Server{
				Addr:              ":" + a.cfg.Server.Port,
				Handler:           handlers.NewAPI(a.jobs, a.logs, orch, a.db, a.logger).Routes(),
				ReadHeaderTimeout: 10 * time.Second,
				BaseContext:       func(net.Listener) context.Context { return ctx },
			}
			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("server: listening", "addr", srv.Addr)
				errCh <- srv.ListenAndServe()
			}()

			var serveErr error
			select {
			case <-ctx.Done():
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					serveErr = err
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
			defer cancel()
			stop()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn("server: shutdown", "error", err)
			}
			wg.Wait()
			a.logger.Info("server: stopped")
			return serveErr
		}),
	}
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "Serve the API without running due jobs.")
	return cmd
}

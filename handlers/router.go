// handlers/router.go
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/gewnthar/envscrape/models"
	"github.com/gewnthar/envscrape/services"
)

type JobReader interface {
	ListJobs(ctx context.Context) ([]models.ScraperJob, error)
	GetJobByName(ctx context.Context, name string) (*models.ScraperJob, error)
}

type LogReader interface {
	Recent(ctx context.Context, limit int) ([]models.IngestionLogEntry, error)
	ListByJob(ctx context.Context, jobID int64, limit int) ([]models.IngestionLogEntry, error)
	Summary(ctx context.Context, jobID *int64) (models.StatusCounts, error)
}

type JobRunner interface {
	RunJob(ctx context.Context, name string, opts services.RunOptions) (*services.RunResult, error)
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

// API serves the read-only monitoring endpoints and the manual run trigger.
type API struct {
	jobs   JobReader
	logs   LogReader
	runner JobRunner
	db     Pinger
	logger *slog.Logger
}

func NewAPI(jobs JobReader, logs LogReader, runner JobRunner, db Pinger, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{jobs: jobs, logs: logs, runner: runner, db: db, logger: logger}
}

// Routes builds the router:
//
//	GET  /api/health
//	GET  /api/jobs
//	GET  /api/jobs/{source}
//	GET  /api/logs?source=&limit=
//	GET  /api/logs/summary?source=
//	POST /api/admin/run/{source}?dry_run=true
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/api/health", a.health)
	r.Route("/api/jobs", func(r chi.Router) {
		r.Get("/", a.listJobs)
		r.Get("/{source}", a.getJob)
	})
	r.Get("/api/logs", a.listLogs)
	r.Get("/api/logs/summary", a.logSummary)
	r.Post("/api/admin/run/{source}", a.runJob)
	return r
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	if err := a.db.PingContext(r.Context()); err != nil {
		a.logger.Error("handlers: health check failed", "error", err)
		respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "error",
			"message": "database connection error",
		})
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handlers/job_handler.go
package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/gewnthar/envscrape/models"
	"github.com/gewnthar/envscrape/services"
)

func (a *API) listJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := a.jobs.ListJobs(r.Context())
	if err != nil {
		respondWithError(w, statusFor(err), "Failed to list jobs: "+err.Error())
		return
	}
	if jobs == nil {
		jobs = []models.ScraperJob{}
	}
	respondWithJSON(w, http.StatusOK, jobs)
}

func (a *API) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := a.jobs.GetJobByName(r.Context(), chi.URLParam(r, "source"))
	if err != nil {
		respondWithError(w, statusFor(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, job)
}

// runResponse is the JSON body returned by the run trigger.
type runResponse struct {
	Source string                   `json:"source"`
	RunID  string                   `json:"run_id"`
	DryRun bool                     `json:"dry_run"`
	Pages  int                      `json:"pages"`
	Entry  models.IngestionLogEntry `json:"log"`
	Error  string                   `json:"error,omitempty"`
}

// runJob runs one job synchronously and returns its log entry. Run failures are
// reported in the entry with a 200; only unknown jobs and persistence failures
// are HTTP errors.
func (a *API) runJob(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")
	var opts services.RunOptions
	if v := r.URL.Query().Get("dry_run"); v != "" {
		dry, err := strconv.ParseBool(v)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid dry_run value '%s'", v))
			return
		}
		opts.DryRun = dry
	}

	res, err := a.runner.RunJob(r.Context(), source, opts)
	if err != nil {
		respondWithError(w, statusFor(err), err.Error())
		return
	}
	body := runResponse{Source: res.SourceName, RunID: res.RunID, DryRun: res.DryRun, Pages: res.Pages, Entry: res.Entry}
	if res.Err != nil {
		body.Error = res.Err.Error()
		respondWithJSON(w, http.StatusInternalServerError, body)
		return
	}
	respondWithJSON(w, http.StatusOK, body)
}

// handlers/log_handler.go
package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gewnthar/envscrape/models"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 500
)

// listLogs returns the newest log entries, optionally for one source.
func (a *API) listLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := defaultLogLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid limit '%s'", v))
			return
		}
		limit = min(n, maxLogLimit)
	}

	var (
		entries []models.IngestionLogEntry
		err     error
	)
	if source := q.Get("source"); source != "" {
		job, jerr := a.jobs.GetJobByName(r.Context(), source)
		if jerr != nil {
			respondWithError(w, statusFor(jerr), jerr.Error())
			return
		}
		entries, err = a.logs.ListByJob(r.Context(), job.ID, limit)
	} else {
		entries, err = a.logs.Recent(r.Context(), limit)
	}
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to read logs: "+err.Error())
		return
	}
	if entries == nil {
		entries = []models.IngestionLogEntry{}
	}
	respondWithJSON(w, http.StatusOK, entries)
}

// logSummary returns entry counts by status, optionally for one source.
func (a *API) logSummary(w http.ResponseWriter, r *http.Request) {
	var jobID *int64
	if source := r.URL.Query().Get("source"); source != "" {
		job, err := a.jobs.GetJobByName(r.Context(), source)
		if err != nil {
			respondWithError(w, statusFor(err), err.Error())
			return
		}
		jobID = &job.ID
	}
	counts, err := a.logs.Summary(r.Context(), jobID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to summarise logs: "+err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, counts)
}

package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gewnthar/envscrape/config"
	"github.com/gewnthar/envscrape/database"
	"github.com/gewnthar/envscrape/models"
	"github.com/gewnthar/envscrape/scraper"
	"github.com/gewnthar/envscrape/services"
)

const sitesPage = `<html><body>
<div class="site"><h2 class="site-title">Alpha</h2><span class="site-id">A1</span></div>
<div class="site"><h2 class="site-title">Beta</h2><span class="site-id">B2</span></div>
</body></html>`

type apiFixture struct {
	db     *sql.DB
	jobs   *database.JobStore
	logs   *database.LogStore
	server *httptest.Server
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	ctx := context.Background()
	db, dialect, err := database.Open(ctx, config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(ctx, db, dialect))

	source := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sitesPage)
	}))
	t.Cleanup(source.Close)

	f := &apiFixture{db: db, jobs: database.NewJobStore(db), logs: database.NewLogStore(db)}
	job := models.NewScraperJob()
	job.SourceName = "County_Sites"
	job.SourceType = models.SourceHTML
	job.BaseURL = source.URL
	job.RateLimitDelay = 0
	job.Config = models.ParserConfig{
		RecordSelector: ".site",
		Selectors:      map[string]string{"name": "h2.site-title", "site_id": ".site-id"},
	}
	require.NoError(t, f.jobs.UpsertJob(ctx, &job))

	fetcher := scraper.NewFetcher(config.FetcherConfig{DefaultTimeout: 5 * time.Second, MaxBodyBytes: 1 << 20, DefaultUserAgent: "test"})
	writer := services.NewIngestionWriter(database.NewEntityStore(db), false, nil)
	orch := services.NewOrchestrator(f.jobs, f.logs, fetcher, scraper.NewExtractor(), writer, services.Options{})

	f.server = httptest.NewServer(NewAPI(f.jobs, f.logs, orch, db, nil).Routes())
	t.Cleanup(f.server.Close)
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestAPI_Health(t *testing.T) {
	f := newAPIFixture(t)
	var body map[string]string
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/health", &body))
	assert.Equal(t, "ok", body["status"])

	f.db.Close()
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, "/api/health", &body))
}

func TestAPI_Jobs(t *testing.T) {
	f := newAPIFixture(t)

	var jobs []models.ScraperJob
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/jobs", &jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, "County_Sites", jobs[0].SourceName)

	var job models.ScraperJob
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/jobs/County_Sites", &job))
	assert.Equal(t, ".site", job.Config.RecordSelector)

	var errBody map[string]string
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/jobs/unknown", &errBody))
	assert.NotEmpty(t, errBody["error"])
}

func TestAPI_RunThenLogs(t *testing.T) {
	f := newAPIFixture(t)

	var dry runResponse
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/admin/run/County_Sites?dry_run=true", &dry))
	assert.True(t, dry.DryRun)
	assert.Equal(t, 2, dry.Entry.RecordsProcessed)

	var run runResponse
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/admin/run/County_Sites", &run))
	assert.Equal(t, models.StatusSuccess, run.Entry.Status)
	assert.Equal(t, 2, run.Entry.RecordsCreated)
	assert.NotEmpty(t, run.RunID)

	var entries []models.IngestionLogEntry
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/logs?source=County_Sites", &entries))
	require.Len(t, entries, 1, "dry runs are not logged")
	assert.Equal(t, models.StatusSuccess, entries[0].Status)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/logs?limit=10", &entries))
	assert.Len(t, entries, 1)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/admin/run/County_Sites", &run))
	assert.Equal(t, models.StatusSkipped, run.Entry.Status)

	var counts models.StatusCounts
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/logs/summary?source=County_Sites", &counts))
	assert.Equal(t, models.StatusCounts{Total: 2, Success: 1, Skipped: 1}, counts)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/logs/summary", &counts))
	assert.Equal(t, 2, counts.Total)
}

func TestAPI_RunErrors(t *testing.T) {
	f := newAPIFixture(t)
	var body map[string]string

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/api/admin/run/unknown", &body))
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/admin/run/County_Sites?dry_run=maybe", &body))
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/logs?limit=-1", &body))
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/logs?source=unknown", &body))
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/logs/summary?source=unknown", &body))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(models.NotFoundf("x")))
	assert.Equal(t, http.StatusBadRequest, statusFor(models.Invalidf("timeout", "bad")))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
	assert.Equal(t, http.StatusInternalServerError, statusFor(fmt.Errorf("wrapped: %w", models.ErrWrite)))
}

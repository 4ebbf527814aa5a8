// database/store_test.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gewnthar/envscrape/config"
	"github.com/gewnthar/envscrape/models"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()
	db, dialect, err := Open(ctx, config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.Equal(t, DialectSQLite, dialect)
	require.NoError(t, Migrate(ctx, db, dialect))
	return db
}

func sampleJob(name string) *models.ScraperJob {
	job := models.NewScraperJob()
	job.SourceName = name
	job.SourceType = models.SourceHTML
	job.BaseURL = "https://example.org/sites"
	job.UserAgent = "envscrape-test/1.0"
	job.Config = models.ParserConfig{
		Selectors:      map[string]string{"site_name": ".name", "site_id": ".id"},
		RecordSelector: ".row",
		IDField:        "site_id",
		Pagination: &models.Pagination{Strategy: models.NumberedPagination{
			Selector: "a.next", MaxPages: 3,
		}},
		DataMapping: &models.DataMapping{
			PostType:   "superfund_site",
			Taxonomies: map[string]string{"region": "site_region"},
		},
	}
	return &job
}

func TestMigrate_Idempotent(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, Migrate(context.Background(), db, DialectSQLite))
}

func TestJobStore_UpsertGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(newTestDB(t))

	in := sampleJob("EPA_SEMS")
	in.Config.Pagination = nil
	require.NoError(t, store.UpsertJob(ctx, in))
	require.NotZero(t, in.ID)

	got, err := store.GetJobByName(ctx, "EPA_SEMS")
	require.NoError(t, err)
	if diff := cmp.Diff(in, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestJobStore_UpsertRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(newTestDB(t))

	job := sampleJob("bad")
	job.RunFrequency = "every so often"
	err := store.UpsertJob(ctx, job)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidConfiguration))

	job = sampleJob("bad")
	job.RateLimitDelay = -1
	assert.True(t, errors.Is(store.UpsertJob(ctx, job), models.ErrInvalidConfiguration))

	_, err = store.GetJobByName(ctx, "bad")
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestJobStore_UpsertReplaceKeepsIdentityAndLastRun(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(newTestDB(t))

	first := sampleJob("CalEPA_EnviroStor")
	require.NoError(t, store.UpsertJob(ctx, first))
	ran := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.MarkRun(ctx, first.ID, ran))

	second := sampleJob("CalEPA_EnviroStor")
	second.RunFrequency = "weekly"
	second.MaxRetries = 5
	require.NoError(t, store.UpsertJob(ctx, second))
	assert.Equal(t, first.ID, second.ID)

	got, err := store.GetJobByName(ctx, "CalEPA_EnviroStor")
	require.NoError(t, err)
	assert.Equal(t, 5, got.MaxRetries)
	require.NotNil(t, got.LastRun)
	assert.Equal(t, ran, *got.LastRun)
	require.NotNil(t, got.NextRun)
	assert.Equal(t, ran.Add(7*24*time.Hour), *got.NextRun)
}

func TestJobStore_MarkRunIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(newTestDB(t))
	job := sampleJob("EPA_SEMS")
	require.NoError(t, store.UpsertJob(ctx, job))

	ts := time.Date(2026, 4, 2, 8, 30, 0, 0, time.UTC)
	require.NoError(t, store.MarkRun(ctx, job.ID, ts))
	once, err := store.GetJobByName(ctx, "EPA_SEMS")
	require.NoError(t, err)
	require.NoError(t, store.MarkRun(ctx, job.ID, ts))
	twice, err := store.GetJobByName(ctx, "EPA_SEMS")
	require.NoError(t, err)

	assert.Equal(t, once, twice)
	assert.Equal(t, ts.Add(24*time.Hour), *twice.NextRun)

	assert.True(t, errors.Is(store.MarkRun(ctx, 9999, ts), models.ErrNotFound))
}

func TestJobStore_ListActiveAndDue(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(newTestDB(t))

	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, store.UpsertJob(ctx, sampleJob(name)))
	}
	require.NoError(t, store.Deactivate(ctx, "b"))
	assert.True(t, errors.Is(store.Deactivate(ctx, "zzz"), models.ErrNotFound))

	active, err := store.ListActiveJobs(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "a", active[0].SourceName)
	assert.Equal(t, "c", active[1].SourceName)
	assert.Less(t, active[0].ID, active[1].ID)

	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.MarkRun(ctx, active[0].ID, now.Add(-time.Hour)))

	due, err := store.ListDueJobs(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "c", due[0].SourceName)

	due, err = store.ListDueJobs(ctx, now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, due, 2)

	all, err := store.ListJobs(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestLogStore_AppendAndLastHash(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	jobs := NewJobStore(db)
	logs := NewLogStore(db)

	job := sampleJob("EPA_SEMS")
	require.NoError(t, jobs.UpsertJob(ctx, job))

	_, ok, err := logs.LastFingerprint(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	entries := []models.IngestionLogEntry{
		{Status: models.StatusSuccess, RecordsProcessed: 3, RecordsCreated: 3, SourceHash: models.StringPtr("h1"), ResponseCode: models.IntPtr(200)},
		{Status: models.StatusError, ErrorMessage: models.StringPtr("boom"), SourceHash: models.StringPtr("h2")},
		{Status: models.StatusSkipped, SourceHash: models.StringPtr("h1"), ConfigHash: models.StringPtr("c1")},
		{Status: models.StatusPartial, RecordsProcessed: 1, RecordsCreated: 1, SourceHash: models.StringPtr("h3")},
	}
	for i := range entries {
		e := entries[i]
		e.ScraperJobID = job.ID
		e.SourceURL = job.BaseURL
		e.DataType = job.DataType()
		e.FetchTimestamp = time.Now()
		require.NoError(t, logs.Append(ctx, &e))
		assert.NotZero(t, e.ID)
	}

	fp, ok, err := logs.LastFingerprint(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, models.RunFingerprint{Content: "h1", Config: "c1"}, fp)

	got, err := logs.ListByJob(ctx, job.ID, 10)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, models.StatusPartial, got[0].Status)
	assert.Equal(t, models.StatusSuccess, got[3].Status)
	require.NotNil(t, got[3].ResponseCode)
	assert.Equal(t, 200, *got[3].ResponseCode)
	assert.Nil(t, got[3].ErrorMessage)

	recent, err := logs.Recent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	require.NotNil(t, got[1].ConfigHash)
	assert.Equal(t, "c1", *got[1].ConfigHash)

	bad := models.IngestionLogEntry{ScraperJobID: job.ID, Status: models.StatusSuccess, RecordsProcessed: 1, RecordsCreated: 2}
	assert.Error(t, logs.Append(ctx, &bad))
}

func TestLogStore_Summary(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	jobs := NewJobStore(db)
	logs := NewLogStore(db)

	sems, calepa := sampleJob("EPA_SEMS"), sampleJob("CalEPA_EnviroStor")
	require.NoError(t, jobs.UpsertJob(ctx, sems))
	require.NoError(t, jobs.UpsertJob(ctx, calepa))

	empty, err := logs.Summary(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCounts{}, empty)

	add := func(job *models.ScraperJob, st models.RunStatus) {
		e := models.IngestionLogEntry{ScraperJobID: job.ID, SourceURL: job.BaseURL, DataType: job.DataType(),
			FetchTimestamp: time.Now(), Status: st}
		require.NoError(t, logs.Append(ctx, &e))
	}
	add(sems, models.StatusSuccess)
	add(sems, models.StatusSuccess)
	add(sems, models.StatusError)
	add(calepa, models.StatusSkipped)
	add(calepa, models.StatusPartial)

	all, err := logs.Summary(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCounts{Total: 5, Success: 2, Partial: 1, Skipped: 1, Error: 1}, all)

	one, err := logs.Summary(ctx, &sems.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCounts{Total: 3, Success: 2, Error: 1}, one)
}

func TestEntityStore_CreateFindUpdate(t *testing.T) {
	ctx := context.Background()
	store := NewEntityStore(newTestDB(t))

	e := &models.StoredEntity{
		SourceName:  "EPA_SEMS",
		ExternalID:  "CAD000001",
		DataType:    "superfund_site",
		Status:      models.EntityPublished,
		Fields:      map[string]any{"site_name": "Acme Plating", "score": 42.5},
		Geo:         &models.GeoPoint{Latitude: 37.8, Longitude: -122.3},
		Categories:  map[string][]string{"region": {"9"}},
		Fingerprint: "f1",
	}
	require.NoError(t, store.Create(ctx, e))

	got, err := store.Find(ctx, "EPA_SEMS", "CAD000001")
	require.NoError(t, err)
	assert.Equal(t, e.Fields, got.Fields)
	assert.Equal(t, e.Geo, got.Geo)
	assert.Equal(t, e.Categories, got.Categories)

	got.Fields["site_name"] = "Acme Plating Co"
	got.Fingerprint = "f2"
	require.NoError(t, store.Update(ctx, got))
	again, err := store.Find(ctx, "EPA_SEMS", "CAD000001")
	require.NoError(t, err)
	assert.Equal(t, "f2", again.Fingerprint)

	_, err = store.Find(ctx, "EPA_SEMS", "missing")
	assert.True(t, errors.Is(err, models.ErrNotFound))

	dup := *e
	dup.ID = 0
	assert.Error(t, store.Create(ctx, &dup), "composite key is unique")

	// entities without an external id never collide
	for i := 0; i < 2; i++ {
		anon := &models.StoredEntity{SourceName: "EPA_SEMS", DataType: "superfund_site", Status: models.EntityDraft,
			Fields: map[string]any{"site_name": "unnamed"}, Fingerprint: "f", NeedsReview: true}
		require.NoError(t, store.Create(ctx, anon))
	}
	all, err := store.ListBySource(ctx, "EPA_SEMS")
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.True(t, all[2].NeedsReview)
}

package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gewnthar/envscrape/database"
	"github.com/gewnthar/envscrape/models"
)

type mockEntityRepo struct{ mock.Mock }

func (m *mockEntityRepo) Find(ctx context.Context, sourceName, externalID string) (*models.StoredEntity, error) {
	args := m.Called(ctx, sourceName, externalID)
	e, _ := args.Get(0).(*models.StoredEntity)
	return e, args.Error(1)
}

func (m *mockEntityRepo) Create(ctx context.Context, e *models.StoredEntity) error {
	return m.Called(ctx, e).Error(0)
}

func (m *mockEntityRepo) Update(ctx context.Context, e *models.StoredEntity) error {
	return m.Called(ctx, e).Error(0)
}

func siteRecords() []models.ExtractedRecord {
	return []models.ExtractedRecord{
		{ExternalID: "CAD000001", DataType: "superfund_site", Fields: map[string]any{"site_name": "Alpha Works", "site_id": "CAD000001"}},
		{ExternalID: "CAD000002", DataType: "superfund_site", Fields: map[string]any{"site_name": "Beta Yard", "site_id": "CAD000002"}},
		{ExternalID: "CAD000003", DataType: "superfund_site", Fields: map[string]any{"site_name": "Gamma Mill", "site_id": "CAD000003"},
			Geo: &models.GeoPoint{Latitude: 34.05, Longitude: -118.24}},
	}
}

func TestIngestionWriter_Idempotent(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	w := NewIngestionWriter(env.entities, false, nil)

	first := w.Upsert(ctx, "EPA_SEMS", siteRecords())
	assert.Equal(t, WriteSummary{Processed: 3, Created: 3}, first)

	second := w.Upsert(ctx, "EPA_SEMS", siteRecords())
	assert.Equal(t, WriteSummary{Processed: 3}, second, "unchanged records are neither created nor updated")

	changed := siteRecords()
	changed[1].Fields["site_name"] = "Beta Yard (closed)"
	third := w.Upsert(ctx, "EPA_SEMS", changed)
	assert.Equal(t, WriteSummary{Processed: 3, Updated: 1}, third)

	stored, err := env.entities.Find(ctx, "EPA_SEMS", "CAD000002")
	require.NoError(t, err)
	assert.Equal(t, "Beta Yard (closed)", stored.Fields["site_name"])
	assert.Equal(t, models.EntityPublished, stored.Status)
}

func TestIngestionWriter_SourcesAreSeparateKeySpaces(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	w := NewIngestionWriter(env.entities, false, nil)

	assert.Equal(t, 3, w.Upsert(ctx, "EPA_SEMS", siteRecords()).Created)
	assert.Equal(t, 3, w.Upsert(ctx, "CalEPA_EnviroStor", siteRecords()).Created)
}

func TestIngestionWriter_ManualReviewCreatesDrafts(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	w := NewIngestionWriter(env.entities, true, nil)

	sum := w.Upsert(ctx, "EPA_SEMS", siteRecords()[:1])
	require.Equal(t, 1, sum.Created)

	stored, err := env.entities.Find(ctx, "EPA_SEMS", "CAD000001")
	require.NoError(t, err)
	assert.Equal(t, models.EntityDraft, stored.Status)
}

func TestIngestionWriter_RecordFailureDoesNotAbortBatch(t *testing.T) {
	repo := &mockEntityRepo{}
	ctx := context.Background()
	notFound := models.NotFoundf("no entity")

	repo.On("Find", ctx, "src", "a").Return(nil, notFound)
	repo.On("Find", ctx, "src", "b").Return(nil, notFound)
	repo.On("Create", ctx, mock.MatchedBy(func(e *models.StoredEntity) bool { return e.ExternalID == "a" })).Return(nil)
	repo.On("Create", ctx, mock.MatchedBy(func(e *models.StoredEntity) bool { return e.ExternalID == "b" })).
		Return(errors.New("UNIQUE constraint failed"))
	repo.On("Create", ctx, mock.MatchedBy(func(e *models.StoredEntity) bool {
		return e.ExternalID == "" && e.NeedsReview
	})).Return(nil)

	w := NewIngestionWriter(repo, false, nil)
	sum := w.Upsert(ctx, "src", []models.ExtractedRecord{
		{ExternalID: "a", Fields: map[string]any{"name": "A"}},
		{ExternalID: "b", Fields: map[string]any{"name": "B"}},
		{Fields: map[string]any{"name": "anonymous"}},
	})

	assert.Equal(t, 2, sum.Processed, "failed records are not counted as processed")
	assert.Equal(t, 2, sum.Created)
	assert.Equal(t, 1, sum.Failed)
	require.Len(t, sum.Errors, 1)
	assert.True(t, errors.Is(sum.Errors[0], models.ErrWrite))
	repo.AssertExpectations(t)
	repo.AssertNotCalled(t, "Find", ctx, "src", "")
}

func TestIngestionWriter_LookupFailureIsWriteError(t *testing.T) {
	repo := &mockEntityRepo{}
	ctx := context.Background()
	repo.On("Find", ctx, "src", "a").Return(nil, errors.New("connection reset"))

	sum := NewIngestionWriter(repo, false, nil).Upsert(ctx, "src", []models.ExtractedRecord{
		{ExternalID: "a", Fields: map[string]any{"name": "A"}},
	})
	assert.Equal(t, WriteSummary{Failed: 1, Errors: sum.Errors}, sum)
	assert.Equal(t, models.KindWrite, models.KindOf(sum.Errors[0]))
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

var _ EntityRepository = (*database.EntityStore)(nil)

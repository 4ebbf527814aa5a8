// services/ingestion.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gewnthar/envscrape/models"
)

// EntityRepository is the content store extracted records are reconciled against.
type EntityRepository interface {
	Find(ctx context.Context, sourceName, externalID string) (*models.StoredEntity, error)
	Create(ctx context.Context, e *models.StoredEntity) error
	Update(ctx context.Context, e *models.StoredEntity) error
}

// WriteSummary counts the outcome of one Upsert call. Failed records are not
// included in Processed.
type WriteSummary struct {
	Processed int
	Created   int
	Updated   int
	Failed    int
	Errors    []error
}

// IngestionWriter creates or updates stored entities by (source, external id).
type IngestionWriter struct {
	store         EntityRepository
	requireReview bool
	logger        *slog.Logger
}

// NewIngestionWriter creates a writer. With requireReview set, new entities are
// created as drafts.
func NewIngestionWriter(store EntityRepository, requireReview bool, logger *slog.Logger) *IngestionWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestionWriter{store: store, requireReview: requireReview, logger: logger}
}

// Upsert applies records sequentially in order. An entity is updated only when
// its content fingerprint changed. A failing record is logged, counted in Failed
// and skipped; it never aborts the batch.
func (w *IngestionWriter) Upsert(ctx context.Context, sourceName string, records []models.ExtractedRecord) WriteSummary {
	var sum WriteSummary
	for i := range records {
		created, updated, err := w.upsertOne(ctx, sourceName, &records[i])
		if err != nil {
			sum.Failed++
			sum.Errors = append(sum.Errors, err)
			w.logger.Warn("ingestion: record write failed", "source", sourceName,
				"external_id", records[i].ExternalID, "error", err)
			continue
		}
		sum.Processed++
		if created {
			sum.Created++
		}
		if updated {
			sum.Updated++
		}
	}
	return sum
}

func (w *IngestionWriter) upsertOne(ctx context.Context, sourceName string, rec *models.ExtractedRecord) (created, updated bool, err error) {
	fp, err := rec.Fingerprint()
	if err != nil {
		return false, false, models.NewError(models.KindWrite, "fingerprint "+rec.ExternalID, err)
	}

	if rec.ExternalID != "" {
		existing, err := w.store.Find(ctx, sourceName, rec.ExternalID)
		switch {
		case err == nil:
			if existing.Fingerprint == fp {
				return false, false, nil
			}
			existing.DataType = rec.DataType
			existing.Fields = rec.Fields
			existing.Geo = rec.Geo
			existing.Categories = rec.Categories
			existing.Fingerprint = fp
			if err := w.store.Update(ctx, existing); err != nil {
				return false, false, models.NewError(models.KindWrite, "update "+rec.ExternalID, err)
			}
			return false, true, nil
		case !errors.Is(err, models.ErrNotFound):
			return false, false, models.NewError(models.KindWrite, "lookup "+rec.ExternalID, err)
		}
	}

	entity := &models.StoredEntity{
		SourceName:  sourceName,
		ExternalID:  rec.ExternalID,
		DataType:    rec.DataType,
		Status:      models.EntityPublished,
		Fields:      rec.Fields,
		Geo:         rec.Geo,
		Categories:  rec.Categories,
		Fingerprint: fp,
		NeedsReview: rec.ExternalID == "",
	}
	if w.requireReview {
		entity.Status = models.EntityDraft
	}
	if err := w.store.Create(ctx, entity); err != nil {
		return false, false, models.NewError(models.KindWrite, fmt.Sprintf("create %q", rec.ExternalID), err)
	}
	return true, false, nil
}

// database/entity_store.go
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gewnthar/envscrape/models"
)

const entityColumns = `id, source_name, external_id, data_type, status, fields_json,
	latitude, longitude, categories_json, fingerprint, needs_review, created_at, updated_at`

// EntityStore is the content store the pipeline writes extracted records into,
// keyed by (source_name, external_id).
type EntityStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewEntityStore(db *sql.DB) *EntityStore {
	return &EntityStore{db: db, now: time.Now}
}

func scanEntity(row rowScanner) (*models.StoredEntity, error) {
	var (
		e                  models.StoredEntity
		extID              sql.NullString
		fieldsRaw          []byte
		catsRaw            []byte
		lat, lng           sql.NullFloat64
		createdAt, updated time.Time
	)
	err := row.Scan(&e.ID, &e.SourceName, &extID, &e.DataType, &e.Status, &fieldsRaw,
		&lat, &lng, &catsRaw, &e.Fingerprint, &e.NeedsReview, &createdAt, &updated)
	if err != nil {
		return nil, err
	}
	e.ExternalID = extID.String
	if err := json.Unmarshal(fieldsRaw, &e.Fields); err != nil {
		return nil, fmt.Errorf("failed to decode fields of entity %d: %w", e.ID, err)
	}
	if len(catsRaw) > 0 {
		if err := json.Unmarshal(catsRaw, &e.Categories); err != nil {
			return nil, fmt.Errorf("failed to decode categories of entity %d: %w", e.ID, err)
		}
	}
	if lat.Valid && lng.Valid {
		e.Geo = &models.GeoPoint{Latitude: lat.Float64, Longitude: lng.Float64}
	}
	e.CreatedAt = createdAt.UTC()
	e.UpdatedAt = updated.UTC()
	return &e, nil
}

// Find returns the entity for (sourceName, externalID) or a NotFound error.
func (s *EntityStore) Find(ctx context.Context, sourceName, externalID string) (*models.StoredEntity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM stored_entities
		WHERE source_name = ? AND external_id = ?`, sourceName, externalID)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFoundf("no entity %s/%s", sourceName, externalID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find entity %s/%s: %w", sourceName, externalID, err)
	}
	return e, nil
}

// ListBySource returns a source's entities in insertion order.
func (s *EntityStore) ListBySource(ctx context.Context, sourceName string) ([]models.StoredEntity, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+entityColumns+` FROM stored_entities
		WHERE source_name = ? ORDER BY id`, sourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to query stored_entities: %w", err)
	}
	defer rows.Close()

	var out []models.StoredEntity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stored_entities row: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func entityArgs(e *models.StoredEntity) ([]any, error) {
	fields, err := json.Marshal(e.Fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode fields: %w", err)
	}
	var cats sql.NullString
	if len(e.Categories) > 0 {
		b, err := json.Marshal(e.Categories)
		if err != nil {
			return nil, fmt.Errorf("failed to encode categories: %w", err)
		}
		cats = sql.NullString{String: string(b), Valid: true}
	}
	var lat, lng sql.NullFloat64
	if e.Geo != nil {
		lat = sql.NullFloat64{Float64: e.Geo.Latitude, Valid: true}
		lng = sql.NullFloat64{Float64: e.Geo.Longitude, Valid: true}
	}
	return []any{e.DataType, e.Status, string(fields), lat, lng, cats, e.Fingerprint, e.NeedsReview}, nil
}

// Create inserts e and sets its ID. An empty ExternalID is stored as NULL, so
// such entities never collide on the composite key.
func (s *EntityStore) Create(ctx context.Context, e *models.StoredEntity) error {
	args, err := entityArgs(e)
	if err != nil {
		return models.NewError(models.KindWrite, "entity "+e.ExternalID, err)
	}
	var extID sql.NullString
	if e.ExternalID != "" {
		extID = sql.NullString{String: e.ExternalID, Valid: true}
	}
	now := dbTime(s.now())
	e.CreatedAt, e.UpdatedAt = now, now

	res, err := s.db.ExecContext(ctx, `INSERT INTO stored_entities (
			data_type, status, fields_json, latitude, longitude, categories_json, fingerprint, needs_review,
			source_name, external_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		append(args, e.SourceName, extID, now, now)...)
	if err != nil {
		return fmt.Errorf("failed to create entity %s/%s: %w", e.SourceName, e.ExternalID, err)
	}
	if e.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("failed to read entity id: %w", err)
	}
	return nil
}

// Update rewrites the content columns of an existing entity by ID.
func (s *EntityStore) Update(ctx context.Context, e *models.StoredEntity) error {
	args, err := entityArgs(e)
	if err != nil {
		return models.NewError(models.KindWrite, "entity "+e.ExternalID, err)
	}
	e.UpdatedAt = dbTime(s.now())
	res, err := s.db.ExecContext(ctx, `UPDATE stored_entities SET
			data_type = ?, status = ?, fields_json = ?, latitude = ?, longitude = ?,
			categories_json = ?, fingerprint = ?, needs_review = ?, updated_at = ?
		WHERE id = ?`, append(args, e.UpdatedAt, e.ID)...)
	if err != nil {
		return fmt.Errorf("failed to update entity %d: %w", e.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.NotFoundf("no entity with id %d", e.ID)
	}
	return nil
}

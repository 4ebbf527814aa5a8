// models/entity.go
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Entity publication states, mirroring the content store's post status.
const (
	EntityPublished = "publish"
	EntityDraft     = "draft"
)

// StoredEntity is a content-store item addressed by (SourceName, ExternalID).
type StoredEntity struct {
	ID          int64               `db:"id" json:"id"`
	SourceName  string              `db:"source_name" json:"source_name"`
	ExternalID  string              `db:"external_id" json:"external_id,omitempty"`
	DataType    string              `db:"data_type" json:"data_type"`
	Status      string              `db:"status" json:"status"`
	Fields      map[string]any      `db:"fields_json" json:"fields"`
	Geo         *GeoPoint           `db:"-" json:"geo,omitempty"`
	Categories  map[string][]string `db:"categories_json" json:"categories,omitempty"`
	Fingerprint string              `db:"fingerprint" json:"fingerprint"`
	NeedsReview bool                `db:"needs_review" json:"needs_review"`
	CreatedAt   time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time           `db:"updated_at" json:"updated_at"`
}

// Fingerprint is a stable digest of the record's stored content. Two records with
// equal fingerprints carry identical field values. encoding/json sorts map keys,
// so the digest does not depend on map iteration order.
func (r *ExtractedRecord) Fingerprint() (string, error) {
	payload := struct {
		DataType   string              `json:"data_type"`
		Fields     map[string]any      `json:"fields"`
		Geo        *GeoPoint           `json:"geo,omitempty"`
		Categories map[string][]string `json:"categories,omitempty"`
	}{r.DataType, r.Fields, r.Geo, r.Categories}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

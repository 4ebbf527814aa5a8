// models/record.go
package models

import (
	"time"
)

// FetchResult is the outcome of retrieving one URL. Exactly one of Body or Err
// is set once the fetch completes.
type FetchResult struct {
	URL        string
	Body       []byte
	Hash       string // hex SHA-256 of Body
	StatusCode int    // 0 when no response was received
	Size       int    // bytes received, also set for error responses
	Elapsed    time.Duration
	Attempts   int
	Err        error
}

// OK reports whether the fetch produced a body.
func (r *FetchResult) OK() bool { return r != nil && r.Err == nil }

// GeoPoint is an optional record location.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ExtractedRecord is one normalised item produced by the extractor.
type ExtractedRecord struct {
	// ExternalID is the source-provided key used for update-vs-create matching.
	// Empty means create-only and flagged for manual dedup review.
	ExternalID string              `json:"external_id,omitempty"`
	DataType   string              `json:"data_type,omitempty"`
	Fields     map[string]any      `json:"fields"`
	Geo        *GeoPoint           `json:"geo,omitempty"`
	Categories map[string][]string `json:"categories,omitempty"`
	Page       int                 `json:"page"`
}

// Empty reports whether the record has no mapped field values.
func (r *ExtractedRecord) Empty() bool {
	for _, v := range r.Fields {
		if v != nil {
			return false
		}
	}
	return true
}

// models/ingestion_log.go
package models

import (
	"fmt"
	"time"
)

// RunStatus is the terminal status of one job execution.
type RunStatus string

const (
	StatusSuccess RunStatus = "success"
	StatusError   RunStatus = "error"
	StatusPartial RunStatus = "partial"
	StatusSkipped RunStatus = "skipped"
)

// IngestionLogEntry is the append-only record of one job execution attempt.
type IngestionLogEntry struct {
	ID               int64     `db:"log_id" json:"log_id" csv:"log_id"`
	ScraperJobID     int64     `db:"scraper_job_id" json:"scraper_job_id" csv:"scraper_job_id"`
	SourceURL        string    `db:"source_url" json:"source_url" csv:"source_url"`
	DataType         string    `db:"data_type" json:"data_type" csv:"data_type"`
	FetchTimestamp   time.Time `db:"fetch_timestamp" json:"fetch_timestamp" csv:"fetch_timestamp"`
	Status           RunStatus `db:"status" json:"status" csv:"status"`
	RecordsProcessed int       `db:"records_processed" json:"records_processed" csv:"records_processed"`
	RecordsCreated   int       `db:"records_created" json:"records_created" csv:"records_created"`
	RecordsUpdated   int       `db:"records_updated" json:"records_updated" csv:"records_updated"`
	ErrorMessage     *string   `db:"error_message" json:"error_message,omitempty" csv:"error_message,omitempty"`
	SourceHash       *string   `db:"source_hash" json:"source_hash,omitempty" csv:"source_hash,omitempty"`
	ConfigHash       *string   `db:"config_hash" json:"config_hash,omitempty" csv:"config_hash,omitempty"`
	ResponseCode     *int      `db:"response_code" json:"response_code,omitempty" csv:"response_code,omitempty"`
	ExecutionTime    float64   `db:"execution_time" json:"execution_time" csv:"execution_time"` // seconds
}

// RunFingerprint identifies what a logged run processed: the first page's
// content hash and the digest of the job config that extracted it.
type RunFingerprint struct {
	Content string
	Config  string
}

// StatusCounts tallies log entries by status.
type StatusCounts struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Partial int `json:"partial"`
	Skipped int `json:"skipped"`
	Error   int `json:"error"`
}

// Add counts n entries of status st.
func (c *StatusCounts) Add(st RunStatus, n int) {
	c.Total += n
	switch st {
	case StatusSuccess:
		c.Success += n
	case StatusPartial:
		c.Partial += n
	case StatusSkipped:
		c.Skipped += n
	case StatusError:
		c.Error += n
	}
}

// Validate checks the count and status invariants before the entry is appended.
func (e *IngestionLogEntry) Validate() error {
	switch e.Status {
	case StatusSuccess, StatusError, StatusPartial, StatusSkipped:
	default:
		return fmt.Errorf("invalid log status %q", e.Status)
	}
	if e.RecordsProcessed < 0 || e.RecordsCreated < 0 || e.RecordsUpdated < 0 {
		return fmt.Errorf("negative record counts")
	}
	if e.RecordsCreated+e.RecordsUpdated > e.RecordsProcessed {
		return fmt.Errorf("created (%d) + updated (%d) exceeds processed (%d)",
			e.RecordsCreated, e.RecordsUpdated, e.RecordsProcessed)
	}
	return nil
}

// StringPtr and IntPtr build nullable log columns.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func IntPtr(i int) *int {
	if i == 0 {
		return nil
	}
	return &i
}

// models/job.go
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// SourceType is the content format a job's target returns.
type SourceType string

const (
	SourceHTML SourceType = "html"
	SourceJSON SourceType = "json"
	SourceXML  SourceType = "xml"
	SourceCSV  SourceType = "csv"
)

// Valid reports whether t is a supported source type.
func (t SourceType) Valid() bool {
	switch t {
	case SourceHTML, SourceJSON, SourceXML, SourceCSV:
		return true
	}
	return false
}

// Defaults applied to new job definitions, matching the env_scraper_jobs column defaults.
const (
	DefaultRunFrequency   = "daily"
	DefaultRateLimitDelay = 2
	DefaultMaxRetries     = 3
	DefaultTimeout        = 30
)

// ScraperJob is a scraper job definition plus its scheduling state.
// SourceName is the unique key; ID is assigned by the store.
type ScraperJob struct {
	ID             int64        `db:"job_id" json:"job_id,omitempty"`
	SourceName     string       `db:"source_name" json:"source_name"`
	SourceType     SourceType   `db:"source_type" json:"source_type"`
	BaseURL        string       `db:"base_url" json:"base_url"`
	RunFrequency   string       `db:"run_frequency" json:"run_frequency"`
	IsActive       bool         `db:"is_active" json:"is_active"`
	UserAgent      string       `db:"user_agent" json:"user_agent,omitempty"`
	RateLimitDelay int          `db:"rate_limit_delay" json:"rate_limit_delay"` // seconds
	MaxRetries     int          `db:"max_retries" json:"max_retries"`
	Timeout        int          `db:"timeout" json:"timeout"` // seconds, 0 = fetcher default
	Config         ParserConfig `db:"config" json:"config"`

	LastRun   *time.Time `db:"last_run" json:"last_run,omitempty"`
	NextRun   *time.Time `db:"next_run" json:"next_run,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at,omitempty"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at,omitempty"`
}

// NewScraperJob returns a job carrying the column defaults, ready to be
// overlaid by a decoded definition.
func NewScraperJob() ScraperJob {
	return ScraperJob{
		RunFrequency:   DefaultRunFrequency,
		IsActive:       true,
		RateLimitDelay: DefaultRateLimitDelay,
		MaxRetries:     DefaultMaxRetries,
		Timeout:        DefaultTimeout,
	}
}

// TimeoutDuration converts the timeout to a duration, falling back to def when unset.
func (j *ScraperJob) TimeoutDuration(def time.Duration) time.Duration {
	if j.Timeout <= 0 {
		return def
	}
	return time.Duration(j.Timeout) * time.Second
}

// RateLimitDuration is the minimum spacing between two requests of this job.
func (j *ScraperJob) RateLimitDuration() time.Duration {
	if j.RateLimitDelay <= 0 {
		return 0
	}
	return time.Duration(j.RateLimitDelay) * time.Second
}

// DataType is the label written to the log and the content store for this job's records.
func (j *ScraperJob) DataType() string {
	return j.Config.PostType()
}

// ConfigDigest is a SHA-256 digest of the source type and parser config, the
// parts of a job that decide what a fetched page turns into. It is "" when the
// config cannot be encoded.
func (j *ScraperJob) ConfigDigest() string {
	b, err := json.Marshal(struct {
		SourceType SourceType   `json:"source_type"`
		Config     ParserConfig `json:"config"`
	}{j.SourceType, j.Config})
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// ScheduleNext recomputes NextRun from LastRun. A job that never ran keeps a nil NextRun,
// which the registry treats as due immediately.
func (j *ScraperJob) ScheduleNext() error {
	if j.LastRun == nil {
		j.NextRun = nil
		return nil
	}
	freq, err := ParseFrequency(j.RunFrequency)
	if err != nil {
		return err
	}
	next := freq.Next(*j.LastRun)
	j.NextRun = &next
	return nil
}

// IsDue reports whether an active job should run at now.
func (j *ScraperJob) IsDue(now time.Time) bool {
	if !j.IsActive {
		return false
	}
	return j.NextRun == nil || !j.NextRun.After(now)
}

// database/job_store.go
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gewnthar/envscrape/models"
)

const jobColumns = `job_id, source_name, source_type, base_url, run_frequency, is_active,
	user_agent, rate_limit_delay, max_retries, timeout, config,
	last_run, next_run, created_at, updated_at`

// JobStore is the job registry backed by the scraper_jobs table.
type JobStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewJobStore(db *sql.DB) *JobStore {
	return &JobStore{db: db, now: time.Now}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.ScraperJob, error) {
	var (
		j                models.ScraperJob
		cfgRaw           []byte
		lastRun, nextRun sql.NullTime
		sourceType       string
		createdAt, updAt time.Time
	)
	err := row.Scan(
		&j.ID, &j.SourceName, &sourceType, &j.BaseURL, &j.RunFrequency, &j.IsActive,
		&j.UserAgent, &j.RateLimitDelay, &j.MaxRetries, &j.Timeout, &cfgRaw,
		&lastRun, &nextRun, &createdAt, &updAt,
	)
	if err != nil {
		return nil, err
	}
	j.SourceType = models.SourceType(sourceType)
	if len(cfgRaw) > 0 {
		if err := json.Unmarshal(cfgRaw, &j.Config); err != nil {
			return nil, fmt.Errorf("failed to decode config for job %s: %w", j.SourceName, err)
		}
	}
	j.LastRun = timePtr(lastRun)
	j.NextRun = timePtr(nextRun)
	j.CreatedAt = createdAt.UTC()
	j.UpdatedAt = updAt.UTC()
	return &j, nil
}

func (s *JobStore) queryJobs(ctx context.Context, query string, args ...any) ([]models.ScraperJob, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scraper_jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.ScraperJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scraper_jobs row: %w", err)
		}
		jobs = append(jobs, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scraper_jobs rows: %w", err)
	}
	return jobs, nil
}

// ListActiveJobs returns active jobs ordered by ascending job id.
func (s *JobStore) ListActiveJobs(ctx context.Context) ([]models.ScraperJob, error) {
	return s.queryJobs(ctx, `SELECT `+jobColumns+` FROM scraper_jobs WHERE is_active = ? ORDER BY job_id`, true)
}

// ListJobs returns every job, active or not, ordered by job id.
func (s *JobStore) ListJobs(ctx context.Context) ([]models.ScraperJob, error) {
	return s.queryJobs(ctx, `SELECT `+jobColumns+` FROM scraper_jobs ORDER BY job_id`)
}

// ListDueJobs returns active jobs whose next_run is unset or not after now.
func (s *JobStore) ListDueJobs(ctx context.Context, now time.Time) ([]models.ScraperJob, error) {
	return s.queryJobs(ctx, `SELECT `+jobColumns+` FROM scraper_jobs
		WHERE is_active = ? AND (next_run IS NULL OR next_run <= ?)
		ORDER BY job_id`, true, dbTime(now))
}

// GetJobByName looks a job up by its exact source name.
func (s *JobStore) GetJobByName(ctx context.Context, name string) (*models.ScraperJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM scraper_jobs WHERE source_name = ?`, name)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFoundf("no scraper job named %q", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", name, err)
	}
	return j, nil
}

// MarkRun records a completed run and persists the recomputed next_run.
// Calling it twice with the same timestamp leaves the row unchanged.
func (s *JobStore) MarkRun(ctx context.Context, jobID int64, ts time.Time) error {
	var freq string
	err := s.db.QueryRowContext(ctx, `SELECT run_frequency FROM scraper_jobs WHERE job_id = ?`, jobID).Scan(&freq)
	if errors.Is(err, sql.ErrNoRows) {
		return models.NotFoundf("no scraper job with id %d", jobID)
	}
	if err != nil {
		return fmt.Errorf("failed to load job %d: %w", jobID, err)
	}

	j := models.ScraperJob{RunFrequency: freq}
	last := dbTime(ts)
	j.LastRun = &last
	if err := j.ScheduleNext(); err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `UPDATE scraper_jobs SET last_run = ?, next_run = ? WHERE job_id = ?`,
		nullTime(j.LastRun), nullTime(j.NextRun), jobID)
	if err != nil {
		return fmt.Errorf("failed to mark run for job %d: %w", jobID, err)
	}
	return nil
}

// UpsertJob validates the definition and creates or replaces it by source name.
// A replaced job keeps its id and last_run; next_run is recomputed from them.
// On return job carries the stored id and timestamps.
func (s *JobStore) UpsertJob(ctx context.Context, job *models.ScraperJob) error {
	if err := job.Validate(); err != nil {
		return err
	}
	cfgRaw, err := json.Marshal(job.Config)
	if err != nil {
		return models.NewError(models.KindInvalidConfiguration, "config is not serialisable", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for job %s: %w", job.SourceName, err)
	}
	defer tx.Rollback()

	var (
		existingID int64
		lastRun    sql.NullTime
		createdAt  time.Time
	)
	err = tx.QueryRowContext(ctx, `SELECT job_id, last_run, created_at FROM scraper_jobs WHERE source_name = ?`,
		job.SourceName).Scan(&existingID, &lastRun, &createdAt)
	exists := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to look up job %s: %w", job.SourceName, err)
	}

	now := dbTime(s.now())
	if exists {
		job.ID = existingID
		job.LastRun = timePtr(lastRun)
		job.CreatedAt = createdAt.UTC()
	} else {
		job.CreatedAt = now
		if job.LastRun != nil {
			t := dbTime(*job.LastRun)
			job.LastRun = &t
		}
	}
	job.UpdatedAt = now
	if err := job.ScheduleNext(); err != nil {
		return err
	}

	args := []any{
		string(job.SourceType), job.BaseURL, job.RunFrequency, job.IsActive,
		job.UserAgent, job.RateLimitDelay, job.MaxRetries, job.Timeout, string(cfgRaw),
		nullTime(job.LastRun), nullTime(job.NextRun),
	}
	if exists {
		_, err = tx.ExecContext(ctx, `UPDATE scraper_jobs SET
				source_type = ?, base_url = ?, run_frequency = ?, is_active = ?,
				user_agent = ?, rate_limit_delay = ?, max_retries = ?, timeout = ?, config = ?,
				last_run = ?, next_run = ?, updated_at = ?
			WHERE job_id = ?`, append(args, now, job.ID)...)
		if err != nil {
			return fmt.Errorf("failed to update job %s: %w", job.SourceName, err)
		}
	} else {
		res, err := tx.ExecContext(ctx, `INSERT INTO scraper_jobs (
				source_type, base_url, run_frequency, is_active,
				user_agent, rate_limit_delay, max_retries, timeout, config,
				last_run, next_run, source_name, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			append(args, job.SourceName, now, now)...)
		if err != nil {
			return fmt.Errorf("failed to insert job %s: %w", job.SourceName, err)
		}
		if job.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to read id for job %s: %w", job.SourceName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit job %s: %w", job.SourceName, err)
	}
	slog.Info("registry: job saved", "source", job.SourceName, "job_id", job.ID, "created", !exists)
	return nil
}

// Deactivate soft-deletes a job. Its log entries stay attached.
func (s *JobStore) Deactivate(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE scraper_jobs SET is_active = ?, updated_at = ? WHERE source_name = ?`,
		false, dbTime(s.now()), name)
	if err != nil {
		return fmt.Errorf("failed to deactivate job %s: %w", name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.NotFoundf("no scraper job named %q", name)
	}
	return nil
}

// database/log_store.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gewnthar/envscrape/models"
)

const logColumns = `log_id, scraper_job_id, source_url, data_type, fetch_timestamp, status,
	records_processed, records_created, records_updated,
	error_message, source_hash, config_hash, response_code, execution_time`

// LogStore is the append-only ingestion log.
type LogStore struct {
	db *sql.DB
}

func NewLogStore(db *sql.DB) *LogStore {
	return &LogStore{db: db}
}

// Append validates and inserts entry, setting its ID.
func (s *LogStore) Append(ctx context.Context, entry *models.IngestionLogEntry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("refusing to append log entry for job %d: %w", entry.ScraperJobID, err)
	}
	var (
		errMsg, hash, cfgHash sql.NullString
		code                  sql.NullInt64
	)
	if entry.ErrorMessage != nil {
		errMsg = sql.NullString{String: *entry.ErrorMessage, Valid: true}
	}
	if entry.SourceHash != nil {
		hash = sql.NullString{String: *entry.SourceHash, Valid: true}
	}
	if entry.ConfigHash != nil {
		cfgHash = sql.NullString{String: *entry.ConfigHash, Valid: true}
	}
	if entry.ResponseCode != nil {
		code = sql.NullInt64{Int64: int64(*entry.ResponseCode), Valid: true}
	}
	entry.FetchTimestamp = dbTime(entry.FetchTimestamp)

	res, err := s.db.ExecContext(ctx, `INSERT INTO ingestion_log (
			scraper_job_id, source_url, data_type, fetch_timestamp, status,
			records_processed, records_created, records_updated,
			error_message, source_hash, config_hash, response_code, execution_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ScraperJobID, entry.SourceURL, entry.DataType, entry.FetchTimestamp, string(entry.Status),
		entry.RecordsProcessed, entry.RecordsCreated, entry.RecordsUpdated,
		errMsg, hash, cfgHash, code, entry.ExecutionTime,
	)
	if err != nil {
		return fmt.Errorf("failed to append log entry for job %d: %w", entry.ScraperJobID, err)
	}
	if entry.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("failed to read log id: %w", err)
	}
	return nil
}

func scanLog(row rowScanner) (*models.IngestionLogEntry, error) {
	var (
		e                     models.IngestionLogEntry
		status                string
		errMsg, hash, cfgHash sql.NullString
		code                  sql.NullInt64
	)
	err := row.Scan(&e.ID, &e.ScraperJobID, &e.SourceURL, &e.DataType, &e.FetchTimestamp, &status,
		&e.RecordsProcessed, &e.RecordsCreated, &e.RecordsUpdated,
		&errMsg, &hash, &cfgHash, &code, &e.ExecutionTime)
	if err != nil {
		return nil, err
	}
	e.Status = models.RunStatus(status)
	e.FetchTimestamp = e.FetchTimestamp.UTC()
	if errMsg.Valid {
		e.ErrorMessage = &errMsg.String
	}
	if hash.Valid {
		e.SourceHash = &hash.String
	}
	if cfgHash.Valid {
		e.ConfigHash = &cfgHash.String
	}
	if code.Valid {
		c := int(code.Int64)
		e.ResponseCode = &c
	}
	return &e, nil
}

func (s *LogStore) queryLogs(ctx context.Context, query string, args ...any) ([]models.IngestionLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ingestion_log: %w", err)
	}
	defer rows.Close()

	var entries []models.IngestionLogEntry
	for rows.Next() {
		e, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ingestion_log row: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ingestion_log rows: %w", err)
	}
	return entries, nil
}

// ListByJob returns a job's entries, newest first.
func (s *LogStore) ListByJob(ctx context.Context, jobID int64, limit int) ([]models.IngestionLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryLogs(ctx, `SELECT `+logColumns+` FROM ingestion_log
		WHERE scraper_job_id = ? ORDER BY log_id DESC LIMIT ?`, jobID, limit)
}

// Recent returns the latest entries across all jobs, newest first.
func (s *LogStore) Recent(ctx context.Context, limit int) ([]models.IngestionLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryLogs(ctx, `SELECT `+logColumns+` FROM ingestion_log ORDER BY log_id DESC LIMIT ?`, limit)
}

// LastFingerprint returns the hashes of the job's most recent success or skipped
// run. ok is false when there is none.
func (s *LogStore) LastFingerprint(ctx context.Context, jobID int64) (fp models.RunFingerprint, ok bool, err error) {
	var content, cfg sql.NullString
	err = s.db.QueryRowContext(ctx, `SELECT source_hash, config_hash FROM ingestion_log
		WHERE scraper_job_id = ? AND status IN (?, ?) AND source_hash IS NOT NULL
		ORDER BY log_id DESC LIMIT 1`,
		jobID, string(models.StatusSuccess), string(models.StatusSkipped)).Scan(&content, &cfg)
	if errors.Is(err, sql.ErrNoRows) {
		return fp, false, nil
	}
	if err != nil {
		return fp, false, fmt.Errorf("failed to read last hash for job %d: %w", jobID, err)
	}
	return models.RunFingerprint{Content: content.String, Config: cfg.String}, content.Valid, nil
}

// Summary counts log entries by status, for one job when jobID is non-nil.
func (s *LogStore) Summary(ctx context.Context, jobID *int64) (models.StatusCounts, error) {
	query := `SELECT status, COUNT(*) FROM ingestion_log`
	var args []any
	if jobID != nil {
		query += ` WHERE scraper_job_id = ?`
		args = append(args, *jobID)
	}
	query += ` GROUP BY status`

	var counts models.StatusCounts
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return counts, fmt.Errorf("failed to summarise ingestion_log: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return counts, fmt.Errorf("failed to scan ingestion_log summary: %w", err)
		}
		counts.Add(models.RunStatus(status), n)
	}
	if err := rows.Err(); err != nil {
		return counts, fmt.Errorf("error iterating ingestion_log summary: %w", err)
	}
	return counts, nil
}

// database/schema.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS scraper_jobs (
		job_id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		source_name VARCHAR(100) NOT NULL,
		source_type VARCHAR(20) NOT NULL,
		base_url TEXT NOT NULL,
		run_frequency VARCHAR(100) NOT NULL DEFAULT 'daily',
		is_active TINYINT(1) NOT NULL DEFAULT 1,
		user_agent VARCHAR(255) NOT NULL DEFAULT '',
		rate_limit_delay INT NOT NULL DEFAULT 2,
		max_retries INT NOT NULL DEFAULT 3,
		timeout INT NOT NULL DEFAULT 30,
		config LONGTEXT NOT NULL,
		last_run DATETIME NULL,
		next_run DATETIME NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE KEY uq_scraper_jobs_source (source_name),
		KEY idx_scraper_jobs_due (is_active, next_run)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS ingestion_log (
		log_id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		scraper_job_id BIGINT NOT NULL,
		source_url TEXT NOT NULL,
		data_type VARCHAR(100) NOT NULL,
		fetch_timestamp DATETIME NOT NULL,
		status VARCHAR(20) NOT NULL,
		records_processed INT NOT NULL DEFAULT 0,
		records_created INT NOT NULL DEFAULT 0,
		records_updated INT NOT NULL DEFAULT 0,
		error_message TEXT NULL,
		source_hash VARCHAR(64) NULL,
		config_hash VARCHAR(64) NULL,
		response_code INT NULL,
		execution_time DOUBLE NOT NULL DEFAULT 0,
		KEY idx_ingestion_log_job (scraper_job_id, log_id),
		CONSTRAINT fk_ingestion_log_job FOREIGN KEY (scraper_job_id) REFERENCES scraper_jobs (job_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS stored_entities (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		source_name VARCHAR(100) NOT NULL,
		external_id VARCHAR(191) NULL,
		data_type VARCHAR(100) NOT NULL,
		status VARCHAR(20) NOT NULL,
		fields_json LONGTEXT NOT NULL,
		latitude DOUBLE NULL,
		longitude DOUBLE NULL,
		categories_json LONGTEXT NULL,
		fingerprint CHAR(64) NOT NULL,
		needs_review TINYINT(1) NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE KEY uq_stored_entities_key (source_name, external_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS scraper_jobs (
		job_id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_name TEXT NOT NULL UNIQUE,
		source_type TEXT NOT NULL,
		base_url TEXT NOT NULL,
		run_frequency TEXT NOT NULL DEFAULT 'daily',
		is_active BOOLEAN NOT NULL DEFAULT 1,
		user_agent TEXT NOT NULL DEFAULT '',
		rate_limit_delay INTEGER NOT NULL DEFAULT 2,
		max_retries INTEGER NOT NULL DEFAULT 3,
		timeout INTEGER NOT NULL DEFAULT 30,
		config TEXT NOT NULL,
		last_run DATETIME NULL,
		next_run DATETIME NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scraper_jobs_due ON scraper_jobs (is_active, next_run)`,
	`CREATE TABLE IF NOT EXISTS ingestion_log (
		log_id INTEGER PRIMARY KEY AUTOINCREMENT,
		scraper_job_id INTEGER NOT NULL REFERENCES scraper_jobs (job_id),
		source_url TEXT NOT NULL,
		data_type TEXT NOT NULL,
		fetch_timestamp DATETIME NOT NULL,
		status TEXT NOT NULL,
		records_processed INTEGER NOT NULL DEFAULT 0,
		records_created INTEGER NOT NULL DEFAULT 0,
		records_updated INTEGER NOT NULL DEFAULT 0,
		error_message TEXT NULL,
		source_hash TEXT NULL,
		config_hash TEXT NULL,
		response_code INTEGER NULL,
		execution_time REAL NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ingestion_log_job ON ingestion_log (scraper_job_id, log_id)`,
	`CREATE TABLE IF NOT EXISTS stored_entities (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_name TEXT NOT NULL,
		external_id TEXT NULL,
		data_type TEXT NOT NULL,
		status TEXT NOT NULL,
		fields_json TEXT NOT NULL,
		latitude REAL NULL,
		longitude REAL NULL,
		categories_json TEXT NULL,
		fingerprint TEXT NOT NULL,
		needs_review BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (source_name, external_id)
	)`,
}

// Migrate creates the pipeline tables if they do not exist.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect) error {
	var stmts []string
	switch dialect {
	case DialectMySQL:
		stmts = mysqlSchema
	case DialectSQLite:
		stmts = sqliteSchema
	default:
		return fmt.Errorf("unsupported dialect %q", dialect)
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	slog.Info("database: schema ready", "dialect", dialect, "statements", len(stmts))
	return nil
}

// database/connection.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/gewnthar/envscrape/config"
)

// Dialect identifies the SQL flavour behind a connection. Queries are written in
// the common subset; only DDL differs.
type Dialect string

const (
	DialectMySQL  Dialect = "mysql"
	DialectSQLite Dialect = "sqlite"
)

// Open opens and pings the configured database.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, Dialect, error) {
	var (
		db      *sql.DB
		dialect Dialect
		err     error
	)
	switch cfg.Driver {
	case "mysql":
		dialect = DialectMySQL
		dsn, err := mysqlDSN(cfg)
		if err != nil {
			return nil, "", err
		}
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open database connection: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
	case "sqlite":
		dialect = DialectSQLite
		db, err = sql.Open("sqlite", cfg.DSN)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open database connection: %w", err)
		}
		// one writer; an in-memory database also lives only as long as its connection
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, "", fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	default:
		return nil, "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("database: connected", "driver", cfg.Driver)
	return db, dialect, nil
}

// mysqlDSN builds the DSN from the discrete fields, or normalises an explicit one.
// parseTime is required for DATETIME scanning; clientFoundRows makes RowsAffected
// count matched rows, so an UPDATE that rewrites identical values is not "not found".
func mysqlDSN(cfg config.DatabaseConfig) (string, error) {
	var mc *mysql.Config
	if cfg.DSN != "" {
		parsed, err := mysql.ParseDSN(cfg.DSN)
		if err != nil {
			return "", fmt.Errorf("invalid mysql dsn: %w", err)
		}
		mc = parsed
	} else {
		mc = mysql.NewConfig()
		mc.User = cfg.User
		mc.Passwd = cfg.Password
		mc.Net = "tcp"
		mc.Addr = cfg.Host + ":" + cfg.Port
		mc.DBName = cfg.DBName
	}
	mc.ParseTime = true
	mc.ClientFoundRows = true
	mc.Loc = time.UTC
	return mc.FormatDSN(), nil
}

// dbTime normalises a timestamp for storage. DATETIME columns keep second precision.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: dbTime(*t), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

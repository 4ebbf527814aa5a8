// config/config.go
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where Load looks when no path is given.
const DefaultPath = "config/config.yaml"

type ServerConfig struct {
	Port string `yaml:"port" env:"PORT"`
}

// DatabaseConfig selects the SQL driver. For mysql the DSN is built from the
// discrete fields unless DSN is set; for sqlite DSN is the file path (or ":memory:").
type DatabaseConfig struct {
	Driver   string `yaml:"driver" env:"DRIVER"`
	Host     string `yaml:"host" env:"HOST"`
	Port     string `yaml:"port" env:"PORT"`
	User     string `yaml:"user" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
	DBName   string `yaml:"dbname" env:"NAME"`
	DSN      string `yaml:"dsn" env:"DSN"`
}

type FetcherConfig struct {
	DefaultTimeout   time.Duration `yaml:"default_timeout" env:"DEFAULT_TIMEOUT"`
	MaxBodyBytes     int64         `yaml:"max_body_bytes" env:"MAX_BODY_BYTES"`
	DefaultUserAgent string        `yaml:"default_user_agent" env:"USER_AGENT"`
}

type OrchestratorConfig struct {
	Workers             int           `yaml:"workers" env:"WORKERS"`
	RunBudget           time.Duration `yaml:"run_budget" env:"RUN_BUDGET"`
	RequireManualReview bool          `yaml:"require_manual_review" env:"REQUIRE_MANUAL_REVIEW"`
}

type SchedulerConfig struct {
	CheckInterval time.Duration `yaml:"check_interval" env:"CHECK_INTERVAL"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// Config is the application configuration. Orchestrator settings have no env
// sub-prefix (SCRAPE_WORKERS, SCRAPE_RUN_BUDGET).
type Config struct {
	Server       ServerConfig       `yaml:"server" envPrefix:"SERVER_"`
	Database     DatabaseConfig     `yaml:"database" envPrefix:"DB_"`
	Fetcher      FetcherConfig      `yaml:"fetcher" envPrefix:"FETCH_"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Scheduler    SchedulerConfig    `yaml:"scheduler" envPrefix:"SCHEDULER_"`
	Log          LogConfig          `yaml:"log" envPrefix:"LOG_"`
}

// Load reads configuration in three layers: the YAML file, then a .env file in
// the working directory, then SCRAPE_* environment variables. A missing YAML file
// is tolerated only when the path was not given explicitly.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	cfg := &Config{}
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		slog.Debug("config: no config file, using defaults and environment", "path", path)
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "SCRAPE_"}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.Sanitize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Sanitize fills defaults and applies guardrails.
func (c *Config) Sanitize() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Database.Port == "" && c.Database.Driver == "mysql" {
		c.Database.Port = "3306"
	}
	if c.Fetcher.DefaultTimeout <= 0 {
		c.Fetcher.DefaultTimeout = 30 * time.Second
	}
	if c.Fetcher.MaxBodyBytes <= 0 {
		c.Fetcher.MaxBodyBytes = 10 << 20
	}
	if c.Fetcher.DefaultUserAgent == "" {
		c.Fetcher.DefaultUserAgent = "envscrape/1.0 (+https://thrivingroots.org)"
	}
	if c.Orchestrator.Workers < 1 {
		c.Orchestrator.Workers = 1
	}
	if c.Orchestrator.RunBudget <= 0 {
		c.Orchestrator.RunBudget = 10 * time.Minute
	}
	if c.Scheduler.CheckInterval < time.Second {
		c.Scheduler.CheckInterval = time.Minute
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate rejects configurations that cannot work.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql":
		if c.Database.DSN == "" && (c.Database.Host == "" || c.Database.DBName == "") {
			return fmt.Errorf("database: mysql needs dsn or host and dbname")
		}
	case "sqlite":
		if c.Database.DSN == "" {
			return fmt.Errorf("database: sqlite needs dsn (file path or :memory:)")
		}
	default:
		return fmt.Errorf("database: unsupported driver %q (mysql, sqlite)", c.Database.Driver)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log: unsupported format %q (text, json)", c.Log.Format)
	}
	return nil
}

// NewLogger builds the process logger from the log section.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(c.Log.Format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// services/seed.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/titanous/json5"
	"gopkg.in/yaml.v3"

	"github.com/gewnthar/envscrape/models"
)

// JobUpserter stores job definitions.
type JobUpserter interface {
	UpsertJob(ctx context.Context, job *models.ScraperJob) error
	ListJobs(ctx context.Context) ([]models.ScraperJob, error)
}

// jobFile is the layout of an import file. Keys in defaults fill keys a job
// does not set; nested objects are merged key by key.
type jobFile struct {
	Defaults map[string]any   `json:"defaults" yaml:"defaults"`
	Jobs     []map[string]any `json:"jobs" yaml:"jobs"`
}

// LoadJobFile reads job definitions from a YAML (.yaml, .yml) or JSON/JSON5
// (.json, .json5) file. Column defaults apply to keys neither the job nor the
// defaults block sets.
func LoadJobFile(path string) ([]models.ScraperJob, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job file: %w", err)
	}
	var file jobFile
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &file)
	case ".json", ".json5":
		err = json5.Unmarshal(raw, &file)
	default:
		return nil, models.Invalidf("file", "unsupported job file extension %q", ext)
	}
	if err != nil {
		return nil, models.NewError(models.KindInvalidConfiguration, "failed to parse job file "+path, err)
	}
	return decodeJobs(file)
}

func decodeJobs(file jobFile) ([]models.ScraperJob, error) {
	jobs := make([]models.ScraperJob, 0, len(file.Jobs))
	for i, def := range file.Jobs {
		if def == nil {
			def = map[string]any{}
		}
		if len(file.Defaults) > 0 {
			if err := mergo.Merge(&def, file.Defaults, mergo.WithoutDereference); err != nil {
				return nil, fmt.Errorf("job %d: failed to apply defaults: %w", i, err)
			}
		}
		b, err := json.Marshal(def)
		if err != nil {
			return nil, fmt.Errorf("job %d: %w", i, err)
		}
		job := models.NewScraperJob()
		if err := json.Unmarshal(b, &job); err != nil {
			return nil, models.NewError(models.KindInvalidConfiguration, fmt.Sprintf("job %d", i), err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// ImportJobs upserts every job and reports how many were stored. Invalid jobs
// do not stop the others; their errors are joined.
func ImportJobs(ctx context.Context, store JobUpserter, jobs []models.ScraperJob, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var (
		stored int
		errs   []error
	)
	for i := range jobs {
		job := &jobs[i]
		if err := store.UpsertJob(ctx, job); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", job.SourceName, err))
			continue
		}
		stored++
		logger.Info("seed: job stored", "source", job.SourceName, "job_id", job.ID)
	}
	return stored, errors.Join(errs...)
}

// SeedDefaults installs DefaultJobs when the registry holds no job at all.
// It returns the number of jobs installed.
func SeedDefaults(ctx context.Context, store JobUpserter, logger *slog.Logger) (int, error) {
	existing, err := store.ListJobs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list jobs: %w", err)
	}
	if len(existing) > 0 {
		return 0, nil
	}
	return ImportJobs(ctx, store, DefaultJobs(), logger)
}

const defaultBotAgent = "Mozilla/5.0 (compatible; EnvironmentalIntelligenceBot/1.0; +https://thrivingroots.org)"

// DefaultJobs returns the built-in source definitions.
func DefaultJobs() []models.ScraperJob {
	sems := models.NewScraperJob()
	sems.SourceName = "EPA_SEMS"
	sems.SourceType = models.SourceHTML
	sems.BaseURL = "https://cumulis.epa.gov/supercpad/cursites/srchsites.cfm"
	sems.RunFrequency = "weekly"
	sems.UserAgent = defaultBotAgent
	sems.RateLimitDelay = 3
	sems.Config = models.ParserConfig{
		RecordSelector: ".site",
		Selectors:      map[string]string{
			"site_name":   ".site-name",
			"epa_id":      ".epa-id",
			"status":      ".site-status",
			"address":     ".site-address",
			"coordinates": ".coordinates",
		},
		IDField: "epa_id",
		Pagination: &models.Pagination{Strategy: models.NumberedPagination{
			Selector: ".pagination a.next",
			MaxPages: 100,
		}},
		DataMapping: &models.DataMapping{
			PostType: "superfund_site",
			MetaFields: map[string]string{
				"epa_id":     "epa_id",
				"npl_status": "status",
			},
		},
	}

	envirostor := models.NewScraperJob()
	envirostor.SourceName = "CalEPA_EnviroStor"
	envirostor.SourceType = models.SourceHTML
	envirostor.BaseURL = "https://www.envirostor.dtsc.ca.gov/public/"
	envirostor.RunFrequency = "weekly"
	envirostor.UserAgent = defaultBotAgent
	envirostor.RateLimitDelay = 2
	envirostor.Config = models.ParserConfig{
		RecordSelector: ".site-card",
		Selectors:      map[string]string{
			"site_name":    "h2.site-title",
			"site_id":      ".site-id",
			"status":       ".cleanup-status",
			"contaminants": ".contaminant-list li",
		},
		IDField: "site_id",
		Pagination: &models.Pagination{Strategy: models.LoadMorePagination{
			Selector:      "button.load-more",
			MaxIterations: 50,
		}},
		DataMapping: &models.DataMapping{
			PostType: "superfund_site",
			Taxonomies: map[string]string{
				"contaminant": "contaminants",
			},
		},
	}

	return []models.ScraperJob{sems, envirostor}
}

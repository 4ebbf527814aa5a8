// services/orchestrator.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/gewnthar/envscrape/models"
)

// JobRegistry is the part of the job store the orchestrator drives.
type JobRegistry interface {
	ListActiveJobs(ctx context.Context) ([]models.ScraperJob, error)
	ListDueJobs(ctx context.Context, now time.Time) ([]models.ScraperJob, error)
	GetJobByName(ctx context.Context, name string) (*models.ScraperJob, error)
	MarkRun(ctx context.Context, jobID int64, ts time.Time) error
}

// RunLog is the append-only ingestion log.
type RunLog interface {
	Append(ctx context.Context, entry *models.IngestionLogEntry) error
	LastFingerprint(ctx context.Context, jobID int64) (models.RunFingerprint, bool, error)
}

type PageFetcher interface {
	FetchURL(ctx context.Context, job *models.ScraperJob, url string) *models.FetchResult
}

type ContentExtractor interface {
	Extract(content []byte, st models.SourceType, cfg models.ParserConfig) ([]models.ExtractedRecord, error)
	NextPage(content []byte, st models.SourceType, cfg models.ParserConfig, pageURL string, page int) (string, error)
}

type RecordWriter interface {
	Upsert(ctx context.Context, sourceName string, records []models.ExtractedRecord) WriteSummary
}

// Options tune an Orchestrator. Zero values fall back to one worker, a ten
// minute run budget, time.Now and slog.Default.
type Options struct {
	Workers   int
	RunBudget time.Duration
	Now       func() time.Time
	Logger    *slog.Logger
}

// RunOptions apply to one invocation.
type RunOptions struct {
	// DryRun fetches and extracts but writes no entities, no log entry and
	// leaves the job's schedule untouched.
	DryRun bool
}

// RunResult describes one job execution.
type RunResult struct {
	SourceName string
	JobID      int64
	RunID      string
	DryRun     bool
	Pages      int
	Extracted  int
	Failed     int
	Entry      models.IngestionLogEntry
	// Err is set when the log entry or the schedule could not be persisted.
	Err error
}

// Status is the run's terminal status.
func (r *RunResult) Status() models.RunStatus { return r.Entry.Status }

// Orchestrator drives fetch, extract and write for scraper jobs and records one
// log entry per run.
type Orchestrator struct {
	registry  JobRegistry
	logs      RunLog
	fetcher   PageFetcher
	extractor ContentExtractor
	writer    RecordWriter

	workers int
	budget  time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

func NewOrchestrator(registry JobRegistry, logs RunLog, fetcher PageFetcher, extractor ContentExtractor, writer RecordWriter, opts Options) *Orchestrator {
	o := &Orchestrator{
		registry:  registry,
		logs:      logs,
		fetcher:   fetcher,
		extractor: extractor,
		writer:    writer,
		workers:   opts.Workers,
		budget:    opts.RunBudget,
		now:       opts.Now,
		logger:    opts.Logger,
	}
	if o.workers < 1 {
		o.workers = 1
	}
	if o.budget <= 0 {
		o.budget = 10 * time.Minute
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// RunJob runs the named job. An unknown name returns a NotFound error; every
// other failure is reported through the result's log entry.
func (o *Orchestrator) RunJob(ctx context.Context, name string, opts RunOptions) (*RunResult, error) {
	job, err := o.registry.GetJobByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return o.run(ctx, job, opts), nil
}

// RunAll runs every active job.
func (o *Orchestrator) RunAll(ctx context.Context, opts RunOptions) ([]RunResult, error) {
	jobs, err := o.registry.ListActiveJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active jobs: %w", err)
	}
	return o.RunBatch(ctx, jobs, opts), nil
}

// RunDue runs the active jobs whose next run is due.
func (o *Orchestrator) RunDue(ctx context.Context, opts RunOptions) ([]RunResult, error) {
	jobs, err := o.registry.ListDueJobs(ctx, o.now())
	if err != nil {
		return nil, fmt.Errorf("failed to list due jobs: %w", err)
	}
	return o.RunBatch(ctx, jobs, opts), nil
}

// RunBatch runs jobs on at most Workers goroutines. Once ctx is cancelled no
// further job is started; runs already in flight finish and are logged. Results
// are in job order and omit jobs that never started.
func (o *Orchestrator) RunBatch(ctx context.Context, jobs []models.ScraperJob, opts RunOptions) []RunResult {
	results := make([]*RunResult, len(jobs))
	var g errgroup.Group
	g.SetLimit(o.workers)
	for i := range jobs {
		if ctx.Err() != nil {
			break
		}
		i := i
		job := &jobs[i]
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			results[i] = o.run(ctx, job, opts)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]RunResult, 0, len(jobs))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	if skipped := len(jobs) - len(out); skipped > 0 {
		o.logger.Warn("orchestrator: batch cancelled", "not_started", skipped)
	}
	return out
}

func (o *Orchestrator) run(ctx context.Context, job *models.ScraperJob, opts RunOptions) *RunResult {
	started := time.Now()
	res := &RunResult{
		SourceName: job.SourceName,
		JobID:      job.ID,
		RunID:      uuid.NewString(),
		DryRun:     opts.DryRun,
		Entry: models.IngestionLogEntry{
			ScraperJobID:   job.ID,
			SourceURL:      job.BaseURL,
			DataType:       job.DataType(),
			FetchTimestamp: o.now(),
		},
	}
	logger := o.logger.With("source", job.SourceName, "job_id", job.ID, "run_id", res.RunID)
	logger.Info("orchestrator: job started", "dry_run", opts.DryRun)

	o.execute(ctx, job, opts, res, logger)

	res.Entry.ExecutionTime = time.Since(started).Seconds()
	if !opts.DryRun {
		o.record(ctx, job, res, logger)
	}
	logger.Info("orchestrator: job finished",
		"status", res.Entry.Status,
		"pages", res.Pages,
		"processed", res.Entry.RecordsProcessed,
		"created", res.Entry.RecordsCreated,
		"updated", res.Entry.RecordsUpdated,
		"failed", res.Failed,
		"duration", time.Since(started).Round(time.Millisecond))
	return res
}

// execute fills res.Entry with the outcome of fetch, extract and write.
func (o *Orchestrator) execute(ctx context.Context, job *models.ScraperJob, opts RunOptions, res *RunResult, logger *slog.Logger) {
	entry := &res.Entry
	runCtx, cancel := context.WithTimeout(ctx, o.budget)
	defer cancel()

	first := o.fetcher.FetchURL(runCtx, job, job.BaseURL)
	entry.ResponseCode = models.IntPtr(first.StatusCode)
	if !first.OK() {
		fail(entry, models.StatusError, first.Err)
		return
	}
	res.Pages = 1
	entry.SourceHash = models.StringPtr(first.Hash)
	digest := job.ConfigDigest()
	entry.ConfigHash = models.StringPtr(digest)

	if !opts.DryRun {
		// The page is already fetched, so the comparison outlives a cancelled batch.
		last, ok, err := o.logs.LastFingerprint(context.WithoutCancel(ctx), job.ID)
		switch {
		case err != nil:
			logger.Warn("orchestrator: previous hash lookup failed", "error", err)
		case ok && last.Content == first.Hash && last.Config == digest && digest != "":
			entry.Status = models.StatusSkipped
			entry.ErrorMessage = models.StringPtr("content unchanged since last run")
			return
		case ok && last.Content == first.Hash:
			logger.Info("orchestrator: job config changed, reprocessing unchanged content")
		}
	}

	records, err := o.extractor.Extract(first.Body, job.SourceType, job.Config)
	if err != nil {
		fail(entry, models.StatusError, err)
		return
	}
	stampPage(records, 1, job)

	records, stopErr := o.paginate(runCtx, ctx, job, first, records, res)
	if stopErr != nil {
		logger.Warn("orchestrator: pagination stopped", "pages", res.Pages, "error", stopErr)
	}
	res.Extracted = len(records)

	if len(records) == 0 {
		if stopErr != nil {
			fail(entry, models.StatusError, stopErr)
			return
		}
		entry.Status = models.StatusSkipped
		entry.ErrorMessage = models.StringPtr("no records extracted")
		return
	}

	if opts.DryRun {
		entry.RecordsProcessed = len(records)
		entry.Status = models.StatusSuccess
		if stopErr != nil {
			fail(entry, models.StatusPartial, stopErr)
		}
		return
	}

	// Writes finish even when the batch is being cancelled.
	sum := o.writer.Upsert(context.WithoutCancel(ctx), job.SourceName, records)
	res.Failed = sum.Failed
	entry.RecordsProcessed = sum.Processed
	entry.RecordsCreated = sum.Created
	entry.RecordsUpdated = sum.Updated

	var msgs []string
	if stopErr != nil {
		msgs = append(msgs, stopErr.Error())
	}
	if sum.Failed > 0 {
		msgs = append(msgs, fmt.Sprintf("%d of %d records failed to write: %v",
			sum.Failed, len(records), errors.Join(sum.Errors...)))
	}
	switch {
	case sum.Processed == 0:
		entry.Status = models.StatusError
	case len(msgs) > 0:
		entry.Status = models.StatusPartial
	default:
		entry.Status = models.StatusSuccess
	}
	entry.ErrorMessage = models.StringPtr(strings.Join(msgs, "; "))
}

// paginate follows the job's pagination from the first page and appends the
// records of every further page. It returns the reason pagination ended early,
// if any.
func (o *Orchestrator) paginate(runCtx, parent context.Context, job *models.ScraperJob, first *models.FetchResult, records []models.ExtractedRecord, res *RunResult) ([]models.ExtractedRecord, error) {
	pageURL, body := job.BaseURL, first.Body
	visited := map[string]bool{pageURL: true}
	for {
		next, err := o.extractor.NextPage(body, job.SourceType, job.Config, pageURL, res.Pages)
		if err != nil {
			return records, err
		}
		if next == "" || visited[next] {
			return records, nil
		}
		if err := runCtx.Err(); err != nil {
			if parent.Err() != nil {
				return records, fmt.Errorf("run cancelled after page %d: %w", res.Pages, err)
			}
			return records, fmt.Errorf("run budget %s exceeded after page %d", o.budget, res.Pages)
		}
		visited[next] = true

		page := o.fetcher.FetchURL(runCtx, job, next)
		if !page.OK() {
			return records, fmt.Errorf("page %d: %w", res.Pages+1, page.Err)
		}
		recs, err := o.extractor.Extract(page.Body, job.SourceType, job.Config)
		if err != nil {
			return records, fmt.Errorf("page %d: %w", res.Pages+1, err)
		}
		res.Pages++
		stampPage(recs, res.Pages, job)
		records = append(records, recs...)
		pageURL, body = next, page.Body
	}
}

// record appends the log entry and then advances the job's schedule. The
// schedule is not advanced when the entry could not be written.
func (o *Orchestrator) record(ctx context.Context, job *models.ScraperJob, res *RunResult, logger *slog.Logger) {
	wctx := context.WithoutCancel(ctx)
	if err := o.logs.Append(wctx, &res.Entry); err != nil {
		res.Err = fmt.Errorf("failed to append log entry: %w", err)
		logger.Error("orchestrator: log append failed", "error", err)
		return
	}
	if err := o.registry.MarkRun(wctx, job.ID, res.Entry.FetchTimestamp); err != nil {
		res.Err = fmt.Errorf("failed to mark run: %w", err)
		logger.Error("orchestrator: mark run failed", "error", err)
	}
}

func fail(entry *models.IngestionLogEntry, status models.RunStatus, err error) {
	entry.Status = status
	if err != nil {
		entry.ErrorMessage = models.StringPtr(err.Error())
	}
}

func stampPage(records []models.ExtractedRecord, page int, job *models.ScraperJob) {
	for i := range records {
		records[i].Page = page
		if records[i].DataType == "" {
			records[i].DataType = job.DataType()
		}
	}
}

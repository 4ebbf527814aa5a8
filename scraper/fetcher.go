// scraper/fetcher.go
package scraper

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"

	"github.com/gewnthar/envscrape/config"
	"github.com/gewnthar/envscrape/models"
)

// Fetcher retrieves job targets with per-attempt timeouts, bounded retries and
// per-source request pacing.
type Fetcher struct {
	client *resty.Client
	cfg    config.FetcherConfig

	mu       sync.Mutex
	lastSent map[string]time.Time // source name -> last request start
	now      func() time.Time
}

// NewFetcher creates a Fetcher. Zero config values fall back to sane defaults.
func NewFetcher(cfg config.FetcherConfig) *Fetcher {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 10 << 20
	}
	client := resty.New()
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))
	client.SetHeader("Accept", "text/html,application/json,application/xml,text/csv;q=0.9,*/*;q=0.8")
	return &Fetcher{
		client:   client,
		cfg:      cfg,
		lastSent: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Fetch retrieves the job's base URL.
func (f *Fetcher) Fetch(ctx context.Context, job *models.ScraperJob) *models.FetchResult {
	return f.FetchURL(ctx, job, job.BaseURL)
}

// FetchURL retrieves url under job's fetch parameters. Network errors, 5xx and 429
// are retried up to job.MaxRetries times with exponential backoff starting at the
// job's rate-limit delay; other 4xx fail immediately. Cancelling ctx stops further
// attempts but lets an attempt already in flight complete.
func (f *Fetcher) FetchURL(ctx context.Context, job *models.ScraperJob, url string) *models.FetchResult {
	start := time.Now()
	res := &models.FetchResult{URL: url}

	var lastErr error
	op := func() error {
		res.Attempts++
		status, body, err := f.attempt(ctx, job, url)
		res.StatusCode = status
		res.Size = len(body)
		if err != nil {
			lastErr = err
			return err
		}
		switch {
		case status >= 200 && status < 400:
			res.Body = body
			return nil
		case status == http.StatusTooManyRequests || status >= 500:
			lastErr = fmt.Errorf("HTTP %d from %s", status, url)
			return lastErr
		default:
			lastErr = fmt.Errorf("HTTP %d from %s", status, url)
			return backoff.Permanent(lastErr)
		}
	}
	notify := func(err error, wait time.Duration) {
		slog.Warn("fetcher: retrying", "source", job.SourceName, "url", url,
			"attempt", res.Attempts, "wait", wait, "error", err)
	}

	err := backoff.RetryNotify(op, f.retryPolicy(ctx, job), notify)
	res.Elapsed = time.Since(start)
	if err != nil {
		if lastErr == nil {
			lastErr = err
		}
		res.Body = nil
		res.Err = models.NewError(models.KindFetch,
			fmt.Sprintf("fetch %s failed after %d attempt(s)", url, res.Attempts), lastErr)
		return res
	}
	sum := sha256.Sum256(res.Body)
	res.Hash = hex.EncodeToString(sum[:])
	return res
}

// Probe performs one attempt with no retries and keeps the body whatever the
// status code. Only transport failures set Err.
func (f *Fetcher) Probe(ctx context.Context, job *models.ScraperJob) *models.FetchResult {
	start := time.Now()
	res := &models.FetchResult{URL: job.BaseURL, Attempts: 1}
	status, body, err := f.attempt(ctx, job, job.BaseURL)
	res.Elapsed = time.Since(start)
	res.StatusCode = status
	res.Size = len(body)
	if err != nil {
		res.Err = models.NewError(models.KindFetch, "probe "+job.BaseURL, err)
		return res
	}
	res.Body = body
	sum := sha256.Sum256(body)
	res.Hash = hex.EncodeToString(sum[:])
	return res
}

func (f *Fetcher) retryPolicy(ctx context.Context, job *models.ScraperJob) backoff.BackOff {
	delay := job.RateLimitDuration()
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = delay
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = max(time.Minute, 4*delay)
	b.MaxElapsedTime = 0
	b.Reset()
	retries := job.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// attempt sends a single request. The request runs detached from ctx's
// cancellation and is bounded by the job timeout instead.
func (f *Fetcher) attempt(ctx context.Context, job *models.ScraperJob, url string) (int, []byte, error) {
	if err := f.pace(ctx, job); err != nil {
		return 0, nil, err
	}

	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), job.TimeoutDuration(f.cfg.DefaultTimeout))
	defer cancel()

	req := f.client.R().
		SetContext(reqCtx).
		SetDoNotParseResponse(true).
		SetHeader("User-Agent", f.userAgent(job))
	method := http.MethodGet
	if opts := job.Config.Request; opts != nil {
		if opts.Method != "" {
			method = strings.ToUpper(opts.Method)
		}
		for k, v := range opts.Headers {
			req.SetHeader(k, os.Expand(v, os.Getenv))
		}
	}

	resp, err := req.Execute(method, url)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	raw := resp.RawBody()
	defer raw.Close()

	body, err := io.ReadAll(io.LimitReader(raw, f.cfg.MaxBodyBytes+1))
	if err != nil {
		return resp.StatusCode(), body, fmt.Errorf("reading body of %s: %w", url, err)
	}
	if int64(len(body)) > f.cfg.MaxBodyBytes {
		return resp.StatusCode(), nil, backoff.Permanent(
			fmt.Errorf("body of %s exceeds %d bytes", url, f.cfg.MaxBodyBytes))
	}
	return resp.StatusCode(), body, nil
}

func (f *Fetcher) userAgent(job *models.ScraperJob) string {
	if job.UserAgent != "" {
		return job.UserAgent
	}
	return f.cfg.DefaultUserAgent
}

// pace blocks until the job's rate-limit delay has passed since the previous
// request for the same source.
func (f *Fetcher) pace(ctx context.Context, job *models.ScraperJob) error {
	delay := job.RateLimitDuration()
	f.mu.Lock()
	now := f.now()
	next := now
	if last, ok := f.lastSent[job.SourceName]; ok && delay > 0 {
		if earliest := last.Add(delay); earliest.After(now) {
			next = earliest
		}
	}
	f.lastSent[job.SourceName] = next
	f.mu.Unlock()

	wait := next.Sub(now)
	if wait <= 0 {
		return nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return backoff.Permanent(fmt.Errorf("waiting for rate limit: %w", ctx.Err()))
	}
}

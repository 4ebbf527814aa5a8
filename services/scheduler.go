// services/scheduler.go
package services

import (
	"context"
	"log/slog"
	"time"
)

// DueRunner runs the jobs that are due.
type DueRunner interface {
	RunDue(ctx context.Context, opts RunOptions) ([]RunResult, error)
}

// Scheduler polls for due jobs and runs them. Ticks never overlap: a tick that
// takes longer than the interval delays the next one.
type Scheduler struct {
	runner   DueRunner
	interval time.Duration
	logger   *slog.Logger
}

// NewScheduler creates a Scheduler. An interval below one second becomes one minute.
func NewScheduler(runner DueRunner, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval < time.Second {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{runner: runner, interval: interval, logger: logger}
}

// Run checks immediately and then on every tick. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler: started", "interval", s.interval)
	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler: stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs the due jobs once and returns how many ran.
func (s *Scheduler) Tick(ctx context.Context) int {
	results, err := s.runner.RunDue(ctx, RunOptions{})
	if err != nil {
		s.logger.Error("scheduler: run due jobs", "error", err)
		return 0
	}
	if len(results) > 0 {
		s.logger.Info("scheduler: ran due jobs", "jobs", len(results))
	}
	return len(results)
}

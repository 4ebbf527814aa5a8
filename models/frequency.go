// models/frequency.go
package models

import (
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Frequency computes the next run time from the last one.
type Frequency interface {
	Next(last time.Time) time.Time
	String() string
}

var namedIntervals = map[string]time.Duration{
	"hourly":     time.Hour,
	"twicedaily": 12 * time.Hour,
	"daily":      24 * time.Hour,
	"weekly":     7 * 24 * time.Hour,
}

type intervalFrequency struct {
	raw      string
	interval time.Duration
}

func (f intervalFrequency) Next(last time.Time) time.Time { return last.Add(f.interval) }
func (f intervalFrequency) String() string                { return f.raw }

type monthlyFrequency struct{}

func (monthlyFrequency) Next(last time.Time) time.Time { return last.AddDate(0, 1, 0) }
func (monthlyFrequency) String() string                { return "monthly" }

type cronFrequency struct {
	raw      string
	schedule cron.Schedule
}

func (f cronFrequency) Next(last time.Time) time.Time { return f.schedule.Next(last) }
func (f cronFrequency) String() string                { return f.raw }

// ParseFrequency accepts a named interval (hourly, twicedaily, daily, weekly,
// monthly), a Go duration ("6h30m") or a standard cron expression / @descriptor.
func ParseFrequency(s string) (Frequency, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return nil, Invalidf("run_frequency", "must not be empty")
	}
	name := strings.ToLower(raw)
	if d, ok := namedIntervals[name]; ok {
		return intervalFrequency{raw: name, interval: d}, nil
	}
	if name == "monthly" {
		return monthlyFrequency{}, nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		if d <= 0 {
			return nil, Invalidf("run_frequency", "interval %q must be positive", raw)
		}
		return intervalFrequency{raw: raw, interval: d}, nil
	}
	sched, err := cron.ParseStandard(raw)
	if err != nil {
		return nil, &Error{Kind: KindInvalidConfiguration, Field: "run_frequency", Message: "unrecognised frequency " + `"` + raw + `"`, Cause: err}
	}
	return cronFrequency{raw: raw, schedule: sched}, nil
}

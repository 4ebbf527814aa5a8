package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingRunner struct {
	calls atomic.Int32
	err   error
}

func (c *countingRunner) RunDue(ctx context.Context, opts RunOptions) ([]RunResult, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return []RunResult{{SourceName: "EPA_SEMS"}}, nil
}

func TestScheduler_RunsImmediatelyAndOnTick(t *testing.T) {
	runner := &countingRunner{}
	s := NewScheduler(runner, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return runner.calls.Load() >= 2 }, 3*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}

func TestScheduler_Tick(t *testing.T) {
	ok := &countingRunner{}
	assert.Equal(t, 1, NewScheduler(ok, time.Minute, nil).Tick(context.Background()))

	failing := &countingRunner{err: errors.New("database is locked")}
	assert.Equal(t, 0, NewScheduler(failing, time.Minute, nil).Tick(context.Background()))
	assert.EqualValues(t, 1, failing.calls.Load())
}

func TestNewScheduler_IntervalFloor(t *testing.T) {
	s := NewScheduler(&countingRunner{}, 10*time.Millisecond, nil)
	assert.Equal(t, time.Minute, s.interval)
}

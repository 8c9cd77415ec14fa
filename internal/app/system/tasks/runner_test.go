package tasks_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dalemusser/stashgate/internal/app/system/tasks"
)

func TestRunner_RunsJobs(t *testing.T) {
	var runs int64
	job := tasks.Job{
		Name:     "counter",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			atomic.AddInt64(&runs, 1)
			return nil
		},
	}

	r := tasks.NewRunner(zap.NewNop(), job)
	r.Start()
	time.Sleep(100 * time.Millisecond)
	r.Stop()

	if got := atomic.LoadInt64(&runs); got == 0 {
		t.Error("job never ran")
	}

	// No more runs after Stop.
	after := atomic.LoadInt64(&runs)
	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt64(&runs); got != after {
		t.Errorf("job ran after Stop: %d -> %d", after, got)
	}
}

func TestRunner_PanickingJobDoesNotStopOthers(t *testing.T) {
	var healthy int64
	bad := tasks.Job{
		Name:     "bad",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			panic("boom")
		},
	}
	good := tasks.Job{
		Name:     "good",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			atomic.AddInt64(&healthy, 1)
			return nil
		},
	}

	r := tasks.NewRunner(zap.NewNop(), bad, good)
	r.Start()
	time.Sleep(100 * time.Millisecond)
	r.Stop()

	if atomic.LoadInt64(&healthy) < 2 {
		t.Errorf("healthy job starved by panicking sibling, ran %d times", healthy)
	}
}

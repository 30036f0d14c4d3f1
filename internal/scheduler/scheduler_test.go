package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSchedulerRunsImmediatelyAndOnTick(t *testing.T) {
	var runs atomic.Int32
	s := NewScheduler(10*time.Millisecond, Task{
		Name: "count",
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	s.Start(context.Background())
	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, time.Millisecond)
	s.Stop()

	after := runs.Load()
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, after, runs.Load(), "no task may run after Stop returns")
}

func TestSchedulerKeepsGoingAfterFailure(t *testing.T) {
	var failing, healthy atomic.Int32
	s := NewScheduler(time.Hour,
		Task{Name: "failing", Run: func(context.Context) error {
			failing.Add(1)
			return errors.New("exchange down")
		}},
		Task{Name: "healthy", Run: func(context.Context) error {
			healthy.Add(1)
			return nil
		}},
	)

	s.Start(context.Background())
	require.Eventually(t, func() bool { return healthy.Load() == 1 }, time.Second, time.Millisecond)
	s.Stop()

	require.EqualValues(t, 1, failing.Load())
}

func TestSchedulerStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewScheduler(time.Hour)

	s.Start(ctx)
	cancel()

	select {
	case <-s.done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop on context cancellation")
	}
	s.Stop()
}

package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorker_EnqueueProcessesJobs(t *testing.T) {
	w := NewWorker(2)
	defer w.Shutdown()

	var ran int64
	for i := 0; i < 5; i++ {
		w.Enqueue(func(ctx context.Context) error {
			atomic.AddInt64(&ran, 1)
			return nil
		})
	}

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&ran) == 5
	}, time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		stats := w.GetStats()
		return stats.CompletedJobs == 5 && stats.ActiveJobs == 0
	}, time.Second, 10*time.Millisecond)
}

func TestWorker_EnqueueTracksFailures(t *testing.T) {
	w := NewWorker(1)
	defer w.Shutdown()

	w.Enqueue(func(ctx context.Context) error {
		return errors.New("boom")
	})

	assert.Eventually(t, func() bool {
		return w.GetStats().FailedJobs == 1
	}, time.Second, 10*time.Millisecond)
}

func TestWorker_ScheduleEveryImmediate_RunsAtStartup(t *testing.T) {
	w := NewWorker(1)
	defer w.Shutdown()

	ran := make(chan struct{}, 1)
	w.ScheduleEveryImmediate(time.Hour, func(ctx context.Context) error {
		ran <- struct{}{}
		return nil
	})

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("scheduled job did not run at startup")
	}
}

func TestWorker_StatsReportPoolSize(t *testing.T) {
	w := NewWorker(3)
	defer w.Shutdown()

	assert.Equal(t, 3, w.GetStats().MaxConcurrent)
}

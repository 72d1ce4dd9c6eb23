package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/kgraph/metric"
)

func TestPoolProcessesAllJobs(t *testing.T) {
	var processed atomic.Int64
	pool := NewPool(2, 16, func(_ context.Context, job int) error {
		processed.Add(int64(job))
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))

	for i := 1; i <= 5; i++ {
		require.NoError(t, pool.Submit(i))
	}
	require.NoError(t, pool.Stop(time.Second))

	assert.Equal(t, int64(15), processed.Load())
	stats := pool.Stats()
	assert.Equal(t, int64(5), stats.Submitted)
	assert.Equal(t, int64(5), stats.Processed)
	assert.Equal(t, int64(0), stats.Failed)
}

func TestPoolCountsFailedJobs(t *testing.T) {
	pool := NewPool(1, 16, func(_ context.Context, fail bool) error {
		if fail {
			return errors.New("handler failed")
		}
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))

	require.NoError(t, pool.Submit(true))
	require.NoError(t, pool.Submit(false))
	require.NoError(t, pool.Stop(time.Second))

	stats := pool.Stats()
	assert.Equal(t, int64(2), stats.Processed)
	assert.Equal(t, int64(1), stats.Failed)
}

func TestPoolDropsWhenQueueFull(t *testing.T) {
	release := make(chan struct{})
	pool := NewPool(1, 1, func(_ context.Context, _ int) error {
		<-release
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))

	// First job occupies the worker, second fills the queue.
	require.NoError(t, pool.Submit(1))
	var dropped bool
	for i := 0; i < 10; i++ {
		if err := pool.Submit(i); errors.Is(err, ErrQueueFull) {
			dropped = true
			break
		}
	}
	assert.True(t, dropped)
	assert.Positive(t, pool.Stats().Dropped)

	close(release)
	require.NoError(t, pool.Stop(time.Second))
}

func TestPoolSubmitLifecycle(t *testing.T) {
	pool := NewPool(1, 4, func(_ context.Context, _ int) error { return nil })

	assert.ErrorIs(t, pool.Submit(1), ErrNotStarted)

	require.NoError(t, pool.Start(context.Background()))
	require.NoError(t, pool.Stop(time.Second))

	assert.ErrorIs(t, pool.Submit(1), ErrStopped)
}

func TestPoolStopTimesOutOnStuckWorker(t *testing.T) {
	var once sync.Once
	started := make(chan struct{})
	release := make(chan struct{})
	pool := NewPool(1, 4, func(_ context.Context, _ int) error {
		once.Do(func() { close(started) })
		<-release
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))
	require.NoError(t, pool.Submit(1))
	<-started

	assert.ErrorIs(t, pool.Stop(10*time.Millisecond), ErrStopTimeout)
	close(release)
}

func TestPoolRegistersMetrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	pool := NewPool(1, 4, func(_ context.Context, _ int) error { return nil },
		WithMetricsRegistry[int](registry, "warmup"))
	require.NoError(t, pool.Start(context.Background()))
	require.NoError(t, pool.Submit(1))
	require.NoError(t, pool.Stop(time.Second))

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, family := range families {
		names = append(names, family.GetName())
	}
	assert.Contains(t, names, "warmup_jobs_total")
}

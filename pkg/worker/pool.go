// Package worker provides a bounded worker pool for fan-out jobs such as
// warming reflection caches space by space.
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/kgraph/metric"
)

// Pool fans jobs of type T out to a fixed set of workers over a bounded
// queue. Submit never blocks; when the queue is full the job is dropped and
// the caller is told.
type Pool[T any] struct {
	workers int
	handler func(context.Context, T) error
	queue   chan T

	mu      sync.Mutex
	started bool
	stopped bool
	wg      sync.WaitGroup

	submitted atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64

	metrics *poolMetrics
}

// Option configures a Pool.
type Option[T any] func(*Pool[T])

// WithMetricsRegistry publishes queue depth, job outcomes and handler
// latency under the given metric name.
func WithMetricsRegistry[T any](registry *metric.MetricsRegistry, name string) Option[T] {
	return func(p *Pool[T]) {
		if registry == nil || name == "" {
			return
		}
		p.metrics = newPoolMetrics(registry, name)
	}
}

// NewPool creates a pool of the given size. The handler runs on the worker
// goroutines and must be safe for concurrent use.
func NewPool[T any](workers, queueSize int, handler func(context.Context, T) error, opts ...Option[T]) *Pool[T] {
	if handler == nil {
		panic("worker: nil handler")
	}
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}

	pool := &Pool[T]{
		workers: workers,
		handler: handler,
		queue:   make(chan T, queueSize),
	}
	for _, opt := range opts {
		opt(pool)
	}
	return pool
}

// Start launches the workers. The context bounds every handler invocation.
func (p *Pool[T]) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return nil
	}
	p.started = true

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work(ctx)
	}
	return nil
}

// Submit enqueues a job without blocking.
func (p *Pool[T]) Submit(job T) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return ErrNotStarted
	}
	if p.stopped {
		p.mu.Unlock()
		return ErrStopped
	}
	p.mu.Unlock()

	select {
	case p.queue <- job:
		p.submitted.Add(1)
		if p.metrics != nil {
			p.metrics.queueDepth.Set(float64(len(p.queue)))
		}
		return nil
	default:
		p.dropped.Add(1)
		if p.metrics != nil {
			p.metrics.jobs.WithLabelValues("dropped").Inc()
		}
		return ErrQueueFull
	}
}

// Stop closes the queue, lets the workers drain it and waits up to timeout
// for them to finish.
func (p *Pool[T]) Stop(timeout time.Duration) error {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}

// Stats reports the lifetime job counts and the current queue depth.
func (p *Pool[T]) Stats() Stats {
	return Stats{
		Workers:    p.workers,
		QueueDepth: len(p.queue),
		Submitted:  p.submitted.Load(),
		Processed:  p.processed.Load(),
		Failed:     p.failed.Load(),
		Dropped:    p.dropped.Load(),
	}
}

// Stats is a point-in-time snapshot of pool activity.
type Stats struct {
	Workers    int
	QueueDepth int
	Submitted  int64
	Processed  int64
	Failed     int64
	Dropped    int64
}

func (p *Pool[T]) work(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.queue:
			if !ok {
				return
			}

			start := time.Now()
			err := p.handler(ctx, job)
			p.processed.Add(1)
			if err != nil {
				p.failed.Add(1)
			}

			if p.metrics != nil {
				status := "done"
				if err != nil {
					status = "failed"
				}
				p.metrics.jobs.WithLabelValues(status).Inc()
				p.metrics.duration.Observe(time.Since(start).Seconds())
				p.metrics.queueDepth.Set(float64(len(p.queue)))
			}
		}
	}
}

type poolMetrics struct {
	queueDepth prometheus.Gauge
	jobs       *prometheus.CounterVec
	duration   prometheus.Histogram
}

func newPoolMetrics(registry *metric.MetricsRegistry, name string) *poolMetrics {
	m := &poolMetrics{
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: name + "_queue_depth",
			Help: "Jobs waiting for a worker",
		}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: name + "_jobs_total",
			Help: "Jobs by outcome",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    name + "_job_duration_seconds",
			Help:    "Handler latency",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}
	_ = registry.RegisterGauge("worker_pool", name+"_queue_depth", m.queueDepth)
	_ = registry.RegisterCounterVec("worker_pool", name+"_jobs_total", m.jobs)
	_ = registry.RegisterHistogram("worker_pool", name+"_job_duration_seconds", m.duration)
	return m
}

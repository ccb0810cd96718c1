// Package worker implements the bounded, non-blocking-overflow task pool
// the HTTP server hands requests off to: a fixed number of goroutines
// drain a buffered channel, Submit fails fast once admission capacity is
// exhausted rather than blocking the caller, and Stop drains queued and
// in-flight work before returning.
package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cfsbhawkins/gstd-1.x/metric"
)

var (
	// ErrQueueFull is returned by Submit when the pool is at capacity. The
	// HTTP server maps this to a 503 response.
	ErrQueueFull = errors.New("worker: queue full")
	// ErrNotRunning is returned by Submit before Start or after Stop.
	ErrNotRunning = errors.New("worker: pool not running")
	// ErrStopTimeout is returned by Stop if in-flight work does not drain
	// within the supplied timeout.
	ErrStopTimeout = errors.New("worker: stop timed out")
)

// UnlimitedClamp is the bounded default substituted for the historical -1
// "unlimited" worker-pool size: an unbounded pool is a thread-exhaustion
// attack surface.
const UnlimitedClamp = 64

// ClampSize returns size, or UnlimitedClamp if size requests "unlimited"
// (historically -1) or is otherwise non-positive.
func ClampSize(size int) int {
	if size <= 0 {
		return UnlimitedClamp
	}
	return size
}

// Pool is a fixed-capacity producer/consumer task queue with N workers.
// Task is the terminal unit of work: a zero-argument function the caller
// has already closed over its own request context.
//
// capacity bounds total admission — running plus queued tasks together —
// so the overflow boundary lands exactly where the configured pool size
// says: with capacity N, the (N+1)-th concurrent Submit fails.
type Pool struct {
	workers  int
	capacity int

	tasks    chan func()
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
	stopped  bool
	inflight int

	submitted atomic.Int64
	processed atomic.Int64
	dropped   int64

	metrics *poolMetrics
}

type poolMetrics struct {
	queueDepth prometheus.Gauge
	submitted  prometheus.Counter
	processed  prometheus.Counter
	dropped    prometheus.Counter
}

// New creates a pool with the given worker count and total admission
// capacity (running plus queued). A non-positive workers count is clamped
// to a bounded default; a non-positive capacity defaults to the worker
// count, making "pool size N" mean exactly N admitted tasks.
func New(workers, capacity int) *Pool {
	workers = ClampSize(workers)
	if capacity <= 0 {
		capacity = workers
	}
	return &Pool{
		workers:  workers,
		capacity: capacity,
		// Buffered to capacity so an admitted Submit can never block on
		// the channel: queued items never exceed admitted items.
		tasks: make(chan func(), capacity),
	}
}

// WithMetrics registers queue-depth/submitted/processed/dropped gauges and
// counters under the given prefix. Call before Start.
func (p *Pool) WithMetrics(reg *metric.Registry, prefix string) *Pool {
	if reg == nil {
		return p
	}
	m := &poolMetrics{
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{Name: prefix + "_queue_depth", Help: "current queued task count"}),
		submitted:  prometheus.NewCounter(prometheus.CounterOpts{Name: prefix + "_submitted_total", Help: "tasks submitted"}),
		processed:  prometheus.NewCounter(prometheus.CounterOpts{Name: prefix + "_processed_total", Help: "tasks processed"}),
		dropped:    prometheus.NewCounter(prometheus.CounterOpts{Name: prefix + "_dropped_total", Help: "tasks dropped (queue full)"}),
	}
	_ = reg.Register(prefix+"_queue_depth", m.queueDepth)
	_ = reg.Register(prefix+"_submitted_total", m.submitted)
	_ = reg.Register(prefix+"_processed_total", m.processed)
	_ = reg.Register(prefix+"_dropped_total", m.dropped)
	p.metrics = m
	return p
}

// Start launches the worker goroutines. ctx cancellation stops all workers
// immediately without draining the queue; prefer Stop for graceful drain.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.loop(ctx)
	}
}

func (p *Pool) loop(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			task()
			p.processed.Add(1)
			p.mu.Lock()
			p.inflight--
			p.mu.Unlock()
			if p.metrics != nil {
				p.metrics.processed.Inc()
				p.metrics.queueDepth.Set(float64(len(p.tasks)))
			}
		}
	}
}

// Submit admits task if total in-flight work is below capacity; otherwise
// it returns ErrQueueFull immediately without blocking the caller. The
// admission check and send happen under the pool mutex so they cannot race
// a concurrent Stop closing the channel.
func (p *Pool) Submit(task func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running || p.stopped {
		return ErrNotRunning
	}

	if p.inflight >= p.capacity {
		p.dropped++
		if p.metrics != nil {
			p.metrics.dropped.Inc()
		}
		return ErrQueueFull
	}

	p.inflight++
	p.tasks <- task
	p.submitted.Add(1)
	if p.metrics != nil {
		p.metrics.submitted.Inc()
		p.metrics.queueDepth.Set(float64(len(p.tasks)))
	}
	return nil
}

// Stop stops accepting new work, waits for queued and in-flight tasks to
// finish (up to timeout), then returns. Idempotent.
func (p *Pool) Stop(timeout time.Duration) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.tasks)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return ErrStopTimeout
	}
}

// Stats is a point-in-time snapshot for the /pipelines/status-adjacent
// introspection and for Prometheus scraping fallback in tests.
type Stats struct {
	Workers    int
	Capacity   int
	InFlight   int
	QueueDepth int
	Submitted  int64
	Processed  int64
	Dropped    int64
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	inflight, dropped := p.inflight, p.dropped
	p.mu.Unlock()
	return Stats{
		Workers:    p.workers,
		Capacity:   p.capacity,
		InFlight:   inflight,
		QueueDepth: len(p.tasks),
		Submitted:  p.submitted.Load(),
		Processed:  p.processed.Load(),
		Dropped:    dropped,
	}
}

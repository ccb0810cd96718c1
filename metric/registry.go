// Package metric wraps a Prometheus registry, giving every subsystem
// (worker pool, TCP and HTTP servers, Engine adapter) a single place to
// register counters and gauges without each owning its own
// prometheus.Registry.
package metric

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry manages metric registration for the whole daemon process.
type Registry struct {
	mu         sync.Mutex
	prom       *prometheus.Registry
	registered map[string]prometheus.Collector
}

// New creates a registry pre-populated with Go runtime and process
// collectors.
func New() *Registry {
	r := &Registry{
		prom:       prometheus.NewRegistry(),
		registered: make(map[string]prometheus.Collector),
	}
	r.prom.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Prometheus returns the underlying registry, e.g. for wiring promhttp.Handler.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.prom
}

// Register adds a collector under a scoped key (e.g. "http_pool_queue_depth")
// so callers can look it up or unregister it later.
func (r *Registry) Register(key string, c prometheus.Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.registered[key]; exists {
		return fmt.Errorf("metric: %q already registered", key)
	}
	if err := r.prom.Register(c); err != nil {
		return fmt.Errorf("metric: register %q: %w", key, err)
	}
	r.registered[key] = c
	return nil
}

// Unregister removes a previously registered collector.
func (r *Registry) Unregister(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, exists := r.registered[key]
	if !exists {
		return false
	}
	delete(r.registered, key)
	return r.prom.Unregister(c)
}

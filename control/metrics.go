// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics collector for system-level monitoring.
// Counters are lock-free; gauges live in a mutex-guarded map.

package control

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// MetricsRegistry holds counters and gauges.
type MetricsRegistry struct {
	counters *xsync.MapOf[string, *atomic.Int64]

	mu      sync.RWMutex
	gauges  map[string]any
	updated time.Time
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		counters: xsync.NewMapOf[string, *atomic.Int64](),
		gauges:   make(map[string]any),
	}
}

// Add increments the counter key by delta, creating it on first use.
func (mr *MetricsRegistry) Add(key string, delta int64) {
	c, _ := mr.counters.LoadOrCompute(key, func() *atomic.Int64 { return new(atomic.Int64) })
	c.Add(delta)
}

// Counter returns the current value of a counter.
func (mr *MetricsRegistry) Counter(key string) int64 {
	if c, ok := mr.counters.Load(key); ok {
		return c.Load()
	}
	return 0
}

// Set sets or updates a gauge.
func (mr *MetricsRegistry) Set(key string, value any) {
	mr.mu.Lock()
	mr.gauges[key] = value
	mr.updated = time.Now()
	mr.mu.Unlock()
}

// GetSnapshot returns counters and gauges in one map.
func (mr *MetricsRegistry) GetSnapshot() map[string]any {
	mr.mu.RLock()
	out := make(map[string]any, len(mr.gauges)+mr.counters.Size())
	for k, v := range mr.gauges {
		out[k] = v
	}
	mr.mu.RUnlock()
	mr.counters.Range(func(k string, c *atomic.Int64) bool {
		out[k] = c.Load()
		return true
	})
	return out
}

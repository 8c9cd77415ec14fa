// internal/app/system/metrics/metrics.go

// Package metrics tracks fetch routing outcomes and latency quantiles.
// Latencies are recorded per routing branch in a DDSketch so the health
// endpoint can report p50/p95/p99 without retaining raw samples.
package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
)

// Collector accumulates gateway metrics. Safe for concurrent use.
type Collector struct {
	mu               sync.Mutex
	counters         map[string]int64
	sketches         map[string]*ddsketch.DDSketch
	relativeAccuracy float64
}

// NewCollector creates a Collector. relativeAccuracy controls DDSketch
// quantile accuracy (e.g. 0.01 = 1%).
func NewCollector(relativeAccuracy float64) *Collector {
	return &Collector{
		counters:         make(map[string]int64),
		sketches:         make(map[string]*ddsketch.DDSketch),
		relativeAccuracy: relativeAccuracy,
	}
}

// Count increments the named counter. Counter names in use:
// hit, miss, passthrough, store_write, store_write_error,
// offline_fallback, timeout_synthesized, precache_ok, precache_failed.
func (c *Collector) Count(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[name]++
}

// Counter returns the current value of a counter.
func (c *Collector) Counter(name string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters[name]
}

// Record records a duration for the given operation (routing branch).
// Durations are stored in milliseconds.
func (c *Collector) Record(operation string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sketch, exists := c.sketches[operation]
	if !exists {
		var err error
		sketch, err = ddsketch.LogUnboundedDenseDDSketch(c.relativeAccuracy)
		if err != nil {
			sketch, _ = ddsketch.NewDefaultDDSketch(c.relativeAccuracy)
		}
		c.sketches[operation] = sketch
	}
	_ = sketch.Add(float64(duration.Microseconds()) / 1000.0)
}

// Stats is a latency summary for one operation, in milliseconds.
type Stats struct {
	Operation string  `json:"operation"`
	Count     int64   `json:"count"`
	P50       float64 `json:"p50"`
	P95       float64 `json:"p95"`
	P99       float64 `json:"p99"`
	Max       float64 `json:"max"`
}

// LatencyStats returns the summary for one operation.
func (c *Collector) LatencyStats(operation string) (Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statsLocked(operation)
}

func (c *Collector) statsLocked(operation string) (Stats, error) {
	sketch, exists := c.sketches[operation]
	if !exists {
		return Stats{}, fmt.Errorf("no data for operation: %s", operation)
	}

	count := sketch.GetCount()
	if count == 0 {
		return Stats{Operation: operation}, nil
	}

	p50, _ := sketch.GetValueAtQuantile(0.50)
	p95, _ := sketch.GetValueAtQuantile(0.95)
	p99, _ := sketch.GetValueAtQuantile(0.99)
	max, _ := sketch.GetMaxValue()

	return Stats{
		Operation: operation,
		Count:     int64(count),
		P50:       p50,
		P95:       p95,
		P99:       p99,
		Max:       max,
	}, nil
}

// Snapshot is the full metrics view served by the health endpoint.
type Snapshot struct {
	Counters map[string]int64 `json:"counters"`
	Latency  []Stats          `json:"latency"`
}

// Snapshot returns a copy of all counters and latency summaries.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{Counters: make(map[string]int64, len(c.counters))}
	for name, v := range c.counters {
		snap.Counters[name] = v
	}
	for operation := range c.sketches {
		if stat, err := c.statsLocked(operation); err == nil {
			snap.Latency = append(snap.Latency, stat)
		}
	}
	return snap
}

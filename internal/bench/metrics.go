// Package bench collects latency and throughput metrics for the load
// generation tool.
package bench

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Collector aggregates per-operation latencies and error counts. Safe for
// concurrent use.
type Collector struct {
	mu        sync.Mutex
	startTime time.Time
	ops       map[string]*opStats
}

type opStats struct {
	count     int64
	failed    int64
	latencies []int64 // microseconds
	total     int64
}

// NewCollector starts a collector; elapsed time counts from here.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       map[string]*opStats{},
	}
}

// Record adds one operation outcome under the given name.
func (c *Collector) Record(op string, d time.Duration, err error) {
	us := d.Microseconds()

	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.ops[op]
	if stats == nil {
		stats = &opStats{latencies: make([]int64, 0, 1024)}
		c.ops[op] = stats
	}
	stats.count++
	if err != nil {
		stats.failed++
	}
	stats.latencies = append(stats.latencies, us)
	stats.total += us
}

// Stats summarizes one operation type. Latencies are microseconds.
type Stats struct {
	Count      int64
	Failed     int64
	Throughput float64 // operations per second over the collector lifetime
	Min        int64
	Max        int64
	Mean       float64
	Median     int64
	P95        int64
	P99        int64
}

// Summary returns the aggregated stats per operation name.
func (c *Collector) Summary() map[string]Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := time.Since(c.startTime).Seconds()
	out := make(map[string]Stats, len(c.ops))
	for op, stats := range c.ops {
		s := Stats{Count: stats.count, Failed: stats.failed}
		if elapsed > 0 {
			s.Throughput = float64(stats.count) / elapsed
		}
		if n := len(stats.latencies); n > 0 {
			sorted := make([]int64, n)
			copy(sorted, stats.latencies)
			sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

			s.Min = sorted[0]
			s.Max = sorted[n-1]
			s.Mean = float64(stats.total) / float64(n)
			s.Median = sorted[n/2]
			s.P95 = sorted[percentileIndex(n, 0.95)]
			s.P99 = sorted[percentileIndex(n, 0.99)]
		}
		out[op] = s
	}
	return out
}

func percentileIndex(n int, p float64) int {
	i := int(float64(n) * p)
	if i >= n {
		i = n - 1
	}
	return i
}

// Format renders the stats as one human-readable line.
func (s Stats) Format() string {
	return fmt.Sprintf(
		"%d ops (%d failed), %.0f ops/s, latency µs min=%d mean=%.0f p50=%d p95=%d p99=%d max=%d",
		s.Count, s.Failed, s.Throughput, s.Min, s.Mean, s.Median, s.P95, s.P99, s.Max)
}

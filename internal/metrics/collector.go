// Package metrics aggregates request results and reports them on the console,
// as a JSON file and through a Prometheus endpoint.
package metrics

import (
	"cmp"
	"maps"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Collector aggregates load test metrics:
// - Request counts (total, success, failure)
// - Latency distribution (min, avg, p50, p95, p99, max)
// - Per-task breakdown
// - Failure table keyed by task and message
//
// Thread Safety: Safe for concurrent use by multiple goroutines.
type Collector struct {
	mu sync.RWMutex

	// Global counters
	totalRequests   atomic.Int64
	successRequests atomic.Int64
	failedRequests  atomic.Int64

	latencies latencyWindow
	latencyMu sync.RWMutex

	// All-time extremes in nanoseconds; the window only covers recent samples.
	minLatency atomic.Int64
	maxLatency atomic.Int64

	// Per-task statistics
	taskStats   map[string]*TaskStats
	taskStatsMu sync.RWMutex

	// Status code tracking
	statusCodes   map[int]int64
	statusCodesMu sync.RWMutex

	// Failures by task and message
	failures   map[FailureKey]int64
	failuresMu sync.Mutex

	// Timing
	startTime time.Time
	endTime   time.Time
}

// CollectorConfig holds configuration for the metrics collector.
type CollectorConfig struct {
	// MaxLatencies is the maximum number of latency samples to retain
	// for percentile calculations. Default: 100000.
	MaxLatencies int
}

// Default configuration values.
const (
	defaultMaxLatencies     = 100000
	defaultTaskMaxLatencies = 10000
)

// DefaultCollectorConfig returns default configuration.
func DefaultCollectorConfig() CollectorConfig {
	return CollectorConfig{MaxLatencies: defaultMaxLatencies}
}

// Result is one request as seen by the metrics layer.
type Result struct {
	Task       string
	StatusCode int // zero when no response was received
	Latency    time.Duration
	Success    bool
	// Outcome is the classification label, e.g. "success" or "service_unavailable".
	Outcome string
	// Failure labels an unsuccessful request.
	Failure   string
	Timestamp time.Time
}

// FailureKey groups failures in the failure table.
type FailureKey struct {
	Task    string
	Message string
}

// Failure is one row of the failure table.
type Failure struct {
	Task    string `json:"task"`
	Message string `json:"message"`
	Count   int64  `json:"count"`
}

// TaskStats holds statistics for a single task.
type TaskStats struct {
	mu sync.RWMutex

	Name            string
	TotalRequests   int64
	SuccessRequests int64
	FailedRequests  int64
	TotalLatencyNs  int64
	MinLatency      time.Duration
	MaxLatency      time.Duration
	latencies       latencyWindow
}

// Snapshot represents a point-in-time snapshot of all metrics.
type Snapshot struct {
	// Timing
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	// Request counts
	TotalRequests   int64
	SuccessRequests int64
	FailedRequests  int64

	// Latency distribution
	MinLatency time.Duration
	AvgLatency time.Duration
	P50Latency time.Duration
	P95Latency time.Duration
	P99Latency time.Duration
	MaxLatency time.Duration

	// Derived metrics
	SuccessRate float64 // 0.0 - 100.0 percentage
	FailureRate float64 // 0.0 - 100.0 percentage
	RPS         float64 // Requests per second

	// Status code distribution
	StatusCodes map[int]int64

	// Per-task statistics
	TaskStats map[string]*TaskSnapshot

	// Failures sorted by descending count
	Failures []Failure
}

// TaskSnapshot represents a snapshot of task statistics.
type TaskSnapshot struct {
	Name            string
	TotalRequests   int64
	SuccessRequests int64
	FailedRequests  int64
	MinLatency      time.Duration
	AvgLatency      time.Duration
	P50Latency      time.Duration
	P95Latency      time.Duration
	P99Latency      time.Duration
	MaxLatency      time.Duration
	SuccessRate     float64
	RPS             float64
}

// NewCollector creates a new metrics collector.
func NewCollector(config CollectorConfig) *Collector {
	if config.MaxLatencies <= 0 {
		config.MaxLatencies = defaultMaxLatencies
	}

	c := &Collector{
		latencies:   newLatencyWindow(config.MaxLatencies),
		taskStats:   make(map[string]*TaskStats),
		statusCodes: make(map[int]int64),
		failures:    make(map[FailureKey]int64),
	}
	c.minLatency.Store(math.MaxInt64)
	return c
}

// Start marks the beginning of metrics collection.
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startTime = time.Now()
	c.endTime = time.Time{}
}

// Stop marks the end of metrics collection.
func (c *Collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endTime = time.Now()
}

// Record records a request result.
func (c *Collector) Record(result Result) {
	c.totalRequests.Add(1)
	if result.Success {
		c.successRequests.Add(1)
	} else {
		c.failedRequests.Add(1)
		c.recordFailure(result)
	}

	c.latencyMu.Lock()
	c.latencies.add(result.Latency)
	c.latencyMu.Unlock()
	c.recordExtremes(result.Latency.Nanoseconds())

	if result.StatusCode > 0 {
		c.recordStatusCode(result.StatusCode)
	}

	if result.Task != "" {
		c.recordTaskResult(result)
	}
}

func (c *Collector) recordExtremes(ns int64) {
	for {
		cur := c.minLatency.Load()
		if ns >= cur || c.minLatency.CompareAndSwap(cur, ns) {
			break
		}
	}
	for {
		cur := c.maxLatency.Load()
		if ns <= cur || c.maxLatency.CompareAndSwap(cur, ns) {
			break
		}
	}
}

// recordStatusCode increments the count for a status code.
func (c *Collector) recordStatusCode(code int) {
	c.statusCodesMu.Lock()
	defer c.statusCodesMu.Unlock()
	c.statusCodes[code]++
}

func (c *Collector) recordFailure(result Result) {
	c.failuresMu.Lock()
	defer c.failuresMu.Unlock()
	c.failures[FailureKey{Task: result.Task, Message: result.Failure}]++
}

// recordTaskResult records statistics for a specific task.
func (c *Collector) recordTaskResult(result Result) {
	c.taskStatsMu.Lock()
	stats, ok := c.taskStats[result.Task]
	if !ok {
		stats = &TaskStats{
			Name:      result.Task,
			latencies: newLatencyWindow(defaultTaskMaxLatencies),
		}
		c.taskStats[result.Task] = stats
	}
	c.taskStatsMu.Unlock()

	stats.mu.Lock()
	defer stats.mu.Unlock()

	stats.TotalRequests++
	if result.Success {
		stats.SuccessRequests++
	} else {
		stats.FailedRequests++
	}

	stats.TotalLatencyNs += result.Latency.Nanoseconds()

	if stats.TotalRequests == 1 || result.Latency < stats.MinLatency {
		stats.MinLatency = result.Latency
	}
	if result.Latency > stats.MaxLatency {
		stats.MaxLatency = result.Latency
	}
	stats.latencies.add(result.Latency)
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	duration := c.Duration()

	c.mu.RLock()
	startTime := c.startTime
	endTime := c.endTime
	c.mu.RUnlock()

	totalRequests := c.totalRequests.Load()
	successRequests := c.successRequests.Load()
	failedRequests := c.failedRequests.Load()

	c.latencyMu.RLock()
	lat := c.latencies.summarize()
	c.latencyMu.RUnlock()

	var minLat time.Duration
	if v := c.minLatency.Load(); v != math.MaxInt64 {
		minLat = time.Duration(v)
	}
	maxLat := time.Duration(c.maxLatency.Load())

	var successRate, failureRate float64
	if totalRequests > 0 {
		successRate = float64(successRequests) / float64(totalRequests) * 100
		failureRate = float64(failedRequests) / float64(totalRequests) * 100
	}

	var rps float64
	if duration > 0 {
		rps = float64(totalRequests) / duration.Seconds()
	}

	return Snapshot{
		StartTime:       startTime,
		EndTime:         endTime,
		Duration:        duration,
		TotalRequests:   totalRequests,
		SuccessRequests: successRequests,
		FailedRequests:  failedRequests,
		MinLatency:      minLat,
		AvgLatency:      lat.Avg,
		P50Latency:      lat.P50,
		P95Latency:      lat.P95,
		P99Latency:      lat.P99,
		MaxLatency:      maxLat,
		SuccessRate:     successRate,
		FailureRate:     failureRate,
		RPS:             rps,
		StatusCodes:     c.copyStatusCodes(),
		TaskStats:       c.copyTaskStats(duration),
		Failures:        c.Failures(),
	}
}

// copyStatusCodes creates a copy of the status code map.
func (c *Collector) copyStatusCodes() map[int]int64 {
	c.statusCodesMu.RLock()
	defer c.statusCodesMu.RUnlock()
	return maps.Clone(c.statusCodes)
}

// copyTaskStats creates snapshots of all task statistics.
func (c *Collector) copyTaskStats(totalDuration time.Duration) map[string]*TaskSnapshot {
	c.taskStatsMu.RLock()
	defer c.taskStatsMu.RUnlock()

	result := make(map[string]*TaskSnapshot, len(c.taskStats))
	for name, stats := range c.taskStats {
		result[name] = stats.snapshot(totalDuration)
	}
	return result
}

// Failures returns the failure table sorted by descending count, then task
// and message.
func (c *Collector) Failures() []Failure {
	c.failuresMu.Lock()
	rows := make([]Failure, 0, len(c.failures))
	for key, count := range c.failures {
		rows = append(rows, Failure{Task: key.Task, Message: key.Message, Count: count})
	}
	c.failuresMu.Unlock()

	slices.SortFunc(rows, func(a, b Failure) int {
		return cmp.Or(
			cmp.Compare(b.Count, a.Count),
			cmp.Compare(a.Task, b.Task),
			cmp.Compare(a.Message, b.Message),
		)
	})
	return rows
}

// snapshot creates a snapshot of task statistics.
func (s *TaskStats) snapshot(totalDuration time.Duration) *TaskSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := &TaskSnapshot{
		Name:            s.Name,
		TotalRequests:   s.TotalRequests,
		SuccessRequests: s.SuccessRequests,
		FailedRequests:  s.FailedRequests,
		MinLatency:      s.MinLatency,
		MaxLatency:      s.MaxLatency,
	}

	if s.TotalRequests > 0 {
		snapshot.AvgLatency = time.Duration(s.TotalLatencyNs / s.TotalRequests)
		snapshot.SuccessRate = float64(s.SuccessRequests) / float64(s.TotalRequests) * 100
	}

	if totalDuration > 0 {
		snapshot.RPS = float64(s.TotalRequests) / totalDuration.Seconds()
	}

	lat := s.latencies.summarize()
	snapshot.P50Latency = lat.P50
	snapshot.P95Latency = lat.P95
	snapshot.P99Latency = lat.P99

	return snapshot
}

// Duration returns the elapsed duration since start.
func (c *Collector) Duration() time.Duration {
	c.mu.RLock()
	startTime := c.startTime
	endTime := c.endTime
	c.mu.RUnlock()

	if startTime.IsZero() {
		return 0
	}
	if endTime.IsZero() {
		return time.Since(startTime)
	}
	return endTime.Sub(startTime)
}

package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollector(t *testing.T) {
	t.Run("default config", func(t *testing.T) {
		c := NewCollector(CollectorConfig{})
		require.NotNil(t, c)
		assert.Equal(t, 100000, c.latencies.limit)
	})

	t.Run("custom config", func(t *testing.T) {
		c := NewCollector(CollectorConfig{MaxLatencies: 500})
		assert.Equal(t, 500, c.latencies.limit)
	})
}

func TestCollector_Record(t *testing.T) {
	t.Run("success request", func(t *testing.T) {
		c := NewCollector(DefaultCollectorConfig())
		c.Start()

		c.Record(Result{
			Task:       "view_products",
			StatusCode: 200,
			Latency:    100 * time.Millisecond,
			Success:    true,
			Outcome:    "success",
		})

		snap := c.Snapshot()
		assert.Equal(t, int64(1), snap.TotalRequests)
		assert.Equal(t, int64(0), snap.FailedRequests)
		assert.Equal(t, 0.0, snap.FailureRate)
		assert.Empty(t, c.Failures())
	})

	t.Run("failed request lands in the failure table", func(t *testing.T) {
		c := NewCollector(DefaultCollectorConfig())
		c.Start()

		c.Record(Result{
			Task:       "create_order",
			StatusCode: 503,
			Latency:    5 * time.Millisecond,
			Outcome:    "service_unavailable",
			Failure:    "Service unavailable: HTTP 503",
		})

		snap := c.Snapshot()
		assert.Equal(t, int64(1), snap.FailedRequests)
		assert.Equal(t, 100.0, snap.FailureRate)
		assert.Equal(t, []Failure{
			{Task: "create_order", Message: "Service unavailable: HTTP 503", Count: 1},
		}, c.Failures())
	})

	t.Run("transport failure has no status code", func(t *testing.T) {
		c := NewCollector(DefaultCollectorConfig())
		c.Start()

		c.Record(Result{Task: "get_user", Failure: "Transport error: connection refused"})

		snap := c.Snapshot()
		assert.Empty(t, snap.StatusCodes)
		assert.Equal(t, int64(1), snap.FailedRequests)
	})
}

func TestCollector_Snapshot(t *testing.T) {
	c := NewCollector(DefaultCollectorConfig())
	c.Start()

	for i := 1; i <= 100; i++ {
		c.Record(Result{
			Task:       "view_products",
			StatusCode: 200,
			Latency:    time.Duration(i) * time.Millisecond,
			Success:    true,
		})
	}
	for range 4 {
		c.Record(Result{Task: "create_user", StatusCode: 502, Latency: time.Millisecond, Failure: "Service unavailable: HTTP 502"})
	}
	c.Record(Result{Task: "create_user", StatusCode: 409, Latency: time.Millisecond, Failure: "Unexpected status: HTTP 409"})
	c.Stop()

	snap := c.Snapshot()

	assert.Equal(t, int64(105), snap.TotalRequests)
	assert.Equal(t, int64(100), snap.SuccessRequests)
	assert.Equal(t, int64(5), snap.FailedRequests)
	assert.InDelta(t, 100.0*5/105, snap.FailureRate, 0.001)
	assert.InDelta(t, 100.0*100/105, snap.SuccessRate, 0.001)

	assert.Equal(t, time.Millisecond, snap.MinLatency)
	assert.Equal(t, 100*time.Millisecond, snap.MaxLatency)
	assert.Greater(t, snap.P95Latency, snap.P50Latency)

	assert.Equal(t, map[int]int64{200: 100, 502: 4, 409: 1}, snap.StatusCodes)

	require.Contains(t, snap.TaskStats, "view_products")
	vp := snap.TaskStats["view_products"]
	assert.Equal(t, int64(100), vp.TotalRequests)
	assert.Equal(t, 100.0, vp.SuccessRate)
	assert.Equal(t, 100*time.Millisecond, vp.MaxLatency)

	cu := snap.TaskStats["create_user"]
	require.NotNil(t, cu)
	assert.Equal(t, int64(5), cu.FailedRequests)

	assert.Equal(t, []Failure{
		{Task: "create_user", Message: "Service unavailable: HTTP 502", Count: 4},
		{Task: "create_user", Message: "Unexpected status: HTTP 409", Count: 1},
	}, snap.Failures)
	assert.False(t, snap.EndTime.IsZero())
}

func TestCollector_FailuresOrdering(t *testing.T) {
	c := NewCollector(DefaultCollectorConfig())

	c.Record(Result{Task: "view_orders", Failure: "b"})
	c.Record(Result{Task: "add_order_item", Failure: "b"})
	c.Record(Result{Task: "add_order_item", Failure: "a"})
	c.Record(Result{Task: "view_orders", Failure: "z"})
	c.Record(Result{Task: "view_orders", Failure: "z"})

	assert.Equal(t, []Failure{
		{Task: "view_orders", Message: "z", Count: 2},
		{Task: "add_order_item", Message: "a", Count: 1},
		{Task: "add_order_item", Message: "b", Count: 1},
		{Task: "view_orders", Message: "b", Count: 1},
	}, c.Failures())
}

func TestCollector_LatencyWindow(t *testing.T) {
	c := NewCollector(CollectorConfig{MaxLatencies: 10})

	for i := range 25 {
		c.Record(Result{Success: true, Latency: time.Duration(i) * time.Millisecond})
	}

	c.latencyMu.RLock()
	n := len(c.latencies.samples)
	c.latencyMu.RUnlock()
	assert.LessOrEqual(t, n, 10)

	// Percentiles follow the window, min and max cover the whole run.
	snap := c.Snapshot()
	assert.Greater(t, snap.P50Latency, 12*time.Millisecond)
	assert.Equal(t, time.Duration(0), snap.MinLatency)
	assert.Equal(t, 24*time.Millisecond, snap.MaxLatency)
}

func TestCollector_ExtremesOutliveWindow(t *testing.T) {
	c := NewCollector(CollectorConfig{MaxLatencies: 4})
	c.Record(Result{Success: true, Latency: 900 * time.Millisecond})
	c.Record(Result{Success: true, Latency: time.Millisecond})
	for range 20 {
		c.Record(Result{Success: true, Latency: 50 * time.Millisecond})
	}

	snap := c.Snapshot()
	assert.Equal(t, time.Millisecond, snap.MinLatency)
	assert.Equal(t, 900*time.Millisecond, snap.MaxLatency)
	assert.Equal(t, 50*time.Millisecond, snap.P99Latency)
}

func TestCollector_EmptySnapshotLatencies(t *testing.T) {
	snap := NewCollector(DefaultCollectorConfig()).Snapshot()
	assert.Zero(t, snap.MinLatency)
	assert.Zero(t, snap.MaxLatency)
}

func TestCollector_Duration(t *testing.T) {
	c := NewCollector(DefaultCollectorConfig())
	assert.Zero(t, c.Duration())
	assert.Zero(t, c.Snapshot().RPS)

	c.Start()
	time.Sleep(10 * time.Millisecond)
	c.Stop()

	d := c.Duration()
	assert.GreaterOrEqual(t, d, 10*time.Millisecond)
	assert.Equal(t, d, c.Duration(), "duration is frozen after Stop")

	c.Start()
	assert.Less(t, c.Duration(), d, "Start clears the end time")
}

func TestCollector_Concurrent(t *testing.T) {
	c := NewCollector(DefaultCollectorConfig())
	c.Start()

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Go(func() {
			for i := range 250 {
				c.Record(Result{
					Task:       "view_orders",
					StatusCode: 200,
					Latency:    time.Duration(i) * time.Microsecond,
					Success:    (w+i)%10 != 0,
					Failure:    "Unexpected status: HTTP 418",
				})
			}
		})
	}
	wg.Wait()

	snap := c.Snapshot()
	assert.Equal(t, int64(2000), snap.TotalRequests)
	assert.Equal(t, snap.TotalRequests, snap.SuccessRequests+snap.FailedRequests)
	assert.Equal(t, int64(2000), snap.TaskStats["view_orders"].TotalRequests)
}

func TestPercentileIndex(t *testing.T) {
	assert.Equal(t, 0, percentileIndex(1, 0.99))
	assert.Equal(t, 50, percentileIndex(100, 0.50))
	assert.Equal(t, 95, percentileIndex(100, 0.95))
	assert.Equal(t, 99, percentileIndex(100, 1.0))
}

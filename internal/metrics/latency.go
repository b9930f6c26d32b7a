package metrics

import (
	"slices"
	"time"
)

// latencyWindow keeps the most recent latency samples in nanoseconds.
// When full, the older half is discarded so percentiles follow recent
// behaviour. Callers provide locking.
type latencyWindow struct {
	samples []int64
	limit   int
}

func newLatencyWindow(limit int) latencyWindow {
	return latencyWindow{
		samples: make([]int64, 0, min(limit, 1024)),
		limit:   limit,
	}
}

func (w *latencyWindow) add(d time.Duration) {
	if len(w.samples) >= w.limit {
		w.samples = w.samples[len(w.samples)-w.limit/2:]
	}
	w.samples = append(w.samples, d.Nanoseconds())
}

// latencySummary holds order statistics over a window.
type latencySummary struct {
	Min, Avg, P50, P95, P99, Max time.Duration
}

// summarize returns the zero summary for an empty window.
func (w *latencyWindow) summarize() latencySummary {
	n := len(w.samples)
	if n == 0 {
		return latencySummary{}
	}

	sorted := slices.Clone(w.samples)
	slices.Sort(sorted)

	var sum int64
	for _, v := range sorted {
		sum += v
	}
	at := func(p float64) time.Duration {
		return time.Duration(sorted[percentileIndex(n, p)])
	}

	return latencySummary{
		Min: time.Duration(sorted[0]),
		Avg: time.Duration(sum / int64(n)),
		P50: at(0.50),
		P95: at(0.95),
		P99: at(0.99),
		Max: time.Duration(sorted[n-1]),
	}
}

// percentileIndex returns the index for a given percentile.
func percentileIndex(n int, percentile float64) int {
	idx := int(float64(n) * percentile)
	if idx >= n {
		idx = n - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}

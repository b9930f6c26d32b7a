package metrics

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Exit codes for threshold results.
const (
	// ExitCodeSuccess indicates all thresholds passed.
	ExitCodeSuccess = 0
	// ExitCodeThresholdFailure indicates one or more thresholds failed.
	ExitCodeThresholdFailure = 2
)

// ErrThresholdFailed is returned when one or more thresholds fail.
var ErrThresholdFailed = errors.New("threshold failed")

// Thresholds holds the pass/fail criteria for a run. Zero values disable a check.
// This mirrors config.ThresholdsConfig without the YAML tags.
type Thresholds struct {
	MaxFailureRate float64 // percentage, 0-100
	MaxP95Latency  time.Duration
}

// Enabled reports whether at least one check is configured.
func (t Thresholds) Enabled() bool {
	return t.MaxFailureRate > 0 || t.MaxP95Latency > 0
}

// ThresholdResult is the outcome of a single check.
type ThresholdResult struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// EvaluationResult holds every threshold result of a run.
type EvaluationResult struct {
	Results []ThresholdResult
	Passed  bool
}

// Failed returns only the failed results.
func (r *EvaluationResult) Failed() []ThresholdResult {
	var failed []ThresholdResult
	for _, result := range r.Results {
		if !result.Passed {
			failed = append(failed, result)
		}
	}
	return failed
}

// ExitCode maps the evaluation to a process exit code.
func (r *EvaluationResult) ExitCode() int {
	if r.Passed {
		return ExitCodeSuccess
	}
	return ExitCodeThresholdFailure
}

// Err returns ErrThresholdFailed naming the failed checks, or nil.
func (r *EvaluationResult) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	names := make([]string, len(failed))
	for i, f := range failed {
		names[i] = f.Name
	}
	return fmt.Errorf("%w: %s", ErrThresholdFailed, strings.Join(names, ", "))
}

// Summary returns a human-readable summary.
func (r *EvaluationResult) Summary() string {
	if len(r.Results) == 0 {
		return "No thresholds configured"
	}
	failed := len(r.Failed())
	s := fmt.Sprintf("Thresholds: %d/%d passed", len(r.Results)-failed, len(r.Results))
	if failed > 0 {
		s += fmt.Sprintf(" (%d FAILED)", failed)
	}
	return s
}

// Evaluate checks a snapshot against the thresholds.
func (t Thresholds) Evaluate(snapshot Snapshot) *EvaluationResult {
	result := &EvaluationResult{Passed: true}

	if t.MaxFailureRate > 0 {
		result.add(ThresholdResult{
			Name:     "maxFailureRate",
			Passed:   snapshot.FailureRate <= t.MaxFailureRate,
			Expected: fmt.Sprintf("<= %.2f%%", t.MaxFailureRate),
			Actual:   fmt.Sprintf("%.2f%%", snapshot.FailureRate),
		})
	}

	if t.MaxP95Latency > 0 {
		result.add(ThresholdResult{
			Name:     "maxP95Latency",
			Passed:   snapshot.P95Latency <= t.MaxP95Latency,
			Expected: "<= " + formatLatency(t.MaxP95Latency),
			Actual:   formatLatency(snapshot.P95Latency),
		})
	}

	return result
}

func (r *EvaluationResult) add(tr ThresholdResult) {
	r.Results = append(r.Results, tr)
	if !tr.Passed {
		r.Passed = false
	}
}

package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// JSONReport is a complete load test report in JSON format.
type JSONReport struct {
	Metadata      ReportMetadata      `json:"metadata"`
	Configuration ReportConfiguration `json:"configuration"`
	Summary       ReportSummary       `json:"summary"`

	// Per-task statistics, sorted by name
	Tasks []TaskReport `json:"tasks"`

	// Status code distribution
	StatusCodes map[string]int64 `json:"statusCodes"`

	// Failures grouped by task and message
	Failures []Failure `json:"failures"`

	// Thresholds evaluated at the end of the run
	Thresholds *ThresholdReport `json:"thresholds,omitempty"`
}

// ReportMetadata contains metadata about the report.
type ReportMetadata struct {
	Version     string    `json:"version"`
	GeneratedAt time.Time `json:"generatedAt"`
	Generator   string    `json:"generator"`
}

// ReportConfiguration captures the test configuration.
type ReportConfiguration struct {
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	TargetBaseURL string         `json:"targetBaseURL"`
	Duration      Duration       `json:"duration"`
	Users         int            `json:"users"`
	SpawnRate     float64        `json:"spawnRate"`
	Policy        string         `json:"policy"`
	TaskWeights   map[string]int `json:"taskWeights"`
}

// Duration wraps time.Duration for JSON serialization.
type Duration struct {
	time.Duration
}

// MarshalJSON implements json.Marshaler for Duration.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"seconds": d.Seconds(),
		"display": formatDuration(d.Duration),
	})
}

// UnmarshalJSON implements json.Unmarshaler for Duration.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if seconds, ok := obj["seconds"].(float64); ok {
		d.Duration = time.Duration(seconds * float64(time.Second))
	}
	return nil
}

// ReportSummary contains overall test statistics.
type ReportSummary struct {
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Duration  Duration  `json:"duration"`

	TotalRequests   int64 `json:"totalRequests"`
	SuccessRequests int64 `json:"successRequests"`
	FailedRequests  int64 `json:"failedRequests"`

	SuccessRate float64 `json:"successRate"`
	FailureRate float64 `json:"failureRate"`
	RPS         float64 `json:"rps"`

	// Latency statistics (in milliseconds for readability)
	Latency LatencyStats `json:"latency"`
}

// LatencyStats contains latency statistics in milliseconds.
type LatencyStats struct {
	MinMs float64 `json:"minMs"`
	AvgMs float64 `json:"avgMs"`
	P50Ms float64 `json:"p50Ms"`
	P95Ms float64 `json:"p95Ms"`
	P99Ms float64 `json:"p99Ms"`
	MaxMs float64 `json:"maxMs"`
}

// TaskReport contains statistics for a single task.
type TaskReport struct {
	Name            string       `json:"name"`
	TotalRequests   int64        `json:"totalRequests"`
	SuccessRequests int64        `json:"successRequests"`
	FailedRequests  int64        `json:"failedRequests"`
	SuccessRate     float64      `json:"successRate"`
	RPS             float64      `json:"rps"`
	Latency         LatencyStats `json:"latency"`
}

// ThresholdReport is the serialized threshold evaluation.
type ThresholdReport struct {
	Passed  bool              `json:"passed"`
	Results []ThresholdResult `json:"results"`
}

// Reporter generates JSON reports from test metrics.
type Reporter struct {
	version string
}

// NewReporter creates a new Reporter.
func NewReporter() *Reporter {
	return &Reporter{version: "1.0.0"}
}

// ReportOptions configures report generation.
type ReportOptions struct {
	ConfigName        string
	ConfigDescription string
	TargetBaseURL     string
	TestDuration      time.Duration
	Users             int
	SpawnRate         float64
	Policy            string
	TaskWeights       map[string]int

	// Thresholds is the threshold evaluation, if any checks were configured.
	Thresholds *EvaluationResult
}

// GenerateReport creates a JSON report from a metrics snapshot.
func (r *Reporter) GenerateReport(snapshot Snapshot, opts ReportOptions) *JSONReport {
	statusCodes := make(map[string]int64, len(snapshot.StatusCodes))
	for code, count := range snapshot.StatusCodes {
		statusCodes[strconv.Itoa(code)] = count
	}

	failures := snapshot.Failures
	if failures == nil {
		failures = []Failure{}
	}

	report := &JSONReport{
		Metadata: ReportMetadata{
			Version:     r.version,
			GeneratedAt: time.Now().UTC(),
			Generator:   "loadgen",
		},
		Configuration: ReportConfiguration{
			Name:          opts.ConfigName,
			Description:   opts.ConfigDescription,
			TargetBaseURL: opts.TargetBaseURL,
			Duration:      Duration{opts.TestDuration},
			Users:         opts.Users,
			SpawnRate:     opts.SpawnRate,
			Policy:        opts.Policy,
			TaskWeights:   opts.TaskWeights,
		},
		Summary:     r.buildSummary(snapshot),
		Tasks:       r.buildTaskReports(snapshot),
		StatusCodes: statusCodes,
		Failures:    failures,
	}

	if opts.Thresholds != nil && len(opts.Thresholds.Results) > 0 {
		report.Thresholds = &ThresholdReport{
			Passed:  opts.Thresholds.Passed,
			Results: opts.Thresholds.Results,
		}
	}

	return report
}

func (r *Reporter) buildSummary(snapshot Snapshot) ReportSummary {
	return ReportSummary{
		StartTime:       snapshot.StartTime,
		EndTime:         snapshot.EndTime,
		Duration:        Duration{snapshot.Duration},
		TotalRequests:   snapshot.TotalRequests,
		SuccessRequests: snapshot.SuccessRequests,
		FailedRequests:  snapshot.FailedRequests,
		SuccessRate:     snapshot.SuccessRate,
		FailureRate:     snapshot.FailureRate,
		RPS:             snapshot.RPS,
		Latency: latencyStats(snapshot.MinLatency, snapshot.AvgLatency, snapshot.P50Latency,
			snapshot.P95Latency, snapshot.P99Latency, snapshot.MaxLatency),
	}
}

func latencyStats(min, avg, p50, p95, p99, max time.Duration) LatencyStats {
	return LatencyStats{
		MinMs: ms(min),
		AvgMs: ms(avg),
		P50Ms: ms(p50),
		P95Ms: ms(p95),
		P99Ms: ms(p99),
		MaxMs: ms(max),
	}
}

func ms(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e6
}

// buildTaskReports creates task reports sorted by name.
func (r *Reporter) buildTaskReports(snapshot Snapshot) []TaskReport {
	names := make([]string, 0, len(snapshot.TaskStats))
	for name := range snapshot.TaskStats {
		names = append(names, name)
	}
	slices.Sort(names)

	reports := make([]TaskReport, 0, len(names))
	for _, name := range names {
		stats := snapshot.TaskStats[name]
		reports = append(reports, TaskReport{
			Name:            name,
			TotalRequests:   stats.TotalRequests,
			SuccessRequests: stats.SuccessRequests,
			FailedRequests:  stats.FailedRequests,
			SuccessRate:     stats.SuccessRate,
			RPS:             stats.RPS,
			Latency: latencyStats(stats.MinLatency, stats.AvgLatency, stats.P50Latency,
				stats.P95Latency, stats.P99Latency, stats.MaxLatency),
		})
	}
	return reports
}

// ToJSON serializes a report to JSON bytes.
func (r *Reporter) ToJSON(report *JSONReport) ([]byte, error) {
	return json.MarshalIndent(report, "", "  ")
}

// WriteToFile writes a report to a file and returns the expanded path.
// The path supports template variables:
// - {{.Timestamp}} - Current timestamp in format YYYYMMDD-HHMMSS
// - {{.Date}} - Current date in format YYYY-MM-DD
// - {{.Time}} - Current time in format HHMMSS
func (r *Reporter) WriteToFile(report *JSONReport, path string) (string, error) {
	expandedPath := filepath.Clean(expandPathTemplate(path, time.Now()))

	if err := os.MkdirAll(filepath.Dir(expandedPath), 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	data, err := r.ToJSON(report)
	if err != nil {
		return "", fmt.Errorf("marshaling report to JSON: %w", err)
	}

	if err := os.WriteFile(expandedPath, data, 0o644); err != nil {
		return "", fmt.Errorf("writing report file: %w", err)
	}
	return expandedPath, nil
}

// expandPathTemplate expands template variables in a path.
func expandPathTemplate(path string, now time.Time) string {
	return strings.NewReplacer(
		"{{.Timestamp}}", now.Format("20060102-150405"),
		"{{.Date}}", now.Format("2006-01-02"),
		"{{.Time}}", now.Format("150405"),
	).Replace(path)
}

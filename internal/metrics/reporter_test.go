package metrics

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestSnapshot() Snapshot {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return Snapshot{
		StartTime:       start,
		EndTime:         start.Add(time.Minute),
		Duration:        time.Minute,
		TotalRequests:   120,
		SuccessRequests: 114,
		FailedRequests:  6,
		MinLatency:      2 * time.Millisecond,
		AvgLatency:      15 * time.Millisecond,
		P50Latency:      12 * time.Millisecond,
		P95Latency:      40 * time.Millisecond,
		P99Latency:      80 * time.Millisecond,
		MaxLatency:      120 * time.Millisecond,
		SuccessRate:     95,
		FailureRate:     5,
		RPS:             2,
		StatusCodes:     map[int]int64{200: 110, 404: 4, 503: 6},
		TaskStats: map[string]*TaskSnapshot{
			"view_products": {Name: "view_products", TotalRequests: 80, SuccessRequests: 80, SuccessRate: 100, P95Latency: 30 * time.Millisecond},
			"create_order":  {Name: "create_order", TotalRequests: 40, SuccessRequests: 34, FailedRequests: 6, SuccessRate: 85},
		},
		Failures: []Failure{
			{Task: "create_order", Message: "Service unavailable: HTTP 503", Count: 6},
		},
	}
}

func TestReporter_GenerateReport(t *testing.T) {
	r := NewReporter()
	snapshot := createTestSnapshot()

	eval := Thresholds{MaxFailureRate: 1}.Evaluate(snapshot)
	report := r.GenerateReport(snapshot, ReportOptions{
		ConfigName:    "ecommerce-gateway",
		TargetBaseURL: "http://localhost:8080",
		TestDuration:  time.Minute,
		Users:         10,
		SpawnRate:     2,
		Policy:        "gateway",
		TaskWeights:   map[string]int{"view_products": 3, "create_order": 2},
		Thresholds:    eval,
	})

	assert.Equal(t, "loadgen", report.Metadata.Generator)
	assert.Equal(t, "ecommerce-gateway", report.Configuration.Name)
	assert.Equal(t, 10, report.Configuration.Users)
	assert.Equal(t, "gateway", report.Configuration.Policy)
	assert.Equal(t, int64(120), report.Summary.TotalRequests)
	assert.Equal(t, 40.0, report.Summary.Latency.P95Ms)

	require.Len(t, report.Tasks, 2)
	assert.Equal(t, "create_order", report.Tasks[0].Name)
	assert.Equal(t, "view_products", report.Tasks[1].Name)
	assert.Equal(t, 30.0, report.Tasks[1].Latency.P95Ms)

	assert.Equal(t, map[string]int64{"200": 110, "404": 4, "503": 6}, report.StatusCodes)
	assert.Equal(t, snapshot.Failures, report.Failures)

	require.NotNil(t, report.Thresholds)
	assert.False(t, report.Thresholds.Passed)
}

func TestReporter_GenerateReport_Empty(t *testing.T) {
	report := NewReporter().GenerateReport(Snapshot{}, ReportOptions{})

	assert.NotNil(t, report.Failures)
	assert.Empty(t, report.Tasks)
	assert.Nil(t, report.Thresholds)

	data, err := NewReporter().ToJSON(report)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"failures": []`)
}

func TestReporter_ToJSON(t *testing.T) {
	r := NewReporter()
	report := r.GenerateReport(createTestSnapshot(), ReportOptions{TestDuration: 90 * time.Second})

	data, err := r.ToJSON(report)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	cfg := decoded["configuration"].(map[string]any)
	duration := cfg["duration"].(map[string]any)
	assert.Equal(t, 90.0, duration["seconds"])
	assert.Equal(t, "1m30s", duration["display"])

	var roundTrip JSONReport
	require.NoError(t, json.Unmarshal(data, &roundTrip))
	assert.Equal(t, 90*time.Second, roundTrip.Configuration.Duration.Duration)
}

func TestReporter_WriteToFile(t *testing.T) {
	r := NewReporter()
	report := r.GenerateReport(createTestSnapshot(), ReportOptions{ConfigName: "x"})

	dir := t.TempDir()
	path, err := r.WriteToFile(report, filepath.Join(dir, "nested", "report-{{.Date}}.json"))
	require.NoError(t, err)
	assert.NotContains(t, path, "{{")

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded JSONReport
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "x", decoded.Configuration.Name)
}

func TestExpandPathTemplate(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 8, 7, 0, time.UTC)

	tests := []struct {
		path     string
		expected string
	}{
		{"report.json", "report.json"},
		{"loadgen-report-{{.Timestamp}}.json", "loadgen-report-20260301-090807.json"},
		{"{{.Date}}/{{.Time}}.json", "2026-03-01/090807.json"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, expandPathTemplate(tt.path, now))
		})
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "30.0s", formatDuration(30*time.Second))
	assert.Equal(t, "5m0s", formatDuration(5*time.Minute))
	assert.Equal(t, "2h15m", formatDuration(2*time.Hour+15*time.Minute))
}

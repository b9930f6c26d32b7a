package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ecommerce/tools/loadgen/internal/config"
	"github.com/example/ecommerce/tools/loadgen/internal/metrics"
	"github.com/example/ecommerce/tools/loadgen/internal/mockgw"
	"github.com/example/ecommerce/tools/loadgen/internal/scenario"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func startGateway(t *testing.T, cfg mockgw.Config) (*mockgw.Server, string) {
	t.Helper()
	gw, err := mockgw.New(cfg, nil)
	require.NoError(t, err)
	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(srv.Close)
	return gw, srv.URL
}

func testConfig(baseURL string) *config.Config {
	cfg := config.Default()
	cfg.Target.BaseURL = baseURL
	cfg.Duration = 500 * time.Millisecond
	cfg.Users = 4
	cfg.SpawnRate = 100
	cfg.ThinkTime = config.ThinkTimeConfig{Min: 5 * time.Millisecond, Max: 10 * time.Millisecond, Distribution: config.DistributionUniform}
	cfg.Output.ReportInterval = time.Hour
	return cfg
}

func newTestRunner(t *testing.T, cfg *config.Config) (*Runner, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	r, err := New(cfg, WithOutput(&out), WithoutSignals())
	require.NoError(t, err)
	return r, &out
}

func TestNew(t *testing.T) {
	r, _ := newTestRunner(t, testConfig("http://localhost:8080"))

	assert.Equal(t, scenario.PolicyGateway, r.policy)
	assert.Equal(t, scenario.DefaultWeights(), r.weights)
	assert.Nil(t, r.Exporter())
	assert.NotNil(t, r.Collector())
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{name: "no base URL", mutate: func(c *config.Config) { c.Target.BaseURL = "" }},
		{name: "bad policy", mutate: func(c *config.Config) { c.Classifier.Policy = "lenient" }},
		{name: "unknown task", mutate: func(c *config.Config) { c.Tasks = map[string]config.TaskConfig{"checkout": {Weight: 1}} }},
		{name: "every task disabled", mutate: func(c *config.Config) {
			c.Tasks = map[string]config.TaskConfig{}
			for name := range scenario.DefaultWeights() {
				c.Tasks[name] = config.TaskConfig{Disabled: true}
			}
		}},
		{name: "relative URL", mutate: func(c *config.Config) { c.Target.BaseURL = "localhost" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig("http://localhost:8080")
			tt.mutate(cfg)
			_, err := New(cfg, WithOutput(&bytes.Buffer{}))
			assert.Error(t, err)
		})
	}
}

func TestRunner_Plan(t *testing.T) {
	cfg := testConfig("http://localhost:8080")
	cfg.Tasks = map[string]config.TaskConfig{
		scenario.TaskViewOrders:     {Disabled: true},
		scenario.TaskViewOrderItems: {Disabled: true},
		scenario.TaskViewProducts:   {Weight: 6},
	}
	r, _ := newTestRunner(t, cfg)

	plan := r.Plan()
	require.Len(t, plan, 5)

	total := 0.0
	for _, p := range plan {
		total += p.Probability
		if p.Name == scenario.TaskViewProducts {
			assert.Equal(t, 6, p.Weight)
			assert.InDelta(t, 0.5, p.Probability, 1e-9)
		}
	}
	assert.InDelta(t, 1.0, total, 1e-9)
}

func TestRunner_Run(t *testing.T) {
	gw, baseURL := startGateway(t, mockgw.Config{})
	r, out := newTestRunner(t, testConfig(baseURL))

	result, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(4), result.UsersSpawned)
	assert.Equal(t, int64(4), result.Spawn.TotalAcquired)
	assert.InDelta(t, 100.0, result.Spawn.CurrentRate, 1e-9)
	assert.Contains(t, out.String(), "Users spawned: 4 of 4 at 100.0/s")
	assert.Contains(t, out.String(), "ramp-up 30ms")
	assert.False(t, result.Interrupted)
	assert.Nil(t, result.Thresholds)
	assert.Equal(t, metrics.ExitCodeSuccess, result.ExitCode())
	assert.Zero(t, r.ActiveUsers())

	snap := result.Snapshot
	assert.Positive(t, snap.TotalRequests)
	assert.Zero(t, snap.FailedRequests, "a healthy gateway only answers 200 and 404")
	assert.Empty(t, snap.Failures)

	// Requests cancelled at shutdown may reach the gateway without being recorded.
	users, _, _ := gw.Store().Counts()
	if cu := snap.TaskStats[scenario.TaskCreateUser]; cu != nil {
		assert.GreaterOrEqual(t, int64(users), cu.TotalRequests)
	}

	assert.Contains(t, out.String(), "LOAD TEST FINAL REPORT")
}

func TestRunner_RunRecordsFailures(t *testing.T) {
	_, baseURL := startGateway(t, mockgw.Config{Faults: mockgw.Faults{UnavailableRate: 1}})

	cfg := testConfig(baseURL)
	cfg.Thresholds.MaxFailureRate = 10
	r, out := newTestRunner(t, cfg)

	result, err := r.Run(context.Background())
	require.NoError(t, err)

	snap := result.Snapshot
	require.Positive(t, snap.TotalRequests)
	assert.Equal(t, snap.TotalRequests, snap.FailedRequests)
	assert.Equal(t, map[int]int64{503: snap.TotalRequests}, snap.StatusCodes)
	for _, f := range snap.Failures {
		assert.Equal(t, "Service unavailable: HTTP 503", f.Message)
	}

	require.NotNil(t, result.Thresholds)
	assert.False(t, result.Thresholds.Passed)
	assert.Equal(t, metrics.ExitCodeThresholdFailure, result.ExitCode())
	assert.Contains(t, out.String(), "Service unavailable: HTTP 503")
}

func TestRunner_RunDownServiceIsBadGateway(t *testing.T) {
	_, baseURL := startGateway(t, mockgw.Config{Down: []string{mockgw.ServiceProduct}})

	cfg := testConfig(baseURL)
	cfg.Tasks = map[string]config.TaskConfig{}
	for name := range scenario.DefaultWeights() {
		if name != scenario.TaskViewProducts {
			cfg.Tasks[name] = config.TaskConfig{Disabled: true}
		}
	}
	r, _ := newTestRunner(t, cfg)

	result, err := r.Run(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, result.Snapshot.Failures)
	assert.Equal(t, metrics.Failure{
		Task:    scenario.TaskViewProducts,
		Message: "Service unavailable: HTTP 502",
		Count:   result.Snapshot.TotalRequests,
	}, result.Snapshot.Failures[0])
}

func TestRunner_RunWritesJSONReport(t *testing.T) {
	_, baseURL := startGateway(t, mockgw.Config{})

	cfg := testConfig(baseURL)
	cfg.Output.JSON.Enabled = true
	cfg.Output.JSON.File = filepath.Join(t.TempDir(), "report-{{.Timestamp}}.json")
	cfg.Payload.UniqueIdentity = true
	r, _ := newTestRunner(t, cfg)

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, result.ReportPath)

	data, err := os.ReadFile(result.ReportPath)
	require.NoError(t, err)

	var report metrics.JSONReport
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, cfg.Name, report.Configuration.Name)
	assert.Equal(t, 4, report.Configuration.Users)
	assert.Equal(t, "gateway", report.Configuration.Policy)
	assert.Equal(t, result.Snapshot.TotalRequests, report.Summary.TotalRequests)
}

func TestRunner_RunWithPrometheus(t *testing.T) {
	_, baseURL := startGateway(t, mockgw.Config{})

	cfg := testConfig(baseURL)
	cfg.Output.Prometheus.Enabled = true
	cfg.Output.Prometheus.Port = 0
	r, _ := newTestRunner(t, cfg)
	require.NotNil(t, r.Exporter())

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, r.Exporter().IsRunning())

	families, err := r.Exporter().Gather()
	require.NoError(t, err)

	var total float64
	for _, mf := range families {
		if mf.GetName() == metrics.MetricRequestsTotal {
			for _, m := range mf.GetMetric() {
				total += m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, float64(result.Snapshot.TotalRequests), total)
}

func TestRunner_RunCancelled(t *testing.T) {
	_, baseURL := startGateway(t, mockgw.Config{})
	cfg := testConfig(baseURL)
	cfg.Duration = time.Minute
	r, _ := newTestRunner(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestRunner_RunTwice(t *testing.T) {
	_, baseURL := startGateway(t, mockgw.Config{Faults: mockgw.Faults{Latency: 50 * time.Millisecond}})
	r, _ := newTestRunner(t, testConfig(baseURL))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = r.Run(context.Background())
	}()

	assert.Eventually(t, func() bool { return r.running.Load() }, time.Second, time.Millisecond)
	_, err := r.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	<-done
}

func TestSleep(t *testing.T) {
	assert.True(t, sleep(context.Background(), time.Millisecond))
	assert.True(t, sleep(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleep(ctx, time.Hour))
	assert.False(t, sleep(ctx, 0))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdef...", truncate("abcdefghijkl", 9))

	// Multi-byte names are cut on rune boundaries.
	name := "tienda-niño-señal-añejo"
	got := truncate(name, 10)
	assert.Equal(t, "tienda-...", got)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "señal-a...", truncate("señal-añejo-niño", 10))
	assert.Equal(t, "ñññ", truncate("ñññ", 3))
}

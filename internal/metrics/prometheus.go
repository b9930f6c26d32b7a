package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Prometheus metric names.
const (
	MetricRequestsTotal          = "loadgen_requests_total"
	MetricRequestDurationSeconds = "loadgen_request_duration_seconds"
	MetricActiveUsers            = "loadgen_active_users"
	MetricFailureRate            = "loadgen_failure_rate"
	MetricCurrentRPS             = "loadgen_current_rps"
	MetricUsersSpawnedTotal      = "loadgen_users_spawned_total"
)

// PrometheusExporter exports metrics to Prometheus via an HTTP endpoint.
//
// Thread Safety: Safe for concurrent use by multiple goroutines.
type PrometheusExporter struct {
	mu sync.RWMutex

	config   PrometheusExporterConfig
	registry *prometheus.Registry

	requestsTotal          *prometheus.CounterVec
	requestDurationSeconds *prometheus.HistogramVec
	activeUsers            prometheus.Gauge
	failureRate            prometheus.Gauge
	currentRPS             prometheus.Gauge
	usersSpawnedTotal      prometheus.Counter

	server *http.Server
	ln     net.Listener

	running   bool
	lastError error
}

// PrometheusExporterConfig holds configuration for the Prometheus exporter.
type PrometheusExporterConfig struct {
	// Port is the HTTP port for the metrics endpoint. Zero picks a free port.
	Port int

	// Path is the URL path for the metrics endpoint.
	// Default: /metrics
	Path string

	// Namespace is the prefix for all metrics.
	// Default: "loadgen"
	Namespace string

	// HistogramBuckets are the histogram buckets for request duration.
	// Default: prometheus.DefBuckets
	HistogramBuckets []float64
}

// DefaultPrometheusExporterConfig returns default configuration.
func DefaultPrometheusExporterConfig() PrometheusExporterConfig {
	return PrometheusExporterConfig{
		Port:             9090,
		Path:             "/metrics",
		Namespace:        "loadgen",
		HistogramBuckets: prometheus.DefBuckets,
	}
}

// NewPrometheusExporter creates a new Prometheus exporter.
func NewPrometheusExporter(config PrometheusExporterConfig) *PrometheusExporter {
	if config.Path == "" {
		config.Path = "/metrics"
	}
	if config.Namespace == "" {
		config.Namespace = "loadgen"
	}
	if len(config.HistogramBuckets) == 0 {
		config.HistogramBuckets = prometheus.DefBuckets
	}

	// A private registry keeps the default Go collectors out of the output.
	exporter := &PrometheusExporter{
		config:   config,
		registry: prometheus.NewRegistry(),
	}
	exporter.initMetrics()
	return exporter
}

func (e *PrometheusExporter) initMetrics() {
	ns := e.config.Namespace

	e.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "requests_total",
			Help:      "Total number of requests issued, by task, outcome and status code.",
		},
		[]string{"task", "outcome", "status"},
	)

	e.requestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "request_duration_seconds",
			Help:      "Duration of requests in seconds.",
			Buckets:   e.config.HistogramBuckets,
		},
		[]string{"task"},
	)

	e.activeUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "active_users",
		Help:      "Number of running virtual users.",
	})

	e.failureRate = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "failure_rate",
		Help:      "Current request failure rate (0.0-100.0).",
	})

	e.currentRPS = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "current_rps",
		Help:      "Average requests per second since start.",
	})

	e.usersSpawnedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "users_spawned_total",
		Help:      "Total number of virtual users started.",
	})

	e.registry.MustRegister(
		e.requestsTotal,
		e.requestDurationSeconds,
		e.activeUsers,
		e.failureRate,
		e.currentRPS,
		e.usersSpawnedTotal,
	)
}

// Handler returns the HTTP handler serving the metrics and /health.
func (e *PrometheusExporter) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(e.config.Path, promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

// Start starts the HTTP server for the metrics endpoint.
func (e *PrometheusExporter) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return nil
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", e.config.Port))
	if err != nil {
		return fmt.Errorf("starting Prometheus exporter: %w", err)
	}
	e.ln = ln

	e.server = &http.Server{
		Handler:           e.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := e.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.mu.Lock()
			e.lastError = err
			e.mu.Unlock()
		}
	}()

	e.running = true
	return nil
}

// Stop stops the HTTP server.
func (e *PrometheusExporter) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return nil
	}
	e.running = false

	if e.server != nil {
		return e.server.Shutdown(ctx)
	}
	return nil
}

// RecordRequest records a single request result.
func (e *PrometheusExporter) RecordRequest(result Result) {
	status := "none"
	if result.StatusCode > 0 {
		status = strconv.Itoa(result.StatusCode)
	}
	outcome := result.Outcome
	if outcome == "" {
		outcome = "success"
		if !result.Success {
			outcome = "failure"
		}
	}
	e.requestsTotal.WithLabelValues(result.Task, outcome, status).Inc()
	e.requestDurationSeconds.WithLabelValues(result.Task).Observe(result.Latency.Seconds())
}

// SetActiveUsers updates the active users gauge.
func (e *PrometheusExporter) SetActiveUsers(n int) {
	e.activeUsers.Set(float64(n))
}

// UserSpawned counts a started user.
func (e *PrometheusExporter) UserSpawned() {
	e.usersSpawnedTotal.Inc()
}

// UpdateFromSnapshot updates the derived gauges from a collector snapshot.
func (e *PrometheusExporter) UpdateFromSnapshot(snapshot Snapshot) {
	e.failureRate.Set(snapshot.FailureRate)
	e.currentRPS.Set(snapshot.RPS)
}

// Address returns the metrics endpoint URL.
func (e *PrometheusExporter) Address() string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	port := e.config.Port
	if e.ln != nil {
		if tcp, ok := e.ln.Addr().(*net.TCPAddr); ok {
			port = tcp.Port
		}
	}
	return fmt.Sprintf("http://localhost:%d%s", port, e.config.Path)
}

// IsRunning returns whether the exporter is running.
func (e *PrometheusExporter) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// LastError returns the last error from the HTTP server, if any.
func (e *PrometheusExporter) LastError() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastError
}

// Gather collects all metrics from the registry.
func (e *PrometheusExporter) Gather() ([]*dto.MetricFamily, error) {
	return e.registry.Gather()
}

// Package config provides configuration structures for the load generator.
// The main Config struct ties together all loadgen components.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"strings"
	"time"

	"github.com/example/ecommerce/tools/loadgen/internal/logger"
	"gopkg.in/yaml.v3"
)

// Errors returned by the config package.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("config: invalid configuration")
	// ErrConfigNotFound is returned when the config file is not found.
	ErrConfigNotFound = errors.New("config: configuration file not found")
)

// Classifier policies.
const (
	PolicyGateway = "gateway"
	PolicyStrict  = "strict"
)

// Think time distributions.
const (
	DistributionUniform     = "uniform"
	DistributionExponential = "exponential"
	DistributionNormal      = "normal"
)

// DefaultJSONReportFile is used when JSON output is enabled without a file.
const DefaultJSONReportFile = "loadgen-report-{{.Timestamp}}.json"

// Config is the root configuration structure for the load generator.
type Config struct {
	// Name is a descriptive name for this configuration.
	Name string `yaml:"name" json:"name"`

	// Description provides additional context about the configuration.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Version is the configuration schema version.
	Version string `yaml:"version" json:"version"`

	// Target is the API gateway under test.
	Target TargetConfig `yaml:"target" json:"target"`

	// Duration is the total duration of the load test.
	// Default: 5m
	Duration time.Duration `yaml:"duration" json:"duration"`

	// Users is the number of concurrent virtual users.
	// Default: 10
	Users int `yaml:"users" json:"users"`

	// SpawnRate is how many users are started per second.
	// Default: 1
	SpawnRate float64 `yaml:"spawnRate" json:"spawnRate"`

	// ThinkTime is the wait between two operations of one user.
	ThinkTime ThinkTimeConfig `yaml:"thinkTime,omitempty" json:"thinkTime,omitempty"`

	// Classifier selects the status code policy.
	Classifier ClassifierConfig `yaml:"classifier,omitempty" json:"classifier,omitempty"`

	// Tasks overrides per-operation weights, keyed by operation name.
	Tasks map[string]TaskConfig `yaml:"tasks,omitempty" json:"tasks,omitempty"`

	// Payload tunes the request bodies.
	Payload PayloadConfig `yaml:"payload,omitempty" json:"payload,omitempty"`

	// Output configures output and reporting.
	Output OutputConfig `yaml:"output,omitempty" json:"output,omitempty"`

	// Log configures the structured logger.
	Log logger.Config `yaml:"log,omitempty" json:"log,omitempty"`

	// Thresholds turn the run into a pass/fail check.
	Thresholds ThresholdsConfig `yaml:"thresholds,omitempty" json:"thresholds,omitempty"`
}

// TargetConfig holds target system configuration.
type TargetConfig struct {
	// BaseURL is the gateway base URL (e.g., "http://localhost:8080").
	BaseURL string `yaml:"baseURL" json:"baseURL"`

	// Timeout is the transport timeout for a single request.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// TLSSkipVerify skips TLS certificate verification (for testing only).
	TLSSkipVerify bool `yaml:"tlsSkipVerify,omitempty" json:"tlsSkipVerify,omitempty"`

	// Headers are additional headers to include in all requests.
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
}

// ThinkTimeConfig configures the pause between operations.
type ThinkTimeConfig struct {
	// Min is the minimum think time.
	// Default: 1s
	Min time.Duration `yaml:"min,omitempty" json:"min,omitempty"`

	// Max is the maximum think time.
	// Default: 3s
	Max time.Duration `yaml:"max,omitempty" json:"max,omitempty"`

	// Distribution is "uniform", "exponential" or "normal".
	// Default: "uniform"
	Distribution string `yaml:"distribution,omitempty" json:"distribution,omitempty"`
}

// ClassifierConfig configures response classification.
type ClassifierConfig struct {
	// Policy is "gateway" (404 and 500 count as reachable) or "strict".
	// Default: "gateway"
	Policy string `yaml:"policy,omitempty" json:"policy,omitempty"`
}

// TaskConfig overrides one operation.
type TaskConfig struct {
	// Weight replaces the built-in weight when positive.
	Weight int `yaml:"weight,omitempty" json:"weight,omitempty"`

	// Disabled removes the operation from selection.
	Disabled bool `yaml:"disabled,omitempty" json:"disabled,omitempty"`
}

// PayloadConfig tunes request bodies.
type PayloadConfig struct {
	// UniqueIdentity gives every session its own name, email, phone and username.
	// Identifiers in the payloads stay fixed.
	UniqueIdentity bool `yaml:"uniqueIdentity,omitempty" json:"uniqueIdentity,omitempty"`
}

// OutputConfig configures output and reporting.
type OutputConfig struct {
	// ReportInterval is how often to print progress reports.
	// Default: 10s
	ReportInterval time.Duration `yaml:"reportInterval,omitempty" json:"reportInterval,omitempty"`

	// Verbose enables verbose output.
	Verbose bool `yaml:"verbose,omitempty" json:"verbose,omitempty"`

	// JSON configures the JSON file report.
	JSON JSONOutputConfig `yaml:"json,omitempty" json:"json,omitempty"`

	// Prometheus configures the metrics endpoint.
	Prometheus PrometheusConfig `yaml:"prometheus,omitempty" json:"prometheus,omitempty"`
}

// JSONOutputConfig configures the JSON report.
type JSONOutputConfig struct {
	Enabled bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	// File is the report path. Supports the {{.Timestamp}} placeholder.
	File string `yaml:"file,omitempty" json:"file,omitempty"`
}

// PrometheusConfig configures the Prometheus exporter.
type PrometheusConfig struct {
	Enabled bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	// Port to listen on.
	// Default: 9090
	Port int `yaml:"port,omitempty" json:"port,omitempty"`

	// Path of the metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
}

// ThresholdsConfig defines pass/fail criteria. Zero values disable a check.
type ThresholdsConfig struct {
	// MaxFailureRate is the highest acceptable failure percentage (0-100).
	MaxFailureRate float64 `yaml:"maxFailureRate,omitempty" json:"maxFailureRate,omitempty"`

	// MaxP95Latency is the highest acceptable 95th percentile latency.
	MaxP95Latency time.Duration `yaml:"maxP95Latency,omitempty" json:"maxP95Latency,omitempty"`
}

// Default returns a configuration for a local gateway with all defaults applied.
func Default() *Config {
	cfg := &Config{
		Name:   "ecommerce-gateway",
		Target: TargetConfig{BaseURL: "http://localhost:8080"},
	}
	cfg.ApplyDefaults()
	return cfg
}

// LoadFromFile loads, defaults and validates configuration from a YAML file.
func LoadFromFile(path string) (*Config, error) {
	cfg, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return finish(cfg)
}

// LoadFromBytes loads, defaults and validates configuration from YAML bytes.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return finish(cfg)
}

// ReadFile parses a YAML file without applying defaults or validating,
// so that callers can apply overrides first.
func ReadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes. Unknown fields are rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Target.BaseURL == "" {
		return fmt.Errorf("%w: target.baseURL is required", ErrInvalidConfig)
	}
	if c.Target.Timeout < 0 {
		return fmt.Errorf("%w: target.timeout must not be negative", ErrInvalidConfig)
	}
	if c.Duration < 0 {
		return fmt.Errorf("%w: duration must not be negative", ErrInvalidConfig)
	}
	if c.Users < 0 {
		return fmt.Errorf("%w: users must not be negative", ErrInvalidConfig)
	}
	if c.SpawnRate < 0 {
		return fmt.Errorf("%w: spawnRate must not be negative", ErrInvalidConfig)
	}

	if c.ThinkTime.Min < 0 || c.ThinkTime.Max < 0 {
		return fmt.Errorf("%w: thinkTime must not be negative", ErrInvalidConfig)
	}
	if c.ThinkTime.Max < c.ThinkTime.Min {
		return fmt.Errorf("%w: thinkTime.max (%s) is less than thinkTime.min (%s)",
			ErrInvalidConfig, c.ThinkTime.Max, c.ThinkTime.Min)
	}
	switch c.ThinkTime.Distribution {
	case "", DistributionUniform, DistributionExponential, DistributionNormal:
	default:
		return fmt.Errorf("%w: unknown thinkTime.distribution %q", ErrInvalidConfig, c.ThinkTime.Distribution)
	}

	switch c.Classifier.Policy {
	case "", PolicyGateway, PolicyStrict:
	default:
		return fmt.Errorf("%w: unknown classifier.policy %q", ErrInvalidConfig, c.Classifier.Policy)
	}

	for name, task := range c.Tasks {
		if task.Weight < 0 {
			return fmt.Errorf("%w: tasks.%s.weight must not be negative", ErrInvalidConfig, name)
		}
	}

	if c.Output.ReportInterval < 0 {
		return fmt.Errorf("%w: output.reportInterval must not be negative", ErrInvalidConfig)
	}
	if p := c.Output.Prometheus.Port; p < 0 || p > 65535 {
		return fmt.Errorf("%w: output.prometheus.port %d out of range", ErrInvalidConfig, p)
	}

	if r := c.Thresholds.MaxFailureRate; r < 0 || r > 100 {
		return fmt.Errorf("%w: thresholds.maxFailureRate must be between 0 and 100", ErrInvalidConfig)
	}
	if c.Thresholds.MaxP95Latency < 0 {
		return fmt.Errorf("%w: thresholds.maxP95Latency must not be negative", ErrInvalidConfig)
	}

	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("%w: log: %w", ErrInvalidConfig, err)
	}

	return nil
}

// ApplyDefaults applies default values to unset fields.
func (c *Config) ApplyDefaults() {
	if c.Version == "" {
		c.Version = "1.0"
	}
	if c.Name == "" {
		c.Name = "ecommerce-gateway"
	}

	if c.Target.Timeout == 0 {
		c.Target.Timeout = 30 * time.Second
	}
	c.Target.BaseURL = strings.TrimRight(c.Target.BaseURL, "/")

	if c.Duration == 0 {
		c.Duration = 5 * time.Minute
	}
	if c.Users == 0 {
		c.Users = 10
	}
	if c.SpawnRate == 0 {
		c.SpawnRate = 1
	}

	if c.ThinkTime.Min == 0 && c.ThinkTime.Max == 0 {
		c.ThinkTime.Min = time.Second
		c.ThinkTime.Max = 3 * time.Second
	}
	if c.ThinkTime.Distribution == "" {
		c.ThinkTime.Distribution = DistributionUniform
	}

	if c.Classifier.Policy == "" {
		c.Classifier.Policy = PolicyGateway
	}

	if c.Output.ReportInterval == 0 {
		c.Output.ReportInterval = 10 * time.Second
	}
	if c.Output.JSON.Enabled && c.Output.JSON.File == "" {
		c.Output.JSON.File = DefaultJSONReportFile
	}
	if c.Output.Prometheus.Port == 0 {
		c.Output.Prometheus.Port = 9090
	}
	if c.Output.Prometheus.Path == "" {
		c.Output.Prometheus.Path = "/metrics"
	}

	c.Log.ApplyDefaults()
}

// TaskWeights returns the effective weight of every named operation:
// defaults overridden by Tasks, with disabled operations removed.
// Overrides naming an operation that is not in defaults are rejected.
func (c *Config) TaskWeights(defaults map[string]int) (map[string]int, error) {
	weights := maps.Clone(defaults)
	for name, task := range c.Tasks {
		if _, ok := defaults[name]; !ok {
			return nil, fmt.Errorf("%w: unknown task %q", ErrInvalidConfig, name)
		}
		if task.Disabled {
			delete(weights, name)
			continue
		}
		if task.Weight > 0 {
			weights[name] = task.Weight
		}
	}
	return weights, nil
}

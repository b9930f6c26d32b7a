// Package main provides the CLI entry point for the load generator.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/example/ecommerce/tools/loadgen/internal/config"
	"github.com/example/ecommerce/tools/loadgen/internal/loadctrl"
	"github.com/example/ecommerce/tools/loadgen/internal/logger"
	"github.com/example/ecommerce/tools/loadgen/internal/metrics"
	"github.com/example/ecommerce/tools/loadgen/internal/runner"
	"github.com/example/ecommerce/tools/loadgen/internal/scenario"
)

// Version information (populated at build time)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// Exit codes.
const (
	exitOK              = 0
	exitError           = 1
	exitThresholdFailed = metrics.ExitCodeThresholdFailure
)

// options holds the parsed command line.
type options struct {
	configPath     string
	host           string
	users          int
	spawnRate      float64
	duration       time.Duration
	policy         string
	list           bool
	validate       bool
	dryRun         bool
	outputFormat   string
	outputFile     string
	prometheusAddr string
	logLevel       string
	verbose        bool
	showVersion    bool
}

func newFlagSet(opts *options, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("loadgen", flag.ContinueOnError)
	fs.SetOutput(stderr)

	// Configuration
	fs.StringVar(&opts.configPath, "config", "", "Path to the YAML configuration file")
	fs.StringVar(&opts.configPath, "c", "", "Path to the YAML configuration file (shorthand)")

	// Override flags
	fs.StringVar(&opts.host, "host", "", "Override target base URL (e.g., http://localhost:8080)")
	fs.IntVar(&opts.users, "users", 0, "Override number of virtual users")
	fs.IntVar(&opts.users, "u", 0, "Override number of virtual users (shorthand)")
	fs.Float64Var(&opts.spawnRate, "spawn-rate", 0, "Override users started per second")
	fs.Float64Var(&opts.spawnRate, "r", 0, "Override users started per second (shorthand)")
	fs.DurationVar(&opts.duration, "duration", 0, "Override test duration (e.g., 5m, 1h)")
	fs.DurationVar(&opts.duration, "d", 0, "Override test duration (shorthand)")
	fs.StringVar(&opts.policy, "policy", "", "Override classification policy: gateway or strict")

	// Utility flags
	fs.BoolVar(&opts.list, "list", false, "List the task mix and exit")
	fs.BoolVar(&opts.list, "l", false, "List the task mix (shorthand)")
	fs.BoolVar(&opts.validate, "validate", false, "Validate configuration and exit")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "Show execution plan without running")
	fs.BoolVar(&opts.verbose, "verbose", false, "Enable verbose output")
	fs.BoolVar(&opts.verbose, "v", false, "Enable verbose output (shorthand)")
	fs.BoolVar(&opts.showVersion, "version", false, "Show version information")
	fs.StringVar(&opts.logLevel, "log-level", "", "Override log level: debug, info, warn, error")

	// Output flags
	fs.StringVar(&opts.outputFormat, "output", "", "Output format: console, json, or console,json (enables JSON report)")
	fs.StringVar(&opts.outputFile, "output-file", "", "JSON output file path (overrides config, supports {{.Timestamp}})")
	fs.StringVar(&opts.prometheusAddr, "prometheus", "", "Prometheus metrics endpoint (e.g., :9090 or localhost:9090)")

	fs.Usage = func() { printUsage(stderr) }
	return fs
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `Load Generator - E-commerce Gateway Load Testing Tool

USAGE:
    loadgen [-config <path>] [options]

DESCRIPTION:
    Simulates shoppers against the e-commerce API gateway. Every virtual user
    keeps its own session (user id, up to five product ids, order id) and
    repeatedly picks one of seven weighted operations: view products, create
    user, get user, create order, add order item, view orders, view order items.

CONFIGURATION:
    -config, -c <path>      Path to the YAML configuration file (optional)

OVERRIDE OPTIONS:
    -host <url>             Override target base URL
    -users, -u <n>          Override number of virtual users
    -spawn-rate, -r <n>     Override users started per second
    -duration, -d <dur>     Override test duration (e.g., "5m", "1h30m")
    -policy <name>          Classification policy: gateway or strict
    -log-level <level>      Override log level

UTILITY OPTIONS:
    -list, -l               List the task mix and exit
    -validate               Validate configuration and exit
    -dry-run                Show execution plan without running
    -verbose, -v            Enable verbose output
    -version                Show version information
    -help, -h               Show this help message

OUTPUT OPTIONS:
    -output <format>        Output format: console, json, or console,json
    -output-file <path>     JSON output file (supports {{.Timestamp}} template)
    -prometheus <addr>      Enable Prometheus metrics endpoint (e.g., :9090)

EXIT CODES:
    0  run completed, thresholds passed
    1  configuration or runtime error
    2  one or more thresholds failed

EXAMPLES:
    # Run against a local gateway with the defaults
    loadgen -host http://localhost:8080

    # Run with a configuration file and a shorter duration
    loadgen -config configs/ecommerce.yaml -d 2m

    # 50 users, 5 started per second, strict classification
    loadgen -c configs/ecommerce.yaml -u 50 -r 5 -policy strict

    # Generate a JSON report
    loadgen -c configs/ecommerce.yaml -output json -output-file results/run-{{.Timestamp}}.json

    # Enable Prometheus metrics endpoint
    loadgen -c configs/ecommerce.yaml -prometheus :9090

    # Show the execution plan
    loadgen -c configs/ecommerce.yaml -dry-run
`)
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the CLI and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	var opts options
	fs := newFlagSet(&opts, stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitError
	}

	if opts.showVersion {
		printVersion(stdout)
		return exitOK
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading configuration: %v\n", err)
		return exitError
	}

	if err := applyOverrides(cfg, &opts, stdout); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Invalid configuration: %v\n", err)
		return exitError
	}

	if opts.validate {
		if _, err := runner.New(cfg, runner.WithOutput(io.Discard)); err != nil {
			fmt.Fprintf(stderr, "Invalid configuration: %v\n", err)
			return exitError
		}
		fmt.Fprintf(stdout, "Configuration '%s' is valid.\n", cfg.Name)
		printConfigSummary(stdout, cfg)
		return exitOK
	}

	if opts.list {
		if err := printTaskList(stdout, cfg); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitError
		}
		return exitOK
	}

	if opts.dryRun {
		if err := printExecutionPlan(stdout, cfg); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitError
		}
		return exitOK
	}

	code, err := runLoadTest(cfg, stdout)
	if err != nil {
		fmt.Fprintf(stderr, "Error running load test: %v\n", err)
		return exitError
	}
	return code
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "loadgen version %s\n", version)
	fmt.Fprintf(w, "  Build time: %s\n", buildTime)
	fmt.Fprintf(w, "  Git commit: %s\n", gitCommit)
}

// loadConfig reads the configuration file, or returns the defaults when no
// path is given. Validation happens after the overrides are applied.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path: %w", err)
	}
	return config.ReadFile(absPath)
}

func applyOverrides(cfg *config.Config, opts *options, w io.Writer) error {
	override := func(format string, args ...any) {
		if opts.verbose {
			fmt.Fprintf(w, "Override: "+format+"\n", args...)
		}
	}

	if opts.host != "" {
		cfg.Target.BaseURL = opts.host
		override("host = %s", opts.host)
	}
	if opts.users > 0 {
		cfg.Users = opts.users
		override("users = %d", opts.users)
	}
	if opts.spawnRate > 0 {
		cfg.SpawnRate = opts.spawnRate
		override("spawnRate = %.1f", opts.spawnRate)
	}
	if opts.duration > 0 {
		cfg.Duration = opts.duration
		override("duration = %v", opts.duration)
	}
	if opts.policy != "" {
		cfg.Classifier.Policy = opts.policy
		override("policy = %s", opts.policy)
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
		override("log level = %s", opts.logLevel)
	}

	if opts.verbose {
		cfg.Output.Verbose = true
	}

	if opts.outputFormat != "" {
		for part := range strings.SplitSeq(strings.ToLower(opts.outputFormat), ",") {
			switch strings.TrimSpace(part) {
			case "console":
			case "json":
				cfg.Output.JSON.Enabled = true
			default:
				return fmt.Errorf("unknown output format %q", part)
			}
		}
		override("output format = %s", opts.outputFormat)
	}

	if opts.outputFile != "" {
		cfg.Output.JSON.Enabled = true
		cfg.Output.JSON.File = opts.outputFile
		override("output file = %s", opts.outputFile)
	}

	if opts.prometheusAddr != "" {
		port := parsePrometheusPort(opts.prometheusAddr)
		if port == 0 {
			return fmt.Errorf("invalid Prometheus address %q", opts.prometheusAddr)
		}
		cfg.Output.Prometheus.Enabled = true
		cfg.Output.Prometheus.Port = port
		override("Prometheus enabled on port %d", port)
	}
	return nil
}

// parsePrometheusPort extracts port from address string.
// Supports formats: :9090, localhost:9090, 9090
// Returns 0 for invalid ports (including out of range 1-65535).
func parsePrometheusPort(addr string) int {
	addr = strings.TrimSpace(addr)
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		addr = addr[i+1:]
	}
	port, err := strconv.Atoi(addr)
	if err != nil || port <= 0 || port > 65535 {
		return 0
	}
	return port
}

func printConfigSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Configuration Summary:")
	fmt.Fprintf(w, "  Name:        %s\n", cfg.Name)
	fmt.Fprintf(w, "  Version:     %s\n", cfg.Version)
	fmt.Fprintf(w, "  Target:      %s\n", cfg.Target.BaseURL)
	fmt.Fprintf(w, "  Duration:    %v\n", cfg.Duration)
	fmt.Fprintf(w, "  Users:       %d\n", cfg.Users)
	fmt.Fprintf(w, "  Spawn rate:  %.1f/s\n", cfg.SpawnRate)
	fmt.Fprintf(w, "  Think time:  %v-%v (%s)\n", cfg.ThinkTime.Min, cfg.ThinkTime.Max, cfg.ThinkTime.Distribution)
	fmt.Fprintf(w, "  Policy:      %s\n", cfg.Classifier.Policy)
}

func printTaskList(w io.Writer, cfg *config.Config) error {
	weights, err := cfg.TaskWeights(scenario.DefaultWeights())
	if err != nil {
		return err
	}

	tasks := scenario.Tasks()
	fmt.Fprintf(w, "Tasks in '%s' (%d total):\n\n", cfg.Name, len(tasks))

	total := 0
	for _, wt := range weights {
		total += wt
	}
	for _, t := range tasks {
		weight, enabled := weights[t.Name]
		status := ""
		if !enabled {
			status = " [DISABLED]"
		}
		fmt.Fprintf(w, "  %-18s w:%-3d %s%s\n", t.Name, weight, t.Description, status)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Summary:")
	fmt.Fprintf(w, "  Total Weight:  %d\n", total)
	fmt.Fprintf(w, "  Enabled Tasks: %d\n", len(weights))
	return nil
}

func printExecutionPlan(w io.Writer, cfg *config.Config) error {
	r, err := runner.New(cfg, runner.WithOutput(io.Discard))
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "=== Execution Plan (Dry Run) ===")
	printConfigSummary(w, cfg)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Task Mix:")
	for _, p := range r.Plan() {
		fmt.Fprintf(w, "  %-18s w:%-3d %5.1f%%\n", p.Name, p.Weight, p.Probability*100)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Load Profile:")
	fmt.Fprintf(w, "  Ramp-up:     %d users over %v\n", cfg.Users, loadctrl.RampDuration(cfg.Users, cfg.SpawnRate))
	fmt.Fprintf(w, "  Steady:      %v\n", cfg.Duration)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Output:")
	fmt.Fprintf(w, "  Report interval: %v\n", cfg.Output.ReportInterval)
	if cfg.Output.JSON.Enabled {
		fmt.Fprintf(w, "  JSON report:     %s\n", cfg.Output.JSON.File)
	}
	if cfg.Output.Prometheus.Enabled {
		fmt.Fprintf(w, "  Prometheus:      :%d%s\n", cfg.Output.Prometheus.Port, cfg.Output.Prometheus.Path)
	}
	if cfg.Thresholds.MaxFailureRate > 0 || cfg.Thresholds.MaxP95Latency > 0 {
		fmt.Fprintln(w, "  Thresholds:")
		if cfg.Thresholds.MaxFailureRate > 0 {
			fmt.Fprintf(w, "    maxFailureRate: %.2f%%\n", cfg.Thresholds.MaxFailureRate)
		}
		if cfg.Thresholds.MaxP95Latency > 0 {
			fmt.Fprintf(w, "    maxP95Latency:  %v\n", cfg.Thresholds.MaxP95Latency)
		}
	}
	return nil
}

func runLoadTest(cfg *config.Config, stdout io.Writer) (int, error) {
	log, err := logger.New(cfg.Log)
	if err != nil {
		return exitError, fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	r, err := runner.New(cfg, runner.WithLogger(log), runner.WithOutput(stdout))
	if err != nil {
		return exitError, err
	}

	result, err := r.Run(context.Background())
	if err != nil {
		return exitError, err
	}
	return result.ExitCode(), nil
}

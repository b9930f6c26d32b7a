// Package runner spawns virtual users against the gateway and turns what they
// do into progress output, a final report and a threshold verdict.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/ecommerce/tools/loadgen/internal/client"
	"github.com/example/ecommerce/tools/loadgen/internal/config"
	"github.com/example/ecommerce/tools/loadgen/internal/loadctrl"
	"github.com/example/ecommerce/tools/loadgen/internal/metrics"
	"github.com/example/ecommerce/tools/loadgen/internal/scenario"
	"github.com/example/ecommerce/tools/loadgen/internal/selector"
)

// ErrAlreadyRunning is returned when Run is called on a running Runner.
var ErrAlreadyRunning = errors.New("runner: already running")

// Runner orchestrates one load test.
type Runner struct {
	cfg       *config.Config
	client    *client.Client
	weights   map[string]int
	selector  *selector.Weighted
	thinkTime selector.ThinkTime
	policy    scenario.Policy
	spawner   *loadctrl.SpawnLimiter

	collector *metrics.Collector
	console   *metrics.Console
	exporter  *metrics.PrometheusExporter
	reporter  *metrics.Reporter

	logger         *zap.Logger
	out            io.Writer
	handleSignals  bool
	payloadFactory func() *scenario.Payloads

	running     atomic.Bool
	activeUsers atomic.Int64
	spawned     atomic.Int64
	wg          sync.WaitGroup
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger. Default: no-op.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithOutput sends console output to w and disables colors.
func WithOutput(w io.Writer) Option {
	return func(r *Runner) { r.out = w }
}

// WithoutSignals stops Run from reacting to SIGINT and SIGTERM.
func WithoutSignals() Option {
	return func(r *Runner) { r.handleSignals = false }
}

// Result is the outcome of a finished run.
type Result struct {
	Snapshot     metrics.Snapshot
	Thresholds   *metrics.EvaluationResult
	ReportPath   string
	UsersSpawned int64
	Spawn        loadctrl.SpawnStats
	Interrupted  bool
}

// ExitCode maps the result to a process exit code.
func (r *Result) ExitCode() int {
	if r.Thresholds == nil {
		return metrics.ExitCodeSuccess
	}
	return r.Thresholds.ExitCode()
}

// TaskPlan describes one operation of the weighted mix.
type TaskPlan struct {
	Name        string
	Weight      int
	Probability float64
}

// New validates cfg and builds every component of a run.
func New(cfg *config.Config, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	policy, err := scenario.ParsePolicy(cfg.Classifier.Policy)
	if err != nil {
		return nil, err
	}

	weights, err := cfg.TaskWeights(scenario.DefaultWeights())
	if err != nil {
		return nil, err
	}
	sel, err := selector.NewWeighted(weights)
	if err != nil {
		return nil, fmt.Errorf("building task selector: %w", err)
	}

	httpClient, err := client.NewClient(cfg.Target)
	if err != nil {
		return nil, fmt.Errorf("creating HTTP client: %w", err)
	}

	r := &Runner{
		cfg:      cfg,
		client:   httpClient,
		weights:  weights,
		selector: sel,
		thinkTime: selector.ThinkTime{
			Min:          cfg.ThinkTime.Min,
			Max:          cfg.ThinkTime.Max,
			Distribution: cfg.ThinkTime.Distribution,
		},
		policy:        policy,
		spawner:       loadctrl.NewSpawnLimiter(cfg.SpawnRate),
		collector:     metrics.NewCollector(metrics.DefaultCollectorConfig()),
		reporter:      metrics.NewReporter(),
		logger:        zap.NewNop(),
		out:           os.Stdout,
		handleSignals: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("runner")

	if cfg.Payload.UniqueIdentity {
		r.payloadFactory = func() *scenario.Payloads {
			p := scenario.UniquePayloads(0)
			return &p
		}
	}

	r.console = metrics.NewConsole(metrics.ConsoleConfig{
		Writer:         r.out,
		ReportInterval: cfg.Output.ReportInterval,
		ShowTaskStats:  cfg.Output.Verbose,
		UseColors:      r.out == os.Stdout,
		TotalDuration:  cfg.Duration,
	})

	if cfg.Output.Prometheus.Enabled {
		r.exporter = metrics.NewPrometheusExporter(metrics.PrometheusExporterConfig{
			Port: cfg.Output.Prometheus.Port,
			Path: cfg.Output.Prometheus.Path,
		})
	}

	return r, nil
}

// Plan returns the effective task mix in name order.
func (r *Runner) Plan() []TaskPlan {
	names := r.selector.Names()
	plan := make([]TaskPlan, 0, len(names))
	for _, name := range names {
		plan = append(plan, TaskPlan{
			Name:        name,
			Weight:      r.selector.Weight(name),
			Probability: r.selector.Probability(name),
		})
	}
	return plan
}

// Collector returns the metrics collector of the run.
func (r *Runner) Collector() *metrics.Collector {
	return r.collector
}

// Exporter returns the Prometheus exporter, or nil when disabled.
func (r *Runner) Exporter() *metrics.PrometheusExporter {
	return r.exporter
}

// ActiveUsers returns the number of running virtual users.
func (r *Runner) ActiveUsers() int {
	return int(r.activeUsers.Load())
}

// Run executes the load test until the configured duration elapses, ctx is
// cancelled, or a termination signal arrives.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	if r.running.Swap(true) {
		return nil, ErrAlreadyRunning
	}
	defer r.running.Store(false)
	defer r.client.Close()

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Duration)
	defer cancel()

	var interrupted atomic.Bool
	if r.handleSignals {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		go func() {
			select {
			case sig := <-sigCh:
				r.logger.Info("received signal, stopping", zap.String("signal", sig.String()))
				interrupted.Store(true)
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	r.printBanner()

	if r.exporter != nil {
		if err := r.exporter.Start(); err != nil {
			return nil, err
		}
		r.logger.Info("prometheus exporter listening", zap.String("address", r.exporter.Address()))
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer stopCancel()
			if err := r.exporter.Stop(stopCtx); err != nil {
				r.logger.Warn("stopping prometheus exporter", zap.Error(err))
			}
		}()
	}

	r.collector.Start()
	r.console.Start(r.collector, r.ActiveUsers)

	var aux sync.WaitGroup
	if r.exporter != nil {
		aux.Go(func() { r.updateGauges(ctx) })
	}

	r.logger.Info("starting load test",
		zap.String("target", r.client.BaseURL()),
		zap.Int("users", r.cfg.Users),
		zap.Float64("spawnRate", r.cfg.SpawnRate),
		zap.Duration("duration", r.cfg.Duration),
		zap.String("policy", string(r.policy)),
	)

	r.spawnUsers(ctx)

	<-ctx.Done()
	r.wg.Wait()
	aux.Wait()

	r.console.Stop()
	r.collector.Stop()

	if interrupted.Load() {
		r.logger.Info("load test interrupted")
	} else {
		r.logger.Info("test duration reached")
	}

	return r.finish(interrupted.Load())
}

// spawnUsers starts users at the spawn rate until all are running or ctx ends.
func (r *Runner) spawnUsers(ctx context.Context) {
	for range r.cfg.Users {
		if err := r.spawner.Acquire(ctx); err != nil {
			return
		}
		user := r.newUser()
		r.spawned.Add(1)
		if r.exporter != nil {
			r.exporter.UserSpawned()
		}
		r.wg.Go(func() { r.runUser(ctx, user) })
	}
	r.logger.Debug("all users spawned", zap.Int64("users", r.spawned.Load()))
}

func (r *Runner) newUser() *scenario.User {
	opts := scenario.Options{
		Policy:   r.policy,
		Recorder: scenario.RecorderFunc(r.record),
		Logger:   r.logger.Named("user"),
	}
	if r.payloadFactory != nil {
		opts.Payloads = r.payloadFactory()
	}
	return scenario.NewUser(uuid.NewString(), r.client, opts)
}

// runUser is the loop of one virtual user: pick a task, run it, think.
func (r *Runner) runUser(ctx context.Context, user *scenario.User) {
	r.setActiveUsers(r.activeUsers.Add(1))
	defer func() { r.setActiveUsers(r.activeUsers.Add(-1)) }()

	for ctx.Err() == nil {
		name, err := r.selector.Select()
		if err != nil {
			r.logger.Error("selecting task", zap.Error(err))
			return
		}
		if err := user.Run(ctx, name); err != nil {
			r.logger.Error("running task", zap.String("task", name), zap.Error(err))
			return
		}
		if !sleep(ctx, r.thinkTime.Next()) {
			return
		}
	}
}

func (r *Runner) setActiveUsers(n int64) {
	if r.exporter != nil {
		r.exporter.SetActiveUsers(int(n))
	}
}

// record forwards one scenario result to the collector and the exporter.
func (r *Runner) record(res scenario.Result) {
	m := metrics.Result{
		Task:       res.Task,
		StatusCode: res.Outcome.StatusCode,
		Latency:    res.Duration,
		Success:    res.Outcome.OK(),
		Outcome:    res.Outcome.Kind.String(),
		Timestamp:  res.Timestamp,
	}
	if !m.Success {
		m.Failure = res.Outcome.Message
	}

	r.collector.Record(m)
	if r.exporter != nil {
		r.exporter.RecordRequest(m)
	}
}

func (r *Runner) updateGauges(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.exporter.UpdateFromSnapshot(r.collector.Snapshot())
			return
		case <-ticker.C:
			r.exporter.UpdateFromSnapshot(r.collector.Snapshot())
		}
	}
}

// finish prints the final report and writes the optional JSON report.
func (r *Runner) finish(interrupted bool) (*Result, error) {
	snapshot := r.collector.Snapshot()
	result := &Result{
		Snapshot:     snapshot,
		UsersSpawned: r.spawned.Load(),
		Spawn:        r.spawner.Stats(),
		Interrupted:  interrupted,
	}

	thresholds := metrics.Thresholds{
		MaxFailureRate: r.cfg.Thresholds.MaxFailureRate,
		MaxP95Latency:  r.cfg.Thresholds.MaxP95Latency,
	}
	if thresholds.Enabled() {
		result.Thresholds = thresholds.Evaluate(snapshot)
	}

	r.console.PrintFinalReport(snapshot, result.Thresholds)
	fmt.Fprintf(r.out, "Users spawned: %d of %d at %.1f/s (avg wait %s)\n",
		result.Spawn.TotalAcquired, r.cfg.Users, result.Spawn.CurrentRate,
		result.Spawn.AvgWaitTime.Round(time.Millisecond))

	if r.cfg.Output.JSON.Enabled {
		report := r.reporter.GenerateReport(snapshot, metrics.ReportOptions{
			ConfigName:        r.cfg.Name,
			ConfigDescription: r.cfg.Description,
			TargetBaseURL:     r.cfg.Target.BaseURL,
			TestDuration:      r.cfg.Duration,
			Users:             r.cfg.Users,
			SpawnRate:         r.cfg.SpawnRate,
			Policy:            string(r.policy),
			TaskWeights:       r.weights,
			Thresholds:        result.Thresholds,
		})
		path, err := r.reporter.WriteToFile(report, r.cfg.Output.JSON.File)
		if err != nil {
			return result, fmt.Errorf("writing JSON report: %w", err)
		}
		result.ReportPath = path
		fmt.Fprintf(r.out, "JSON report written to %s\n", path)
	}

	if result.Thresholds != nil && !result.Thresholds.Passed {
		r.logger.Warn("thresholds failed", zap.Error(result.Thresholds.Err()))
	}
	return result, nil
}

func (r *Runner) printBanner() {
	w := r.out
	fmt.Fprintln(w, "╔════════════════════════════════════════════════════════════╗")
	fmt.Fprintf(w, "║  Load Generator: %-42s ║\n", truncate(r.cfg.Name, 42))
	fmt.Fprintln(w, "╠════════════════════════════════════════════════════════════╣")
	fmt.Fprintf(w, "║  Target:     %-46s ║\n", truncate(r.client.BaseURL(), 46))
	fmt.Fprintf(w, "║  Users:      %-46s ║\n", fmt.Sprintf("%d @ %.1f/s (ramp-up %s)",
		r.cfg.Users, r.cfg.SpawnRate, loadctrl.RampDuration(r.cfg.Users, r.cfg.SpawnRate)))
	fmt.Fprintf(w, "║  Duration:   %-46s ║\n", r.cfg.Duration)
	fmt.Fprintf(w, "║  Tasks:      %-46d ║\n", len(r.weights))
	fmt.Fprintf(w, "║  Think time: %-46s ║\n", fmt.Sprintf("%s-%s %s", r.thinkTime.Min, r.thinkTime.Max, r.thinkTime.Distribution))
	fmt.Fprintln(w, "╚════════════════════════════════════════════════════════════╝")
}

// sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// truncate shortens s to at most max runes.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}

package metrics

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"time"
)

// Console prints periodic progress lines and the final report of a run.
//
// Thread Safety: Safe for concurrent use.
type Console struct {
	mu sync.Mutex

	writer io.Writer
	config ConsoleConfig

	isRunning bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// ConsoleConfig holds configuration for console output.
type ConsoleConfig struct {
	// Writer is the output destination. Default: os.Stdout
	Writer io.Writer

	// ReportInterval is how often a progress line is printed. Default: 10s
	ReportInterval time.Duration

	// ShowTaskStats adds a per-task line to every progress report.
	ShowTaskStats bool

	// MaxFailures limits the rows of the failure table. Default: 20
	MaxFailures int

	// UseColors enables ANSI color codes. Default: true
	UseColors bool

	// TotalDuration is the expected run length, shown next to the elapsed time.
	TotalDuration time.Duration
}

// DefaultConsoleConfig returns default configuration.
func DefaultConsoleConfig() ConsoleConfig {
	return ConsoleConfig{
		Writer:         os.Stdout,
		ReportInterval: 10 * time.Second,
		MaxFailures:    20,
		UseColors:      true,
	}
}

// ANSI color codes.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
)

// NewConsole creates a new console output handler.
func NewConsole(config ConsoleConfig) *Console {
	if config.Writer == nil {
		config.Writer = os.Stdout
	}
	if config.ReportInterval <= 0 {
		config.ReportInterval = 10 * time.Second
	}
	if config.MaxFailures <= 0 {
		config.MaxFailures = 20
	}

	return &Console{
		writer: config.Writer,
		config: config,
	}
}

func (c *Console) color(code string) string {
	if c.config.UseColors {
		return code
	}
	return ""
}

// Start prints a progress line every ReportInterval until Stop is called.
// activeUsers may be nil.
func (c *Console) Start(collector *Collector, activeUsers func() int) {
	c.mu.Lock()
	if c.isRunning {
		c.mu.Unlock()
		return
	}
	c.isRunning = true
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	c.mu.Unlock()

	go c.updateLoop(collector, activeUsers)
}

// Stop stops the progress updates and waits for the loop to exit.
func (c *Console) Stop() {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return
	}
	c.isRunning = false
	close(c.stopCh)
	c.mu.Unlock()

	<-c.doneCh
}

func (c *Console) updateLoop(collector *Collector, activeUsers func() int) {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.config.ReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			users := -1
			if activeUsers != nil {
				users = activeUsers()
			}
			c.PrintProgress(collector.Snapshot(), users)
		}
	}
}

// PrintProgress prints one progress line. A negative user count is omitted.
func (c *Console) PrintProgress(snapshot Snapshot, users int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintln(c.writer, c.formatProgress(snapshot, users))

	if c.config.ShowTaskStats {
		for _, name := range sortedTaskNames(snapshot.TaskStats) {
			ts := snapshot.TaskStats[name]
			fmt.Fprintf(c.writer, "    %-18s reqs=%-6d fail=%-5d p95=%s\n",
				name, ts.TotalRequests, ts.FailedRequests, formatLatency(ts.P95Latency))
		}
	}
}

func (c *Console) formatProgress(snapshot Snapshot, users int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s[%s]%s ", c.color(colorDim), time.Now().Format("15:04:05"), c.color(colorReset))

	elapsed := formatDuration(snapshot.Duration)
	if c.config.TotalDuration > 0 {
		elapsed += "/" + formatDuration(c.config.TotalDuration)
	}
	sb.WriteString(elapsed)

	if users >= 0 {
		fmt.Fprintf(&sb, " | users: %d", users)
	}
	fmt.Fprintf(&sb, " | reqs: %s%d%s | rps: %s%.1f%s | fail: %s%.2f%%%s | p95: %s",
		c.color(colorBold), snapshot.TotalRequests, c.color(colorReset),
		c.color(colorBlue), snapshot.RPS, c.color(colorReset),
		c.successRateColor(snapshot.SuccessRate), snapshot.FailureRate, c.color(colorReset),
		formatLatency(snapshot.P95Latency))
	return sb.String()
}

// PrintFinalReport prints the end-of-run summary: totals, latency, per-task
// table, status codes, failures and, when given, threshold results.
func (c *Console) PrintFinalReport(snapshot Snapshot, thresholds *EvaluationResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w := c.writer
	bold, cyan, reset := c.color(colorBold), c.color(colorCyan), c.color(colorReset)

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s╔══════════════════════════════════════════════════════════════╗%s\n", bold, reset)
	fmt.Fprintf(w, "%s║                   LOAD TEST FINAL REPORT                     ║%s\n", bold, reset)
	fmt.Fprintf(w, "%s╚══════════════════════════════════════════════════════════════╝%s\n", bold, reset)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "%s── Summary ───────────────────────────────────────────────────%s\n", cyan, reset)
	if !snapshot.StartTime.IsZero() {
		fmt.Fprintf(w, "  Start Time:      %s\n", snapshot.StartTime.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(w, "  Duration:        %s\n", formatDuration(snapshot.Duration))
	fmt.Fprintf(w, "  Total Requests:  %s%d%s\n", bold, snapshot.TotalRequests, reset)
	fmt.Fprintf(w, "  Successful:      %s%d%s\n", c.color(colorGreen), snapshot.SuccessRequests, reset)
	fmt.Fprintf(w, "  Failed:          %s%d%s (%.2f%%)\n", c.color(colorRed), snapshot.FailedRequests, reset, snapshot.FailureRate)
	fmt.Fprintf(w, "  Throughput:      %s%.2f req/s%s\n", c.color(colorBlue), snapshot.RPS, reset)
	fmt.Fprintf(w, "  Latency:         min=%s avg=%s p50=%s p95=%s p99=%s max=%s\n",
		formatLatency(snapshot.MinLatency), formatLatency(snapshot.AvgLatency),
		formatLatency(snapshot.P50Latency), formatLatency(snapshot.P95Latency),
		formatLatency(snapshot.P99Latency), formatLatency(snapshot.MaxLatency))
	fmt.Fprintln(w)

	if len(snapshot.TaskStats) > 0 {
		fmt.Fprintf(w, "%s── Tasks ─────────────────────────────────────────────────────%s\n", cyan, reset)
		fmt.Fprintf(w, "  %-20s %8s %8s %9s %10s %10s\n", "Task", "Requests", "Failures", "Success%", "Avg", "P95")
		fmt.Fprintf(w, "  %s%s%s\n", c.color(colorDim), strings.Repeat("─", 70), reset)
		for _, name := range sortedTaskNames(snapshot.TaskStats) {
			ts := snapshot.TaskStats[name]
			fmt.Fprintf(w, "  %-20s %8d %8d %s%8.1f%%%s %10s %10s\n",
				name, ts.TotalRequests, ts.FailedRequests,
				c.successRateColor(ts.SuccessRate), ts.SuccessRate, reset,
				formatLatency(ts.AvgLatency), formatLatency(ts.P95Latency))
		}
		fmt.Fprintln(w)
	}

	if len(snapshot.StatusCodes) > 0 {
		fmt.Fprintf(w, "%s── Status Codes ──────────────────────────────────────────────%s\n", cyan, reset)
		codes := make([]int, 0, len(snapshot.StatusCodes))
		for code := range snapshot.StatusCodes {
			codes = append(codes, code)
		}
		slices.Sort(codes)
		for _, code := range codes {
			count := snapshot.StatusCodes[code]
			pct := float64(count) / float64(snapshot.TotalRequests) * 100
			color := c.statusCodeColor(code)
			fmt.Fprintf(w, "  %s%d%s: %6d (%5.1f%%) %s%s%s\n",
				color, code, reset, count, pct,
				color, strings.Repeat("█", max(int(pct/2), 1)), reset)
		}
		fmt.Fprintln(w)
	}

	if len(snapshot.Failures) > 0 {
		fmt.Fprintf(w, "%s── Failures ──────────────────────────────────────────────────%s\n", cyan, reset)
		fmt.Fprintf(w, "  %8s  %-20s %s\n", "Count", "Task", "Message")
		for i, f := range snapshot.Failures {
			if i == c.config.MaxFailures {
				fmt.Fprintf(w, "  %s... and %d more%s\n", c.color(colorDim), len(snapshot.Failures)-i, reset)
				break
			}
			fmt.Fprintf(w, "  %s%8d%s  %-20s %s\n", c.color(colorRed), f.Count, reset, f.Task, f.Message)
		}
		fmt.Fprintln(w)
	}

	if thresholds != nil && len(thresholds.Results) > 0 {
		fmt.Fprintf(w, "%s── Thresholds ────────────────────────────────────────────────%s\n", cyan, reset)
		for _, r := range thresholds.Results {
			mark := c.color(colorGreen) + "PASS" + reset
			if !r.Passed {
				mark = c.color(colorRed) + "FAIL" + reset
			}
			fmt.Fprintf(w, "  [%s] %-16s expected %s, got %s\n", mark, r.Name, r.Expected, r.Actual)
		}
		fmt.Fprintf(w, "  %s\n\n", thresholds.Summary())
	}

	fmt.Fprintf(w, "%s══════════════════════════════════════════════════════════════%s\n", c.color(colorDim), reset)
}

func sortedTaskNames(stats map[string]*TaskSnapshot) []string {
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Success rate thresholds for color coding.
const (
	successRateExcellent = 99.0
	successRateGood      = 95.0
)

func (c *Console) successRateColor(rate float64) string {
	switch {
	case rate >= successRateExcellent:
		return c.color(colorGreen)
	case rate >= successRateGood:
		return c.color(colorYellow)
	default:
		return c.color(colorRed)
	}
}

func (c *Console) statusCodeColor(code int) string {
	switch {
	case code >= 200 && code < 300:
		return c.color(colorGreen)
	case code >= 300 && code < 400:
		return c.color(colorBlue)
	case code >= 400 && code < 500:
		return c.color(colorYellow)
	default:
		return c.color(colorRed)
	}
}

// formatLatency formats a duration for display.
func formatLatency(d time.Duration) string {
	if d == 0 {
		return "0ms"
	}
	if d < time.Microsecond {
		return fmt.Sprintf("%dns", d.Nanoseconds())
	}
	if d < time.Millisecond {
		return fmt.Sprintf("%.2fµs", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.2fms", float64(d.Nanoseconds())/1e6)
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		minutes := int(d.Minutes())
		seconds := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", hours, minutes)
}

package output

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/wesleyorama2/rhino/internal/metrics"
	"github.com/wesleyorama2/rhino/internal/runner"
)

const ruleWidth = 56

// Console prints run progress and the final summary.
type Console struct {
	mu     sync.Mutex
	w      io.Writer
	scheme *ColorScheme
	quiet  bool
}

// ConsoleConfig contains configuration for Console.
type ConsoleConfig struct {
	Writer      io.Writer
	Quiet       bool
	ForceColors bool
}

// NewConsole creates a console writing to cfg.Writer.
func NewConsole(cfg ConsoleConfig) *Console {
	return &Console{
		w:      cfg.Writer,
		scheme: SchemeFor(cfg.Writer, cfg.ForceColors),
		quiet:  cfg.Quiet,
	}
}

// Header prints the run banner.
func (c *Console) Header(cfg runner.Config) {
	if c.quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.scheme
	rule := s.Rule.Sprint(strings.Repeat("━", ruleWidth))
	c.writeln(rule)
	c.writeln(fmt.Sprintf("%s - Running", s.Title.Sprint(cfg.Name)))
	c.writeln(rule)

	c.writeln(fmt.Sprintf("Actors:        %s (parallelism %d)", s.Value.Sprint(cfg.Actors), cfg.Parallelism))
	if cfg.Duration > 0 {
		c.writeln(fmt.Sprintf("Duration:      %s", s.Value.Sprint(formatDuration(cfg.Duration))))
	}
	if cfg.MaxExecutions > 0 {
		c.writeln(fmt.Sprintf("Executions:    %s", s.Value.Sprint(formatNumber(cfg.MaxExecutions))))
	}
	if r := cfg.Ramp; r != nil {
		c.writeln(fmt.Sprintf("Ramp-up:       %.1f → %.1f rps over %s", r.StartRPS, r.TargetRPS, formatDuration(r.Duration)))
	}
	if t := cfg.Throttle; t != nil {
		c.writeln(fmt.Sprintf("Throttle:      %d per %s", t.RPS, formatDuration(t.Window)))
	}
	c.writeln(fmt.Sprintf("Drain:         %s", cfg.Drain))
	c.writeln("")
}

// Progress prints a one-line status update.
func (c *Console) Progress(snap *metrics.Snapshot) {
	if c.quiet || snap == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.scheme
	c.writeln(fmt.Sprintf("[%s] %s | Reqs: %s | RPS: %.1f | Errors: %s (%.1f%%) | P95: %s",
		formatDuration(snap.Elapsed),
		s.Phase.Sprint(snap.Phase),
		formatNumber(snap.TotalRequests),
		snap.RPS,
		c.errorColor(snap.ErrorRate).Sprint(snap.FailedRequests),
		snap.ErrorRate*100,
		s.Latency.Sprint(formatLatency(snap.Latency.P95))))
}

// Summary prints the final report. In quiet mode only the verdict is
// printed.
func (c *Console) Summary(r *Report) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.scheme
	verdict := s.Success.Sprint("PASSED")
	if !r.Passed() {
		verdict = s.Error.Sprint("FAILED")
	}
	if c.quiet {
		c.writeln(verdict)
		return
	}

	res := r.Result
	rule := s.Rule.Sprint(strings.Repeat("━", ruleWidth))
	c.writeln("")
	c.writeln(rule)
	c.writeln(fmt.Sprintf("%s - %s (%s)", s.Title.Sprint(res.Name), verdict, res.Reason))
	c.writeln(rule)
	c.writeln("")

	c.writeln(fmt.Sprintf("Run:           %s", s.Dim.Sprint(res.RunID)))
	c.writeln(fmt.Sprintf("Duration:      %s", s.Value.Sprint(formatDuration(res.Duration))))
	c.writeln("")

	c.writeln(s.Title.Sprint("Pairings:"))
	c.pairing("Completed", res.Completed, res.Executions, s.Success)
	c.pairing("Terminated", res.Terminated, res.Executions, s.Warn)
	c.pairing("Dropped", res.Dropped, res.Executions, s.Warn)
	c.pairing("Failed", res.Failed, res.Executions, s.Error)
	c.pairing("Abandoned", res.Abandoned, res.Executions, s.Warn)
	c.writeln(fmt.Sprintf("  Total:       %s", s.Value.Sprint(formatNumber(res.Executions))))
	c.writeln("")

	if m := r.Metrics; m != nil {
		c.writeln(fmt.Sprintf("Total Reqs:    %s", s.Value.Sprint(formatNumber(m.TotalRequests))))
		successRate := 1 - m.ErrorRate
		c.writeln(fmt.Sprintf("Success Rate:  %s", c.errorColor(m.ErrorRate).Sprintf("%.1f%%", successRate*100)))
		c.writeln(fmt.Sprintf("RPS:           %s", s.Value.Sprintf("%.1f", m.RPS)))
		if m.SteadyStateRPS > 0 {
			c.writeln(fmt.Sprintf("Steady RPS:    %s", s.Value.Sprintf("%.1f", m.SteadyStateRPS)))
		}
		c.writeln("")

		c.writeln(s.Title.Sprint("Latency Distribution:"))
		c.latency("  ", m.Latency)
		c.writeln("")

		c.table("Requests:", m.Requests)
		c.table("Measures:", m.Measures)
	}

	if res.EventsDropped > 0 {
		c.writeln(fmt.Sprintf("%s %s timing events were dropped; metrics undercount",
			s.WarningIcon(), formatNumber(res.EventsDropped)))
	}
}

func (c *Console) pairing(label string, n, total int64, col *color.Color) {
	if n == 0 {
		return
	}
	c.writeln(fmt.Sprintf("  %-12s %s (%.1f%%)", label+":", col.Sprint(formatNumber(n)), percent(n, total)))
}

func (c *Console) latency(indent string, l metrics.LatencyStats) {
	s := c.scheme
	for _, row := range []struct {
		name string
		d    time.Duration
	}{
		{"Min", l.Min}, {"P50", l.P50}, {"P90", l.P90}, {"P95", l.P95}, {"P99", l.P99}, {"Max", l.Max},
	} {
		c.writeln(fmt.Sprintf("%s%-10s %s", indent, row.name+":", s.Latency.Sprint(formatLatency(row.d))))
	}
}

func (c *Console) table(title string, rows map[string]metrics.LatencyStats) {
	if len(rows) == 0 {
		return
	}
	s := c.scheme
	c.writeln(s.Title.Sprint(title))
	for _, name := range slices.Sorted(maps.Keys(rows)) {
		l := rows[name]
		c.writeln(fmt.Sprintf("  %-24s n=%-8s p50=%-8s p95=%-8s p99=%s",
			s.Highlight.Sprint(name),
			formatNumber(l.Count),
			formatLatency(l.P50),
			formatLatency(l.P95),
			formatLatency(l.P99)))
	}
	c.writeln("")
}

func (c *Console) errorColor(rate float64) *color.Color {
	switch {
	case rate > 0.05:
		return c.scheme.Error
	case rate > 0.01:
		return c.scheme.Warn
	default:
		return c.scheme.Success
	}
}

func (c *Console) writeln(s string) {
	fmt.Fprintln(c.w, s)
}

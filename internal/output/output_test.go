package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/wesleyorama2/rhino/internal/metrics"
	"github.com/wesleyorama2/rhino/internal/rate"
	"github.com/wesleyorama2/rhino/internal/runner"
)

func sampleReport() *Report {
	return &Report{
		Result: &runner.Result{
			RunID:      "run-1",
			Name:       "checkout",
			Executions: 10,
			Completed:  7,
			Terminated: 2,
			Failed:     1,
			Duration:   90 * time.Second,
			Reason:     runner.ReasonCompleted,
		},
		Metrics: &metrics.Snapshot{
			TotalRequests:  1234,
			FailedRequests: 12,
			ErrorRate:      0.01,
			RPS:            13.7,
			Latency:        metrics.LatencyStats{P50: 20 * time.Millisecond, P95: 180 * time.Millisecond},
			Requests: map[string]metrics.LatencyStats{
				"login": {Count: 10, P50: 15 * time.Millisecond},
				"cart":  {Count: 20, P50: 25 * time.Millisecond},
			},
		},
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
		{-4200, "-4,200"},
	}
	for _, tt := range tests {
		if got := formatNumber(tt.in); got != tt.want {
			t.Errorf("formatNumber(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{1500 * time.Millisecond, "1.5s"},
		{90 * time.Second, "1m 30s"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1h 02m 03s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatLatency(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0ms"},
		{500 * time.Microsecond, "500µs"},
		{42 * time.Millisecond, "42ms"},
		{2500 * time.Millisecond, "2.50s"},
	}
	for _, tt := range tests {
		if got := formatLatency(tt.in); got != tt.want {
			t.Errorf("formatLatency(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestReport_Passed(t *testing.T) {
	r := sampleReport()
	if r.Passed() {
		t.Error("report with a failed pairing passed")
	}

	r.Result.Failed = 0
	if !r.Passed() {
		t.Error("report with only terminated pairings failed")
	}

	r.Result.Reason = runner.ReasonInsufficientActors
	if r.Passed() {
		t.Error("insufficient actors passed")
	}

	if (&Report{}).Passed() {
		t.Error("empty report passed")
	}
}

func TestConsole_Summary(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Writer: &buf})
	c.Summary(sampleReport())

	out := buf.String()
	for _, want := range []string{
		"checkout - FAILED (completed)",
		"Completed:   7 (70.0%)",
		"Terminated:  2 (20.0%)",
		"Total Reqs:    1,234",
		"Success Rate:  99.0%",
		"P95:       180ms",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q\n%s", want, out)
		}
	}
	if strings.Contains(out, "Dropped:") {
		t.Error("zero counts should be omitted")
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("non-terminal writer got ANSI codes")
	}
	if strings.Index(out, "cart") > strings.Index(out, "login") {
		t.Error("request rows are not sorted")
	}
}

func TestConsole_Quiet(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Writer: &buf, Quiet: true})
	c.Header(runner.Config{Name: "x"})
	c.Progress(&metrics.Snapshot{})

	r := sampleReport()
	r.Result.Failed = 0
	c.Summary(r)

	if got := buf.String(); got != "PASSED\n" {
		t.Errorf("quiet output = %q", got)
	}
}

func TestConsole_HeaderAndProgress(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Writer: &buf})
	c.Header(runner.Config{
		Name:        "checkout",
		Actors:      4,
		Parallelism: 2,
		Duration:    time.Minute,
		Throttle:    &rate.ThrottleSpec{RPS: 10, Window: time.Second},
	})
	c.Progress(&metrics.Snapshot{Elapsed: 5 * time.Second, Phase: metrics.PhaseSteady, TotalRequests: 50, RPS: 10})

	out := buf.String()
	for _, want := range []string{"Actors:        4 (parallelism 2)", "Throttle:      10 per 1.0s", "Drain:         graceful", "[5.0s] steady | Reqs: 50"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
}

func TestForceColors(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Writer: &buf, Quiet: true, ForceColors: true})
	c.Summary(&Report{Result: &runner.Result{}})

	if !strings.Contains(buf.String(), "\x1b[") {
		t.Errorf("forced colors missing: %q", buf.String())
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, sampleReport()); err != nil {
		t.Fatal(err)
	}

	var decoded struct {
		Result  map[string]any `json:"result"`
		Metrics map[string]any `json:"metrics"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Result["runId"] != "run-1" || decoded.Result["reason"] != "completed" {
		t.Errorf("result = %v", decoded.Result)
	}
	if decoded.Metrics["totalRequests"] != float64(1234) {
		t.Errorf("metrics = %v", decoded.Metrics)
	}
}

func TestWriteHTML(t *testing.T) {
	r := sampleReport()
	r.TimeSeries = []metrics.Bucket{
		{Timestamp: time.Date(2024, 1, 1, 12, 0, 1, 0, time.UTC), IntervalRPS: 12.5, P95: 150 * time.Millisecond, Phase: metrics.PhaseSteady},
		{Timestamp: time.Date(2024, 1, 1, 12, 0, 2, 0, time.UTC), IntervalRPS: 14, IntervalFailures: 1, Phase: metrics.PhaseSteady},
	}

	var buf bytes.Buffer
	if err := WriteHTML(&buf, r); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	for _, want := range []string{
		"<title>checkout - rhino report</title>",
		`class="FAILED"`,
		"<td>cart</td>",
		"<td>login</td>",
		`"t":"12:00:01"`,
		`"p95":150`,
		"1,234",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("html missing %q", want)
		}
	}
	if strings.Index(out, "<td>cart</td>") > strings.Index(out, "<td>login</td>") {
		t.Error("request rows not sorted")
	}
}

func TestWriteHTML_Escapes(t *testing.T) {
	r := &Report{Result: &runner.Result{Name: "<script>x</script>"}}
	var buf bytes.Buffer
	if err := WriteHTML(&buf, r); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "<script>x</script>") {
		t.Error("name not escaped")
	}
	if !strings.Contains(buf.String(), `class="PASSED"`) {
		t.Error("empty run should pass")
	}
}

func TestWriteHTML_NoResult(t *testing.T) {
	if err := WriteHTML(&bytes.Buffer{}, &Report{}); err == nil {
		t.Error("expected error for missing result")
	}
}

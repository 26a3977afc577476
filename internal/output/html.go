package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"os"
	"time"
)

type htmlData struct {
	*Report
	Verdict string
	Series  template.JS
}

type seriesPoint struct {
	T        string  `json:"t"`
	RPS      float64 `json:"rps"`
	Failures int64   `json:"failures"`
	P50      float64 `json:"p50"`
	P95      float64 `json:"p95"`
	P99      float64 `json:"p99"`
	Phase    string  `json:"phase"`
}

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"latency":  formatLatency,
	"number":   formatNumber,
	"duration": formatDuration,
	"pct": func(part, total int64) string {
		return fmt.Sprintf("%.1f%%", percent(part, total))
	},
	"clock": func(t time.Time) string { return t.Format("2006-01-02 15:04:05") },
}).Parse(htmlTemplate))

// WriteHTML renders r as a standalone HTML page with a throughput and
// latency chart over the run's time series.
func WriteHTML(w io.Writer, r *Report) error {
	if r == nil || r.Result == nil {
		return errors.New("html report: no result")
	}

	points := make([]seriesPoint, 0, len(r.TimeSeries))
	for _, b := range r.TimeSeries {
		points = append(points, seriesPoint{
			T:        b.Timestamp.Format("15:04:05"),
			RPS:      b.IntervalRPS,
			Failures: b.IntervalFailures,
			P50:      millis(b.P50),
			P95:      millis(b.P95),
			P99:      millis(b.P99),
			Phase:    string(b.Phase),
		})
	}
	series, err := json.Marshal(points)
	if err != nil {
		return fmt.Errorf("html report: %w", err)
	}

	data := htmlData{Report: r, Verdict: "FAILED", Series: template.JS(series)}
	if r.Passed() {
		data.Verdict = "PASSED"
	}

	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return fmt.Errorf("html report: %w", err)
	}
	_, err = buf.WriteTo(w)
	return err
}

// WriteHTMLFile writes the HTML report to path.
func WriteHTMLFile(path string, r *Report) error {
	var buf bytes.Buffer
	if err := WriteHTML(&buf, r); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write html report: %w", err)
	}
	return nil
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Result.Name}} - rhino report</title>
<script src="https://cdn.jsdelivr.net/npm/chart.js@4"></script>
<style>
body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; margin: 2rem; color: #222; }
h1 span { font-size: 0.6em; padding: 0.2em 0.6em; border-radius: 4px; color: #fff; }
.PASSED { background: #2e7d32; } .FAILED { background: #c62828; }
table { border-collapse: collapse; margin: 1rem 0; }
th, td { padding: 0.3rem 0.8rem; text-align: right; border-bottom: 1px solid #ddd; }
th:first-child, td:first-child { text-align: left; }
.grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(160px, 1fr)); gap: 1rem; }
.card { background: #f5f5f5; padding: 0.8rem; border-radius: 6px; }
.card b { display: block; font-size: 1.4em; }
canvas { max-height: 320px; }
</style>
</head>
<body>
<h1>{{.Result.Name}} <span class="{{.Verdict}}">{{.Verdict}}</span></h1>
<p>Run {{.Result.RunID}} &middot; {{clock .Result.Start}} &middot; {{duration .Result.Duration}} &middot; {{.Result.Reason}}</p>

<h2>Pairings</h2>
<div class="grid">
<div class="card">Executions<b>{{number .Result.Executions}}</b></div>
<div class="card">Completed<b>{{number .Result.Completed}}</b>{{pct .Result.Completed .Result.Executions}}</div>
<div class="card">Terminated<b>{{number .Result.Terminated}}</b></div>
<div class="card">Failed<b>{{number .Result.Failed}}</b></div>
<div class="card">Dropped<b>{{number .Result.Dropped}}</b></div>
<div class="card">Abandoned<b>{{number .Result.Abandoned}}</b></div>
</div>
{{with .Metrics}}
<h2>Requests</h2>
<div class="grid">
<div class="card">Total<b>{{number .TotalRequests}}</b></div>
<div class="card">Succeeded<b>{{number .SuccessRequests}}</b>{{pct .SuccessRequests .TotalRequests}}</div>
<div class="card">Failed<b>{{number .FailedRequests}}</b></div>
<div class="card">Throughput<b>{{printf "%.1f" .RPS}} req/s</b></div>
</div>
<table>
<tr><th>Name</th><th>Count</th><th>Min</th><th>P50</th><th>P95</th><th>P99</th><th>Max</th></tr>
<tr><td><em>all</em></td><td>{{number .Latency.Count}}</td><td>{{latency .Latency.Min}}</td><td>{{latency .Latency.P50}}</td><td>{{latency .Latency.P95}}</td><td>{{latency .Latency.P99}}</td><td>{{latency .Latency.Max}}</td></tr>
{{range $name, $s := .Requests}}<tr><td>{{$name}}</td><td>{{number $s.Count}}</td><td>{{latency $s.Min}}</td><td>{{latency $s.P50}}</td><td>{{latency $s.P95}}</td><td>{{latency $s.P99}}</td><td>{{latency $s.Max}}</td></tr>
{{end}}</table>
{{if .Measures}}
<h2>Measures</h2>
<table>
<tr><th>Tag</th><th>Count</th><th>P50</th><th>P95</th><th>P99</th></tr>
{{range $tag, $s := .Measures}}<tr><td>{{$tag}}</td><td>{{number $s.Count}}</td><td>{{latency $s.P50}}</td><td>{{latency $s.P95}}</td><td>{{latency $s.P99}}</td></tr>
{{end}}</table>
{{end}}
{{end}}
{{if .TimeSeries}}
<h2>Over time</h2>
<canvas id="rps"></canvas>
<canvas id="latency"></canvas>
<script>
const series = {{.Series}};
const labels = series.map(p => p.t);
new Chart(document.getElementById('rps'), {type: 'line', data: {labels, datasets: [
  {label: 'req/s', data: series.map(p => p.rps), borderColor: '#1565c0'},
  {label: 'failures', data: series.map(p => p.failures), borderColor: '#c62828'}]}});
new Chart(document.getElementById('latency'), {type: 'line', data: {labels, datasets: [
  {label: 'p50 ms', data: series.map(p => p.p50), borderColor: '#2e7d32'},
  {label: 'p95 ms', data: series.map(p => p.p95), borderColor: '#f9a825'},
  {label: 'p99 ms', data: series.map(p => p.p99), borderColor: '#c62828'}]}});
</script>
{{end}}
</body>
</html>
`

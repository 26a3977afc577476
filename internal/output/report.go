package output

import (
	"encoding/json"
	"io"

	"github.com/wesleyorama2/rhino/internal/metrics"
	"github.com/wesleyorama2/rhino/internal/runner"
)

// Report is everything known about a finished run.
type Report struct {
	Result     *runner.Result    `json:"result"`
	Metrics    *metrics.Snapshot `json:"metrics,omitempty"`
	TimeSeries []metrics.Bucket  `json:"timeSeries,omitempty"`
}

// Passed reports whether the run ended normally with no failed pairings.
// Terminated and dropped pairings are outcomes of the workload, not of the
// run, and do not fail it.
func (r *Report) Passed() bool {
	if r.Result == nil {
		return false
	}
	switch r.Result.Reason {
	case runner.ReasonFatal, runner.ReasonInsufficientActors:
		return false
	}
	return r.Result.Failed == 0
}

// WriteJSON writes r as indented JSON.
func WriteJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

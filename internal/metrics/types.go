package metrics

import "time"

// Phase is a stage of a simulation run.
type Phase string

const (
	PhaseInit     Phase = "init"
	PhaseRampUp   Phase = "ramp-up"
	PhaseSteady   Phase = "steady"
	PhaseDraining Phase = "draining"
	PhaseDone     Phase = "done"
)

// LatencyStats summarises one histogram.
type LatencyStats struct {
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	StdDev time.Duration `json:"stdDev"`
	P50    time.Duration `json:"p50"`
	P90    time.Duration `json:"p90"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
	Count  int64         `json:"count"`
}

// Snapshot is a point-in-time view of everything the collector knows.
type Snapshot struct {
	TotalRequests   int64                   `json:"totalRequests"`
	SuccessRequests int64                   `json:"successRequests"`
	FailedRequests  int64                   `json:"failedRequests"`
	ErrorRate       float64                 `json:"errorRate"`
	RPS             float64                 `json:"rps"`
	SteadyStateRPS  float64                 `json:"steadyStateRps"`
	Latency         LatencyStats            `json:"latency"`
	Requests        map[string]LatencyStats `json:"requests,omitempty"`
	Measures        map[string]LatencyStats `json:"measures,omitempty"`
	Pairings        map[string]int64        `json:"pairings,omitempty"`
	Phase           Phase                   `json:"phase"`
	Phases          []PhaseChange           `json:"phases,omitempty"`
	Elapsed         time.Duration           `json:"elapsed"`
	StartTime       time.Time               `json:"startTime"`
	Timestamp       time.Time               `json:"timestamp"`
}

// PhaseChange records when a phase was entered.
type PhaseChange struct {
	Phase     Phase     `json:"phase"`
	Timestamp time.Time `json:"timestamp"`
	Requests  int64     `json:"requests"`
}

// Bucket holds the metrics of one reporting interval.
type Bucket struct {
	Timestamp        time.Time     `json:"timestamp"`
	TotalRequests    int64         `json:"totalRequests"`
	IntervalRequests int64         `json:"intervalRequests"`
	IntervalFailures int64         `json:"intervalFailures"`
	IntervalRPS      float64       `json:"intervalRps"`
	P50              time.Duration `json:"p50"`
	P95              time.Duration `json:"p95"`
	P99              time.Duration `json:"p99"`
	Phase            Phase         `json:"phase"`
}

// CollectorConfig configures a Collector.
type CollectorConfig struct {
	// BucketInterval is the time-series resolution (default 1s).
	BucketInterval time.Duration
	// MaxBuckets bounds the time-series ring (default 3600).
	MaxBuckets int
	// Histogram range in microseconds and precision.
	HistogramMin     int64
	HistogramMax     int64
	HistogramSigFigs int
}

// DefaultCollectorConfig returns one-second buckets for up to an hour and
// histograms from 1µs to 1h with 3 significant figures.
func DefaultCollectorConfig() CollectorConfig {
	return CollectorConfig{
		BucketInterval:   time.Second,
		MaxBuckets:       3600,
		HistogramMin:     1,
		HistogramMax:     3600000000,
		HistogramSigFigs: 3,
	}
}

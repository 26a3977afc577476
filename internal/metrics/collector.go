// Package metrics turns the event stream of a run into latency statistics,
// Prometheus series and OpenTelemetry spans.
package metrics

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/wesleyorama2/rhino/internal/events"
)

// Collector aggregates End events into HDR histograms.
//
// Request events feed the overall histogram and one histogram per request
// name; measure events feed one histogram per tag; workflow events count
// pairings by outcome. A background goroutine seals a time bucket every
// BucketInterval until Stop.
//
// Collector is an events.Sink and is safe for concurrent use.
type Collector struct {
	config CollectorConfig

	mu       sync.Mutex
	overall  *hdrhistogram.Histogram
	requests map[string]*hdrhistogram.Histogram
	measures map[string]*hdrhistogram.Histogram
	pairings map[string]int64

	total   atomic.Int64
	success atomic.Int64
	failed  atomic.Int64

	phaseMu sync.RWMutex
	phase   Phase
	phases  []PhaseChange

	ring  *bucketRing
	start time.Time

	cancel  context.CancelFunc
	stopped sync.WaitGroup
	once    sync.Once
}

// NewCollector creates and starts a collector.
func NewCollector(config CollectorConfig) *Collector {
	if config.BucketInterval <= 0 {
		config.BucketInterval = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())

	c := &Collector{
		config:   config,
		overall:  hdrhistogram.New(config.HistogramMin, config.HistogramMax, config.HistogramSigFigs),
		requests: make(map[string]*hdrhistogram.Histogram),
		measures: make(map[string]*hdrhistogram.Histogram),
		pairings: make(map[string]int64),
		phase:    PhaseInit,
		ring:     newBucketRing(config.MaxBuckets),
		start:    time.Now(),
		cancel:   cancel,
	}

	c.stopped.Add(1)
	go c.tick(ctx)
	return c
}

// Consume implements events.Sink.
func (c *Collector) Consume(e events.Event) {
	if !e.IsEnd() {
		return
	}

	switch e.Kind {
	case events.KindRequest:
		c.recordRequest(e.Scenario, e.Elapsed, !e.Failed)
	case events.KindMeasure:
		c.mu.Lock()
		c.record(c.histogram(c.measures, e.Scenario), e.Elapsed)
		c.mu.Unlock()
	case events.KindWorkflow:
		c.mu.Lock()
		c.pairings[e.Status]++
		c.mu.Unlock()
	}
}

func (c *Collector) recordRequest(name string, d time.Duration, success bool) {
	c.mu.Lock()
	c.record(c.overall, d)
	if name != "" {
		c.record(c.histogram(c.requests, name), d)
	}
	c.mu.Unlock()

	c.total.Add(1)
	if success {
		c.success.Add(1)
	} else {
		c.failed.Add(1)
	}
	c.ring.record(success)
}

// record clamps d into the histogram range. Callers hold c.mu: HDR
// histograms are not safe for concurrent writes.
func (c *Collector) record(h *hdrhistogram.Histogram, d time.Duration) {
	us := d.Microseconds()
	if us < c.config.HistogramMin {
		us = c.config.HistogramMin
	}
	if us > c.config.HistogramMax {
		us = c.config.HistogramMax
	}
	_ = h.RecordValue(us)
}

func (c *Collector) histogram(m map[string]*hdrhistogram.Histogram, name string) *hdrhistogram.Histogram {
	h, ok := m[name]
	if !ok {
		h = hdrhistogram.New(c.config.HistogramMin, c.config.HistogramMax, c.config.HistogramSigFigs)
		m[name] = h
	}
	return h
}

// SetPhase marks a phase transition. Setting the current phase again is a
// no-op.
func (c *Collector) SetPhase(p Phase) {
	c.phaseMu.Lock()
	defer c.phaseMu.Unlock()

	if c.phase == p {
		return
	}
	c.phase = p
	c.phases = append(c.phases, PhaseChange{Phase: p, Timestamp: time.Now(), Requests: c.total.Load()})
}

// Phase returns the current phase.
func (c *Collector) Phase() Phase {
	c.phaseMu.RLock()
	defer c.phaseMu.RUnlock()
	return c.phase
}

func (c *Collector) tick(ctx context.Context) {
	defer c.stopped.Done()

	ticker := time.NewTicker(c.config.BucketInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.seal()
		}
	}
}

func (c *Collector) seal() {
	c.mu.Lock()
	p50 := micros(c.overall.ValueAtQuantile(50))
	p95 := micros(c.overall.ValueAtQuantile(95))
	p99 := micros(c.overall.ValueAtQuantile(99))
	c.mu.Unlock()

	c.ring.close(c.total.Load(), p50, p95, p99, c.Phase())
}

// Stop ends the bucket goroutine and seals a final bucket. It is safe to
// call more than once.
func (c *Collector) Stop() {
	c.once.Do(func() {
		c.cancel()
		c.stopped.Wait()
		c.seal()
	})
}

// TimeSeries returns the sealed buckets oldest first.
func (c *Collector) TimeSeries() []Bucket {
	return c.ring.all()
}

// Snapshot returns the current aggregate view.
func (c *Collector) Snapshot() *Snapshot {
	c.mu.Lock()
	overall := stats(c.overall)
	requests := make(map[string]LatencyStats, len(c.requests))
	for name, h := range c.requests {
		requests[name] = stats(h)
	}
	measures := make(map[string]LatencyStats, len(c.measures))
	for tag, h := range c.measures {
		measures[tag] = stats(h)
	}
	pairings := make(map[string]int64, len(c.pairings))
	for k, v := range c.pairings {
		pairings[k] = v
	}
	c.mu.Unlock()

	c.phaseMu.RLock()
	phase := c.phase
	phases := append([]PhaseChange(nil), c.phases...)
	c.phaseMu.RUnlock()

	total, failed := c.total.Load(), c.failed.Load()
	elapsed := time.Since(c.start)

	var rps, errorRate float64
	if secs := elapsed.Seconds(); secs > 0 {
		rps = float64(total) / secs
	}
	if total > 0 {
		errorRate = float64(failed) / float64(total)
	}

	return &Snapshot{
		TotalRequests:   total,
		SuccessRequests: c.success.Load(),
		FailedRequests:  failed,
		ErrorRate:       errorRate,
		RPS:             rps,
		SteadyStateRPS:  c.ring.rateIn(PhaseSteady),
		Latency:         overall,
		Requests:        requests,
		Measures:        measures,
		Pairings:        pairings,
		Phase:           phase,
		Phases:          phases,
		Elapsed:         elapsed,
		StartTime:       c.start,
		Timestamp:       time.Now(),
	}
}

func stats(h *hdrhistogram.Histogram) LatencyStats {
	return LatencyStats{
		Min:    micros(h.Min()),
		Max:    micros(h.Max()),
		Mean:   time.Duration(h.Mean() * float64(time.Microsecond)),
		StdDev: time.Duration(h.StdDev() * float64(time.Microsecond)),
		P50:    micros(h.ValueAtQuantile(50)),
		P90:    micros(h.ValueAtQuantile(90)),
		P95:    micros(h.ValueAtQuantile(95)),
		P99:    micros(h.ValueAtQuantile(99)),
		Count:  h.TotalCount(),
	}
}

func micros(v int64) time.Duration {
	return time.Duration(v) * time.Microsecond
}

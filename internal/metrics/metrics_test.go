package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/wesleyorama2/rhino/internal/events"
)

func endEvent(kind events.Kind, scenario string, d time.Duration, failed bool, status string) events.Event {
	start := time.Now().Add(-d)
	_, e := events.Pair(events.Event{Kind: kind, Scenario: scenario, ActorID: "a", Failed: failed, Status: status}, start, start.Add(d))
	return e
}

func TestCollector_Snapshot(t *testing.T) {
	c := NewCollector(DefaultCollectorConfig())
	defer c.Stop()

	c.Consume(endEvent(events.KindRequest, "home", 10*time.Millisecond, false, "200"))
	c.Consume(endEvent(events.KindRequest, "home", 30*time.Millisecond, false, "200"))
	c.Consume(endEvent(events.KindRequest, "pay", 20*time.Millisecond, true, "503"))
	c.Consume(endEvent(events.KindMeasure, "checkout", 50*time.Millisecond, false, ""))
	c.Consume(endEvent(events.KindWorkflow, "browse", time.Second, false, events.StatusCompleted))
	c.Consume(events.Event{Kind: events.KindRequest, Type: events.TypeStart})

	snap := c.Snapshot()
	assert.Equal(t, int64(3), snap.TotalRequests)
	assert.Equal(t, int64(2), snap.SuccessRequests)
	assert.Equal(t, int64(1), snap.FailedRequests)
	assert.InDelta(t, 1.0/3.0, snap.ErrorRate, 1e-9)
	assert.Equal(t, int64(3), snap.Latency.Count)
	assert.InDelta(t, float64(30*time.Millisecond), float64(snap.Latency.Max), float64(time.Millisecond))

	require.Contains(t, snap.Requests, "home")
	assert.Equal(t, int64(2), snap.Requests["home"].Count)
	require.Contains(t, snap.Measures, "checkout")
	assert.Equal(t, int64(1), snap.Measures["checkout"].Count)
	assert.Equal(t, int64(1), snap.Pairings[events.StatusCompleted])
}

func TestCollector_Phases(t *testing.T) {
	c := NewCollector(DefaultCollectorConfig())
	defer c.Stop()

	assert.Equal(t, PhaseInit, c.Phase())
	c.SetPhase(PhaseRampUp)
	c.SetPhase(PhaseRampUp)
	c.SetPhase(PhaseSteady)

	snap := c.Snapshot()
	require.Len(t, snap.Phases, 2)
	assert.Equal(t, PhaseRampUp, snap.Phases[0].Phase)
	assert.Equal(t, PhaseSteady, snap.Phase)
}

func TestCollector_TimeSeries(t *testing.T) {
	cfg := DefaultCollectorConfig()
	cfg.BucketInterval = 20 * time.Millisecond
	c := NewCollector(cfg)
	c.SetPhase(PhaseSteady)

	c.Consume(endEvent(events.KindRequest, "home", time.Millisecond, false, "200"))
	time.Sleep(70 * time.Millisecond)
	c.Stop()
	c.Stop()

	series := c.TimeSeries()
	require.NotEmpty(t, series)

	var total int64
	for _, b := range series {
		total += b.IntervalRequests
		assert.Equal(t, PhaseSteady, b.Phase)
	}
	assert.Equal(t, int64(1), total)
}

func TestBucketRing_Wraps(t *testing.T) {
	r := newBucketRing(2)
	for i := 0; i < 3; i++ {
		r.record(true)
		r.close(int64(i+1), 0, 0, 0, PhaseSteady)
	}

	all := r.all()
	require.Len(t, all, 2)
	assert.Equal(t, int64(2), all[0].TotalRequests)
	assert.Equal(t, int64(3), all[1].TotalRequests)
}

func TestPrometheusSink(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := NewPrometheusSink(reg)

	sink.Consume(events.Event{Kind: events.KindWorkflow, Type: events.TypeStart})
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.inflight))

	sink.Consume(endEvent(events.KindRequest, "home", 5*time.Millisecond, false, "200"))
	sink.Consume(endEvent(events.KindRequest, "home", 5*time.Millisecond, false, "200"))
	sink.Consume(endEvent(events.KindWorkflow, "browse", time.Second, false, events.StatusCompleted))
	sink.Dropped(events.Event{})

	assert.Equal(t, 2.0, testutil.ToFloat64(sink.requests.WithLabelValues("home", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.pairings.WithLabelValues(events.StatusCompleted)))
	assert.Equal(t, 0.0, testutil.ToFloat64(sink.inflight))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.dropped))

	n, err := testutil.GatherAndCount(reg, "rhino_request_duration_ms")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestTraceSink(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	sink := NewTraceSink(tp.Tracer("rhino-test"))

	ok := endEvent(events.KindRequest, "home", 40*time.Millisecond, false, "200")
	bad := endEvent(events.KindRequest, "pay", 10*time.Millisecond, true, "503")
	bad.Tag = "checkout"
	sink.Consume(events.Event{Kind: events.KindRequest, Type: events.TypeStart})
	sink.Consume(ok)
	sink.Consume(bad)

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "request home", spans[0].Name())
	assert.True(t, ok.Start.Equal(spans[0].StartTime()), "span must start at the event start")
	assert.True(t, ok.End.Equal(spans[0].EndTime()), "span must end at the event end")
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Contains(t, spans[1].Attributes(), attribute.String(TagKey, "checkout"))
	assert.NotContains(t, spans[0].Attributes(), attribute.String(TagKey, ""))
}

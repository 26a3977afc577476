package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/wesleyorama2/rhino/internal/events"
)

// PrometheusSink exports the event stream as Prometheus series, all
// namespaced "rhino":
//
//	requests_total{scenario,status}       counter
//	request_duration_ms{scenario}         histogram
//	measure_duration_ms{tag}              histogram
//	pairings_total{status}                counter
//	inflight_pairings                     gauge
//	events_dropped_total                  counter
type PrometheusSink struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	measureDuration *prometheus.HistogramVec
	pairings        *prometheus.CounterVec
	inflight        prometheus.Gauge
	dropped         prometheus.Counter
}

// NewPrometheusSink registers the rhino series with reg. A nil reg uses the
// default registerer.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	buckets := []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

	return &PrometheusSink{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rhino",
			Name:      "requests_total",
			Help:      "Requests issued by workflow steps, by scenario and response status",
		}, []string{"scenario", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rhino",
			Name:      "request_duration_ms",
			Help:      "Request latency in milliseconds",
			Buckets:   buckets,
		}, []string{"scenario"}),
		measureDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rhino",
			Name:      "measure_duration_ms",
			Help:      "Duration of measured step groups in milliseconds",
			Buckets:   buckets,
		}, []string{"tag"}),
		pairings: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rhino",
			Name:      "pairings_total",
			Help:      "Finished actor/workflow executions by outcome",
		}, []string{"status"}),
		inflight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "rhino",
			Name:      "inflight_pairings",
			Help:      "Actor/workflow executions currently running",
		}),
		dropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "rhino",
			Name:      "events_dropped_total",
			Help:      "Timing events lost because the event buffer was full",
		}),
	}
}

// Consume implements events.Sink.
func (p *PrometheusSink) Consume(e events.Event) {
	switch e.Kind {
	case events.KindRequest:
		if e.IsEnd() {
			p.requests.WithLabelValues(e.Scenario, e.Status).Inc()
			p.requestDuration.WithLabelValues(e.Scenario).Observe(ms(e))
		}
	case events.KindMeasure:
		if e.IsEnd() {
			p.measureDuration.WithLabelValues(e.Scenario).Observe(ms(e))
		}
	case events.KindWorkflow:
		if e.IsEnd() {
			p.inflight.Dec()
			p.pairings.WithLabelValues(e.Status).Inc()
		} else {
			p.inflight.Inc()
		}
	}
}

// Dropped counts an event lost by the bus. Use it with events.OnDrop.
func (p *PrometheusSink) Dropped(events.Event) {
	p.dropped.Inc()
}

func ms(e events.Event) float64 {
	return float64(e.Elapsed) / 1e6
}

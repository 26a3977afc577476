package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/wesleyorama2/rhino/internal/events"
)

// Span attribute keys.
const (
	RunIDKey    = "rhino.run.id"
	ActorIDKey  = "rhino.actor.id"
	KindKey     = "rhino.event.kind"
	StepKey     = "rhino.step"
	StatusKey   = "rhino.status"
	AttemptKey  = "rhino.attempt"
	ElapsedKey  = "rhino.elapsed_ms"
	ScenarioKey = "rhino.scenario"
	TagKey      = "rhino.measure.tag"
)

// TraceSink turns every End event into a span covering the recorded
// interval. Start events carry no information the End event lacks and are
// ignored.
type TraceSink struct {
	tracer trace.Tracer
}

// NewTraceSink creates a sink writing spans with tracer.
func NewTraceSink(tracer trace.Tracer) *TraceSink {
	return &TraceSink{tracer: tracer}
}

// Consume implements events.Sink.
func (t *TraceSink) Consume(e events.Event) {
	if !e.IsEnd() {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(KindKey, string(e.Kind)),
		attribute.String(ScenarioKey, e.Scenario),
		attribute.String(ActorIDKey, e.ActorID),
		attribute.String(StatusKey, e.Status),
		attribute.Int64(ElapsedKey, e.ElapsedMs()),
	}
	if e.RunID != "" {
		attrs = append(attrs, attribute.String(RunIDKey, e.RunID))
	}
	if e.Step != "" {
		attrs = append(attrs, attribute.String(StepKey, e.Step))
	}
	if e.Tag != "" {
		attrs = append(attrs, attribute.String(TagKey, e.Tag))
	}
	if e.Attempt > 0 {
		attrs = append(attrs, attribute.Int(AttemptKey, e.Attempt))
	}

	_, span := t.tracer.Start(context.Background(), string(e.Kind)+" "+e.Scenario,
		trace.WithTimestamp(e.Start),
		trace.WithAttributes(attrs...),
	)
	if e.Failed {
		span.SetStatus(codes.Error, e.Status)
	}
	span.End(trace.WithTimestamp(e.End))
}

// NewTracerProvider creates a batching provider exporting over OTLP/HTTP to
// endpoint (host:port). An empty endpoint falls back to the OTEL_EXPORTER_*
// environment variables. The provider is installed globally.
func NewTracerProvider(ctx context.Context, serviceName, endpoint string, insecure bool) (*sdktrace.TracerProvider, error) {
	r, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	var opts []otlptracehttp.Option
	if endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(endpoint))
	}
	if insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(r),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}))

	return tp, nil
}

package obs

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// NewTracerProvider builds an SDK tracer provider backed by the stdout
// exporter. Production deployments would swap the exporter for an OTLP
// one; the spec scopes the sink to "tracing/metrics sinks" without
// naming a backend, so stdout keeps the dependency self-contained.
func NewTracerProvider() (*sdktrace.TracerProvider, error) {
	exp, err := stdouttrace.New(stdouttrace.WithoutTimestamps())
	if err != nil {
		return nil, fmt.Errorf("obs: build trace exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp)), nil
}

// NewMeterProvider builds an SDK meter provider backed by the stdout
// exporter, periodically exporting the item-latency histogram.
func NewMeterProvider() (*sdkmetric.MeterProvider, error) {
	exp, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("obs: build metric exporter: %w", err)
	}
	reader := sdkmetric.NewPeriodicReader(exp)
	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)), nil
}

// Recorder is the batch-scoped handle the Pipeline carries through a
// run: one span per item, one stage-latency histogram observation per
// item, and a matching Prometheus counter bump.
type Recorder struct {
	tracer    trace.Tracer
	metrics   *Metrics
	itemSpans metric.Float64Histogram
}

// NewRecorder builds a Recorder from a tracer provider, a meter
// provider, and an already-registered Metrics. Any of tp/mp may be nil,
// in which case tracing/stage-latency recording is a no-op and only the
// Prometheus counters are kept — useful for tests that don't want an
// exporter running.
func NewRecorder(tp trace.TracerProvider, mp metric.MeterProvider, metrics *Metrics) (*Recorder, error) {
	r := &Recorder{metrics: metrics}
	if tp != nil {
		r.tracer = tp.Tracer("github.com/catalogforge/ingestpipe/internal/service")
	}
	if mp != nil {
		hist, err := mp.Meter("github.com/catalogforge/ingestpipe/internal/service").
			Float64Histogram("ingestpipe.item.duration_seconds",
				metric.WithDescription("Per-item processing duration in seconds"))
		if err != nil {
			return nil, fmt.Errorf("obs: build item duration histogram: %w", err)
		}
		r.itemSpans = hist
	}
	return r, nil
}

// StartItem opens a span for one item's processing, named after its
// external id. The caller must call the returned end func exactly once,
// passing the item's terminal status.
func (r *Recorder) StartItem(ctx context.Context, externalID string) (context.Context, func(status string)) {
	if r == nil || r.tracer == nil {
		return ctx, func(string) {}
	}
	spanCtx, span := r.tracer.Start(ctx, "ingestpipe.process_item",
		trace.WithAttributes(attribute.String("external_id", externalID)))
	return spanCtx, func(status string) {
		span.SetAttributes(attribute.String("status", status))
		span.End()
	}
}

// ObserveItem records one item's terminal status: bumps the Prometheus
// counter and (if a meter provider was supplied) the stage-latency
// histogram.
func (r *Recorder) ObserveItem(ctx context.Context, status string, seconds float64) {
	if r == nil {
		return
	}
	if r.metrics != nil {
		r.metrics.ItemsTotal.WithLabelValues(status).Inc()
	}
	if r.itemSpans != nil {
		r.itemSpans.Record(ctx, seconds, metric.WithAttributes(attribute.String("status", status)))
	}
}

// ObserveBatch bumps the batch counter and, on a non-nil err, the
// replay-write-error counter.
func (r *Recorder) ObserveBatch(replayErr error) {
	if r == nil || r.metrics == nil {
		return
	}
	r.metrics.BatchesTotal.Inc()
	if replayErr != nil {
		r.metrics.ReplayWriteErr.Inc()
	}
}

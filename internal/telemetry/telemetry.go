// Package telemetry wires OpenTelemetry tracing and metrics for the
// orchestrator and pipelines: a span per sync cycle, counters for
// outbox depth, push/pull row counts, and conflict outcomes — the same
// instrumentation surface the teacher exposes over its own sync
// daemon loop.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Instruments bundles the counters the orchestrator and pipelines use.
// Built once at process startup and threaded through via the caller's
// own struct fields (no global state), matching the teacher's own
// per-daemon-instance OTel wiring rather than package-level globals.
type Instruments struct {
	Tracer trace.Tracer

	OutboxDepth      metric.Int64UpDownCounter
	PushedRows       metric.Int64Counter
	PulledRows       metric.Int64Counter
	ConflictOutcomes metric.Int64Counter
}

// Setup builds a tracer/meter provider. When otlpEndpoint is empty, it
// exports to stdout (dev/local, the teacher's own default); otherwise
// it exports metrics via OTLP/HTTP to otlpEndpoint for production.
func Setup(ctx context.Context, serviceName, otlpEndpoint string) (*Instruments, func(context.Context) error, error) {
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
	))
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: resource: %w", err)
	}

	traceExporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	var metricReader sdkmetric.Reader
	if otlpEndpoint == "" {
		metricExporter, err := stdoutmetric.New()
		if err != nil {
			return nil, nil, fmt.Errorf("telemetry: metric exporter: %w", err)
		}
		metricReader = sdkmetric.NewPeriodicReader(metricExporter)
	} else {
		metricExporter, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(otlpEndpoint))
		if err != nil {
			return nil, nil, fmt.Errorf("telemetry: otlp metric exporter: %w", err)
		}
		metricReader = sdkmetric.NewPeriodicReader(metricExporter)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(metricReader),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	meter := mp.Meter(serviceName)
	outboxDepth, err := meter.Int64UpDownCounter("sync.outbox.depth")
	if err != nil {
		return nil, nil, err
	}
	pushedRows, err := meter.Int64Counter("sync.push.rows")
	if err != nil {
		return nil, nil, err
	}
	pulledRows, err := meter.Int64Counter("sync.pull.rows")
	if err != nil {
		return nil, nil, err
	}
	conflictOutcomes, err := meter.Int64Counter("sync.resolver.outcomes")
	if err != nil {
		return nil, nil, err
	}

	inst := &Instruments{
		Tracer:           tp.Tracer(serviceName),
		OutboxDepth:      outboxDepth,
		PushedRows:       pushedRows,
		PulledRows:       pulledRows,
		ConflictOutcomes: conflictOutcomes,
	}

	shutdown := func(ctx context.Context) error {
		if err := tp.Shutdown(ctx); err != nil {
			return err
		}
		return mp.Shutdown(ctx)
	}

	return inst, shutdown, nil
}

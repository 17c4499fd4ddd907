// Package telemetry wires up the request-tracing and process-metrics side of
// observability: an OTel TracerProvider/MeterProvider pair, defaulting to the
// stdout exporters so helperd needs zero external collectors to run.
//
// This is deliberately independent of the in-memory Metrics struct in
// internal/rpc: that struct remains the source of truth for the health RPC
// reply; OTel is the export path for anyone who does have a collector.
package telemetry

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "helperd"

// Providers bundles the tracer/meter the dispatcher and health surface use.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter

	RequestCounter  metric.Int64Counter
	ErrorCounter    metric.Int64Counter
	LatencyRecorder metric.Float64Histogram
}

// Setup installs stdout-exporter-backed trace and metric providers as the
// global OTel providers and returns the handles helperd needs on the
// request-dispatch hot path.
func Setup(ctx context.Context) (*Providers, error) {
	traceExporter, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr), stdouttrace.WithoutTimestamps())
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExporter))
	otel.SetTracerProvider(tp)

	metricExporter, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stderr))
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)))
	otel.SetMeterProvider(mp)

	tracer := tp.Tracer(instrumentationName)
	meter := mp.Meter(instrumentationName)

	reqCounter, err := meter.Int64Counter("helperd.requests", metric.WithDescription("dispatched requests by module.function"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating request counter: %w", err)
	}
	errCounter, err := meter.Int64Counter("helperd.errors", metric.WithDescription("dispatched requests that failed, by error_kind"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating error counter: %w", err)
	}
	latency, err := meter.Float64Histogram("helperd.latency_ms", metric.WithDescription("dispatch latency in milliseconds"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating latency histogram: %w", err)
	}

	return &Providers{
		TracerProvider:  tp,
		MeterProvider:   mp,
		Tracer:          tracer,
		Meter:           meter,
		RequestCounter:  reqCounter,
		ErrorCounter:    errCounter,
		LatencyRecorder: latency,
	}, nil
}

// Shutdown flushes and stops both providers; called once during daemon
// shutdown after in-flight workers have drained.
func (p *Providers) Shutdown(ctx context.Context) {
	if p == nil {
		return
	}
	if p.TracerProvider != nil {
		if err := p.TracerProvider.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "[%s] telemetry: tracer shutdown: %v\n", nowStamp(), err)
		}
	}
	if p.MeterProvider != nil {
		if err := p.MeterProvider.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "[%s] telemetry: meter shutdown: %v\n", nowStamp(), err)
		}
	}
}

func nowStamp() string {
	return time.Now().Format("2006-01-02T15:04:05.000Z07:00")
}

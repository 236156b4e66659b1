// Package telemetry wires OpenTelemetry tracing and metrics.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/clawsync/clawsync/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/clawsync/clawsync"

// ShutdownFunc flushes and stops the installed providers.
type ShutdownFunc func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// Init installs global providers for the configured exporter. "none" keeps
// the otel no-op globals. w receives stdout exporter output; nil means stdout.
func Init(cfg config.TelemetryConfig, version string, w io.Writer) (ShutdownFunc, error) {
	exporter := strings.ToLower(strings.TrimSpace(cfg.Exporter))
	switch exporter {
	case "", "none":
		return noopShutdown, nil
	case "stdout":
	default:
		return nil, fmt.Errorf("unknown telemetry exporter: %s", cfg.Exporter)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = config.DefaultTelemetryServiceName
	}
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	traceOpts := []stdouttrace.Option{}
	metricOpts := []stdoutmetric.Option{}
	if w != nil {
		traceOpts = append(traceOpts, stdouttrace.WithWriter(w))
		metricOpts = append(metricOpts, stdoutmetric.WithWriter(w))
	}

	traceExporter, err := stdouttrace.New(traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter, sdktrace.WithBatchTimeout(time.Second)),
		sdktrace.WithResource(res),
	)

	metricExporter, err := stdoutmetric.New(metricOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(time.Minute))),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

var (
	instrumentsOnce sync.Once
	invocations     metric.Int64Counter
	durations       metric.Float64Histogram
)

func instruments() {
	instrumentsOnce.Do(func() {
		meter := otel.Meter(instrumentationName)
		invocations, _ = meter.Int64Counter("clawsync.tool.invocations",
			metric.WithDescription("Tool invocations by source and result"))
		durations, _ = meter.Float64Histogram("clawsync.tool.duration",
			metric.WithDescription("Tool invocation duration"),
			metric.WithUnit("ms"))
	})
}

// StartInvocation opens a span around one tool invocation.
func StartInvocation(ctx context.Context, toolName, source string) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, "tool.invoke",
		trace.WithAttributes(
			attribute.String("tool.name", toolName),
			attribute.String("tool.source", source),
		),
	)
}

// RecordInvocation counts one concluded invocation. result is passed,
// failed or blocked.
func RecordInvocation(ctx context.Context, source, result string, duration time.Duration) {
	instruments()
	attrs := metric.WithAttributes(
		attribute.String("tool.source", source),
		attribute.String("result", result),
	)
	if invocations != nil {
		invocations.Add(ctx, 1, attrs)
	}
	if durations != nil {
		durations.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
}

// Package telemetry bootstraps an OTLP/HTTP trace exporter (spec.md §11
// DOMAIN STACK), off by default and gated entirely by
// config.TelemetryConfig.Enabled. Its only span today wraps the
// fsnotify-triggered markdown sync in cmd/serve.go; retention scheduler runs
// are not traced.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/nextlevelbuilder/halo/internal/config"
)

// Shutdown flushes and stops the tracer provider. Safe to call on a nil
// receiver (from Init's disabled-telemetry no-op path).
type Shutdown func(ctx context.Context) error

var noopShutdown Shutdown = func(ctx context.Context) error { return nil }

// Init installs a global tracer provider exporting spans over OTLP/HTTP
// when cfg.Enabled, otherwise leaves the global no-op tracer provider in
// place so Tracer() calls elsewhere are always safe.
func Init(ctx context.Context, cfg config.TelemetryConfig) (Shutdown, error) {
	if !cfg.Enabled {
		return noopShutdown, nil
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "halo"
	}

	opts := []otlptracehttp.Option{}
	if cfg.OTLPEndpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpointURL(cfg.OTLPEndpoint))
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: new otlp exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// Tracer returns the named tracer off the currently installed (possibly
// no-op) global tracer provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

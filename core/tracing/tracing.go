// Package tracing installs the OpenTelemetry tracer provider.
//
// Spans are exported over OTLP/HTTP when an endpoint is configured. Without one
// the global no-op provider stays in place and instrumented code pays nothing.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config holds configuration for trace export.
type Config struct {
	// Endpoint is the OTLP/HTTP collector host:port. Empty disables tracing.
	Endpoint string `mapstructure:"endpoint" default:""`
	// Insecure sends spans over plain HTTP.
	Insecure bool `mapstructure:"insecure" default:"true"`
	// ServiceName is reported as service.name.
	ServiceName string `mapstructure:"service_name" default:"holdings-sync"`
	// SampleRatio is the fraction of root traces sampled.
	SampleRatio float64 `mapstructure:"sample_ratio" default:"1"`
}

// ShutdownFunc flushes and stops the provider.
type ShutdownFunc func(context.Context) error

// NewProvider builds a tracer provider around an exporter.
func NewProvider(cfg Config, exporter sdktrace.SpanExporter) *sdktrace.TracerProvider {
	name := cfg.ServiceName
	if name == "" {
		name = "holdings-sync"
	}
	ratio := cfg.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", name))),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)
}

// Setup installs the global tracer provider. The returned function must be called on shutdown.
func Setup(ctx context.Context, cfg Config) (ShutdownFunc, error) {
	if cfg.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := NewProvider(cfg, exporter)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

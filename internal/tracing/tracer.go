// Package tracing sets up the OpenTelemetry provider that the composition
// engine and the cache create their spans with.
package tracing

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const defaultServiceName = "partgrid"

// Config configures the tracing subsystem.
type Config struct {
	// Exporter selects the export backend: "none" or "stdout".
	Exporter string
	// Output receives stdout exporter spans. Defaults to os.Stdout.
	Output io.Writer
	// SampleRate is the fraction of traces sampled. Defaults to 1.0.
	SampleRate float64
	// ServiceName identifies this process in traces.
	ServiceName string
}

// DefaultConfig returns tracing switched off.
func DefaultConfig() Config {
	return Config{
		Exporter:    "none",
		SampleRate:  1.0,
		ServiceName: defaultServiceName,
	}
}

// Provider wraps the tracer provider and shuts it down cleanly.
type Provider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewProvider creates the provider for cfg and installs it globally. The
// "none" exporter yields a no-op tracer and leaves the global provider
// alone.
func NewProvider(cfg Config) (*Provider, error) {
	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case "none", "":
		return &Provider{tracer: noop.NewTracerProvider().Tracer("noop")}, nil
	case "stdout":
		out := cfg.Output
		if out == nil {
			out = os.Stdout
		}
		var err error
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(out), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", cfg.Exporter)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = defaultServiceName
	}
	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 1.0
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRate))),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(provider)

	return &Provider{provider: provider, tracer: provider.Tracer(serviceName)}, nil
}

// Tracer returns the configured tracer. It is a no-op tracer when tracing
// is disabled.
func (p *Provider) Tracer() trace.Tracer { return p.tracer }

// Enabled reports whether spans are exported.
func (p *Provider) Enabled() bool { return p.provider != nil }

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.provider != nil {
		return p.provider.Shutdown(ctx)
	}
	return nil
}

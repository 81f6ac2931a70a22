// Package tracing wires OpenTelemetry spans around runs and tasks.
//
// Setup installs a global tracer provider backed by the stdout exporter.
// Without Setup the otel default no-op provider is in effect, so Start and
// End are always safe to call.
package tracing

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/aristath/etlrun/internal/config"
)

const instrumentation = "github.com/aristath/etlrun"

// Provider owns an installed tracer provider.
type Provider struct {
	tp     *sdktrace.TracerProvider
	closer io.Closer
}

// Setup installs tracing according to cfg. A disabled config returns a
// Provider whose Shutdown is a no-op.
func Setup(cfg config.TracingConfig, version string) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{}, nil
	}

	var (
		w      io.Writer = os.Stdout
		closer io.Closer
	)
	if cfg.Output != "" && cfg.Output != "stdout" {
		f, err := os.Create(cfg.Output)
		if err != nil {
			return nil, fmt.Errorf("creating trace output: %w", err)
		}
		w, closer = f, f
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, fmt.Errorf("creating stdout exporter: %w", err)
	}

	p, err := Install(cfg.ServiceName, version, exporter)
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, err
	}
	p.closer = closer
	return p, nil
}

// Install registers exporter behind a new global tracer provider.
func Install(serviceName, version string, exporter sdktrace.SpanExporter) (*Provider, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("building trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return &Provider{tp: tp}, nil
}

// Shutdown flushes pending spans and closes the output file.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	err := p.tp.Shutdown(ctx)
	if p.closer != nil {
		if cerr := p.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Start opens an internal span with string attributes.
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(instrumentation).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// End records err (or OK) on span and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

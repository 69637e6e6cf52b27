// Package tracing wraps go.opentelemetry.io/otel so every component
// starts a tracer the same way, whether or not a collector endpoint is
// configured: an optional collector URL, empty meaning tracing is
// skipped entirely rather than standing up a broken exporter, plus a
// helper for attaching frame metadata fields to the active span.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/multiverse-hardware-labs/nexus-pipeline/messages"
)

// Options mirrors TracerOptions: a collector endpoint, or empty to
// disable tracing entirely.
type Options struct {
	OtlpEndpoint string
	ServiceName  string
}

// Engine owns the process-wide TracerProvider and the named Tracer each
// component pulls spans from.
type Engine struct {
	provider *sdktrace.TracerProvider // nil when tracing is disabled
	tracer   trace.Tracer
}

// New builds an Engine. With OtlpEndpoint empty, every span created
// through it is a no-op, since otel.Tracer falls back to the global
// no-op provider.
func New(ctx context.Context, opts Options) (*Engine, error) {
	if opts.OtlpEndpoint == "" {
		return &Engine{tracer: otel.Tracer(opts.ServiceName)}, nil
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(opts.OtlpEndpoint), otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("tracing: building otlp exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(opts.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("tracing: building resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	return &Engine{provider: provider, tracer: provider.Tracer(opts.ServiceName)}, nil
}

// Shutdown flushes and stops the exporter; a no-op when tracing was
// disabled.
func (e *Engine) Shutdown(ctx context.Context) error {
	if e.provider == nil {
		return nil
	}
	return e.provider.Shutdown(ctx)
}

// StartSpan begins a span named name under ctx using this engine's
// tracer.
func (e *Engine) StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, name)
}

// RecordFrameMetadata attaches a frame's metadata fields to span.
func RecordFrameMetadata(span trace.Span, metadata messages.FrameMetadata) {
	span.SetAttributes(
		attribute.String("metadata_timestamp", metadata.Timestamp.Format("2006-01-02T15:04:05.999999999Z07:00")),
		attribute.Int64("metadata_frame_number", int64(metadata.FrameNumber)),
		attribute.Int64("metadata_period_number", int64(metadata.PeriodNumber)),
		attribute.Int64("metadata_veto_flags", int64(metadata.VetoFlags)),
		attribute.Int64("metadata_protons_per_pulse", int64(metadata.ProtonsPerPulse)),
		attribute.Bool("metadata_running", metadata.Running),
	)
}

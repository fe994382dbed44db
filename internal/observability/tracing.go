// Package observability provides the OpenTelemetry tracing wrapper used
// across the council process: one span per per-model call, tagged with
// the model and stage, so a trace shows the full fan-out/fan-in shape of
// a turn.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Tracer wraps an OpenTelemetry trace.Tracer. The SDK TracerProvider is
// always constructed (so spans carry real context/IDs and survive
// propagation across goroutines); no exporter is registered by default,
// since which backend to ship to is an operator choice outside this
// scaffolding.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// TraceConfig names the service for the resource attached to every span.
type TraceConfig struct {
	ServiceName    string
	ServiceVersion string
}

// NewTracer builds a Tracer backed by a real SDK TracerProvider and
// returns a shutdown func that must run before process exit.
func NewTracer(config TraceConfig) (*Tracer, func(context.Context) error) {
	if config.ServiceName == "" {
		config.ServiceName = "council"
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
		),
	)
	if err != nil {
		res = resource.Default()
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(provider)

	return &Tracer{
			provider: provider,
			tracer:   provider.Tracer(config.ServiceName),
		}, func(ctx context.Context) error {
			return provider.Shutdown(ctx)
		}
}

// NoopTracer returns a Tracer backed by OpenTelemetry's built-in no-op
// implementation: spans are still valid trace.Span values safe to call
// End/RecordError on, but no SDK provider is constructed and nothing is
// ever sampled or recorded. Used where a caller has no live Tracer to
// inject (e.g. a test) but the callee still needs a non-nil one.
func NoopTracer() *Tracer {
	return &Tracer{tracer: noop.NewTracerProvider().Tracer("council")}
}

// Start opens a span named name as a child of any span already in ctx.
func (t *Tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	opts := []trace.SpanStartOption{}
	if len(attrs) > 0 {
		opts = append(opts, trace.WithAttributes(attrs...))
	}
	return t.tracer.Start(ctx, name, opts...)
}

// RecordError records err on span and marks the span as failed, unless
// err is nil.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// TraceModelCall starts a span for one C2 call within a deliberation
// stage, tagged with the model id and stage name.
func (t *Tracer) TraceModelCall(ctx context.Context, stage, modelID string) (context.Context, trace.Span) {
	return t.Start(ctx, "council.model_call",
		attribute.String("council.stage", stage),
		attribute.String("council.model_id", modelID),
	)
}

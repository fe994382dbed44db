package observability

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

func TestNewTracerReturnsUsableTracerAndShutdown(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{ServiceName: "council-test", ServiceVersion: "0.0.0"})
	if tracer == nil {
		t.Fatal("NewTracer returned a nil tracer")
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			t.Fatalf("shutdown: %v", err)
		}
	}()

	ctx, span := tracer.TraceModelCall(context.Background(), "first_opinions", "gpt-5")
	if !oteltrace.SpanContextFromContext(ctx).IsValid() {
		t.Fatal("expected a valid span context after Start")
	}
	span.End()
}

func TestRecordErrorSetsErrorStatus(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{ServiceName: "council-test"})
	defer shutdown(context.Background())

	_, span := tracer.Start(context.Background(), "op")
	tracer.RecordError(span, errors.New("boom"))
	span.End()
	if ro, ok := span.(sdktrace.ReadOnlySpan); !ok || ro.Status().Code != codes.Error {
		t.Fatal("expected RecordError(err) to set an Error status on the span")
	}

	_, span2 := tracer.Start(context.Background(), "op2")
	tracer.RecordError(span2, nil)
	span2.End()
	if ro, ok := span2.(sdktrace.ReadOnlySpan); !ok || ro.Status().Code == codes.Error {
		t.Fatal("expected RecordError(nil) to leave the span status unset")
	}
}

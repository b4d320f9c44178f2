package tracing

import (
	"context"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTracingResource(t *testing.T) {
	resource := tracingResource("test-component")
	if resource == nil {
		t.Error("Could not initialize tracing resource. Check the log!")
	}
}

func TestLogRecoverToReturn(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	ctx, span := provider.Tracer("test").Start(context.Background(), "panicky")

	func() {
		defer LogRecoverToReturn(ctx, "TestLogRecoverToReturn")
		panic("boom")
	}()

	span.End()

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %v", len(spans))
	}

	var loc string
	for _, attr := range spans[0].Attributes() {
		if attr.Key == "cloudmeta.panic.loc" {
			loc = attr.Value.AsString()
		}
	}

	if loc != "TestLogRecoverToReturn" {
		t.Errorf("expected panic location on the span, got %q", loc)
	}

	if spans[0].Status().Description != "unhandled panic in TestLogRecoverToReturn: boom" {
		t.Errorf("unexpected span status %q", spans[0].Status().Description)
	}
}

func TestLogRecoverToReturnWithoutPanic(t *testing.T) {
	ran := false
	func() {
		defer LogRecoverToReturn(context.Background(), "no panic")
		ran = true
	}()

	if !ran {
		t.Error("expected function to run")
	}
}

package telemetry

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = tp.Shutdown(context.Background())
	})
	return recorder
}

func TestSpanHelpers(t *testing.T) {
	recorder := withRecorder(t)

	ctx, span := StartSpan(context.Background(), "OrderService.CreateOrder")
	if TraceID(ctx) == "" || SpanID(ctx) == "" {
		t.Fatal("expected trace and span ids in context")
	}
	AddSpanAttributes(span, attribute.Int64("order.id", 42))
	AddSpanEvent(span, "stock.decremented", attribute.Int("units", 3))
	SetSpanSuccess(span)
	span.End()

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	got := spans[0]
	if got.Name() != "OrderService.CreateOrder" {
		t.Errorf("unexpected span name %s", got.Name())
	}
	if got.Status().Code != codes.Ok {
		t.Errorf("expected ok status, got %v", got.Status().Code)
	}
	if len(got.Attributes()) != 1 || got.Attributes()[0].Key != "order.id" {
		t.Errorf("unexpected attributes %v", got.Attributes())
	}
	if len(got.Events()) != 1 || got.Events()[0].Name != "stock.decremented" {
		t.Errorf("unexpected events %v", got.Events())
	}
}

func TestRecordSpanError(t *testing.T) {
	recorder := withRecorder(t)

	_, span := StartSpan(context.Background(), "OrderService.UpdateOrder")
	RecordSpanError(span, errors.New("boom"))
	RecordSpanError(span, nil)
	span.End()

	got := recorder.Ended()[0]
	if got.Status().Code != codes.Error || got.Status().Description != "boom" {
		t.Errorf("expected error status, got %+v", got.Status())
	}
	if len(got.Events()) != 1 {
		t.Errorf("expected one exception event, got %d", len(got.Events()))
	}
}

func TestTraceIDWithoutSpan(t *testing.T) {
	if TraceID(context.Background()) != "" || SpanID(context.Background()) != "" {
		t.Error("expected empty ids without a span")
	}
}

func TestEndOutcome(t *testing.T) {
	rejected := errors.New("insufficient stock")
	expected := func(err error) (string, bool) {
		if errors.Is(err, rejected) {
			return "cart.rejected", true
		}
		return "", false
	}

	tests := []struct {
		name      string
		err       error
		wantCode  codes.Code
		wantEvent string
	}{
		{"success", nil, codes.Ok, ""},
		{"expected error", rejected, codes.Unset, "cart.rejected"},
		{"unexpected error", errors.New("connection reset"), codes.Error, "exception"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := withRecorder(t)

			_, span := StartSpan(context.Background(), "op")
			EndOutcome(span, tt.err, expected)
			span.End()

			got := recorder.Ended()[0]
			if got.Status().Code != tt.wantCode {
				t.Errorf("expected status %v, got %v", tt.wantCode, got.Status().Code)
			}
			if tt.wantEvent == "" {
				if len(got.Events()) != 0 {
					t.Errorf("expected no events, got %v", got.Events())
				}
				return
			}
			if len(got.Events()) != 1 || got.Events()[0].Name != tt.wantEvent {
				t.Errorf("expected %s event, got %v", tt.wantEvent, got.Events())
			}
		})
	}
}

func TestInject(t *testing.T) {
	previous := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(previous) })
	withRecorder(t)

	ctx, span := StartSpan(context.Background(), "publish")
	defer span.End()

	carrier := propagation.MapCarrier{}
	Inject(ctx, carrier)

	if got := carrier.Get("traceparent"); got == "" || !strings.Contains(got, TraceID(ctx)) {
		t.Errorf("expected traceparent carrying %s, got %q", TraceID(ctx), got)
	}
}

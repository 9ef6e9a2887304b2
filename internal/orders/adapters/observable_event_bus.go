package adapters

import (
	"context"
	"time"

	"github.com/dejobratic/blogcommerce/internal/kafka"
	"github.com/dejobratic/blogcommerce/internal/orders/domain"
	"github.com/dejobratic/blogcommerce/internal/orders/ports"
	"github.com/dejobratic/blogcommerce/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type ObservableEventBus struct {
	bus     ports.EventBus
	metrics *kafka.Metrics
}

func NewObservableEventBus(bus ports.EventBus, metrics *kafka.Metrics) *ObservableEventBus {
	return &ObservableEventBus{
		bus:     bus,
		metrics: metrics,
	}
}

func (e *ObservableEventBus) PublishOrderCreated(ctx context.Context, order domain.Order) error {
	return e.observe(ctx, "EventBus.PublishOrderCreated", kafka.EventOrderCreated, order,
		func(ctx context.Context) error { return e.bus.PublishOrderCreated(ctx, order) },
	)
}

func (e *ObservableEventBus) PublishOrderStatusChanged(ctx context.Context, order domain.Order, previous domain.OrderStatus) error {
	return e.observe(ctx, "EventBus.PublishOrderStatusChanged", kafka.EventOrderStatusChanged, order,
		func(ctx context.Context) error { return e.bus.PublishOrderStatusChanged(ctx, order, previous) },
		attribute.String("order.previous_status", string(previous)),
	)
}

func (e *ObservableEventBus) PublishOrderCancelled(ctx context.Context, order domain.Order, restockedUnits int) error {
	return e.observe(ctx, "EventBus.PublishOrderCancelled", kafka.EventOrderCancelled, order,
		func(ctx context.Context) error { return e.bus.PublishOrderCancelled(ctx, order, restockedUnits) },
		attribute.Int("order.restocked_units", restockedUnits),
	)
}

func (e *ObservableEventBus) observe(
	ctx context.Context,
	spanName, eventType string,
	order domain.Order,
	publish func(ctx context.Context) error,
	extra ...attribute.KeyValue,
) error {
	ctx, span := telemetry.StartSpan(ctx, spanName, trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()

	attrs := append([]attribute.KeyValue{
		attribute.Int64("order.id", order.ID),
		attribute.String("order.number", order.OrderNumber),
		attribute.String("event.type", eventType),
	}, extra...)
	telemetry.AddSpanAttributes(span, attrs...)

	start := time.Now()
	err := publish(ctx)
	duration := time.Since(start).Seconds()

	e.metrics.RecordPublish(ctx, eventType, duration, err == nil)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return err
	}

	telemetry.SetSpanSuccess(span)
	return nil
}

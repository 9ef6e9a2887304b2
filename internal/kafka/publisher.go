package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dejobratic/blogcommerce/internal/orders/domain"
	"github.com/dejobratic/blogcommerce/internal/telemetry"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/propagation"
)

// Producer is satisfied by *kafka.Writer.
type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewWriter builds a synchronous writer for topic that waits for all in-sync replicas.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
}

// Publisher writes order events keyed by order number, so every event for an order
// lands on the same partition in commit order.
type Publisher struct {
	producer Producer
	now      func() time.Time
}

func NewPublisher(producer Producer) *Publisher {
	return &Publisher{producer: producer, now: time.Now}
}

func (p *Publisher) PublishOrderCreated(ctx context.Context, order domain.Order) error {
	return p.publish(ctx, newEvent(EventOrderCreated, order, p.now()))
}

func (p *Publisher) PublishOrderStatusChanged(ctx context.Context, order domain.Order, previous domain.OrderStatus) error {
	event := newEvent(EventOrderStatusChanged, order, p.now())
	event.PreviousStatus = string(previous)
	return p.publish(ctx, event)
}

func (p *Publisher) PublishOrderCancelled(ctx context.Context, order domain.Order, restockedUnits int) error {
	event := newEvent(EventOrderCancelled, order, p.now())
	event.RestockedUnits = &restockedUnits
	return p.publish(ctx, event)
}

func (p *Publisher) publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.Type, err)
	}

	headers := []kafka.Header{{Key: "event_type", Value: []byte(event.Type)}}
	headers = injectTraceHeaders(ctx, headers)

	msg := kafka.Message{
		Key:     []byte(event.Order.OrderNumber),
		Value:   payload,
		Headers: headers,
		Time:    event.OccurredAt,
	}
	if err := p.producer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s event: %w", event.Type, err)
	}
	return nil
}

func injectTraceHeaders(ctx context.Context, headers []kafka.Header) []kafka.Header {
	carrier := propagation.MapCarrier{}
	telemetry.Inject(ctx, carrier)

	for k, v := range carrier {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return headers
}

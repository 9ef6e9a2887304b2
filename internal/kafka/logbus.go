package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/dejobratic/blogcommerce/internal/orders/domain"
)

// LogEventBus builds the same envelopes as Publisher and writes them to the log
// instead of a broker. It stands in when no brokers are configured.
type LogEventBus struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewLogEventBus(logger *slog.Logger) *LogEventBus {
	return &LogEventBus{logger: logger, now: time.Now}
}

func (b *LogEventBus) PublishOrderCreated(ctx context.Context, order domain.Order) error {
	b.log(ctx, newEvent(EventOrderCreated, order, b.now()))
	return nil
}

func (b *LogEventBus) PublishOrderStatusChanged(ctx context.Context, order domain.Order, previous domain.OrderStatus) error {
	event := newEvent(EventOrderStatusChanged, order, b.now())
	event.PreviousStatus = string(previous)
	b.log(ctx, event)
	return nil
}

func (b *LogEventBus) PublishOrderCancelled(ctx context.Context, order domain.Order, restockedUnits int) error {
	event := newEvent(EventOrderCancelled, order, b.now())
	event.RestockedUnits = &restockedUnits
	b.log(ctx, event)
	return nil
}

func (b *LogEventBus) log(ctx context.Context, event Event) {
	attrs := []slog.Attr{
		slog.String("event_id", event.ID),
		slog.String("event_type", event.Type),
		slog.Int64("order_id", event.Order.ID),
		slog.String("order_number", event.Order.OrderNumber),
		slog.String("status", event.Order.Status),
	}
	if event.PreviousStatus != "" {
		attrs = append(attrs, slog.String("previous_status", event.PreviousStatus))
	}
	if event.RestockedUnits != nil {
		attrs = append(attrs, slog.Int("restocked_units", *event.RestockedUnits))
	}
	b.logger.LogAttrs(ctx, slog.LevelDebug, "order event not published", attrs...)
}

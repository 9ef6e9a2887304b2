package commands

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dejobratic/blogcommerce/internal/orders/domain"
	"github.com/dejobratic/blogcommerce/internal/orders/metrics"
	"github.com/dejobratic/blogcommerce/internal/orders/ports"
	"github.com/dejobratic/blogcommerce/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// UpdateApplier is satisfied by UpdateOrderCommandHandler.
type UpdateApplier interface {
	Apply(ctx context.Context, cmd UpdateOrderCommand) (*UpdateOrderResult, error)
}

type ObservableUpdateHandler struct {
	handler UpdateApplier
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewObservableUpdateHandler(handler UpdateApplier, logger *slog.Logger, metrics *metrics.Metrics) *ObservableUpdateHandler {
	return &ObservableUpdateHandler{
		handler: handler,
		logger:  logger,
		metrics: metrics,
	}
}

func (o *ObservableUpdateHandler) Handle(ctx context.Context, cmd UpdateOrderCommand) (*domain.Order, error) {
	ctx, span := telemetry.StartSpan(ctx, "UpdateOrderCommand.Handle")
	defer span.End()

	attrs := []attribute.KeyValue{attribute.Int64("order.id", cmd.OrderID)}
	if cmd.Status != nil {
		attrs = append(attrs, attribute.String("order.requested_status", string(*cmd.Status)))
	}
	telemetry.AddSpanAttributes(span, attrs...)

	result, err := o.handler.Apply(ctx, cmd)
	if err != nil {
		telemetry.EndOutcome(span, err, rejectedUpdate)
		o.logger.WarnContext(ctx, "failed to update order", "order_id", cmd.OrderID, "error", err)
		return nil, err
	}

	order := result.Order
	if order.Status != result.PreviousStatus {
		o.logger.InfoContext(ctx, "order status changed",
			"order_id", order.ID,
			"from", result.PreviousStatus,
			"to", order.Status,
		)
		if order.IsCancelled() {
			o.metrics.RecordOrderCancelled(ctx, result.RestockedUnits)
			telemetry.AddSpanEvent(span, "order.restocked", attribute.Int("units", result.RestockedUnits))
		}
	}

	telemetry.AddSpanAttributes(span, attribute.String("order.status", string(order.Status)))
	telemetry.SetSpanSuccess(span)
	return order, nil
}

func rejectedUpdate(err error) (string, bool) {
	switch {
	case domain.IsValidationError(err):
		return "update.rejected", true
	case errors.Is(err, ports.ErrNotFound):
		return "order.not_found", true
	default:
		return "", false
	}
}

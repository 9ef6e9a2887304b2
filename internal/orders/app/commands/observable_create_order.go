package commands

import (
	"context"
	"log/slog"
	"time"

	"github.com/dejobratic/blogcommerce/internal/orders/domain"
	"github.com/dejobratic/blogcommerce/internal/orders/metrics"
	"github.com/dejobratic/blogcommerce/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

type ObservableCommandHandler struct {
	handler CommandHandler
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewObservableCommandHandler(handler CommandHandler, logger *slog.Logger, metrics *metrics.Metrics) *ObservableCommandHandler {
	return &ObservableCommandHandler{
		handler: handler,
		logger:  logger,
		metrics: metrics,
	}
}

func (o *ObservableCommandHandler) Handle(ctx context.Context, cmd CreateOrderCommand) (*domain.Order, error) {
	ctx, span := telemetry.StartSpan(ctx, "CreateOrderCommand.Handle")
	defer span.End()

	start := time.Now()
	outcome := metrics.OutcomeFailed
	defer func() {
		o.metrics.RecordOrderCreationDuration(ctx, time.Since(start).Seconds())
		o.metrics.RecordOrderCreated(ctx, outcome)
	}()

	telemetry.AddSpanAttributes(span,
		attribute.Int("cart.lines", len(cmd.Items)),
		attribute.Bool("cart.authenticated", cmd.UserID != nil),
	)

	o.logger.InfoContext(ctx, "creating order",
		"customer_email", cmd.CustomerEmail,
		"lines", len(cmd.Items),
	)

	order, err := o.handler.Handle(ctx, cmd)
	if domain.IsValidationError(err) {
		outcome = metrics.OutcomeRejected
		telemetry.EndOutcome(span, err, func(error) (string, bool) { return "order.rejected", true })
		o.logger.InfoContext(ctx, "order rejected", "reason", err.Error(), "customer_email", cmd.CustomerEmail)
		return nil, err
	}
	if err != nil {
		telemetry.RecordSpanError(span, err)
		o.logger.ErrorContext(ctx, "failed to create order", "error", err, "customer_email", cmd.CustomerEmail)
		return nil, err
	}

	telemetry.AddSpanAttributes(span,
		attribute.Int64("order.id", order.ID),
		attribute.String("order.number", order.OrderNumber),
		attribute.String("order.total_amount", order.TotalAmount.String()),
		attribute.String("order.shipping_cost", order.ShippingCost.String()),
	)

	o.logger.InfoContext(ctx, "order created successfully",
		"order_id", order.ID,
		"order_number", order.OrderNumber,
		"total_amount", order.TotalAmount.String(),
	)

	outcome = metrics.OutcomeCreated
	telemetry.SetSpanSuccess(span)

	return order, nil
}

package commands

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/dejobratic/blogcommerce/internal/orders/domain"
	"github.com/dejobratic/blogcommerce/internal/orders/ports"
	"github.com/shopspring/decimal"
)

// UpdateOrderCommand is an administrative patch; nil fields are left untouched.
type UpdateOrderCommand struct {
	OrderID        int64
	Status         *domain.OrderStatus
	PaymentStatus  *domain.PaymentStatus
	ShippingMethod *string
	ShippingCost   *decimal.Decimal
}

func (c UpdateOrderCommand) Validate() error {
	if c.Status != nil && !c.Status.Valid() {
		return domain.NewValidationError("invalid order status %q", *c.Status)
	}
	if c.PaymentStatus != nil && !c.PaymentStatus.Valid() {
		return domain.NewValidationError("invalid payment status %q", *c.PaymentStatus)
	}
	if c.ShippingCost != nil {
		if err := domain.ValidateAmount("shipping_cost", *c.ShippingCost); err != nil {
			return err
		}
	}
	return nil
}

type UpdateHandler interface {
	Handle(ctx context.Context, cmd UpdateOrderCommand) (*domain.Order, error)
}

// UpdateOrderResult describes what an update changed, for observability.
type UpdateOrderResult struct {
	Order          *domain.Order
	PreviousStatus domain.OrderStatus
	RestockedUnits int
}

type UpdateOrderCommandHandler struct {
	uow         ports.UnitOfWork
	events      ports.EventBus
	maxAttempts uint
	logger      *slog.Logger
	now         func() time.Time
}

func NewUpdateOrderCommandHandler(
	uow ports.UnitOfWork,
	events ports.EventBus,
	maxAttempts uint,
	logger *slog.Logger,
) *UpdateOrderCommandHandler {
	return &UpdateOrderCommandHandler{
		uow:         uow,
		events:      events,
		maxAttempts: maxAttempts,
		logger:      logger,
		now:         time.Now,
	}
}

func (h *UpdateOrderCommandHandler) Handle(ctx context.Context, cmd UpdateOrderCommand) (*domain.Order, error) {
	result, err := h.Apply(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return result.Order, nil
}

// Apply performs the update and reports the previous status and restocked units.
func (h *UpdateOrderCommandHandler) Apply(ctx context.Context, cmd UpdateOrderCommand) (*UpdateOrderResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	result, err := retryOnConflict(ctx, h.maxAttempts, func() (*UpdateOrderResult, error) {
		return h.apply(ctx, cmd)
	})
	if err != nil {
		return nil, err
	}

	h.publish(ctx, result)
	return result, nil
}

func (h *UpdateOrderCommandHandler) apply(ctx context.Context, cmd UpdateOrderCommand) (*UpdateOrderResult, error) {
	var result UpdateOrderResult

	err := h.uow.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		order, err := tx.GetOrderForUpdate(ctx, cmd.OrderID)
		if err != nil {
			return err
		}
		result = UpdateOrderResult{PreviousStatus: order.Status}

		if cmd.Status != nil && *cmd.Status != order.Status {
			if order.IsCancelled() {
				return domain.NewValidationError("order %s is cancelled and cannot change status", order.OrderNumber)
			}
			if *cmd.Status == domain.StatusCancelled {
				restocked, err := h.restock(ctx, tx, *order)
				if err != nil {
					return err
				}
				result.RestockedUnits = restocked
			}
			order.Status = *cmd.Status
		}
		if cmd.PaymentStatus != nil {
			order.PaymentStatus = *cmd.PaymentStatus
		}
		if cmd.ShippingMethod != nil {
			order.ShippingMethod = cmd.ShippingMethod
		}
		if cmd.ShippingCost != nil {
			order.ShippingCost = *cmd.ShippingCost
			order.Reprice()
			if err := domain.ValidateAmount("total_amount", order.TotalAmount); err != nil {
				return err
			}
		}
		order.UpdatedAt = h.now().UTC()

		if err := tx.UpdateOrder(ctx, *order); err != nil {
			return err
		}
		result.Order = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &result, nil
}

// restock returns each line's quantity to its product. Lines are applied in product id
// order to match the lock order used when orders are placed. Products deleted since the
// order was placed are skipped.
func (h *UpdateOrderCommandHandler) restock(ctx context.Context, tx ports.Tx, order domain.Order) (int, error) {
	items := slices.Clone(order.Items)
	slices.SortStableFunc(items, func(a, b domain.OrderItem) int {
		return cmp.Compare(a.ProductID, b.ProductID)
	})

	restocked := 0
	for _, item := range items {
		found, err := tx.IncrementStock(ctx, item.ProductID, item.Quantity)
		if err != nil {
			return 0, err
		}
		if !found {
			h.logger.WarnContext(ctx, "restock skipped for missing product",
				"order_id", order.ID,
				"product_id", item.ProductID,
				"quantity", item.Quantity,
			)
			continue
		}
		restocked += item.Quantity
	}
	return restocked, nil
}

func (h *UpdateOrderCommandHandler) publish(ctx context.Context, result *UpdateOrderResult) {
	order := *result.Order
	if order.Status == result.PreviousStatus {
		return
	}

	if err := h.events.PublishOrderStatusChanged(ctx, order, result.PreviousStatus); err != nil {
		h.logger.WarnContext(ctx, "order updated but failed to publish status change",
			"order_id", order.ID,
			"error", err,
		)
	}

	if order.IsCancelled() {
		if err := h.events.PublishOrderCancelled(ctx, order, result.RestockedUnits); err != nil {
			h.logger.WarnContext(ctx, "order cancelled but failed to publish event",
				"order_id", order.ID,
				"error", err,
			)
		}
	}
}

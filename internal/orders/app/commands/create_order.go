package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dejobratic/blogcommerce/internal/orders/domain"
	"github.com/dejobratic/blogcommerce/internal/orders/ports"
	"github.com/shopspring/decimal"
)

// CartLine is one requested product and quantity.
type CartLine struct {
	ProductID int64
	Quantity  int
}

// CreateOrderCommand is the cart submitted by a customer.
type CreateOrderCommand struct {
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   *string
	ShippingAddress *string
	ShippingMethod  *string
	PaymentMethod   *string
	UserID          *int64
	Items           []CartLine
}

func (c CreateOrderCommand) Validate() error {
	if len(c.Items) == 0 {
		return domain.ErrCartEmpty()
	}
	if strings.TrimSpace(c.CustomerName) == "" {
		return domain.NewValidationError("customer_name is required")
	}
	email := strings.TrimSpace(c.CustomerEmail)
	if email == "" {
		return domain.NewValidationError("customer_email is required")
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return domain.NewValidationError("customer_email must be a valid email address")
	}
	for _, line := range c.Items {
		if line.Quantity < 1 {
			return domain.NewValidationError("quantity for product %d must be at least 1", line.ProductID)
		}
	}
	return nil
}

// NumberGenerator hands out order numbers.
type NumberGenerator interface {
	Next() (string, error)
}

type CommandHandler interface {
	Handle(ctx context.Context, cmd CreateOrderCommand) (*domain.Order, error)
}

type CreateOrderCommandHandler struct {
	uow         ports.UnitOfWork
	events      ports.EventBus
	numbers     NumberGenerator
	shipping    domain.ShippingPolicy
	maxAttempts uint
	logger      *slog.Logger
	now         func() time.Time
}

func NewCreateOrderCommandHandler(
	uow ports.UnitOfWork,
	events ports.EventBus,
	numbers NumberGenerator,
	shipping domain.ShippingPolicy,
	maxAttempts uint,
	logger *slog.Logger,
) *CreateOrderCommandHandler {
	return &CreateOrderCommandHandler{
		uow:         uow,
		events:      events,
		numbers:     numbers,
		shipping:    shipping,
		maxAttempts: maxAttempts,
		logger:      logger,
		now:         time.Now,
	}
}

func (h *CreateOrderCommandHandler) Handle(ctx context.Context, cmd CreateOrderCommand) (*domain.Order, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	order, err := retryOnConflict(ctx, h.maxAttempts, func() (*domain.Order, error) {
		return h.place(ctx, cmd)
	})
	if err != nil {
		return nil, err
	}

	if err := h.events.PublishOrderCreated(ctx, *order); err != nil {
		h.logger.WarnContext(ctx, "order saved but failed to publish event",
			"order_id", order.ID,
			"order_number", order.OrderNumber,
			"error", err,
		)
	}

	return order, nil
}

// place runs one attempt of order placement inside a single transaction.
func (h *CreateOrderCommandHandler) place(ctx context.Context, cmd CreateOrderCommand) (*domain.Order, error) {
	number, err := h.numbers.Next()
	if err != nil {
		return nil, err
	}

	var order domain.Order
	err = h.uow.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		products, err := lockProducts(ctx, tx, cmd.Items)
		if err != nil {
			return err
		}

		items, subtotal, err := priceLines(cmd.Items, products)
		if err != nil {
			return err
		}

		shippingCost := h.shipping.Cost(subtotal)
		if err := domain.ValidateAmount("total_amount", subtotal.Add(shippingCost)); err != nil {
			return err
		}
		now := h.now().UTC()
		order = domain.Order{
			OrderNumber:     number,
			Status:          domain.StatusPending,
			PaymentStatus:   domain.PaymentPending,
			TotalAmount:     subtotal.Add(shippingCost),
			ShippingCost:    shippingCost,
			CustomerName:    strings.TrimSpace(cmd.CustomerName),
			CustomerEmail:   strings.TrimSpace(cmd.CustomerEmail),
			CustomerPhone:   cmd.CustomerPhone,
			ShippingAddress: cmd.ShippingAddress,
			ShippingMethod:  cmd.ShippingMethod,
			PaymentMethod:   cmd.PaymentMethod,
			UserID:          cmd.UserID,
			CreatedAt:       now,
			UpdatedAt:       now,
			Items:           items,
		}
		if err := order.Validate(); err != nil {
			return fmt.Errorf("build order: %w", err)
		}

		if err := tx.InsertOrder(ctx, &order); err != nil {
			return err
		}

		for i := range order.Items {
			item := &order.Items[i]
			item.OrderID = order.ID
			if err := tx.InsertOrderItem(ctx, item); err != nil {
				return err
			}
			if err := tx.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &order, nil
}

// lockProducts reads every distinct product in ascending id order so concurrent carts
// acquire row locks in the same sequence. Missing products are left out of the result.
func lockProducts(ctx context.Context, tx ports.Tx, lines []CartLine) (map[int64]domain.Product, error) {
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)

	products := make(map[int64]domain.Product, len(ids))
	for _, id := range ids {
		product, err := tx.LookupProduct(ctx, id)
		if errors.Is(err, ports.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		products[id] = *product
	}
	return products, nil
}

// priceLines validates lines in submission order and captures unit prices. Repeated
// products draw down the same running stock figure.
func priceLines(lines []CartLine, products map[int64]domain.Product) ([]domain.OrderItem, decimal.Decimal, error) {
	remaining := make(map[int64]int, len(products))
	items := make([]domain.OrderItem, 0, len(lines))
	subtotal := decimal.Zero

	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok {
			return nil, decimal.Zero, domain.ErrProductNotFound(line.ProductID)
		}
		if !product.IsActive {
			return nil, decimal.Zero, domain.ErrProductInactive(line.ProductID)
		}

		left, seen := remaining[line.ProductID]
		if !seen {
			left = product.StockQuantity
		}
		if left < line.Quantity {
			return nil, decimal.Zero, domain.ErrInsufficientStock(line.ProductID, left)
		}
		remaining[line.ProductID] = left - line.Quantity

		item := domain.NewOrderItem(line.ProductID, line.Quantity, product.EffectivePrice())
		if err := domain.ValidateAmount(fmt.Sprintf("total_price for product %d", line.ProductID), item.TotalPrice); err != nil {
			return nil, decimal.Zero, err
		}
		subtotal = subtotal.Add(item.TotalPrice)
		items = append(items, item)
	}

	return items, subtotal, nil
}

// retryOnConflict re-runs op while it fails with ports.ErrConflict, up to maxAttempts times.
func retryOnConflict[T any](ctx context.Context, maxAttempts uint, op func() (T, error)) (T, error) {
	if maxAttempts == 0 {
		maxAttempts = 1
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 20 * time.Millisecond
	policy.MaxInterval = 500 * time.Millisecond

	return backoff.Retry(ctx, func() (T, error) {
		result, err := op()
		if err != nil && !errors.Is(err, ports.ErrConflict) {
			return result, backoff.Permanent(err)
		}
		return result, err
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(maxAttempts),
	)
}

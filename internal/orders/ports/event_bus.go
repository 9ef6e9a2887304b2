package ports

import (
	"context"

	"github.com/dejobratic/blogcommerce/internal/orders/domain"
)

// EventBus defines the contract for publishing order lifecycle events after commit.
type EventBus interface {
	PublishOrderCreated(ctx context.Context, order domain.Order) error
	PublishOrderStatusChanged(ctx context.Context, order domain.Order, previous domain.OrderStatus) error
	PublishOrderCancelled(ctx context.Context, order domain.Order, restockedUnits int) error
}

package ports

import (
	"context"
	"errors"

	"github.com/dejobratic/blogcommerce/internal/orders/domain"
	"github.com/shopspring/decimal"
)

// UnitOfWork runs fn inside a single storage transaction. The transaction commits when fn
// returns nil and rolls back otherwise, including when ctx is cancelled before commit.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the transactional handle threaded through order writes.
type Tx interface {
	// LookupProduct reads a product and locks it until the transaction ends.
	LookupProduct(ctx context.Context, productID int64) (*domain.Product, error)
	// InsertOrder persists the order row and assigns order.ID.
	InsertOrder(ctx context.Context, order *domain.Order) error
	// InsertOrderItem persists a line and assigns item.ID.
	InsertOrderItem(ctx context.Context, item *domain.OrderItem) error
	DecrementStock(ctx context.Context, productID int64, quantity int) error
	// IncrementStock restores stock and reports false when the product no longer exists.
	IncrementStock(ctx context.Context, productID int64, quantity int) (bool, error)
	// GetOrderForUpdate loads an order with its items and locks the order row.
	GetOrderForUpdate(ctx context.Context, id int64) (*domain.Order, error)
	// UpdateOrder writes the mutable order fields.
	UpdateOrder(ctx context.Context, order domain.Order) error
}

// OrderReader exposes read-only order lookups.
type OrderReader interface {
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	GetByNumber(ctx context.Context, orderNumber string) (*domain.Order, error)
	List(ctx context.Context, filter ListFilter) ([]domain.Order, error)
	StatusSummary(ctx context.Context) (map[domain.OrderStatus]StatusAggregate, error)
}

// ListFilter narrows list queries by status, owner and offset pagination.
type ListFilter struct {
	Status *domain.OrderStatus
	UserID *int64
	Skip   int
	Limit  int
}

// StatusAggregate summarises all orders sharing a status.
type StatusAggregate struct {
	Count       int64           `json:"count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

var (
	// ErrNotFound is returned when the requested order or product does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks transient write conflicts (lock or serialization failures, duplicate
	// order numbers). Callers may retry the whole unit of work.
	ErrConflict = errors.New("write conflict")
)

package queries

import (
	"context"
	"strings"

	"github.com/dejobratic/blogcommerce/internal/orders/domain"
	"github.com/dejobratic/blogcommerce/internal/orders/ports"
)

// GetOrderQuery represents a request to retrieve an order by its ID.
type GetOrderQuery struct {
	OrderID int64
}

// Validate ensures the query has valid parameters.
func (q GetOrderQuery) Validate() error {
	if q.OrderID <= 0 {
		return domain.NewValidationError("order_id must be positive")
	}
	return nil
}

// GetOrderByNumberQuery looks an order up by its public order number.
type GetOrderByNumberQuery struct {
	OrderNumber string
}

func (q GetOrderByNumberQuery) Validate() error {
	if strings.TrimSpace(q.OrderNumber) == "" {
		return domain.NewValidationError("order_number is required")
	}
	return nil
}

// GetOrderQueryHandler executes single-order lookups.
type GetOrderQueryHandler struct {
	repo ports.OrderReader
}

// NewGetOrderQueryHandler constructs a GetOrderQueryHandler.
func NewGetOrderQueryHandler(repo ports.OrderReader) *GetOrderQueryHandler {
	return &GetOrderQueryHandler{repo: repo}
}

// Handle executes the query and retrieves the order with its items.
func (h *GetOrderQueryHandler) Handle(ctx context.Context, query GetOrderQuery) (*domain.Order, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	return h.repo.GetByID(ctx, query.OrderID)
}

func (h *GetOrderQueryHandler) HandleByNumber(ctx context.Context, query GetOrderByNumberQuery) (*domain.Order, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	return h.repo.GetByNumber(ctx, strings.TrimSpace(query.OrderNumber))
}

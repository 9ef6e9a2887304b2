package queries

import (
	"context"

	"github.com/dejobratic/blogcommerce/internal/orders/domain"
	"github.com/dejobratic/blogcommerce/internal/orders/ports"
)

// ListOrdersQuery pages through all orders, optionally narrowed to one status.
type ListOrdersQuery struct {
	Skip   int
	Limit  int
	Status *domain.OrderStatus
}

// ListUserOrdersQuery pages through the orders owned by a single user.
type ListUserOrdersQuery struct {
	UserID int64
	Skip   int
	Limit  int
}

// ListOrdersQueryHandler serves the admin and per-user order listings, newest first.
type ListOrdersQueryHandler struct {
	repo         ports.OrderReader
	maxLimit     int
	userMaxLimit int
}

func NewListOrdersQueryHandler(repo ports.OrderReader, maxLimit, userMaxLimit int) *ListOrdersQueryHandler {
	return &ListOrdersQueryHandler{
		repo:         repo,
		maxLimit:     maxLimit,
		userMaxLimit: userMaxLimit,
	}
}

func (h *ListOrdersQueryHandler) Handle(ctx context.Context, query ListOrdersQuery) ([]domain.Order, error) {
	if err := validatePage(query.Skip, query.Limit, h.maxLimit); err != nil {
		return nil, err
	}
	if query.Status != nil && !query.Status.Valid() {
		return nil, domain.NewValidationError("invalid status_filter %q", *query.Status)
	}

	return h.repo.List(ctx, ports.ListFilter{
		Status: query.Status,
		Skip:   query.Skip,
		Limit:  query.Limit,
	})
}

func (h *ListOrdersQueryHandler) HandleForUser(ctx context.Context, query ListUserOrdersQuery) ([]domain.Order, error) {
	if err := validatePage(query.Skip, query.Limit, h.userMaxLimit); err != nil {
		return nil, err
	}

	return h.repo.List(ctx, ports.ListFilter{
		UserID: &query.UserID,
		Skip:   query.Skip,
		Limit:  query.Limit,
	})
}

func validatePage(skip, limit, maxLimit int) error {
	if skip < 0 {
		return domain.NewValidationError("skip must not be negative")
	}
	if limit < 1 || limit > maxLimit {
		return domain.NewValidationError("limit must be between 1 and %d", maxLimit)
	}
	return nil
}

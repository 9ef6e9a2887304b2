package queries

import (
	"context"
	"fmt"

	"github.com/dejobratic/blogcommerce/internal/orders/domain"
	"github.com/dejobratic/blogcommerce/internal/orders/ports"
	"github.com/shopspring/decimal"
)

// StatusSummaryQueryHandler reports order count and revenue per status.
// Every known status is present in the result, with zeros when no order has it.
type StatusSummaryQueryHandler struct {
	repo ports.OrderReader
}

func NewStatusSummaryQueryHandler(repo ports.OrderReader) *StatusSummaryQueryHandler {
	return &StatusSummaryQueryHandler{repo: repo}
}

func (h *StatusSummaryQueryHandler) Handle(ctx context.Context) (map[domain.OrderStatus]ports.StatusAggregate, error) {
	stored, err := h.repo.StatusSummary(ctx)
	if err != nil {
		return nil, fmt.Errorf("summarise orders: %w", err)
	}

	summary := make(map[domain.OrderStatus]ports.StatusAggregate, len(domain.OrderStatuses))
	for _, status := range domain.OrderStatuses {
		agg, ok := stored[status]
		if !ok {
			agg = ports.StatusAggregate{TotalAmount: decimal.Zero}
		}
		summary[status] = agg
	}
	return summary, nil
}

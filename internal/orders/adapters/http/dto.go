package http

import (
	"time"

	"github.com/dejobratic/blogcommerce/internal/orders/domain"
	"github.com/dejobratic/blogcommerce/internal/orders/ports"
	"github.com/shopspring/decimal"
)

type orderResponse struct {
	domain.Order
	Currency string `json:"currency"`
}

func (h *Handler) toOrderResponse(order domain.Order) orderResponse {
	return orderResponse{Order: order, Currency: h.opts.Currency}
}

// orderSummary is the list view of an order, without its lines.
type orderSummary struct {
	ID            int64                `json:"id"`
	OrderNumber   string               `json:"order_number"`
	Status        domain.OrderStatus   `json:"status"`
	PaymentStatus domain.PaymentStatus `json:"payment_status"`
	TotalAmount   decimal.Decimal      `json:"total_amount"`
	Currency      string               `json:"currency"`
	CustomerName  string               `json:"customer_name"`
	ItemCount     int                  `json:"item_count"`
	CreatedAt     time.Time            `json:"created_at"`
}

func (h *Handler) summaries(orders []domain.Order) []orderSummary {
	out := make([]orderSummary, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderSummary{
			ID:            o.ID,
			OrderNumber:   o.OrderNumber,
			Status:        o.Status,
			PaymentStatus: o.PaymentStatus,
			TotalAmount:   o.TotalAmount,
			Currency:      h.opts.Currency,
			CustomerName:  o.CustomerName,
			ItemCount:     o.ItemCount(),
			CreatedAt:     o.CreatedAt,
		})
	}
	return out
}

type statusSummaryEntry struct {
	Status      domain.OrderStatus `json:"status"`
	Count       int64              `json:"count"`
	TotalAmount decimal.Decimal    `json:"total_amount"`
}

type statusSummaryResponse struct {
	Currency string               `json:"currency"`
	Statuses []statusSummaryEntry `json:"statuses"`
}

func newStatusSummaryResponse(summary map[domain.OrderStatus]ports.StatusAggregate, currency string) statusSummaryResponse {
	resp := statusSummaryResponse{
		Currency: currency,
		Statuses: make([]statusSummaryEntry, 0, len(domain.OrderStatuses)),
	}
	for _, status := range domain.OrderStatuses {
		agg := summary[status]
		resp.Statuses = append(resp.Statuses, statusSummaryEntry{
			Status:      status,
			Count:       agg.Count,
			TotalAmount: agg.TotalAmount,
		})
	}
	return resp
}

package kafka

import (
	"time"

	"github.com/dejobratic/blogcommerce/internal/orders/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types published on the orders topic.
const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	EventOrderCancelled     = "order.cancelled"
)

// Event is the JSON envelope written to Kafka for every order lifecycle change.
type Event struct {
	ID             string       `json:"id"`
	Type           string       `json:"type"`
	OccurredAt     time.Time    `json:"occurred_at"`
	Order          OrderPayload `json:"order"`
	PreviousStatus string       `json:"previous_status,omitempty"`
	RestockedUnits *int         `json:"restocked_units,omitempty"`
}

// OrderPayload is the order snapshot carried by an Event.
type OrderPayload struct {
	ID            int64           `json:"id"`
	OrderNumber   string          `json:"order_number"`
	Status        string          `json:"status"`
	PaymentStatus string          `json:"payment_status"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	ShippingCost  decimal.Decimal `json:"shipping_cost"`
	UserID        *int64          `json:"user_id,omitempty"`
	ItemCount     int             `json:"item_count"`
}

func newEvent(eventType string, order domain.Order, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: at.UTC(),
		Order: OrderPayload{
			ID:            order.ID,
			OrderNumber:   order.OrderNumber,
			Status:        string(order.Status),
			PaymentStatus: string(order.PaymentStatus),
			TotalAmount:   order.TotalAmount,
			ShippingCost:  order.ShippingCost,
			UserID:        order.UserID,
			ItemCount:     order.ItemCount(),
		},
	}
}

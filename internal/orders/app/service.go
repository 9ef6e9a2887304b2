package app

import (
	"context"
	"log/slog"

	"github.com/dejobratic/blogcommerce/internal/orders/app/commands"
	"github.com/dejobratic/blogcommerce/internal/orders/app/queries"
	"github.com/dejobratic/blogcommerce/internal/orders/domain"
	"github.com/dejobratic/blogcommerce/internal/orders/metrics"
	"github.com/dejobratic/blogcommerce/internal/orders/ports"
	"github.com/shopspring/decimal"
)

// Settings carries the shop configuration the order use cases depend on.
type Settings struct {
	Shipping        domain.ShippingPolicy
	MaxAttempts     uint
	DefaultPageSize int
	MaxPageSize     int
	UserMaxPageSize int
}

// Service bundles use cases for handling orders via the API.
type Service struct {
	idemStore          ports.IdempotencyStore
	createOrderHandler commands.CommandHandler
	updateOrderHandler commands.UpdateHandler
	getOrderHandler    *queries.GetOrderQueryHandler
	listOrdersHandler  *queries.ListOrdersQueryHandler
	summaryHandler     *queries.StatusSummaryQueryHandler
	settings           Settings
}

// NewService wires required dependencies.
func NewService(
	uow ports.UnitOfWork,
	orders ports.OrderReader,
	events ports.EventBus,
	idem ports.IdempotencyStore,
	settings Settings,
	logger *slog.Logger,
	metrics *metrics.Metrics,
) *Service {
	createHandler := commands.NewCreateOrderCommandHandler(
		uow, events, domain.NewOrderNumberGenerator(), settings.Shipping, settings.MaxAttempts, logger,
	)
	updateHandler := commands.NewUpdateOrderCommandHandler(uow, events, settings.MaxAttempts, logger)

	return &Service{
		idemStore:          idem,
		createOrderHandler: commands.NewObservableCommandHandler(createHandler, logger, metrics),
		updateOrderHandler: commands.NewObservableUpdateHandler(updateHandler, logger, metrics),
		getOrderHandler:    queries.NewGetOrderQueryHandler(orders),
		listOrdersHandler:  queries.NewListOrdersQueryHandler(orders, settings.MaxPageSize, settings.UserMaxPageSize),
		summaryHandler:     queries.NewStatusSummaryQueryHandler(orders),
		settings:           settings,
	}
}

// CartItemInput is one requested line. UnitPrice is accepted for display purposes only;
// the price charged is always read from the catalog.
type CartItemInput struct {
	ProductID int64            `json:"product_id"`
	Quantity  int              `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
}

// CreateOrderInput captures payload for creating an order.
type CreateOrderInput struct {
	CustomerName    string          `json:"customer_name"`
	CustomerEmail   string          `json:"customer_email"`
	CustomerPhone   *string         `json:"customer_phone,omitempty"`
	ShippingAddress *string         `json:"shipping_address,omitempty"`
	ShippingMethod  *string         `json:"shipping_method,omitempty"`
	PaymentMethod   *string         `json:"payment_method,omitempty"`
	Items           []CartItemInput `json:"items"`
}

// UpdateOrderInput is the admin patch; omitted fields are left unchanged.
type UpdateOrderInput struct {
	Status         *domain.OrderStatus   `json:"status,omitempty"`
	PaymentStatus  *domain.PaymentStatus `json:"payment_status,omitempty"`
	ShippingMethod *string               `json:"shipping_method,omitempty"`
	ShippingCost   *decimal.Decimal      `json:"shipping_cost,omitempty"`
}

// CreateOrder places an order for the cart. userID is attached when the caller is signed in.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput, userID *int64) (*domain.Order, error) {
	lines := make([]commands.CartLine, 0, len(input.Items))
	for _, item := range input.Items {
		lines = append(lines, commands.CartLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	cmd := commands.CreateOrderCommand{
		CustomerName:    input.CustomerName,
		CustomerEmail:   input.CustomerEmail,
		CustomerPhone:   input.CustomerPhone,
		ShippingAddress: input.ShippingAddress,
		ShippingMethod:  input.ShippingMethod,
		PaymentMethod:   input.PaymentMethod,
		UserID:          userID,
		Items:           lines,
	}
	return s.createOrderHandler.Handle(ctx, cmd)
}

// UpdateOrder applies an admin patch. Cancelling restocks the order's items once.
func (s *Service) UpdateOrder(ctx context.Context, id int64, input UpdateOrderInput) (*domain.Order, error) {
	cmd := commands.UpdateOrderCommand{
		OrderID:        id,
		Status:         input.Status,
		PaymentStatus:  input.PaymentStatus,
		ShippingMethod: input.ShippingMethod,
		ShippingCost:   input.ShippingCost,
	}
	return s.updateOrderHandler.Handle(ctx, cmd)
}

// GetOrder retrieves an order by ID.
func (s *Service) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	return s.getOrderHandler.Handle(ctx, queries.GetOrderQuery{OrderID: id})
}

// GetOrderByNumber retrieves an order by its order number.
func (s *Service) GetOrderByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	return s.getOrderHandler.HandleByNumber(ctx, queries.GetOrderByNumberQuery{OrderNumber: orderNumber})
}

// ListOrders returns a page of all orders, newest first.
func (s *Service) ListOrders(ctx context.Context, skip, limit int, status *domain.OrderStatus) ([]domain.Order, error) {
	return s.listOrdersHandler.Handle(ctx, queries.ListOrdersQuery{Skip: skip, Limit: limit, Status: status})
}

// ListUserOrders returns a page of the orders owned by userID, newest first.
func (s *Service) ListUserOrders(ctx context.Context, userID int64, skip, limit int) ([]domain.Order, error) {
	return s.listOrdersHandler.HandleForUser(ctx, queries.ListUserOrdersQuery{UserID: userID, Skip: skip, Limit: limit})
}

// StatusSummary aggregates order count and total per status.
func (s *Service) StatusSummary(ctx context.Context) (map[domain.OrderStatus]ports.StatusAggregate, error) {
	return s.summaryHandler.Handle(ctx)
}

// DefaultPageSize is the limit applied when a list request omits one.
func (s *Service) DefaultPageSize() int {
	return s.settings.DefaultPageSize
}

// SaveIdempotentResponse writes response details for a key.
func (s *Service) SaveIdempotentResponse(ctx context.Context, key string, response ports.StoredResponse) error {
	return s.idemStore.Save(ctx, key, response)
}

// GetIdempotentResponse retrieves previously stored response data.
func (s *Service) GetIdempotentResponse(ctx context.Context, key string) (*ports.StoredResponse, error) {
	return s.idemStore.Get(ctx, key)
}

package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dejobratic/blogcommerce/internal/orders/domain"
	"github.com/dejobratic/blogcommerce/internal/orders/ports"
	"github.com/shopspring/decimal"
)

// Repository provides an in-memory catalog and order store useful for local development and tests.
// Write transactions are serialised on a single lock and rolled back through an undo log.
type Repository struct {
	mu          sync.RWMutex
	products    map[int64]domain.Product
	orders      map[int64]domain.Order
	numbers     map[string]int64
	nextOrderID int64
	nextItemID  int64
	nextProduct int64
}

// NewRepository constructs a new in-memory repository.
func NewRepository() *Repository {
	return &Repository{
		products: make(map[int64]domain.Product),
		orders:   make(map[int64]domain.Order),
		numbers:  make(map[string]int64),
	}
}

// SaveProduct inserts or replaces a catalog product. A zero ID is assigned the next free one.
func (r *Repository) SaveProduct(product domain.Product) domain.Product {
	r.mu.Lock()
	defer r.mu.Unlock()

	if product.ID == 0 {
		r.nextProduct++
		product.ID = r.nextProduct
	} else if product.ID > r.nextProduct {
		r.nextProduct = product.ID
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	r.products[product.ID] = product
	return product
}

// Product returns the current catalog row for id.
func (r *Repository) Product(id int64) (domain.Product, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	product, ok := r.products[id]
	return product, ok
}

// DeleteProduct removes a product from the catalog.
func (r *Repository) DeleteProduct(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.products, id)
}

// WithinTx runs fn with exclusive access to the store. Changes are undone when fn fails or
// ctx is cancelled before fn returns.
func (r *Repository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ports.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &transaction{repo: r}
	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	if err := ctx.Err(); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

type transaction struct {
	repo *Repository
	undo []func()
}

func (t *transaction) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *transaction) LookupProduct(_ context.Context, productID int64) (*domain.Product, error) {
	product, ok := t.repo.products[productID]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return &product, nil
}

func (t *transaction) InsertOrder(_ context.Context, order *domain.Order) error {
	r := t.repo
	if _, exists := r.numbers[order.OrderNumber]; exists {
		return fmt.Errorf("order number %s already used: %w", order.OrderNumber, ports.ErrConflict)
	}

	prevID := r.nextOrderID
	r.nextOrderID++
	order.ID = r.nextOrderID

	stored := *order
	stored.Items = nil
	r.orders[order.ID] = stored
	r.numbers[order.OrderNumber] = order.ID

	t.undo = append(t.undo, func() {
		delete(r.orders, order.ID)
		delete(r.numbers, order.OrderNumber)
		r.nextOrderID = prevID
	})
	return nil
}

func (t *transaction) InsertOrderItem(_ context.Context, item *domain.OrderItem) error {
	r := t.repo
	order, ok := r.orders[item.OrderID]
	if !ok {
		return fmt.Errorf("insert item for order %d: %w", item.OrderID, ports.ErrNotFound)
	}

	prevID := r.nextItemID
	r.nextItemID++
	item.ID = r.nextItemID

	previous := order.Items
	order.Items = append(slices.Clone(previous), *item)
	r.orders[item.OrderID] = order

	t.undo = append(t.undo, func() {
		o := r.orders[item.OrderID]
		o.Items = previous
		r.orders[item.OrderID] = o
		r.nextItemID = prevID
	})
	return nil
}

func (t *transaction) DecrementStock(_ context.Context, productID int64, quantity int) error {
	r := t.repo
	product, ok := r.products[productID]
	if !ok {
		return fmt.Errorf("decrement stock for product %d: %w", productID, ports.ErrNotFound)
	}
	if product.StockQuantity < quantity {
		return fmt.Errorf("stock for product %d changed during transaction: %w", productID, ports.ErrConflict)
	}

	previous := product
	product.StockQuantity -= quantity
	r.products[productID] = product

	t.undo = append(t.undo, func() { r.products[productID] = previous })
	return nil
}

func (t *transaction) IncrementStock(_ context.Context, productID int64, quantity int) (bool, error) {
	r := t.repo
	product, ok := r.products[productID]
	if !ok {
		return false, nil
	}

	previous := product
	product.StockQuantity += quantity
	r.products[productID] = product

	t.undo = append(t.undo, func() { r.products[productID] = previous })
	return true, nil
}

func (t *transaction) GetOrderForUpdate(_ context.Context, id int64) (*domain.Order, error) {
	order, ok := t.repo.orders[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return cloneOrder(order), nil
}

func (t *transaction) UpdateOrder(_ context.Context, order domain.Order) error {
	r := t.repo
	stored, ok := r.orders[order.ID]
	if !ok {
		return ports.ErrNotFound
	}

	previous := stored
	stored.Status = order.Status
	stored.PaymentStatus = order.PaymentStatus
	stored.ShippingMethod = order.ShippingMethod
	stored.ShippingCost = order.ShippingCost
	stored.TotalAmount = order.TotalAmount
	stored.UpdatedAt = order.UpdatedAt
	r.orders[order.ID] = stored

	t.undo = append(t.undo, func() { r.orders[order.ID] = previous })
	return nil
}

// GetByID fetches a single order by identifier.
func (r *Repository) GetByID(_ context.Context, id int64) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return cloneOrder(order), nil
}

// GetByNumber fetches a single order by its order number.
func (r *Repository) GetByNumber(_ context.Context, orderNumber string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.numbers[orderNumber]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return cloneOrder(r.orders[id]), nil
}

// List returns orders respecting the provided filter, newest first.
func (r *Repository) List(_ context.Context, filter ports.ListFilter) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.Order
	for _, order := range r.orders {
		if filter.Status != nil && order.Status != *filter.Status {
			continue
		}
		if filter.UserID != nil && (order.UserID == nil || *order.UserID != *filter.UserID) {
			continue
		}
		result = append(result, *cloneOrder(order))
	}

	slices.SortFunc(result, func(a, b domain.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	if filter.Skip >= len(result) {
		return []domain.Order{}, nil
	}
	end := len(result)
	if filter.Limit > 0 && filter.Skip+filter.Limit < end {
		end = filter.Skip + filter.Limit
	}
	return result[filter.Skip:end], nil
}

// StatusSummary aggregates order counts and totals per status.
func (r *Repository) StatusSummary(_ context.Context) (map[domain.OrderStatus]ports.StatusAggregate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	summary := make(map[domain.OrderStatus]ports.StatusAggregate)
	for _, order := range r.orders {
		agg, ok := summary[order.Status]
		if !ok {
			agg.TotalAmount = decimal.Zero
		}
		agg.Count++
		agg.TotalAmount = agg.TotalAmount.Add(order.TotalAmount)
		summary[order.Status] = agg
	}
	return summary, nil
}

func cloneOrder(order domain.Order) *domain.Order {
	copy := order
	copy.Items = slices.Clone(order.Items)
	return &copy
}

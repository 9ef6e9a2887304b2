package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/dejobratic/blogcommerce/internal/database"
	"github.com/dejobratic/blogcommerce/internal/orders/domain"
	"github.com/dejobratic/blogcommerce/internal/orders/ports"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const orderColumns = `
	id, order_number, status, payment_status, total_amount, shipping_cost,
	customer_name, customer_email, customer_phone, shipping_address,
	shipping_method, payment_method, user_id, created_at, updated_at
`

const itemColumns = `id, order_id, product_id, quantity, unit_price, total_price`

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repository stores products and orders in PostgreSQL. Write transactions run at
// READ COMMITTED and serialise on product rows with SELECT ... FOR UPDATE.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ports.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", mapError(err))
	}
	defer func() {
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	if err := fn(ctx, &transaction{tx: tx}); err != nil {
		return mapError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", mapError(err))
	}
	return nil
}

// mapError turns lock, serialization and order number collisions into ports.ErrConflict.
func mapError(err error) error {
	if errors.Is(err, ports.ErrConflict) {
		return err
	}
	if database.IsRetryable(err) ||
		database.IsConstraintViolation(err, database.CodeUniqueViolation, "orders_order_number_key") ||
		database.IsConstraintViolation(err, database.CodeCheckViolation, "products_stock_non_negative") {
		return fmt.Errorf("%w: %w", ports.ErrConflict, err)
	}
	return err
}

type transaction struct {
	tx pgx.Tx
}

func (t *transaction) LookupProduct(ctx context.Context, productID int64) (*domain.Product, error) {
	query := `
		SELECT id, name, slug, price, sale_price, stock_quantity, is_active, category_id, created_at, updated_at
		FROM products
		WHERE id = $1
		FOR UPDATE
	`

	var p domain.Product
	err := t.tx.QueryRow(ctx, query, productID).Scan(
		&p.ID,
		&p.Name,
		&p.Slug,
		&p.Price,
		&p.SalePrice,
		&p.StockQuantity,
		&p.IsActive,
		&p.CategoryID,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("select product: %w", err)
	}

	return &p, nil
}

func (t *transaction) InsertOrder(ctx context.Context, order *domain.Order) error {
	query := `
		INSERT INTO orders (
			order_number, status, payment_status, total_amount, shipping_cost,
			customer_name, customer_email, customer_phone, shipping_address,
			shipping_method, payment_method, user_id, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`

	err := t.tx.QueryRow(ctx, query,
		order.OrderNumber,
		string(order.Status),
		string(order.PaymentStatus),
		order.TotalAmount,
		order.ShippingCost,
		order.CustomerName,
		order.CustomerEmail,
		order.CustomerPhone,
		order.ShippingAddress,
		order.ShippingMethod,
		order.PaymentMethod,
		order.UserID,
		order.CreatedAt,
		order.UpdatedAt,
	).Scan(&order.ID)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	return nil
}

func (t *transaction) InsertOrderItem(ctx context.Context, item *domain.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, product_id, quantity, unit_price, total_price)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	err := t.tx.QueryRow(ctx, query,
		item.OrderID,
		item.ProductID,
		item.Quantity,
		item.UnitPrice,
		item.TotalPrice,
	).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("insert order item: %w", err)
	}

	return nil
}

func (t *transaction) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	query := `
		UPDATE products
		SET stock_quantity = stock_quantity - $2, updated_at = NOW()
		WHERE id = $1 AND stock_quantity >= $2
	`

	result, err := t.tx.Exec(ctx, query, productID, quantity)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("stock for product %d changed during transaction: %w", productID, ports.ErrConflict)
	}

	return nil
}

func (t *transaction) IncrementStock(ctx context.Context, productID int64, quantity int) (bool, error) {
	query := `
		UPDATE products
		SET stock_quantity = stock_quantity + $2, updated_at = NOW()
		WHERE id = $1
	`

	result, err := t.tx.Exec(ctx, query, productID, quantity)
	if err != nil {
		return false, fmt.Errorf("increment stock: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

func (t *transaction) GetOrderForUpdate(ctx context.Context, id int64) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	order, err := scanOrder(t.tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}

	if err := loadItems(ctx, t.tx, []*domain.Order{order}); err != nil {
		return nil, err
	}

	return order, nil
}

func (t *transaction) UpdateOrder(ctx context.Context, order domain.Order) error {
	query := `
		UPDATE orders
		SET status = $1, payment_status = $2, shipping_method = $3,
		    shipping_cost = $4, total_amount = $5, updated_at = $6
		WHERE id = $7
	`

	result, err := t.tx.Exec(ctx, query,
		string(order.Status),
		string(order.PaymentStatus),
		order.ShippingMethod,
		order.ShippingCost,
		order.TotalAmount,
		order.UpdatedAt,
		order.ID,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ports.ErrNotFound
	}

	return nil
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (r *Repository) GetByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_number = $1`, orderNumber)
}

func (r *Repository) getOne(ctx context.Context, query string, arg any) (*domain.Order, error) {
	order, err := scanOrder(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, err
	}

	if err := loadItems(ctx, r.pool, []*domain.Order{order}); err != nil {
		return nil, err
	}

	return order, nil
}

func (r *Repository) List(ctx context.Context, filter ports.ListFilter) ([]domain.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2::bigint IS NULL OR user_id = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`

	var statusFilter *string
	if filter.Status != nil {
		s := string(*filter.Status)
		statusFilter = &s
	}

	var limit *int
	if filter.Limit > 0 {
		limit = &filter.Limit
	}

	rows, err := r.pool.Query(ctx, query, statusFilter, filter.UserID, limit, filter.Skip)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}

	if err := loadItems(ctx, r.pool, orders); err != nil {
		return nil, err
	}

	result := make([]domain.Order, 0, len(orders))
	for _, o := range orders {
		result = append(result, *o)
	}
	return result, nil
}

func (r *Repository) StatusSummary(ctx context.Context) (map[domain.OrderStatus]ports.StatusAggregate, error) {
	query := `
		SELECT status, COUNT(*), COALESCE(SUM(total_amount), 0)
		FROM orders
		GROUP BY status
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query status summary: %w", err)
	}
	defer rows.Close()

	summary := make(map[domain.OrderStatus]ports.StatusAggregate)
	for rows.Next() {
		var (
			status string
			agg    ports.StatusAggregate
		)
		if err := rows.Scan(&status, &agg.Count, &agg.TotalAmount); err != nil {
			return nil, fmt.Errorf("scan status summary: %w", err)
		}
		summary[domain.OrderStatus(status)] = agg
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status summary: %w", err)
	}

	return summary, nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		order         domain.Order
		status        string
		paymentStatus string
	)
	err := row.Scan(
		&order.ID,
		&order.OrderNumber,
		&status,
		&paymentStatus,
		&order.TotalAmount,
		&order.ShippingCost,
		&order.CustomerName,
		&order.CustomerEmail,
		&order.CustomerPhone,
		&order.ShippingAddress,
		&order.ShippingMethod,
		&order.PaymentMethod,
		&order.UserID,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("select order: %w", err)
	}

	order.Status = domain.OrderStatus(status)
	order.PaymentStatus = domain.PaymentStatus(paymentStatus)
	order.Items = []domain.OrderItem{}
	return &order, nil
}

// loadItems fetches the lines of every order in one round trip.
func loadItems(ctx context.Context, q querier, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(orders))
	byID := make(map[int64]*domain.Order, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
		byID[o.ID] = o
	}

	query := `SELECT ` + itemColumns + ` FROM order_items WHERE order_id = ANY($1) ORDER BY id`

	rows, err := q.Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.UnitPrice, &item.TotalPrice); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}

		if o, ok := byID[item.OrderID]; ok {
			o.Items = append(o.Items, item)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate order items: %w", err)
	}

	return nil
}

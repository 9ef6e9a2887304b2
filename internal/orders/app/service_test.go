package app_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	idemmemory "github.com/dejobratic/blogcommerce/internal/idempotency/memory"
	"github.com/dejobratic/blogcommerce/internal/kafka"
	"github.com/dejobratic/blogcommerce/internal/orders/adapters/memory"
	"github.com/dejobratic/blogcommerce/internal/orders/app"
	"github.com/dejobratic/blogcommerce/internal/orders/domain"
	"github.com/dejobratic/blogcommerce/internal/orders/metrics"
	"github.com/dejobratic/blogcommerce/internal/orders/ports"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

func newService(t *testing.T) (*app.Service, *memory.Repository) {
	t.Helper()
	repo := memory.NewRepository()

	m, err := metrics.NewMetrics(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	settings := app.Settings{
		Shipping: domain.ShippingPolicy{
			FreeShippingThreshold: decimal.NewFromInt(1000),
			BaseCost:              decimal.NewFromInt(100),
		},
		MaxAttempts:     3,
		DefaultPageSize: 20,
		MaxPageSize:     100,
		UserMaxPageSize: 50,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := app.NewService(repo, repo, kafka.NewLogEventBus(logger), idemmemory.NewStore(time.Hour), settings, logger, m)
	return svc, repo
}

func product(price int64, stock int) domain.Product {
	return domain.Product{
		Name:          "Widget",
		Price:         decimal.NewFromInt(price),
		StockQuantity: stock,
		IsActive:      true,
	}
}

func aliceCart(items ...app.CartItemInput) app.CreateOrderInput {
	return app.CreateOrderInput{
		CustomerName:  "Alice",
		CustomerEmail: "alice@example.com",
		Items:         items,
	}
}

func stock(t *testing.T, repo *memory.Repository, id int64) int {
	t.Helper()
	p, ok := repo.Product(id)
	require.True(t, ok, "product %d missing", id)
	return p.StockQuantity
}

func TestServiceHappyPath(t *testing.T) {
	svc, repo := newService(t)
	a := repo.SaveProduct(product(300, 5))

	order, err := svc.CreateOrder(context.Background(), aliceCart(app.CartItemInput{ProductID: a.ID, Quantity: 2}), nil)
	require.NoError(t, err)

	require.Len(t, order.Items, 1)
	assert.True(t, order.Items[0].UnitPrice.Equal(decimal.NewFromInt(300)))
	assert.True(t, order.Items[0].TotalPrice.Equal(decimal.NewFromInt(600)))
	assert.True(t, order.ShippingCost.Equal(decimal.NewFromInt(100)))
	assert.True(t, order.TotalAmount.Equal(decimal.NewFromInt(700)))
	assert.Equal(t, domain.StatusPending, order.Status)
	assert.Equal(t, domain.PaymentPending, order.PaymentStatus)
	assert.Equal(t, 3, stock(t, repo, a.ID))

	stored, err := svc.GetOrderByNumber(context.Background(), order.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, order.ID, stored.ID)
}

func TestServiceFreeShippingUsesSalePrice(t *testing.T) {
	svc, repo := newService(t)
	p := product(600, 10)
	p.SalePrice = decimal.NewNullDecimal(decimal.NewFromInt(550))
	b := repo.SaveProduct(p)

	order, err := svc.CreateOrder(context.Background(), aliceCart(app.CartItemInput{ProductID: b.ID, Quantity: 2}), nil)
	require.NoError(t, err)

	assert.True(t, order.Items[0].UnitPrice.Equal(decimal.NewFromInt(550)))
	assert.True(t, order.ShippingCost.IsZero())
	assert.True(t, order.TotalAmount.Equal(decimal.NewFromInt(1100)))
	assert.Equal(t, 8, stock(t, repo, b.ID))
}

func TestServiceIgnoresClientUnitPrice(t *testing.T) {
	svc, repo := newService(t)
	a := repo.SaveProduct(product(300, 5))
	bogus := decimal.NewFromInt(1)

	order, err := svc.CreateOrder(context.Background(),
		aliceCart(app.CartItemInput{ProductID: a.ID, Quantity: 1, UnitPrice: &bogus}), nil)
	require.NoError(t, err)

	assert.True(t, order.Items[0].UnitPrice.Equal(decimal.NewFromInt(300)))
}

func TestServiceRejectionsLeaveNoTrace(t *testing.T) {
	svc, repo := newService(t)
	c := repo.SaveProduct(product(100, 1))
	inactive := product(100, 100)
	inactive.IsActive = false
	d := repo.SaveProduct(inactive)
	ctx := context.Background()

	_, err := svc.CreateOrder(ctx, aliceCart(app.CartItemInput{ProductID: c.ID, Quantity: 2}), nil)
	require.Error(t, err)
	assert.True(t, domain.IsValidationError(err))
	assert.Contains(t, err.Error(), "remaining 1")
	assert.Equal(t, 1, stock(t, repo, c.ID))

	_, err = svc.CreateOrder(ctx, aliceCart(app.CartItemInput{ProductID: d.ID, Quantity: 1}), nil)
	require.Error(t, err)
	assert.True(t, domain.IsValidationError(err))
	assert.Contains(t, err.Error(), "inactive")
	assert.Equal(t, 100, stock(t, repo, d.ID))

	orders, err := svc.ListOrders(ctx, 0, 100, nil)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestServiceCancelRestocksOnce(t *testing.T) {
	svc, repo := newService(t)
	a := repo.SaveProduct(product(300, 5))
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, aliceCart(app.CartItemInput{ProductID: a.ID, Quantity: 2}), nil)
	require.NoError(t, err)

	cancelled := domain.StatusCancelled
	for range 2 {
		updated, err := svc.UpdateOrder(ctx, order.ID, app.UpdateOrderInput{Status: &cancelled})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCancelled, updated.Status)
		assert.Equal(t, 5, stock(t, repo, a.ID))
	}
}

func TestServicePriceCapture(t *testing.T) {
	svc, repo := newService(t)
	a := repo.SaveProduct(product(300, 5))
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, aliceCart(app.CartItemInput{ProductID: a.ID, Quantity: 1}), nil)
	require.NoError(t, err)

	repriced, _ := repo.Product(a.ID)
	repriced.Price = decimal.NewFromInt(999)
	repo.SaveProduct(repriced)

	stored, err := svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, stored.Items[0].UnitPrice.Equal(decimal.NewFromInt(300)))
	assert.True(t, stored.Items[0].TotalPrice.Equal(decimal.NewFromInt(300)))
}

func TestServiceConcurrentDrain(t *testing.T) {
	svc, repo := newService(t)
	e := repo.SaveProduct(product(10, 3))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateOrder(context.Background(), aliceCart(app.CartItemInput{ProductID: e.ID, Quantity: 1}), nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case domain.IsValidationError(err):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	assert.Equal(t, 2, rejected)
	assert.Equal(t, 0, stock(t, repo, e.ID))
}

func TestServiceOrderNumbersAreUnique(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping bulk creation in short mode")
	}

	const n = 10000
	svc, repo := newService(t)
	p := repo.SaveProduct(product(1, n))

	var wg sync.WaitGroup
	numbers := make([]string, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			order, err := svc.CreateOrder(context.Background(), aliceCart(app.CartItemInput{ProductID: p.ID, Quantity: 1}), nil)
			errs[i] = err
			if err == nil {
				numbers[i] = order.OrderNumber
			}
		}()
	}
	wg.Wait()

	seen := make(map[string]struct{}, n)
	for i, number := range numbers {
		require.NoError(t, errs[i])
		_, dup := seen[number]
		require.False(t, dup, "duplicate order number %s", number)
		seen[number] = struct{}{}
	}
	assert.Equal(t, 0, stock(t, repo, p.ID))
}

func TestServiceListUserOrders(t *testing.T) {
	svc, repo := newService(t)
	a := repo.SaveProduct(product(10, 100))
	ctx := context.Background()
	alice, bob := int64(1), int64(2)

	for _, owner := range []*int64{&alice, &bob, nil, &alice} {
		_, err := svc.CreateOrder(ctx, aliceCart(app.CartItemInput{ProductID: a.ID, Quantity: 1}), owner)
		require.NoError(t, err)
	}

	orders, err := svc.ListUserOrders(ctx, alice, 0, 50)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	for _, o := range orders {
		require.NotNil(t, o.UserID)
		assert.Equal(t, alice, *o.UserID)
	}

	summary, err := svc.StatusSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), summary[domain.StatusPending].Count)
}

func TestServiceIdempotentResponses(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	got, err := svc.GetIdempotentResponse(ctx, "key-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, svc.SaveIdempotentResponse(ctx, "key-1", ports.StoredResponse{StatusCode: 201, Body: []byte(`{}`), OrderID: 9}))

	got, err = svc.GetIdempotentResponse(ctx, "key-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(9), got.OrderID)
}

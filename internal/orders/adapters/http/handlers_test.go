package http_test

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dejobratic/blogcommerce/internal/auth"
	idemmemory "github.com/dejobratic/blogcommerce/internal/idempotency/memory"
	"github.com/dejobratic/blogcommerce/internal/kafka"
	"github.com/dejobratic/blogcommerce/internal/middleware"
	httpadapter "github.com/dejobratic/blogcommerce/internal/orders/adapters/http"
	"github.com/dejobratic/blogcommerce/internal/orders/adapters/memory"
	"github.com/dejobratic/blogcommerce/internal/orders/app"
	"github.com/dejobratic/blogcommerce/internal/orders/domain"
	"github.com/dejobratic/blogcommerce/internal/orders/metrics"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

const prefix = "/api/v1/orders"

type testServer struct {
	handler http.Handler
	repo    *memory.Repository
	tokens  *auth.Tokens
}

func newTestServer(t *testing.T, limiter *middleware.RateLimiter) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := memory.NewRepository()

	m, err := metrics.NewMetrics(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	svc := app.NewService(repo, repo, kafka.NewLogEventBus(logger), idemmemory.NewStore(time.Hour), app.Settings{
		Shipping: domain.ShippingPolicy{
			FreeShippingThreshold: decimal.NewFromInt(1000),
			BaseCost:              decimal.NewFromInt(100),
		},
		MaxAttempts:     3,
		DefaultPageSize: 20,
		MaxPageSize:     100,
		UserMaxPageSize: 50,
	}, logger, m)

	tokens, err := auth.NewTokens("test-secret", "blogcommerce", time.Hour)
	require.NoError(t, err)

	mux := http.NewServeMux()
	httpadapter.NewHandler(svc, logger, httpadapter.Options{
		Prefix:        prefix,
		Currency:      "TWD",
		CreateLimiter: limiter,
	}).Register(mux)

	return &testServer{
		handler: auth.Authenticate(tokens, logger)(mux),
		repo:    repo,
		tokens:  tokens,
	}
}

func (s *testServer) token(t *testing.T, userID int64, role auth.Role) string {
	t.Helper()
	token, err := s.tokens.Issue(userID, role)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(method, path, token, body string, headers ...string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "10.0.0.1:1234"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func (s *testServer) seedProduct(price int64, stock int) int64 {
	p := s.repo.SaveProduct(domain.Product{
		Name:          "Widget",
		Price:         decimal.NewFromInt(price),
		StockQuantity: stock,
		IsActive:      true,
	})
	return p.ID
}

func cartJSON(productID int64, quantity int) string {
	return fmt.Sprintf(`{
		"customer_name": "Alice",
		"customer_email": "alice@example.com",
		"items": [{"product_id": %d, "quantity": %d, "unit_price": "1.00"}]
	}`, productID, quantity)
}

type orderBody struct {
	ID           int64           `json:"id"`
	OrderNumber  string          `json:"order_number"`
	Status       string          `json:"status"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	ShippingCost decimal.Decimal `json:"shipping_cost"`
	UserID       *int64          `json:"user_id"`
	Currency     string          `json:"currency"`
	Items        []struct {
		UnitPrice decimal.Decimal `json:"unit_price"`
	} `json:"items"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func detail(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[middleware.ErrorResponse](t, w).Detail
}

func TestCreateOrder(t *testing.T) {
	s := newTestServer(t, nil)
	productID := s.seedProduct(300, 5)

	w := s.do(http.MethodPost, prefix+"/", "", cartJSON(productID, 2))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	order := decode[orderBody](t, w)
	assert.Equal(t, "pending", order.Status)
	assert.True(t, order.TotalAmount.Equal(decimal.NewFromInt(700)))
	assert.True(t, order.ShippingCost.Equal(decimal.NewFromInt(100)))
	assert.True(t, order.Items[0].UnitPrice.Equal(decimal.NewFromInt(300)), "client unit_price is ignored")
	assert.Equal(t, "TWD", order.Currency)
	assert.Nil(t, order.UserID)
	assert.Equal(t, fmt.Sprintf("%s/%d", prefix, order.ID), w.Header().Get("Location"))
}

func TestCreateOrderRejections(t *testing.T) {
	s := newTestServer(t, nil)
	productID := s.seedProduct(100, 1)

	tests := []struct {
		name   string
		body   string
		detail string
	}{
		{"insufficient stock", cartJSON(productID, 2), fmt.Sprintf("insufficient stock for product %d (remaining 1)", productID)},
		{"unknown field", `{"customer_name":"A","customer_email":"a@b.co","items":[],"coupon":"X"}`, "unknown field"},
		{"malformed json", `{"customer_name":`, "invalid JSON payload"},
		{"empty body", "", "request body is required"},
		{"empty cart", `{"customer_name":"A","customer_email":"a@b.co","items":[]}`, "cart is empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodPost, prefix+"/", "", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, detail(t, w), tt.detail)
		})
	}

	p, _ := s.repo.Product(productID)
	assert.Equal(t, 1, p.StockQuantity)
}

func TestCreateOrderIdempotencyKey(t *testing.T) {
	s := newTestServer(t, nil)
	productID := s.seedProduct(300, 5)

	first := s.do(http.MethodPost, prefix+"/", "", cartJSON(productID, 1), "Idempotency-Key", "abc-123")
	require.Equal(t, http.StatusCreated, first.Code)

	second := s.do(http.MethodPost, prefix+"/", "", cartJSON(productID, 1), "Idempotency-Key", "abc-123")
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, first.Body.String(), second.Body.String())

	p, _ := s.repo.Product(productID)
	assert.Equal(t, 4, p.StockQuantity)
}

func TestCreateOrderIdempotencyKeyIsScopedToCaller(t *testing.T) {
	s := newTestServer(t, nil)
	productID := s.seedProduct(300, 5)
	alice := s.token(t, 7, auth.RoleUser)
	bob := s.token(t, 8, auth.RoleUser)

	first := decode[orderBody](t, s.do(http.MethodPost, prefix+"/", alice, cartJSON(productID, 1), "Idempotency-Key", "shared-key"))

	tests := []struct {
		name  string
		token string
	}{
		{"other user", bob},
		{"anonymous", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodPost, prefix+"/", tt.token, cartJSON(productID, 1), "Idempotency-Key", "shared-key")
			require.Equal(t, http.StatusCreated, w.Code)
			assert.Empty(t, w.Header().Get("Idempotent-Replayed"))
			assert.NotEqual(t, first.ID, decode[orderBody](t, w).ID)
		})
	}

	replay := s.do(http.MethodPost, prefix+"/", alice, cartJSON(productID, 1), "Idempotency-Key", "shared-key")
	assert.Equal(t, "true", replay.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, first.ID, decode[orderBody](t, replay).ID)

	p, _ := s.repo.Product(productID)
	assert.Equal(t, 2, p.StockQuantity)
}

func TestCreateOrderRejectsOversizedCart(t *testing.T) {
	s := newTestServer(t, nil)
	productID := s.seedProduct(6_000_000_000, 5)

	w := s.do(http.MethodPost, prefix+"/", "", cartJSON(productID, 2))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, detail(t, w), fmt.Sprintf("total_price for product %d must be less than 10000000000", productID))

	p, _ := s.repo.Product(productID)
	assert.Equal(t, 5, p.StockQuantity)
}

func TestCreateOrderRateLimited(t *testing.T) {
	s := newTestServer(t, middleware.NewRateLimiter(0.001, 1, auth.RateLimitKey))
	productID := s.seedProduct(10, 10)

	assert.Equal(t, http.StatusCreated, s.do(http.MethodPost, prefix+"/", "", cartJSON(productID, 1)).Code)

	w := s.do(http.MethodPost, prefix+"/", "", cartJSON(productID, 1))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "too many requests", detail(t, w))

	signedIn := s.token(t, 3, auth.RoleUser)
	assert.Equal(t, http.StatusCreated, s.do(http.MethodPost, prefix+"/", signedIn, cartJSON(productID, 1)).Code)
}

func TestGetOrderOwnership(t *testing.T) {
	s := newTestServer(t, nil)
	productID := s.seedProduct(300, 5)
	owner := s.token(t, 7, auth.RoleUser)

	created := decode[orderBody](t, s.do(http.MethodPost, prefix+"/", owner, cartJSON(productID, 1)))
	require.NotNil(t, created.UserID)
	assert.Equal(t, int64(7), *created.UserID)
	path := fmt.Sprintf("%s/%d", prefix, created.ID)

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"owner", owner, http.StatusOK},
		{"admin", s.token(t, 1, auth.RoleAdmin), http.StatusOK},
		{"other user", s.token(t, 8, auth.RoleUser), http.StatusNotFound},
		{"anonymous", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.do(http.MethodGet, path, tt.token, "").Code)
		})
	}

	t.Run("by number is open", func(t *testing.T) {
		w := s.do(http.MethodGet, prefix+"/number/"+created.OrderNumber, "", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, created.ID, decode[orderBody](t, w).ID)
	})

	t.Run("unknown number", func(t *testing.T) {
		w := s.do(http.MethodGet, prefix+"/number/ORD00000000000000ZZZZZZ", "", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "order not found", detail(t, w))
	})

	t.Run("malformed id", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, prefix+"/abc", owner, "").Code)
	})
}

func TestUpdateOrder(t *testing.T) {
	s := newTestServer(t, nil)
	productID := s.seedProduct(300, 5)
	admin := s.token(t, 1, auth.RoleAdmin)

	created := decode[orderBody](t, s.do(http.MethodPost, prefix+"/", "", cartJSON(productID, 2)))
	path := fmt.Sprintf("%s/%d", prefix, created.ID)

	t.Run("requires admin", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPut, path, "", `{"status":"cancelled"}`).Code)
		assert.Equal(t, http.StatusForbidden, s.do(http.MethodPut, path, s.token(t, 7, auth.RoleUser), `{"status":"cancelled"}`).Code)
	})

	t.Run("cancel restocks once", func(t *testing.T) {
		for range 2 {
			w := s.do(http.MethodPut, path, admin, `{"status":"cancelled"}`)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.Equal(t, "cancelled", decode[orderBody](t, w).Status)

			p, _ := s.repo.Product(productID)
			assert.Equal(t, 5, p.StockQuantity)
		}
	})

	t.Run("cancelled is terminal", func(t *testing.T) {
		w := s.do(http.MethodPut, path, admin, `{"status":"pending"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown order", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, s.do(http.MethodPut, prefix+"/999", admin, `{"payment_status":"paid"}`).Code)
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPut, path, admin, `{"total_amount":"1"}`).Code)
	})
}

func TestListOrders(t *testing.T) {
	s := newTestServer(t, nil)
	productID := s.seedProduct(10, 100)
	admin := s.token(t, 1, auth.RoleAdmin)
	alice := s.token(t, 7, auth.RoleUser)

	s.do(http.MethodPost, prefix+"/", alice, cartJSON(productID, 1))
	s.do(http.MethodPost, prefix+"/", "", cartJSON(productID, 1))
	s.do(http.MethodPost, prefix+"/", alice, cartJSON(productID, 3))

	type summary struct {
		ID        int64  `json:"id"`
		ItemCount int    `json:"item_count"`
		Currency  string `json:"currency"`
	}

	t.Run("admin list", func(t *testing.T) {
		w := s.do(http.MethodGet, prefix+"/?limit=2", admin, "")
		require.Equal(t, http.StatusOK, w.Code)
		list := decode[[]summary](t, w)
		require.Len(t, list, 2)
		assert.Equal(t, 3, list[0].ItemCount, "newest first")
		assert.Equal(t, "TWD", list[0].Currency)
	})

	t.Run("admin list without trailing slash", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, s.do(http.MethodGet, prefix, admin, "").Code)
	})

	t.Run("admin list requires admin", func(t *testing.T) {
		assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, prefix+"/", alice, "").Code)
	})

	t.Run("bad pagination", func(t *testing.T) {
		assert.Equal(t, "limit must be an integer", detail(t, s.do(http.MethodGet, prefix+"/?limit=abc", admin, "")))
		assert.Equal(t, "limit must be between 1 and 100", detail(t, s.do(http.MethodGet, prefix+"/?limit=500", admin, "")))
		assert.Equal(t, `invalid status_filter "lost"`, detail(t, s.do(http.MethodGet, prefix+"/?status_filter=lost", admin, "")))
	})

	t.Run("my orders", func(t *testing.T) {
		w := s.do(http.MethodGet, prefix+"/my-orders/", alice, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode[[]summary](t, w), 2)

		assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, prefix+"/my-orders/", "", "").Code)
	})

	t.Run("status summary", func(t *testing.T) {
		w := s.do(http.MethodGet, prefix+"/status/summary", admin, "")
		require.Equal(t, http.StatusOK, w.Code)

		body := decode[struct {
			Currency string `json:"currency"`
			Statuses []struct {
				Status      string          `json:"status"`
				Count       int64           `json:"count"`
				TotalAmount decimal.Decimal `json:"total_amount"`
			} `json:"statuses"`
		}](t, w)
		require.Len(t, body.Statuses, len(domain.OrderStatuses))
		assert.Equal(t, "pending", body.Statuses[0].Status)
		assert.Equal(t, int64(3), body.Statuses[0].Count)
		assert.True(t, body.Statuses[0].TotalAmount.Equal(decimal.NewFromInt(350)))
	})
}

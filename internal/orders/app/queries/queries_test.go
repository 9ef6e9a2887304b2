package queries_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dejobratic/blogcommerce/internal/orders/adapters/memory"
	"github.com/dejobratic/blogcommerce/internal/orders/app/queries"
	"github.com/dejobratic/blogcommerce/internal/orders/domain"
	"github.com/dejobratic/blogcommerce/internal/orders/ports"
	"github.com/shopspring/decimal"
)

func seedOrder(t *testing.T, repo *memory.Repository, n int, status domain.OrderStatus, userID *int64) *domain.Order {
	t.Helper()
	createdAt := time.Date(2024, 1, 1, 0, 0, n, 0, time.UTC)
	order := &domain.Order{
		OrderNumber:   fmt.Sprintf("ORD%sAAA%03d", createdAt.Format("20060102150405"), n),
		Status:        status,
		PaymentStatus: domain.PaymentPending,
		TotalAmount:   decimal.NewFromInt(int64(100 * n)),
		ShippingCost:  decimal.Zero,
		CustomerName:  "Alice",
		CustomerEmail: "alice@example.com",
		UserID:        userID,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
	err := repo.WithinTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		return tx.InsertOrder(ctx, order)
	})
	if err != nil {
		t.Fatalf("failed to seed order: %v", err)
	}
	return order
}

func TestGetOrder(t *testing.T) {
	repo := memory.NewRepository()
	handler := queries.NewGetOrderQueryHandler(repo)
	ctx := context.Background()
	expected := seedOrder(t, repo, 1, domain.StatusPending, nil)

	t.Run("returns order by ID", func(t *testing.T) {
		result, err := handler.Handle(ctx, queries.GetOrderQuery{OrderID: expected.ID})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.OrderNumber != expected.OrderNumber {
			t.Errorf("expected number %s, got %s", expected.OrderNumber, result.OrderNumber)
		}
	})

	t.Run("returns order by number", func(t *testing.T) {
		result, err := handler.HandleByNumber(ctx, queries.GetOrderByNumberQuery{OrderNumber: " " + expected.OrderNumber + " "})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.ID != expected.ID {
			t.Errorf("expected ID %d, got %d", expected.ID, result.ID)
		}
	})

	t.Run("returns not found error for nonexistent order", func(t *testing.T) {
		result, err := handler.Handle(ctx, queries.GetOrderQuery{OrderID: 999})
		if !errors.Is(err, ports.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if result != nil {
			t.Errorf("expected nil result, got %+v", result)
		}

		_, err = handler.HandleByNumber(ctx, queries.GetOrderByNumberQuery{OrderNumber: "ORD00000000000000XXXXXX"})
		if !errors.Is(err, ports.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestGetOrderQueryValidation(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr string
	}{
		{"valid order ID", queries.GetOrderQuery{OrderID: 1}.Validate(), ""},
		{"zero order ID", queries.GetOrderQuery{}.Validate(), "order_id must be positive"},
		{"negative order ID", queries.GetOrderQuery{OrderID: -3}.Validate(), "order_id must be positive"},
		{"whitespace order number", queries.GetOrderByNumberQuery{OrderNumber: "  \t  "}.Validate(), "order_number is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.wantErr == "" {
				if tt.err != nil {
					t.Errorf("expected no error, got %v", tt.err)
				}
				return
			}
			if tt.err == nil || tt.err.Error() != tt.wantErr {
				t.Errorf("expected error %q, got %v", tt.wantErr, tt.err)
			}
			if !domain.IsValidationError(tt.err) {
				t.Errorf("expected validation error, got %T", tt.err)
			}
		})
	}
}

func TestListOrders(t *testing.T) {
	repo := memory.NewRepository()
	handler := queries.NewListOrdersQueryHandler(repo, 100, 50)
	ctx := context.Background()
	alice, bob := int64(7), int64(8)

	seedOrder(t, repo, 1, domain.StatusPending, &alice)
	seedOrder(t, repo, 2, domain.StatusShipped, &bob)
	seedOrder(t, repo, 3, domain.StatusPending, nil)
	latest := seedOrder(t, repo, 4, domain.StatusCancelled, &alice)

	t.Run("admin listing is newest first", func(t *testing.T) {
		orders, err := handler.Handle(ctx, queries.ListOrdersQuery{Limit: 20})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(orders) != 4 || orders[0].ID != latest.ID {
			t.Errorf("expected 4 orders led by %d, got %d", latest.ID, len(orders))
		}
	})

	t.Run("admin listing filters by status", func(t *testing.T) {
		pending := domain.StatusPending
		orders, err := handler.Handle(ctx, queries.ListOrdersQuery{Limit: 20, Status: &pending})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(orders) != 2 {
			t.Errorf("expected 2 pending orders, got %d", len(orders))
		}
	})

	t.Run("user listing returns only owned orders", func(t *testing.T) {
		orders, err := handler.HandleForUser(ctx, queries.ListUserOrdersQuery{UserID: alice, Limit: 50})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(orders) != 2 {
			t.Fatalf("expected 2 orders, got %d", len(orders))
		}
		for _, o := range orders {
			if o.UserID == nil || *o.UserID != alice {
				t.Errorf("order %d is not owned by %d", o.ID, alice)
			}
		}
	})

	t.Run("rejects bad pagination", func(t *testing.T) {
		bogus := domain.OrderStatus("lost")
		cases := []struct {
			name string
			run  func() error
			msg  string
		}{
			{"negative skip", func() error {
				_, err := handler.Handle(ctx, queries.ListOrdersQuery{Skip: -1, Limit: 10})
				return err
			}, "skip must not be negative"},
			{"zero limit", func() error {
				_, err := handler.Handle(ctx, queries.ListOrdersQuery{Limit: 0})
				return err
			}, "limit must be between 1 and 100"},
			{"admin limit above max", func() error {
				_, err := handler.Handle(ctx, queries.ListOrdersQuery{Limit: 101})
				return err
			}, "limit must be between 1 and 100"},
			{"user limit above max", func() error {
				_, err := handler.HandleForUser(ctx, queries.ListUserOrdersQuery{UserID: alice, Limit: 51})
				return err
			}, "limit must be between 1 and 50"},
			{"unknown status filter", func() error {
				_, err := handler.Handle(ctx, queries.ListOrdersQuery{Limit: 10, Status: &bogus})
				return err
			}, `invalid status_filter "lost"`},
		}

		for _, c := range cases {
			t.Run(c.name, func(t *testing.T) {
				err := c.run()
				if !domain.IsValidationError(err) {
					t.Fatalf("expected validation error, got %v", err)
				}
				if err.Error() != c.msg {
					t.Errorf("expected %q, got %q", c.msg, err.Error())
				}
			})
		}
	})
}

func TestStatusSummary(t *testing.T) {
	repo := memory.NewRepository()
	handler := queries.NewStatusSummaryQueryHandler(repo)

	seedOrder(t, repo, 1, domain.StatusPending, nil)
	seedOrder(t, repo, 2, domain.StatusPending, nil)
	seedOrder(t, repo, 3, domain.StatusDelivered, nil)

	summary, err := handler.Handle(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(summary) != len(domain.OrderStatuses) {
		t.Errorf("expected every status to be reported, got %d", len(summary))
	}
	if got := summary[domain.StatusPending]; got.Count != 2 || !got.TotalAmount.Equal(decimal.NewFromInt(300)) {
		t.Errorf("unexpected pending aggregate: %+v", got)
	}
	if got := summary[domain.StatusDelivered]; got.Count != 1 || !got.TotalAmount.Equal(decimal.NewFromInt(300)) {
		t.Errorf("unexpected delivered aggregate: %+v", got)
	}
	if got := summary[domain.StatusCancelled]; got.Count != 0 || !got.TotalAmount.IsZero() {
		t.Errorf("expected zero cancelled aggregate, got %+v", got)
	}
}

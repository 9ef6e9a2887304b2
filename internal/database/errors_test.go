package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"serialization failure", &pgconn.PgError{Code: CodeSerializationFailure}, true},
		{"wrapped deadlock", fmt.Errorf("update stock: %w", &pgconn.PgError{Code: CodeDeadlockDetected}), true},
		{"unique violation", &pgconn.PgError{Code: CodeUniqueViolation}, false},
		{"plain error", errors.New("connection refused"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsConstraintViolation(t *testing.T) {
	err := fmt.Errorf("insert order: %w", &pgconn.PgError{
		Code:           CodeUniqueViolation,
		ConstraintName: "orders_order_number_key",
	})

	if !IsConstraintViolation(err, CodeUniqueViolation, "orders_order_number_key") {
		t.Error("expected order number violation to match")
	}
	if !IsConstraintViolation(err, CodeUniqueViolation, "") {
		t.Error("expected any-constraint match")
	}
	if IsConstraintViolation(err, CodeUniqueViolation, "products_slug_key") {
		t.Error("expected different constraint not to match")
	}
	if IsConstraintViolation(err, CodeCheckViolation, "orders_order_number_key") {
		t.Error("expected different code not to match")
	}
}

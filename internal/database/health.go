package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrSchemaMissing = errors.New("orders schema has not been migrated")

// CheckHealth reports the database as ready once it answers a ping and the orders
// tables exist.
func CheckHealth(ctx context.Context, pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	var migrated bool
	err := pool.QueryRow(ctx,
		`SELECT to_regclass('public.orders') IS NOT NULL AND to_regclass('public.products') IS NOT NULL`,
	).Scan(&migrated)
	if err != nil {
		return fmt.Errorf("check schema: %w", err)
	}
	if !migrated {
		return ErrSchemaMissing
	}
	return nil
}

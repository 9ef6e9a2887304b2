package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Query outcomes recorded alongside each duration sample.
const (
	OutcomeSuccess  = "success"
	OutcomeConflict = "conflict"
	OutcomeRejected = "rejected"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

type Metrics struct {
	queryDuration metric.Float64Histogram
	queriesTotal  metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.queryDuration, err = meter.Float64Histogram(
		"db_query_duration_seconds",
		metric.WithDescription("Database query duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create db_query_duration histogram: %w", err)
	}

	m.queriesTotal, err = meter.Int64Counter(
		"db_queries_total",
		metric.WithDescription("Database operations by outcome"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create db_queries_total counter: %w", err)
	}

	return m, nil
}

func (m *Metrics) RecordQuery(ctx context.Context, operation, outcome string, durationSeconds float64) {
	m.queryDuration.Record(ctx, durationSeconds, metric.WithAttributes(
		attribute.String("operation", operation),
	))
	m.queriesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

// RegisterPoolMetrics exports connection pool gauges read from pool.Stat on every collection.
func RegisterPoolMetrics(meter metric.Meter, pool *pgxpool.Pool) (metric.Registration, error) {
	acquired, err := meter.Int64ObservableGauge("db_pool_acquired_connections",
		metric.WithDescription("Connections currently checked out of the pool"))
	if err != nil {
		return nil, fmt.Errorf("create db_pool_acquired_connections gauge: %w", err)
	}

	idle, err := meter.Int64ObservableGauge("db_pool_idle_connections",
		metric.WithDescription("Idle connections held by the pool"))
	if err != nil {
		return nil, fmt.Errorf("create db_pool_idle_connections gauge: %w", err)
	}

	maxConns, err := meter.Int64ObservableGauge("db_pool_max_connections",
		metric.WithDescription("Configured pool size"))
	if err != nil {
		return nil, fmt.Errorf("create db_pool_max_connections gauge: %w", err)
	}

	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stat := pool.Stat()
		o.ObserveInt64(acquired, int64(stat.AcquiredConns()))
		o.ObserveInt64(idle, int64(stat.IdleConns()))
		o.ObserveInt64(maxConns, int64(stat.MaxConns()))
		return nil
	}, acquired, idle, maxConns)
}

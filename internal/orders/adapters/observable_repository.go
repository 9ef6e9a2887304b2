package adapters

import (
	"context"
	"errors"
	"time"

	"github.com/dejobratic/blogcommerce/internal/database"
	"github.com/dejobratic/blogcommerce/internal/orders/domain"
	"github.com/dejobratic/blogcommerce/internal/orders/ports"
	"github.com/dejobratic/blogcommerce/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// Store is a transactional order store that also serves reads.
type Store interface {
	ports.UnitOfWork
	ports.OrderReader
}

type ObservableRepository struct {
	repo    Store
	metrics *database.Metrics
}

func NewObservableRepository(repo Store, metrics *database.Metrics) *ObservableRepository {
	return &ObservableRepository{
		repo:    repo,
		metrics: metrics,
	}
}

func (r *ObservableRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ports.Tx) error) error {
	ctx, span := telemetry.StartSpan(ctx, "OrderRepository.WithinTx")
	defer span.End()

	telemetry.AddSpanAttributes(span, attribute.String("operation", "transaction"))

	start := time.Now()
	err := r.repo.WithinTx(ctx, fn)
	r.metrics.RecordQuery(ctx, "transaction", queryOutcome(err), time.Since(start).Seconds())

	if err != nil {
		telemetry.AddSpanAttributes(span, attribute.Bool("tx.conflict", errors.Is(err, ports.ErrConflict)))
	}
	telemetry.EndOutcome(span, err, expectedOutcome)
	return err
}

func (r *ObservableRepository) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	ctx, span := telemetry.StartSpan(ctx, "OrderRepository.GetByID")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.Int64("order.id", id),
		attribute.String("operation", "get_by_id"),
	)

	start := time.Now()
	order, err := r.repo.GetByID(ctx, id)
	r.metrics.RecordQuery(ctx, "get_order_by_id", queryOutcome(err), time.Since(start).Seconds())

	telemetry.EndOutcome(span, err, expectedOutcome)
	return order, err
}

func (r *ObservableRepository) GetByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	ctx, span := telemetry.StartSpan(ctx, "OrderRepository.GetByNumber")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("order.number", orderNumber),
		attribute.String("operation", "get_by_number"),
	)

	start := time.Now()
	order, err := r.repo.GetByNumber(ctx, orderNumber)
	r.metrics.RecordQuery(ctx, "get_order_by_number", queryOutcome(err), time.Since(start).Seconds())

	telemetry.EndOutcome(span, err, expectedOutcome)
	return order, err
}

func (r *ObservableRepository) List(ctx context.Context, filter ports.ListFilter) ([]domain.Order, error) {
	ctx, span := telemetry.StartSpan(ctx, "OrderRepository.List")
	defer span.End()

	attrs := []attribute.KeyValue{
		attribute.String("operation", "list"),
		attribute.Int("skip", filter.Skip),
		attribute.Int("limit", filter.Limit),
	}
	if filter.Status != nil {
		attrs = append(attrs, attribute.String("filter.status", string(*filter.Status)))
	}
	if filter.UserID != nil {
		attrs = append(attrs, attribute.Int64("filter.user_id", *filter.UserID))
	}
	telemetry.AddSpanAttributes(span, attrs...)

	start := time.Now()
	orders, err := r.repo.List(ctx, filter)
	r.metrics.RecordQuery(ctx, "list_orders", queryOutcome(err), time.Since(start).Seconds())

	if err == nil {
		telemetry.AddSpanAttributes(span, attribute.Int("result.count", len(orders)))
	}
	telemetry.EndOutcome(span, err, expectedOutcome)
	return orders, err
}

func (r *ObservableRepository) StatusSummary(ctx context.Context) (map[domain.OrderStatus]ports.StatusAggregate, error) {
	ctx, span := telemetry.StartSpan(ctx, "OrderRepository.StatusSummary")
	defer span.End()

	telemetry.AddSpanAttributes(span, attribute.String("operation", "status_summary"))

	start := time.Now()
	summary, err := r.repo.StatusSummary(ctx)
	r.metrics.RecordQuery(ctx, "order_status_summary", queryOutcome(err), time.Since(start).Seconds())

	telemetry.EndOutcome(span, err, expectedOutcome)
	return summary, err
}

func queryOutcome(err error) string {
	switch {
	case err == nil:
		return database.OutcomeSuccess
	case errors.Is(err, ports.ErrConflict):
		return database.OutcomeConflict
	case errors.Is(err, ports.ErrNotFound):
		return database.OutcomeNotFound
	case domain.IsValidationError(err):
		return database.OutcomeRejected
	default:
		return database.OutcomeError
	}
}

// expectedOutcome treats rejected carts and missing orders as normal results
// rather than span failures.
func expectedOutcome(err error) (string, bool) {
	switch {
	case domain.IsValidationError(err):
		return "rejected", true
	case errors.Is(err, ports.ErrNotFound):
		return "not_found", true
	default:
		return "", false
	}
}

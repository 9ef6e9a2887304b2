package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dejobratic/blogcommerce/internal/auth"
	"github.com/dejobratic/blogcommerce/internal/middleware"
	"github.com/dejobratic/blogcommerce/internal/orders/app"
	"github.com/dejobratic/blogcommerce/internal/orders/domain"
	"github.com/dejobratic/blogcommerce/internal/orders/ports"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	replayedHeader       = "Idempotent-Replayed"
	maxBodyBytes         = 1 << 20
)

// Options tunes how the order routes are mounted.
type Options struct {
	Prefix   string
	Currency string
	// CreateLimiter throttles POST requests when set.
	CreateLimiter *middleware.RateLimiter
}

// Handler exposes HTTP endpoints for order operations.
type Handler struct {
	service *app.Service
	logger  *slog.Logger
	opts    Options
}

// NewHandler constructs a Handler.
func NewHandler(service *app.Service, logger *slog.Logger, opts Options) *Handler {
	opts.Prefix = strings.TrimSuffix(opts.Prefix, "/")
	return &Handler{service: service, logger: logger, opts: opts}
}

// Register binds the order routes to mux. Callers must run auth.Authenticate in
// front of mux so that principals are available to the guards.
func (h *Handler) Register(mux *http.ServeMux) {
	p := h.opts.Prefix

	create := http.Handler(http.HandlerFunc(h.createOrder))
	if h.opts.CreateLimiter != nil {
		create = h.opts.CreateLimiter.Middleware(create)
	}
	list := auth.RequireAdmin(http.HandlerFunc(h.listOrders))

	mux.Handle("GET "+p, list)
	mux.Handle("GET "+p+"/{$}", list)
	mux.Handle("POST "+p, create)
	mux.Handle("POST "+p+"/{$}", create)
	mux.HandleFunc("GET "+p+"/{id}", h.getOrder)
	mux.Handle("PUT "+p+"/{id}", auth.RequireAdmin(http.HandlerFunc(h.updateOrder)))
	mux.HandleFunc("GET "+p+"/number/{number}", h.getOrderByNumber)
	mux.Handle("GET "+p+"/status/summary", auth.RequireAdmin(http.HandlerFunc(h.statusSummary)))
	mux.Handle("GET "+p+"/my-orders/{$}", auth.RequireUser(http.HandlerFunc(h.myOrders)))
}

// idempotencyScope namespaces a client key by the caller so one principal can never
// replay another's stored order. An empty key stays empty.
func idempotencyScope(userID *int64, key string) string {
	switch {
	case key == "":
		return ""
	case userID == nil:
		return "anon:" + key
	default:
		return "user:" + strconv.FormatInt(*userID, 10) + ":" + key
	}
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var userID *int64
	if principal, ok := auth.PrincipalFrom(ctx); ok {
		userID = &principal.UserID
	}
	idemKey := idempotencyScope(userID, strings.TrimSpace(r.Header.Get(idempotencyKeyHeader)))

	if idemKey != "" {
		stored, err := h.service.GetIdempotentResponse(ctx, idemKey)
		if err != nil {
			h.writeServiceError(w, r, fmt.Errorf("lookup idempotency key: %w", err))
			return
		}
		if stored != nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set(replayedHeader, "true")
			w.WriteHeader(stored.StatusCode)
			_, _ = w.Write(stored.Body)
			return
		}
	}

	var payload app.CreateOrderInput
	if err := decodeJSON(w, r, &payload); err != nil {
		middleware.WriteDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	order, err := h.service.CreateOrder(ctx, payload, userID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	body, err := json.Marshal(h.toOrderResponse(*order))
	if err != nil {
		h.writeServiceError(w, r, fmt.Errorf("encode order: %w", err))
		return
	}

	if idemKey != "" {
		stored := ports.StoredResponse{
			StatusCode: http.StatusCreated,
			Body:       body,
			OrderID:    order.ID,
		}
		if err := h.service.SaveIdempotentResponse(ctx, idemKey, stored); err != nil {
			h.logger.WarnContext(ctx, "failed to store idempotent response",
				"order_id", order.ID,
				"error", err,
			)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Location", fmt.Sprintf("%s/%d", h.opts.Prefix, order.ID))
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(body)
}

// getOrder is visible to admins and to the user who placed the order. Anyone else
// gets the same 404 as for a missing order.
func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if !canView(r, order) {
		h.writeServiceError(w, r, ports.ErrNotFound)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, h.toOrderResponse(*order))
}

func (h *Handler) getOrderByNumber(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.GetOrderByNumber(r.Context(), r.PathValue("number"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, h.toOrderResponse(*order))
}

func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var payload app.UpdateOrderInput
	if err := decodeJSON(w, r, &payload); err != nil {
		middleware.WriteDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	order, err := h.service.UpdateOrder(r.Context(), id, payload)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, h.toOrderResponse(*order))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	skip, limit, ok := h.parsePage(w, r)
	if !ok {
		return
	}

	var status *domain.OrderStatus
	if value := strings.TrimSpace(r.URL.Query().Get("status_filter")); value != "" {
		s := domain.OrderStatus(value)
		status = &s
	}

	orders, err := h.service.ListOrders(r.Context(), skip, limit, status)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, h.summaries(orders))
}

func (h *Handler) myOrders(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFrom(r.Context())

	skip, limit, ok := h.parsePage(w, r)
	if !ok {
		return
	}

	orders, err := h.service.ListUserOrders(r.Context(), principal.UserID, skip, limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, h.summaries(orders))
}

func (h *Handler) statusSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.StatusSummary(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, newStatusSummaryResponse(summary, h.opts.Currency))
}

func (h *Handler) parsePage(w http.ResponseWriter, r *http.Request) (skip, limit int, ok bool) {
	query := r.URL.Query()
	limit = h.service.DefaultPageSize()

	if value := query.Get("skip"); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			middleware.WriteDetail(w, http.StatusBadRequest, "skip must be an integer")
			return 0, 0, false
		}
		skip = parsed
	}

	if value := query.Get("limit"); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			middleware.WriteDetail(w, http.StatusBadRequest, "limit must be an integer")
			return 0, 0, false
		}
		limit = parsed
	}

	return skip, limit, true
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		middleware.WriteDetail(w, http.StatusBadRequest, "order id must be a positive integer")
		return 0, false
	}
	return id, true
}

func canView(r *http.Request, order *domain.Order) bool {
	principal, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		return false
	}
	if principal.IsAdmin() {
		return true
	}
	return order.UserID != nil && *order.UserID == principal.UserID
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return fmt.Errorf("invalid JSON payload: %w", err)
	}
	if decoder.More() {
		return errors.New("invalid JSON payload: unexpected trailing data")
	}
	return nil
}

// writeServiceError maps core errors onto the {"detail"} envelope. Anything that is
// not a validation or lookup failure is logged and reported as a generic 500.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case domain.IsValidationError(err):
		middleware.WriteDetail(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ports.ErrNotFound):
		middleware.WriteDetail(w, http.StatusNotFound, "order not found")
	default:
		h.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		middleware.WriteDetail(w, http.StatusInternalServerError, "internal server error")
	}
}

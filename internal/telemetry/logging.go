package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// NewLogger returns a JSON logger that stamps every record with the service name,
// the attributes stored by WithLogAttrs and, when the context carries a span, its
// trace and span ids.
func NewLogger(w io.Writer, level slog.Level, service string) *slog.Logger {
	logger := slog.New(&contextHandler{
		base: slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}),
	})
	if service != "" {
		logger = logger.With("service", service)
	}
	return logger
}

// ParseLevel maps debug, info, warn and error (case-insensitive) to a slog level.
func ParseLevel(value string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", value, err)
	}
	return level, nil
}

type logAttrsKey struct{}

// WithLogAttrs returns a context whose log records carry attrs in addition to any
// attributes already attached to ctx.
func WithLogAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	existing := logAttrsFrom(ctx)
	merged := make([]slog.Attr, 0, len(existing)+len(attrs))
	merged = append(merged, existing...)
	merged = append(merged, attrs...)
	return context.WithValue(ctx, logAttrsKey{}, merged)
}

func logAttrsFrom(ctx context.Context) []slog.Attr {
	attrs, _ := ctx.Value(logAttrsKey{}).([]slog.Attr)
	return attrs
}

// handlerOp is a deferred WithAttrs or WithGroup call. Context attributes have to be
// applied at the top level before any of them, so they are replayed per record.
type handlerOp struct {
	group string
	attrs []slog.Attr
}

type contextHandler struct {
	base slog.Handler
	ops  []handlerOp
}

func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	top := logAttrsFrom(ctx)
	if traceID := TraceID(ctx); traceID != "" {
		top = append(top[:len(top):len(top)], slog.String("trace_id", traceID), slog.String("span_id", SpanID(ctx)))
	}

	handler := h.base
	if len(top) > 0 {
		handler = handler.WithAttrs(top)
	}
	for _, op := range h.ops {
		if op.group != "" {
			handler = handler.WithGroup(op.group)
			continue
		}
		handler = handler.WithAttrs(op.attrs)
	}

	return handler.Handle(ctx, r)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	return h.with(handlerOp{attrs: attrs})
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return h.with(handlerOp{group: name})
}

func (h *contextHandler) with(op handlerOp) *contextHandler {
	ops := make([]handlerOp, len(h.ops), len(h.ops)+1)
	copy(ops, h.ops)
	return &contextHandler{base: h.base, ops: append(ops, op)}
}

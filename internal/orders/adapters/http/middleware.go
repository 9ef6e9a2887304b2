package http

import (
	"net/http"
	"time"
)

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// WithMetrics records every request against the mux pattern that served it so
// that order ids do not leak into metric labels.
func WithMetrics(next http.Handler, metrics *Metrics) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		metrics.Started(r.Context(), r.Method)

		// Deferred so a panicking handler still leaves the in-flight gauge balanced.
		defer func() {
			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			metrics.RecordRequest(r.Context(), r.Method, route, sw.status, time.Since(start).Seconds())
		}()

		next.ServeHTTP(sw, r)
	})
}

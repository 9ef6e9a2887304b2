package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	metrics, err := NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test"))
	require.NoError(t, err)
	return metrics, reader
}

func TestRecordRequest(t *testing.T) {
	metrics, reader := newTestMetrics(t)
	ctx := context.Background()

	metrics.Started(ctx, "GET")
	metrics.RecordRequest(ctx, "GET", "GET /api/v1/orders/{id}", 200, 0.5)
	metrics.Started(ctx, "POST")
	metrics.RecordRequest(ctx, "POST", "POST /api/v1/orders/{$}", 201, 0.7)
	metrics.Started(ctx, "POST")

	data := collect(t, reader)

	total, ok := data["http_requests_total"].(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Len(t, total.DataPoints, 2)

	histogram, ok := data["http_request_duration_seconds"].(metricdata.Histogram[float64])
	require.True(t, ok)
	assert.Len(t, histogram.DataPoints, 2)

	inFlight, ok := data["http_requests_in_flight"].(metricdata.Sum[int64])
	require.True(t, ok)
	for _, dp := range inFlight.DataPoints {
		method, _ := dp.Attributes.Value(attribute.Key("method"))
		switch method.AsString() {
		case "GET":
			assert.Equal(t, int64(0), dp.Value)
		case "POST":
			assert.Equal(t, int64(1), dp.Value)
		}
	}
}

func TestWithMetricsUsesRoutePattern(t *testing.T) {
	metrics, reader := newTestMetrics(t)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /orders/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	handler := WithMetrics(mux, metrics)

	for _, path := range []string{"/orders/1", "/orders/2", "/nowhere"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	total, ok := collect(t, reader)["http_requests_total"].(metricdata.Sum[int64])
	require.True(t, ok)

	counts := make(map[string]int64)
	for _, dp := range total.DataPoints {
		route, _ := dp.Attributes.Value(attribute.Key("route"))
		counts[route.AsString()] += dp.Value
	}
	assert.Equal(t, map[string]int64{"GET /orders/{id}": 2, "unmatched": 1}, counts)
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(201))
	assert.Equal(t, "4xx", statusClass(429))
	assert.Equal(t, "5xx", statusClass(500))
	assert.Equal(t, "unknown", statusClass(0))
}

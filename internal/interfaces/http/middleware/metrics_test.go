package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

func findMetricByName(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestHTTPMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	router := gin.New()
	router.Use(HTTPMetrics(mp.Meter("http.server")))
	router.GET("/api/v1/orders/:orderId", func(c *gin.Context) {
		c.Status(http.StatusNotFound)
	})

	for _, id := range []string{"ORD-1", "ORD-2", "ORD-3"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+id, nil))
	}
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/wp-login.php", nil))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	total := findMetricByName(rm, "http.server.request.count")
	require.NotNil(t, total)
	sum, ok := total.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 2, "one series per route pattern")

	byRoute := map[string]metricdata.DataPoint[int64]{}
	for _, dp := range sum.DataPoints {
		route, _ := dp.Attributes.Value(semconv.HTTPRouteKey)
		byRoute[route.AsString()] = dp
	}
	orders := byRoute["/api/v1/orders/:orderId"]
	assert.Equal(t, int64(3), orders.Value)
	group, _ := orders.Attributes.Value(attrAPIGroup)
	assert.Equal(t, "orders", group.AsString())
	status, _ := orders.Attributes.Value(semconv.HTTPResponseStatusCodeKey)
	assert.Equal(t, int64(http.StatusNotFound), status.AsInt64())
	assert.Equal(t, int64(1), byRoute[unmatchedRoute].Value)

	require.NotNil(t, findMetricByName(rm, "http.server.request.duration"))
	active := findMetricByName(rm, "http.server.active_requests")
	require.NotNil(t, active)
	for _, dp := range active.Data.(metricdata.Sum[int64]).DataPoints {
		assert.Zero(t, dp.Value, "every request finished")
	}
}

func TestAPIGroup(t *testing.T) {
	tests := map[string]string{
		"/api/v1/refunds/:id/split":               "refunds",
		"/api/v1/reconciliation/variance-report":  "reconciliation",
		"/api/v1/reports/refund-summary":          "reports",
		"/api/v1/health":                          "system",
		"/api/v1/system/ping":                     "system",
		"/api/v1":                                 unmatchedRoute,
		"/metrics":                                unmatchedRoute,
		unmatchedRoute:                            unmatchedRoute,
	}
	for route, want := range tests {
		assert.Equal(t, want, apiGroup(route), route)
	}
}

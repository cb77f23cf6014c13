package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/erp/refundtracker/internal/infrastructure/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	t.Cleanup(func() {
		_ = tp.Shutdown(t.Context())
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
	return sr
}

func spanAttrs(span sdktrace.ReadOnlySpan) map[string]string {
	out := map[string]string{}
	for _, kv := range span.Attributes() {
		out[string(kv.Key)] = kv.Value.Emit()
	}
	return out
}

func tracedRouter(cfg TracingConfig) *gin.Engine {
	r := gin.New()
	r.Use(logger.RequestID())
	r.Use(Tracing(cfg))
	r.Use(SpanAttributes())
	return r
}

func TestTracing_Disabled(t *testing.T) {
	sr := setupTestTracer(t)

	r := tracedRouter(TracingConfig{Enabled: false, ServiceName: "refund-tracker"})
	r.GET("/api/v1/refunds", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/refunds", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, sr.Ended())
}

func TestTracing_SkipsHealthChecks(t *testing.T) {
	sr := setupTestTracer(t)

	r := tracedRouter(TracingConfig{Enabled: true, ServiceName: "refund-tracker"})
	r.GET("/api/v1/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/v1/system/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/v1/reports/refund-summary", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/api/v1/health", "/api/v1/system/ping", "/api/v1/reports/refund-summary"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.Len(t, sr.Ended(), 1)
	assert.Equal(t, "GET /api/v1/reports/refund-summary", sr.Ended()[0].Name())
}

func TestSpanAttributes_RouteAndActor(t *testing.T) {
	sr := setupTestTracer(t)

	r := tracedRouter(TracingConfig{Enabled: true, ServiceName: "refund-tracker"})
	api := r.Group("/api/v1")
	// Stands in for JWT authentication, which runs on the API group after tracing
	api.Use(func(c *gin.Context) {
		ctx, _ := logger.WithActor(c.Request.Context(), zap.NewNop(), "staff-1")
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})
	api.GET("/orders/:orderId", func(c *gin.Context) { c.Status(http.StatusOK) })
	api.POST("/reconciliation/:refundId/reconcile", func(c *gin.Context) { c.Status(http.StatusCreated) })

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/ORD-42", nil)
	req.Header.Set(logger.RequestIDHeader, "req-123")
	r.ServeHTTP(httptest.NewRecorder(), req)
	r.ServeHTTP(httptest.NewRecorder(),
		httptest.NewRequest(http.MethodPost, "/api/v1/reconciliation/rd-7/reconcile", nil))

	spans := sr.Ended()
	require.Len(t, spans, 2)

	order := spanAttrs(spans[0])
	assert.Equal(t, "GET /api/v1/orders/:orderId", spans[0].Name())
	assert.Equal(t, "req-123", order[SpanAttrRequestID])
	assert.Equal(t, "staff-1", order[SpanAttrActor])
	assert.Equal(t, "ORD-42", order["order_id"])
	assert.NotContains(t, order, "refund_detail_id")
	assert.Equal(t, codes.Unset, spans[0].Status().Code)

	reconcile := spanAttrs(spans[1])
	assert.Equal(t, "rd-7", reconcile["refund_detail_id"])
}

func TestSpanAttributes_HeaderActor(t *testing.T) {
	sr := setupTestTracer(t)

	r := tracedRouter(TracingConfig{Enabled: true, ServiceName: "refund-tracker"})
	r.DELETE("/api/v1/refunds/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/refunds/rd-9", nil)
	req.Header.Set(UserIDHeader, "clerk-3")
	r.ServeHTTP(httptest.NewRecorder(), req)

	require.Len(t, sr.Ended(), 1)
	attrs := spanAttrs(sr.Ended()[0])
	assert.Equal(t, "clerk-3", attrs[SpanAttrActor])
	assert.Equal(t, "rd-9", attrs["refund_detail_id"])
}

func TestSpanAttributes_ErrorStatus(t *testing.T) {
	tests := []struct {
		status   int
		wantCode codes.Code
	}{
		{http.StatusOK, codes.Unset},
		{http.StatusBadRequest, codes.Error},
		{http.StatusNotFound, codes.Error},
		{http.StatusConflict, codes.Error},
		{http.StatusUnprocessableEntity, codes.Error},
		{http.StatusInternalServerError, codes.Error},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			sr := setupTestTracer(t)

			r := tracedRouter(TracingConfig{Enabled: true, ServiceName: "refund-tracker"})
			r.GET("/api/v1/refunds", func(c *gin.Context) { c.Status(tt.status) })
			r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/refunds", nil))

			require.Len(t, sr.Ended(), 1)
			span := sr.Ended()[0]
			assert.Equal(t, tt.wantCode, span.Status().Code)
			// otelgin owns the description of 5xx spans
			if tt.wantCode == codes.Error && tt.status < http.StatusInternalServerError {
				assert.Equal(t, http.StatusText(tt.status), span.Status().Description)
			}
		})
	}
}

func TestRequestIDFromContext_LongHeaderTruncated(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.Header.Set(logger.RequestIDHeader, strings.Repeat("x", 500))

	assert.Len(t, requestIDFromContext(c), MaxRequestIDLength)
}

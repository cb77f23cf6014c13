// Package middleware provides HTTP middleware for the refund accounting API.
package middleware

import (
	"net/http"
	"strings"

	"github.com/erp/refundtracker/internal/infrastructure/logger"
	"github.com/erp/refundtracker/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MaxRequestIDLength is the maximum length for request IDs taken from headers.
const MaxRequestIDLength = 128

// Span attribute keys set by SpanAttributes
const (
	SpanAttrRequestID = "request_id"
	SpanAttrActor     = "actor"
)

// healthCheckPaths are not traced; load balancers poll them continuously.
var healthCheckPaths = []string{"/health", "/system/ping"}

// TracingConfig holds configuration for the tracing middleware.
type TracingConfig struct {
	ServiceName string
	Enabled     bool
	// TraceHealthChecks also traces health and ping requests.
	TraceHealthChecks bool
}

// Tracing starts a server span per request through otelgin. Spans are named
// "METHOD route", e.g. "GET /api/v1/orders/:orderId".
func Tracing(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}

	var opts []otelgin.Option
	if !cfg.TraceHealthChecks {
		opts = append(opts, otelgin.WithFilter(func(r *http.Request) bool {
			for _, p := range healthCheckPaths {
				if strings.HasSuffix(r.URL.Path, p) {
					return false
				}
			}
			return true
		}))
	}
	return otelgin.Middleware(cfg.ServiceName, opts...)
}

// SpanAttributes decorates the request span once the handler chain has run,
// so the actor set by authentication further down the chain is visible.
// It must be installed after Tracing. Responses of 400 and above mark the span as failed.
func SpanAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}

		attrs := make([]attribute.KeyValue, 0, 4)
		if id := requestIDFromContext(c); id != "" {
			attrs = append(attrs, attribute.String(SpanAttrRequestID, id))
		}
		if actor := firstNonEmpty(logger.GetActor(c.Request.Context()), c.GetHeader(UserIDHeader)); actor != "" {
			attrs = append(attrs, attribute.String(SpanAttrActor, actor))
		}
		if id := c.Param("orderId"); id != "" {
			attrs = append(attrs, attribute.String(telemetry.SpanAttrOrderID, id))
		}
		// Both :id and :refundId name a refund detail
		if id := firstNonEmpty(c.Param("refundId"), c.Param("id")); id != "" {
			attrs = append(attrs, attribute.String(telemetry.SpanAttrRefundDetailID, id))
		}
		span.SetAttributes(attrs...)

		if status := c.Writer.Status(); status >= http.StatusBadRequest {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

package middleware

import (
	"strings"
	"time"

	"github.com/erp/refundtracker/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

// attrAPIGroup is the refund resource a route belongs to: refunds, returns,
// reconciliation, orders, reports or system.
const attrAPIGroup = attribute.Key("refund.api.group")

// unmatchedRoute labels requests that matched no route, keeping 404 scans in one series
const unmatchedRoute = "unmatched"

var httpDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// HTTPMetrics records request count, latency and in-flight requests per route
// pattern. Instruments that fail to register leave the middleware a pass-through.
func HTTPMetrics(meter metric.Meter) gin.HandlerFunc {
	in := telemetry.NewInstruments(meter)
	requests := in.Counter("http.server.request.count", "HTTP requests served", "{request}")
	duration := in.Seconds("http.server.request.duration", "Duration of HTTP server requests", httpDurationBuckets...)
	active := in.UpDownCounter("http.server.active_requests", "HTTP requests in flight", "{request}")
	if in.Err() != nil {
		return passThrough
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		start := time.Now()
		method := semconv.HTTPRequestMethodKey.String(c.Request.Method)

		active.Add(ctx, 1, metric.WithAttributes(method))
		defer active.Add(ctx, -1, metric.WithAttributes(method))
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		attrs := []attribute.KeyValue{
			method,
			semconv.HTTPRoute(route),
			attrAPIGroup.String(apiGroup(route)),
			semconv.HTTPResponseStatusCode(c.Writer.Status()),
		}
		requests.Inc(ctx, attrs...)
		duration.RecordDuration(ctx, time.Since(start), attrs...)
	}
}

func passThrough(c *gin.Context) { c.Next() }

// apiGroup takes the resource segment that follows /api/<version>/
func apiGroup(route string) string {
	rest, ok := strings.CutPrefix(route, "/api/")
	if !ok {
		return unmatchedRoute
	}
	segments := strings.SplitN(rest, "/", 3)
	if len(segments) < 2 || segments[1] == "" {
		return unmatchedRoute
	}
	if segments[1] == "health" {
		return "system"
	}
	return segments[1]
}

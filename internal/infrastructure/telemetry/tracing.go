package telemetry

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName names the tracer of the refund services' spans
const TracerName = "refund-tracker"

// Span attribute keys used by the refund services
const (
	SpanAttrOrderID        = "order_id"
	SpanAttrRefundDetailID = "refund_detail_id"
	SpanAttrReturnID       = "return_id"
	SpanAttrDetailCount    = "detail_count"
	SpanAttrAmount         = "amount"
	SpanAttrAccountStatus  = "account_status"
	SpanAttrBatchSize      = "batch_size"
)

// SpanOption adds start attributes to a service span
type SpanOption func(*[]attribute.KeyValue)

// WithAttribute sets a start attribute
func WithAttribute(key string, value any) SpanOption {
	return func(attrs *[]attribute.KeyValue) {
		*attrs = append(*attrs, toAttribute(key, value))
	}
}

// StartServiceSpan starts an internal span named "<service>.<method>", e.g.
// "snapshot.recompute". The caller ends it.
func StartServiceSpan(ctx context.Context, service, method string, opts ...SpanOption) (context.Context, trace.Span) {
	var attrs []attribute.KeyValue
	for _, opt := range opts {
		opt(&attrs)
	}
	return otel.Tracer(TracerName).Start(ctx, service+"."+method,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// SetAttributes sets alternating key, value pairs on span. Non-string keys and a
// trailing key without value are skipped.
func SetAttributes(span trace.Span, keyValues ...any) {
	span.SetAttributes(pairs(keyValues)...)
}

// AddEvent records a named event with alternating key, value pairs
func AddEvent(span trace.Span, name string, keyValues ...any) {
	span.AddEvent(name, trace.WithAttributes(pairs(keyValues)...))
}

// RecordError marks span failed with err. A nil err is ignored.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func pairs(keyValues []any) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(keyValues)/2)
	for i := 0; i+1 < len(keyValues); i += 2 {
		if key, ok := keyValues[i].(string); ok {
			attrs = append(attrs, toAttribute(key, keyValues[i+1]))
		}
	}
	return attrs
}

// toAttribute maps common values to typed attributes. Amounts are kept as
// decimal strings so no precision is lost to float conversion.
func toAttribute(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case bool:
		return attribute.Bool(key, v)
	case float64:
		return attribute.Float64(key, v)
	case decimal.Decimal:
		return attribute.String(key, v.String())
	case []string:
		return attribute.StringSlice(key, v)
	case fmt.Stringer:
		return attribute.String(key, v.String())
	default:
		return attribute.String(key, fmt.Sprint(v))
	}
}

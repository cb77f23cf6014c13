package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Counter is a monotonically increasing int64 instrument
type Counter struct {
	counter metric.Int64Counter
}

// Inc adds one
func (c *Counter) Inc(ctx context.Context, attrs ...attribute.KeyValue) {
	c.counter.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// Histogram records float64 distributions, durations in seconds
type Histogram struct {
	histogram metric.Float64Histogram
}

// RecordDuration records d in seconds
func (h *Histogram) RecordDuration(ctx context.Context, d time.Duration, attrs ...attribute.KeyValue) {
	h.histogram.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
}

// Instruments creates instruments on one meter and collects registration
// failures, so a caller declares all of its instruments and checks Err once.
type Instruments struct {
	meter metric.Meter
	errs  []error
}

// NewInstruments returns a builder for instruments on meter
func NewInstruments(meter metric.Meter) *Instruments {
	return &Instruments{meter: meter}
}

// Counter declares an int64 counter. unit follows UCUM, e.g. "{request}".
func (in *Instruments) Counter(name, description, unit string) *Counter {
	c, err := in.meter.Int64Counter(name, metric.WithDescription(description), metric.WithUnit(unit))
	in.record(name, err)
	return &Counter{counter: c}
}

// Seconds declares a duration histogram in seconds with the given bucket bounds
func (in *Instruments) Seconds(name, description string, bounds ...float64) *Histogram {
	opts := []metric.Float64HistogramOption{
		metric.WithDescription(description),
		metric.WithUnit("s"),
	}
	if len(bounds) > 0 {
		opts = append(opts, metric.WithExplicitBucketBoundaries(bounds...))
	}
	h, err := in.meter.Float64Histogram(name, opts...)
	in.record(name, err)
	return &Histogram{histogram: h}
}

// UpDownCounter declares an int64 gauge-like counter, e.g. requests in flight
func (in *Instruments) UpDownCounter(name, description, unit string) metric.Int64UpDownCounter {
	c, err := in.meter.Int64UpDownCounter(name, metric.WithDescription(description), metric.WithUnit(unit))
	in.record(name, err)
	return c
}

// Err reports every instrument that failed to register
func (in *Instruments) Err() error {
	return errors.Join(in.errs...)
}

func (in *Instruments) record(name string, err error) {
	if err != nil {
		in.errs = append(in.errs, fmt.Errorf("instrument %s: %w", name, err))
	}
}

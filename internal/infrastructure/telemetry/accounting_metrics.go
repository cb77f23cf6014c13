package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys of the accounting metrics
const (
	AttrAccountStatus = attribute.Key("account_status")
	AttrCacheResult   = attribute.Key("result")
	AttrDirection     = attribute.Key("direction")
)

// AccountingMetrics records the refund accounting engine's activity
type AccountingMetrics struct {
	recomputations   *Counter
	recomputeSeconds *Histogram
	evidenceWarnings *Counter
	corrections      *Counter
	cacheLookups     *Counter
}

// NewAccountingMetrics creates the accounting instruments on meter
func NewAccountingMetrics(meter metric.Meter) (*AccountingMetrics, error) {
	in := NewInstruments(meter)
	m := &AccountingMetrics{
		recomputations: in.Counter("refund.snapshot.recomputations",
			"Number of order refund snapshots recomputed", "{snapshot}"),
		recomputeSeconds: in.Seconds("refund.snapshot.duration",
			"Duration of a snapshot recomputation", 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5),
		evidenceWarnings: in.Counter("refund.snapshot.evidence_warnings",
			"Refund details whose contribution could not be computed", "{detail}"),
		corrections: in.Counter("refund.ingestion.corrections",
			"Correction refund details created by order re-ingestion", "{detail}"),
		cacheLookups: in.Counter("refund.snapshot.cache_lookups",
			"Snapshot cache lookups by result", "{lookup}"),
	}
	if err := in.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// SnapshotRecomputed records one recomputation and its duration
func (m *AccountingMetrics) SnapshotRecomputed(ctx context.Context, accountStatus string, d time.Duration) {
	attr := AttrAccountStatus.String(accountStatus)
	m.recomputations.Inc(ctx, attr)
	m.recomputeSeconds.RecordDuration(ctx, d, attr)
}

// EvidenceWarning records a detail that contributed zero because of malformed data
func (m *AccountingMetrics) EvidenceWarning(ctx context.Context) {
	m.evidenceWarnings.Inc(ctx)
}

// CorrectionCreated records an ingestion correction
func (m *AccountingMetrics) CorrectionCreated(ctx context.Context, negative bool) {
	direction := "increase"
	if negative {
		direction = "decrease"
	}
	m.corrections.Inc(ctx, AttrDirection.String(direction))
}

// CacheLookup records a snapshot cache hit or miss
func (m *AccountingMetrics) CacheLookup(ctx context.Context, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.Inc(ctx, AttrCacheResult.String(result))
}

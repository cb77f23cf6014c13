// Package refund implements the refund accounting use cases: the refund
// lifecycle, return tracking, reconciliation, snapshot recomputation,
// order ingestion and reporting.
package refund

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/erp/refundtracker/internal/domain/refund"
	"github.com/erp/refundtracker/internal/domain/shared"
	"github.com/erp/refundtracker/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Metrics receives the accounting engine's counters. The telemetry package
// provides the OpenTelemetry implementation.
type Metrics interface {
	SnapshotRecomputed(ctx context.Context, accountStatus string, d time.Duration)
	EvidenceWarning(ctx context.Context)
	CorrectionCreated(ctx context.Context, negative bool)
	CacheLookup(ctx context.Context, hit bool)
}

type noopMetrics struct{}

func (noopMetrics) SnapshotRecomputed(context.Context, string, time.Duration) {}
func (noopMetrics) EvidenceWarning(context.Context)                           {}
func (noopMetrics) CorrectionCreated(context.Context, bool)                   {}
func (noopMetrics) CacheLookup(context.Context, bool)                         {}

// Settings holds the tunables shared by the refund services
type Settings struct {
	Tolerance            valueobject.Tolerance
	OptimisticTolerance  time.Duration // Allowed drift between a caller's lastUpdatedAt and the stored value
	RecomputeConcurrency int           // Orders recomputed in parallel after a bulk write
}

// DefaultSettings returns the settings used when none are configured
func DefaultSettings() Settings {
	return Settings{
		Tolerance:            valueobject.NewTolerance(valueobject.DefaultEpsilon),
		OptimisticTolerance:  2 * time.Second,
		RecomputeConcurrency: 4,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.OptimisticTolerance <= 0 {
		s.OptimisticTolerance = d.OptimisticTolerance
	}
	if s.RecomputeConcurrency <= 0 {
		s.RecomputeConcurrency = d.RecomputeConcurrency
	}
	return s
}

// Recomputer rewrites the refund snapshot of orders after their refund data changed
type Recomputer interface {
	RecomputeAndWriteOrderRefundSnapshot(ctx context.Context, orderID string) (*SnapshotResponse, error)
	RecomputeMany(ctx context.Context, orderIDs []string) (*RecomputeReport, error)
}

// lockDetail loads a refund detail for update and locks its order row, so that
// the write serializes with every other writer and recomputation of that order.
// An order that was never ingested has no row to lock.
func lockDetail(ctx context.Context, tx refund.Repositories, id uuid.UUID) (*refund.RefundDetail, error) {
	d, err := tx.Details().FindByIDForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Orders().FindByIDForUpdate(ctx, d.OrderID); err != nil && !shared.IsNotFound(err) {
		return nil, err
	}
	return d, nil
}

// recomputeAfterCommit refreshes an order's snapshot once its refund data is committed.
// Orders that do not exist have no snapshot to refresh.
func recomputeAfterCommit(ctx context.Context, r Recomputer, logger *zap.Logger, orderID string) error {
	if _, err := r.RecomputeAndWriteOrderRefundSnapshot(ctx, orderID); err != nil {
		if shared.IsNotFound(err) {
			logger.Warn("Skipping snapshot of unknown order", zap.String("order_id", orderID))
			return nil
		}
		return fmt.Errorf("recompute snapshot of order %s: %w", orderID, err)
	}
	return nil
}

// recomputeManyAfterCommit refreshes the snapshots of several orders and
// reports the orders that failed as one error.
func recomputeManyAfterCommit(ctx context.Context, r Recomputer, orderIDs []string) error {
	report, err := r.RecomputeMany(ctx, orderIDs)
	if err != nil {
		return fmt.Errorf("recompute snapshots: %w", err)
	}
	var failed []string
	for _, e := range report.Errors {
		if e.Code == shared.CodeNotFound {
			continue
		}
		failed = append(failed, e.OrderID)
	}
	if len(failed) > 0 {
		return fmt.Errorf("recompute snapshots: %d of %d orders failed: %s",
			len(failed), report.Total, strings.Join(failed, ", "))
	}
	return nil
}

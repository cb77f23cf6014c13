package refund

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/erp/refundtracker/internal/domain/refund"
	"github.com/erp/refundtracker/internal/domain/shared"
	"github.com/erp/refundtracker/internal/domain/shared/valueobject"
	"github.com/erp/refundtracker/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SnapshotService computes and stores the refund accounting snapshot of orders
type SnapshotService struct {
	store    refund.Store
	cache    refund.SnapshotCache
	settings Settings
	metrics  Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewSnapshotService creates a new SnapshotService. A nil cache disables caching.
func NewSnapshotService(store refund.Store, cache refund.SnapshotCache, settings Settings, logger *zap.Logger) *SnapshotService {
	if cache == nil {
		cache = refund.NoopSnapshotCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotService{
		store:    store,
		cache:    cache,
		settings: settings.withDefaults(),
		metrics:  noopMetrics{},
		logger:   logger,
		now:      time.Now,
	}
}

// SetMetrics sets the metrics sink
func (s *SnapshotService) SetMetrics(m Metrics) {
	if m != nil {
		s.metrics = m
	}
}

// RecomputeAndWriteOrderRefundSnapshot recomputes an order's snapshot from its
// refund details and reconciliation ledger, and writes it to the order.
// The order row stays locked for the whole computation so writers of one order
// never interleave. The cached value is replaced after commit.
func (s *SnapshotService) RecomputeAndWriteOrderRefundSnapshot(ctx context.Context, orderID string) (*SnapshotResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "snapshot", "recompute",
		telemetry.WithAttribute(telemetry.SpanAttrOrderID, orderID))
	defer span.End()

	started := s.now()
	if err := s.cache.Invalidate(ctx, orderID); err != nil {
		s.logger.Warn("Failed to invalidate snapshot cache",
			zap.String("order_id", orderID), zap.Error(err))
	}

	var (
		snap       refund.Snapshot
		computedAt time.Time
	)
	err := s.store.Transaction(ctx, func(tx refund.Repositories) error {
		if _, err := tx.Orders().FindByIDForUpdate(ctx, orderID); err != nil {
			return err
		}

		details, err := tx.Details().FindByOrderID(ctx, orderID)
		if err != nil {
			return fmt.Errorf("load refund details: %w", err)
		}
		ids := make([]uuid.UUID, len(details))
		for i, d := range details {
			ids[i] = d.ID
		}
		recs, err := tx.Reconciliations().FindByRefundDetailIDs(ctx, ids)
		if err != nil {
			return fmt.Errorf("load reconciliations: %w", err)
		}

		snap = refund.ComputeSnapshot(orderID, details, recs)
		computedAt = s.now()
		if err := tx.Orders().WriteRefundAccount(ctx, orderID, snap.RefundAccount(computedAt)); err != nil {
			return fmt.Errorf("write refund account: %w", err)
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	for _, c := range snap.Failures() {
		s.logger.Warn("Refund detail contribution could not be computed",
			zap.String("order_id", orderID),
			zap.String("refund_detail_id", c.RefundDetailID.String()),
			zap.Error(c.Err))
		s.metrics.EvidenceWarning(ctx)
	}

	if err := s.cache.Set(ctx, refund.CachedSnapshot{
		OrderID:               orderID,
		AccountedRefundAmount: snap.AccountedRefundAmount,
		AccountStatus:         snap.AccountStatus,
		ComputedAt:            computedAt,
	}); err != nil {
		s.logger.Warn("Failed to cache snapshot", zap.String("order_id", orderID), zap.Error(err))
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrDetailCount, snap.DetailCount,
		telemetry.SpanAttrAmount, snap.AccountedRefundAmount.String(),
		telemetry.SpanAttrAccountStatus, string(snap.AccountStatus),
	)
	s.metrics.SnapshotRecomputed(ctx, string(snap.AccountStatus), s.now().Sub(started))
	s.logger.Debug("Refund snapshot written",
		zap.String("order_id", orderID),
		zap.String("accounted_refund_amount", snap.AccountedRefundAmount.String()),
		zap.String("account_status", string(snap.AccountStatus)),
		zap.Int("detail_count", snap.DetailCount))

	return toSnapshotResponse(snap, computedAt), nil
}

// RecomputeMany recomputes the given orders with bounded concurrency.
// Each order commits on its own; a failed order is reported and does not stop the others.
func (s *SnapshotService) RecomputeMany(ctx context.Context, orderIDs []string) (*RecomputeReport, error) {
	ids := uniqueOrderIDs(orderIDs)
	ctx, span := telemetry.StartServiceSpan(ctx, "snapshot", "recompute_many",
		telemetry.WithAttribute(telemetry.SpanAttrBatchSize, len(ids)))
	defer span.End()

	report := &RecomputeReport{Total: len(ids)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.settings.RecomputeConcurrency)
	for _, orderID := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			_, err := s.RecomputeAndWriteOrderRefundSnapshot(gctx, orderID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				report.Errors = append(report.Errors, OrderError{OrderID: orderID, Code: shared.CodeOf(err), Error: err.Error()})
				s.logger.Error("Snapshot recompute failed",
					zap.String("order_id", orderID), zap.Error(err))
				return nil
			}
			report.Succeeded++
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		telemetry.RecordError(span, err)
		return report, err
	}
	slices.SortFunc(report.Errors, func(a, b OrderError) int { return cmp.Compare(a.OrderID, b.OrderID) })
	return report, nil
}

// GetAccountingSnapshot returns the order's snapshot, computing and storing it on a cache miss
func (s *SnapshotService) GetAccountingSnapshot(ctx context.Context, orderID string) (*SnapshotResponse, error) {
	cached, ok, err := s.cache.Get(ctx, orderID)
	if err != nil {
		s.logger.Warn("Snapshot cache lookup failed", zap.String("order_id", orderID), zap.Error(err))
	}
	s.metrics.CacheLookup(ctx, ok)
	if ok {
		return cachedSnapshotResponse(cached), nil
	}
	return s.RecomputeAndWriteOrderRefundSnapshot(ctx, orderID)
}

// ValidateRefundDetailsSumEqualsOrder compares the total of an order's refund
// details with its buyer refund amount. A difference above epsilon returns the
// totals together with a CONSISTENCY_MISMATCH error. A zero epsilon uses the
// configured tolerance.
func (s *SnapshotService) ValidateRefundDetailsSumEqualsOrder(ctx context.Context, orderID string, epsilon float64) (*SumValidationResponse, error) {
	tol := s.settings.Tolerance
	if epsilon > 0 {
		tol = valueobject.NewToleranceFromFloat(epsilon)
	}
	order, err := s.store.Orders().FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	details, err := s.store.Details().FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load refund details: %w", err)
	}
	check, err := refund.CheckRefundSum(order, details, tol)
	return toSumValidationResponse(check, err == nil), err
}

// GetRefundDetailsTotalAmount sums refundAmount over an order's refund details
func (s *SnapshotService) GetRefundDetailsTotalAmount(ctx context.Context, orderID string) (*SumValidationResponse, error) {
	order, err := s.store.Orders().FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	details, err := s.store.Details().FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load refund details: %w", err)
	}
	check := refund.SumCheck{
		OrderID:       orderID,
		ActualTotal:   refund.TotalRefundAmount(details),
		ExpectedTotal: order.BuyerRefundAmount,
	}
	return toSumValidationResponse(check, s.settings.Tolerance.Equal(check.ActualTotal, check.ExpectedTotal)), nil
}

func uniqueOrderIDs(orderIDs []string) []string {
	seen := make(map[string]struct{}, len(orderIDs))
	out := make([]string, 0, len(orderIDs))
	for _, id := range orderIDs {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

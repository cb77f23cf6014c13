package refund

import (
	"context"
	"time"

	"github.com/erp/refundtracker/internal/domain/refund"
	"github.com/erp/refundtracker/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ReconciliationService records reconciliation outcomes in the append-only ledger
// and moves the reconciled detail's accounting status accordingly.
type ReconciliationService struct {
	store     refund.Store
	snapshots Recomputer
	logger    *zap.Logger
	now       func() time.Time
}

// NewReconciliationService creates a new ReconciliationService
func NewReconciliationService(store refund.Store, snapshots Recomputer, logger *zap.Logger) *ReconciliationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconciliationService{store: store, snapshots: snapshots, logger: logger, now: time.Now}
}

// Reconcile appends a ledger record for a refund detail.
// MATCHED marks the detail FULLY_ACCOUNTED, VARIANCE_FOUND marks it PARTIALLY_ACCOUNTED,
// PENDING leaves it unchanged.
func (s *ReconciliationService) Reconcile(ctx context.Context, refundID uuid.UUID, req ReconcileRequest) (*ReconcileResponse, error) {
	if req.ExpectedValue == nil {
		return nil, shared.NewValidationError("expectedValue is required").WithDetail("field", "expectedValue")
	}
	if req.ActualValue == nil {
		return nil, shared.NewValidationError("actualValue is required").WithDetail("field", "actualValue")
	}

	var (
		rec    *refund.Reconciliation
		detail *refund.RefundDetail
	)
	err := s.store.Transaction(ctx, func(tx refund.Repositories) error {
		var err error
		detail, err = lockDetail(ctx, tx, refundID)
		if err != nil {
			return err
		}

		now := s.now()
		rec, err = refund.NewReconciliation(refund.ReconcileInput{
			RefundDetailID: detail.ID,
			ExpectedValue:  *req.ExpectedValue,
			ActualValue:    *req.ActualValue,
			Status:         refund.ReconciliationStatus(req.Status),
			ReconciledBy:   req.ReconciledBy,
			Notes:          req.Notes,
		}, now)
		if err != nil {
			return err
		}
		if err := tx.Reconciliations().Append(ctx, rec); err != nil {
			return err
		}

		outcome, ok := rec.Status.AccountingOutcome()
		if !ok {
			return nil
		}
		if err := detail.SetAccountingStatus(outcome, now); err != nil {
			return err
		}
		return tx.Details().Save(ctx, detail)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Refund reconciled",
		zap.String("order_id", detail.OrderID),
		zap.String("refund_detail_id", detail.ID.String()),
		zap.String("status", rec.Status.String()),
		zap.String("variance", rec.Variance.String()),
		zap.String("accounting_status", detail.AccountingStatus.String()))

	if err := recomputeAfterCommit(ctx, s.snapshots, s.logger, detail.OrderID); err != nil {
		return nil, err
	}
	return &ReconcileResponse{
		Reconciliation: ToReconciliationResponse(rec),
		Refund:         ToRefundDetailResponse(detail),
	}, nil
}

// History returns a detail's ledger, oldest first
func (s *ReconciliationService) History(ctx context.Context, refundID uuid.UUID) ([]ReconciliationResponse, error) {
	if _, err := s.store.Details().FindByID(ctx, refundID); err != nil {
		return nil, err
	}
	recs, err := s.store.Reconciliations().FindByRefundDetailID(ctx, refundID)
	if err != nil {
		return nil, err
	}
	return ToReconciliationResponses(recs), nil
}

// ListUnaccounted returns the details nobody has reconciled yet
func (s *ReconciliationService) ListUnaccounted(ctx context.Context) ([]RefundDetailResponse, error) {
	return s.listByAccountingStatus(ctx, refund.AccountingUnaccounted)
}

// ListPartial returns the details whose reconciliation found a variance
func (s *ReconciliationService) ListPartial(ctx context.Context) ([]RefundDetailResponse, error) {
	return s.listByAccountingStatus(ctx, refund.AccountingPartiallyAccounted)
}

func (s *ReconciliationService) listByAccountingStatus(ctx context.Context, status refund.AccountingStatus) ([]RefundDetailResponse, error) {
	details, err := s.store.Details().FindByAccountingStatus(ctx, status)
	if err != nil {
		return nil, err
	}
	return ToRefundDetailResponses(details), nil
}

// VarianceReport lists every VARIANCE_FOUND record with the summed variance
func (s *ReconciliationService) VarianceReport(ctx context.Context) (*VarianceReportResponse, error) {
	recs, err := s.store.Reconciliations().FindByStatus(ctx, refund.ReconciliationVarianceFound)
	if err != nil {
		return nil, err
	}
	total := decimal.Zero
	for _, r := range recs {
		total = total.Add(r.Variance)
	}
	return &VarianceReportResponse{
		Count:         len(recs),
		TotalVariance: total,
		Items:         ToReconciliationResponses(recs),
	}, nil
}

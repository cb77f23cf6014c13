package refund

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/refundtracker/internal/domain/refund"
	"github.com/erp/refundtracker/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReturnService tracks physical returns attached to refund details.
// The embedded tracking and its index row are always written together.
type ReturnService struct {
	store     refund.Store
	snapshots Recomputer
	logger    *zap.Logger
	now       func() time.Time
}

// NewReturnService creates a new ReturnService
func NewReturnService(store refund.Store, snapshots Recomputer, logger *zap.Logger) *ReturnService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReturnService{store: store, snapshots: snapshots, logger: logger, now: time.Now}
}

// InitiateReturn appends a new return tracking to a refund detail
func (s *ReturnService) InitiateReturn(ctx context.Context, req InitiateReturnRequest) (*ReturnResponse, error) {
	now := s.now()
	tracking, err := refund.NewReturnTracking(refund.NewReturnTrackingInput{
		ReturnInitiatedDate: req.ReturnInitiatedDate,
		ExpectedReturnDate:  req.ExpectedReturnDate,
		ReturnStatus:        refund.ReturnStatus(req.ReturnStatus),
		ReturnItems:         req.ReturnItems,
		Reason:              req.Reason,
	}, now)
	if err != nil {
		return nil, err
	}

	var detail *refund.RefundDetail
	err = s.store.Transaction(ctx, func(tx refund.Repositories) error {
		var err error
		detail, err = lockDetail(ctx, tx, req.RefundDetailID)
		if err != nil {
			return err
		}
		if detail.EvidenceErr != nil {
			return shared.NewDomainError(shared.CodeInvalidState,
				fmt.Sprintf("return trackings of refund detail %s are unreadable and must be replaced first", detail.ID)).
				WithDetail("refundDetailId", detail.ID.String())
		}
		if err := detail.AppendReturnTracking(tracking, now); err != nil {
			return err
		}
		if err := tx.Details().Save(ctx, detail); err != nil {
			return err
		}
		return tx.ReturnIndex().Save(ctx, indexEntry(detail, tracking))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Return initiated",
		zap.String("order_id", detail.OrderID),
		zap.String("refund_detail_id", detail.ID.String()),
		zap.String("return_id", tracking.ID),
		zap.String("total_return_value", tracking.TotalReturnValue.String()))

	if err := recomputeAfterCommit(ctx, s.snapshots, s.logger, detail.OrderID); err != nil {
		return nil, err
	}
	return &ReturnResponse{RefundDetailID: detail.ID, OrderID: detail.OrderID, ReturnTracking: tracking}, nil
}

// MarkInTransit marks a return as shipped back by the buyer
func (s *ReturnService) MarkInTransit(ctx context.Context, returnID string) (*ReturnResponse, error) {
	return s.transition(ctx, returnID, refund.ReturnStatusInTransit)
}

// MarkReceived marks a return as received, stamping its actual return date
func (s *ReturnService) MarkReceived(ctx context.Context, returnID string) (*ReturnResponse, error) {
	return s.transition(ctx, returnID, refund.ReturnStatusReceived)
}

// MarkInspecting marks a return as under inspection
func (s *ReturnService) MarkInspecting(ctx context.Context, returnID string) (*ReturnResponse, error) {
	return s.transition(ctx, returnID, refund.ReturnStatusInspecting)
}

// MarkRestocked marks a return's goods as back in stock
func (s *ReturnService) MarkRestocked(ctx context.Context, returnID string) (*ReturnResponse, error) {
	return s.transition(ctx, returnID, refund.ReturnStatusRestocked)
}

// MarkDiscrepancyFound marks a return whose contents differ from what was expected
func (s *ReturnService) MarkDiscrepancyFound(ctx context.Context, returnID string) (*ReturnResponse, error) {
	return s.transition(ctx, returnID, refund.ReturnStatusDiscrepancyFound)
}

// MarkLostByCourier marks a return as lost in transit
func (s *ReturnService) MarkLostByCourier(ctx context.Context, returnID string) (*ReturnResponse, error) {
	return s.transition(ctx, returnID, refund.ReturnStatusLostByCourier)
}

// MarkPaidByCourier marks a lost return as compensated by the courier
func (s *ReturnService) MarkPaidByCourier(ctx context.Context, returnID string) (*ReturnResponse, error) {
	return s.transition(ctx, returnID, refund.ReturnStatusPaidByCourier)
}

// UpdateReturnStatus sets any return status. No transition table applies.
func (s *ReturnService) UpdateReturnStatus(ctx context.Context, returnID string, req UpdateReturnStatusRequest) (*ReturnResponse, error) {
	status := refund.ReturnStatus(req.ReturnStatus)
	if !status.IsValid() {
		return nil, shared.NewValidationError("invalid return status %q", req.ReturnStatus).WithDetail("field", "returnStatus")
	}
	return s.transition(ctx, returnID, status)
}

func (s *ReturnService) transition(ctx context.Context, returnID string, status refund.ReturnStatus) (*ReturnResponse, error) {
	var (
		detail   *refund.RefundDetail
		tracking refund.ReturnTracking
	)
	err := s.store.Transaction(ctx, func(tx refund.Repositories) error {
		entry, err := tx.ReturnIndex().FindByID(ctx, returnID)
		if err != nil {
			return err
		}
		detail, err = lockDetail(ctx, tx, entry.RefundDetailID)
		if err != nil {
			return err
		}
		t, ok := detail.FindReturnTracking(returnID)
		if !ok {
			return shared.NewNotFoundError("return tracking", returnID).
				WithDetail("refundDetailId", detail.ID.String())
		}

		now := s.now()
		if err := t.TransitionTo(status, now); err != nil {
			return err
		}
		detail.UpdatedAt = now
		tracking = *t

		if err := tx.Details().Save(ctx, detail); err != nil {
			return err
		}
		return tx.ReturnIndex().Save(ctx, indexEntry(detail, tracking))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Return status updated",
		zap.String("order_id", detail.OrderID),
		zap.String("return_id", returnID),
		zap.String("return_status", string(status)))

	if err := recomputeAfterCommit(ctx, s.snapshots, s.logger, detail.OrderID); err != nil {
		return nil, err
	}
	return &ReturnResponse{RefundDetailID: detail.ID, OrderID: detail.OrderID, ReturnTracking: tracking}, nil
}

// List returns a page of the return index
func (s *ReturnService) List(ctx context.Context, filter ReturnListFilter) ([]ReturnIndexResponse, int64, error) {
	domainFilter := refund.ReturnFilter{
		Filter: shared.Filter{
			Page:     filter.Page,
			PageSize: filter.PageSize,
			OrderBy:  filter.OrderBy,
			OrderDir: filter.OrderDir,
		},
		OrderID:      filter.OrderID,
		ReturnStatus: refund.ReturnStatus(filter.ReturnStatus),
	}
	if filter.RefundDetailID != "" {
		id, err := uuid.Parse(filter.RefundDetailID)
		if err != nil {
			return nil, 0, shared.NewValidationError("invalid refund_detail_id %q", filter.RefundDetailID)
		}
		domainFilter.RefundDetailID = id
	}
	entries, total, err := s.store.ReturnIndex().List(ctx, domainFilter)
	if err != nil {
		return nil, 0, err
	}
	out := make([]ReturnIndexResponse, len(entries))
	for i, e := range entries {
		out[i] = ToReturnIndexResponse(e)
	}
	return out, total, nil
}

func indexEntry(d *refund.RefundDetail, t refund.ReturnTracking) refund.ReturnIndexEntry {
	return refund.ReturnIndexEntry{
		ID:               t.ID,
		RefundDetailID:   d.ID,
		OrderID:          d.OrderID,
		ReturnStatus:     t.ReturnStatus,
		TotalReturnValue: t.TotalReturnValue,
		UpdatedAt:        d.UpdatedAt,
	}
}

package refund

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/erp/refundtracker/internal/domain/refund"
	"github.com/erp/refundtracker/internal/domain/shared"
	"github.com/erp/refundtracker/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RefundService handles the refund detail lifecycle
type RefundService struct {
	store     refund.Store
	snapshots Recomputer
	settings  Settings
	logger    *zap.Logger
	now       func() time.Time
}

// NewRefundService creates a new RefundService
func NewRefundService(store refund.Store, snapshots Recomputer, settings Settings, logger *zap.Logger) *RefundService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RefundService{
		store:     store,
		snapshots: snapshots,
		settings:  settings.withDefaults(),
		logger:    logger,
		now:       time.Now,
	}
}

// Initiate creates a refund detail for an existing order
func (s *RefundService) Initiate(ctx context.Context, req InitiateRefundRequest) (*RefundDetailResponse, error) {
	if req.RefundAmount == nil {
		return nil, shared.NewValidationError("refundAmount is required").WithDetail("field", "refundAmount")
	}
	var trackings []refund.ReturnTracking
	if len(req.ReturnTrackings) > 0 {
		trackings = refund.NormalizeReturnTrackings(req.ReturnTrackings)
	}
	now := s.now()
	detail, err := refund.NewRefundDetail(refund.NewRefundDetailInput{
		OrderID:          req.OrderID,
		RefundType:       refund.RefundType(req.RefundType),
		RefundAmount:     *req.RefundAmount,
		RefundDate:       req.RefundDate,
		Status:           refund.Status(req.Status),
		AccountingStatus: refund.AccountingStatus(req.AccountingStatus),
		ReturnTrackings:  trackings,
		PackingError:     req.PackingError,
		DefectiveItems:   req.DefectiveItems,
		Discrepancies:    req.Discrepancies,
		CreatedBy:        req.CreatedBy,
	}, now)
	if err != nil {
		return nil, err
	}

	err = s.store.Transaction(ctx, func(tx refund.Repositories) error {
		if _, err := tx.Orders().FindByIDForUpdate(ctx, detail.OrderID); err != nil {
			return err
		}
		if err := tx.Details().Create(ctx, detail); err != nil {
			return fmt.Errorf("create refund detail: %w", err)
		}
		if len(detail.ReturnTrackings) > 0 {
			if err := tx.ReturnIndex().ReplaceForDetail(ctx, detail.ID, detail.IndexEntries()); err != nil {
				return fmt.Errorf("index return trackings: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Refund initiated",
		zap.String("order_id", detail.OrderID),
		zap.String("refund_detail_id", detail.ID.String()),
		zap.String("refund_type", string(detail.RefundType)),
		zap.String("refund_amount", detail.RefundAmount.String()))

	if err := recomputeAfterCommit(ctx, s.snapshots, s.logger, detail.OrderID); err != nil {
		return nil, err
	}
	resp := ToRefundDetailResponse(detail)
	return &resp, nil
}

// Split replaces one refund detail with several. Each split inherits every
// field the entry does not override, and the original is deleted in the same
// transaction that creates the splits.
func (s *RefundService) Split(ctx context.Context, refundID uuid.UUID, req SplitRefundRequest) ([]RefundDetailResponse, error) {
	if len(req.Splits) == 0 {
		return nil, shared.NewValidationError("split requires at least one entry")
	}
	ctx, span := telemetry.StartServiceSpan(ctx, "refund", "split",
		telemetry.WithAttribute(telemetry.SpanAttrRefundDetailID, refundID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrBatchSize, len(req.Splits)))
	defer span.End()

	var parts []*refund.RefundDetail
	var orderID string
	err := s.store.Transaction(ctx, func(tx refund.Repositories) error {
		original, err := lockDetail(ctx, tx, refundID)
		if err != nil {
			return err
		}
		orderID = original.OrderID

		entries, err := toSplitEntries(original, req.Splits)
		if err != nil {
			return err
		}
		parts, err = original.Split(entries, s.now())
		if err != nil {
			return err
		}

		if err := tx.ReturnIndex().DeleteByRefundDetailID(ctx, original.ID); err != nil {
			return fmt.Errorf("drop return index of refund detail: %w", err)
		}
		if err := tx.Details().Delete(ctx, original.ID); err != nil {
			return err
		}
		if err := tx.Details().CreateBatch(ctx, parts); err != nil {
			return fmt.Errorf("create split refund details: %w", err)
		}
		for _, p := range parts {
			if len(p.ReturnTrackings) == 0 {
				continue
			}
			if err := tx.ReturnIndex().ReplaceForDetail(ctx, p.ID, p.IndexEntries()); err != nil {
				return fmt.Errorf("index return trackings: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Refund split",
		zap.String("order_id", orderID),
		zap.String("refund_detail_id", refundID.String()),
		zap.Int("parts", len(parts)))

	if err := recomputeAfterCommit(ctx, s.snapshots, s.logger, orderID); err != nil {
		return nil, err
	}
	return ToRefundDetailResponses(parts), nil
}

func toSplitEntries(original *refund.RefundDetail, inputs []SplitEntryInput) ([]refund.SplitEntry, error) {
	entries := make([]refund.SplitEntry, len(inputs))
	for i, in := range inputs {
		if in.OrderID != nil {
			if *in.OrderID == "" {
				return nil, shared.NewValidationError("orderId is required").WithDetail("splitIndex", i)
			}
			if *in.OrderID != original.OrderID {
				return nil, shared.NewValidationError("split entry cannot move the refund to order %s", *in.OrderID).
					WithDetail("splitIndex", i)
			}
		}
		e := refund.SplitEntry{
			RefundAmount:   in.RefundAmount,
			RefundDate:     in.RefundDate,
			PackingError:   in.PackingError,
			DefectiveItems: in.DefectiveItems,
			Discrepancies:  in.Discrepancies,
			CreatedBy:      in.CreatedBy,
		}
		if in.RefundType != nil {
			t := refund.RefundType(*in.RefundType)
			e.RefundType = &t
		}
		if in.Status != nil {
			st := refund.Status(*in.Status)
			e.Status = &st
		}
		if in.AccountingStatus != nil {
			as := refund.AccountingStatus(*in.AccountingStatus)
			e.AccountingStatus = &as
		}
		if in.ReturnTrackings != nil {
			e.ReturnTrackings = refund.NormalizeReturnTrackings(in.ReturnTrackings)
		}
		entries[i] = e
	}
	return entries, nil
}

// UpdateStatus sets the processing status of a refund detail
func (s *RefundService) UpdateStatus(ctx context.Context, id uuid.UUID, req UpdateRefundStatusRequest) (*RefundDetailResponse, error) {
	status := refund.Status(req.Status)
	if !status.IsValid() {
		return nil, shared.NewValidationError("invalid refund status %q", req.Status).WithDetail("field", "status")
	}

	var detail *refund.RefundDetail
	err := s.store.Transaction(ctx, func(tx refund.Repositories) error {
		var err error
		detail, err = lockDetail(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := detail.UpdateStatus(status, s.now()); err != nil {
			return err
		}
		return tx.Details().Save(ctx, detail)
	})
	if err != nil {
		return nil, err
	}

	if err := recomputeAfterCommit(ctx, s.snapshots, s.logger, detail.OrderID); err != nil {
		return nil, err
	}
	resp := ToRefundDetailResponse(detail)
	return &resp, nil
}

// UpdateTypeData applies a change set restricted to returnTrackings,
// accountingStatus and status. Replaced return trackings rebuild the
// detail's return index rows in the same transaction.
func (s *RefundService) UpdateTypeData(ctx context.Context, id uuid.UUID, changes refund.Changes) (*RefundDetailResponse, error) {
	patch, err := refund.ParseChanges(changes, refund.TypeDataFields)
	if err != nil {
		return nil, err
	}

	var detail *refund.RefundDetail
	err = s.store.Transaction(ctx, func(tx refund.Repositories) error {
		var err error
		detail, err = lockDetail(ctx, tx, id)
		if err != nil {
			return err
		}
		return applyPatch(ctx, tx, detail, patch, s.now())
	})
	if err != nil {
		return nil, err
	}

	if err := recomputeAfterCommit(ctx, s.snapshots, s.logger, detail.OrderID); err != nil {
		return nil, err
	}
	resp := ToRefundDetailResponse(detail)
	return &resp, nil
}

func applyPatch(ctx context.Context, tx refund.Repositories, d *refund.RefundDetail, p refund.Patch, now time.Time) error {
	trackingsReplaced, err := d.ApplyPatch(p, now)
	if err != nil {
		return err
	}
	if err := tx.Details().Save(ctx, d); err != nil {
		return err
	}
	if trackingsReplaced {
		if err := tx.ReturnIndex().ReplaceForDetail(ctx, d.ID, d.IndexEntries()); err != nil {
			return fmt.Errorf("rebuild return index: %w", err)
		}
	}
	return nil
}

// BulkUpdate applies many change sets in one transaction. If any target is
// missing, or was modified since the caller's lastUpdatedAt beyond the
// optimistic tolerance, nothing is applied. Each affected order is recomputed
// once after commit.
func (s *RefundService) BulkUpdate(ctx context.Context, req BulkUpdateRequest) ([]RefundDetailResponse, error) {
	if len(req.Updates) == 0 {
		return nil, shared.NewValidationError("bulk update requires at least one update")
	}
	ctx, span := telemetry.StartServiceSpan(ctx, "refund", "bulk_update",
		telemetry.WithAttribute(telemetry.SpanAttrBatchSize, len(req.Updates)))
	defer span.End()

	type pending struct {
		item  BulkUpdateItem
		patch refund.Patch
	}
	updates := make([]pending, len(req.Updates))
	seen := make(map[uuid.UUID]struct{}, len(req.Updates))
	for i, item := range req.Updates {
		if _, dup := seen[item.ID]; dup {
			return nil, shared.NewValidationError("refund detail %s appears more than once", item.ID).
				WithDetail("index", i)
		}
		seen[item.ID] = struct{}{}
		patch, err := refund.ParseChanges(item.Changes, refund.BulkFields)
		if err != nil {
			var de *shared.DomainError
			if errors.As(err, &de) {
				return nil, de.WithDetail("id", item.ID.String())
			}
			return nil, err
		}
		updates[i] = pending{item: item, patch: patch}
	}
	// A fixed lock order keeps concurrent bulk updates from deadlocking
	slices.SortFunc(updates, func(a, b pending) int { return bytes.Compare(a.item.ID[:], b.item.ID[:]) })

	var updated []*refund.RefundDetail
	var orderIDs []string
	err := s.store.Transaction(ctx, func(tx refund.Repositories) error {
		now := s.now()
		details := make([]*refund.RefundDetail, len(updates))
		for i, u := range updates {
			d, err := tx.Details().FindByIDForUpdate(ctx, u.item.ID)
			if err != nil {
				return err
			}
			if u.item.LastUpdatedAt != nil {
				drift := d.UpdatedAt.Sub(*u.item.LastUpdatedAt).Abs()
				if drift > s.settings.OptimisticTolerance {
					return shared.NewConflictError("refund detail %s was modified at %s, after %s",
						d.ID, d.UpdatedAt.Format(time.RFC3339Nano), u.item.LastUpdatedAt.Format(time.RFC3339Nano)).
						WithDetail("id", d.ID.String())
				}
			}
			details[i] = d
		}

		orderIDs = uniqueOrderIDs(orderIDsOf(details))
		slices.Sort(orderIDs)
		for _, orderID := range orderIDs {
			if _, err := tx.Orders().FindByIDForUpdate(ctx, orderID); err != nil && !shared.IsNotFound(err) {
				return err
			}
		}

		for i, u := range updates {
			if err := applyPatch(ctx, tx, details[i], u.patch, now); err != nil {
				var de *shared.DomainError
				if errors.As(err, &de) {
					return de.WithDetail("id", details[i].ID.String())
				}
				return err
			}
		}
		updated = details
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Refunds bulk updated",
		zap.Int("count", len(updated)),
		zap.Strings("order_ids", orderIDs))

	if err := recomputeManyAfterCommit(ctx, s.snapshots, orderIDs); err != nil {
		return nil, err
	}
	return ToRefundDetailResponses(updated), nil
}

// Delete removes a refund detail and its return index rows. Its reconciliation
// records stay in the ledger as history.
func (s *RefundService) Delete(ctx context.Context, id uuid.UUID) error {
	var orderID string
	err := s.store.Transaction(ctx, func(tx refund.Repositories) error {
		d, err := lockDetail(ctx, tx, id)
		if err != nil {
			return err
		}
		orderID = d.OrderID
		if err := tx.ReturnIndex().DeleteByRefundDetailID(ctx, id); err != nil {
			return fmt.Errorf("drop return index of refund detail: %w", err)
		}
		return tx.Details().Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Refund deleted",
		zap.String("order_id", orderID),
		zap.String("refund_detail_id", id.String()))
	return recomputeAfterCommit(ctx, s.snapshots, s.logger, orderID)
}

// Get returns a refund detail by id
func (s *RefundService) Get(ctx context.Context, id uuid.UUID) (*RefundDetailResponse, error) {
	d, err := s.store.Details().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToRefundDetailResponse(d)
	return &resp, nil
}

// List returns a page of refund details
func (s *RefundService) List(ctx context.Context, filter RefundListFilter) ([]RefundDetailResponse, int64, error) {
	domainFilter := refund.DetailFilter{
		Filter: shared.Filter{
			Page:     filter.Page,
			PageSize: filter.PageSize,
			OrderBy:  filter.OrderBy,
			OrderDir: filter.OrderDir,
		},
		OrderID:          filter.OrderID,
		RefundType:       refund.RefundType(filter.RefundType),
		Status:           refund.Status(filter.Status),
		AccountingStatus: refund.AccountingStatus(filter.AccountingStatus),
	}
	details, total, err := s.store.Details().List(ctx, domainFilter)
	if err != nil {
		return nil, 0, err
	}
	return ToRefundDetailResponses(details), total, nil
}

func orderIDsOf(details []*refund.RefundDetail) []string {
	ids := make([]string, len(details))
	for i, d := range details {
		ids[i] = d.OrderID
	}
	return ids
}

package refund

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/refundtracker/internal/domain/refund"
	"github.com/erp/refundtracker/internal/domain/shared"
	"github.com/erp/refundtracker/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// OrderRow is one order read from an order sheet. Err is set when the row could not be parsed.
type OrderRow struct {
	Row   int
	Order *refund.Order
	Err   error
}

// IngestionService loads orders from the marketplace export. When an existing order's
// buyer refund amount moves, the delta is booked as an OTHERS correction detail so
// the refund details keep summing to the order.
type IngestionService struct {
	store     refund.Store
	snapshots Recomputer
	settings  Settings
	metrics   Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewIngestionService creates a new IngestionService
func NewIngestionService(store refund.Store, snapshots Recomputer, settings Settings, logger *zap.Logger) *IngestionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestionService{
		store:     store,
		snapshots: snapshots,
		settings:  settings.withDefaults(),
		metrics:   noopMetrics{},
		logger:    logger,
		now:       time.Now,
	}
}

// SetMetrics sets the metrics sink
func (s *IngestionService) SetMetrics(m Metrics) {
	if m != nil {
		s.metrics = m
	}
}

// ApplyOrderDelta re-ingests one order's buyer refund amount. A change of at least
// epsilon creates a correction detail for the difference and stores the new amount.
func (s *IngestionService) ApplyOrderDelta(ctx context.Context, orderID string, incoming decimal.Decimal) (*ApplyOrderDeltaResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ingestion", "apply_delta",
		telemetry.WithAttribute(telemetry.SpanAttrOrderID, orderID))
	defer span.End()

	var (
		stored     decimal.Decimal
		correction *refund.RefundDetail
	)
	err := s.store.Transaction(ctx, func(tx refund.Repositories) error {
		order, err := tx.Orders().FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		stored = order.BuyerRefundAmount
		order.BuyerRefundAmount = incoming
		correction, err = s.mergeExisting(ctx, tx, order, stored)
		return err
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	resp := &ApplyOrderDeltaResponse{
		OrderID:    orderID,
		Stored:     stored,
		Incoming:   incoming,
		Difference: incoming.Sub(stored),
	}
	if correction == nil {
		return resp, nil
	}

	s.correctionCreated(ctx, correction)
	if err := recomputeAfterCommit(ctx, s.snapshots, s.logger, orderID); err != nil {
		return nil, err
	}
	c := ToRefundDetailResponse(correction)
	resp.Correction = &c
	return resp, nil
}

// IngestOrders ingests parsed orders, numbering rows from 1
func (s *IngestionService) IngestOrders(ctx context.Context, orders []*refund.Order) (*IngestReport, error) {
	rows := make([]OrderRow, len(orders))
	for i, o := range orders {
		rows[i] = OrderRow{Row: i + 1, Order: o}
	}
	return s.IngestRows(ctx, rows)
}

// IngestRows ingests an order sheet. A failing row is recorded in the report and
// does not stop the others. When one order appears on several rows the last row wins.
// New orders are inserted in batches; each existing order is merged in its own
// transaction together with its correction detail.
func (s *IngestionService) IngestRows(ctx context.Context, rows []OrderRow) (*IngestReport, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ingestion", "ingest",
		telemetry.WithAttribute(telemetry.SpanAttrBatchSize, len(rows)))
	defer span.End()

	report := &IngestReport{Total: len(rows)}
	fail := func(row int, orderID string, err error) {
		report.Failed++
		report.Errors = append(report.Errors, IngestError{Row: row, OrderID: orderID, Error: err.Error()})
	}

	last := make(map[string]int, len(rows))
	for i, r := range rows {
		if r.Err == nil && r.Order != nil {
			last[r.Order.OrderID] = i
		}
	}

	var (
		newRows   []OrderRow
		corrected []string
		merged    []string
	)
	merge := func(r OrderRow) (bool, error) {
		isNew, correction, err := s.ingestOne(ctx, r.Order)
		if err != nil || isNew {
			return isNew, err
		}
		merged = append(merged, r.Order.OrderID)
		if correction != nil {
			report.Corrections++
			corrected = append(corrected, r.Order.OrderID)
			s.correctionCreated(ctx, correction)
		}
		return false, nil
	}
	for i, r := range rows {
		switch {
		case r.Err != nil:
			fail(r.Row, orderIDOf(r.Order), r.Err)
			continue
		case r.Order == nil:
			fail(r.Row, "", shared.NewValidationError("empty row"))
			continue
		}
		if err := r.Order.Validate(); err != nil {
			fail(r.Row, r.Order.OrderID, err)
			continue
		}
		if last[r.Order.OrderID] != i {
			report.Duplicates++
			continue
		}

		isNew, err := merge(r)
		switch {
		case err != nil:
			fail(r.Row, r.Order.OrderID, err)
		case isNew:
			newRows = append(newRows, r)
		default:
			report.Updated++
		}
	}

	created, taken, own := s.insertNew(ctx, newRows, fail)
	report.Created += created
	// Rows another writer inserted first are merged like any stored order, so a
	// changed buyer refund amount still books its correction
	mergedTaken := 0
	for _, r := range taken {
		isNew, err := merge(r)
		switch {
		case err != nil:
			fail(r.Row, r.Order.OrderID, err)
		case isNew:
			fail(r.Row, r.Order.OrderID, shared.NewConflictError("order %s was removed during ingestion", r.Order.OrderID))
		default:
			mergedTaken++
		}
	}
	report.Updated += max(mergedTaken-own, 0)

	if len(corrected) > 0 {
		rec, err := s.snapshots.RecomputeMany(ctx, corrected)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		for _, e := range rec.Errors {
			report.Errors = append(report.Errors, IngestError{
				OrderID: e.OrderID,
				Error:   fmt.Sprintf("recompute snapshot: %s", e.Error),
			})
		}
	}

	mismatches, err := s.checkSums(ctx, merged)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	report.Mismatches = mismatches

	telemetry.SetAttributes(span,
		"created", report.Created,
		"updated", report.Updated,
		"corrections", report.Corrections,
		"failed", report.Failed,
	)
	s.logger.Info("Order sheet ingested",
		zap.Int("total", report.Total),
		zap.Int("created", report.Created),
		zap.Int("updated", report.Updated),
		zap.Int("corrections", report.Corrections),
		zap.Int("duplicates", report.Duplicates),
		zap.Int("failed", report.Failed),
		zap.Int("mismatches", len(report.Mismatches)))
	return report, nil
}

// ingestOne merges an existing order in one transaction. A missing order is left
// for the batch insert.
func (s *IngestionService) ingestOne(ctx context.Context, incoming *refund.Order) (isNew bool, correction *refund.RefundDetail, err error) {
	err = s.store.Transaction(ctx, func(tx refund.Repositories) error {
		stored, err := tx.Orders().FindByIDForUpdate(ctx, incoming.OrderID)
		if shared.IsNotFound(err) {
			isNew = true
			return nil
		}
		if err != nil {
			return err
		}
		merged := *incoming
		merged.RefundAccount = stored.RefundAccount
		correction, err = s.mergeExisting(ctx, tx, &merged, stored.BuyerRefundAmount)
		return err
	})
	return isNew, correction, err
}

// mergeExisting books the correction for a changed buyer refund amount and stores
// the order's ingestion fields. The order must be locked by tx.
func (s *IngestionService) mergeExisting(ctx context.Context, tx refund.Repositories, order *refund.Order, stored decimal.Decimal) (*refund.RefundDetail, error) {
	var correction *refund.RefundDetail
	if delta, ok := refund.DetectDelta(order.OrderID, stored, order.BuyerRefundAmount, s.settings.Tolerance); ok {
		correction = delta.CorrectionDetail(s.now())
		if err := tx.Details().Create(ctx, correction); err != nil {
			return nil, fmt.Errorf("create correction detail: %w", err)
		}
	} else {
		// Sub-epsilon drift keeps the stored amount so the details stay balanced.
		order.BuyerRefundAmount = stored
	}
	if err := tx.Orders().UpsertIngestion(ctx, []*refund.Order{order}); err != nil {
		return nil, err
	}
	return correction, nil
}

// insertNew inserts orders missing from the store in batches. Existing rows are never
// overwritten here: rows found taken by a concurrent writer are returned for merging.
// A failed batch is retried row by row. A batch that committed but skipped rows cannot
// tell its own rows from the taken ones, so every row is returned and own counts how
// many of them this call inserted.
func (s *IngestionService) insertNew(ctx context.Context, rows []OrderRow, fail func(int, string, error)) (created int, taken []OrderRow, own int) {
	if len(rows) == 0 {
		return 0, nil, 0
	}
	orders := make([]*refund.Order, len(rows))
	for i, r := range rows {
		orders[i] = r.Order
	}
	inserted, err := s.store.Orders().InsertNew(ctx, orders)
	if err == nil && int(inserted) == len(rows) {
		return len(rows), nil, 0
	}
	if err != nil {
		s.logger.Warn("Order batch insert failed, retrying row by row",
			zap.Int("orders", len(rows)), zap.Error(err))
	} else {
		// Own rows merge with a zero delta, so merging them again changes nothing
		s.logger.Info("Some new orders were inserted concurrently, merging the batch",
			zap.Int("orders", len(rows)), zap.Int64("inserted", inserted))
		return int(inserted), rows, int(inserted)
	}

	for _, r := range rows {
		n, err := s.store.Orders().InsertNew(ctx, []*refund.Order{r.Order})
		switch {
		case err != nil:
			fail(r.Row, r.Order.OrderID, err)
		case n == 1:
			created++
		default:
			taken = append(taken, r)
		}
	}
	return created, taken, 0
}

func (s *IngestionService) checkSums(ctx context.Context, orderIDs []string) ([]SumValidationResponse, error) {
	var mismatches []SumValidationResponse
	for _, id := range orderIDs {
		details, err := s.store.Details().FindByOrderID(ctx, id)
		if err != nil {
			return nil, err
		}
		if len(details) == 0 {
			continue
		}
		order, err := s.store.Orders().FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		check, err := refund.CheckRefundSum(order, details, s.settings.Tolerance)
		if err == nil {
			continue
		}
		if !shared.IsConsistency(err) {
			return nil, err
		}
		s.logger.Warn("Refund details do not sum to the order refund amount",
			zap.String("order_id", id),
			zap.String("actual_total", check.ActualTotal.String()),
			zap.String("expected_total", check.ExpectedTotal.String()))
		mismatches = append(mismatches, *toSumValidationResponse(check, false))
	}
	return mismatches, nil
}

func (s *IngestionService) correctionCreated(ctx context.Context, d *refund.RefundDetail) {
	s.metrics.CorrectionCreated(ctx, d.RefundAmount.IsNegative())
	telemetry.AddEvent(trace.SpanFromContext(ctx), "correction_created",
		telemetry.SpanAttrOrderID, d.OrderID,
		telemetry.SpanAttrRefundDetailID, d.ID,
		telemetry.SpanAttrAmount, d.RefundAmount)
	s.logger.Info("Correction detail created",
		zap.String("order_id", d.OrderID),
		zap.String("refund_detail_id", d.ID.String()),
		zap.String("refund_amount", d.RefundAmount.String()),
		zap.String("status", d.Status.String()))
}

func orderIDOf(o *refund.Order) string {
	if o == nil {
		return ""
	}
	return o.OrderID
}

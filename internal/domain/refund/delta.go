package refund

import (
	"time"

	"github.com/erp/refundtracker/internal/domain/shared"
	"github.com/erp/refundtracker/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Delta is a change of an order's buyer refund amount between two ingestions
type Delta struct {
	OrderID    string
	Stored     decimal.Decimal
	Incoming   decimal.Decimal
	Difference decimal.Decimal // Incoming - Stored
}

// DetectDelta reports a delta when the amounts differ by at least epsilon
func DetectDelta(orderID string, stored, incoming decimal.Decimal, tol valueobject.Tolerance) (Delta, bool) {
	if !tol.Meets(incoming, stored) {
		return Delta{}, false
	}
	return Delta{
		OrderID:    orderID,
		Stored:     stored,
		Incoming:   incoming,
		Difference: incoming.Sub(stored),
	}, true
}

// CorrectionDetail builds the OTHERS refund absorbing the delta.
// A positive or zero difference starts INITIATED, a negative one PROCESSING.
func (d Delta) CorrectionDetail(now time.Time) *RefundDetail {
	status := StatusInitiated
	if d.Difference.IsNegative() {
		status = StatusProcessing
	}
	return &RefundDetail{
		ID:               uuid.New(),
		OrderID:          d.OrderID,
		RefundType:       RefundTypeOthers,
		RefundAmount:     d.Difference,
		RefundDate:       now,
		Status:           status,
		AccountingStatus: AccountingUnaccounted,
		CreatedBy:        SystemIngestionActor,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// TotalRefundAmount sums refundAmount over the given details
func TotalRefundAmount(details []*RefundDetail) decimal.Decimal {
	total := decimal.Zero
	for _, d := range details {
		total = total.Add(d.RefundAmount)
	}
	return total
}

// SumCheck is the result of comparing refund detail totals with an order
type SumCheck struct {
	OrderID       string
	ActualTotal   decimal.Decimal
	ExpectedTotal decimal.Decimal
}

// CheckRefundSum compares the details' total with the order's buyer refund amount.
// A difference greater than epsilon returns the totals together with a CONSISTENCY_MISMATCH error.
func CheckRefundSum(order *Order, details []*RefundDetail, tol valueobject.Tolerance) (SumCheck, error) {
	check := SumCheck{
		OrderID:       order.OrderID,
		ActualTotal:   TotalRefundAmount(details),
		ExpectedTotal: order.BuyerRefundAmount,
	}
	if tol.Exceeds(check.ActualTotal, check.ExpectedTotal) {
		return check, shared.NewConsistencyError(
			"refund details sum (%s) does not match order %s refund amount (%s)",
			check.ActualTotal.String(), order.OrderID, check.ExpectedTotal.String()).
			WithDetail("orderId", order.OrderID).
			WithDetail("actualTotal", check.ActualTotal.String()).
			WithDetail("expectedTotal", check.ExpectedTotal.String())
	}
	return check, nil
}

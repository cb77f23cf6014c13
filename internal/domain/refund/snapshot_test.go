package refund_test

import (
	"errors"
	"testing"
	"time"

	"github.com/erp/refundtracker/internal/domain/refund"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newDetail(amount string, status refund.AccountingStatus) *refund.RefundDetail {
	now := time.Now()
	return &refund.RefundDetail{
		ID:               uuid.New(),
		OrderID:          "ORD-1",
		RefundType:       refund.RefundTypeOrderCancelled,
		RefundAmount:     dec(amount),
		Status:           refund.StatusInitiated,
		AccountingStatus: status,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func recAt(detailID uuid.UUID, actual string, at time.Time) *refund.Reconciliation {
	return &refund.Reconciliation{
		ID:             uuid.New(),
		RefundDetailID: detailID,
		ActualValue:    dec(actual),
		Status:         refund.ReconciliationMatched,
		CreatedAt:      at,
		UpdatedAt:      at,
	}
}

func TestComputeSnapshot_NoDetails(t *testing.T) {
	s := refund.ComputeSnapshot("ORD-1", nil, nil)

	assert.Equal(t, refund.AccountUninitiated, s.AccountStatus)
	assert.True(t, s.AccountedRefundAmount.IsZero())
	assert.Equal(t, 0, s.DetailCount)
}

func TestComputeSnapshot_LatestReconciliationWins(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	d := newDetail("300", refund.AccountingFullyAccounted)

	older := recAt(d.ID, "120", base)
	newer := recAt(d.ID, "280", base.Add(time.Hour))

	orders := map[string][]*refund.Reconciliation{
		"newer inserted last":  {older, newer},
		"newer inserted first": {newer, older},
	}
	for name, recs := range orders {
		t.Run(name, func(t *testing.T) {
			s := refund.ComputeSnapshot("ORD-1", []*refund.RefundDetail{d},
				map[uuid.UUID][]*refund.Reconciliation{d.ID: recs})
			assert.True(t, s.AccountedRefundAmount.Equal(dec("280")), "got %s", s.AccountedRefundAmount)
			assert.Equal(t, refund.SourceReconciliation, s.Contributions[0].Source)
		})
	}
}

func TestComputeSnapshot_EqualTimestampsTakeLastRead(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	d := newDetail("300", refund.AccountingFullyAccounted)
	recs := []*refund.Reconciliation{recAt(d.ID, "100", at), recAt(d.ID, "150", at)}

	s := refund.ComputeSnapshot("ORD-1", []*refund.RefundDetail{d}, map[uuid.UUID][]*refund.Reconciliation{d.ID: recs})
	assert.True(t, s.AccountedRefundAmount.Equal(dec("150")))
}

func TestComputeSnapshot_GoodOnlyFallback(t *testing.T) {
	d := newDetail("600", refund.AccountingUnaccounted)
	d.ReturnTrackings = []refund.ReturnTracking{
		{
			ID:           "rt-1",
			ReturnStatus: refund.ReturnStatusReceived,
			ReturnItems: []refund.ReturnItem{
				{SKUName: "SKU-A", Quantity: dec("2"), UnitPrice: dec("100"), Condition: refund.ConditionGood},
				{SKUName: "SKU-B", Quantity: dec("1"), UnitPrice: dec("150"), Condition: refund.ConditionDamaged},
			},
		},
		{
			ID:           "rt-2",
			ReturnStatus: refund.ReturnStatusLostByCourier,
			ReturnItems: []refund.ReturnItem{
				{SKUName: "SKU-C", Quantity: dec("3"), UnitPrice: dec("10.5"), Condition: refund.ConditionGood},
				{SKUName: "SKU-D", Quantity: dec("5"), UnitPrice: dec("20"), Condition: refund.ConditionMissing},
			},
		},
	}

	s := refund.ComputeSnapshot("ORD-1", []*refund.RefundDetail{d}, nil)

	assert.True(t, s.AccountedRefundAmount.Equal(dec("231.5")), "got %s", s.AccountedRefundAmount)
	assert.Equal(t, refund.SourceReturnEvidence, s.Contributions[0].Source)
	assert.Equal(t, refund.AccountPartiallyAccounted, s.AccountStatus)
}

func TestComputeSnapshot_ReconciliationOverridesEvidence(t *testing.T) {
	d := newDetail("200", refund.AccountingPartiallyAccounted)
	d.ReturnTrackings = []refund.ReturnTracking{{
		ID:           "rt-1",
		ReturnStatus: refund.ReturnStatusRestocked,
		ReturnItems:  []refund.ReturnItem{{SKUName: "SKU-A", Quantity: dec("2"), UnitPrice: dec("100"), Condition: refund.ConditionGood}},
	}}
	recs := map[uuid.UUID][]*refund.Reconciliation{d.ID: {recAt(d.ID, "50", time.Now())}}

	s := refund.ComputeSnapshot("ORD-1", []*refund.RefundDetail{d}, recs)
	assert.True(t, s.AccountedRefundAmount.Equal(dec("50")))
}

func TestComputeSnapshot_MalformedEvidenceContributesZero(t *testing.T) {
	broken := newDetail("100", refund.AccountingUnaccounted)
	broken.EvidenceErr = errors.New("json: cannot unmarshal string into Go struct field ReturnItem.returnItems.quantity of type int")

	healthy := newDetail("200", refund.AccountingUnaccounted)
	healthy.ReturnTrackings = []refund.ReturnTracking{{
		ID:           "rt-1",
		ReturnStatus: refund.ReturnStatusReceived,
		ReturnItems:  []refund.ReturnItem{{SKUName: "SKU-A", Quantity: dec("1"), UnitPrice: dec("75"), Condition: refund.ConditionGood}},
	}}

	s := refund.ComputeSnapshot("ORD-1", []*refund.RefundDetail{broken, healthy}, nil)

	assert.True(t, s.AccountedRefundAmount.Equal(dec("75")))
	failures := s.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, broken.ID, failures[0].RefundDetailID)
	assert.True(t, failures[0].Amount.IsZero())
}

func TestComputeSnapshot_MalformedEvidenceStillUsesReconciliation(t *testing.T) {
	d := newDetail("100", refund.AccountingFullyAccounted)
	d.EvidenceErr = errors.New("bad payload")
	recs := map[uuid.UUID][]*refund.Reconciliation{d.ID: {recAt(d.ID, "100", time.Now())}}

	s := refund.ComputeSnapshot("ORD-1", []*refund.RefundDetail{d}, recs)

	assert.True(t, s.AccountedRefundAmount.Equal(dec("100")))
	assert.Empty(t, s.Failures())
}

func TestComputeSnapshot_Idempotent(t *testing.T) {
	a := newDetail("300", refund.AccountingFullyAccounted)
	b := newDetail("400", refund.AccountingUnaccounted)
	recs := map[uuid.UUID][]*refund.Reconciliation{a.ID: {recAt(a.ID, "300", time.Now())}}
	details := []*refund.RefundDetail{a, b}

	first := refund.ComputeSnapshot("ORD-1", details, recs)
	second := refund.ComputeSnapshot("ORD-1", details, recs)

	assert.True(t, first.AccountedRefundAmount.Equal(second.AccountedRefundAmount))
	assert.Equal(t, first.AccountStatus, second.AccountStatus)
}

func TestDeriveAccountStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []refund.AccountingStatus
		want     refund.OrderAccountStatus
	}{
		{"none", nil, refund.AccountUninitiated},
		{"all fully", []refund.AccountingStatus{refund.AccountingFullyAccounted, refund.AccountingFullyAccounted}, refund.AccountFullyAccounted},
		{"one unaccounted", []refund.AccountingStatus{refund.AccountingFullyAccounted, refund.AccountingUnaccounted}, refund.AccountPartiallyAccounted},
		{"all unaccounted", []refund.AccountingStatus{refund.AccountingUnaccounted}, refund.AccountPartiallyAccounted},
		{"majority fully", []refund.AccountingStatus{
			refund.AccountingFullyAccounted, refund.AccountingFullyAccounted, refund.AccountingPartiallyAccounted,
		}, refund.AccountPartiallyAccounted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var details []*refund.RefundDetail
			for _, st := range tt.statuses {
				details = append(details, newDetail("10", st))
			}
			assert.Equal(t, tt.want, refund.DeriveAccountStatus(details))
		})
	}
}

func TestComputeSnapshot_StatusDecoupledFromAmounts(t *testing.T) {
	// Reconciled detail is fully accounted; a later correction is not.
	matched := newDetail("500", refund.AccountingFullyAccounted)
	recs := map[uuid.UUID][]*refund.Reconciliation{matched.ID: {recAt(matched.ID, "500", time.Now())}}
	correction := refund.Delta{OrderID: "ORD-1", Difference: dec("300")}.CorrectionDetail(time.Now())

	s := refund.ComputeSnapshot("ORD-1", []*refund.RefundDetail{matched, correction}, recs)

	assert.True(t, s.AccountedRefundAmount.Equal(dec("500")))
	assert.Equal(t, refund.AccountPartiallyAccounted, s.AccountStatus)

	// With only the reconciled detail the status is full even though amounts may differ from the order.
	only := refund.ComputeSnapshot("ORD-1", []*refund.RefundDetail{matched}, recs)
	assert.Equal(t, refund.AccountFullyAccounted, only.AccountStatus)
}

func TestSnapshot_RefundAccount(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := refund.Snapshot{AccountedRefundAmount: dec("12.5"), AccountStatus: refund.AccountFullyAccounted}

	acct := s.RefundAccount(now)

	assert.True(t, acct.AccountedRefundAmount.Equal(dec("12.5")))
	assert.Equal(t, refund.AccountFullyAccounted, acct.AccountStatus)
	require.NotNil(t, acct.ComputedAt)
	assert.Equal(t, now, *acct.ComputedAt)
}

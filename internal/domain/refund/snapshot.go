package refund

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ContributionSource names where a detail's recovered value came from
type ContributionSource string

const (
	SourceReconciliation ContributionSource = "RECONCILIATION"
	SourceReturnEvidence ContributionSource = "RETURN_EVIDENCE"
	SourceNone           ContributionSource = "NONE"
)

// Contribution is the recovered value one refund detail adds to its order.
// A failed computation has a zero Amount and a non-nil Err.
type Contribution struct {
	RefundDetailID uuid.UUID
	Amount         decimal.Decimal
	Source         ContributionSource
	Err            error
}

// ContributionFor computes a detail's actual recovered value: the latest
// reconciliation's actual value, else the GOOD-condition return evidence,
// else zero.
func ContributionFor(d *RefundDetail, recs []*Reconciliation) Contribution {
	c := Contribution{RefundDetailID: d.ID, Amount: decimal.Zero, Source: SourceNone}

	if latest := LatestReconciliation(recs); latest != nil {
		c.Amount = latest.ActualValue
		c.Source = SourceReconciliation
		return c
	}
	if d.EvidenceErr != nil {
		c.Err = d.EvidenceErr
		return c
	}
	if len(d.ReturnTrackings) == 0 {
		return c
	}

	total := decimal.Zero
	for i := range d.ReturnTrackings {
		total = total.Add(d.ReturnTrackings[i].GoodValue())
	}
	c.Amount = total
	c.Source = SourceReturnEvidence
	return c
}

// Snapshot is the computed accounting state of one order
type Snapshot struct {
	OrderID               string
	AccountedRefundAmount decimal.Decimal
	AccountStatus         OrderAccountStatus
	DetailCount           int
	Contributions         []Contribution
}

// ComputeSnapshot folds every detail of an order into a snapshot.
// recs maps refund detail ids to their reconciliation records.
func ComputeSnapshot(orderID string, details []*RefundDetail, recs map[uuid.UUID][]*Reconciliation) Snapshot {
	s := Snapshot{
		OrderID:               orderID,
		AccountedRefundAmount: decimal.Zero,
		AccountStatus:         DeriveAccountStatus(details),
		DetailCount:           len(details),
		Contributions:         make([]Contribution, 0, len(details)),
	}
	for _, d := range details {
		c := ContributionFor(d, recs[d.ID])
		s.AccountedRefundAmount = s.AccountedRefundAmount.Add(c.Amount)
		s.Contributions = append(s.Contributions, c)
	}
	return s
}

// DeriveAccountStatus is UNINITIATED without details, FULLY_ACCOUNTED when every
// detail is fully accounted and PARTIALLY_ACCOUNTED otherwise.
// It reads the per-detail flags only and never compares amounts.
func DeriveAccountStatus(details []*RefundDetail) OrderAccountStatus {
	if len(details) == 0 {
		return AccountUninitiated
	}
	for _, d := range details {
		if !d.IsFullyAccounted() {
			return AccountPartiallyAccounted
		}
	}
	return AccountFullyAccounted
}

// Failures returns the contributions that could not be computed
func (s Snapshot) Failures() []Contribution {
	var out []Contribution
	for _, c := range s.Contributions {
		if c.Err != nil {
			out = append(out, c)
		}
	}
	return out
}

// RefundAccount converts the snapshot into the stored order field
func (s Snapshot) RefundAccount(now time.Time) RefundAccount {
	computed := now
	return RefundAccount{
		AccountedRefundAmount: s.AccountedRefundAmount,
		AccountStatus:         s.AccountStatus,
		ComputedAt:            &computed,
	}
}

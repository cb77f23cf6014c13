package refund

import (
	"time"

	"github.com/erp/refundtracker/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReconciliationStatus is the outcome of comparing expected with recovered value
type ReconciliationStatus string

const (
	ReconciliationPending       ReconciliationStatus = "PENDING"
	ReconciliationMatched       ReconciliationStatus = "MATCHED"
	ReconciliationVarianceFound ReconciliationStatus = "VARIANCE_FOUND"
)

// IsValid checks if the status is a valid ReconciliationStatus
func (s ReconciliationStatus) IsValid() bool {
	switch s {
	case ReconciliationPending, ReconciliationMatched, ReconciliationVarianceFound:
		return true
	}
	return false
}

// String returns the string representation of ReconciliationStatus
func (s ReconciliationStatus) String() string {
	return string(s)
}

// AccountingOutcome maps a reconciliation status to the accounting status it
// imposes on the refund detail. PENDING imposes nothing.
func (s ReconciliationStatus) AccountingOutcome() (AccountingStatus, bool) {
	switch s {
	case ReconciliationMatched:
		return AccountingFullyAccounted, true
	case ReconciliationVarianceFound:
		return AccountingPartiallyAccounted, true
	}
	return "", false
}

// Reconciliation is an append-only ledger record for a refund detail
type Reconciliation struct {
	ID             uuid.UUID
	RefundDetailID uuid.UUID
	ExpectedValue  decimal.Decimal
	ActualValue    decimal.Decimal
	Variance       decimal.Decimal // ActualValue - ExpectedValue
	Status         ReconciliationStatus
	ReconciledBy   string
	ReconciledDate time.Time
	Notes          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ReconcileInput holds the fields of a new ledger record
type ReconcileInput struct {
	RefundDetailID uuid.UUID
	ExpectedValue  decimal.Decimal
	ActualValue    decimal.Decimal
	Status         ReconciliationStatus
	ReconciledBy   string
	Notes          string
}

// NewReconciliation creates a ledger record and computes its variance
func NewReconciliation(in ReconcileInput, now time.Time) (*Reconciliation, error) {
	if in.RefundDetailID == uuid.Nil {
		return nil, shared.NewValidationError("refundDetailId is required")
	}
	if !in.Status.IsValid() {
		return nil, shared.NewValidationError("invalid reconciliation status %q", in.Status)
	}
	return &Reconciliation{
		ID:             uuid.New(),
		RefundDetailID: in.RefundDetailID,
		ExpectedValue:  in.ExpectedValue,
		ActualValue:    in.ActualValue,
		Variance:       in.ActualValue.Sub(in.ExpectedValue),
		Status:         in.Status,
		ReconciledBy:   in.ReconciledBy,
		ReconciledDate: now,
		Notes:          in.Notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// LatestReconciliation returns the record with the greatest UpdatedAt.
// On equal timestamps the one appearing later in recs wins.
func LatestReconciliation(recs []*Reconciliation) *Reconciliation {
	var latest *Reconciliation
	for _, r := range recs {
		if r == nil {
			continue
		}
		if latest == nil || !r.UpdatedAt.Before(latest.UpdatedAt) {
			latest = r
		}
	}
	return latest
}

package refund

import (
	"errors"
	"time"

	"github.com/erp/refundtracker/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RefundType categorizes the cause of a refund
type RefundType string

const (
	RefundTypeOrderCancelled      RefundType = "ORDER_CANCELLED"
	RefundTypeIncorrectPacking    RefundType = "INCORRECT_PACKING"
	RefundTypeFailedDelivery      RefundType = "FAILED_DELIVERY"
	RefundTypeDefectiveProducts   RefundType = "DEFECTIVE_PRODUCTS"
	RefundTypeCustomerChangedMind RefundType = "CUSTOMER_CHANGED_MIND"
	RefundTypePlatformFees        RefundType = "PLATFORM_FEES"
	RefundTypeOthers              RefundType = "OTHERS" // Uncategorized adjustments, including corrections
)

// IsValid checks if the type is a valid RefundType
func (t RefundType) IsValid() bool {
	switch t {
	case RefundTypeOrderCancelled, RefundTypeIncorrectPacking, RefundTypeFailedDelivery,
		RefundTypeDefectiveProducts, RefundTypeCustomerChangedMind, RefundTypePlatformFees, RefundTypeOthers:
		return true
	}
	return false
}

// String returns the string representation of RefundType
func (t RefundType) String() string {
	return string(t)
}

// Status is the processing status of a refund detail
type Status string

const (
	StatusInitiated  Status = "INITIATED"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// IsValid checks if the status is a valid Status
func (s Status) IsValid() bool {
	switch s {
	case StatusInitiated, StatusProcessing, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// AccountingStatus is the reconciliation outcome recorded on a refund detail
type AccountingStatus string

const (
	AccountingUnaccounted        AccountingStatus = "UNACCOUNTED"
	AccountingPartiallyAccounted AccountingStatus = "PARTIALLY_ACCOUNTED"
	AccountingFullyAccounted     AccountingStatus = "FULLY_ACCOUNTED"
)

// IsValid checks if the status is a valid AccountingStatus
func (s AccountingStatus) IsValid() bool {
	switch s {
	case AccountingUnaccounted, AccountingPartiallyAccounted, AccountingFullyAccounted:
		return true
	}
	return false
}

// String returns the string representation of AccountingStatus
func (s AccountingStatus) String() string {
	return string(s)
}

// SystemIngestionActor is the CreatedBy value of records produced by order ingestion
const SystemIngestionActor = "system:order-ingestion"

// RefundDetail is one discrete refund obligation tied to an order
type RefundDetail struct {
	ID               uuid.UUID
	OrderID          string
	RefundType       RefundType
	RefundAmount     decimal.Decimal // Negative only for OTHERS
	RefundDate       time.Time
	Status           Status
	AccountingStatus AccountingStatus
	ReturnTrackings  []ReturnTracking
	PackingError     *PackingError
	DefectiveItems   []DefectiveItem
	Discrepancies    []Discrepancy
	CreatedBy        string
	CreatedAt        time.Time
	UpdatedAt        time.Time

	// EvidenceErr is set when the stored return trackings could not be decoded.
	// Such a detail carries no trackings and contributes nothing from return evidence.
	// EvidenceRaw keeps the undecodable payload so that a rewrite does not lose it.
	EvidenceErr error
	EvidenceRaw []byte
}

// NewRefundDetailInput holds the caller-supplied fields of a new refund detail
type NewRefundDetailInput struct {
	OrderID          string
	RefundType       RefundType
	RefundAmount     decimal.Decimal
	RefundDate       *time.Time
	Status           Status
	AccountingStatus AccountingStatus
	ReturnTrackings  []ReturnTracking
	PackingError     *PackingError
	DefectiveItems   []DefectiveItem
	Discrepancies    []Discrepancy
	CreatedBy        string
}

// NewRefundDetail creates a refund detail, applying defaults for status,
// accounting status and refund date.
func NewRefundDetail(in NewRefundDetailInput, now time.Time) (*RefundDetail, error) {
	d := &RefundDetail{
		ID:               uuid.New(),
		OrderID:          in.OrderID,
		RefundType:       in.RefundType,
		RefundAmount:     in.RefundAmount,
		RefundDate:       now,
		Status:           in.Status,
		AccountingStatus: in.AccountingStatus,
		ReturnTrackings:  cloneTrackings(in.ReturnTrackings),
		PackingError:     in.PackingError,
		DefectiveItems:   in.DefectiveItems,
		Discrepancies:    in.Discrepancies,
		CreatedBy:        in.CreatedBy,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if in.RefundDate != nil {
		d.RefundDate = *in.RefundDate
	}
	if d.Status == "" {
		d.Status = StatusInitiated
	}
	if d.AccountingStatus == "" {
		d.AccountingStatus = AccountingUnaccounted
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Validate checks the required fields and the negative amount policy
func (d *RefundDetail) Validate() error {
	if d.OrderID == "" {
		return shared.NewValidationError("orderId is required")
	}
	if !d.RefundType.IsValid() {
		return shared.NewValidationError("invalid refund type %q", d.RefundType)
	}
	if !d.Status.IsValid() {
		return shared.NewValidationError("invalid refund status %q", d.Status)
	}
	if !d.AccountingStatus.IsValid() {
		return shared.NewValidationError("invalid accounting status %q", d.AccountingStatus)
	}
	if err := ValidateAmountPolicy(d.RefundType, d.RefundAmount); err != nil {
		return err
	}
	for i := range d.ReturnTrackings {
		if err := d.ReturnTrackings[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ValidateAmountPolicy rejects negative amounts on every type except OTHERS
func ValidateAmountPolicy(t RefundType, amount decimal.Decimal) error {
	if amount.IsNegative() && t != RefundTypeOthers {
		return shared.NewValidationError("negative refundAmount %s requires refundType %s, got %s",
			amount.String(), RefundTypeOthers, t).
			WithDetail("field", "refundAmount")
	}
	return nil
}

// IsFullyAccounted reports whether reconciliation marked this detail fully accounted
func (d *RefundDetail) IsFullyAccounted() bool {
	return d.AccountingStatus == AccountingFullyAccounted
}

// UpdateStatus sets the processing status
func (d *RefundDetail) UpdateStatus(status Status, now time.Time) error {
	if !status.IsValid() {
		return shared.NewValidationError("invalid refund status %q", status)
	}
	d.Status = status
	d.UpdatedAt = now
	return nil
}

// SetAccountingStatus records a reconciliation outcome
func (d *RefundDetail) SetAccountingStatus(status AccountingStatus, now time.Time) error {
	if !status.IsValid() {
		return shared.NewValidationError("invalid accounting status %q", status)
	}
	d.AccountingStatus = status
	d.UpdatedAt = now
	return nil
}

// AppendReturnTracking adds a tracking to the end of the list
func (d *RefundDetail) AppendReturnTracking(t ReturnTracking, now time.Time) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if _, ok := d.FindReturnTracking(t.ID); ok {
		return shared.NewValidationError("return tracking %s already exists on refund detail %s", t.ID, d.ID)
	}
	d.ReturnTrackings = append(d.ReturnTrackings, t)
	d.UpdatedAt = now
	return nil
}

// FindReturnTracking returns a pointer into the embedded list
func (d *RefundDetail) FindReturnTracking(id string) (*ReturnTracking, bool) {
	for i := range d.ReturnTrackings {
		if d.ReturnTrackings[i].ID == id {
			return &d.ReturnTrackings[i], true
		}
	}
	return nil, false
}

// ReplaceReturnTrackings swaps the whole tracking list
func (d *RefundDetail) ReplaceReturnTrackings(trackings []ReturnTracking, now time.Time) error {
	seen := make(map[string]struct{}, len(trackings))
	for i := range trackings {
		if err := trackings[i].Validate(); err != nil {
			return err
		}
		if _, dup := seen[trackings[i].ID]; dup {
			return shared.NewValidationError("duplicate return tracking id %s", trackings[i].ID)
		}
		seen[trackings[i].ID] = struct{}{}
	}
	d.ReturnTrackings = cloneTrackings(trackings)
	d.EvidenceErr = nil
	d.EvidenceRaw = nil
	d.UpdatedAt = now
	return nil
}

// IndexEntries builds the flat lookup rows mirroring the embedded trackings
func (d *RefundDetail) IndexEntries() []ReturnIndexEntry {
	entries := make([]ReturnIndexEntry, 0, len(d.ReturnTrackings))
	for _, t := range d.ReturnTrackings {
		entries = append(entries, ReturnIndexEntry{
			ID:               t.ID,
			RefundDetailID:   d.ID,
			OrderID:          d.OrderID,
			ReturnStatus:     t.ReturnStatus,
			TotalReturnValue: t.TotalReturnValue,
			UpdatedAt:        d.UpdatedAt,
		})
	}
	return entries
}

// SplitEntry overrides fields of the original detail for one split result.
// Nil fields are inherited.
type SplitEntry struct {
	RefundType       *RefundType
	RefundAmount     *decimal.Decimal
	RefundDate       *time.Time
	Status           *Status
	AccountingStatus *AccountingStatus
	ReturnTrackings  []ReturnTracking
	PackingError     *PackingError
	DefectiveItems   []DefectiveItem
	Discrepancies    []Discrepancy
	CreatedBy        *string
}

// Split produces one new detail per entry. Each result inherits every field of d
// not overridden by its entry, and gets a fresh id and timestamps.
//
// Inherited return trackings move to the first entry that inherits them; later
// inheriting entries start without trackings so that return evidence and index
// rows are never duplicated.
func (d *RefundDetail) Split(entries []SplitEntry, now time.Time) ([]*RefundDetail, error) {
	if len(entries) == 0 {
		return nil, shared.NewValidationError("split requires at least one entry")
	}

	trackingsTaken := false
	result := make([]*RefundDetail, 0, len(entries))
	for i, e := range entries {
		n := &RefundDetail{
			ID:               uuid.New(),
			OrderID:          d.OrderID,
			RefundType:       d.RefundType,
			RefundAmount:     d.RefundAmount,
			RefundDate:       d.RefundDate,
			Status:           d.Status,
			AccountingStatus: d.AccountingStatus,
			PackingError:     d.PackingError,
			DefectiveItems:   d.DefectiveItems,
			Discrepancies:    d.Discrepancies,
			CreatedBy:        d.CreatedBy,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if e.RefundType != nil {
			n.RefundType = *e.RefundType
		}
		if e.RefundAmount != nil {
			n.RefundAmount = *e.RefundAmount
		}
		if e.RefundDate != nil {
			n.RefundDate = *e.RefundDate
		}
		if e.Status != nil {
			n.Status = *e.Status
		}
		if e.AccountingStatus != nil {
			n.AccountingStatus = *e.AccountingStatus
		}
		if e.PackingError != nil {
			n.PackingError = e.PackingError
		}
		if e.DefectiveItems != nil {
			n.DefectiveItems = e.DefectiveItems
		}
		if e.Discrepancies != nil {
			n.Discrepancies = e.Discrepancies
		}
		if e.CreatedBy != nil {
			n.CreatedBy = *e.CreatedBy
		}
		switch {
		case e.ReturnTrackings != nil:
			n.ReturnTrackings = cloneTrackings(e.ReturnTrackings)
		case !trackingsTaken:
			n.ReturnTrackings = cloneTrackings(d.ReturnTrackings)
			n.EvidenceErr = d.EvidenceErr
			n.EvidenceRaw = d.EvidenceRaw
			trackingsTaken = true
		}

		if err := n.Validate(); err != nil {
			var de *shared.DomainError
			if errors.As(err, &de) {
				return nil, de.WithDetail("splitIndex", i)
			}
			return nil, err
		}
		result = append(result, n)
	}

	seen := make(map[string]struct{})
	for _, n := range result {
		for _, t := range n.ReturnTrackings {
			if _, dup := seen[t.ID]; dup {
				return nil, shared.NewValidationError("return tracking %s assigned to more than one split entry", t.ID)
			}
			seen[t.ID] = struct{}{}
		}
	}
	return result, nil
}

// Clone returns a deep copy of the tracking list and a shallow copy of the rest
func (d *RefundDetail) Clone() *RefundDetail {
	c := *d
	c.ReturnTrackings = cloneTrackings(d.ReturnTrackings)
	return &c
}

func cloneTrackings(in []ReturnTracking) []ReturnTracking {
	if in == nil {
		return nil
	}
	out := make([]ReturnTracking, len(in))
	for i, t := range in {
		out[i] = t
		out[i].ReturnItems = append([]ReturnItem(nil), t.ReturnItems...)
	}
	return out
}

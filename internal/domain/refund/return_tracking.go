package refund

import (
	"time"

	"github.com/erp/refundtracker/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReturnStatus is the lifecycle state of a physical return.
// Any status may be set from any other; callers pick the target explicitly.
type ReturnStatus string

const (
	ReturnStatusPending          ReturnStatus = "PENDING"
	ReturnStatusInTransit        ReturnStatus = "IN_TRANSIT"
	ReturnStatusReceived         ReturnStatus = "RECEIVED"
	ReturnStatusInspecting       ReturnStatus = "INSPECTING"
	ReturnStatusRestocked        ReturnStatus = "RESTOCKED"
	ReturnStatusDiscrepancyFound ReturnStatus = "DISCREPANCY_FOUND"
	ReturnStatusLostByCourier    ReturnStatus = "LOST_BY_COURIER"
	ReturnStatusPaidByCourier    ReturnStatus = "PAID_BY_COURIER"
)

// IsValid checks if the status is a valid ReturnStatus
func (s ReturnStatus) IsValid() bool {
	switch s {
	case ReturnStatusPending, ReturnStatusInTransit, ReturnStatusReceived, ReturnStatusInspecting,
		ReturnStatusRestocked, ReturnStatusDiscrepancyFound, ReturnStatusLostByCourier, ReturnStatusPaidByCourier:
		return true
	}
	return false
}

// String returns the string representation of ReturnStatus
func (s ReturnStatus) String() string {
	return string(s)
}

// ItemCondition is the inspected condition of a returned item
type ItemCondition string

const (
	ConditionGood    ItemCondition = "GOOD"
	ConditionDamaged ItemCondition = "DAMAGED"
	ConditionMissing ItemCondition = "MISSING"
)

// IsValid checks if the condition is a valid ItemCondition
func (c ItemCondition) IsValid() bool {
	switch c {
	case ConditionGood, ConditionDamaged, ConditionMissing:
		return true
	}
	return false
}

// ReturnItem is one SKU line of a return. Quantity and UnitPrice accept JSON numbers
// or numeric strings, and a quantity may be fractional.
type ReturnItem struct {
	SKUName       string          `json:"skuName"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unitPrice"`
	Condition     ItemCondition   `json:"condition"`
	RestockedDate *time.Time      `json:"restockedDate,omitempty"`
	RestockedBy   string          `json:"restockedBy,omitempty"`
}

// Value returns quantity * unitPrice
func (i ReturnItem) Value() decimal.Decimal {
	return i.UnitPrice.Mul(i.Quantity)
}

// ReturnTracking is a return lifecycle embedded in a refund detail
type ReturnTracking struct {
	ID                  string          `json:"id"`
	ReturnInitiatedDate *time.Time      `json:"returnInitiatedDate,omitempty"`
	ExpectedReturnDate  *time.Time      `json:"expectedReturnDate,omitempty"`
	ActualReturnDate    *time.Time      `json:"actualReturnDate,omitempty"`
	ReturnStatus        ReturnStatus    `json:"returnStatus"`
	ReturnItems         []ReturnItem    `json:"returnItems"`
	TotalReturnValue    decimal.Decimal `json:"totalReturnValue"`
	Reason              string          `json:"reason,omitempty"`
}

// NewReturnTrackingInput holds the caller-supplied fields of a new return
type NewReturnTrackingInput struct {
	ID                  string
	ReturnInitiatedDate *time.Time
	ExpectedReturnDate  *time.Time
	ReturnStatus        ReturnStatus
	ReturnItems         []ReturnItem
	Reason              string
}

// NewReturnTracking creates a tracking and computes its total return value once
func NewReturnTracking(in NewReturnTrackingInput, now time.Time) (ReturnTracking, error) {
	t := ReturnTracking{
		ID:                  in.ID,
		ReturnInitiatedDate: in.ReturnInitiatedDate,
		ExpectedReturnDate:  in.ExpectedReturnDate,
		ReturnStatus:        in.ReturnStatus,
		ReturnItems:         append([]ReturnItem(nil), in.ReturnItems...),
		TotalReturnValue:    TotalReturnValue(in.ReturnItems),
		Reason:              in.Reason,
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.ReturnStatus == "" {
		t.ReturnStatus = ReturnStatusPending
	}
	if t.ReturnInitiatedDate == nil {
		initiated := now
		t.ReturnInitiatedDate = &initiated
	}
	if t.ReturnStatus == ReturnStatusReceived {
		received := now
		t.ActualReturnDate = &received
	}
	if err := t.Validate(); err != nil {
		return ReturnTracking{}, err
	}
	return t, nil
}

// Validate checks the tracking's status, item conditions and quantities
func (t *ReturnTracking) Validate() error {
	if t.ID == "" {
		return shared.NewValidationError("return tracking id is required")
	}
	if !t.ReturnStatus.IsValid() {
		return shared.NewValidationError("invalid return status %q", t.ReturnStatus)
	}
	for _, item := range t.ReturnItems {
		if !item.Condition.IsValid() {
			return shared.NewValidationError("invalid item condition %q for sku %s", item.Condition, item.SKUName)
		}
		if item.Quantity.IsNegative() {
			return shared.NewValidationError("negative quantity for sku %s", item.SKUName)
		}
	}
	return nil
}

// TransitionTo sets the return status. Entering RECEIVED stamps the actual
// return date unless it was already recorded.
func (t *ReturnTracking) TransitionTo(status ReturnStatus, now time.Time) error {
	if !status.IsValid() {
		return shared.NewValidationError("invalid return status %q", status)
	}
	t.ReturnStatus = status
	if status == ReturnStatusReceived && t.ActualReturnDate == nil {
		received := now
		t.ActualReturnDate = &received
	}
	return nil
}

// GoodValue sums quantity * unitPrice over items in GOOD condition
func (t *ReturnTracking) GoodValue() decimal.Decimal {
	total := decimal.Zero
	for _, item := range t.ReturnItems {
		if item.Condition == ConditionGood {
			total = total.Add(item.Value())
		}
	}
	return total
}

// TotalReturnValue sums quantity * unitPrice over all items
func TotalReturnValue(items []ReturnItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Value())
	}
	return total
}

// ReturnIndexEntry is the flat lookup row for a return tracking.
// It is derived from the embedded copy and can be rebuilt from it.
type ReturnIndexEntry struct {
	ID               string
	RefundDetailID   uuid.UUID
	OrderID          string
	ReturnStatus     ReturnStatus
	TotalReturnValue decimal.Decimal
	UpdatedAt        time.Time
}

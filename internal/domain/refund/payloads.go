package refund

import (
	"time"

	"github.com/shopspring/decimal"
)

// PackingErrorType classifies a packing mistake
type PackingErrorType string

const (
	PackingErrorWrongItem   PackingErrorType = "WRONG_ITEM"
	PackingErrorMissingItem PackingErrorType = "MISSING_ITEM"
	PackingErrorExcessItem  PackingErrorType = "EXCESS_ITEM"
	PackingErrorMixed       PackingErrorType = "MIXED_ERROR"
)

// IsValid checks if the type is a valid PackingErrorType
func (t PackingErrorType) IsValid() bool {
	switch t {
	case PackingErrorWrongItem, PackingErrorMissingItem, PackingErrorExcessItem, PackingErrorMixed:
		return true
	}
	return false
}

// PackingError describes who packed an INCORRECT_PACKING order and what went wrong
type PackingError struct {
	PackedByStaffCode string           `json:"packedByStaffCode"`
	ErrorType         PackingErrorType `json:"errorType"`
	IncorrectItems    []IncorrectItem  `json:"incorrectItems"`
	Notes             string           `json:"notes,omitempty"`
}

// IncorrectItem is one wrongly packed line
type IncorrectItem struct {
	ExpectedSKUName  string          `json:"expectedSKUName"`
	ActualSKUName    string          `json:"actualSKUName,omitempty"`
	ExpectedQuantity int             `json:"expectedQuantity"`
	ActualQuantity   int             `json:"actualQuantity"`
	ValueDifference  decimal.Decimal `json:"valueDifference"`
}

// DefectiveItem is a defective product report attached to a refund
type DefectiveItem struct {
	SKUName           string          `json:"skuName"`
	Quantity          int             `json:"quantity"`
	UnitPrice         decimal.Decimal `json:"unitPrice"`
	DefectDescription string          `json:"defectDescription"`
	EvidenceURLs      []string        `json:"evidenceUrls,omitempty"`
	ReportedBy        string          `json:"reportedBy"`
	ReportedDate      time.Time       `json:"reportedDate"`
	VerifiedBy        string          `json:"verifiedBy,omitempty"`
	VerifiedDate      *time.Time      `json:"verifiedDate,omitempty"`
}

// DiscrepancyType classifies a recorded discrepancy
type DiscrepancyType string

const (
	DiscrepancyValueMismatch     DiscrepancyType = "VALUE_MISMATCH"
	DiscrepancyQuantityMismatch  DiscrepancyType = "QUANTITY_MISMATCH"
	DiscrepancyItemMismatch      DiscrepancyType = "ITEM_MISMATCH"
	DiscrepancyConditionMismatch DiscrepancyType = "CONDITION_MISMATCH"
	DiscrepancyMissingItems      DiscrepancyType = "MISSING_ITEMS"
	DiscrepancyCourierLoss       DiscrepancyType = "COURIER_LOSS"
	DiscrepancyWriteOff          DiscrepancyType = "WRITE_OFF"
)

// IsValid checks if the type is a valid DiscrepancyType
func (t DiscrepancyType) IsValid() bool {
	switch t {
	case DiscrepancyValueMismatch, DiscrepancyQuantityMismatch, DiscrepancyItemMismatch,
		DiscrepancyConditionMismatch, DiscrepancyMissingItems, DiscrepancyCourierLoss, DiscrepancyWriteOff:
		return true
	}
	return false
}

// Discrepancy records a difference found while processing a refund
type Discrepancy struct {
	ID            string          `json:"id"`
	Type          DiscrepancyType `json:"type"`
	Description   string          `json:"description"`
	ExpectedValue decimal.Decimal `json:"expectedValue"`
	ActualValue   decimal.Decimal `json:"actualValue"`
	Variance      decimal.Decimal `json:"variance"`
	ResolvedBy    string          `json:"resolvedBy,omitempty"`
	ResolvedDate  *time.Time      `json:"resolvedDate,omitempty"`
	Resolution    string          `json:"resolution,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// TotalVariance sums the variance of the given discrepancies
func TotalVariance(ds []Discrepancy) decimal.Decimal {
	total := decimal.Zero
	for _, d := range ds {
		total = total.Add(d.Variance)
	}
	return total
}

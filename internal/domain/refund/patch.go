package refund

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/erp/refundtracker/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Field names accepted in change sets
const (
	FieldStatus           = "status"
	FieldAccountingStatus = "accountingStatus"
	FieldReturnTrackings  = "returnTrackings"
	FieldRefundAmount     = "refundAmount"
	FieldRefundType       = "refundType"
	FieldRefundDate       = "refundDate"
	FieldPackingError     = "packingError"
	FieldDefectiveItems   = "defectiveItems"
	FieldDiscrepancies    = "discrepancies"
)

// FieldSet is a whitelist of change set keys
type FieldSet map[string]struct{}

// NewFieldSet builds a FieldSet
func NewFieldSet(fields ...string) FieldSet {
	s := make(FieldSet, len(fields))
	for _, f := range fields {
		s[f] = struct{}{}
	}
	return s
}

// Has reports whether the field is allowed
func (s FieldSet) Has(field string) bool {
	_, ok := s[field]
	return ok
}

var (
	// TypeDataFields are the only fields a type-data update may touch
	TypeDataFields = NewFieldSet(FieldReturnTrackings, FieldAccountingStatus, FieldStatus)

	// BulkFields are the fields a bulk update may touch
	BulkFields = NewFieldSet(
		FieldStatus, FieldAccountingStatus, FieldReturnTrackings,
		FieldRefundAmount, FieldRefundType, FieldRefundDate,
		FieldPackingError, FieldDefectiveItems, FieldDiscrepancies,
	)
)

// Changes is a loosely typed change set keyed by field name, as received from callers
type Changes map[string]json.RawMessage

// Patch is a validated change set. Nil fields are left untouched.
type Patch struct {
	Status           *Status
	AccountingStatus *AccountingStatus
	ReturnTrackings  *[]ReturnTracking
	RefundAmount     *decimal.Decimal
	RefundType       *RefundType
	RefundDate       *time.Time
	PackingError     *PackingError
	DefectiveItems   *[]DefectiveItem
	Discrepancies    *[]Discrepancy
}

// ParseChanges decodes a change set, rejecting keys outside allowed
func ParseChanges(c Changes, allowed FieldSet) (Patch, error) {
	var p Patch
	if len(c) == 0 {
		return p, shared.NewValidationError("no changes supplied")
	}

	var rejected []string
	for key := range c {
		if !allowed.Has(key) {
			rejected = append(rejected, key)
		}
	}
	if len(rejected) > 0 {
		sort.Strings(rejected)
		return p, shared.NewValidationError("fields not allowed: %s", strings.Join(rejected, ", ")).
			WithDetail("fields", rejected)
	}

	for key, raw := range c {
		var err error
		switch key {
		case FieldStatus:
			err = decodeInto(raw, &p.Status)
		case FieldAccountingStatus:
			err = decodeInto(raw, &p.AccountingStatus)
		case FieldReturnTrackings:
			err = decodeInto(raw, &p.ReturnTrackings)
		case FieldRefundAmount:
			err = decodeInto(raw, &p.RefundAmount)
		case FieldRefundType:
			err = decodeInto(raw, &p.RefundType)
		case FieldRefundDate:
			err = decodeInto(raw, &p.RefundDate)
		case FieldPackingError:
			err = decodeInto(raw, &p.PackingError)
		case FieldDefectiveItems:
			err = decodeInto(raw, &p.DefectiveItems)
		case FieldDiscrepancies:
			err = decodeInto(raw, &p.Discrepancies)
		}
		if err != nil {
			return Patch{}, shared.NewValidationError("invalid value for %s: %v", key, err).
				WithDetail("field", key)
		}
	}
	return p, nil
}

func decodeInto[T any](raw json.RawMessage, dst **T) error {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	*dst = &v
	return nil
}

// ApplyPatch applies p and re-validates the detail. It reports whether the
// return tracking list was replaced, in which case index rows must be rebuilt.
func (d *RefundDetail) ApplyPatch(p Patch, now time.Time) (bool, error) {
	trackingsReplaced := false
	if p.Status != nil {
		d.Status = *p.Status
	}
	if p.AccountingStatus != nil {
		d.AccountingStatus = *p.AccountingStatus
	}
	if p.RefundAmount != nil {
		d.RefundAmount = *p.RefundAmount
	}
	if p.RefundType != nil {
		d.RefundType = *p.RefundType
	}
	if p.RefundDate != nil {
		d.RefundDate = *p.RefundDate
	}
	if p.PackingError != nil {
		d.PackingError = p.PackingError
	}
	if p.DefectiveItems != nil {
		d.DefectiveItems = *p.DefectiveItems
	}
	if p.Discrepancies != nil {
		d.Discrepancies = *p.Discrepancies
	}
	if p.ReturnTrackings != nil {
		trackings := NormalizeReturnTrackings(*p.ReturnTrackings)
		if err := d.ReplaceReturnTrackings(trackings, now); err != nil {
			return false, err
		}
		trackingsReplaced = true
	}
	d.UpdatedAt = now
	if err := d.Validate(); err != nil {
		return false, err
	}
	return trackingsReplaced, nil
}

// NormalizeReturnTrackings fills ids, default status and unset total values of caller-supplied trackings
func NormalizeReturnTrackings(in []ReturnTracking) []ReturnTracking {
	out := make([]ReturnTracking, len(in))
	for i, t := range in {
		if t.ID == "" {
			t.ID = uuid.New().String()
		}
		if t.ReturnStatus == "" {
			t.ReturnStatus = ReturnStatusPending
		}
		if t.TotalReturnValue.IsZero() && len(t.ReturnItems) > 0 {
			t.TotalReturnValue = TotalReturnValue(t.ReturnItems)
		}
		out[i] = t
	}
	return out
}

package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/erp/refundtracker/internal/domain/refund"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// RefundDetailModel is the persistence model for refund details.
// Return trackings are kept as raw JSON so that a malformed payload degrades
// to a flagged detail instead of failing the whole read.
type RefundDetailModel struct {
	BaseModel
	OrderID          string                 `gorm:"type:varchar(64);not null;index"`
	RefundType       string                 `gorm:"type:varchar(40);not null;index"`
	RefundAmount     decimal.Decimal        `gorm:"type:decimal(18,4);not null"`
	RefundDate       time.Time              `gorm:"not null"`
	Status           string                 `gorm:"type:varchar(20);not null;default:'INITIATED'"`
	AccountingStatus string                 `gorm:"type:varchar(30);not null;default:'UNACCOUNTED';index"`
	ReturnTrackings  datatypes.JSON         `gorm:"column:return_trackings"`
	PackingError     *refund.PackingError   `gorm:"type:jsonb;serializer:json"`
	DefectiveItems   []refund.DefectiveItem `gorm:"type:jsonb;serializer:json"`
	Discrepancies    []refund.Discrepancy   `gorm:"type:jsonb;serializer:json"`
	CreatedBy        string                 `gorm:"type:varchar(100)"`
}

// TableName returns the table name for GORM
func (RefundDetailModel) TableName() string {
	return "refund_details"
}

// ToDomain converts the persistence model to a domain RefundDetail.
// A return tracking payload that cannot be decoded leaves the trackings empty
// and records the decode error on the detail.
func (m *RefundDetailModel) ToDomain() *refund.RefundDetail {
	d := &refund.RefundDetail{
		ID:               m.ID,
		OrderID:          m.OrderID,
		RefundType:       refund.RefundType(m.RefundType),
		RefundAmount:     m.RefundAmount,
		RefundDate:       m.RefundDate,
		Status:           refund.Status(m.Status),
		AccountingStatus: refund.AccountingStatus(m.AccountingStatus),
		PackingError:     m.PackingError,
		DefectiveItems:   m.DefectiveItems,
		Discrepancies:    m.Discrepancies,
		CreatedBy:        m.CreatedBy,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
	trackings, err := DecodeReturnTrackings(m.ReturnTrackings)
	if err != nil {
		d.EvidenceErr = err
		d.EvidenceRaw = append([]byte(nil), m.ReturnTrackings...)
		return d
	}
	d.ReturnTrackings = trackings
	return d
}

// RefundDetailModelFromDomain creates a persistence model from a domain RefundDetail.
// A detail whose evidence could not be decoded writes its original payload back.
func RefundDetailModelFromDomain(d *refund.RefundDetail) (*RefundDetailModel, error) {
	raw := datatypes.JSON(d.EvidenceRaw)
	if d.EvidenceErr == nil {
		encoded, err := EncodeReturnTrackings(d.ReturnTrackings)
		if err != nil {
			return nil, err
		}
		raw = encoded
	}
	return &RefundDetailModel{
		BaseModel: BaseModel{
			ID:        d.ID,
			CreatedAt: d.CreatedAt,
			UpdatedAt: d.UpdatedAt,
		},
		OrderID:          d.OrderID,
		RefundType:       string(d.RefundType),
		RefundAmount:     d.RefundAmount,
		RefundDate:       d.RefundDate,
		Status:           string(d.Status),
		AccountingStatus: string(d.AccountingStatus),
		ReturnTrackings:  raw,
		PackingError:     d.PackingError,
		DefectiveItems:   d.DefectiveItems,
		Discrepancies:    d.Discrepancies,
		CreatedBy:        d.CreatedBy,
	}, nil
}

// DecodeReturnTrackings decodes the raw JSON tracking column
func DecodeReturnTrackings(raw datatypes.JSON) ([]refund.ReturnTracking, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var trackings []refund.ReturnTracking
	if err := json.Unmarshal(raw, &trackings); err != nil {
		return nil, fmt.Errorf("decode return trackings: %w", err)
	}
	return trackings, nil
}

// EncodeReturnTrackings encodes trackings for the raw JSON column
func EncodeReturnTrackings(trackings []refund.ReturnTracking) (datatypes.JSON, error) {
	if trackings == nil {
		trackings = []refund.ReturnTracking{}
	}
	b, err := json.Marshal(trackings)
	if err != nil {
		return nil, fmt.Errorf("encode return trackings: %w", err)
	}
	return datatypes.JSON(b), nil
}

// ReturnIndexModel is the flat lookup row of a return tracking
type ReturnIndexModel struct {
	ID               string          `gorm:"type:varchar(100);primaryKey"`
	RefundDetailID   uuid.UUID       `gorm:"type:uuid;not null;index"`
	OrderID          string          `gorm:"type:varchar(64);not null;index"`
	ReturnStatus     string          `gorm:"type:varchar(30);not null;index"`
	TotalReturnValue decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	UpdatedAt        time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ReturnIndexModel) TableName() string {
	return "refund_return_index"
}

// ToDomain converts the persistence model to a domain ReturnIndexEntry
func (m *ReturnIndexModel) ToDomain() refund.ReturnIndexEntry {
	return refund.ReturnIndexEntry{
		ID:               m.ID,
		RefundDetailID:   m.RefundDetailID,
		OrderID:          m.OrderID,
		ReturnStatus:     refund.ReturnStatus(m.ReturnStatus),
		TotalReturnValue: m.TotalReturnValue,
		UpdatedAt:        m.UpdatedAt,
	}
}

// ReturnIndexModelFromDomain creates a persistence model from a domain ReturnIndexEntry
func ReturnIndexModelFromDomain(e refund.ReturnIndexEntry) *ReturnIndexModel {
	return &ReturnIndexModel{
		ID:               e.ID,
		RefundDetailID:   e.RefundDetailID,
		OrderID:          e.OrderID,
		ReturnStatus:     string(e.ReturnStatus),
		TotalReturnValue: e.TotalReturnValue,
		UpdatedAt:        e.UpdatedAt,
	}
}

// ReconciliationModel is the persistence model for reconciliation ledger records
type ReconciliationModel struct {
	BaseModel
	RefundDetailID uuid.UUID       `gorm:"type:uuid;not null;index"`
	ExpectedValue  decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	ActualValue    decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Variance       decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Status         string          `gorm:"type:varchar(20);not null;index"`
	ReconciledBy   string          `gorm:"type:varchar(100)"`
	ReconciledDate time.Time       `gorm:"not null"`
	Notes          string          `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (ReconciliationModel) TableName() string {
	return "refund_reconciliations"
}

// ToDomain converts the persistence model to a domain Reconciliation
func (m *ReconciliationModel) ToDomain() *refund.Reconciliation {
	return &refund.Reconciliation{
		ID:             m.ID,
		RefundDetailID: m.RefundDetailID,
		ExpectedValue:  m.ExpectedValue,
		ActualValue:    m.ActualValue,
		Variance:       m.Variance,
		Status:         refund.ReconciliationStatus(m.Status),
		ReconciledBy:   m.ReconciledBy,
		ReconciledDate: m.ReconciledDate,
		Notes:          m.Notes,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// ReconciliationModelFromDomain creates a persistence model from a domain Reconciliation
func ReconciliationModelFromDomain(r *refund.Reconciliation) *ReconciliationModel {
	return &ReconciliationModel{
		BaseModel: BaseModel{
			ID:        r.ID,
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		},
		RefundDetailID: r.RefundDetailID,
		ExpectedValue:  r.ExpectedValue,
		ActualValue:    r.ActualValue,
		Variance:       r.Variance,
		Status:         string(r.Status),
		ReconciledBy:   r.ReconciledBy,
		ReconciledDate: r.ReconciledDate,
		Notes:          r.Notes,
	}
}

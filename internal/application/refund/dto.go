package refund

import (
	"time"

	"github.com/erp/refundtracker/internal/domain/refund"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ==================== Refund Detail DTOs ====================

// InitiateRefundRequest represents a request to create a refund detail
type InitiateRefundRequest struct {
	OrderID          string                  `json:"orderId" binding:"required,max=64"`
	RefundType       string                  `json:"refundType" binding:"required,refund_type"`
	RefundAmount     *decimal.Decimal        `json:"refundAmount" binding:"required"`
	RefundDate       *time.Time              `json:"refundDate"`
	Status           string                  `json:"status" binding:"omitempty,refund_status"`
	AccountingStatus string                  `json:"accountingStatus" binding:"omitempty,accounting_status"`
	ReturnTrackings  []refund.ReturnTracking `json:"returnTrackings"`
	PackingError     *refund.PackingError    `json:"packingError"`
	DefectiveItems   []refund.DefectiveItem  `json:"defectiveItems"`
	Discrepancies    []refund.Discrepancy    `json:"discrepancies"`
	CreatedBy        string                  `json:"createdBy"`
}

// SplitEntryInput overrides fields of the original refund for one split result.
// Omitted fields are inherited.
type SplitEntryInput struct {
	OrderID          *string                 `json:"orderId"`
	RefundType       *string                 `json:"refundType"`
	RefundAmount     *decimal.Decimal        `json:"refundAmount"`
	RefundDate       *time.Time              `json:"refundDate"`
	Status           *string                 `json:"status"`
	AccountingStatus *string                 `json:"accountingStatus"`
	ReturnTrackings  []refund.ReturnTracking `json:"returnTrackings"`
	PackingError     *refund.PackingError    `json:"packingError"`
	DefectiveItems   []refund.DefectiveItem  `json:"defectiveItems"`
	Discrepancies    []refund.Discrepancy    `json:"discrepancies"`
	CreatedBy        *string                 `json:"createdBy"`
}

// SplitRefundRequest represents a request to split one refund detail into several
type SplitRefundRequest struct {
	Splits []SplitEntryInput `json:"splits" binding:"required,min=1"`
}

// UpdateRefundStatusRequest represents a request to change a refund's processing status
type UpdateRefundStatusRequest struct {
	Status string `json:"status" binding:"required,refund_status"`
}

// BulkUpdateItem is one entry of a bulk update
type BulkUpdateItem struct {
	ID            uuid.UUID      `json:"id" binding:"required"`
	Changes       refund.Changes `json:"changes" binding:"required"`
	LastUpdatedAt *time.Time     `json:"lastUpdatedAt"`
}

// BulkUpdateRequest represents a request to update many refund details atomically
type BulkUpdateRequest struct {
	Updates []BulkUpdateItem `json:"updates" binding:"required,min=1,dive"`
}

// RefundListFilter defines filtering options for refund detail listings
type RefundListFilter struct {
	Page             int    `form:"page" binding:"omitempty,min=1"`
	PageSize         int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	OrderBy          string `form:"order_by"`
	OrderDir         string `form:"order_dir" binding:"omitempty,oneof=asc desc"`
	OrderID          string `form:"order_id"`
	RefundType       string `form:"refund_type" binding:"omitempty,refund_type"`
	Status           string `form:"status" binding:"omitempty,refund_status"`
	AccountingStatus string `form:"accounting_status" binding:"omitempty,accounting_status"`
}

// RefundDetailResponse represents a refund detail in API responses
type RefundDetailResponse struct {
	ID               uuid.UUID               `json:"id"`
	OrderID          string                  `json:"orderId"`
	RefundType       string                  `json:"refundType"`
	RefundAmount     decimal.Decimal         `json:"refundAmount"`
	RefundDate       time.Time               `json:"refundDate"`
	Status           string                  `json:"status"`
	AccountingStatus string                  `json:"accountingStatus"`
	ReturnTrackings  []refund.ReturnTracking `json:"returnTrackings"`
	PackingError     *refund.PackingError    `json:"packingError,omitempty"`
	DefectiveItems   []refund.DefectiveItem  `json:"defectiveItems,omitempty"`
	Discrepancies    []refund.Discrepancy    `json:"discrepancies,omitempty"`
	EvidenceError    string                  `json:"evidenceError,omitempty"`
	CreatedBy        string                  `json:"createdBy"`
	CreatedAt        time.Time               `json:"createdAt"`
	UpdatedAt        time.Time               `json:"updatedAt"`
}

// ToRefundDetailResponse converts a domain RefundDetail to a response
func ToRefundDetailResponse(d *refund.RefundDetail) RefundDetailResponse {
	resp := RefundDetailResponse{
		ID:               d.ID,
		OrderID:          d.OrderID,
		RefundType:       string(d.RefundType),
		RefundAmount:     d.RefundAmount,
		RefundDate:       d.RefundDate,
		Status:           string(d.Status),
		AccountingStatus: string(d.AccountingStatus),
		ReturnTrackings:  d.ReturnTrackings,
		PackingError:     d.PackingError,
		DefectiveItems:   d.DefectiveItems,
		Discrepancies:    d.Discrepancies,
		CreatedBy:        d.CreatedBy,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
	if resp.ReturnTrackings == nil {
		resp.ReturnTrackings = []refund.ReturnTracking{}
	}
	if d.EvidenceErr != nil {
		resp.EvidenceError = d.EvidenceErr.Error()
	}
	return resp
}

// ToRefundDetailResponses converts a slice of domain RefundDetails to responses
func ToRefundDetailResponses(details []*refund.RefundDetail) []RefundDetailResponse {
	out := make([]RefundDetailResponse, len(details))
	for i, d := range details {
		out[i] = ToRefundDetailResponse(d)
	}
	return out
}

// ==================== Return DTOs ====================

// InitiateReturnRequest represents a request to start a return for a refund detail
type InitiateReturnRequest struct {
	RefundDetailID      uuid.UUID           `json:"refundDetailId" binding:"required"`
	ReturnItems         []refund.ReturnItem `json:"returnItems"`
	ReturnStatus        string              `json:"returnStatus" binding:"omitempty,return_status"`
	ReturnInitiatedDate *time.Time          `json:"returnInitiatedDate"`
	ExpectedReturnDate  *time.Time          `json:"expectedReturnDate"`
	Reason              string              `json:"reason" binding:"max=500"`
}

// UpdateReturnStatusRequest represents a request to set a return's status
type UpdateReturnStatusRequest struct {
	ReturnStatus string `json:"returnStatus" binding:"required,return_status"`
}

// ReturnListFilter defines filtering options for return listings
type ReturnListFilter struct {
	Page           int    `form:"page" binding:"omitempty,min=1"`
	PageSize       int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	OrderBy        string `form:"order_by"`
	OrderDir       string `form:"order_dir" binding:"omitempty,oneof=asc desc"`
	OrderID        string `form:"order_id"`
	RefundDetailID string `form:"refund_detail_id" binding:"omitempty,uuid"`
	ReturnStatus   string `form:"return_status" binding:"omitempty,return_status"`
}

// ReturnResponse represents a return tracking together with its owning refund detail
type ReturnResponse struct {
	RefundDetailID uuid.UUID `json:"refundDetailId"`
	OrderID        string    `json:"orderId"`
	refund.ReturnTracking
}

// ReturnIndexResponse represents a row of the return listing
type ReturnIndexResponse struct {
	ID               string          `json:"id"`
	RefundDetailID   uuid.UUID       `json:"refundDetailId"`
	OrderID          string          `json:"orderId"`
	ReturnStatus     string          `json:"returnStatus"`
	TotalReturnValue decimal.Decimal `json:"totalReturnValue"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// ToReturnIndexResponse converts an index entry to a response
func ToReturnIndexResponse(e refund.ReturnIndexEntry) ReturnIndexResponse {
	return ReturnIndexResponse{
		ID:               e.ID,
		RefundDetailID:   e.RefundDetailID,
		OrderID:          e.OrderID,
		ReturnStatus:     string(e.ReturnStatus),
		TotalReturnValue: e.TotalReturnValue,
		UpdatedAt:        e.UpdatedAt,
	}
}

// ==================== Reconciliation DTOs ====================

// ReconcileRequest represents a request to record a reconciliation outcome
type ReconcileRequest struct {
	ExpectedValue *decimal.Decimal `json:"expectedValue" binding:"required"`
	ActualValue   *decimal.Decimal `json:"actualValue" binding:"required"`
	Status        string           `json:"status" binding:"required,reconciliation_status"`
	Notes         string           `json:"notes" binding:"max=2000"`
	ReconciledBy  string           `json:"reconciledBy"`
}

// ReconciliationResponse represents a ledger record in API responses
type ReconciliationResponse struct {
	ID             uuid.UUID       `json:"id"`
	RefundDetailID uuid.UUID       `json:"refundDetailId"`
	ExpectedValue  decimal.Decimal `json:"expectedValue"`
	ActualValue    decimal.Decimal `json:"actualValue"`
	Variance       decimal.Decimal `json:"variance"`
	Status         string          `json:"status"`
	ReconciledBy   string          `json:"reconciledBy,omitempty"`
	ReconciledDate time.Time       `json:"reconciledDate"`
	Notes          string          `json:"notes,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// ToReconciliationResponse converts a ledger record to a response
func ToReconciliationResponse(r *refund.Reconciliation) ReconciliationResponse {
	return ReconciliationResponse{
		ID:             r.ID,
		RefundDetailID: r.RefundDetailID,
		ExpectedValue:  r.ExpectedValue,
		ActualValue:    r.ActualValue,
		Variance:       r.Variance,
		Status:         string(r.Status),
		ReconciledBy:   r.ReconciledBy,
		ReconciledDate: r.ReconciledDate,
		Notes:          r.Notes,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

// ToReconciliationResponses converts ledger records to responses
func ToReconciliationResponses(recs []*refund.Reconciliation) []ReconciliationResponse {
	out := make([]ReconciliationResponse, len(recs))
	for i, r := range recs {
		out[i] = ToReconciliationResponse(r)
	}
	return out
}

// ReconcileResponse is the outcome of a reconciliation
type ReconcileResponse struct {
	Reconciliation ReconciliationResponse `json:"reconciliation"`
	Refund         RefundDetailResponse   `json:"refund"`
}

// VarianceReportResponse lists reconciliations that found a variance
type VarianceReportResponse struct {
	Count         int                      `json:"count"`
	TotalVariance decimal.Decimal          `json:"totalVariance"`
	Items         []ReconciliationResponse `json:"items"`
}

// ==================== Snapshot DTOs ====================

// ContributionResponse is the recovered value one refund detail adds to its order
type ContributionResponse struct {
	RefundDetailID uuid.UUID       `json:"refundDetailId"`
	Amount         decimal.Decimal `json:"amount"`
	Source         string          `json:"source"`
	Error          string          `json:"error,omitempty"`
}

// SnapshotResponse is an order's refund accounting snapshot
type SnapshotResponse struct {
	OrderID               string                 `json:"orderId"`
	AccountedRefundAmount decimal.Decimal        `json:"accountedRefundAmount"`
	AccountStatus         string                 `json:"accountStatus"`
	ComputedAt            time.Time              `json:"computedAt"`
	Cached                bool                   `json:"cached"`
	DetailCount           int                    `json:"detailCount,omitempty"`
	Contributions         []ContributionResponse `json:"contributions,omitempty"`
}

func toSnapshotResponse(s refund.Snapshot, computedAt time.Time) *SnapshotResponse {
	resp := &SnapshotResponse{
		OrderID:               s.OrderID,
		AccountedRefundAmount: s.AccountedRefundAmount,
		AccountStatus:         string(s.AccountStatus),
		ComputedAt:            computedAt,
		DetailCount:           s.DetailCount,
		Contributions:         make([]ContributionResponse, len(s.Contributions)),
	}
	for i, c := range s.Contributions {
		resp.Contributions[i] = ContributionResponse{
			RefundDetailID: c.RefundDetailID,
			Amount:         c.Amount,
			Source:         string(c.Source),
		}
		if c.Err != nil {
			resp.Contributions[i].Error = c.Err.Error()
		}
	}
	return resp
}

func cachedSnapshotResponse(c refund.CachedSnapshot) *SnapshotResponse {
	return &SnapshotResponse{
		OrderID:               c.OrderID,
		AccountedRefundAmount: c.AccountedRefundAmount,
		AccountStatus:         string(c.AccountStatus),
		ComputedAt:            c.ComputedAt,
		Cached:                true,
	}
}

// OrderError names an order whose processing failed
type OrderError struct {
	OrderID string `json:"orderId"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error"`
}

// RecomputeReport summarizes a bulk recomputation
type RecomputeReport struct {
	Total     int          `json:"total"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Errors    []OrderError `json:"errors,omitempty"`
}

// SumValidationResponse compares an order's refund details with its buyer refund amount
type SumValidationResponse struct {
	OrderID       string          `json:"orderId"`
	ActualTotal   decimal.Decimal `json:"actualTotal"`
	ExpectedTotal decimal.Decimal `json:"expectedTotal"`
	Difference    decimal.Decimal `json:"difference"`
	Valid         bool            `json:"valid"`
}

func toSumValidationResponse(c refund.SumCheck, valid bool) *SumValidationResponse {
	return &SumValidationResponse{
		OrderID:       c.OrderID,
		ActualTotal:   c.ActualTotal,
		ExpectedTotal: c.ExpectedTotal,
		Difference:    c.ActualTotal.Sub(c.ExpectedTotal),
		Valid:         valid,
	}
}

// ==================== Order DTOs ====================

// OrderResponse represents an ingested order in API responses
type OrderResponse struct {
	OrderID                     string                 `json:"orderId"`
	StoreName                   string                 `json:"storeName"`
	OrderStatus                 string                 `json:"orderStatus"`
	OrderRevenue                decimal.Decimal        `json:"orderRevenue"`
	Items                       []refund.OrderItem     `json:"items"`
	CommodityCost               decimal.Decimal        `json:"commodityCost"`
	ProfitLoss                  decimal.Decimal        `json:"profitLoss"`
	ProfitRate                  decimal.Decimal        `json:"profitRate"`
	ProductSales                decimal.Decimal        `json:"productSales"`
	ShippingFeePaidByBuyer      decimal.Decimal        `json:"shippingFeePaidByBuyer"`
	SubsidyForDiscountPromotion decimal.Decimal        `json:"subsidyForDiscountPromotion"`
	CommissionFee               decimal.Decimal        `json:"commissionFee"`
	TransactionFee              decimal.Decimal        `json:"transactionFee"`
	ServiceCharge               decimal.Decimal        `json:"serviceCharge"`
	ShippingFeePaidBySeller     decimal.Decimal        `json:"shippingFeePaidBySeller"`
	MarketingFees               decimal.Decimal        `json:"marketingFees"`
	OtherPlatformFees           decimal.Decimal        `json:"otherPlatformFees"`
	BuyerRefundAmount           decimal.Decimal        `json:"buyerRefundAmount"`
	OrderTime                   *time.Time             `json:"orderTime,omitempty"`
	ConfirmTime                 *time.Time             `json:"confirmTime,omitempty"`
	ReleaseTime                 *time.Time             `json:"releaseTime,omitempty"`
	UpdateTime                  *time.Time             `json:"updateTime,omitempty"`
	CompletedTime               *time.Time             `json:"completedTime,omitempty"`
	RefundAccount               RefundAccountDTO       `json:"refundAccount"`
	RefundDetails               []RefundDetailResponse `json:"refundDetails,omitempty"`
	CreatedAt                   time.Time              `json:"createdAt"`
	UpdatedAt                   time.Time              `json:"updatedAt"`
}

// RefundAccountDTO is the stored snapshot of an order
type RefundAccountDTO struct {
	AccountedRefundAmount decimal.Decimal `json:"accountedRefundAmount"`
	AccountStatus         string          `json:"accountStatus"`
	ComputedAt            *time.Time      `json:"computedAt,omitempty"`
}

// ToOrderResponse converts a domain Order to a response
func ToOrderResponse(o *refund.Order) OrderResponse {
	return OrderResponse{
		OrderID:                     o.OrderID,
		StoreName:                   o.StoreName,
		OrderStatus:                 o.OrderStatus,
		OrderRevenue:                o.OrderRevenue,
		Items:                       o.Items,
		CommodityCost:               o.CommodityCost,
		ProfitLoss:                  o.ProfitLoss,
		ProfitRate:                  o.ProfitRate,
		ProductSales:                o.ProductSales,
		ShippingFeePaidByBuyer:      o.ShippingFeePaidByBuyer,
		SubsidyForDiscountPromotion: o.SubsidyForDiscountPromotion,
		CommissionFee:               o.CommissionFee,
		TransactionFee:              o.TransactionFee,
		ServiceCharge:               o.ServiceCharge,
		ShippingFeePaidBySeller:     o.ShippingFeePaidBySeller,
		MarketingFees:               o.MarketingFees,
		OtherPlatformFees:           o.OtherPlatformFees,
		BuyerRefundAmount:           o.BuyerRefundAmount,
		OrderTime:                   o.OrderTime,
		ConfirmTime:                 o.ConfirmTime,
		ReleaseTime:                 o.ReleaseTime,
		UpdateTime:                  o.UpdateTime,
		CompletedTime:               o.CompletedTime,
		RefundAccount: RefundAccountDTO{
			AccountedRefundAmount: o.RefundAccount.AccountedRefundAmount,
			AccountStatus:         string(o.RefundAccount.AccountStatus),
			ComputedAt:            o.RefundAccount.ComputedAt,
		},
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

// OrderListFilter defines filtering options for order listings
type OrderListFilter struct {
	Page          int    `form:"page" binding:"omitempty,min=1"`
	PageSize      int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	OrderBy       string `form:"order_by"`
	OrderDir      string `form:"order_dir" binding:"omitempty,oneof=asc desc"`
	AccountStatus string `form:"account_status" binding:"omitempty,account_status"`
}

// ==================== Ingestion DTOs ====================

// ApplyOrderDeltaResponse is the outcome of re-ingesting an order's buyer refund amount
type ApplyOrderDeltaResponse struct {
	OrderID    string                `json:"orderId"`
	Stored     decimal.Decimal       `json:"stored"`
	Incoming   decimal.Decimal       `json:"incoming"`
	Difference decimal.Decimal       `json:"difference"`
	Correction *RefundDetailResponse `json:"correction,omitempty"`
}

// IngestError records an order row that could not be ingested
type IngestError struct {
	Row     int    `json:"row,omitempty"`
	OrderID string `json:"orderId,omitempty"`
	Error   string `json:"error"`
}

// IngestReport summarizes an ingestion run. Failed rows do not stop the run.
type IngestReport struct {
	Total       int                     `json:"total"`
	Created     int                     `json:"created"`
	Updated     int                     `json:"updated"`
	Corrections int                     `json:"corrections"`
	Failed      int                     `json:"failed"`
	Duplicates  int                     `json:"duplicates,omitempty"`
	Errors      []IngestError           `json:"errors,omitempty"`
	Mismatches  []SumValidationResponse `json:"mismatches,omitempty"`
}

// ==================== Report DTOs ====================

// RefundSummaryResponse totals refund amounts overall and per refund type
type RefundSummaryResponse struct {
	Count       int                        `json:"count"`
	TotalAmount decimal.Decimal            `json:"totalAmount"`
	ByType      map[string]decimal.Decimal `json:"byType"`
}

// StatusTotal is the order count and buyer refund total of one account status
type StatusTotal struct {
	Amount decimal.Decimal `json:"amount"`
	Count  int             `json:"count"`
}

// AccountingStatusResponse groups orders by their snapshot account status
type AccountingStatusResponse struct {
	StatusTotals map[string]StatusTotal `json:"statusTotals"`
}

// StaffErrorTotal counts packing errors of one staff member
type StaffErrorTotal struct {
	Count         int             `json:"count"`
	TotalVariance decimal.Decimal `json:"totalVariance"`
}

// StaffErrorsResponse groups INCORRECT_PACKING refunds by the staff member who packed the order
type StaffErrorsResponse struct {
	ByStaff map[string]StaffErrorTotal `json:"byStaff"`
}

// DefectiveProductItem is a defective item together with its refund
type DefectiveProductItem struct {
	OrderID        string    `json:"orderId"`
	RefundDetailID uuid.UUID `json:"refundDetailId"`
	refund.DefectiveItem
}

// DefectiveProductsResponse lists the defective items of DEFECTIVE_PRODUCTS refunds
type DefectiveProductsResponse struct {
	Count int                    `json:"count"`
	Items []DefectiveProductItem `json:"items"`
}

// FinancialImpactResponse compares refund obligations with accounted recoveries
type FinancialImpactResponse struct {
	TotalRefunds   decimal.Decimal `json:"totalRefunds"`
	TotalAccounted decimal.Decimal `json:"totalAccounted"`
	RecoveryRate   decimal.Decimal `json:"recoveryRate"`
}

package refund

import (
	"context"

	"github.com/erp/refundtracker/internal/domain/refund"
	"github.com/shopspring/decimal"
)

// unknownStaff groups packing errors that name no staff member
const unknownStaff = "UNKNOWN"

// ReportService builds read-only aggregate reports over orders and refund details
type ReportService struct {
	store refund.Store
}

// NewReportService creates a new ReportService
func NewReportService(store refund.Store) *ReportService {
	return &ReportService{store: store}
}

// RefundSummary totals every refund detail, overall and per refund type
func (s *ReportService) RefundSummary(ctx context.Context) (*RefundSummaryResponse, error) {
	details, err := s.store.Details().FindAll(ctx)
	if err != nil {
		return nil, err
	}
	resp := &RefundSummaryResponse{
		Count:       len(details),
		TotalAmount: refund.TotalRefundAmount(details),
		ByType:      make(map[string]decimal.Decimal),
	}
	for _, d := range details {
		resp.ByType[d.RefundType.String()] = resp.ByType[d.RefundType.String()].Add(d.RefundAmount)
	}
	return resp, nil
}

// AccountingStatusTotals groups orders by their stored account status, summing buyer refund amounts
func (s *ReportService) AccountingStatusTotals(ctx context.Context) (*AccountingStatusResponse, error) {
	orders, err := s.store.Orders().FindAll(ctx)
	if err != nil {
		return nil, err
	}
	totals := make(map[string]StatusTotal)
	for _, o := range orders {
		status := o.RefundAccount.AccountStatus
		if !status.IsValid() {
			status = refund.AccountUninitiated
		}
		t := totals[status.String()]
		t.Amount = t.Amount.Add(o.BuyerRefundAmount)
		t.Count++
		totals[status.String()] = t
	}
	return &AccountingStatusResponse{StatusTotals: totals}, nil
}

// StaffErrors groups INCORRECT_PACKING refunds by the staff member who packed the order.
// The variance is the sum of the refund's recorded discrepancies.
func (s *ReportService) StaffErrors(ctx context.Context) (*StaffErrorsResponse, error) {
	details, err := s.store.Details().FindByType(ctx, refund.RefundTypeIncorrectPacking)
	if err != nil {
		return nil, err
	}
	byStaff := make(map[string]StaffErrorTotal)
	for _, d := range details {
		staff := unknownStaff
		if d.PackingError != nil && d.PackingError.PackedByStaffCode != "" {
			staff = d.PackingError.PackedByStaffCode
		}
		t := byStaff[staff]
		t.Count++
		for _, x := range d.Discrepancies {
			t.TotalVariance = t.TotalVariance.Add(x.Variance)
		}
		byStaff[staff] = t
	}
	return &StaffErrorsResponse{ByStaff: byStaff}, nil
}

// DefectiveProducts flattens the defective items of DEFECTIVE_PRODUCTS refunds
func (s *ReportService) DefectiveProducts(ctx context.Context) (*DefectiveProductsResponse, error) {
	details, err := s.store.Details().FindByType(ctx, refund.RefundTypeDefectiveProducts)
	if err != nil {
		return nil, err
	}
	items := make([]DefectiveProductItem, 0)
	for _, d := range details {
		for _, x := range d.DefectiveItems {
			items = append(items, DefectiveProductItem{OrderID: d.OrderID, RefundDetailID: d.ID, DefectiveItem: x})
		}
	}
	return &DefectiveProductsResponse{Count: len(items), Items: items}, nil
}

// FinancialImpact compares buyer refund amounts with the accounted amounts of all orders
func (s *ReportService) FinancialImpact(ctx context.Context) (*FinancialImpactResponse, error) {
	orders, err := s.store.Orders().FindAll(ctx)
	if err != nil {
		return nil, err
	}
	resp := &FinancialImpactResponse{}
	for _, o := range orders {
		resp.TotalRefunds = resp.TotalRefunds.Add(o.BuyerRefundAmount)
		resp.TotalAccounted = resp.TotalAccounted.Add(o.RefundAccount.AccountedRefundAmount)
	}
	if !resp.TotalRefunds.IsZero() {
		resp.RecoveryRate = resp.TotalAccounted.DivRound(resp.TotalRefunds, 4)
	}
	return resp, nil
}

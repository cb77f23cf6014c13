package handler

import (
	"context"

	refundapp "github.com/erp/refundtracker/internal/application/refund"
	"github.com/gin-gonic/gin"
)

// ReportHandler serves read-only aggregate reports
type ReportHandler struct {
	BaseHandler
	reportService *refundapp.ReportService
}

// NewReportHandler creates a new ReportHandler
func NewReportHandler(reportService *refundapp.ReportService) *ReportHandler {
	return &ReportHandler{reportService: reportService}
}

func serveReport[T any](h *ReportHandler, build func(context.Context) (T, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp, err := build(c.Request.Context())
		if err != nil {
			h.HandleError(c, err)
			return
		}
		h.Success(c, resp)
	}
}

// RefundSummary handles GET /reports/refund-summary: refund totals overall and per refund type
func (h *ReportHandler) RefundSummary() gin.HandlerFunc {
	return serveReport(h, h.reportService.RefundSummary)
}

// AccountingStatus handles GET /reports/accounting-status: refund totals per accounting status
func (h *ReportHandler) AccountingStatus() gin.HandlerFunc {
	return serveReport(h, h.reportService.AccountingStatusTotals)
}

// StaffErrors handles GET /reports/staff-errors: packing errors per responsible staff member
func (h *ReportHandler) StaffErrors() gin.HandlerFunc {
	return serveReport(h, h.reportService.StaffErrors)
}

// DefectiveProducts handles GET /reports/defective-products: defective item counts per SKU
func (h *ReportHandler) DefectiveProducts() gin.HandlerFunc {
	return serveReport(h, h.reportService.DefectiveProducts)
}

// FinancialImpact handles GET /reports/financial-impact: refunded, recovered and net loss amounts
func (h *ReportHandler) FinancialImpact() gin.HandlerFunc {
	return serveReport(h, h.reportService.FinancialImpact)
}

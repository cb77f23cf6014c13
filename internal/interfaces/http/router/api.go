package router

import (
	"github.com/erp/refundtracker/internal/interfaces/http/handler"
)

// Handlers bundles the refund API handlers mounted by RegisterAPI
type Handlers struct {
	Refunds        *handler.RefundHandler
	Returns        *handler.ReturnHandler
	Reconciliation *handler.ReconciliationHandler
	Orders         *handler.OrderHandler
	Reports        *handler.ReportHandler
	System         *handler.SystemHandler
}

// APIGroups builds the domain groups of the refund API
func APIGroups(h Handlers) []*DomainGroup {
	refunds := NewDomainGroup("refunds", "/refunds").
		GET("", h.Refunds.List).
		GET("/:id", h.Refunds.Get).
		POST("/initiate", h.Refunds.Initiate).
		POST("/bulk", h.Refunds.BulkUpdate).
		POST("/:id/split", h.Refunds.Split).
		PUT("/:id/status", h.Refunds.UpdateStatus).
		PUT("/:id/type-data", h.Refunds.UpdateTypeData).
		DELETE("/:id", h.Refunds.Delete)

	rs := h.Returns.Service()
	returns := NewDomainGroup("returns", "/returns").
		GET("", h.Returns.List).
		POST("/initiate", h.Returns.Initiate).
		PUT("/:id/status", h.Returns.UpdateStatus).
		PUT("/:id/in-transit", h.Returns.Transition(rs.MarkInTransit)).
		PUT("/:id/receive", h.Returns.Transition(rs.MarkReceived)).
		PUT("/:id/inspect", h.Returns.Transition(rs.MarkInspecting)).
		PUT("/:id/restock", h.Returns.Transition(rs.MarkRestocked)).
		PUT("/:id/discrepancy", h.Returns.Transition(rs.MarkDiscrepancyFound)).
		PUT("/:id/mark-lost-by-courier", h.Returns.Transition(rs.MarkLostByCourier)).
		PUT("/:id/mark-paid-by-courier", h.Returns.Transition(rs.MarkPaidByCourier))

	reconciliation := NewDomainGroup("reconciliation", "/reconciliation").
		GET("/unaccounted", h.Reconciliation.Unaccounted).
		GET("/partial", h.Reconciliation.Partial).
		GET("/variance-report", h.Reconciliation.VarianceReport).
		POST("/:refundId/reconcile", h.Reconciliation.Reconcile).
		GET("/:refundId/history", h.Reconciliation.History)

	orders := NewDomainGroup("orders", "/orders").
		GET("", h.Orders.List).
		POST("/upload", h.Orders.Upload).
		POST("/recompute", h.Orders.RecomputeMany).
		GET("/:orderId", h.Orders.Get).
		GET("/:orderId/accounting", h.Orders.Accounting).
		GET("/:orderId/validate", h.Orders.Validate).
		GET("/:orderId/refund-total", h.Orders.RefundTotal).
		POST("/:orderId/recompute", h.Orders.Recompute).
		PUT("/:orderId/buyer-refund", h.Orders.UpdateBuyerRefund)

	reports := NewDomainGroup("reports", "/reports").
		GET("/refund-summary", h.Reports.RefundSummary()).
		GET("/accounting-status", h.Reports.AccountingStatus()).
		GET("/staff-errors", h.Reports.StaffErrors()).
		GET("/defective-products", h.Reports.DefectiveProducts()).
		GET("/financial-impact", h.Reports.FinancialImpact())

	return []*DomainGroup{refunds, returns, reconciliation, orders, reports}
}

// RegisterAPI mounts the system endpoints and every domain group on r
func RegisterAPI(r *Router, h Handlers) *Router {
	if h.System != nil {
		r.Register(h.System)
	}
	for _, g := range APIGroups(h) {
		r.Register(g)
	}
	return r
}

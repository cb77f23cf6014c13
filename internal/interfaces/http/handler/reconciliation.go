package handler

import (
	refundapp "github.com/erp/refundtracker/internal/application/refund"
	"github.com/gin-gonic/gin"
)

// ReconciliationHandler serves the reconciliation ledger endpoints
type ReconciliationHandler struct {
	BaseHandler
	reconciliationService *refundapp.ReconciliationService
}

// NewReconciliationHandler creates a new ReconciliationHandler
func NewReconciliationHandler(reconciliationService *refundapp.ReconciliationService) *ReconciliationHandler {
	return &ReconciliationHandler{reconciliationService: reconciliationService}
}

// Reconcile handles POST /reconciliation/{refundId}/reconcile: record a reconciliation outcome
func (h *ReconciliationHandler) Reconcile(c *gin.Context) {
	refundID, ok := h.parseUUIDParam(c, "refundId")
	if !ok {
		return
	}
	var req refundapp.ReconcileRequest
	if !h.bindJSON(c, &req) {
		return
	}
	if req.ReconciledBy == "" {
		req.ReconciledBy = getActor(c)
	}

	resp, err := h.reconciliationService.Reconcile(c.Request.Context(), refundID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// History handles GET /reconciliation/{refundId}/history: list a refund's reconciliation entries, newest first
func (h *ReconciliationHandler) History(c *gin.Context) {
	refundID, ok := h.parseUUIDParam(c, "refundId")
	if !ok {
		return
	}
	resp, err := h.reconciliationService.History(c.Request.Context(), refundID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Unaccounted handles GET /reconciliation/unaccounted: list refund details with no reconciliation yet
func (h *ReconciliationHandler) Unaccounted(c *gin.Context) {
	resp, err := h.reconciliationService.ListUnaccounted(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Partial handles GET /reconciliation/partial: list partially reconciled refund details
func (h *ReconciliationHandler) Partial(c *gin.Context) {
	resp, err := h.reconciliationService.ListPartial(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// VarianceReport handles GET /reconciliation/variance-report: summarize reconciliation variances
func (h *ReconciliationHandler) VarianceReport(c *gin.Context) {
	resp, err := h.reconciliationService.VarianceReport(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

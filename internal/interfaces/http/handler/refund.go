package handler

import (
	refundapp "github.com/erp/refundtracker/internal/application/refund"
	"github.com/erp/refundtracker/internal/domain/refund"
	"github.com/gin-gonic/gin"
)

// RefundHandler serves the refund detail lifecycle endpoints
type RefundHandler struct {
	BaseHandler
	refundService *refundapp.RefundService
}

// NewRefundHandler creates a new RefundHandler
func NewRefundHandler(refundService *refundapp.RefundService) *RefundHandler {
	return &RefundHandler{refundService: refundService}
}

// Initiate handles POST /refunds/initiate: create a refund detail
func (h *RefundHandler) Initiate(c *gin.Context) {
	var req refundapp.InitiateRefundRequest
	if !h.bindJSON(c, &req) {
		return
	}
	if req.CreatedBy == "" {
		req.CreatedBy = getActor(c)
	}

	resp, err := h.refundService.Initiate(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// Split handles POST /refunds/{id}/split: split a refund detail
func (h *RefundHandler) Split(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req refundapp.SplitRefundRequest
	if !h.bindJSON(c, &req) {
		return
	}

	resp, err := h.refundService.Split(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// UpdateStatus handles PUT /refunds/{id}/status: change a refund's processing status
func (h *RefundHandler) UpdateStatus(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req refundapp.UpdateRefundStatusRequest
	if !h.bindJSON(c, &req) {
		return
	}

	resp, err := h.refundService.UpdateStatus(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// UpdateTypeData handles PUT /refunds/{id}/type-data. The body may only
// carry returnTrackings, accountingStatus and status.
func (h *RefundHandler) UpdateTypeData(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var changes refund.Changes
	if !h.bindJSON(c, &changes) {
		return
	}

	resp, err := h.refundService.UpdateTypeData(c.Request.Context(), id, changes)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// BulkUpdate handles POST /refunds/bulk: update many refund details atomically
func (h *RefundHandler) BulkUpdate(c *gin.Context) {
	var req refundapp.BulkUpdateRequest
	if !h.bindJSON(c, &req) {
		return
	}

	resp, err := h.refundService.BulkUpdate(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Delete handles DELETE /refunds/{id}: delete a refund detail
func (h *RefundHandler) Delete(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.refundService.Delete(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// Get handles GET /refunds/{id}: get a refund detail
func (h *RefundHandler) Get(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	resp, err := h.refundService.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// List handles GET /refunds: list refund details
func (h *RefundHandler) List(c *gin.Context) {
	var filter refundapp.RefundListFilter
	if !h.bindQuery(c, &filter) {
		return
	}
	pageDefaults(&filter.Page, &filter.PageSize)

	items, total, err := h.refundService.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Page(c, items, total, filter.Page, filter.PageSize)
}

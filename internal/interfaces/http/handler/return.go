package handler

import (
	"context"

	refundapp "github.com/erp/refundtracker/internal/application/refund"
	"github.com/gin-gonic/gin"
)

// ReturnHandler serves the physical return tracking endpoints
type ReturnHandler struct {
	BaseHandler
	returnService *refundapp.ReturnService
}

// NewReturnHandler creates a new ReturnHandler
func NewReturnHandler(returnService *refundapp.ReturnService) *ReturnHandler {
	return &ReturnHandler{returnService: returnService}
}

// Initiate handles POST /returns/initiate: start tracking a physical return
func (h *ReturnHandler) Initiate(c *gin.Context) {
	var req refundapp.InitiateReturnRequest
	if !h.bindJSON(c, &req) {
		return
	}

	resp, err := h.returnService.InitiateReturn(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// Service exposes the return service so routes can bind its named transitions
func (h *ReturnHandler) Service() *refundapp.ReturnService {
	return h.returnService
}

// Transition adapts one of the service's named state transitions to a handler.
// The return is addressed by the :id path parameter.
func (h *ReturnHandler) Transition(move func(ctx context.Context, returnID string) (*refundapp.ReturnResponse, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp, err := move(c.Request.Context(), c.Param("id"))
		if err != nil {
			h.HandleError(c, err)
			return
		}
		h.Success(c, resp)
	}
}

// UpdateStatus handles PUT /returns/{id}/status: set a return's status
func (h *ReturnHandler) UpdateStatus(c *gin.Context) {
	var req refundapp.UpdateReturnStatusRequest
	if !h.bindJSON(c, &req) {
		return
	}

	resp, err := h.returnService.UpdateReturnStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// List handles GET /returns: list returns
func (h *ReturnHandler) List(c *gin.Context) {
	var filter refundapp.ReturnListFilter
	if !h.bindQuery(c, &filter) {
		return
	}
	pageDefaults(&filter.Page, &filter.PageSize)

	items, total, err := h.returnService.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Page(c, items, total, filter.Page, filter.PageSize)
}

package handler

import (
	"errors"
	"fmt"
	"strconv"

	refundapp "github.com/erp/refundtracker/internal/application/refund"
	csvimport "github.com/erp/refundtracker/internal/infrastructure/import"
	"github.com/erp/refundtracker/internal/infrastructure/logger"
	"github.com/erp/refundtracker/internal/interfaces/http/dto"
	"github.com/erp/refundtracker/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"
)

// UploadFormField is the multipart field carrying the order sheet
const UploadFormField = "file"

// OrderHandler serves order lookups, snapshot maintenance and order sheet ingestion
type OrderHandler struct {
	BaseHandler
	orderService     *refundapp.OrderService
	snapshotService  *refundapp.SnapshotService
	ingestionService *refundapp.IngestionService
	epsilon          float64
	sheetOpts        []csvimport.SheetOption
}

// NewOrderHandler creates a new OrderHandler. epsilon is the default tolerance for
// the sum validation endpoint.
func NewOrderHandler(
	orderService *refundapp.OrderService,
	snapshotService *refundapp.SnapshotService,
	ingestionService *refundapp.IngestionService,
	epsilon float64,
	sheetOpts ...csvimport.SheetOption,
) *OrderHandler {
	return &OrderHandler{
		orderService:     orderService,
		snapshotService:  snapshotService,
		ingestionService: ingestionService,
		epsilon:          epsilon,
		sheetOpts:        sheetOpts,
	}
}

// RecomputeManyRequest lists the orders whose snapshots should be rebuilt
type RecomputeManyRequest struct {
	OrderIDs []string `json:"orderIds" binding:"required,min=1,dive,required"`
}

// BuyerRefundRequest carries a re-ingested buyer refund amount for one order
type BuyerRefundRequest struct {
	BuyerRefundAmount *decimal.Decimal `json:"buyerRefundAmount" binding:"required"`
}

// UploadResponse is the outcome of ingesting an order sheet
type UploadResponse struct {
	Report        *refundapp.IngestReport `json:"report"`
	Warnings      []csvimport.RowError    `json:"warnings,omitempty"`
	TotalWarnings int                     `json:"totalWarnings"`
	Truncated     bool                    `json:"warningsTruncated"`
	Skipped       int                     `json:"skipped"`
}

// Get handles GET /orders/{orderId}: get an order with its refund account snapshot
func (h *OrderHandler) Get(c *gin.Context) {
	resp, err := h.orderService.Get(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// List handles GET /orders: list orders
func (h *OrderHandler) List(c *gin.Context) {
	var filter refundapp.OrderListFilter
	if !h.bindQuery(c, &filter) {
		return
	}
	pageDefaults(&filter.Page, &filter.PageSize)

	items, total, err := h.orderService.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Page(c, items, total, filter.Page, filter.PageSize)
}

// Accounting handles GET /orders/{orderId}/accounting: get an order's accounting snapshot
func (h *OrderHandler) Accounting(c *gin.Context) {
	resp, err := h.snapshotService.GetAccountingSnapshot(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Recompute handles POST /orders/{orderId}/recompute: rebuild and store an order's refund account snapshot
func (h *OrderHandler) Recompute(c *gin.Context) {
	resp, err := h.snapshotService.RecomputeAndWriteOrderRefundSnapshot(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// RecomputeMany handles POST /orders/recompute: rebuild snapshots for many orders
func (h *OrderHandler) RecomputeMany(c *gin.Context) {
	var req RecomputeManyRequest
	if !h.bindJSON(c, &req) {
		return
	}
	resp, err := h.snapshotService.RecomputeMany(c.Request.Context(), req.OrderIDs)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Validate handles GET /orders/{orderId}/validate: check that refund details sum to the order's buyer refund amount
func (h *OrderHandler) Validate(c *gin.Context) {
	epsilon := h.epsilon
	if raw := c.Query("epsilon"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			h.BadRequest(c, "epsilon must be a non-negative number")
			return
		}
		epsilon = v
	}

	resp, err := h.snapshotService.ValidateRefundDetailsSumEqualsOrder(c.Request.Context(), c.Param("orderId"), epsilon)
	if err != nil {
		if resp != nil {
			h.ErrorWithData(c, err, resp)
			return
		}
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// RefundTotal handles GET /orders/{orderId}/refund-total: sum an order's refund details
func (h *OrderHandler) RefundTotal(c *gin.Context) {
	resp, err := h.snapshotService.GetRefundDetailsTotalAmount(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// UpdateBuyerRefund handles PUT /orders/{orderId}/buyer-refund: apply a re-ingested buyer refund amount
func (h *OrderHandler) UpdateBuyerRefund(c *gin.Context) {
	var req BuyerRefundRequest
	if !h.bindJSON(c, &req) {
		return
	}
	resp, err := h.ingestionService.ApplyOrderDelta(c.Request.Context(), c.Param("orderId"), *req.BuyerRefundAmount)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Upload handles POST /orders/upload: ingest a marketplace order export
func (h *OrderHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile(UploadFormField)
	if middleware.IsBodyTooLarge(err) {
		h.Error(c, dto.ErrCodeRequestTooLarge, "order sheet exceeds the upload limit")
		return
	}
	if err != nil {
		h.Error(c, dto.ErrCodeInvalidSheet, "multipart field '"+UploadFormField+"' is required")
		return
	}

	opts := append([]csvimport.SheetOption{}, h.sheetOpts...)
	if name := c.Query("encoding"); name != "" {
		enc, err := htmlindex.Get(name)
		if err != nil {
			h.Error(c, dto.ErrCodeInvalidSheet, fmt.Sprintf("unknown encoding %q", name))
			return
		}
		opts = append(opts, csvimport.WithParserOptions(csvimport.WithEncoding(enc)))
	}
	switch d := c.Query("delimiter"); d {
	case "", ",":
	case ";", "tab":
		sep := ';'
		if d == "tab" {
			sep = '\t'
		}
		opts = append(opts, csvimport.WithParserOptions(csvimport.WithDelimiter(sep)))
	default:
		h.Error(c, dto.ErrCodeInvalidSheet, fmt.Sprintf("unsupported delimiter %q", d))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.Error(c, dto.ErrCodeInvalidSheet, "cannot open uploaded file")
		return
	}
	defer file.Close()

	sheet, err := csvimport.NewOrderSheetReader(opts...).Read(file)
	if err != nil {
		h.sheetError(c, err)
		return
	}

	rows := make([]refundapp.OrderRow, len(sheet.Rows))
	for i, r := range sheet.Rows {
		rows[i] = refundapp.OrderRow{Row: r.Row, Order: r.Order, Err: r.Err}
	}

	report, err := h.ingestionService.IngestRows(c.Request.Context(), rows)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	logger.GetGinLogger(c).Info("Order sheet ingested",
		zap.String("file", fileHeader.Filename),
		zap.Int("rows", len(rows)),
		zap.Int("warnings", sheet.TotalWarnings),
		zap.Int("failed", report.Failed),
	)

	h.Success(c, UploadResponse{
		Report:        report,
		Warnings:      sheet.Warnings,
		TotalWarnings: sheet.TotalWarnings,
		Truncated:     sheet.WarningsTruncated,
		Skipped:       sheet.Skipped,
	})
}

func (h *OrderHandler) sheetError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, csvimport.ErrFileTooLarge):
		h.Error(c, dto.ErrCodeRequestTooLarge, err.Error())
	case errors.Is(err, csvimport.ErrEmptyFile),
		errors.Is(err, csvimport.ErrInvalidEncoding),
		errors.Is(err, csvimport.ErrMissingHeader),
		errors.Is(err, csvimport.ErrNoDataRows):
		h.Error(c, dto.ErrCodeInvalidSheet, err.Error())
	default:
		h.Error(c, dto.ErrCodeInvalidSheet, "cannot read order sheet: "+err.Error())
	}
}

package handler

import (
	"errors"
	"net/http"

	"github.com/erp/refundtracker/internal/domain/shared"
	"github.com/erp/refundtracker/internal/infrastructure/logger"
	"github.com/erp/refundtracker/internal/interfaces/http/dto"
	"github.com/erp/refundtracker/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UserIDHeader carries the acting user when no bearer token is presented
const UserIDHeader = middleware.UserIDHeader

// BaseHandler writes the response envelope shared by every refund handler
type BaseHandler struct{}

func getRequestID(c *gin.Context) string {
	if id := c.GetString(middleware.RequestIDKey); id != "" {
		return id
	}
	return c.GetHeader(logger.RequestIDHeader)
}

// getActor returns the user recorded as createdBy: the JWT user, else the X-User-ID header
func getActor(c *gin.Context) string {
	if actor := middleware.GetJWTUserID(c); actor != "" {
		return actor
	}
	return c.GetHeader(UserIDHeader)
}

// parseUUIDParam parses a path parameter as a UUID, writing a 400 when it is malformed
func (h *BaseHandler) parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.BadRequest(c, "Invalid "+name+" format")
		return uuid.Nil, false
	}
	return id, true
}

func (h *BaseHandler) bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		middleware.HandleValidationError(c, err)
		return false
	}
	return true
}

func (h *BaseHandler) bindQuery(c *gin.Context, filter any) bool {
	if err := c.ShouldBindQuery(filter); err != nil {
		middleware.HandleValidationError(c, err)
		return false
	}
	return true
}

// Success sends a 200 response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Page sends one page of a list with its pagination meta
func (h *BaseHandler) Page(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewPagedResponse(data, total, page, pageSize))
}

// Created sends a 201 response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// NoContent sends a 204 response
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error sends an error response whose status follows from the API error code
func (h *BaseHandler) Error(c *gin.Context, code, message string) {
	c.JSON(dto.StatusOf(code), dto.NewErrorResponse(code, message, getRequestID(c)))
}

// BadRequest sends a 400 for a malformed request that binding did not catch
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, dto.ErrCodeBadRequest, message)
}

// ErrorWithData sends an error response that still carries a payload, such as the
// computed sums of a failed consistency check
func (h *BaseHandler) ErrorWithData(c *gin.Context, err error, data any) {
	status, resp := h.errorResponse(c, err)
	resp.Data = data
	c.JSON(status, resp)
}

// HandleError converts domain errors to HTTP responses. Anything else is logged and
// reported as an internal error without leaking its message.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	c.JSON(h.errorResponse(c, err))
}

func (h *BaseHandler) errorResponse(c *gin.Context, err error) (int, dto.Response) {
	requestID := getRequestID(c)

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return dto.FromDomainError(domainErr, requestID)
	}

	logger.GetGinLogger(c).Error("Unhandled error",
		zap.Error(err),
		zap.String("route", c.FullPath()),
	)
	return http.StatusInternalServerError,
		dto.NewErrorResponse(dto.ErrCodeInternal, "An unexpected error occurred", requestID)
}

// pageDefaults fills unset pagination parameters
func pageDefaults(page, pageSize *int) {
	if *page <= 0 {
		*page = 1
	}
	if *pageSize <= 0 {
		*pageSize = dto.DefaultPageSize
	}
}

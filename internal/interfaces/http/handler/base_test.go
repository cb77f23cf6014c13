package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/erp/refundtracker/internal/domain/shared"
	"github.com/erp/refundtracker/internal/infrastructure/logger"
	"github.com/erp/refundtracker/internal/interfaces/http/dto"
	"github.com/erp/refundtracker/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestGetRequestID(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(*gin.Context)
		expectedID string
	}{
		{
			name:       "from context",
			setup:      func(c *gin.Context) { c.Set("request_id", "ctx-request-id") },
			expectedID: "ctx-request-id",
		},
		{
			name:       "from header when context empty",
			setup:      func(c *gin.Context) { c.Request.Header.Set(logger.RequestIDHeader, "header-request-id") },
			expectedID: "header-request-id",
		},
		{
			name:       "empty when not set",
			setup:      func(c *gin.Context) {},
			expectedID: "",
		},
		{
			name: "context takes precedence over header",
			setup: func(c *gin.Context) {
				c.Set("request_id", "ctx-id")
				c.Request.Header.Set(logger.RequestIDHeader, "header-id")
			},
			expectedID: "ctx-id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestContext()
			tt.setup(c)
			assert.Equal(t, tt.expectedID, getRequestID(c))
		})
	}
}

func TestGetActor(t *testing.T) {
	c, _ := newTestContext()
	assert.Empty(t, getActor(c))

	c.Request.Header.Set(UserIDHeader, "clerk-7")
	assert.Equal(t, "clerk-7", getActor(c))

	c.Set(middleware.JWTUserIDKey, "user-42")
	assert.Equal(t, "user-42", getActor(c))
}

func TestBaseHandler_ParseUUIDParam(t *testing.T) {
	h := &BaseHandler{}

	c, w := newTestContext()
	c.Params = gin.Params{{Key: "id", Value: "not-a-uuid"}}
	_, ok := h.parseUUIDParam(c, "id")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, dto.ErrCodeBadRequest, decodeResponse(t, w).Error.Code)

	c, _ = newTestContext()
	c.Params = gin.Params{{Key: "id", Value: "0b6f6a1e-8d55-4d59-9a4f-3f0f4c3d2e10"}}
	id, ok := h.parseUUIDParam(c, "id")
	assert.True(t, ok)
	assert.Equal(t, "0b6f6a1e-8d55-4d59-9a4f-3f0f4c3d2e10", id.String())
}

func TestBaseHandler_HandleError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", shared.NewNotFoundError("refund detail", "abc"), http.StatusNotFound, dto.ErrCodeNotFound},
		{"validation", shared.NewValidationError("refund amount must be positive"), http.StatusBadRequest, dto.ErrCodeValidation},
		{"conflict", shared.NewConflictError("stale update"), http.StatusConflict, dto.ErrCodeConcurrencyConflict},
		{"consistency", shared.NewConsistencyError("sum differs"), http.StatusUnprocessableEntity, dto.ErrCodeConsistencyMismatch},
		{"invalid state", shared.ErrInvalidState, http.StatusUnprocessableEntity, dto.ErrCodeInvalidState},
		{"wrapped", fmt.Errorf("split: %w", shared.NewNotFoundError("order", "ORD-1")), http.StatusNotFound, dto.ErrCodeNotFound},
	}

	h := &BaseHandler{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestContext()
			c.Set("request_id", "req-1")

			h.HandleError(c, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Equal(t, "req-1", resp.Error.RequestID)
		})
	}

	t.Run("details are carried", func(t *testing.T) {
		c, w := newTestContext()
		h.HandleError(c, shared.NewNotFoundError("order", "ORD-1"))

		resp := decodeResponse(t, w)
		assert.Equal(t, "order", resp.Error.Details["resource"])
		assert.Equal(t, "ORD-1", resp.Error.Details["id"])
	})

	t.Run("unknown error is logged and hidden", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		c, w := newTestContext()
		c.Set("logger", zap.New(core))

		h.HandleError(c, errors.New("pq: connection refused"))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		resp := decodeResponse(t, w)
		assert.Equal(t, dto.ErrCodeInternal, resp.Error.Code)
		assert.NotContains(t, resp.Error.Message, "pq:")
		assert.Equal(t, 1, logs.FilterMessage("Unhandled error").Len())
	})

	t.Run("nil error writes nothing", func(t *testing.T) {
		c, w := newTestContext()
		h.HandleError(c, nil)
		assert.Empty(t, w.Body.String())
	})
}

func TestBaseHandler_ErrorWithData(t *testing.T) {
	h := &BaseHandler{}
	c, w := newTestContext()

	h.ErrorWithData(c, shared.NewConsistencyError("sum differs"), gin.H{"difference": "5.00"})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, dto.ErrCodeConsistencyMismatch, resp.Error.Code)
	assert.Equal(t, map[string]any{"difference": "5.00"}, resp.Data)
}

func TestBaseHandler_Responses(t *testing.T) {
	h := &BaseHandler{}

	c, w := newTestContext()
	h.Created(c, gin.H{"id": "x"})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, decodeResponse(t, w).Success)

	c, w = newTestContext()
	h.Page(c, []string{"a"}, 41, 2, 20)
	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(41), resp.Meta.Total)
	assert.Equal(t, 3, resp.Meta.TotalPages)

	c, w = newTestContext()
	h.NoContent(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestPageDefaults(t *testing.T) {
	page, size := 0, 0
	pageDefaults(&page, &size)
	assert.Equal(t, 1, page)
	assert.Equal(t, dto.DefaultPageSize, size)

	page, size = 3, 50
	pageDefaults(&page, &size)
	assert.Equal(t, 3, page)
	assert.Equal(t, 50, size)
}

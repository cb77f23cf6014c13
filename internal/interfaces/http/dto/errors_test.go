package dto

import (
	"net/http"
	"testing"

	"github.com/erp/refundtracker/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		code     string
		expected int
	}{
		{ErrCodeInternal, http.StatusInternalServerError},
		{ErrCodeValidation, http.StatusBadRequest},
		{ErrCodeInvalidSheet, http.StatusBadRequest},
		{ErrCodeUnauthorized, http.StatusUnauthorized},
		{ErrCodeTokenExpired, http.StatusUnauthorized},
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeConcurrencyConflict, http.StatusConflict},
		{ErrCodeConsistencyMismatch, http.StatusUnprocessableEntity},
		{ErrCodeInvalidState, http.StatusUnprocessableEntity},
		{ErrCodeRequestTooLarge, http.StatusRequestEntityTooLarge},
		{"UNKNOWN_CODE", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, StatusOf(tt.code))
		})
	}
}

func TestFromDomainError(t *testing.T) {
	tests := []struct {
		name       string
		err        *shared.DomainError
		wantStatus int
		wantCode   string
	}{
		{"not found", shared.NewNotFoundError("order", "ORD-1"), http.StatusNotFound, ErrCodeNotFound},
		{"validation", shared.NewValidationError("refund amount must be positive"), http.StatusBadRequest, ErrCodeValidation},
		{"conflict", shared.NewConflictError("stale update"), http.StatusConflict, ErrCodeConcurrencyConflict},
		{"consistency", shared.NewConsistencyError("sum differs"), http.StatusUnprocessableEntity, ErrCodeConsistencyMismatch},
		{"unmapped domain code", &shared.DomainError{Code: "SOMETHING_ELSE", Message: "odd"}, http.StatusInternalServerError, ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := FromDomainError(tt.err, "req-9")
			assert.Equal(t, tt.wantStatus, status)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Equal(t, tt.err.Message, resp.Error.Message)
			assert.Equal(t, "req-9", resp.Error.RequestID)
		})
	}
}

func TestFromDomainError_KeepsDetails(t *testing.T) {
	err := shared.NewConsistencyError("sum differs").WithDetail("difference", "5.00")

	_, resp := FromDomainError(err, "")
	assert.Equal(t, map[string]any{"difference": "5.00"}, resp.Error.Details)
}

func TestNewPagedResponse(t *testing.T) {
	resp := NewPagedResponse([]string{"a"}, 41, 2, 20)
	assert.True(t, resp.Success)
	assert.Equal(t, 3, resp.Meta.TotalPages)
	assert.Equal(t, 2, resp.Meta.Page)

	resp = NewPagedResponse(nil, 0, 0, 0)
	assert.Equal(t, 1, resp.Meta.Page)
	assert.Equal(t, DefaultPageSize, resp.Meta.PageSize)
	assert.Equal(t, 0, resp.Meta.TotalPages)

	resp = NewPagedResponse(nil, 40, 1, 20)
	assert.Equal(t, 2, resp.Meta.TotalPages)
}

func TestNewValidationErrorResponse(t *testing.T) {
	resp := NewValidationErrorResponse("invalid request", "req-1", []ValidationDetail{{Field: "amount", Message: "is required"}})
	assert.False(t, resp.Success)
	assert.Equal(t, ErrCodeValidation, resp.Error.Code)
	assert.Equal(t, "req-1", resp.Error.RequestID)
	assert.Len(t, resp.Error.Fields, 1)
}

package dto

import (
	"net/http"

	"github.com/erp/refundtracker/internal/domain/shared"
)

// Error codes carried in ErrorInfo.Code
const (
	ErrCodeInternal            = "ERR_INTERNAL"
	ErrCodeValidation          = "ERR_VALIDATION"
	ErrCodeBadRequest          = "ERR_BAD_REQUEST"
	ErrCodeInvalidSheet        = "ERR_INVALID_SHEET"
	ErrCodeUnauthorized        = "ERR_UNAUTHORIZED"
	ErrCodeTokenExpired        = "ERR_TOKEN_EXPIRED"
	ErrCodeTokenInvalid        = "ERR_TOKEN_INVALID"
	ErrCodeNotFound            = "ERR_NOT_FOUND"
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
	ErrCodeConsistencyMismatch = "ERR_CONSISTENCY_MISMATCH"
	ErrCodeInvalidState        = "ERR_INVALID_STATE"
	ErrCodeRequestTooLarge     = "ERR_REQUEST_TOO_LARGE"
)

var statusByCode = map[string]int{
	ErrCodeInternal:            http.StatusInternalServerError,
	ErrCodeValidation:          http.StatusBadRequest,
	ErrCodeBadRequest:          http.StatusBadRequest,
	ErrCodeInvalidSheet:        http.StatusBadRequest,
	ErrCodeUnauthorized:        http.StatusUnauthorized,
	ErrCodeTokenExpired:        http.StatusUnauthorized,
	ErrCodeTokenInvalid:        http.StatusUnauthorized,
	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeConcurrencyConflict: http.StatusConflict,
	ErrCodeConsistencyMismatch: http.StatusUnprocessableEntity,
	ErrCodeInvalidState:        http.StatusUnprocessableEntity,
	ErrCodeRequestTooLarge:     http.StatusRequestEntityTooLarge,
}

// apiCodeByDomainCode translates shared.DomainError codes
var apiCodeByDomainCode = map[string]string{
	shared.CodeNotFound:            ErrCodeNotFound,
	shared.CodeValidation:          ErrCodeValidation,
	shared.CodeConcurrencyConflict: ErrCodeConcurrencyConflict,
	shared.CodeConsistencyMismatch: ErrCodeConsistencyMismatch,
	shared.CodeInvalidState:        ErrCodeInvalidState,
}

// StatusOf returns the HTTP status of an API error code, 500 for codes it does not know
func StatusOf(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// FromDomainError renders a domain error as an API error and picks its status.
// Domain codes without an API counterpart are reported as internal errors.
func FromDomainError(err *shared.DomainError, requestID string) (int, Response) {
	code, ok := apiCodeByDomainCode[err.Code]
	if !ok {
		code = ErrCodeInternal
	}
	resp := NewErrorResponse(code, err.Message, requestID)
	resp.Error.Details = err.Details
	return StatusOf(code), resp
}

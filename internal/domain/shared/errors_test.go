package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Helpers(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"not found", NewNotFoundError("refund detail", "abc"), IsNotFound},
		{"validation", NewValidationError("amount %s", "-1"), IsValidation},
		{"conflict", NewConflictError("stale"), IsConflict},
		{"consistency", NewConsistencyError("sum %d", 1), IsConsistency},
		{"wrapped", fmt.Errorf("outer: %w", NewNotFoundError("order", "o-1")), IsNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
		})
	}
}

func TestDomainError_IsMatchesCode(t *testing.T) {
	err := fmt.Errorf("wrap: %w", NewNotFoundError("order", "o-1"))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrConcurrencyConflict))
}

func TestDomainError_WithDetail(t *testing.T) {
	base := NewValidationError("bad")
	withDetail := base.WithDetail("field", "refundAmount")

	assert.Nil(t, base.Details)
	assert.Equal(t, "refundAmount", withDetail.Details["field"])
	assert.Equal(t, "bad", withDetail.Error())
}

func TestCodeOf_NonDomainError(t *testing.T) {
	assert.Equal(t, "", CodeOf(errors.New("plain")))
	assert.False(t, IsNotFound(nil))
}

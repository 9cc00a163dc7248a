package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotFoundError(t *testing.T) {
	err := NotFoundError("user stats")
	assert.Equal(t, "USER_STATS_NOT_FOUND", err.Code)
	assert.Equal(t, "user stats not found", err.Error())

	wrapped := fmt.Errorf("lookup: %w", err)
	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsInvalidInput(wrapped))

	var de *DomainError
	require.True(t, errors.As(wrapped, &de))
	assert.Equal(t, err, de)
}

func TestValidationError(t *testing.T) {
	err := ValidationError("amount", "amount must be greater than zero")
	assert.True(t, IsInvalidInput(err))
	assert.Equal(t, "amount", err.Details["field"])

	err.WithDetails(map[string]interface{}{"field": "amount", "min": "10"})
	assert.Equal(t, "10", err.Details["min"])
}

func TestUpstreamError_Retryable(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{0, true},
		{http.StatusBadRequest, false},
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := UpstreamError("exolix", tt.status, errors.New("boom"))
			assert.True(t, IsUpstream(err))
			assert.Equal(t, tt.retryable, err.IsRetryable())
			if tt.status > 0 {
				assert.Equal(t, tt.status, err.Details["upstream_status"])
			}
		})
	}
}

func TestForbiddenError(t *testing.T) {
	err := ForbiddenError("api key rejected")
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, "FORBIDDEN", err.Code)
}

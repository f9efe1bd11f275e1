package upstream

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorCategory
	}{
		{200, Terminal}, // never called for success, but exercises the default path
		{400, Terminal},
		{404, Terminal},
		{408, Transient},
		{429, Transient},
		{500, Transient},
		{503, Transient},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyStatus(tt.status), "status %d", tt.status)
	}
}

func TestNewHTTPError_RetryableMatchesCategory(t *testing.T) {
	transient := newHTTPError("getRecords", 503, "service unavailable")
	assert.True(t, transient.Retryable())
	assert.Equal(t, 503, transient.StatusCode)

	terminal := newHTTPError("getRecords", 401, "unauthorized")
	assert.False(t, terminal.Retryable())
}

func TestNewNetworkError_AlwaysTransient(t *testing.T) {
	err := newNetworkError("getRecords", errors.New("dial tcp: timeout"))
	assert.True(t, err.Retryable())
	assert.Equal(t, Transient, err.Category)
	assert.Contains(t, err.Error(), "dial tcp: timeout")
}

func TestError_ErrorString_IncludesStatusWhenPresent(t *testing.T) {
	err := newHTTPError("getRecords", 500, "boom")
	assert.Contains(t, err.Error(), "http 500")
	assert.Contains(t, err.Error(), "boom")
}

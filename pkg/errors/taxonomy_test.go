package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

type netTimeout struct{}

func (netTimeout) Error() string { return "i/o timeout" }
func (netTimeout) Timeout() bool { return true }

func TestCategoryFromCode(t *testing.T) {
	tests := []struct {
		code     string
		expected ErrorCategory
	}{
		{ErrTimeout, CategoryRemote},
		{ErrStageFatal, CategoryStage},
		{ErrInvalidInput, CategoryValidation},
		{ErrStoreUnavailable, CategoryStore},
		{ErrPanic, CategorySystem},
		{"garbage", CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, New(tt.code, "x").Category)
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"rate limit", New(ErrRateLimit, "slow down"), true},
		{"upstream rejected", New(ErrUpstreamRejected, "bad request"), false},
		{"stage fatal", New(ErrStageFatal, "nothing"), false},
		{"wrapped transient", fmt.Errorf("call: %w", New(ErrServiceUnavailable, "503")), true},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"net timeout", netTimeout{}, true},
		{"plain error", stderrors.New("connection reset by peer"), false},
		{"marshal failure", fmt.Errorf("failed to marshal request: %w", stderrors.New("unsupported type")), false},
		{"classified plain error", Wrap(stderrors.New("connection reset by peer"), ErrConnectionFailed, "dial"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryable(tt.err))
		})
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := New(ErrTimeout, "browser silent")
	err := Wrap(cause, ErrStageFatal, "research produced no data")

	assert.True(t, IsStageFatal(err))
	assert.True(t, HasCode(err, ErrTimeout))
	assert.Equal(t, ErrStageFatal, CodeOf(err))
	assert.True(t, stderrors.Is(err, cause))
	assert.Contains(t, err.Error(), "browser silent")
	assert.Nil(t, Wrap(nil, ErrInternal, "x"))
}

func TestFromHTTPStatus(t *testing.T) {
	tests := []struct {
		status    int
		code      string
		retryable bool
	}{
		{http.StatusTooManyRequests, ErrRateLimit, true},
		{http.StatusGatewayTimeout, ErrTimeout, true},
		{http.StatusBadGateway, ErrServiceUnavailable, true},
		{http.StatusBadRequest, ErrUpstreamRejected, false},
		{http.StatusUnauthorized, ErrUpstreamRejected, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := FromHTTPStatus(tt.status, "upstream")
			assert.Equal(t, tt.code, err.Code)
			assert.Equal(t, tt.retryable, err.ShouldRetry())
			assert.Equal(t, tt.status, err.Context["status"])
		})
	}
}

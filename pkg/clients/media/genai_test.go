package media

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/genai"

	"github.com/spawn-mcp/campaign-studio/pkg/errors"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"quota", genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"}, errors.ErrRateLimit},
		{"safety block", genai.APIError{Code: 400, Status: "INVALID_ARGUMENT"}, errors.ErrUpstreamRejected},
		{"backend", genai.APIError{Code: 503}, errors.ErrServiceUnavailable},
		{"deadline", context.DeadlineExceeded, errors.ErrTimeout},
		{"network", stderrors.New("connection reset"), errors.ErrConnectionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, errors.CodeOf(classify(tt.err, "generate")))
		})
	}
}

func TestNewGenAIRequiresKey(t *testing.T) {
	_, err := NewGenAI(context.Background(), GenAIConfig{})
	assert.Error(t, err)
}

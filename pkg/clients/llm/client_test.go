package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spawn-mcp/campaign-studio/pkg/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Anthropic {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewAnthropic(context.Background(), AnthropicConfig{
		APIKey:  "sk-test",
		Options: []option.RequestOption{option.WithBaseURL(srv.URL)},
	})
	require.NoError(t, err)
	return client
}

func TestAnthropicComplete(t *testing.T) {
	var body map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "msg_1", "type": "message", "role": "assistant",
			"model": "claude-sonnet-4-20250514",
			"content": [{"type": "text", "text": "{\"ok\": true}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 5}
		}`)
	})

	out, err := client.Complete(context.Background(), Request{Tag: "t", System: "be brief", Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, `{"ok": true}`, out)
	assert.Equal(t, "claude-sonnet-4-20250514", body["model"])
	assert.NotNil(t, body["system"])
}

func TestAnthropicClassifiesErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		code      string
		retryable bool
	}{
		{"overloaded", 529, errors.ErrServiceUnavailable, true},
		{"rate limited", http.StatusTooManyRequests, errors.ErrRateLimit, true},
		{"bad request", http.StatusBadRequest, errors.ErrUpstreamRejected, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				io.WriteString(w, `{"type":"error","error":{"type":"api_error","message":"nope"}}`)
			})

			_, err := client.Complete(context.Background(), Request{Prompt: "hi"})
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.CodeOf(err))
			assert.Equal(t, tt.retryable, errors.IsRetryable(err))
		})
	}
}

func TestNewAnthropicRequiresKey(t *testing.T) {
	_, err := NewAnthropic(context.Background(), AnthropicConfig{})
	assert.Error(t, err)
}

func TestClientFunc(t *testing.T) {
	var c Client = ClientFunc(func(_ context.Context, req Request) (string, error) {
		return req.Tag, nil
	})
	out, err := c.Complete(context.Background(), Request{Tag: "echo"})
	require.NoError(t, err)
	assert.Equal(t, "echo", out)
}

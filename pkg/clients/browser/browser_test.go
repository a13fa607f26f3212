package browser

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spawn-mcp/campaign-studio/pkg/errors"
	"github.com/spawn-mcp/campaign-studio/pkg/retry"
)

// fakeAgentService serves a scripted sequence of message pages.
type fakeAgentService struct {
	mu       sync.Mutex
	pages    []messagesResponse
	polls    int
	cursors  []string
	deleted  bool
	apiKey   string
	postBody map[string]string
}

func (f *fakeAgentService) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sessions", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.apiKey = r.Header.Get("X-API-Key")
		f.mu.Unlock()
		json.NewEncoder(w).Encode(sessionResponse{ID: "s1"})
	})
	mux.HandleFunc("POST /sessions/s1/message", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&f.postBody))
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("GET /sessions/s1/messages", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.cursors = append(f.cursors, r.URL.Query().Get("after_id"))
		page := f.pages[min(f.polls, len(f.pages)-1)]
		f.polls++
		json.NewEncoder(w).Encode(page)
	})
	mux.HandleFunc("DELETE /sessions/s1", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.deleted = true
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func page(status string, ids ...int) messagesResponse {
	var p messagesResponse
	p.Status = status
	for _, id := range ids {
		p.Messages = append(p.Messages, struct {
			ID        int       `json:"id"`
			Type      string    `json:"type"`
			Content   string    `json:"content"`
			CreatedAt time.Time `json:"created_at"`
		}{ID: id, Type: MessageContent, Content: "m" + string(rune('0'+id))})
	}
	return p
}

func newRemote(t *testing.T, svc *fakeAgentService) *RemoteAgent {
	t.Helper()
	srv := httptest.NewServer(svc.handler(t))
	t.Cleanup(srv.Close)

	agent, err := NewRemoteAgent(context.Background(), RemoteConfig{
		BaseURL:      srv.URL,
		APIKey:       "key",
		PollInterval: time.Millisecond,
	})
	require.NoError(t, err)
	return agent
}

func TestRemoteAgentStreamsUntilFinished(t *testing.T) {
	svc := &fakeAgentService{pages: []messagesResponse{
		page(sessionRunning, 1, 2),
		page(sessionRunning),
		page(sessionFinished, 3),
	}}
	agent := newRemote(t, svc)

	acc := &retry.Accumulator[Message]{}
	err := agent.Run(context.Background(), Task{URL: "https://example.com", Instructions: "describe"}, acc)
	require.NoError(t, err)

	assert.Equal(t, 3, acc.Len())
	assert.Equal(t, []string{"0", "2", "2"}, svc.cursors)
	assert.True(t, svc.deleted)
	assert.Equal(t, "key", svc.apiKey)
	assert.Equal(t, "https://example.com", svc.postBody["url"])
}

func TestRemoteAgentKeepsMessagesOnSessionError(t *testing.T) {
	svc := &fakeAgentService{pages: []messagesResponse{
		page(sessionRunning, 1),
		{Status: sessionError, Error: "tab crashed"},
	}}
	agent := newRemote(t, svc)

	acc := &retry.Accumulator[Message]{}
	err := agent.Run(context.Background(), Task{URL: "https://example.com"}, acc)
	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err))
	assert.Equal(t, 1, acc.Len())
	assert.True(t, svc.deleted)
}

func TestRemoteAgentTimesOutWhileRunning(t *testing.T) {
	svc := &fakeAgentService{pages: []messagesResponse{page(sessionRunning, 1)}}
	agent := newRemote(t, svc)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	acc := &retry.Accumulator[Message]{}
	err := agent.Run(ctx, Task{URL: "https://example.com"}, acc)
	require.Error(t, err)
	assert.Equal(t, errors.ErrTimeout, errors.CodeOf(err))
	assert.GreaterOrEqual(t, acc.Len(), 1)
}

func TestRemoteAgentMapsHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	agent, err := NewRemoteAgent(context.Background(), RemoteConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	err = agent.Run(context.Background(), Task{URL: "https://example.com"}, &retry.Accumulator[Message]{})
	assert.Equal(t, errors.ErrServiceUnavailable, errors.CodeOf(err))
}

func TestNewRemoteAgentRequiresURL(t *testing.T) {
	_, err := NewRemoteAgent(context.Background(), RemoteConfig{})
	assert.Error(t, err)
}

func TestDisabledAgent(t *testing.T) {
	acc := &retry.Accumulator[Message]{}
	require.NoError(t, Disabled{}.Run(context.Background(), Task{URL: "https://example.com"}, acc))
	require.Equal(t, 1, acc.Len())
	assert.Contains(t, acc.Items()[0].Content, "https://example.com")
}

func TestPageFactsMessages(t *testing.T) {
	facts := pageFacts{
		Title:       "Blue Bottle",
		Description: "Coffee roasters",
		Headings:    []string{"Menu", "Visit"},
		Text:        "  lots \n of   text " + strings.Repeat("x", maxPageText),
	}
	msgs := facts.messages(time.Now())
	require.Len(t, msgs, 4)
	assert.Equal(t, "Title: Blue Bottle", msgs[0].Content)
	assert.Equal(t, "Headings: Menu | Visit", msgs[2].Content)
	assert.Len(t, msgs[3].Content, maxPageText)
	assert.True(t, strings.HasPrefix(msgs[3].Content, "lots of text"))

	assert.Empty(t, pageFacts{}.messages(time.Now()))
}

package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/idtoken"

	"github.com/spawn-mcp/campaign-studio/pkg/errors"
	"github.com/spawn-mcp/campaign-studio/pkg/logging"
	"github.com/spawn-mcp/campaign-studio/pkg/retry"
)

// Session states reported by the agent service.
const (
	sessionRunning  = "running"
	sessionFinished = "finished"
	sessionIdle     = "idle"
	sessionError    = "error"
)

type RemoteConfig struct {
	BaseURL string
	// APIKey is sent as X-API-Key when set.
	APIKey string
	// Audience enables Google-signed ID tokens for service-to-service calls.
	Audience     string
	PollInterval time.Duration
	HTTPClient   *http.Client
	Logger       *zap.Logger
}

// RemoteAgent drives a hosted browsing agent over HTTP: create a session,
// post the task, then poll the message stream with a cursor until the
// session finishes.
type RemoteAgent struct {
	baseURL      string
	apiKey       string
	pollInterval time.Duration
	httpClient   *http.Client
	logger       *zap.Logger
}

func NewRemoteAgent(ctx context.Context, cfg RemoteConfig) (*RemoteAgent, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("browser agent base URL is required")
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Audience != "" {
		source, err := idtoken.NewTokenSource(ctx, cfg.Audience)
		if err != nil {
			return nil, fmt.Errorf("failed to create token source: %w", err)
		}
		base := client.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		client = &http.Client{
			Timeout:   client.Timeout,
			Transport: &authenticatedTransport{base: base, source: source},
		}
	}

	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 5 * time.Second
	}

	return &RemoteAgent{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		pollInterval: poll,
		httpClient:   client,
		logger:       logging.OrNop(cfg.Logger),
	}, nil
}

type sessionResponse struct {
	ID string `json:"id"`
}

type messagesResponse struct {
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	Messages []struct {
		ID        int       `json:"id"`
		Type      string    `json:"type"`
		Content   string    `json:"content"`
		CreatedAt time.Time `json:"created_at"`
	} `json:"messages"`
}

func (a *RemoteAgent) Run(ctx context.Context, task Task, acc *retry.Accumulator[Message]) error {
	var session sessionResponse
	if err := a.do(ctx, http.MethodPost, "/sessions", nil, &session); err != nil {
		return err
	}
	if session.ID == "" {
		return errors.New(errors.ErrServiceUnavailable, "agent service returned no session id")
	}
	logger := a.logger.With(zap.String("session_id", session.ID))

	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := a.do(cleanupCtx, http.MethodDelete, "/sessions/"+session.ID, nil, nil); err != nil {
			logger.Warn("failed to delete browser session", zap.Error(err))
		}
	}()

	body := map[string]string{"task": task.Instructions, "url": task.URL}
	if err := a.do(ctx, http.MethodPost, "/sessions/"+session.ID+"/message", body, nil); err != nil {
		return err
	}

	cursor := 0
	for {
		var page messagesResponse
		path := "/sessions/" + session.ID + "/messages?after_id=" + strconv.Itoa(cursor)
		if err := a.do(ctx, http.MethodGet, path, nil, &page); err != nil {
			return err
		}

		for _, m := range page.Messages {
			acc.Add(Message{
				ID:      strconv.Itoa(m.ID),
				Type:    m.Type,
				Content: m.Content,
				Time:    m.CreatedAt,
			})
			if m.ID > cursor {
				cursor = m.ID
			}
		}

		switch page.Status {
		case sessionFinished, sessionIdle:
			logger.Debug("browser session finished", zap.Int("messages", acc.Len()))
			return nil
		case sessionError:
			return errors.Newf(errors.ErrServiceUnavailable, "browser session failed: %s", page.Error).
				WithContext("session_id", session.ID)
		}

		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), errors.ErrTimeout, "browser session still running").
				WithContext("session_id", session.ID)
		case <-time.After(a.pollInterval):
		}
	}
}

func (a *RemoteAgent) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.apiKey != "" {
		req.Header.Set("X-API-Key", a.apiKey)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return errors.Wrap(err, errors.ErrTimeout, "browser agent request interrupted")
		}
		return errors.Wrap(err, errors.ErrConnectionFailed, "browser agent unreachable").
			WithContext("url", redact(req.URL))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return errors.FromHTTPStatus(resp.StatusCode, fmt.Sprintf("browser agent %s %s: %s", method, path, strings.TrimSpace(string(detail))))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, errors.ErrServiceUnavailable, "failed to decode browser agent response")
	}
	return nil
}

func redact(u *url.URL) string {
	c := *u
	c.RawQuery = ""
	return c.String()
}

// authenticatedTransport adds a bearer ID token to every request.
type authenticatedTransport struct {
	base   http.RoundTripper
	source oauth2.TokenSource
}

func (t *authenticatedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.source.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to get ID token: %w", err)
	}

	reqClone := req.Clone(req.Context())
	reqClone.Header.Set("Authorization", "Bearer "+token.AccessToken)

	return t.base.RoundTrip(reqClone)
}

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spawn-mcp/campaign-studio/pkg/coordinator"
	"github.com/spawn-mcp/campaign-studio/pkg/errors"
	"github.com/spawn-mcp/campaign-studio/pkg/types"
)

// MockCampaigns is a Func-field fake of the orchestrator.
type MockCampaigns struct {
	StartFunc    func(ctx context.Context, in types.CampaignInput) (*coordinator.Handle, error)
	ProgressFunc func(ctx context.Context, id string) (*types.CampaignProgress, error)
	ViewFunc     func(ctx context.Context, id string) (*types.CampaignView, error)
}

func (m *MockCampaigns) Start(ctx context.Context, in types.CampaignInput) (*coordinator.Handle, error) {
	return m.StartFunc(ctx, in)
}

func (m *MockCampaigns) Progress(ctx context.Context, id string) (*types.CampaignProgress, error) {
	return m.ProgressFunc(ctx, id)
}

func (m *MockCampaigns) View(ctx context.Context, id string) (*types.CampaignView, error) {
	return m.ViewFunc(ctx, id)
}

func serve(t *testing.T, m *MockCampaigns, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	router := NewRouter(NewHandler(m, nil), nil)
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateCampaign(t *testing.T) {
	var got types.CampaignInput
	m := &MockCampaigns{StartFunc: func(_ context.Context, in types.CampaignInput) (*coordinator.Handle, error) {
		got = in
		return &coordinator.Handle{CampaignID: "c-42"}, nil
	}}

	rec := serve(t, m, http.MethodPost, "/campaigns", `{"url": "https://bluebottlecoffee.com", "brand_voice": "warm"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp CreateCampaignResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "c-42", resp.CampaignID)
	assert.Equal(t, "https://bluebottlecoffee.com", got.URL)
	assert.Equal(t, "warm", got.BrandVoice)
}

func TestCreateCampaignErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"malformed json", `{"url":`, nil, http.StatusBadRequest},
		{"validation", `{"url": ""}`, errors.New(errors.ErrMissingRequired, "url is required"), http.StatusBadRequest},
		{"store down", `{"url": "https://x.test"}`, errors.New(errors.ErrStoreUnavailable, "firestore unreachable"), http.StatusServiceUnavailable},
		{"internal", `{"url": "https://x.test"}`, errors.New(errors.ErrInternal, "bug"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &MockCampaigns{StartFunc: func(context.Context, types.CampaignInput) (*coordinator.Handle, error) {
				return nil, tt.err
			}}
			rec := serve(t, m, http.MethodPost, "/campaigns", tt.body)
			assert.Equal(t, tt.status, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestGetProgress(t *testing.T) {
	stage := "strategy"
	m := &MockCampaigns{ProgressFunc: func(_ context.Context, id string) (*types.CampaignProgress, error) {
		if id != "c-1" {
			return nil, nil
		}
		return &types.CampaignProgress{CampaignID: id, Status: types.CampaignStatusStage2Running, Progress: 25, CurrentStage: &stage}, nil
	}}

	rec := serve(t, m, http.MethodGet, "/campaigns/c-1/progress", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var p types.CampaignProgress
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, 25, p.Progress)
	assert.Equal(t, "strategy", p.StageName())

	rec = serve(t, m, http.MethodGet, "/campaigns/unknown/progress", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetCampaign(t *testing.T) {
	m := &MockCampaigns{ViewFunc: func(_ context.Context, id string) (*types.CampaignView, error) {
		if id != "c-1" {
			return nil, nil
		}
		return &types.CampaignView{
			Progress: &types.CampaignProgress{CampaignID: id, Status: types.CampaignStatusFailed, Progress: 25},
			Research: &types.ResearchResult{Meta: types.StageMeta{CampaignID: id, Complete: false}},
		}, nil
	}}

	rec := serve(t, m, http.MethodGet, "/campaigns/c-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.JSONEq(t, "null", string(body["analytics"]))
	assert.Contains(t, string(body["research"]), `"complete":false`)

	rec = serve(t, m, http.MethodGet, "/campaigns/c-2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetCampaignStoreError(t *testing.T) {
	m := &MockCampaigns{ViewFunc: func(context.Context, string) (*types.CampaignView, error) {
		return nil, errors.New(errors.ErrStoreUnavailable, "timeout")
	}}
	rec := serve(t, m, http.MethodGet, "/campaigns/c-1", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealth(t *testing.T) {
	rec := serve(t, &MockCampaigns{}, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRecoversFromPanic(t *testing.T) {
	m := &MockCampaigns{ProgressFunc: func(context.Context, string) (*types.CampaignProgress, error) {
		panic("boom")
	}}
	rec := serve(t, m, http.MethodGet, "/campaigns/c-1/progress", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// The router drives a real orchestrator end to end.
func TestRouterWithOrchestrator(t *testing.T) {
	o := newOrchestrator(t)
	srv := httptest.NewServer(NewRouter(NewHandler(o, nil), nil))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/campaigns", "application/json", strings.NewReader(`{"url": "https://x.test"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var created CreateCampaignResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotEmpty(t, created.CampaignID)

	progress, err := http.Get(srv.URL + "/campaigns/" + created.CampaignID + "/progress")
	require.NoError(t, err)
	defer progress.Body.Close()
	assert.Equal(t, http.StatusOK, progress.StatusCode)

	missing, err := http.Get(srv.URL + "/campaigns/nope/progress")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

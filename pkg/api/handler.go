package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/spawn-mcp/campaign-studio/pkg/coordinator"
	"github.com/spawn-mcp/campaign-studio/pkg/errors"
	"github.com/spawn-mcp/campaign-studio/pkg/logging"
	"github.com/spawn-mcp/campaign-studio/pkg/types"
)

// Campaigns is the orchestrator surface the handlers need.
type Campaigns interface {
	Start(ctx context.Context, input types.CampaignInput) (*coordinator.Handle, error)
	Progress(ctx context.Context, campaignID string) (*types.CampaignProgress, error)
	View(ctx context.Context, campaignID string) (*types.CampaignView, error)
}

type Handler struct {
	campaigns Campaigns
	logger    *zap.Logger
}

func NewHandler(campaigns Campaigns, logger *zap.Logger) *Handler {
	return &Handler{campaigns: campaigns, logger: logging.OrNop(logger)}
}

// CreateCampaign creates the campaign record and starts the run in the
// background. The response carries the ID to poll.
func (h *Handler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req CreateCampaignRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	handle, err := h.campaigns.Start(r.Context(), types.CampaignInput{
		URL:        req.URL,
		Address:    req.Address,
		BrandVoice: req.BrandVoice,
	})
	if err != nil {
		h.writeStartError(w, r, err)
		return
	}

	h.logger.Info("campaign accepted",
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.String("campaign_id", handle.CampaignID),
	)
	writeJSON(w, http.StatusAccepted, CreateCampaignResponse{CampaignID: handle.CampaignID})
}

func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	progress, err := h.campaigns.Progress(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	if progress == nil {
		writeError(w, http.StatusNotFound, "campaign_not_found", "no campaign "+id)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (h *Handler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	view, err := h.campaigns.View(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	if view == nil {
		writeError(w, http.StatusNotFound, "campaign_not_found", "no campaign "+id)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeStartError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.IsValidation(err) {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	h.writeStoreError(w, r, err)
}

func (h *Handler) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("request failed",
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	if errors.CategoryOf(err) == errors.CategoryStore || errors.IsRetryable(err) {
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "campaign storage is unavailable, retry later")
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

package store

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/spawn-mcp/campaign-studio/pkg/errors"
	"github.com/spawn-mcp/campaign-studio/pkg/types"
)

type resultKey struct {
	kind       types.StageKind
	campaignID string
}

// Memory is an in-process Store. Records are kept as JSON so callers never share memory with it.
type Memory struct {
	mu        sync.RWMutex
	campaigns map[string]*types.CampaignProgress
	results   map[resultKey][]byte
}

func NewMemory() *Memory {
	return &Memory{
		campaigns: make(map[string]*types.CampaignProgress),
		results:   make(map[resultKey][]byte),
	}
}

func (m *Memory) CreateCampaign(ctx context.Context, progress *types.CampaignProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.campaigns[progress.CampaignID]; exists {
		return errors.Newf(errors.ErrStateConflict, "campaign %s already exists", progress.CampaignID)
	}
	m.campaigns[progress.CampaignID] = progress.Clone()
	return nil
}

func (m *Memory) UpdateProgress(ctx context.Context, progress *types.CampaignProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.campaigns[progress.CampaignID]; !exists {
		return errors.Newf(errors.ErrNotFound, "campaign %s not found", progress.CampaignID)
	}
	m.campaigns[progress.CampaignID] = progress.Clone()
	return nil
}

func (m *Memory) StoreStageResult(ctx context.Context, kind types.StageKind, campaignID string, result types.StageResult) error {
	if err := checkKind(kind, result); err != nil {
		return errors.Wrap(err, errors.ErrStoreEncoding, "invalid stage result")
	}
	data, err := json.Marshal(result)
	if err != nil {
		return errors.Wrap(err, errors.ErrStoreEncoding, "failed to encode stage result")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[resultKey{kind, campaignID}] = data
	return nil
}

func (m *Memory) GetProgress(ctx context.Context, campaignID string) (*types.CampaignProgress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.campaigns[campaignID].Clone(), nil
}

func (m *Memory) GetStageResult(ctx context.Context, kind types.StageKind, campaignID string) (types.StageResult, error) {
	m.mu.RLock()
	data, ok := m.results[resultKey{kind, campaignID}]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	result, err := types.DecodeStageResult(kind, data)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrStoreEncoding, "failed to decode stage result")
	}
	return result, nil
}

func (m *Memory) Close() error { return nil }

package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spawn-mcp/campaign-studio/pkg/coordinator"
	"github.com/spawn-mcp/campaign-studio/pkg/store"
	"github.com/spawn-mcp/campaign-studio/pkg/types"
)

type stubResearch struct{}

func (stubResearch) Run(_ context.Context, id string, in types.CampaignInput) (*types.ResearchResult, error) {
	return &types.ResearchResult{Meta: types.StageMeta{CampaignID: id, Complete: true, Attempts: 1}}, nil
}

type stubStrategy struct{}

func (stubStrategy) Run(_ context.Context, id string, _ types.CampaignInput, _ *types.ResearchResult) (*types.AnalyticsResult, error) {
	return &types.AnalyticsResult{Meta: types.StageMeta{CampaignID: id, Complete: true, Attempts: 1}}, nil
}

type stubCreative struct{}

func (stubCreative) Run(_ context.Context, id string, _ types.CampaignInput, _ *types.AnalyticsResult) (*types.ContentResult, error) {
	return &types.ContentResult{Meta: types.StageMeta{CampaignID: id, Complete: true, Attempts: 1}}, nil
}

func newOrchestrator(t *testing.T) *coordinator.Orchestrator {
	t.Helper()
	o, err := coordinator.NewOrchestrator(store.NewMemory(), coordinator.Stages{
		Research: stubResearch{},
		Strategy: stubStrategy{},
		Creative: stubCreative{},
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, o.Shutdown(ctx))
	})
	return o
}

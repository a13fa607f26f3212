// Package storetest holds behaviour checks shared by every store.Store implementation.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spawn-mcp/campaign-studio/pkg/errors"
	"github.com/spawn-mcp/campaign-studio/pkg/store"
	"github.com/spawn-mcp/campaign-studio/pkg/types"
)

// Run exercises s against the persistence contract. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("unknown campaign is not found", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		progress, err := s.GetProgress(ctx, "does-not-exist")
		require.NoError(t, err)
		assert.Nil(t, progress)

		for _, kind := range types.StageKinds {
			result, err := s.GetStageResult(ctx, kind, "does-not-exist")
			require.NoError(t, err)
			assert.Nil(t, result)
		}

		view, err := store.LoadView(ctx, s, "does-not-exist")
		require.NoError(t, err)
		assert.Nil(t, view)
	})

	t.Run("create and update progress", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		p := newProgress("c-1")

		require.NoError(t, s.CreateCampaign(ctx, p))
		assert.Error(t, s.CreateCampaign(ctx, p), "duplicate create")

		got, err := s.GetProgress(ctx, "c-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, types.CampaignStatusPending, got.Status)
		assert.Equal(t, 0, got.Progress)
		assert.Nil(t, got.CurrentStage)
		assert.True(t, p.CreatedAt.Equal(got.CreatedAt))

		stage := types.StageResearch.String()
		p.Status = types.CampaignStatusStage1Running
		p.CurrentStage = &stage
		p.Progress = 25
		p.Message = "research complete"
		p.UpdatedAt = p.UpdatedAt.Add(time.Second)
		require.NoError(t, s.UpdateProgress(ctx, p))

		got, err = s.GetProgress(ctx, "c-1")
		require.NoError(t, err)
		assert.Equal(t, types.CampaignStatusStage1Running, got.Status)
		assert.Equal(t, 25, got.Progress)
		assert.Equal(t, "research", got.StageName())
		assert.Equal(t, "research complete", got.Message)
		assert.True(t, p.UpdatedAt.Equal(got.UpdatedAt))
	})

	t.Run("update of unknown campaign is not found", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		err := s.UpdateProgress(ctx, newProgress("ghost"))
		require.Error(t, err)
		assert.True(t, errors.IsNotFound(err))
		assert.False(t, errors.IsRetryable(err))

		got, err := s.GetProgress(ctx, "ghost")
		require.NoError(t, err)
		assert.Nil(t, got, "update must not create")
	})

	t.Run("stage result upsert overwrites", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateCampaign(ctx, newProgress("c-2")))

		first := &types.ResearchResult{
			Meta:     types.StageMeta{CampaignID: "c-2", Complete: false, Attempts: 3},
			Business: types.BusinessContext{Name: "first"},
		}
		second := &types.ResearchResult{
			Meta:     types.StageMeta{CampaignID: "c-2", Complete: true, Attempts: 1},
			Business: types.BusinessContext{Name: "second"},
		}
		require.NoError(t, s.StoreStageResult(ctx, types.StageKindResearch, "c-2", first))
		require.NoError(t, s.StoreStageResult(ctx, types.StageKindResearch, "c-2", second))

		got, err := s.GetStageResult(ctx, types.StageKindResearch, "c-2")
		require.NoError(t, err)
		research, ok := got.(*types.ResearchResult)
		require.True(t, ok)
		assert.Equal(t, "second", research.Business.Name)
		assert.True(t, research.Meta.Complete)

		other, err := s.GetStageResult(ctx, types.StageKindAnalytics, "c-2")
		require.NoError(t, err)
		assert.Nil(t, other)
	})

	t.Run("rejects mismatched kind", func(t *testing.T) {
		s := newStore(t)
		err := s.StoreStageResult(context.Background(), types.StageKindContent, "c-3", &types.ResearchResult{})
		assert.Error(t, err)
	})

	t.Run("view joins available results", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateCampaign(ctx, newProgress("c-4")))
		require.NoError(t, s.StoreStageResult(ctx, types.StageKindAnalytics, "c-4", &types.AnalyticsResult{
			Meta: types.StageMeta{CampaignID: "c-4", Complete: true},
			Plan: []types.DayPlan{{Day: 1, Theme: "launch"}},
		}))

		view, err := store.LoadView(ctx, s, "c-4")
		require.NoError(t, err)
		require.NotNil(t, view)
		assert.Equal(t, "c-4", view.Progress.CampaignID)
		assert.Nil(t, view.Research)
		require.NotNil(t, view.Analytics)
		assert.Equal(t, "launch", view.Analytics.Plan[0].Theme)
		assert.Nil(t, view.Content)
	})

	t.Run("concurrent campaigns stay isolated", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		const n = 16

		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				id := fmt.Sprintf("iso-%d", i)
				p := newProgress(id)
				if err := s.CreateCampaign(ctx, p); err != nil {
					errs <- err
					return
				}
				p.Progress = i
				if err := s.UpdateProgress(ctx, p); err != nil {
					errs <- err
					return
				}
				errs <- s.StoreStageResult(ctx, types.StageKindContent, id, &types.ContentResult{
					Meta: types.StageMeta{CampaignID: id, Complete: true},
					Days: []types.DayContent{{Day: 1, Caption: id}},
				})
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		for i := 0; i < n; i++ {
			id := fmt.Sprintf("iso-%d", i)
			p, err := s.GetProgress(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, i, p.Progress)

			r, err := s.GetStageResult(ctx, types.StageKindContent, id)
			require.NoError(t, err)
			assert.Equal(t, id, r.(*types.ContentResult).Days[0].Caption)
		}
	})
}

func newProgress(id string) *types.CampaignProgress {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &types.CampaignProgress{
		CampaignID: id,
		Status:     types.CampaignStatusPending,
		Message:    "campaign queued",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

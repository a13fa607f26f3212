// Package store persists campaign progress and stage results keyed by campaign ID.
package store

import (
	"context"
	"fmt"

	"github.com/spawn-mcp/campaign-studio/pkg/types"
)

// Store is the persistence gateway. Get methods return (nil, nil) for an unknown campaign.
type Store interface {
	CreateCampaign(ctx context.Context, progress *types.CampaignProgress) error
	UpdateProgress(ctx context.Context, progress *types.CampaignProgress) error
	// StoreStageResult overwrites any existing result of the same kind.
	StoreStageResult(ctx context.Context, kind types.StageKind, campaignID string, result types.StageResult) error
	GetProgress(ctx context.Context, campaignID string) (*types.CampaignProgress, error)
	GetStageResult(ctx context.Context, kind types.StageKind, campaignID string) (types.StageResult, error)
	Close() error
}

// LoadView reads the progress record and every stage result present for campaignID.
// It returns (nil, nil) if the campaign does not exist.
func LoadView(ctx context.Context, s Store, campaignID string) (*types.CampaignView, error) {
	progress, err := s.GetProgress(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if progress == nil {
		return nil, nil
	}

	view := &types.CampaignView{Progress: progress}
	for _, kind := range types.StageKinds {
		result, err := s.GetStageResult(ctx, kind, campaignID)
		if err != nil {
			return nil, err
		}
		if result == nil {
			continue
		}
		switch r := result.(type) {
		case *types.ResearchResult:
			view.Research = r
		case *types.AnalyticsResult:
			view.Analytics = r
		case *types.ContentResult:
			view.Content = r
		default:
			return nil, fmt.Errorf("unexpected %s result type %T", kind, result)
		}
	}
	return view, nil
}

func checkKind(kind types.StageKind, result types.StageResult) error {
	if result == nil {
		return fmt.Errorf("nil %s result", kind)
	}
	if result.Kind() != kind {
		return fmt.Errorf("result kind %s stored as %s", result.Kind(), kind)
	}
	return nil
}

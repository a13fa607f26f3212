package coordinator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spawn-mcp/campaign-studio/pkg/errors"
	"github.com/spawn-mcp/campaign-studio/pkg/retry"
	"github.com/spawn-mcp/campaign-studio/pkg/store"
	"github.com/spawn-mcp/campaign-studio/pkg/types"
)

var fixedNow = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

func fastPersist() retry.Config {
	return retry.Config{MaxAttempts: 3, Strategy: &retry.LinearBackoff{Delay: time.Millisecond}}
}

// recordingStore wraps a memory store and keeps every progress snapshot it accepted.
type recordingStore struct {
	*store.Memory

	mu      sync.Mutex
	history []types.CampaignProgress

	// CreateErr and UpdateErr, when set, are returned instead of writing.
	CreateErr func() error
	UpdateErr func(p *types.CampaignProgress) error
	// CreateAckErr, when set, is returned after the create has committed.
	CreateAckErr func() error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{Memory: store.NewMemory()}
}

func (s *recordingStore) CreateCampaign(ctx context.Context, p *types.CampaignProgress) error {
	if s.CreateErr != nil {
		if err := s.CreateErr(); err != nil {
			return err
		}
	}
	if err := s.Memory.CreateCampaign(ctx, p); err != nil {
		return err
	}
	s.record(p)
	if s.CreateAckErr != nil {
		return s.CreateAckErr()
	}
	return nil
}

func (s *recordingStore) UpdateProgress(ctx context.Context, p *types.CampaignProgress) error {
	if s.UpdateErr != nil {
		if err := s.UpdateErr(p); err != nil {
			return err
		}
	}
	if err := s.Memory.UpdateProgress(ctx, p); err != nil {
		return err
	}
	s.record(p)
	return nil
}

func (s *recordingStore) record(p *types.CampaignProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, *p.Clone())
}

func (s *recordingStore) History() []types.CampaignProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.CampaignProgress(nil), s.history...)
}

// Func-field fakes for each stage.

type MockResearch struct {
	RunFunc func(ctx context.Context, id string, in types.CampaignInput) (*types.ResearchResult, error)
	calls   atomic.Int32
}

func (m *MockResearch) Run(ctx context.Context, id string, in types.CampaignInput) (*types.ResearchResult, error) {
	m.calls.Add(1)
	return m.RunFunc(ctx, id, in)
}

type MockStrategy struct {
	RunFunc func(ctx context.Context, id string, in types.CampaignInput, r *types.ResearchResult) (*types.AnalyticsResult, error)
	calls   atomic.Int32
}

func (m *MockStrategy) Run(ctx context.Context, id string, in types.CampaignInput, r *types.ResearchResult) (*types.AnalyticsResult, error) {
	m.calls.Add(1)
	return m.RunFunc(ctx, id, in, r)
}

type MockCreative struct {
	RunFunc func(ctx context.Context, id string, in types.CampaignInput, a *types.AnalyticsResult) (*types.ContentResult, error)
	calls   atomic.Int32
}

func (m *MockCreative) Run(ctx context.Context, id string, in types.CampaignInput, a *types.AnalyticsResult) (*types.ContentResult, error) {
	m.calls.Add(1)
	return m.RunFunc(ctx, id, in, a)
}

type fakeStages struct {
	research *MockResearch
	strategy *MockStrategy
	creative *MockCreative
}

func (f fakeStages) Stages() Stages {
	return Stages{Research: f.research, Strategy: f.strategy, Creative: f.creative}
}

func meta(id string, attempts int) types.StageMeta {
	return types.StageMeta{CampaignID: id, Complete: true, Attempts: attempts, CreatedAt: fixedNow}
}

// happyStages returns complete results from every stage.
func happyStages() fakeStages {
	return fakeStages{
		research: &MockResearch{RunFunc: func(_ context.Context, id string, in types.CampaignInput) (*types.ResearchResult, error) {
			return &types.ResearchResult{
				Meta:     meta(id, 1),
				Business: types.BusinessContext{Name: "Blue Bottle", Category: "cafe", Website: in.URL},
			}, nil
		}},
		strategy: &MockStrategy{RunFunc: func(_ context.Context, id string, _ types.CampaignInput, r *types.ResearchResult) (*types.AnalyticsResult, error) {
			if r == nil {
				return nil, errors.New(errors.ErrStageFatal, "missing research")
			}
			return &types.AnalyticsResult{
				Meta:     meta(id, 1),
				Business: r.Business,
				Plan:     []types.DayPlan{{Day: 1, Theme: "Opening"}},
			}, nil
		}},
		creative: &MockCreative{RunFunc: func(_ context.Context, id string, _ types.CampaignInput, a *types.AnalyticsResult) (*types.ContentResult, error) {
			if a == nil {
				return nil, errors.New(errors.ErrStageFatal, "missing analytics")
			}
			return &types.ContentResult{
				Meta: meta(id, 1),
				Days: []types.DayContent{{Day: 1, Caption: "Hello from " + a.Business.Name}},
			}, nil
		}},
	}
}

func testInput() types.CampaignInput {
	return types.CampaignInput{URL: " https://bluebottlecoffee.com ", Address: "1 Ferry Building, San Francisco, CA"}
}

// MockPublisher collects published snapshots.
type MockPublisher struct {
	mu        sync.Mutex
	published []types.CampaignProgress
	Err       error
}

func (m *MockPublisher) Publish(_ context.Context, p *types.CampaignProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, *p.Clone())
	return m.Err
}

func (m *MockPublisher) Statuses() []types.CampaignStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.CampaignStatus
	for _, p := range m.published {
		out = append(out, p.Status)
	}
	return out
}

type MockDispatcher struct {
	DispatchFunc func(ctx context.Context, id string, in types.CampaignInput) error
}

func (m *MockDispatcher) Dispatch(ctx context.Context, id string, in types.CampaignInput) error {
	return m.DispatchFunc(ctx, id, in)
}

func sequentialIDs() func() string {
	var n atomic.Int32
	return func() string { return fmt.Sprintf("campaign-%d", n.Add(1)) }
}

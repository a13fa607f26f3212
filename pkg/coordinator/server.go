// Package coordinator runs campaigns through the research, strategy and
// creative stages and records their progress.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spawn-mcp/campaign-studio/pkg/events"
	"github.com/spawn-mcp/campaign-studio/pkg/logging"
	"github.com/spawn-mcp/campaign-studio/pkg/retry"
	"github.com/spawn-mcp/campaign-studio/pkg/store"
	"github.com/spawn-mcp/campaign-studio/pkg/timeout"
	"github.com/spawn-mcp/campaign-studio/pkg/types"
)

type ResearchStage interface {
	Run(ctx context.Context, campaignID string, input types.CampaignInput) (*types.ResearchResult, error)
}

type StrategyStage interface {
	Run(ctx context.Context, campaignID string, input types.CampaignInput, research *types.ResearchResult) (*types.AnalyticsResult, error)
}

type CreativeStage interface {
	Run(ctx context.Context, campaignID string, input types.CampaignInput, analytics *types.AnalyticsResult) (*types.ContentResult, error)
}

// Stages are the three pipeline stages, all required.
type Stages struct {
	Research ResearchStage
	Strategy StrategyStage
	Creative CreativeStage
}

// Dispatcher hands a created campaign to another process for execution.
type Dispatcher interface {
	Dispatch(ctx context.Context, campaignID string, input types.CampaignInput) error
}

// Orchestrator starts campaigns and runs their stages in order.
type Orchestrator struct {
	store      store.Store
	stages     Stages
	publisher  events.Publisher
	dispatcher Dispatcher
	persist    retry.Config
	logger     *zap.Logger
	now        func() time.Time
	newID      func() string

	wg sync.WaitGroup
}

type Option func(*Orchestrator)

func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = logging.OrNop(logger) }
}

// WithPublisher announces every persisted progress snapshot.
func WithPublisher(p events.Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

// WithDispatcher queues runs instead of executing them in this process.
func WithDispatcher(d Dispatcher) Option {
	return func(o *Orchestrator) { o.dispatcher = d }
}

// WithPersistenceRetry sets the bounded retry used for store calls.
func WithPersistenceRetry(cfg retry.Config) Option {
	return func(o *Orchestrator) { o.persist = cfg }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(o *Orchestrator) { o.newID = newID }
}

func NewOrchestrator(s store.Store, stages Stages, opts ...Option) (*Orchestrator, error) {
	if s == nil {
		return nil, fmt.Errorf("coordinator: store is required")
	}
	if stages.Research == nil || stages.Strategy == nil || stages.Creative == nil {
		return nil, fmt.Errorf("coordinator: all three stages are required")
	}

	o := &Orchestrator{
		store:     s,
		stages:    stages,
		publisher: events.Nop{},
		persist:   retry.DefaultConfigs.Persistence.WithAttemptTimeout(timeout.OperationTimeouts[timeout.OpStore]),
		logger:    zap.NewNop(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Progress returns the campaign's progress, or nil if it does not exist.
func (o *Orchestrator) Progress(ctx context.Context, campaignID string) (*types.CampaignProgress, error) {
	return o.store.GetProgress(ctx, campaignID)
}

// View returns progress joined with the stage results written so far, or
// nil if the campaign does not exist.
func (o *Orchestrator) View(ctx context.Context, campaignID string) (*types.CampaignView, error) {
	return store.LoadView(ctx, o.store, campaignID)
}

// Shutdown waits for campaigns running in this process to finish.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("campaigns still running at shutdown: %w", ctx.Err())
	}
}

// save runs a store call under the persistence retry policy.
func (o *Orchestrator) save(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := retry.ExecuteWithRetry(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, o.persist)
	return err
}

func (o *Orchestrator) publish(ctx context.Context, progress *types.CampaignProgress) {
	if err := o.publisher.Publish(ctx, progress); err != nil {
		o.logger.Warn("failed to publish progress",
			zap.String("campaign_id", progress.CampaignID),
			zap.String("status", string(progress.Status)),
			zap.Error(err),
		)
	}
}

package coordinator

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/spawn-mcp/campaign-studio/pkg/errors"
	"github.com/spawn-mcp/campaign-studio/pkg/types"
)

// Handle tracks a started campaign. For a locally executed campaign it
// resolves when the run ends; for a dispatched one, once the job is queued.
// Whatever the outcome, it has already been written to the campaign's
// progress record by the time the handle resolves.
type Handle struct {
	CampaignID string

	done chan struct{}
	once sync.Once
	err  error
}

func newHandle(campaignID string) *Handle {
	return &Handle{CampaignID: campaignID, done: make(chan struct{})}
}

func (h *Handle) resolve(err error) {
	h.once.Do(func() {
		h.err = err
		close(h.done)
	})
}

// Done is closed when the handle resolves.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the handle resolves or ctx ends. Abandoning the wait
// does not stop the campaign.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the run error once resolved, nil before.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Start validates input, creates the campaign record at pending/0 and
// schedules the run. It fails without creating anything on invalid input,
// and fails when the record cannot be persisted.
func (o *Orchestrator) Start(ctx context.Context, input types.CampaignInput) (*Handle, error) {
	input = input.Normalize()
	if err := input.Validate(); err != nil {
		return nil, err
	}

	now := o.now().UTC()
	progress := &types.CampaignProgress{
		CampaignID: o.newID(),
		Status:     types.CampaignStatusPending,
		Progress:   0,
		Message:    "campaign queued",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	attempts := 0
	if err := o.save(ctx, func(ctx context.Context) error {
		attempts++
		err := o.store.CreateCampaign(ctx, progress)
		// The ID is fresh, so a conflict on a retry means an earlier attempt
		// committed before its error reached us.
		if attempts > 1 && errors.HasCode(err, errors.ErrStateConflict) {
			o.logger.Warn("campaign create committed on an earlier attempt", zap.String("campaign_id", progress.CampaignID))
			return nil
		}
		return err
	}); err != nil {
		if attempts > 1 {
			// An earlier attempt may have committed; leave nothing pending.
			o.fail(ctx, progress, err)
		}
		return nil, fmt.Errorf("create campaign: %w", err)
	}
	o.publish(ctx, progress)

	logger := o.logger.With(zap.String("campaign_id", progress.CampaignID))
	logger.Info("campaign created", zap.String("url", input.URL))

	h := newHandle(progress.CampaignID)

	if o.dispatcher != nil {
		if err := o.dispatcher.Dispatch(ctx, progress.CampaignID, input); err != nil {
			err = errors.Wrap(err, errors.ErrInternal, "campaign could not be queued")
			logger.Error("dispatch failed", zap.Error(err))
			o.fail(ctx, progress, err)
			h.resolve(err)
			return h, nil
		}
		h.resolve(nil)
		return h, nil
	}

	// The run outlives the request that started it.
	runCtx := context.WithoutCancel(ctx)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		h.resolve(o.Run(runCtx, progress.CampaignID, input))
	}()
	return h, nil
}

// Run executes the three stages for a pending campaign. Before each stage
// the campaign moves to that stage's running status; after it, the stage
// result is persisted and progress advances to the stage milestone. The
// first stage error marks the campaign failed and stops the run.
func (o *Orchestrator) Run(ctx context.Context, campaignID string, input types.CampaignInput) (err error) {
	logger := o.logger.With(zap.String("campaign_id", campaignID))

	var progress *types.CampaignProgress
	if err := o.save(ctx, func(ctx context.Context) error {
		var err error
		progress, err = o.store.GetProgress(ctx, campaignID)
		return err
	}); err != nil {
		return fmt.Errorf("load campaign %s: %w", campaignID, err)
	}
	if progress == nil {
		return errors.Newf(errors.ErrNotFound, "campaign %s not found", campaignID)
	}
	// Guards against a queue redelivering a job that already ran.
	if progress.Status != types.CampaignStatusPending {
		return errors.Newf(errors.ErrStateConflict, "campaign %s is %s, not pending", campaignID, progress.Status)
	}

	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf(errors.ErrPanic, "campaign run panicked: %v", r)
			logger.Error("recovered panic", zap.Any("panic", r))
			o.fail(ctx, progress, err)
		}
	}()

	state := &pipelineState{input: input}
	for _, stage := range types.Stages {
		stageLogger := logger.With(zap.String("stage", stage.String()))

		if err := o.advance(ctx, progress, stage.RunningStatus(), progress.Progress, &stage, runningMessage[stage]); err != nil {
			o.fail(ctx, progress, err)
			return err
		}

		stageLogger.Info("stage started")
		result, err := o.runStage(ctx, stage, campaignID, state)
		if err != nil {
			stageLogger.Error("stage failed", zap.Error(err))
			o.fail(ctx, progress, err)
			return err
		}

		if err := o.save(ctx, func(ctx context.Context) error {
			return o.store.StoreStageResult(ctx, stage.Kind(), campaignID, result)
		}); err != nil {
			err = fmt.Errorf("store %s result: %w", stage.Kind(), err)
			o.fail(ctx, progress, err)
			return err
		}

		status, current := progress.Status, &stage
		if stage == types.StageCreative {
			status, current = types.CampaignStatusCompleted, nil
		}
		message := doneMessage[stage]
		if !result.Metadata().Complete {
			message += " (partial results)"
		}
		if err := o.advance(ctx, progress, status, stage.Milestone(), current, message); err != nil {
			o.fail(ctx, progress, err)
			return err
		}
		stageLogger.Info("stage finished",
			zap.Bool("complete", result.Metadata().Complete),
			zap.Int("attempts", result.Metadata().Attempts),
			zap.Int("progress", progress.Progress),
		)
	}

	logger.Info("campaign completed")
	return nil
}

var runningMessage = map[types.Stage]string{
	types.StageResearch: "researching the business",
	types.StageStrategy: "planning the content calendar",
	types.StageCreative: "producing content",
}

var doneMessage = map[types.Stage]string{
	types.StageResearch: "research complete",
	types.StageStrategy: "strategy complete",
	types.StageCreative: "campaign complete",
}

// pipelineState carries each stage's output to the next.
type pipelineState struct {
	input     types.CampaignInput
	research  *types.ResearchResult
	analytics *types.AnalyticsResult
}

func (o *Orchestrator) runStage(ctx context.Context, stage types.Stage, campaignID string, state *pipelineState) (result types.StageResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf(errors.ErrPanic, "%s stage panicked: %v", stage, r)
		}
	}()

	switch stage {
	case types.StageResearch:
		res, err := o.stages.Research.Run(ctx, campaignID, state.input)
		if err != nil {
			return nil, err
		}
		if res == nil {
			return nil, errors.New(errors.ErrInternal, "research stage returned no result")
		}
		state.research = res
		return res, nil
	case types.StageStrategy:
		res, err := o.stages.Strategy.Run(ctx, campaignID, state.input, state.research)
		if err != nil {
			return nil, err
		}
		if res == nil {
			return nil, errors.New(errors.ErrInternal, "strategy stage returned no result")
		}
		state.analytics = res
		return res, nil
	case types.StageCreative:
		res, err := o.stages.Creative.Run(ctx, campaignID, state.input, state.analytics)
		if err != nil {
			return nil, err
		}
		if res == nil {
			return nil, errors.New(errors.ErrInternal, "creative stage returned no result")
		}
		return res, nil
	default:
		return nil, errors.Newf(errors.ErrInternal, "unknown stage %d", stage)
	}
}

// advance persists the next progress snapshot and publishes it. Progress
// never moves backwards, and status changes must be legal transitions.
func (o *Orchestrator) advance(ctx context.Context, progress *types.CampaignProgress, status types.CampaignStatus, percent int, stage *types.Stage, message string) error {
	if !progress.Status.CanTransition(status) {
		return errors.Newf(errors.ErrStateConflict, "illegal transition %s -> %s", progress.Status, status)
	}
	if percent < progress.Progress {
		percent = progress.Progress
	}

	next := progress.Clone()
	next.Status = status
	next.Progress = percent
	next.Message = message
	next.CurrentStage = nil
	if stage != nil {
		name := stage.String()
		next.CurrentStage = &name
	}
	next.UpdatedAt = o.now().UTC()

	if err := o.save(ctx, func(ctx context.Context) error {
		return o.store.UpdateProgress(ctx, next)
	}); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	*progress = *next
	o.publish(ctx, progress)
	return nil
}

// fail records cause on the campaign. It writes even when ctx is done so
// a failure is never lost; progress keeps its last value.
func (o *Orchestrator) fail(ctx context.Context, progress *types.CampaignProgress, cause error) {
	if progress == nil || progress.Status.IsTerminal() {
		return
	}
	ctx = context.WithoutCancel(ctx)

	next := progress.Clone()
	next.Status = types.CampaignStatusFailed
	next.Error = cause.Error()
	next.Message = "campaign failed"
	if name := progress.StageName(); name != "" {
		next.Message = name + " stage failed"
	}
	next.UpdatedAt = o.now().UTC()

	if err := o.save(ctx, func(ctx context.Context) error {
		return o.store.UpdateProgress(ctx, next)
	}); err != nil {
		o.logger.Error("failed to record campaign failure",
			zap.String("campaign_id", progress.CampaignID),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		return
	}
	*progress = *next
	o.publish(ctx, progress)
}

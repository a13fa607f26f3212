// Package dispatch hands campaign runs to workers over Pub/Sub.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/spawn-mcp/campaign-studio/pkg/logging"
	"github.com/spawn-mcp/campaign-studio/pkg/types"
)

// messagePublisher is satisfied by *gcp.Client.
type messagePublisher interface {
	PublishMessage(ctx context.Context, topicName string, data []byte, attributes map[string]string) error
}

// PubSub publishes jobs to the request topic.
type PubSub struct {
	client messagePublisher
	topic  string
	now    func() time.Time
}

func NewPubSub(client messagePublisher, topic string) *PubSub {
	return &PubSub{client: client, topic: topic, now: time.Now}
}

func (p *PubSub) Dispatch(ctx context.Context, campaignID string, input types.CampaignInput) error {
	job := types.Job{CampaignID: campaignID, Input: input, EnqueuedAt: p.now().UTC()}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := p.client.PublishMessage(ctx, p.topic, data, map[string]string{"campaign_id": campaignID}); err != nil {
		return fmt.Errorf("dispatch campaign %s: %w", campaignID, err)
	}
	return nil
}

// Runner executes one campaign. *coordinator.Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, campaignID string, input types.CampaignInput) error
}

// subscriber is satisfied by *gcp.Client.
type subscriber interface {
	SubscribeToTopic(ctx context.Context, subscriptionName string, callback func(ctx context.Context, msg *pubsub.Message)) error
}

// Worker receives jobs from a subscription and runs them.
type Worker struct {
	sub          subscriber
	subscription string
	runner       Runner
	logger       *zap.Logger
}

func NewWorker(sub subscriber, subscription string, runner Runner, logger *zap.Logger) *Worker {
	return &Worker{sub: sub, subscription: subscription, runner: runner, logger: logging.OrNop(logger)}
}

// Start blocks receiving jobs until ctx ends.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("worker receiving jobs", zap.String("subscription", w.subscription))
	return w.sub.SubscribeToTopic(ctx, w.subscription, func(ctx context.Context, msg *pubsub.Message) {
		w.handle(ctx, msg.ID, msg.Data)
		msg.Ack()
	})
}

// handle runs the job in data. Every message is acked afterwards: a
// malformed job can never succeed, and run failures are already recorded
// on the campaign, so redelivery would only repeat them.
func (w *Worker) handle(ctx context.Context, messageID string, data []byte) {
	var job types.Job
	if err := json.Unmarshal(data, &job); err != nil || job.CampaignID == "" {
		w.logger.Error("dropping malformed job", zap.String("message_id", messageID), zap.Error(err))
		return
	}

	logger := w.logger.With(zap.String("campaign_id", job.CampaignID), zap.String("message_id", messageID))
	logger.Info("job received", zap.Duration("queued_for", time.Since(job.EnqueuedAt)))

	if err := w.runner.Run(ctx, job.CampaignID, job.Input); err != nil {
		logger.Warn("campaign run ended with error", zap.Error(err))
		return
	}
	logger.Info("job finished")
}

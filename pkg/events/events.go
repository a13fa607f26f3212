// Package events publishes campaign progress snapshots for subscribers
// that prefer push over polling.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spawn-mcp/campaign-studio/pkg/types"
)

// Publisher announces a progress snapshot after it was persisted.
type Publisher interface {
	Publish(ctx context.Context, progress *types.CampaignProgress) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, *types.CampaignProgress) error { return nil }

// messagePublisher is satisfied by *gcp.Client.
type messagePublisher interface {
	PublishMessage(ctx context.Context, topicName string, data []byte, attributes map[string]string) error
}

// PubSub publishes snapshots as JSON to a topic. The campaign id and status
// are repeated as attributes so subscriptions can filter on them.
type PubSub struct {
	client messagePublisher
	topic  string
}

func NewPubSub(client messagePublisher, topic string) *PubSub {
	return &PubSub{client: client, topic: topic}
}

func (p *PubSub) Publish(ctx context.Context, progress *types.CampaignProgress) error {
	data, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}
	attrs := map[string]string{
		"campaign_id": progress.CampaignID,
		"status":      string(progress.Status),
	}
	if err := p.client.PublishMessage(ctx, p.topic, data, attrs); err != nil {
		return fmt.Errorf("publish progress for %s: %w", progress.CampaignID, err)
	}
	return nil
}

package types

import (
	"strings"
	"time"

	"github.com/spawn-mcp/campaign-studio/pkg/errors"
)

// CampaignInput describes the business a campaign is generated for.
type CampaignInput struct {
	URL        string `json:"url" firestore:"url"`
	Address    string `json:"address,omitempty" firestore:"address,omitempty"`
	BrandVoice string `json:"brand_voice,omitempty" firestore:"brand_voice,omitempty"`
}

// Normalize trims surrounding whitespace from every field.
func (in CampaignInput) Normalize() CampaignInput {
	return CampaignInput{
		URL:        strings.TrimSpace(in.URL),
		Address:    strings.TrimSpace(in.Address),
		BrandVoice: strings.TrimSpace(in.BrandVoice),
	}
}

// Validate only requires a non-empty URL.
func (in CampaignInput) Validate() error {
	if strings.TrimSpace(in.URL) == "" {
		return errors.New(errors.ErrMissingRequired, "url is required")
	}
	return nil
}

// CampaignProgress is the polled record of one campaign run.
type CampaignProgress struct {
	CampaignID   string         `json:"campaign_id" firestore:"campaign_id"`
	Status       CampaignStatus `json:"status" firestore:"status"`
	Progress     int            `json:"progress" firestore:"progress"`
	CurrentStage *string        `json:"current_stage" firestore:"current_stage"`
	Message      string         `json:"message" firestore:"message"`
	Error        string         `json:"error,omitempty" firestore:"error,omitempty"`
	CreatedAt    time.Time      `json:"created_at" firestore:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at" firestore:"updated_at"`
}

// Clone returns a deep copy.
func (p *CampaignProgress) Clone() *CampaignProgress {
	if p == nil {
		return nil
	}
	c := *p
	if p.CurrentStage != nil {
		s := *p.CurrentStage
		c.CurrentStage = &s
	}
	return &c
}

// StageName returns the current stage name, or "" when none.
func (p *CampaignProgress) StageName() string {
	if p.CurrentStage == nil {
		return ""
	}
	return *p.CurrentStage
}

// CampaignView joins a campaign's progress with whatever stage results exist.
type CampaignView struct {
	Progress  *CampaignProgress `json:"progress"`
	Research  *ResearchResult   `json:"research"`
	Analytics *AnalyticsResult  `json:"analytics"`
	Content   *ContentResult    `json:"content"`
}

// Job is the unit of work handed to a worker when runs are dispatched over a queue.
type Job struct {
	CampaignID string        `json:"campaign_id"`
	Input      CampaignInput `json:"input"`
	EnqueuedAt time.Time     `json:"enqueued_at"`
}

package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// StageMeta is carried by every stage result.
type StageMeta struct {
	CampaignID string    `json:"campaign_id"`
	Complete   bool      `json:"complete"`
	Attempts   int       `json:"attempts"`
	Warnings   []string  `json:"warnings,omitempty"`
	Learning   string    `json:"learning,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Degrade records a warning and marks the result partial.
func (m *StageMeta) Degrade(warning string) {
	m.Complete = false
	m.Warnings = append(m.Warnings, warning)
}

// Warn records a warning without affecting completeness.
func (m *StageMeta) Warn(warning string) {
	m.Warnings = append(m.Warnings, warning)
}

// StageResult is implemented by ResearchResult, AnalyticsResult and ContentResult.
type StageResult interface {
	Kind() StageKind
	Metadata() *StageMeta
}

// BusinessContext is what research learned about the business itself.
type BusinessContext struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Location    string   `json:"location,omitempty"`
	Audience    string   `json:"audience,omitempty"`
	Tone        string   `json:"tone,omitempty"`
	Offerings   []string `json:"offerings,omitempty"`
	Website     string   `json:"website"`
}

// Competitor is a nearby business in the same category.
type Competitor struct {
	Name    string  `json:"name"`
	Address string  `json:"address,omitempty"`
	Rating  float32 `json:"rating,omitempty"`
	Reviews int     `json:"reviews,omitempty"`
}

type Insight struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// ResearchResult is the output of stage 1.
type ResearchResult struct {
	Meta        StageMeta       `json:"meta"`
	Business    BusinessContext `json:"business"`
	Competitors []Competitor    `json:"competitors"`
	Insights    []Insight       `json:"insights"`
}

func (r *ResearchResult) Kind() StageKind      { return StageKindResearch }
func (r *ResearchResult) Metadata() *StageMeta { return &r.Meta }

type Sentiment struct {
	Score      float64  `json:"score"`
	Label      string   `json:"label"`
	Highlights []string `json:"highlights,omitempty"`
}

type Performance struct {
	BestDays     []string `json:"best_days,omitempty"`
	BestTimes    []string `json:"best_times,omitempty"`
	PostsPerWeek int      `json:"posts_per_week"`
	Notes        string   `json:"notes,omitempty"`
}

// Trend is relative search interest for a keyword, 0-100.
type Trend struct {
	Keyword  string `json:"keyword"`
	Interest int    `json:"interest"`
}

// DayPlan is the strategy for one calendar day.
type DayPlan struct {
	Day      int    `json:"day"`
	Theme    string `json:"theme"`
	Platform string `json:"platform"`
	Goal     string `json:"goal"`
}

// AnalyticsResult is the output of stage 2.
type AnalyticsResult struct {
	Meta StageMeta `json:"meta"`
	// Business is carried forward from research for the creative stage.
	Business    BusinessContext `json:"business"`
	Sentiment   Sentiment       `json:"sentiment"`
	Performance Performance     `json:"performance"`
	Trends      []Trend         `json:"trends"`
	Plan        []DayPlan       `json:"plan"`
}

func (r *AnalyticsResult) Kind() StageKind      { return StageKindAnalytics }
func (r *AnalyticsResult) Metadata() *StageMeta { return &r.Meta }

// DayContent is one generated calendar entry.
type DayContent struct {
	Day              int      `json:"day"`
	Date             string   `json:"date"`
	Platform         string   `json:"platform"`
	Theme            string   `json:"theme"`
	Caption          string   `json:"caption"`
	Hashtags         []string `json:"hashtags,omitempty"`
	ImagePrompt      string   `json:"image_prompt,omitempty"`
	VideoPrompt      string   `json:"video_prompt,omitempty"`
	ImageURLs        []string `json:"image_urls,omitempty"`
	VideoURLs        []string `json:"video_urls,omitempty"`
	// Placeholder marks a caption built from the template.
	Placeholder      bool     `json:"placeholder,omitempty"`
	// MediaPlaceholder marks a day with at least one placeholder image or video URL.
	MediaPlaceholder bool     `json:"media_placeholder,omitempty"`
}

// ContentResult is the output of stage 3.
type ContentResult struct {
	Meta StageMeta    `json:"meta"`
	Days []DayContent `json:"days"`
}

func (r *ContentResult) Kind() StageKind      { return StageKindContent }
func (r *ContentResult) Metadata() *StageMeta { return &r.Meta }

// NewStageResult allocates the empty result for kind.
func NewStageResult(kind StageKind) (StageResult, error) {
	switch kind {
	case StageKindResearch:
		return &ResearchResult{}, nil
	case StageKindAnalytics:
		return &AnalyticsResult{}, nil
	case StageKindContent:
		return &ContentResult{}, nil
	default:
		return nil, fmt.Errorf("unknown stage kind %q", kind)
	}
}

// DecodeStageResult unmarshals a JSON payload into the result type for kind.
func DecodeStageResult(kind StageKind, data []byte) (StageResult, error) {
	result, err := NewStageResult(kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, result); err != nil {
		return nil, fmt.Errorf("failed to decode %s result: %w", kind, err)
	}
	return result, nil
}

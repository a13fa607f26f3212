package agents

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spawn-mcp/campaign-studio/pkg/clients/llm"
	"github.com/spawn-mcp/campaign-studio/pkg/retry"
	"github.com/spawn-mcp/campaign-studio/pkg/timeout"
	"github.com/spawn-mcp/campaign-studio/pkg/types"
)

const strategySystem = `You are a social media strategist. Respond with a single JSON object and nothing else.`

const strategyPrompt = `Business: %s (%s)
Description: %s
Audience: %s
Tone: %s
Location: %s

Market insights:
%s

Search interest (0-100):
%s

Plan a %d-day content calendar. Return JSON:
{"sentiment": {"score": 0.0, "label": "positive|neutral|negative", "highlights": [""]},
 "performance": {"best_days": [""], "best_times": ["HH:MM"], "posts_per_week": 7, "notes": ""},
 "plan": [{"day": 1, "theme": "", "platform": "instagram|facebook|tiktok", "goal": ""}],
 "learning": "one sentence on the strategy"}`

type strategyResponse struct {
	Sentiment   types.Sentiment   `json:"sentiment"`
	Performance types.Performance `json:"performance"`
	Plan        []types.DayPlan   `json:"plan"`
	Learning    string            `json:"learning"`
}

// Strategy is the analytics and content-calendar stage.
type Strategy struct {
	deps Deps
}

func NewStrategy(deps Deps) (*Strategy, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	return &Strategy{deps: deps.withDefaults()}, nil
}

// Run plans the calendar from the research result. The model call is
// required; trends are optional and a malformed plan is completed from the
// template.
func (s *Strategy) Run(ctx context.Context, campaignID string, input types.CampaignInput, research *types.ResearchResult) (*types.AnalyticsResult, error) {
	logger := s.deps.Logger.With(zap.String("campaign_id", campaignID), zap.String("stage", types.StageStrategy.String()))
	if research == nil {
		return nil, stageFatal(fmt.Errorf("research result missing"), "strategy: cannot plan without research")
	}

	result := &types.AnalyticsResult{
		Meta: types.StageMeta{
			CampaignID: campaignID,
			Complete:   true,
			CreatedAt:  s.deps.Now().UTC(),
		},
		Business: research.Business,
		Trends:   []types.Trend{},
	}
	if !research.Meta.Complete {
		result.Meta.Warn("planned from partial research")
	}

	if s.deps.Trends != nil {
		keywords := trendKeywords(research.Business)
		trends, err := retry.ExecuteWithRetry(ctx, func(ctx context.Context) ([]types.Trend, error) {
			return s.deps.Trends.Interest(ctx, keywords)
		}, s.deps.policy(timeout.OpTrends, logger))
		if err != nil {
			logger.Warn("trends lookup failed", zap.Error(err))
			result.Meta.Warn("trends unavailable: " + err.Error())
		} else if trends != nil {
			result.Trends = trends
		}
	}

	b := research.Business
	text, attempts, err := s.deps.complete(ctx, llm.Request{
		Tag:    "strategy",
		System: strategySystem,
		Prompt: fmt.Sprintf(strategyPrompt, b.Name, b.Category, b.Description, b.Audience, b.Tone,
			orNone(b.Location), insightLines(research.Insights), trendLines(result.Trends), PlanDays),
	}, logger)
	result.Meta.Attempts = attempts
	if err != nil {
		return nil, stageFatal(err, "strategy: no plan after %d attempt(s)", attempts)
	}

	var resp strategyResponse
	if err := decodeResponse(text, &resp); err != nil {
		logger.Warn("strategy response unusable, using template", zap.Error(err))
		result.Meta.Degrade("plan fell back to template: " + err.Error())
		result.Sentiment = templateSentiment()
		result.Performance = templatePerformance()
		result.Plan, _ = completePlan(nil)
		result.Meta.Learning = "Default weekly rhythm used; the model response could not be read."
		return result, nil
	}

	plan, filled := completePlan(resp.Plan)
	if filled > 0 {
		result.Meta.Degrade(fmt.Sprintf("%d of %d plan days filled from template", filled, PlanDays))
	}
	result.Plan = plan
	result.Sentiment = resp.Sentiment
	if result.Sentiment.Label == "" {
		result.Sentiment = templateSentiment()
	}
	result.Performance = resp.Performance
	if result.Performance.PostsPerWeek <= 0 {
		result.Performance.PostsPerWeek = PlanDays
	}
	result.Meta.Learning = resp.Learning

	logger.Info("strategy complete",
		zap.Bool("complete", result.Meta.Complete),
		zap.Int("attempts", attempts),
		zap.Int("trends", len(result.Trends)),
	)
	return result, nil
}

func trendKeywords(b types.BusinessContext) []string {
	keywords := []string{b.Category}
	keywords = append(keywords, b.Offerings...)
	if b.Location != "" && b.Category != "" {
		city := strings.TrimSpace(lastField(b.Location))
		if city != "" {
			keywords = append(keywords, b.Category+" "+city)
		}
	}
	return keywords
}

// lastField returns the locality part of "1 Main St, Springfield, IL".
func lastField(addr string) string {
	parts := strings.Split(addr, ",")
	if len(parts) >= 2 {
		return parts[len(parts)-2]
	}
	return ""
}

func insightLines(in []types.Insight) string {
	if len(in) == 0 {
		return "none"
	}
	var lines []string
	for _, i := range in {
		lines = append(lines, "- "+i.Title+": "+i.Detail)
	}
	return strings.Join(lines, "\n")
}

func trendLines(ts []types.Trend) string {
	if len(ts) == 0 {
		return "unavailable"
	}
	var lines []string
	for _, t := range ts {
		lines = append(lines, fmt.Sprintf("- %s: %d", t.Keyword, t.Interest))
	}
	return strings.Join(lines, "\n")
}

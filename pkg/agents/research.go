package agents

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spawn-mcp/campaign-studio/pkg/clients/browser"
	"github.com/spawn-mcp/campaign-studio/pkg/clients/llm"
	"github.com/spawn-mcp/campaign-studio/pkg/clients/location"
	"github.com/spawn-mcp/campaign-studio/pkg/retry"
	"github.com/spawn-mcp/campaign-studio/pkg/timeout"
	"github.com/spawn-mcp/campaign-studio/pkg/types"
)

const researchSystem = `You are a business analyst preparing a social media campaign.
Respond with a single JSON object and nothing else.`

const researchPrompt = `Website: %s
Address: %s
Brand voice hint: %s

Website observations:
%s

Nearby competitors:
%s

Return JSON:
{"business": {"name": "", "description": "", "category": "", "audience": "", "tone": "", "offerings": [""]},
 "insights": [{"title": "", "detail": ""}],
 "learning": "one sentence on what matters most for this business"}`

// maxObservations bounds the crawled text sent to the model.
const maxObservations = 6000

type researchResponse struct {
	Business types.BusinessContext `json:"business"`
	Insights []types.Insight       `json:"insights"`
	Learning string                `json:"learning"`
}

// Research is the business-analyst stage.
type Research struct {
	deps Deps
}

func NewResearch(deps Deps) (*Research, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	return &Research{deps: deps.withDefaults()}, nil
}

// Run crawls the website and looks up the location concurrently, then
// synthesizes a business profile. The crawl is required; the lookup and
// synthesis degrade to warnings and templates.
func (r *Research) Run(ctx context.Context, campaignID string, input types.CampaignInput) (*types.ResearchResult, error) {
	logger := r.deps.Logger.With(zap.String("campaign_id", campaignID), zap.String("stage", types.StageResearch.String()))

	var (
		crawl    *retry.Outcome[browser.Message]
		crawlErr error
		place    *location.Result
		placeErr error
	)

	// Goroutines report through the captured variables and always return
	// nil, so one failure never cancels the other.
	var g errgroup.Group
	g.Go(func() error {
		task := browser.Task{
			URL:          input.URL,
			Instructions: "Visit the website and describe the business: what it sells, who it serves, its tone and any prices or hours.",
		}
		crawl, crawlErr = retry.ExecuteWithSalvage(ctx, func(ctx context.Context, acc *retry.Accumulator[browser.Message]) error {
			return r.deps.Browser.Run(ctx, task, acc)
		}, r.deps.policy(timeout.OpBrowser, logger))
		return nil
	})
	q := location.Query{BusinessName: hostName(input.URL), Address: input.Address}
	if r.deps.Location != nil && (q.BusinessName != "" || q.Address != "") {
		g.Go(func() error {
			place, placeErr = retry.ExecuteWithRetry(ctx, func(ctx context.Context) (*location.Result, error) {
				return r.deps.Location.Lookup(ctx, q)
			}, r.deps.policy(timeout.OpLocation, logger))
			return nil
		})
	}
	_ = g.Wait()

	if crawlErr != nil {
		return nil, stageFatal(crawlErr, "research: website %s yielded no data", input.URL)
	}
	if len(crawl.Items) == 0 {
		return nil, stageFatal(fmt.Errorf("browser returned no content"), "research: website %s yielded no data", input.URL)
	}

	result := &types.ResearchResult{
		Meta: types.StageMeta{
			CampaignID: campaignID,
			Complete:   true,
			Attempts:   crawl.Attempts,
			CreatedAt:  r.deps.Now().UTC(),
		},
	}
	if crawl.Partial() {
		result.Meta.Degrade(fmt.Sprintf("website crawl incomplete after %d attempts: %v", crawl.Attempts, crawl.Err))
	}
	if placeErr != nil {
		logger.Warn("location lookup failed", zap.Error(placeErr))
		result.Meta.Warn("location lookup failed: " + placeErr.Error())
		place = nil
	}
	if place != nil {
		result.Competitors = place.Competitors
	}
	if result.Competitors == nil {
		result.Competitors = []types.Competitor{}
	}

	text, _, err := r.deps.complete(ctx, llm.Request{
		Tag:    "research",
		System: researchSystem,
		Prompt: fmt.Sprintf(researchPrompt, input.URL, orNone(input.Address), orNone(input.BrandVoice),
			observations(crawl.Items), competitorLines(result.Competitors)),
	}, logger)

	var resp researchResponse
	if err == nil {
		err = decodeResponse(text, &resp)
	}
	if err != nil || strings.TrimSpace(resp.Business.Name) == "" {
		if err == nil {
			err = fmt.Errorf("response has no business name")
		}
		logger.Warn("research synthesis unavailable, using template", zap.Error(err))
		result.Meta.Degrade("business synthesis fell back to template: " + err.Error())
		result.Business = templateBusiness(input, crawl.Items, place)
		result.Insights = templateInsights(result.Business, result.Competitors)
		result.Meta.Learning = fmt.Sprintf("Profile assembled from %d website observations without model synthesis.", len(crawl.Items))
		return result, nil
	}

	fallback := templateBusiness(input, crawl.Items, place)
	result.Business = mergeBusiness(resp.Business, fallback)
	result.Insights = resp.Insights
	if len(result.Insights) == 0 {
		result.Insights = templateInsights(result.Business, result.Competitors)
	}
	result.Meta.Learning = resp.Learning

	logger.Info("research complete",
		zap.Bool("complete", result.Meta.Complete),
		zap.Int("observations", len(crawl.Items)),
		zap.Int("competitors", len(result.Competitors)),
	)
	return result, nil
}

// mergeBusiness fills fields the model left empty from the template.
func mergeBusiness(b, fallback types.BusinessContext) types.BusinessContext {
	b.Website = fallback.Website
	if b.Description == "" {
		b.Description = fallback.Description
	}
	if b.Category == "" {
		b.Category = fallback.Category
	}
	if b.Location == "" {
		b.Location = fallback.Location
	}
	if b.Audience == "" {
		b.Audience = fallback.Audience
	}
	if b.Tone == "" {
		b.Tone = fallback.Tone
	}
	return b
}

func observations(msgs []browser.Message) string {
	var sb strings.Builder
	seen := make(map[string]bool)
	for _, m := range msgs {
		c := strings.TrimSpace(m.Content)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		sb.WriteString("- ")
		sb.WriteString(c)
		sb.WriteByte('\n')
		if sb.Len() > maxObservations {
			break
		}
	}
	return truncate(sb.String(), maxObservations)
}

func competitorLines(cs []types.Competitor) string {
	if len(cs) == 0 {
		return "none found"
	}
	var lines []string
	for _, c := range cs {
		lines = append(lines, fmt.Sprintf("- %s (%.1f stars, %d reviews)", c.Name, c.Rating, c.Reviews))
	}
	return strings.Join(lines, "\n")
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "not provided"
	}
	return s
}

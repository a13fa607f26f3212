package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spawn-mcp/campaign-studio/pkg/clients/llm"
	"github.com/spawn-mcp/campaign-studio/pkg/clients/media"
	"github.com/spawn-mcp/campaign-studio/pkg/retry"
	"github.com/spawn-mcp/campaign-studio/pkg/timeout"
	"github.com/spawn-mcp/campaign-studio/pkg/types"
)

const creativeSystem = `You write social media posts for small businesses. Respond with a single JSON object and nothing else.`

const creativePrompt = `Business: %s (%s)
Description: %s
Audience: %s
Brand voice: %s

Day %d of %d on %s. Theme: %s. Goal: %s.

Return JSON:
{"caption": "post text under 600 characters", "hashtags": ["#tag"],
 "image_prompt": "one-sentence photo description", "video_prompt": "one-sentence 8 second vertical video description"}`

type dayResponse struct {
	Caption     string   `json:"caption"`
	Hashtags    []string `json:"hashtags"`
	ImagePrompt string   `json:"image_prompt"`
	VideoPrompt string   `json:"video_prompt"`
}

// Creative is the media-producer stage.
type Creative struct {
	deps Deps
}

func NewCreative(deps Deps) (*Creative, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	return &Creative{deps: deps.withDefaults()}, nil
}

// Run writes one post per plan day and attaches media. Captions are
// generated under the salvage policy: each attempt only writes days the
// earlier attempts did not, and days still missing when attempts run out
// come from the template.
func (c *Creative) Run(ctx context.Context, campaignID string, input types.CampaignInput, analytics *types.AnalyticsResult) (*types.ContentResult, error) {
	logger := c.deps.Logger.With(zap.String("campaign_id", campaignID), zap.String("stage", types.StageCreative.String()))
	if analytics == nil {
		return nil, stageFatal(fmt.Errorf("analytics result missing"), "creative: cannot write without a plan")
	}

	business := analytics.Business
	if business.Tone == "" {
		business.Tone = input.BrandVoice
	}
	if business.Website == "" {
		business.Website = input.URL
	}
	plan, _ := completePlan(analytics.Plan)

	result := &types.ContentResult{
		Meta: types.StageMeta{
			CampaignID: campaignID,
			Complete:   true,
			CreatedAt:  c.deps.Now().UTC(),
		},
	}
	var warnMu sync.Mutex
	warn := func(degrade bool, msg string) {
		warnMu.Lock()
		defer warnMu.Unlock()
		if degrade {
			result.Meta.Degrade(msg)
		} else {
			result.Meta.Warn(msg)
		}
	}

	policy := c.deps.policy(timeout.OpLLM, logger)
	// Each caption call carries its own timeout instead.
	policy.AttemptTimeout = 0

	outcome, err := retry.ExecuteWithSalvage(ctx, func(ctx context.Context, acc *retry.Accumulator[types.DayContent]) error {
		have := make(map[int]bool, PlanDays)
		for _, d := range acc.Items() {
			have[d.Day] = true
		}
		for _, p := range plan {
			if have[p.Day] {
				continue
			}
			day, err := c.writeDay(ctx, business, p, warn)
			if err != nil {
				return err
			}
			acc.Add(day)
		}
		return nil
	}, policy)
	if err != nil {
		return nil, stageFatal(err, "creative: no content produced")
	}
	result.Meta.Attempts = outcome.Attempts

	days := outcome.Items
	if outcome.Partial() {
		have := make(map[int]bool, len(days))
		for _, d := range days {
			have[d.Day] = true
		}
		missing := 0
		for _, p := range plan {
			if !have[p.Day] {
				days = append(days, templateDayContent(business, p))
				missing++
			}
		}
		warn(true, fmt.Sprintf("caption generation incomplete after %d attempts (%v); %d day(s) from template", outcome.Attempts, outcome.Err, missing))
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Day < days[j].Day })

	start := c.deps.Now().UTC()
	for i := range days {
		days[i].Date = start.AddDate(0, 0, days[i].Day-1).Format("2006-01-02")
	}

	images, videos := c.attachMedia(ctx, campaignID, days, logger, warn)

	result.Days = days
	result.Meta.Learning = fmt.Sprintf("%d-day calendar with %d image(s) and %d video(s); %s tone.",
		len(days), images, videos, strings.ToLower(orNone(business.Tone)))

	logger.Info("creative complete",
		zap.Bool("complete", result.Meta.Complete),
		zap.Int("attempts", outcome.Attempts),
		zap.Int("images", images),
		zap.Int("videos", videos),
	)
	return result, nil
}

func (c *Creative) writeDay(ctx context.Context, b types.BusinessContext, p types.DayPlan, warn func(bool, string)) (types.DayContent, error) {
	var text string
	err := c.deps.Timeouts.Run(ctx, timeout.OpLLM, func(ctx context.Context) error {
		var err error
		text, err = c.deps.LLM.Complete(ctx, llm.Request{
			Tag:    fmt.Sprintf("creative.day%d", p.Day),
			System: creativeSystem,
			Prompt: fmt.Sprintf(creativePrompt, b.Name, b.Category, b.Description, b.Audience, orNone(b.Tone),
				p.Day, PlanDays, p.Platform, p.Theme, p.Goal),
		})
		return err
	})
	if err != nil {
		return types.DayContent{}, err
	}

	var resp dayResponse
	if err := decodeResponse(text, &resp); err != nil || strings.TrimSpace(resp.Caption) == "" {
		if err == nil {
			err = fmt.Errorf("empty caption")
		}
		warn(true, fmt.Sprintf("day %d caption from template: %v", p.Day, err))
		return templateDayContent(b, p), nil
	}

	fallback := templateDayContent(b, p)
	day := types.DayContent{
		Day:         p.Day,
		Platform:    p.Platform,
		Theme:       p.Theme,
		Caption:     resp.Caption,
		Hashtags:    resp.Hashtags,
		ImagePrompt: resp.ImagePrompt,
		VideoPrompt: resp.VideoPrompt,
	}
	if day.ImagePrompt == "" {
		day.ImagePrompt = fallback.ImagePrompt
	}
	if day.VideoPrompt == "" {
		day.VideoPrompt = fallback.VideoPrompt
	}
	return day, nil
}

// attachMedia fills image and video URLs for every day within the caps.
// A generation that fails after retries leaves a placeholder URL and degrades
// the result; it never fails the stage.
func (c *Creative) attachMedia(ctx context.Context, campaignID string, days []types.DayContent, logger *zap.Logger, warn func(bool, string)) (images, videos int) {
	caps := c.deps.Caps
	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	g.SetLimit(caps.Concurrency)

	for i := range days {
		day := &days[i]
		g.Go(func() error {
			for n := 0; n < caps.ImagesPerDay; n++ {
				var placeholder bool
				u, err := retry.ExecuteWithRetry(ctx, func(ctx context.Context) (string, error) {
					u, ph, err := c.deps.Media.ImageURL(ctx, campaignID, day.Day, day.ImagePrompt)
					placeholder = ph
					return u, err
				}, c.deps.policy(timeout.OpImage, logger))
				if err != nil {
					logger.Warn("image generation failed", zap.Int("day", day.Day), zap.Error(err))
					warn(true, fmt.Sprintf("day %d image unavailable, using placeholder: %v", day.Day, err))
					day.ImageURLs = append(day.ImageURLs, media.PlaceholderImageURL(day.Day, day.ImagePrompt))
					day.MediaPlaceholder = true
					break
				}
				day.ImageURLs = append(day.ImageURLs, u)
				if placeholder {
					day.MediaPlaceholder = true
					continue
				}
				mu.Lock()
				images++
				mu.Unlock()
			}
			for n := 0; n < caps.VideosPerDay; n++ {
				var placeholder bool
				u, err := retry.ExecuteWithRetry(ctx, func(ctx context.Context) (string, error) {
					u, ph, err := c.deps.Media.VideoURL(ctx, campaignID, day.Day, day.VideoPrompt)
					placeholder = ph
					return u, err
				}, c.deps.policy(timeout.OpVideo, logger))
				if err != nil {
					logger.Warn("video generation failed", zap.Int("day", day.Day), zap.Error(err))
					warn(true, fmt.Sprintf("day %d video unavailable, using placeholder: %v", day.Day, err))
					day.VideoURLs = append(day.VideoURLs, media.PlaceholderVideoURL(day.Day, day.VideoPrompt))
					day.MediaPlaceholder = true
					break
				}
				day.VideoURLs = append(day.VideoURLs, u)
				if placeholder {
					day.MediaPlaceholder = true
					continue
				}
				mu.Lock()
				videos++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return images, videos
}

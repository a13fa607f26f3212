package agents

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spawn-mcp/campaign-studio/pkg/clients/browser"
	"github.com/spawn-mcp/campaign-studio/pkg/clients/location"
	"github.com/spawn-mcp/campaign-studio/pkg/types"
)

var (
	planThemes = []string{
		"Behind the scenes",
		"Product spotlight",
		"Customer story",
		"Tips and how-to",
		"Community spotlight",
		"Special offer",
		"Weekend highlight",
	}
	planPlatforms = []string{"instagram", "facebook", "instagram", "tiktok", "instagram", "facebook", "tiktok"}
	planGoals     = []string{"awareness", "consideration", "trust", "engagement", "community", "conversion", "engagement"}
)

// hostName turns https://www.blue-bottle.com/menu into "Blue Bottle".
func hostName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		u, err = url.Parse("https://" + raw)
		if err != nil {
			return raw
		}
	}
	host := strings.TrimPrefix(u.Hostname(), "www.")
	if i := strings.IndexByte(host, '.'); i > 0 {
		host = host[:i]
	}
	words := strings.FieldsFunc(host, func(r rune) bool { return r == '-' || r == '_' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	if len(words) == 0 {
		return raw
	}
	return strings.Join(words, " ")
}

// templateBusiness builds a business context from crawled page messages and
// the maps lookup without an LLM.
func templateBusiness(input types.CampaignInput, msgs []browser.Message, loc *location.Result) types.BusinessContext {
	b := types.BusinessContext{
		Name:     hostName(input.URL),
		Website:  input.URL,
		Location: input.Address,
		Tone:     input.BrandVoice,
		Category: "local business",
	}

	for _, m := range msgs {
		switch {
		case strings.HasPrefix(m.Content, "Title: "):
			if title := strings.TrimSpace(strings.TrimPrefix(m.Content, "Title: ")); title != "" {
				b.Name = strings.TrimSpace(strings.SplitN(title, "|", 2)[0])
			}
		case strings.HasPrefix(m.Content, "Description: "):
			b.Description = strings.TrimPrefix(m.Content, "Description: ")
		case b.Description == "" && m.Type == browser.MessageResult:
			b.Description = truncate(m.Content, 280)
		}
	}

	if loc != nil && loc.Place != nil {
		if b.Location == "" {
			b.Location = loc.Place.Address
		}
		if loc.Place.Category != "" {
			b.Category = strings.ReplaceAll(loc.Place.Category, "_", " ")
		}
	}
	if b.Tone == "" {
		b.Tone = "friendly"
	}
	if b.Audience == "" {
		b.Audience = "local customers"
	}
	return b
}

func templateInsights(b types.BusinessContext, competitors []types.Competitor) []types.Insight {
	insights := []types.Insight{{
		Title:  "Show what makes " + b.Name + " different",
		Detail: "Lead with the offerings and story visible on the website.",
	}}
	if len(competitors) > 0 {
		top := competitors[0]
		insights = append(insights, types.Insight{
			Title:  fmt.Sprintf("%d nearby competitors", len(competitors)),
			Detail: fmt.Sprintf("%s is the best-rated nearby alternative (%.1f stars); highlight reviews and service.", top.Name, top.Rating),
		})
	}
	return insights
}

func templatePlanDay(day int) types.DayPlan {
	i := (day - 1) % len(planThemes)
	return types.DayPlan{Day: day, Theme: planThemes[i], Platform: planPlatforms[i], Goal: planGoals[i]}
}

func templateSentiment() types.Sentiment {
	return types.Sentiment{Score: 0.5, Label: "neutral"}
}

func templatePerformance() types.Performance {
	return types.Performance{
		BestDays:     []string{"Tuesday", "Thursday", "Saturday"},
		BestTimes:    []string{"09:00", "12:00", "18:00"},
		PostsPerWeek: PlanDays,
	}
}

// completePlan returns a PlanDays-long plan ordered by day, keeping valid
// days from plan and filling the rest from the template. filled reports how
// many days came from the template.
func completePlan(plan []types.DayPlan) (out []types.DayPlan, filled int) {
	byDay := make(map[int]types.DayPlan, len(plan))
	for _, p := range plan {
		if p.Day >= 1 && p.Day <= PlanDays && strings.TrimSpace(p.Theme) != "" {
			if _, dup := byDay[p.Day]; !dup {
				byDay[p.Day] = p
			}
		}
	}
	out = make([]types.DayPlan, 0, PlanDays)
	for day := 1; day <= PlanDays; day++ {
		p, ok := byDay[day]
		if !ok {
			p = templatePlanDay(day)
			filled++
		}
		if p.Platform == "" {
			p.Platform = templatePlanDay(day).Platform
		}
		out = append(out, p)
	}
	return out, filled
}

func templateDayContent(b types.BusinessContext, plan types.DayPlan) types.DayContent {
	name := b.Name
	if name == "" {
		name = hostName(b.Website)
	}
	tag := strings.ToLower(strings.Join(strings.Fields(name), ""))
	return types.DayContent{
		Day:         plan.Day,
		Platform:    plan.Platform,
		Theme:       plan.Theme,
		Caption:     fmt.Sprintf("%s at %s. Come see us this week!", plan.Theme, name),
		Hashtags:    []string{"#" + tag, "#shoplocal"},
		ImagePrompt: fmt.Sprintf("%s, %s, bright natural light, social media photo", name, strings.ToLower(plan.Theme)),
		VideoPrompt: fmt.Sprintf("Short vertical video: %s at %s", strings.ToLower(plan.Theme), name),
		Placeholder: true,
	}
}

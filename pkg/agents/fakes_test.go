package agents

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spawn-mcp/campaign-studio/pkg/clients/browser"
	"github.com/spawn-mcp/campaign-studio/pkg/clients/llm"
	"github.com/spawn-mcp/campaign-studio/pkg/errors"
	"github.com/spawn-mcp/campaign-studio/pkg/retry"
	"github.com/spawn-mcp/campaign-studio/pkg/types"
)

var fixedNow = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, Strategy: &retry.LinearBackoff{Delay: time.Millisecond}}
}

func transient(what string) error {
	return errors.New(errors.ErrServiceUnavailable, what+": upstream 503")
}

// MockLLM answers by request tag. Calls are counted per tag.
type MockLLM struct {
	mu           sync.Mutex
	calls        map[string]int
	CompleteFunc func(tag string, call int) (string, error)
}

func (m *MockLLM) Complete(_ context.Context, req llm.Request) (string, error) {
	m.mu.Lock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[req.Tag]++
	n := m.calls[req.Tag]
	m.mu.Unlock()
	return m.CompleteFunc(req.Tag, n)
}

func (m *MockLLM) Calls(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for tag, n := range m.calls {
		if strings.HasPrefix(tag, prefix) {
			total += n
		}
	}
	return total
}

const researchJSON = `{"business": {"name": "Blue Bottle Coffee", "description": "Specialty coffee roaster", "category": "cafe",
 "audience": "commuters", "tone": "warm", "offerings": ["espresso", "pour over"]},
 "insights": [{"title": "Morning rush", "detail": "Most visits before 10am"}],
 "learning": "Freshness is the hook."}`

func strategyJSON(days int) string {
	var plan []string
	for d := 1; d <= days; d++ {
		plan = append(plan, fmt.Sprintf(`{"day": %d, "theme": "Theme %d", "platform": "instagram", "goal": "awareness"}`, d, d))
	}
	return `{"sentiment": {"score": 0.8, "label": "positive"},
 "performance": {"best_days": ["Monday"], "best_times": ["08:00"], "posts_per_week": 7},
 "plan": [` + strings.Join(plan, ",") + `], "learning": "Mornings win."}`
}

func dayJSON(tag string) string {
	return fmt.Sprintf(`{"caption": "caption for %s", "hashtags": ["#coffee"], "image_prompt": "latte", "video_prompt": "pour"}`, tag)
}

// happyLLM answers every stage with valid JSON.
func happyLLM() *MockLLM {
	return &MockLLM{CompleteFunc: func(tag string, _ int) (string, error) {
		switch {
		case tag == "research":
			return researchJSON, nil
		case tag == "strategy":
			return "```json\n" + strategyJSON(PlanDays) + "\n```", nil
		default:
			return dayJSON(tag), nil
		}
	}}
}

func crawlingBrowser(msgs ...string) browser.Agent {
	return browser.AgentFunc(func(_ context.Context, _ browser.Task, acc *retry.Accumulator[browser.Message]) error {
		for _, m := range msgs {
			acc.Add(browser.Message{Type: browser.MessageContent, Content: m})
		}
		return nil
	})
}

func testDeps(t *testing.T, model llm.Client) Deps {
	t.Helper()
	return Deps{
		LLM:     model,
		Browser: crawlingBrowser("Title: Blue Bottle | Home", "Description: Coffee roasters"),
		Retry:   fastRetry(),
		Caps:    Caps{ImagesPerDay: 1, VideosPerDay: 1, Concurrency: 2},
		Now:     func() time.Time { return fixedNow },
	}
}

func testInput() types.CampaignInput {
	return types.CampaignInput{URL: "https://bluebottlecoffee.com", Address: "1 Ferry Building, San Francisco, CA", BrandVoice: "warm"}
}

func testAnalytics() *types.AnalyticsResult {
	plan, _ := completePlan(nil)
	return &types.AnalyticsResult{
		Meta:     types.StageMeta{Complete: true},
		Business: types.BusinessContext{Name: "Blue Bottle", Category: "cafe", Website: "https://bluebottlecoffee.com"},
		Plan:     plan,
	}
}

package agents

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spawn-mcp/campaign-studio/pkg/clients/llm"
	"github.com/spawn-mcp/campaign-studio/pkg/clients/media"
	"github.com/spawn-mcp/campaign-studio/pkg/errors"
	"github.com/spawn-mcp/campaign-studio/pkg/timeout"
)

type MockGenerator struct {
	ImageFunc func(ctx context.Context, prompt string) (*media.Asset, error)
	VideoFunc func(ctx context.Context, prompt string) (*media.Asset, error)
}

func (m *MockGenerator) GenerateImage(ctx context.Context, prompt string) (*media.Asset, error) {
	return m.ImageFunc(ctx, prompt)
}

func (m *MockGenerator) GenerateVideo(ctx context.Context, prompt string) (*media.Asset, error) {
	return m.VideoFunc(ctx, prompt)
}

func dayNumber(tag string) int {
	n := 0
	for _, c := range strings.TrimPrefix(tag, "creative.day") {
		n = n*10 + int(c-'0')
	}
	return n
}

func TestCreativeRun(t *testing.T) {
	model := happyLLM()
	c, err := NewCreative(testDeps(t, model))
	require.NoError(t, err)

	res, err := c.Run(context.Background(), "c1", testInput(), testAnalytics())
	require.NoError(t, err)

	assert.True(t, res.Meta.Complete)
	assert.Equal(t, 1, res.Meta.Attempts)
	require.Len(t, res.Days, PlanDays)
	for i, d := range res.Days {
		assert.Equal(t, i+1, d.Day)
		assert.False(t, d.Placeholder)
		assert.True(t, d.MediaPlaceholder, "generation is disabled")
		assert.Len(t, d.ImageURLs, 1)
		assert.Len(t, d.VideoURLs, 1)
	}
	assert.Equal(t, "2025-06-02", res.Days[0].Date)
	assert.Equal(t, "2025-06-08", res.Days[6].Date)
	assert.Equal(t, "caption for creative.day3", res.Days[2].Caption)
	assert.Equal(t, PlanDays, model.Calls("creative"))
}

func TestCreativeAccumulatesDaysAcrossAttempts(t *testing.T) {
	failed := false
	model := &MockLLM{CompleteFunc: func(tag string, _ int) (string, error) {
		if dayNumber(tag) == 4 && !failed {
			failed = true
			return "", transient("llm")
		}
		return dayJSON(tag), nil
	}}
	c, err := NewCreative(testDeps(t, model))
	require.NoError(t, err)

	res, err := c.Run(context.Background(), "c1", testInput(), testAnalytics())
	require.NoError(t, err)

	assert.True(t, res.Meta.Complete)
	assert.Equal(t, 2, res.Meta.Attempts)
	require.Len(t, res.Days, PlanDays)
	// Days 1-3 are not regenerated on the second attempt.
	assert.Equal(t, PlanDays+1, model.Calls("creative"))
}

func TestCreativeSalvagesPartialContent(t *testing.T) {
	model := &MockLLM{CompleteFunc: func(tag string, _ int) (string, error) {
		if dayNumber(tag) >= 3 {
			return "", transient("llm")
		}
		return dayJSON(tag), nil
	}}
	c, err := NewCreative(testDeps(t, model))
	require.NoError(t, err)

	res, err := c.Run(context.Background(), "c1", testInput(), testAnalytics())
	require.NoError(t, err)

	assert.False(t, res.Meta.Complete)
	assert.Equal(t, 3, res.Meta.Attempts)
	require.Len(t, res.Days, PlanDays)
	assert.False(t, res.Days[0].Placeholder)
	assert.False(t, res.Days[1].Placeholder)
	for _, d := range res.Days[2:] {
		assert.True(t, d.Placeholder, "day %d", d.Day)
		assert.NotEmpty(t, d.Caption)
	}
}

func TestCreativeFailsWithoutAnyContent(t *testing.T) {
	model := &MockLLM{CompleteFunc: func(string, int) (string, error) {
		return "", transient("llm")
	}}
	c, err := NewCreative(testDeps(t, model))
	require.NoError(t, err)

	_, err = c.Run(context.Background(), "c1", testInput(), testAnalytics())
	require.Error(t, err)
	assert.True(t, errors.IsStageFatal(err))
}

func TestCreativeMediaFailuresDegradeToPlaceholders(t *testing.T) {
	gen := &MockGenerator{
		ImageFunc: func(context.Context, string) (*media.Asset, error) {
			return nil, errors.New(errors.ErrUpstreamRejected, "safety filter")
		},
		VideoFunc: func(context.Context, string) (*media.Asset, error) {
			return &media.Asset{URI: "https://example.com/v.mp4", MIMEType: "video/mp4"}, nil
		},
	}
	deps := testDeps(t, happyLLM())
	deps.Media = media.NewPublisher(gen, nil, media.PublisherOptions{Images: true, Videos: true})

	c, err := NewCreative(deps)
	require.NoError(t, err)

	res, err := c.Run(context.Background(), "c1", testInput(), testAnalytics())
	require.NoError(t, err)

	assert.False(t, res.Meta.Complete)
	assert.Len(t, res.Meta.Warnings, PlanDays)
	for _, d := range res.Days {
		require.Len(t, d.ImageURLs, 1)
		assert.Equal(t, media.PlaceholderImageURL(d.Day, d.ImagePrompt), d.ImageURLs[0])
		assert.Equal(t, []string{"https://example.com/v.mp4"}, d.VideoURLs)
		assert.True(t, d.MediaPlaceholder)
		assert.False(t, d.Placeholder, "captions were generated")
	}
	assert.Contains(t, res.Meta.Learning, "0 image(s) and 7 video(s)")
}

func TestCreativeRespectsCaps(t *testing.T) {
	deps := testDeps(t, happyLLM())
	deps.Caps = Caps{ImagesPerDay: 2, VideosPerDay: 0}

	c, err := NewCreative(deps)
	require.NoError(t, err)

	res, err := c.Run(context.Background(), "c1", testInput(), testAnalytics())
	require.NoError(t, err)
	for _, d := range res.Days {
		assert.Len(t, d.ImageURLs, 2)
		assert.Empty(t, d.VideoURLs)
	}
}

func TestCreativeUnreadableDayUsesTemplate(t *testing.T) {
	model := &MockLLM{CompleteFunc: func(tag string, _ int) (string, error) {
		if dayNumber(tag) == 5 {
			return "Here's a great post idea!", nil
		}
		return dayJSON(tag), nil
	}}
	c, err := NewCreative(testDeps(t, model))
	require.NoError(t, err)

	res, err := c.Run(context.Background(), "c1", testInput(), testAnalytics())
	require.NoError(t, err)
	assert.False(t, res.Meta.Complete)
	assert.True(t, res.Days[4].Placeholder)
	assert.Equal(t, PlanDays, model.Calls("creative"))
}

func TestCreativeRetriesTimedOutDay(t *testing.T) {
	model := &MockLLM{CompleteFunc: func(tag string, _ int) (string, error) {
		return dayJSON(tag), nil
	}}
	deps := testDeps(t, llm.ClientFunc(func(ctx context.Context, req llm.Request) (string, error) {
		// Day 3 hangs once, until its call deadline.
		if req.Tag == "creative.day3" && model.Calls("creative.day3") == 0 {
			model.Complete(ctx, req)
			<-ctx.Done()
			return "", ctx.Err()
		}
		return model.Complete(ctx, req)
	}))
	deps.Timeouts = timeout.NewManager(time.Minute)
	deps.Timeouts.SetOperationTimeout(timeout.OpLLM, 20*time.Millisecond)

	c, err := NewCreative(deps)
	require.NoError(t, err)

	res, err := c.Run(context.Background(), "c1", testInput(), testAnalytics())
	require.NoError(t, err)
	assert.True(t, res.Meta.Complete)
	assert.Equal(t, 2, res.Meta.Attempts)
	assert.Equal(t, 2, model.Calls("creative.day3"))
	assert.Equal(t, 1, model.Calls("creative.day1"), "finished days are not rewritten")
}

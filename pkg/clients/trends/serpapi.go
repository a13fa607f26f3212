// Package trends reads relative search interest for keywords.
package trends

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/spawn-mcp/campaign-studio/pkg/clients/cache"
	"github.com/spawn-mcp/campaign-studio/pkg/errors"
	"github.com/spawn-mcp/campaign-studio/pkg/logging"
	"github.com/spawn-mcp/campaign-studio/pkg/types"
)

// maxKeywords is the Google Trends comparison limit.
const maxKeywords = 5

type Client interface {
	Interest(ctx context.Context, keywords []string) ([]types.Trend, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, keywords []string) ([]types.Trend, error)

func (f ClientFunc) Interest(ctx context.Context, keywords []string) ([]types.Trend, error) {
	return f(ctx, keywords)
}

type SerpAPIConfig struct {
	APIKey     string
	BaseURL    string
	Geo        string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// SerpAPI queries the Google Trends engine of serpapi.com.
type SerpAPI struct {
	apiKey     string
	baseURL    string
	geo        string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewSerpAPI(cfg SerpAPIConfig) (*SerpAPI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("SERPAPI_API_KEY is not set")
	}
	s := &SerpAPI{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		geo:        cfg.Geo,
		httpClient: cfg.HTTPClient,
		logger:     logging.OrNop(cfg.Logger),
	}
	if s.baseURL == "" {
		s.baseURL = "https://serpapi.com"
	}
	if s.httpClient == nil {
		s.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return s, nil
}

// Interest returns the mean interest over the default window for each
// keyword, highest first.
func (s *SerpAPI) Interest(ctx context.Context, keywords []string) ([]types.Trend, error) {
	keywords = normalize(keywords)
	if len(keywords) == 0 {
		return nil, nil
	}

	q := url.Values{}
	q.Set("engine", "google_trends")
	q.Set("q", strings.Join(keywords, ","))
	q.Set("data_type", "TIMESERIES")
	if s.geo != "" {
		q.Set("geo", s.geo)
	}
	q.Set("api_key", s.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/search.json?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(err, errors.ErrTimeout, "trends request interrupted")
		}
		return nil, errors.Wrap(err, errors.ErrConnectionFailed, "trends request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrConnectionFailed, "reading trends response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.FromHTTPStatus(resp.StatusCode, "trends request failed: "+gjson.GetBytes(body, "error").String())
	}

	return parseTimeline(body, keywords)
}

func parseTimeline(body []byte, keywords []string) ([]types.Trend, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New(errors.ErrServiceUnavailable, "trends response is not JSON")
	}
	if msg := gjson.GetBytes(body, "error"); msg.Exists() {
		return nil, errors.New(errors.ErrUpstreamRejected, "trends: "+msg.String())
	}

	sums := make(map[string]float64, len(keywords))
	counts := make(map[string]int, len(keywords))

	gjson.GetBytes(body, "interest_over_time.timeline_data").ForEach(func(_, point gjson.Result) bool {
		point.Get("values").ForEach(func(_, v gjson.Result) bool {
			query := v.Get("query").String()
			sums[query] += v.Get("extracted_value").Float()
			counts[query]++
			return true
		})
		return true
	})

	out := make([]types.Trend, 0, len(keywords))
	for _, k := range keywords {
		t := types.Trend{Keyword: k}
		if n := counts[k]; n > 0 {
			t.Interest = int(math.Round(sums[k] / float64(n)))
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Interest > out[j].Interest })
	return out, nil
}

func normalize(keywords []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, k := range keywords {
		k = strings.TrimSpace(strings.ReplaceAll(k, ",", " "))
		if k == "" || seen[strings.ToLower(k)] {
			continue
		}
		seen[strings.ToLower(k)] = true
		out = append(out, k)
		if len(out) == maxKeywords {
			break
		}
	}
	return out
}

// Cached serves repeat keyword sets from a cache.
type Cached struct {
	next   Client
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

func NewCached(next Client, c cache.Cache, ttl time.Duration, logger *zap.Logger) *Cached {
	return &Cached{next: next, cache: c, ttl: ttl, logger: logging.OrNop(logger)}
}

func (c *Cached) Interest(ctx context.Context, keywords []string) ([]types.Trend, error) {
	key := "trends:" + strings.ToLower(strings.Join(normalize(keywords), ","))

	if raw, err := c.cache.Get(ctx, key); err != nil {
		c.logger.Warn("trends cache read failed", zap.Error(err))
	} else if raw != "" {
		var out []types.Trend
		if err := json.Unmarshal([]byte(raw), &out); err == nil {
			return out, nil
		}
	}

	out, err := c.next.Interest(ctx, keywords)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(out); err == nil {
		if err := c.cache.Set(ctx, key, string(raw), c.ttl); err != nil {
			c.logger.Warn("trends cache write failed", zap.Error(err))
		}
	}
	return out, nil
}

package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/spawn-mcp/campaign-studio/pkg/errors"
	"github.com/spawn-mcp/campaign-studio/pkg/logging"
	"github.com/spawn-mcp/campaign-studio/pkg/retry"
)

const maxPageText = 8000

type RodConfig struct {
	Headless bool
	// ControlURL connects to an already running Chrome instead of launching one.
	ControlURL        string
	NavigationTimeout time.Duration
	Logger            *zap.Logger
}

// RodAgent reads a page with a local headless Chrome.
type RodAgent struct {
	cfg    RodConfig
	logger *zap.Logger
}

func NewRodAgent(cfg RodConfig) *RodAgent {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	return &RodAgent{cfg: cfg, logger: logging.OrNop(cfg.Logger)}
}

const extractScript = `() => {
	const meta = document.querySelector('meta[name="description"]') || document.querySelector('meta[property="og:description"]');
	const headings = Array.from(document.querySelectorAll('h1, h2, h3')).map(h => h.innerText.trim()).filter(Boolean).slice(0, 30);
	return JSON.stringify({
		title: document.title || '',
		description: meta ? meta.content : '',
		headings: headings,
		text: document.body ? document.body.innerText : ''
	});
}`

type pageFacts struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Headings    []string `json:"headings"`
	Text        string   `json:"text"`
}

func (a *RodAgent) Run(ctx context.Context, task Task, acc *retry.Accumulator[Message]) error {
	controlURL := a.cfg.ControlURL
	if controlURL == "" {
		u, err := launcher.New().Headless(a.cfg.Headless).Context(ctx).Launch()
		if err != nil {
			return errors.Wrap(err, errors.ErrConnectionFailed, "launch chrome")
		}
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return errors.Wrap(err, errors.ErrConnectionFailed, "connect to chrome")
	}
	defer func() {
		if err := browser.Close(); err != nil {
			a.logger.Debug("closing chrome", zap.Error(err))
		}
	}()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return errors.Wrap(err, errors.ErrConnectionFailed, "open page")
	}
	if err := page.Context(ctx).Timeout(a.cfg.NavigationTimeout).Navigate(task.URL); err != nil {
		return errors.Wrap(err, errors.ErrTimeout, "navigate").WithContext("url", task.URL)
	}
	acc.Add(Message{Type: MessageStatus, Content: "loaded " + task.URL, Time: time.Now().UTC()})

	if err := page.Context(ctx).Timeout(a.cfg.NavigationTimeout).WaitLoad(); err != nil {
		a.logger.Debug("page load did not settle", zap.String("url", task.URL), zap.Error(err))
	}

	res, err := page.Context(ctx).Evaluate(&rod.EvalOptions{JS: extractScript, ByValue: true})
	if err != nil || res == nil {
		return errors.Wrap(fmt.Errorf("evaluate: %w", err), errors.ErrServiceUnavailable, "extract page content")
	}

	var facts pageFacts
	if err := json.Unmarshal([]byte(res.Value.Str()), &facts); err != nil {
		return errors.Wrap(err, errors.ErrServiceUnavailable, "decode page content")
	}

	for _, m := range facts.messages(time.Now().UTC()) {
		acc.Add(m)
	}
	return nil
}

func (f pageFacts) messages(now time.Time) []Message {
	var out []Message
	if t := strings.TrimSpace(f.Title); t != "" {
		out = append(out, Message{Type: MessageContent, Content: "Title: " + t, Time: now})
	}
	if d := strings.TrimSpace(f.Description); d != "" {
		out = append(out, Message{Type: MessageContent, Content: "Description: " + d, Time: now})
	}
	if len(f.Headings) > 0 {
		out = append(out, Message{Type: MessageContent, Content: "Headings: " + strings.Join(f.Headings, " | "), Time: now})
	}
	if text := strings.Join(strings.Fields(f.Text), " "); text != "" {
		if len(text) > maxPageText {
			text = text[:maxPageText]
		}
		out = append(out, Message{Type: MessageResult, Content: text, Time: now})
	}
	return out
}

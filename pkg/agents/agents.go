// Package agents implements the three campaign stages: research, strategy
// and creative. Agents share remote clients through Deps and never hold
// campaign state between runs.
package agents

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spawn-mcp/campaign-studio/pkg/clients/browser"
	"github.com/spawn-mcp/campaign-studio/pkg/clients/llm"
	"github.com/spawn-mcp/campaign-studio/pkg/clients/location"
	"github.com/spawn-mcp/campaign-studio/pkg/clients/media"
	"github.com/spawn-mcp/campaign-studio/pkg/clients/trends"
	"github.com/spawn-mcp/campaign-studio/pkg/errors"
	"github.com/spawn-mcp/campaign-studio/pkg/logging"
	"github.com/spawn-mcp/campaign-studio/pkg/retry"
	"github.com/spawn-mcp/campaign-studio/pkg/timeout"
)

// PlanDays is the length of a content calendar.
const PlanDays = 7

// Caps bound the media generated per calendar day.
type Caps struct {
	ImagesPerDay int
	VideosPerDay int
	// Concurrency bounds media calls in flight for one campaign.
	Concurrency int
}

// Deps are the clients and policies shared by all agents. Location and
// Trends are optional.
type Deps struct {
	LLM      llm.Client
	Browser  browser.Agent
	Location location.Client
	Trends   trends.Client
	Media    *media.Publisher
	Retry    retry.Config
	Timeouts *timeout.Manager
	Caps     Caps
	Logger   *zap.Logger
	Now      func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Browser == nil {
		d.Browser = browser.Disabled{}
	}
	if d.Media == nil {
		d.Media = media.NewPlaceholderPublisher()
	}
	if d.Retry.MaxAttempts == 0 {
		d.Retry = retry.DefaultConfigs.Remote
	}
	if d.Timeouts == nil {
		d.Timeouts = timeout.NewManager(time.Minute)
	}
	if d.Caps.Concurrency <= 0 {
		d.Caps.Concurrency = 3
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	d.Logger = logging.OrNop(d.Logger)
	return d
}

func (d Deps) validate() error {
	if d.LLM == nil {
		return fmt.Errorf("agents: LLM client is required")
	}
	return nil
}

// policy is the retry policy for one remote call. Every attempt gets the
// operation's timeout and retries are logged.
func (d Deps) policy(op string, logger *zap.Logger) retry.Config {
	cfg := d.Retry.WithAttemptTimeout(d.Timeouts.Get(op))
	next := cfg.OnRetry
	cfg.OnRetry = func(attempt int, err error) {
		logger.Warn("remote call failed, retrying",
			zap.String("operation", op),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		if next != nil {
			next(attempt, err)
		}
	}
	return cfg
}

// complete runs one LLM request under the salvage policy. The accumulator
// holds at most one response, so a salvaged outcome never occurs; the
// outcome still records the attempt count.
func (d Deps) complete(ctx context.Context, req llm.Request, logger *zap.Logger) (string, int, error) {
	out, err := retry.ExecuteWithSalvage(ctx, func(ctx context.Context, acc *retry.Accumulator[string]) error {
		text, err := d.LLM.Complete(ctx, req)
		if err != nil {
			return err
		}
		acc.Add(text)
		return nil
	}, d.policy(timeout.OpLLM, logger.With(zap.String("tag", req.Tag))))
	if err != nil {
		return "", attemptsOf(err), err
	}
	return out.Items[len(out.Items)-1], out.Attempts, nil
}

// attemptsOf reads the attempt count recorded on an exhausted-retries error.
func attemptsOf(err error) int {
	for err != nil {
		if e, ok := err.(*errors.Error); ok {
			if n, ok := e.Context["attempts"].(int); ok {
				return n
			}
		}
		err = stderrors.Unwrap(err)
	}
	return 0
}

func stageFatal(err error, format string, args ...interface{}) error {
	return errors.Wrap(err, errors.ErrStageFatal, fmt.Sprintf(format, args...))
}

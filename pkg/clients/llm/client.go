// Package llm calls a hosted language model.
package llm

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/config"
	"go.uber.org/zap"

	"github.com/spawn-mcp/campaign-studio/pkg/errors"
	"github.com/spawn-mcp/campaign-studio/pkg/logging"
)

// Request is one completion. Tag identifies the call site in logs.
type Request struct {
	Tag       string
	System    string
	Prompt    string
	MaxTokens int64
}

// Client returns the text of a single completion.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, req Request) (string, error)

func (f ClientFunc) Complete(ctx context.Context, req Request) (string, error) { return f(ctx, req) }

// AnthropicConfig contains configuration for NewAnthropic.
type AnthropicConfig struct {
	APIKey     string
	Model      string
	MaxTokens  int64
	UseBedrock bool
	AWSRegion  string
	AWSProfile string
	Logger     *zap.Logger
	// Options are appended to the SDK request options, e.g. option.WithBaseURL in tests.
	Options []option.RequestOption
}

// Anthropic implements Client over the Messages API, directly or through AWS Bedrock.
type Anthropic struct {
	inner     anthropic.Client
	model     anthropic.Model
	maxTokens int64
	logger    *zap.Logger
}

func NewAnthropic(ctx context.Context, cfg AnthropicConfig) (*Anthropic, error) {
	var opts []option.RequestOption

	if cfg.UseBedrock {
		var loadOpts []func(*config.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, config.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.AWSProfile))
		}
		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
	} else {
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is not set")
		}
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	// Retries are owned by the caller's salvage policy.
	opts = append(opts, option.WithMaxRetries(0))
	opts = append(opts, cfg.Options...)

	model := anthropic.Model(cfg.Model)
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}
	if cfg.UseBedrock && !strings.Contains(string(model), "anthropic.") {
		model = anthropic.Model("us.anthropic." + string(model) + "-v1:0")
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	return &Anthropic{
		inner:     anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
		logger:    logging.OrNop(cfg.Logger),
	}, nil
}

func (a *Anthropic) Complete(ctx context.Context, req Request) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = a.maxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := a.inner.Messages.New(ctx, params)
	if err != nil {
		return "", classify(ctx, err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(variant.Text)
		}
	}

	a.logger.Debug("llm completion",
		zap.String("tag", req.Tag),
		zap.Int64("input_tokens", resp.Usage.InputTokens),
		zap.Int64("output_tokens", resp.Usage.OutputTokens),
	)

	if text.Len() == 0 {
		return "", errors.New(errors.ErrServiceUnavailable, "model returned no text")
	}
	return text.String(), nil
}

// classify maps SDK failures onto the remote error taxonomy.
func classify(ctx context.Context, err error) error {
	var apiErr *anthropic.Error
	if stderrors.As(err, &apiErr) {
		e := errors.FromHTTPStatus(apiErr.StatusCode, "anthropic request failed")
		e.Cause = err
		return e
	}
	if stderrors.Is(err, context.Canceled) && ctx.Err() != nil {
		return err
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(err, errors.ErrTimeout, "anthropic request timed out")
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return errors.Wrap(err, errors.ErrConnectionFailed, "anthropic connection failed")
	}
	return errors.Wrap(err, errors.ErrConnectionFailed, "anthropic request failed")
}

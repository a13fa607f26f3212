// Package media generates campaign images and videos and publishes them to
// object storage.
package media

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spawn-mcp/campaign-studio/pkg/errors"
	"github.com/spawn-mcp/campaign-studio/pkg/logging"
)

// Asset is a generated media file. Either Data or URI is set.
type Asset struct {
	Data     []byte
	MIMEType string
	URI      string
}

// Generator produces media from a text prompt.
type Generator interface {
	GenerateImage(ctx context.Context, prompt string) (*Asset, error)
	GenerateVideo(ctx context.Context, prompt string) (*Asset, error)
}

type GenAIConfig struct {
	APIKey       string
	ImageModel   string
	VideoModel   string
	PollInterval time.Duration
	Logger       *zap.Logger
}

// GenAI generates images with Imagen and videos with Veo.
type GenAI struct {
	client       *genai.Client
	imageModel   string
	videoModel   string
	pollInterval time.Duration
	logger       *zap.Logger
}

func NewGenAI(ctx context.Context, cfg GenAIConfig) (*GenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	g := &GenAI{
		client:       client,
		imageModel:   cfg.ImageModel,
		videoModel:   cfg.VideoModel,
		pollInterval: cfg.PollInterval,
		logger:       logging.OrNop(cfg.Logger),
	}
	if g.imageModel == "" {
		g.imageModel = "imagen-3.0-generate-002"
	}
	if g.videoModel == "" {
		g.videoModel = "veo-2.0-generate-001"
	}
	if g.pollInterval <= 0 {
		g.pollInterval = 10 * time.Second
	}
	return g, nil
}

func (g *GenAI) GenerateImage(ctx context.Context, prompt string) (*Asset, error) {
	resp, err := g.client.Models.GenerateImages(ctx, g.imageModel, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
	})
	if err != nil {
		return nil, classify(err, "image generation failed")
	}
	for _, generated := range resp.GeneratedImages {
		if generated == nil || generated.Image == nil {
			continue
		}
		img := generated.Image
		if len(img.ImageBytes) == 0 && img.GCSURI == "" {
			continue
		}
		mime := img.MIMEType
		if mime == "" {
			mime = "image/png"
		}
		return &Asset{Data: img.ImageBytes, MIMEType: mime, URI: img.GCSURI}, nil
	}
	return nil, errors.New(errors.ErrServiceUnavailable, "image generation returned no images")
}

// GenerateVideo starts a long-running Veo operation and polls it until done
// or ctx expires.
func (g *GenAI) GenerateVideo(ctx context.Context, prompt string) (*Asset, error) {
	op, err := g.client.Models.GenerateVideos(ctx, g.videoModel, prompt, nil, &genai.GenerateVideosConfig{
		NumberOfVideos: 1,
	})
	if err != nil {
		return nil, classify(err, "video generation failed")
	}

	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for !op.Done {
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), errors.ErrTimeout, "video generation did not finish in time").
				WithContext("operation", op.Name)
		case <-ticker.C:
		}

		op, err = g.client.Operations.GetVideosOperation(ctx, op, nil)
		if err != nil {
			return nil, classify(err, "polling video operation failed")
		}
		g.logger.Debug("video operation polled", zap.String("operation", op.Name), zap.Bool("done", op.Done))
	}

	if len(op.Error) > 0 {
		return nil, errors.Newf(errors.ErrUpstreamRejected, "video generation failed: %v", op.Error["message"])
	}
	if op.Response != nil {
		for _, generated := range op.Response.GeneratedVideos {
			if generated == nil || generated.Video == nil {
				continue
			}
			v := generated.Video
			mime := v.MIMEType
			if mime == "" {
				mime = "video/mp4"
			}
			return &Asset{Data: v.VideoBytes, MIMEType: mime, URI: v.URI}, nil
		}
	}
	return nil, errors.New(errors.ErrServiceUnavailable, "video generation returned no videos")
}

func classify(err error, message string) error {
	var apiErr genai.APIError
	if stderrors.As(err, &apiErr) {
		e := errors.FromHTTPStatus(apiErr.Code, message)
		e.Cause = err
		return e
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(err, errors.ErrTimeout, message)
	}
	if stderrors.Is(err, context.Canceled) {
		return err
	}
	return errors.Wrap(err, errors.ErrConnectionFailed, message)
}

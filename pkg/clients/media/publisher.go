package media

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spawn-mcp/campaign-studio/pkg/errors"
	"github.com/spawn-mcp/campaign-studio/pkg/logging"
)

// Uploader stores bytes and returns a public URL.
type Uploader interface {
	Upload(ctx context.Context, object, contentType string, data []byte) (string, error)
}

// objectWriter is satisfied by *gcp.Client.
type objectWriter interface {
	UploadObject(ctx context.Context, bucket, object, contentType string, data []byte) (string, error)
}

// GCSUploader uploads into a single Cloud Storage bucket.
type GCSUploader struct {
	client objectWriter
	bucket string
}

func NewGCSUploader(client objectWriter, bucket string) *GCSUploader {
	return &GCSUploader{client: client, bucket: bucket}
}

func (u *GCSUploader) Upload(ctx context.Context, object, contentType string, data []byte) (string, error) {
	return u.client.UploadObject(ctx, u.bucket, object, contentType, data)
}

// PublisherOptions toggles real generation per media type.
type PublisherOptions struct {
	Images bool
	Videos bool
	Logger *zap.Logger
}

// Publisher turns prompts into URLs. Disabled media types, and a nil
// generator, yield deterministic placeholder URLs.
type Publisher struct {
	gen    Generator
	up     Uploader
	opts   PublisherOptions
	logger *zap.Logger
}

func NewPublisher(gen Generator, up Uploader, opts PublisherOptions) *Publisher {
	return &Publisher{gen: gen, up: up, opts: opts, logger: logging.OrNop(opts.Logger)}
}

// NewPlaceholderPublisher returns a Publisher that never calls a generator.
func NewPlaceholderPublisher() *Publisher {
	return NewPublisher(nil, nil, PublisherOptions{})
}

func (p *Publisher) ImagesEnabled() bool { return p.opts.Images && p.gen != nil }
func (p *Publisher) VideosEnabled() bool { return p.opts.Videos && p.gen != nil }

// ImageURL returns a URL for an image matching prompt. placeholder reports
// whether the URL points at a stand-in rather than generated media.
func (p *Publisher) ImageURL(ctx context.Context, campaignID string, day int, prompt string) (u string, placeholder bool, err error) {
	if !p.ImagesEnabled() {
		return PlaceholderImageURL(day, prompt), true, nil
	}
	asset, err := p.gen.GenerateImage(ctx, prompt)
	if err != nil {
		return "", false, err
	}
	u, err = p.publish(ctx, campaignID, day, "image", asset)
	return u, false, err
}

// VideoURL is ImageURL for short-form video.
func (p *Publisher) VideoURL(ctx context.Context, campaignID string, day int, prompt string) (u string, placeholder bool, err error) {
	if !p.VideosEnabled() {
		return PlaceholderVideoURL(day, prompt), true, nil
	}
	asset, err := p.gen.GenerateVideo(ctx, prompt)
	if err != nil {
		return "", false, err
	}
	u, err = p.publish(ctx, campaignID, day, "video", asset)
	return u, false, err
}

func (p *Publisher) publish(ctx context.Context, campaignID string, day int, kind string, asset *Asset) (string, error) {
	if len(asset.Data) == 0 || p.up == nil {
		if asset.URI == "" {
			return "", errors.Newf(errors.ErrServiceUnavailable, "%s asset has neither data nor uri", kind)
		}
		return asset.URI, nil
	}

	object := path.Join("campaigns", campaignID, fmt.Sprintf("day-%d-%s-%s%s", day, kind, uuid.NewString()[:8], extension(asset.MIMEType)))
	u, err := p.up.Upload(ctx, object, asset.MIMEType, asset.Data)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrConnectionFailed, "upload "+kind)
	}
	p.logger.Debug("media uploaded", zap.String("campaign_id", campaignID), zap.String("object", object))
	return u, nil
}

func PlaceholderImageURL(day int, prompt string) string {
	return placeholderURL("1080x1080", day, "Image", prompt)
}

func PlaceholderVideoURL(day int, prompt string) string {
	return placeholderURL("1080x1920", day, "Video", prompt)
}

func placeholderURL(size string, day int, label, prompt string) string {
	text := fmt.Sprintf("Day %d %s", day, label)
	if p := strings.TrimSpace(prompt); p != "" {
		if len(p) > 40 {
			p = p[:40]
		}
		text += ": " + p
	}
	return "https://placehold.co/" + size + "?text=" + url.QueryEscape(text)
}

func extension(mime string) string {
	switch mime {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	default:
		return ""
	}
}

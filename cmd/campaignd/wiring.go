package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/spawn-mcp/campaign-studio/pkg/agents"
	"github.com/spawn-mcp/campaign-studio/pkg/clients/browser"
	"github.com/spawn-mcp/campaign-studio/pkg/clients/cache"
	"github.com/spawn-mcp/campaign-studio/pkg/clients/llm"
	"github.com/spawn-mcp/campaign-studio/pkg/clients/location"
	"github.com/spawn-mcp/campaign-studio/pkg/clients/media"
	"github.com/spawn-mcp/campaign-studio/pkg/clients/trends"
	"github.com/spawn-mcp/campaign-studio/pkg/config"
	"github.com/spawn-mcp/campaign-studio/pkg/coordinator"
	"github.com/spawn-mcp/campaign-studio/pkg/dispatch"
	"github.com/spawn-mcp/campaign-studio/pkg/events"
	"github.com/spawn-mcp/campaign-studio/pkg/gcp"
	"github.com/spawn-mcp/campaign-studio/pkg/retry"
	"github.com/spawn-mcp/campaign-studio/pkg/store"
	"github.com/spawn-mcp/campaign-studio/pkg/store/sqlite"
	"github.com/spawn-mcp/campaign-studio/pkg/timeout"
)

// app is everything a subcommand needs, built once from configuration.
type app struct {
	cfg          *config.Config
	logger       *zap.Logger
	gcp          *gcp.Client
	store        store.Store
	orchestrator *coordinator.Orchestrator

	closers []func() error
}

// documents hides the gcp client's Close from the Firestore store so the
// client is closed once, by app.Close.
type documents struct{ store.DocumentClient }

// newApp wires clients, agents and the orchestrator. When local is false the
// orchestrator dispatches runs to workers if configured to.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, local bool) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	if needsGCP(cfg) {
		var opts []option.ClientOption
		if cfg.GCP.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.GCP.CredentialsFile))
		}
		client, err := gcp.NewClient(ctx, cfg.GCP.ProjectID, logger.Named("gcp"), opts...)
		if err != nil {
			return nil, err
		}
		a.gcp = client
		a.closers = append(a.closers, client.Close)
	}

	s, err := a.newStore()
	if err != nil {
		return nil, err
	}
	a.store = s
	a.closers = append(a.closers, s.Close)

	deps, err := a.agentDeps(ctx)
	if err != nil {
		return nil, err
	}
	research, err := agents.NewResearch(deps)
	if err != nil {
		return nil, err
	}
	strategy, err := agents.NewStrategy(deps)
	if err != nil {
		return nil, err
	}
	creative, err := agents.NewCreative(deps)
	if err != nil {
		return nil, err
	}

	tm := a.timeouts()
	opts := []coordinator.Option{
		coordinator.WithLogger(logger.Named("coordinator")),
		coordinator.WithPersistenceRetry(retry.DefaultConfigs.Persistence.WithAttemptTimeout(tm.Get(timeout.OpStore))),
	}
	if cfg.Dispatch.PublishProgress {
		opts = append(opts, coordinator.WithPublisher(events.NewPubSub(a.gcp, cfg.Dispatch.ProgressTopic)))
	}
	if !local && cfg.Dispatch.Mode == "pubsub" {
		opts = append(opts, coordinator.WithDispatcher(dispatch.NewPubSub(a.gcp, cfg.Dispatch.RequestTopic)))
	}

	a.orchestrator, err = coordinator.NewOrchestrator(s, coordinator.Stages{
		Research: research,
		Strategy: strategy,
		Creative: creative,
	}, opts...)
	if err != nil {
		return nil, err
	}

	ok = true
	return a, nil
}

func needsGCP(cfg *config.Config) bool {
	return cfg.Store.Backend == "firestore" ||
		cfg.Dispatch.Mode == "pubsub" ||
		cfg.Dispatch.PublishProgress ||
		((cfg.Media.EnableImages || cfg.Media.EnableVideos) && cfg.Media.Bucket != "")
}

func (a *app) newStore() (store.Store, error) {
	switch a.cfg.Store.Backend {
	case "firestore":
		return store.NewFirestore(documents{a.gcp}, a.cfg.Store.CollectionPrefix), nil
	case "sqlite":
		return sqlite.Open(a.cfg.Store.SQLitePath)
	default:
		a.logger.Warn("using in-memory store; campaigns are lost on restart")
		return store.NewMemory(), nil
	}
}

func (a *app) timeouts() *timeout.Manager {
	tm := timeout.NewManager(a.cfg.Timeouts.Default)
	tm.LoadConfig(a.cfg.TimeoutConfig())
	return tm
}

func (a *app) agentDeps(ctx context.Context) (agents.Deps, error) {
	cfg := a.cfg

	model, err := llm.NewAnthropic(ctx, llm.AnthropicConfig{
		APIKey:     cfg.LLM.APIKey,
		Model:      cfg.LLM.Model,
		MaxTokens:  cfg.LLM.MaxTokens,
		UseBedrock: cfg.LLM.UseBedrock,
		AWSRegion:  cfg.LLM.AWSRegion,
		AWSProfile: cfg.LLM.AWSProfile,
		Logger:     a.logger.Named("llm"),
	})
	if err != nil {
		return agents.Deps{}, err
	}

	agent, err := a.browserAgent(ctx)
	if err != nil {
		return agents.Deps{}, err
	}

	c := a.cache()

	deps := agents.Deps{
		LLM:      model,
		Browser:  agent,
		Retry:    retry.Remote(cfg.Retry.MaxAttempts, cfg.Retry.Delay),
		Timeouts: a.timeouts(),
		Caps: agents.Caps{
			ImagesPerDay: cfg.Media.MaxImagesPerDay,
			VideosPerDay: cfg.Media.MaxVideosPerDay,
			Concurrency:  cfg.Media.Concurrency,
		},
		Logger: a.logger.Named("agents"),
	}

	if cfg.Location.MapsAPIKey != "" {
		maps, err := location.NewMaps(location.MapsConfig{
			APIKey:         cfg.Location.MapsAPIKey,
			RadiusMeters:   cfg.Location.RadiusMeters,
			MaxCompetitors: cfg.Location.MaxCompetitors,
			Logger:         a.logger.Named("location"),
		})
		if err != nil {
			return agents.Deps{}, err
		}
		deps.Location = location.NewCached(maps, c, cfg.Cache.TTL, a.logger.Named("location"))
	} else {
		a.logger.Info("no maps key; competitor lookup disabled")
	}

	if cfg.Trends.SerpAPIKey != "" {
		serp, err := trends.NewSerpAPI(trends.SerpAPIConfig{
			APIKey:  cfg.Trends.SerpAPIKey,
			BaseURL: cfg.Trends.BaseURL,
			Geo:     cfg.Trends.Geo,
			Logger:  a.logger.Named("trends"),
		})
		if err != nil {
			return agents.Deps{}, err
		}
		deps.Trends = trends.NewCached(serp, c, cfg.Cache.TTL, a.logger.Named("trends"))
	}

	deps.Media, err = a.mediaPublisher(ctx)
	if err != nil {
		return agents.Deps{}, err
	}
	return deps, nil
}

func (a *app) browserAgent(ctx context.Context) (browser.Agent, error) {
	cfg := a.cfg.Browser
	switch cfg.Mode {
	case "remote":
		return browser.NewRemoteAgent(ctx, browser.RemoteConfig{
			BaseURL:      cfg.AgentURL,
			APIKey:       cfg.APIKey,
			Audience:     cfg.Audience,
			PollInterval: cfg.PollInterval,
			Logger:       a.logger.Named("browser"),
		})
	case "rod":
		return browser.NewRodAgent(browser.RodConfig{
			Headless: cfg.Headless,
			Logger:   a.logger.Named("browser"),
		}), nil
	default:
		return browser.Disabled{}, nil
	}
}

// cache is Redis when configured, otherwise an in-process cache.
func (a *app) cache() cache.Cache {
	if a.cfg.Cache.RedisAddr == "" {
		return cache.NewMemory()
	}
	r := cache.NewRedis(a.cfg.Cache.RedisAddr, "campaign-studio")
	a.closers = append(a.closers, r.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := r.Ping(ctx); err != nil {
		a.logger.Warn("redis unreachable; lookups will not be cached", zap.Error(err))
	}
	return r
}

func (a *app) mediaPublisher(ctx context.Context) (*media.Publisher, error) {
	cfg := a.cfg.Media
	if !cfg.EnableImages && !cfg.EnableVideos {
		return media.NewPlaceholderPublisher(), nil
	}
	gen, err := media.NewGenAI(ctx, media.GenAIConfig{
		APIKey:     cfg.GeminiAPIKey,
		ImageModel: cfg.ImageModel,
		VideoModel: cfg.VideoModel,
		Logger:     a.logger.Named("media"),
	})
	if err != nil {
		return nil, err
	}
	var up media.Uploader
	if a.gcp != nil && cfg.Bucket != "" {
		up = media.NewGCSUploader(a.gcp, cfg.Bucket)
	}
	return media.NewPublisher(gen, up, media.PublisherOptions{
		Images: cfg.EnableImages,
		Videos: cfg.EnableVideos,
		Logger: a.logger.Named("media"),
	}), nil
}

// Close releases clients in reverse order of creation.
func (a *app) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing: %w", err)
		}
	}
	a.closers = nil
	return firstErr
}

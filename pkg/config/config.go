// Package config loads campaign-studio configuration from defaults, an optional
// YAML file and environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/spawn-mcp/campaign-studio/pkg/timeout"
)

// Config holds all configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	GCP      GCPConfig      `mapstructure:"gcp"`
	Store    StoreConfig    `mapstructure:"store"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Media    MediaConfig    `mapstructure:"media"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Location LocationConfig `mapstructure:"location"`
	Trends   TrendsConfig   `mapstructure:"trends"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Timeouts TimeoutsConfig `mapstructure:"timeouts"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type GCPConfig struct {
	ProjectID       string `mapstructure:"project_id"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// StoreConfig selects the persistence backend: firestore, sqlite or memory.
type StoreConfig struct {
	Backend          string `mapstructure:"backend"`
	CollectionPrefix string `mapstructure:"collection_prefix"`
	SQLitePath       string `mapstructure:"sqlite_path"`
}

// DispatchConfig selects where campaign runs execute. "local" runs them in the
// serving process; "pubsub" publishes a job for a worker.
type DispatchConfig struct {
	Mode            string `mapstructure:"mode"`
	RequestTopic    string `mapstructure:"request_topic"`
	Subscription    string `mapstructure:"subscription"`
	ProgressTopic   string `mapstructure:"progress_topic"`
	PublishProgress bool   `mapstructure:"publish_progress"`
}

type LLMConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	MaxTokens  int64  `mapstructure:"max_tokens"`
	UseBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
}

// MediaConfig controls image/video generation. With both toggles off every
// campaign gets placeholder media and costs nothing to generate.
type MediaConfig struct {
	EnableImages    bool   `mapstructure:"enable_images"`
	EnableVideos    bool   `mapstructure:"enable_videos"`
	GeminiAPIKey    string `mapstructure:"gemini_api_key"`
	ImageModel      string `mapstructure:"image_model"`
	VideoModel      string `mapstructure:"video_model"`
	Bucket          string `mapstructure:"bucket"`
	MaxImagesPerDay int    `mapstructure:"max_images_per_day"`
	MaxVideosPerDay int    `mapstructure:"max_videos_per_day"`
	Concurrency     int    `mapstructure:"concurrency"`
}

// BrowserConfig selects the browsing agent: remote, rod or disabled.
type BrowserConfig struct {
	Mode         string        `mapstructure:"mode"`
	AgentURL     string        `mapstructure:"agent_url"`
	APIKey       string        `mapstructure:"api_key"`
	Audience     string        `mapstructure:"audience"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Headless     bool          `mapstructure:"headless"`
}

type LocationConfig struct {
	MapsAPIKey     string `mapstructure:"maps_api_key"`
	RadiusMeters   uint   `mapstructure:"radius_meters"`
	MaxCompetitors int    `mapstructure:"max_competitors"`
}

type TrendsConfig struct {
	SerpAPIKey string `mapstructure:"serpapi_key"`
	BaseURL    string `mapstructure:"base_url"`
	Geo        string `mapstructure:"geo"`
}

type CacheConfig struct {
	RedisAddr string        `mapstructure:"redis_addr"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// RetryConfig is the bounded-retry policy for remote capability calls.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Delay       time.Duration `mapstructure:"delay"`
}

type TimeoutsConfig struct {
	Default  time.Duration `mapstructure:"default"`
	LLM      time.Duration `mapstructure:"llm"`
	Image    time.Duration `mapstructure:"image"`
	Video    time.Duration `mapstructure:"video"`
	Browser  time.Duration `mapstructure:"browser"`
	Location time.Duration `mapstructure:"location"`
	Trends   time.Duration `mapstructure:"trends"`
	Store    time.Duration `mapstructure:"store"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load reads configuration. Precedence (highest first): environment, the file at
// path (if non-empty), built-in defaults. Nested keys map to upper-case
// variables with "_" separators, e.g. STORE_BACKEND.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Well-known variable names used by the SDKs and hosting platforms.
	v.BindEnv("gcp.project_id", "GOOGLE_CLOUD_PROJECT")
	v.BindEnv("gcp.credentials_file", "GOOGLE_APPLICATION_CREDENTIALS")
	v.BindEnv("llm.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("media.gemini_api_key", "GEMINI_API_KEY")
	v.BindEnv("location.maps_api_key", "GOOGLE_MAPS_API_KEY")
	v.BindEnv("trends.serpapi_key", "SERPAPI_API_KEY")
	v.BindEnv("browser.api_key", "BROWSER_AGENT_API_KEY")
	v.BindEnv("cache.redis_addr", "REDIS_ADDR")
	v.BindEnv("log.level", "LOG_LEVEL")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Cloud Run injects PORT.
	if port := os.Getenv("PORT"); port != "" && os.Getenv("SERVER_ADDR") == "" && !v.InConfig("server.addr") {
		cfg.Server.Addr = ":" + port
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.collection_prefix", "")
	v.SetDefault("store.sqlite_path", "campaigns.db")

	v.SetDefault("dispatch.mode", "local")
	v.SetDefault("dispatch.request_topic", "campaign-requests")
	v.SetDefault("dispatch.subscription", "campaign-requests-worker")
	v.SetDefault("dispatch.progress_topic", "campaign-progress")
	v.SetDefault("dispatch.publish_progress", false)

	v.SetDefault("llm.model", "claude-sonnet-4-20250514")
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.use_bedrock", false)

	v.SetDefault("media.enable_images", false)
	v.SetDefault("media.enable_videos", false)
	v.SetDefault("media.image_model", "imagen-3.0-generate-002")
	v.SetDefault("media.video_model", "veo-2.0-generate-001")
	v.SetDefault("media.max_images_per_day", 1)
	v.SetDefault("media.max_videos_per_day", 1)
	v.SetDefault("media.concurrency", 3)

	v.SetDefault("browser.mode", "rod")
	v.SetDefault("browser.poll_interval", 5*time.Second)
	v.SetDefault("browser.headless", true)

	v.SetDefault("location.radius_meters", 2000)
	v.SetDefault("location.max_competitors", 5)

	v.SetDefault("trends.base_url", "https://serpapi.com")
	v.SetDefault("trends.geo", "US")

	v.SetDefault("cache.ttl", 24*time.Hour)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.delay", 5*time.Second)

	v.SetDefault("timeouts.default", time.Minute)
	for op, d := range timeout.OperationTimeouts {
		v.SetDefault("timeouts."+op, d)
	}

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Validate checks combinations that would fail at first use.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory":
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite backend")
		}
	case "firestore":
		if c.GCP.ProjectID == "" {
			return fmt.Errorf("gcp.project_id (GOOGLE_CLOUD_PROJECT) is required for the firestore backend")
		}
	default:
		return fmt.Errorf("unknown store.backend %q", c.Store.Backend)
	}

	switch c.Dispatch.Mode {
	case "local":
	case "pubsub":
		if c.GCP.ProjectID == "" {
			return fmt.Errorf("gcp.project_id is required for pubsub dispatch")
		}
		if c.Store.Backend != "firestore" {
			return fmt.Errorf("pubsub dispatch needs a shared store; store.backend is %q", c.Store.Backend)
		}
	default:
		return fmt.Errorf("unknown dispatch.mode %q", c.Dispatch.Mode)
	}

	if c.Dispatch.PublishProgress && c.GCP.ProjectID == "" {
		return fmt.Errorf("gcp.project_id is required to publish progress events")
	}

	switch c.Browser.Mode {
	case "rod", "disabled":
	case "remote":
		if c.Browser.AgentURL == "" {
			return fmt.Errorf("browser.agent_url is required for the remote browser agent")
		}
	default:
		return fmt.Errorf("unknown browser.mode %q", c.Browser.Mode)
	}

	if (c.Media.EnableImages || c.Media.EnableVideos) && c.Media.GeminiAPIKey == "" {
		return fmt.Errorf("media.gemini_api_key (GEMINI_API_KEY) is required when media generation is enabled")
	}
	if c.Media.EnableImages && c.Media.Bucket == "" {
		return fmt.Errorf("media.bucket is required when image generation is enabled")
	}
	if c.Media.MaxImagesPerDay < 0 || c.Media.MaxVideosPerDay < 0 {
		return fmt.Errorf("media caps must not be negative")
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if c.Retry.Delay < 0 {
		return fmt.Errorf("retry.delay must not be negative")
	}

	return nil
}

// TimeoutConfig converts the timeouts section for timeout.Manager.
func (c *Config) TimeoutConfig() timeout.Config {
	t := c.Timeouts
	return timeout.Config{
		Global: t.Default,
		Operations: map[string]time.Duration{
			timeout.OpLLM:      t.LLM,
			timeout.OpImage:    t.Image,
			timeout.OpVideo:    t.Video,
			timeout.OpBrowser:  t.Browser,
			timeout.OpLocation: t.Location,
			timeout.OpTrends:   t.Trends,
			timeout.OpStore:    t.Store,
		},
	}
}

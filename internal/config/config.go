package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Storage    StorageConfig    `yaml:"storage" mapstructure:"storage"`
	Providers  ProvidersConfig  `yaml:"providers" mapstructure:"providers"`
	Stages     StagesConfig     `yaml:"stages" mapstructure:"stages"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Prompts    PromptsConfig    `yaml:"prompts" mapstructure:"prompts"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Resilience ResilienceConfig `yaml:"resilience" mapstructure:"resilience"`
	Tracing    TracingConfig    `yaml:"tracing" mapstructure:"tracing"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// StorageConfig configures blob access and the signed URL cache.
type StorageConfig struct {
	Mode              string `yaml:"mode" mapstructure:"mode"`
	Bucket            string `yaml:"bucket" mapstructure:"bucket"`
	CredentialsFile   string `yaml:"credentials_file" mapstructure:"credentials_file"`
	PublicBaseURL     string `yaml:"public_base_url" mapstructure:"public_base_url"`
	SignedURLTTLSecs  int    `yaml:"signed_url_ttl_secs" mapstructure:"signed_url_ttl_secs"`
	RefreshMarginSecs int    `yaml:"refresh_margin_secs" mapstructure:"refresh_margin_secs"`
	CacheSize         int    `yaml:"cache_size" mapstructure:"cache_size"`
	SignConcurrency   int    `yaml:"sign_concurrency" mapstructure:"sign_concurrency"`
	RedisAddr         string `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisKeyPrefix    string `yaml:"redis_key_prefix" mapstructure:"redis_key_prefix"`
}

// SignedURLTTL returns the signed URL lifetime.
func (s StorageConfig) SignedURLTTL() time.Duration {
	return time.Duration(s.SignedURLTTLSecs) * time.Second
}

// RefreshMargin returns how long before expiry a cached URL is dropped.
func (s StorageConfig) RefreshMargin() time.Duration {
	return time.Duration(s.RefreshMarginSecs) * time.Second
}

// ProvidersConfig holds credentials and limits for each model provider.
type ProvidersConfig struct {
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI    OpenAIConfig    `yaml:"openai" mapstructure:"openai"`
	Moondream MoondreamConfig `yaml:"moondream" mapstructure:"moondream"`
}

// RateConfig is a token bucket: RPS requests per second with Burst headroom.
type RateConfig struct {
	RPS   float64 `yaml:"rps" mapstructure:"rps"`
	Burst int     `yaml:"burst" mapstructure:"burst"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string     `yaml:"key" mapstructure:"key"`
	Model     string     `yaml:"model" mapstructure:"model"`
	MaxTokens int64      `yaml:"max_tokens" mapstructure:"max_tokens"`
	Rate      RateConfig `yaml:"rate" mapstructure:"rate"`
}

// OpenAIConfig holds OpenAI chat completions settings.
type OpenAIConfig struct {
	Key       string     `yaml:"key" mapstructure:"key"`
	BaseURL   string     `yaml:"base_url" mapstructure:"base_url"`
	Model     string     `yaml:"model" mapstructure:"model"`
	MaxTokens int64      `yaml:"max_tokens" mapstructure:"max_tokens"`
	Rate      RateConfig `yaml:"rate" mapstructure:"rate"`
}

// MoondreamConfig holds settings for the coordinate-only detector.
type MoondreamConfig struct {
	Key          string     `yaml:"key" mapstructure:"key"`
	BaseURL      string     `yaml:"base_url" mapstructure:"base_url"`
	Model        string     `yaml:"model" mapstructure:"model"`
	InlineImages bool       `yaml:"inline_images" mapstructure:"inline_images"`
	Rate         RateConfig `yaml:"rate" mapstructure:"rate"`
}

// StagesConfig binds each pipeline stage to a provider name.
type StagesConfig struct {
	ComponentDiscovery string `yaml:"component_discovery" mapstructure:"component_discovery"`
	ElementDiscovery   string `yaml:"element_discovery" mapstructure:"element_discovery"`
	Anchoring          string `yaml:"anchoring" mapstructure:"anchoring"`
	Detection          string `yaml:"detection" mapstructure:"detection"`
	Accuracy           string `yaml:"accuracy" mapstructure:"accuracy"`
}

// PipelineConfig configures extraction behavior.
type PipelineConfig struct {
	MaxConcurrentScreenshots int  `yaml:"max_concurrent_screenshots" mapstructure:"max_concurrent_screenshots"`
	AccuracyScoring          bool `yaml:"accuracy_scoring" mapstructure:"accuracy_scoring"`
	AccuracyThreshold        int  `yaml:"accuracy_threshold" mapstructure:"accuracy_threshold"`
	ProbeTimeoutSecs         int  `yaml:"probe_timeout_secs" mapstructure:"probe_timeout_secs"`
}

// PromptsConfig configures the prompt catalog.
type PromptsConfig struct {
	Path          string `yaml:"path" mapstructure:"path"`
	Watch         bool   `yaml:"watch" mapstructure:"watch"`
	AnchorDensity string `yaml:"anchor_density" mapstructure:"anchor_density"`
}

// PricingConfig holds pricing overrides merged over the built-in rates.
type PricingConfig struct {
	Models  map[string]ModelPricing `yaml:"models" mapstructure:"models"`
	PerCall map[string]float64      `yaml:"per_call" mapstructure:"per_call"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// ResilienceConfig configures transport retry and per-provider breakers.
type ResilienceConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled" mapstructure:"enabled"`
	Exporter    string  `yaml:"exporter" mapstructure:"exporter"`
	Endpoint    string  `yaml:"endpoint" mapstructure:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio" mapstructure:"sample_ratio"`
}

// MonitoringConfig configures the serve-mode batch health checker.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	CostThresholdUSD     float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	StallMinutes         int     `yaml:"stall_minutes" mapstructure:"stall_minutes"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("UXEXTRACT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "ux-extract.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	// Empty defaults register keys so env-only values unmarshal.
	for _, key := range []string{
		"storage.bucket", "storage.credentials_file", "storage.public_base_url", "storage.redis_addr",
		"providers.anthropic.key", "providers.openai.key", "providers.moondream.key",
		"prompts.path", "tracing.endpoint", "monitoring.webhook_url",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("prompts.watch", false)
	v.SetDefault("storage.mode", "gcs")
	v.SetDefault("storage.signed_url_ttl_secs", 3600)
	v.SetDefault("storage.refresh_margin_secs", 60)
	v.SetDefault("storage.cache_size", 4096)
	v.SetDefault("storage.sign_concurrency", 8)
	v.SetDefault("storage.redis_key_prefix", "uxextract:signed:")
	v.SetDefault("providers.anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("providers.anthropic.max_tokens", 4096)
	v.SetDefault("providers.anthropic.rate.rps", 4)
	v.SetDefault("providers.anthropic.rate.burst", 4)
	v.SetDefault("providers.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("providers.openai.model", "gpt-4.1")
	v.SetDefault("providers.openai.max_tokens", 4096)
	v.SetDefault("providers.openai.rate.rps", 4)
	v.SetDefault("providers.openai.rate.burst", 4)
	v.SetDefault("providers.moondream.base_url", "https://api.moondream.ai/v1")
	v.SetDefault("providers.moondream.model", "moondream-detect")
	v.SetDefault("providers.moondream.inline_images", true)
	v.SetDefault("providers.moondream.rate.rps", 2)
	v.SetDefault("providers.moondream.rate.burst", 1)
	v.SetDefault("stages.component_discovery", "anthropic")
	v.SetDefault("stages.element_discovery", "anthropic")
	v.SetDefault("stages.anchoring", "anthropic")
	v.SetDefault("stages.detection", "moondream")
	v.SetDefault("stages.accuracy", "anthropic")
	v.SetDefault("pipeline.max_concurrent_screenshots", 5)
	v.SetDefault("pipeline.accuracy_scoring", false)
	v.SetDefault("pipeline.accuracy_threshold", 70)
	v.SetDefault("pipeline.probe_timeout_secs", 20)
	v.SetDefault("prompts.anchor_density", "moderate")
	v.SetDefault("resilience.max_attempts", 3)
	v.SetDefault("resilience.initial_backoff_ms", 500)
	v.SetDefault("resilience.max_backoff_ms", 10000)
	v.SetDefault("resilience.failure_threshold", 5)
	v.SetDefault("resilience.reset_timeout_secs", 30)
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.2)
	v.SetDefault("monitoring.cost_threshold_usd", 0)
	v.SetDefault("monitoring.stall_minutes", 60)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields required by the given command mode:
// "extract", "serve" or "migrate".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "migrate":
	case "extract", "serve":
		errs = append(errs, c.validatePipeline()...)
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
		errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver))
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validatePipeline() []string {
	var errs []string

	if n := c.Pipeline.MaxConcurrentScreenshots; n < 1 || n > 64 {
		errs = append(errs, "pipeline.max_concurrent_screenshots must be between 1 and 64")
	}
	if t := c.Pipeline.AccuracyThreshold; t < 0 || t > 100 {
		errs = append(errs, "pipeline.accuracy_threshold must be between 0 and 100")
	}

	switch c.Storage.Mode {
	case "gcs":
		if c.Storage.Bucket == "" {
			errs = append(errs, "storage.bucket is required for gcs mode")
		}
	case "public":
		if c.Storage.PublicBaseURL == "" {
			errs = append(errs, "storage.public_base_url is required for public mode")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage.mode %q must be gcs or public", c.Storage.Mode))
	}
	if c.Storage.SignedURLTTLSecs <= c.Storage.RefreshMarginSecs {
		errs = append(errs, "storage.signed_url_ttl_secs must exceed storage.refresh_margin_secs")
	}

	stages := map[string]string{
		"component_discovery": c.Stages.ComponentDiscovery,
		"element_discovery":   c.Stages.ElementDiscovery,
		"anchoring":           c.Stages.Anchoring,
		"detection":           c.Stages.Detection,
	}
	if c.Pipeline.AccuracyScoring {
		stages["accuracy"] = c.Stages.Accuracy
	}
	for _, name := range []string{"component_discovery", "element_discovery", "anchoring", "detection", "accuracy"} {
		provider, ok := stages[name]
		if !ok {
			continue
		}
		if key := c.providerKey(provider); key == "" {
			errs = append(errs, fmt.Sprintf("stages.%s: providers.%s.key is required", name, provider))
		}
	}

	return errs
}

// providerKey returns the API key configured for a provider name, or ""
// when the provider is unknown.
func (c *Config) providerKey(provider string) string {
	switch provider {
	case "anthropic":
		return c.Providers.Anthropic.Key
	case "openai":
		return c.Providers.OpenAI.Key
	case "moondream":
		return c.Providers.Moondream.Key
	default:
		return ""
	}
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Workflow   WorkflowConfig   `yaml:"workflow" mapstructure:"workflow"`
	Resilience ResilienceConfig `yaml:"resilience" mapstructure:"resilience"`
	Duplicate  DuplicateConfig  `yaml:"duplicate" mapstructure:"duplicate"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Events     EventsConfig     `yaml:"events" mapstructure:"events"`
	Metrics    MetricsConfig    `yaml:"metrics" mapstructure:"metrics"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	RulesPath  string           `yaml:"rules_path" mapstructure:"rules_path"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key                 string  `yaml:"key" mapstructure:"key"`
	Model               string  `yaml:"model" mapstructure:"model"`
	MaxTokens           int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	ClassifyTemperature float64 `yaml:"classify_temperature" mapstructure:"classify_temperature"`
	ExtractTemperature  float64 `yaml:"extract_temperature" mapstructure:"extract_temperature"`
	RespondTemperature  float64 `yaml:"respond_temperature" mapstructure:"respond_temperature"`
	MaxPromptChars      int     `yaml:"max_prompt_chars" mapstructure:"max_prompt_chars"`
	RateLimit           float64 `yaml:"rate_limit" mapstructure:"rate_limit"` // requests per second, 0 = unlimited
	RateBurst           int     `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// WorkflowConfig configures the step scheduler.
type WorkflowConfig struct {
	EnableAIClassification bool          `yaml:"enable_ai_classification" mapstructure:"enable_ai_classification"`
	EnableAIExtraction     bool          `yaml:"enable_ai_extraction" mapstructure:"enable_ai_extraction"`
	EnableAIResponse       bool          `yaml:"enable_ai_response" mapstructure:"enable_ai_response"`
	ValidationTimeout      time.Duration `yaml:"validation_timeout" mapstructure:"validation_timeout"`
	DuplicateTimeout       time.Duration `yaml:"duplicate_timeout" mapstructure:"duplicate_timeout"`
	ClassificationTimeout  time.Duration `yaml:"classification_timeout" mapstructure:"classification_timeout"`
	ExtractionTimeout      time.Duration `yaml:"extraction_timeout" mapstructure:"extraction_timeout"`
	ResponseTimeout        time.Duration `yaml:"response_timeout" mapstructure:"response_timeout"`
	RoutingTimeout         time.Duration `yaml:"routing_timeout" mapstructure:"routing_timeout"`
	Ceiling                time.Duration `yaml:"ceiling" mapstructure:"ceiling"`
	MaxSubjectChars        int           `yaml:"max_subject_chars" mapstructure:"max_subject_chars"`
	MaxBodyChars           int           `yaml:"max_body_chars" mapstructure:"max_body_chars"`
}

// ResilienceConfig configures retry, circuit breaking and the confidence gate.
type ResilienceConfig struct {
	MaxAttempts         int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs    int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs        int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier          float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction      float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
	FailureThreshold    int     `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	FailureRate         float64 `yaml:"failure_rate" mapstructure:"failure_rate"`
	MinSamples          int     `yaml:"min_samples" mapstructure:"min_samples"`
	WindowSecs          int     `yaml:"window_secs" mapstructure:"window_secs"`
	CooldownSecs        int     `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
}

// DuplicateConfig configures the duplicate detector.
type DuplicateConfig struct {
	Backend    string  `yaml:"backend" mapstructure:"backend"` // "memory" or "redis"
	RedisURL   string  `yaml:"redis_url" mapstructure:"redis_url"`
	Threshold  float64 `yaml:"threshold" mapstructure:"threshold"`
	WindowSize int     `yaml:"window_size" mapstructure:"window_size"`
	WindowTTL  int     `yaml:"window_ttl_hours" mapstructure:"window_ttl_hours"`
}

// StoreConfig configures the run persistence backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite", "postgres" or "none"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// EventsConfig configures the Kafka result publisher. Empty brokers disables it.
type EventsConfig struct {
	Brokers []string `yaml:"brokers" mapstructure:"brokers"`
	Topic   string   `yaml:"topic" mapstructure:"topic"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// MonitoringConfig configures the background alert checker.
type MonitoringConfig struct {
	WebhookURL            string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs     int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours   int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold  float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	FallbackRateThreshold float64 `yaml:"fallback_rate_threshold" mapstructure:"fallback_rate_threshold"`
	CostThresholdUSD      float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
}

// PricingConfig holds per-model Anthropic pricing rates.
type PricingConfig struct {
	Anthropic map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
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
	v.SetEnvPrefix("TICKET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.classify_temperature", 0.2)
	v.SetDefault("anthropic.extract_temperature", 0.1)
	v.SetDefault("anthropic.respond_temperature", 0.7)
	v.SetDefault("anthropic.max_prompt_chars", 3000)
	v.SetDefault("anthropic.rate_limit", 5.0)
	v.SetDefault("anthropic.rate_burst", 5)
	v.SetDefault("workflow.enable_ai_classification", true)
	v.SetDefault("workflow.enable_ai_extraction", true)
	v.SetDefault("workflow.enable_ai_response", true)
	v.SetDefault("workflow.validation_timeout", "1s")
	v.SetDefault("workflow.duplicate_timeout", "2s")
	v.SetDefault("workflow.classification_timeout", "10s")
	v.SetDefault("workflow.extraction_timeout", "10s")
	v.SetDefault("workflow.response_timeout", "15s")
	v.SetDefault("workflow.routing_timeout", "1s")
	v.SetDefault("workflow.ceiling", "30s")
	v.SetDefault("workflow.max_subject_chars", 500)
	v.SetDefault("workflow.max_body_chars", 50000)
	v.SetDefault("resilience.max_attempts", 3)
	v.SetDefault("resilience.initial_backoff_ms", 500)
	v.SetDefault("resilience.max_backoff_ms", 5000)
	v.SetDefault("resilience.multiplier", 2.0)
	v.SetDefault("resilience.jitter_fraction", 0.25)
	v.SetDefault("resilience.failure_threshold", 5)
	v.SetDefault("resilience.failure_rate", 0.5)
	v.SetDefault("resilience.min_samples", 10)
	v.SetDefault("resilience.window_secs", 60)
	v.SetDefault("resilience.cooldown_secs", 30)
	v.SetDefault("resilience.confidence_threshold", 0.6)
	v.SetDefault("duplicate.backend", "memory")
	v.SetDefault("duplicate.redis_url", "")
	v.SetDefault("duplicate.threshold", 0.85)
	v.SetDefault("duplicate.window_size", 20)
	v.SetDefault("duplicate.window_ttl_hours", 72)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "ticket-workflow.db")
	v.SetDefault("events.brokers", []string{})
	v.SetDefault("events.topic", "ticket-workflow.results")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.10)
	v.SetDefault("monitoring.fallback_rate_threshold", 0.50)
	v.SetDefault("monitoring.cost_threshold_usd", 50.0)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("rules_path", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks that the configuration is usable for the given mode
// ("process" or "serve").
func (c *Config) Validate(mode string) error {
	var missing []string
	switch mode {
	case "process":
	case "serve":
		if c.Server.Port <= 0 {
			return eris.New("config: server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}
	if c.Workflow.Ceiling <= 0 {
		missing = append(missing, "workflow.ceiling")
	}
	if c.Resilience.ConfidenceThreshold < 0 || c.Resilience.ConfidenceThreshold > 1 {
		return eris.Errorf("config: resilience.confidence_threshold %.2f out of range [0,1]", c.Resilience.ConfidenceThreshold)
	}
	if c.Duplicate.Threshold <= 0 || c.Duplicate.Threshold > 1 {
		return eris.Errorf("config: duplicate.threshold %.2f out of range (0,1]", c.Duplicate.Threshold)
	}
	switch c.Duplicate.Backend {
	case "memory":
	case "redis":
		if c.Duplicate.RedisURL == "" {
			missing = append(missing, "duplicate.redis_url")
		}
	default:
		return eris.Errorf("config: unknown duplicate.backend %q", c.Duplicate.Backend)
	}
	switch c.Store.Driver {
	case "none":
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			missing = append(missing, "store.database_url")
		}
	default:
		return eris.Errorf("config: unknown store.driver %q", c.Store.Driver)
	}
	if len(missing) > 0 {
		return eris.Errorf("config: missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// AIEnabled reports whether any step may call the inference gateway.
func (c *Config) AIEnabled() bool {
	if c.Anthropic.Key == "" {
		return false
	}
	return c.Workflow.EnableAIClassification || c.Workflow.EnableAIExtraction || c.Workflow.EnableAIResponse
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

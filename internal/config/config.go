package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type HTTPConfig struct {
	Port            int           `yaml:"port"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	TriggerRate     int           `yaml:"trigger_rate"` // triggers per user per window
	TriggerWindow   time.Duration `yaml:"trigger_window"`
	AdminJWTSecret  string        `yaml:"admin_jwt_secret"`  // HS256 secret for admin bearer tokens
	IngestSharedKey string        `yaml:"ingest_shared_key"` // optional X-Ingest-Key for /v1/triggers
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // guardrail policy cache
}

type AIConfig struct {
	Provider        string `yaml:"provider"` // openai | gemini | noop
	OpenAIKey       string `yaml:"openai_key"`
	OpenAIBaseURL   string `yaml:"openai_base_url"`
	GeminiKey       string `yaml:"gemini_key"`
	GeminiURL       string `yaml:"gemini_url"`
	DefaultModel    string `yaml:"default_model"`
	MaxOutputTokens int    `yaml:"max_output_tokens"`
	ConcurrentLimit int    `yaml:"concurrent_limit"` // max concurrent completion calls
}

type SlackConfig struct {
	BotToken string `yaml:"bot_token"`
}

type WorkerConfig struct {
	Concurrency       int           `yaml:"concurrency"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`
	MaxAttempts       int           `yaml:"max_attempts"`
	BackoffBase       time.Duration `yaml:"backoff_base"`
	BackoffMax        time.Duration `yaml:"backoff_max"`
}

type TimeoutConfig struct {
	History    time.Duration `yaml:"history"`
	Completion time.Duration `yaml:"completion"`
	Store      time.Duration `yaml:"store"`
	Delivery   time.Duration `yaml:"delivery"`
	Audit      time.Duration `yaml:"audit"`
}

type ContextConfig struct {
	MaxMessages int `yaml:"max_messages"`
	MaxTokens   int `yaml:"max_tokens"`
	MaxFieldLen int `yaml:"max_field_len"` // runes per sanitized field
}

type UsageConfig struct {
	DefaultLimit   int64  `yaml:"default_limit"`
	DefaultOverage int64  `yaml:"default_overage"`
	UpgradeURL     string `yaml:"upgrade_url"`
}

type DeliveryConfig struct {
	EphemeralAttempts  int           `yaml:"ephemeral_attempts"`
	DMFallbackAttempts int           `yaml:"dm_fallback_attempts"`
	AttemptPause       time.Duration `yaml:"attempt_pause"`
}

type AuditConfig struct {
	AMQPURL  string `yaml:"amqp_url"` // optional; events also go to Postgres
	Exchange string `yaml:"exchange"`
}

type AlertConfig struct {
	TelegramToken string  `yaml:"telegram_token"`
	ChatIDs       []int64 `yaml:"chat_ids"`
	Console       bool    `yaml:"console"` // answer operator commands in the alert chats
}

type SchedulerConfig struct {
	QueueStatsInterval time.Duration `yaml:"queue_stats_interval"`
}

type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key"`
}

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	AI        AIConfig        `yaml:"ai"`
	Slack     SlackConfig     `yaml:"slack"`
	Worker    WorkerConfig    `yaml:"worker"`
	Timeouts  TimeoutConfig   `yaml:"timeouts"`
	Context   ContextConfig   `yaml:"context"`
	Usage     UsageConfig     `yaml:"usage"`
	Delivery  DeliveryConfig  `yaml:"delivery"`
	Audit     AuditConfig     `yaml:"audit"`
	Alert     AlertConfig     `yaml:"alert"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Security  SecurityConfig  `yaml:"security"`
	Locale    string          `yaml:"locale"` // language of user-facing notices: en | fa

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path, applies env overrides and defaults,
// and validates the fields the service cannot start without.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return cfg, nil
}

// Parse decodes and finalizes a config document.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	override := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	override(&cfg.Database.URL, "DATABASE_URL")
	override(&cfg.Redis.URL, "REDIS_URL")
	override(&cfg.Slack.BotToken, "SLACK_BOT_TOKEN")
	override(&cfg.AI.OpenAIKey, "OPENAI_API_KEY")
	override(&cfg.AI.GeminiKey, "GEMINI_API_KEY")
	override(&cfg.HTTP.AdminJWTSecret, "ADMIN_JWT_SECRET")
	override(&cfg.Security.EncryptionKey, "ENCRYPTION_KEY")
}

func applyDefaults(cfg *Config) {
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 10 * time.Second
	}
	if cfg.HTTP.TriggerRate <= 0 {
		cfg.HTTP.TriggerRate = 30
	}
	if cfg.HTTP.TriggerWindow <= 0 {
		cfg.HTTP.TriggerWindow = time.Minute
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "openai"
	}
	if cfg.AI.DefaultModel == "" {
		cfg.AI.DefaultModel = "gpt-4o-mini"
	}
	if cfg.AI.MaxOutputTokens <= 0 {
		cfg.AI.MaxOutputTokens = 400
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 16
	}

	if cfg.Worker.Concurrency <= 0 {
		cfg.Worker.Concurrency = 8
	}
	if cfg.Worker.PollInterval <= 0 {
		cfg.Worker.PollInterval = 500 * time.Millisecond
	}
	if cfg.Worker.VisibilityTimeout <= 0 {
		cfg.Worker.VisibilityTimeout = 60 * time.Second
	}
	if cfg.Worker.MaxAttempts <= 0 {
		cfg.Worker.MaxAttempts = 5
	}
	if cfg.Worker.BackoffBase <= 0 {
		cfg.Worker.BackoffBase = 2 * time.Second
	}
	if cfg.Worker.BackoffMax <= 0 {
		cfg.Worker.BackoffMax = 5 * time.Minute
	}

	if cfg.Timeouts.History <= 0 {
		cfg.Timeouts.History = 5 * time.Second
	}
	if cfg.Timeouts.Completion <= 0 {
		cfg.Timeouts.Completion = 30 * time.Second
	}
	if cfg.Timeouts.Store <= 0 {
		cfg.Timeouts.Store = 3 * time.Second
	}
	if cfg.Timeouts.Delivery <= 0 {
		cfg.Timeouts.Delivery = 5 * time.Second
	}
	if cfg.Timeouts.Audit <= 0 {
		cfg.Timeouts.Audit = 2 * time.Second
	}

	if cfg.Context.MaxMessages <= 0 {
		cfg.Context.MaxMessages = 20
	}
	if cfg.Context.MaxTokens <= 0 {
		cfg.Context.MaxTokens = 3000
	}
	if cfg.Context.MaxFieldLen <= 0 {
		cfg.Context.MaxFieldLen = 4000
	}

	if cfg.Usage.DefaultLimit <= 0 {
		cfg.Usage.DefaultLimit = 100
	}

	if cfg.Delivery.EphemeralAttempts <= 0 {
		cfg.Delivery.EphemeralAttempts = 2
	}
	if cfg.Delivery.DMFallbackAttempts <= 0 {
		cfg.Delivery.DMFallbackAttempts = 1
	}
	if cfg.Delivery.AttemptPause <= 0 {
		cfg.Delivery.AttemptPause = 300 * time.Millisecond
	}

	if cfg.Audit.Exchange == "" {
		cfg.Audit.Exchange = "suggestion.audit"
	}
	if cfg.Locale == "" {
		cfg.Locale = "en"
	}
	if cfg.Scheduler.QueueStatsInterval <= 0 {
		cfg.Scheduler.QueueStatsInterval = 15 * time.Second
	}
}

func (cfg *Config) validate() error {
	if cfg.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if cfg.Slack.BotToken == "" {
		return errors.New("slack.bot_token is required")
	}
	switch cfg.AI.Provider {
	case "openai":
		if cfg.AI.OpenAIKey == "" {
			return errors.New("ai.openai_key is required for provider openai")
		}
	case "gemini":
		if cfg.AI.GeminiKey == "" {
			return errors.New("ai.gemini_key is required for provider gemini")
		}
	case "noop":
	default:
		return fmt.Errorf("ai.provider %q is not supported", cfg.AI.Provider)
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return 5 * time.Minute
	}
	return d
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot settings.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"API_TOKEN"`
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies the webhook HTTP server and registration settings.
type WebhookConfig struct {
	// URL is the public base URL; the webhook path is appended on registration.
	URL         string `yaml:"url" envconfig:"WEBHOOK_URL"`
	SecretToken string `yaml:"secret_token" envconfig:"SECRET_TOKEN"`
	Listen      string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port        int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
	Path        string `yaml:"path" envconfig:"WEBHOOK_PATH"`
	SetupPath   string `yaml:"setup_path" envconfig:"WEBHOOK_SETUP_PATH"`
	// DisableSetup hides the administrative setup endpoint.
	DisableSetup bool `yaml:"disable_setup" envconfig:"WEBHOOK_DISABLE_SETUP"`
	DropPending  bool `yaml:"drop_pending" envconfig:"WEBHOOK_DROP_PENDING"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample" envconfig:"LOG_DEBUG_SAMPLE"`
	Dir         string `yaml:"dir" envconfig:"LOG_DIR"`
	BotFile     string `yaml:"bot_file" envconfig:"LOG_FILE"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

// RatesConfig configures the exchange rate API client.
type RatesConfig struct {
	BaseURL        string `yaml:"base_url" envconfig:"RATES_BASE_URL"`
	TimeoutSeconds int    `yaml:"timeout_seconds" envconfig:"RATES_TIMEOUT_SECONDS"`
}

// Timeout returns the per-lookup timeout.
func (r RatesConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// SessionConfig selects and tunes the conversation session store.
type SessionConfig struct {
	Backend    string `yaml:"backend" envconfig:"SESSION_BACKEND"`
	TTLMinutes int    `yaml:"ttl_minutes" envconfig:"SESSION_TTL_MINUTES"`
}

// TTL returns the session expiry; zero means sessions never expire.
func (s SessionConfig) TTL() time.Duration {
	return time.Duration(s.TTLMinutes) * time.Minute
}

// RedisConfig holds connection settings for the Redis session backend.
type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" envconfig:"REDIS_DB"`
	Prefix   string `yaml:"prefix" envconfig:"REDIS_PREFIX"`
}

// ConversationConfig tunes the conversation flow.
type ConversationConfig struct {
	// MatchMode is "substring" (default) or "exact"; see catalog.MatchMode.
	MatchMode string `yaml:"match_mode" envconfig:"CURRENCY_MATCH_MODE"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// SessionMemory keeps sessions in process memory.
	SessionMemory = "memory"
	// SessionRedis keeps sessions in Redis.
	SessionRedis = "redis"
	// SessionPostgres keeps sessions in PostgreSQL.
	SessionPostgres = "postgres"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
)

const (
	defaultWebhookPath  = "/api/webhook"
	defaultSetupPath    = "/api/setup-webhook"
	defaultListen       = "0.0.0.0"
	defaultPort         = 8080
	defaultRatesBaseURL = "https://api.exchangerate-api.com/v4/latest"
	defaultRatesTimeout = 10
	defaultRedisPrefix  = "currencybot:"
)

// RateLimitConfig holds settings for rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": Telegram callback button presses
// - "message": standard text messages
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Config aggregates the bot configuration.
type Config struct {
	Telegram     TelegramConfig     `yaml:"telegram"`
	Webhook      WebhookConfig      `yaml:"webhook"`
	Logging      LoggingConfig      `yaml:"logging"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit"`
	Rates        RatesConfig        `yaml:"rates"`
	Session      SessionConfig      `yaml:"session"`
	Redis        RedisConfig        `yaml:"redis"`
	Database     DatabaseConfig     `yaml:"database"`
	Conversation ConversationConfig `yaml:"conversation"`
}

// DatabaseConfig holds PostgreSQL connection settings for the postgres session backend.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

// Load reads an optional YAML file, an optional .env file and the environment,
// in that order of precedence (environment wins).
func Load(path string) (*Config, error) {
	var cfg Config

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}
	if cfg.Telegram.Token == "" {
		// accepted alias used by other deployments of the bot
		cfg.Telegram.Token = os.Getenv("BOT_TOKEN")
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates required fields and fills in defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram token is required (API_TOKEN)")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeWebhook
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if err := normalizeWebhook(&cfg.Webhook); err != nil {
			return err
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	allowed := map[string]struct{}{
		UpdateCallback: {},
		UpdateMessage:  {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}

	if strings.TrimSpace(cfg.Rates.BaseURL) == "" {
		cfg.Rates.BaseURL = defaultRatesBaseURL
	}
	cfg.Rates.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Rates.BaseURL), "/")
	if cfg.Rates.TimeoutSeconds <= 0 {
		cfg.Rates.TimeoutSeconds = defaultRatesTimeout
	}

	if err := normalizeSession(cfg); err != nil {
		return err
	}

	mode := strings.ToLower(strings.TrimSpace(cfg.Conversation.MatchMode))
	switch mode {
	case "":
		mode = "substring"
	case "substring", "exact":
	default:
		return fmt.Errorf("invalid conversation.match_mode %q; allowed: substring, exact", cfg.Conversation.MatchMode)
	}
	cfg.Conversation.MatchMode = mode
	return nil
}

func normalizeWebhook(w *WebhookConfig) error {
	w.URL = strings.TrimRight(strings.TrimSpace(w.URL), "/")
	if w.URL == "" {
		return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook' (WEBHOOK_URL)")
	}
	u, err := url.Parse(w.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("webhook.url must be an absolute http(s) URL, got %q", w.URL)
	}
	if strings.TrimSpace(w.SecretToken) == "" {
		return fmt.Errorf("webhook.secret_token is required when telegram.run_mode is 'webhook' (SECRET_TOKEN)")
	}
	if strings.TrimSpace(w.Listen) == "" {
		w.Listen = defaultListen
	}
	if w.Port == 0 {
		w.Port = defaultPort
	}
	if w.Port < 0 || w.Port > 65535 {
		return fmt.Errorf("webhook.port must be within 1-65535, got %d", w.Port)
	}
	w.Path = normalizePath(w.Path, defaultWebhookPath)
	w.SetupPath = normalizePath(w.SetupPath, defaultSetupPath)
	if w.Path == w.SetupPath {
		return fmt.Errorf("webhook.path and webhook.setup_path must differ")
	}
	return nil
}

func normalizeSession(cfg *Config) error {
	backend := strings.ToLower(strings.TrimSpace(cfg.Session.Backend))
	if backend == "" {
		backend = SessionMemory
	}
	switch backend {
	case SessionMemory:
	case SessionRedis:
		if strings.TrimSpace(cfg.Redis.Addr) == "" {
			return fmt.Errorf("redis.addr is required when session.backend is 'redis'")
		}
		if cfg.Redis.Prefix == "" {
			cfg.Redis.Prefix = defaultRedisPrefix
		}
	case SessionPostgres:
		if strings.TrimSpace(cfg.Database.Host) == "" || strings.TrimSpace(cfg.Database.Name) == "" {
			return fmt.Errorf("database.host and database.name are required when session.backend is 'postgres'")
		}
		if cfg.Database.Port == "" {
			cfg.Database.Port = "5432"
		}
		if cfg.Database.SSLMode == "" {
			cfg.Database.SSLMode = "disable"
		}
		if cfg.Database.MaxConnections <= 0 {
			cfg.Database.MaxConnections = 5
		}
	default:
		return fmt.Errorf("invalid session.backend %q; allowed: memory, redis, postgres", cfg.Session.Backend)
	}
	cfg.Session.Backend = backend
	if cfg.Session.TTLMinutes < 0 {
		return fmt.Errorf("session.ttl_minutes must be >= 0")
	}
	return nil
}

func normalizePath(p, def string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return def
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// WebhookEndpoint returns the public URL Telegram should deliver updates to.
func (c *Config) WebhookEndpoint() string {
	return c.Webhook.URL + c.Webhook.Path
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func webhookConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{Token: "123:abc"},
		Webhook: WebhookConfig{
			URL:         "https://bot.example.com/",
			SecretToken: "s3cret",
		},
	}
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := webhookConfig()
	if err := Normalize(cfg); err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}
	if cfg.Telegram.RunMode != RunModeWebhook {
		t.Errorf("RunMode = %q, want webhook", cfg.Telegram.RunMode)
	}
	if cfg.Webhook.Path != "/api/webhook" || cfg.Webhook.SetupPath != "/api/setup-webhook" {
		t.Errorf("paths = %q %q", cfg.Webhook.Path, cfg.Webhook.SetupPath)
	}
	if cfg.Webhook.Port != 8080 || cfg.Webhook.Listen != "0.0.0.0" {
		t.Errorf("listen = %s:%d", cfg.Webhook.Listen, cfg.Webhook.Port)
	}
	if got := cfg.WebhookEndpoint(); got != "https://bot.example.com/api/webhook" {
		t.Errorf("WebhookEndpoint() = %q", got)
	}
	if cfg.Rates.Timeout() != 10*time.Second {
		t.Errorf("rates timeout = %s", cfg.Rates.Timeout())
	}
	if cfg.Rates.BaseURL != "https://api.exchangerate-api.com/v4/latest" {
		t.Errorf("rates base url = %q", cfg.Rates.BaseURL)
	}
	if cfg.Session.Backend != SessionMemory {
		t.Errorf("session backend = %q", cfg.Session.Backend)
	}
	if cfg.Conversation.MatchMode != "substring" {
		t.Errorf("match mode = %q", cfg.Conversation.MatchMode)
	}
}

func TestNormalizeRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errSub string
	}{
		{"missing token", func(c *Config) { c.Telegram.Token = " " }, "token is required"},
		{"missing url", func(c *Config) { c.Webhook.URL = "" }, "webhook.url is required"},
		{"relative url", func(c *Config) { c.Webhook.URL = "bot.example.com" }, "absolute"},
		{"missing secret", func(c *Config) { c.Webhook.SecretToken = "" }, "secret_token is required"},
		{"bad mode", func(c *Config) { c.Telegram.RunMode = "push" }, "invalid telegram.run_mode"},
		{"bad backend", func(c *Config) { c.Session.Backend = "etcd" }, "invalid session.backend"},
		{"redis without addr", func(c *Config) { c.Session.Backend = "redis" }, "redis.addr"},
		{"postgres without host", func(c *Config) { c.Session.Backend = "postgres" }, "database.host"},
		{"bad match mode", func(c *Config) { c.Conversation.MatchMode = "fuzzy" }, "match_mode"},
		{"bad exclude", func(c *Config) { c.RateLimit.ExcludeUpdates = []string{"inline"} }, "exclude_updates"},
		{"same paths", func(c *Config) { c.Webhook.Path = "/x"; c.Webhook.SetupPath = "x" }, "must differ"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := webhookConfig()
			tt.mutate(cfg)
			err := Normalize(cfg)
			if err == nil || !strings.Contains(err.Error(), tt.errSub) {
				t.Fatalf("Normalize() error = %v, want substring %q", err, tt.errSub)
			}
		})
	}
}

func TestNormalizeLongpollSkipsWebhookChecks(t *testing.T) {
	cfg := &Config{Telegram: TelegramConfig{Token: "123:abc", RunMode: "polling"}}
	if err := Normalize(cfg); err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}
	if cfg.Telegram.RunMode != RunModeLongpoll {
		t.Fatalf("RunMode = %q", cfg.Telegram.RunMode)
	}
}

func TestLoadFromEnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := `
telegram:
  token: "from-yaml"
webhook:
  url: "https://yaml.example.com"
  secret_token: "yaml-secret"
  port: 9000
session:
  backend: redis
redis:
  addr: "localhost:6379"
conversation:
  match_mode: exact
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("API_TOKEN", "from-env")
	t.Setenv("SECRET_TOKEN", "env-secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Telegram.Token != "from-env" {
		t.Errorf("token = %q, want env value", cfg.Telegram.Token)
	}
	if cfg.Webhook.SecretToken != "env-secret" {
		t.Errorf("secret = %q", cfg.Webhook.SecretToken)
	}
	if cfg.Webhook.URL != "https://yaml.example.com" || cfg.Webhook.Port != 9000 {
		t.Errorf("webhook = %+v", cfg.Webhook)
	}
	if cfg.Redis.Prefix != "currencybot:" {
		t.Errorf("redis prefix = %q", cfg.Redis.Prefix)
	}
	if cfg.Conversation.MatchMode != "exact" {
		t.Errorf("match mode = %q", cfg.Conversation.MatchMode)
	}
}

func TestLoadWithoutFileUsesEnv(t *testing.T) {
	t.Setenv("API_TOKEN", "")
	t.Setenv("BOT_TOKEN", "alias-token")
	t.Setenv("WEBHOOK_URL", "https://env.example.com")
	t.Setenv("SECRET_TOKEN", "x")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Telegram.Token != "alias-token" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
}

func TestLoadMissingConfigIsFatal(t *testing.T) {
	t.Setenv("API_TOKEN", "")
	t.Setenv("BOT_TOKEN", "")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error without token")
	}
}

package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"

	coreconfig "github.com/m3rciful/currencybot/core/config"

	tele "gopkg.in/telebot.v4"
)

const defaultLongPollTimeout = 10 * time.Second

// allowedUpdates limits deliveries to the update kinds the bot routes.
var allowedUpdates = []string{"message", "callback_query"}

// BuildPoller returns the long poller used outside webhook mode.
func BuildPoller(cfg *coreconfig.Config) *tele.LongPoller {
	timeout := defaultLongPollTimeout
	if cfg != nil && cfg.Telegram.LongPollTimeoutSeconds > 0 {
		timeout = time.Duration(cfg.Telegram.LongPollTimeoutSeconds) * time.Second
	}
	return &tele.LongPoller{Timeout: timeout, AllowedUpdates: allowedUpdates}
}

// BuildWebhook describes the webhook registration sent to Telegram: the
// public endpoint plus the secret Telegram echoes back on every delivery.
func BuildWebhook(cfg *coreconfig.Config) *tele.Webhook {
	return &tele.Webhook{
		Endpoint:       &tele.WebhookEndpoint{PublicURL: cfg.WebhookEndpoint()},
		SecretToken:    cfg.Webhook.SecretToken,
		DropUpdates:    cfg.Webhook.DropPending,
		AllowedUpdates: allowedUpdates,
	}
}

// WebhookClient is the subset of *tele.Bot used to register webhooks.
type WebhookClient interface {
	SetWebhook(w *tele.Webhook) error
}

// WebhookRegistrar registers the configured webhook with Telegram.
type WebhookRegistrar struct {
	Client WebhookClient
	Hook   *tele.Webhook
}

// Register calls setWebhook and returns the registered URL.
func (r WebhookRegistrar) Register(ctx context.Context) (string, error) {
	if r.Client == nil || r.Hook == nil || r.Hook.Endpoint == nil {
		return "", errors.New("telegram: webhook registrar is not configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := r.Client.SetWebhook(r.Hook); err != nil {
		return "", fmt.Errorf("telegram: set webhook: %w", err)
	}
	return r.Hook.Endpoint.PublicURL, nil
}

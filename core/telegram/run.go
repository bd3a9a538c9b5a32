package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	coreconfig "github.com/m3rciful/currencybot/core/config"
	"github.com/m3rciful/currencybot/core/logger"
	"github.com/m3rciful/currencybot/core/metrics"
	"github.com/m3rciful/currencybot/core/netutil"
	tghelpers "github.com/m3rciful/currencybot/core/telegram/helpers"
	tgsender "github.com/m3rciful/currencybot/core/telegram/sender"
	"github.com/m3rciful/currencybot/core/telegram/webhook"

	tele "gopkg.in/telebot.v4"
)

// Middleware describes a global bot middleware to be registered via bot.Use.
type Middleware struct {
	Name string
	Use  func(next tele.HandlerFunc) tele.HandlerFunc
}

// Route declares a single bot handler bound to an arbitrary endpoint.
// Endpoint values are passed directly to tele.Bot.Handle.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions controls the behaviour of RunTelegram.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry
	Metrics  *metrics.Registry

	DispatcherOptions tgsender.Options
	Dispatcher        *tgsender.Dispatcher

	Middlewares []Middleware
	Routes      []Route
	OnError     func(error, tele.Context)

	DisableWebhookCleanup   bool
	DisableHelperDispatcher bool

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime exposes runtime components to lifecycle hooks.
type Runtime struct {
	Bot        *tele.Bot
	Dispatcher *tgsender.Dispatcher
	Registry   *Registry
}

// NewBot creates the API client for cfg. Webhook mode processes updates
// synchronously inside the HTTP request.
func NewBot(cfg *coreconfig.Config, onError func(error, tele.Context)) (*tele.Bot, error) {
	if cfg == nil {
		return nil, errors.New("telegram: nil config provided")
	}
	webhookMode := cfg.Telegram.RunMode == coreconfig.RunModeWebhook

	settings := tele.Settings{
		Token:       cfg.Telegram.Token,
		Client:      buildAPIClient(cfg),
		Synchronous: webhookMode,
		OnError:     onError,
	}
	if !webhookMode {
		settings.Poller = BuildPoller(cfg)
	}
	bot, err := tele.NewBot(settings)
	if err != nil {
		return nil, fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	return bot, nil
}

// buildAPIClient keeps the response deadline above the long-poll timeout so
// getUpdates is not cut short.
func buildAPIClient(cfg *coreconfig.Config) *http.Client {
	poll := BuildPoller(cfg).Timeout
	return netutil.BuildHTTPClient(netutil.ClientOptions{
		Timeout:         poll + 20*time.Second,
		ResponseTimeout: poll + 5*time.Second,
		Retries:         2,
	})
}

// RegisterWebhook points Telegram at the configured public endpoint.
func RegisterWebhook(ctx context.Context, cfg *coreconfig.Config) (string, error) {
	bot, err := NewBot(cfg, nil)
	if err != nil {
		return "", err
	}
	return WebhookRegistrar{Client: bot, Hook: BuildWebhook(cfg)}.Register(ctx)
}

// RunTelegram composes and runs a Telegram bot until the provided context is done.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Config == nil {
		return fmt.Errorf("telegram: nil config provided")
	}

	cfg := opts.Config
	reg := opts.Registry
	if reg == nil {
		reg = NewRegistry()
	}

	buildStart := time.Now()
	bot, err := NewBot(cfg, opts.OnError)
	if err != nil {
		return err
	}
	buildTook := time.Since(buildStart)

	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		dopts := opts.DispatcherOptions
		if dopts.Metrics == nil {
			dopts.Metrics = opts.Metrics
		}
		dispatcher = tgsender.NewDispatcher(dopts)
	}
	useHelperDispatcher := !opts.DisableHelperDispatcher
	if useHelperDispatcher {
		tghelpers.SetDispatcher(dispatcher)
	}
	defer func() {
		dispatcher.Close()
		if useHelperDispatcher {
			tghelpers.SetDispatcher(nil)
		}
	}()

	rt := Runtime{
		Bot:        bot,
		Dispatcher: dispatcher,
		Registry:   reg,
	}

	for _, mw := range opts.Middlewares {
		if mw.Use == nil {
			continue
		}
		bot.Use(mw.Use)
	}

	for _, route := range opts.Routes {
		if route.Endpoint == nil || route.Handler == nil {
			continue
		}
		bot.Handle(route.Endpoint, route.Handler)
	}

	InitBotCommands(bot, reg)

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			return err
		}
	}

	var runErr error
	if cfg.Telegram.RunMode == coreconfig.RunModeWebhook {
		runErr = runWebhook(ctx, bot, cfg, opts.Metrics, buildTook)
	} else {
		runErr = runPolling(ctx, bot, cfg, opts.DisableWebhookCleanup, buildTook)
	}

	var stopErr error
	if opts.OnStop != nil {
		stopErr = opts.OnStop(context.WithoutCancel(ctx), rt)
	}

	if stopErr != nil {
		return stopErr
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func runWebhook(ctx context.Context, bot *tele.Bot, cfg *coreconfig.Config, reg *metrics.Registry, buildTook time.Duration) error {
	addr := net.JoinHostPort(cfg.Webhook.Listen, strconv.Itoa(cfg.Webhook.Port))
	srv, err := webhook.New(webhook.Options{
		Addr:         addr,
		Path:         cfg.Webhook.Path,
		SetupPath:    cfg.Webhook.SetupPath,
		SecretToken:  cfg.Webhook.SecretToken,
		DisableSetup: cfg.Webhook.DisableSetup,
		Processor:    bot,
		Registrar:    WebhookRegistrar{Client: bot, Hook: BuildWebhook(cfg)},
		Metrics:      reg,
	})
	if err != nil {
		return fmt.Errorf("telegram: webhook server: %w", err)
	}

	logger.TG.LogAttrs(ctx, slog.LevelInfo, "webhook mode",
		slog.String("event", "mode"),
		slog.String("mode", coreconfig.RunModeWebhook),
		slog.String("listen", addr),
		slog.String("public_url", cfg.WebhookEndpoint()),
		slog.Duration("duration", logger.RoundMS(buildTook)),
	)
	return srv.Run(ctx)
}

func runPolling(ctx context.Context, bot *tele.Bot, cfg *coreconfig.Config, skipCleanup bool, buildTook time.Duration) error {
	logger.TG.Info("polling mode",
		slog.String("event", "mode"),
		slog.String("mode", coreconfig.RunModeLongpoll),
		slog.Duration("timeout", BuildPoller(cfg).Timeout),
		slog.Duration("duration", logger.RoundMS(buildTook)),
	)

	// getUpdates is refused while a webhook is registered.
	if !skipCleanup {
		if err := bot.RemoveWebhook(false); err != nil {
			logger.TG.Warn("failed to delete webhook",
				slog.String("event", "delete_webhook"),
				slog.String("err", logger.Sanitize(err.Error())),
			)
		} else {
			logger.TG.Info("webhook deleted", slog.String("event", "delete_webhook"))
		}
	}

	runDone := make(chan struct{})
	go func() {
		bot.Start()
		close(runDone)
	}()

	select {
	case <-ctx.Done():
		bot.Stop()
		<-runDone
		return ctx.Err()
	case <-runDone:
		return nil
	}
}

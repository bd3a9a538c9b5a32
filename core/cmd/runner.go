package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	coreconfig "github.com/m3rciful/currencybot/core/config"
	"github.com/m3rciful/currencybot/core/logger"
	coretelegram "github.com/m3rciful/currencybot/core/telegram"
)

// TelegramApp is the minimal interface required to run a Telegram bot.
type TelegramApp interface {
	TelegramRunOptions() (coretelegram.RunOptions, error)
}

// Options describe how to load configuration, bootstrap the app, and run the bot.
type Options struct {
	// ConfigPath wins over the ConfigEnvVar lookup. An empty result means
	// environment-only configuration.
	ConfigPath   string
	ConfigEnvVar string

	LoadConfig func(path string) (*coreconfig.Config, error)
	Bootstrap  func(ctx context.Context, cfg *coreconfig.Config) (TelegramApp, error)

	ShutdownLogger func() error
	RunTelegram    func(ctx context.Context, opts coretelegram.RunOptions) error
}

// ResolveConfigPath returns path, or the value of env (CONFIG_PATH when empty).
func ResolveConfigPath(path, env string) string {
	if path != "" {
		return path
	}
	if env == "" {
		env = "CONFIG_PATH"
	}
	return os.Getenv(env)
}

// Run loads the configuration, bootstraps the app and blocks in RunTelegram
// until SIGINT or SIGTERM.
func Run(opts Options) error {
	if opts.Bootstrap == nil {
		return fmt.Errorf("cmd: Bootstrap is required")
	}
	load, run, shutdownLogger := opts.LoadConfig, opts.RunTelegram, opts.ShutdownLogger
	if load == nil {
		load = coreconfig.Load
	}
	if run == nil {
		run = coretelegram.RunTelegram
	}
	if shutdownLogger == nil {
		shutdownLogger = logger.Shutdown
	}

	path := ResolveConfigPath(opts.ConfigPath, opts.ConfigEnvVar)
	if path != "" {
		log.Printf("loading config: %s", path)
	}
	cfg, err := load(path)
	if err != nil {
		return fmt.Errorf("cmd: load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	began := time.Now()
	app, err := opts.Bootstrap(ctx, cfg)
	if err != nil {
		return fmt.Errorf("cmd: bootstrap: %w", err)
	}
	defer func() {
		if err := shutdownLogger(); err != nil {
			log.Printf("logger shutdown: %v", err)
		}
	}()

	runOpts, err := app.TelegramRunOptions()
	if err != nil {
		return fmt.Errorf("cmd: telegram options: %w", err)
	}
	runOpts.OnStart = then(runOpts.OnStart, func(ctx context.Context, _ coretelegram.Runtime) error {
		logger.Info(ctx, "app", "ready",
			slog.String("mode", cfg.Telegram.RunMode),
			slog.Duration("startup_duration", time.Since(began)),
		)
		return nil
	})
	runOpts.OnStop = then(func(ctx context.Context, _ coretelegram.Runtime) error {
		logger.Info(ctx, "app", "shutdown")
		return nil
	}, runOpts.OnStop)

	return run(ctx, runOpts)
}

type hook = func(context.Context, coretelegram.Runtime) error

// then runs first and, if it succeeds, second. Either may be nil.
func then(first, second hook) hook {
	return func(ctx context.Context, rt coretelegram.Runtime) error {
		for _, h := range []hook{first, second} {
			if h == nil {
				continue
			}
			if err := h(ctx, rt); err != nil {
				return err
			}
		}
		return nil
	}
}

// Package app assembles the currency converter bot from configuration and
// bootstrapped infrastructure.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/m3rciful/currencybot/core/bootstrap"
	coreconfig "github.com/m3rciful/currencybot/core/config"
	"github.com/m3rciful/currencybot/core/logger"
	"github.com/m3rciful/currencybot/core/metrics"
	coretelegram "github.com/m3rciful/currencybot/core/telegram"
	tgsender "github.com/m3rciful/currencybot/core/telegram/sender"
	"github.com/m3rciful/currencybot/core/telegram/state"
	"github.com/m3rciful/currencybot/currency/bot"
	"github.com/m3rciful/currencybot/currency/catalog"
	"github.com/m3rciful/currencybot/currency/flow"
	"github.com/m3rciful/currencybot/currency/rates"
)

// sendRetries is how many times a transient send failure is retried.
const sendRetries = 2

// App owns the wired components between bootstrap and shutdown.
type App struct {
	cfg     *coreconfig.Config
	infra   *bootstrap.Result
	metrics *metrics.Registry
	rates   rates.Source
}

// Option customises New.
type Option func(*App)

// WithRateSource replaces the HTTP rates client.
func WithRateSource(src rates.Source) Option {
	return func(a *App) { a.rates = src }
}

// New builds an App around infra.
func New(cfg *coreconfig.Config, infra *bootstrap.Result, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	if infra == nil || infra.Sessions == nil {
		return nil, state.ErrNilStore
	}
	a := &App{cfg: cfg, infra: infra, metrics: metrics.New()}
	for _, opt := range opts {
		opt(a)
	}
	if a.rates == nil {
		a.rates = rates.New(rates.Options{
			BaseURL: cfg.Rates.BaseURL,
			Timeout: cfg.Rates.Timeout(),
			Metrics: a.metrics,
		})
	}
	return a, nil
}

// Bootstrap runs the infrastructure pipeline and returns the App.
func Bootstrap(ctx context.Context, cfg *coreconfig.Config) (*App, error) {
	infra, err := bootstrap.Run(ctx, bootstrap.Options{Config: cfg})
	if err != nil {
		return nil, err
	}
	a, err := New(cfg, infra)
	if err != nil {
		_ = infra.Close()
		return nil, err
	}
	return a, nil
}

// Metrics exposes the app's collectors.
func (a *App) Metrics() *metrics.Registry { return a.metrics }

// TelegramRunOptions wires the conversation into the Telegram runtime.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	mode, err := catalog.ParseMatchMode(a.cfg.Conversation.MatchMode)
	if err != nil {
		return coretelegram.RunOptions{}, err
	}
	machine, err := flow.New(flow.Options{
		Store:     a.infra.Sessions,
		Rates:     a.rates,
		Catalog:   catalog.Default(),
		MatchMode: mode,
		Metrics:   a.metrics,
	})
	if err != nil {
		return coretelegram.RunOptions{}, fmt.Errorf("app: conversation: %w", err)
	}

	counter, _ := a.infra.Sessions.(state.Counter)
	if counter != nil {
		a.metrics.TrackSessions(func() float64 {
			n, err := counter.Len(logger.Background())
			if err != nil {
				return 0
			}
			return float64(n)
		})
	}

	dispatcher := tgsender.NewDispatcher(tgsender.Options{MaxRetries: sendRetries, Metrics: a.metrics})
	b, err := bot.New(bot.Options{
		Machine:    machine,
		Sessions:   counter,
		SendErrors: dispatcher.ErrorCount,
		AdminID:    a.cfg.Telegram.AdminID,
	})
	if err != nil {
		dispatcher.Close()
		return coretelegram.RunOptions{}, err
	}

	reg := coretelegram.NewRegistry()
	if err := b.Register(reg); err != nil {
		dispatcher.Close()
		return coretelegram.RunOptions{}, err
	}

	return coretelegram.RunOptions{
		Config:     a.cfg,
		Registry:   reg,
		Metrics:    a.metrics,
		Dispatcher: dispatcher,
		Middlewares: coretelegram.DefaultMiddlewares(a.cfg, coretelegram.MiddlewareDeps{
			Locker:  state.NewLocker(),
			Metrics: a.metrics,
		}),
		Routes:  b.Routes(reg),
		OnError: b.OnError,
		OnStop: func(context.Context, coretelegram.Runtime) error {
			return a.infra.Close()
		},
	}, nil
}

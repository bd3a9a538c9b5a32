package telegram

import (
	"strings"
	"time"

	coreconfig "github.com/m3rciful/currencybot/core/config"
	"github.com/m3rciful/currencybot/core/metrics"
	"github.com/m3rciful/currencybot/core/telegram/middleware"
	"github.com/m3rciful/currencybot/core/telegram/state"

	tele "gopkg.in/telebot.v4"
)

// MiddlewareDeps carries the shared components some middlewares need.
type MiddlewareDeps struct {
	Locker    *state.Locker
	Metrics   *metrics.Registry
	OnLimited tele.HandlerFunc
}

// DefaultMiddlewares builds the shared middleware chain for bots, outermost first.
func DefaultMiddlewares(cfg *coreconfig.Config, deps MiddlewareDeps) []Middleware {
	mws := []Middleware{
		{Name: "recover", Use: middleware.RecoverMiddleware},
		{Name: "logger", Use: middleware.UpdateLogger()},
		{Name: "metrics", Use: middleware.MessageMetrics(deps.Metrics)},
	}

	if cfg != nil {
		interval := time.Duration(cfg.RateLimit.IntervalMS) * time.Millisecond
		if interval > 0 {
			ex := make(map[string]struct{}, len(cfg.RateLimit.ExcludeUpdates))
			for _, t := range cfg.RateLimit.ExcludeUpdates {
				ex[strings.ToLower(t)] = struct{}{}
			}
			mws = append(mws, Middleware{
				Name: "rate_limit",
				Use: middleware.RateLimitMiddleware(middleware.RateLimitOptions{
					Interval:  interval,
					Exclude:   ex,
					OnLimited: deps.OnLimited,
				}),
			})
		}
	}

	if deps.Locker != nil {
		mws = append(mws, Middleware{Name: "serialize", Use: state.Serialize(deps.Locker)})
	}
	return mws
}

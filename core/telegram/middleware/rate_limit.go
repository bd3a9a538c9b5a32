package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/currencybot/core/logger"
	tghelpers "github.com/m3rciful/currencybot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// RateLimitOptions configures behaviour of the rate limit middleware.
type RateLimitOptions struct {
	Interval  time.Duration
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc

	now func() time.Time
}

// RateLimitMiddleware returns a middleware that enforces a minimum interval
// between updates from the same user. Entries older than the interval are
// swept on the way so the map does not grow with every user ever seen.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	var (
		lastSeen  = make(map[int64]time.Time)
		mu        sync.Mutex
		lastSweep time.Time
		now       = opts.now
	)
	if now == nil {
		now = time.Now
	}
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.Interval <= 0 {
				return next(c)
			}

			kind := UpdateKind(c.Update())
			if kind == "command" {
				kind = "message"
			}
			if _, skip := opts.Exclude[kind]; skip {
				return next(c)
			}

			ts := now()
			mu.Lock()
			if ts.Sub(lastSweep) > time.Minute {
				for id, seen := range lastSeen {
					if ts.Sub(seen) >= opts.Interval {
						delete(lastSeen, id)
					}
				}
				lastSweep = ts
			}
			if last, ok := lastSeen[user.ID]; ok && ts.Sub(last) < opts.Interval {
				mu.Unlock()
				logger.LogEvent(tghelpers.BuildContext(c), logger.TG, slog.LevelWarn, "tg.rate_limit",
					slog.Int64("user_id", user.ID),
					slog.String("kind", kind),
				)
				if opts.OnLimited != nil {
					_ = opts.OnLimited(c)
				}
				return nil
			}
			lastSeen[user.ID] = ts
			mu.Unlock()
			return next(c)
		}
	}
}

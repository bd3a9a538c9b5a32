package middleware

import (
	"log/slog"
	"sync"

	"github.com/m3rciful/currencybot/core/logger"
	"github.com/m3rciful/currencybot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/currencybot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// recentIDs remembers the last len(ids) update ids. Telegram redelivers a
// webhook update when the first attempt times out.
type recentIDs struct {
	mu   sync.Mutex
	ids  [256]int
	next int
	set  map[int]struct{}
}

// seen records id and reports whether it was already present.
func (r *recentIDs) seen(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.set == nil {
		r.set = make(map[int]struct{}, len(r.ids))
	}
	if _, ok := r.set[id]; ok {
		return true
	}
	if old := r.ids[r.next]; old != 0 {
		delete(r.set, old)
	}
	r.ids[r.next] = id
	r.next = (r.next + 1) % len(r.ids)
	r.set[id] = struct{}{}
	return false
}

// UpdateLogger attaches the request context to every update and writes a
// sampled update.received debug line, once per update id.
func UpdateLogger() tele.MiddlewareFunc {
	recent := &recentIDs{}
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			ctx := tghelpers.BuildContext(c)
			upd := c.Update()
			if !logger.ShouldSampleDebug() || recent.seen(upd.ID) {
				return next(c)
			}

			attrs := []slog.Attr{
				slog.String("status", "ok"),
				slog.String("kind", UpdateKind(upd)),
			}
			if chat := c.Chat(); chat != nil {
				attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
			}
			if u := c.Sender(); u != nil {
				attrs = append(attrs,
					slog.String("username", logger.SanitizeLimit(u.Username, 64)),
					slog.String("lang", u.LanguageCode),
				)
			}
			if upd.Callback != nil {
				key, payload := callbacks.ParseCallbackData(upd.Callback)
				attrs = append(attrs,
					slog.String("cb_key", logger.SanitizeLimit(key, 128)),
					slog.String("payload", logger.SanitizeLimit(payload, 256)),
				)
			} else {
				attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(c.Text(), 256)))
			}
			logger.LogEvent(ctx, logger.TG, slog.LevelDebug, "update.received", attrs...)
			return next(c)
		}
	}
}

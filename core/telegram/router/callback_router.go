package router

import (
	"log/slog"

	"github.com/m3rciful/currencybot/core/logger"
	tg "github.com/m3rciful/currencybot/core/telegram"
	"github.com/m3rciful/currencybot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/currencybot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// CallbackOptions customises fallback behaviour for callbacks.
type CallbackOptions struct {
	NotFound tele.HandlerFunc
}

// CallbackRoute returns a handler that routes callbacks through the registry.
// Known callbacks are acknowledged before their handler runs; the not-found
// handler answers the query itself.
func CallbackRoute(reg *tg.Registry, opts CallbackOptions) tg.Route {
	handler := func(c tele.Context) error {
		cb := c.Callback()
		if cb == nil {
			return nil
		}
		key, payload := callbacks.ParseCallbackData(cb)
		if cb.Unique != "" {
			key = cb.Unique
		}
		attrs := []slog.Attr{
			slog.String("cb_key", logger.SanitizeLimit(key, 128)),
			slog.String("payload", logger.SanitizeLimit(payload, 256)),
		}

		if h, ok := reg.GetCallback(key); ok {
			_ = tghelpers.Respond(c)
			return begin(c, "callback."+handlerName(key), attrs...).run(h)
		}

		fallback := opts.NotFound
		if fallback == nil {
			fallback = reg.CallbackNotFound()
		}
		if fallback == nil {
			fallback = func(c tele.Context) error { return tghelpers.Respond(c) }
		}
		attrs = append(attrs, slog.String("reason", "not_found"))
		return begin(c, "callback.unknown", attrs...).run(fallback)
	}
	return tg.Route{Endpoint: tele.OnCallback, Handler: handler}
}

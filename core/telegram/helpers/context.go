package helpers

import (
	"context"

	"github.com/m3rciful/currencybot/core/logger"

	tele "gopkg.in/telebot.v4"
)

const (
	ctxKey     = "req.ctx"
	handlerKey = "handler"
)

// IDs returns the update, chat and sender ids of c. Missing parts are zero.
func IDs(c tele.Context) (updateID int, chatID, userID int64) {
	updateID = c.Update().ID
	if chat := c.Chat(); chat != nil {
		chatID = chat.ID
	}
	if user := c.Sender(); user != nil {
		userID = user.ID
	}
	return updateID, chatID, userID
}

// StoreContext caches ctx on c for later BuildContext calls.
func StoreContext(c tele.Context, ctx context.Context) {
	if c != nil && ctx != nil {
		c.Set(ctxKey, ctx)
	}
}

// BuildContext returns the request context cached on c, creating one that
// carries the rid and update ids on first use.
func BuildContext(c tele.Context) context.Context {
	if ctx, ok := c.Get(ctxKey).(context.Context); ok {
		return ctx
	}
	updateID, chatID, userID := IDs(c)
	ctx := logger.WithRID(context.Background(), logger.BuildRID(updateID, chatID, userID))
	ctx = logger.WithUpdateMeta(ctx, updateID, userID, chatID)
	ctx = logger.WithLogger(ctx, logger.TG)
	StoreContext(c, ctx)
	return ctx
}

// WithHandler records the handler name on c and in its request context.
func WithHandler(c tele.Context, name string) context.Context {
	ctx := BuildContext(c)
	if name == "" {
		return ctx
	}
	c.Set(handlerKey, name)
	ctx = logger.WithHandler(ctx, name)
	StoreContext(c, ctx)
	return ctx
}

// HandlerName returns the name set by WithHandler, or "".
func HandlerName(c tele.Context) string {
	name, _ := c.Get(handlerKey).(string)
	return name
}

// Package helpers holds the per-update plumbing shared by handlers: request
// contexts and outbound messages routed through the sender dispatcher.
package helpers

import (
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/m3rciful/currencybot/core/logger"
	"github.com/m3rciful/currencybot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

var dispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher routes Send and EditOrSend through d. nil restores inline sends.
func SetDispatcher(d *sender.Dispatcher) { dispatcher.Store(d) }

// dispatch queues call on the dispatcher. Without one, or when the queue
// refuses the job, call runs inline so the reply is not lost.
func dispatch(c tele.Context, action, endpoint string, call func() error) error {
	d := dispatcher.Load()
	if d == nil {
		return call()
	}
	ctx := BuildContext(c)
	err := d.Enqueue(ctx, action, endpoint, call)
	if !errors.Is(err, sender.ErrQueueFull) && !errors.Is(err, sender.ErrQueueClosed) {
		return err
	}
	logger.Warn(ctx, "tg.sender", "queue.fallback",
		slog.String("action", action),
		slog.String("err", err.Error()),
	)
	return call()
}

// SendOptions builds send options for the given parse mode and markup.
func SendOptions(markdown bool, markup *tele.ReplyMarkup) *tele.SendOptions {
	opts := &tele.SendOptions{ReplyMarkup: markup}
	if markdown {
		opts.ParseMode = tele.ModeMarkdown
	}
	return opts
}

// Send delivers text to the current chat.
func Send(c tele.Context, text string, opts *tele.SendOptions) error {
	return dispatch(c, "send.text", "sendMessage", func() error {
		if opts != nil {
			return c.Send(text, opts)
		}
		return c.Send(text)
	})
}

// EditOrSend replaces the message a callback came from, or sends a new one
// when the update carries nothing to edit.
func EditOrSend(c tele.Context, text string, opts *tele.SendOptions) error {
	return dispatch(c, "edit.text", "editMessageText", func() error {
		if opts != nil {
			return c.EditOrSend(text, opts)
		}
		return c.EditOrSend(text)
	})
}

// Respond answers a callback query; a nil response just stops the spinner.
func Respond(c tele.Context, resp ...*tele.CallbackResponse) error {
	if c.Callback() == nil {
		return nil
	}
	return c.Respond(resp...)
}

package middleware

import (
	"slices"
	"sync/atomic"

	"github.com/m3rciful/currencybot/core/metrics"
	tghelpers "github.com/m3rciful/currencybot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

const repliesKey = "replies"

// replies counts what a handler sent during one update.
// Sends may complete on dispatcher workers, hence the atomics.
type replies struct {
	messages atomic.Int64
	keyboard atomic.Bool
}

// countingContext counts successful sends and edits made through it.
type countingContext struct {
	tele.Context
	tally *replies
	reg   *metrics.Registry
}

func (c countingContext) record(err error, opts []any) error {
	if err != nil {
		return err
	}
	kb := slices.ContainsFunc(opts, func(o any) bool {
		switch v := o.(type) {
		case *tele.SendOptions:
			return v != nil && v.ReplyMarkup != nil
		case *tele.ReplyMarkup:
			return v != nil
		}
		return false
	})
	c.tally.messages.Add(1)
	if kb {
		c.tally.keyboard.Store(true)
	}
	c.reg.Reply(kb)
	return nil
}

func (c countingContext) Send(what any, opts ...any) error {
	return c.record(c.Context.Send(what, opts...), opts)
}

func (c countingContext) Edit(what any, opts ...any) error {
	return c.record(c.Context.Edit(what, opts...), opts)
}

func (c countingContext) EditOrSend(what any, opts ...any) error {
	return c.record(c.Context.EditOrSend(what, opts...), opts)
}

// UpdateKind classifies an update for metrics and rate limiting.
func UpdateKind(upd tele.Update) string {
	switch {
	case upd.Callback != nil:
		return "callback"
	case upd.Message != nil && upd.Message.Text != "" && upd.Message.Text[0] == '/':
		return "command"
	case upd.Message != nil:
		return "message"
	case upd.Query != nil:
		return "inline_query"
	}
	return "other"
}

// MessageMetrics counts updates by kind and handler errors, and tracks the
// replies each update produced for Replies. reg may be nil.
func MessageMetrics(reg *metrics.Registry) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			kind := UpdateKind(c.Update())
			reg.Update(kind)
			tally := &replies{}
			c.Set(repliesKey, tally)
			err := next(countingContext{Context: c, tally: tally, reg: reg})
			if err != nil {
				name := tghelpers.HandlerName(c)
				if name == "" {
					name = kind
				}
				reg.HandlerError(name)
			}
			return err
		}
	}
}

// Replies reports how many messages the current update has sent so far and
// whether any carried a keyboard.
func Replies(c tele.Context) (int, bool) {
	if t, ok := c.Get(repliesKey).(*replies); ok {
		return int(t.messages.Load()), t.keyboard.Load()
	}
	return 0, false
}

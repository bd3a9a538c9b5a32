package router

import (
	tg "github.com/m3rciful/currencybot/core/telegram"

	tele "gopkg.in/telebot.v4"
)

// Conversation receives free text while the sender has a conversation in progress.
type Conversation interface {
	InProgress(c tele.Context) (bool, error)
	HandleText(c tele.Context) error
}

// TextOptions controls what happens to text outside a conversation.
type TextOptions struct {
	UnknownText tele.HandlerFunc
}

// TextRoutes builds the plain text route. Text goes to the conversation when
// one is in progress, then to UnknownText, and is otherwise ignored.
func TextRoutes(conv Conversation, opts TextOptions) []tg.Route {
	handler := func(c tele.Context) error {
		if conv != nil {
			s := begin(c, "conversation")
			active, err := conv.InProgress(c)
			if err != nil {
				s.end(err, "")
				return err
			}
			if active {
				return s.run(conv.HandleText)
			}
		}
		s := begin(c, "unknown_text")
		if opts.UnknownText == nil {
			s.end(nil, "skip")
			return nil
		}
		return s.run(opts.UnknownText)
	}
	return []tg.Route{{Endpoint: tele.OnText, Handler: handler}}
}

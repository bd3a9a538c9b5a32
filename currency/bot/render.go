package bot

import (
	"github.com/m3rciful/currencybot/core/telegram/keyboard"
	tghelpers "github.com/m3rciful/currencybot/core/telegram/helpers"
	"github.com/m3rciful/currencybot/currency/flow"

	tele "gopkg.in/telebot.v4"
)

// render sends msgs in order. Edits only apply to callbacks; any other update
// gets a fresh message instead.
func render(c tele.Context, msgs []flow.Message) error {
	for _, msg := range msgs {
		opts := tghelpers.SendOptions(msg.Markdown, markup(msg.Keyboard))
		var err error
		if msg.Edit && c.Callback() != nil {
			err = tghelpers.EditOrSend(c, msg.Text, opts)
		} else {
			err = tghelpers.Send(c, msg.Text, opts)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func markup(kb *flow.Keyboard) *tele.ReplyMarkup {
	switch {
	case kb == nil:
		return nil
	case kb.Remove:
		return keyboard.Remove()
	case len(kb.Reply) > 0:
		return keyboard.OneTime(kb.Reply...)
	case len(kb.Inline) > 0:
		rows := make([][]keyboard.Button, len(kb.Inline))
		for i, row := range kb.Inline {
			rows[i] = make([]keyboard.Button, len(row))
			for j, btn := range row {
				rows[i][j] = keyboard.Button{Text: btn.Text, Data: btn.Data}
			}
		}
		return keyboard.Inline(rows...)
	}
	return nil
}

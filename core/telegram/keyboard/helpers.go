// Package keyboard builds reply and inline markups.
package keyboard

import tele "gopkg.in/telebot.v4"

// Button is an inline button. Data is sent back verbatim as callback data
// unless Unique is set, in which case telebot's "\f<unique>|<data>" form is used.
type Button struct {
	Text   string
	Unique string
	Data   string
}

// Remove hides the current reply keyboard.
func Remove() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{RemoveKeyboard: true}
}

// Reply builds a resized reply keyboard, one row per slice.
func Reply(rows ...[]string) *tele.ReplyMarkup {
	kb := make([][]tele.ReplyButton, 0, len(rows))
	for _, labels := range rows {
		row := make([]tele.ReplyButton, len(labels))
		for i, l := range labels {
			row[i] = tele.ReplyButton{Text: l}
		}
		kb = append(kb, row)
	}
	return &tele.ReplyMarkup{ReplyKeyboard: kb, ResizeKeyboard: true}
}

// OneTime is Reply with a keyboard that hides after the first tap.
func OneTime(rows ...[]string) *tele.ReplyMarkup {
	m := Reply(rows...)
	m.OneTimeKeyboard = true
	return m
}

// Inline builds an inline keyboard, one row per slice.
func Inline(rows ...[]Button) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	m.InlineKeyboard = make([][]tele.InlineButton, len(rows))
	for i, row := range rows {
		m.InlineKeyboard[i] = make([]tele.InlineButton, len(row))
		for j, b := range row {
			if b.Unique != "" {
				m.InlineKeyboard[i][j] = *m.Data(b.Text, b.Unique, b.Data).Inline()
			} else {
				m.InlineKeyboard[i][j] = tele.InlineButton{Text: b.Text, Data: b.Data}
			}
		}
	}
	return m
}

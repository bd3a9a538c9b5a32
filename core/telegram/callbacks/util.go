// Package callbacks decodes inline button callback data.
package callbacks

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// ParseCallbackData returns the key and payload of cb. Data from telebot's
// unique buttons looks like "\f<unique>|<payload>"; bare tokens such as "yes"
// yield the token and an empty payload.
func ParseCallbackData(cb *tele.Callback) (key, payload string) {
	if cb == nil {
		return "", ""
	}
	key, payload, _ = strings.Cut(strings.TrimPrefix(cb.Data, "\f"), "|")
	return strings.TrimSpace(key), payload
}

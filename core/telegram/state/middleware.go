package state

import tele "gopkg.in/telebot.v4"

// Serialize runs handlers for the same sender one at a time. Telegram may
// deliver webhook updates concurrently, and sessions are read-modify-write.
func Serialize(l *Locker) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if l == nil || user == nil {
				return next(c)
			}
			unlock := l.Lock(user.ID)
			defer unlock()
			return next(c)
		}
	}
}

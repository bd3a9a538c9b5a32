package middleware

import tele "gopkg.in/telebot.v4"

// AdminOnly lets only adminID through. Everyone else goes to onReject, or is
// silently dropped when onReject is nil. adminID 0 rejects every sender.
func AdminOnly(adminID int64, onReject tele.HandlerFunc) tele.MiddlewareFunc {
	isAdmin := func(c tele.Context) bool {
		u := c.Sender()
		return adminID != 0 && u != nil && u.ID == adminID
	}
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			switch {
			case isAdmin(c):
				return next(c)
			case onReject != nil:
				return onReject(c)
			}
			return nil
		}
	}
}

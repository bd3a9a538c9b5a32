package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/m3rciful/currencybot/core/logger"
	tghelpers "github.com/m3rciful/currencybot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// ErrPanic carries a value recovered from a handler panic.
type ErrPanic struct {
	Value any
}

func (e *ErrPanic) Error() string { return fmt.Sprintf("handler panic: %v", e.Value) }

// Code is reported as err_code in handler summaries.
func (e *ErrPanic) Code() string { return "PANIC" }

// RecoverMiddleware converts a panic into an *ErrPanic so it reaches the
// bot's OnError like any other handler error.
func RecoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			err = &ErrPanic{Value: r}
			logger.Error(tghelpers.BuildContext(c), "tg", "tg.panic",
				slog.String("err", logger.Sanitize(err.Error())),
				slog.String("stack", string(debug.Stack())),
			)
		}()
		return next(c)
	}
}

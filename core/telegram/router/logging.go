package router

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/currencybot/core/logger"
	tghelpers "github.com/m3rciful/currencybot/core/telegram/helpers"
	"github.com/m3rciful/currencybot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// span times one routed handler and logs its handler.handled summary.
type span struct {
	c     tele.Context
	name  string
	start time.Time
	attrs []slog.Attr
}

func begin(c tele.Context, name string, attrs ...slog.Attr) *span {
	tghelpers.WithHandler(c, name)
	return &span{c: c, name: name, start: time.Now(), attrs: attrs}
}

// run calls h and logs the result.
func (s *span) run(h tele.HandlerFunc) error {
	err := h(s.c)
	s.end(err, "")
	return err
}

// end logs the summary. An empty status is derived from err.
func (s *span) end(err error, status string) {
	if status == "" {
		status = logger.Status(err)
	}
	msgs, kb := middleware.Replies(s.c)
	attrs := append([]slog.Attr{
		slog.String("status", status),
		slog.String("outcome", logger.Status(err)),
		slog.Int("messages", msgs),
		slog.Bool("kb", kb),
		slog.Duration("duration", time.Since(s.start)),
	}, s.attrs...)
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelWarn
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", errorCode(err)),
		)
	}
	logger.LogEvent(tghelpers.BuildContext(s.c), logger.TG, level, "handler.handled", attrs...)
}

// handlerName turns a command or callback key into a log-friendly name.
func handlerName(raw string) string {
	raw = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(raw), "/"))
	if raw == "" {
		return "unknown"
	}
	return strings.Join(strings.Fields(raw), "_")
}

// errorCode prefers an error's own Code() and falls back to its type name.
func errorCode(err error) string {
	if err == nil {
		return ""
	}
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		if code := strings.TrimSpace(coded.Code()); code != "" {
			return strings.ToUpper(code)
		}
	}
	name := strings.TrimLeft(fmt.Sprintf("%T", err), "*")
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return strings.ToUpper(name)
}

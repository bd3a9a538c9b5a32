package logger

import (
	"context"
	"log/slog"
)

type (
	metaKey   struct{}
	loggerKey struct{}
)

// meta is the correlation data carried by an update or HTTP request.
type meta struct {
	rid       string
	requestID string
	handler   string
	updateID  int
	userID    int64
	chatID    int64
}

func metaFrom(ctx context.Context) meta {
	if ctx == nil {
		return meta{}
	}
	m, _ := ctx.Value(metaKey{}).(meta)
	return m
}

// withMeta stores a modified copy, so parents never see a child's changes.
func withMeta(ctx context.Context, edit func(*meta)) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	m := metaFrom(ctx)
	edit(&m)
	return context.WithValue(ctx, metaKey{}, m)
}

// WithLogger stores log in ctx for FromContext.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, log)
}

// FromContext returns the logger stored in ctx, or L.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
			return l
		}
	}
	return L
}

// WithRID attaches the update correlation id.
func WithRID(ctx context.Context, rid string) context.Context {
	return withMeta(ctx, func(m *meta) { m.rid = rid })
}

// RIDFrom returns the update correlation id, if any.
func RIDFrom(ctx context.Context) string { return metaFrom(ctx).rid }

// WithUpdateMeta attaches the update, user and chat identifiers.
func WithUpdateMeta(ctx context.Context, updateID int, userID, chatID int64) context.Context {
	return withMeta(ctx, func(m *meta) {
		m.updateID, m.userID, m.chatID = updateID, userID, chatID
	})
}

// WithHandler names the handler processing the update.
func WithHandler(ctx context.Context, handler string) context.Context {
	if handler == "" {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}
	return withMeta(ctx, func(m *meta) { m.handler = handler })
}

// HandlerFrom returns the handler name, if any.
func HandlerFrom(ctx context.Context) string { return metaFrom(ctx).handler }

// WithRequestID attaches the id the webhook server assigned to an HTTP request.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}
	return withMeta(ctx, func(m *meta) { m.requestID = id })
}

// RequestIDFrom returns the HTTP request id, if any.
func RequestIDFrom(ctx context.Context) string { return metaFrom(ctx).requestID }

// UserIDFrom returns the Telegram user id, or 0.
func UserIDFrom(ctx context.Context) int64 { return metaFrom(ctx).userID }

// ChatIDFrom returns the chat id, or 0.
func ChatIDFrom(ctx context.Context) int64 { return metaFrom(ctx).chatID }

// UpdateIDFrom returns the update id, or 0.
func UpdateIDFrom(ctx context.Context) int { return metaFrom(ctx).updateID }

// contextFields copies correlation data into fields without overriding
// explicit attributes.
func contextFields(ctx context.Context, fields map[string]any) {
	m := metaFrom(ctx)
	setDefault := func(key string, val any, present bool) {
		if !present {
			return
		}
		if _, ok := fields[key]; !ok {
			fields[key] = val
		}
	}
	setDefault("rid", m.rid, m.rid != "")
	setDefault("request_id", m.requestID, m.requestID != "")
	setDefault("handler", m.handler, m.handler != "")
	setDefault("update_id", m.updateID, m.updateID != 0)
	setDefault("user_id", m.userID, m.userID != 0)
	setDefault("chat_id", m.chatID, m.chatID != 0)
}

package logger

import "strings"

// fieldOrder is the default position of well-known keys. Unknown keys follow
// in lexical order.
var fieldOrder = []string{
	"ts", "level", "component", "event", "status",
	"rid", "rid_full", "request_id", "ts_unix_nano",
	"update_id", "user_id", "chat_id", "chat_type", "handler", "cb_key",
	"step", "next_step", "outcome", "duration_ms", "messages", "kb",
	"method", "path", "http_code",
	"source", "target", "amount", "rate", "backend",
	"mode", "listen", "public_url", "db", "host", "port",
	"err", "err_code", "cause", "retryable", "attempts", "backoff_ms",
}

func levelName(l string) string {
	switch strings.ToLower(l) {
	case "", "info":
		return "INFO"
	case "debug":
		return "DEBUG"
	case "warn", "warning":
		return "WARN"
	case "error":
		return "ERROR"
	}
	return strings.ToUpper(l)
}

// normalizeOutcome lowercases known outcomes and rejects anything else.
func normalizeOutcome(v string) (string, bool) {
	v = strings.ToLower(strings.TrimSpace(v))
	switch v {
	case "ok", "fail", "cancelled", "rate_limited":
		return v, true
	}
	return "", false
}

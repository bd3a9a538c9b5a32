package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"
)

type logFormat int

const (
	formatJSON logFormat = iota
	formatKV
)

const tsLayout = "2006-01-02T15:04:05.000Z07:00"

type handlerConfig struct {
	level    slog.Leveler
	out      *sink
	format   logFormat
	keyOrder []string
}

// eventHandler renders records as single-line JSON or key=value text with a
// stable key order.
type eventHandler struct {
	cfg    handlerConfig
	prefix string
	base   []field
}

type field struct {
	key string
	val any
}

func newEventHandler(cfg handlerConfig) *eventHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if len(cfg.keyOrder) == 0 {
		cfg.keyOrder = fieldOrder
	}
	return &eventHandler{cfg: cfg}
}

func (h *eventHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.level.Level()
}

func (h *eventHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.base = slices.Clone(h.base)
	for _, a := range attrs {
		next.base = appendAttr(next.base, h.prefix, a)
	}
	return &next
}

func (h *eventHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func (h *eventHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.out == nil {
		return fmt.Errorf("logger: no output configured")
	}
	jsonOut := h.cfg.format == formatJSON
	ts := r.Time.UTC()

	fields := map[string]any{
		"ts":    ts.Truncate(time.Millisecond).Format(tsLayout),
		"level": levelName(r.Level.String()),
	}
	if jsonOut {
		fields["ts_unix_nano"] = ts.UnixNano()
	}
	for _, f := range h.base {
		fields[f.key] = f.val
	}
	var recs []field
	r.Attrs(func(a slog.Attr) bool {
		recs = appendAttr(recs, h.prefix, a)
		return true
	})
	for _, f := range recs {
		fields[f.key] = f.val
	}
	contextFields(ctx, fields)
	finishFields(fields, r.Message, jsonOut)

	var line []byte
	if jsonOut {
		var err error
		if line, err = encodeJSON(fields, h.cfg.keyOrder); err != nil {
			return err
		}
	} else {
		line = encodeKV(fields, h.cfg.keyOrder)
	}
	return h.cfg.out.Write(append(line, '\n'))
}

// appendAttr flattens a into dotted keys and normalizes its value.
func appendAttr(dst []field, prefix string, a slog.Attr) []field {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		for _, child := range v.Group() {
			dst = appendAttr(dst, p, child)
		}
		return dst
	}
	if a.Key == "" {
		return dst
	}
	key, val, ok := fieldValue(prefix+a.Key, v)
	if !ok {
		return dst
	}
	return append(dst, field{key: key, val: val})
}

// fieldValue maps a slog value to something both encoders can print.
// Durations become whole milliseconds under a *_ms key.
func fieldValue(key string, v slog.Value) (string, any, bool) {
	switch v.Kind() {
	case slog.KindString:
		return key, strings.TrimSpace(v.String()), true
	case slog.KindInt64:
		return key, v.Int64(), true
	case slog.KindUint64:
		return key, v.Uint64(), true
	case slog.KindFloat64:
		return key, v.Float64(), true
	case slog.KindBool:
		return key, v.Bool(), true
	case slog.KindDuration:
		return msKey(key), RoundMS(v.Duration()).Milliseconds(), true
	case slog.KindTime:
		return key, v.Time().UTC().Format(time.RFC3339Nano), true
	}
	switch x := v.Any().(type) {
	case nil:
		return "", nil, false
	case time.Duration:
		return msKey(key), RoundMS(x).Milliseconds(), true
	case error:
		return key, x.Error(), true
	case fmt.Stringer:
		return key, x.String(), true
	default:
		return key, fmt.Sprint(x), true
	}
}

func msKey(key string) string {
	switch {
	case key == "duration":
		return "duration_ms"
	case strings.HasSuffix(key, "_ms"):
		return key
	}
	return key + "_ms"
}

// finishFields fills defaults, compacts the rid and drops empty values.
func finishFields(fields map[string]any, msg string, keepFullRID bool) {
	if rid, _ := fields["rid"].(string); rid != "" {
		if short := CompactRID(rid); short != rid {
			fields["rid"] = short
			if _, ok := fields["rid_full"]; keepFullRID && !ok {
				fields["rid_full"] = rid
			}
		}
	}
	if ev, _ := fields["event"].(string); ev == "" {
		fields["event"] = cmpOr(msg, "unknown")
	}
	if comp, _ := fields["component"].(string); comp == "" {
		fields["component"] = "app"
	}
	if st, ok := fields["status"].(string); ok {
		fields["status"] = strings.ToLower(st)
	}
	if oc, ok := fields["outcome"].(string); ok {
		if norm, valid := normalizeOutcome(oc); valid {
			fields["outcome"] = norm
		} else {
			delete(fields, "outcome")
		}
	}
	for k, v := range fields {
		if s, ok := v.(string); ok && s == "" {
			delete(fields, k)
		}
	}
}

func cmpOr(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// sortedKeys lists keys found in order first, then the rest alphabetically.
func sortedKeys(fields map[string]any, order []string) []string {
	keys := make([]string, 0, len(fields))
	known := make(map[string]bool, len(order))
	for _, k := range order {
		known[k] = true
		if _, ok := fields[k]; ok {
			keys = append(keys, k)
		}
	}
	n := len(keys)
	for k := range fields {
		if !known[k] {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys[n:])
	return keys
}

func encodeJSON(fields map[string]any, order []string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range sortedKeys(fields, order) {
		raw, err := json.Marshal(fields[k])
		if err != nil {
			return nil, fmt.Errorf("logger: encode %s: %w", k, err)
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(k))
		buf.WriteByte(':')
		buf.Write(raw)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func encodeKV(fields map[string]any, order []string) []byte {
	var buf bytes.Buffer
	for i, k := range sortedKeys(fields, order) {
		if i > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(k)
		buf.WriteByte('=')
		s := fmt.Sprint(fields[k])
		if strings.ContainsFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) {
			s = strconv.Quote(s)
		}
		buf.WriteString(s)
	}
	return buf.Bytes()
}

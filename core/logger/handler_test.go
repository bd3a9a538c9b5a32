package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer is safe for the sink goroutine and the test to share.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestLogger(t *testing.T, format logFormat, lvl slog.Level) (*slog.Logger, func() string) {
	t.Helper()
	buf := &syncBuffer{}
	s := newSink([]io.Writer{buf}, 16)
	t.Cleanup(func() { _ = s.Close() })
	log := slog.New(newEventHandler(handlerConfig{level: lvl, out: s, format: format}))
	return log, func() string {
		if err := s.Flush(); err != nil {
			t.Fatalf("flush: %v", err)
		}
		return strings.TrimSpace(buf.String())
	}
}

func TestKVLineOrder(t *testing.T) {
	log, read := newTestLogger(t, formatKV, slog.LevelInfo)
	ctx := WithUpdateMeta(WithRID(Background(), "rid-123"), 42, 7, 9)

	LogEvent(ctx, log.With("component", "flow"), slog.LevelInfo, "flow.step",
		slog.String("status", "OK"),
		slog.String("cause", "unit test"),
	)

	tokens := strings.Split(read(), " ")
	want := []string{"ts=", "level=INFO", "component=flow", "event=flow.step", "status=ok", "rid=rid-123", "update_id=42", "user_id=7", "chat_id=9"}
	if len(tokens) < len(want) {
		t.Fatalf("tokens = %q", tokens)
	}
	for i, prefix := range want {
		if !strings.HasPrefix(tokens[i], prefix) {
			t.Fatalf("token %d = %q, want prefix %q", i, tokens[i], prefix)
		}
	}
	if !strings.Contains(strings.Join(tokens, " "), `cause="unit test"`) {
		t.Fatalf("spaces must be quoted: %q", tokens)
	}
}

func TestJSONLine(t *testing.T) {
	log, read := newTestLogger(t, formatJSON, slog.LevelDebug)
	ctx := WithRequestID(WithRID(Background(), "12:34:56"), "req-1")

	LogEvent(ctx, log.With("component", "rates"), slog.LevelError, "rates.lookup",
		slog.String("err", "boom"),
		slog.Duration("duration", 1500*time.Microsecond),
		slog.Duration("backoff", 20*time.Millisecond),
		slog.String("empty", ""),
		slog.String("outcome", "bogus"),
		slog.Group("http", slog.Int("code", 502)),
	)

	line := read()
	var got map[string]any
	if err := json.Unmarshal([]byte(line), &got); err != nil {
		t.Fatalf("invalid json %q: %v", line, err)
	}
	checks := map[string]any{
		"level":       "ERROR",
		"component":   "rates",
		"event":       "rates.lookup",
		"rid":         CompactRID("12:34:56"),
		"rid_full":    "12:34:56",
		"request_id":  "req-1",
		"duration_ms": float64(2),
		"backoff_ms":  float64(20),
		"http.code":   float64(502),
	}
	for k, want := range checks {
		if got[k] != want {
			t.Errorf("%s = %v, want %v", k, got[k], want)
		}
	}
	for _, k := range []string{"empty", "outcome"} {
		if _, ok := got[k]; ok {
			t.Errorf("%s should be dropped", k)
		}
	}
	if _, ok := got["ts_unix_nano"]; !ok {
		t.Error("ts_unix_nano missing")
	}
	if !strings.HasPrefix(line, `{"ts":`) || strings.Index(line, `"level"`) > strings.Index(line, `"event"`) {
		t.Fatalf("unexpected key order: %s", line)
	}
}

func TestKVOmitsFullRID(t *testing.T) {
	log, read := newTestLogger(t, formatKV, slog.LevelInfo)
	LogEvent(WithRID(Background(), "123:456:789"), log, slog.LevelInfo, "rid.test")

	line := read()
	if !strings.Contains(line, "rid="+CompactRID("123:456:789")) || strings.Contains(line, "rid_full") {
		t.Fatalf("line = %s", line)
	}
	if !strings.Contains(line, "component=app") {
		t.Fatalf("default component missing: %s", line)
	}
}

func TestLevelFilter(t *testing.T) {
	log, read := newTestLogger(t, formatKV, slog.LevelWarn)
	LogEvent(Background(), log, slog.LevelInfo, "quiet")
	if line := read(); line != "" {
		t.Fatalf("info written at warn level: %s", line)
	}
}

func TestSinkRejectsWritesAfterClose(t *testing.T) {
	s := newSink([]io.Writer{io.Discard}, 1)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Write([]byte("x\n")); !errors.Is(err, errSinkClosed) {
		t.Fatalf("err = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }

func TestSinkReportsWriteError(t *testing.T) {
	s := newSink([]io.Writer{failWriter{}}, 1)
	_ = s.Write([]byte("x\n"))
	if err := s.Flush(); !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("flush err = %v", err)
	}
	_ = s.Close()
}

func TestSampler(t *testing.T) {
	var s sampler
	s.configure(2, 5)
	kept := 0
	for range 10 {
		if s.allow() {
			kept++
		}
	}
	if kept != 4 {
		t.Fatalf("kept = %d, want 4", kept)
	}
	s.configure(0, 0)
	if !s.allow() {
		t.Fatal("disabled sampler must allow")
	}
}

func TestParseSampleRate(t *testing.T) {
	cases := []struct {
		in           string
		keep, period uint64
		ok           bool
	}{
		{"1/50", 1, 50, true},
		{"20", 1, 20, true},
		{"off", 0, 0, true},
		{"", 0, 0, false},
		{"a/b", 0, 0, false},
	}
	for _, c := range cases {
		k, p, ok := parseSampleRate(c.in)
		if k != c.keep || p != c.period || ok != c.ok {
			t.Errorf("parseSampleRate(%q) = %d,%d,%v", c.in, k, p, ok)
		}
	}
}

func TestContextMetaIsCopied(t *testing.T) {
	parent := WithUpdateMeta(Background(), 1, 2, 3)
	child := WithHandler(WithRID(parent, "r"), "start")
	if RIDFrom(parent) != "" || HandlerFrom(parent) != "" {
		t.Fatal("child values leaked into parent")
	}
	if UpdateIDFrom(child) != 1 || UserIDFrom(child) != 2 || ChatIDFrom(child) != 3 || HandlerFrom(child) != "start" {
		t.Fatal("child lost parent values")
	}
}

func TestSanitizeLimit(t *testing.T) {
	if got := SanitizeLimit("a\x00b\x7fc​d", 10); got != "abcd" {
		t.Fatalf("SanitizeLimit = %q", got)
	}
	if got := SanitizeLimit("🇺🇸 US Dollar", 3); got != "🇺🇸 " {
		t.Fatalf("SanitizeLimit runes = %q", got)
	}
	if got := SanitizeLimit("x", 0); got != "" {
		t.Fatalf("SanitizeLimit zero = %q", got)
	}
}

func TestCompactRID(t *testing.T) {
	if got := CompactRID(BuildRID(36, 35, 1)); got != "10.z.1" {
		t.Fatalf("CompactRID = %q", got)
	}
	if got := CompactRID("abc"); got != "abc" {
		t.Fatalf("CompactRID passthrough = %q", got)
	}
}

func TestStatus(t *testing.T) {
	if Status(nil) != "ok" || Status(io.EOF) != "fail" {
		t.Fatal("unexpected status mapping")
	}
}

// Package logger provides the bot's structured logging: component loggers,
// request correlation through context, and an asynchronous output sink.
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/m3rciful/currencybot/core/buildinfo"
	coreconfig "github.com/m3rciful/currencybot/core/config"
)

// Debug records are sampled at 1/50 unless configured otherwise.
const defaultDebugPeriod = 50

var (
	mu      sync.Mutex
	started bool
	out     *sink
	files   []io.Closer

	level    slog.LevelVar
	debugs   sampler
	noSample bool

	// L is the root logger.
	L *slog.Logger

	TG    *slog.Logger // Telegram transport
	TWire *slog.Logger // command, callback and route wiring
	HTTP  *slog.Logger // webhook server
	DB    *slog.Logger
	MIG   *slog.Logger // schema migrations
	Store *slog.Logger // session store
	Rates *slog.Logger // exchange rate lookups
	Flow  *slog.Logger // conversation transitions
)

func init() {
	setRoot(slog.New(slog.NewTextHandler(io.Discard, nil)))
	debugs.configure(1, defaultDebugPeriod)
}

func setRoot(root *slog.Logger) {
	L = root
	TG = Component("tg")
	TWire = Component("tg.wire")
	HTTP = Component("http")
	DB = Component("db")
	MIG = Component("db.migrate")
	Store = Component("store")
	Rates = Component("rates")
	Flow = Component("flow")
}

// InitLogger installs the configured logger as the process default. Calls
// after the first are no-ops.
func InitLogger(cfg *coreconfig.Config) error {
	mu.Lock()
	defer mu.Unlock()
	if started {
		return nil
	}
	var lc coreconfig.LoggingConfig
	if cfg != nil {
		lc = cfg.Logging
	}

	lvl, trace := parseLevel(lc.Level)
	level.Set(lvl)
	noSample = trace
	if keep, period, ok := parseSampleRate(lc.DebugSample); ok {
		debugs.configure(keep, period)
	}

	writers := []io.Writer{os.Stdout}
	if f, err := openLogFile(lc.Dir, lc.BotFile); err != nil {
		return err
	} else if f != nil {
		writers = append(writers, f)
		files = append(files, f)
	}
	out = newSink(writers, 0)

	root := slog.New(newEventHandler(handlerConfig{
		level:    &level,
		out:      out,
		format:   pickFormat(lc),
		keyOrder: parseKeyOrder(lc.KeysOrder),
	}))
	setRoot(root)
	slog.SetDefault(root)
	started = true

	attrs := []slog.Attr{
		slog.String("go_version", runtime.Version()),
		slog.String("build", buildinfo.String()),
		slog.String("cfg_profile", cmpOr(strings.ToLower(strings.TrimSpace(lc.Profile)), "prod")),
	}
	if cfg != nil {
		attrs = append(attrs,
			slog.String("mode", cfg.Telegram.RunMode),
			slog.String("backend", cfg.Session.Backend),
		)
	}
	LogEvent(context.Background(), Component("app"), slog.LevelInfo, "startup", attrs...)
	return nil
}

// Shutdown drains pending records and closes log files. It is safe to call
// more than once.
func Shutdown() error {
	mu.Lock()
	defer mu.Unlock()
	if out == nil {
		return nil
	}
	var errs []error
	errs = append(errs, out.Close())
	for _, f := range files {
		errs = append(errs, f.Close())
	}
	out, files = nil, nil
	return errors.Join(errs...)
}

func parseLevel(raw string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return slog.LevelDebug, true
	case "debug":
		return slog.LevelDebug, false
	case "warn", "warning":
		return slog.LevelWarn, false
	case "error":
		return slog.LevelError, false
	}
	return slog.LevelInfo, false
}

// pickFormat honours an explicit format and otherwise uses key=value text
// for dev and debug profiles.
func pickFormat(lc coreconfig.LoggingConfig) logFormat {
	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "json":
		return formatJSON
	case "kv", "text", "pretty":
		return formatKV
	}
	switch strings.ToLower(strings.TrimSpace(lc.Profile)) {
	case "dev", "debug":
		return formatKV
	}
	return formatJSON
}

func parseKeyOrder(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "default" {
		return fieldOrder
	}
	var keys []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return fieldOrder
	}
	return keys
}

func openLogFile(dir, name string) (*os.File, error) {
	dir, name = strings.TrimSpace(dir), strings.TrimSpace(name)
	if dir == "" || name == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logger: create %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logger: open %s: %w", path, err)
	}
	return f, nil
}

// Background returns context.Background() for call sites without a request.
func Background() context.Context { return context.Background() }

// Component returns L scoped to name.
func Component(name string) *slog.Logger {
	name = strings.TrimSpace(name)
	if name == "" {
		return L
	}
	return L.With("component", name)
}

// LogEvent writes a record whose event key is event. A nil log falls back to
// the logger stored in ctx.
func LogEvent(ctx context.Context, log *slog.Logger, lvl slog.Level, event string, attrs ...slog.Attr) {
	if log == nil {
		log = FromContext(ctx)
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	log.LogAttrs(ctx, lvl, "", attrs...)
}

// Debug logs event for component at debug level.
func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), slog.LevelDebug, event, attrs...)
}

// Info logs event for component at info level.
func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), slog.LevelInfo, event, attrs...)
}

// Warn logs event for component at warn level.
func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), slog.LevelWarn, event, attrs...)
}

// Error logs event for component at error level.
func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), slog.LevelError, event, attrs...)
}

// ShouldSampleDebug reports whether a high-volume debug record should be
// written. The "trace" level disables sampling.
func ShouldSampleDebug() bool {
	return noSample || debugs.allow()
}

package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/m3rciful/currencybot/core/logger"
	"github.com/m3rciful/currencybot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

// UnsupportedActionText answers callbacks nobody registered.
const UnsupportedActionText = "Unsupported action"

// Registration errors.
var (
	ErrDuplicate   = errors.New("telegram: already registered")
	ErrBadCallback = errors.New("telegram: callback needs a key and a handler")
)

// Registry maps command names and callback keys to handlers. Registration
// happens during wiring; lookups may run concurrently afterwards.
type Registry struct {
	mu        sync.RWMutex
	commands  map[string]commands.Command
	callbacks map[string]tele.HandlerFunc
	notFound  tele.HandlerFunc
}

// NewRegistry returns an empty Registry whose not-found handler answers with
// UnsupportedActionText.
func NewRegistry() *Registry {
	return &Registry{
		commands:  map[string]commands.Command{},
		callbacks: map[string]tele.HandlerFunc{},
		notFound:  answerUnsupported,
	}
}

func answerUnsupported(c tele.Context) error {
	_ = c.Respond(&tele.CallbackResponse{Text: UnsupportedActionText})
	return nil
}

// RegisterCommand adds cmd under name ("/start"). Invalid or duplicate
// commands are rejected and the first registration wins.
func (r *Registry) RegisterCommand(name string, cmd commands.Command) error {
	err := commands.Validate(name, cmd)
	if err == nil {
		r.mu.Lock()
		if _, dup := r.commands[name]; dup {
			err = fmt.Errorf("%w: command %s", ErrDuplicate, name)
		} else {
			r.commands[name] = cmd
		}
		r.mu.Unlock()
	}
	if err != nil {
		logger.LogEvent(context.Background(), logger.TWire, slog.LevelWarn, "register.command.rejected",
			slog.String("name", name),
			slog.String("err", err.Error()),
		)
	}
	return err
}

// Commands returns a copy of the registered commands.
func (r *Registry) Commands() map[string]commands.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.commands)
}

// ListCommands returns menu entries sorted by name. With menuOnly, hidden and
// admin-only commands are left out.
func (r *Registry) ListCommands(menuOnly bool) []tele.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []tele.Command
	for _, name := range slices.Sorted(maps.Keys(r.commands)) {
		cmd := r.commands[name]
		if menuOnly && !cmd.InMenu() {
			continue
		}
		out = append(out, commands.MenuEntry(name, cmd))
	}
	return out
}

// RegisterCallback maps key to h.
func (r *Registry) RegisterCallback(key string, h tele.HandlerFunc) error {
	if key == "" || h == nil {
		return fmt.Errorf("%w: %q", ErrBadCallback, key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.callbacks[key]; dup {
		return fmt.Errorf("%w: callback %s", ErrDuplicate, key)
	}
	r.callbacks[key] = h
	return nil
}

// GetCallback looks up the handler for key.
func (r *Registry) GetCallback(key string) (tele.HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.callbacks[key]
	return h, ok
}

// ListCallbacks returns the registered keys in order.
func (r *Registry) ListCallbacks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.callbacks))
}

// SetCallbackNotFound replaces the unknown-callback handler; nil is ignored.
func (r *Registry) SetCallbackNotFound(h tele.HandlerFunc) {
	if h == nil {
		return
	}
	r.mu.Lock()
	r.notFound = h
	r.mu.Unlock()
}

// CallbackNotFound returns the unknown-callback handler.
func (r *Registry) CallbackNotFound() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.notFound
}

// InitBotCommands publishes the command menu. Failures are logged only; the
// bot works without a menu.
func InitBotCommands(bot *tele.Bot, reg *Registry) {
	menu := reg.ListCommands(true)
	if len(menu) == 0 {
		return
	}
	err := bot.SetCommands(menu)
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelError
	}
	attrs := []slog.Attr{slog.String("status", logger.Status(err)), slog.Int("commands", len(menu))}
	if err != nil {
		attrs = append(attrs, slog.String("err", logger.Sanitize(err.Error())))
	}
	logger.LogEvent(context.Background(), logger.TWire, level, "register.commands.menu", attrs...)
}

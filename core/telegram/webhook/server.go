// Package webhook serves Telegram webhook deliveries over HTTP together with
// the operational endpoints of the bot (setup, health, metrics).
package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/m3rciful/currencybot/core/logger"
	"github.com/m3rciful/currencybot/core/metrics"

	tele "gopkg.in/telebot.v4"
)

// SecretHeader carries the secret token Telegram echoes on every delivery.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

const (
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 10 * time.Second
)

// UpdateProcessor dispatches one decoded update. *tele.Bot satisfies it.
type UpdateProcessor interface {
	ProcessUpdate(u tele.Update)
}

// Registrar registers the public webhook URL with Telegram and returns it.
type Registrar interface {
	Register(ctx context.Context) (string, error)
}

// Options configures a Server.
type Options struct {
	Addr         string
	Path         string
	SetupPath    string
	SecretToken  string
	DisableSetup bool

	Processor UpdateProcessor
	Registrar Registrar
	Metrics   *metrics.Registry
}

// Server is the bot's HTTP surface.
type Server struct {
	opts    Options
	handler http.Handler
}

// New validates opts and builds the router.
func New(opts Options) (*Server, error) {
	if opts.Processor == nil {
		return nil, errors.New("webhook: nil update processor")
	}
	if opts.SecretToken == "" {
		return nil, errors.New("webhook: secret token is required")
	}
	if opts.Path == "" {
		opts.Path = "/api/webhook"
	}
	if opts.SetupPath == "" {
		opts.SetupPath = "/api/setup-webhook"
	}
	s := &Server{opts: opts}
	s.handler = s.buildRouter()
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID, accessLog)

	r.Get("/", s.handleRoot)
	r.Get("/health", handleHealth)
	r.Head("/health", handleHealth)
	r.Method(http.MethodGet, "/metrics", s.opts.Metrics.Handler())

	// Method checks happen inside so every verb gets the JSON 405 body.
	r.HandleFunc(s.opts.Path, s.handleUpdate)

	if !s.opts.DisableSetup && s.opts.Registrar != nil {
		r.Get(s.opts.SetupPath, s.handleSetup)
	}
	return r
}

// Run listens until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.HTTP.Info("http listening",
			slog.String("event", "http.listen"),
			slog.String("addr", s.opts.Addr),
			slog.String("path", s.opts.Path),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("webhook: listen %s: %w", s.opts.Addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("webhook: shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method != http.MethodPost {
		s.reply(w, http.StatusMethodNotAllowed, map[string]any{"status": "method not allowed"})
		return
	}

	got := r.Header.Get(SecretHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.SecretToken)) != 1 {
		logger.LogEvent(ctx, logger.HTTP, slog.LevelWarn, "webhook.unauthorized",
			slog.Bool("header_present", got != ""),
		)
		s.reply(w, http.StatusUnauthorized, map[string]any{"status": "unauthorized"})
		return
	}

	var upd tele.Update
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&upd); err != nil {
		logger.LogEvent(ctx, logger.HTTP, slog.LevelWarn, "webhook.bad_payload",
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		s.reply(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid update payload"})
		return
	}

	if err := s.dispatch(upd); err != nil {
		logger.LogEvent(ctx, logger.HTTP, slog.LevelError, "webhook.dispatch_failed",
			slog.Int("update_id", upd.ID),
			slog.String("err", err.Error()),
		)
		s.reply(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "dispatch failed"})
		return
	}
	s.reply(w, http.StatusOK, map[string]any{"ok": true})
}

// dispatch shields the HTTP server from panics escaping the bot.
func (s *Server) dispatch(upd tele.Update) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("update %d: panic: %v", upd.ID, r)
		}
	}()
	s.opts.Processor.ProcessUpdate(upd)
	return nil
}

func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	endpoint, err := s.opts.Registrar.Register(r.Context())
	if err != nil {
		logger.LogEvent(r.Context(), logger.HTTP, slog.LevelError, "webhook.setup_failed",
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		s.reply(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "webhook registration failed"})
		return
	}
	logger.LogEvent(r.Context(), logger.HTTP, slog.LevelInfo, "webhook.setup",
		slog.String("url", endpoint),
	)
	s.reply(w, http.StatusOK, map[string]any{"ok": true, "url": endpoint})
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	s.reply(w, http.StatusOK, map[string]any{"status": "ok", "message": "Currency Converter Bot API"})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write([]byte("ok"))
	}
}

func (s *Server) reply(w http.ResponseWriter, status int, body any) {
	s.opts.Metrics.WebhookRequest(status)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		ctx := logger.WithRequestID(r.Context(), id)
		ctx = logger.WithLogger(ctx, logger.HTTP)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		level := slog.LevelDebug
		if ww.Status() >= http.StatusBadRequest {
			level = slog.LevelInfo
		}
		logger.LogEvent(r.Context(), logger.HTTP, level, "http.request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("code", ww.Status()),
			slog.Duration("took", logger.RoundMS(time.Since(start))),
		)
	})
}

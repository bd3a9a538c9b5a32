// Package database connects to PostgreSQL and applies schema migrations.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	coreconfig "github.com/m3rciful/currencybot/core/config"
	"github.com/m3rciful/currencybot/core/logger"
)

// Config is the PostgreSQL connection configuration.
type Config = coreconfig.DatabaseConfig

const connectTimeout = 5 * time.Second

// DSN renders a lib/pq keyword/value connection string.
func DSN(cfg Config) string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)
}

// URL renders the postgres:// form golang-migrate expects.
func URL(cfg Config) string {
	return (&url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, cfg.Port),
		Path:     "/" + cfg.Name,
		RawQuery: url.Values{"sslmode": {cfg.SSLMode}}.Encode(),
	}).String()
}

// Connect opens a pool sized by cfg.MaxConnections and pings it.
func Connect(cfg Config) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	start := time.Now()
	db, err := sqlx.ConnectContext(ctx, "postgres", DSN(cfg))
	target := []slog.Attr{
		slog.String("host", cfg.Host),
		slog.String("port", cfg.Port),
		slog.String("db", cfg.Name),
		slog.Duration("duration", logger.Took(start)),
	}
	if err != nil {
		logger.LogEvent(ctx, logger.DB, slog.LevelError, "db.connect",
			append(target, slog.String("status", "fail"), slog.String("err", err.Error()))...)
		return nil, fmt.Errorf("db connect: %w", err)
	}

	if n := cfg.MaxConnections; n > 0 {
		db.SetMaxOpenConns(n)
		db.SetMaxIdleConns(n)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	logger.LogEvent(ctx, logger.DB, slog.LevelInfo, "db.connect",
		append(target, slog.String("status", "ok"), slog.Int("pool_open", cfg.MaxConnections))...)
	return db, nil
}

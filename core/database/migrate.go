package database

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/m3rciful/currencybot/core/logger"
	"github.com/m3rciful/currencybot/migrations"
)

// RunMigrations applies every pending embedded migration.
func RunMigrations(cfg Config) error {
	return migrateUp(migrations.FS, URL(cfg))
}

func migrateUp(files fs.FS, dbURL string) error {
	ctx := logger.Background()
	ups, err := fs.Glob(files, "*.up.sql")
	if err != nil {
		return fmt.Errorf("db migrate: list: %w", err)
	}
	src, err := iofs.New(files, ".")
	if err != nil {
		return fmt.Errorf("db migrate: source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dbURL)
	if err != nil {
		logger.LogEvent(ctx, logger.MIG, slog.LevelError, "db.migrate.init",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("db migrate: init: %w", err)
	}
	defer m.Close()

	from, _, _ := m.Version()
	start := time.Now()
	upErr := m.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		logger.LogEvent(ctx, logger.MIG, slog.LevelError, "db.migrate.apply",
			slog.String("status", "fail"),
			slog.Uint64("from_ver", uint64(from)),
			slog.Duration("duration", logger.Took(start)),
			slog.String("err", upErr.Error()),
		)
		return fmt.Errorf("db migrate: up: %w", upErr)
	}
	to, _, _ := m.Version()

	applied := between(ups, uint64(from), uint64(to))
	preview, more := logger.SummarizeStrings(applied, 6)
	logger.LogEvent(ctx, logger.MIG, slog.LevelInfo, "db.migrate.summary",
		slog.String("status", "ok"),
		slog.Uint64("from_ver", uint64(from)),
		slog.Uint64("to_ver", uint64(to)),
		slog.Int("files", len(applied)),
		slog.String("files_preview", preview),
		slog.Bool("files_truncated", more),
		slog.Duration("duration", logger.Took(start)),
	)
	return nil
}

// version parses the numeric prefix of "0001_name.up.sql".
func version(name string) uint64 {
	prefix, _, _ := strings.Cut(name, "_")
	v, _ := strconv.ParseUint(prefix, 10, 64)
	return v
}

// between returns the files whose version is in (from, to].
func between(files []string, from, to uint64) []string {
	var out []string
	for _, f := range files {
		if v := version(f); v > from && v <= to {
			out = append(out, f)
		}
	}
	return out
}

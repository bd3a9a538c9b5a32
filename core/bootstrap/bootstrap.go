package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/currencybot/core/config"
	coredatabase "github.com/m3rciful/currencybot/core/database"
	"github.com/m3rciful/currencybot/core/logger"
	"github.com/m3rciful/currencybot/core/telegram/state"
)

// Options control the generic bootstrap pipeline. Nil hooks select the
// production implementations.
type Options struct {
	Config *coreconfig.Config

	LoggerInit func(*coreconfig.Config) error
	Connect    func(coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(coredatabase.Config) error
	NewRedis   func(coreconfig.RedisConfig) *redis.Client
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	Sessions state.Store
	DB       *sqlx.DB
	Redis    *redis.Client
}

// Close releases whatever connections the selected backend opened.
func (r *Result) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	if r.DB != nil {
		errs = append(errs, r.DB.Close())
	}
	if r.Redis != nil {
		errs = append(errs, r.Redis.Close())
	}
	return errors.Join(errs...)
}

// Run initializes the logger and the session store selected by
// session.backend. The postgres backend also applies migrations.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}
	cfg := opts.Config

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(cfg); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	var (
		res = &Result{}
		err error
	)
	switch cfg.Session.Backend {
	case coreconfig.SessionRedis:
		err = openRedis(ctx, opts, res)
	case coreconfig.SessionPostgres:
		err = openPostgres(opts, res)
	default:
		res.Sessions = state.NewMemoryStore(cfg.Session.TTL())
	}
	if err != nil {
		_ = res.Close()
		return nil, err
	}

	logger.LogEvent(ctx, logger.Store, slog.LevelInfo, "store.ready",
		slog.String("backend", backendName(cfg)),
		slog.Duration("ttl", cfg.Session.TTL()),
	)
	return res, nil
}

func openRedis(ctx context.Context, opts Options, res *Result) error {
	cfg := opts.Config
	newRedis := opts.NewRedis
	if newRedis == nil {
		newRedis = func(rc coreconfig.RedisConfig) *redis.Client {
			return redis.NewClient(&redis.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})
		}
	}
	res.Redis = newRedis(cfg.Redis)
	if err := res.Redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("bootstrap: redis ping %s: %w", cfg.Redis.Addr, err)
	}
	store, err := state.NewRedisStore(res.Redis, cfg.Redis.Prefix, cfg.Session.TTL())
	if err != nil {
		return fmt.Errorf("bootstrap: redis store: %w", err)
	}
	res.Sessions = store
	return nil
}

func openPostgres(opts Options, res *Result) error {
	cfg := opts.Config
	connect := opts.Connect
	if connect == nil {
		connect = coredatabase.Connect
	}
	db, err := connect(cfg.Database)
	if err != nil {
		return fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}
	res.DB = db

	migrate := opts.Migrate
	if migrate == nil {
		migrate = coredatabase.RunMigrations
	}
	if err := migrate(cfg.Database); err != nil {
		return fmt.Errorf("bootstrap: migrations failed: %w", err)
	}

	store, err := state.NewPostgresStore(db, cfg.Session.TTL())
	if err != nil {
		return fmt.Errorf("bootstrap: postgres store: %w", err)
	}
	res.Sessions = store
	return nil
}

func backendName(cfg *coreconfig.Config) string {
	if cfg.Session.Backend == "" {
		return coreconfig.SessionMemory
	}
	return cfg.Session.Backend
}

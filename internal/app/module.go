package app

import (
	"context"
	"os"

	"github.com/spaceisawaste/groupme-backup/internal/config"
	"github.com/spaceisawaste/groupme-backup/internal/groupme"
	"github.com/spaceisawaste/groupme-backup/internal/lock"
	"github.com/spaceisawaste/groupme-backup/internal/logging"
	"github.com/spaceisawaste/groupme-backup/internal/ratelimit"
	"github.com/spaceisawaste/groupme-backup/internal/store"
	intsync "github.com/spaceisawaste/groupme-backup/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the command-line inputs passed to the fx module.
type Params struct {
	ConfigPath string
	Verbose    bool
	Reporter   intsync.Reporter
}

// Module returns the fx module for the backup tool, composing all providers
// and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("app",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideLock,
			provideStore,
			provideLimiter,
			provideClient,
			provideEngine,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	return config.Load(p.ConfigPath)
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.LogPath(), p.Verbose)
}

func provideLock(cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}
	l, err := lock.Acquire(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	logger.Info("data directory locked", zap.String("dir", cfg.DataDir))
	return l, nil
}

func provideStore(cfg *config.Config, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := cfg.DBPath()
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.RateLimitCalls, cfg.RateLimitWindow())
}

func provideClient(cfg *config.Config, limiter *ratelimit.Limiter, logger *zap.Logger) *groupme.Client {
	return groupme.New(groupme.ClientConfig{
		BaseURL: cfg.APIBaseURL,
		Token:   cfg.AccessToken,
		Retry: groupme.RetryPolicy{
			MaxAttempts:  cfg.MaxRetries,
			InitialDelay: cfg.RetryInitialDelay(),
			Multiplier:   cfg.RetryBackoff,
		},
	}, limiter, logger)
}

func provideEngine(p Params, client *groupme.Client, db *store.DB, cfg *config.Config, logger *zap.Logger) *intsync.Engine {
	return intsync.New(client, db, cfg.PageSize, logger, p.Reporter)
}

func registerLifecycle(lc fx.Lifecycle, lk *lock.Lock, db *store.DB, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			_ = logger.Sync()
			return nil
		},
	})
}

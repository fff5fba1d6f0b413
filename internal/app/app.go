// Package app wires the guard's services from configuration. The HTTP server and
// the sentinelctl CLI share it.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/BradenHooton/sentinel/internal/cache"
	"github.com/BradenHooton/sentinel/internal/config"
	"github.com/BradenHooton/sentinel/internal/database"
	"github.com/BradenHooton/sentinel/internal/metrics"
	"github.com/BradenHooton/sentinel/internal/middleware"
	"github.com/BradenHooton/sentinel/internal/repositories"
	"github.com/BradenHooton/sentinel/internal/services"
	pkghttp "github.com/BradenHooton/sentinel/pkg/http"
)

// App holds the wired services
type App struct {
	Config     *config.Config
	DB         *database.DB
	Cache      cache.Store
	Metrics    *metrics.Metrics
	Attempts   *services.AttemptLogService
	Blocking   *services.BlockDecisionService
	AccessList *services.AccessListService
	Gate       *middleware.AccessGate
	IPConfig   *pkghttp.IPConfig
}

// New builds every service on top of an open database
func New(ctx context.Context, cfg *config.Config, db *database.DB, logger *slog.Logger) (*App, error) {
	store, err := cache.New(ctx, cache.Config{
		Driver:   cfg.Cache.Driver,
		RedisURL: cfg.Cache.RedisURL,
		Prefix:   cfg.Cache.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}
	logger.Info("cache initialized", slog.String("driver", cfg.Cache.Driver))

	m := metrics.New()
	clock := services.SystemClock{}

	attempts := services.NewAttemptLogService(repositories.NewAttemptLogRepository(db), clock, logger)
	attempts.SetMetrics(m)

	blocking := services.NewBlockDecisionService(attempts, store, services.BlockConfig{
		MaxAttempts:            cfg.Guard.MaxAttempts,
		LockoutWindow:          cfg.Guard.LockoutWindow,
		LockoutDuration:        cfg.Guard.LockoutDuration,
		ExtendLockoutOnFailure: cfg.Guard.ExtendLockoutOnFailure,
		IPWhitelistEnabled:     cfg.Guard.IPWhitelistEnabled,
		Whitelist:              cfg.Guard.Whitelist,
		StatsTopIPs:            cfg.Guard.StatsTopIPs,
	}, clock, logger)
	blocking.SetMetrics(m)

	if cfg.Notify.Enabled {
		notifier, err := services.NewSESBlockNotifier(cfg.Notify.AWSRegion, cfg.Notify.FromAddress, cfg.Notify.Recipients, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize block notifier: %w", err)
		}
		blocking.SetNotifier(notifier)
	}

	accessList := services.NewAccessListService(repositories.NewAccessEntryRepository(db), clock, logger)
	accessList.SetMetrics(m)

	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}

	gate := middleware.NewAccessGate(accessList, middleware.AccessGateConfig{
		Enabled:     cfg.Guard.AccessControlEnabled,
		BypassPaths: cfg.Guard.AccessBypassPaths,
		FailClosed:  cfg.Guard.FailClosed,
		IPConfig:    ipConfig,
	}, logger)

	return &App{
		Config:     cfg,
		DB:         db,
		Cache:      store,
		Metrics:    m,
		Attempts:   attempts,
		Blocking:   blocking,
		AccessList: accessList,
		Gate:       gate,
		IPConfig:   ipConfig,
	}, nil
}

// Close releases the cache connection. The database is owned by the caller.
func (a *App) Close() error {
	if c, ok := a.Cache.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

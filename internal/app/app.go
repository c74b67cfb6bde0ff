// Package app wires configuration, storage, services, and the HTTP server
// into a runnable application.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"

	"github.com/orgmgr/orgmgr/internal/api"
	"github.com/orgmgr/orgmgr/internal/config"
	"github.com/orgmgr/orgmgr/internal/database"
	"github.com/orgmgr/orgmgr/internal/metrics"
	"github.com/orgmgr/orgmgr/internal/middleware"
	"github.com/orgmgr/orgmgr/internal/services/activities"
	"github.com/orgmgr/orgmgr/internal/services/buildings"
	"github.com/orgmgr/orgmgr/internal/services/organizations"
	"github.com/orgmgr/orgmgr/internal/storage/postgres"
	"github.com/orgmgr/orgmgr/pkg/logger"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// limiterIdleTimeout controls when per-client rate limiters are dropped.
const limiterIdleTimeout = 10 * time.Minute

// Run starts the API server and blocks until ctx is cancelled, then shuts
// down gracefully.
func Run(ctx context.Context, cfg *config.Config) error {
	log := logger.New("orgmgr", cfg.Log.Level)

	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()
	log.WithField("max_open_conns", cfg.Database.MaxOpenConns).Info("database connected")

	var cache middleware.Cache
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.WithError(err).Warn("redis unavailable, idempotency disabled")
	} else {
		cache = middleware.NewRedisCache(redisClient)
		log.Info("redis connected")
	}

	store := postgres.New(db)

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log)
	}

	m := metrics.New("orgmgr")

	router := api.New(api.Deps{
		Config:        cfg,
		Log:           log,
		Metrics:       m,
		Cache:         cache,
		DB:            db,
		RateLimiter:   limiter,
		Buildings:     buildings.New(store, log),
		Activities:    activities.New(store, log),
		Organizations: organizations.New(store, store, store, log),
		Version:       Version,
	})

	scheduler := cron.New()
	if limiter != nil {
		if _, err := scheduler.AddFunc("@every 5m", func() {
			limiter.Cleanup(limiterIdleTimeout)
		}); err != nil {
			return fmt.Errorf("schedule limiter cleanup: %w", err)
		}
	}
	if _, err := scheduler.AddFunc("@every 1m", func() {
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			log.WithError(err).Error("database health check failed")
		}
	}); err != nil {
		return fmt.Errorf("schedule database check: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

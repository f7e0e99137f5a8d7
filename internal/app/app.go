// Package app wires configuration, storage and the HTTP server together.
// Both cmd/api and `tko serve` start the process through Run.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Tomlord1122/takeout/internal/auth"
	"github.com/Tomlord1122/takeout/internal/cache"
	"github.com/Tomlord1122/takeout/internal/config"
	"github.com/Tomlord1122/takeout/internal/database"
	applog "github.com/Tomlord1122/takeout/internal/logger"
	"github.com/Tomlord1122/takeout/internal/metrics"
	"github.com/Tomlord1122/takeout/internal/ratelimit"
	"github.com/Tomlord1122/takeout/internal/repository"
	"github.com/Tomlord1122/takeout/internal/server"
	"github.com/Tomlord1122/takeout/internal/service"
	"github.com/Tomlord1122/takeout/internal/syncer"
)

const shutdownTimeout = 5 * time.Second

// App owns the long-lived resources of a running server.
type App struct {
	db     database.Service
	cache  cache.Client
	server *http.Server
	log    *zap.Logger
}

// New connects to Postgres and the cache, applies pending migrations and
// builds the HTTP server. Call Close if Run is never reached.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	log := applog.Named("app")

	dbService, err := database.New(cfg.Database)
	if err != nil {
		return nil, err
	}
	n, err := database.NewMigrator(dbService.SQL()).Up(ctx)
	if err != nil {
		_ = dbService.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Info("migrations applied", zap.Int("count", n))

	store, err := cache.New(cfg.Cache)
	if err != nil {
		_ = dbService.Close()
		return nil, fmt.Errorf("cache: %w", err)
	}

	metricsHandler, err := metrics.Register(prometheus.DefaultRegisterer)
	if err != nil {
		_ = store.Close()
		_ = dbService.Close()
		return nil, fmt.Errorf("metrics: %w", err)
	}

	gormDB := dbService.GetDB()
	tokens := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.AccessTTL)
	sessions := auth.NewSessions(store, cfg.Auth.SessionTTL)
	engine := syncer.NewEngine(gormDB)

	deps := server.Deps{
		DB:            dbService,
		Cache:         store,
		Todos:         service.NewTodoService(repository.NewGormTodoRepository(gormDB), engine),
		Users:         service.NewUserService(repository.NewGormUserRepository(gormDB), repository.NewGormUserStateRepository(gormDB), engine),
		Auth:          service.NewAuthService(gormDB, sessions, tokens, cfg.Auth.DemoEnabled),
		Sync:          engine,
		Authenticator: auth.NewAuthenticator(tokens, sessions, cfg.Auth.CookieName),
		Metrics:       metricsHandler,
	}
	if cfg.Auth.SignInPerMinute > 0 {
		deps.SignInLimiter = ratelimit.New(store, "signin", cfg.Auth.SignInPerMinute, time.Minute)
	}

	return &App{
		db:     dbService,
		cache:  store,
		server: server.NewServer(cfg, deps),
		log:    log,
	}, nil
}

// Run serves until ctx is cancelled, then shuts down gracefully and
// releases the database pool and cache.
func (a *App) Run(ctx context.Context) error {
	done := make(chan struct{})
	go a.gracefulShutdown(ctx, done)

	a.log.Info("starting server", zap.String("addr", a.server.Addr))
	err := a.server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		_ = a.Close()
		return fmt.Errorf("http server ListenAndServe: %w", err)
	}

	<-done
	a.log.Info("graceful shutdown complete")
	return nil
}

func (a *App) gracefulShutdown(ctx context.Context, done chan<- struct{}) {
	<-ctx.Done()
	a.log.Info("shutting down gracefully")

	ctxTimeout, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(ctxTimeout); err != nil {
		a.log.Error("server forced to shutdown", applog.Err(err))
	}
	if err := a.Close(); err != nil {
		a.log.Error("close resources", applog.Err(err))
	}
	close(done)
}

// Close releases the cache and the database pool.
func (a *App) Close() error {
	return errors.Join(a.cache.Close(), a.db.Close())
}

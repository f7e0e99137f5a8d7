package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"

	"github.com/Tomlord1122/takeout/internal/app"
	"github.com/Tomlord1122/takeout/internal/config"
	"github.com/Tomlord1122/takeout/internal/logger"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.L().Fatal("load config", logger.Err(err))
	}
	logger.Init(logger.Config{Env: cfg.Log.Env, Level: cfg.Log.Level, ServiceName: "takeout-api", Version: version})
	defer func() { _ = logger.Sync() }()
	logger.L().Info("config loaded", zap.Stringer("config", cfg))

	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		stop() // Allow Ctrl+C to force shutdown
	}()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.L().Error("startup failed", logger.Err(err))
		os.Exit(1)
	}
	if err := a.Run(ctx); err != nil {
		logger.L().Error("server exited", logger.Err(err))
		os.Exit(1)
	}
}

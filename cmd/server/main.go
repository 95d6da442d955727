package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"zaikokanri-backend/internal/catalog"
	"zaikokanri-backend/internal/config"
	"zaikokanri-backend/internal/database"
	"zaikokanri-backend/internal/logger"
	"zaikokanri-backend/internal/server"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	appLogger, err := logger.New(logger.Options{Env: cfg.AppEnv, Level: cfg.LogLevel, Encoding: cfg.LogEncoding})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer appLogger.Sync()

	if cfg.UsesDefaultDSN() {
		appLogger.Warn("DATABASE_DSN not set, using local default")
	}

	db, err := database.Open(cfg, appLogger)
	if err != nil {
		appLogger.Fatal("could not open database", zap.Error(err))
	}
	defer database.Close(db)

	// Catalog cache is optional; without redis every lookup hits the database.
	var cache catalog.Cache
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := rdb.Ping(ctx).Err()
		cancel()
		if err != nil {
			appLogger.Warn("redis unreachable, catalog cache disabled", zap.String("addr", cfg.RedisAddr), zap.Error(err))
			_ = rdb.Close()
		} else {
			defer rdb.Close()
			cache = catalog.NewRedisCache(rdb, appLogger)
			appLogger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
		}
	}

	app := server.New(cfg, db, cache, appLogger)

	go func() {
		appLogger.Info("starting http server", zap.String("port", cfg.HTTPPort))
		if err := app.Listen(":" + cfg.HTTPPort); err != nil {
			appLogger.Fatal("http server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(ctx); err != nil {
		appLogger.Error("shutdown", zap.Error(err))
	}
	appLogger.Info("server stopped")
}

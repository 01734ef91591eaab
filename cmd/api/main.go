package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/geojoki/internal/config"
	"github.com/Windi-Fikriyansyah/geojoki/internal/db"
	"github.com/Windi-Fikriyansyah/geojoki/internal/handlers"
	"github.com/Windi-Fikriyansyah/geojoki/internal/logger"
	"github.com/Windi-Fikriyansyah/geojoki/internal/realtime"
	"github.com/Windi-Fikriyansyah/geojoki/internal/services/geocoding"
	"github.com/Windi-Fikriyansyah/geojoki/internal/services/ledger"
	"github.com/Windi-Fikriyansyah/geojoki/internal/services/proximity"
	"github.com/Windi-Fikriyansyah/geojoki/internal/services/rating"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logCfg := logger.ForEnvironment(cfg.AppEnv)
	if cfg.LogLevel != "" {
		logCfg.Level = cfg.LogLevel
	}
	if cfg.LogFormat != "" {
		logCfg.Format = cfg.LogFormat
	}
	lg := logger.New(logCfg)
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Connect(cfg, lg)
	if err != nil {
		lg.Fatal("database connect failed", zap.Error(err))
	}
	if err := db.Migrate(gdb); err != nil {
		lg.Fatal("database migrate failed", zap.Error(err))
	}

	rdb, err := realtime.NewRedis(ctx, cfg, lg)
	if err != nil {
		lg.Fatal("redis connect failed", zap.Error(err))
	}

	var cache geocoding.Cache = geocoding.NewMemoryCache()
	if rdb != nil {
		cache = geocoding.NewRedisCache(rdb, lg)
	}
	geo := geocoding.NewGeocodingService(cfg, cache, lg)
	if cfg.GeocodingAPIKey == "" {
		lg.Warn("GEOCODING_API_KEY is empty, address lookups will fail")
	}

	hub := realtime.NewHub(lg)
	go hub.Run(ctx)

	app := handlers.NewApp(handlers.Deps{
		Config:  cfg,
		DB:      gdb,
		Redis:   rdb,
		Hub:     hub,
		Geo:     geo,
		Search:  proximity.NewProximityService(gdb, cfg),
		Ledger:  ledger.NewLedgerService(gdb, hub, lg),
		Reviews: rating.NewRatingService(gdb, hub, lg),
		Log:     lg,
	})

	go func() {
		<-ctx.Done()
		lg.Info("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			lg.Error("http shutdown", zap.Error(err))
		}
	}()

	lg.Info("listening", zap.String("port", cfg.AppPort), zap.String("env", cfg.AppEnv))
	if err := app.Listen(":" + cfg.AppPort); err != nil {
		lg.Error("http server stopped", zap.Error(err))
	}

	if rdb != nil {
		_ = rdb.Close()
	}
	if sqlDB, err := gdb.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

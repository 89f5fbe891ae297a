package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Andrey-Ft/Backend-Git-Masters/internal/cache"
	"github.com/Andrey-Ft/Backend-Git-Masters/internal/config"
	"github.com/Andrey-Ft/Backend-Git-Masters/internal/engine"
	"github.com/Andrey-Ft/Backend-Git-Masters/internal/handler"
	"github.com/Andrey-Ft/Backend-Git-Masters/internal/intake"
	"github.com/Andrey-Ft/Backend-Git-Masters/internal/ledger"
	"github.com/Andrey-Ft/Backend-Git-Masters/internal/logger"
	"github.com/Andrey-Ft/Backend-Git-Masters/internal/metrics"
	"github.com/Andrey-Ft/Backend-Git-Masters/internal/queue/memory"
	"github.com/Andrey-Ft/Backend-Git-Masters/internal/repository/postgres"
	"github.com/Andrey-Ft/Backend-Git-Masters/internal/rules"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	log, err := logger.New(cfg.Service.Environment)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer func(log *zap.Logger) {
		if err := log.Sync(); err != nil {
			log.Error("Failed to sync logger", zap.Error(err))
		}
	}(log)

	log.Info("Starting gamification service",
		zap.String("environment", cfg.Service.Environment))

	db, err := postgres.Open(&cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := postgres.InitSchema(db); err != nil {
		log.Fatal("Failed to initialize schema", zap.Error(err))
	}
	log.Info("Database schema initialized")

	dayLoc, err := time.LoadLocation(cfg.Badges.Timezone)
	if err != nil {
		log.Fatal("Invalid badges timezone", zap.String("timezone", cfg.Badges.Timezone), zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	eventRepo := postgres.NewEventRepo(db, log)
	userRepo := postgres.NewUserRepo(db, log)
	ledgerRepo := postgres.NewLedgerRepo(db, log)

	var dedup cache.DeliveryCache = cache.Noop{}
	if cfg.Valkey.IdempotencyEnabled && cfg.Valkey.Addr != "" {
		valkeyCache, err := cache.NewValkey(&cfg.Valkey, log)
		if err != nil {
			if !cfg.Valkey.FailOpen {
				log.Fatal("Failed to connect to Valkey", zap.Error(err))
			}
			log.Warn("Valkey unavailable, continuing without the dedup fast path", zap.Error(err))
		} else {
			dedup = valkeyCache
			defer valkeyCache.Close()
		}
	}

	evalQueue := memory.New(cfg.Engine.QueueSize, m.QueueDepth)
	ledgerSvc := ledger.NewService(ledgerRepo, m, log)
	registry := rules.NewRegistry(ledgerRepo, userRepo, dayLoc, log)
	eng := engine.New(eventRepo, userRepo, ledgerSvc, registry, evalQueue, cfg.Engine.Workers, m, log)
	intakeSvc := intake.NewService(eventRepo, userRepo, dedup, evalQueue, m, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		eng.Start(ctx)
	}()

	h := handler.NewHandler(intakeSvc, eventRepo, reg, log)
	srv := &http.Server{
		Addr:    ":" + cfg.Service.APIPort,
		Handler: h,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down gracefully")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown error", zap.Error(err))
	}

	// Stop the workers after the server so in-flight requests can still
	// enqueue.
	cancel()
	<-engineDone
	log.Info("Shutdown complete")
}

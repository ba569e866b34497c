package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dust-service/dust_service/internal/api/routes"
	"github.com/dust-service/dust_service/internal/domain/services/aggregator"
	"github.com/dust-service/dust_service/internal/domain/services/consolidation"
	"github.com/dust-service/dust_service/internal/infrastructure/cache"
	"github.com/dust-service/dust_service/internal/infrastructure/config"
	"github.com/dust-service/dust_service/internal/workers/status_poller"
	"github.com/dust-service/dust_service/pkg/logger"
	"github.com/dust-service/dust_service/pkg/tracing"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	log := logger.New(cfg.LogLevel, cfg.Environment)
	defer log.Sync()

	// Initialize OpenTelemetry tracing
	tracingShutdown, err := tracing.InitTracer(context.Background(), tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		CollectorURL: cfg.Tracing.CollectorURL,
		Environment:  cfg.Environment,
		SampleRate:   cfg.Tracing.SampleRate,
		Insecure:     cfg.Tracing.Insecure,
	}, log.Zap())
	if err != nil {
		log.Fatal("Failed to initialize tracing", "error", err)
	}
	defer tracingShutdown(context.Background())

	// Connect to Redis
	store, err := cache.NewRedisStore(&cfg.Redis, log.Zap())
	if err != nil {
		log.Fatal("Failed to connect to Redis", "error", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("Failed to close Redis connection", "error", err)
		}
	}()

	// Wire the bridge aggregator over the configured provider set
	agg := aggregator.NewDefault(cfg, store, log.Zap())
	log.Info("Bridge aggregator initialized", "providers", agg.Providers())

	// Wire the consolidation engine
	optimizer := consolidation.NewOptimizer(agg, cfg.Consolidation, cfg.Aggregator.DefaultSlippage, log.Zap())
	tracker := consolidation.NewTracker(store, cfg.Consolidation, log.Zap())
	engine := consolidation.NewEngine(optimizer, tracker, store, cfg.Consolidation, log.Zap())

	// Start the status poller
	poller := status_poller.NewPoller(tracker, agg, cfg.Consolidation.PollSchedule, log.Zap())
	if err := poller.Start(); err != nil {
		log.Fatal("Failed to start status poller", "error", err)
	}

	// Initialize router
	router := routes.SetupRoutes(engine, store, log.Zap(), cfg.Environment)

	server := &http.Server{
		Addr:           fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	// Start server in goroutine
	go func() {
		log.Info("Starting server",
			"port", cfg.Server.Port,
			"environment", cfg.Environment)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", "error", err)
		}
	}()

	// Wait for interrupt signal to gracefully shut down
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	poller.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	log.Info("Server exited")
}

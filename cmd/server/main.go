package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"scrapinghorse/internal/api/middleware"
	"scrapinghorse/internal/api/routes"
	"scrapinghorse/internal/config"
	"scrapinghorse/internal/logging"
	"scrapinghorse/internal/scraper"
	"scrapinghorse/internal/scraper/engines/aimode"
	"scrapinghorse/internal/scraper/workers"
	"scrapinghorse/internal/usage"
	"scrapinghorse/internal/window"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("configs/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logging before anything that logs
	if err := logging.InitializeLogging(cfg); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.CloseLogging()

	logger := logging.GetGlobalLogger()
	logger.Info("Starting search scraper service", map[string]interface{}{
		"pool_size": cfg.Workers.PoolSize,
		"headless":  cfg.Scraper.HeadlessMode,
	})

	// Usage metering
	tracker := usage.NewTracker(cfg)
	defer tracker.Close()

	// Worker pool over the browser engine
	engineFactory := scraper.EngineFactory(func(slot window.Slot) scraper.Engine {
		return aimode.NewEngine(cfg, slot)
	})
	poolManager := workers.NewPoolManager(cfg, engineFactory)

	startCtx, cancelStart := context.WithTimeout(context.Background(), cfg.Workers.StartupTimeout)
	if err := poolManager.Initialize(startCtx); err != nil {
		cancelStart()
		logger.Fatal("Failed to start worker pool", map[string]interface{}{
			"error": err.Error(),
		})
	}
	cancelStart()

	// Per-key request throttling
	rateLimiter := middleware.NewRateLimiter(cfg)

	// Initialize Echo
	e := echo.New()
	e.HideBanner = true

	routes.SetupRoutes(e, cfg, poolManager, tracker, rateLimiter)

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Workers.ShutdownGrace+10*time.Second)
		defer cancel()

		logger.Info("Stopping HTTP server...")
		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error shutting down server", map[string]interface{}{
				"error": err.Error(),
			})
		}

		logger.Info("Stopping worker pool...")
		if err := poolManager.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error stopping worker pool", map[string]interface{}{
				"error": err.Error(),
			})
		}

		rateLimiter.Stop()
		logger.Info("Server shutdown complete")
	}()

	// Start server
	address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info("Server starting", map[string]interface{}{
		"address": address,
	})

	if err := e.Start(address); err != nil {
		logger.Info("Server stopped", map[string]interface{}{
			"reason": err.Error(),
		})
	}
}

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/trinityhades/luna-gateway/internal/cache"
	"github.com/trinityhades/luna-gateway/internal/config"
	"github.com/trinityhades/luna-gateway/internal/logging"
	"github.com/trinityhades/luna-gateway/internal/metrics"
	"github.com/trinityhades/luna-gateway/internal/middleware"
	"github.com/trinityhades/luna-gateway/internal/session"
	"github.com/trinityhades/luna-gateway/internal/tracing"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logging
	logger, err := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	// Initialize JWT secret from config
	middleware.SetJWTSecret(cfg.Auth.JWTSecret)

	// Initialize tracing
	if cfg.Tracing.Enabled {
		_, closer, err := tracing.InitTracer(cfg.Tracing.ServiceName, cfg.Tracing.JaegerEndpoint)
		if err != nil {
			logger.WithError(err).Warn("tracing disabled, tracer init failed")
		} else {
			defer closer.Close()
			logger.Info("tracing initialized")
		}
	}

	// Initialize the subtitle document cache; sessions work without it
	var subtitleCache *cache.Cache
	if cfg.Redis.Enabled {
		subtitleCache, err = cache.NewCache(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.CacheTTL)
		if err != nil {
			logger.WithError(err).Warn("subtitle cache disabled, redis unreachable")
			subtitleCache = nil
		} else {
			defer subtitleCache.Close()
		}
	}

	// Start the metrics server
	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics.Port)
		go func() {
			if err := metricsServer.Start(); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Error("metrics server failed")
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			_ = metricsServer.Shutdown(ctx)
		}()
	}

	// Create session manager and API
	sessions := session.NewManager(cfg, subtitleCache, logger)
	api := &API{
		cfg:      cfg,
		logger:   logger,
		sessions: sessions,
	}

	router := setupRouter(api)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("starting gateway server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	// Graceful shutdown: stop accepting requests, then tear down sessions so
	// tick loops stop and materialized subtitle files are removed
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}

	sessions.CloseAll()
	logger.Info("server stopped")
}

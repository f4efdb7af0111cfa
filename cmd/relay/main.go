package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pellicule/internal/cache"
	"pellicule/internal/config"
	"pellicule/internal/observability"
	"pellicule/internal/relay"

	"github.com/redis/go-redis/v9"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := observability.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	observability.SetGlobalLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracing, err := observability.StartTracing(ctx, cfg, observability.ServiceRelay)
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}
	defer func() { _ = tracing.Shutdown(context.Background()) }()

	// Redis is optional; without it the relay serves a single instance.
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = cache.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("redis unavailable, fan-out disabled", "error", err)
			rdb = nil
		} else {
			defer func() { _ = rdb.Close() }()
		}
	}

	srv := relay.NewServer(relay.Config{
		Port:           cfg.RelayPort,
		JWTSecret:      cfg.RelayJWTSecret,
		AllowedOrigins: cfg.RelayAllowedOrigins,
		Metrics:        cfg.MetricsEnabled,
	}, relay.NewHub(logger), relay.NewFanout(rdb, logger), logger)

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		log.Println("Shutting down relay...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Relay shutdown error: %v", err)
		}
	}()

	log.Printf("Relay starting on port %s...", cfg.RelayPort)
	if err := srv.Start(ctx, nil); err != nil {
		log.Fatalf("relay: %v", err)
	}
}

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/pricewatch/price-scraper/internal/api"
	"github.com/pricewatch/price-scraper/internal/browser"
	"github.com/pricewatch/price-scraper/internal/config"
	"github.com/pricewatch/price-scraper/internal/database"
	"github.com/pricewatch/price-scraper/internal/retailer"
	"github.com/pricewatch/price-scraper/internal/scraper"
	"github.com/pricewatch/price-scraper/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Starting price scraper server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(ctx, database.Config{
		Host:        cfg.Database.Host,
		Port:        cfg.Database.Port,
		User:        cfg.Database.User,
		Password:    cfg.Database.Password,
		Database:    cfg.Database.DBName,
		SSLMode:     cfg.Database.SSLMode,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnLife: cfg.Database.MaxConnLife,
		MaxConnIdle: cfg.Database.MaxConnIdle,
	})
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	relay := database.NewRelay(db, redisClient, logger, database.RelayConfig{
		PollInterval: cfg.Redis.PollInterval,
		BatchSize:    cfg.Redis.BatchSize,
	})
	go func() {
		if err := relay.Start(ctx); err != nil && err != context.Canceled {
			logger.Error("Relay stopped with error", "error", err)
		}
	}()

	pool := browser.NewPool(browser.Options{
		Headless: cfg.Browser.Headless,
	}, logger)
	defer func() {
		if err := pool.CloseAll(); err != nil {
			logger.Error("Failed to close browser engines", "error", err)
		}
	}()

	registry := prometheus.NewRegistry()
	metrics := scraper.NewMetrics(registry)
	resolver := retailer.NewResolver(db, logger)

	svc := scraper.New(pool, db, resolver, scraper.Config{
		MaxRetries:        cfg.Scraper.MaxRetries,
		BackoffMultiplier: cfg.Scraper.BackoffMultiplier,
		MaxRetryDelay:     cfg.Scraper.MaxRetryDelay,
		NavigationTimeout: cfg.Browser.NavigationTimeout,
		SettleDelayMin:    cfg.Scraper.SettleDelayMin,
		SettleDelayMax:    cfg.Scraper.SettleDelayMax,
		RateLimitMin:      cfg.Scraper.RateLimitMin,
		RateLimitMax:      cfg.Scraper.RateLimitMax,
		EventStream:       cfg.Redis.Stream,
		Verbose:           cfg.Scraper.Verbose,
	}, metrics, logger)

	handlers := api.NewHandlers(svc, db, logger)
	router := api.NewRouter(handlers, registry)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down server")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown failed", "error", err)
		}
	}()

	logger.Info("Server starting", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("Server stopped")
}

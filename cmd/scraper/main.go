package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pricewatch/price-scraper/internal/browser"
	"github.com/pricewatch/price-scraper/internal/config"
	"github.com/pricewatch/price-scraper/internal/database"
	"github.com/pricewatch/price-scraper/internal/queue"
	"github.com/pricewatch/price-scraper/internal/retailer"
	"github.com/pricewatch/price-scraper/internal/scraper"
	"github.com/pricewatch/price-scraper/pkg/logger"
)

func main() {
	var (
		urls      = flag.String("urls", "", "Comma-separated list of product URLs to scrape")
		inputFile = flag.String("file", "", "File containing product URLs (one per line, # comments allowed)")
		output    = flag.String("output", "stdout", "Output format: stdout, json")
		headless  = flag.Bool("headless", true, "Run browsers in headless mode")
		verbose   = flag.Bool("verbose", false, "Log fingerprint summary and family per attempt")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Starting price scraper")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received")
		cancel()
	}()

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

	pool := browser.NewPool(browser.Options{
		Headless: *headless && cfg.Browser.Headless,
	}, logger)
	defer func() {
		if err := pool.CloseAll(); err != nil {
			logger.Error("Failed to close browser engines", "error", err)
		}
	}()

	resolver := retailer.NewResolver(db, logger)
	metrics := scraper.NewMetrics(prometheus.NewRegistry())

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
		Verbose:           *verbose || cfg.Scraper.Verbose,
	}, metrics, logger)

	taskQueue := queue.NewInMemoryQueue()
	if err := loadTasks(taskQueue, *urls, *inputFile); err != nil {
		logger.Error("Failed to load tasks", "error", err)
		os.Exit(1)
	}
	taskQueue.Close()

	if taskQueue.Size() == 0 {
		fmt.Println("No tasks to process. Use -urls or -file to specify products to scrape.")
		flag.Usage()
		os.Exit(1)
	}

	logger.Info("Starting scraping", "tasks", taskQueue.Size())

	var succeeded, failed int
	for {
		select {
		case <-ctx.Done():
			logger.Info("Context cancelled, exiting")
			return
		default:
		}

		task, err := taskQueue.Pop(ctx)
		if err != nil {
			if err != queue.ErrQueueClosed {
				logger.Info("Stopping", "reason", err)
			}
			break
		}

		result, err := svc.ScrapeProduct(ctx, task.URL)
		if err != nil {
			logger.Error("Scrape failed", "url", task.URL, "error", err)
			failed++
			continue
		}
		if result == nil {
			failed++
			continue
		}

		succeeded++
		if err := outputResult(result, *output); err != nil {
			logger.Error("Failed to output result", "error", err)
		}
	}

	logger.Info("Scraping completed", "succeeded", succeeded, "failed", failed)
}

func loadTasks(q queue.Queue, urls, inputFile string) error {
	var list []string

	if urls != "" {
		list = append(list, strings.Split(urls, ",")...)
	}

	if inputFile != "" {
		data, err := os.ReadFile(inputFile)
		if err != nil {
			return fmt.Errorf("failed to read input file: %w", err)
		}
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line != "" && !strings.HasPrefix(line, "#") {
				list = append(list, line)
			}
		}
	}

	for _, raw := range list {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		domain, err := retailer.DomainOf(raw)
		if err != nil {
			return fmt.Errorf("invalid url %q: %w", raw, err)
		}
		if err := q.Push(queue.NewTask(raw, domain, 0)); err != nil {
			return err
		}
	}
	return nil
}

func outputResult(result *scraper.ProductResult, format string) error {
	switch format {
	case "json":
		return json.NewEncoder(os.Stdout).Encode(result)
	default:
		fmt.Printf("%s\t%.2f\t%s\n", result.Title, result.Price, result.URL)
		return nil
	}
}

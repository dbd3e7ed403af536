// Package scraper drives the full life of one logical scrape call: resolve
// the retailer, pace against its domain, run attempts with escalating browser
// families under the retry policy, and persist exactly one attempt record
// with its outbox event once the outcome is final.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pricewatch/price-scraper/internal/browser"
	"github.com/pricewatch/price-scraper/internal/database"
	"github.com/pricewatch/price-scraper/internal/errclass"
	"github.com/pricewatch/price-scraper/internal/extract"
	"github.com/pricewatch/price-scraper/internal/fingerprint"
	"github.com/pricewatch/price-scraper/internal/ratelimit"
	"github.com/pricewatch/price-scraper/internal/retailer"
	"github.com/pricewatch/price-scraper/internal/retry"
)

// ProductResult is a complete scrape: title and price are always set.
type ProductResult struct {
	Title      string
	Price      float64
	URL        string
	RetailerID int64
	Family     fingerprint.Family
	Attempts   int
}

// Store is the persistence surface the service writes through.
type Store interface {
	RecordAttempt(ctx context.Context, a *database.Attempt) error
	RecordAttemptWithEvent(ctx context.Context, a *database.Attempt, event *database.OutboxEvent) error
	UpsertProduct(ctx context.Context, p *database.Product) error
	UpdateSelectorStats(ctx context.Context, groupID int64, success bool) error
}

// pacer hands out per-domain limiters. Satisfied by ratelimit.Registry;
// faked in tests.
type pacer interface {
	For(domain string) ratelimit.Limiter
}

type Config struct {
	MaxRetries        int
	BackoffMultiplier float64
	MaxRetryDelay     time.Duration
	NavigationTimeout time.Duration
	SettleDelayMin    time.Duration
	SettleDelayMax    time.Duration
	RateLimitMin      time.Duration
	RateLimitMax      time.Duration
	EventStream       string
	Verbose           bool
}

type Service struct {
	runner   runner
	store    Store
	resolver *retailer.Resolver
	limiter  pacer
	executor *retry.Executor
	metrics  *Metrics
	logger   *slog.Logger
	stream   string
	verbose  bool
}

func New(pool *browser.Pool, store Store, resolver *retailer.Resolver, cfg Config, metrics *Metrics, logger *slog.Logger) *Service {
	logger = logger.With("component", "scraper")

	policy := retry.DefaultPolicy()
	if cfg.MaxRetries > 0 {
		policy.MaxRetries = cfg.MaxRetries
	}
	if cfg.BackoffMultiplier > 0 {
		policy.BackoffMultiplier = cfg.BackoffMultiplier
	}
	if cfg.MaxRetryDelay > 0 {
		policy.MaxDelay = cfg.MaxRetryDelay
	}

	pipeline := extract.NewPipeline(logger)

	return &Service{
		runner:   newBrowserRunner(pool, pipeline, cfg, logger),
		store:    store,
		resolver: resolver,
		limiter:  ratelimit.NewRegistry(cfg.RateLimitMin, cfg.RateLimitMax),
		executor: retry.NewExecutor(policy, logger),
		metrics:  metrics,
		logger:   logger,
		stream:   cfg.EventStream,
		verbose:  cfg.Verbose,
	}
}

// ScrapeProduct runs one logical scrape. A nil result with a nil error means
// retry exhaustion: the failure is recorded for analytics, not surfaced.
// A non-nil error is a configuration or input defect, never a transient
// scraping condition.
func (s *Service) ScrapeProduct(ctx context.Context, url string) (*ProductResult, error) {
	profile, err := s.resolver.Resolve(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve retailer for %s: %w", url, err)
	}

	limiter := s.limiter.For(profile.Profile.Domain)
	if d := profile.Profile.Config.NavigationDelay(); d > 0 {
		limiter.SetDelay(d, 2*d)
	}
	if err := limiter.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()

	var (
		result     *extract.Result
		lastFamily fingerprint.Family
		attempts   int
	)

	scrapeErr := s.executor.Execute(ctx, func(ctx context.Context, attempt int) error {
		attempts = attempt + 1

		res, family, err := s.runner.Run(ctx, attempt, url, profile)
		lastFamily = family
		if err != nil {
			s.logger.Warn("attempt failed",
				"url", url, "attempt", attempt, "family", family,
				"error_type", errclass.Classify(err), "error", err)
			return err
		}
		result = res
		return nil
	})

	elapsed := time.Since(start)
	success := scrapeErr == nil && result != nil
	kind := errclass.Classify(scrapeErr)

	s.recordOutcome(ctx, profile, url, success, scrapeErr, kind, lastFamily, elapsed)
	s.metrics.observe(success, lastFamily, kind, attempts, elapsed.Seconds())

	if !success {
		if kind == errclass.KindRateLimit || kind == errclass.KindBotDetection {
			limiter.RecordThrottled()
		}
		s.logger.Error("scrape exhausted",
			"url", url, "attempts", attempts, "error_type", kind, "error", scrapeErr)
		return nil, nil
	}

	limiter.RecordSuccess()
	s.persistProduct(ctx, profile, result)
	s.updateSelectorStats(ctx, profile, true)

	s.logger.Info("scrape succeeded",
		"url", url, "title", result.Title, "price", result.Price,
		"family", lastFamily, "attempts", attempts,
		"elapsed_ms", elapsed.Milliseconds())

	return &ProductResult{
		Title:      result.Title,
		Price:      result.Price,
		URL:        url,
		RetailerID: profile.Profile.ID,
		Family:     lastFamily,
		Attempts:   attempts,
	}, nil
}

// recordOutcome persists the single attempt record for this logical call and
// its outbox event in one transaction. Persistence trouble is logged, not
// propagated: losing an analytics row must not fail the scrape.
func (s *Service) recordOutcome(ctx context.Context, profile *retailer.ResolvedProfile, url string,
	success bool, scrapeErr error, kind errclass.Kind, family fingerprint.Family, elapsed time.Duration) {

	attempt := &database.Attempt{
		ID:             uuid.New(),
		RetailerID:     profile.Profile.ID,
		URL:            url,
		Success:        success,
		ResponseTimeMs: elapsed.Milliseconds(),
	}
	if family != "" {
		f := string(family)
		attempt.BrowserFamily = &f
	}
	if !success {
		k := string(kind)
		attempt.ErrorType = &k
		if scrapeErr != nil {
			msg := scrapeErr.Error()
			attempt.ErrorMessage = &msg
		}
	}

	if err := s.recordAttempt(ctx, attempt, url, success, kind, family); err != nil {
		s.logger.Error("failed to record attempt", "url", url, "error", err)
	}

	if !success {
		s.updateSelectorStats(ctx, profile, false)
	}
}

// recordAttempt writes the attempt row, with its outbox event in the same
// transaction when an event stream is configured.
func (s *Service) recordAttempt(ctx context.Context, attempt *database.Attempt, url string,
	success bool, kind errclass.Kind, family fingerprint.Family) error {

	if s.stream == "" {
		return s.store.RecordAttempt(ctx, attempt)
	}

	payload := &database.ScrapeEventPayload{
		AttemptID:     attempt.ID,
		RetailerID:    attempt.RetailerID,
		URL:           url,
		Success:       success,
		ResponseTime:  attempt.ResponseTimeMs,
		Timestamp:     time.Now(),
		BrowserFamily: string(family),
	}
	if !success {
		payload.ErrorType = string(kind)
	}

	event, err := database.NewScrapeEvent(payload, s.stream)
	if err != nil {
		return err
	}
	return s.store.RecordAttemptWithEvent(ctx, attempt, event)
}

func (s *Service) persistProduct(ctx context.Context, profile *retailer.ResolvedProfile, result *extract.Result) {
	price := result.Price
	product := &database.Product{
		URL:        result.URL,
		Title:      result.Title,
		Price:      &price,
		RetailerID: profile.Profile.ID,
	}
	if err := s.store.UpsertProduct(ctx, product); err != nil {
		s.logger.Error("failed to upsert product", "url", result.URL, "error", err)
	}
}

func (s *Service) updateSelectorStats(ctx context.Context, profile *retailer.ResolvedProfile, success bool) {
	for _, typ := range []retailer.SelectorType{retailer.SelectorTitle, retailer.SelectorPrice} {
		group := profile.Group(typ)
		if group == nil {
			continue
		}
		if err := s.store.UpdateSelectorStats(ctx, group.ID, success); err != nil {
			s.logger.Error("failed to update selector stats",
				"group_id", group.ID, "error", err)
		}
	}
}

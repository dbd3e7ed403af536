package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/pricewatch/price-scraper/internal/browser"
	"github.com/pricewatch/price-scraper/internal/extract"
	"github.com/pricewatch/price-scraper/internal/fingerprint"
	"github.com/pricewatch/price-scraper/internal/retailer"
)

// runner executes a single attempt against a live page and reports which
// browser family it used, so the service can record it either way.
type runner interface {
	Run(ctx context.Context, attempt int, url string, profile *retailer.ResolvedProfile) (*extract.Result, fingerprint.Family, error)
}

// browserRunner is the production runner: fresh identity and context per
// attempt, escalating browser family and navigation timeout.
type browserRunner struct {
	pool        *browser.Pool
	gen         *fingerprint.Generator
	pipeline    *extract.Pipeline
	logger      *slog.Logger
	baseTimeout time.Duration
	settleMin   time.Duration
	settleMax   time.Duration
	verbose     bool

	mu   sync.Mutex
	rand *rand.Rand
}

func newBrowserRunner(pool *browser.Pool, pipeline *extract.Pipeline, cfg Config, logger *slog.Logger) *browserRunner {
	return &browserRunner{
		pool:        pool,
		gen:         fingerprint.NewGenerator(),
		pipeline:    pipeline,
		logger:      logger,
		baseTimeout: cfg.NavigationTimeout,
		settleMin:   cfg.SettleDelayMin,
		settleMax:   cfg.SettleDelayMax,
		verbose:     cfg.Verbose,
		rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Page titles that mean the retailer served a challenge instead of the
// product. Matched case-insensitively against the loaded page title.
var blockTitleMarkers = []string{
	"robot check",
	"captcha",
	"access denied",
	"are you a human",
	"attention required",
	"pardon our interruption",
	"verify you are human",
}

func (r *browserRunner) Run(ctx context.Context, attempt int, url string, profile *retailer.ResolvedProfile) (*extract.Result, fingerprint.Family, error) {
	family := browser.FamilyForAttempt(attempt)
	id := r.gen.Generate(family)

	if r.verbose {
		r.logger.Info("attempt fingerprint",
			"attempt", attempt, "family", family, "fingerprint", id.Summary())
	}

	browserCtx, page, err := r.pool.NewSession(family, id)
	if err != nil {
		return nil, family, fmt.Errorf("failed to open session: %w", err)
	}
	defer browserCtx.Close()

	timeout := browser.NavigationTimeout(r.baseTimeout, attempt)
	if _, err := page.Goto(url, playwright.PageGotoOptions{
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return nil, family, fmt.Errorf("navigation failed: %w", err)
	}

	if err := r.checkBlocked(page); err != nil {
		return nil, family, err
	}

	if err := r.settle(ctx, profile); err != nil {
		return nil, family, err
	}

	result, err := r.pipeline.Extract(&pageAdapter{page: page}, extract.Selectors{
		Title: profile.Selectors(retailer.SelectorTitle),
		Price: profile.Selectors(retailer.SelectorPrice),
	})
	if err != nil {
		return nil, family, err
	}
	return result, family, nil
}

func (r *browserRunner) checkBlocked(page playwright.Page) error {
	title, err := page.Title()
	if err != nil {
		return fmt.Errorf("failed to read page title: %w", err)
	}

	lowered := strings.ToLower(title)
	for _, marker := range blockTitleMarkers {
		if strings.Contains(lowered, marker) {
			return fmt.Errorf("blocked page detected: %q", title)
		}
	}
	return nil
}

// settle waits a randomized interval after load so the page's deferred
// scripts run and the visit paces like a human one. Retailer profiles can
// lengthen it past the configured window.
func (r *browserRunner) settle(ctx context.Context, profile *retailer.ResolvedProfile) error {
	r.mu.Lock()
	delay := r.settleMin
	if r.settleMax > r.settleMin {
		delay += time.Duration(r.rand.Int63n(int64(r.settleMax - r.settleMin)))
	}
	r.mu.Unlock()

	if extra := profile.Profile.Config.ExtractionDelay(); extra > delay {
		delay = extra
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// pageAdapter narrows a live page to what the extraction pipeline reads.
type pageAdapter struct {
	page playwright.Page
}

func (p *pageAdapter) FirstText(selector string) (string, error) {
	locator := p.page.Locator(selector)
	count, err := locator.Count()
	if err != nil || count == 0 {
		return "", err
	}

	text, err := locator.First().TextContent()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (p *pageAdapter) HTML() (string, error) {
	return p.page.Content()
}

func (p *pageAdapter) URL() string {
	return p.page.URL()
}

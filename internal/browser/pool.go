// Package browser owns the automation engines. One long-lived engine per
// browser family, launched lazily and reused across scrapes; per-attempt
// browsing contexts are seeded with a fresh fingerprint identity.
package browser

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/pricewatch/price-scraper/internal/fingerprint"
)

// Escalation order for failover. Attempts beyond the pool reuse the last
// family.
var families = []fingerprint.Family{
	fingerprint.FamilyChromium,
	fingerprint.FamilyFirefox,
	fingerprint.FamilyWebKit,
}

// FamilyForAttempt is the total attempt-to-family function: chromium first,
// then firefox, then webkit, clamped at webkit for attempts past the pool.
func FamilyForAttempt(attempt int) fingerprint.Family {
	if attempt < 0 {
		return families[0]
	}
	if attempt >= len(families) {
		return families[len(families)-1]
	}
	return families[attempt]
}

// NavigationTimeout widens the navigation budget with the attempt index, so
// a slow target gets more room on later attempts.
func NavigationTimeout(base time.Duration, attempt int) time.Duration {
	return base + time.Duration(attempt)*base/2
}

type Options struct {
	Headless bool
}

// Pool lazily launches and memoizes one engine per family. Safe for
// concurrent scrape requests: the launch lock guarantees a single launch per
// family even when two requests race to first-use it.
type Pool struct {
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	pw      *playwright.Playwright
	engines map[fingerprint.Family]playwright.Browser
}

func NewPool(opts Options, logger *slog.Logger) *Pool {
	return &Pool{
		opts:    opts,
		logger:  logger.With("component", "browser_pool"),
		engines: make(map[fingerprint.Family]playwright.Browser),
	}
}

// Engine returns the long-lived engine for a family, launching it on first
// use. The second racer waits on the lock and reuses the first's result.
func (p *Pool) Engine(family fingerprint.Family) (playwright.Browser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if engine, ok := p.engines[family]; ok {
		return engine, nil
	}

	if p.pw == nil {
		pw, err := playwright.Run()
		if err != nil {
			return nil, fmt.Errorf("failed to start playwright: %w", err)
		}
		p.pw = pw
	}

	browserType, err := p.browserType(family)
	if err != nil {
		return nil, err
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(p.opts.Headless),
	}
	if family == fingerprint.FamilyChromium {
		launchOpts.Args = []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
		}
	}

	engine, err := browserType.Launch(launchOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to launch %s: %w", family, err)
	}

	p.logger.Info("launched browser engine", "family", string(family))
	p.engines[family] = engine
	return engine, nil
}

func (p *Pool) browserType(family fingerprint.Family) (playwright.BrowserType, error) {
	switch family {
	case fingerprint.FamilyChromium:
		return p.pw.Chromium, nil
	case fingerprint.FamilyFirefox:
		return p.pw.Firefox, nil
	case fingerprint.FamilyWebKit:
		return p.pw.WebKit, nil
	default:
		return nil, fmt.Errorf("unknown browser family %q", family)
	}
}

// ContextOptions builds the browsing-context options for an identity. The
// identity is generated for the same family, so the user agent and headers
// always carry that family's real-world signature.
func ContextOptions(id *fingerprint.Identity) playwright.BrowserNewContextOptions {
	return playwright.BrowserNewContextOptions{
		UserAgent:         playwright.String(id.UserAgent),
		Locale:            playwright.String(id.Locale),
		TimezoneId:        playwright.String(id.TimezoneID),
		JavaScriptEnabled: playwright.Bool(true),
		AcceptDownloads:   playwright.Bool(false),
		Viewport: &playwright.Size{
			Width:  id.Viewport.Width,
			Height: id.Viewport.Height,
		},
		Geolocation: &playwright.Geolocation{
			Latitude:  id.Geolocation.Latitude,
			Longitude: id.Geolocation.Longitude,
		},
		Permissions:      []string{"geolocation"},
		HasTouch:         playwright.Bool(id.MaxTouchPoints > 0),
		ExtraHttpHeaders: id.Headers,
	}
}

// InitScript renders the identity's patch set with the family overlay
// applied: each family gains its own artifacts and loses the competing
// families' ones.
func InitScript(family fingerprint.Family, id *fingerprint.Identity) string {
	ps := fingerprint.BuildPatchSet(id)

	switch family {
	case fingerprint.FamilyChromium:
		ps.Add("window", "chrome", map[string]any{"runtime": map[string]any{}})
	case fingerprint.FamilyFirefox:
		ps.Delete("window", "chrome")
		ps.Add("window", "InstallTrigger", map[string]any{})
	case fingerprint.FamilyWebKit:
		ps.Delete("window", "chrome")
	}

	return ps.Script()
}

// NewSession opens a fresh browsing context and page seeded with the given
// identity. The caller owns the context and must close it before the attempt
// returns, on every exit path.
func (p *Pool) NewSession(family fingerprint.Family, id *fingerprint.Identity) (playwright.BrowserContext, playwright.Page, error) {
	engine, err := p.Engine(family)
	if err != nil {
		return nil, nil, err
	}

	context, err := engine.NewContext(ContextOptions(id))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	if err := context.AddInitScript(playwright.Script{
		Content: playwright.String(InitScript(family, id)),
	}); err != nil {
		context.Close()
		return nil, nil, fmt.Errorf("failed to install fingerprint script: %w", err)
	}

	page, err := context.NewPage()
	if err != nil {
		context.Close()
		return nil, nil, fmt.Errorf("failed to create page: %w", err)
	}

	return context, page, nil
}

// CloseAll tears down every launched engine. Engines are closed
// independently so one failing close never leaks the others. Called exactly
// once at process shutdown.
func (p *Pool) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for family, engine := range p.engines {
		if err := engine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s: %w", family, err))
		}
		delete(p.engines, family)
	}

	if p.pw != nil {
		if err := p.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
		p.pw = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}
	return nil
}

package browser

import (
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pricewatch/price-scraper/internal/fingerprint"
)

func TestFamilyForAttempt(t *testing.T) {
	tests := []struct {
		attempt  int
		expected fingerprint.Family
	}{
		{-1, fingerprint.FamilyChromium},
		{0, fingerprint.FamilyChromium},
		{1, fingerprint.FamilyFirefox},
		{2, fingerprint.FamilyWebKit},
		{3, fingerprint.FamilyWebKit},
		{10, fingerprint.FamilyWebKit},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, FamilyForAttempt(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestNavigationTimeoutGrows(t *testing.T) {
	base := 30 * time.Second

	prev := time.Duration(0)
	for attempt := 0; attempt < 4; attempt++ {
		timeout := NavigationTimeout(base, attempt)
		assert.Greater(t, timeout, prev)
		prev = timeout
	}
	assert.Equal(t, base, NavigationTimeout(base, 0))
}

func TestContextOptionsCarryIdentity(t *testing.T) {
	g := fingerprint.NewGeneratorWithSource(rand.NewSource(17))

	for _, family := range []fingerprint.Family{
		fingerprint.FamilyChromium, fingerprint.FamilyFirefox, fingerprint.FamilyWebKit,
	} {
		id := g.Generate(family)
		opts := ContextOptions(id)

		assert.Equal(t, id.UserAgent, *opts.UserAgent)
		assert.Equal(t, id.Locale, *opts.Locale)
		assert.Equal(t, id.TimezoneID, *opts.TimezoneId)
		assert.Equal(t, id.Viewport.Width, opts.Viewport.Width)
		assert.Equal(t, id.Viewport.Height, opts.Viewport.Height)
		assert.Equal(t, id.Geolocation.Latitude, opts.Geolocation.Latitude)
		assert.Equal(t, id.Headers, opts.ExtraHttpHeaders)
	}
}

func TestContextOptionsFamilyConsistency(t *testing.T) {
	g := fingerprint.NewGeneratorWithSource(rand.NewSource(19))

	for i := 0; i < 25; i++ {
		firefox := ContextOptions(g.Generate(fingerprint.FamilyFirefox))
		assert.NotContains(t, *firefox.UserAgent, "AppleWebKit",
			"a firefox context must never carry a WebKit token")

		webkit := ContextOptions(g.Generate(fingerprint.FamilyWebKit))
		assert.NotContains(t, *webkit.UserAgent, "Windows")
		assert.NotContains(t, *webkit.UserAgent, "Chrome")
	}
}

func TestInitScriptFamilyOverlays(t *testing.T) {
	g := fingerprint.NewGeneratorWithSource(rand.NewSource(23))

	chromium := InitScript(fingerprint.FamilyChromium, g.Generate(fingerprint.FamilyChromium))
	assert.Contains(t, chromium, `Object.defineProperty(window, "chrome"`)

	firefox := InitScript(fingerprint.FamilyFirefox, g.Generate(fingerprint.FamilyFirefox))
	assert.Contains(t, firefox, `delete window["chrome"]`)
	assert.Contains(t, firefox, "InstallTrigger")

	webkit := InitScript(fingerprint.FamilyWebKit, g.Generate(fingerprint.FamilyWebKit))
	assert.Contains(t, webkit, `delete window["chrome"]`)
	assert.NotContains(t, webkit, "InstallTrigger")
}

func TestCloseAllWithoutLaunchesIsNoop(t *testing.T) {
	p := NewPool(Options{Headless: true}, slog.Default())
	assert.NoError(t, p.CloseAll())
	assert.NoError(t, p.CloseAll())
}

// Package fingerprint produces randomized, internally consistent browser
// identities for scraping sessions. An identity is ephemeral: generated fresh
// per attempt, injected into the browsing context, and discarded with it.
package fingerprint

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

const (
	minViewportWidth  = 1024
	minViewportHeight = 680

	// Metro-area jitter applied around an anchor city, in degrees.
	geoJitter = 0.05
)

// Viewport is the inner window size presented to the page.
type Viewport struct {
	Width  int
	Height int
}

// Geolocation is the spoofed coordinate pair, jittered around an anchor city.
type Geolocation struct {
	Latitude  float64
	Longitude float64
}

// Identity is the full set of client-observable signals for one session.
type Identity struct {
	Family    Family
	UserAgent string
	Platform  string
	Vendor    string

	Screen   Viewport
	Viewport Viewport

	Locale      string
	TimezoneID  string
	Geolocation Geolocation

	HardwareConcurrency int
	DeviceMemoryGB      int
	MaxTouchPoints      int

	WebGLVendor   string
	WebGLRenderer string

	// Per-call perturbation seeds for rendering-surface noise. Regenerated on
	// every Generate call so two sessions never share a fingerprint even when
	// all pool draws coincide.
	CanvasNoiseSeed float64
	AudioNoiseSeed  float64

	Headers map[string]string
	Plugins []string
}

// Summary is the loggable digest of an identity, kept separate from the
// injectable payload so diagnostics never depend on shared mutable state.
type Summary struct {
	Family        string
	UserAgent     string
	Viewport      string
	Locale        string
	Timezone      string
	Cores         int
	MemoryGB      int
	WebGLRenderer string
}

func (id *Identity) Summary() Summary {
	return Summary{
		Family:        string(id.Family),
		UserAgent:     id.UserAgent,
		Viewport:      fmt.Sprintf("%dx%d", id.Viewport.Width, id.Viewport.Height),
		Locale:        id.Locale,
		Timezone:      id.TimezoneID,
		Cores:         id.HardwareConcurrency,
		MemoryGB:      id.DeviceMemoryGB,
		WebGLRenderer: id.WebGLRenderer,
	}
}

func (s Summary) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("family", s.Family),
		slog.String("user_agent", s.UserAgent),
		slog.String("viewport", s.Viewport),
		slog.String("locale", s.Locale),
		slog.String("timezone", s.Timezone),
		slog.Int("cores", s.Cores),
		slog.Int("memory_gb", s.MemoryGB),
		slog.String("webgl_renderer", s.WebGLRenderer),
	)
}

// Generator draws identities from the fixed value pools. Safe for concurrent
// use; the random source is guarded.
type Generator struct {
	mu   sync.Mutex
	rand *rand.Rand
}

func NewGenerator() *Generator {
	return &Generator{rand: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// NewGeneratorWithSource pins the random source, for tests.
func NewGeneratorWithSource(src rand.Source) *Generator {
	return &Generator{rand: rand.New(src)}
}

// Generate produces a fresh session identity for the given family. It always
// succeeds: the pools are static and non-empty by construction.
func (g *Generator) Generate(family Family) *Identity {
	g.mu.Lock()
	defer g.mu.Unlock()
	r := g.rand

	os := pick(r, osPools[family])
	webgl := pick(r, webglPools[family])
	anchor := pick(r, locationAnchors)
	res := pick(r, resolutions)

	id := &Identity{
		Family:     family,
		Platform:   os.platform,
		Screen:     Viewport{Width: res.width, Height: res.height},
		Viewport:   jitterViewport(r, res),
		Locale:     anchor.locale,
		TimezoneID: anchor.timezone,
		Geolocation: Geolocation{
			Latitude:  anchor.latitude + (r.Float64()*2-1)*geoJitter,
			Longitude: anchor.longitude + (r.Float64()*2-1)*geoJitter,
		},
		// Hardware values are drawn independently rather than covariant with
		// the OS. An accepted fidelity gap.
		HardwareConcurrency: pick(r, corePool),
		DeviceMemoryGB:      pick(r, memoryPool),
		MaxTouchPoints:      pick(r, touchPool),
		WebGLVendor:         webgl.vendor,
		WebGLRenderer:       webgl.renderer,
		CanvasNoiseSeed:     r.Float64(),
		AudioNoiseSeed:      r.Float64(),
	}

	switch family {
	case FamilyFirefox:
		version := pick(r, firefoxVersions)
		id.UserAgent = fmt.Sprintf("Mozilla/5.0 (%s; rv:%s) Gecko/20100101 Firefox/%s",
			os.uaToken, version, version)
		id.Vendor = ""
	case FamilyWebKit:
		version := pick(r, safariVersions)
		id.UserAgent = fmt.Sprintf("Mozilla/5.0 (%s) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/%s Safari/605.1.15",
			os.uaToken, version)
		id.Vendor = "Apple Computer, Inc."
	default:
		version := pick(r, chromeVersions)
		id.UserAgent = fmt.Sprintf("Mozilla/5.0 (%s) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s Safari/537.36",
			os.uaToken, version)
		id.Vendor = "Google Inc."
		id.Plugins = append([]string(nil), chromiumPlugins...)
	}

	id.Headers = buildHeaders(id)
	return id
}

func jitterViewport(r *rand.Rand, res resolution) Viewport {
	// The usable window is a little smaller than the screen: subtract a
	// bounded random amount for window chrome and taskbars.
	w := res.width - r.Intn(17)
	h := res.height - 60 - r.Intn(81)
	if w < minViewportWidth {
		w = minViewportWidth
	}
	if h < minViewportHeight {
		h = minViewportHeight
	}
	return Viewport{Width: w, Height: h}
}

func buildHeaders(id *Identity) map[string]string {
	headers := map[string]string{
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		"Accept-Language": acceptLanguage(id.Locale),
		"DNT":             "1",
	}
	if id.Family == FamilyChromium {
		headers["Sec-Ch-Ua-Platform"] = secChPlatform(id.Platform)
		headers["Sec-Ch-Ua-Mobile"] = "?0"
	}
	return headers
}

func acceptLanguage(locale string) string {
	if locale == "en-US" {
		return "en-US,en;q=0.9"
	}
	return fmt.Sprintf("%s,en;q=0.8", locale)
}

func secChPlatform(platform string) string {
	switch platform {
	case "Win32":
		return `"Windows"`
	case "MacIntel":
		return `"macOS"`
	default:
		return `"Linux"`
	}
}

func pick[T any](r *rand.Rand, pool []T) T {
	return pool[r.Intn(len(pool))]
}

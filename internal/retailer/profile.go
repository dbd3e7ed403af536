// Package retailer maps target URLs onto retailer profiles: durable
// configuration describing how to detect and extract from an e-commerce
// domain, including selector fallback chains ranked by rolling success rate.
package retailer

import "time"

// SelectorType distinguishes the extraction targets a selector group serves.
type SelectorType string

const (
	SelectorPrice SelectorType = "price"
	SelectorTitle SelectorType = "title"
)

// Profile is the durable retailer configuration, keyed by domain. Exactly one
// active profile exists per domain; the generic singleton is the fallback for
// unrecognized domains and is never deleted.
type Profile struct {
	ID          int64
	Name        string
	Domain      string
	URLPatterns []string
	Config      BehaviorConfig
	IsGeneric   bool
	IsActive    bool
}

// BehaviorConfig is the free-form per-retailer tuning, persisted as JSON.
type BehaviorConfig struct {
	NavigationDelayMs int               `json:"navigation_delay_ms,omitempty"`
	ExtractionDelayMs int               `json:"extraction_delay_ms,omitempty"`
	CustomHeaders     map[string]string `json:"custom_headers,omitempty"`
}

func (c BehaviorConfig) NavigationDelay() time.Duration {
	return time.Duration(c.NavigationDelayMs) * time.Millisecond
}

func (c BehaviorConfig) ExtractionDelay() time.Duration {
	return time.Duration(c.ExtractionDelayMs) * time.Millisecond
}

// SelectorGroup is one fallback chain of extraction selectors carrying its
// rolling success counters.
type SelectorGroup struct {
	ID           int64
	RetailerID   int64
	Type         SelectorType
	Selectors    []string
	SuccessCount int
	AttemptCount int
}

// SuccessRate is the rolling success ratio; groups with no recorded attempts
// rank at zero.
func (g *SelectorGroup) SuccessRate() float64 {
	if g.AttemptCount == 0 {
		return 0
	}
	return float64(g.SuccessCount) / float64(g.AttemptCount)
}

// ResolvedProfile is a profile with one winning selector group chosen per
// type, ready for an extraction run.
type ResolvedProfile struct {
	Profile *Profile
	groups  map[SelectorType]*SelectorGroup
}

// Selectors returns the winning group's ordered selector list for the given
// type, or nil when the type is absent. Callers treat nil as "rely on
// fallback extraction strategies only".
func (rp *ResolvedProfile) Selectors(typ SelectorType) []string {
	g, ok := rp.groups[typ]
	if !ok {
		return nil
	}
	return g.Selectors
}

// Group exposes the winning selector group for stats feedback after a scrape.
func (rp *ResolvedProfile) Group(typ SelectorType) *SelectorGroup {
	return rp.groups[typ]
}

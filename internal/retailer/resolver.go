package retailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ErrNoGenericProfile signals a deployment defect: the generic fallback
// profile is missing from storage. Never retried.
var ErrNoGenericProfile = errors.New("retailer: generic profile missing from storage")

// Store is the persistence surface the resolver consumes.
type Store interface {
	// GetRetailerByDomain returns nil without error when no profile matches.
	GetRetailerByDomain(ctx context.Context, domain string) (*Profile, error)
	// GetActiveRetailers returns all active non-generic profiles for
	// URL-pattern matching.
	GetActiveRetailers(ctx context.Context) ([]*Profile, error)
	// GetGenericRetailer returns the generic singleton, or nil when missing.
	GetGenericRetailer(ctx context.Context) (*Profile, error)
	GetSelectorGroups(ctx context.Context, retailerID int64) ([]*SelectorGroup, error)
}

const (
	cacheSize = 256
	cacheTTL  = 5 * time.Minute
)

// Resolver maps URLs to resolved retailer profiles with a short-TTL cache.
// Cache entries may be stale for up to the TTL; that only affects selector
// priority ordering, not correctness.
type Resolver struct {
	store  Store
	cache  *expirable.LRU[string, *ResolvedProfile]
	logger *slog.Logger
}

func NewResolver(store Store, logger *slog.Logger) *Resolver {
	return &Resolver{
		store:  store,
		cache:  expirable.NewLRU[string, *ResolvedProfile](cacheSize, nil, cacheTTL),
		logger: logger.With("component", "retailer_resolver"),
	}
}

// Resolve maps a URL to its retailer profile: cache, exact domain match,
// URL-pattern match, then the generic singleton.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (*ResolvedProfile, error) {
	domain, err := DomainOf(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}

	if cached, ok := r.cache.Get(domain); ok {
		return cached, nil
	}

	profile, err := r.lookup(ctx, rawURL, domain)
	if err != nil {
		return nil, err
	}

	groups, err := r.store.GetSelectorGroups(ctx, profile.ID)
	if err != nil {
		return nil, fmt.Errorf("load selector groups for %s: %w", profile.Name, err)
	}

	resolved := &ResolvedProfile{
		Profile: profile,
		groups:  winningGroups(groups),
	}

	r.cache.Add(domain, resolved)
	r.logger.Debug("resolved retailer", "domain", domain, "retailer", profile.Name, "generic", profile.IsGeneric)
	return resolved, nil
}

func (r *Resolver) lookup(ctx context.Context, rawURL, domain string) (*Profile, error) {
	profile, err := r.store.GetRetailerByDomain(ctx, domain)
	if err != nil {
		return nil, fmt.Errorf("lookup retailer by domain %s: %w", domain, err)
	}
	if profile != nil {
		return profile, nil
	}

	profile, err = r.matchByPattern(ctx, rawURL, domain)
	if err != nil {
		return nil, err
	}
	if profile != nil {
		return profile, nil
	}

	generic, err := r.store.GetGenericRetailer(ctx)
	if err != nil {
		return nil, fmt.Errorf("load generic profile: %w", err)
	}
	if generic == nil {
		return nil, ErrNoGenericProfile
	}
	return generic, nil
}

// matchByPattern searches active non-generic profiles whose pattern list
// contains a regexp matching the full URL. Preference: a profile whose domain
// equals the parsed domain, then the longest domain string.
func (r *Resolver) matchByPattern(ctx context.Context, rawURL, domain string) (*Profile, error) {
	profiles, err := r.store.GetActiveRetailers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active retailers: %w", err)
	}

	var best *Profile
	for _, p := range profiles {
		if p.IsGeneric || !matchesAny(p.URLPatterns, rawURL) {
			continue
		}
		if p.Domain == domain {
			return p, nil
		}
		if best == nil || len(p.Domain) > len(best.Domain) {
			best = p
		}
	}
	return best, nil
}

func matchesAny(patterns []string, rawURL string) bool {
	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			continue
		}
		if re.MatchString(rawURL) {
			return true
		}
	}
	return false
}

// winningGroups picks, per selector type, the fallback chain with the highest
// recorded success rate.
func winningGroups(groups []*SelectorGroup) map[SelectorType]*SelectorGroup {
	winners := make(map[SelectorType]*SelectorGroup)
	for _, g := range groups {
		current, ok := winners[g.Type]
		if !ok || g.SuccessRate() > current.SuccessRate() {
			winners[g.Type] = g
		}
	}
	return winners
}

// DomainOf extracts the lookup key from a URL: hostname without a leading
// "www.", lowercased.
func DomainOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("no hostname in %q", rawURL)
	}
	return strings.TrimPrefix(host, "www."), nil
}

package retailer

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	byDomain map[string]*Profile
	active   []*Profile
	generic  *Profile
	groups   map[int64][]*SelectorGroup

	domainLookups int
}

func (f *fakeStore) GetRetailerByDomain(ctx context.Context, domain string) (*Profile, error) {
	f.domainLookups++
	return f.byDomain[domain], nil
}

func (f *fakeStore) GetActiveRetailers(ctx context.Context) ([]*Profile, error) {
	return f.active, nil
}

func (f *fakeStore) GetGenericRetailer(ctx context.Context) (*Profile, error) {
	return f.generic, nil
}

func (f *fakeStore) GetSelectorGroups(ctx context.Context, retailerID int64) ([]*SelectorGroup, error) {
	return f.groups[retailerID], nil
}

func genericProfile() *Profile {
	return &Profile{ID: 1, Name: "generic", Domain: "", IsGeneric: true, IsActive: true}
}

func TestResolveExactDomainMatch(t *testing.T) {
	store := &fakeStore{
		byDomain: map[string]*Profile{
			"shop.example.com": {ID: 2, Name: "Example Shop", Domain: "shop.example.com", IsActive: true},
		},
		generic: genericProfile(),
		groups:  map[int64][]*SelectorGroup{},
	}
	r := NewResolver(store, slog.Default())

	rp, err := r.Resolve(context.Background(), "https://www.shop.example.com/item/42")
	require.NoError(t, err)
	assert.Equal(t, "Example Shop", rp.Profile.Name)
}

func TestResolveFallsBackToGeneric(t *testing.T) {
	store := &fakeStore{
		byDomain: map[string]*Profile{},
		generic:  genericProfile(),
		groups: map[int64][]*SelectorGroup{
			1: {
				{ID: 10, RetailerID: 1, Type: SelectorPrice, Selectors: []string{".price", "[itemprop=price]"}},
				{ID: 11, RetailerID: 1, Type: SelectorTitle, Selectors: []string{"h1", ".product-title"}},
			},
		},
	}
	r := NewResolver(store, slog.Default())

	rp, err := r.Resolve(context.Background(), "https://www.example.com/p/1")
	require.NoError(t, err)
	assert.True(t, rp.Profile.IsGeneric)
	assert.Equal(t, []string{".price", "[itemprop=price]"}, rp.Selectors(SelectorPrice))
	assert.Equal(t, []string{"h1", ".product-title"}, rp.Selectors(SelectorTitle))
}

func TestResolveMissingGenericIsFatal(t *testing.T) {
	store := &fakeStore{byDomain: map[string]*Profile{}, groups: map[int64][]*SelectorGroup{}}
	r := NewResolver(store, slog.Default())

	_, err := r.Resolve(context.Background(), "https://nowhere.example.net/x")
	assert.ErrorIs(t, err, ErrNoGenericProfile)
}

func TestResolvePatternMatchPrefersEqualDomain(t *testing.T) {
	longDomain := &Profile{ID: 3, Name: "Marketplace Long", Domain: "market.very-long-domain.example.org",
		URLPatterns: []string{`https?://.*\.example\.org/`}, IsActive: true}
	equalDomain := &Profile{ID: 4, Name: "Shop Org", Domain: "shop.example.org",
		URLPatterns: []string{`https?://shop\.example\.org/`}, IsActive: true}
	store := &fakeStore{
		byDomain: map[string]*Profile{},
		active:   []*Profile{longDomain, equalDomain},
		generic:  genericProfile(),
		groups:   map[int64][]*SelectorGroup{},
	}
	r := NewResolver(store, slog.Default())

	rp, err := r.Resolve(context.Background(), "https://shop.example.org/item/9")
	require.NoError(t, err)
	assert.Equal(t, "Shop Org", rp.Profile.Name)
}

func TestResolvePatternMatchLongestDomainTieBreak(t *testing.T) {
	short := &Profile{ID: 5, Name: "Short", Domain: "a.example.io",
		URLPatterns: []string{`example\.io`}, IsActive: true}
	long := &Profile{ID: 6, Name: "Long", Domain: "shop.subsidiary.example.io",
		URLPatterns: []string{`example\.io`}, IsActive: true}
	store := &fakeStore{
		byDomain: map[string]*Profile{},
		active:   []*Profile{short, long},
		generic:  genericProfile(),
		groups:   map[int64][]*SelectorGroup{},
	}
	r := NewResolver(store, slog.Default())

	rp, err := r.Resolve(context.Background(), "https://cdn.example.io/p/3")
	require.NoError(t, err)
	assert.Equal(t, "Long", rp.Profile.Name)
}

func TestResolveCachesWithinTTL(t *testing.T) {
	store := &fakeStore{
		byDomain: map[string]*Profile{
			"cached.example.com": {ID: 7, Name: "Cached", Domain: "cached.example.com", IsActive: true},
		},
		generic: genericProfile(),
		groups: map[int64][]*SelectorGroup{
			7: {{ID: 20, RetailerID: 7, Type: SelectorPrice, Selectors: []string{".p1", ".p2"}}},
		},
	}
	r := NewResolver(store, slog.Default())

	first, err := r.Resolve(context.Background(), "https://cached.example.com/a")
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), "https://www.cached.example.com/b")
	require.NoError(t, err)

	assert.Equal(t, 1, store.domainLookups, "second resolution must be served from cache")
	assert.Equal(t, first.Selectors(SelectorPrice), second.Selectors(SelectorPrice))
}

func TestWinningGroupsPrefersHigherSuccessRate(t *testing.T) {
	groups := []*SelectorGroup{
		{ID: 1, Type: SelectorPrice, Selectors: []string{".old"}, SuccessCount: 2, AttemptCount: 10},
		{ID: 2, Type: SelectorPrice, Selectors: []string{".new"}, SuccessCount: 9, AttemptCount: 10},
		{ID: 3, Type: SelectorTitle, Selectors: []string{"h1"}},
	}

	winners := winningGroups(groups)
	assert.Equal(t, []string{".new"}, winners[SelectorPrice].Selectors)
	assert.Equal(t, []string{"h1"}, winners[SelectorTitle].Selectors)
}

func TestSelectorsForAbsentType(t *testing.T) {
	rp := &ResolvedProfile{Profile: genericProfile(), groups: map[SelectorType]*SelectorGroup{}}
	assert.Nil(t, rp.Selectors(SelectorPrice))
}

func TestDomainOf(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected string
		wantErr  bool
	}{
		{"Strips www", "https://www.example.com/p/1", "example.com", false},
		{"Lowercases", "https://Shop.Example.COM/x", "shop.example.com", false},
		{"Keeps subdomain", "https://m.store.co.uk/item", "m.store.co.uk", false},
		{"No hostname", "not-a-url", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DomainOf(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

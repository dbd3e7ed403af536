package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricewatch/price-scraper/internal/database"
	"github.com/pricewatch/price-scraper/internal/fingerprint"
	"github.com/pricewatch/price-scraper/internal/retailer"
	"github.com/pricewatch/price-scraper/internal/scraper"
)

type fakeScraper struct {
	result *scraper.ProductResult
	err    error
}

func (f *fakeScraper) ScrapeProduct(ctx context.Context, url string) (*scraper.ProductResult, error) {
	return f.result, f.err
}

type fakeStore struct {
	retailer *retailer.Profile
	stats    *database.RetailerStats
	product  *database.Product
}

func (f *fakeStore) GetRetailerByDomain(ctx context.Context, domain string) (*retailer.Profile, error) {
	if f.retailer != nil && f.retailer.Domain == domain {
		return f.retailer, nil
	}
	return nil, nil
}

func (f *fakeStore) GetRetailerStats(ctx context.Context, retailerID int64) (*database.RetailerStats, error) {
	return f.stats, nil
}

func (f *fakeStore) GetProductByURL(ctx context.Context, url string) (*database.Product, error) {
	if f.product != nil && f.product.URL == url {
		return f.product, nil
	}
	return nil, nil
}

func testRouter(scr Scraper, store Store) http.Handler {
	return NewRouter(NewHandlers(scr, store, slog.Default()), nil)
}

func TestScrapeProductEndpoint(t *testing.T) {
	router := testRouter(&fakeScraper{
		result: &scraper.ProductResult{
			Title:    "Desk Lamp",
			Price:    19.99,
			URL:      "https://shop.example.com/p/1",
			Family:   fingerprint.FamilyChromium,
			Attempts: 1,
		},
	}, &fakeStore{})

	body, _ := json.Marshal(ScrapeRequest{URL: "https://shop.example.com/p/1"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/scrape", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp ScrapeResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Found)
	assert.Equal(t, "Desk Lamp", resp.Title)
	require.NotNil(t, resp.Price)
	assert.Equal(t, 19.99, *resp.Price)
	assert.Equal(t, "chromium", resp.Family)
}

func TestScrapeProductExhaustionReportsNotFound(t *testing.T) {
	router := testRouter(&fakeScraper{result: nil}, &fakeStore{})

	body, _ := json.Marshal(ScrapeRequest{URL: "https://shop.example.com/p/1"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/scrape", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp ScrapeResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.Found)
	assert.Nil(t, resp.Price)
}

func TestScrapeProductConfigurationError(t *testing.T) {
	router := testRouter(&fakeScraper{err: errors.New("no generic retailer profile configured")}, &fakeStore{})

	body, _ := json.Marshal(ScrapeRequest{URL: "https://other.example.net/p/1"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/scrape", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestScrapeProductRejectsMissingURL(t *testing.T) {
	router := testRouter(&fakeScraper{}, &fakeStore{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scrape", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRetailerStats(t *testing.T) {
	router := testRouter(&fakeScraper{}, &fakeStore{
		retailer: &retailer.Profile{ID: 7, Domain: "shop.example.com"},
		stats: &database.RetailerStats{
			RetailerID:    7,
			TotalAttempts: 10,
			Successes:     8,
			SuccessRate:   0.8,
			ErrorBreakdown: map[string]int{
				"navigation": 2,
			},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/retailers/shop.example.com/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var stats database.RetailerStats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, 10, stats.TotalAttempts)
	assert.Equal(t, 2, stats.ErrorBreakdown["navigation"])
}

func TestGetRetailerStatsUnknownDomain(t *testing.T) {
	router := testRouter(&fakeScraper{}, &fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/retailers/nobody.example.com/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetProduct(t *testing.T) {
	price := 19.99
	router := testRouter(&fakeScraper{}, &fakeStore{
		product: &database.Product{
			URL:           "https://shop.example.com/p/1",
			Title:         "Desk Lamp",
			Price:         &price,
			RetailerID:    7,
			LastScrapedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products?url=https%3A%2F%2Fshop.example.com%2Fp%2F1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp ProductResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "Desk Lamp", resp.Title)
	assert.Equal(t, int64(7), resp.RetailerID)
}

func TestGetProductNotFound(t *testing.T) {
	router := testRouter(&fakeScraper{}, &fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products?url=https%3A%2F%2Fshop.example.com%2Fp%2Fmissing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthz(t *testing.T) {
	router := testRouter(&fakeScraper{}, &fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pricewatch/price-scraper/internal/database"
	"github.com/pricewatch/price-scraper/internal/retailer"
	"github.com/pricewatch/price-scraper/internal/scraper"
)

// Scraper is the scrape entry point the API fronts.
type Scraper interface {
	ScrapeProduct(ctx context.Context, url string) (*scraper.ProductResult, error)
}

// Store is the read surface backing the lookup endpoints.
type Store interface {
	GetRetailerByDomain(ctx context.Context, domain string) (*retailer.Profile, error)
	GetRetailerStats(ctx context.Context, retailerID int64) (*database.RetailerStats, error)
	GetProductByURL(ctx context.Context, url string) (*database.Product, error)
}

type Handlers struct {
	scraper Scraper
	store   Store
	logger  *slog.Logger
}

func NewHandlers(scraper Scraper, store Store, logger *slog.Logger) *Handlers {
	return &Handlers{
		scraper: scraper,
		store:   store,
		logger:  logger,
	}
}

// ScrapeRequest asks for one product URL to be scraped now.
type ScrapeRequest struct {
	URL string `json:"url"`
}

// ScrapeResponse reports the outcome. Found is false after retry
// exhaustion; the attempt record carries the diagnosis.
type ScrapeResponse struct {
	Found    bool     `json:"found"`
	Title    string   `json:"title,omitempty"`
	Price    *float64 `json:"price,omitempty"`
	URL      string   `json:"url"`
	Family   string   `json:"browser_family,omitempty"`
	Attempts int      `json:"attempts,omitempty"`
}

// ScrapeProduct handles on-demand scrape requests.
func (h *Handlers) ScrapeProduct(w http.ResponseWriter, r *http.Request) {
	var req ScrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.URL == "" {
		h.respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	result, err := h.scraper.ScrapeProduct(r.Context(), req.URL)
	if err != nil {
		h.logger.Error("scrape request failed", "url", req.URL, "error", err)
		h.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if result == nil {
		h.respondJSON(w, http.StatusOK, ScrapeResponse{Found: false, URL: req.URL})
		return
	}

	h.respondJSON(w, http.StatusOK, ScrapeResponse{
		Found:    true,
		Title:    result.Title,
		Price:    &result.Price,
		URL:      result.URL,
		Family:   string(result.Family),
		Attempts: result.Attempts,
	})
}

// GetRetailerStats handles per-retailer attempt analytics retrieval.
func (h *Handlers) GetRetailerStats(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	if domain == "" {
		h.respondError(w, http.StatusBadRequest, "domain is required")
		return
	}

	profile, err := h.store.GetRetailerByDomain(r.Context(), domain)
	if err != nil {
		h.logger.Error("failed to look up retailer", "domain", domain, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to look up retailer")
		return
	}
	if profile == nil {
		h.respondError(w, http.StatusNotFound, "retailer not found")
		return
	}

	stats, err := h.store.GetRetailerStats(r.Context(), profile.ID)
	if err != nil {
		h.logger.Error("failed to get retailer stats", "domain", domain, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	h.respondJSON(w, http.StatusOK, stats)
}

// ProductResponse is one stored product row.
type ProductResponse struct {
	URL           string   `json:"url"`
	Title         string   `json:"title"`
	Price         *float64 `json:"price"`
	RetailerID    int64    `json:"retailer_id"`
	LastScrapedAt string   `json:"last_scraped_at"`
}

// GetProduct handles stored-product lookup by URL.
func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		h.respondError(w, http.StatusBadRequest, "url query parameter is required")
		return
	}

	product, err := h.store.GetProductByURL(r.Context(), url)
	if err != nil {
		h.logger.Error("failed to get product", "url", url, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get product")
		return
	}
	if product == nil {
		h.respondError(w, http.StatusNotFound, "product not found")
		return
	}

	h.respondJSON(w, http.StatusOK, ProductResponse{
		URL:           product.URL,
		Title:         product.Title,
		Price:         product.Price,
		RetailerID:    product.RetailerID,
		LastScrapedAt: product.LastScrapedAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

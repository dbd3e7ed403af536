package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Product is the durable scrape result, keyed by URL.
type Product struct {
	ID            int64
	URL           string
	Title         string
	Price         *float64
	RetailerID    int64
	LastScrapedAt time.Time
}

// UpsertProduct writes a product row keyed by URL: re-scraping an existing
// URL overwrites title, price, and timestamp rather than duplicating.
func (db *DB) UpsertProduct(ctx context.Context, p *Product) error {
	query := `
		INSERT INTO products (url, title, price, retailer_id, last_scraped_at)
		VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP)
		ON CONFLICT (url) DO UPDATE SET
			title = EXCLUDED.title,
			price = EXCLUDED.price,
			retailer_id = EXCLUDED.retailer_id,
			last_scraped_at = CURRENT_TIMESTAMP
		RETURNING id, last_scraped_at`

	err := db.pool.QueryRow(ctx, query, p.URL, p.Title, p.Price, p.RetailerID).
		Scan(&p.ID, &p.LastScrapedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert product: %w", err)
	}
	return nil
}

// GetProductByURL returns the stored product for a URL, or nil when absent.
func (db *DB) GetProductByURL(ctx context.Context, url string) (*Product, error) {
	query := `
		SELECT id, url, title, price, retailer_id, last_scraped_at
		FROM products
		WHERE url = $1`

	p := &Product{}
	err := db.pool.QueryRow(ctx, query, url).
		Scan(&p.ID, &p.URL, &p.Title, &p.Price, &p.RetailerID, &p.LastScrapedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

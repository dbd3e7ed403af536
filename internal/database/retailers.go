package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pricewatch/price-scraper/internal/retailer"
)

const retailerColumns = `id, name, domain, url_patterns, config, is_generic, is_active`

// GetRetailerByDomain returns the active profile for an exact domain match,
// or nil when no profile exists for the domain.
func (db *DB) GetRetailerByDomain(ctx context.Context, domain string) (*retailer.Profile, error) {
	query := `SELECT ` + retailerColumns + ` FROM retailers WHERE domain = $1 AND is_active`

	p, err := scanRetailer(db.pool.QueryRow(ctx, query, domain))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get retailer by domain: %w", err)
	}
	return p, nil
}

// GetActiveRetailers returns all active non-generic profiles, for URL-pattern
// matching in the resolver.
func (db *DB) GetActiveRetailers(ctx context.Context) ([]*retailer.Profile, error) {
	query := `SELECT ` + retailerColumns + ` FROM retailers WHERE is_active AND NOT is_generic ORDER BY id`

	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query active retailers: %w", err)
	}
	defer rows.Close()

	var profiles []*retailer.Profile
	for rows.Next() {
		p, err := scanRetailer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan retailer: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// GetGenericRetailer returns the fallback singleton, or nil when it is
// missing. A missing singleton is a deployment defect the resolver reports
// as fatal.
func (db *DB) GetGenericRetailer(ctx context.Context) (*retailer.Profile, error) {
	query := `SELECT ` + retailerColumns + ` FROM retailers WHERE is_generic AND is_active LIMIT 1`

	p, err := scanRetailer(db.pool.QueryRow(ctx, query))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get generic retailer: %w", err)
	}
	return p, nil
}

func scanRetailer(row pgx.Row) (*retailer.Profile, error) {
	p := &retailer.Profile{}
	var configJSON []byte
	err := row.Scan(&p.ID, &p.Name, &p.Domain, &p.URLPatterns, &configJSON, &p.IsGeneric, &p.IsActive)
	if err != nil {
		return nil, err
	}
	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &p.Config); err != nil {
			return nil, fmt.Errorf("failed to decode retailer config: %w", err)
		}
	}
	return p, nil
}

// GetSelectorGroups returns all selector fallback chains for a retailer.
func (db *DB) GetSelectorGroups(ctx context.Context, retailerID int64) ([]*retailer.SelectorGroup, error) {
	query := `
		SELECT id, retailer_id, selector_type, selectors, success_count, attempt_count
		FROM retailer_selectors
		WHERE retailer_id = $1
		ORDER BY id`

	rows, err := db.pool.Query(ctx, query, retailerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query selector groups: %w", err)
	}
	defer rows.Close()

	var groups []*retailer.SelectorGroup
	for rows.Next() {
		g := &retailer.SelectorGroup{}
		if err := rows.Scan(&g.ID, &g.RetailerID, &g.Type, &g.Selectors, &g.SuccessCount, &g.AttemptCount); err != nil {
			return nil, fmt.Errorf("failed to scan selector group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// UpdateSelectorStats bumps a selector group's rolling counters after a
// scrape. Last-writer-wins across concurrent scrapes is acceptable: the
// counters only shape selector priority, not correctness.
func (db *DB) UpdateSelectorStats(ctx context.Context, groupID int64, success bool) error {
	query := `
		UPDATE retailer_selectors SET
			attempt_count = attempt_count + 1,
			success_count = success_count + CASE WHEN $2 THEN 1 ELSE 0 END,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1`

	_, err := db.pool.Exec(ctx, query, groupID, success)
	if err != nil {
		return fmt.Errorf("failed to update selector stats: %w", err)
	}
	return nil
}

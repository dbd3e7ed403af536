package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Attempt is one append-only scrape attempt record: one row per logical
// scrape call, capturing the final outcome after internal engine retries.
type Attempt struct {
	ID             uuid.UUID
	RetailerID     int64
	URL            string
	Success        bool
	ErrorType      *string
	ErrorMessage   *string
	BrowserFamily  *string
	ResponseTimeMs int64
	CreatedAt      time.Time
}

func (a *Attempt) validate() error {
	if a.Success && a.BrowserFamily == nil {
		return fmt.Errorf("successful attempt must carry a browser family")
	}
	if a.Success == (a.ErrorType != nil) {
		return fmt.Errorf("error_type must be set exactly when the attempt failed")
	}
	return nil
}

// RecordAttempt appends one attempt record.
func (db *DB) RecordAttempt(ctx context.Context, a *Attempt) error {
	return db.WithTx(ctx, func(tx pgx.Tx) error {
		return db.insertAttempt(ctx, tx, a)
	})
}

// RecordAttemptWithEvent appends the attempt record and enqueues its outbox
// event in one transaction, so downstream consumers never see one without
// the other.
func (db *DB) RecordAttemptWithEvent(ctx context.Context, a *Attempt, event *OutboxEvent) error {
	return db.WithTx(ctx, func(tx pgx.Tx) error {
		if err := db.insertAttempt(ctx, tx, a); err != nil {
			return err
		}
		return db.insertOutboxEvent(ctx, tx, event)
	})
}

func (db *DB) insertAttempt(ctx context.Context, tx pgx.Tx, a *Attempt) error {
	if err := a.validate(); err != nil {
		return fmt.Errorf("invalid attempt record: %w", err)
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	query := `
		INSERT INTO scrape_attempts
			(id, retailer_id, url, success, error_type, error_message, browser_family, response_time_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`

	err := tx.QueryRow(ctx, query,
		a.ID, a.RetailerID, a.URL, a.Success,
		a.ErrorType, a.ErrorMessage, a.BrowserFamily, a.ResponseTimeMs,
	).Scan(&a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}
	return nil
}

// RetailerStats aggregates attempt outcomes for one retailer.
type RetailerStats struct {
	RetailerID     int64          `json:"retailer_id"`
	TotalAttempts  int            `json:"total_attempts"`
	Successes      int            `json:"successes"`
	SuccessRate    float64        `json:"success_rate"`
	AvgResponseMs  float64        `json:"avg_response_ms"`
	ErrorBreakdown map[string]int `json:"error_breakdown"`
}

// GetRetailerStats computes the per-retailer analytics surface: attempt and
// success counts, average response time, and a failure breakdown by kind.
func (db *DB) GetRetailerStats(ctx context.Context, retailerID int64) (*RetailerStats, error) {
	stats := &RetailerStats{
		RetailerID:     retailerID,
		ErrorBreakdown: make(map[string]int),
	}

	summary := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE success),
		       COALESCE(AVG(response_time_ms), 0)
		FROM scrape_attempts
		WHERE retailer_id = $1`

	err := db.pool.QueryRow(ctx, summary, retailerID).
		Scan(&stats.TotalAttempts, &stats.Successes, &stats.AvgResponseMs)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate attempts: %w", err)
	}
	if stats.TotalAttempts > 0 {
		stats.SuccessRate = float64(stats.Successes) / float64(stats.TotalAttempts)
	}

	breakdown := `
		SELECT error_type, COUNT(*)
		FROM scrape_attempts
		WHERE retailer_id = $1 AND error_type IS NOT NULL
		GROUP BY error_type`

	rows, err := db.pool.Query(ctx, breakdown, retailerID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate errors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var errType string
		var count int
		if err := rows.Scan(&errType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan error breakdown: %w", err)
		}
		stats.ErrorBreakdown[errType] = count
	}
	return stats, rows.Err()
}

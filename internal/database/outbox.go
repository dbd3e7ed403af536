package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	OutboxStatusPending    = "pending"
	OutboxStatusProcessed  = "processed"
	OutboxStatusFailed     = "failed"
	OutboxStatusDeadLetter = "dead_letter"

	// Events failing more often than this are parked as dead letters.
	MaxRelayRetries = 5
)

const (
	EventTypeScrapeSucceeded = "SCRAPE_SUCCEEDED"
	EventTypeScrapeFailed    = "SCRAPE_FAILED"
)

// ScrapeEventPayload is the stream payload for one scrape outcome.
type ScrapeEventPayload struct {
	AttemptID     uuid.UUID `json:"attempt_id"`
	RetailerID    int64     `json:"retailer_id"`
	URL           string    `json:"url"`
	Success       bool      `json:"success"`
	Title         string    `json:"title,omitempty"`
	Price         *float64  `json:"price,omitempty"`
	ErrorType     string    `json:"error_type,omitempty"`
	BrowserFamily string    `json:"browser_family,omitempty"`
	ResponseTime  int64     `json:"response_time_ms"`
	Timestamp     time.Time `json:"timestamp"`
}

// OutboxEvent is one transactional-outbox row awaiting relay to Redis.
type OutboxEvent struct {
	ID           uuid.UUID
	AggregateID  string // target URL
	EventType    string
	Payload      json.RawMessage
	TargetStream string
	Status       string
	RetryCount   int
	ErrorMessage *string
	CreatedAt    time.Time
	ProcessedAt  *time.Time
	NextRetryAt  *time.Time
}

// NewScrapeEvent builds the outbox event for a finished logical scrape.
func NewScrapeEvent(payload *ScrapeEventPayload, stream string) (*OutboxEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal scrape event: %w", err)
	}

	eventType := EventTypeScrapeFailed
	if payload.Success {
		eventType = EventTypeScrapeSucceeded
	}

	return &OutboxEvent{
		AggregateID:  payload.URL,
		EventType:    eventType,
		Payload:      raw,
		TargetStream: stream,
	}, nil
}

func (db *DB) insertOutboxEvent(ctx context.Context, tx pgx.Tx, event *OutboxEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Status == "" {
		event.Status = OutboxStatusPending
	}
	if event.TargetStream == "" {
		event.TargetStream = "stream:scrape_events"
	}

	now := time.Now()
	event.CreatedAt = now
	if event.NextRetryAt == nil {
		event.NextRetryAt = &now
	}

	query := `
		INSERT INTO outbox_events (
			id, aggregate_id, event_type, payload, target_stream,
			status, retry_count, created_at, next_retry_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := tx.Exec(ctx, query,
		event.ID, event.AggregateID, event.EventType, event.Payload,
		event.TargetStream, event.Status, event.RetryCount,
		event.CreatedAt, event.NextRetryAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}
	return nil
}

// GetPendingEvents retrieves events ready for relay, oldest first.
func (db *DB) GetPendingEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	query := `
		SELECT id, aggregate_id, event_type, payload, target_stream,
		       status, retry_count, error_message, created_at, processed_at, next_retry_at
		FROM outbox_events
		WHERE status IN ($1, $2) AND next_retry_at <= $3
		ORDER BY created_at ASC
		LIMIT $4`

	rows, err := db.pool.Query(ctx, query,
		OutboxStatusPending, OutboxStatusFailed, time.Now(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending events: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		event := &OutboxEvent{}
		err := rows.Scan(
			&event.ID, &event.AggregateID, &event.EventType, &event.Payload,
			&event.TargetStream, &event.Status, &event.RetryCount,
			&event.ErrorMessage, &event.CreatedAt, &event.ProcessedAt, &event.NextRetryAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// MarkEventProcessed marks an event as relayed.
func (db *DB) MarkEventProcessed(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE outbox_events SET status = $1, processed_at = $2 WHERE id = $3`

	result, err := db.pool.Exec(ctx, query, OutboxStatusProcessed, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark event as processed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("event not found: %s", id)
	}
	return nil
}

// MarkEventFailed records a relay failure and schedules the next retry, or
// parks the event as a dead letter past MaxRelayRetries.
func (db *DB) MarkEventFailed(ctx context.Context, id uuid.UUID, relayErr error) error {
	var retryCount int
	err := db.pool.QueryRow(ctx,
		"SELECT retry_count FROM outbox_events WHERE id = $1", id).Scan(&retryCount)
	if err != nil {
		return fmt.Errorf("failed to get retry count: %w", err)
	}

	retryCount++
	status := OutboxStatusFailed
	if retryCount >= MaxRelayRetries {
		status = OutboxStatusDeadLetter
	}

	query := `
		UPDATE outbox_events
		SET status = $1, retry_count = $2, error_message = $3, next_retry_at = $4
		WHERE id = $5`

	_, err = db.pool.Exec(ctx, query,
		status, retryCount, relayErr.Error(), nextRelayRetryTime(retryCount), id)
	if err != nil {
		return fmt.Errorf("failed to mark event as failed: %w", err)
	}
	return nil
}

// Exponential backoff: 2s, 4s, 8s... capped at 5 minutes.
func nextRelayRetryTime(retryCount int) time.Time {
	backoffSeconds := 1 << retryCount
	if backoffSeconds > 300 {
		backoffSeconds = 300
	}
	return time.Now().Add(time.Duration(backoffSeconds) * time.Second)
}

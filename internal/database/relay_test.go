package database

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd {
	mockArgs := m.Called(ctx, args)
	cmd := redis.NewStringCmd(ctx)
	if mockArgs.Get(0) != nil {
		cmd.SetErr(mockArgs.Error(0))
	} else {
		cmd.SetVal("1234567890-0")
	}
	return cmd
}

type MockOutboxStore struct {
	mock.Mock
}

func (m *MockOutboxStore) GetPendingEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*OutboxEvent), args.Error(1)
}

func (m *MockOutboxStore) MarkEventProcessed(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxStore) MarkEventFailed(ctx context.Context, id uuid.UUID, err error) error {
	args := m.Called(ctx, id, err)
	return args.Error(0)
}

func testEvent(t *testing.T) *OutboxEvent {
	t.Helper()
	payload, err := json.Marshal(&ScrapeEventPayload{
		AttemptID:  uuid.New(),
		RetailerID: 1,
		URL:        "https://shop.example.com/p/1",
		Success:    true,
		Timestamp:  time.Now(),
	})
	require.NoError(t, err)

	return &OutboxEvent{
		ID:           uuid.New(),
		AggregateID:  "https://shop.example.com/p/1",
		EventType:    EventTypeScrapeSucceeded,
		Payload:      payload,
		TargetStream: "stream:scrape_events",
		Status:       OutboxStatusPending,
		CreatedAt:    time.Now(),
	}
}

func TestRelayProcessEvents(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()

	t.Run("publishes and marks processed", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxStore)
		event := testEvent(t)

		mockOutbox.On("GetPendingEvents", ctx, 10).Return([]*OutboxEvent{event}, nil)
		mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
			return args.Stream == event.TargetStream
		})).Return(nil)
		mockOutbox.On("MarkEventProcessed", ctx, event.ID).Return(nil)

		relay := NewRelay(mockOutbox, mockRedis, logger, RelayConfig{BatchSize: 10})
		require.NoError(t, relay.processEvents(ctx))

		mockRedis.AssertExpectations(t)
		mockOutbox.AssertExpectations(t)
	})

	t.Run("marks failed when publish errors", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxStore)
		event := testEvent(t)

		mockOutbox.On("GetPendingEvents", ctx, 10).Return([]*OutboxEvent{event}, nil)
		mockRedis.On("XAdd", ctx, mock.Anything).Return(errors.New("redis down"))
		mockOutbox.On("MarkEventFailed", ctx, event.ID, mock.Anything).Return(nil)

		relay := NewRelay(mockOutbox, mockRedis, logger, RelayConfig{BatchSize: 10})
		require.NoError(t, relay.processEvents(ctx))

		mockOutbox.AssertNotCalled(t, "MarkEventProcessed", mock.Anything, mock.Anything)
		mockOutbox.AssertExpectations(t)
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxStore)

		mockOutbox.On("GetPendingEvents", ctx, 10).Return([]*OutboxEvent{}, nil)

		relay := NewRelay(mockOutbox, mockRedis, logger, RelayConfig{BatchSize: 10})
		require.NoError(t, relay.processEvents(ctx))

		mockRedis.AssertNotCalled(t, "XAdd", mock.Anything, mock.Anything)
	})
}

func TestRelayPublishCarriesPayload(t *testing.T) {
	ctx := context.Background()
	mockRedis := new(MockRedisClient)
	event := testEvent(t)

	var captured *redis.XAddArgs
	mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
		captured = args
		return true
	})).Return(nil)

	relay := NewRelay(new(MockOutboxStore), mockRedis, slog.Default(), RelayConfig{})
	require.NoError(t, relay.publish(ctx, event))

	values := captured.Values.(map[string]interface{})
	assert.Equal(t, event.EventType, values["event_type"])
	assert.Equal(t, event.AggregateID, values["url"])
	assert.JSONEq(t, string(event.Payload), values["payload"].(string))
}

func TestNewScrapeEvent(t *testing.T) {
	price := 19.99
	payload := &ScrapeEventPayload{
		AttemptID:  uuid.New(),
		RetailerID: 3,
		URL:        "https://shop.example.com/p/2",
		Success:    true,
		Title:      "Desk Lamp",
		Price:      &price,
		Timestamp:  time.Now(),
	}

	event, err := NewScrapeEvent(payload, "stream:scrape_events")
	require.NoError(t, err)
	assert.Equal(t, EventTypeScrapeSucceeded, event.EventType)
	assert.Equal(t, payload.URL, event.AggregateID)

	payload.Success = false
	event, err = NewScrapeEvent(payload, "stream:scrape_events")
	require.NoError(t, err)
	assert.Equal(t, EventTypeScrapeFailed, event.EventType)
}

func TestAttemptValidate(t *testing.T) {
	family := "chromium"
	errType := "navigation"
	errMsg := "Navigation timeout of 15000ms exceeded"

	tests := []struct {
		name    string
		attempt Attempt
		valid   bool
	}{
		{"Success with family", Attempt{Success: true, BrowserFamily: &family}, true},
		{"Success without family", Attempt{Success: true}, false},
		{"Success with error type", Attempt{Success: true, BrowserFamily: &family, ErrorType: &errType}, false},
		{"Failure with error type", Attempt{Success: false, ErrorType: &errType, ErrorMessage: &errMsg}, true},
		{"Failure without error type", Attempt{Success: false}, false},
		{"Failure before family selection", Attempt{Success: false, ErrorType: &errType}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.attempt.validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

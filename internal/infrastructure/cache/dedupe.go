// Package cache holds the redis-backed stores supporting webhook processing.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/marioschiavon/uplink/internal/config"
)

// dedupeTTL bounds how long processed event ids are remembered. Providers
// stop redelivering well before this.
const dedupeTTL = 72 * time.Hour

// EventDedupeStore remembers processed webhook event ids in redis so
// redelivered events are acked without reprocessing.
type EventDedupeStore struct {
	client *redis.Client
}

// NewRedisClient connects to redis and verifies the connection.
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// NewEventDedupeStore creates a dedupe store over an existing redis client.
func NewEventDedupeStore(client *redis.Client) *EventDedupeStore {
	return &EventDedupeStore{client: client}
}

// Seen marks the event processed and reports whether it already was. The
// SETNX is the atomic claim; only the first caller per event id gets false.
func (s *EventDedupeStore) Seen(ctx context.Context, provider, eventID string) (bool, error) {
	key := fmt.Sprintf("uplink:webhook:%s:%s", provider, eventID)

	claimed, err := s.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), dedupeTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim webhook event: %w", err)
	}

	return !claimed, nil
}

// Close closes the underlying redis client.
func (s *EventDedupeStore) Close() error {
	return s.client.Close()
}

// Package cache publishes a cache-invalidation notification after any
// control-plane mutation to a chain's configuration, so a read-path
// cache (outside this module's scope) knows to drop its entry. Grounded
// on the reference project's internal/store/redis/stream.go
// redis.ParseURL/NewClient setup, repurposed from a Streams transport
// to a simple pub/sub publish.
package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const invalidationChannel = "feeindexer:chain-config-invalidated"

// Invalidator publishes chain-config invalidation events to Redis.
type Invalidator struct {
	client *redis.Client
}

func NewInvalidator(url string) (*Invalidator, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Invalidator{client: client}, nil
}

func (i *Invalidator) Close() error {
	return i.client.Close()
}

// Invalidate publishes chainID as a cache-invalidation notification.
// Failures are logged by the caller, not returned as fatal: a missed
// invalidation means a stale cache entry, never data loss.
func (i *Invalidator) Invalidate(ctx context.Context, chainID int64) error {
	return i.client.Publish(ctx, invalidationChannel, fmt.Sprintf("%d", chainID)).Err()
}

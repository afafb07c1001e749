package permission

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// ResolutionCache memoizes resolved levels in Redis. Entries are keyed per
// (namespace, resource, user) and invalidated wholesale per resource when a
// grant on it changes. Cache failures degrade to a store-backed resolution,
// never to an error.
type ResolutionCache struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

// NewResolutionCache creates a resolution cache for one namespace
func NewResolutionCache(client *redis.Client, namespace string, ttl time.Duration) *ResolutionCache {
	return &ResolutionCache{
		client:    client,
		namespace: namespace,
		ttl:       ttl,
	}
}

func (c *ResolutionCache) key(resourceID string, userID int64) string {
	return fmt.Sprintf("perm:%s:%s:%d", c.namespace, resourceID, userID)
}

// Get returns the cached level for the user on the resource. The second
// return value reports whether a cached entry existed.
func (c *ResolutionCache) Get(ctx context.Context, resourceID string, userID int64) (Level, bool, error) {
	val, err := c.client.Get(ctx, c.key(resourceID, userID)).Result()
	if err == redis.Nil {
		return LevelNone, false, nil
	}
	if err != nil {
		return LevelNone, false, fmt.Errorf("failed to read resolution cache: %w", err)
	}

	n, err := strconv.Atoi(val)
	if err != nil || !Level(n).Valid() {
		// Stale or corrupt entry, treat as a miss.
		return LevelNone, false, nil
	}

	return Level(n), true, nil
}

// Set stores a resolved level
func (c *ResolutionCache) Set(ctx context.Context, resourceID string, userID int64, level Level) error {
	err := c.client.Set(ctx, c.key(resourceID, userID), int(level), c.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to write resolution cache: %w", err)
	}
	return nil
}

// InvalidateResource drops every cached resolution for one resource. Grants
// to teams change resolutions for users we cannot enumerate cheaply, so the
// whole resource keyspace goes.
func (c *ResolutionCache) InvalidateResource(ctx context.Context, resourceID string) error {
	pattern := fmt.Sprintf("perm:%s:%s:*", c.namespace, resourceID)

	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan resolution cache: %w", err)
		}

		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to invalidate resolution cache: %w", err)
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/erp/refundtracker/internal/domain/refund"
	"github.com/redis/go-redis/v9"
)

// DefaultSnapshotKeyPrefix namespaces snapshot keys in Redis
const DefaultSnapshotKeyPrefix = "refund:snapshot:"

// fieldSnapshot holds the encoded snapshot in the order's hash; field "at" holds
// its ComputedAt in microseconds
const fieldSnapshot = "snap"

// setIfNewer writes the snapshot unless the stored one was computed later.
// KEYS[1] snapshot key; ARGV[1] encoded snapshot, ARGV[2] computedAt micros, ARGV[3] ttl millis.
var setIfNewer = redis.NewScript(`
local at = redis.call('HGET', KEYS[1], 'at')
if at and tonumber(at) > tonumber(ARGV[2]) then
  return 0
end
redis.call('HSET', KEYS[1], 'snap', ARGV[1], 'at', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// RedisSnapshotCache implements refund.SnapshotCache using Redis, so that
// several instances of the service share one view of recent snapshots
type RedisSnapshotCache struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

// NewRedisSnapshotCache creates a Redis-backed cache over an existing client
func NewRedisSnapshotCache(client redis.UniversalClient, ttl time.Duration, keyPrefix string) *RedisSnapshotCache {
	if keyPrefix == "" {
		keyPrefix = DefaultSnapshotKeyPrefix
	}
	return &RedisSnapshotCache{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

func (c *RedisSnapshotCache) key(orderID string) string {
	return c.keyPrefix + orderID
}

// Get returns the cached snapshot of an order
func (c *RedisSnapshotCache) Get(ctx context.Context, orderID string) (refund.CachedSnapshot, bool, error) {
	raw, err := c.client.HGet(ctx, c.key(orderID), fieldSnapshot).Bytes()
	if errors.Is(err, redis.Nil) {
		return refund.CachedSnapshot{}, false, nil
	}
	if err != nil {
		return refund.CachedSnapshot{}, false, fmt.Errorf("failed to read snapshot of order %s: %w", orderID, err)
	}

	var snap refund.CachedSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return refund.CachedSnapshot{}, false, fmt.Errorf("failed to decode snapshot of order %s: %w", orderID, err)
	}
	return snap, true, nil
}

// Set stores a snapshot with the configured ttl. The compare and write run as one
// script, so a snapshot computed earlier never replaces a newer one.
func (c *RedisSnapshotCache) Set(ctx context.Context, snap refund.CachedSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot of order %s: %w", snap.OrderID, err)
	}
	err = setIfNewer.Run(ctx, c.client, []string{c.key(snap.OrderID)},
		raw, snap.ComputedAt.UnixMicro(), c.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("failed to write snapshot of order %s: %w", snap.OrderID, err)
	}
	return nil
}

// Invalidate deletes the cached snapshot of an order
func (c *RedisSnapshotCache) Invalidate(ctx context.Context, orderID string) error {
	if err := c.client.Del(ctx, c.key(orderID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate snapshot of order %s: %w", orderID, err)
	}
	return nil
}

// Close closes the Redis client
func (c *RedisSnapshotCache) Close() error {
	return c.client.Close()
}

var _ refund.SnapshotCache = (*RedisSnapshotCache)(nil)

package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/refundtracker/internal/domain/refund"
	"github.com/erp/refundtracker/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewSnapshotCache builds the snapshot cache selected by configuration:
//   - a zero ttl disables caching;
//   - the redis backend is used when Redis is enabled and answers a ping;
//   - anything else falls back to the in-memory cache.
func NewSnapshotCache(ctx context.Context, acct config.AccountingConfig, redisCfg config.RedisConfig, logger *zap.Logger) refund.SnapshotCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if acct.SnapshotCacheTTL <= 0 {
		logger.Info("snapshot cache disabled")
		return refund.NoopSnapshotCache{}
	}

	if acct.CacheBackend == config.CacheBackendRedis {
		c, err := newRedisSnapshotCache(ctx, redisCfg, acct.SnapshotCacheTTL)
		if err == nil {
			logger.Info("using Redis snapshot cache", zap.String("addr", redisCfg.Addr()))
			return c
		}
		logger.Warn("Redis unavailable, falling back to in-memory snapshot cache. "+
			"Instances will not share cached snapshots.",
			zap.Error(err),
		)
	}

	return NewInMemorySnapshotCache(acct.SnapshotCacheTTL, acct.SnapshotCacheTTL)
}

func newRedisSnapshotCache(ctx context.Context, cfg config.RedisConfig, ttl time.Duration) (*RedisSnapshotCache, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("redis is not enabled")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisSnapshotCache(client, ttl, ""), nil
}

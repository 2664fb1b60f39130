package redis

import (
	"context"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Regolith-Intelligence/pkg/errors"
)

const defaultPrefix = "regolith:"

// ResponseCache stores LLM completions as plain strings.  It satisfies
// llm.ResponseCache.
type ResponseCache struct {
	client     *Client
	logger     logging.Logger
	prefix     string
	defaultTTL time.Duration
}

type CacheOption func(*ResponseCache)

func WithPrefix(prefix string) CacheOption {
	return func(c *ResponseCache) { c.prefix = prefix }
}

func WithDefaultTTL(ttl time.Duration) CacheOption {
	return func(c *ResponseCache) { c.defaultTTL = ttl }
}

// NewResponseCache returns a cache under the "regolith:" prefix with a
// 24 hour default TTL.
func NewResponseCache(client *Client, log logging.Logger, opts ...CacheOption) *ResponseCache {
	if log == nil {
		log = logging.NewNopLogger()
	}
	c := &ResponseCache{
		client:     client,
		logger:     log.Named("redis_cache"),
		prefix:     defaultPrefix,
		defaultTTL: 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *ResponseCache) fullKey(key string) string {
	return c.prefix + key
}

// jitterTTL spreads expiry by +/- 10% so a batch's entries do not all
// lapse together.
func (c *ResponseCache) jitterTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	jitter := float64(ttl) * 0.1 * (rand.Float64()*2 - 1)
	return ttl + time.Duration(jitter)
}

// Get returns ok=false on a miss.
func (c *ResponseCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.client.Get(ctx, c.fullKey(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, errors.ErrCodeCacheError, "cache get").WithDetail(key)
	}
	return v, true, nil
}

// Set stores value; ttl zero means the default TTL.
func (c *ResponseCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	if err := c.client.Set(ctx, c.fullKey(key), value, c.jitterTTL(ttl)).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "cache set").WithDetail(key)
	}
	return nil
}

// Delete removes keys.
func (c *ResponseCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.fullKey(k)
	}
	if err := c.client.Del(ctx, full...).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "cache delete")
	}
	return nil
}

// DeleteByPrefix scans and removes every key under prefix, returning the
// number removed.
func (c *ResponseCache) DeleteByPrefix(ctx context.Context, prefix string) (int64, error) {
	var deleted int64
	var cursor uint64
	match := c.fullKey(prefix) + "*"
	for {
		keys, next, err := c.client.Scan(ctx, cursor, match, 100).Result()
		if err != nil {
			return deleted, errors.Wrap(err, errors.ErrCodeCacheError, "cache scan")
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return deleted, errors.Wrap(err, errors.ErrCodeCacheError, "cache delete")
			}
			deleted += int64(len(keys))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	c.logger.Info("cache entries removed", logging.String("prefix", prefix), logging.Int64("count", deleted))
	return deleted, nil
}

// Ping checks the underlying connection.
func (c *ResponseCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx)
}

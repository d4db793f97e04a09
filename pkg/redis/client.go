package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Nil is returned by reads of a missing key
var Nil = redis.Nil

type Client struct {
	rdb        *redis.Client
	KeyBuilder *KeyBuilder
	log        *zap.Logger
}

// Cache key patterns
const (
	KeyDocument        = "doc:%s:%s"     // doc:{collection}:{id}
	KeyCollectionIndex = "idx:%s"        // idx:{collection}, ZSET of ids scored 0
	KeyCounter         = "counter:%s:%s" // counter:{collection}:{id}, HASH of field -> int
	KeyResults         = "results:%s"    // results:{electionID}
	KeyAuditStream     = "audit:%s"      // audit:{stream}
)

// TTL constants
const (
	TTLResults       = 30 * time.Second // Tally while voting is running
	TTLResultsFrozen = 10 * time.Minute // Tally after voting ended; invalidated explicitly on declare
)

// NewClient creates a new Redis client
func NewClient(redisURL string, environment string, log *zap.Logger) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = 50
	opts.MinIdleConns = 5
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if log == nil {
		log = zap.NewNop()
	}

	return &Client{rdb: rdb, KeyBuilder: NewKeyBuilder(environment), log: log}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}

// Get retrieves a value from Redis
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	start := time.Now()
	val, err := c.rdb.Get(ctx, key).Result()
	c.trace("redis_get", key, start, err)
	return val, err
}

// Set stores a value in Redis with TTL
func (c *Client) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	start := time.Now()
	err := c.rdb.Set(ctx, key, value, ttl).Err()
	c.trace("redis_set", key, start, err)
	return err
}

// Delete removes keys from Redis
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	start := time.Now()
	err := c.rdb.Del(ctx, keys...).Err()
	c.log.Debug("redis_del",
		zap.Int("keys", len(keys)),
		zap.Duration("duration", time.Since(start)),
		zap.Error(err))
	return err
}

// Exists checks if a key exists
func (c *Client) Exists(ctx context.Context, keys ...string) (int64, error) {
	start := time.Now()
	n, err := c.rdb.Exists(ctx, keys...).Result()
	c.log.Debug("redis_exists",
		zap.Int64("result", n),
		zap.Int("keys", len(keys)),
		zap.Duration("duration", time.Since(start)),
		zap.Error(err))
	return n, err
}

// HGetAll gets all fields from a hash
func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	start := time.Now()
	m, err := c.rdb.HGetAll(ctx, key).Result()
	c.trace("redis_hgetall", key, start, err)
	return m, err
}

// ZRangeByLex lists members of a zero-scored sorted set between min and max
func (c *Client) ZRangeByLex(ctx context.Context, key, lo, hi string) ([]string, error) {
	start := time.Now()
	members, err := c.rdb.ZRangeByLex(ctx, key, &redis.ZRangeBy{Min: lo, Max: hi}).Result()
	c.trace("redis_zrangebylex", key, start, err)
	return members, err
}

// XAdd appends values to a stream
func (c *Client) XAdd(ctx context.Context, stream string, values map[string]interface{}) (string, error) {
	start := time.Now()
	id, err := c.rdb.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: values}).Result()
	c.trace("redis_xadd", stream, start, err)
	return id, err
}

// XRange reads a stream from start to end
func (c *Client) XRange(ctx context.Context, stream, start, stop string) ([]redis.XMessage, error) {
	return c.rdb.XRange(ctx, stream, start, stop).Result()
}

// Publish sends a message on a pub/sub channel
func (c *Client) Publish(ctx context.Context, channel string, message interface{}) error {
	start := time.Now()
	err := c.rdb.Publish(ctx, channel, message).Err()
	c.trace("redis_publish", channel, start, err)
	return err
}

// Subscribe listens on pub/sub channels. The caller closes the subscription.
func (c *Client) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return c.rdb.Subscribe(ctx, channels...)
}

// Watch runs fn in an optimistic transaction. Keys can also be watched from
// inside fn with tx.Watch before they are read. Returns redis.TxFailedErr when
// a watched key changed before EXEC.
func (c *Client) Watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	start := time.Now()
	err := c.rdb.Watch(ctx, fn, keys...)
	dur := time.Since(start)
	if err != nil && !errors.Is(err, redis.TxFailedErr) {
		c.log.Debug("redis_watch",
			zap.Int("keys", len(keys)),
			zap.Duration("duration", dur),
			zap.Error(err))
	} else {
		c.log.Debug("redis_watch",
			zap.Bool("conflict", err != nil),
			zap.Duration("duration", dur))
	}
	return err
}

// Health checks the Redis connection
func (c *Client) Health(ctx context.Context) error {
	start := time.Now()
	err := c.rdb.Ping(ctx).Err()
	dur := time.Since(start)
	if err != nil {
		c.log.Info("redis_ping",
			zap.Duration("duration", dur),
			zap.Error(err))
	} else {
		c.log.Debug("redis_ping", zap.Duration("duration", dur))
	}
	return err
}

// GetWithFallback attempts to get a value from cache, falling back to a function if not found
func (c *Client) GetWithFallback(ctx context.Context, key string, ttl time.Duration, fallback func() (string, error)) (string, error) {
	val, err := c.Get(ctx, key)
	if err == nil && val != "" {
		return val, nil
	}

	result, err := fallback()
	if err != nil {
		return "", err
	}

	// Cache the result (fire and forget to avoid blocking)
	go func() {
		cacheCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.Set(cacheCtx, key, result, ttl)
	}()

	return result, nil
}

// Pipeline creates a new pipeline for batch operations
func (c *Client) Pipeline() redis.Pipeliner {
	return c.rdb.Pipeline()
}

func (c *Client) trace(op, key string, start time.Time, err error) {
	dur := time.Since(start)
	if err != nil && err != redis.Nil {
		c.log.Info(op,
			zap.String("key_prefix", prefixForLog(key)),
			zap.Duration("duration", dur),
			zap.Error(err))
		return
	}
	c.log.Debug(op,
		zap.String("key_prefix", prefixForLog(key)),
		zap.Duration("duration", dur))
}

// prefixForLog returns a safe prefix of a key to avoid logging PII
func prefixForLog(key string) string {
	if len(key) <= 24 {
		return key
	}
	return key[:24] + "…"
}

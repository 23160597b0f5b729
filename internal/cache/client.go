// Package cache implements the settings caching subsystem: a circuit-broken
// Redis client, a cache-aside/write-through user settings service, and the
// admin defaults mirror with hash-based change detection.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/openfunk/modetrader/internal/metrics"
)

// Default breaker tuning and TTLs.
const (
	defaultFailureThreshold = 3
	defaultProbeInterval    = 30 * time.Second

	// SequenceTTL bounds the lifetime of daily sequence counters. 48h
	// covers timezone skew on either side of a calendar day.
	SequenceTTL = 48 * time.Hour
)

// Options configures the circuit-broken Redis client.
type Options struct {
	Addr     string
	Password string
	DB       int
	PoolSize int

	// FailureThreshold is the number of consecutive I/O failures that
	// opens the breaker. Zero means the default of 3.
	FailureThreshold int
	// ProbeInterval is how long the breaker stays open before callers
	// start firing background recovery probes. Zero means 30s.
	ProbeInterval time.Duration
}

// Client is the sole path to Redis for the settings subsystem. It converts
// transient backend failures into an explicit degraded state: after three
// consecutive I/O failures every operation fails fast with
// ErrCacheUnavailable until a recovery probe succeeds.
type Client struct {
	rdb     *redis.Client
	breaker *breaker
}

// NewClient connects to Redis and probes connectivity. The client is
// returned even when the probe fails; it simply starts degraded and
// recovers via background probes.
func NewClient(opts Options) *Client {
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = defaultFailureThreshold
	}
	if opts.ProbeInterval <= 0 {
		opts.ProbeInterval = defaultProbeInterval
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	c := &Client{
		rdb:     rdb,
		breaker: newBreaker(opts.FailureThreshold, opts.ProbeInterval),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", opts.Addr).Msg("Initial Redis probe failed, starting degraded")
		metrics.SetBreakerOpen(true)
		return c
	}

	c.breaker.recordSuccess()
	metrics.SetBreakerOpen(false)
	log.Info().Str("addr", opts.Addr).Msg("Redis connected")
	return c
}

// newClientWithRedis wires an existing Redis client; used by tests.
func newClientWithRedis(rdb *redis.Client, threshold int, probeInterval time.Duration) *Client {
	c := &Client{
		rdb:     rdb,
		breaker: newBreaker(threshold, probeInterval),
	}
	c.breaker.recordSuccess()
	return c
}

// IsHealthy reports whether the breaker is closed.
func (c *Client) IsHealthy() bool {
	return c.breaker.healthy()
}

// Stats is a point-in-time snapshot of client health for monitoring.
type Stats struct {
	Healthy      bool `json:"healthy"`
	FailureCount int  `json:"failure_count"`
}

// GetStats returns the current health snapshot.
func (c *Client) GetStats() Stats {
	state, failures := c.breaker.snapshot()
	return Stats{Healthy: state == StateClosed, FailureCount: failures}
}

// recordFailure feeds a genuine I/O failure into the breaker.
func (c *Client) recordFailure() {
	metrics.CacheFailures.Inc()
	if c.breaker.recordFailure() {
		_, failures := c.breaker.snapshot()
		metrics.SetBreakerOpen(true)
		log.Error().Int("failures", failures).Msg("Redis circuit breaker opened")
	}
}

// recordSuccess closes the breaker.
func (c *Client) recordSuccess() {
	if c.breaker.recordSuccess() {
		metrics.SetBreakerOpen(false)
		log.Info().Msg("Redis circuit breaker closed, backend recovered")
	}
}

// maybeProbe fires a detached recovery probe when the breaker has been open
// past the probe interval. Overlapping probes from concurrent callers are
// acceptable: a ping is cheap and recordSuccess is idempotent.
func (c *Client) maybeProbe() {
	if !c.breaker.shouldProbe() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := c.rdb.Ping(ctx).Err(); err == nil {
			c.recordSuccess()
		}
	}()
}

// Get retrieves a value. Returns ErrCacheMiss when the key does not exist
// and ErrCacheUnavailable when the breaker is open. Only genuine I/O
// failures count against the breaker.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	c.maybeProbe()
	if !c.IsHealthy() {
		return "", ErrCacheUnavailable
	}

	metrics.RecordCacheOperation("get")
	val, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrCacheMiss
		}
		c.recordFailure()
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}

	c.recordSuccess()
	return val, nil
}

// MGet retrieves multiple keys as one batch. The result has one entry per
// key in order; a nil entry is a miss for that key.
func (c *Client) MGet(ctx context.Context, keys ...string) ([][]byte, error) {
	c.maybeProbe()
	if !c.IsHealthy() {
		return nil, ErrCacheUnavailable
	}

	metrics.RecordCacheOperation("mget")
	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		c.recordFailure()
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	c.recordSuccess()
	out := make([][]byte, len(vals))
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[i] = []byte(s)
		}
	}
	return out, nil
}

// Set stores a value. A zero ttl means no expiry.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.maybeProbe()
	if !c.IsHealthy() {
		return ErrCacheUnavailable
	}

	metrics.RecordCacheOperation("set")
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		c.recordFailure()
		return fmt.Errorf("redis set %s: %w", key, err)
	}

	c.recordSuccess()
	return nil
}

// Delete removes a key. Deleting a nonexistent key is not an error.
func (c *Client) Delete(ctx context.Context, key string) error {
	c.maybeProbe()
	if !c.IsHealthy() {
		return ErrCacheUnavailable
	}

	metrics.RecordCacheOperation("delete")
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		c.recordFailure()
		return fmt.Errorf("redis del %s: %w", key, err)
	}

	c.recordSuccess()
	return nil
}

// DeletePattern removes every key matching a glob pattern via SCAN+DEL.
// Not atomic: a failure mid-scan aborts with an error and keys already
// visited stay deleted.
func (c *Client) DeletePattern(ctx context.Context, pattern string) error {
	c.maybeProbe()
	if !c.IsHealthy() {
		return ErrCacheUnavailable
	}

	metrics.RecordCacheOperation("delete_pattern")
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			c.recordFailure()
			return fmt.Errorf("redis del %s during pattern delete: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		c.recordFailure()
		return fmt.Errorf("redis scan %s: %w", pattern, err)
	}

	c.recordSuccess()
	return nil
}

// IncrementDailySequence atomically increments the per-user daily sequence
// counter and returns the new value (1-indexed). INCR is linearizable in
// Redis, so concurrent callers for the same user and day get strictly
// increasing values without application-level locking. The TTL is applied
// only on the first increment of a day, bounding counter lifetime.
func (c *Client) IncrementDailySequence(ctx context.Context, userID, dateKey string) (int64, error) {
	c.maybeProbe()
	if !c.IsHealthy() {
		return 0, ErrCacheUnavailable
	}

	key := UserSequenceKey(userID, dateKey)
	metrics.RecordCacheOperation("incr")
	val, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		c.recordFailure()
		return 0, fmt.Errorf("redis incr %s: %w", key, err)
	}

	if val == 1 {
		if err := c.rdb.Expire(ctx, key, SequenceTTL).Err(); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to bound sequence counter lifetime")
		}
	}

	c.recordSuccess()
	return val, nil
}

// GetCurrentSequence returns the current daily sequence without
// incrementing it. Returns 0 when no sequence exists for the date.
func (c *Client) GetCurrentSequence(ctx context.Context, userID, dateKey string) (int64, error) {
	c.maybeProbe()
	if !c.IsHealthy() {
		return 0, ErrCacheUnavailable
	}

	key := UserSequenceKey(userID, dateKey)
	metrics.RecordCacheOperation("get")
	val, err := c.rdb.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		c.recordFailure()
		return 0, fmt.Errorf("redis get %s: %w", key, err)
	}

	c.recordSuccess()
	return val, nil
}

// Ping checks connectivity and feeds the result into the breaker.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		c.recordFailure()
		return err
	}
	c.recordSuccess()
	return nil
}

// Close closes the underlying Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

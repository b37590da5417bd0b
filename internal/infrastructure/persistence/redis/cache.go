// Package redis implements the Redis cache layer. Run lookups are cached
// read-through with a short TTL; everything else stays in PostgreSQL.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrCacheMiss indicates the key was not found in cache.
	ErrCacheMiss = errors.New("redis: cache miss")

	// ErrCacheClosed indicates the cache client is closed.
	ErrCacheClosed = errors.New("redis: cache client is closed")

	// ErrInvalidValue indicates the cached value could not be decoded.
	ErrInvalidValue = errors.New("redis: invalid cached value")
)

// ══════════════════════════════════════════════════════════════════════════════
// KEY PREFIXES & TTLS
// ══════════════════════════════════════════════════════════════════════════════

// Key prefixes for different cache domains.
const (
	PrefixRunByCode = "run:code:"
	PrefixRunByID   = "run:id:"
	PrefixRunStats  = "run:stats:"
)

// Default TTLs for cached entities.
const (
	TTLRun      = 5 * time.Minute
	TTLRunStats = 30 * time.Second
)

// RunByCodeKey returns the cache key for a runcode lookup.
func RunByCodeKey(code string) string {
	return PrefixRunByCode + code
}

// RunByIDKey returns the cache key for a run id lookup.
func RunByIDKey(id string) string {
	return PrefixRunByID + id
}

// RunStatsKey returns the cache key for run statistics.
func RunStatsKey(runID string) string {
	return PrefixRunStats + runID
}

// ══════════════════════════════════════════════════════════════════════════════
// CONFIG
// ══════════════════════════════════════════════════════════════════════════════

// Config holds Redis connection configuration.
type Config struct {
	// Host is the Redis host.
	Host string

	// Port is the Redis port (default 6379).
	Port int

	// Password is the Redis password (optional).
	Password string

	// DB is the Redis database number.
	DB int

	// PoolSize is the connection pool size.
	PoolSize int

	// DialTimeout is the timeout for establishing a connection.
	DialTimeout time.Duration

	// ReadTimeout is the timeout for reads.
	ReadTimeout time.Duration

	// WriteTimeout is the timeout for writes.
	WriteTimeout time.Duration
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         6379,
		DB:           0,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Addr returns the host:port address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// CACHE CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Cache wraps a Redis client with JSON encode/decode helpers.
type Cache struct {
	client *redis.Client
}

// NewCache creates a new Redis cache client.
func NewCache(ctx context.Context, cfg Config) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: failed to connect: %w", err)
	}

	return &Cache{client: client}, nil
}

// NewCacheFromClient wraps an existing client.
func NewCacheFromClient(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Client returns the underlying Redis client.
func (c *Cache) Client() *redis.Client {
	return c.client
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping checks the connection.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Set stores a value as JSON with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("redis: failed to marshal value: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: failed to set key %s: %w", key, err)
	}

	return nil
}

// Get retrieves a JSON value into dest. Returns ErrCacheMiss if absent.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		return fmt.Errorf("redis: failed to get key %s: %w", key, err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: key %s: %v", ErrInvalidValue, key, err)
	}

	return nil
}

// Delete removes the given keys.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis: failed to delete keys: %w", err)
	}

	return nil
}

// Exists reports whether the key exists.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis: failed to check key %s: %w", key, err)
	}
	return n > 0, nil
}

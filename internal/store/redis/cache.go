// Package redis provides the Redis-backed result cache, guarded by a
// circuit breaker so a Redis outage degrades to recomputation.
package redis

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

const defaultPrefix = "ta:"

// CacheConfig configures the Redis result cache.
type CacheConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int

	Prefix       string        // key namespace, default "ta:"
	MaxFailures  int           // consecutive failures before the breaker opens, default 5
	ResetTimeout time.Duration // open period before a probe, default 10s
	OpTimeout    time.Duration // per-operation deadline, default 250ms
}

// Cache stores serialized analysis results with a TTL.
type Cache struct {
	client    *goredis.Client
	cb        *CircuitBreaker
	prefix    string
	opTimeout time.Duration

	// OnHit and OnMiss are optional hooks for metrics.
	OnHit  func()
	OnMiss func()
}

// NewCache connects to Redis and pings it. A failed ping is returned so the
// caller can decide to run without a cache.
func NewCache(cfg CacheConfig) (*Cache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return NewCacheWithClient(client, cfg), nil
}

// NewCacheWithClient wraps an existing client without pinging it.
func NewCacheWithClient(client *goredis.Client, cfg CacheConfig) *Cache {
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout == 0 {
		cfg.ResetTimeout = 10 * time.Second
	}
	if cfg.OpTimeout == 0 {
		cfg.OpTimeout = 250 * time.Millisecond
	}
	cb := NewCircuitBreaker(cfg.MaxFailures, cfg.ResetTimeout)
	// a missing key is a normal miss, not a Redis fault
	cb.IsFailure = func(err error) bool { return !errors.Is(err, goredis.Nil) }
	return &Cache{
		client:    client,
		cb:        cb,
		prefix:    cfg.Prefix,
		opTimeout: cfg.OpTimeout,
	}
}

// Client returns the underlying Redis client for health checks.
func (c *Cache) Client() *goredis.Client { return c.client }

// Breaker returns the circuit breaker guarding Redis calls.
func (c *Cache) Breaker() *CircuitBreaker { return c.cb }

// Get returns the payload stored under key. Errors, including an open
// breaker, are reported as misses.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	var payload []byte
	err := c.cb.Execute(func() error {
		opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
		defer cancel()
		b, err := c.client.Get(opCtx, c.prefix+key).Bytes()
		if err != nil {
			return err
		}
		payload = b
		return nil
	})
	if err != nil {
		if !errors.Is(err, goredis.Nil) && !errors.Is(err, ErrCircuitOpen) {
			log.Printf("[redis] get %s: %v", key, err)
		}
		c.hook(c.OnMiss)
		return nil, false
	}
	c.hook(c.OnHit)
	return payload, true
}

// Set stores payload under key for ttl. Failures are logged and dropped.
func (c *Cache) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) {
	err := c.cb.Execute(func() error {
		opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
		defer cancel()
		return c.client.Set(opCtx, c.prefix+key, payload, ttl).Err()
	})
	if err != nil && !errors.Is(err, ErrCircuitOpen) {
		log.Printf("[redis] set %s: %v", key, err)
	}
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

func (c *Cache) hook(fn func()) {
	if fn != nil {
		fn()
	}
}

// Key builds a cache key from its parts. The parts are hashed so that long
// request fingerprints stay bounded; the first part is kept readable.
func Key(parts ...string) string {
	if len(parts) == 0 {
		return ""
	}
	sum := sha1.Sum([]byte(strings.Join(parts, "\x1f")))
	return parts[0] + ":" + hex.EncodeToString(sum[:])
}

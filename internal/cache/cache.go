// Package cache implements the cache-aside layer in front of the
// persistence store. The backend is advisory: every failure degrades to a
// miss and the authoritative read, never to an error at the call site.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"civio.org/internal/obs"
)

// ErrMiss is returned by backends for absent keys.
var ErrMiss = errors.New("cache: miss")

// Backend is the minimal contract an external key/value service must
// satisfy. Absence of a backend removes caching, not functionality.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	Ping(ctx context.Context) error
}

const (
	// callTimeout bounds every backend call so a degraded cache cannot
	// stall request handling.
	callTimeout = 2 * time.Second

	// failureThreshold consecutive errors mark the backend down;
	// probeInterval later a single call is let through to detect recovery.
	failureThreshold = 3
	probeInterval    = 30 * time.Second
)

// Cache wraps a Backend with degradation and health tracking. A nil backend
// yields a permanently-miss cache.
type Cache struct {
	backend Backend
	now     func() time.Time

	mu       sync.Mutex
	failures int
	down     bool
	retryAt  time.Time
	probing  bool
}

// Option configures Cache behavior.
type Option func(*Cache)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(c *Cache) {
		if fn != nil {
			c.now = fn
		}
	}
}

// New constructs a Cache. backend may be nil when no cache service is
// configured.
func New(backend Backend, opts ...Option) *Cache {
	c := &Cache{backend: backend, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enabled reports whether a backend is configured at all.
func (c *Cache) Enabled() bool {
	return c != nil && c.backend != nil
}

// Get returns the cached value for key. Any backend condition other than a
// stored value — absence, outage, timeout — is a miss.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	if !c.acquire() {
		obs.ObserveCacheOp("get", "skipped")
		return "", false
	}
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	value, err := c.backend.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrMiss) {
			c.markSuccess()
			obs.ObserveCacheOp("get", "miss")
			return "", false
		}
		c.markFailure(err)
		obs.ObserveCacheOp("get", "error")
		return "", false
	}
	c.markSuccess()
	obs.ObserveCacheOp("get", "hit")
	return value, true
}

// Set stores value under key for ttl. Best-effort: errors are counted,
// logged and otherwise dropped.
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if !c.acquire() {
		obs.ObserveCacheOp("set", "skipped")
		return
	}
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	if err := c.backend.SetWithTTL(ctx, key, value, ttl); err != nil {
		c.markFailure(err)
		obs.ObserveCacheOp("set", "error")
		return
	}
	c.markSuccess()
	obs.ObserveCacheOp("set", "ok")
}

// Delete removes keys. Best-effort.
func (c *Cache) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 || !c.acquire() {
		obs.ObserveCacheOp("delete", "skipped")
		return
	}
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	if err := c.backend.Delete(ctx, keys...); err != nil {
		c.markFailure(err)
		obs.ObserveCacheOp("delete", "error")
		return
	}
	c.markSuccess()
	obs.ObserveCacheOp("delete", "ok")
}

// DeleteByPrefix removes every key sharing prefix. Best-effort.
func (c *Cache) DeleteByPrefix(ctx context.Context, prefix string) {
	if prefix == "" || !c.acquire() {
		obs.ObserveCacheOp("delete_prefix", "skipped")
		return
	}
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	if err := c.backend.DeleteByPrefix(ctx, prefix); err != nil {
		c.markFailure(err)
		obs.ObserveCacheOp("delete_prefix", "error")
		return
	}
	c.markSuccess()
	obs.ObserveCacheOp("delete_prefix", "ok")
}

// Ping probes the backend for readiness reporting.
func (c *Cache) Ping(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	return c.backend.Ping(ctx)
}

// acquire decides whether the next backend call may proceed. While the
// backend is marked down only one probe per probeInterval gets through.
func (c *Cache) acquire() bool {
	if !c.Enabled() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.down {
		return true
	}
	if c.probing || c.now().Before(c.retryAt) {
		return false
	}
	c.probing = true
	return true
}

func (c *Cache) markFailure(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probing = false
	c.failures++
	if c.down || c.failures >= failureThreshold {
		c.down = true
		c.retryAt = c.now().Add(probeInterval)
	}
	obs.LogRequest(map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"level": "warn",
		"msg":   "cache backend error",
		"error": err.Error(),
		"down":  c.down,
	})
}

func (c *Cache) markSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = 0
	c.down = false
	c.probing = false
}

package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Aside implements get-or-populate over c. On hit the cached JSON is
// decoded and returned; on miss (including any backend outage) populate is
// called against the authoritative store, its result cached best-effort and
// returned. The populate result always wins: caching affects latency only,
// never the returned value.
func Aside[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, populate func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if raw, ok := c.Get(ctx, key); ok {
		var cached T
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			return cached, nil
		}
		// Undecodable entry: drop it and fall through to the store.
		c.Delete(ctx, key)
	}

	value, err := populate(ctx)
	if err != nil {
		return zero, err
	}
	if data, err := json.Marshal(value); err == nil {
		c.Set(ctx, key, string(data), ttl)
	}
	return value, nil
}

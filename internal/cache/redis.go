package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisBackend adapts a go-redis client to the Backend contract.
type redisBackend struct {
	client *redis.Client
}

// NewRedisBackend connects a Redis-backed Backend at addr.
func NewRedisBackend(addr string) Backend {
	return &redisBackend{client: redis.NewClient(&redis.Options{Addr: addr})}
}

func (b *redisBackend) Get(ctx context.Context, key string) (string, error) {
	value, err := b.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", ErrMiss
		}
		return "", err
	}
	return value, nil
}

func (b *redisBackend) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	return b.client.Set(ctx, key, value, ttl).Err()
}

func (b *redisBackend) Delete(ctx context.Context, keys ...string) error {
	return b.client.Del(ctx, keys...).Err()
}

func (b *redisBackend) DeleteByPrefix(ctx context.Context, prefix string) error {
	iter := b.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return b.client.Del(ctx, keys...).Err()
}

func (b *redisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

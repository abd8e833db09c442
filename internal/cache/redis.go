package cache

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// Redis shares the cache between launcher replicas.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis connects using a redis:// URL.
func NewRedis(ctx context.Context, rawURL, prefix string) (*Redis, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisWithClient(client, prefix), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client redis.UniversalClient, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

// Get implements Cache.
func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	uri, err := r.client.Get(ctx, r.prefix+key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return uri, true, nil
}

// PutIfAbsent implements Cache with SETNX and no expiry.
func (r *Redis) PutIfAbsent(ctx context.Context, key, uri string) (string, error) {
	stored, err := r.client.SetNX(ctx, r.prefix+key, uri, 0).Result()
	if err != nil {
		return "", fmt.Errorf("redis setnx: %w", err)
	}
	if stored {
		return uri, nil
	}
	existing, ok, err := r.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return uri, nil
	}
	return existing, nil
}

// Close releases the connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "centinel:results:v2:list:"
	redisGenPrefix = "centinel:results:v2:gen:"
)

// RedisCache shares results listings between server replicas. Each client has
// a generation counter; listings are stored under a key that embeds the
// generation they were computed for, so a write on one replica orphans any
// listing another replica is still filling.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, username string) ([]byte, uint64, bool, error) {
	gen, err := c.generation(ctx, username)
	if err != nil {
		return nil, 0, false, err
	}

	b, err := c.client.Get(ctx, c.key(username, gen)).Bytes()

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, gen, false, nil
		}
		return nil, gen, false, fmt.Errorf("results cache get: %w", err)
	}

	return b, gen, true, nil
}

func (c *RedisCache) Set(ctx context.Context, username string, gen uint64, payload []byte) error {
	if err := c.client.Set(ctx, c.key(username, gen), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("results cache set: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, username string) error {
	if err := c.client.Incr(ctx, c.genKey(username)).Err(); err != nil {
		return fmt.Errorf("results cache invalidate: %w", err)
	}
	return nil
}

func (c *RedisCache) generation(ctx context.Context, username string) (uint64, error) {
	gen, err := c.client.Get(ctx, c.genKey(username)).Uint64()

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("results cache generation: %w", err)
	}

	return gen, nil
}

func (c *RedisCache) key(username string, gen uint64) string {
	return redisKeyPrefix + username + ":" + strconv.FormatUint(gen, 10)
}

func (c *RedisCache) genKey(username string) string {
	return redisGenPrefix + username
}

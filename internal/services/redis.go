package services

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/go-redsync/redsync/v4"
	goredis "github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// RedisCache provides caching plus the distributed locks the reconciler uses
// to serialize webhook processing per order.
type RedisCache struct {
	client *redis.Client
	rs     *redsync.Redsync
}

// NewRedisCache creates a new Redis cache client
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	log.Println("Redis connection established")
	pool := goredis.NewPool(client)
	return &RedisCache{client: client, rs: redsync.New(pool)}, nil
}

// Set stores a value in cache with expiration
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, expiration).Err()
}

// Get retrieves a value from cache
func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// GetOrSet retrieves a value from cache, or calls the callback to fetch and
// cache it. The callback runs only on a miss.
func GetOrSet[T any](c *RedisCache, ctx context.Context, key string, expiration time.Duration, fn func() (T, error)) (T, error) {
	var result T

	err := c.Get(ctx, key, &result)
	if err == nil {
		return result, nil
	}

	result, err = fn()
	if err != nil {
		return result, err
	}

	// Store in cache (ignore cache set errors)
	_ = c.Set(ctx, key, result, expiration)

	return result, nil
}

// Delete removes a key from cache
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// SeenRecently marks key for the window and reports whether it was already
// present. Fast-path webhook dedup; the durable barrier stays in Postgres.
func (c *RedisCache) SeenRecently(ctx context.Context, key string, window time.Duration) (bool, error) {
	set, err := c.client.SetNX(ctx, key, 1, window).Result()
	if err != nil {
		return false, err
	}
	return !set, nil
}

// NewMutex returns a distributed mutex for the given name.
func (c *RedisCache) NewMutex(name string, expiry time.Duration) *redsync.Mutex {
	return c.rs.NewMutex(name, redsync.WithExpiry(expiry))
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}

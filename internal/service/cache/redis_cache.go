package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces response-cache keys away from the job queue and the
// series cache sharing the same Redis.
const keyPrefix = "sessionscope:http:"

// RedisCache is a BytesCache over a shared Redis client. It does not own
// the connection; closing it is the provider's job.
type RedisCache struct {
	cli *redis.Client
}

// NewRedisCacheFromClient wraps an already configured client.
func NewRedisCacheFromClient(cli *redis.Client) *RedisCache {
	return &RedisCache{cli: cli}
}

func (r *RedisCache) GetBytes(key string) ([]byte, bool, error) {
	b, err := r.cli.Get(context.Background(), keyPrefix+key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return b, true, nil
}

func (r *RedisCache) SetBytes(key string, value []byte, ttl time.Duration) error {
	return r.cli.Set(context.Background(), keyPrefix+key, value, ttl).Err()
}

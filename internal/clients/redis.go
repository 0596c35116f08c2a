package clients

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"invofox/pkg/cache/redis"
)

const defaultRedisPrefix = "invofox_"

type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	MaxRetries  int
	DialTimeout time.Duration
	Timeout     time.Duration

	// Prefix namespaces every key; empty means "invofox_".
	Prefix string
}

// ErrCacheMiss is returned by Get for absent keys.
var ErrCacheMiss = redis.Nil

func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// RedisClient holds idempotency records and document job status. All keys
// are prefixed so several deployments can share one server.
type RedisClient struct {
	raw    *redis.Client
	prefix string
}

func NewRedisClient(cfg RedisConfig) (*RedisClient, error) {
	rdb, err := redis.NewRedisConnection(redis.ConnectionInfo{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		MaxRetries:  cfg.MaxRetries,
		DialTimeout: cfg.DialTimeout,
		Timeout:     cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisClient{raw: rdb, prefix: prefix}, nil
}

func (c *RedisClient) Close() {
	redis.Close(c.raw)
}

func (c *RedisClient) key(k string) string {
	return c.prefix + k
}

func (c *RedisClient) keys(ks []string) []string {
	out := make([]string, len(ks))
	for i, k := range ks {
		out[i] = c.key(k)
	}
	return out
}

func (c *RedisClient) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return c.raw.Set(ctx, c.key(key), value, ttl).Err()
}

// SetNX stores value only when key is absent and reports whether it did.
func (c *RedisClient) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	return c.raw.SetNX(ctx, c.key(key), value, ttl).Result()
}

func (c *RedisClient) Get(ctx context.Context, key string) (string, error) {
	return c.raw.Get(ctx, c.key(key)).Result()
}

func (c *RedisClient) Del(ctx context.Context, keys ...string) error {
	return c.raw.Del(ctx, c.keys(keys)...).Err()
}

func (c *RedisClient) SAdd(ctx context.Context, set string, members ...any) error {
	return c.raw.SAdd(ctx, c.key(set), members...).Err()
}

func (c *RedisClient) SRem(ctx context.Context, set string, members ...any) error {
	return c.raw.SRem(ctx, c.key(set), members...).Err()
}

func (c *RedisClient) SMembers(ctx context.Context, set string) ([]string, error) {
	return c.raw.SMembers(ctx, c.key(set)).Result()
}

// SetTracked writes key and, in the same MULTI/EXEC, adds member to set
// when tracked is true or removes it otherwise.
func (c *RedisClient) SetTracked(ctx context.Context, key string, value any, ttl time.Duration, set, member string, tracked bool) error {
	_, err := c.raw.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, c.key(key), value, ttl)
		if tracked {
			pipe.SAdd(ctx, c.key(set), member)
		} else {
			pipe.SRem(ctx, c.key(set), member)
		}
		return nil
	})
	return err
}

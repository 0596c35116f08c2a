package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

type Client = goredis.Client

// Nil is the reply error for missing keys.
const Nil = goredis.Nil

const defaultPingTimeout = 5 * time.Second

type ConnectionInfo struct {
	Addr        string
	Password    string
	DB          int
	MaxRetries  int
	DialTimeout time.Duration
	Timeout     time.Duration
	PoolSize    int
}

func (i ConnectionInfo) options() *goredis.Options {
	return &goredis.Options{
		Addr:         i.Addr,
		Password:     i.Password,
		DB:           i.DB,
		MaxRetries:   i.MaxRetries,
		DialTimeout:  i.DialTimeout,
		ReadTimeout:  i.Timeout,
		WriteTimeout: i.Timeout,
		PoolSize:     i.PoolSize,
	}
}

// NewRedisConnection dials and pings the server; the client is closed
// again when the ping fails.
func NewRedisConnection(info ConnectionInfo) (*Client, error) {
	rdb := goredis.NewClient(info.options())

	timeout := info.Timeout
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", info.Addr, err)
	}

	return rdb, nil
}

func Close(c *Client) {
	if c != nil {
		_ = c.Close()
	}
}

package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTimeouts are the client defaults used when the URL does not set them.
var RedisTimeouts = struct {
	Dial  time.Duration
	Read  time.Duration
	Write time.Duration
}{
	Dial:  2 * time.Second,
	Read:  500 * time.Millisecond,
	Write: 500 * time.Millisecond,
}

// NewRedisClient configures a Redis client and verifies connectivity.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, errors.New("redis url is required")
	}

	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opt.DialTimeout == 0 {
		opt.DialTimeout = RedisTimeouts.Dial
	}
	if opt.ReadTimeout == 0 {
		opt.ReadTimeout = RedisTimeouts.Read
	}
	if opt.WriteTimeout == 0 {
		opt.WriteTimeout = RedisTimeouts.Write
	}
	opt.ContextTimeoutEnabled = true

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opt.Addr, err)
	}
	return client, nil
}

// Package redis wraps go-redis with the key layout and small helpers the API,
// workers and cron share.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cribnosh/cribnosh-backend/pkg/config"
	"github.com/cribnosh/cribnosh-backend/pkg/logger"
	"github.com/redis/go-redis/v9"
)

var errNoConnection = errors.New("redis: client has no connection")

// commands is the subset of go-redis used here; tests swap in a fake.
type commands interface {
	Ping(context.Context) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	SetNX(context.Context, string, any, time.Duration) *redis.BoolCmd
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
	Incr(context.Context, string) *redis.IntCmd
	Expire(context.Context, string, time.Duration) *redis.BoolCmd
	Del(context.Context, ...string) *redis.IntCmd
	Exists(context.Context, ...string) *redis.IntCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// Client is the shared Redis handle.
type Client struct {
	cmd  commands
	conn *redis.Client
	now  func() time.Time
}

// IdempotencyStore is what the HTTP and consumer idempotency layers need.
type IdempotencyStore interface {
	Get(context.Context, string) (string, error)
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	Del(context.Context, ...string) error
	IdempotencyKey(scope, id string) string
}

// New connects and pings before returning.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := options(cfg)
	if err != nil {
		return nil, err
	}
	conn := redis.NewClient(opts)
	if err := conn.Ping(ctx).Err(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "redis_db", opts.DB), "redis connected")
	}
	return &Client{cmd: conn, conn: conn, now: time.Now}, nil
}

// options prefers the URL and lets config fill whatever the URL left unset.
func options(cfg config.RedisConfig) (*redis.Options, error) {
	opts := &redis.Options{Addr: cfg.Address, Password: cfg.Password}
	switch {
	case cfg.URL != "":
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	case cfg.Address == "":
		return nil, errors.New("redis url or address is required")
	}

	fill := func(dst *int, v int) {
		if *dst == 0 {
			*dst = v
		}
	}
	fillDur := func(dst *time.Duration, v time.Duration) {
		if *dst == 0 {
			*dst = v
		}
	}
	fill(&opts.DB, cfg.DB)
	fill(&opts.PoolSize, cfg.PoolSize)
	fill(&opts.MinIdleConns, cfg.MinIdleConns)
	fillDur(&opts.DialTimeout, cfg.DialTimeout)
	fillDur(&opts.ReadTimeout, cfg.ReadTimeout)
	fillDur(&opts.WriteTimeout, cfg.WriteTimeout)
	return opts, nil
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if c.cmd == nil {
		return "", errNoConnection
	}
	return c.cmd.Get(ctx, key).Result()
}

func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if c.cmd == nil {
		return false, errNoConnection
	}
	return c.cmd.SetNX(ctx, key, value, ttl).Result()
}

func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if c.cmd == nil {
		return errNoConnection
	}
	return c.cmd.Set(ctx, key, value, ttl).Err()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	if c.cmd == nil {
		return errNoConnection
	}
	return c.cmd.Del(ctx, keys...).Err()
}

// compareAndDelete removes KEYS[1] only while it still holds ARGV[1].
const compareAndDelete = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) end return 0`

// DeleteIfEquals atomically deletes key when its value is want and reports
// whether it did.
func (c *Client) DeleteIfEquals(ctx context.Context, key, want string) (bool, error) {
	if c.cmd == nil {
		return false, errNoConnection
	}
	n, err := c.cmd.Eval(ctx, compareAndDelete, []string{key}, want).Int64()
	return n > 0, err
}

func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	if c.cmd == nil {
		return false, errNoConnection
	}
	n, err := c.cmd.Exists(ctx, key).Result()
	return n > 0, err
}

func (c *Client) Ping(ctx context.Context) error {
	if c.cmd == nil {
		return errNoConnection
	}
	return c.cmd.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// FixedWindowAllow counts a hit against scope in the current window. Windows
// are aligned to multiples of window, so every instance shares one counter.
func (c *Client) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	if c.cmd == nil {
		return false, 0, errNoConnection
	}
	if window <= 0 {
		return false, 0, fmt.Errorf("rate limit window must be positive")
	}
	now := time.Now
	if c.now != nil {
		now = c.now
	}
	bucket := now().UnixNano() / int64(window)
	key := c.RateLimitKey(scope, strconv.FormatInt(bucket, 10))

	count, err := c.cmd.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, err
	}
	if count == 1 {
		if err := c.cmd.Expire(ctx, key, window).Err(); err != nil {
			return true, count, fmt.Errorf("expire %s: %w", key, err)
		}
	}
	return count <= limit, count, nil
}

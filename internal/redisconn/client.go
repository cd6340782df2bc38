package redisconn

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrKeyNotFound is returned by Client.Get when the key does not exist in the
// backend. Callers must treat it as a cache miss, not a backend failure.
var ErrKeyNotFound = errors.New("redisconn: key not found")

// Client is the narrow view of the distributed backend the cache layer needs.
// It exists so the Manager can be exercised against fakes in tests and so the
// rest of the module never touches the go-redis API directly.
type Client interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	ScanKeys(ctx context.Context, pattern string) ([]string, error)
	DBSize(ctx context.Context) (int64, error)
	FlushDB(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Dialer opens a connection to the distributed backend. The default dialer
// uses go-redis; tests inject fakes.
type Dialer func(ctx context.Context, cfg Config) (Client, error)

// DefaultDialer dials a single-connection go-redis client. The pool is pinned
// to one connection because every process in the fleet shares the same small
// backend connection budget; the Manager, not go-redis, owns retry policy.
func DefaultDialer(ctx context.Context, cfg Config) (Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.CommandTimeout,
		WriteTimeout: cfg.CommandTimeout,
		MaxRetries:   -1,
		PoolSize:     1,
		MinIdleConns: 0,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}

	return &goRedisClient{rdb: rdb}, nil
}

// goRedisClient adapts *redis.Client to the Client interface.
type goRedisClient struct {
	rdb *redis.Client
}

func (c *goRedisClient) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return data, nil
}

func (c *goRedisClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *goRedisClient) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *goRedisClient) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := c.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

func (c *goRedisClient) DBSize(ctx context.Context) (int64, error) {
	return c.rdb.DBSize(ctx).Result()
}

func (c *goRedisClient) FlushDB(ctx context.Context) error {
	return c.rdb.FlushDB(ctx).Err()
}

func (c *goRedisClient) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *goRedisClient) Close() error {
	return c.rdb.Close()
}

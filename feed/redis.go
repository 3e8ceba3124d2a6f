package feed

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rustyeddy/backtester/market"
)

type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	TLSEnabled bool
	Prefix     string
	TTL        time.Duration
}

// kv is the slice of the go-redis API the cache uses.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// RedisCache stores series as JSON strings under Prefix+key with an
// optional TTL, so several workers can share fetched history.
type RedisCache struct {
	rdb    kv
	closer func() error
	prefix string
	ttl    time.Duration
}

// NewRedisCache connects and pings the server.
func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	c := newRedisCache(rdb, cfg.Prefix, cfg.TTL)
	c.closer = rdb.Close
	return c, nil
}

func newRedisCache(rdb kv, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "candles:"
	}
	return &RedisCache{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

func (c *RedisCache) Get(ctx context.Context, key string) (market.Series, bool, error) {
	b, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return market.Series{}, false, nil
	}
	if err != nil {
		return market.Series{}, false, fmt.Errorf("redis: get %s: %w", key, err)
	}
	var cs []market.Candle
	if err := json.Unmarshal(b, &cs); err != nil {
		return market.Series{}, false, fmt.Errorf("redis: decode %s: %w", key, err)
	}
	return market.Series{Candles: cs}, true, nil
}

func (c *RedisCache) Put(ctx context.Context, key string, s market.Series) error {
	b, err := json.Marshal(s.Candles)
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, c.prefix+key, b, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}

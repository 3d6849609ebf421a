// Package redis provides a Redis-backed certificate.Cache.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/jmcleod/ironcert/certificate"
)

const defaultKeyPrefix = "ironcert:certificate:"

// Cache stores certificates as JSON strings with a TTL.
type Cache struct {
	client goredis.UniversalClient
	ttl    time.Duration
	prefix string
}

var _ certificate.Cache = (*Cache)(nil)

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithKeyPrefix overrides the key namespace. Default: "ironcert:certificate:".
func WithKeyPrefix(prefix string) CacheOption {
	return func(c *Cache) {
		c.prefix = prefix
	}
}

// NewCache wraps client. A non-positive ttl stores keys without expiry.
func NewCache(client goredis.UniversalClient, ttl time.Duration, opts ...CacheOption) *Cache {
	c := &Cache{client: client, ttl: ttl, prefix: defaultKeyPrefix}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewCacheFromAddr connects to the Redis server at addr and verifies the
// connection with PING.
func NewCacheFromAddr(ctx context.Context, addr, password string, db int, ttl time.Duration) (*Cache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return NewCache(client, ttl), nil
}

// Close closes the underlying client.
func (c *Cache) Close() error {
	return c.client.Close()
}

func (c *Cache) key(id int64) string {
	return fmt.Sprintf("%s%d", c.prefix, id)
}

func (c *Cache) Get(ctx context.Context, id int64) (*certificate.Certificate, bool, error) {
	data, err := c.client.Get(ctx, c.key(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var cert certificate.Certificate
	if err := json.Unmarshal(data, &cert); err != nil {
		return nil, false, fmt.Errorf("decoding cached certificate %d: %w", id, err)
	}
	return &cert, true, nil
}

func (c *Cache) Put(ctx context.Context, cert *certificate.Certificate) error {
	data, err := json.Marshal(cert)
	if err != nil {
		return err
	}
	ttl := c.ttl
	if ttl < 0 {
		ttl = 0
	}
	return c.client.Set(ctx, c.key(cert.ID), data, ttl).Err()
}

func (c *Cache) Invalidate(ctx context.Context, id int64) error {
	return c.client.Del(ctx, c.key(id)).Err()
}

// Package valkey provides a Valkey/Redis cache driver.
package valkey

import (
	"context"
	"time"

	"github.com/mitchellh/mapstructure"
	valkeygo "github.com/valkey-io/valkey-go"

	"github.com/Saivel1/panelsync/internal/cache"
)

func init() {
	cache.RegisterDriver("valkey", func(config map[string]any) (cache.Cache, error) {
		opts := driverOptions{
			Addr:              "localhost:6379",
			DefaultTTLSeconds: 900,
		}
		if config != nil {
			if err := mapstructure.Decode(config, &opts); err != nil {
				return nil, err
			}
		}

		return New(opts)
	})
}

// driverOptions holds the [cache.drivers.valkey] config section.
type driverOptions struct {
	Addr              string `mapstructure:"addr"`
	Password          string `mapstructure:"password"`
	DB                int    `mapstructure:"db"`
	DefaultTTLSeconds int    `mapstructure:"default_ttl_seconds"`
}

// Cache is a Valkey-backed cache. SetNX maps to SET NX EX, so the
// check-and-set is atomic on the server.
type Cache struct {
	client     valkeygo.Client
	defaultTTL time.Duration
}

// New connects to the configured Valkey server.
// Server-assisted client caching is disabled; dedup keys are written once
// and read rarely, so there is nothing worth tracking client-side.
func New(opts driverOptions) (*Cache, error) {
	client, err := valkeygo.NewClient(valkeygo.ClientOption{
		InitAddress:  []string{opts.Addr},
		Password:     opts.Password,
		SelectDB:     opts.DB,
		DisableCache: true,
	})
	if err != nil {
		return nil, err
	}

	return &Cache{
		client:     client,
		defaultTTL: time.Duration(opts.DefaultTTLSeconds) * time.Second,
	}, nil
}

// Get retrieves a value by key.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := c.client.Do(ctx, c.client.B().Get().Key(key).Build()).AsBytes()
	if err != nil {
		if valkeygo.IsValkeyNil(err) {
			return nil, cache.ErrNotFound
		}
		return nil, err
	}
	return value, nil
}

// Set stores a value with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	cmd := c.client.B().Set().
		Key(key).
		Value(valkeygo.BinaryString(value)).
		ExSeconds(c.ttlSeconds(ttl)).
		Build()
	return c.client.Do(ctx, cmd).Error()
}

// SetNX stores a value with the given TTL only if the key is absent.
func (c *Cache) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	cmd := c.client.B().Set().
		Key(key).
		Value(valkeygo.BinaryString(value)).
		Nx().
		ExSeconds(c.ttlSeconds(ttl)).
		Build()

	err := c.client.Do(ctx, cmd).Error()
	if err != nil {
		// SET NX replies nil when the key already holds a value.
		if valkeygo.IsValkeyNil(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete removes a key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Do(ctx, c.client.B().Del().Key(key).Build()).Error()
}

// Exists checks if a key exists.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Do(ctx, c.client.B().Exists().Key(key).Build()).AsInt64()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Close releases the client connection pool.
func (c *Cache) Close() error {
	c.client.Close()
	return nil
}

func (c *Cache) ttlSeconds(ttl time.Duration) int64 {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	seconds := int64(ttl / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}

// Ensure Cache implements cache.Cache.
var _ cache.Cache = (*Cache)(nil)

package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-pricing/internal/lock"
)

// Cache wraps Redis helpers for JSON payloads.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a cache helper. A nil client yields a no-op cache.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// GetJSON unmarshals a cached JSON payload into dst. It reports whether the key existed.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if c == nil || c.client == nil || key == "" {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON serialises v as JSON and stores it with the configured TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) error {
	if c == nil || c.client == nil || key == "" {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// CachedLoader serves catalog data from Redis, falling back to Source on a
// miss and populating the cache afterwards. Cache failures degrade to the
// source rather than failing the load. With Lock set, concurrent misses across
// processes refill the cache once.
type CachedLoader struct {
	Source Loader
	Cache  *Cache
	Key    string
	Lock   *lock.Locker
	Logger *zerolog.Logger
}

// Load implements Loader.
func (l CachedLoader) Load(ctx context.Context) (Data, error) {
	if l.Source == nil {
		return Data{}, errors.New("catalog: cached loader has no source")
	}
	if data, ok := l.cached(ctx); ok {
		return data, nil
	}
	if l.Lock == nil {
		return l.refill(ctx)
	}
	var data Data
	err := l.Lock.WithLock(ctx, l.Key+":refill", 30*time.Second, func(ctx context.Context) error {
		if hit, ok := l.cached(ctx); ok {
			data = hit
			return nil
		}
		var err error
		data, err = l.refill(ctx)
		return err
	})
	if err != nil {
		if errors.Is(err, lock.ErrNotConfigured) {
			return l.refill(ctx)
		}
		return Data{}, err
	}
	return data, nil
}

func (l CachedLoader) cached(ctx context.Context) (Data, bool) {
	var data Data
	hit, err := l.Cache.GetJSON(ctx, l.Key, &data)
	if err != nil {
		l.warn(err, "catalog cache read failed")
		return Data{}, false
	}
	return data, hit
}

// refill loads from Source and caches the validated, normalised form so every
// process reads the same ordering. Invalid source data is never cached.
func (l CachedLoader) refill(ctx context.Context) (Data, error) {
	raw, err := l.Source.Load(ctx)
	if err != nil {
		return Data{}, err
	}
	snap, err := NewSnapshot(raw)
	if err != nil {
		return Data{}, err
	}
	data := snap.Data()
	if err := l.Cache.SetJSON(ctx, l.Key, data); err != nil {
		l.warn(err, "catalog cache write failed")
	}
	return data, nil
}

func (l CachedLoader) warn(err error, msg string) {
	if l.Logger == nil {
		return
	}
	l.Logger.Warn().Err(err).Str("key", l.Key).Msg(msg)
}

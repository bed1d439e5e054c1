package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	cacheVersionKey = "reports:version"
	// BumpChannel carries the new cache version after a ledger write.
	BumpChannel = "ledger.bump"
)

// CacheObserver counts cache lookups per report kind.
type CacheObserver interface {
	CacheHit(kind string)
	CacheMiss(kind string)
}

// Cache stores rendered reports in Redis under a global version that every
// committed posting bumps. Identical concurrent misses share one build.
type Cache struct {
	client   *redis.Client
	ttl      time.Duration
	group    singleflight.Group
	observer CacheObserver
	logger   *slog.Logger
}

// NewCache instantiates the cache helper. A nil client disables storage but
// keeps request coalescing.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl, logger: slog.Default()}
}

// WithObserver attaches hit/miss instrumentation.
func (c *Cache) WithObserver(o CacheObserver) *Cache {
	c.observer = o
	return c
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, cacheVersionKey).Int64()
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := c.client.Set(ctx, cacheVersionKey, ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

// BuildKey composes the cache key with the current version.
func (c *Cache) BuildKey(ctx context.Context, parts ...string) (string, error) {
	joined := strings.Join(parts, ":")
	if c == nil || c.client == nil {
		return joined, nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:v%d", joined, ver), nil
}

// Bump invalidates every cached report by incrementing the version and
// publishing it.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, BumpChannel, strconv.FormatInt(ver, 10)).Err()
}

// ListenForInvalidation follows version bumps published by other processes
// until ctx ends.
func (c *Cache) ListenForInvalidation(ctx context.Context, channel string) error {
	if c == nil || c.client == nil {
		return nil
	}
	if channel == "" {
		channel = BumpChannel
	}
	pubsub := c.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if ver, err := strconv.ParseInt(msg.Payload, 10, 64); err == nil && ver > 0 {
					cur, err := c.client.Get(ctx, cacheVersionKey).Int64()
					if err != nil || cur < ver {
						_ = c.client.Set(ctx, cacheVersionKey, ver, 0).Err()
					}
					continue
				}
				_ = c.client.Incr(ctx, cacheVersionKey).Err()
			}
		}
	}()
	return nil
}

// fetch loads a cached report or builds and stores it. Concurrent callers of
// the same key wait for a single build. An empty key or a Redis failure falls
// back to building from the ledger.
func fetch[T Report](ctx context.Context, c *Cache, kind Kind, key string, build func(context.Context) (T, error)) (T, error) {
	var zero T
	if c == nil || key == "" {
		return build(ctx)
	}
	store := c.client != nil
	if store {
		payload, err := c.client.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			var out T
			if err := json.Unmarshal(payload, &out); err == nil {
				c.hit(kind)
				return out, nil
			}
		case !errors.Is(err, redis.Nil):
			c.logger.Warn("report cache read failed, building uncached", slog.String("kind", string(kind)), slog.Any("error", err))
			store = false
		}
	}
	c.miss(kind)
	v, err, _ := c.group.Do(key, func() (any, error) {
		report, err := build(ctx)
		if err != nil {
			return nil, err
		}
		if store {
			raw, err := json.Marshal(report)
			if err != nil {
				return nil, err
			}
			if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
				c.logger.Warn("report cache write failed", slog.String("kind", string(kind)), slog.Any("error", err))
			}
		}
		return report, nil
	})
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}

func (c *Cache) hit(kind Kind) {
	if c.observer != nil {
		c.observer.CacheHit(string(kind))
	}
}

func (c *Cache) miss(kind Kind) {
	if c.observer != nil {
		c.observer.CacheMiss(string(kind))
	}
}

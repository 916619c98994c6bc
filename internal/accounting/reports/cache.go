package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	versionKeyPrefix = "ledger:reports:version:"
	buildTimeout     = time.Minute
)

// CacheObserver receives hit and miss notifications.
type CacheObserver interface {
	CacheHit(report string)
	CacheMiss(report string)
}

// Cache stores rendered reports in Redis under a per-institution version.
// Bumping the version makes every older key unreachable; they expire by TTL.
type Cache struct {
	client   *redis.Client
	ttl      time.Duration
	group    singleflight.Group
	observer CacheObserver
}

// NewCache instantiates the cache helper. A nil client disables caching but
// still coalesces concurrent builds.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

// WithObserver attaches hit/miss accounting.
func (c *Cache) WithObserver(o CacheObserver) *Cache {
	c.observer = o
	return c
}

// Version returns the institution's cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context, institutionID string) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	key := versionKeyPrefix + institutionID
	ver, err := c.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, key, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, key).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// BuildKey composes the cache key with the institution's current version.
func (c *Cache) BuildKey(ctx context.Context, institutionID string, parts ...string) (string, error) {
	ver, err := c.Version(ctx, institutionID)
	if err != nil {
		return "", err
	}
	joined := strings.Join(append([]string{"ledger:reports", institutionID}, parts...), ":")
	return fmt.Sprintf("%s:v%d", joined, ver), nil
}

// FetchJSON loads a cached value into dest or builds it with loader. Callers
// asking for the same key at the same time share one build. Redis failures
// fall back to building without the cache.
func (c *Cache) FetchJSON(ctx context.Context, report, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("reports cache: loader required")
	}
	if c != nil && c.client != nil {
		payload, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			c.hit(report)
			return json.Unmarshal(payload, dest)
		}
		if !errors.Is(err, redis.Nil) {
			return c.build(ctx, report, key, dest, loader, false)
		}
	}
	c.miss(report)
	return c.build(ctx, report, key, dest, loader, c != nil && c.client != nil)
}

func (c *Cache) build(ctx context.Context, report, key string, dest any, loader func(context.Context) (any, error), store bool) error {
	fn := func(ctx context.Context) ([]byte, error) {
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		if store {
			_ = c.client.Set(ctx, key, raw, c.ttl).Err()
		}
		return raw, nil
	}
	var (
		raw []byte
		err error
	)
	if c == nil {
		raw, err = fn(ctx)
	} else {
		// Waiters share one build; a caller that leaves does not cancel it.
		ch := c.group.DoChan(key, func() (any, error) {
			buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), buildTimeout)
			defer cancel()
			return fn(buildCtx)
		})
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				return res.Err
			}
			raw = res.Val.([]byte)
		}
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// Bump invalidates an institution's cached reports by incrementing its
// version. Keys built under older versions are never read again.
func (c *Cache) Bump(ctx context.Context, institutionID string) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, versionKeyPrefix+institutionID).Err()
}

func (c *Cache) hit(report string) {
	if c != nil && c.observer != nil {
		c.observer.CacheHit(report)
	}
}

func (c *Cache) miss(report string) {
	if c != nil && c.observer != nil {
		c.observer.CacheMiss(report)
	}
}

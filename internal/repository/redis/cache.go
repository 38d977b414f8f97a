package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Cache is a read-through JSON cache. Concurrent misses for one key share a
// single load. A load only fills the cache if the key's version did not change
// while it ran, so an invalidation is never undone by a slower read.
type Cache struct {
	rdb   *redis.Client
	loads singleflight.Group
}

func New(client *redis.Client) *Cache {
	return &Cache{rdb: client}
}

// lookup decodes the value under key into dst. It reports false on a miss.
func (c *Cache) lookup(ctx context.Context, key string, dst any) (bool, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil
	case err != nil:
		return false, err
	}

	if err := json.Unmarshal(b, dst); err != nil {
		// undecodable values count as a miss
		return false, nil
	}

	return true, nil
}

var errStale = errors.New("cache: version changed during load")

// versionTTL outlives any load; an expired version reads as "" again.
const versionTTL = 24 * time.Hour

func (c *Cache) version(ctx context.Context, versionKey string) (string, error) {
	v, err := c.rdb.Get(ctx, versionKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

// store writes v under key unless versionKey no longer holds version.
func (c *Cache) store(ctx context.Context, key string, v any, ttl time.Duration, versionKey, version string) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	err = c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, versionKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != version {
			return errStale
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, b, ttl)
			return nil
		})
		return err
	}, versionKey)
	if errors.Is(err, errStale) || errors.Is(err, redis.TxFailedErr) {
		return nil
	}

	return err
}

// invalidate drops key and bumps its version in one transaction.
func (c *Cache) invalidate(ctx context.Context, key, versionKey string) error {
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, versionKey)
		p.Expire(ctx, versionKey, versionTTL)
		p.Del(ctx, key)
		return nil
	})
	return err
}

// getOrLoad returns the cached value under key, calling load and caching its
// result for ttl on a miss. A failed cache write does not fail the call.
func getOrLoad[T any](
	ctx context.Context,
	c *Cache,
	key, versionKey string,
	ttl time.Duration,
	load func(ctx context.Context) (T, error),
) (T, error) {
	var v T
	if ok, err := c.lookup(ctx, key, &v); err != nil || ok {
		return v, err
	}

	res, err, _ := c.loads.Do(key, func() (any, error) {
		var cached T
		if ok, err := c.lookup(ctx, key, &cached); err != nil || ok {
			return cached, err
		}

		version, err := c.version(ctx, versionKey)
		if err != nil {
			return nil, err
		}

		fresh, err := load(ctx)
		if err != nil {
			return nil, err
		}

		_ = c.store(ctx, key, fresh, ttl, versionKey, version)
		return fresh, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	out, ok := res.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("cache: unexpected value type %T for %s", res, key)
	}

	return out, nil
}

// ShowAvailableCount returns the cached free-seat count of a show, loading and
// caching it for ttl on a miss. Concurrent misses for one show share a single load.
func (c *Cache) ShowAvailableCount(
	ctx context.Context,
	showID int64,
	ttl time.Duration,
	load func(ctx context.Context) (int, error),
) (int, error) {
	return getOrLoad(ctx, c, KeyShowAvailable(showID), KeyShowVersion(showID), ttl, load)
}

// InvalidateShow drops everything cached about a show.
func (c *Cache) InvalidateShow(ctx context.Context, showID int64) error {
	return c.invalidate(ctx, KeyShowAvailable(showID), KeyShowVersion(showID))
}

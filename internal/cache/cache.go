// Package cache is the read-through cache that sits in front of read queries.
//
// READ-THROUGH:
// Callers never talk to the store directly. They ask GetOrLoad for a key and
// pass the query that produces the value:
//
//	movies, err := cache.GetOrLoad(ctx, rt, cache.MoviesKey(), func(ctx context.Context) ([]model.Movie, error) {
//	    return repo.ListMovies(ctx)
//	})
//
// On a hit the stored JSON is decoded and returned. On a miss the loader runs,
// its result is stored with the configured TTL, and returned.
//
// CORRECTNESS NEVER DEPENDS ON THE CACHE:
//   - A store error is logged and treated as a miss; the loader still runs.
//   - Every write path evicts the keys it could have made stale. The TTL only
//     bounds memory, it is not how mutated data expires.
//   - A load that overlaps an eviction does not store its result, so a slow
//     read cannot put pre-write data back after the write evicted it.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long a loaded result stays cached when nothing evicts it.
const DefaultTTL = 5 * time.Minute

// Store is the key/value backend: Memory for a single process, Redis when
// several server instances must share evictions.
type Store interface {
	// Get returns (nil, false, nil) on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// ReadThrough wraps a Store with load-on-miss and eviction helpers.
type ReadThrough struct {
	store  Store
	ttl    time.Duration
	logger *slog.Logger

	// WHY SINGLEFLIGHT?
	// When a popular key (the movie catalog, the user list) is evicted, every
	// request that arrives before it is reloaded would run the same query.
	// singleflight lets the first caller run it and hands the result to the rest.
	group singleflight.Group

	// generation increases on every eviction. A loader that saw a different
	// generation when it started does not write its result back.
	generation atomic.Uint64
}

// New returns a ReadThrough over store. A non-positive ttl uses DefaultTTL.
func New(store Store, ttl time.Duration, logger *slog.Logger) *ReadThrough {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ReadThrough{store: store, ttl: ttl, logger: logger}
}

// GetOrLoad returns the cached value for key, or runs load and caches its result.
//
// It is a function rather than a method because Go methods cannot have type
// parameters.
func GetOrLoad[T any](ctx context.Context, rt *ReadThrough, key string, load func(context.Context) (T, error)) (T, error) {
	var zero T

	if data, ok := rt.lookup(ctx, key); ok {
		var v T
		if err := json.Unmarshal(data, &v); err == nil {
			return v, nil
		}
		// A value written by an older build may not decode; reload it.
		rt.logger.Warn("cache: discarding undecodable entry", slog.String("key", key))
	}

	gen := rt.generation.Load()
	shared, err, _ := rt.group.Do(key, func() (any, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("cache: encoding %s: %w", key, err)
		}
		if rt.generation.Load() == gen {
			if err := rt.store.Set(ctx, key, data, rt.ttl); err != nil {
				rt.logger.Warn("cache: set failed", slog.String("key", key), slog.String("error", err.Error()))
			}
		}
		return data, nil
	})
	if err != nil {
		return zero, err
	}

	// Every caller decodes its own copy, so callers sharing one load cannot
	// mutate each other's slices.
	var v T
	if err := json.Unmarshal(shared.([]byte), &v); err != nil {
		return zero, fmt.Errorf("cache: decoding %s: %w", key, err)
	}
	return v, nil
}

func (rt *ReadThrough) lookup(ctx context.Context, key string) ([]byte, bool) {
	data, ok, err := rt.store.Get(ctx, key)
	if err != nil {
		rt.logger.Warn("cache: get failed, falling back to the database",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	return data, ok
}

// Invalidate evicts the given keys. Errors are logged, not returned: the
// write that triggered the eviction has already committed.
func (rt *ReadThrough) Invalidate(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	rt.generation.Add(1)
	for _, k := range keys {
		rt.group.Forget(k)
	}
	if err := rt.store.Delete(ctx, keys...); err != nil {
		rt.logger.Error("cache: invalidation failed",
			slog.Any("keys", keys),
			slog.String("error", err.Error()),
		)
	}
}

// InvalidatePrefix evicts every key starting with prefix.
func (rt *ReadThrough) InvalidatePrefix(ctx context.Context, prefix string) {
	rt.generation.Add(1)
	if err := rt.store.DeletePrefix(ctx, prefix); err != nil {
		rt.logger.Error("cache: prefix invalidation failed",
			slog.String("prefix", prefix),
			slog.String("error", err.Error()),
		)
	}
}

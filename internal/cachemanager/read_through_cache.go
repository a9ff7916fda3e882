package cachemanager

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/zjrosen/kiln/internal/log"
)

// ReadThroughCache computes V on a miss and stores its YAML encoding under the
// requested key. A miss returns the decoded encoding rather than the computed
// value, so a first read and a cached read see the same scalar types. A failed
// cache write is logged and the value is still returned.
type ReadThroughCache[V any] struct {
	store           Store
	fn              func(ctx context.Context) (V, error)
	shouldSkipCache bool
}

func NewReadThroughCache[V any](
	store Store,
	fn func(ctx context.Context) (V, error),
	shouldSkipCache bool,
) *ReadThroughCache[V] {
	return &ReadThroughCache[V]{
		store:           store,
		fn:              fn,
		shouldSkipCache: shouldSkipCache,
	}
}

func (r *ReadThroughCache[V]) Get(ctx context.Context, key string) (V, error) {
	if r.shouldSkipCache {
		return r.fn(ctx)
	}

	if value, ok := Load[V](ctx, r.store, key); ok {
		return value, nil
	}

	value, err := r.fn(ctx)
	if err != nil {
		return value, err
	}

	stored, err := Put(ctx, r.store, key, value)
	if err != nil {
		log.ErrorErr(log.CatCache, "Failed to cache value", err, "key", key)
	}
	return stored, nil
}

// Load decodes the entry under key. A decode failure is logged and reported
// as a miss so the caller recomputes.
func Load[V any](ctx context.Context, store Store, key string) (V, bool) {
	var value V
	data, ok := store.Get(ctx, key)
	if !ok {
		return value, false
	}
	if err := yaml.Unmarshal(data, &value); err != nil {
		log.ErrorErr(log.CatCache, "Discarding undecodable cache entry", err, "key", key)
		var zero V
		return zero, false
	}
	return value, true
}

// Save encodes value and stores it under key.
func Save[V any](ctx context.Context, store Store, key string, value V) error {
	_, err := Put(ctx, store, key, value)
	return err
}

// Put stores value under key and returns it in the form Load would return
// it (a float such as 1.0 comes back as the int 1). The decoded form is
// returned even when the write fails; an encoding failure returns value as is.
func Put[V any](ctx context.Context, store Store, key string, value V) (V, error) {
	data, err := yaml.Marshal(value)
	if err != nil {
		return value, fmt.Errorf("encoding cache entry %s: %w", key, err)
	}

	decoded := value
	var out V
	if err := yaml.Unmarshal(data, &out); err != nil {
		log.ErrorErr(log.CatCache, "Cache entry does not decode", err, "key", key)
	} else {
		decoded = out
	}

	if err := store.Set(ctx, key, data); err != nil {
		return decoded, fmt.Errorf("writing cache entry %s: %w", key, err)
	}
	return decoded, nil
}

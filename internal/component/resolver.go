package component

import (
	"context"
	"fmt"

	"github.com/zjrosen/kiln/internal/log"
	"github.com/zjrosen/kiln/internal/manifest"
)

// Ref is a resolved, not yet instantiated component.
type Ref struct {
	Key      string
	Factory  string
	Defaults Args
	build    Factory
}

// Build constructs an instance with args layered over the ref defaults.
func (r *Ref) Build(ctx context.Context, args Args) (any, error) {
	instance, err := r.build(ctx, mergeArgs(r.Defaults, args))
	if err != nil {
		return nil, fmt.Errorf("building %s (%s): %w", r.Key, r.Factory, err)
	}
	return instance, nil
}

// InitFunc runs once on a freshly built instance before it is cached.
type InitFunc func(ctx context.Context, instance any) error

// Resolver looks components up in a registry tree.
type Resolver struct {
	catalog *Catalog
}

// NewResolver creates a resolver over catalog.
func NewResolver(catalog *Catalog) *Resolver {
	return &Resolver{catalog: catalog}
}

// Catalog returns the factory catalog.
func (r *Resolver) Catalog() *Catalog { return r.catalog }

// Resolve returns the ref for key. A ref already in scope is returned as
// is; otherwise the entry is read from registry, its defaults merged with
// the caller's (caller wins), and the result stored in scope. A nil scope
// disables caching.
func (r *Resolver) Resolve(key string, registry map[string]any, scope *Scope, defaults Args) (*Ref, error) {
	if ref, ok := scope.ref(key); ok {
		return ref, nil
	}

	raw, ok := manifest.GetByPath(registry, key)
	if !ok || key == "" {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	entry, err := ParseEntry(key, raw)
	if err != nil {
		return nil, err
	}

	build, ok := r.catalog.Lookup(entry.Factory)
	if !ok {
		return nil, fmt.Errorf("%s: factory %q: %w", key, entry.Factory, ErrUnknownFactory)
	}

	ref := &Ref{
		Key:      key,
		Factory:  entry.Factory,
		Defaults: mergeArgs(entry.Defaults, defaults),
		build:    build,
	}
	scope.storeRef(key, ref)
	log.Debug(log.CatComponent, "Resolved component", "key", key, "factory", entry.Factory)
	return ref, nil
}

// Instance returns the instance for key, building it on a scope miss. The
// ref is resolved fresh (never from scope) so defaults reflect the current
// registry. initFn, when set, runs before the instance is cached.
func (r *Resolver) Instance(
	ctx context.Context,
	key string,
	registry map[string]any,
	args Args,
	scope *Scope,
	defaults Args,
	initFn InitFunc,
) (any, error) {
	if instance, ok := scope.instance(key); ok {
		return instance, nil
	}

	ref, err := r.Resolve(key, registry, nil, defaults)
	if err != nil {
		return nil, err
	}

	instance, err := ref.Build(ctx, args)
	if err != nil {
		return nil, err
	}
	if initFn != nil {
		if err := initFn(ctx, instance); err != nil {
			return nil, fmt.Errorf("initializing %s: %w", key, err)
		}
	}

	scope.storeInstance(key, instance)
	log.Debug(log.CatComponent, "Built component", "key", key, "factory", ref.Factory)
	return instance, nil
}

// As asserts instance to T.
func As[T any](key string, instance any) (T, error) {
	typed, ok := instance.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s is %T, want %T: %w", key, instance, zero, ErrWrongType)
	}
	return typed, nil
}

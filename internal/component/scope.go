package component

import (
	"context"

	"github.com/zjrosen/kiln/internal/cachemanager"
)

// Scope caches resolved refs and built instances by component key. Entries
// never expire; Flush drops them.
type Scope struct {
	name      string
	refs      *cachemanager.InMemoryCacheManager[string, *Ref]
	instances *cachemanager.InMemoryCacheManager[string, any]
}

// NewScope creates an empty scope.
func NewScope(name string) *Scope {
	return &Scope{
		name:      name,
		refs:      cachemanager.NewInMemoryCacheManager[string, *Ref](name+".refs", cachemanager.NoExpiration, cachemanager.DefaultCleanupInterval),
		instances: cachemanager.NewInMemoryCacheManager[string, any](name+".instances", cachemanager.NoExpiration, cachemanager.DefaultCleanupInterval),
	}
}

// Name returns the scope name.
func (s *Scope) Name() string { return s.name }

// Len returns the number of cached refs and instances.
func (s *Scope) Len() (refs, instances int) {
	return s.refs.ItemCount(), s.instances.ItemCount()
}

// Flush drops every cached ref and instance.
func (s *Scope) Flush() {
	ctx := context.Background()
	_ = s.refs.Flush(ctx)
	_ = s.instances.Flush(ctx)
}

func (s *Scope) ref(key string) (*Ref, bool) {
	if s == nil {
		return nil, false
	}
	return s.refs.Get(context.Background(), key)
}

func (s *Scope) storeRef(key string, ref *Ref) {
	if s != nil {
		s.refs.Set(context.Background(), key, ref, cachemanager.NoExpiration)
	}
}

func (s *Scope) instance(key string) (any, bool) {
	if s == nil {
		return nil, false
	}
	return s.instances.Get(context.Background(), key)
}

func (s *Scope) storeInstance(key string, instance any) {
	if s != nil {
		s.instances.Set(context.Background(), key, instance, cachemanager.NoExpiration)
	}
}

package cachemanager

import (
	"context"
	"slices"
)

// MemoryStore keeps entries in process memory for the lifetime of the store.
type MemoryStore struct {
	cache *InMemoryCacheManager[string, []byte]
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cache: NewInMemoryCacheManager[string, []byte]("derived-state", NoExpiration, DefaultCleanupInterval),
	}
}

func (s *MemoryStore) Has(ctx context.Context, key string) bool {
	_, ok := s.cache.Get(ctx, key)
	return ok
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool) {
	value, ok := s.cache.Get(ctx, key)
	if !ok {
		return nil, false
	}
	return slices.Clone(value), true
}

func (s *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	s.cache.Set(ctx, key, slices.Clone(value), NoExpiration)
	return nil
}

func (s *MemoryStore) Flush(ctx context.Context) error {
	return s.cache.Flush(ctx)
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	return s.cache.ItemCount()
}

func (s *MemoryStore) Close() error { return nil }

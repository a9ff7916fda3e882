package cachemanager

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type manifestData struct {
	Order     []string                  `yaml:"order"`
	Fragments map[string]map[string]any `yaml:"fragments"`
}

func TestReadThroughCache_ComputesOnceThenServesCache(t *testing.T) {
	store := NewMemoryStore()
	calls := 0
	rtc := NewReadThroughCache(store, func(ctx context.Context) (manifestData, error) {
		calls++
		return manifestData{
			Order:     []string{"core"},
			Fragments: map[string]map[string]any{"core": {"port": 80}},
		}, nil
	}, false)

	first, err := rtc.Get(context.Background(), "manifest")
	require.NoError(t, err)
	second, err := rtc.Get(context.Background(), "manifest")
	require.NoError(t, err)

	require.Equal(t, 1, calls)
	require.Equal(t, first, second, "yaml round trip keeps int scalars as int")
}

func TestReadThroughCache_SkipCache(t *testing.T) {
	store := NewMemoryStore()
	calls := 0
	rtc := NewReadThroughCache(store, func(ctx context.Context) (int, error) {
		calls++
		return calls, nil
	}, true)

	_, _ = rtc.Get(context.Background(), "hooks")
	got, err := rtc.Get(context.Background(), "hooks")
	require.NoError(t, err)
	require.Equal(t, 2, got)
	require.False(t, store.Has(context.Background(), "hooks"))
}

func TestReadThroughCache_ErrorIsNotCached(t *testing.T) {
	store := NewMemoryStore()
	rtc := NewReadThroughCache(store, func(ctx context.Context) (string, error) {
		return "", errors.New("compose failed")
	}, false)

	_, err := rtc.Get(context.Background(), "manifest")
	require.Error(t, err)
	require.False(t, store.Has(context.Background(), "manifest"))
}

func TestLoad_UndecodableEntryIsAMiss(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), "hooks", []byte("{not: [valid")))

	_, ok := Load[[]string](context.Background(), store, "hooks")
	require.False(t, ok)
}

// failingStore accepts reads but rejects every write.
type failingStore struct {
	*MemoryStore
	err error
}

func (s failingStore) Set(context.Context, string, []byte) error { return s.err }

func TestReadThroughCache_WriteFailureStillReturnsValue(t *testing.T) {
	store := failingStore{MemoryStore: NewMemoryStore(), err: errors.New("disk full")}
	calls := 0
	rtc := NewReadThroughCache[map[string]any](store, func(ctx context.Context) (map[string]any, error) {
		calls++
		return map[string]any{"port": 80}, nil
	}, false)

	got, err := rtc.Get(context.Background(), "manifest")
	require.NoError(t, err)
	require.Equal(t, map[string]any{"port": 80}, got)

	_, err = rtc.Get(context.Background(), "manifest")
	require.NoError(t, err)
	require.Equal(t, 2, calls, "nothing was cached, so the value is recomputed")
}

func TestReadThroughCache_MissMatchesCachedTypes(t *testing.T) {
	store := NewMemoryStore()
	rtc := NewReadThroughCache(store, func(ctx context.Context) (map[string]any, error) {
		return map[string]any{"ratio": 1.0, "scale": 0.5}, nil
	}, false)

	fresh, err := rtc.Get(context.Background(), "manifest")
	require.NoError(t, err)
	cached, err := rtc.Get(context.Background(), "manifest")
	require.NoError(t, err)

	require.Equal(t, cached, fresh)
	require.IsType(t, cached["ratio"], fresh["ratio"])
	require.InDelta(t, 0.5, fresh["scale"], 1e-9)
}

func TestPut_ReturnsDecodedFormOnWriteFailure(t *testing.T) {
	store := failingStore{MemoryStore: NewMemoryStore(), err: errors.New("read-only")}

	got, err := Put(context.Background(), store, "hooks", []any{1.0})
	require.ErrorContains(t, err, "read-only")
	require.Equal(t, []any{1}, got)
}

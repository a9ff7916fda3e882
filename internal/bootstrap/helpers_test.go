package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/kiln/internal/cachemanager"
	"github.com/zjrosen/kiln/internal/component"
	"github.com/zjrosen/kiln/internal/config"
	"github.com/zjrosen/kiln/internal/plugin"
	"github.com/zjrosen/kiln/internal/pubsub"
)

// env is an isolated kiln setup: one app plugin dir, a cache dir and a
// config file pointing at both.
type env struct {
	root       string
	pluginsDir string
	cacheDir   string
	configPath string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	root := t.TempDir()
	e := &env{
		root:       root,
		pluginsDir: filepath.Join(root, "plugins"),
		cacheDir:   filepath.Join(root, "cache"),
		configPath: filepath.Join(root, "config.yaml"),
	}
	require.NoError(t, os.MkdirAll(e.pluginsDir, 0o750))

	content := fmt.Sprintf(`core:
  cache_backend: memory
  cache_dir: %q
plugins:
  dirs:
    - path: %q
      type: app
`, e.cacheDir, e.pluginsDir)
	require.NoError(t, os.WriteFile(e.configPath, []byte(content), 0o600))
	return e
}

func (e *env) facade(t *testing.T) *config.Facade {
	t.Helper()
	f, err := config.Load(e.configPath)
	require.NoError(t, err)
	return f
}

func newBootstrap(t *testing.T, f ConfigFacade, opts ...Option) *Bootstrap {
	t.Helper()
	b, err := New(context.Background(), f, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

// countingSource counts Discover calls on the wrapped source.
type countingSource struct {
	plugin.Source
	discovers atomic.Int32
}

func (s *countingSource) Discover(ctx context.Context, dirs []plugin.Dir, opts plugin.DiscoverOptions) (plugin.Discovery, error) {
	s.discovers.Add(1)
	return s.Source.Discover(ctx, dirs, opts)
}

func countDiscovers(src plugin.Source) *countingSource {
	return &countingSource{Source: src}
}

// recordingStore logs writes and flushes in order.
type recordingStore struct {
	*cachemanager.MemoryStore
	mu  sync.Mutex
	ops []string
}

func newRecordingStore() *recordingStore {
	return &recordingStore{MemoryStore: cachemanager.NewMemoryStore()}
}

func (s *recordingStore) Set(ctx context.Context, key string, value []byte) error {
	s.record("set " + key)
	return s.MemoryStore.Set(ctx, key, value)
}

func (s *recordingStore) Flush(ctx context.Context) error {
	s.record("flush")
	return s.MemoryStore.Flush(ctx)
}

func (s *recordingStore) record(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, op)
}

func (s *recordingStore) Ops() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.ops)
}

func (s *recordingStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = nil
}

func (s *recordingStore) Flushes() int {
	return len(slices.DeleteFunc(s.Ops(), func(op string) bool { return op != "flush" }))
}

// failingStore serves reads but rejects every write, like a full disk.
type failingStore struct {
	*cachemanager.MemoryStore
}

func (failingStore) Set(context.Context, string, []byte) error {
	return errors.New("disk full")
}

// mockSource is a testify mock of plugin.Source.
type mockSource struct {
	mock.Mock
}

func (m *mockSource) Discover(ctx context.Context, dirs []plugin.Dir, opts plugin.DiscoverOptions) (plugin.Discovery, error) {
	args := m.Called(ctx, dirs, opts)
	return args.Get(0).(plugin.Discovery), args.Error(1)
}

func (m *mockSource) Fetch(ctx context.Context, name, dest string, opts plugin.FetchOptions) (*plugin.Plugin, error) {
	args := m.Called(ctx, name, dest, opts)
	p, _ := args.Get(0).(*plugin.Plugin)
	return p, args.Error(1)
}

type greeter struct {
	Greeting string
	Name     string
}

func testCatalog() *component.Catalog {
	c := component.NewCatalog()
	c.MustRegister("test.greeter", func(ctx context.Context, args component.Args) (any, error) {
		return &greeter{Greeting: args.String("greeting"), Name: args.String("name")}, nil
	})
	c.MustRegister("test.other", func(ctx context.Context, args component.Args) (any, error) {
		return &greeter{Greeting: "other"}, nil
	})
	c.MustRegister("test.counter", func(ctx context.Context, args component.Args) (any, error) {
		return new(atomic.Int32), nil
	})
	return c
}

func receive(t *testing.T, ch <-chan pubsub.Event[Event]) pubsub.Event[Event] {
	t.Helper()
	select {
	case evt, ok := <-ch:
		require.True(t, ok, "event channel closed")
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return pubsub.Event[Event]{}
	}
}

func configCore(caching bool, backend, dir string) config.CoreConfig {
	return config.CoreConfig{Caching: caching, CacheBackend: backend, CacheDir: dir}
}

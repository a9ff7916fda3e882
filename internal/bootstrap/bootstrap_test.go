package bootstrap

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/zjrosen/kiln/internal/cachemanager"
	"github.com/zjrosen/kiln/internal/log"
	"github.com/zjrosen/kiln/internal/manifest"
	"github.com/zjrosen/kiln/internal/plugin"
	"github.com/zjrosen/kiln/internal/pubsub"
	"github.com/zjrosen/kiln/internal/testutil"
	"github.com/zjrosen/kiln/internal/tracing"
)

func TestNew_EmptySystem(t *testing.T) {
	e := newEnv(t)
	b := newBootstrap(t, e.facade(t), WithSource(plugin.NewDirSource(nil)))
	ctx := context.Background()

	plugins, err := b.Plugins(ctx, plugin.DiscoverOptions{})
	require.NoError(t, err)
	require.Empty(t, plugins)

	m, err := b.Manifest(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, m.Len())
	require.Empty(t, b.Registry())

	hooks, err := b.Hooks(ctx)
	require.NoError(t, err)
	require.Empty(t, hooks)
	require.Equal(t, 1, b.Generation())
}

func TestNew_IncludesEmbeddedCorePlugin(t *testing.T) {
	e := newEnv(t)
	b := newBootstrap(t, e.facade(t))

	core, ok := b.Plugin("core")
	require.True(t, ok)
	require.True(t, core.IsCore())
	require.True(t, core.Hidden)

	_, ok = manifest.GetByPath(b.Registry(), installerKey)
	require.True(t, ok, "core declares the installer component")
}

func TestNew_InvalidConfig(t *testing.T) {
	e := newEnv(t)
	f := e.facade(t)
	f.Set("core.cache_backend", "redis")

	_, err := New(context.Background(), f)
	require.ErrorContains(t, err, "core.cache_backend")
}

func TestNew_GeneratesIDOnce(t *testing.T) {
	e := newEnv(t)
	src := plugin.NewDirSource(nil)

	first := newBootstrap(t, e.facade(t), WithSource(src))
	id := first.ID()
	_, err := uuid.Parse(id)
	require.NoError(t, err)

	data, err := os.ReadFile(e.configPath)
	require.NoError(t, err)
	require.Contains(t, string(data), id)

	second := newBootstrap(t, e.facade(t), WithSource(src))
	require.Equal(t, id, second.ID())
}

func TestNew_IDKeptWhenConfigured(t *testing.T) {
	e := newEnv(t)
	f := e.facade(t)
	f.Set("core.id", "fixed-id")

	b := newBootstrap(t, f, WithSource(plugin.NewDirSource(nil)))
	require.Equal(t, "fixed-id", b.ID())

	data, err := os.ReadFile(e.configPath)
	require.NoError(t, err)
	require.NotContains(t, string(data), "fixed-id", "an existing id is not rewritten")
}

func TestNew_DisabledCachingFlushesStaleDir(t *testing.T) {
	e := newEnv(t)
	testutil.NewBuilder(t, e.pluginsDir).WithPlugin("alpha").Build()
	require.NoError(t, os.MkdirAll(e.cacheDir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(e.cacheDir, "manifest.cache"), []byte("stale"), 0o600))

	f := e.facade(t)
	f.Set("core.caching", false)
	f.Set("core.cache_backend", "file")
	src := countDiscovers(plugin.NewDirSource(nil))
	b := newBootstrap(t, f, WithSource(src))

	entries, err := os.ReadDir(e.cacheDir)
	require.NoError(t, err)
	require.Empty(t, entries)

	before := src.discovers.Load()
	_, err = b.Plugins(context.Background(), plugin.DiscoverOptions{})
	require.NoError(t, err)
	_, err = b.Plugins(context.Background(), plugin.DiscoverOptions{})
	require.NoError(t, err)
	require.Equal(t, before+2, src.discovers.Load(), "nothing is cached")
}

func TestNew_PersistentBackendsSurviveRestart(t *testing.T) {
	for _, backend := range []string{"file", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			e := newEnv(t)
			testutil.NewBuilder(t, e.pluginsDir).WithStandardPlugins().Build()
			f := e.facade(t)
			f.Set("core.cache_backend", backend)

			first, err := New(context.Background(), f, WithSource(plugin.NewDirSource(nil)))
			require.NoError(t, err)
			want, err := first.Manifest(context.Background())
			require.NoError(t, err)
			require.NoError(t, first.Close())

			src := countDiscovers(plugin.NewDirSource(nil))
			second := newBootstrap(t, f, WithSource(src))
			got, err := second.Manifest(context.Background())
			require.NoError(t, err)

			require.Equal(t, int32(0), src.discovers.Load(), "served from the %s cache", backend)
			require.Equal(t, want.Tree(), got.Tree())
			require.Equal(t, want.Names(), got.Names())
		})
	}
}

func TestNew_SQLiteBackendFile(t *testing.T) {
	e := newEnv(t)
	f := e.facade(t)
	f.Set("core.cache_backend", "sqlite")

	newBootstrap(t, f, WithSource(plugin.NewDirSource(nil)))
	require.FileExists(t, filepath.Join(e.cacheDir, SQLiteFile))
}

func TestOpenStore_Backends(t *testing.T) {
	dir := t.TempDir()

	store, err := openStore(configCore(true, "memory", ""))
	require.NoError(t, err)
	require.IsType(t, &cachemanager.MemoryStore{}, store)

	store, err = openStore(configCore(true, "", dir))
	require.NoError(t, err)
	require.IsType(t, &cachemanager.FileStore{}, store)

	store, err = openStore(configCore(false, "sqlite", dir))
	require.NoError(t, err)
	require.IsType(t, cachemanager.NoopStore{}, store)

	_, err = openStore(configCore(true, "etcd", dir))
	require.ErrorIs(t, err, cachemanager.ErrUnknownBackend)
}

func TestOpenStore_ExpandsHomeInCacheDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(t.TempDir())

	store, err := openStore(configCore(true, "file", "~/.cache/kiln"))
	require.NoError(t, err)
	fileStore, ok := store.(*cachemanager.FileStore)
	require.True(t, ok)
	require.Equal(t, filepath.Join(home, ".cache", "kiln"), fileStore.Dir())
	require.NoDirExists(t, "~", "no literal ~ directory in the working dir")

	stale := filepath.Join(home, ".cache", "kiln", "manifest.cache")
	require.NoError(t, os.WriteFile(stale, []byte("stale"), 0o600))
	_, err = openStore(configCore(false, "file", "~/.cache/kiln"))
	require.NoError(t, err)
	require.NoFileExists(t, stale)
}

func TestNew_CacheWriteFailureIsNotFatal(t *testing.T) {
	e := newEnv(t)
	testutil.NewBuilder(t, e.pluginsDir).WithStandardPlugins().Build()
	b := newBootstrap(t, e.facade(t), WithStore(failingStore{MemoryStore: cachemanager.NewMemoryStore()}))
	ctx := context.Background()

	m, err := b.Manifest(ctx)
	require.NoError(t, err)
	port, _ := m.Get("port")
	require.Equal(t, 8080, port)

	hooks, err := b.Hooks(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, hooks)
	require.NoError(t, b.Reinit(ctx))
}

func TestManifest_FreshAndCachedValuesKeepTypes(t *testing.T) {
	e := newEnv(t)
	testutil.NewBuilder(t, e.pluginsDir).
		WithPlugin("alpha",
			testutil.Field("ratio", 1.0),
			testutil.Field("scale", 0.25),
			testutil.Registry("app.greeter", map[string]any{
				"factory":  "test.greeter",
				"defaults": map[string]any{"weight": 2.0},
			})).
		Build()
	b := newBootstrap(t, e.facade(t))

	initRatio, ok := b.manifest.Get("ratio")
	require.True(t, ok)
	m, err := b.Manifest(context.Background())
	require.NoError(t, err)
	cachedRatio, _ := m.Get("ratio")
	require.Equal(t, initRatio, cachedRatio)
	require.IsType(t, initRatio, cachedRatio)

	cachedScale, _ := m.Get("scale")
	require.InDelta(t, 0.25, cachedScale, 1e-9)
	require.Equal(t, b.Registry(), m.Registry())

	enabled, err := b.Plugins(context.Background(), plugin.DiscoverOptions{})
	require.NoError(t, err)
	alpha, ok := b.Plugin("alpha")
	require.True(t, ok)
	require.Equal(t, enabled[len(enabled)-1].Manifest, alpha.Manifest)
}

func TestManifest_Idempotent(t *testing.T) {
	e := newEnv(t)
	testutil.NewBuilder(t, e.pluginsDir).WithStandardPlugins().Build()
	src := countDiscovers(plugin.NewDirSource(nil))
	b := newBootstrap(t, e.facade(t), WithSource(src))
	ctx := context.Background()

	first, err := b.Manifest(ctx)
	require.NoError(t, err)
	second, err := b.Manifest(ctx)
	require.NoError(t, err)
	require.Equal(t, first.Tree(), second.Tree())
	require.Equal(t, first.Names(), second.Names())
	require.NotSame(t, first, second, "each call returns a fresh wrapper")

	p1, err := b.Plugins(ctx, plugin.DiscoverOptions{})
	require.NoError(t, err)
	p2, err := b.Plugins(ctx, plugin.DiscoverOptions{})
	require.NoError(t, err)
	require.Equal(t, plugin.Names(p1), plugin.Names(p2))

	require.Equal(t, int32(1), src.discovers.Load())
}

func TestManifest_OverrideOrderAndStripping(t *testing.T) {
	e := newEnv(t)
	testutil.NewBuilder(t, e.pluginsDir).WithStandardPlugins().Build()
	b := newBootstrap(t, e.facade(t), WithSource(plugin.NewDirSource(nil)))

	m, err := b.Manifest(context.Background())
	require.NoError(t, err)

	require.Equal(t, []string{"gamma", "beta", "alpha"}, m.Names())

	port, ok := m.Get("port")
	require.True(t, ok)
	require.Equal(t, 8080, port, "first discovered plugin wins")

	services, ok := m.Get("services")
	require.True(t, ok)
	require.Equal(t, map[string]any{"web": "nginx", "db": "mysql", "cache": "redis"}, services)

	entry, ok := manifest.GetByPath(b.Registry(), "app.greeter")
	require.True(t, ok)
	require.Equal(t, "test.greeter", entry.(map[string]any)["factory"])

	for _, name := range m.Names() {
		fragment, ok := m.Fragment(name)
		require.True(t, ok)
		for _, field := range manifest.StrippedFields {
			require.NotContains(t, fragment, field, "%s keeps %s", name, field)
		}
	}
}

func TestReinit_FlushesThenPluginsThenManifest(t *testing.T) {
	e := newEnv(t)
	testutil.NewBuilder(t, e.pluginsDir).WithPlugin("alpha").Build()
	store := newRecordingStore()
	b := newBootstrap(t, e.facade(t), WithStore(store), WithSource(plugin.NewDirSource(nil)))

	store.Reset()
	require.NoError(t, b.Reinit(context.Background()))
	require.Equal(t, []string{
		"flush",
		"set " + keyEnabled,
		"set " + keyDisabled,
		"set " + keyInvalid,
		"set " + keyManifest,
	}, store.Ops())
}

func TestReinit_PicksUpChanges(t *testing.T) {
	e := newEnv(t)
	builder := testutil.NewBuilder(t, e.pluginsDir).WithStandardPlugins()
	builder.Build()
	src := countDiscovers(plugin.NewDirSource(nil))
	b := newBootstrap(t, e.facade(t), WithSource(src))
	ctx := context.Background()

	events := b.Subscribe(ctx)

	testutil.NewBuilder(t, e.pluginsDir).WithPlugin("aardvark", testutil.Field("port", 1)).Build()

	plugins, err := b.Plugins(ctx, plugin.DiscoverOptions{})
	require.NoError(t, err)
	require.NotContains(t, plugin.Names(plugins), "aardvark", "cached until reinit")

	require.NoError(t, b.Reinit(ctx))
	require.Equal(t, 2, b.Generation())
	require.Equal(t, int32(2), src.discovers.Load())

	plugins, err = b.Plugins(ctx, plugin.DiscoverOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"aardvark", "alpha", "beta", "gamma"}, plugin.Names(plugins))

	m, err := b.Manifest(ctx)
	require.NoError(t, err)
	port, _ := m.Get("port")
	require.Equal(t, 1, port)

	evt := receive(t, events)
	require.Equal(t, pubsub.ReinitEvent, evt.Type)
	require.Equal(t, 2, evt.Payload.Generation)
}

func TestReinit_ConcurrentReaders(t *testing.T) {
	e := newEnv(t)
	testutil.NewBuilder(t, e.pluginsDir).WithStandardPlugins().Build()
	b := newBootstrap(t, e.facade(t), WithSource(plugin.NewDirSource(nil)))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if err := b.Reinit(ctx); err != nil {
					t.Error(err)
				}
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				m, err := b.Manifest(ctx)
				if err != nil {
					t.Error(err)
					return
				}
				if m.Len() != 3 {
					t.Errorf("manifest has %d fragments", m.Len())
				}
				if _, ok := b.Plugin("alpha"); !ok {
					t.Error("alpha missing")
				}
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 41, b.Generation())
}

func TestReinit_LogsManifestDiffWhenFlagged(t *testing.T) {
	var buf bytes.Buffer
	log.InitWithWriter(&buf)
	t.Cleanup(func() { log.SetEnabled(false) })

	e := newEnv(t)
	testutil.NewBuilder(t, e.pluginsDir).WithPlugin("alpha", testutil.Field("port", 1)).Build()
	f := e.facade(t)
	f.Set("flags.manifest-diff", true)
	b := newBootstrap(t, f, WithSource(plugin.NewDirSource(nil)))

	testutil.NewBuilder(t, e.pluginsDir).WithPlugin("alpha", testutil.Field("port", 2)).Build()
	require.NoError(t, b.Reinit(context.Background()))

	out := buf.String()
	require.Contains(t, out, "Manifest changed")
	require.Contains(t, out, "+")
}

func TestReinit_Traced(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider := tracing.NewProviderWithExporter(tracing.Config{Enabled: true}, exporter)

	e := newEnv(t)
	testutil.NewBuilder(t, e.pluginsDir).WithPlugin("alpha").Build()
	b := newBootstrap(t, e.facade(t), WithSource(plugin.NewDirSource(nil)), WithTracer(provider.Tracer()))

	exporter.Reset()
	require.NoError(t, b.Reinit(context.Background()))

	var names []string
	for _, span := range exporter.GetSpans() {
		names = append(names, span.Name)
	}
	require.ElementsMatch(t, []string{tracing.SpanDiscover, tracing.SpanCompose, tracing.SpanReinit}, names)
}

func TestClose_ClosesSubscribers(t *testing.T) {
	e := newEnv(t)
	b, err := New(context.Background(), e.facade(t), WithSource(plugin.NewDirSource(nil)))
	require.NoError(t, err)

	events := b.Subscribe(context.Background())
	require.NoError(t, b.Close())

	_, ok := <-events
	require.False(t, ok)
}

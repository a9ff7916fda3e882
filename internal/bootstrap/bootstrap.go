// Package bootstrap owns the derived state of a kiln process: the discovered
// plugins, the composed manifest and the hooks aggregated from it. Derived
// values are cached in a single store and invalidated together.
package bootstrap

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/kiln/internal/cachemanager"
	"github.com/zjrosen/kiln/internal/component"
	"github.com/zjrosen/kiln/internal/config"
	"github.com/zjrosen/kiln/internal/flags"
	"github.com/zjrosen/kiln/internal/hook"
	"github.com/zjrosen/kiln/internal/infrastructure/sqlite"
	"github.com/zjrosen/kiln/internal/installer"
	"github.com/zjrosen/kiln/internal/log"
	"github.com/zjrosen/kiln/internal/manifest"
	"github.com/zjrosen/kiln/internal/plugin"
	"github.com/zjrosen/kiln/internal/pubsub"
	"github.com/zjrosen/kiln/internal/templates"
	"github.com/zjrosen/kiln/internal/tracing"
)

// Cache keys. All of them are dropped by one Flush.
const (
	keyEnabled  = "plugins.enabled"
	keyDisabled = "plugins.disabled"
	keyInvalid  = "plugins.invalid"
	keyManifest = "manifest"
	keyHooks    = "hooks"
)

// SQLiteFile is the database file name inside core.cache_dir for the sqlite backend.
const SQLiteFile = cachemanager.SQLiteFile

// ConfigFacade is the configuration surface the bootstrap needs.
// *config.Facade satisfies it.
type ConfigFacade interface {
	Config() (config.Config, error)
	Save(data map[string]any) error
}

// Event is the payload of lifecycle notifications.
type Event struct {
	Plugin     string `json:"plugin,omitempty"`
	Generation int    `json:"generation"`
}

// Bootstrap is built once per process. Readers take the read lock; reinit
// holds the write lock from flush until plugins and manifest are rebuilt,
// so a reader never sees the two from different generations.
type Bootstrap struct {
	mu sync.RWMutex

	facade   ConfigFacade
	cfg      config.Config
	store    cachemanager.Store
	source   plugin.Source
	resolver *component.Resolver
	scope    *component.Scope
	runner   hook.Runner
	policy   hook.Policy
	tracer   trace.Tracer
	flags    *flags.Registry
	events   *pubsub.Broker[Event]

	plugins    []*plugin.Plugin
	manifest   *manifest.Manifest
	generation int
}

// New builds a Bootstrap from the configuration in facade and runs the
// initial discovery and composition. It starts no goroutines.
func New(ctx context.Context, facade ConfigFacade, opts ...Option) (*Bootstrap, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg, err := facade.Config()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	cfg.Core.ID, err = ensureID(facade, cfg.Core.ID)
	if err != nil {
		return nil, err
	}

	store := o.store
	if store == nil {
		store, err = openStore(cfg.Core)
		if err != nil {
			return nil, err
		}
	}

	catalog := o.catalog
	if catalog == nil {
		catalog = component.NewCatalog()
	}
	if _, ok := catalog.Lookup(installer.FactoryRef); !ok {
		if err := installer.Register(catalog); err != nil {
			_ = store.Close()
			return nil, err
		}
	}

	flagRegistry := flags.New(cfg.Flags)

	runner := o.runner
	if runner == nil {
		runner = hook.NewEngine(hook.DefaultHandlers(),
			hook.WithLenient(flagRegistry.Enabled(flags.FlagLenientHooks)))
	}
	policy := o.policy
	if policy == nil {
		policy = hook.ForSource(cfg.Hooks.Source, cfg.Core.Product)
	}
	source := o.source
	if source == nil {
		source = plugin.NewDirSource(templates.PluginsFS())
	}
	tracer := o.tracer
	if tracer == nil {
		tracer = tracing.Noop().Tracer()
	}

	b := &Bootstrap{
		facade:   facade,
		cfg:      cfg,
		store:    store,
		source:   source,
		resolver: component.NewResolver(catalog),
		scope:    component.NewScope("bootstrap"),
		runner:   runner,
		policy:   policy,
		tracer:   tracer,
		flags:    flagRegistry,
		events:   pubsub.NewBroker[Event](),
	}

	b.mu.Lock()
	err = b.initState(ctx)
	b.mu.Unlock()
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	log.Info(log.CatBootstrap, "Bootstrap ready",
		"id", cfg.Core.ID, "plugins", len(b.plugins), "fragments", b.manifest.Len())
	return b, nil
}

func ensureID(facade ConfigFacade, id string) (string, error) {
	if id != "" {
		return id, nil
	}
	id = uuid.NewString()
	if err := facade.Save(map[string]any{"core": map[string]any{"id": id}}); err != nil {
		return "", fmt.Errorf("persisting core.id: %w", err)
	}
	log.Info(log.CatBootstrap, "Generated instance id", "id", id)
	return id, nil
}

func openStore(core config.CoreConfig) (cachemanager.Store, error) {
	core.CacheDir = expandHome(core.CacheDir)
	if !core.Caching {
		// A cache left by an earlier run with caching on would be stale by
		// the time caching is turned back on.
		if err := cachemanager.FlushDir(core.CacheDir); err != nil {
			log.ErrorErr(log.CatCache, "Failed to flush stale cache dir", err, "dir", core.CacheDir)
		}
		return cachemanager.NoopStore{}, nil
	}

	switch core.CacheBackend {
	case "", config.BackendFile:
		return cachemanager.NewFileStore(core.CacheDir)
	case config.BackendSQLite:
		return sqlite.NewCacheStore(filepath.Join(core.CacheDir, SQLiteFile))
	case config.BackendMemory:
		return cachemanager.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%s: %w", core.CacheBackend, cachemanager.ErrUnknownBackend)
	}
}

// initState loads plugins, then the manifest. Callers hold the write lock.
func (b *Bootstrap) initState(ctx context.Context) error {
	plugins, err := b.getPlugins(ctx, plugin.DiscoverOptions{})
	if err != nil {
		return err
	}
	m, err := b.getManifest(ctx, plugins)
	if err != nil {
		return err
	}

	b.plugins = plugins
	b.manifest = m
	b.generation++
	return nil
}

// Reinit drops every cached derived value and rebuilds plugins and manifest.
func (b *Bootstrap) Reinit(ctx context.Context) error {
	ctx, span := tracing.Start(ctx, b.tracer, tracing.SpanReinit)

	b.mu.Lock()
	err := b.reinit(ctx)
	generation := b.generation
	b.mu.Unlock()

	span.SetAttributes(attribute.Int("kiln.generation", generation))
	tracing.End(span, err)
	if err != nil {
		return err
	}
	b.events.Publish(pubsub.ReinitEvent, Event{Generation: generation})
	return nil
}

// reinit runs flush, plugins, manifest in that order. Callers hold the
// write lock for the whole sequence.
func (b *Bootstrap) reinit(ctx context.Context) error {
	before := b.manifest

	if err := b.store.Flush(ctx); err != nil {
		return fmt.Errorf("flushing cache: %w", err)
	}
	b.scope.Flush()

	if cfg, err := b.facade.Config(); err != nil {
		log.ErrorErr(log.CatConfig, "Keeping previous config", err)
	} else {
		cfg.Core.ID = b.cfg.Core.ID
		b.cfg = cfg
	}

	if err := b.initState(ctx); err != nil {
		log.ErrorErr(log.CatBootstrap, "Reinit failed", err)
		return err
	}

	log.Debug(log.CatBootstrap, "Reinitialized", "generation", b.generation, "plugins", len(b.plugins))
	if b.flags.Enabled(flags.FlagManifestDiff) {
		if diff := manifest.Diff(before, b.manifest); diff != "" {
			log.Debug(log.CatManifest, "Manifest changed", "generation", b.generation, "diff", "\n"+diff)
		}
	}
	return nil
}

// Generation counts successful init and reinit runs.
func (b *Bootstrap) Generation() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.generation
}

// ID returns the persistent instance id.
func (b *Bootstrap) ID() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cfg.Core.ID
}

// Config returns the configuration snapshot taken at the last (re)init.
func (b *Bootstrap) Config() config.Config {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cfg
}

// Subscribe returns lifecycle events until ctx is cancelled.
func (b *Bootstrap) Subscribe(ctx context.Context) <-chan pubsub.Event[Event] {
	return b.events.Subscribe(ctx)
}

// Close releases the cache store and closes subscriber channels.
func (b *Bootstrap) Close() error {
	b.events.Close()
	return b.store.Close()
}

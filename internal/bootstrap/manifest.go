package bootstrap

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/zjrosen/kiln/internal/cachemanager"
	"github.com/zjrosen/kiln/internal/log"
	"github.com/zjrosen/kiln/internal/manifest"
	"github.com/zjrosen/kiln/internal/plugin"
	"github.com/zjrosen/kiln/internal/tracing"
)

// Manifest returns the composed manifest. Every call returns a fresh
// wrapper over the cached form.
func (b *Bootstrap) Manifest(ctx context.Context) (*manifest.Manifest, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.getManifest(ctx, nil)
}

// Registry returns the registry sub-tree of the current manifest.
func (b *Bootstrap) Registry() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.manifest.Registry()
}

// getManifest composes from enabled, or from the cached plugin list when
// enabled is nil.
func (b *Bootstrap) getManifest(ctx context.Context, enabled []*plugin.Plugin) (*manifest.Manifest, error) {
	compose := func(ctx context.Context) (manifest.Data, error) {
		plugins := enabled
		if plugins == nil {
			var err error
			if plugins, err = b.getPlugins(ctx, plugin.DiscoverOptions{}); err != nil {
				return manifest.Data{}, err
			}
		}

		_, span := tracing.Start(ctx, b.tracer, tracing.SpanCompose,
			attribute.Int(tracing.AttrPluginCount, len(plugins)))
		m := manifest.Compose(plugins)
		tracing.End(span, nil)

		log.Debug(log.CatManifest, "Composed manifest", "fragments", m.Len())
		return m.Data(), nil
	}

	data, err := cachemanager.NewReadThroughCache(b.store, compose, false).Get(ctx, keyManifest)
	if err != nil {
		return nil, err
	}
	return manifest.FromData(data), nil
}

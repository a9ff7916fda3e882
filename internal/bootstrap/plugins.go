package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/zjrosen/kiln/internal/cachemanager"
	"github.com/zjrosen/kiln/internal/config"
	"github.com/zjrosen/kiln/internal/log"
	"github.com/zjrosen/kiln/internal/plugin"
	"github.com/zjrosen/kiln/internal/pubsub"
	"github.com/zjrosen/kiln/internal/tracing"
)

const installerKey = "core.plugin-installer"

// Lifecycle hook events run after a successful add or remove.
const (
	HookPluginAdded   = "plugin:added"
	HookPluginRemoved = "plugin:removed"
)

// Plugins returns the enabled plugins in discovery order. Zero-valued
// options use the configured type, channel and disabled list and are served
// from the cache. Any explicit option runs a fresh discovery even when a
// cached list is present, and that result is not cached: the cache only
// ever holds the configured view.
func (b *Bootstrap) Plugins(ctx context.Context, opts plugin.DiscoverOptions) ([]*plugin.Plugin, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.getPlugins(ctx, opts)
}

// DisabledPlugins returns plugins that were found but are not enabled.
func (b *Bootstrap) DisabledPlugins(ctx context.Context) ([]*plugin.Plugin, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	d, err := b.discovery(ctx, plugin.DiscoverOptions{})
	return d.Disabled, err
}

// InvalidPlugins returns plugins whose manifest could not be used, with
// Error set.
func (b *Bootstrap) InvalidPlugins(ctx context.Context) ([]*plugin.Plugin, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	d, err := b.discovery(ctx, plugin.DiscoverOptions{})
	return d.Invalid, err
}

// Plugin looks up an enabled plugin. Scoped and versioned references such
// as "@acme/tool@1.2.0" resolve to their bare name.
func (b *Bootstrap) Plugin(name string) (*plugin.Plugin, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return findPlugin(b.plugins, plugin.ParseName(name))
}

func findPlugin(plugins []*plugin.Plugin, name string) (*plugin.Plugin, bool) {
	i := slices.IndexFunc(plugins, func(p *plugin.Plugin) bool { return p.Name == name })
	if i < 0 {
		return nil, false
	}
	return plugins[i], true
}

func (b *Bootstrap) getPlugins(ctx context.Context, opts plugin.DiscoverOptions) ([]*plugin.Plugin, error) {
	d, err := b.discovery(ctx, opts)
	if err != nil {
		return nil, err
	}
	return d.Enabled, nil
}

func (b *Bootstrap) discovery(ctx context.Context, opts plugin.DiscoverOptions) (plugin.Discovery, error) {
	explicit := opts.Type != "" || opts.Channel != "" || opts.Disabled != nil
	if !explicit {
		if d, ok := b.cachedDiscovery(ctx); ok {
			return d, nil
		}
	}

	merged := b.discoverOptions(opts)
	ctx, span := tracing.Start(ctx, b.tracer, tracing.SpanDiscover,
		attribute.String(tracing.AttrChannel, merged.Channel))
	d, err := b.source.Discover(ctx, b.pluginDirs(), merged)
	span.SetAttributes(
		attribute.Int(tracing.AttrPluginCount, len(d.Enabled)),
		attribute.Int(tracing.AttrInvalidCount, len(d.Invalid)),
	)
	tracing.End(span, err)
	if err != nil {
		return plugin.Discovery{}, fmt.Errorf("discovering plugins: %w", err)
	}

	if !explicit {
		d = b.cacheDiscovery(ctx, d)
	}
	return d, nil
}

func (b *Bootstrap) cachedDiscovery(ctx context.Context) (plugin.Discovery, bool) {
	enabled, ok := cachemanager.Load[[]*plugin.Plugin](ctx, b.store, keyEnabled)
	if !ok {
		return plugin.Discovery{}, false
	}
	disabled, ok := cachemanager.Load[[]*plugin.Plugin](ctx, b.store, keyDisabled)
	if !ok {
		return plugin.Discovery{}, false
	}
	invalid, ok := cachemanager.Load[[]*plugin.Plugin](ctx, b.store, keyInvalid)
	if !ok {
		return plugin.Discovery{}, false
	}
	return plugin.Discovery{Enabled: enabled, Disabled: disabled, Invalid: invalid}, true
}

// cacheDiscovery stores the three sets and returns them as a later cached
// read would, so manifests in plugin descriptors keep one set of types.
func (b *Bootstrap) cacheDiscovery(ctx context.Context, d plugin.Discovery) plugin.Discovery {
	entries := []struct {
		key     string
		plugins *[]*plugin.Plugin
	}{
		{keyEnabled, &d.Enabled},
		{keyDisabled, &d.Disabled},
		{keyInvalid, &d.Invalid},
	}
	for _, e := range entries {
		stored, err := cachemanager.Put(ctx, b.store, e.key, *e.plugins)
		if err != nil {
			log.ErrorErr(log.CatCache, "Failed to cache plugins", err, "key", e.key)
		}
		*e.plugins = stored
	}
	return d
}

// discoverOptions layers explicit options over the configured ones.
func (b *Bootstrap) discoverOptions(opts plugin.DiscoverOptions) plugin.DiscoverOptions {
	merged := plugin.DiscoverOptions{
		Type:     plugin.Type(b.cfg.Plugins.Type),
		Channel:  b.cfg.Core.Channel,
		Disabled: b.cfg.Plugins.Disabled,
	}
	if opts.Type != "" {
		merged.Type = opts.Type
	}
	if opts.Channel != "" {
		merged.Channel = opts.Channel
	}
	if opts.Disabled != nil {
		merged.Disabled = opts.Disabled
	}
	return merged
}

func (b *Bootstrap) pluginDirs() []plugin.Dir {
	dirs := make([]plugin.Dir, 0, len(b.cfg.Plugins.Dirs))
	for _, d := range b.cfg.Plugins.Dirs {
		dirs = append(dirs, plugin.Dir{Path: expandHome(d.Path), Type: dirType(d)})
	}
	return dirs
}

// AddPlugin installs name into dest through the core.plugin-installer
// component and reinitializes. An empty dest picks the first configured
// user, app or global directory, in that preference. A failed fetch leaves
// the cache untouched.
func (b *Bootstrap) AddPlugin(ctx context.Context, name, dest string) (*plugin.Plugin, error) {
	ctx, span := tracing.Start(ctx, b.tracer, tracing.SpanAddPlugin,
		attribute.String(tracing.AttrPlugin, name))
	p, err := b.addPlugin(ctx, name, dest)
	tracing.End(span, err)
	return p, err
}

func (b *Bootstrap) addPlugin(ctx context.Context, name, dest string) (*plugin.Plugin, error) {
	cfg := b.Config()

	dir, err := installDir(cfg.Plugins.Dirs, dest)
	if err != nil {
		return nil, err
	}

	args := map[string]any{}
	if cfg.Plugins.Catalog != "" {
		args["catalog"] = expandHome(cfg.Plugins.Catalog)
	}
	inst, err := Component[plugin.Installer](ctx, b, installerKey, args, InstanceOptions{NoCache: true})
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", installerKey, err)
	}

	p, err := b.source.Fetch(ctx, name, dir.Path, plugin.FetchOptions{
		Channel:   cfg.Core.Channel,
		Installer: inst,
		Type:      dir.Type,
	})
	if err != nil {
		log.ErrorErr(log.CatPlugin, "Failed to add plugin", err, "name", name)
		return nil, err
	}

	if err := b.Reinit(ctx); err != nil {
		return p, err
	}
	b.notify(ctx, pubsub.PluginAddedEvent, HookPluginAdded, p)
	return p, nil
}

// RemovePlugin deletes a discovered plugin's directory and reinitializes.
// Unknown and core plugins are rejected before anything is touched.
func (b *Bootstrap) RemovePlugin(ctx context.Context, name string) (*plugin.Plugin, error) {
	ctx, span := tracing.Start(ctx, b.tracer, tracing.SpanRemovePlugin,
		attribute.String(tracing.AttrPlugin, name))
	p, err := b.removePlugin(ctx, name)
	tracing.End(span, err)
	return p, err
}

func (b *Bootstrap) removePlugin(ctx context.Context, name string) (*plugin.Plugin, error) {
	bare := plugin.ParseName(name)

	b.mu.RLock()
	p, ok := findPlugin(b.plugins, bare)
	if !ok {
		// Disabled and invalid plugins can be removed too.
		if d, err := b.discovery(ctx, plugin.DiscoverOptions{}); err == nil {
			p, ok = d.Find(bare)
		}
	}
	b.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%s: %w", bare, ErrPluginNotFound)
	}
	if p.IsCore() {
		return nil, fmt.Errorf("%s: %w", bare, ErrProtected)
	}

	if err := p.Remove(); err != nil {
		return nil, err
	}
	log.Info(log.CatPlugin, "Removed plugin", "name", p.Name, "dir", p.Dir)

	if err := b.Reinit(ctx); err != nil {
		return p, err
	}
	b.notify(ctx, pubsub.PluginRemovedEvent, HookPluginRemoved, p)
	return p, nil
}

func (b *Bootstrap) notify(ctx context.Context, event pubsub.EventType, hookEvent string, p *plugin.Plugin) {
	b.events.Publish(event, Event{Plugin: p.Name, Generation: b.Generation()})
	if _, err := b.RunHook(ctx, hookEvent, p); err != nil {
		log.ErrorErr(log.CatHook, "Lifecycle hook failed", err, "event", hookEvent, "plugin", p.Name)
	}
}

func installDir(dirs []config.PluginDir, dest string) (plugin.Dir, error) {
	if dest != "" {
		dest = expandHome(dest)
		for _, d := range dirs {
			if filepath.Clean(expandHome(d.Path)) == filepath.Clean(dest) {
				return plugin.Dir{Path: dest, Type: dirType(d)}, nil
			}
		}
		return plugin.Dir{Path: dest, Type: plugin.TypeUser}, nil
	}

	for _, want := range []plugin.Type{plugin.TypeUser, plugin.TypeApp, plugin.TypeGlobal} {
		for _, d := range dirs {
			if dirType(d) == want {
				return plugin.Dir{Path: expandHome(d.Path), Type: want}, nil
			}
		}
	}
	return plugin.Dir{}, ErrNoPluginDir
}

func dirType(d config.PluginDir) plugin.Type {
	if d.Type == "" {
		return plugin.TypeApp
	}
	return plugin.Type(d.Type)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

package bootstrap

import (
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/kiln/internal/cachemanager"
	"github.com/zjrosen/kiln/internal/component"
	"github.com/zjrosen/kiln/internal/hook"
	"github.com/zjrosen/kiln/internal/plugin"
)

// Option configures a Bootstrap.
type Option func(*options)

type options struct {
	source  plugin.Source
	store   cachemanager.Store
	runner  hook.Runner
	catalog *component.Catalog
	tracer  trace.Tracer
	policy  hook.Policy
}

// WithSource replaces the directory plugin source.
func WithSource(source plugin.Source) Option {
	return func(o *options) { o.source = source }
}

// WithStore replaces the configured cache store. The bootstrap takes
// ownership and closes it on Close.
func WithStore(store cachemanager.Store) Option {
	return func(o *options) { o.store = store }
}

// WithHookRunner replaces the default hook engine.
func WithHookRunner(runner hook.Runner) Option {
	return func(o *options) { o.runner = runner }
}

// WithCatalog supplies the component factory catalog. The installer factory
// is added when missing.
func WithCatalog(catalog *component.Catalog) Option {
	return func(o *options) { o.catalog = catalog }
}

// WithTracer sets the tracer used for bootstrap spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) { o.tracer = tracer }
}

// WithHookPolicy overrides the hooks.source setting.
func WithHookPolicy(policy hook.Policy) Option {
	return func(o *options) { o.policy = policy }
}

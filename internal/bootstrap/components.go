package bootstrap

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/zjrosen/kiln/internal/component"
	"github.com/zjrosen/kiln/internal/tracing"
)

// ComponentOptions controls GetComponent.
type ComponentOptions struct {
	Scope    *component.Scope // Defaults to the bootstrap scope
	Defaults component.Args   // Layered over the registry defaults
	NoCache  bool
}

// InstanceOptions controls GetComponentInstance.
type InstanceOptions struct {
	Scope    *component.Scope
	Defaults component.Args
	Init     component.InitFunc // Runs once before the instance is cached
	NoCache  bool
}

// Scope returns the default component scope. It is flushed on every reinit.
func (b *Bootstrap) Scope() *component.Scope { return b.scope }

// Catalog returns the component factory catalog.
func (b *Bootstrap) Catalog() *component.Catalog { return b.resolver.Catalog() }

// GetComponent resolves key against the registry without instantiating it.
func (b *Bootstrap) GetComponent(key string, opts ComponentOptions) (*component.Ref, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.resolver.Resolve(key, b.manifest.Registry(), b.pickScope(opts.Scope, opts.NoCache), opts.Defaults)
}

// GetComponentInstance returns the instance for key, building it with args
// on a scope miss. Factories run without the bootstrap lock held, so they
// may call back into the bootstrap.
func (b *Bootstrap) GetComponentInstance(ctx context.Context, key string, args component.Args, opts InstanceOptions) (any, error) {
	ctx, span := tracing.Start(ctx, b.tracer, tracing.SpanComponent,
		attribute.String(tracing.AttrComponentKey, key))

	b.mu.RLock()
	registry := b.manifest.Registry()
	scope := b.pickScope(opts.Scope, opts.NoCache)
	b.mu.RUnlock()

	instance, err := b.resolver.Instance(ctx, key, registry, args, scope, opts.Defaults, opts.Init)
	tracing.End(span, err)
	return instance, err
}

// Component is GetComponentInstance with a type assertion to T.
func Component[T any](ctx context.Context, b *Bootstrap, key string, args component.Args, opts InstanceOptions) (T, error) {
	instance, err := b.GetComponentInstance(ctx, key, args, opts)
	if err != nil {
		var zero T
		return zero, err
	}
	return component.As[T](key, instance)
}

func (b *Bootstrap) pickScope(scope *component.Scope, noCache bool) *component.Scope {
	if noCache {
		return nil
	}
	if scope == nil {
		return b.scope
	}
	return scope
}

package bootstrap

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/zjrosen/kiln/internal/cachemanager"
	"github.com/zjrosen/kiln/internal/hook"
	"github.com/zjrosen/kiln/internal/log"
	"github.com/zjrosen/kiln/internal/tracing"
)

// Hooks returns the hook descriptors declared across the manifest, in
// manifest order.
func (b *Bootstrap) Hooks(ctx context.Context) ([]hook.Descriptor, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.getHooks(ctx)
}

func (b *Bootstrap) getHooks(ctx context.Context) ([]hook.Descriptor, error) {
	aggregate := func(ctx context.Context) ([]hook.Descriptor, error) {
		m, err := b.getManifest(ctx, nil)
		if err != nil {
			return nil, err
		}
		return hook.Aggregate(m, b.policy), nil
	}
	return cachemanager.NewReadThroughCache(b.store, aggregate, false).Get(ctx, keyHooks)
}

// RunHook runs every hook registered for event. Handlers receive the
// bootstrap under both the product name and "kiln". The lock is released
// before handlers run.
func (b *Bootstrap) RunHook(ctx context.Context, event string, data any) (hook.Result, error) {
	ctx, span := tracing.Start(ctx, b.tracer, tracing.SpanRunHook,
		attribute.String(tracing.AttrEvent, event))

	b.mu.RLock()
	hooks, err := b.getHooks(ctx)
	product := b.cfg.Core.Product
	b.mu.RUnlock()
	if err != nil {
		tracing.End(span, err)
		return hook.Result{Event: event}, err
	}

	hctx := hook.Context{"kiln": b}
	if product != "" {
		hctx[product] = b
	}
	result, err := b.runner.Run(ctx, event, data, hooks, hctx, log.For(log.CatHook))
	span.SetAttributes(attribute.Int(tracing.AttrHooksRan, len(result.Ran)))
	tracing.End(span, err)
	return result, err
}

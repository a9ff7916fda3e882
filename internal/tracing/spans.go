package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span names.
const (
	SpanDiscover     = "plugins.discover"
	SpanCompose      = "manifest.compose"
	SpanReinit       = "bootstrap.reinit"
	SpanAddPlugin    = "plugins.add"
	SpanRemovePlugin = "plugins.remove"
	SpanRunHook      = "hooks.run"
	SpanComponent    = "component.instance"
)

// Span attribute keys.
const (
	AttrPlugin       = "kiln.plugin"
	AttrPluginCount  = "kiln.plugins.count"
	AttrInvalidCount = "kiln.plugins.invalid"
	AttrCacheHit     = "kiln.cache.hit"
	AttrEvent        = "kiln.hook.event"
	AttrHooksRan     = "kiln.hooks.ran"
	AttrComponentKey = "kiln.component.key"
	AttrChannel      = "kiln.channel"
)

// Start opens an internal span with attrs.
func Start(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// End records err (if any) as the span status and ends the span.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

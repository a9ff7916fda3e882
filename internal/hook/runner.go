package hook

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
)

// Context is handed to every handler. The bootstrap registers itself under
// both the product name and "kiln".
type Context map[string]any

// Logger is the logging surface handlers receive.
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)
}

// Call carries everything a handler needs for one invocation.
type Call struct {
	Event   string
	Data    any
	Hook    Descriptor
	Context Context
	Logger  Logger
}

// HandlerFunc executes one hook.
type HandlerFunc func(ctx context.Context, call Call) error

// Result reports the hooks that ran, in order.
type Result struct {
	Event string       `json:"event"`
	Ran   []Descriptor `json:"ran"`
}

// Runner executes the hooks registered for an event.
type Runner interface {
	Run(ctx context.Context, event string, data any, hooks []Descriptor, hctx Context, logger Logger) (Result, error)
}

// Handlers is a catalog of named handler functions.
type Handlers struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewHandlers returns an empty catalog.
func NewHandlers() *Handlers {
	return &Handlers{handlers: make(map[string]HandlerFunc)}
}

// Register adds fn under name, replacing any previous handler.
func (h *Handlers) Register(name string, fn HandlerFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[name] = fn
}

// Lookup returns the handler registered under name.
func (h *Handlers) Lookup(name string) (HandlerFunc, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	fn, ok := h.handlers[name]
	return fn, ok
}

// Names returns registered handler names, sorted.
func (h *Handlers) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.handlers))
	for name := range h.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Engine is the default Runner.
type Engine struct {
	handlers *Handlers
	lenient  bool
}

var _ Runner = (*Engine)(nil)

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLenient skips hooks naming an unknown handler instead of failing.
func WithLenient(lenient bool) EngineOption {
	return func(e *Engine) { e.lenient = lenient }
}

// NewEngine creates an engine over handlers.
func NewEngine(handlers *Handlers, opts ...EngineOption) *Engine {
	e := &Engine{handlers: handlers}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Handlers returns the handler catalog.
func (e *Engine) Handlers() *Handlers { return e.handlers }

// Run executes hooks for event ordered by ascending priority, keeping
// declaration order among equals. It stops at the first failing handler.
func (e *Engine) Run(ctx context.Context, event string, data any, hooks []Descriptor, hctx Context, logger Logger) (Result, error) {
	matching := slices.DeleteFunc(slices.Clone(hooks), func(d Descriptor) bool { return d.Event != event })
	sort.SliceStable(matching, func(i, j int) bool { return matching[i].Priority < matching[j].Priority })

	result := Result{Event: event}
	for _, d := range matching {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		fn, ok := e.handlers.Lookup(d.Handler)
		if !ok {
			if e.lenient {
				logger.Warn("Skipping hook with unknown handler", "event", event, "handler", d.Handler, "plugin", d.Plugin)
				continue
			}
			return result, fmt.Errorf("%s (plugin %s, event %s): %w", d.Handler, d.Plugin, event, ErrUnknownHandler)
		}

		logger.Debug("Running hook", "event", event, "handler", d.Handler, "plugin", d.Plugin)
		if err := fn(ctx, Call{Event: event, Data: data, Hook: d, Context: hctx, Logger: logger}); err != nil {
			logger.Error("Hook failed", "event", event, "handler", d.Handler, "plugin", d.Plugin, "error", err)
			return result, fmt.Errorf("hook %s from %s: %w", d.Handler, d.Plugin, err)
		}
		result.Ran = append(result.Ran, d)
	}
	return result, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

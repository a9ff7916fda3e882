// Package hook aggregates hook declarations from the composed manifest and
// runs them through a catalog of named handlers.
package hook

import (
	"errors"
	"fmt"

	"github.com/zjrosen/kiln/internal/log"
	"github.com/zjrosen/kiln/internal/manifest"
)

// ErrUnknownHandler is returned when a hook names a handler that is not registered.
var ErrUnknownHandler = errors.New("unknown hook handler")

// Descriptor is one hook declared by a plugin.
type Descriptor struct {
	Event    string         `json:"event" yaml:"event"`
	Handler  string         `json:"handler" yaml:"handler"`
	Plugin   string         `json:"plugin" yaml:"plugin"`
	Priority int            `json:"priority" yaml:"priority"`
	Args     map[string]any `json:"args,omitempty" yaml:"args,omitempty"`
}

// Policy names the fragment key hook declarations are read from.
type Policy interface {
	Key() string
}

type keyPolicy string

func (p keyPolicy) Key() string { return string(p) }

// FromKey reads hooks from the literal fragment key.
func FromKey(key string) Policy { return keyPolicy(key) }

// ForSource maps the hooks.source setting to a policy: "product" reads the
// key named after the product, anything else is taken literally.
func ForSource(source, product string) Policy {
	if source == "product" {
		return FromKey(product)
	}
	if source == "" {
		return FromKey("hooks")
	}
	return FromKey(source)
}

// Aggregate collects descriptors from each fragment of m in manifest order.
// Each fragment declares
//
//	<key>:
//	  <event>:
//	    - handler-name
//	    - {handler: handler-name, priority: 10, args: {...}}
//
// Malformed declarations are logged and skipped.
func Aggregate(m *manifest.Manifest, policy Policy) []Descriptor {
	key := policy.Key()
	var hooks []Descriptor
	for _, name := range m.Names() {
		fragment, _ := m.Fragment(name)
		raw, ok := fragment[key]
		if !ok {
			continue
		}
		events, ok := manifest.AsMap(raw)
		if !ok {
			log.Warn(log.CatHook, "Ignoring hooks that are not a mapping", "plugin", name, "key", key)
			continue
		}
		for _, event := range sortedKeys(events) {
			found, err := parseEvent(name, event, events[event])
			if err != nil {
				log.ErrorErr(log.CatHook, "Ignoring malformed hook", err, "plugin", name, "event", event)
				continue
			}
			hooks = append(hooks, found...)
		}
	}
	log.Debug(log.CatHook, "Aggregated hooks", "key", key, "count", len(hooks))
	return hooks
}

func parseEvent(plugin, event string, raw any) ([]Descriptor, error) {
	var items []any
	switch v := raw.(type) {
	case []any:
		items = v
	case nil:
		return nil, nil
	default:
		items = []any{v}
	}

	hooks := make([]Descriptor, 0, len(items))
	for _, item := range items {
		d := Descriptor{Event: event, Plugin: plugin}
		switch v := item.(type) {
		case string:
			d.Handler = v
		default:
			m, ok := manifest.AsMap(v)
			if !ok {
				return nil, fmt.Errorf("hook must be a handler name or mapping, got %T", item)
			}
			d.Handler, _ = m["handler"].(string)
			if p, present := m["priority"]; present {
				priority, ok := p.(int)
				if !ok {
					return nil, fmt.Errorf("priority must be an integer, got %T", p)
				}
				d.Priority = priority
			}
			if args, ok := manifest.AsMap(m["args"]); ok {
				d.Args = manifest.Clone(args)
			}
		}
		if d.Handler == "" {
			return nil, fmt.Errorf("hook has no handler")
		}
		hooks = append(hooks, d)
	}
	return hooks, nil
}

package component

import (
	"fmt"

	"github.com/zjrosen/kiln/internal/manifest"
)

// Entry is a registry entry found at a component key. Two shapes are
// accepted:
//
//	key: installer.catalog
//	key: {factory: installer.catalog, defaults: {catalog: /srv/plugins}}
type Entry struct {
	Key      string
	Factory  string
	Defaults Args
}

// ParseEntry decodes the raw value found at key.
func ParseEntry(key string, raw any) (Entry, error) {
	if ref, ok := raw.(string); ok {
		if ref == "" {
			return Entry{}, fmt.Errorf("%s: empty factory: %w", key, ErrInvalidEntry)
		}
		return Entry{Key: key, Factory: ref}, nil
	}

	m, ok := manifest.AsMap(raw)
	if !ok {
		return Entry{}, fmt.Errorf("%s: expected a factory name or mapping, got %T: %w", key, raw, ErrInvalidEntry)
	}

	ref, ok := m["factory"].(string)
	if !ok || ref == "" {
		return Entry{}, fmt.Errorf("%s: missing factory: %w", key, ErrInvalidEntry)
	}

	entry := Entry{Key: key, Factory: ref}
	if rawDefaults, present := m["defaults"]; present && rawDefaults != nil {
		defaults, ok := manifest.AsMap(rawDefaults)
		if !ok {
			return Entry{}, fmt.Errorf("%s: defaults must be a mapping: %w", key, ErrInvalidEntry)
		}
		entry.Defaults = Args(manifest.Clone(defaults))
	}
	return entry, nil
}

// mergeArgs layers each argument set over the previous one.
func mergeArgs(layers ...Args) Args {
	out := map[string]any{}
	for _, layer := range layers {
		out = manifest.DeepMerge(out, layer)
	}
	return out
}

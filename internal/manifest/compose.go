package manifest

import (
	"github.com/zjrosen/kiln/internal/log"
	"github.com/zjrosen/kiln/internal/plugin"
)

// StrippedFields are descriptive plugin fields that never reach the
// composed manifest.
var StrippedFields = []string{"name", "description", "enabled", "hidden"}

// Sanitize returns a copy of fragment without StrippedFields.
func Sanitize(fragment map[string]any) map[string]any {
	out := Clone(fragment)
	if out == nil {
		return map[string]any{}
	}
	for _, field := range StrippedFields {
		delete(out, field)
	}
	return out
}

// Compose builds the manifest for plugins given in discovery order. Plugins
// are added in reverse so that the first-discovered plugin is merged last
// and wins every leaf conflict.
func Compose(plugins []*plugin.Plugin) *Manifest {
	m := New()
	for i := len(plugins) - 1; i >= 0; i-- {
		p := plugins[i]
		m.Add(p.Name, Sanitize(p.Manifest))
	}
	log.Debug(log.CatManifest, "Composed manifest", "plugins", m.Len(), "order", m.Names())
	return m
}

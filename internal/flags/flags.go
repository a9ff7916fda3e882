// Package flags provides read-only feature flags loaded from the `flags`
// section of the config file. Unknown flags are off.
package flags

import (
	"maps"
	"slices"

	"github.com/zjrosen/kiln/internal/log"
)

const (
	// FlagManifestDiff logs a line diff of the composed manifest after every
	// reinit that changed it.
	FlagManifestDiff = "manifest-diff"

	// FlagLenientHooks skips hooks that name an unregistered handler instead
	// of failing the run.
	FlagLenientHooks = "lenient-hooks"
)

// Known maps every flag kiln reads to a one-line description.
var Known = map[string]string{
	FlagManifestDiff: "Log the manifest diff after each reinit",
	FlagLenientHooks: "Skip hooks naming an unknown handler",
}

// Registry holds flag state. It is never mutated after New.
type Registry struct {
	flags map[string]bool
}

// New creates a Registry from the config map. The map is copied.
func New(flags map[string]bool) *Registry {
	r := &Registry{flags: maps.Clone(flags)}
	if r.flags == nil {
		r.flags = make(map[string]bool)
	}
	for name := range r.flags {
		if _, ok := Known[name]; !ok {
			log.Warn(log.CatConfig, "Unrecognized feature flag", "flag", name)
		}
	}
	log.Debug(log.CatConfig, "Feature flags initialized", "count", len(r.flags))
	return r
}

// Enabled reports whether name is on. Unknown flags and a nil registry are off.
func (r *Registry) Enabled(name string) bool {
	if r == nil {
		return false
	}
	return r.flags[name]
}

// All returns a copy of the configured flags.
func (r *Registry) All() map[string]bool {
	if r == nil {
		return map[string]bool{}
	}
	out := make(map[string]bool, len(r.flags))
	maps.Copy(out, r.flags)
	return out
}

// Names returns the known flag names, sorted.
func Names() []string {
	return slices.Sorted(maps.Keys(Known))
}

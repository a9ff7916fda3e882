// Package manifest composes plugin manifests into the single tree the rest of
// kiln reads from.
package manifest

import (
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"
)

// RegistryKey is the top-level key holding component registry entries.
const RegistryKey = "registry"

// Manifest is an ordered set of named fragments plus the tree obtained by
// deep-merging them in insertion order. A later fragment wins at the leaf.
// A composed Manifest is never modified; recomposition builds a new one.
type Manifest struct {
	order     []string
	fragments map[string]map[string]any
	merged    map[string]any
}

// Data is the serializable form stored in the cache.
type Data struct {
	Order     []string                  `json:"order" yaml:"order"`
	Fragments map[string]map[string]any `json:"fragments" yaml:"fragments"`
}

// New returns an empty manifest.
func New() *Manifest {
	return &Manifest{
		fragments: make(map[string]map[string]any),
		merged:    make(map[string]any),
	}
}

// FromData rebuilds a manifest from its cached form.
func FromData(d Data) *Manifest {
	m := New()
	for _, name := range d.Order {
		m.Add(name, d.Fragments[name])
	}
	return m
}

// Add appends fragment under name and merges it over the current tree.
// Adding a name twice replaces its fragment and moves it to the end.
func (m *Manifest) Add(name string, fragment map[string]any) {
	fragment = Clone(fragment)
	if fragment == nil {
		fragment = map[string]any{}
	}

	if _, exists := m.fragments[name]; exists {
		m.order = slices.DeleteFunc(m.order, func(n string) bool { return n == name })
		m.fragments[name] = fragment
		m.order = append(m.order, name)
		m.rebuild()
		return
	}

	m.order = append(m.order, name)
	m.fragments[name] = fragment
	m.merged = DeepMerge(m.merged, fragment)
}

func (m *Manifest) rebuild() {
	m.merged = make(map[string]any)
	for _, name := range m.order {
		m.merged = DeepMerge(m.merged, m.fragments[name])
	}
}

// Names returns fragment names in insertion order.
func (m *Manifest) Names() []string {
	return slices.Clone(m.order)
}

// Len returns the number of fragments.
func (m *Manifest) Len() int { return len(m.order) }

// Fragment returns a copy of the fragment added under name.
func (m *Manifest) Fragment(name string) (map[string]any, bool) {
	f, ok := m.fragments[name]
	if !ok {
		return nil, false
	}
	return Clone(f), true
}

// Tree returns a copy of the merged tree.
func (m *Manifest) Tree() map[string]any {
	return Clone(m.merged)
}

// Get looks up a dotted path in the merged tree.
func (m *Manifest) Get(path string) (any, bool) {
	v, ok := GetByPath(m.merged, path)
	if !ok {
		return nil, false
	}
	return cloneValue(v), true
}

// Registry returns a copy of the merged registry sub-tree, empty when no
// fragment declares one.
func (m *Manifest) Registry() map[string]any {
	reg, ok := AsMap(m.merged[RegistryKey])
	if !ok {
		return map[string]any{}
	}
	return Clone(reg)
}

// Data returns the serializable form.
func (m *Manifest) Data() Data {
	d := Data{
		Order:     slices.Clone(m.order),
		Fragments: make(map[string]map[string]any, len(m.fragments)),
	}
	for name, f := range m.fragments {
		d.Fragments[name] = Clone(f)
	}
	return d
}

// YAML renders the merged tree.
func (m *Manifest) YAML() (string, error) {
	if len(m.merged) == 0 {
		return "", nil
	}
	out, err := yaml.Marshal(m.merged)
	if err != nil {
		return "", fmt.Errorf("rendering manifest: %w", err)
	}
	return string(out), nil
}

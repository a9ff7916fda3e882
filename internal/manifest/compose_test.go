package manifest

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zjrosen/kiln/internal/plugin"
)

func newPlugin(name string, manifest map[string]any) *plugin.Plugin {
	return &plugin.Plugin{Name: name, Type: plugin.TypeApp, Enabled: true, Manifest: manifest}
}

func TestCompose_FirstDiscoveredWins(t *testing.T) {
	plugins := []*plugin.Plugin{
		newPlugin("alpha", map[string]any{
			"port":     8080,
			"services": map[string]any{"web": "nginx"},
		}),
		newPlugin("beta", map[string]any{
			"port":     9090,
			"services": map[string]any{"web": "apache", "db": "mysql"},
			"tooling":  []any{"composer"},
		}),
	}

	m := Compose(plugins)

	require.Equal(t, []string{"beta", "alpha"}, m.Names(), "fragments are added in reverse discovery order")
	port, ok := m.Get("port")
	require.True(t, ok)
	require.Equal(t, 8080, port)
	require.Equal(t, map[string]any{
		"port":     8080,
		"services": map[string]any{"web": "nginx", "db": "mysql"},
		"tooling":  []any{"composer"},
	}, m.Tree())
}

func TestCompose_StripsDescriptiveFields(t *testing.T) {
	m := Compose([]*plugin.Plugin{
		newPlugin("alpha", map[string]any{
			"name": "alpha", "description": "d", "enabled": true, "hidden": false,
			"version": "1.0.0",
		}),
	})

	require.Equal(t, map[string]any{"version": "1.0.0"}, m.Tree())
	fragment, ok := m.Fragment("alpha")
	require.True(t, ok)
	require.Equal(t, map[string]any{"version": "1.0.0"}, fragment)
}

func TestCompose_Empty(t *testing.T) {
	m := Compose(nil)

	require.Zero(t, m.Len())
	require.Empty(t, m.Tree())
	require.Empty(t, m.Registry())
	out, err := m.YAML()
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestCompose_DoesNotMutatePluginManifests(t *testing.T) {
	original := map[string]any{"name": "alpha", "services": map[string]any{"web": "nginx"}}
	p := newPlugin("alpha", original)

	m := Compose([]*plugin.Plugin{p})
	tree := m.Tree()
	tree["services"].(map[string]any)["web"] = "changed"

	require.Equal(t, "alpha", original["name"])
	require.Equal(t, "nginx", original["services"].(map[string]any)["web"])
	web, _ := m.Get("services.web")
	require.Equal(t, "nginx", web, "Tree returns a copy")
}

func TestSanitize(t *testing.T) {
	require.Equal(t, map[string]any{}, Sanitize(nil))
	require.Equal(t,
		map[string]any{"nested": map[string]any{"name": "kept"}},
		Sanitize(map[string]any{"name": "x", "nested": map[string]any{"name": "kept"}}),
		"only top-level descriptive fields are stripped")
}

// Generated plugins each set "k" to their own index with some probability.
// The composed value must belong to the first plugin that set it.
func TestCompose_OverrideOrderProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 8).Draw(t, "n")
		plugins := make([]*plugin.Plugin, n)
		winner := -1
		for i := range plugins {
			fragment := map[string]any{
				"own": map[string]any{fmt.Sprintf("p%d", i): i},
			}
			if rapid.Bool().Draw(t, fmt.Sprintf("sets-%d", i)) {
				fragment["k"] = i
				fragment["nested"] = map[string]any{"k": i}
				if winner < 0 {
					winner = i
				}
			}
			plugins[i] = newPlugin(fmt.Sprintf("p%d", i), fragment)
		}

		m := Compose(plugins)

		got, ok := m.Get("k")
		nested, nestedOK := m.Get("nested.k")
		if winner < 0 {
			if ok || nestedOK {
				t.Fatalf("k resolved to %v with no plugin setting it", got)
			}
		} else if got != winner || nested != winner {
			t.Fatalf("k = %v, nested.k = %v, want %d", got, nested, winner)
		}

		for i := range plugins {
			if v, ok := m.Get(fmt.Sprintf("own.p%d", i)); !ok || v != i {
				t.Fatalf("own.p%d = %v, non-conflicting keys must survive", i, v)
			}
		}
	})
}

func TestCompose_FieldStrippingProperty(t *testing.T) {
	keys := append([]string{"version", "registry", "hooks", "port"}, StrippedFields...)
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 6).Draw(t, "n")
		plugins := make([]*plugin.Plugin, n)
		for i := range plugins {
			fragment := map[string]any{}
			for _, key := range rapid.SliceOfDistinct(rapid.SampledFrom(keys), rapid.ID[string]).Draw(t, fmt.Sprintf("keys-%d", i)) {
				fragment[key] = rapid.String().Draw(t, fmt.Sprintf("%s-%d", key, i))
			}
			plugins[i] = newPlugin(fmt.Sprintf("p%d", i), fragment)
		}

		m := Compose(plugins)

		for _, field := range StrippedFields {
			if _, ok := m.Tree()[field]; ok {
				t.Fatalf("merged tree contains %q", field)
			}
			for _, name := range m.Names() {
				fragment, _ := m.Fragment(name)
				if _, ok := fragment[field]; ok {
					t.Fatalf("fragment %s contains %q", name, field)
				}
			}
		}
	})
}

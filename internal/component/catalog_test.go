package component

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func noopFactory(ctx context.Context, args Args) (any, error) { return args, nil }

func TestCatalog_RegisterLookup(t *testing.T) {
	c := NewCatalog()
	require.NoError(t, c.Register("b.factory", noopFactory))
	require.NoError(t, c.Register("a.factory", noopFactory))

	_, ok := c.Lookup("a.factory")
	require.True(t, ok)
	_, ok = c.Lookup("missing")
	require.False(t, ok)
	require.Equal(t, []string{"a.factory", "b.factory"}, c.Refs())
}

func TestCatalog_RegisterRejectsDuplicatesAndBlanks(t *testing.T) {
	c := NewCatalog()
	require.NoError(t, c.Register("x", noopFactory))
	require.ErrorIs(t, c.Register("x", noopFactory), ErrDuplicateFactory)
	require.Error(t, c.Register("", noopFactory))
	require.Error(t, c.Register("y", nil))

	require.Panics(t, func() { c.MustRegister("x", noopFactory) })
}

func TestArgsAccessors(t *testing.T) {
	args := Args{"name": "php", "on": true, "n": 3}
	require.Equal(t, "php", args.String("name"))
	require.Equal(t, "", args.String("n"))
	require.True(t, args.Bool("on"))
	require.False(t, args.Bool("missing"))
}

func TestParseEntry(t *testing.T) {
	entry, err := ParseEntry("app.greeter", "test.greeter")
	require.NoError(t, err)
	require.Equal(t, Entry{Key: "app.greeter", Factory: "test.greeter"}, entry)

	entry, err = ParseEntry("app.greeter", map[string]any{
		"factory":  "test.greeter",
		"defaults": map[string]any{"greeting": "hi"},
	})
	require.NoError(t, err)
	require.Equal(t, "test.greeter", entry.Factory)
	require.Equal(t, Args{"greeting": "hi"}, entry.Defaults)

	for name, raw := range map[string]any{
		"empty string":     "",
		"number":           42,
		"list":             []any{"x"},
		"missing factory":  map[string]any{"defaults": map[string]any{}},
		"factory not text": map[string]any{"factory": 3},
		"scalar defaults":  map[string]any{"factory": "f", "defaults": "nope"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseEntry("k", raw)
			require.ErrorIs(t, err, ErrInvalidEntry)
		})
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func readYAML(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, yaml.Unmarshal(data, &out))
	return out
}

func TestSaveKeys_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".kiln", "config.yaml")

	require.NoError(t, SaveKeys(path, map[string]any{"core.id": "abc"}))

	got := readYAML(t, path)
	require.Equal(t, map[string]any{"core": map[string]any{"id": "abc"}}, got)
}

func TestSaveKeys_PreservesCommentsAndSiblings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	original := `# kiln configuration
core:
  caching: true # keep me
  channel: stable
hooks:
  source: hooks
`
	require.NoError(t, os.WriteFile(path, []byte(original), 0o600))

	require.NoError(t, SaveKeys(path, map[string]any{
		"core": map[string]any{"id": "1234", "channel": "edge"},
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	require.Contains(t, content, "# kiln configuration")
	require.Contains(t, content, "# keep me")

	got := readYAML(t, path)
	core := got["core"].(map[string]any)
	require.Equal(t, true, core["caching"])
	require.Equal(t, "edge", core["channel"])
	require.Equal(t, "1234", core["id"])
	require.Equal(t, map[string]any{"source": "hooks"}, got["hooks"])
}

func TestSaveKeys_ReplacesScalarWithMapping(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("managed: none\n"), 0o600))

	require.NoError(t, SaveKeys(path, map[string]any{"managed.php.version": "8.3"}))

	got := readYAML(t, path)
	require.Equal(t, map[string]any{"php": map[string]any{"version": "8.3"}}, got["managed"])
}

func TestSaveKeys_RejectsNonMappingRoot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- a\n- b\n"), 0o600))

	require.Error(t, SaveKeys(path, map[string]any{"core.id": "x"}))
}

func TestExpandDotted(t *testing.T) {
	got := expandDotted(map[string]any{
		"core.id":      "x",
		"core.channel": "edge",
		"hooks":        map[string]any{"source": "product"},
	})
	require.Equal(t, map[string]any{
		"core":  map[string]any{"id": "x", "channel": "edge"},
		"hooks": map[string]any{"source": "product"},
	}, got)
}

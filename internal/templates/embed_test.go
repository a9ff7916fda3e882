package templates

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestPluginsFS_EveryPluginHasManifest(t *testing.T) {
	fsys := PluginsFS()

	entries, err := fs.ReadDir(fsys, ".")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	for _, entry := range entries {
		require.True(t, entry.IsDir(), "unexpected file at plugins root: %s", entry.Name())

		data, err := fs.ReadFile(fsys, entry.Name()+"/plugin.yaml")
		require.NoError(t, err, "plugin %s has no plugin.yaml", entry.Name())

		var manifest map[string]any
		require.NoError(t, yaml.Unmarshal(data, &manifest))
		require.Equal(t, entry.Name(), manifest["name"])
	}
}

func TestPluginsFS_CoreDeclaresInstaller(t *testing.T) {
	data, err := fs.ReadFile(PluginsFS(), "core/plugin.yaml")
	require.NoError(t, err)

	var manifest struct {
		Registry struct {
			Core map[string]struct {
				Factory string `yaml:"factory"`
			} `yaml:"core"`
		} `yaml:"registry"`
	}
	require.NoError(t, yaml.Unmarshal(data, &manifest))
	require.Equal(t, "installer.catalog", manifest.Registry.Core["plugin-installer"].Factory)
}

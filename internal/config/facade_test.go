package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	f, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, path, f.Path())

	cfg, err := f.Config()
	require.NoError(t, err)
	require.Equal(t, "kiln", cfg.Core.Product)
	require.Equal(t, HookSourceHooks, cfg.Hooks.Source)
	require.Len(t, cfg.Plugins.Dirs, 2)
}

func TestLoad_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `core:
  product: forge
  cache_backend: sqlite
plugins:
  dirs:
    - path: /opt/plugins
      type: global
  disabled: [legacy]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	f, err := Load(path)
	require.NoError(t, err)

	cfg, err := f.Config()
	require.NoError(t, err)
	require.Equal(t, "forge", cfg.Core.Product)
	require.Equal(t, BackendSQLite, cfg.Core.CacheBackend)
	require.True(t, cfg.Core.Caching, "unset keys keep defaults")
	require.Equal(t, []PluginDir{{Path: "/opt/plugins", Type: "global"}}, cfg.Plugins.Dirs)
	require.Equal(t, []string{"legacy"}, cfg.Plugins.Disabled)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("KILN_CORE_CHANNEL", "edge")

	f, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)

	require.Equal(t, "edge", f.GetString("core.channel"))
	cfg, err := f.Config()
	require.NoError(t, err)
	require.Equal(t, "edge", cfg.Core.Channel)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("core: [unclosed"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestFacade_SaveIsVisibleAndPersisted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	f, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, f.Save(map[string]any{"core": map[string]any{"id": "abc-123"}}))
	require.Equal(t, "abc-123", f.GetString("core.id"))

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "abc-123", reloaded.GetString("core.id"))
}

func TestFacade_SetIsNotPersisted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	f, err := Load(path)
	require.NoError(t, err)

	f.Set("core.caching", false)
	require.False(t, f.GetBool("core.caching"))

	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestFacade_NamespacedDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("php:\n  version: \"8.1\"\n"), 0o600))
	f, err := Load(path)
	require.NoError(t, err)

	f.Defaults("php", map[string]any{"version": "8.3", "extensions": []string{"xdebug"}})

	require.Equal(t, "8.1", f.GetString("php.version"), "file value wins over defaults")
	require.Equal(t, []string{"xdebug"}, f.GetStringSlice("php.extensions"))
	require.Nil(t, f.Get("php.missing"))
}

func TestFacade_Managed(t *testing.T) {
	f, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	require.Equal(t, "managed", f.Managed())
}

func TestResolvePath(t *testing.T) {
	require.Equal(t, "/explicit.yaml", ResolvePath("/explicit.yaml"))

	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	require.Equal(t, ProjectConfigPath, ResolvePath(""), "falls back to the project path")

	user := filepath.Join(dir, ".config", "kiln", "config.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(user), 0o750))
	require.NoError(t, os.WriteFile(user, []byte("{}\n"), 0o600))
	require.Equal(t, user, ResolvePath(""))

	require.NoError(t, os.MkdirAll(".kiln", 0o750))
	require.NoError(t, os.WriteFile(ProjectConfigPath, []byte("{}\n"), 0o600))
	require.Equal(t, ProjectConfigPath, ResolvePath(""))
}

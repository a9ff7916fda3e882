package installer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/kiln/internal/component"
	"github.com/zjrosen/kiln/internal/plugin"
	"github.com/zjrosen/kiln/internal/testutil"
)

func TestCatalog_Install(t *testing.T) {
	catalog := testutil.NewBuilder(t, "").
		WithPlugin("php", testutil.Version("8.3"), testutil.Readme("# php")).
		Build()
	dest := filepath.Join(t.TempDir(), "plugins")

	dir, err := NewCatalog(catalog).Install(context.Background(), "php@8.3", dest, "")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dest, "php"), dir)

	readme, err := os.ReadFile(filepath.Join(dir, "README.md"))
	require.NoError(t, err)
	require.Equal(t, "# php", string(readme))
	_, err = os.Stat(filepath.Join(dir, "plugin.yaml"))
	require.NoError(t, err)

	entries, err := os.ReadDir(dest)
	require.NoError(t, err)
	require.Len(t, entries, 1, "only the plugin directory is created")
}

func TestCatalog_PrefersChannelDir(t *testing.T) {
	root := t.TempDir()
	testutil.NewBuilder(t, root).WithPlugin("php", testutil.Version("stable")).Build()
	testutil.NewBuilder(t, filepath.Join(root, "edge")).WithPlugin("php", testutil.Version("edge")).Build()
	ctx := context.Background()

	edgeDir, err := NewCatalog(root).Install(ctx, "php", filepath.Join(t.TempDir(), "a"), "edge")
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(edgeDir, "plugin.yaml"))
	require.NoError(t, err)
	require.Contains(t, string(data), "version: edge")

	stableDir, err := NewCatalog(root).Install(ctx, "php", filepath.Join(t.TempDir(), "b"), "stable")
	require.NoError(t, err, "missing channel dir falls back to the catalog root")
	data, err = os.ReadFile(filepath.Join(stableDir, "plugin.yaml"))
	require.NoError(t, err)
	require.Contains(t, string(data), "version: stable")
}

func TestCatalog_Errors(t *testing.T) {
	ctx := context.Background()
	root := testutil.NewBuilder(t, "").WithPlugin("php").Build()
	dest := t.TempDir()

	_, err := NewCatalog(root).Install(ctx, "ruby", dest, "")
	require.ErrorIs(t, err, ErrNotInCatalog)

	_, err = NewCatalog("").Install(ctx, "php", dest, "")
	require.ErrorIs(t, err, ErrNotInCatalog)

	_, err = NewCatalog(root).Install(ctx, "php", dest, "")
	require.NoError(t, err)
	_, err = NewCatalog(root).Install(ctx, "php", dest, "")
	require.ErrorIs(t, err, ErrAlreadyInstalled)
}

func TestCatalog_InMemoryScopedPlugin(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/catalog/@acme/tools/plugin.yaml", []byte("name: \"@acme/tools\"\n"), 0o600))
	require.NoError(t, afero.WriteFile(fs, "/catalog/@acme/tools/bin/run.sh", []byte("#!/bin/sh\n"), 0o700))

	dir, err := NewCatalogFs(fs, "/catalog").Install(context.Background(), "@acme/tools@1.0.0", "/plugins", "")
	require.NoError(t, err)
	require.Equal(t, filepath.Join("/plugins", "@acme", "tools"), dir)

	data, err := afero.ReadFile(fs, filepath.Join(dir, "bin", "run.sh"))
	require.NoError(t, err)
	require.Equal(t, "#!/bin/sh\n", string(data))
}

func TestCatalog_RejectsTraversal(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/evil/plugin.yaml", []byte("name: evil\n"), 0o600))

	_, err := NewCatalogFs(fs, "/catalog").Install(context.Background(), "../evil", "/plugins", "")
	require.ErrorIs(t, err, plugin.ErrInvalidName)
	exists, _ := afero.DirExists(fs, "/evil")
	require.True(t, exists)
	exists, _ = afero.DirExists(fs, "/plugins")
	require.False(t, exists, "nothing is written for a rejected name")
}

func TestFactory(t *testing.T) {
	catalog := component.NewCatalog()
	require.NoError(t, Register(catalog))

	build, ok := catalog.Lookup(FactoryRef)
	require.True(t, ok)

	instance, err := build(context.Background(), component.Args{"catalog": "/srv/catalog"})
	require.NoError(t, err)
	require.Equal(t, "/srv/catalog", instance.(*Catalog).Root())

	_, err = build(context.Background(), component.Args{})
	require.Error(t, err)
}

// Package installer provides the catalog installer behind the
// core.plugin-installer component.
package installer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/zjrosen/kiln/internal/component"
	"github.com/zjrosen/kiln/internal/log"
	"github.com/zjrosen/kiln/internal/plugin"
)

// FactoryRef is the factory name registry entries use for this installer.
const FactoryRef = "installer.catalog"

var (
	// ErrNotInCatalog is returned when the catalog holds no plugin by that name.
	ErrNotInCatalog = errors.New("plugin not in catalog")

	// ErrAlreadyInstalled is returned when the destination already exists.
	ErrAlreadyInstalled = errors.New("plugin already installed")
)

// Catalog installs plugins by copying them out of a catalog directory laid
// out as <root>/<name> or, per release channel, <root>/<channel>/<name>.
type Catalog struct {
	fs   afero.Fs
	root string
}

var _ plugin.Installer = (*Catalog)(nil)

// NewCatalog returns an installer reading from root on the OS filesystem.
func NewCatalog(root string) *Catalog {
	return NewCatalogFs(afero.NewOsFs(), root)
}

// NewCatalogFs returns an installer over an arbitrary filesystem.
func NewCatalogFs(fs afero.Fs, root string) *Catalog {
	return &Catalog{fs: fs, root: root}
}

// Root returns the catalog directory.
func (c *Catalog) Root() string { return c.root }

// Install copies the plugin into dest/<name> and returns that directory.
// A channel subdirectory is preferred over the catalog root. A failed copy
// leaves nothing behind.
func (c *Catalog) Install(ctx context.Context, name, dest, channel string) (string, error) {
	bare := plugin.ParseName(name)
	if !plugin.ValidName(bare) {
		return "", fmt.Errorf("%q: %w", name, plugin.ErrInvalidName)
	}
	src, err := c.locate(bare, channel)
	if err != nil {
		return "", err
	}

	target := filepath.Join(dest, filepath.FromSlash(bare))
	if exists, _ := afero.Exists(c.fs, target); exists {
		return "", fmt.Errorf("%s: %w", target, ErrAlreadyInstalled)
	}
	if err := c.copyTree(ctx, src, target); err != nil {
		_ = c.fs.RemoveAll(target)
		return "", err
	}

	log.Info(log.CatPlugin, "Installed plugin", "name", bare, "from", src, "to", target)
	return target, nil
}

func (c *Catalog) locate(name, channel string) (string, error) {
	if c.root == "" {
		return "", fmt.Errorf("%s: no catalog configured: %w", name, ErrNotInCatalog)
	}
	var candidates []string
	if channel != "" {
		candidates = append(candidates, filepath.Join(c.root, channel, filepath.FromSlash(name)))
	}
	candidates = append(candidates, filepath.Join(c.root, filepath.FromSlash(name)))

	for _, candidate := range candidates {
		if ok, _ := afero.DirExists(c.fs, candidate); ok {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%s in %s: %w", name, c.root, ErrNotInCatalog)
}

func (c *Catalog) copyTree(ctx context.Context, src, dst string) error {
	return afero.Walk(c.fs, src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if info.IsDir() {
			return c.fs.MkdirAll(target, 0o750)
		}
		data, err := afero.ReadFile(c.fs, path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		if err := afero.WriteFile(c.fs, target, data, info.Mode().Perm()); err != nil {
			return fmt.Errorf("writing %s: %w", target, err)
		}
		return nil
	})
}

// Factory builds a Catalog from component args; "catalog" names the root.
func Factory(ctx context.Context, args component.Args) (any, error) {
	root := args.String("catalog")
	if root == "" {
		return nil, fmt.Errorf("installer.catalog: catalog argument is required")
	}
	return NewCatalog(root), nil
}

// Register adds the installer factory to catalog.
func Register(catalog *component.Catalog) error {
	return catalog.Register(FactoryRef, Factory)
}

package plugin

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zjrosen/kiln/internal/log"
)

// Manifest file names, in lookup order.
const (
	ManifestFile    = "plugin.yaml"
	altManifestFile = "plugin.yml"
)

const (
	channelStable = "stable"
	channelEdge   = "edge"
)

// Dir is one plugin search directory.
type Dir struct {
	Path string
	Type Type
}

// DiscoverOptions narrows a discovery pass.
type DiscoverOptions struct {
	Type     Type     // TypeAll (default) or a single plugin type
	Channel  string   // Release channel; "stable" when empty
	Disabled []string // Plugin names to report as disabled
}

func (o DiscoverOptions) includes(t Type) bool {
	return o.Type == "" || o.Type == TypeAll || o.Type == t
}

func (o DiscoverOptions) channel() string {
	if o.Channel == "" {
		return channelStable
	}
	return o.Channel
}

// FetchOptions configures Fetch.
type FetchOptions struct {
	Channel   string
	Installer Installer
	Type      Type // Type recorded on the fetched plugin; TypeUser when empty
}

// Installer places a plugin named name under dest and returns the directory
// it was installed to.
type Installer interface {
	Install(ctx context.Context, name, dest, channel string) (string, error)
}

// Source discovers and fetches plugins.
type Source interface {
	Discover(ctx context.Context, dirs []Dir, opts DiscoverOptions) (Discovery, error)
	Fetch(ctx context.Context, name, dest string, opts FetchOptions) (*Plugin, error)
}

// DirSource discovers plugins from an embedded core set followed by search
// directories on disk. Each child directory holding a plugin.yaml (or
// plugin.yml) is a plugin; "@scope" directories are searched one level down.
type DirSource struct {
	builtin fs.FS
}

var _ Source = (*DirSource)(nil)

// NewDirSource creates a source. builtin holds core plugins, one per
// top-level directory, and may be nil.
func NewDirSource(builtin fs.FS) *DirSource {
	return &DirSource{builtin: builtin}
}

// Discover walks the core set, then dirs in order. When two plugins share a
// name the first one found is kept. A plugin that fails to load is reported
// in Invalid; only a failure to read a search directory is an error.
func (s *DirSource) Discover(ctx context.Context, dirs []Dir, opts DiscoverOptions) (Discovery, error) {
	var d Discovery
	seen := make(map[string]string)
	disabled := make(map[string]bool, len(opts.Disabled))
	for _, name := range opts.Disabled {
		disabled[ParseName(name)] = true
	}

	add := func(p *Plugin, from string) {
		if first, dup := seen[p.Name]; dup {
			log.Warn(log.CatPlugin, "Ignoring duplicate plugin", "name", p.Name, "dir", from, "kept", first)
			return
		}
		seen[p.Name] = from
		switch {
		case p.Error != "":
			d.Invalid = append(d.Invalid, p)
		case p.Enabled:
			d.Enabled = append(d.Enabled, p)
		default:
			d.Disabled = append(d.Disabled, p)
		}
	}

	if s.builtin != nil && opts.includes(TypeCore) {
		found, err := s.scan(ctx, s.builtin, "", TypeCore, opts, disabled)
		if err != nil {
			return Discovery{}, fmt.Errorf("reading core plugins: %w", err)
		}
		for _, p := range found {
			add(p, "<core>")
		}
	}

	for _, dir := range dirs {
		typ := dir.Type
		if typ == "" {
			typ = TypeApp
		}
		if !opts.includes(typ) {
			continue
		}
		if _, err := os.Stat(dir.Path); errors.Is(err, fs.ErrNotExist) {
			log.Debug(log.CatPlugin, "Skipping missing plugin dir", "path", dir.Path)
			continue
		}

		found, err := s.scan(ctx, os.DirFS(dir.Path), dir.Path, typ, opts, disabled)
		if err != nil {
			return Discovery{}, fmt.Errorf("reading plugin dir %s: %w", dir.Path, err)
		}
		for _, p := range found {
			add(p, dir.Path)
		}
	}

	log.Debug(log.CatPlugin, "Discovered plugins",
		"enabled", len(d.Enabled), "disabled", len(d.Disabled), "invalid", len(d.Invalid))
	return d, nil
}

func (s *DirSource) scan(
	ctx context.Context,
	fsys fs.FS,
	root string,
	typ Type,
	opts DiscoverOptions,
	disabled map[string]bool,
) ([]*Plugin, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}

	var plugins []*Plugin
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") || !isDir(fsys, entry) {
			continue
		}

		if hasManifest(fsys, name) {
			plugins = append(plugins, load(fsys, name, root, typ, opts, disabled))
			continue
		}
		if !strings.HasPrefix(name, "@") {
			continue
		}

		children, err := fs.ReadDir(fsys, name)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			rel := path.Join(name, child.Name())
			if child.IsDir() && hasManifest(fsys, rel) {
				plugins = append(plugins, load(fsys, rel, root, typ, opts, disabled))
			}
		}
	}
	return plugins, nil
}

func isDir(fsys fs.FS, entry fs.DirEntry) bool {
	if entry.IsDir() {
		return true
	}
	if entry.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := fs.Stat(fsys, entry.Name())
	return err == nil && info.IsDir()
}

func hasManifest(fsys fs.FS, rel string) bool {
	for _, file := range []string{ManifestFile, altManifestFile} {
		if _, err := fs.Stat(fsys, path.Join(rel, file)); err == nil {
			return true
		}
	}
	return false
}

// load never fails: problems are recorded on the returned plugin.
func load(fsys fs.FS, rel, root string, typ Type, opts DiscoverOptions, disabled map[string]bool) *Plugin {
	p := &Plugin{Name: rel, Type: typ}
	if root != "" {
		p.Dir = filepath.Join(root, filepath.FromSlash(rel))
	}

	manifest, err := readManifest(fsys, rel)
	if err == nil {
		err = applyManifest(p, manifest, opts)
	}
	if err != nil {
		log.ErrorErr(log.CatPlugin, "Invalid plugin", err, "name", p.Name, "dir", p.Dir)
		p.Enabled = false
		p.Error = err.Error()
		return p
	}

	if disabled[p.Name] {
		if p.IsCore() {
			log.Warn(log.CatPlugin, "Core plugins cannot be disabled", "name", p.Name)
		} else {
			p.Enabled = false
		}
	}
	return p
}

func readManifest(fsys fs.FS, rel string) (map[string]any, error) {
	var (
		data []byte
		err  error
	)
	for _, file := range []string{ManifestFile, altManifestFile} {
		data, err = fs.ReadFile(fsys, path.Join(rel, file))
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}

	var manifest map[string]any
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	if manifest == nil {
		manifest = map[string]any{}
	}
	return manifest, nil
}

func applyManifest(p *Plugin, manifest map[string]any, opts DiscoverOptions) error {
	if raw, ok := manifest["name"]; ok {
		name, ok := raw.(string)
		if !ok {
			return fmt.Errorf("%w: name must be a string", ErrInvalidManifest)
		}
		p.Name = name
	}
	if !ValidName(p.Name) {
		return fmt.Errorf("%w: invalid name %q", ErrInvalidManifest, p.Name)
	}

	enabled, err := boolField(manifest, "enabled", true)
	if err != nil {
		return err
	}
	hidden, err := boolField(manifest, "hidden", false)
	if err != nil {
		return err
	}

	p.Enabled = enabled
	p.Hidden = hidden
	p.Version = scalarField(manifest, "version")
	p.Description = scalarField(manifest, "description")
	p.Manifest = manifest

	if scalarField(manifest, "channel") == channelEdge && opts.channel() == channelStable {
		log.Debug(log.CatPlugin, "Disabling edge plugin on stable channel", "name", p.Name)
		p.Enabled = false
	}
	return nil
}

func boolField(manifest map[string]any, key string, fallback bool) (bool, error) {
	raw, ok := manifest[key]
	if !ok || raw == nil {
		return fallback, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s must be a boolean", ErrInvalidManifest, key)
	}
	return b, nil
}

func scalarField(manifest map[string]any, key string) string {
	switch v := manifest[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case map[string]any, []any:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Fetch installs name under dest through opts.Installer and loads the
// installed manifest. Installer errors are returned unchanged. When the
// installed manifest is unusable the installed directory is removed again.
func (s *DirSource) Fetch(ctx context.Context, name, dest string, opts FetchOptions) (*Plugin, error) {
	if opts.Installer == nil {
		return nil, ErrNoInstaller
	}
	bare := ParseName(name)
	if !ValidName(bare) {
		return nil, fmt.Errorf("%q: %w", name, ErrInvalidName)
	}

	dir, err := opts.Installer.Install(ctx, name, dest, opts.Channel)
	if err != nil {
		return nil, err
	}

	typ := opts.Type
	if typ == "" {
		typ = TypeUser
	}
	p := &Plugin{Name: bare, Type: typ, Dir: dir}

	manifest, err := readManifest(os.DirFS(dir), ".")
	if err == nil {
		err = applyManifest(p, manifest, DiscoverOptions{Channel: opts.Channel})
	}
	if err != nil {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			log.ErrorErr(log.CatPlugin, "Failed to clean up fetched plugin", rmErr, "dir", dir)
		}
		return nil, fmt.Errorf("loading fetched plugin %s: %w", p.Name, err)
	}

	log.Info(log.CatPlugin, "Fetched plugin", "name", p.Name, "dir", dir, "version", p.Version)
	return p, nil
}

// Names returns the names of plugins in order.
func Names(plugins []*Plugin) []string {
	names := make([]string, 0, len(plugins))
	for _, p := range plugins {
		names = append(names, p.Name)
	}
	return names
}

// Visible drops hidden plugins, keeping order.
func Visible(plugins []*Plugin) []*Plugin {
	return slices.DeleteFunc(slices.Clone(plugins), func(p *Plugin) bool { return p.Hidden })
}

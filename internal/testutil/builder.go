// Package testutil builds plugin directory fixtures for tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// Builder accumulates plugin fixtures and writes them under one search dir.
type Builder struct {
	t       *testing.T
	root    string
	plugins []pluginData
}

// NewBuilder creates a builder writing under root. An empty root uses a
// fresh t.TempDir().
func NewBuilder(t *testing.T, root string) *Builder {
	t.Helper()
	if root == "" {
		root = t.TempDir()
	}
	return &Builder{t: t, root: root}
}

// Root returns the search directory the builder writes to.
func (b *Builder) Root() string { return b.root }

// WithPlugin adds a plugin with optional configuration.
func (b *Builder) WithPlugin(name string, opts ...PluginOption) *Builder {
	p := defaultPlugin(name)
	for _, opt := range opts {
		opt(&p)
	}
	b.plugins = append(b.plugins, p)
	return b
}

// WithRawManifest adds a plugin directory whose manifest is written verbatim.
func (b *Builder) WithRawManifest(dir, content string) *Builder {
	p := defaultPlugin(dir)
	p.raw = &content
	b.plugins = append(b.plugins, p)
	return b
}

// Build writes every accumulated plugin and returns the search directory.
func (b *Builder) Build() string {
	b.t.Helper()
	require.NoError(b.t, os.MkdirAll(b.root, 0o750))
	for _, p := range b.plugins {
		b.writePlugin(p)
	}
	return b.root
}

func (b *Builder) writePlugin(p pluginData) {
	b.t.Helper()
	dir := filepath.Join(b.root, filepath.FromSlash(p.dir))
	require.NoError(b.t, os.MkdirAll(dir, 0o750))

	var content []byte
	if p.raw != nil {
		content = []byte(*p.raw)
	} else {
		var err error
		content, err = yaml.Marshal(p.fields)
		require.NoError(b.t, err)
	}
	require.NoError(b.t, os.WriteFile(filepath.Join(dir, p.manifestFile), content, 0o600))

	for name, body := range p.files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(b.t, os.MkdirAll(filepath.Dir(path), 0o750))
		require.NoError(b.t, os.WriteFile(path, []byte(body), 0o600))
	}
}

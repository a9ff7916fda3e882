package templates

import (
	"embed"
	"io/fs"
)

// builtinPlugins embeds the plugins that ship with kiln.
// The structure is:
//   - plugins/<plugin-name>/plugin.yaml
//   - plugins/<plugin-name>/README.md (optional)
//
//go:embed plugins
var builtinPlugins embed.FS

// PluginsFS returns the embedded plugins rooted at the plugins directory, so
// each top-level entry is one plugin.
func PluginsFS() fs.FS {
	sub, err := fs.Sub(builtinPlugins, "plugins")
	if err != nil {
		// fs.Sub only fails for an invalid path literal.
		panic(err)
	}
	return sub
}

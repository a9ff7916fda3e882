// Package paths resolves the per-project .kiln directory.
package paths

import (
	"os"
	"path/filepath"
	"strings"
)

// ProjectDirName is the per-project directory holding config and plugins.
const ProjectDirName = ".kiln"

// RedirectFile, when present inside a .kiln directory, names another .kiln
// directory (relative to the one containing it) to use instead. Git worktrees
// use it to share the main checkout's plugins.
const RedirectFile = "redirect"

// ResolveProjectDir returns the .kiln directory for path.
//
//   - "" or "." -> "./.kiln"
//   - "/proj" -> "/proj/.kiln"
//   - "/proj/.kiln" -> "/proj/.kiln"
//
// A redirect file is followed once.
func ResolveProjectDir(path string) string {
	if path == "" {
		path = "."
	}
	path = filepath.Clean(path)
	if filepath.Base(path) != ProjectDirName {
		path = filepath.Join(path, ProjectDirName)
	}
	return followRedirect(path)
}

// ProjectPluginsDir returns the plugins directory inside the project .kiln dir.
func ProjectPluginsDir(path string) string {
	return filepath.Join(ResolveProjectDir(path), "plugins")
}

func followRedirect(dir string) string {
	content, err := os.ReadFile(filepath.Join(dir, RedirectFile)) //nolint:gosec // redirect file lives inside the .kiln dir
	if err != nil {
		return dir
	}
	target := strings.TrimSpace(string(content))
	if target == "" {
		return dir
	}
	if filepath.IsAbs(target) {
		return filepath.Clean(target)
	}
	return filepath.Clean(filepath.Join(dir, target))
}

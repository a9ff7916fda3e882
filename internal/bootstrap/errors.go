package bootstrap

import (
	"errors"

	"github.com/zjrosen/kiln/internal/plugin"
)

var (
	// ErrPluginNotFound is returned when removing a plugin that was not discovered.
	ErrPluginNotFound = errors.New("plugin not found")

	// ErrProtected is returned when removing a core plugin. It is the same
	// sentinel plugin.Plugin.Remove reports.
	ErrProtected = plugin.ErrProtected

	// ErrNoPluginDir is returned by AddPlugin when no destination was given
	// and no plugin directory is configured.
	ErrNoPluginDir = errors.New("no plugin directory configured")
)

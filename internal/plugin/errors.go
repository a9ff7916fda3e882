package plugin

import "errors"

var (
	// ErrProtected is returned when removing a core plugin.
	ErrProtected = errors.New("plugin is protected")

	// ErrNoDir is returned when removing a plugin that has no directory.
	ErrNoDir = errors.New("plugin has no directory")

	// ErrInvalidManifest marks a plugin.yaml that cannot be used.
	ErrInvalidManifest = errors.New("invalid plugin manifest")

	// ErrInvalidName is returned by Fetch for a name that is not a single
	// directory segment (or @scope/name).
	ErrInvalidName = errors.New("invalid plugin name")

	// ErrNoInstaller is returned by Fetch when no installer was supplied.
	ErrNoInstaller = errors.New("no installer configured")
)

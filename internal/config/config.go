// Package config provides configuration types and defaults for kiln.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/zjrosen/kiln/internal/log"
	"github.com/zjrosen/kiln/internal/paths"
)

// Cache backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Release channels.
const (
	ChannelStable = "stable"
	ChannelEdge   = "edge"
)

// Hook aggregation sources. Any other value is read as a literal fragment key.
const (
	HookSourceHooks   = "hooks"
	HookSourceProduct = "product"
)

// ManagedPrefix is the key prefix under which kiln writes values it manages
// on behalf of plugins.
const ManagedPrefix = "managed"

// Config holds all configuration options for kiln.
type Config struct {
	Core    CoreConfig      `mapstructure:"core"`
	Plugins PluginsConfig   `mapstructure:"plugins"`
	Hooks   HooksConfig     `mapstructure:"hooks"`
	Tracing TracingConfig   `mapstructure:"tracing"`
	Flags   map[string]bool `mapstructure:"flags"`
}

// CoreConfig holds the settings the bootstrap reads at construction.
type CoreConfig struct {
	ID           string `mapstructure:"id"`            // Generated on first run
	Product      string `mapstructure:"product"`       // Name the host application registers under
	Caching      bool   `mapstructure:"caching"`       // Disable to recompute derived state every call
	CacheBackend string `mapstructure:"cache_backend"` // "file" (default), "sqlite" or "memory"
	CacheDir     string `mapstructure:"cache_dir"`
	Channel      string `mapstructure:"channel"` // "stable" (default) or "edge"
}

// PluginDir is one plugin search directory.
type PluginDir struct {
	Path string `mapstructure:"path"`
	Type string `mapstructure:"type"` // "global", "app" or "user"
}

// PluginsConfig holds plugin discovery settings.
type PluginsConfig struct {
	Dirs     []PluginDir `mapstructure:"dirs"`
	Disabled []string    `mapstructure:"disabled"`
	Catalog  string      `mapstructure:"catalog"` // Root of the local plugin catalog used by `plugins add`
	Type     string      `mapstructure:"type"`    // Discovery scope: "all" (default) or one plugin type
}

// HooksConfig selects where hook declarations are read from in each manifest fragment.
type HooksConfig struct {
	Source string `mapstructure:"source"`
}

// TracingConfig holds distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether tracing is active.
	// Default: false
	Enabled bool `mapstructure:"enabled"`

	// Exporter selects the trace export backend.
	// Options: "none", "file", "stdout", "otlp"
	// Default: "file"
	Exporter string `mapstructure:"exporter"`

	// FilePath is the output file for "file" exporter.
	// Default: ~/.config/kiln/traces/traces.jsonl
	FilePath string `mapstructure:"file_path"`

	// OTLPEndpoint is the collector endpoint for "otlp" exporter.
	// Default: "localhost:4317"
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`

	// SampleRate controls trace sampling (0.0 to 1.0).
	SampleRate float64 `mapstructure:"sample_rate"`
}

var pluginDirTypes = []string{"global", "app", "user"}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Core: CoreConfig{
			Product:      "kiln",
			Caching:      true,
			CacheBackend: BackendFile,
			CacheDir:     DefaultCacheDir(),
			Channel:      ChannelStable,
		},
		Plugins: PluginsConfig{
			Dirs: []PluginDir{
				{Path: filepath.Join(UserConfigDir(), "plugins"), Type: "global"},
				{Path: paths.ProjectPluginsDir("."), Type: "app"},
			},
			Type: "all",
		},
		Hooks: HooksConfig{
			Source: HookSourceHooks,
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "file",
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
		Flags: map[string]bool{},
	}
}

// UserConfigDir returns ~/.config/kiln, falling back to .kiln when the home
// directory cannot be resolved.
func UserConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".kiln"
	}
	return filepath.Join(home, ".config", "kiln")
}

// DefaultCacheDir returns the directory used by the file and sqlite backends.
func DefaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "kiln")
	}
	return filepath.Join(UserConfigDir(), "cache")
}

// DefaultTracesFilePath returns the default trace file path.
func DefaultTracesFilePath() string {
	return filepath.Join(UserConfigDir(), "traces", "traces.jsonl")
}

// Validate checks the configuration for errors.
func Validate(cfg Config) error {
	if err := ValidateCore(cfg.Core); err != nil {
		return err
	}
	if err := ValidatePlugins(cfg.Plugins); err != nil {
		return err
	}
	if cfg.Hooks.Source == "" {
		return fmt.Errorf("hooks.source must not be empty")
	}
	return ValidateTracing(cfg.Tracing)
}

// ValidateCore checks core settings. Empty values fall back to defaults.
func ValidateCore(core CoreConfig) error {
	switch core.CacheBackend {
	case "", BackendFile, BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("core.cache_backend must be %q, %q or %q, got %q",
			BackendFile, BackendSQLite, BackendMemory, core.CacheBackend)
	}
	switch core.Channel {
	case "", ChannelStable, ChannelEdge:
	default:
		return fmt.Errorf("core.channel must be %q or %q, got %q", ChannelStable, ChannelEdge, core.Channel)
	}
	if core.Caching && core.CacheBackend != BackendMemory && core.CacheDir == "" {
		return fmt.Errorf("core.cache_dir is required when caching with the %q backend", core.CacheBackend)
	}
	return nil
}

// ValidatePlugins checks plugin search directories.
func ValidatePlugins(plugins PluginsConfig) error {
	for i, dir := range plugins.Dirs {
		if dir.Path == "" {
			return fmt.Errorf("plugins.dirs[%d]: path is required", i)
		}
		if dir.Type != "" && !slices.Contains(pluginDirTypes, dir.Type) {
			return fmt.Errorf("plugins.dirs[%d]: type must be one of %v, got %q", i, pluginDirTypes, dir.Type)
		}
	}
	if plugins.Type != "" && plugins.Type != "all" && plugins.Type != "core" &&
		!slices.Contains(pluginDirTypes, plugins.Type) {
		return fmt.Errorf("plugins.type must be \"all\" or a plugin type, got %q", plugins.Type)
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tracing TracingConfig) error {
	if tracing.SampleRate < 0.0 || tracing.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tracing.SampleRate)
	}

	if tracing.Exporter != "" {
		switch tracing.Exporter {
		case "none", "file", "stdout", "otlp":
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tracing.Exporter)
		}
	}

	if tracing.Enabled && tracing.Exporter == "otlp" && tracing.OTLPEndpoint == "" {
		return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
	}

	return nil
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# kiln configuration

core:
  # product: kiln          # Name hooks and components see the host registered as
  caching: true            # Cache discovered plugins, the composed manifest and hooks
  cache_backend: file      # file (default), sqlite or memory
  # cache_dir: ~/.cache/kiln
  channel: stable          # stable (default) or edge; edge plugins are skipped on stable

plugins:
  # Search directories, in priority order. The first plugin found with a
  # given name wins, and earlier plugins override later ones in the manifest.
  # dirs:
  #   - path: ~/.config/kiln/plugins
  #     type: global
  #   - path: .kiln/plugins
  #     type: app
  #
  # Plugins to keep installed but disabled:
  # disabled:
  #   - legacy-reporter
  #
  # Local catalog used by 'kiln plugins add':
  # catalog: /srv/kiln/catalog

hooks:
  # Manifest key hooks are read from: "hooks" (default), "product" for the
  # key named after core.product, or any other literal key.
  source: hooks

# Distributed tracing configuration
# tracing:
#   enabled: false                 # Enable/disable tracing (default: false)
#   exporter: file                 # Export backend: none, file, stdout, otlp (default: file)
#   file_path: ~/.config/kiln/traces/traces.jsonl
#   otlp_endpoint: localhost:4317
#   sample_rate: 1.0

# Feature flags
# flags:
#   manifest-diff: true      # Log a diff of the manifest on every reinit
#   lenient-hooks: true      # Skip hooks naming an unknown handler instead of failing
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}

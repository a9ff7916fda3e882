package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/zjrosen/kiln/internal/log"
	"github.com/zjrosen/kiln/internal/paths"
)

// ProjectConfigPath is the per-project config file checked before the user config.
var ProjectConfigPath = filepath.Join(paths.ProjectDirName, "config.yaml")

// Facade is the namespaced, persistent configuration store the bootstrap and
// plugins read from. Reads go through viper (file, KILN_* env, defaults);
// Save writes back to the config file without disturbing comments.
type Facade struct {
	mu   sync.Mutex
	v    *viper.Viper
	path string
}

// NewFacade wraps an already configured viper instance. path is where Save
// writes; it may name a file that does not exist yet.
func NewFacade(v *viper.Viper, path string) *Facade {
	return &Facade{v: v, path: path}
}

// Load builds a Facade from the config file at path, or from the first file
// found in the lookup order when path is empty:
//  1. .kiln/config.yaml (current directory)
//  2. ~/.config/kiln/config.yaml
//
// A missing file is not an error; defaults and environment still apply.
func Load(path string) (*Facade, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix("KILN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	resolved := ResolvePath(path)
	v.SetConfigFile(resolved)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading config %s: %w", resolved, err)
		}
		log.Debug(log.CatConfig, "No config file, using defaults", "path", resolved)
	} else {
		log.Info(log.CatConfig, "Loaded config", "path", resolved)
	}

	return NewFacade(v, resolved), nil
}

// ResolvePath applies the config lookup order. An explicit path always wins.
// When nothing exists the project path is returned so a later Save creates it.
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	project := filepath.Join(paths.ResolveProjectDir("."), "config.yaml")
	if _, err := os.Stat(project); err == nil {
		return project
	}
	user := filepath.Join(UserConfigDir(), "config.yaml")
	if _, err := os.Stat(user); err == nil {
		return user
	}
	return ProjectConfigPath
}

// SetDefaults registers Defaults() on v so every key is known to viper
// (required for env overrides to reach Unmarshal).
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("core.id", d.Core.ID)
	v.SetDefault("core.product", d.Core.Product)
	v.SetDefault("core.caching", d.Core.Caching)
	v.SetDefault("core.cache_backend", d.Core.CacheBackend)
	v.SetDefault("core.cache_dir", d.Core.CacheDir)
	v.SetDefault("core.channel", d.Core.Channel)

	dirs := make([]map[string]any, 0, len(d.Plugins.Dirs))
	for _, dir := range d.Plugins.Dirs {
		dirs = append(dirs, map[string]any{"path": dir.Path, "type": dir.Type})
	}
	v.SetDefault("plugins.dirs", dirs)
	v.SetDefault("plugins.disabled", []string{})
	v.SetDefault("plugins.catalog", d.Plugins.Catalog)
	v.SetDefault("plugins.type", d.Plugins.Type)

	v.SetDefault("hooks.source", d.Hooks.Source)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
}

// Path returns the file Save writes to.
func (f *Facade) Path() string { return f.path }

// Viper exposes the underlying instance for flag binding.
func (f *Facade) Viper() *viper.Viper { return f.v }

// Get returns the value at a dotted path, or nil.
func (f *Facade) Get(path string) any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.v.Get(path)
}

func (f *Facade) GetString(path string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.v.GetString(path)
}

func (f *Facade) GetBool(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.v.GetBool(path)
}

func (f *Facade) GetStringSlice(path string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.v.GetStringSlice(path)
}

// Set overrides a value for the lifetime of the process. It is not persisted.
func (f *Facade) Set(path string, value any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.v.Set(path, value)
}

// Save persists data into the config file and makes it visible to readers.
func (f *Facade) Save(data map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := SaveKeys(f.path, data); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to save config", err, "path", f.path)
		return err
	}
	for key, value := range flatten("", data) {
		f.v.Set(key, value)
	}
	log.Debug(log.CatConfig, "Saved config", "path", f.path, "keys", sortedKeys(data))
	return nil
}

// Defaults registers namespaced defaults, typically a plugin's settings
// block under its own name. Existing file or env values still win.
func (f *Facade) Defaults(name string, data map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, value := range flatten(name, data) {
		f.v.SetDefault(key, value)
	}
}

// Managed returns the key prefix reserved for values kiln manages.
func (f *Facade) Managed() string { return ManagedPrefix }

// Config returns a typed snapshot of the current configuration.
func (f *Facade) Config() (Config, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var cfg Config
	if err := f.v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, nil
}

func flatten(prefix string, data map[string]any) map[string]any {
	out := make(map[string]any)
	for key, value := range data {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if sub, ok := value.(map[string]any); ok && len(sub) > 0 {
			for k, v := range flatten(full, sub) {
				out[k] = v
			}
			continue
		}
		out[full] = value
	}
	return out
}

func sortedKeys(data map[string]any) []string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

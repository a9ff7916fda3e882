package testutil

// pluginData holds everything written for one plugin fixture.
type pluginData struct {
	dir          string
	manifestFile string
	fields       map[string]any
	files        map[string]string
	raw          *string
}

func defaultPlugin(name string) pluginData {
	return pluginData{
		dir:          name,
		manifestFile: "plugin.yaml",
		fields:       map[string]any{"name": name},
		files:        map[string]string{},
	}
}

// PluginOption configures a plugin fixture.
type PluginOption func(*pluginData)

// Field sets a top-level manifest field.
func Field(key string, value any) PluginOption {
	return func(p *pluginData) { p.fields[key] = value }
}

// Fields merges several top-level manifest fields.
func Fields(fields map[string]any) PluginOption {
	return func(p *pluginData) {
		for k, v := range fields {
			p.fields[k] = v
		}
	}
}

// Registry declares a component entry at a dotted key under registry.
func Registry(key string, entry any) PluginOption {
	return func(p *pluginData) {
		reg, ok := p.fields["registry"].(map[string]any)
		if !ok {
			reg = map[string]any{}
			p.fields["registry"] = reg
		}
		setDotted(reg, key, entry)
	}
}

// Hooks declares handlers for an event under the given manifest key.
func Hooks(key, event string, handlers ...any) PluginOption {
	return func(p *pluginData) {
		hooks, ok := p.fields[key].(map[string]any)
		if !ok {
			hooks = map[string]any{}
			p.fields[key] = hooks
		}
		hooks[event] = handlers
	}
}

// Disabled writes enabled: false.
func Disabled() PluginOption { return Field("enabled", false) }

// Hidden writes hidden: true.
func Hidden() PluginOption { return Field("hidden", true) }

// Version sets the manifest version.
func Version(v string) PluginOption { return Field("version", v) }

// Description sets the manifest description.
func Description(d string) PluginOption { return Field("description", d) }

// Channel sets the release channel the plugin targets.
func Channel(c string) PluginOption { return Field("channel", c) }

// Name overrides the manifest name while keeping the directory name.
func Name(name string) PluginOption { return Field("name", name) }

// NoName removes the manifest name so the directory name is used.
func NoName() PluginOption {
	return func(p *pluginData) { delete(p.fields, "name") }
}

// Dir overrides the directory the plugin is written to.
func Dir(dir string) PluginOption {
	return func(p *pluginData) { p.dir = dir }
}

// YML writes plugin.yml instead of plugin.yaml.
func YML() PluginOption {
	return func(p *pluginData) { p.manifestFile = "plugin.yml" }
}

// File writes an extra file next to the manifest.
func File(name, content string) PluginOption {
	return func(p *pluginData) { p.files[name] = content }
}

// Readme writes README.md.
func Readme(content string) PluginOption { return File("README.md", content) }

func setDotted(m map[string]any, key string, value any) {
	start := 0
	for i := 0; i < len(key); i++ {
		if key[i] != '.' {
			continue
		}
		part := key[start:i]
		next, ok := m[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[part] = next
		}
		m = next
		start = i + 1
	}
	m[key[start:]] = value
}

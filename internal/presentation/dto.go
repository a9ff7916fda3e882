package presentation

import (
	"github.com/zjrosen/kiln/internal/component"
	"github.com/zjrosen/kiln/internal/plugin"
)

// Plugin statuses.
const (
	StatusEnabled  = "enabled"
	StatusDisabled = "disabled"
	StatusInvalid  = "invalid"
)

// PluginDTO represents a discovered plugin for presentation.
type PluginDTO struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Version     string `json:"version,omitempty"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
	Hidden      bool   `json:"hidden,omitempty"`
	Dir         string `json:"dir,omitempty"`
	Error       string `json:"error,omitempty"`
}

// FromPlugin converts a plugin with the status of the set it came from.
func FromPlugin(p *plugin.Plugin, status string) PluginDTO {
	return PluginDTO{
		Name:        p.Name,
		Type:        string(p.Type),
		Version:     p.Version,
		Description: p.Description,
		Status:      status,
		Hidden:      p.Hidden,
		Dir:         p.Dir,
		Error:       p.Error,
	}
}

// FromDiscovery flattens the three discovery sets, enabled first.
// Hidden plugins are skipped unless all is set.
func FromDiscovery(d plugin.Discovery, all bool) []PluginDTO {
	out := make([]PluginDTO, 0, len(d.Enabled)+len(d.Disabled)+len(d.Invalid))
	sets := []struct {
		status  string
		plugins []*plugin.Plugin
	}{
		{StatusEnabled, d.Enabled},
		{StatusDisabled, d.Disabled},
		{StatusInvalid, d.Invalid},
	}
	for _, set := range sets {
		plugins := set.plugins
		if !all {
			plugins = plugin.Visible(plugins)
		}
		for _, p := range plugins {
			out = append(out, FromPlugin(p, set.status))
		}
	}
	return out
}

// ComponentDTO represents a resolved component reference.
type ComponentDTO struct {
	Key      string         `json:"key"`
	Factory  string         `json:"factory"`
	Defaults map[string]any `json:"defaults,omitempty"`
}

// FromRef converts a resolved ref.
func FromRef(ref *component.Ref) ComponentDTO {
	return ComponentDTO{Key: ref.Key, Factory: ref.Factory, Defaults: ref.Defaults}
}

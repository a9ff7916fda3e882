// Package plugin discovers plugins on disk and in the embedded core set,
// and fetches new ones through an installer.
package plugin

import (
	"fmt"
	"os"
)

// Type is where a plugin was discovered.
type Type string

const (
	TypeCore   Type = "core"
	TypeGlobal Type = "global"
	TypeApp    Type = "app"
	TypeUser   Type = "user"
)

// TypeAll is the discovery scope that includes every plugin type.
const TypeAll Type = "all"

// Plugin describes one discovered plugin.
type Plugin struct {
	Name        string         `json:"name" yaml:"name"`
	Type        Type           `json:"type" yaml:"type"`
	Dir         string         `json:"dir,omitempty" yaml:"dir,omitempty"`
	Manifest    map[string]any `json:"manifest,omitempty" yaml:"manifest,omitempty"`
	Enabled     bool           `json:"enabled" yaml:"enabled"`
	Hidden      bool           `json:"hidden,omitempty" yaml:"hidden,omitempty"`
	Version     string         `json:"version,omitempty" yaml:"version,omitempty"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Error       string         `json:"error,omitempty" yaml:"error,omitempty"`
}

// IsCore reports whether the plugin ships with kiln.
func (p *Plugin) IsCore() bool {
	return p.Type == TypeCore
}

// Remove deletes the plugin directory. Core plugins and plugins without a
// directory on disk refuse removal.
func (p *Plugin) Remove() error {
	if p.IsCore() {
		return fmt.Errorf("%s: %w", p.Name, ErrProtected)
	}
	if p.Dir == "" {
		return fmt.Errorf("%s: %w", p.Name, ErrNoDir)
	}
	if err := os.RemoveAll(p.Dir); err != nil {
		return fmt.Errorf("removing %s: %w", p.Dir, err)
	}
	return nil
}

// Discovery is the result of one discovery pass. The three sets are
// disjoint and each keeps discovery order.
type Discovery struct {
	Enabled  []*Plugin `json:"enabled" yaml:"enabled"`
	Disabled []*Plugin `json:"disabled" yaml:"disabled"`
	Invalid  []*Plugin `json:"invalid" yaml:"invalid"`
}

// Find returns the plugin named name from any of the three sets.
func (d Discovery) Find(name string) (*Plugin, bool) {
	for _, set := range [][]*Plugin{d.Enabled, d.Disabled, d.Invalid} {
		for _, p := range set {
			if p.Name == name {
				return p, true
			}
		}
	}
	return nil, false
}

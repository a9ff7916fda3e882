// Package component resolves named components from the composed registry
// against a catalog of factories registered at startup.
package component

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Args are constructor arguments. Registry defaults, caller defaults and
// explicit args are merged in that order.
type Args map[string]any

// String returns the string at key, or "".
func (a Args) String(key string) string {
	s, _ := a[key].(string)
	return s
}

// Bool returns the bool at key, or false.
func (a Args) Bool(key string) bool {
	b, _ := a[key].(bool)
	return b
}

// Factory builds a component instance.
type Factory func(ctx context.Context, args Args) (any, error)

// Catalog maps factory refs (e.g. "installer.catalog") to factories.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]Factory)}
}

// Register adds a factory under ref.
func (c *Catalog) Register(ref string, f Factory) error {
	if ref == "" || f == nil {
		return fmt.Errorf("registering %q: ref and factory are required", ref)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.factories[ref]; exists {
		return fmt.Errorf("%s: %w", ref, ErrDuplicateFactory)
	}
	c.factories[ref] = f
	return nil
}

// MustRegister is Register for package initialization; it panics on error.
func (c *Catalog) MustRegister(ref string, f Factory) {
	if err := c.Register(ref, f); err != nil {
		panic(err)
	}
}

// Lookup returns the factory registered under ref.
func (c *Catalog) Lookup(ref string) (Factory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.factories[ref]
	return f, ok
}

// Refs returns every registered ref, sorted.
func (c *Catalog) Refs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	refs := make([]string, 0, len(c.factories))
	for ref := range c.factories {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}

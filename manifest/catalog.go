package manifest

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"

	featurea "github.com/featurea/featurea-go"
)

// FactoryFunc builds a component from manifest arguments
type FactoryFunc func(ctx *featurea.ResolveCtx, args Args) (any, error)

// StaticFunc is a named static block
type StaticFunc func(sc *featurea.StaticCtx) error

// Catalog maps the factory and static names used in manifests to Go code.
// Registration happens at program start; a name may be registered once.
type Catalog struct {
	factories map[string]FactoryFunc
	statics   map[string]StaticFunc
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		factories: make(map[string]FactoryFunc),
		statics:   make(map[string]StaticFunc),
	}
}

// RegisterFactory registers a factory under name. It panics if the name is
// already taken.
func (c *Catalog) RegisterFactory(name string, fn FactoryFunc) {
	if _, exists := c.factories[name]; exists {
		panic(fmt.Sprintf("factory with name '%s' already registered", name))
	}
	slog.Debug("Registering manifest factory.", "name", name)
	c.factories[name] = fn
}

// RegisterStatic registers a static block under name. It panics if the name
// is already taken.
func (c *Catalog) RegisterStatic(name string, fn StaticFunc) {
	if _, exists := c.statics[name]; exists {
		panic(fmt.Sprintf("static with name '%s' already registered", name))
	}
	slog.Debug("Registering manifest static.", "name", name)
	c.statics[name] = fn
}

func (c *Catalog) Factory(name string) (FactoryFunc, bool) {
	fn, ok := c.factories[name]
	return fn, ok
}

func (c *Catalog) Static(name string) (StaticFunc, bool) {
	fn, ok := c.statics[name]
	return fn, ok
}

// Factories returns the registered factory names, sorted.
func (c *Catalog) Factories() []string {
	return slices.Sorted(maps.Keys(c.factories))
}

// Statics returns the registered static names, sorted.
func (c *Catalog) Statics() []string {
	return slices.Sorted(maps.Keys(c.statics))
}

package featurea

import "fmt"

// Controller is a typed handle to one component in one module. It remembers
// the module generation it was taken in; once the module is reloaded or
// deleted the handle goes stale and every method returns ErrStaleReference.
type Controller[T any] struct {
	module     *Module
	key        Key
	generation uint64
}

// ImportRef returns a controller for the component of type T in m
func ImportRef[T any](m *Module) *Controller[T] {
	return &Controller[T]{
		module:     m,
		key:        TypeKey[T](),
		generation: m.Generation(),
	}
}

// ImportRefNamed returns a controller for the component bound under name
func ImportRefNamed[T any](m *Module, name string) *Controller[T] {
	key := Key(name)
	if b, ok := m.container.registry.BindingByName(name); ok {
		key = b.Key
	}
	return &Controller[T]{
		module:     m,
		key:        key,
		generation: m.Generation(),
	}
}

// Key returns the component key
func (c *Controller[T]) Key() Key {
	return c.key
}

// Stale reports whether the module has been reloaded or deleted since the
// controller was taken.
func (c *Controller[T]) Stale() bool {
	return c.module.State() == ModuleDeleted || c.module.Generation() != c.generation
}

func (c *Controller[T]) check() error {
	if c.Stale() {
		return fmt.Errorf("%s in module %q (generation %d): %w", c.key, c.module.name, c.generation, ErrStaleReference)
	}
	return nil
}

// Get retrieves the value (resolves if not cached)
func (c *Controller[T]) Get() (T, error) {
	var zero T
	if err := c.check(); err != nil {
		return zero, err
	}

	val, err := c.module.importKey(c.key)
	if err != nil {
		return zero, err
	}
	return SafeTypeAssertion[T](val)
}

// Peek retrieves the cached value without resolving
func (c *Controller[T]) Peek() (T, bool) {
	var zero T
	if c.Stale() {
		return zero, false
	}

	val, ok := c.module.peek(c.key)
	if !ok {
		return zero, false
	}
	typed, ok := val.(T)
	return typed, ok
}

// IsCached checks if the value is currently cached in the module
func (c *Controller[T]) IsCached() bool {
	return !c.Stale() && c.module.Has(c.key)
}

// Release drops the cached value and runs its cleanups. The next Get
// rebuilds it.
func (c *Controller[T]) Release() error {
	if err := c.check(); err != nil {
		return err
	}
	return c.module.release(c.key)
}

// Reload releases and immediately re-resolves
func (c *Controller[T]) Reload() (T, error) {
	if err := c.Release(); err != nil {
		var zero T
		return zero, err
	}
	return c.Get()
}

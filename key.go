package featurea

import (
	"reflect"
	"strings"
)

// providerPrefix marks bindings that hand over an existing value instead of
// constructing a new one. Such bindings are ordered before all others.
const providerPrefix = "provide"

// Key identifies a binding, a static singleton or an awaited proxy.
type Key string

// TypeKey returns the canonical key for values of type T
func TypeKey[T any]() Key {
	return Key("type:" + reflect.TypeFor[T]().String())
}

// String returns the key as plain text
func (k Key) String() string {
	return string(k)
}

// IsType reports whether the key was produced by TypeKey
func (k Key) IsType() bool {
	return strings.HasPrefix(string(k), "type:")
}

// IsProviderKey reports whether a declared binding name follows the provide
// convention.
func IsProviderKey(name string) bool {
	return strings.HasPrefix(name, providerPrefix)
}

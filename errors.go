package featurea

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
)

var (
	// ErrUnresolvable is wrapped by every ResolveError caused by a missing key
	ErrUnresolvable = errors.New("unresolvable key")
	// ErrCycle is wrapped when a factory imports a key that is already being built
	ErrCycle = errors.New("resolution cycle")
	// ErrNotReady is returned when a container is still awaiting proxies
	ErrNotReady = errors.New("container is not ready")
	// ErrDestroyed is returned by any operation on a destroyed container
	ErrDestroyed = errors.New("container is destroyed")
	// ErrModuleNotFound is wrapped by ModuleNotFoundError
	ErrModuleNotFound = errors.New("module not found")
	// ErrModuleDeleted is returned by imports against a deleted module
	ErrModuleDeleted = errors.New("module is deleted")
	// ErrStaleReference is returned by a Controller whose module was reloaded
	ErrStaleReference = errors.New("stale component reference")
	// ErrNilRoot is returned when a registry or container is built from nil
	ErrNilRoot = errors.New("nil root artifact")
)

type ResolveError struct {
	Key        Key
	Module     string
	Chain      []Key
	Cause      error
	StackTrace []byte
}

func (e *ResolveError) Error() string {
	if len(e.Chain) > 0 {
		chain := make([]string, 0, len(e.Chain))
		for _, k := range e.Chain {
			chain = append(chain, k.String())
		}
		return fmt.Sprintf("resolve %s in module %q (via %s): %v", e.Key, e.Module, strings.Join(chain, " -> "), e.Cause)
	}
	return fmt.Sprintf("resolve %s in module %q: %v", e.Key, e.Module, e.Cause)
}

func (e *ResolveError) Unwrap() error {
	return e.Cause
}

func newResolveError(key Key, module string, chain []Key, cause error) *ResolveError {
	return &ResolveError{
		Key:        key,
		Module:     module,
		Chain:      append([]Key(nil), chain...),
		Cause:      cause,
		StackTrace: debug.Stack(),
	}
}

// DuplicateBindingError reports a key bound by more than one artifact under
// DuplicateError policy.
type DuplicateBindingError struct {
	Key       Key
	First     string
	Duplicate string
}

func (e *DuplicateBindingError) Error() string {
	return fmt.Sprintf("binding %s declared by artifact %q is redeclared by artifact %q", e.Key, e.First, e.Duplicate)
}

// ProxyTimeoutError reports proxies that were never supplied to a container
type ProxyTimeoutError struct {
	Missing []Key
	Cause   error
}

func (e *ProxyTimeoutError) Error() string {
	missing := make([]string, 0, len(e.Missing))
	for _, k := range e.Missing {
		missing = append(missing, k.String())
	}
	return fmt.Sprintf("container not ready, awaiting %s: %v", strings.Join(missing, ", "), e.Cause)
}

func (e *ProxyTimeoutError) Unwrap() error {
	return e.Cause
}

type ModuleNotFoundError struct {
	Name string
}

func (e *ModuleNotFoundError) Error() string {
	return fmt.Sprintf("module %q not found", e.Name)
}

func (e *ModuleNotFoundError) Unwrap() error {
	return ErrModuleNotFound
}

// LifecycleError wraps a failing hook or static block
type LifecycleError struct {
	Phase string
	Owner string
	Cause error
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Owner, e.Phase, e.Cause)
}

func (e *LifecycleError) Unwrap() error {
	return e.Cause
}

// CleanupError contains information about a cleanup failure
type CleanupError struct {
	Key     Key
	Module  string
	Err     error
	Context string // "delete", "release" or "destroy"
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("cleanup of %s in module %q during %s: %v", e.Key, e.Module, e.Context, e.Err)
}

func (e *CleanupError) Unwrap() error {
	return e.Err
}

// SafeTypeAssertion performs safe type assertion with proper error
func SafeTypeAssertion[T any](value any) (T, error) {
	if value == nil {
		var zero T
		return zero, nil
	}

	typed, ok := value.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("type assertion error: expected %T, got %T", zero, value)
	}
	return typed, nil
}

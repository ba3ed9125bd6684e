package featurea

import (
	"log/slog"
	"slices"
	"sync"
)

type cleanupEntry struct {
	fn func() error
}

// Disposer is implemented by components that release resources when their
// owning module is deleted.
type Disposer interface {
	Dispose() error
}

// Resolver is implemented by *Module and *ResolveCtx
type Resolver interface {
	// ImportComponent resolves a component by binding name or key
	ImportComponent(name string) (any, error)

	importKey(key Key) (any, error)
}

// ResolveCtx is handed to every factory. It carries the owning module
// explicitly; there is no ambient current module.
type ResolveCtx struct {
	module    *Module
	key       Key
	chain     []Key
	cleanups  []cleanupEntry
	cleanupMu sync.Mutex
}

func newResolveCtx(m *Module, key Key, chain []Key) *ResolveCtx {
	return &ResolveCtx{
		module: m,
		key:    key,
		chain:  chain,
	}
}

// Module returns the module that will own the component
func (ctx *ResolveCtx) Module() *Module {
	return ctx.module
}

// Container returns the container of the owning module
func (ctx *ResolveCtx) Container() *Container {
	return ctx.module.container
}

// Key returns the key of the component being built
func (ctx *ResolveCtx) Key() Key {
	return ctx.key
}

// Logger returns the owning module's logger
func (ctx *ResolveCtx) Logger() *slog.Logger {
	return ctx.module.logger.With("key", ctx.key.String())
}

// OnCleanup registers a function run when the component is released, in
// reverse registration order.
func (ctx *ResolveCtx) OnCleanup(fn func() error) {
	ctx.cleanupMu.Lock()
	defer ctx.cleanupMu.Unlock()

	ctx.cleanups = append(ctx.cleanups, cleanupEntry{fn: fn})
}

// ImportComponent resolves a collaborator through the owning module's scope
// chain.
func (ctx *ResolveCtx) ImportComponent(name string) (any, error) {
	return ctx.module.resolve("", name, ctx.nextChain())
}

func (ctx *ResolveCtx) importKey(key Key) (any, error) {
	return ctx.module.resolve(key, "", ctx.nextChain())
}

func (ctx *ResolveCtx) nextChain() []Key {
	if ctx.key == "" {
		return ctx.chain
	}
	return append(slices.Clip(ctx.chain), ctx.key)
}

func (ctx *ResolveCtx) takeCleanups() []cleanupEntry {
	ctx.cleanupMu.Lock()
	defer ctx.cleanupMu.Unlock()

	entries := ctx.cleanups
	ctx.cleanups = nil
	return entries
}

// abort runs the cleanups registered by a factory that failed
func (ctx *ResolveCtx) abort() {
	entries := ctx.takeCleanups()
	ctx.module.container.runCleanups(entries, ctx.key, ctx.module.name, "abort")
}

// StaticCtx is handed to static blocks
type StaticCtx struct {
	container *Container
	artifact  string
	cleanups  []cleanupEntry
}

// Container returns the container being initialized
func (sc *StaticCtx) Container() *Container {
	return sc.container
}

// Artifact returns the name of the artifact that declared the block
func (sc *StaticCtx) Artifact() string {
	return sc.artifact
}

// ProvideComponent registers a container-level singleton
func (sc *StaticCtx) ProvideComponent(key Key, instance any) error {
	return sc.container.ProvideComponent(key, instance)
}

// OnCleanup registers a function run when the container is destroyed
func (sc *StaticCtx) OnCleanup(fn func() error) {
	sc.cleanups = append(sc.cleanups, cleanupEntry{fn: fn})
}

// Logger returns the container logger
func (sc *StaticCtx) Logger() *slog.Logger {
	return sc.container.logger.With("artifact", sc.artifact)
}

// Provider accepts externally supplied components
type Provider interface {
	ProvideComponent(key Key, instance any) error
}

// Provide supplies v under TypeKey[T]
func Provide[T any](p Provider, v T) error {
	return p.ProvideComponent(TypeKey[T](), v)
}

// Import resolves a component of type T
func Import[T any](r Resolver) (T, error) {
	val, err := r.importKey(TypeKey[T]())
	if err != nil {
		var zero T
		return zero, err
	}
	return SafeTypeAssertion[T](val)
}

// ImportNamed resolves a component by binding name and asserts it to T
func ImportNamed[T any](r Resolver, name string) (T, error) {
	val, err := r.ImportComponent(name)
	if err != nil {
		var zero T
		return zero, err
	}
	return SafeTypeAssertion[T](val)
}

// MustImport is like Import but panics on error
func MustImport[T any](r Resolver) T {
	val, err := Import[T](r)
	if err != nil {
		panic(err)
	}
	return val
}

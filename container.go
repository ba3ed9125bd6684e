package featurea

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"
	"sync"
)

// ContainerState is the lifecycle state of a container
type ContainerState int32

const (
	ContainerConstructing ContainerState = iota
	ContainerAwaitingProxies
	ContainerReady
	ContainerDestroyed
)

func (s ContainerState) String() string {
	switch s {
	case ContainerConstructing:
		return "constructing"
	case ContainerAwaitingProxies:
		return "awaiting-proxies"
	case ContainerReady:
		return "ready"
	case ContainerDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("ContainerState(%d)", int32(s))
	}
}

// Container holds one flattened registry, the container-level singletons and
// the live modules built from it.
type Container struct {
	registry *DependencyRegistry
	logger   *slog.Logger

	mu             sync.Mutex
	state          ContainerState
	transitioning  bool
	awaiting       map[Key]bool
	statics        map[Key]any
	staticOrder    []Key
	staticCleanups []staticCleanup
	modules        map[string]*Module
	moduleOrder    []string
	extensions     []Extension
	onCreate       []func(c *Container) error
	ready          chan struct{}
	readyErr       error
}

type staticCleanup struct {
	artifact string
	entries  []cleanupEntry
}

// ContainerOption is a modifier for containers
type ContainerOption func(*containerConfig)

type containerConfig struct {
	logger     *slog.Logger
	extensions []Extension
	registry   []RegistryOption
	onCreate   []func(c *Container) error
}

// WithLogger returns an option that sets the container logger
func WithLogger(l *slog.Logger) ContainerOption {
	return func(cfg *containerConfig) {
		if l != nil {
			cfg.logger = l
		}
	}
}

// WithExtension returns an option that registers an extension to a container
func WithExtension(ext Extension) ContainerOption {
	return func(cfg *containerConfig) {
		cfg.extensions = append(cfg.extensions, ext)
	}
}

// WithPolicy returns an option that sets the registry duplicate policy
func WithPolicy(p DuplicatePolicy) ContainerOption {
	return func(cfg *containerConfig) {
		cfg.registry = append(cfg.registry, WithDuplicatePolicy(p))
	}
}

// WithOnCreate returns an option that adds a create hook, run after the
// artifact create hooks.
func WithOnCreate(hook func(c *Container) error) ContainerOption {
	return func(cfg *containerConfig) {
		cfg.onCreate = append(cfg.onCreate, hook)
	}
}

// NewContainer flattens root and constructs a container. If root awaits no
// proxies the container becomes ready before NewContainer returns.
func NewContainer(root *Artifact, opts ...ContainerOption) (*Container, error) {
	cfg := containerConfig{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if root == nil {
		return nil, fmt.Errorf("building registry: %w", ErrNilRoot)
	}

	regOpts := append([]RegistryOption{WithRegistryLogger(cfg.logger)}, cfg.registry...)
	reg, err := NewRegistry(root, regOpts...)
	if err != nil {
		return nil, fmt.Errorf("building registry for %q: %w", root.Name(), err)
	}

	c := &Container{
		registry: reg,
		logger:   cfg.logger.With("container", reg.Root()),
		state:    ContainerConstructing,
		awaiting: make(map[Key]bool),
		statics:  make(map[Key]any),
		modules:  make(map[string]*Module),
		onCreate: cfg.onCreate,
		ready:    make(chan struct{}),
	}

	for _, ext := range cfg.extensions {
		if err := c.UseExtension(ext); err != nil {
			return nil, fmt.Errorf("initializing extension %s: %w", ext.Name(), err)
		}
	}

	for _, key := range reg.Awaited() {
		c.awaiting[key] = true
	}

	c.mu.Lock()
	c.state = ContainerAwaitingProxies
	fire := c.claimTransition()
	c.mu.Unlock()

	if fire {
		if err := c.becomeReady(); err != nil {
			return c, err
		}
	} else {
		c.logger.Info("container awaiting proxies", "missing", keyStrings(c.Missing()))
	}

	return c, nil
}

// UseExtension registers an extension to the container
func (c *Container) UseExtension(ext Extension) error {
	c.mu.Lock()
	c.extensions = append(c.extensions, ext)
	sort.SliceStable(c.extensions, func(i, j int) bool {
		return c.extensions[i].Order() < c.extensions[j].Order()
	})
	c.mu.Unlock()

	return ext.Init(c)
}

// Registry returns the flattened registry
func (c *Container) Registry() *DependencyRegistry {
	return c.registry
}

// Logger returns the container logger
func (c *Container) Logger() *slog.Logger {
	return c.logger
}

// State returns the lifecycle state
func (c *Container) State() ContainerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Missing returns the awaited proxies not yet supplied, in declaration order
func (c *Container) Missing() []Key {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Key
	for _, key := range c.registry.awaited {
		if c.awaiting[key] {
			out = append(out, key)
		}
	}
	return out
}

// Ready is closed once the container is ready or failed to become ready
func (c *Container) Ready() <-chan struct{} {
	return c.ready
}

// WaitReady blocks until the container is ready. If ctx ends first the
// returned ProxyTimeoutError names the proxies still missing.
func (c *Container) WaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.readyErr
	case <-ctx.Done():
		return &ProxyTimeoutError{Missing: c.Missing(), Cause: ctx.Err()}
	}
}

// ProvideComponent supplies an awaited proxy or registers a container-level
// singleton. Supplying the last awaited proxy runs the readiness transition
// on the calling goroutine.
func (c *Container) ProvideComponent(key Key, instance any) error {
	op := &Operation{Kind: OpProvide, Key: key, Container: c}

	_, err := c.wrap(op, func() (any, error) {
		c.mu.Lock()
		if c.state == ContainerDestroyed {
			c.mu.Unlock()
			return nil, ErrDestroyed
		}
		if _, exists := c.statics[key]; exists {
			c.mu.Unlock()
			return nil, fmt.Errorf("component %s already provided", key)
		}

		c.statics[key] = instance
		c.staticOrder = append(c.staticOrder, key)
		awaited := c.awaiting[key]
		delete(c.awaiting, key)
		fire := c.claimTransition()
		c.mu.Unlock()

		if awaited {
			c.logger.Debug("proxy supplied", "key", key.String())
		}
		if fire {
			return nil, c.becomeReady()
		}
		return nil, nil
	})
	return err
}

// claimTransition reports whether the caller must run the readiness
// transition. It returns true at most once. c.mu must be held.
func (c *Container) claimTransition() bool {
	if c.state != ContainerAwaitingProxies || c.transitioning || len(c.awaiting) > 0 {
		return false
	}
	c.transitioning = true
	return true
}

// becomeReady runs static blocks in flattened order, then create hooks
func (c *Container) becomeReady() error {
	err := c.runStatics()

	c.mu.Lock()
	destroyed := c.state == ContainerDestroyed
	if !destroyed && err == nil {
		c.state = ContainerReady
	}
	c.mu.Unlock()

	switch {
	case destroyed:
		err = errors.Join(err, c.abandonTransition())
	case err == nil:
		err = c.runCreateHooks()
	}

	c.mu.Lock()
	c.readyErr = err
	c.transitioning = false
	close(c.ready)
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("container failed to become ready", "error", err)
		return err
	}
	c.logger.Info("container ready", "statics", len(c.staticOrder))
	return nil
}

// abandonTransition runs static cleanups registered after Destroy already
// took its snapshot.
func (c *Container) abandonTransition() error {
	c.mu.Lock()
	cleanups := c.staticCleanups
	c.staticCleanups = nil
	c.mu.Unlock()

	errs := []error{fmt.Errorf("readiness abandoned: %w", ErrDestroyed)}
	for i := len(cleanups) - 1; i >= 0; i-- {
		if err := c.runCleanups(cleanups[i].entries, Key(cleanups[i].artifact), "", "destroy"); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Container) runStatics() error {
	for _, block := range c.registry.statics {
		if c.State() == ContainerDestroyed {
			return nil
		}
		sc := &StaticCtx{container: c, artifact: block.Artifact}
		op := &Operation{Kind: OpStatic, Key: Key(block.Artifact), Container: c}

		_, err := c.wrap(op, func() (any, error) {
			return nil, block.Run(sc)
		})

		if len(sc.cleanups) > 0 {
			c.mu.Lock()
			c.staticCleanups = append(c.staticCleanups, staticCleanup{artifact: block.Artifact, entries: sc.cleanups})
			c.mu.Unlock()
		}
		if err != nil {
			return &LifecycleError{Phase: "static", Owner: "artifact " + block.Artifact, Cause: err}
		}
	}
	return nil
}

func (c *Container) runCreateHooks() error {
	for _, hook := range c.registry.creates {
		if err := hook.Run(c); err != nil {
			return &LifecycleError{Phase: "create", Owner: "artifact " + hook.Artifact, Cause: err}
		}
	}

	c.mu.Lock()
	hooks := slices.Clone(c.onCreate)
	c.mu.Unlock()

	for _, hook := range hooks {
		if err := hook(c); err != nil {
			return &LifecycleError{Phase: "create", Owner: "container " + c.registry.Root(), Cause: err}
		}
	}
	return nil
}

// OnCreate adds a create hook. If the container is already ready the hook
// runs immediately.
func (c *Container) OnCreate(hook func(c *Container) error) error {
	c.mu.Lock()
	if c.state != ContainerReady {
		c.onCreate = append(c.onCreate, hook)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	return hook(c)
}

// Static returns a container-level singleton or supplied proxy
func (c *Container) Static(key Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	val, ok := c.statics[key]
	return val, ok
}

// StaticKeys returns the keys of the container-level singletons in the order
// they were provided.
func (c *Container) StaticKeys() []Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.staticOrder)
}

// NewModule creates a top-level module and runs its Init and Created
// transitions.
func (c *Container) NewModule(name string, opts ...ModuleOption) (*Module, error) {
	return c.createModule(nil, name, opts...)
}

func (c *Container) createModule(parent *Module, name string, opts ...ModuleOption) (*Module, error) {
	spawned := parent != nil && parent.isStarting()

	c.mu.Lock()
	switch c.state {
	case ContainerDestroyed:
		c.mu.Unlock()
		return nil, fmt.Errorf("create module %q: %w", name, ErrDestroyed)
	case ContainerReady:
	default:
		c.mu.Unlock()
		return nil, fmt.Errorf("create module %q: %w", name, ErrNotReady)
	}
	if _, exists := c.modules[name]; exists {
		c.mu.Unlock()
		return nil, fmt.Errorf("create module %q: name already in use", name)
	}

	m := newModule(c, parent, name, opts...)
	m.spawned = spawned
	c.modules[name] = m
	c.moduleOrder = append(c.moduleOrder, name)
	c.mu.Unlock()

	if parent != nil {
		parent.addChild(m)
	}

	if err := m.start(); err != nil {
		if delErr := m.Delete(); delErr != nil {
			err = errors.Join(err, delErr)
		}
		return nil, err
	}

	return m, nil
}

// Module looks up a live module by name
func (c *Container) Module(name string) (*Module, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.modules[name]
	return m, ok
}

// Modules returns the live modules in creation order
func (c *Container) Modules() []*Module {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*Module, 0, len(c.moduleOrder))
	for _, name := range c.moduleOrder {
		out = append(out, c.modules[name])
	}
	return out
}

// Reload tears down the named module and its nested modules, then rebuilds
// them. Container singletons and sibling modules are not touched.
func (c *Container) Reload(name string) error {
	if c.State() == ContainerDestroyed {
		return fmt.Errorf("reload %q: %w", name, ErrDestroyed)
	}

	m, ok := c.Module(name)
	if !ok {
		return &ModuleNotFoundError{Name: name}
	}

	c.logger.Info("reloading module", "module", name)
	return m.reload()
}

func (c *Container) unregister(m *Module) {
	tree := m.subtree()

	c.mu.Lock()
	for _, mod := range tree {
		if c.modules[mod.name] == mod {
			delete(c.modules, mod.name)
			c.moduleOrder = slices.DeleteFunc(c.moduleOrder, func(n string) bool { return n == mod.name })
		}
	}
	c.mu.Unlock()

	if m.parent != nil {
		m.parent.removeChild(m)
	}
}

// Destroy deletes every module, runs static cleanups in reverse order and
// disposes extensions. A destroyed container cannot be reused.
func (c *Container) Destroy() error {
	c.mu.Lock()
	if c.state == ContainerDestroyed {
		c.mu.Unlock()
		return nil
	}
	c.state = ContainerDestroyed

	var roots []*Module
	for _, name := range c.moduleOrder {
		if m := c.modules[name]; m.parent == nil {
			roots = append(roots, m)
		}
	}
	cleanups := c.staticCleanups
	c.staticCleanups = nil
	exts := slices.Clone(c.extensions)

	select {
	case <-c.ready:
	default:
		if !c.transitioning {
			c.readyErr = ErrDestroyed
			close(c.ready)
		}
	}
	c.mu.Unlock()

	var errs []error
	for i := len(roots) - 1; i >= 0; i-- {
		if err := roots[i].Delete(); err != nil {
			errs = append(errs, err)
		}
	}

	for i := len(cleanups) - 1; i >= 0; i-- {
		if err := c.runCleanups(cleanups[i].entries, Key(cleanups[i].artifact), "", "destroy"); err != nil {
			errs = append(errs, err)
		}
	}

	c.mu.Lock()
	c.statics = make(map[Key]any)
	c.staticOrder = nil
	c.mu.Unlock()

	for _, ext := range exts {
		if err := ext.Dispose(c); err != nil {
			errs = append(errs, fmt.Errorf("disposing extension %s: %w", ext.Name(), err))
		}
	}

	c.logger.Info("container destroyed")
	return errors.Join(errs...)
}

// wrap chains the extensions around next, last registered wrapping first
func (c *Container) wrap(op *Operation, next func() (any, error)) (any, error) {
	c.mu.Lock()
	exts := slices.Clone(c.extensions)
	c.mu.Unlock()

	for i := len(exts) - 1; i >= 0; i-- {
		ext := exts[i]
		currentNext := next
		next = func() (any, error) {
			return ext.Wrap(context.Background(), currentNext, op)
		}
	}

	result, err := next()
	if err != nil {
		for _, ext := range exts {
			ext.OnError(err, op, c)
		}
	}
	return result, err
}

// releaseInstance runs an instance's cleanups, newest first, then Dispose if
// the component implements Disposer.
func (c *Container) releaseInstance(inst *instance, module, reason string) error {
	err := c.runCleanups(inst.cleanups, inst.key, module, reason)

	if d, ok := inst.value.(Disposer); ok {
		if dErr := d.Dispose(); dErr != nil {
			if handled := c.reportCleanupError(&CleanupError{Key: inst.key, Module: module, Err: dErr, Context: reason}); !handled {
				err = errors.Join(err, dErr)
			}
		}
	}
	return err
}

// runCleanups runs entries newest first. Failures are offered to extensions;
// unhandled ones are returned joined.
func (c *Container) runCleanups(entries []cleanupEntry, key Key, module, reason string) error {
	var errs []error
	for i := len(entries) - 1; i >= 0; i-- {
		if err := entries[i].fn(); err != nil {
			cleanupErr := &CleanupError{Key: key, Module: module, Err: err, Context: reason}
			if !c.reportCleanupError(cleanupErr) {
				errs = append(errs, cleanupErr)
			}
		}
	}
	return errors.Join(errs...)
}

func (c *Container) reportCleanupError(err *CleanupError) bool {
	c.mu.Lock()
	exts := slices.Clone(c.extensions)
	c.mu.Unlock()

	for _, ext := range exts {
		if ext.OnCleanupError(err) {
			return true
		}
	}
	c.logger.Warn("cleanup failed", "key", err.Key.String(), "module", err.Module, "context", err.Context, "error", err.Err)
	return false
}

func keyStrings(keys []Key) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.String())
	}
	return out
}

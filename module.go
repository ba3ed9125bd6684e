package featurea

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// ModuleState is the lifecycle state of a module
type ModuleState int32

const (
	ModuleInit ModuleState = iota
	ModuleCreated
	ModuleDeleted
)

func (s ModuleState) String() string {
	switch s {
	case ModuleInit:
		return "init"
	case ModuleCreated:
		return "created"
	case ModuleDeleted:
		return "deleted"
	default:
		return fmt.Sprintf("ModuleState(%d)", int32(s))
	}
}

// Hook is a module lifecycle callback
type Hook func(m *Module) error

// Module is a scoped cache of live components. It is the unit of reload.
type Module struct {
	id        uuid.UUID
	name      string
	container *Container
	parent    *Module
	logger    *slog.Logger

	mu          sync.Mutex
	state       ModuleState
	starting    bool
	spawned     bool // created by the parent's own init or create hooks
	children    []*Module
	arena       *instanceArena
	building    map[Key]bool
	loose       []cleanupEntry
	initHooks   []Hook
	createHooks []Hook
	deleteHooks []Hook
}

// ModuleOption is a modifier for modules
type ModuleOption func(*Module)

// WithInit returns an option that adds an init hook
func WithInit(h Hook) ModuleOption {
	return func(m *Module) {
		m.initHooks = append(m.initHooks, h)
	}
}

// WithCreate returns an option that adds a create hook
func WithCreate(h Hook) ModuleOption {
	return func(m *Module) {
		m.createHooks = append(m.createHooks, h)
	}
}

// WithDelete returns an option that adds a delete hook
func WithDelete(h Hook) ModuleOption {
	return func(m *Module) {
		m.deleteHooks = append(m.deleteHooks, h)
	}
}

func newModule(c *Container, parent *Module, name string, opts ...ModuleOption) *Module {
	m := &Module{
		id:        uuid.New(),
		name:      name,
		container: c,
		parent:    parent,
		arena:     newInstanceArena(),
		building:  make(map[Key]bool),
	}
	m.logger = c.logger.With("module", name)

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// ID returns the identity assigned when the module was created
func (m *Module) ID() uuid.UUID {
	return m.id
}

// Name returns the registered module name
func (m *Module) Name() string {
	return m.name
}

// Container returns the owning container
func (m *Module) Container() *Container {
	return m.container
}

// Parent returns the parent module, or nil for a top-level module
func (m *Module) Parent() *Module {
	return m.parent
}

// Children returns the nested modules in creation order
func (m *Module) Children() []*Module {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.children)
}

// State returns the lifecycle state
func (m *Module) State() ModuleState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Generation is incremented every time the module's instances are torn down
func (m *Module) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.arena.generation
}

// Cached returns the keys of the live instances in creation order
func (m *Module) Cached() []Key {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.arena.keys()
}

// Logger returns the module logger
func (m *Module) Logger() *slog.Logger {
	return m.logger
}

// OnInit adds an init hook. It runs on the next Init transition.
func (m *Module) OnInit(h Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initHooks = append(m.initHooks, h)
}

// OnCreate adds a create hook. It runs on the next Created transition.
func (m *Module) OnCreate(h Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createHooks = append(m.createHooks, h)
}

// OnDelete adds a delete hook
func (m *Module) OnDelete(h Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteHooks = append(m.deleteHooks, h)
}

// NewChild creates a nested module. The child resolves through this module's
// cache before the container, and is reloaded and deleted with it.
func (m *Module) NewChild(name string, opts ...ModuleOption) (*Module, error) {
	if m.State() == ModuleDeleted {
		return nil, fmt.Errorf("create child %q: %w", name, ErrModuleDeleted)
	}
	return m.container.createModule(m, name, opts...)
}

// ImportComponent resolves a component by binding name or key
func (m *Module) ImportComponent(name string) (any, error) {
	return m.resolve("", name, nil)
}

func (m *Module) importKey(key Key) (any, error) {
	return m.resolve(key, "", nil)
}

// resolve walks the scope chain: own cache, ancestor caches, container
// statics, then registry bindings. Exactly one of key and name is set.
func (m *Module) resolve(key Key, name string, chain []Key) (any, error) {
	var binding Binding
	var hasBinding bool

	reg := m.container.registry
	if name != "" {
		binding, hasBinding = reg.BindingByName(name)
		if hasBinding {
			key = binding.Key
		} else {
			key = Key(name)
		}
	} else {
		binding, hasBinding = reg.Binding(key)
	}

	m.mu.Lock()
	if m.state == ModuleDeleted {
		m.mu.Unlock()
		return nil, newResolveError(key, m.name, chain, ErrModuleDeleted)
	}
	if inst, ok := m.arena.load(key); ok {
		m.mu.Unlock()
		return inst.value, nil
	}
	if m.building[key] {
		m.mu.Unlock()
		return nil, newResolveError(key, m.name, chain, ErrCycle)
	}
	m.mu.Unlock()

	for p := m.parent; p != nil; p = p.parent {
		if val, ok := p.peek(key); ok {
			return val, nil
		}
	}

	if val, ok := m.container.Static(key); ok {
		return val, nil
	}

	if !hasBinding {
		return nil, newResolveError(key, m.name, chain, ErrUnresolvable)
	}

	return m.create(binding, chain)
}

func (m *Module) peek(key Key) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == ModuleDeleted {
		return nil, false
	}
	inst, ok := m.arena.load(key)
	if !ok {
		return nil, false
	}
	return inst.value, true
}

func (m *Module) create(b Binding, chain []Key) (any, error) {
	m.mu.Lock()
	m.building[b.Key] = true
	m.mu.Unlock()

	ctx := newResolveCtx(m, b.Key, chain)
	op := &Operation{
		Kind:      OpResolve,
		Key:       b.Key,
		Module:    m,
		Container: m.container,
	}

	val, err := m.container.wrap(op, func() (any, error) {
		return b.Factory(ctx)
	})

	m.mu.Lock()
	delete(m.building, b.Key)
	m.mu.Unlock()

	if err != nil {
		ctx.abort()
		var resolveErr *ResolveError
		if errors.As(err, &resolveErr) {
			return nil, err
		}
		return nil, newResolveError(b.Key, m.name, chain, err)
	}

	m.mu.Lock()
	if m.state == ModuleDeleted {
		m.mu.Unlock()
		m.container.runCleanups(ctx.takeCleanups(), b.Key, m.name, "delete")
		return nil, newResolveError(b.Key, m.name, chain, ErrModuleDeleted)
	}
	m.arena.store(b.Key, val, ctx.takeCleanups())
	m.mu.Unlock()

	m.logger.Debug("component created", "key", b.Key.String(), "artifact", b.Artifact)
	return val, nil
}

// adoptCleanups keeps cleanups registered by uncached plugin instances until
// the module is deleted.
func (m *Module) adoptCleanups(ctx *ResolveCtx) {
	entries := ctx.takeCleanups()
	if len(entries) == 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.loose = append(m.loose, entries...)
}

// release drops one cached instance and runs its cleanups
func (m *Module) release(key Key) error {
	m.mu.Lock()
	inst, ok := m.arena.remove(key)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	return m.container.releaseInstance(inst, m.name, "release")
}

// start runs Init then Created for this module only
func (m *Module) start() error {
	m.mu.Lock()
	m.state = ModuleInit
	m.starting = true
	initHooks := slices.Clone(m.initHooks)
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.starting = false
		m.mu.Unlock()
	}()

	for _, h := range initHooks {
		if err := h(m); err != nil {
			return &LifecycleError{Phase: "init", Owner: "module " + m.name, Cause: err}
		}
	}

	m.mu.Lock()
	m.state = ModuleCreated
	createHooks := slices.Clone(m.createHooks)
	m.mu.Unlock()

	for _, h := range createHooks {
		if err := h(m); err != nil {
			return &LifecycleError{Phase: "create", Owner: "module " + m.name, Cause: err}
		}
	}

	m.logger.Debug("module created", "generation", m.Generation())
	return nil
}

// isStarting reports whether m is running its init or create hooks
func (m *Module) isStarting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starting
}

// startTree starts m and then its torn down children, parents before
// children. Children created by m's hooks are already started.
func (m *Module) startTree() error {
	if err := m.start(); err != nil {
		return err
	}
	for _, child := range m.Children() {
		if child.State() != ModuleDeleted {
			continue
		}
		if err := child.startTree(); err != nil {
			return err
		}
	}
	return nil
}

// dropSpawned unregisters the torn down children that m's hooks created, so
// the hooks can create them again. Other children are kept for restart.
func (m *Module) dropSpawned() {
	for _, child := range m.Children() {
		child.mu.Lock()
		spawned := child.spawned
		child.mu.Unlock()

		if spawned {
			m.container.unregister(child)
			continue
		}
		child.dropSpawned()
	}
}

// teardown runs the Deleted transition for this module only. Delete hooks run
// first so they can still import collaborators; then instances are released
// newest first.
func (m *Module) teardown(reason string) error {
	m.mu.Lock()
	if m.state == ModuleDeleted {
		m.mu.Unlock()
		return nil
	}
	deleteHooks := slices.Clone(m.deleteHooks)
	m.mu.Unlock()

	var errs []error
	for _, h := range deleteHooks {
		if err := h(m); err != nil {
			errs = append(errs, &LifecycleError{Phase: "delete", Owner: "module " + m.name, Cause: err})
		}
	}

	m.mu.Lock()
	m.state = ModuleDeleted
	instances := m.arena.drain()
	loose := m.loose
	m.loose = nil
	m.mu.Unlock()

	for _, inst := range instances {
		if err := m.container.releaseInstance(inst, m.name, reason); err != nil {
			errs = append(errs, err)
		}
	}
	if err := m.container.runCleanups(loose, "", m.name, reason); err != nil {
		errs = append(errs, err)
	}

	m.logger.Debug("module deleted", "reason", reason, "released", len(instances))
	return errors.Join(errs...)
}

// teardownTree tears down children (newest first) and then m
func (m *Module) teardownTree(reason string) error {
	var errs []error
	children := m.Children()
	for i := len(children) - 1; i >= 0; i-- {
		if err := children[i].teardownTree(reason); err != nil {
			errs = append(errs, err)
		}
	}
	if err := m.teardown(reason); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// reload tears down the module tree and rebuilds it against the same
// registry and container.
func (m *Module) reload() error {
	op := &Operation{
		Kind:      OpReload,
		Key:       Key(m.name),
		Module:    m,
		Container: m.container,
	}

	_, err := m.container.wrap(op, func() (any, error) {
		var errs []error
		if err := m.teardownTree("reload"); err != nil {
			errs = append(errs, err)
		}
		m.dropSpawned()
		if err := m.startTree(); err != nil {
			errs = append(errs, err)
		}
		return nil, errors.Join(errs...)
	})
	return err
}

// Delete destroys the module and every nested module, then unregisters it
// from its container.
func (m *Module) Delete() error {
	op := &Operation{
		Kind:      OpDelete,
		Key:       Key(m.name),
		Module:    m,
		Container: m.container,
	}

	_, err := m.container.wrap(op, func() (any, error) {
		return nil, m.teardownTree("delete")
	})

	m.container.unregister(m)
	return err
}

func (m *Module) subtree() []*Module {
	out := []*Module{m}
	for _, child := range m.Children() {
		out = append(out, child.subtree()...)
	}
	return out
}

func (m *Module) removeChild(child *Module) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.children = slices.DeleteFunc(m.children, func(c *Module) bool { return c == child })
}

func (m *Module) addChild(child *Module) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.children = append(m.children, child)
}

// Has reports whether the module itself holds a live instance for key
func (m *Module) Has(key Key) bool {
	_, ok := m.peek(key)
	return ok
}

var (
	_ Resolver = (*Module)(nil)
	_ Resolver = (*ResolveCtx)(nil)
)

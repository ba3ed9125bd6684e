package featurea

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// DuplicatePolicy decides which binding is kept when two artifacts bind the
// same key.
type DuplicatePolicy int

const (
	// DuplicateLastWins keeps the later binding in flattened order and logs a
	// warning. This is the default.
	DuplicateLastWins DuplicatePolicy = iota
	// DuplicateFirstWins keeps the earlier binding
	DuplicateFirstWins
	// DuplicateError fails registry construction
	DuplicateError
)

func (p DuplicatePolicy) String() string {
	switch p {
	case DuplicateLastWins:
		return "last-wins"
	case DuplicateFirstWins:
		return "first-wins"
	case DuplicateError:
		return "error"
	default:
		return fmt.Sprintf("DuplicatePolicy(%d)", int(p))
	}
}

// ParseDuplicatePolicy parses the String form of a policy
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "last-wins", "last":
		return DuplicateLastWins, nil
	case "first-wins", "first":
		return DuplicateFirstWins, nil
	case "error", "strict":
		return DuplicateError, nil
	default:
		return DuplicateLastWins, fmt.Errorf("unknown duplicate policy %q", s)
	}
}

// Duplicate describes a key bound by more than one artifact
type Duplicate struct {
	Key    Key
	First  string
	Second string
	Kept   string
}

// DependencyRegistry is the flattened, read-only form of an artifact graph
type DependencyRegistry struct {
	root        string
	policy      DuplicatePolicy
	artifacts   []string
	bindings    []Binding
	byKey       map[Key]int
	byName      map[string]int
	plugins     map[string][]PluginEntry
	pluginOrder []string
	awaited     []Key
	statics     []StaticBlock
	creates     []CreateHook
	roots       []ContentRoot
	graph       *IncludeGraph
	duplicates  []Duplicate
}

// RegistryOption is a modifier for registries
type RegistryOption func(*registryConfig)

type registryConfig struct {
	policy DuplicatePolicy
	logger *slog.Logger
}

// WithDuplicatePolicy returns an option that sets the duplicate key policy
func WithDuplicatePolicy(p DuplicatePolicy) RegistryOption {
	return func(c *registryConfig) {
		c.policy = p
	}
}

// WithRegistryLogger returns an option that sets the logger used for
// duplicate warnings.
func WithRegistryLogger(l *slog.Logger) RegistryOption {
	return func(c *registryConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewRegistry flattens the include graph of root
func NewRegistry(root *Artifact, opts ...RegistryOption) (*DependencyRegistry, error) {
	if root == nil {
		return nil, fmt.Errorf("registry: %w", ErrNilRoot)
	}

	cfg := registryConfig{
		policy: DuplicateLastWins,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	f := &flattener{
		cfg:     cfg,
		visited: make(map[string]bool),
		byKey:   make(map[Key]int),
		plugins: make(map[string][]PluginEntry),
		awaited: make(map[Key]bool),
		graph:   newIncludeGraph(root.name),
	}
	f.graph.addNode(root.name)
	if err := f.visit(root); err != nil {
		return nil, err
	}

	reg := &DependencyRegistry{
		root:        root.name,
		policy:      cfg.policy,
		artifacts:   f.order,
		bindings:    partitionProviders(f.bindings),
		plugins:     f.plugins,
		pluginOrder: f.pluginOrder,
		awaited:     f.awaitOrder,
		statics:     f.statics,
		creates:     f.creates,
		roots:       f.roots,
		graph:       f.graph,
		duplicates:  f.duplicates,
	}
	if err := reg.index(cfg); err != nil {
		return nil, err
	}

	cfg.logger.Debug("registry flattened",
		"root", root.name,
		"artifacts", len(reg.artifacts),
		"bindings", len(reg.bindings),
		"plugins", len(reg.pluginOrder),
		"awaited", len(reg.awaited),
	)

	return reg, nil
}

type flattener struct {
	cfg         registryConfig
	visited     map[string]bool
	order       []string
	bindings    []Binding
	byKey       map[Key]int
	plugins     map[string][]PluginEntry
	pluginOrder []string
	awaited     map[Key]bool
	awaitOrder  []Key
	statics     []StaticBlock
	creates     []CreateHook
	roots       []ContentRoot
	graph       *IncludeGraph
	duplicates  []Duplicate
}

// visit expands an artifact in declaration order. Includes are expanded at the
// position they were declared; an artifact name is expanded only once.
func (f *flattener) visit(a *Artifact) error {
	if f.visited[a.name] {
		return nil
	}
	f.visited[a.name] = true
	f.order = append(f.order, a.name)

	for _, d := range a.decls {
		switch d.kind {
		case declInclude:
			f.graph.addEdge(a.name, d.include.name)
			if err := f.visit(d.include); err != nil {
				return err
			}
		case declBinding:
			if err := f.addBinding(d.binding); err != nil {
				return err
			}
		case declPlugin:
			if _, ok := f.plugins[d.plugin.name]; !ok {
				f.pluginOrder = append(f.pluginOrder, d.plugin.name)
				f.plugins[d.plugin.name] = nil
			}
			f.plugins[d.plugin.name] = append(f.plugins[d.plugin.name], d.plugin.entries...)
		case declStatic:
			f.statics = append(f.statics, StaticBlock{Artifact: a.name, Run: d.static})
		case declContentRoot:
			f.roots = append(f.roots, ContentRoot{Artifact: a.name, Path: d.root})
		case declAwait:
			if !f.awaited[d.await] {
				f.awaited[d.await] = true
				f.awaitOrder = append(f.awaitOrder, d.await)
			}
		case declCreate:
			f.creates = append(f.creates, CreateHook{Artifact: a.name, Run: d.create})
		}
	}

	return nil
}

func (f *flattener) addBinding(b Binding) error {
	idx, exists := f.byKey[b.Key]
	if !exists {
		f.byKey[b.Key] = len(f.bindings)
		f.bindings = append(f.bindings, b)
		return nil
	}

	prev := f.bindings[idx]
	dup := Duplicate{Key: b.Key, First: prev.Artifact, Second: b.Artifact}

	switch f.cfg.policy {
	case DuplicateError:
		return &DuplicateBindingError{Key: b.Key, First: prev.Artifact, Duplicate: b.Artifact}
	case DuplicateFirstWins:
		dup.Kept = prev.Artifact
	default:
		// The slot keeps its original position, like a re-put into an ordered map.
		f.bindings[idx] = b
		dup.Kept = b.Artifact
	}

	f.duplicates = append(f.duplicates, dup)
	f.cfg.logger.Warn("duplicate binding",
		"key", b.Key.String(),
		"first", dup.First,
		"second", dup.Second,
		"kept", dup.Kept,
		"policy", f.cfg.policy.String(),
	)

	return nil
}

// partitionProviders moves provider bindings in front of all others without
// changing relative order inside either group.
func partitionProviders(in []Binding) []Binding {
	out := make([]Binding, 0, len(in))
	for _, b := range in {
		if b.Provider() {
			out = append(out, b)
		}
	}
	for _, b := range in {
		if !b.Provider() {
			out = append(out, b)
		}
	}
	return out
}

func (r *DependencyRegistry) index(cfg registryConfig) error {
	r.byKey = make(map[Key]int, len(r.bindings))
	r.byName = make(map[string]int, len(r.bindings))

	for i, b := range r.bindings {
		r.byKey[b.Key] = i

		name := b.Name()
		prev, taken := r.byName[name]
		if !taken {
			r.byName[name] = i
			continue
		}

		other := r.bindings[prev]
		if cfg.policy == DuplicateError {
			return &DuplicateBindingError{Key: Key(name), First: other.Artifact, Duplicate: b.Artifact}
		}

		dup := Duplicate{Key: Key(name), First: other.Artifact, Second: b.Artifact, Kept: other.Artifact}
		if cfg.policy == DuplicateLastWins {
			r.byName[name] = i
			dup.Kept = b.Artifact
		}
		r.duplicates = append(r.duplicates, dup)
		cfg.logger.Warn("duplicate binding name", "name", name, "kept", dup.Kept)
	}

	return nil
}

// Root returns the name of the root artifact
func (r *DependencyRegistry) Root() string {
	return r.root
}

// Policy returns the duplicate policy the registry was built with
func (r *DependencyRegistry) Policy() DuplicatePolicy {
	return r.policy
}

// Artifacts returns artifact names in visit order
func (r *DependencyRegistry) Artifacts() []string {
	out := make([]string, len(r.artifacts))
	copy(out, r.artifacts)
	return out
}

// Bindings returns the flattened binding table
func (r *DependencyRegistry) Bindings() []Binding {
	out := make([]Binding, len(r.bindings))
	copy(out, r.bindings)
	return out
}

// Binding looks up a binding by canonical key
func (r *DependencyRegistry) Binding(key Key) (Binding, bool) {
	idx, ok := r.byKey[key]
	if !ok {
		return Binding{}, false
	}
	return r.bindings[idx], true
}

// BindingByName looks up a binding by declared name, falling back to the
// canonical key.
func (r *DependencyRegistry) BindingByName(name string) (Binding, bool) {
	if idx, ok := r.byName[name]; ok {
		return r.bindings[idx], true
	}
	return r.Binding(Key(name))
}

// Plugins returns plugin names in first-install order
func (r *DependencyRegistry) Plugins() []string {
	out := make([]string, len(r.pluginOrder))
	copy(out, r.pluginOrder)
	return out
}

// PluginEntries returns the entries of a plugin in declaration order
func (r *DependencyRegistry) PluginEntries(name string) []PluginEntry {
	entries := r.plugins[name]
	out := make([]PluginEntry, len(entries))
	copy(out, entries)
	return out
}

// Awaited returns the proxy keys declared with Await
func (r *DependencyRegistry) Awaited() []Key {
	out := make([]Key, len(r.awaited))
	copy(out, r.awaited)
	return out
}

// StaticBlocks returns static blocks in flattened order
func (r *DependencyRegistry) StaticBlocks() []StaticBlock {
	out := make([]StaticBlock, len(r.statics))
	copy(out, r.statics)
	return out
}

// CreateHooks returns artifact create hooks in flattened order
func (r *DependencyRegistry) CreateHooks() []CreateHook {
	out := make([]CreateHook, len(r.creates))
	copy(out, r.creates)
	return out
}

// ContentRoots returns content roots in flattened order
func (r *DependencyRegistry) ContentRoots() []ContentRoot {
	out := make([]ContentRoot, len(r.roots))
	copy(out, r.roots)
	return out
}

// IncludeGraph returns the include edges seen while flattening
func (r *DependencyRegistry) IncludeGraph() *IncludeGraph {
	return r.graph
}

// Duplicates returns every duplicate key detected while flattening
func (r *DependencyRegistry) Duplicates() []Duplicate {
	out := make([]Duplicate, len(r.duplicates))
	copy(out, r.duplicates)
	return out
}

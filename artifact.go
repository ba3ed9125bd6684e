package featurea

// Factory builds a component for the module bound to ctx
type Factory func(ctx *ResolveCtx) (any, error)

// Binding is a named factory registered by an artifact
type Binding struct {
	// Key is the canonical lookup key.
	Key Key
	// Alias is an optional string name. For string bindings it is empty and
	// Name() falls back to the key itself.
	Alias string
	// Artifact is the name of the declaring artifact.
	Artifact string
	Factory  Factory
}

// Name returns the declared name of the binding, used for ordering and for
// string lookups.
func (b Binding) Name() string {
	if b.Alias != "" {
		return b.Alias
	}
	return string(b.Key)
}

// Provider reports whether the binding hands over a pre-existing value
func (b Binding) Provider() bool {
	return IsProviderKey(b.Name())
}

// StaticBlock runs once when a container becomes ready
type StaticBlock struct {
	Artifact string
	Run      func(sc *StaticCtx) error
}

// CreateHook runs after every static block of a container
type CreateHook struct {
	Artifact string
	Run      func(c *Container) error
}

// ContentRoot produces a path handed to file-loading collaborators
type ContentRoot struct {
	Artifact string
	Path     func() string
}

type declKind int

const (
	declInclude declKind = iota
	declBinding
	declPlugin
	declStatic
	declContentRoot
	declAwait
	declCreate
)

type declaration struct {
	kind    declKind
	include *Artifact
	binding Binding
	plugin  pluginInstall
	static  func(sc *StaticCtx) error
	root    func() string
	await   Key
	create  func(c *Container) error
}

// Artifact is an immutable, named bundle of includes, bindings, plugin
// contributions, content roots and static initializers.
type Artifact struct {
	name  string
	decls []declaration
}

// DependencyBuilder records declarations while an artifact is being built.
// It is only valid inside the build function passed to NewArtifact.
type DependencyBuilder struct {
	name  string
	decls []declaration
}

// NewArtifact creates an artifact. Nothing declared in build runs until a
// registry is flattened from it.
func NewArtifact(name string, build func(b *DependencyBuilder)) *Artifact {
	b := &DependencyBuilder{name: name}
	if build != nil {
		build(b)
	}

	decls := make([]declaration, len(b.decls))
	copy(decls, b.decls)
	b.decls = nil

	return &Artifact{name: name, decls: decls}
}

// Name returns the artifact name used for deduplication
func (a *Artifact) Name() string {
	return a.name
}

// Includes returns the directly included artifacts in declaration order
func (a *Artifact) Includes() []*Artifact {
	var out []*Artifact
	for _, d := range a.decls {
		if d.kind == declInclude {
			out = append(out, d.include)
		}
	}
	return out
}

// Bindings returns the bindings declared directly by this artifact
func (a *Artifact) Bindings() []Binding {
	var out []Binding
	for _, d := range a.decls {
		if d.kind == declBinding {
			out = append(out, d.binding)
		}
	}
	return out
}

// Name returns the name of the artifact under construction
func (b *DependencyBuilder) Name() string {
	return b.name
}

// Include appends a child artifact. A nil artifact is ignored.
func (b *DependencyBuilder) Include(other *Artifact) {
	if other == nil {
		return
	}
	b.decls = append(b.decls, declaration{kind: declInclude, include: other})
}

// Bind registers a string-keyed factory
func (b *DependencyBuilder) Bind(key string, factory Factory) {
	b.decls = append(b.decls, declaration{
		kind: declBinding,
		binding: Binding{
			Key:      Key(key),
			Artifact: b.name,
			Factory:  factory,
		},
	})
}

// BindOption is a modifier for bindings
type BindOption func(*Binding)

// WithAlias returns an option that adds a string name to a typed binding
func WithAlias(name string) BindOption {
	return func(bd *Binding) {
		bd.Alias = name
	}
}

// BindType registers a factory under TypeKey[T]
func BindType[T any](b *DependencyBuilder, factory func(ctx *ResolveCtx) (T, error), opts ...BindOption) {
	bd := Binding{
		Key:      TypeKey[T](),
		Artifact: b.name,
		Factory: func(ctx *ResolveCtx) (any, error) {
			return factory(ctx)
		},
	}

	for _, opt := range opts {
		opt(&bd)
	}

	b.decls = append(b.decls, declaration{kind: declBinding, binding: bd})
}

// Func adapts a zero-argument constructor to a typed factory
func Func[T any](fn func() T) func(ctx *ResolveCtx) (T, error) {
	return func(*ResolveCtx) (T, error) {
		return fn(), nil
	}
}

// Static registers a block run exactly once when a container built from this
// artifact becomes ready.
func (b *DependencyBuilder) Static(block func(sc *StaticCtx) error) {
	b.decls = append(b.decls, declaration{kind: declStatic, static: block})
}

// IncludeContentRoot registers a path producer
func (b *DependencyBuilder) IncludeContentRoot(path func() string) {
	b.decls = append(b.decls, declaration{kind: declContentRoot, root: path})
}

// Await declares a proxy that must be supplied from outside before the
// container is ready.
func (b *DependencyBuilder) Await(key Key) {
	b.decls = append(b.decls, declaration{kind: declAwait, await: key})
}

// AwaitType declares an awaited proxy keyed by TypeKey[T]
func AwaitType[T any](b *DependencyBuilder) {
	b.Await(TypeKey[T]())
}

// OnCreate registers a container create hook, run after all static blocks
func (b *DependencyBuilder) OnCreate(hook func(c *Container) error) {
	b.decls = append(b.decls, declaration{kind: declCreate, create: hook})
}

package featurea

import (
	"errors"
	"slices"
	"sync/atomic"
	"testing"
)

type Counter struct {
	ID int
}

type Greeter struct {
	Counter *Counter
}

func newCounterArtifact(built *atomic.Int32) *Artifact {
	return NewArtifact("app", func(b *DependencyBuilder) {
		BindType(b, func(ctx *ResolveCtx) (*Counter, error) {
			return &Counter{ID: int(built.Add(1))}, nil
		}, WithAlias("counter"))
		BindType(b, func(ctx *ResolveCtx) (*Greeter, error) {
			counter, err := Import[*Counter](ctx)
			if err != nil {
				return nil, err
			}
			return &Greeter{Counter: counter}, nil
		})
	})
}

func newReadyContainer(t *testing.T, root *Artifact, opts ...ContainerOption) *Container {
	t.Helper()

	c, err := NewContainer(root, opts...)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	t.Cleanup(func() { c.Destroy() })
	return c
}

func TestModule_Memoization(t *testing.T) {
	var built atomic.Int32
	c := newReadyContainer(t, newCounterArtifact(&built))

	m, err := c.NewModule("main")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	first := MustImport[*Counter](m)
	second := MustImport[*Counter](m)
	if first != second {
		t.Error("expected the same instance from one module")
	}

	greeter := MustImport[*Greeter](m)
	if greeter.Counter != first {
		t.Error("expected the greeter to receive the module's counter")
	}

	byName, err := ImportNamed[*Counter](m, "counter")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if byName != first {
		t.Error("expected alias lookup to hit the same cache entry")
	}

	if built.Load() != 1 {
		t.Errorf("expected factory to run once, ran %d times", built.Load())
	}
	if got := m.Cached(); !slices.Equal(got, []Key{TypeKey[*Counter](), TypeKey[*Greeter]()}) {
		t.Errorf("unexpected cache contents %v", got)
	}
}

func TestModule_SiblingsGetDistinctInstances(t *testing.T) {
	var built atomic.Int32
	c := newReadyContainer(t, newCounterArtifact(&built))

	a, _ := c.NewModule("a")
	b, _ := c.NewModule("b")

	ca := MustImport[*Counter](a)
	cb := MustImport[*Counter](b)
	if ca == cb {
		t.Error("expected sibling modules to own distinct instances")
	}
	if ca.ID == cb.ID {
		t.Errorf("expected distinct ids, got %d and %d", ca.ID, cb.ID)
	}
}

func TestModule_UnresolvableFailsFast(t *testing.T) {
	c := newReadyContainer(t, NewArtifact("app", func(b *DependencyBuilder) {
		b.Bind("needsMissing", func(ctx *ResolveCtx) (any, error) {
			return ctx.ImportComponent("missing")
		})
	}))

	m, _ := c.NewModule("main")

	_, err := m.ImportComponent("nothing")
	if !errors.Is(err, ErrUnresolvable) {
		t.Fatalf("expected ErrUnresolvable, got %v", err)
	}

	_, err = m.ImportComponent("needsMissing")
	var resolveErr *ResolveError
	if !errors.As(err, &resolveErr) {
		t.Fatalf("expected ResolveError, got %v", err)
	}
	if resolveErr.Key != "missing" {
		t.Errorf("expected the missing key to be reported, got %s", resolveErr.Key)
	}
	if !slices.Equal(resolveErr.Chain, []Key{"needsMissing"}) {
		t.Errorf("expected chain [needsMissing], got %v", resolveErr.Chain)
	}
	if len(m.Cached()) != 0 {
		t.Errorf("expected no cache mutation, got %v", m.Cached())
	}
}

func TestModule_CycleDetection(t *testing.T) {
	c := newReadyContainer(t, NewArtifact("app", func(b *DependencyBuilder) {
		b.Bind("a", func(ctx *ResolveCtx) (any, error) { return ctx.ImportComponent("b") })
		b.Bind("b", func(ctx *ResolveCtx) (any, error) { return ctx.ImportComponent("a") })
	}))

	m, _ := c.NewModule("main")

	_, err := m.ImportComponent("a")
	if !errors.Is(err, ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}
}

func TestModule_FactoryErrorRunsCleanups(t *testing.T) {
	var cleaned []string
	boom := errors.New("boom")

	c := newReadyContainer(t, NewArtifact("app", func(b *DependencyBuilder) {
		b.Bind("broken", func(ctx *ResolveCtx) (any, error) {
			ctx.OnCleanup(func() error {
				cleaned = append(cleaned, "partial")
				return nil
			})
			return nil, boom
		})
	}))

	m, _ := c.NewModule("main")

	_, err := m.ImportComponent("broken")
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if !slices.Equal(cleaned, []string{"partial"}) {
		t.Errorf("expected partial cleanup to run, got %v", cleaned)
	}
	if m.Has("broken") {
		t.Error("expected failed component not to be cached")
	}
}

func TestModule_ReloadIsolation(t *testing.T) {
	var built atomic.Int32
	root := NewArtifact("game", func(b *DependencyBuilder) {
		b.Include(newCounterArtifact(&built))
		b.Static(func(sc *StaticCtx) error {
			return Provide(sc, &Window{Title: "static"})
		})
	})
	c := newReadyContainer(t, root)

	target, _ := c.NewModule("target")
	sibling, _ := c.NewModule("sibling")

	oldCounter := MustImport[*Counter](target)
	oldWindow := MustImport[*Window](target)
	siblingCounter := MustImport[*Counter](sibling)
	generation := target.Generation()

	if err := c.Reload("target"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if target.State() != ModuleCreated {
		t.Errorf("expected reloaded module to be created, got %s", target.State())
	}
	if target.Generation() != generation+1 {
		t.Errorf("expected generation %d, got %d", generation+1, target.Generation())
	}
	if len(target.Cached()) != 0 {
		t.Errorf("expected reload to clear the cache, got %v", target.Cached())
	}

	newCounter := MustImport[*Counter](target)
	if newCounter == oldCounter {
		t.Error("expected a fresh instance after reload")
	}
	if MustImport[*Window](target) != oldWindow {
		t.Error("expected static singleton to survive reload")
	}
	if MustImport[*Counter](sibling) != siblingCounter {
		t.Error("expected sibling cache to survive reload")
	}
}

func TestModule_ReloadReachesChildren(t *testing.T) {
	var built atomic.Int32
	c := newReadyContainer(t, newCounterArtifact(&built))

	var events []string
	hooks := func(name string) []ModuleOption {
		return []ModuleOption{
			WithInit(func(*Module) error { events = append(events, name+":init"); return nil }),
			WithCreate(func(*Module) error { events = append(events, name+":create"); return nil }),
			WithDelete(func(*Module) error { events = append(events, name+":delete"); return nil }),
		}
	}

	parent, err := c.NewModule("parent", hooks("parent")...)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	child, err := parent.NewChild("child", hooks("child")...)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	parentCounter := MustImport[*Counter](parent)
	if MustImport[*Counter](child) != parentCounter {
		t.Error("expected child to see the parent's cached counter")
	}

	events = nil
	if err := c.Reload("parent"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	expected := []string{
		"child:delete", "parent:delete",
		"parent:init", "parent:create",
		"child:init", "child:create",
	}
	if !slices.Equal(events, expected) {
		t.Errorf("expected %v, got %v", expected, events)
	}
	if child.State() != ModuleCreated {
		t.Errorf("expected child to be created again, got %s", child.State())
	}
	if MustImport[*Counter](child) == parentCounter {
		t.Error("expected child to get a fresh counter after reload")
	}
}

func TestModule_ReloadRecreatesHookChildren(t *testing.T) {
	var built atomic.Int32
	c := newReadyContainer(t, newCounterArtifact(&built))

	bootstraps := 0
	scene, err := c.NewModule("scene", WithCreate(func(m *Module) error {
		bootstraps++
		_, err := m.NewChild("hud")
		return err
	}))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	overlay, err := scene.NewChild("overlay")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	oldHUD, ok := c.Module("hud")
	if !ok {
		t.Fatal("expected create hook to register hud")
	}

	for i := 0; i < 2; i++ {
		if err := c.Reload("scene"); err != nil {
			t.Fatalf("reload %d: expected no error, got %v", i+1, err)
		}
	}

	if bootstraps != 3 {
		t.Errorf("expected create hook to run 3 times, got %d", bootstraps)
	}
	if oldHUD.State() != ModuleDeleted {
		t.Errorf("expected old hud to stay deleted, got %s", oldHUD.State())
	}

	hud, ok := c.Module("hud")
	if !ok {
		t.Fatal("expected hud to be created again")
	}
	if hud == oldHUD {
		t.Error("expected a fresh hud module after reload")
	}
	if hud.Parent() != scene || hud.State() != ModuleCreated {
		t.Errorf("expected created hud under scene, got parent %v state %s", hud.Parent(), hud.State())
	}

	if overlay.State() != ModuleCreated {
		t.Errorf("expected overlay restarted, got %s", overlay.State())
	}
	if got, ok := c.Module("overlay"); !ok || got != overlay {
		t.Error("expected overlay to keep its module")
	}

	if n := len(scene.Children()); n != 2 {
		t.Errorf("expected 2 children, got %d", n)
	}
	if n := len(c.Modules()); n != 3 {
		t.Errorf("expected 3 live modules, got %d", n)
	}
}

func TestModule_DeleteReleasesNewestFirst(t *testing.T) {
	var released []string
	track := func(name string) Factory {
		return func(ctx *ResolveCtx) (any, error) {
			ctx.OnCleanup(func() error {
				released = append(released, name)
				return nil
			})
			return name, nil
		}
	}

	c := newReadyContainer(t, NewArtifact("app", func(b *DependencyBuilder) {
		b.Bind("first", track("first"))
		b.Bind("second", track("second"))
		b.Bind("third", track("third"))
	}))

	var hookSawCache bool
	m, _ := c.NewModule("main", WithDelete(func(m *Module) error {
		hookSawCache = m.Has("first")
		return nil
	}))

	for _, k := range []string{"first", "second", "third"} {
		if _, err := m.ImportComponent(k); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	}

	if err := m.Delete(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if !hookSawCache {
		t.Error("expected delete hooks to run before instances are dropped")
	}
	if !slices.Equal(released, []string{"third", "second", "first"}) {
		t.Errorf("expected newest first, got %v", released)
	}
	if _, ok := c.Module("main"); ok {
		t.Error("expected module to be unregistered")
	}
	if _, err := m.ImportComponent("first"); !errors.Is(err, ErrModuleDeleted) {
		t.Errorf("expected ErrModuleDeleted, got %v", err)
	}
	if _, err := m.NewChild("late"); !errors.Is(err, ErrModuleDeleted) {
		t.Errorf("expected ErrModuleDeleted, got %v", err)
	}
}

type closer struct {
	closed bool
}

func (c *closer) Dispose() error {
	c.closed = true
	return nil
}

func TestModule_Disposer(t *testing.T) {
	c := newReadyContainer(t, NewArtifact("app", func(b *DependencyBuilder) {
		BindType(b, Func(func() *closer { return &closer{} }))
	}))

	m, _ := c.NewModule("main")
	res := MustImport[*closer](m)

	if err := m.Delete(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !res.closed {
		t.Error("expected Dispose to be called on delete")
	}
}

func TestModule_CreateHookFailureRollsBack(t *testing.T) {
	c := newReadyContainer(t, NewArtifact("app", nil))
	boom := errors.New("boom")

	deleted := false
	_, err := c.NewModule("main",
		WithCreate(func(*Module) error { return boom }),
		WithDelete(func(*Module) error { deleted = true; return nil }),
	)
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if !deleted {
		t.Error("expected failed module to be torn down")
	}
	if _, ok := c.Module("main"); ok {
		t.Error("expected failed module to be unregistered")
	}
}

func TestModule_Identity(t *testing.T) {
	c := newReadyContainer(t, NewArtifact("app", nil))

	a, _ := c.NewModule("a")
	b, _ := c.NewModule("b")

	if a.ID() == b.ID() {
		t.Error("expected distinct module ids")
	}
	if a.Container() != c {
		t.Error("expected module to reference its container")
	}
	if got := c.Modules(); len(got) != 2 || got[0] != a || got[1] != b {
		t.Errorf("expected modules in creation order, got %v", got)
	}
}

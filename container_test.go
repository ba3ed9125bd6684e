package featurea

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

type Window struct {
	Title string
}

type Renderer struct {
	Window *Window
}

func TestContainer_ReadyWithoutProxies(t *testing.T) {
	ran := 0
	root := NewArtifact("app", func(b *DependencyBuilder) {
		b.Static(func(sc *StaticCtx) error {
			ran++
			return nil
		})
	})

	c, err := NewContainer(root)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer c.Destroy()

	if c.State() != ContainerReady {
		t.Errorf("expected ready, got %s", c.State())
	}
	if ran != 1 {
		t.Errorf("expected static block to run once, ran %d times", ran)
	}

	select {
	case <-c.Ready():
	default:
		t.Error("expected ready channel to be closed")
	}
}

func TestContainer_ReadinessGating(t *testing.T) {
	var events []string

	root := NewArtifact("app", func(b *DependencyBuilder) {
		AwaitType[*Window](b)
		b.Static(func(sc *StaticCtx) error {
			events = append(events, "static")
			win, ok := sc.Container().Static(TypeKey[*Window]())
			if !ok {
				return errors.New("window not supplied")
			}
			return Provide(sc, &Renderer{Window: win.(*Window)})
		})
		b.OnCreate(func(c *Container) error {
			events = append(events, "create")
			return nil
		})
	})

	c, err := NewContainer(root, WithOnCreate(func(c *Container) error {
		events = append(events, "option-create")
		return nil
	}))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer c.Destroy()

	if c.State() != ContainerAwaitingProxies {
		t.Fatalf("expected awaiting-proxies, got %s", c.State())
	}
	if len(events) != 0 {
		t.Fatalf("expected nothing to run before the proxy is supplied, got %v", events)
	}
	if missing := c.Missing(); !slices.Equal(missing, []Key{TypeKey[*Window]()}) {
		t.Errorf("expected window to be missing, got %v", missing)
	}
	if _, err := c.NewModule("early"); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady, got %v", err)
	}

	if err := Provide(c, &Window{Title: "main"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	expected := []string{"static", "create", "option-create"}
	if !slices.Equal(events, expected) {
		t.Errorf("expected %v, got %v", expected, events)
	}
	if c.State() != ContainerReady {
		t.Errorf("expected ready, got %s", c.State())
	}

	if err := Provide(c, &Window{Title: "again"}); err == nil {
		t.Error("expected error when providing the same proxy twice")
	}
	if !slices.Equal(events, expected) {
		t.Errorf("expected exactly one transition, got %v", events)
	}
}

func TestContainer_WaitReady(t *testing.T) {
	root := NewArtifact("app", func(b *DependencyBuilder) {
		AwaitType[*Window](b)
	})

	c, err := NewContainer(root)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer c.Destroy()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err = c.WaitReady(ctx)
	var timeoutErr *ProxyTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected ProxyTimeoutError, got %v", err)
	}
	if !slices.Equal(timeoutErr.Missing, []Key{TypeKey[*Window]()}) {
		t.Errorf("expected window to be missing, got %v", timeoutErr.Missing)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded cause, got %v", err)
	}

	go func() {
		time.Sleep(5 * time.Millisecond)
		_ = Provide(c, &Window{})
	}()

	if err := c.WaitReady(context.Background()); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestContainer_StaticFailure(t *testing.T) {
	boom := errors.New("boom")
	root := NewArtifact("app", func(b *DependencyBuilder) {
		b.Static(func(sc *StaticCtx) error { return boom })
	})

	_, err := NewContainer(root)
	if !errors.Is(err, boom) {
		t.Fatalf("expected static failure, got %v", err)
	}

	var lifecycleErr *LifecycleError
	if !errors.As(err, &lifecycleErr) || lifecycleErr.Phase != "static" {
		t.Errorf("expected static LifecycleError, got %v", err)
	}
}

func TestContainer_StaticSharedAcrossModules(t *testing.T) {
	root := NewArtifact("app", func(b *DependencyBuilder) {
		b.Static(func(sc *StaticCtx) error {
			return Provide(sc, &Window{Title: "shared"})
		})
		BindType(b, func(ctx *ResolveCtx) (*Window, error) {
			return &Window{Title: "per-module"}, nil
		})
	})

	c, err := NewContainer(root)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer c.Destroy()

	a, err := c.NewModule("a")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	b, err := c.NewModule("b")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	wa := MustImport[*Window](a)
	wb := MustImport[*Window](b)
	if wa != wb {
		t.Error("expected the static window to be shared by both modules")
	}
	if wa.Title != "shared" {
		t.Errorf("expected static to take precedence over the binding, got %s", wa.Title)
	}
}

func TestContainer_OnCreateAfterReady(t *testing.T) {
	c, err := NewContainer(NewArtifact("app", nil))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer c.Destroy()

	ran := false
	if err := c.OnCreate(func(*Container) error {
		ran = true
		return nil
	}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !ran {
		t.Error("expected hook to run immediately on a ready container")
	}
}

func TestContainer_ModuleNames(t *testing.T) {
	c, err := NewContainer(NewArtifact("app", nil))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer c.Destroy()

	if _, err := c.NewModule("main"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := c.NewModule("main"); err == nil {
		t.Error("expected error for duplicate module name")
	}

	if err := c.Reload("missing"); !errors.Is(err, ErrModuleNotFound) {
		t.Errorf("expected ErrModuleNotFound, got %v", err)
	}

	var notFound *ModuleNotFoundError
	if err := c.Reload("missing"); !errors.As(err, &notFound) || notFound.Name != "missing" {
		t.Errorf("expected ModuleNotFoundError for missing, got %v", err)
	}
}

func TestContainer_Destroy(t *testing.T) {
	var cleaned []string
	root := NewArtifact("app", func(b *DependencyBuilder) {
		b.Static(func(sc *StaticCtx) error {
			sc.OnCleanup(func() error {
				cleaned = append(cleaned, "static")
				return nil
			})
			return nil
		})
		b.Bind("thing", func(ctx *ResolveCtx) (any, error) {
			ctx.OnCleanup(func() error {
				cleaned = append(cleaned, "thing")
				return nil
			})
			return "thing", nil
		})
	})

	c, err := NewContainer(root)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	m, err := c.NewModule("main")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := m.ImportComponent("thing"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := c.Destroy(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	expected := []string{"thing", "static"}
	if !slices.Equal(cleaned, expected) {
		t.Errorf("expected %v, got %v", expected, cleaned)
	}
	if m.State() != ModuleDeleted {
		t.Errorf("expected module to be deleted, got %s", m.State())
	}
	if len(c.Modules()) != 0 {
		t.Errorf("expected no live modules, got %d", len(c.Modules()))
	}
	if _, err := c.NewModule("again"); !errors.Is(err, ErrDestroyed) {
		t.Errorf("expected ErrDestroyed, got %v", err)
	}
	if err := c.ProvideComponent("late", 1); !errors.Is(err, ErrDestroyed) {
		t.Errorf("expected ErrDestroyed, got %v", err)
	}
	if err := c.Destroy(); err != nil {
		t.Errorf("expected second destroy to be a no-op, got %v", err)
	}
}

func TestContainer_DestroyUnblocksWaiters(t *testing.T) {
	root := NewArtifact("app", func(b *DependencyBuilder) {
		AwaitType[*Window](b)
	})

	c, err := NewContainer(root)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := c.Destroy(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := c.WaitReady(context.Background()); !errors.Is(err, ErrDestroyed) {
		t.Errorf("expected ErrDestroyed, got %v", err)
	}
}

func TestContainer_NilRoot(t *testing.T) {
	c, err := NewContainer(nil)
	if !errors.Is(err, ErrNilRoot) {
		t.Fatalf("expected ErrNilRoot, got %v", err)
	}
	if c != nil {
		t.Error("expected no container for a nil root")
	}
}

func TestContainer_DestroyDuringStatics(t *testing.T) {
	var (
		c       *Container
		cleaned []string
		ran     []string
	)

	root := NewArtifact("app", func(b *DependencyBuilder) {
		b.Await("WindowProxy")
		b.Static(func(sc *StaticCtx) error {
			ran = append(ran, "first")
			sc.OnCleanup(func() error {
				cleaned = append(cleaned, "first")
				return nil
			})
			return c.Destroy()
		})
		b.Static(func(sc *StaticCtx) error {
			ran = append(ran, "second")
			return nil
		})
	})

	created := 0
	c, err := NewContainer(root, WithOnCreate(func(*Container) error {
		created++
		return nil
	}))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := c.ProvideComponent("WindowProxy", &Window{}); !errors.Is(err, ErrDestroyed) {
		t.Fatalf("expected ErrDestroyed, got %v", err)
	}

	if c.State() != ContainerDestroyed {
		t.Errorf("expected destroyed, got %s", c.State())
	}
	if !slices.Equal(ran, []string{"first"}) {
		t.Errorf("expected only the first static to run, got %v", ran)
	}
	if !slices.Equal(cleaned, []string{"first"}) {
		t.Errorf("expected static cleanup to run, got %v", cleaned)
	}
	if created != 0 {
		t.Errorf("expected create hooks skipped, ran %d", created)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.WaitReady(ctx); !errors.Is(err, ErrDestroyed) {
		t.Errorf("expected WaitReady to report ErrDestroyed, got %v", err)
	}
}

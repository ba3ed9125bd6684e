// Package featurea provides artifact-based dependency injection with
// container and module lifecycles.
//
// # Overview
//
// Featurea organizes an application around four concepts:
//
//  1. Artifacts: named bundles of bindings, plugin entries, statics and includes
//  2. Registry: the flattened form of an artifact and everything it includes
//  3. Container: process-level owner of statics and awaited proxies
//  4. Modules: scopes that lazily build and cache components
//
// # Basic Usage
//
// Declare artifacts and include them into a root:
//
//	window := featurea.NewArtifact("featurea.window", func(b *featurea.DependencyBuilder) {
//	    featurea.BindType(b, func(ctx *featurea.ResolveCtx) (*Renderer, error) {
//	        return NewRenderer(), nil
//	    })
//	})
//
//	app := featurea.NewArtifact("featurea.app", func(b *featurea.DependencyBuilder) {
//	    b.Include(window)
//	    b.Bind("title", func(ctx *featurea.ResolveCtx) (any, error) {
//	        return "demo", nil
//	    })
//	})
//
// Build a container, create a module and import components:
//
//	c, err := featurea.NewContainer(app)
//	if err != nil { ... }
//	defer c.Destroy()
//
//	m, _ := c.NewModule("main")
//	r, err := featurea.Import[*Renderer](m)
//
// # Duplicates
//
// Artifacts are flattened depth first in declaration order. A key declared
// twice is resolved by the container's DuplicatePolicy: DuplicateLastWins
// (default) keeps the later binding in the earlier slot, DuplicateFirstWins
// keeps the first and DuplicateError fails construction.
//
// # Proxies and Statics
//
// Values created outside the container are declared with Await and supplied
// with ProvideComponent. Until every awaited key is present the container
// stays in the awaiting-proxies state; statics and OnCreate hooks run on the
// transition to ready:
//
//	app := featurea.NewArtifact("featurea.app", func(b *featurea.DependencyBuilder) {
//	    b.Await("WindowProxy")
//	    b.Static(func(sc *featurea.StaticCtx) error {
//	        return sc.ProvideComponent("clock", NewClock())
//	    })
//	})
//
//	c, _ := featurea.NewContainer(app)
//	c.ProvideComponent("WindowProxy", win)
//	err := c.WaitReady(ctx)
//
// # Plugins
//
// Plugins are ordered lists contributed to by any number of artifacts:
//
//	producers := featurea.NewPlugin[Producer]("input.producers")
//
//	featurea.Install(b, producers, func(pb *featurea.PluginBuilder[Producer]) {
//	    pb.Add("keyboard", func(ctx *featurea.ResolveCtx) (Producer, error) {
//	        return Keyboard{}, nil
//	    })
//	})
//
//	list, err := featurea.LoadPlugin(m, producers)
//
// # Controllers
//
// A Controller is a typed handle bound to one module generation:
//
//	ctrl := featurea.ImportRef[*Renderer](m)
//	r, err := ctrl.Get()
//	ctrl.Release()
//
// After the module is reloaded or deleted every method returns
// ErrStaleReference.
//
// # Extensions
//
// Extensions wrap every resolve, provide, static and reload operation:
//
//	type TimingExtension struct {
//	    featurea.BaseExtension
//	}
//
//	func (e *TimingExtension) Wrap(ctx context.Context, next func() (any, error), op *featurea.Operation) (any, error) {
//	    start := time.Now()
//	    v, err := next()
//	    log.Printf("%s %s took %s", op.Kind, op.Key, time.Since(start))
//	    return v, err
//	}
//
//	c, _ := featurea.NewContainer(app, featurea.WithExtension(&TimingExtension{
//	    BaseExtension: featurea.NewBaseExtension("timing"),
//	}))
//
// # Resource Cleanup
//
// Factories register cleanups that run in reverse order when the component is
// released, its module is reloaded or deleted, or the container is destroyed:
//
//	b.Bind("db", func(ctx *featurea.ResolveCtx) (any, error) {
//	    db := OpenDB()
//	    ctx.OnCleanup(db.Close)
//	    return db, nil
//	})
//
// # Thread Safety
//
// Containers and modules may be used from multiple goroutines. Reloading a
// module while another goroutine imports from it is not supported.
package featurea

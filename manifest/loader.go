// Package manifest declares artifacts in HCL files and turns them into
// featurea artifacts whose factories come from a Catalog.
//
//	artifact "featurea.app" {
//	  include       = ["featurea.window"]
//	  content_roots = ["assets"]
//	  await         = ["WindowProxy"]
//	  static        = ["registerWindow"]
//
//	  binding "renderer" {
//	    factory = "renderer"
//	    args    = { vsync = true }
//	  }
//
//	  plugin "input.producers" {
//	    entry "keyboard" { factory = "keyboard" }
//	  }
//	}
//
// Within an artifact, declarations are applied in a fixed order: includes,
// content roots, awaited proxies, statics, bindings, then plugins. Bindings
// and plugin entries keep their block order.
package manifest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	featurea "github.com/featurea/featurea-go"
	"github.com/featurea/featurea-go/internal/logging"
)

// ErrFactoryUnavailable is returned by placeholder factories installed in
// lenient mode for names the catalog does not know.
var ErrFactoryUnavailable = errors.New("factory not available")

// Loader parses manifest files against a catalog.
type Loader struct {
	catalog *Catalog
	lenient bool
}

// Option configures a Loader
type Option func(*Loader)

// Lenient makes unknown factory and static names load as placeholders that
// fail when run, for tools that only inspect the artifact graph.
func Lenient() Option {
	return func(l *Loader) {
		l.lenient = true
	}
}

func NewLoader(c *Catalog, opts ...Option) *Loader {
	if c == nil {
		c = NewCatalog()
	}
	l := &Loader{catalog: c}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Manifest is the set of artifacts built from one Load call.
type Manifest struct {
	artifacts map[string]*featurea.Artifact
	sources   map[string]string
	order     []string
	roots     []string
	files     []string
}

// Artifact returns a built artifact by name.
func (m *Manifest) Artifact(name string) (*featurea.Artifact, bool) {
	a, ok := m.artifacts[name]
	return a, ok
}

// Names returns artifact names in build order: every artifact appears after
// the artifacts it includes.
func (m *Manifest) Names() []string {
	return append([]string(nil), m.order...)
}

// Roots returns the artifacts no other artifact includes, in declaration
// order. These are the candidates for a container root.
func (m *Manifest) Roots() []string {
	return append([]string(nil), m.roots...)
}

// Files returns the parsed files in load order.
func (m *Manifest) Files() []string {
	return append([]string(nil), m.files...)
}

// Source returns the file that declared the artifact.
func (m *Manifest) Source(name string) string {
	return m.sources[name]
}

// Load parses every .hcl file under paths and builds the declared artifacts.
// Paths may be files or directories; directories are walked recursively.
func (l *Loader) Load(ctx context.Context, paths ...string) (*Manifest, error) {
	logger := logging.FromContext(ctx)
	logger.Debug("manifest loader started", "path_count", len(paths))

	files, err := findHCLFiles(ctx, paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .hcl manifest files found in %v", paths)
	}

	parser := hclparse.NewParser()
	blocks := make(map[string]*artifactBlock)
	var declared []string

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}

		for _, ab := range root.Artifacts {
			if prev, exists := blocks[ab.Name]; exists {
				return nil, fmt.Errorf("artifact %q declared in both %s and %s", ab.Name, prev.file, file)
			}
			ab.file = file
			blocks[ab.Name] = ab
			declared = append(declared, ab.Name)
		}
		logger.Debug("loaded manifest file", "file", file, "artifacts", len(root.Artifacts))
	}

	included := make(map[string]bool)
	order := newIncludeOrder()
	for _, name := range declared {
		order.addNode(name)
		for _, inc := range blocks[name].Include {
			if _, ok := blocks[inc]; !ok {
				return nil, fmt.Errorf("artifact %q includes unknown artifact %q", name, inc)
			}
			order.addEdge(inc, name)
			included[inc] = true
		}
	}

	sorted, err := order.sort()
	if err != nil {
		return nil, err
	}

	m := &Manifest{
		artifacts: make(map[string]*featurea.Artifact, len(sorted)),
		sources:   make(map[string]string, len(sorted)),
		order:     sorted,
		files:     files,
	}
	for _, name := range declared {
		if !included[name] {
			m.roots = append(m.roots, name)
		}
	}
	for _, name := range sorted {
		a, err := l.build(ctx, blocks[name], m.artifacts)
		if err != nil {
			return nil, err
		}
		m.artifacts[name] = a
		m.sources[name] = blocks[name].file
	}

	logger.Debug("manifest loading complete", "files", len(files), "artifacts", len(sorted))
	return m, nil
}

type pendingBinding struct {
	name    string
	factory featurea.Factory
}

type pendingPlugin struct {
	name    string
	entries []featurea.PluginEntry
}

// build resolves every catalog name up front so that NewArtifact cannot fail
// half way through.
func (l *Loader) build(ctx context.Context, ab *artifactBlock, built map[string]*featurea.Artifact) (*featurea.Artifact, error) {
	dir := filepath.Dir(ab.file)

	roots := make([]string, 0, len(ab.ContentRoots))
	for _, r := range ab.ContentRoots {
		if !filepath.IsAbs(r) {
			r = filepath.Join(dir, r)
		}
		roots = append(roots, filepath.Clean(r))
	}

	statics := make([]StaticFunc, 0, len(ab.Static))
	for _, name := range ab.Static {
		fn, ok := l.catalog.Static(name)
		if !ok {
			if !l.lenient {
				return nil, fmt.Errorf("artifact %q: unknown static %q", ab.Name, name)
			}
			logging.FromContext(ctx).Warn("static not in catalog, using placeholder", "artifact", ab.Name, "static", name)
			fn = unavailableStatic(name)
		}
		statics = append(statics, fn)
	}

	bindings := make([]pendingBinding, 0, len(ab.Bindings))
	for _, bb := range ab.Bindings {
		factory, err := l.factory(ctx, ab.Name, "binding "+bb.Name, bb.Factory, bb.Args)
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, pendingBinding{name: bb.Name, factory: factory})
	}

	plugins := make([]pendingPlugin, 0, len(ab.Plugins))
	for _, pb := range ab.Plugins {
		p := pendingPlugin{name: pb.Name}
		for _, eb := range pb.Entries {
			factory, err := l.factory(ctx, ab.Name, fmt.Sprintf("plugin %s entry %s", pb.Name, eb.Key), eb.Factory, eb.Args)
			if err != nil {
				return nil, err
			}
			p.entries = append(p.entries, featurea.PluginEntry{Key: eb.Key, Factory: factory})
		}
		plugins = append(plugins, p)
	}

	return featurea.NewArtifact(ab.Name, func(b *featurea.DependencyBuilder) {
		for _, inc := range ab.Include {
			b.Include(built[inc])
		}
		for _, r := range roots {
			b.IncludeContentRoot(func() string { return r })
		}
		for _, key := range ab.Await {
			b.Await(featurea.Key(key))
		}
		for _, fn := range statics {
			b.Static(fn)
		}
		for _, pb := range bindings {
			b.Bind(pb.name, pb.factory)
		}
		for _, p := range plugins {
			b.InstallEntries(p.name, p.entries...)
		}
	}), nil
}

func (l *Loader) factory(ctx context.Context, artifact, owner, name string, raw *cty.Value) (featurea.Factory, error) {
	args, err := argsFromCty(raw)
	if err != nil {
		return nil, fmt.Errorf("artifact %q %s: %w", artifact, owner, err)
	}

	fn, ok := l.catalog.Factory(name)
	if !ok {
		if !l.lenient {
			return nil, fmt.Errorf("artifact %q %s: unknown factory %q", artifact, owner, name)
		}
		logging.FromContext(ctx).Warn("factory not in catalog, using placeholder", "artifact", artifact, "factory", name)
		return func(*featurea.ResolveCtx) (any, error) {
			return nil, fmt.Errorf("%w: %q", ErrFactoryUnavailable, name)
		}, nil
	}

	return func(rc *featurea.ResolveCtx) (any, error) {
		return fn(rc, maps.Clone(args))
	}, nil
}

func unavailableStatic(name string) StaticFunc {
	return func(*featurea.StaticCtx) error {
		return fmt.Errorf("%w: static %q", ErrFactoryUnavailable, name)
	}
}

// findHCLFiles expands paths into a deduplicated list of .hcl files.
// Missing paths are skipped with a warning.
func findHCLFiles(ctx context.Context, paths []string) ([]string, error) {
	logger := logging.FromContext(ctx)

	var all []string
	seen := make(map[string]struct{})
	add := func(p string) error {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		if _, ok := seen[abs]; ok {
			return nil
		}
		seen[abs] = struct{}{}
		all = append(all, abs)
		return nil
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				logger.Warn("manifest path does not exist, skipping", "path", path)
				continue
			}
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}

		if !info.IsDir() {
			if err := add(path); err != nil {
				return nil, err
			}
			continue
		}

		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && filepath.Ext(p) == ".hcl" {
				return add(p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return all, nil
}

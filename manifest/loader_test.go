package manifest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	featurea "github.com/featurea/featurea-go"
)

type Renderer struct {
	Backend string
	VSync   bool
	Samples float64
}

func writeManifest(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testCatalog() *Catalog {
	cat := NewCatalog()
	cat.RegisterFactory("renderer", func(ctx *featurea.ResolveCtx, args Args) (any, error) {
		return &Renderer{
			Backend: args.String("backend", "gl"),
			VSync:   args.Bool("vsync", false),
			Samples: args.Number("samples", 1),
		}, nil
	})
	cat.RegisterFactory("window", func(ctx *featurea.ResolveCtx, args Args) (any, error) {
		return args.String("title", "untitled"), nil
	})
	cat.RegisterFactory("keyboard", func(ctx *featurea.ResolveCtx, args Args) (any, error) {
		return "keyboard", nil
	})
	cat.RegisterFactory("mouse", func(ctx *featurea.ResolveCtx, args Args) (any, error) {
		return "mouse", nil
	})
	cat.RegisterStatic("registerClock", func(sc *featurea.StaticCtx) error {
		return sc.ProvideComponent("clock", 60)
	})
	return cat
}

const appManifest = `
artifact "featurea.app" {
  include       = ["featurea.window", "featurea.input"]
  content_roots = ["assets"]
  static        = ["registerClock"]

  binding "renderer" {
    factory = "renderer"
    args    = { backend = "vulkan", vsync = true, samples = 4 }
  }

  plugin "input.producers" {
    entry "mouse" { factory = "mouse" }
  }
}
`

const windowManifest = `
artifact "featurea.window" {
  binding "provideWindow" {
    factory = "window"
    args    = { title = "featurea" }
  }
  binding "renderer" { factory = "renderer" }
}

artifact "featurea.input" {
  plugin "input.producers" {
    entry "keyboard" { factory = "keyboard" }
  }
}
`

func TestLoad_BuildsArtifacts(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "app.hcl", appManifest)
	writeManifest(t, dir, "lib/window.hcl", windowManifest)
	writeManifest(t, dir, "README.md", "not a manifest")

	m, err := NewLoader(testCatalog()).Load(context.Background(), dir)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(m.Files()) != 2 {
		t.Errorf("expected 2 files, got %v", m.Files())
	}

	names := m.Names()
	if names[len(names)-1] != "featurea.app" {
		t.Errorf("expected featurea.app built last, got %v", names)
	}
	if !slices.Equal(m.Roots(), []string{"featurea.app"}) {
		t.Errorf("expected roots [featurea.app], got %v", m.Roots())
	}
	if got := m.Source("featurea.window"); got != filepath.Join(dir, "lib", "window.hcl") {
		t.Errorf("unexpected source %s", got)
	}

	root, ok := m.Artifact("featurea.app")
	if !ok {
		t.Fatal("expected featurea.app")
	}

	reg, err := featurea.NewRegistry(root)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if !slices.Equal(reg.Artifacts(), []string{"featurea.app", "featurea.window", "featurea.input"}) {
		t.Errorf("unexpected artifact order %v", reg.Artifacts())
	}

	var bindingNames []string
	for _, b := range reg.Bindings() {
		bindingNames = append(bindingNames, b.Name())
	}
	if !slices.Equal(bindingNames, []string{"provideWindow", "renderer"}) {
		t.Errorf("expected [provideWindow renderer], got %v", bindingNames)
	}

	var entries []string
	for _, e := range reg.PluginEntries("input.producers") {
		entries = append(entries, e.Key)
	}
	if !slices.Equal(entries, []string{"keyboard", "mouse"}) {
		t.Errorf("expected [keyboard mouse], got %v", entries)
	}

	roots := reg.ContentRoots()
	if len(roots) != 1 || roots[0].Path() != filepath.Join(dir, "assets") {
		t.Errorf("expected content root relative to the manifest, got %+v", roots)
	}
}

func TestLoad_ArtifactsRunThroughContainer(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "app.hcl", appManifest)
	writeManifest(t, dir, "window.hcl", windowManifest)

	m, err := NewLoader(testCatalog()).Load(context.Background(), dir)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	root, _ := m.Artifact("featurea.app")

	c, err := featurea.NewContainer(root)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer c.Destroy()

	if clock, ok := c.Static("clock"); !ok || clock != 60 {
		t.Errorf("expected static clock 60, got %v", clock)
	}

	mod, err := c.NewModule("main")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	r, err := featurea.ImportNamed[*Renderer](mod, "renderer")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if r.Backend != "vulkan" || !r.VSync || r.Samples != 4 {
		t.Errorf("expected args from the winning binding, got %+v", r)
	}

	title, err := featurea.ImportNamed[string](mod, "provideWindow")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if title != "featurea" {
		t.Errorf("expected title featurea, got %s", title)
	}

	producers, err := featurea.LoadPlugin(mod, featurea.NewPlugin[string]("input.producers"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !slices.Equal(producers, []string{"keyboard", "mouse"}) {
		t.Errorf("expected [keyboard mouse], got %v", producers)
	}
}

func TestLoad_IncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "cycle.hcl", `
artifact "a" { include = ["b"] }
artifact "b" { include = ["c"] }
artifact "c" { include = ["a"] }
artifact "d" {}
`)

	_, err := NewLoader(testCatalog()).Load(context.Background(), dir)

	var cycleErr *CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("expected CycleError, got %v", err)
	}
	if !slices.Equal(cycleErr.Cycle, []string{"a", "b", "c"}) {
		t.Errorf("expected cycle [a b c], got %v", cycleErr.Cycle)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown include", `artifact "a" { include = ["missing"] }`},
		{"unknown factory", `artifact "a" {
  binding "x" { factory = "nope" }
}`},
		{"unknown static", `artifact "a" { static = ["nope"] }`},
		{"non-object args", `artifact "a" {
  binding "x" {
    factory = "window"
    args    = "title"
  }
}`},
		{"syntax", `artifact "a" {`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeManifest(t, dir, "bad.hcl", tt.content)

			if _, err := NewLoader(testCatalog()).Load(context.Background(), dir); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoad_DuplicateArtifactAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "one.hcl", `artifact "a" {}`)
	writeManifest(t, dir, "two.hcl", `artifact "a" {}`)

	if _, err := NewLoader(testCatalog()).Load(context.Background(), dir); err == nil {
		t.Error("expected error for artifact declared twice")
	}
}

func TestLoad_NoFiles(t *testing.T) {
	if _, err := NewLoader(nil).Load(context.Background(), t.TempDir(), filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error when no manifest files are found")
	}
}

func TestLoad_Lenient(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "app.hcl", `
artifact "featurea.app" {
  static = ["warmCaches"]
  binding "audio" { factory = "openal" }
}
`)

	m, err := NewLoader(NewCatalog(), Lenient()).Load(context.Background(), path)
	if err != nil {
		t.Fatalf("expected lenient load to succeed, got %v", err)
	}

	root, _ := m.Artifact("featurea.app")
	reg, err := featurea.NewRegistry(root)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	b, ok := reg.BindingByName("audio")
	if !ok {
		t.Fatal("expected placeholder binding")
	}
	if _, err := b.Factory(nil); !errors.Is(err, ErrFactoryUnavailable) {
		t.Errorf("expected ErrFactoryUnavailable, got %v", err)
	}

	_, err = featurea.NewContainer(root)
	if !errors.Is(err, ErrFactoryUnavailable) {
		t.Errorf("expected placeholder static to fail readiness, got %v", err)
	}
}

func TestCatalog_DuplicateRegistrationPanics(t *testing.T) {
	cat := NewCatalog()
	cat.RegisterFactory("renderer", nil)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	cat.RegisterFactory("renderer", nil)
}

func TestCatalog_Names(t *testing.T) {
	cat := testCatalog()
	if !slices.Equal(cat.Factories(), []string{"keyboard", "mouse", "renderer", "window"}) {
		t.Errorf("unexpected factories %v", cat.Factories())
	}
	if !slices.Equal(cat.Statics(), []string{"registerClock"}) {
		t.Errorf("unexpected statics %v", cat.Statics())
	}
}

func TestArgs_Accessors(t *testing.T) {
	args := Args{"name": "main", "vsync": true, "fps": float64(60)}

	if args.String("name", "") != "main" || args.String("missing", "def") != "def" {
		t.Error("unexpected String results")
	}
	if !args.Bool("vsync", false) || args.Bool("name", true) != true {
		t.Error("unexpected Bool results")
	}
	if args.Number("fps", 0) != 60 || args.Number("vsync", 1) != 1 {
		t.Error("unexpected Number results")
	}
}

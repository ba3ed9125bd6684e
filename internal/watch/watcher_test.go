package watch

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"
)

func runWatcher(t *testing.T, w *Watcher) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("Run() returned %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("Run() did not return after cancel")
		}
	})
}

func TestWatcherDebounce(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	var (
		mu    sync.Mutex
		calls int
		got   []Change
	)
	done := make(chan struct{})

	w, err := New(Config{
		Roots:    []string{dir},
		Debounce: 100 * time.Millisecond,
		OnChange: func(_ context.Context, changes []Change) error {
			mu.Lock()
			defer mu.Unlock()
			calls++
			got = append(got, changes...)
			if calls == 1 {
				close(done)
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	runWatcher(t, w)

	for _, name := range []string{"a.hcl", "b.hcl", "c.hcl"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("data"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for OnChange")
	}

	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	if calls != 1 {
		t.Errorf("expected 1 coalesced callback, got %d", calls)
	}
	if len(got) != 1 {
		t.Fatalf("expected one root in the batch, got %d", len(got))
	}

	root, _ := filepath.Abs(dir)
	if got[0].Root != root {
		t.Errorf("expected root %s, got %s", root, got[0].Root)
	}
	for _, name := range []string{"a.hcl", "b.hcl", "c.hcl"} {
		if !slices.Contains(got[0].Paths, name) {
			t.Errorf("expected %s in %v", name, got[0].Paths)
		}
	}
}

func TestWatcherPatternsAndIgnores(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	changes := make(chan Change, 4)
	w, err := New(Config{
		Roots:    []string{dir},
		Patterns: []string{"**/*.hcl"},
		Ignore:   []string{"**/draft-*"},
		Debounce: 50 * time.Millisecond,
		OnChange: func(_ context.Context, batch []Change) error {
			for _, c := range batch {
				changes <- c
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	runWatcher(t, w)

	for _, name := range []string{"notes.txt", "draft-app.hcl", "app.hcl"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	select {
	case c := <-changes:
		if !slices.Equal(c.Paths, []string{"app.hcl"}) {
			t.Errorf("expected only app.hcl, got %v", c.Paths)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for OnChange")
	}
}

func TestWatcherMultipleRoots(t *testing.T) {
	t.Parallel()

	first := t.TempDir()
	second := t.TempDir()

	changes := make(chan []Change, 1)
	w, err := New(Config{
		Roots:    []string{first, second, filepath.Join(first, "missing")},
		Debounce: 100 * time.Millisecond,
		OnChange: func(_ context.Context, batch []Change) error {
			changes <- batch
			return nil
		},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if n := len(w.Roots()); n != 2 {
		t.Fatalf("expected missing root to be skipped, got %d roots", n)
	}
	runWatcher(t, w)

	if err := os.WriteFile(filepath.Join(second, "b.png"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(first, "a.png"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case batch := <-changes:
		if len(batch) != 2 {
			t.Fatalf("expected both roots in one batch, got %+v", batch)
		}
		absFirst, _ := filepath.Abs(first)
		if batch[0].Root != absFirst {
			t.Errorf("expected batches in root order, got %s first", batch[0].Root)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for OnChange")
	}
}

func TestNewErrors(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{Roots: []string{filepath.Join(t.TempDir(), "nope")}}); err == nil {
		t.Error("expected error when no root exists")
	}
	if _, err := New(Config{Roots: []string{t.TempDir()}, Patterns: []string{"[unclosed"}}); err == nil {
		t.Error("expected error for invalid pattern")
	}
}

func TestRunTwice(t *testing.T) {
	t.Parallel()

	w, err := New(Config{Roots: []string{t.TempDir()}})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := w.Run(ctx); err != nil {
		t.Fatalf("expected cancelled Run to return nil, got %v", err)
	}
	if err := w.Run(ctx); err == nil {
		t.Error("expected second Run to fail")
	}
}

func TestDefaultIgnores(t *testing.T) {
	t.Parallel()

	w := &Watcher{ignores: DefaultIgnores()}
	for _, rel := range []string{".git/HEAD", "assets/.git/config", "scene.hcl.swp", "scene.hcl~"} {
		if !w.isIgnored(rel) {
			t.Errorf("expected %s to be ignored", rel)
		}
	}
	if w.isIgnored("assets/scene.hcl") {
		t.Error("expected assets/scene.hcl not to be ignored")
	}
}

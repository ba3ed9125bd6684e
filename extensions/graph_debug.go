package extensions

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	featurea "github.com/featurea/featurea-go"
)

// GraphDebugExtension logs the resolution chain and module cache when errors occur.
//
// Usage:
//
//	// Human-readable formatted output (with line breaks)
//	handler := extensions.NewHumanHandler(os.Stdout, slog.LevelError)
//	ext := extensions.NewGraphDebugExtension(handler)
//
//	// Structured JSON logging (compact, machine-readable)
//	handler := slog.NewJSONHandler(os.Stdout, nil)
//	ext := extensions.NewGraphDebugExtension(handler)
//
//	// Silent (for testing)
//	ext := extensions.NewGraphDebugExtension(extensions.NewSilentHandler())
//
// The extension logs at ERROR level for resolution errors and at WARN level
// for cleanup failures.
type GraphDebugExtension struct {
	featurea.BaseExtension

	mu       sync.Mutex
	resolved map[string]map[featurea.Key]bool
	failed   map[string]map[featurea.Key]error
	logger   *slog.Logger
}

// NewGraphDebugExtension creates a new graph debug extension.
// logHandler: slog.Handler for logging (use HumanHandler for formatted output, or any other slog.Handler)
func NewGraphDebugExtension(logHandler slog.Handler) *GraphDebugExtension {
	return &GraphDebugExtension{
		BaseExtension: featurea.NewBaseExtension("graph-debug"),
		resolved:      make(map[string]map[featurea.Key]bool),
		failed:        make(map[string]map[featurea.Key]error),
		logger:        slog.New(logHandler),
	}
}

// Wrap tracks resolve operations per module
func (e *GraphDebugExtension) Wrap(ctx context.Context, next func() (any, error), op *featurea.Operation) (any, error) {
	result, err := next()

	if op.Kind != featurea.OpResolve || op.Module == nil {
		return result, err
	}

	module := op.Module.Name()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err == nil {
		if e.resolved[module] == nil {
			e.resolved[module] = make(map[featurea.Key]bool)
		}
		e.resolved[module][op.Key] = true
	} else {
		if e.failed[module] == nil {
			e.failed[module] = make(map[featurea.Key]error)
		}
		e.failed[module][op.Key] = err
	}

	return result, err
}

// OnError logs the resolution chain when an operation fails
func (e *GraphDebugExtension) OnError(err error, op *featurea.Operation, c *featurea.Container) {
	module := ""
	if op.Module != nil {
		module = op.Module.Name()
	}

	e.logger.Error("Dependency Resolution Error",
		"key", op.Key.String(),
		"module", module,
		"error", err.Error(),
		"operation", string(op.Kind),
		"dependency_graph", e.formatDependencyGraph(c, op, err),
	)
}

// OnCleanupError logs the failure and leaves handling to the container
func (e *GraphDebugExtension) OnCleanupError(err *featurea.CleanupError) bool {
	e.logger.Warn("Cleanup Failure",
		"key", err.Key.String(),
		"module", err.Module,
		"context", err.Context,
		"error", err.Err.Error(),
	)
	return false
}

// Resolved reports whether key was built successfully in module
func (e *GraphDebugExtension) Resolved(module string, key featurea.Key) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resolved[module][key]
}

// Failed returns the last error seen building key in module
func (e *GraphDebugExtension) Failed(module string, key featurea.Key) (error, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	err, ok := e.failed[module][key]
	return err, ok
}

func (e *GraphDebugExtension) formatDependencyGraph(c *featurea.Container, op *featurea.Operation, failedErr error) string {
	var sb strings.Builder
	sb.WriteString("\n")

	var resolveErr *featurea.ResolveError
	if errors.As(failedErr, &resolveErr) && len(resolveErr.Chain) > 0 {
		sb.WriteString("  Chain:\n")
		for i, k := range resolveErr.Chain {
			sb.WriteString(fmt.Sprintf("    %s%s%s\n", strings.Repeat("  ", i), "└─> ", e.statusOf(resolveErr.Module, k)))
		}
		sb.WriteString(fmt.Sprintf("    %s└─> %s ❌ FAILED\n", strings.Repeat("  ", len(resolveErr.Chain)), resolveErr.Key))
	}

	if op.Module != nil {
		cached := op.Module.Cached()
		if len(cached) == 0 {
			sb.WriteString(fmt.Sprintf("  Module %s: (empty cache)\n", op.Module.Name()))
		} else {
			sb.WriteString(fmt.Sprintf("  Module %s:\n", op.Module.Name()))
			for i, k := range cached {
				if i == len(cached)-1 {
					sb.WriteString(fmt.Sprintf("    └─> %s ✓\n", k))
				} else {
					sb.WriteString(fmt.Sprintf("    ├─> %s ✓\n", k))
				}
			}
		}
	}

	if c != nil {
		if statics := c.StaticKeys(); len(statics) > 0 {
			sb.WriteString("  Container statics:\n")
			for _, k := range statics {
				sb.WriteString(fmt.Sprintf("    • %s\n", k))
			}
		}
		if missing := c.Missing(); len(missing) > 0 {
			sb.WriteString("  Awaiting proxies:\n")
			for _, k := range missing {
				sb.WriteString(fmt.Sprintf("    • %s (pending)\n", k))
			}
		}
	}

	if failedErr != nil {
		sb.WriteString("\nError Details:\n")
		sb.WriteString(fmt.Sprintf("  Key: %s\n", op.Key))
		sb.WriteString(fmt.Sprintf("  Error: %v\n", failedErr))
	}

	return sb.String()
}

func (e *GraphDebugExtension) statusOf(module string, key featurea.Key) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.resolved[module][key] {
		return key.String() + " ✓"
	}
	if _, failed := e.failed[module][key]; failed {
		return key.String() + " ❌"
	}
	return key.String() + " (pending)"
}

// SilentHandler is a slog.Handler that discards all log output
// Useful for testing when you don't want log output
type SilentHandler struct{}

// NewSilentHandler creates a new silent log handler
func NewSilentHandler() *SilentHandler {
	return &SilentHandler{}
}

func (h *SilentHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return false
}

func (h *SilentHandler) Handle(ctx context.Context, record slog.Record) error {
	return nil
}

func (h *SilentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h
}

func (h *SilentHandler) WithGroup(name string) slog.Handler {
	return h
}

// HumanHandler is a slog.Handler that formats logs for human readability
// with proper line breaks and visual formatting (especially for dependency graphs)
type HumanHandler struct {
	writer io.Writer
	level  slog.Level
}

// NewHumanHandler creates a new human-readable log handler
func NewHumanHandler(writer io.Writer, level slog.Level) *HumanHandler {
	return &HumanHandler{
		writer: writer,
		level:  level,
	}
}

func (h *HumanHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *HumanHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Message == "Dependency Resolution Error" {
		return h.handleDependencyError(record)
	}

	if _, err := fmt.Fprintf(h.writer, "[%s] %s\n", record.Level, record.Message); err != nil {
		return err
	}
	var writeErr error
	record.Attrs(func(a slog.Attr) bool {
		if _, err := fmt.Fprintf(h.writer, "  %s: %v\n", a.Key, a.Value); err != nil {
			writeErr = err
			return false
		}
		return true
	})
	return writeErr
}

func (h *HumanHandler) handleDependencyError(record slog.Record) error {
	var key, module, errorMsg, operation, dependencyGraph string

	record.Attrs(func(a slog.Attr) bool {
		switch a.Key {
		case "key":
			key = a.Value.String()
		case "module":
			module = a.Value.String()
		case "error":
			errorMsg = a.Value.String()
		case "operation":
			operation = a.Value.String()
		case "dependency_graph":
			dependencyGraph = a.Value.String()
		}
		return true
	})

	writes := []func() error{
		func() error { _, err := fmt.Fprintln(h.writer); return err },
		func() error { _, err := fmt.Fprintln(h.writer, strings.Repeat("=", 70)); return err },
		func() error { _, err := fmt.Fprintln(h.writer, "[GraphDebug] Dependency Resolution Error"); return err },
		func() error { _, err := fmt.Fprintln(h.writer, strings.Repeat("=", 70)); return err },
		func() error { _, err := fmt.Fprintf(h.writer, "\nFailed Key: %s\n", key); return err },
		func() error { _, err := fmt.Fprintf(h.writer, "Module: %s\n", module); return err },
		func() error { _, err := fmt.Fprintf(h.writer, "Error: %s\n", errorMsg); return err },
		func() error { _, err := fmt.Fprintf(h.writer, "Operation: %s\n", operation); return err },
		func() error { _, err := fmt.Fprintf(h.writer, "\nDependency Graph:%s", dependencyGraph); return err },
		func() error { _, err := fmt.Fprintln(h.writer, strings.Repeat("=", 70)); return err },
		func() error { _, err := fmt.Fprintln(h.writer); return err },
	}

	for _, write := range writes {
		if err := write(); err != nil {
			return err
		}
	}

	return nil
}

func (h *HumanHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h
}

func (h *HumanHandler) WithGroup(name string) slog.Handler {
	return h
}

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	featurea "github.com/featurea/featurea-go"
	"github.com/featurea/featurea-go/manifest"
)

// builtinCatalog holds the factories available to manifests run by the
// featurea binary itself. Applications embedding featurea register their own.
func builtinCatalog() *manifest.Catalog {
	cat := manifest.NewCatalog()

	// value returns args.value unchanged.
	cat.RegisterFactory("value", func(_ *featurea.ResolveCtx, args manifest.Args) (any, error) {
		return args["value"], nil
	})

	cat.RegisterFactory("args", func(_ *featurea.ResolveCtx, args manifest.Args) (any, error) {
		return args, nil
	})

	// file reads args.path, resolving relative paths against the content
	// roots in declaration order.
	cat.RegisterFactory("file", func(ctx *featurea.ResolveCtx, args manifest.Args) (any, error) {
		path := args.String("path", "")
		if path == "" {
			return nil, errors.New("file: args.path is required")
		}

		resolved, err := resolveContentPath(ctx.Container().Registry().ContentRoots(), path)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(resolved)
		if err != nil {
			return nil, fmt.Errorf("file: %w", err)
		}
		ctx.Logger().Debug("loaded content file", "path", resolved, "bytes", len(data))
		return string(data), nil
	})

	// proxy forwards a container singleton, typically an awaited proxy.
	cat.RegisterFactory("proxy", func(ctx *featurea.ResolveCtx, args manifest.Args) (any, error) {
		key := args.String("key", "")
		val, ok := ctx.Container().Static(featurea.Key(key))
		if !ok {
			return nil, fmt.Errorf("proxy: no container component %q", key)
		}
		return val, nil
	})

	cat.RegisterStatic("startedAt", func(sc *featurea.StaticCtx) error {
		return sc.ProvideComponent("startedAt", time.Now())
	})

	return cat
}

func resolveContentPath(roots []featurea.ContentRoot, path string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	for _, root := range roots {
		candidate := filepath.Join(root.Path(), path)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("file: %s not found under any content root", path)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	featurea "github.com/featurea/featurea-go"
	"github.com/featurea/featurea-go/extensions"
	"github.com/featurea/featurea-go/internal/admin"
	"github.com/featurea/featurea-go/internal/watch"
)

func newServeCommand(flags *rootFlags) *cobra.Command {
	var (
		modules   []string
		addr      string
		noWatch   bool
		debugDeps bool
	)

	cmd := &cobra.Command{
		Use:   "serve [paths...]",
		Short: "Build a container, create modules and serve the admin API",
		Long: `Build a container from the root artifact and wait until every awaited
proxy has been supplied (POST /v1/proxies/{key}). Then create the requested
modules, serve the admin API and reload modules when files under the
artifacts' content roots change.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := flags.open(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("module") {
				s.cfg.Manifest.Modules = modules
			}
			if cmd.Flags().Changed("addr") {
				s.cfg.Admin.Addr = addr
			}
			if noWatch {
				s.cfg.Watch.Enabled = false
			}

			_, root, err := s.loadRoot(args, s.cfg.Manifest.Lenient)
			if err != nil {
				return err
			}

			return serve(s, root, cmd.OutOrStdout(), debugDeps)
		},
	}

	cmd.Flags().StringSliceVar(&modules, "module", nil, "module to create once ready (repeatable)")
	cmd.Flags().StringVar(&addr, "addr", "", "admin API listen address")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "disable hot reload")
	cmd.Flags().BoolVar(&debugDeps, "debug-deps", false, "log the dependency graph on resolution errors")
	return cmd
}

func serve(s *session, root *featurea.Artifact, out io.Writer, debugDeps bool) error {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	metricsExt, err := extensions.NewMetricsExtension(promReg)
	if err != nil {
		return err
	}

	opts := []featurea.ContainerOption{
		featurea.WithLogger(s.logger),
		featurea.WithPolicy(s.cfg.Policy()),
		featurea.WithExtension(extensions.NewLoggingExtension(s.logger)),
		featurea.WithExtension(metricsExt),
	}
	if debugDeps {
		opts = append(opts, featurea.WithExtension(extensions.NewGraphDebugExtension(s.logger.Handler())))
	}

	c, err := featurea.NewContainer(root, opts...)
	if c != nil {
		defer func() {
			if derr := c.Destroy(); derr != nil {
				s.logger.Error("destroy container", "error", derr)
			}
		}()
	}
	if err != nil {
		return err
	}

	srv, err := admin.NewServer(c, admin.Options{
		Addr:           s.cfg.Admin.Addr,
		AllowedOrigins: s.cfg.Admin.AllowedOrigins,
		Gatherer:       promReg,
		Registerer:     promReg,
		Logger:         s.logger,
	})
	if err != nil {
		return err
	}

	srvErr := make(chan error, 1)
	go func() { srvErr <- srv.Run(ctx) }()

	if err := waitReady(ctx, c, s); err != nil {
		cancel()
		<-srvErr
		return err
	}

	for _, name := range s.cfg.Manifest.Modules {
		if _, err := c.NewModule(name); err != nil {
			cancel()
			<-srvErr
			return err
		}
	}

	fmt.Fprintf(out, "%s %s ready, modules %v, admin on %s\n",
		SuccessStyle.Render("✓"), root.Name(), s.cfg.Manifest.Modules, KeyStyle.Render(s.cfg.Admin.Addr))

	watchErr := make(chan error, 1)
	if s.cfg.Watch.Enabled {
		w, err := newReloadWatcher(s, c)
		switch {
		case errors.Is(err, errNoContentRoots):
			s.logger.Info("no content roots, hot reload disabled")
			close(watchErr)
		case err != nil:
			cancel()
			<-srvErr
			return err
		default:
			go func() { watchErr <- w.Run(ctx) }()
		}
	} else {
		close(watchErr)
	}

	select {
	case <-ctx.Done():
	case err := <-srvErr:
		return err
	}

	if err := <-watchErr; err != nil {
		s.logger.Error("watcher stopped", "error", err)
	}
	return <-srvErr
}

func waitReady(ctx context.Context, c *featurea.Container, s *session) error {
	if missing := c.Missing(); len(missing) > 0 {
		s.logger.Info("waiting for proxies", "missing", fmt.Sprint(missing), "timeout", s.cfg.Ready.Timeout)
	}

	waitCtx := ctx
	if s.cfg.Ready.Timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, s.cfg.Ready.Timeout)
		defer cancel()
	}
	return c.WaitReady(waitCtx)
}

var errNoContentRoots = errors.New("no content roots")

// newReloadWatcher watches the registry's content roots and reloads every
// top-level module on change. Nested modules are rebuilt by their parent.
func newReloadWatcher(s *session, c *featurea.Container) (*watch.Watcher, error) {
	var roots []string
	for _, r := range c.Registry().ContentRoots() {
		roots = append(roots, r.Path())
	}
	if len(roots) == 0 {
		return nil, errNoContentRoots
	}

	return watch.New(watch.Config{
		Roots:    roots,
		Patterns: s.cfg.Watch.Patterns,
		Ignore:   s.cfg.Watch.Ignore,
		Debounce: s.cfg.Watch.Debounce,
		Logger:   s.logger,
		OnChange: func(_ context.Context, changes []watch.Change) error {
			for _, ch := range changes {
				s.logger.Info("content changed", "root", ch.Root, "files", len(ch.Paths))
			}
			return reloadTopLevel(c)
		},
	})
}

func reloadTopLevel(c *featurea.Container) error {
	var errs []error
	for _, m := range c.Modules() {
		if m.Parent() != nil {
			continue
		}
		if err := c.Reload(m.Name()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	featurea "github.com/featurea/featurea-go"
	"github.com/featurea/featurea-go/internal/config"
	"github.com/featurea/featurea-go/internal/logging"
	"github.com/featurea/featurea-go/manifest"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
)

// rootFlags are the persistent flags shared by every subcommand.
type rootFlags struct {
	configPath string
	logLevel   string
	logFormat  string
	root       string
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   "featurea",
		Short: "Inspect and run featurea artifact graphs",
		Long: TitleStyle.Render("featurea") + SubtitleStyle.Render(" - component runtime for artifact graphs") + `

Artifacts are declared in .hcl manifests. featurea flattens them into a
dependency registry, builds a container and serves its modules.

` + SubtitleStyle.Render("Examples:") + `
  featurea graph ./manifests --tree     Show the flattened registry
  featurea check ./manifests            Fail on duplicate bindings
  featurea serve --module editor        Run modules with hot reload
  featurea config show                  Print the effective configuration`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default is ./featurea.toml)")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "log format: text, json or logfmt")
	rootCmd.PersistentFlags().StringVar(&flags.root, "root", "", "root artifact name")

	rootCmd.AddCommand(newGraphCommand(flags))
	rootCmd.AddCommand(newCheckCommand(flags))
	rootCmd.AddCommand(newServeCommand(flags))
	rootCmd.AddCommand(newConfigCommand(flags))

	return rootCmd
}

func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s)", Version, Commit)
}

// Execute runs the CLI and exits the process with the command's status.
func Execute() {
	if err := fang.Execute(
		context.Background(),
		newRootCommand(),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

// session is what every subcommand needs after flag parsing: the effective
// config and a context carrying the logger.
type session struct {
	cfg    *config.Config
	logger *slog.Logger
	ctx    context.Context
}

func (f *rootFlags) open(cmd *cobra.Command) (*session, error) {
	cfg, _, err := config.Load(config.LoadOptions{ConfigFilePath: f.configPath})
	if err != nil {
		return nil, err
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Log.Format = f.logFormat
	}
	if f.root != "" {
		cfg.Manifest.Root = f.root
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	return &session{
		cfg:    cfg,
		logger: logger,
		ctx:    logging.WithLogger(ctx, logger),
	}, nil
}

// loadRoot loads the manifests under paths (or the configured paths) and
// picks the root artifact.
func (s *session) loadRoot(paths []string, lenient bool) (*manifest.Manifest, *featurea.Artifact, error) {
	if len(paths) == 0 {
		paths = s.cfg.Manifest.Paths
	}

	var opts []manifest.Option
	if lenient {
		opts = append(opts, manifest.Lenient())
	}

	m, err := manifest.NewLoader(builtinCatalog(), opts...).Load(s.ctx, paths...)
	if err != nil {
		return nil, nil, err
	}

	name := s.cfg.Manifest.Root
	if name == "" {
		roots := m.Roots()
		if len(roots) != 1 {
			return nil, nil, fmt.Errorf("cannot pick a root artifact from [%s]; set --root or manifest.root", strings.Join(roots, ", "))
		}
		name = roots[0]
	}

	a, ok := m.Artifact(name)
	if !ok {
		return nil, nil, fmt.Errorf("root artifact %q is not declared in %v", name, paths)
	}
	return m, a, nil
}

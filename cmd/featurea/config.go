package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/featurea/featurea-go/internal/config"
)

func newConfigCommand(flags *rootFlags) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect featurea configuration",
		Long: `Inspect featurea configuration.

Settings are read from defaults, then featurea.toml (or .yaml/.json) in the
working directory or the file given by --config, then FEATUREA_* environment
variables such as FEATUREA_LOG_LEVEL.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as TOML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := config.Load(config.LoadOptions{ConfigFilePath: flags.configPath})
			if err != nil {
				return err
			}

			data, err := cfg.MarshalTOML()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if path != "" {
				fmt.Fprintln(out, SubtitleStyle.Render("# loaded from "+path))
			} else {
				fmt.Fprintln(out, SubtitleStyle.Render("# defaults, no config file found"))
			}
			_, err = out.Write(data)
			return err
		},
	})

	return cfgCmd
}

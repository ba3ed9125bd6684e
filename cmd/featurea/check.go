package main

import (
	"fmt"

	"github.com/spf13/cobra"

	featurea "github.com/featurea/featurea-go"
)

func newCheckCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check [paths...]",
		Short: "Fail when the root artifact declares a key more than once",
		Long: `Load manifests and flatten the root artifact, reporting every binding key
declared by more than one artifact. Exits with status 1 when any are found.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := flags.open(cmd)
			if err != nil {
				return err
			}

			_, root, err := s.loadRoot(args, true)
			if err != nil {
				return err
			}

			// Flatten with last-wins so that every duplicate is collected
			// instead of stopping at the first.
			reg, err := featurea.NewRegistry(root, featurea.WithDuplicatePolicy(featurea.DuplicateLastWins))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			dups := reg.Duplicates()
			if len(dups) == 0 {
				fmt.Fprintf(out, "%s %s: %d artifacts, %d bindings, no duplicates\n",
					SuccessStyle.Render("✓"), reg.Root(), len(reg.Artifacts()), len(reg.Bindings()))
				return nil
			}

			for _, d := range dups {
				fmt.Fprintln(out, formatDuplicate(d))
			}
			return &ExitError{
				Code: 1,
				Err:  fmt.Errorf("%s: %d duplicate binding(s)", reg.Root(), len(dups)),
			}
		},
	}
}

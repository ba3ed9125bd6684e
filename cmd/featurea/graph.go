package main

import (
	"fmt"
	"io"

	"github.com/m1gwings/treedrawer/tree"
	"github.com/spf13/cobra"

	featurea "github.com/featurea/featurea-go"
)

func newGraphCommand(flags *rootFlags) *cobra.Command {
	var showTree bool

	cmd := &cobra.Command{
		Use:   "graph [paths...]",
		Short: "Show the flattened registry of a root artifact",
		Long: `Load manifests, flatten the root artifact and print the binding order,
plugin lists, awaited proxies and duplicate bindings.

Unknown factory names are tolerated: graph never instantiates anything.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := flags.open(cmd)
			if err != nil {
				return err
			}

			_, root, err := s.loadRoot(args, true)
			if err != nil {
				return err
			}

			reg, err := featurea.NewRegistry(root,
				featurea.WithDuplicatePolicy(s.cfg.Policy()),
				featurea.WithRegistryLogger(s.logger),
			)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			renderRegistry(out, reg)
			if showTree {
				fmt.Fprintln(out, sectionStyle.Render("Include tree"))
				fmt.Fprintln(out, includeTree(reg.IncludeGraph()))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showTree, "tree", false, "draw the artifact include tree")
	return cmd
}

func renderRegistry(w io.Writer, reg *featurea.DependencyRegistry) {
	fmt.Fprintf(w, "%s %s\n",
		TitleStyle.Render(reg.Root()),
		SubtitleStyle.Render(fmt.Sprintf("(%d artifacts, policy %s)", len(reg.Artifacts()), reg.Policy())),
	)

	fmt.Fprintln(w, sectionStyle.Render("Artifacts"))
	g := reg.IncludeGraph()
	for _, a := range reg.Artifacts() {
		reach := ""
		if n := len(g.Descendants(a)); n > 0 {
			reach = "  " + SubtitleStyle.Render(fmt.Sprintf("(reaches %d)", n))
		}
		fmt.Fprintf(w, "  %s%s\n", a, reach)
	}

	fmt.Fprintln(w, sectionStyle.Render("Bindings"))
	for i, b := range reg.Bindings() {
		marker := ""
		if b.Provider() {
			marker = " " + SuccessStyle.Render("[provider]")
		}
		fmt.Fprintf(w, "  %2d. %s  %s%s\n", i+1, KeyStyle.Render(b.Name()), SubtitleStyle.Render(b.Artifact), marker)
	}

	if plugins := reg.Plugins(); len(plugins) > 0 {
		fmt.Fprintln(w, sectionStyle.Render("Plugins"))
		for _, p := range plugins {
			fmt.Fprintf(w, "  %s\n", p)
			for _, e := range reg.PluginEntries(p) {
				fmt.Fprintf(w, "    - %s  %s\n", KeyStyle.Render(e.Key), SubtitleStyle.Render(e.Artifact))
			}
		}
	}

	if awaited := reg.Awaited(); len(awaited) > 0 {
		fmt.Fprintln(w, sectionStyle.Render("Awaited proxies"))
		for _, k := range awaited {
			fmt.Fprintf(w, "  %s\n", k)
		}
	}

	if roots := reg.ContentRoots(); len(roots) > 0 {
		fmt.Fprintln(w, sectionStyle.Render("Content roots"))
		for _, r := range roots {
			fmt.Fprintf(w, "  %s  %s\n", r.Path(), SubtitleStyle.Render(r.Artifact))
		}
	}

	if dups := reg.Duplicates(); len(dups) > 0 {
		fmt.Fprintln(w, sectionStyle.Render("Duplicates"))
		for _, d := range dups {
			fmt.Fprintln(w, "  "+formatDuplicate(d))
		}
	}
}

func formatDuplicate(d featurea.Duplicate) string {
	return WarningStyle.Render("!") + fmt.Sprintf(" %s declared by %s and %s, kept %s", d.Key, d.First, d.Second, d.Kept)
}

// includeTree draws the include graph. An artifact reached a second time is
// drawn as a leaf marked "(seen)", mirroring flattening where only the first
// visit contributes.
func includeTree(g *featurea.IncludeGraph) *tree.Tree {
	t := tree.NewTree(tree.NodeString(g.Root()))
	seen := map[string]bool{g.Root(): true}
	addIncludes(t, g, g.Root(), seen)
	return t
}

func addIncludes(t *tree.Tree, g *featurea.IncludeGraph, name string, seen map[string]bool) {
	for _, child := range g.Children(name) {
		if seen[child] {
			t.AddChild(tree.NodeString(child + " (seen)"))
			continue
		}
		seen[child] = true
		addIncludes(t.AddChild(tree.NodeString(child)), g, child, seen)
	}
}

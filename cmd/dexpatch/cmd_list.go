package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dhamidi/dexpatch/patch"
	"github.com/dhamidi/dexpatch/patch/patchfile"
	"github.com/dhamidi/dexpatch/patches"
)

func newListCmd(g *globals) *cobra.Command {
	var files []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available patches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			all := patches.All()

			defs, err := patchfile.ReadGlob(append(g.cfg.PatchFiles(), files...)...)
			if err != nil {
				return err
			}
			custom, err := patchfile.Compile(defs)
			if err != nil {
				return err
			}
			all = append(all, custom...)

			w := cmd.OutOrStdout()
			for _, p := range all {
				printPatch(w, p, g.cfg.Patches.Selected(p.Name))
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&files, "file", "f", nil, "also list YAML patch definitions (globs allowed)")

	return cmd
}

func printPatch(w io.Writer, p *patch.Patch, selected bool) {
	mark := " "
	if selected {
		mark = "*"
	}
	fmt.Fprintf(w, "%s %s\n", mark, p.Name)
	if p.Description != "" {
		fmt.Fprintf(w, "    %s\n", p.Description)
	}
	if len(p.Compatible) > 0 {
		fmt.Fprintf(w, "    compatible with: %s\n", strings.Join(p.Compatible, ", "))
	}
}

package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dhamidi/dexpatch/patch"
	"github.com/dhamidi/dexpatch/patch/patchfile"
	"github.com/dhamidi/dexpatch/patches"
)

func newPatchCmd(g *globals) *cobra.Command {
	var (
		output     string
		pkg        string
		files      []string
		include    []string
		exclude    []string
		noTruncate bool
		dryRun     bool
	)

	cmd := &cobra.Command{
		Use:   "patch [input]",
		Short: "Apply built-in and YAML patches to a program image",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := g.cfg
			input := cfg.Path(cfg.Session.Input)
			if len(args) == 1 {
				input = args[0]
			}
			if output == "" {
				output = cfg.Path(cfg.Session.Output)
			}
			if pkg == "" {
				pkg = cfg.Session.Package
			}
			if len(include) > 0 {
				cfg.Patches.Include = include
			}
			if len(exclude) > 0 {
				cfg.Patches.Exclude = exclude
			}
			opts := patch.Options{Truncate: cfg.Truncate() && !noTruncate}

			p, archive, err := loadInput(input)
			if err != nil {
				return fmt.Errorf("load %s: %w", input, err)
			}

			var selected []*patch.Patch
			for _, bp := range patches.All() {
				if cfg.Patches.Selected(bp.Name) {
					selected = append(selected, bp)
				}
			}
			defs, err := patchfile.ReadGlob(append(cfg.PatchFiles(), files...)...)
			if err != nil {
				return err
			}
			custom, err := patchfile.Compile(defs)
			if err != nil {
				return err
			}
			selected = append(selected, custom...)
			if len(selected) == 0 {
				return fmt.Errorf("no patches selected")
			}

			session := patch.NewSession(p, pkg, opts)
			runErr := session.Run(selected...)
			report(cmd.OutOrStdout(), session)

			if dryRun || output == "" {
				return runErr
			}
			if archive == nil {
				return fmt.Errorf("cannot write %s: class file inputs are read-only", output)
			}
			out, err := session.Output()
			if err != nil {
				return err
			}
			if err := archive.WriteFile(output, out); err != nil {
				return err
			}
			log.Infof("wrote %s", output)
			return runErr
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the patched image here")
	cmd.Flags().StringVarP(&pkg, "package", "p", "", "application package used to select compatible patches")
	cmd.Flags().StringSliceVarP(&files, "file", "f", nil, "YAML patch definitions (globs allowed)")
	cmd.Flags().StringSliceVar(&include, "include", nil, "only run these built-in patches")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "skip these built-in patches")
	cmd.Flags().BoolVar(&noTruncate, "no-truncate", false, "keep original instructions after constant returns")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "apply patches but do not write output")

	return cmd
}

func report(w io.Writer, s *patch.Session) {
	fmt.Fprintf(w, "session %s\n", s.ID())
	for _, r := range s.Results() {
		var status string
		switch r.Status {
		case patch.StatusApplied:
			status = color.GreenString("%-8s", r.Status)
		case patch.StatusSkipped:
			status = color.YellowString("%-8s", r.Status)
		default:
			status = color.RedString("%-8s", r.Status)
		}
		fmt.Fprintf(w, "  %s %s", status, r.Patch)
		if r.Err != nil {
			fmt.Fprintf(w, ": %s", r.Err)
		}
		fmt.Fprintln(w)
	}
}

package main

import (
	"fmt"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dhamidi/dexpatch/fingerprint"
	"github.com/dhamidi/dexpatch/patch/patchfile"
)

func newFindCmd(g *globals) *cobra.Command {
	var jobs int

	cmd := &cobra.Command{
		Use:   "find <input> <patch-file>...",
		Short: "Resolve the fingerprints of YAML patch definitions without patching",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, _, err := loadInput(args[0])
			if err != nil {
				return fmt.Errorf("load %s: %w", args[0], err)
			}
			defs, err := patchfile.ReadGlob(args[1:]...)
			if err != nil {
				return err
			}

			fps := make([]*fingerprint.Fingerprint, len(defs))
			for i, d := range defs {
				if fps[i], err = d.Fingerprint.Compile(); err != nil {
					return fmt.Errorf("patch %q: %w", d.Name, err)
				}
			}

			results, err := fingerprint.ResolveAll(cmd.Context(), p, fps, jobs)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			failed := 0
			for i, r := range results {
				if r.Err != nil {
					failed++
					fmt.Fprintf(w, "%s %s: %s\n", color.RedString("✗"), defs[i].Name, r.Err)
					continue
				}
				fmt.Fprintf(w, "%s %s: %s\n", color.GreenString("✓"), defs[i].Name, r.Match.Method)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d fingerprints did not resolve", failed, len(results))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&jobs, "jobs", "j", runtime.NumCPU(), "resolve this many fingerprints concurrently")

	return cmd
}

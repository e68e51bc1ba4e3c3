package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dhamidi/dexpatch/program"
	"github.com/dhamidi/dexpatch/smali"
)

func newDumpCmd(g *globals) *cobra.Command {
	var namesOnly bool

	cmd := &cobra.Command{
		Use:   "dump <input> [class]...",
		Short: "Print classes of a program in smali-like form",
		Long: `Print classes of a program in smali-like form.

Classes may be given as descriptors (Lcom/example/Foo;) or dotted names
(com.example.Foo). Without class arguments every class is printed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, _, err := loadInput(args[0])
			if err != nil {
				return fmt.Errorf("load %s: %w", args[0], err)
			}

			classes := p.Classes()
			if len(args) > 1 {
				classes = classes[:0]
				for _, name := range args[1:] {
					c, ok := p.Lookup(program.ClassDescriptor(name))
					if !ok {
						return fmt.Errorf("class %s not found", name)
					}
					classes = append(classes, c)
				}
			}

			w := cmd.OutOrStdout()
			for i, c := range classes {
				if namesOnly {
					fmt.Fprintln(w, c.Name())
					continue
				}
				if i > 0 {
					fmt.Fprintln(w)
				}
				if err := smali.WriteClass(w, c); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&namesOnly, "names", "l", false, "only print class names")

	return cmd
}

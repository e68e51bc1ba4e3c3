package smali

import (
	"fmt"
	"io"
	"strings"

	"github.com/dhamidi/dexpatch/program"
)

// FormatBlock renders insns one per line, defining a label before every
// branch destination. The output parses back to the same instructions.
func FormatBlock(insns []program.Instruction) string {
	var sb strings.Builder
	writeBlock(&sb, insns, "")
	return sb.String()
}

func writeBlock(w io.StringWriter, insns []program.Instruction, indent string) {
	targets := make(map[int]bool)
	for _, in := range insns {
		if in.HasTarget() {
			targets[in.Target] = true
		}
	}
	label := func(i int) string { return fmt.Sprintf(":L%d", i) }

	for i, in := range insns {
		if targets[i] {
			w.WriteString(indent + label(i) + "\n")
		}
		w.WriteString(indent + in.Format(label) + "\n")
	}
	if targets[len(insns)] {
		w.WriteString(indent + label(len(insns)) + "\n")
	}
}

// WriteClass writes a smali-style listing of c: header, fields, then every
// method with its body.
func WriteClass(w io.Writer, c *program.ClassUnit) error {
	var sb strings.Builder

	fmt.Fprintf(&sb, ".class %s\n", withFlags(c.AccessFlags(), c.Name()))
	if c.SuperClass() != "" {
		fmt.Fprintf(&sb, ".super %s\n", c.SuperClass())
	}
	for _, i := range c.Interfaces() {
		fmt.Fprintf(&sb, ".implements %s\n", i)
	}
	if strs := c.Strings(); len(strs) > 0 {
		sb.WriteString("\n# strings\n")
		for _, s := range strs {
			fmt.Fprintf(&sb, "#   %q\n", s)
		}
	}

	if fields := c.Fields(); len(fields) > 0 {
		sb.WriteString("\n")
		for _, f := range fields {
			fmt.Fprintf(&sb, ".field %s:%s\n", withFlags(f.AccessFlags(), f.Name()), f.Type())
		}
	}

	for _, m := range c.Methods() {
		fmt.Fprintf(&sb, "\n.method %s%s\n", withFlags(m.AccessFlags(), m.Name()), m.Descriptor())
		if code := m.Code(); code != nil {
			fmt.Fprintf(&sb, "    .registers %d\n", code.Registers())
			writeBlock(&sb, code.Instructions(), "    ")
		}
		sb.WriteString(".end method\n")
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func withFlags(f program.AccessFlags, name string) string {
	if s := f.String(); s != "" {
		return s + " " + name
	}
	return name
}

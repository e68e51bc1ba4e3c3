package patchfile

import (
	"fmt"

	"github.com/dhamidi/dexpatch/editor"
	"github.com/dhamidi/dexpatch/errz"
	"github.com/dhamidi/dexpatch/patch"
	"github.com/dhamidi/dexpatch/program"
	"github.com/dhamidi/dexpatch/smali"
)

// Action is one step applied to the method the definition's fingerprint
// resolves to. Exactly one field must be set.
type Action struct {
	Insert         *CodeAction       `yaml:"insert"`
	Replace        *CodeAction       `yaml:"replace"`
	Erase          *int              `yaml:"erase"`
	ReturnConstant *ReturnAction     `yaml:"return_constant"`
	Substitute     *SubstituteAction `yaml:"substitute"`
	Neutralize     *NeutralizeAction `yaml:"neutralize"`
}

// CodeAction inserts before or replaces the instruction at Index.
type CodeAction struct {
	Index int    `yaml:"index"`
	Code  string `yaml:"code"`
}

// ReturnAction forces the method to return the value loaded by Code, a
// single value-producing instruction. Truncate overrides the session
// default.
type ReturnAction struct {
	Code     string `yaml:"code"`
	Truncate *bool  `yaml:"truncate"`
}

// SubstituteAction replaces loads of one status constant with another.
// Status resolves the status class; Negative and Positive index its status
// fields in declaration order.
type SubstituteAction struct {
	Status   Fingerprint `yaml:"status"`
	Negative int         `yaml:"negative"`
	Positive int         `yaml:"positive"`
}

// NeutralizeAction turns calls to matching callees into nops.
type NeutralizeAction struct {
	Callee []string `yaml:"callee"`
	Window int      `yaml:"window"`
}

const defaultWindow = 5

type step func(ctx *patch.Context, m *program.MutableMethod) error

func (a *Action) compile() (step, error) {
	set := 0
	for _, present := range []bool{
		a.Insert != nil, a.Replace != nil, a.Erase != nil,
		a.ReturnConstant != nil, a.Substitute != nil, a.Neutralize != nil,
	} {
		if present {
			set++
		}
	}
	if set != 1 {
		return nil, errz.New(errz.Invalid, "action", "exactly one operation per action, got %d", set)
	}

	switch {
	case a.Insert != nil:
		return compileCode(a.Insert, (*editor.Editor).InsertAt)
	case a.Replace != nil:
		return compileCode(a.Replace, (*editor.Editor).ReplaceAt)
	case a.Erase != nil:
		index := *a.Erase
		return func(_ *patch.Context, m *program.MutableMethod) error {
			e, err := editor.Edit(m)
			if err != nil {
				return err
			}
			return e.EraseAt(index)
		}, nil
	case a.ReturnConstant != nil:
		return compileReturn(a.ReturnConstant)
	case a.Substitute != nil:
		return compileSubstitute(a.Substitute)
	default:
		return compileNeutralize(a.Neutralize)
	}
}

func compileCode(c *CodeAction, apply func(*editor.Editor, int, ...program.Instruction) error) (step, error) {
	insns, err := smali.Parse(c.Code)
	if err != nil {
		return nil, err
	}
	return func(_ *patch.Context, m *program.MutableMethod) error {
		// The original body stays reachable, so the frame cannot grow
		// without moving the registers its parameters arrive in.
		if r := maxRegister(insns); r >= m.Registers() {
			return errz.New(errz.InvalidEdit, m.String(), "v%d is outside the frame of %d registers", r, m.Registers())
		}
		e, err := editor.Edit(m)
		if err != nil {
			return err
		}
		return apply(e, c.Index, insns...)
	}, nil
}

func compileReturn(r *ReturnAction) (step, error) {
	insns, err := smali.Parse(r.Code)
	if err != nil {
		return nil, err
	}
	if len(insns) != 1 {
		return nil, errz.New(errz.Invalid, "return_constant", "expected one load instruction, got %d", len(insns))
	}
	load := insns[0]
	return func(ctx *patch.Context, m *program.MutableMethod) error {
		truncate := ctx.Options.Truncate
		if r.Truncate != nil {
			truncate = *r.Truncate
		}
		return patch.ReturnConstant(m, load, truncate)
	}, nil
}

func compileSubstitute(s *SubstituteAction) (step, error) {
	fp, err := s.Status.Compile()
	if err != nil {
		return nil, err
	}
	if s.Negative < 0 || s.Positive < 0 {
		return nil, errz.New(errz.Invalid, "substitute", "status indices must not be negative")
	}
	return func(ctx *patch.Context, m *program.MutableMethod) error {
		status, err := ctx.ResolveClass(fp)
		if err != nil {
			return err
		}
		fields, err := patch.StatusFields(status, max(s.Negative, s.Positive)+1)
		if err != nil {
			return err
		}
		_, err = patch.SubstituteStatus(m, status.Name(), fields[s.Negative].Ref(), fields[s.Positive].Ref())
		return err
	}, nil
}

func compileNeutralize(n *NeutralizeAction) (step, error) {
	if len(n.Callee) == 0 {
		return nil, errz.New(errz.Invalid, "neutralize", "no callee names given")
	}
	window := n.Window
	if window <= 0 {
		window = defaultWindow
	}
	match := patch.CalleeName(n.Callee...)
	return func(_ *patch.Context, m *program.MutableMethod) error {
		_, err := patch.NeutralizeCalls(m, match, window)
		return err
	}, nil
}

func maxRegister(insns []program.Instruction) int {
	highest := -1
	for _, in := range insns {
		for _, r := range in.Registers {
			highest = max(highest, int(r))
		}
	}
	return highest
}

// Compile turns the definition into a runnable patch. Everything that can
// be checked without a program, such as the assembler text, is checked
// here.
func (d *Definition) Compile() (*patch.Patch, error) {
	fp, err := d.Fingerprint.Compile()
	if err != nil {
		return nil, fmt.Errorf("patch %q: %w", d.Name, err)
	}
	if len(d.Actions) == 0 {
		return nil, errz.New(errz.Invalid, d.Name, "patch has no actions")
	}
	steps := make([]step, len(d.Actions))
	for i := range d.Actions {
		if steps[i], err = d.Actions[i].compile(); err != nil {
			return nil, fmt.Errorf("patch %q: action %d: %w", d.Name, i+1, err)
		}
	}

	return &patch.Patch{
		Name:        d.Name,
		Description: d.Description,
		Compatible:  d.Compatible,
		Execute: func(ctx *patch.Context) error {
			m, err := ctx.ResolveMethod(fp)
			if err != nil {
				return err
			}
			for i, s := range steps {
				if err := s(ctx, m); err != nil {
					return fmt.Errorf("action %d: %w", i+1, err)
				}
			}
			return nil
		},
	}, nil
}

// Compile compiles every definition.
func Compile(defs []*Definition) ([]*patch.Patch, error) {
	out := make([]*patch.Patch, 0, len(defs))
	for _, d := range defs {
		p, err := d.Compile()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Package smali converts between a smali-like text form and structured
// instructions. It is a convenience for patch authors; the editor only
// deals in program.Instruction values.
//
// One instruction per line:
//
//	const-string v0, "plus"
//	sget-object v0, Lcom/example/Status;->ACTIVE:Lcom/example/Status;
//	invoke-static {v0}, Lcom/example/Util;->check(I)Z
//	if-eqz v0, :skip
//	:skip
//	return-object v0
//
// Blank lines and lines starting with '#' are ignored. Branch operands name
// a label defined in the same text; a purely numeric label is an index into
// the parsed sequence. A label on the last line denotes the position just
// after the sequence.
package smali

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dhamidi/dexpatch/errz"
	"github.com/dhamidi/dexpatch/program"
)

type pendingTarget struct {
	insn  int
	label string
	line  int
}

// Parse assembles src into instructions.
func Parse(src string) ([]program.Instruction, error) {
	var (
		insns   []program.Instruction
		labels  = make(map[string]int)
		targets []pendingTarget
	)

	for n, raw := range strings.Split(src, "\n") {
		lineNo := n + 1
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, ":") {
			name := line[1:]
			if _, dup := labels[name]; dup {
				return nil, lineError(lineNo, "label %q defined twice", name)
			}
			labels[name] = len(insns)
			continue
		}

		in, label, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if in.HasTarget() {
			targets = append(targets, pendingTarget{insn: len(insns), label: label, line: lineNo})
		}
		insns = append(insns, in)
	}

	for _, t := range targets {
		idx, ok := labels[t.label]
		if !ok {
			i, err := strconv.Atoi(t.label)
			if err != nil {
				return nil, lineError(t.line, "undefined label %q", t.label)
			}
			idx = i
		}
		if idx < 0 || idx > len(insns) {
			return nil, lineError(t.line, "label %q points outside the sequence", t.label)
		}
		insns[t.insn].Target = idx
	}
	return insns, nil
}

// MustParse is Parse for fixed text known to be valid.
func MustParse(src string) []program.Instruction {
	insns, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return insns
}

// ParseInstruction assembles a single line. Branch instructions are
// rejected because their labels cannot be resolved in isolation, except
// for numeric targets.
func ParseInstruction(line string) (program.Instruction, error) {
	in, label, err := parseLine(strings.TrimSpace(line))
	if err != nil {
		return program.Instruction{}, err
	}
	if in.HasTarget() {
		idx, err := strconv.Atoi(label)
		if err != nil {
			return program.Instruction{}, errz.New(errz.Invalid, line, "label %q cannot be resolved in a single instruction", label)
		}
		in.Target = idx
	}
	return in, nil
}

func parseLine(line string) (program.Instruction, string, error) {
	mnemonic, rest, _ := strings.Cut(line, " ")
	op, ok := program.LookupOpcode(mnemonic)
	if !ok {
		return program.Instruction{}, "", errz.New(errz.Invalid, mnemonic, "unknown opcode")
	}
	rest = strings.TrimSpace(rest)
	in := program.Instruction{Opcode: op}

	if op.Shape() == program.ShapeInvoke {
		regs, ref, err := splitInvoke(rest)
		if err != nil {
			return in, "", err
		}
		in.Registers = regs
		m, err := parseMethodRef(ref)
		if err != nil {
			return in, "", err
		}
		in.Ref = program.Reference{Kind: program.RefMethod, Method: m}
		return in, "", in.Validate()
	}

	operands, err := splitOperands(rest)
	if err != nil {
		return in, "", err
	}

	nregs, extra := operandLayout(op.Shape())
	if len(operands) != nregs+extra {
		return in, "", errz.New(errz.Invalid, line, "expected %d operands, got %d", nregs+extra, len(operands))
	}
	for _, o := range operands[:nregs] {
		r, err := parseRegister(o)
		if err != nil {
			return in, "", err
		}
		in.Registers = append(in.Registers, r)
	}

	var label string
	if extra == 1 {
		last := operands[nregs]
		switch op.Shape() {
		case program.ShapeRegLiteral:
			v, err := strconv.ParseInt(last, 0, 64)
			if err != nil {
				return in, "", errz.New(errz.Invalid, last, "malformed literal")
			}
			in.Literal = v
		case program.ShapeRegString:
			s, err := strconv.Unquote(last)
			if err != nil {
				return in, "", errz.New(errz.Invalid, last, "malformed string literal")
			}
			in.Ref = program.Reference{Kind: program.RefString, Value: s}
		case program.ShapeRegType:
			in.Ref = program.Reference{Kind: program.RefType, Value: last}
		case program.ShapeRegField, program.ShapeRegRegField:
			f, err := parseFieldRef(last)
			if err != nil {
				return in, "", err
			}
			in.Ref = program.Reference{Kind: program.RefField, Field: f}
		case program.ShapeBranch, program.ShapeRegBranch, program.ShapeRegRegBranch:
			if !strings.HasPrefix(last, ":") || len(last) == 1 {
				return in, "", errz.New(errz.Invalid, last, "branch target must be a label")
			}
			label = last[1:]
		}
	}
	return in, label, in.Validate()
}

// operandLayout returns the number of register operands and of trailing
// non-register operands for a shape.
func operandLayout(s program.Shape) (regs, extra int) {
	switch s {
	case program.ShapeNone:
		return 0, 0
	case program.ShapeReg:
		return 1, 0
	case program.ShapeRegReg:
		return 2, 0
	case program.ShapeBranch:
		return 0, 1
	case program.ShapeRegRegField, program.ShapeRegRegBranch:
		return 2, 1
	default:
		return 1, 1
	}
}

// splitOperands splits on commas outside string literals.
func splitOperands(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var (
		out     []string
		cur     strings.Builder
		quoted  bool
		escaped bool
	)
	for _, r := range s {
		switch {
		case escaped:
			escaped = false
		case quoted && r == '\\':
			escaped = true
		case r == '"':
			quoted = !quoted
		case r == ',' && !quoted:
			out = append(out, strings.TrimSpace(cur.String()))
			cur.Reset()
			continue
		}
		cur.WriteRune(r)
	}
	if quoted {
		return nil, errz.New(errz.Invalid, s, "unterminated string literal")
	}
	out = append(out, strings.TrimSpace(cur.String()))
	return out, nil
}

func splitInvoke(s string) ([]program.Register, string, error) {
	if !strings.HasPrefix(s, "{") {
		return nil, "", errz.New(errz.Invalid, s, "invoke arguments must be enclosed in braces")
	}
	end := strings.IndexByte(s, '}')
	if end == -1 {
		return nil, "", errz.New(errz.Invalid, s, "unterminated argument list")
	}
	var regs []program.Register
	if args := strings.TrimSpace(s[1:end]); args != "" {
		for _, a := range strings.Split(args, ",") {
			r, err := parseRegister(strings.TrimSpace(a))
			if err != nil {
				return nil, "", err
			}
			regs = append(regs, r)
		}
	}
	rest := strings.TrimSpace(s[end+1:])
	rest, ok := strings.CutPrefix(rest, ",")
	if !ok {
		return nil, "", errz.New(errz.Invalid, s, "missing method reference")
	}
	return regs, strings.TrimSpace(rest), nil
}

func parseRegister(s string) (program.Register, error) {
	if !strings.HasPrefix(s, "v") {
		return 0, errz.New(errz.Invalid, s, "expected a register like v0")
	}
	n, err := strconv.ParseUint(s[1:], 10, 16)
	if err != nil {
		return 0, errz.New(errz.Invalid, s, "malformed register")
	}
	return program.Register(n), nil
}

// ParseFieldRef parses "Lcls;->name:Ltype;".
func ParseFieldRef(s string) (program.FieldRef, error) {
	return parseFieldRef(s)
}

func parseFieldRef(s string) (program.FieldRef, error) {
	class, member, ok := strings.Cut(s, "->")
	if !ok {
		return program.FieldRef{}, errz.New(errz.Invalid, s, "field reference needs '->'")
	}
	name, typ, ok := strings.Cut(member, ":")
	if !ok || name == "" || program.ParseType(typ) == nil || program.ParseType(class) == nil {
		return program.FieldRef{}, errz.New(errz.Invalid, s, "malformed field reference")
	}
	return program.FieldRef{Class: class, Name: name, Type: typ}, nil
}

// ParseMethodRef parses "Lcls;->name(params)ret".
func ParseMethodRef(s string) (program.MethodRef, error) {
	return parseMethodRef(s)
}

func parseMethodRef(s string) (program.MethodRef, error) {
	class, member, ok := strings.Cut(s, "->")
	if !ok || program.ParseType(class) == nil {
		return program.MethodRef{}, errz.New(errz.Invalid, s, "malformed method reference")
	}
	paren := strings.IndexByte(member, '(')
	if paren <= 0 {
		return program.MethodRef{}, errz.New(errz.Invalid, s, "method reference needs a descriptor")
	}
	params, ret, ok := program.ParseMethodDescriptor(member[paren:])
	if !ok {
		return program.MethodRef{}, errz.New(errz.Invalid, s, "malformed method descriptor")
	}
	return program.MethodRef{Class: class, Name: member[:paren], Parameters: params, Return: ret}, nil
}

func lineError(line int, format string, args ...any) error {
	return errz.New(errz.Invalid, fmt.Sprintf("line %d", line), format, args...)
}

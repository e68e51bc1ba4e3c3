package program

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/dhamidi/dexpatch/errz"
)

// Register names a method-local virtual register.
type Register uint16

func (r Register) String() string { return "v" + strconv.Itoa(int(r)) }

type RefKind uint8

const (
	RefNone RefKind = iota
	RefString
	RefType
	RefField
	RefMethod
)

// FieldRef identifies a field by its defining class, name and type.
type FieldRef struct {
	Class string `cbor:"class" yaml:"class"`
	Name  string `cbor:"name" yaml:"name"`
	Type  string `cbor:"type" yaml:"type"`
}

func (f FieldRef) String() string {
	return f.Class + "->" + f.Name + ":" + f.Type
}

// MethodRef identifies a method by its defining class, name and signature.
type MethodRef struct {
	Class      string   `cbor:"class"`
	Name       string   `cbor:"name"`
	Parameters []string `cbor:"params,omitempty"`
	Return     string   `cbor:"ret"`
}

func (m MethodRef) Descriptor() string {
	return MethodDescriptor(m.Parameters, m.Return)
}

func (m MethodRef) String() string {
	return m.Class + "->" + m.Name + m.Descriptor()
}

func (m MethodRef) clone() MethodRef {
	m.Parameters = slices.Clone(m.Parameters)
	return m
}

// Reference is the optional reference operand of an instruction. Value holds
// the literal for RefString and the type descriptor for RefType.
type Reference struct {
	Kind   RefKind   `cbor:"kind"`
	Value  string    `cbor:"value,omitempty"`
	Field  FieldRef  `cbor:"field,omitempty"`
	Method MethodRef `cbor:"method,omitempty"`
}

// Instruction is one operation of an instruction block. Target is the index
// of the branch destination within the same block and is only meaningful
// for branch opcodes.
type Instruction struct {
	Opcode    Opcode     `cbor:"op"`
	Registers []Register `cbor:"regs,omitempty"`
	Literal   int64      `cbor:"lit,omitempty"`
	Target    int        `cbor:"target,omitempty"`
	Ref       Reference  `cbor:"ref,omitempty"`
}

func Nop() Instruction        { return Instruction{Opcode: OpNop} }
func ReturnVoid() Instruction { return Instruction{Opcode: OpReturnVoid} }

func Return(op Opcode, r Register) Instruction {
	return Instruction{Opcode: op, Registers: []Register{r}}
}

func MoveResult(op Opcode, r Register) Instruction {
	return Instruction{Opcode: op, Registers: []Register{r}}
}

func Const(op Opcode, r Register, literal int64) Instruction {
	return Instruction{Opcode: op, Registers: []Register{r}, Literal: literal}
}

func ConstString(r Register, s string) Instruction {
	return Instruction{
		Opcode:    OpConstString,
		Registers: []Register{r},
		Ref:       Reference{Kind: RefString, Value: s},
	}
}

func TypeOp(op Opcode, r Register, typ string) Instruction {
	return Instruction{
		Opcode:    op,
		Registers: []Register{r},
		Ref:       Reference{Kind: RefType, Value: typ},
	}
}

// StaticField builds an sget*/sput* instruction.
func StaticField(op Opcode, r Register, f FieldRef) Instruction {
	return Instruction{
		Opcode:    op,
		Registers: []Register{r},
		Ref:       Reference{Kind: RefField, Field: f},
	}
}

// InstanceField builds an iget*/iput* instruction; obj holds the instance.
func InstanceField(op Opcode, r, obj Register, f FieldRef) Instruction {
	return Instruction{
		Opcode:    op,
		Registers: []Register{r, obj},
		Ref:       Reference{Kind: RefField, Field: f},
	}
}

func Invoke(op Opcode, m MethodRef, args ...Register) Instruction {
	return Instruction{
		Opcode:    op,
		Registers: args,
		Ref:       Reference{Kind: RefMethod, Method: m},
	}
}

func Goto(target int) Instruction {
	return Instruction{Opcode: OpGoto, Target: target}
}

// Branch builds a conditional branch comparing one register (if-*z) or two.
func Branch(op Opcode, target int, regs ...Register) Instruction {
	return Instruction{Opcode: op, Registers: regs, Target: target}
}

func (in Instruction) Info() Info   { return in.Opcode.Info() }
func (in Instruction) Shape() Shape { return in.Opcode.Shape() }

// WrittenRegister returns the register this instruction stores a value in.
func (in Instruction) WrittenRegister() (Register, bool) {
	if !in.Opcode.Info().Writes || len(in.Registers) == 0 {
		return 0, false
	}
	return in.Registers[0], true
}

// HasTarget reports whether Target is meaningful for this instruction.
func (in Instruction) HasTarget() bool {
	return in.Opcode.IsBranch()
}

// Clone returns a copy that shares no memory with in.
func (in Instruction) Clone() Instruction {
	in.Registers = slices.Clone(in.Registers)
	in.Ref.Method = in.Ref.Method.clone()
	return in
}

// Equal reports whether two instructions have the same opcode and operands.
func (in Instruction) Equal(other Instruction) bool {
	if in.Opcode != other.Opcode || !slices.Equal(in.Registers, other.Registers) {
		return false
	}
	if in.Literal != other.Literal || in.Target != other.Target {
		return false
	}
	a, b := in.Ref, other.Ref
	return a.Kind == b.Kind && a.Value == b.Value && a.Field == b.Field &&
		a.Method.Class == b.Method.Class && a.Method.Name == b.Method.Name &&
		a.Method.Return == b.Method.Return && slices.Equal(a.Method.Parameters, b.Method.Parameters)
}

// Validate checks that the operands match the opcode's shape.
func (in Instruction) Validate() error {
	if !in.Opcode.Valid() {
		return errz.New(errz.Invalid, "instruction", "unknown opcode %d", in.Opcode)
	}
	shape := in.Shape()
	if want := shape.registerCount(); want >= 0 && len(in.Registers) != want {
		return errz.New(errz.Invalid, in.Opcode.String(), "expected %d registers, got %d", want, len(in.Registers))
	}
	if shape == ShapeInvoke && len(in.Registers) > 5 {
		return errz.New(errz.Invalid, in.Opcode.String(), "too many argument registers: %d", len(in.Registers))
	}
	if kind := in.Opcode.RefKind(); kind != in.Ref.Kind {
		return errz.New(errz.Invalid, in.Opcode.String(), "reference kind %d does not match opcode", in.Ref.Kind)
	}
	switch in.Ref.Kind {
	case RefType:
		if ParseType(in.Ref.Value) == nil {
			return errz.New(errz.Invalid, in.Opcode.String(), "malformed type %q", in.Ref.Value)
		}
	case RefField:
		if in.Ref.Field.Class == "" || in.Ref.Field.Name == "" || in.Ref.Field.Type == "" {
			return errz.New(errz.Invalid, in.Opcode.String(), "incomplete field reference %s", in.Ref.Field)
		}
	case RefMethod:
		if in.Ref.Method.Class == "" || in.Ref.Method.Name == "" || in.Ref.Method.Return == "" {
			return errz.New(errz.Invalid, in.Opcode.String(), "incomplete method reference %s", in.Ref.Method)
		}
	}
	if in.HasTarget() && in.Target < 0 {
		return errz.New(errz.Invalid, in.Opcode.String(), "negative branch target %d", in.Target)
	}
	return nil
}

// String renders the instruction in smali-like syntax. Branch targets are
// printed as ":<index>".
func (in Instruction) String() string {
	return in.Format(func(target int) string { return ":" + strconv.Itoa(target) })
}

// Format renders the instruction, naming branch targets with label.
func (in Instruction) Format(label func(target int) string) string {
	var sb strings.Builder
	sb.WriteString(in.Opcode.String())

	var operands []string
	if in.Shape() == ShapeInvoke {
		regs := make([]string, len(in.Registers))
		for i, r := range in.Registers {
			regs[i] = r.String()
		}
		operands = append(operands, "{"+strings.Join(regs, ", ")+"}")
	} else {
		for _, r := range in.Registers {
			operands = append(operands, r.String())
		}
	}

	switch in.Shape() {
	case ShapeRegLiteral:
		if in.Literal < 0 {
			operands = append(operands, fmt.Sprintf("-0x%x", uint64(-in.Literal)))
		} else {
			operands = append(operands, fmt.Sprintf("0x%x", in.Literal))
		}
	case ShapeRegString:
		operands = append(operands, strconv.Quote(in.Ref.Value))
	case ShapeRegType:
		operands = append(operands, in.Ref.Value)
	case ShapeRegField, ShapeRegRegField:
		operands = append(operands, in.Ref.Field.String())
	case ShapeInvoke:
		operands = append(operands, in.Ref.Method.String())
	case ShapeBranch, ShapeRegBranch, ShapeRegRegBranch:
		operands = append(operands, label(in.Target))
	}

	if len(operands) > 0 {
		sb.WriteByte(' ')
		sb.WriteString(strings.Join(operands, ", "))
	}
	return sb.String()
}

package program

import (
	"slices"
	"sort"
)

// ClassView is the read access shared by ClassUnit and MutableClass.
type ClassView interface {
	Name() string
	AccessFlags() AccessFlags
	SuperClass() string
	HasString(s string) bool
}

// MethodView is the read access shared by MethodUnit and MutableMethod.
// Opcodes returns nil when the method has no instruction block.
type MethodView interface {
	DefiningClass() string
	Name() string
	AccessFlags() AccessFlags
	Parameters() []string
	ReturnType() string
	HasString(s string) bool
	Opcodes() []Opcode
}

// FieldView is the read access shared by FieldUnit and MutableField.
type FieldView interface {
	DefiningClass() string
	Name() string
	AccessFlags() AccessFlags
	Type() string
}

// ClassUnit is an immutable class. It is safe for concurrent reads.
type ClassUnit struct {
	name       string
	flags      AccessFlags
	super      string
	interfaces []string
	fields     []*FieldUnit
	methods    []*MethodUnit
	strings    map[string]struct{}
}

func (c *ClassUnit) Name() string             { return c.name }
func (c *ClassUnit) AccessFlags() AccessFlags { return c.flags }
func (c *ClassUnit) SuperClass() string       { return c.super }
func (c *ClassUnit) Interfaces() []string     { return slices.Clone(c.interfaces) }

func (c *ClassUnit) Methods() []*MethodUnit { return slices.Clone(c.methods) }
func (c *ClassUnit) Fields() []*FieldUnit   { return slices.Clone(c.fields) }

// HasString reports whether s is a literal referenced anywhere in the class.
func (c *ClassUnit) HasString(s string) bool {
	_, ok := c.strings[s]
	return ok
}

// Strings returns the sorted literals referenced by the class.
func (c *ClassUnit) Strings() []string {
	return sortedKeys(c.strings)
}

// Method finds a method by name and descriptor. An empty descriptor matches
// the first method with that name.
func (c *ClassUnit) Method(name, descriptor string) *MethodUnit {
	for _, m := range c.methods {
		if m.name == name && (descriptor == "" || m.Descriptor() == descriptor) {
			return m
		}
	}
	return nil
}

func (c *ClassUnit) Field(name string) *FieldUnit {
	for _, f := range c.fields {
		if f.name == name {
			return f
		}
	}
	return nil
}

// MethodUnit is an immutable method.
type MethodUnit struct {
	class   string
	name    string
	flags   AccessFlags
	params  []string
	ret     string
	code    *InstructionBlock
	strings map[string]struct{}
}

func (m *MethodUnit) DefiningClass() string    { return m.class }
func (m *MethodUnit) Name() string             { return m.name }
func (m *MethodUnit) AccessFlags() AccessFlags { return m.flags }
func (m *MethodUnit) Parameters() []string     { return slices.Clone(m.params) }
func (m *MethodUnit) ReturnType() string       { return m.ret }
func (m *MethodUnit) Descriptor() string       { return MethodDescriptor(m.params, m.ret) }

// Code returns the instruction block, or nil for abstract and native
// methods and for methods loaded without a body.
func (m *MethodUnit) Code() *InstructionBlock { return m.code }

func (m *MethodUnit) Ref() MethodRef {
	return MethodRef{Class: m.class, Name: m.name, Parameters: slices.Clone(m.params), Return: m.ret}
}

func (m *MethodUnit) HasString(s string) bool {
	_, ok := m.strings[s]
	return ok
}

func (m *MethodUnit) Strings() []string {
	return sortedKeys(m.strings)
}

func (m *MethodUnit) Opcodes() []Opcode {
	if m.code == nil {
		return nil
	}
	return opcodesOf(m.code.insns)
}

func (m *MethodUnit) String() string { return m.Ref().String() }

// FieldUnit is an immutable field.
type FieldUnit struct {
	class string
	name  string
	flags AccessFlags
	typ   string
}

func (f *FieldUnit) DefiningClass() string    { return f.class }
func (f *FieldUnit) Name() string             { return f.name }
func (f *FieldUnit) AccessFlags() AccessFlags { return f.flags }
func (f *FieldUnit) Type() string             { return f.typ }

func (f *FieldUnit) Ref() FieldRef {
	return FieldRef{Class: f.class, Name: f.name, Type: f.typ}
}

func (f *FieldUnit) String() string { return f.Ref().String() }

// InstructionBlock is the immutable body of a method. Indices run from 0 to
// Len()-1.
type InstructionBlock struct {
	registers int
	insns     []Instruction
}

func (b *InstructionBlock) Len() int       { return len(b.insns) }
func (b *InstructionBlock) Registers() int { return b.registers }

// At returns a copy of the instruction at index i.
func (b *InstructionBlock) At(i int) Instruction { return b.insns[i].Clone() }

// Instructions returns a copy of the whole block.
func (b *InstructionBlock) Instructions() []Instruction {
	return cloneInstructions(b.insns)
}

func opcodesOf(insns []Instruction) []Opcode {
	ops := make([]Opcode, len(insns))
	for i, in := range insns {
		ops[i] = in.Opcode
	}
	return ops
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

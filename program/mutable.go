package program

import (
	"slices"

	"github.com/dhamidi/dexpatch/errz"
)

// MutableClass is an exclusively owned, editable copy of a ClassUnit. It is
// not safe for concurrent use.
type MutableClass struct {
	origin     *ClassUnit
	name       string
	flags      AccessFlags
	super      string
	interfaces []string
	strings    []string
	fields     []*MutableField
	methods    []*MutableMethod
}

// Mutable returns a deep copy of c that can be edited without affecting c.
func (c *ClassUnit) Mutable() *MutableClass {
	def := c.Def()
	mc := &MutableClass{
		origin:     c,
		name:       def.Name,
		flags:      def.AccessFlags,
		super:      def.SuperClass,
		interfaces: def.Interfaces,
		strings:    def.Strings,
	}
	for _, fd := range def.Fields {
		mc.fields = append(mc.fields, &MutableField{class: def.Name, name: fd.Name, flags: fd.AccessFlags, typ: fd.Type})
	}
	for _, md := range def.Methods {
		mm := &MutableMethod{
			class:   def.Name,
			name:    md.Name,
			flags:   md.AccessFlags,
			params:  md.Parameters,
			ret:     md.Return,
			strings: md.Strings,
		}
		if md.Code != nil {
			mm.code = &mutableCode{registers: md.Code.Registers, insns: md.Code.Instructions}
		}
		mc.methods = append(mc.methods, mm)
	}
	return mc
}

// Origin returns the immutable class this copy was made from.
func (mc *MutableClass) Origin() *ClassUnit { return mc.origin }

func (mc *MutableClass) Name() string                 { return mc.name }
func (mc *MutableClass) AccessFlags() AccessFlags     { return mc.flags }
func (mc *MutableClass) SetAccessFlags(f AccessFlags) { mc.flags = f }
func (mc *MutableClass) SuperClass() string           { return mc.super }

func (mc *MutableClass) Methods() []*MutableMethod { return slices.Clone(mc.methods) }
func (mc *MutableClass) Fields() []*MutableField   { return slices.Clone(mc.fields) }

func (mc *MutableClass) HasString(s string) bool {
	if slices.Contains(mc.strings, s) {
		return true
	}
	for _, m := range mc.methods {
		if m.HasString(s) {
			return true
		}
	}
	return false
}

// Method finds a method by name and descriptor. An empty descriptor matches
// the first method with that name.
func (mc *MutableClass) Method(name, descriptor string) *MutableMethod {
	for _, m := range mc.methods {
		if m.name == name && (descriptor == "" || m.Descriptor() == descriptor) {
			return m
		}
	}
	return nil
}

func (mc *MutableClass) Field(name string) *MutableField {
	for _, f := range mc.fields {
		if f.name == name {
			return f
		}
	}
	return nil
}

// Clone returns an independent copy with the same origin.
func (mc *MutableClass) Clone() *MutableClass {
	out := &MutableClass{
		origin:     mc.origin,
		name:       mc.name,
		flags:      mc.flags,
		super:      mc.super,
		interfaces: slices.Clone(mc.interfaces),
		strings:    slices.Clone(mc.strings),
	}
	for _, f := range mc.fields {
		cp := *f
		out.fields = append(out.fields, &cp)
	}
	for _, m := range mc.methods {
		out.methods = append(out.methods, m.clone())
	}
	return out
}

// Def returns the plain-data form of the current state.
func (mc *MutableClass) Def() ClassDef {
	def := ClassDef{
		Name:        mc.name,
		AccessFlags: mc.flags,
		SuperClass:  mc.super,
		Interfaces:  slices.Clone(mc.interfaces),
		Strings:     slices.Clone(mc.strings),
	}
	for _, f := range mc.fields {
		def.Fields = append(def.Fields, FieldDef{Name: f.name, AccessFlags: f.flags, Type: f.typ})
	}
	for _, m := range mc.methods {
		md := MethodDef{
			Name:        m.name,
			AccessFlags: m.flags,
			Parameters:  slices.Clone(m.params),
			Return:      m.ret,
			Strings:     slices.Clone(m.strings),
		}
		if m.code != nil {
			md.Code = &CodeDef{Registers: m.code.registers, Instructions: cloneInstructions(m.code.insns)}
		}
		def.Methods = append(def.Methods, md)
	}
	return def
}

// Freeze builds an immutable class from the current state. The result is
// validated, so a malformed edit surfaces here at the latest.
func (mc *MutableClass) Freeze() (*ClassUnit, error) {
	return NewClass(mc.Def())
}

// MutableMethod is an editable method owned by a MutableClass.
type MutableMethod struct {
	class   string
	name    string
	flags   AccessFlags
	params  []string
	ret     string
	strings []string
	code    *mutableCode
}

type mutableCode struct {
	registers int
	insns     []Instruction
}

func (m *MutableMethod) clone() *MutableMethod {
	out := *m
	out.params = slices.Clone(m.params)
	out.strings = slices.Clone(m.strings)
	if m.code != nil {
		out.code = &mutableCode{registers: m.code.registers, insns: cloneInstructions(m.code.insns)}
	}
	return &out
}

func (m *MutableMethod) DefiningClass() string        { return m.class }
func (m *MutableMethod) Name() string                 { return m.name }
func (m *MutableMethod) AccessFlags() AccessFlags     { return m.flags }
func (m *MutableMethod) SetAccessFlags(f AccessFlags) { m.flags = f }
func (m *MutableMethod) Parameters() []string         { return slices.Clone(m.params) }
func (m *MutableMethod) ReturnType() string           { return m.ret }
func (m *MutableMethod) Descriptor() string           { return MethodDescriptor(m.params, m.ret) }

func (m *MutableMethod) Ref() MethodRef {
	return MethodRef{Class: m.class, Name: m.name, Parameters: slices.Clone(m.params), Return: m.ret}
}

func (m *MutableMethod) String() string { return m.Ref().String() }

func (m *MutableMethod) HasCode() bool { return m.code != nil }

// Len returns the number of instructions, 0 when there is no body.
func (m *MutableMethod) Len() int {
	if m.code == nil {
		return 0
	}
	return len(m.code.insns)
}

// At returns a copy of the instruction at index i.
func (m *MutableMethod) At(i int) Instruction {
	return m.code.insns[i].Clone()
}

// Instructions returns a copy of the current body.
func (m *MutableMethod) Instructions() []Instruction {
	if m.code == nil {
		return nil
	}
	return cloneInstructions(m.code.insns)
}

// SetInstructions replaces the whole body. Callers normally go through the
// editor package, which keeps branch targets consistent.
func (m *MutableMethod) SetInstructions(insns []Instruction) error {
	if m.code == nil {
		return errz.New(errz.InvalidEdit, m.String(), "method has no instruction block")
	}
	m.code.insns = cloneInstructions(insns)
	return nil
}

func (m *MutableMethod) Registers() int {
	if m.code == nil {
		return 0
	}
	return m.code.registers
}

// EnsureRegisters grows the register frame to at least n. The frame has no
// separate parameter area, so growing it is only safe when the code that
// reads incoming parameters is no longer reachable.
func (m *MutableMethod) EnsureRegisters(n int) {
	if m.code != nil && m.code.registers < n {
		m.code.registers = n
	}
}

func (m *MutableMethod) HasString(s string) bool {
	if slices.Contains(m.strings, s) {
		return true
	}
	if m.code == nil {
		return false
	}
	return slices.Contains(blockStrings(m.code.insns), s)
}

func (m *MutableMethod) Opcodes() []Opcode {
	if m.code == nil {
		return nil
	}
	return opcodesOf(m.code.insns)
}

// MutableField is an editable field owned by a MutableClass.
type MutableField struct {
	class string
	name  string
	flags AccessFlags
	typ   string
}

func (f *MutableField) DefiningClass() string        { return f.class }
func (f *MutableField) Name() string                 { return f.name }
func (f *MutableField) AccessFlags() AccessFlags     { return f.flags }
func (f *MutableField) SetAccessFlags(a AccessFlags) { f.flags = a }
func (f *MutableField) Type() string                 { return f.typ }

func (f *MutableField) Ref() FieldRef {
	return FieldRef{Class: f.class, Name: f.name, Type: f.typ}
}

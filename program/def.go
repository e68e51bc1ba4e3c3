package program

import (
	"fmt"
	"slices"
	"sort"

	"github.com/dhamidi/dexpatch/errz"
)

// ClassDef is the plain-data form of a class, used to build units and to
// exchange them with loaders and writers.
type ClassDef struct {
	Name        string      `cbor:"name"`
	AccessFlags AccessFlags `cbor:"flags"`
	SuperClass  string      `cbor:"super,omitempty"`
	Interfaces  []string    `cbor:"interfaces,omitempty"`
	// Strings lists literals referenced by the class that are not visible
	// in any method body, e.g. constant-pool entries of class-file inputs.
	Strings []string    `cbor:"strings,omitempty"`
	Fields  []FieldDef  `cbor:"fields,omitempty"`
	Methods []MethodDef `cbor:"methods,omitempty"`
}

type FieldDef struct {
	Name        string      `cbor:"name"`
	AccessFlags AccessFlags `cbor:"flags"`
	Type        string      `cbor:"type"`
}

type MethodDef struct {
	Name        string      `cbor:"name"`
	AccessFlags AccessFlags `cbor:"flags"`
	Parameters  []string    `cbor:"params,omitempty"`
	Return      string      `cbor:"ret"`
	// Code is nil for abstract and native methods.
	Code *CodeDef `cbor:"code,omitempty"`
	// Strings lists literals the body references when Code is unavailable.
	Strings []string `cbor:"strings,omitempty"`
}

type CodeDef struct {
	Registers    int           `cbor:"registers"`
	Instructions []Instruction `cbor:"insns"`
}

// NewClass builds an immutable class from def. The definition is copied;
// later changes to def are not observed.
func NewClass(def ClassDef) (*ClassUnit, error) {
	if td := ParseType(def.Name); td == nil || td.ClassName == "" || td.IsArray() {
		return nil, errz.New(errz.Invalid, def.Name, "class name must be a class descriptor")
	}

	c := &ClassUnit{
		name:       def.Name,
		flags:      def.AccessFlags,
		super:      def.SuperClass,
		interfaces: slices.Clone(def.Interfaces),
	}

	all := make(map[string]struct{})
	for _, s := range def.Strings {
		all[s] = struct{}{}
	}

	for _, fd := range def.Fields {
		if fd.Name == "" || ParseType(fd.Type) == nil {
			return nil, errz.New(errz.Invalid, def.Name, "malformed field %q of type %q", fd.Name, fd.Type)
		}
		c.fields = append(c.fields, &FieldUnit{
			class: def.Name,
			name:  fd.Name,
			flags: fd.AccessFlags,
			typ:   fd.Type,
		})
	}

	for _, md := range def.Methods {
		m, err := newMethod(def.Name, md)
		if err != nil {
			return nil, err
		}
		for s := range m.strings {
			all[s] = struct{}{}
		}
		c.methods = append(c.methods, m)
	}

	c.strings = all
	return c, nil
}

func newMethod(class string, md MethodDef) (*MethodUnit, error) {
	subject := class + "->" + md.Name + MethodDescriptor(md.Parameters, md.Return)
	if md.Name == "" {
		return nil, errz.New(errz.Invalid, class, "method without name")
	}
	for _, p := range md.Parameters {
		if ParseType(p) == nil {
			return nil, errz.New(errz.Invalid, subject, "malformed parameter type %q", p)
		}
	}
	if md.Return != "V" && ParseType(md.Return) == nil {
		return nil, errz.New(errz.Invalid, subject, "malformed return type %q", md.Return)
	}

	m := &MethodUnit{
		class:   class,
		name:    md.Name,
		flags:   md.AccessFlags,
		params:  slices.Clone(md.Parameters),
		ret:     md.Return,
		strings: make(map[string]struct{}),
	}
	for _, s := range md.Strings {
		m.strings[s] = struct{}{}
	}

	if md.Code != nil {
		insns := cloneInstructions(md.Code.Instructions)
		if err := validateBlock(insns); err != nil {
			return nil, fmt.Errorf("%s: %w", subject, err)
		}
		m.code = &InstructionBlock{registers: md.Code.Registers, insns: insns}
		for _, s := range blockStrings(insns) {
			m.strings[s] = struct{}{}
		}
	}
	return m, nil
}

// Def returns the plain-data form of c.
func (c *ClassUnit) Def() ClassDef {
	def := ClassDef{
		Name:        c.name,
		AccessFlags: c.flags,
		SuperClass:  c.super,
		Interfaces:  slices.Clone(c.interfaces),
	}

	// Only strings not derivable from a method body are carried over.
	derived := make(map[string]struct{})
	for _, m := range c.methods {
		def.Methods = append(def.Methods, m.def())
		for s := range m.strings {
			derived[s] = struct{}{}
		}
	}
	for s := range c.strings {
		if _, ok := derived[s]; !ok {
			def.Strings = append(def.Strings, s)
		}
	}
	sort.Strings(def.Strings)

	for _, f := range c.fields {
		def.Fields = append(def.Fields, FieldDef{Name: f.name, AccessFlags: f.flags, Type: f.typ})
	}
	return def
}

func (m *MethodUnit) def() MethodDef {
	md := MethodDef{
		Name:        m.name,
		AccessFlags: m.flags,
		Parameters:  slices.Clone(m.params),
		Return:      m.ret,
	}
	if m.code != nil {
		md.Code = &CodeDef{Registers: m.code.registers, Instructions: cloneInstructions(m.code.insns)}
		code := make(map[string]struct{})
		for _, s := range blockStrings(m.code.insns) {
			code[s] = struct{}{}
		}
		for s := range m.strings {
			if _, ok := code[s]; !ok {
				md.Strings = append(md.Strings, s)
			}
		}
	} else {
		for s := range m.strings {
			md.Strings = append(md.Strings, s)
		}
	}
	sort.Strings(md.Strings)
	return md
}

func cloneInstructions(insns []Instruction) []Instruction {
	if insns == nil {
		return []Instruction{}
	}
	out := make([]Instruction, len(insns))
	for i, in := range insns {
		out[i] = in.Clone()
	}
	return out
}

func blockStrings(insns []Instruction) []string {
	var out []string
	for _, in := range insns {
		if in.Ref.Kind == RefString {
			out = append(out, in.Ref.Value)
		}
	}
	return out
}

// validateBlock checks operand shapes and that every branch lands inside
// the block.
func validateBlock(insns []Instruction) error {
	for i, in := range insns {
		if err := in.Validate(); err != nil {
			return fmt.Errorf("instruction %d: %w", i, err)
		}
		if in.HasTarget() && in.Target >= len(insns) {
			return errz.New(errz.Invalid, fmt.Sprintf("instruction %d", i), "branch target %d outside block of %d", in.Target, len(insns))
		}
	}
	return nil
}

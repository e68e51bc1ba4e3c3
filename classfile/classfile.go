// Package classfile reads JVM class files and jars into program classes.
// Only the parts fingerprints look at are kept: names, access flags,
// member signatures and string constants. Method bodies are scanned for
// the strings they load but not translated, so loaded methods cannot be
// edited.
package classfile

import "github.com/dhamidi/dexpatch/program"

const Magic = 0xCAFEBABE

type ClassFile struct {
	MinorVersion uint16
	MajorVersion uint16
	ConstantPool ConstantPool
	AccessFlags  program.AccessFlags
	ThisClass    uint16
	SuperClass   uint16
	Interfaces   []uint16
	Fields       []MemberInfo
	Methods      []MemberInfo
}

// MemberInfo is a field or method entry. Code holds the bytecode of the
// method's Code attribute, nil for fields and bodiless methods.
type MemberInfo struct {
	AccessFlags     program.AccessFlags
	NameIndex       uint16
	DescriptorIndex uint16
	Code            []byte
}

func (m *MemberInfo) Name(cp ConstantPool) string {
	return cp.Utf8(m.NameIndex)
}

func (m *MemberInfo) Descriptor(cp ConstantPool) string {
	return cp.Utf8(m.DescriptorIndex)
}

func (cf *ClassFile) ClassName() string {
	return cf.ConstantPool.ClassName(cf.ThisClass)
}

func (cf *ClassFile) SuperClassName() string {
	if cf.SuperClass == 0 {
		return ""
	}
	return cf.ConstantPool.ClassName(cf.SuperClass)
}

func (cf *ClassFile) InterfaceNames() []string {
	names := make([]string, len(cf.Interfaces))
	for i, idx := range cf.Interfaces {
		names[i] = cf.ConstantPool.ClassName(idx)
	}
	return names
}

// IsModule reports whether this is a module-info class, which declares no
// type.
func (cf *ClassFile) IsModule() bool {
	return cf.AccessFlags&accModule != 0
}

const accModule program.AccessFlags = 0x8000

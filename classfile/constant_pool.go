package classfile

type ConstantTag uint8

const (
	ConstantUtf8               ConstantTag = 1
	ConstantInteger            ConstantTag = 3
	ConstantFloat              ConstantTag = 4
	ConstantLong               ConstantTag = 5
	ConstantDouble             ConstantTag = 6
	ConstantClass              ConstantTag = 7
	ConstantString             ConstantTag = 8
	ConstantFieldref           ConstantTag = 9
	ConstantMethodref          ConstantTag = 10
	ConstantInterfaceMethodref ConstantTag = 11
	ConstantNameAndType        ConstantTag = 12
	ConstantMethodHandle       ConstantTag = 15
	ConstantMethodType         ConstantTag = 16
	ConstantDynamic            ConstantTag = 17
	ConstantInvokeDynamic      ConstantTag = 18
	ConstantModule             ConstantTag = 19
	ConstantPackage            ConstantTag = 20
)

// Constant is one constant pool entry. Index1 and Index2 are the entry's
// pool references (name, class, name-and-type...) in declaration order;
// numeric constants are not decoded.
type Constant struct {
	Tag    ConstantTag
	Value  string
	Index1 uint16
	Index2 uint16
}

// ConstantPool is indexed like the class file: entry i lives at cp[i-1].
// The slot following a long or double is the zero Constant.
type ConstantPool []Constant

func (cp ConstantPool) entry(index uint16, tag ConstantTag) (Constant, bool) {
	if index == 0 || int(index) > len(cp) {
		return Constant{}, false
	}
	c := cp[index-1]
	return c, c.Tag == tag
}

func (cp ConstantPool) Utf8(index uint16) string {
	c, _ := cp.entry(index, ConstantUtf8)
	return c.Value
}

// ClassName returns the internal name of a class entry, e.g.
// "java/lang/Object".
func (cp ConstantPool) ClassName(index uint16) string {
	c, ok := cp.entry(index, ConstantClass)
	if !ok {
		return ""
	}
	return cp.Utf8(c.Index1)
}

// String returns the literal of a string entry.
func (cp ConstantPool) String(index uint16) (string, bool) {
	c, ok := cp.entry(index, ConstantString)
	if !ok {
		return "", false
	}
	return cp.Utf8(c.Index1), true
}

// Strings returns every string literal in the pool, in pool order.
func (cp ConstantPool) Strings() []string {
	var out []string
	for _, c := range cp {
		if c.Tag == ConstantString {
			out = append(out, cp.Utf8(c.Index1))
		}
	}
	return out
}

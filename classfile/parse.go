package classfile

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/dhamidi/dexpatch/program"
)

type reader struct {
	r   io.Reader
	err error
}

func (r *reader) readU1() uint8 {
	if r.err != nil {
		return 0
	}
	var buf [1]byte
	_, r.err = io.ReadFull(r.r, buf[:])
	return buf[0]
}

func (r *reader) readU2() uint16 {
	if r.err != nil {
		return 0
	}
	var buf [2]byte
	_, r.err = io.ReadFull(r.r, buf[:])
	return binary.BigEndian.Uint16(buf[:])
}

func (r *reader) readU4() uint32 {
	if r.err != nil {
		return 0
	}
	var buf [4]byte
	_, r.err = io.ReadFull(r.r, buf[:])
	return binary.BigEndian.Uint32(buf[:])
}

func (r *reader) readBytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	buf := make([]byte, n)
	_, r.err = io.ReadFull(r.r, buf)
	return buf
}

func ParseFile(path string) (*ClassFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open class file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

func Parse(rd io.Reader) (*ClassFile, error) {
	r := &reader{r: rd}

	magic := r.readU4()
	if r.err != nil {
		return nil, fmt.Errorf("failed to read magic: %w", r.err)
	}
	if magic != Magic {
		return nil, fmt.Errorf("invalid magic number: 0x%X (expected 0xCAFEBABE)", magic)
	}

	cf := &ClassFile{
		MinorVersion: r.readU2(),
		MajorVersion: r.readU2(),
	}
	constantPoolCount := r.readU2()
	if r.err != nil {
		return nil, fmt.Errorf("failed to read header: %w", r.err)
	}
	if constantPoolCount == 0 {
		return nil, fmt.Errorf("empty constant pool")
	}

	cf.ConstantPool = make(ConstantPool, constantPoolCount-1)
	for i := uint16(1); i < constantPoolCount; i++ {
		entry, wide, err := readConstant(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read constant pool entry %d: %w", i, err)
		}
		cf.ConstantPool[i-1] = entry
		if wide {
			i++
		}
	}

	cf.AccessFlags = program.AccessFlags(r.readU2())
	cf.ThisClass = r.readU2()
	cf.SuperClass = r.readU2()

	interfacesCount := r.readU2()
	cf.Interfaces = make([]uint16, interfacesCount)
	for i := range cf.Interfaces {
		cf.Interfaces[i] = r.readU2()
	}
	if r.err != nil {
		return nil, fmt.Errorf("failed to read class info: %w", r.err)
	}

	var err error
	if cf.Fields, err = readMembers(r, cf.ConstantPool); err != nil {
		return nil, fmt.Errorf("failed to read fields: %w", err)
	}
	if cf.Methods, err = readMembers(r, cf.ConstantPool); err != nil {
		return nil, fmt.Errorf("failed to read methods: %w", err)
	}

	attributesCount := r.readU2()
	for i := uint16(0); i < attributesCount; i++ {
		if _, _, err := readAttribute(r, cf.ConstantPool); err != nil {
			return nil, fmt.Errorf("failed to read attribute %d: %w", i, err)
		}
	}
	if r.err != nil {
		return nil, fmt.Errorf("failed to read attributes: %w", r.err)
	}
	return cf, nil
}

// readConstant reads one pool entry. wide is set for longs and doubles,
// which occupy two slots.
func readConstant(r *reader) (c Constant, wide bool, err error) {
	c.Tag = ConstantTag(r.readU1())
	switch c.Tag {
	case ConstantUtf8:
		length := r.readU2()
		c.Value = decodeModifiedUtf8(r.readBytes(int(length)))
	case ConstantInteger, ConstantFloat:
		r.readU4()
	case ConstantLong, ConstantDouble:
		r.readU4()
		r.readU4()
		wide = true
	case ConstantClass, ConstantString, ConstantMethodType, ConstantModule, ConstantPackage:
		c.Index1 = r.readU2()
	case ConstantFieldref, ConstantMethodref, ConstantInterfaceMethodref,
		ConstantNameAndType, ConstantDynamic, ConstantInvokeDynamic:
		c.Index1 = r.readU2()
		c.Index2 = r.readU2()
	case ConstantMethodHandle:
		c.Index1 = uint16(r.readU1())
		c.Index2 = r.readU2()
	default:
		if r.err == nil {
			return c, false, fmt.Errorf("unknown constant pool tag: %d", c.Tag)
		}
	}
	return c, wide, r.err
}

func readMembers(r *reader, cp ConstantPool) ([]MemberInfo, error) {
	count := r.readU2()
	if r.err != nil {
		return nil, r.err
	}
	members := make([]MemberInfo, count)
	for i := range members {
		m := &members[i]
		m.AccessFlags = program.AccessFlags(r.readU2())
		m.NameIndex = r.readU2()
		m.DescriptorIndex = r.readU2()

		attributesCount := r.readU2()
		for j := uint16(0); j < attributesCount; j++ {
			name, info, err := readAttribute(r, cp)
			if err != nil {
				return nil, fmt.Errorf("member %d: %w", i, err)
			}
			if name == "Code" {
				if m.Code, err = codeBytes(info); err != nil {
					return nil, fmt.Errorf("member %d: %w", i, err)
				}
			}
		}
		if r.err != nil {
			return nil, r.err
		}
	}
	return members, nil
}

func readAttribute(r *reader, cp ConstantPool) (string, []byte, error) {
	nameIndex := r.readU2()
	length := r.readU4()
	info := r.readBytes(int(length))
	if r.err != nil {
		return "", nil, r.err
	}
	return cp.Utf8(nameIndex), info, nil
}

// codeBytes extracts the bytecode from a Code attribute: max_stack (2),
// max_locals (2), code_length (4), code.
func codeBytes(info []byte) ([]byte, error) {
	if len(info) < 8 {
		return nil, fmt.Errorf("truncated Code attribute")
	}
	n := binary.BigEndian.Uint32(info[4:8])
	if uint64(len(info)) < 8+uint64(n) {
		return nil, fmt.Errorf("Code attribute claims %d bytes of bytecode, has %d", n, len(info)-8)
	}
	return info[8 : 8+n], nil
}

func decodeModifiedUtf8(bytes []byte) string {
	runes := make([]rune, 0, len(bytes))
	i := 0
	for i < len(bytes) {
		b := bytes[i]
		switch {
		case b&0x80 == 0:
			runes = append(runes, rune(b))
			i++
		case b&0xE0 == 0xC0 && i+1 < len(bytes):
			runes = append(runes, rune(b&0x1F)<<6|rune(bytes[i+1]&0x3F))
			i += 2
		case b&0xF0 == 0xE0 && i+2 < len(bytes):
			r := rune(b&0x0F)<<12 | rune(bytes[i+1]&0x3F)<<6 | rune(bytes[i+2]&0x3F)
			if r >= 0xD800 && r <= 0xDBFF && i+5 < len(bytes) && bytes[i+3] == 0xED {
				low := rune(bytes[i+3]&0x0F)<<12 | rune(bytes[i+4]&0x3F)<<6 | rune(bytes[i+5]&0x3F)
				if low >= 0xDC00 && low <= 0xDFFF {
					runes = append(runes, 0x10000+((r-0xD800)<<10)+(low-0xDC00))
					i += 6
					continue
				}
			}
			runes = append(runes, r)
			i += 3
		default:
			runes = append(runes, rune(b))
			i++
		}
	}
	return string(runes)
}

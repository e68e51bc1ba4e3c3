package program

import "strings"

// TypeDesc is a parsed type descriptor such as "I", "[Ljava/lang/String;".
type TypeDesc struct {
	BaseType   string
	ClassName  string
	ArrayDepth int
}

func (td *TypeDesc) String() string {
	var sb strings.Builder
	if td.BaseType != "" {
		sb.WriteString(td.BaseType)
	} else if td.ClassName != "" {
		sb.WriteString(strings.ReplaceAll(td.ClassName, "/", "."))
	}
	for i := 0; i < td.ArrayDepth; i++ {
		sb.WriteString("[]")
	}
	return sb.String()
}

func (td *TypeDesc) IsArray() bool {
	return td.ArrayDepth > 0
}

func (td *TypeDesc) IsPrimitive() bool {
	return td.BaseType != "" && td.ArrayDepth == 0
}

func (td *TypeDesc) IsReference() bool {
	return td.ClassName != "" || td.ArrayDepth > 0
}

// IsWide reports whether values of this type occupy a register pair.
func (td *TypeDesc) IsWide() bool {
	return td.ArrayDepth == 0 && (td.BaseType == "long" || td.BaseType == "double")
}

// ParseType parses a single type descriptor. It returns nil for anything
// that is not exactly one well formed descriptor.
func ParseType(desc string) *TypeDesc {
	td, n := parseType(desc, 0)
	if td == nil || n != len(desc) {
		return nil
	}
	return td
}

// ParseMethodDescriptor splits "(ILjava/lang/String;)V" into its parameter
// and return descriptors.
func ParseMethodDescriptor(desc string) (params []string, ret string, ok bool) {
	if len(desc) == 0 || desc[0] != '(' {
		return nil, "", false
	}

	i := 1
	for i < len(desc) && desc[i] != ')' {
		td, consumed := parseType(desc, i)
		if td == nil {
			return nil, "", false
		}
		params = append(params, desc[i:i+consumed])
		i += consumed
	}

	if i >= len(desc) || desc[i] != ')' {
		return nil, "", false
	}
	i++

	ret = desc[i:]
	if ret != "V" && ParseType(ret) == nil {
		return nil, "", false
	}
	return params, ret, true
}

// MethodDescriptor joins parameter and return descriptors.
func MethodDescriptor(params []string, ret string) string {
	var sb strings.Builder
	sb.WriteByte('(')
	for _, p := range params {
		sb.WriteString(p)
	}
	sb.WriteByte(')')
	sb.WriteString(ret)
	return sb.String()
}

func parseType(desc string, start int) (*TypeDesc, int) {
	if start >= len(desc) {
		return nil, 0
	}

	td := &TypeDesc{}
	i := start

	for i < len(desc) && desc[i] == '[' {
		td.ArrayDepth++
		i++
	}

	if i >= len(desc) {
		return nil, 0
	}

	switch desc[i] {
	case 'B':
		td.BaseType = "byte"
	case 'C':
		td.BaseType = "char"
	case 'D':
		td.BaseType = "double"
	case 'F':
		td.BaseType = "float"
	case 'I':
		td.BaseType = "int"
	case 'J':
		td.BaseType = "long"
	case 'S':
		td.BaseType = "short"
	case 'Z':
		td.BaseType = "boolean"
	case 'L':
		semicolon := strings.IndexByte(desc[i:], ';')
		if semicolon <= 1 {
			return nil, 0
		}
		td.ClassName = desc[i+1 : i+semicolon]
		return td, i - start + semicolon + 1
	default:
		return nil, 0
	}
	return td, i - start + 1
}

// IsReferenceType reports whether desc names a class or array type.
func IsReferenceType(desc string) bool {
	return strings.HasPrefix(desc, "L") || strings.HasPrefix(desc, "[")
}

// ClassDescriptor converts "com.example.Foo" or "com/example/Foo" into
// "Lcom/example/Foo;". Descriptors are returned unchanged.
func ClassDescriptor(name string) string {
	if strings.HasPrefix(name, "L") && strings.HasSuffix(name, ";") {
		return name
	}
	return "L" + strings.ReplaceAll(name, ".", "/") + ";"
}

// InternalName converts "Lcom/example/Foo;" into "com/example/Foo".
func InternalName(desc string) string {
	if strings.HasPrefix(desc, "L") && strings.HasSuffix(desc, ";") {
		return desc[1 : len(desc)-1]
	}
	return desc
}

// SourceName converts "Lcom/example/Foo;" into "com.example.Foo".
func SourceName(desc string) string {
	return strings.ReplaceAll(InternalName(desc), "/", ".")
}

// PackageOf returns the package part of a class descriptor, in internal
// form ("com/example"), or "" for the default package.
func PackageOf(desc string) string {
	name := InternalName(desc)
	slash := strings.LastIndexByte(name, '/')
	if slash == -1 {
		return ""
	}
	return name[:slash]
}

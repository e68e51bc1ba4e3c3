// Package predicate provides reusable, side-effect free predicates over
// compiled units. Predicates compose by conjunction.
package predicate

import (
	"slices"
	"strings"

	"github.com/dhamidi/dexpatch/program"
)

// Method matches a method in the context of its defining class.
type Method func(m program.MethodView, c program.ClassView) bool

// Class matches a class.
type Class func(c program.ClassView) bool

// Field matches a field.
type Field func(f program.FieldView) bool

// Flags reports whether all required bits are set and no forbidden bit is.
func Flags(flags, required, forbidden program.AccessFlags) bool {
	return flags.Has(required) && !flags.HasAny(forbidden)
}

func MethodFlags(required, forbidden program.AccessFlags) Method {
	return func(m program.MethodView, _ program.ClassView) bool {
		return Flags(m.AccessFlags(), required, forbidden)
	}
}

func ClassFlags(required, forbidden program.AccessFlags) Class {
	return func(c program.ClassView) bool {
		return Flags(c.AccessFlags(), required, forbidden)
	}
}

func FieldFlags(required, forbidden program.AccessFlags) Field {
	return func(f program.FieldView) bool {
		return Flags(f.AccessFlags(), required, forbidden)
	}
}

// MethodStrings matches methods whose body references every literal. Each
// literal must be an exact member of the method's constants.
func MethodStrings(literals ...string) Method {
	return func(m program.MethodView, _ program.ClassView) bool {
		for _, s := range literals {
			if !m.HasString(s) {
				return false
			}
		}
		return true
	}
}

// ClassStrings matches classes referencing every literal.
func ClassStrings(literals ...string) Class {
	return func(c program.ClassView) bool {
		for _, s := range literals {
			if !c.HasString(s) {
				return false
			}
		}
		return true
	}
}

func MethodName(name string) Method {
	return func(m program.MethodView, _ program.ClassView) bool {
		return m.Name() == name
	}
}

// Parameters matches methods with exactly len(prefixes) parameters where
// each parameter descriptor starts with the corresponding prefix. "L"
// matches any object type, a full descriptor matches exactly.
func Parameters(prefixes ...string) Method {
	return func(m program.MethodView, _ program.ClassView) bool {
		params := m.Parameters()
		if len(params) != len(prefixes) {
			return false
		}
		for i, p := range prefixes {
			if !strings.HasPrefix(params[i], p) {
				return false
			}
		}
		return true
	}
}

func ParameterCount(n int) Method {
	return func(m program.MethodView, _ program.ClassView) bool {
		return len(m.Parameters()) == n
	}
}

// Returns matches methods whose return descriptor starts with prefix.
func Returns(prefix string) Method {
	return func(m program.MethodView, _ program.ClassView) bool {
		return strings.HasPrefix(m.ReturnType(), prefix)
	}
}

// ReturnsReference matches methods returning a class or array type other
// than any of the excluded descriptors.
func ReturnsReference(excluded ...string) Method {
	return func(m program.MethodView, _ program.ClassView) bool {
		ret := m.ReturnType()
		return program.IsReferenceType(ret) && !slices.Contains(excluded, ret)
	}
}

// Opcodes matches methods whose body contains ops as a contiguous run.
// Methods without a body never match.
func Opcodes(ops ...program.Opcode) Method {
	return func(m program.MethodView, _ program.ClassView) bool {
		body := m.Opcodes()
		if body == nil {
			return false
		}
		return indexOpcodes(body, ops) >= 0
	}
}

func indexOpcodes(body, ops []program.Opcode) int {
	if len(ops) == 0 {
		return 0
	}
	for i := 0; i+len(ops) <= len(body); i++ {
		if slices.Equal(body[i:i+len(ops)], ops) {
			return i
		}
	}
	return -1
}

// InClass lifts a class predicate to a method predicate on the defining
// class.
func InClass(p Class) Method {
	return func(_ program.MethodView, c program.ClassView) bool {
		return p(c)
	}
}

func ClassName(name string) Class {
	return func(c program.ClassView) bool {
		return c.Name() == name
	}
}

// ClassNameSuffix matches classes whose descriptor ends with suffix, e.g.
// "AuthUser;".
func ClassNameSuffix(suffix string) Class {
	return func(c program.ClassView) bool {
		return strings.HasSuffix(c.Name(), suffix)
	}
}

// InPackage matches classes inside pkg or one of its sub-packages. pkg may
// be given as "com.example" or "com/example".
func InPackage(pkg string) Class {
	pkg = strings.Trim(strings.ReplaceAll(pkg, ".", "/"), "/")
	return func(c program.ClassView) bool {
		return WithinPackage(c.Name(), pkg)
	}
}

// WithinPackage reports whether class descriptor name lies in pkg (internal
// form) or below it.
func WithinPackage(name, pkg string) bool {
	if pkg == "" {
		return true
	}
	own := program.PackageOf(name)
	return own == pkg || strings.HasPrefix(own, pkg+"/")
}

func FieldName(name string) Field {
	return func(f program.FieldView) bool {
		return f.Name() == name
	}
}

func FieldType(typ string) Field {
	return func(f program.FieldView) bool {
		return f.Type() == typ
	}
}

// OwnType matches fields whose type is their defining class, the shape of
// enum constants and singletons.
func OwnType() Field {
	return func(f program.FieldView) bool {
		return f.Type() == f.DefiningClass()
	}
}

func All(ps ...Method) Method {
	return func(m program.MethodView, c program.ClassView) bool {
		for _, p := range ps {
			if p != nil && !p(m, c) {
				return false
			}
		}
		return true
	}
}

func AllClass(ps ...Class) Class {
	return func(c program.ClassView) bool {
		for _, p := range ps {
			if p != nil && !p(c) {
				return false
			}
		}
		return true
	}
}

func AllField(ps ...Field) Field {
	return func(f program.FieldView) bool {
		for _, p := range ps {
			if p != nil && !p(f) {
				return false
			}
		}
		return true
	}
}

func Not(p Method) Method {
	return func(m program.MethodView, c program.ClassView) bool {
		return !p(m, c)
	}
}

package program

import "strings"

type AccessFlags uint32

const (
	AccPublic               AccessFlags = 0x0001
	AccPrivate              AccessFlags = 0x0002
	AccProtected            AccessFlags = 0x0004
	AccStatic               AccessFlags = 0x0008
	AccFinal                AccessFlags = 0x0010
	AccSynchronized         AccessFlags = 0x0020
	AccVolatile             AccessFlags = 0x0040
	AccBridge               AccessFlags = 0x0040
	AccTransient            AccessFlags = 0x0080
	AccVarargs              AccessFlags = 0x0080
	AccNative               AccessFlags = 0x0100
	AccInterface            AccessFlags = 0x0200
	AccAbstract             AccessFlags = 0x0400
	AccStrict               AccessFlags = 0x0800
	AccSynthetic            AccessFlags = 0x1000
	AccAnnotation           AccessFlags = 0x2000
	AccEnum                 AccessFlags = 0x4000
	AccConstructor          AccessFlags = 0x10000
	AccDeclaredSynchronized AccessFlags = 0x20000
)

// Has reports whether every bit of mask is set.
func (f AccessFlags) Has(mask AccessFlags) bool { return f&mask == mask }

// HasAny reports whether at least one bit of mask is set.
func (f AccessFlags) HasAny(mask AccessFlags) bool { return f&mask != 0 }

func (f AccessFlags) IsPublic() bool      { return f&AccPublic != 0 }
func (f AccessFlags) IsPrivate() bool     { return f&AccPrivate != 0 }
func (f AccessFlags) IsProtected() bool   { return f&AccProtected != 0 }
func (f AccessFlags) IsStatic() bool      { return f&AccStatic != 0 }
func (f AccessFlags) IsFinal() bool       { return f&AccFinal != 0 }
func (f AccessFlags) IsNative() bool      { return f&AccNative != 0 }
func (f AccessFlags) IsInterface() bool   { return f&AccInterface != 0 }
func (f AccessFlags) IsAbstract() bool    { return f&AccAbstract != 0 }
func (f AccessFlags) IsSynthetic() bool   { return f&AccSynthetic != 0 }
func (f AccessFlags) IsAnnotation() bool  { return f&AccAnnotation != 0 }
func (f AccessFlags) IsEnum() bool        { return f&AccEnum != 0 }
func (f AccessFlags) IsConstructor() bool { return f&AccConstructor != 0 }

var flagNames = []struct {
	flag AccessFlags
	name string
}{
	{AccPublic, "public"},
	{AccPrivate, "private"},
	{AccProtected, "protected"},
	{AccStatic, "static"},
	{AccFinal, "final"},
	{AccSynchronized, "synchronized"},
	{AccNative, "native"},
	{AccInterface, "interface"},
	{AccAbstract, "abstract"},
	{AccStrict, "strict"},
	{AccSynthetic, "synthetic"},
	{AccAnnotation, "annotation"},
	{AccEnum, "enum"},
	{AccConstructor, "constructor"},
}

// String renders the flags as space separated keywords. Bits shared between
// member kinds (volatile/bridge, transient/varargs) are not named.
func (f AccessFlags) String() string {
	var parts []string
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			parts = append(parts, fn.name)
		}
	}
	return strings.Join(parts, " ")
}

// ParseAccessFlag returns the flag for a keyword such as "public".
func ParseAccessFlag(name string) (AccessFlags, bool) {
	switch strings.ToLower(name) {
	case "volatile":
		return AccVolatile, true
	case "bridge":
		return AccBridge, true
	case "transient":
		return AccTransient, true
	case "varargs":
		return AccVarargs, true
	case "declared-synchronized":
		return AccDeclaredSynchronized, true
	}
	for _, fn := range flagNames {
		if fn.name == strings.ToLower(name) {
			return fn.flag, true
		}
	}
	return 0, false
}

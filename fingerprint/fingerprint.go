// Package fingerprint locates classes and methods by structural
// description. Resolution never mutates the program and requires exactly
// one match: zero matches fail with errz.NotFound, more than one with
// errz.Ambiguous.
package fingerprint

import (
	"strings"

	"github.com/dhamidi/dexpatch/errz"
	"github.com/dhamidi/dexpatch/predicate"
	"github.com/dhamidi/dexpatch/program"
)

// Scope narrows a search. Class is searched first; when it yields no match
// the search falls back to every class in Package (all classes when
// Package is empty).
type Scope struct {
	Class   string
	Package string
}

// Fingerprint is a named bundle of predicates. All criteria that are set
// must hold. Parameters, Returns, Opcodes and Custom only apply to method
// resolution.
type Fingerprint struct {
	Name string

	// Strings must all be referenced by the unit being matched.
	Strings []string

	// AccessFlags must all be set, ForbiddenFlags must all be clear.
	AccessFlags    program.AccessFlags
	ForbiddenFlags program.AccessFlags

	// Parameters, when non-nil, fixes the parameter count and gives a
	// descriptor prefix per parameter.
	Parameters []string
	// Returns is a return descriptor prefix.
	Returns string
	// Opcodes must appear as a contiguous run in the method body.
	Opcodes []program.Opcode

	Custom      predicate.Method
	ClassCustom predicate.Class

	Scope Scope
}

func (fp *Fingerprint) String() string {
	if fp.Name != "" {
		return fp.Name
	}
	return "anonymous fingerprint"
}

func (fp *Fingerprint) hasMethodCriteria() bool {
	return fp.Parameters != nil || fp.Returns != "" || len(fp.Opcodes) > 0 || fp.Custom != nil
}

// MethodPredicate compiles the fingerprint into a single method predicate.
func (fp *Fingerprint) MethodPredicate() predicate.Method {
	ps := []predicate.Method{
		predicate.MethodFlags(fp.AccessFlags, fp.ForbiddenFlags),
	}
	if len(fp.Strings) > 0 {
		ps = append(ps, predicate.MethodStrings(fp.Strings...))
	}
	if fp.Parameters != nil {
		ps = append(ps, predicate.Parameters(fp.Parameters...))
	}
	if fp.Returns != "" {
		ps = append(ps, predicate.Returns(fp.Returns))
	}
	if len(fp.Opcodes) > 0 {
		ps = append(ps, predicate.Opcodes(fp.Opcodes...))
	}
	if fp.ClassCustom != nil {
		ps = append(ps, predicate.InClass(fp.ClassCustom))
	}
	ps = append(ps, fp.Custom)
	return predicate.All(ps...)
}

// ClassPredicate compiles the class-level criteria of the fingerprint.
func (fp *Fingerprint) ClassPredicate() predicate.Class {
	ps := []predicate.Class{
		predicate.ClassFlags(fp.AccessFlags, fp.ForbiddenFlags),
	}
	if len(fp.Strings) > 0 {
		ps = append(ps, predicate.ClassStrings(fp.Strings...))
	}
	ps = append(ps, fp.ClassCustom)
	return predicate.AllClass(ps...)
}

// MethodMatch is a resolved method together with its defining class.
type MethodMatch struct {
	Class  *program.ClassUnit
	Method *program.MethodUnit
}

// ResolveMethod finds the single method matching fp.
func ResolveMethod(p *program.Program, fp *Fingerprint) (MethodMatch, error) {
	match := fp.MethodPredicate()
	candidates := func(classes func(yield func(*program.ClassUnit) bool)) func(yield func(MethodMatch) bool) {
		return func(yield func(MethodMatch) bool) {
			for c := range classes {
				for _, m := range c.Methods() {
					if !yield(MethodMatch{Class: c, Method: m}) {
						return
					}
				}
			}
		}
	}
	test := func(mm MethodMatch) bool { return match(mm.Method, mm.Class) }
	describe := func(mm MethodMatch) string { return mm.Method.String() }

	if scoped, ok := p.Lookup(fp.Scope.Class); ok {
		found, err := exactlyOne(fp.String(), candidates(only(scoped)), test, describe)
		if !errz.Is(err, errz.NotFound) {
			return found, err
		}
	}
	return exactlyOne(fp.String(), candidates(inScope(p, fp.Scope)), test, describe)
}

// ResolveClass finds the single class matching the class-level criteria of
// fp. Fingerprints carrying method-only criteria are rejected.
func ResolveClass(p *program.Program, fp *Fingerprint) (*program.ClassUnit, error) {
	if fp.hasMethodCriteria() {
		return nil, errz.New(errz.Invalid, fp.String(), "method criteria cannot resolve a class")
	}
	match := fp.ClassPredicate()
	describe := func(c *program.ClassUnit) string { return c.Name() }
	test := func(c *program.ClassUnit) bool { return match(c) }

	if scoped, ok := p.Lookup(fp.Scope.Class); ok {
		if test(scoped) {
			return scoped, nil
		}
	}
	return exactlyOne(fp.String(), inScope(p, fp.Scope), test, describe)
}

// Method finds the single method of c satisfying every predicate.
func Method(c *program.ClassUnit, ps ...predicate.Method) (*program.MethodUnit, error) {
	match := predicate.All(ps...)
	return exactlyOne(c.Name(), sliceSeq(c.Methods()),
		func(m *program.MethodUnit) bool { return match(m, c) },
		func(m *program.MethodUnit) string { return m.String() })
}

// Field finds the single field of c satisfying every predicate.
func Field(c *program.ClassUnit, ps ...predicate.Field) (*program.FieldUnit, error) {
	match := predicate.AllField(ps...)
	return exactlyOne(c.Name(), sliceSeq(c.Fields()),
		func(f *program.FieldUnit) bool { return match(f) },
		func(f *program.FieldUnit) string { return f.String() })
}

// Fields returns every field of c satisfying the predicates, in declaration
// order.
func Fields(c *program.ClassUnit, ps ...predicate.Field) []*program.FieldUnit {
	match := predicate.AllField(ps...)
	var out []*program.FieldUnit
	for _, f := range c.Fields() {
		if match(f) {
			out = append(out, f)
		}
	}
	return out
}

// Member resolves a class fingerprint and then the single method of that
// class satisfying ps.
func Member(p *program.Program, fp *Fingerprint, ps ...predicate.Method) (MethodMatch, error) {
	c, err := ResolveClass(p, fp)
	if err != nil {
		return MethodMatch{}, err
	}
	m, err := Method(c, ps...)
	if err != nil {
		return MethodMatch{}, err
	}
	return MethodMatch{Class: c, Method: m}, nil
}

// Sibling resolves the method fingerprint fp and then the single method of
// the matched method's class satisfying ps. The result may be the matched
// method itself.
func Sibling(p *program.Program, fp *Fingerprint, ps ...predicate.Method) (MethodMatch, error) {
	anchor, err := ResolveMethod(p, fp)
	if err != nil {
		return MethodMatch{}, err
	}
	m, err := Method(anchor.Class, ps...)
	if err != nil {
		return MethodMatch{}, err
	}
	return MethodMatch{Class: anchor.Class, Method: m}, nil
}

// exactlyOne walks seq and stops as soon as a second match is seen.
func exactlyOne[T any](subject string, seq func(yield func(T) bool), match func(T) bool, describe func(T) string) (T, error) {
	var (
		found   T
		count   int
		matched []string
	)
	for item := range seq {
		if !match(item) {
			continue
		}
		count++
		matched = append(matched, describe(item))
		if count == 1 {
			found = item
			continue
		}
		break
	}

	var zero T
	switch count {
	case 0:
		return zero, errz.New(errz.NotFound, subject, "no unit matches")
	case 1:
		return found, nil
	default:
		return zero, errz.New(errz.Ambiguous, subject, "matches %s", strings.Join(matched, " and "))
	}
}

func only(c *program.ClassUnit) func(yield func(*program.ClassUnit) bool) {
	return func(yield func(*program.ClassUnit) bool) {
		yield(c)
	}
}

func inScope(p *program.Program, s Scope) func(yield func(*program.ClassUnit) bool) {
	pkg := strings.Trim(strings.ReplaceAll(s.Package, ".", "/"), "/")
	return func(yield func(*program.ClassUnit) bool) {
		for _, c := range p.Classes() {
			if !predicate.WithinPackage(c.Name(), pkg) {
				continue
			}
			if !yield(c) {
				return
			}
		}
	}
}

func sliceSeq[T any](items []T) func(yield func(T) bool) {
	return func(yield func(T) bool) {
		for _, item := range items {
			if !yield(item) {
				return
			}
		}
	}
}

// Package program models a compiled, class-based program: immutable class,
// method and field units shared by every reader, and exclusively owned
// mutable copies that edits are applied to.
package program

import (
	"github.com/dhamidi/dexpatch/errz"
)

// Program is an ordered set of classes with unique names. It is never
// mutated after construction.
type Program struct {
	classes []*ClassUnit
	byName  map[string]*ClassUnit
}

// New builds a program. Class names must be unique.
func New(classes ...*ClassUnit) (*Program, error) {
	p := &Program{
		classes: make([]*ClassUnit, 0, len(classes)),
		byName:  make(map[string]*ClassUnit, len(classes)),
	}
	for _, c := range classes {
		if _, dup := p.byName[c.name]; dup {
			return nil, errz.New(errz.Invalid, c.name, "duplicate class name")
		}
		p.byName[c.name] = c
		p.classes = append(p.classes, c)
	}
	return p, nil
}

// FromDefs builds a program from plain class definitions.
func FromDefs(defs []ClassDef) (*Program, error) {
	classes := make([]*ClassUnit, 0, len(defs))
	for _, def := range defs {
		c, err := NewClass(def)
		if err != nil {
			return nil, err
		}
		classes = append(classes, c)
	}
	return New(classes...)
}

// Classes returns the classes in program order.
func (p *Program) Classes() []*ClassUnit {
	out := make([]*ClassUnit, len(p.classes))
	copy(out, p.classes)
	return out
}

func (p *Program) Len() int { return len(p.classes) }

// Lookup finds a class by its descriptor.
func (p *Program) Lookup(name string) (*ClassUnit, bool) {
	c, ok := p.byName[name]
	return c, ok
}

// Contains reports whether c is the unit stored in p under its name.
func (p *Program) Contains(c *ClassUnit) bool {
	return c != nil && p.byName[c.name] == c
}

// Replacement pairs an original class with the unit that supersedes it.
type Replacement struct {
	Original    *ClassUnit
	Replacement *ClassUnit
}

// Splice returns a new program in which every original is swapped for its
// replacement at the same position. Classes not named in repls are shared
// with p unchanged.
func (p *Program) Splice(repls []Replacement) (*Program, error) {
	swap := make(map[*ClassUnit]*ClassUnit, len(repls))
	for _, r := range repls {
		if r.Original == nil || r.Replacement == nil {
			return nil, errz.New(errz.Invalid, "splice", "incomplete replacement")
		}
		if !p.Contains(r.Original) {
			return nil, errz.New(errz.NotFound, r.Original.Name(), "replaced class is not part of the program")
		}
		if r.Replacement.name != r.Original.name {
			return nil, errz.New(errz.Invalid, r.Original.name, "replacement renames class to %s", r.Replacement.name)
		}
		swap[r.Original] = r.Replacement
	}

	classes := make([]*ClassUnit, len(p.classes))
	for i, c := range p.classes {
		if r, ok := swap[c]; ok {
			classes[i] = r
		} else {
			classes[i] = c
		}
	}
	return New(classes...)
}

// Package proxy hands out copy-on-write editable classes. Each original
// class is copied at most once per session; every later request for the
// same class returns the same handle so edits from several steps
// accumulate.
package proxy

import (
	"github.com/tliron/commonlog"

	"github.com/dhamidi/dexpatch/errz"
	"github.com/dhamidi/dexpatch/predicate"
	"github.com/dhamidi/dexpatch/program"
)

var log = commonlog.GetLogger("dexpatch.proxy")

// Manager owns the mutable copies of one patching session. It is not safe
// for concurrent use.
type Manager struct {
	program *program.Program
	handles map[*program.ClassUnit]*program.MutableClass
	order   []*program.ClassUnit
}

func NewManager(p *program.Program) *Manager {
	return &Manager{
		program: p,
		handles: make(map[*program.ClassUnit]*program.MutableClass),
	}
}

// Program returns the read-only program the manager was created for.
func (m *Manager) Program() *program.Program { return m.program }

// Acquire returns the editable handle for c, copying c on first use.
func (m *Manager) Acquire(c *program.ClassUnit) (*program.MutableClass, error) {
	if h, ok := m.handles[c]; ok {
		return h, nil
	}
	if !m.program.Contains(c) {
		return nil, errz.New(errz.NotFound, className(c), "class is not part of the program")
	}
	h := c.Mutable()
	m.handles[c] = h
	m.order = append(m.order, c)
	log.Debugf("acquired mutable copy of %s", c.Name())
	return h, nil
}

// AcquireByName looks a class up by descriptor and acquires it.
func (m *Manager) AcquireByName(name string) (*program.MutableClass, error) {
	c, ok := m.program.Lookup(name)
	if !ok {
		return nil, errz.New(errz.NotFound, name, "no such class")
	}
	return m.Acquire(c)
}

// Acquired reports whether c already has a handle.
func (m *Manager) Acquired(c *program.ClassUnit) bool {
	_, ok := m.handles[c]
	return ok
}

// ResolveMethod finds the single method of h satisfying every predicate.
func (m *Manager) ResolveMethod(h *program.MutableClass, ps ...predicate.Method) (*program.MutableMethod, error) {
	match := predicate.All(ps...)
	var found *program.MutableMethod
	for _, mm := range h.Methods() {
		if !match(mm, h) {
			continue
		}
		if found != nil {
			return nil, errz.New(errz.Ambiguous, h.Name(), "matches %s and %s", found, mm)
		}
		found = mm
	}
	if found == nil {
		return nil, errz.New(errz.NotFound, h.Name(), "no method matches")
	}
	return found, nil
}

// ResolveField finds the single field of h satisfying every predicate.
func (m *Manager) ResolveField(h *program.MutableClass, ps ...predicate.Field) (*program.MutableField, error) {
	match := predicate.AllField(ps...)
	var found *program.MutableField
	for _, f := range h.Fields() {
		if !match(f) {
			continue
		}
		if found != nil {
			return nil, errz.New(errz.Ambiguous, h.Name(), "matches %s and %s", found.Ref(), f.Ref())
		}
		found = f
	}
	if found == nil {
		return nil, errz.New(errz.NotFound, h.Name(), "no field matches")
	}
	return found, nil
}

// MethodFor acquires the class defining mu and returns its editable
// counterpart.
func (m *Manager) MethodFor(mu *program.MethodUnit) (*program.MutableMethod, error) {
	h, err := m.AcquireByName(mu.DefiningClass())
	if err != nil {
		return nil, err
	}
	mm := h.Method(mu.Name(), mu.Descriptor())
	if mm == nil {
		return nil, errz.New(errz.NotFound, mu.String(), "method missing from mutable copy")
	}
	return mm, nil
}

// Replacements returns the (original, replacement) pairs for every acquired
// class, in acquisition order. Classes never acquired are not listed.
func (m *Manager) Replacements() ([]program.Replacement, error) {
	out := make([]program.Replacement, 0, len(m.order))
	for _, orig := range m.order {
		frozen, err := m.handles[orig].Freeze()
		if err != nil {
			return nil, err
		}
		out = append(out, program.Replacement{Original: orig, Replacement: frozen})
	}
	return out, nil
}

// Commit returns the program with every replacement spliced in.
func (m *Manager) Commit() (*program.Program, error) {
	repls, err := m.Replacements()
	if err != nil {
		return nil, err
	}
	return m.program.Splice(repls)
}

// Savepoint captures the state of every handle so that a failed patch can
// be undone with Restore.
type Savepoint struct {
	handles map[*program.ClassUnit]*program.MutableClass
	order   int
}

func (m *Manager) Savepoint() *Savepoint {
	sp := &Savepoint{
		handles: make(map[*program.ClassUnit]*program.MutableClass, len(m.handles)),
		order:   len(m.order),
	}
	for orig, h := range m.handles {
		sp.handles[orig] = h.Clone()
	}
	return sp
}

// Restore rolls every handle back to sp. Handles acquired after sp are
// dropped. Handle pointers obtained before Restore must not be used
// afterwards.
func (m *Manager) Restore(sp *Savepoint) {
	for _, orig := range m.order[sp.order:] {
		delete(m.handles, orig)
		log.Debugf("released mutable copy of %s", orig.Name())
	}
	m.order = m.order[:sp.order]
	for orig, h := range sp.handles {
		m.handles[orig] = h.Clone()
	}
}

func className(c *program.ClassUnit) string {
	if c == nil {
		return "<nil>"
	}
	return c.Name()
}

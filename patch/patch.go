// Package patch is the policy layer on top of the engine: a Patch resolves
// fingerprints, acquires editable classes and edits their methods. A
// Session runs a list of patches against one program and isolates
// failures so that a failing patch leaves no partial edits behind.
package patch

import (
	"slices"

	"github.com/dhamidi/dexpatch/editor"
	"github.com/dhamidi/dexpatch/errz"
	"github.com/dhamidi/dexpatch/fingerprint"
	"github.com/dhamidi/dexpatch/predicate"
	"github.com/dhamidi/dexpatch/program"
	"github.com/dhamidi/dexpatch/proxy"
)

// Patch is a named unit of edits.
type Patch struct {
	Name        string
	Description string
	// Compatible lists the application packages the patch is meant for.
	// An empty list means any package.
	Compatible []string
	Execute    func(ctx *Context) error
}

// CompatibleWith reports whether the patch applies to pkg. An empty pkg
// matches every patch.
func (p *Patch) CompatibleWith(pkg string) bool {
	if pkg == "" || len(p.Compatible) == 0 {
		return true
	}
	return slices.Contains(p.Compatible, pkg)
}

func (p *Patch) String() string { return p.Name }

// Options tune how shapes edit methods.
type Options struct {
	// Truncate drops the original body after a constant-return rewrite
	// instead of leaving it as unreachable code.
	Truncate bool
}

func DefaultOptions() Options {
	return Options{Truncate: true}
}

// Context is what a patch sees while executing: the pristine program for
// resolution and the session's proxy manager for edits.
type Context struct {
	Program *program.Program
	Proxies *proxy.Manager
	Options Options
}

// ResolveMethod resolves fp against the pristine program and returns the
// editable copy of the match.
func (c *Context) ResolveMethod(fp *fingerprint.Fingerprint) (*program.MutableMethod, error) {
	match, err := fingerprint.ResolveMethod(c.Program, fp)
	if err != nil {
		return nil, err
	}
	return c.Proxies.MethodFor(match.Method)
}

func (c *Context) ResolveClass(fp *fingerprint.Fingerprint) (*program.ClassUnit, error) {
	return fingerprint.ResolveClass(c.Program, fp)
}

// Member resolves the class fingerprint fp, then the single method of that
// class satisfying ps, and returns its editable copy.
func (c *Context) Member(fp *fingerprint.Fingerprint, ps ...predicate.Method) (*program.MutableMethod, error) {
	match, err := fingerprint.Member(c.Program, fp, ps...)
	if err != nil {
		return nil, err
	}
	return c.Proxies.MethodFor(match.Method)
}

// Sibling resolves the method fingerprint fp, then the single method of the
// same class satisfying ps, and returns its editable copy.
func (c *Context) Sibling(fp *fingerprint.Fingerprint, ps ...predicate.Method) (*program.MutableMethod, error) {
	match, err := fingerprint.Sibling(c.Program, fp, ps...)
	if err != nil {
		return nil, err
	}
	return c.Proxies.MethodFor(match.Method)
}

// Class looks a class up by descriptor.
func (c *Context) Class(name string) (*program.ClassUnit, error) {
	cu, ok := c.Program.Lookup(name)
	if !ok {
		return nil, errz.New(errz.NotFound, name, "no such class")
	}
	return cu, nil
}

// Edit returns an editor for m.
func (c *Context) Edit(m *program.MutableMethod) (*editor.Editor, error) {
	return editor.Edit(m)
}

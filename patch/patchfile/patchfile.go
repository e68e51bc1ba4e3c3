// Package patchfile reads declarative patches from YAML. A file holds one
// or more documents, each describing a single patch:
//
//	name: Unlock Plus
//	compatible: [com.mladinska.mkplus]
//	fingerprint:
//	  class_suffix: AuthUser;
//	  method: getPermissions
//	actions:
//	  - return_constant:
//	      code: const-string v0, "plus"
package patchfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/dhamidi/dexpatch/errz"
	"github.com/dhamidi/dexpatch/fingerprint"
	"github.com/dhamidi/dexpatch/predicate"
	"github.com/dhamidi/dexpatch/program"
)

// Definition is one patch document.
type Definition struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Compatible  []string    `yaml:"compatible"`
	Fingerprint Fingerprint `yaml:"fingerprint"`
	Actions     []Action    `yaml:"actions"`

	// Source is the file the definition was read from, if any.
	Source string `yaml:"-"`
}

// Fingerprint is the YAML form of fingerprint.Fingerprint.
type Fingerprint struct {
	Name        string   `yaml:"name"`
	Class       string   `yaml:"class"`
	ClassSuffix string   `yaml:"class_suffix"`
	Method      string   `yaml:"method"`
	Strings     []string `yaml:"strings"`
	Access      []string `yaml:"access"`
	Forbidden   []string `yaml:"forbidden"`
	Parameters  []string `yaml:"parameters"`
	Returns     string   `yaml:"returns"`
	Opcodes     []string `yaml:"opcodes"`
	Scope       Scope    `yaml:"scope"`
}

type Scope struct {
	Class   string `yaml:"class"`
	Package string `yaml:"package"`
}

// Decode reads every document from r.
func Decode(r io.Reader) ([]*Definition, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var defs []*Definition
	for {
		def := new(Definition)
		err := dec.Decode(def)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errz.Wrap(errz.Invalid, fmt.Sprintf("document %d", len(defs)+1), err)
		}
		if def.Name == "" {
			return nil, errz.New(errz.Invalid, fmt.Sprintf("document %d", len(defs)+1), "patch has no name")
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// ReadFile decodes the definitions in path.
func ReadFile(path string) ([]*Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open patch file: %w", err)
	}
	defer f.Close()

	defs, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for _, d := range defs {
		d.Source = path
	}
	return defs, nil
}

// ReadGlob decodes every file matching any of patterns, in pattern order
// and lexical order within a pattern.
func ReadGlob(patterns ...string) ([]*Definition, error) {
	var defs []*Definition
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad patch file pattern %q: %w", pattern, err)
		}
		for _, path := range matches {
			ds, err := ReadFile(path)
			if err != nil {
				return nil, err
			}
			defs = append(defs, ds...)
		}
	}
	return defs, nil
}

// Compile turns the YAML form into a fingerprint.
func (f *Fingerprint) Compile() (*fingerprint.Fingerprint, error) {
	fp := &fingerprint.Fingerprint{
		Name:       f.Name,
		Strings:    f.Strings,
		Parameters: f.Parameters,
		Returns:    f.Returns,
		Scope:      fingerprint.Scope{Class: f.Scope.Class, Package: f.Scope.Package},
	}
	if fp.Name == "" {
		fp.Name = f.describe()
	}

	var err error
	if fp.AccessFlags, err = parseFlags(f.Access); err != nil {
		return nil, err
	}
	if fp.ForbiddenFlags, err = parseFlags(f.Forbidden); err != nil {
		return nil, err
	}
	for _, name := range f.Opcodes {
		op, ok := program.LookupOpcode(name)
		if !ok {
			return nil, errz.New(errz.Invalid, name, "unknown opcode in fingerprint")
		}
		fp.Opcodes = append(fp.Opcodes, op)
	}

	switch {
	case f.Class != "" && f.ClassSuffix != "":
		return nil, errz.New(errz.Invalid, fp.Name, "class and class_suffix are mutually exclusive")
	case f.Class != "":
		fp.ClassCustom = predicate.ClassName(f.Class)
	case f.ClassSuffix != "":
		fp.ClassCustom = predicate.ClassNameSuffix(f.ClassSuffix)
	}
	if f.Method != "" {
		fp.Custom = predicate.MethodName(f.Method)
	}
	return fp, nil
}

func (f *Fingerprint) describe() string {
	class := f.Class
	if class == "" && f.ClassSuffix != "" {
		class = "*" + f.ClassSuffix
	}
	switch {
	case class != "" && f.Method != "":
		return class + "->" + f.Method
	case class != "":
		return class
	case f.Method != "":
		return f.Method
	default:
		return "fingerprint"
	}
}

func parseFlags(names []string) (program.AccessFlags, error) {
	var flags program.AccessFlags
	for _, name := range names {
		f, ok := program.ParseAccessFlag(name)
		if !ok {
			return 0, errz.New(errz.Invalid, name, "unknown access flag")
		}
		flags |= f
	}
	return flags, nil
}

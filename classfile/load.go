package classfile

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/dhamidi/dexpatch/program"
)

var log = commonlog.GetLogger("dexpatch.classfile")

// accSuper marks classes compiled for invokespecial semantics; it shares
// its bit with synchronized and means nothing to fingerprints.
const accSuper program.AccessFlags = 0x0020

// ClassDef converts a parsed class file into a class definition. Methods
// get no instruction block; the strings they load via ldc are recorded
// instead.
func (cf *ClassFile) ClassDef() (program.ClassDef, error) {
	cp := cf.ConstantPool
	name := cf.ClassName()
	if name == "" {
		return program.ClassDef{}, fmt.Errorf("class name is missing from the constant pool")
	}

	def := program.ClassDef{
		Name:        program.ClassDescriptor(name),
		AccessFlags: cf.AccessFlags &^ (accSuper | accModule),
		Strings:     cp.Strings(),
	}
	if super := cf.SuperClassName(); super != "" {
		def.SuperClass = program.ClassDescriptor(super)
	}
	for _, i := range cf.InterfaceNames() {
		def.Interfaces = append(def.Interfaces, program.ClassDescriptor(i))
	}

	for i := range cf.Fields {
		f := &cf.Fields[i]
		def.Fields = append(def.Fields, program.FieldDef{
			Name:        f.Name(cp),
			AccessFlags: f.AccessFlags,
			Type:        f.Descriptor(cp),
		})
	}

	for i := range cf.Methods {
		m := &cf.Methods[i]
		mname := m.Name(cp)
		params, ret, ok := program.ParseMethodDescriptor(m.Descriptor(cp))
		if !ok {
			return program.ClassDef{}, fmt.Errorf("%s.%s: malformed descriptor %q", name, mname, m.Descriptor(cp))
		}
		md := program.MethodDef{
			Name:        mname,
			AccessFlags: m.AccessFlags,
			Parameters:  params,
			Return:      ret,
		}
		if mname == "<init>" || mname == "<clinit>" {
			md.AccessFlags |= program.AccConstructor
		}
		if m.Code != nil {
			strs, err := loadedStrings(m.Code, cp)
			if err != nil {
				return program.ClassDef{}, fmt.Errorf("%s.%s: %w", name, mname, err)
			}
			md.Strings = strs
		}
		def.Methods = append(def.Methods, md)
	}
	return def, nil
}

// ReadClass parses a single class file from r.
func ReadClass(r io.Reader) (program.ClassDef, error) {
	cf, err := Parse(r)
	if err != nil {
		return program.ClassDef{}, err
	}
	return cf.ClassDef()
}

// ReadJar reads every class in a jar. module-info and entries under
// META-INF are skipped.
func ReadJar(path string) ([]program.ClassDef, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open jar: %w", err)
	}
	defer r.Close()
	return readZip(&r.Reader, path)
}

func readZip(r *zip.Reader, origin string) ([]program.ClassDef, error) {
	var defs []program.ClassDef
	for _, f := range r.File {
		if f.FileInfo().IsDir() || filepath.Ext(f.Name) != ".class" {
			continue
		}
		if strings.HasPrefix(f.Name, "META-INF/") || filepath.Base(f.Name) == "module-info.class" {
			continue
		}
		def, err := readZipEntry(f)
		if err != nil {
			return nil, fmt.Errorf("%s!%s: %w", origin, f.Name, err)
		}
		defs = append(defs, def)
	}
	log.Debugf("read %d classes from %s", len(defs), origin)
	return defs, nil
}

func readZipEntry(f *zip.File) (program.ClassDef, error) {
	rc, err := f.Open()
	if err != nil {
		return program.ClassDef{}, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return program.ClassDef{}, err
	}
	return ReadClass(bytes.NewReader(data))
}

// Load builds a program from .class files, jars and directories containing
// either.
func Load(paths ...string) (*program.Program, error) {
	var defs []program.ClassDef
	for _, path := range paths {
		ds, err := loadPath(path)
		if err != nil {
			return nil, err
		}
		defs = append(defs, ds...)
	}
	return program.FromDefs(defs)
}

func loadPath(path string) ([]program.ClassDef, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return loadFile(path)
	}

	var defs []program.ClassDef
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch filepath.Ext(p) {
		case ".class", ".jar":
			if filepath.Base(p) == "module-info.class" {
				return nil
			}
			ds, err := loadFile(p)
			if err != nil {
				return err
			}
			defs = append(defs, ds...)
		}
		return nil
	})
	return defs, err
}

func loadFile(path string) ([]program.ClassDef, error) {
	switch filepath.Ext(path) {
	case ".jar", ".zip":
		return ReadJar(path)
	case ".class":
		cf, err := ParseFile(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		def, err := cf.ClassDef()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return []program.ClassDef{def}, nil
	default:
		return nil, fmt.Errorf("%s: not a class file or jar", path)
	}
}

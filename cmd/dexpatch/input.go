package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dhamidi/dexpatch/classfile"
	"github.com/dhamidi/dexpatch/container"
	"github.com/dhamidi/dexpatch/program"
)

// loadInput reads a program from a CBOR image, or from class files, jars
// or directories of them. The archive is nil for class-file inputs, which
// cannot be written back.
func loadInput(path string) (*program.Program, *container.Archive, error) {
	if path == "" {
		return nil, nil, fmt.Errorf("no input given")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, err
	}

	if info.IsDir() {
		p, err := classfile.Load(path)
		return p, nil, err
	}
	switch filepath.Ext(path) {
	case ".class", ".jar", ".zip":
		p, err := classfile.Load(path)
		return p, nil, err
	default:
		a, err := container.ReadFile(path)
		if err != nil {
			return nil, nil, err
		}
		return a.Program(), a, nil
	}
}

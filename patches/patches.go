// Package patches is the catalogue of built-in patches.
package patches

import (
	"github.com/dhamidi/dexpatch/patch"
)

// All returns every built-in patch in the order they should run.
func All() []*patch.Patch {
	return []*patch.Patch{
		UnlockPlus(),
		UnlockModules(),
	}
}

// Lookup finds a built-in patch by name.
func Lookup(name string) (*patch.Patch, bool) {
	for _, p := range All() {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

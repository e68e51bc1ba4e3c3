package patches

import (
	"github.com/dhamidi/dexpatch/errz"
	"github.com/dhamidi/dexpatch/fingerprint"
	"github.com/dhamidi/dexpatch/patch"
	"github.com/dhamidi/dexpatch/predicate"
	"github.com/dhamidi/dexpatch/program"
)

// ModuleManager locates the public final method of the module manager that
// logs the repository size. Its class is the manager implementation.
var ModuleManager = &fingerprint.Fingerprint{
	Name:        "ModuleManager",
	Strings:     []string{"moduleVersionRepository size "},
	AccessFlags: program.AccPublic | program.AccFinal,
}

// moduleStatusMethod matches the manager's status lookup: public, one
// parameter, returning a class type other than Object.
var moduleStatusMethod = predicate.All(
	predicate.MethodFlags(program.AccPublic, 0),
	predicate.ParameterCount(1),
	predicate.Returns("L"),
	predicate.Not(predicate.Returns("Ljava/lang/Object;")),
)

// UnlockModules forces the module manager to report every module as
// available.
func UnlockModules() *patch.Patch {
	return &patch.Patch{
		Name:        "Unlock Modules",
		Description: "Forces ModuleManager to report all modules as Available.",
		Compatible:  []string{"com.sovworks.projecteds"},
		Execute: func(ctx *patch.Context) error {
			m, err := ctx.Sibling(ModuleManager, moduleStatusMethod)
			if err != nil {
				return err
			}

			status, err := ctx.Class(m.ReturnType())
			if err != nil {
				return err
			}
			available, err := firstEnumConstant(status)
			if err != nil {
				return err
			}

			load := program.StaticField(program.OpSgetObject, 0, available.Ref())
			return patch.ReturnConstant(m, load, ctx.Options.Truncate)
		},
	}
}

// firstEnumConstant returns the first declared enum constant of c. Enum
// constants are emitted in source order, so this is the first value of the
// enum.
func firstEnumConstant(c *program.ClassUnit) (*program.FieldUnit, error) {
	fields, err := patch.StatusFields(c, 1)
	if err != nil {
		return nil, err
	}
	for _, f := range fields {
		if f.AccessFlags().Has(program.AccStatic | program.AccFinal | program.AccEnum) {
			return f, nil
		}
	}
	return nil, errz.New(errz.StructuralPrecondition, c.Name(), "no static final enum constant")
}

package patches

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dhamidi/dexpatch/errz"
	"github.com/dhamidi/dexpatch/patch"
	"github.com/dhamidi/dexpatch/program"
)

func newProgram(t *testing.T, defs ...program.ClassDef) *program.Program {
	t.Helper()
	p, err := program.FromDefs(defs)
	require.NoError(t, err)
	return p
}

func stringMethod(name string, flags program.AccessFlags, params []string, ret string, literals ...string) program.MethodDef {
	var insns []program.Instruction
	for _, s := range literals {
		insns = append(insns, program.ConstString(0, s))
	}
	insns = append(insns, program.Const(program.OpConst4, 0, 0), program.Return(program.OpReturnObject, 0))
	return program.MethodDef{
		Name:        name,
		AccessFlags: flags,
		Parameters:  params,
		Return:      ret,
		Code:        &program.CodeDef{Registers: 2, Instructions: insns},
	}
}

func run(t *testing.T, p *program.Program, pkg string, ps ...*patch.Patch) (*patch.Session, error) {
	t.Helper()
	s := patch.NewSession(p, pkg, patch.DefaultOptions())
	return s, s.Run(ps...)
}

func TestUnlockPlus(t *testing.T) {
	p := newProgram(t,
		program.ClassDef{
			Name: "Lcom/mladinska/data/AuthUser;",
			Methods: []program.MethodDef{
				stringMethod("getPermissions", program.AccPublic, nil, "Ljava/lang/String;", "free"),
				stringMethod("getName", program.AccPublic, nil, "Ljava/lang/String;"),
			},
		},
		program.ClassDef{Name: "Lcom/mladinska/Main;"},
	)

	s, err := run(t, p, "com.mladinska.mkplus", UnlockPlus())
	require.NoError(t, err)

	out, err := s.Output()
	require.NoError(t, err)
	auth, _ := out.Lookup("Lcom/mladinska/data/AuthUser;")
	code := auth.Method("getPermissions", "").Code()
	require.Equal(t, 2, code.Len())
	require.Equal(t, program.ConstString(0, "plus"), code.At(0))
	require.Equal(t, program.Return(program.OpReturnObject, 0), code.At(1))
}

func TestUnlockPlusSkippedForOtherApps(t *testing.T) {
	p := newProgram(t, program.ClassDef{Name: "Lcom/example/Main;"})

	s, err := run(t, p, "com.example", UnlockPlus())
	require.NoError(t, err)
	require.Equal(t, patch.StatusSkipped, s.Results()[0].Status)
}

func TestUnlockPlusMissingClass(t *testing.T) {
	p := newProgram(t, program.ClassDef{Name: "Lcom/example/Main;"})

	_, err := run(t, p, "", UnlockPlus())
	require.True(t, errz.Is(err, errz.NotFound), "%v", err)
}

const (
	manager = "Lcom/sovworks/projecteds/modules/ModuleManagerImpl;"
	status  = "Lcom/sovworks/projecteds/modules/ModuleStatus;"
)

func moduleProgram(t *testing.T, logFlags, constantFlags program.AccessFlags) *program.Program {
	return newProgram(t,
		program.ClassDef{
			Name:        manager,
			AccessFlags: program.AccPublic,
			Methods: []program.MethodDef{
				stringMethod("log", logFlags, nil, "Ljava/lang/String;", "moduleVersionRepository size "),
				stringMethod("getStatus", program.AccPublic, []string{"Ljava/lang/String;"}, status),
				stringMethod("getAny", program.AccPublic, []string{"Ljava/lang/String;"}, "Ljava/lang/Object;"),
				stringMethod("getAll", program.AccPublic, []string{"Ljava/lang/String;"}, "["+status),
				stringMethod("getNames", program.AccPublic, nil, "Ljava/util/List;"),
			},
		},
		program.ClassDef{
			Name:        status,
			AccessFlags: program.AccPublic | program.AccFinal | program.AccEnum,
			Fields: []program.FieldDef{
				{Name: "Available", AccessFlags: constantFlags, Type: status},
				{Name: "Locked", AccessFlags: constantFlags, Type: status},
				{Name: "$VALUES", AccessFlags: program.AccPrivate | program.AccStatic | program.AccFinal | program.AccSynthetic, Type: "[" + status},
			},
		},
	)
}

func TestUnlockModules(t *testing.T) {
	p := moduleProgram(t, program.AccPublic|program.AccFinal, program.AccPublic|program.AccStatic|program.AccFinal|program.AccEnum)

	s, err := run(t, p, "com.sovworks.projecteds", UnlockModules())
	require.NoError(t, err)

	out, err := s.Output()
	require.NoError(t, err)
	c, _ := out.Lookup(manager)
	code := c.Method("getStatus", "").Code()
	require.Equal(t, 2, code.Len())
	require.Equal(t, program.StaticField(program.OpSgetObject, 0, program.FieldRef{Class: status, Name: "Available", Type: status}), code.At(0))
	require.Equal(t, program.Return(program.OpReturnObject, 0), code.At(1))

	require.Equal(t, program.OpConst4, c.Method("getAny", "").Code().At(0).Opcode, "other methods stay untouched")
	require.Equal(t, program.OpConst4, c.Method("getAll", "").Code().At(0).Opcode, "array returns are not status lookups")
}

func TestUnlockModulesNeedsPublicFinalLogMethod(t *testing.T) {
	p := moduleProgram(t, program.AccPrivate, program.AccPublic|program.AccStatic|program.AccFinal|program.AccEnum)

	_, err := run(t, p, "", UnlockModules())
	require.True(t, errz.Is(err, errz.NotFound), "%v", err)
}

func TestUnlockModulesNeedsEnumConstant(t *testing.T) {
	p := moduleProgram(t, program.AccPublic|program.AccFinal, program.AccPublic|program.AccStatic)

	s, err := run(t, p, "", UnlockModules())
	require.True(t, errz.Is(err, errz.StructuralPrecondition), "%v", err)

	repls, err := s.Replacements()
	require.NoError(t, err)
	require.Empty(t, repls)
}

func TestLookup(t *testing.T) {
	p, ok := Lookup("Unlock Modules")
	require.True(t, ok)
	require.Equal(t, "Unlock Modules", p.Name)

	_, ok = Lookup("Unlock Everything")
	require.False(t, ok)
	require.Len(t, All(), 2)
}

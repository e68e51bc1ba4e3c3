package patchfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dhamidi/dexpatch/errz"
	"github.com/dhamidi/dexpatch/patch"
	"github.com/dhamidi/dexpatch/program"
)

const definitions = `
name: Unlock Plus
description: Report plus permissions.
compatible: [com.mladinska.mkplus]
fingerprint:
  class_suffix: AuthUser;
  method: getPermissions
actions:
  - return_constant:
      code: const-string v0, "plus"
---
name: Activate
fingerprint:
  strings: [subscription state]
  access: [public]
  forbidden: [static]
actions:
  - substitute:
      status:
        class: Lcom/app/Status;
      negative: 0
      positive: 1
---
name: Quiet
fingerprint:
  method: onStart
  returns: V
actions:
  - neutralize:
      callee: [showNag]
  - insert:
      index: 0
      code: |
        const/4 v0, 0x0
`

func TestDecode(t *testing.T) {
	defs, err := Decode(strings.NewReader(definitions))
	require.NoError(t, err)
	require.Len(t, defs, 3)

	require.Equal(t, "Unlock Plus", defs[0].Name)
	require.Equal(t, []string{"com.mladinska.mkplus"}, defs[0].Compatible)
	require.Equal(t, "AuthUser;", defs[0].Fingerprint.ClassSuffix)
	require.NotNil(t, defs[0].Actions[0].ReturnConstant)

	require.Equal(t, 1, defs[1].Actions[0].Substitute.Positive)
	require.Equal(t, []string{"showNag"}, defs[2].Actions[0].Neutralize.Callee)
	require.Equal(t, 0, defs[2].Actions[1].Insert.Index)
}

func TestDecodeRejects(t *testing.T) {
	for name, src := range map[string]string{
		"unknown key": "name: x\nfingerprnt: {}\n",
		"no name":     "description: nameless\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(src))
			require.True(t, errz.Is(err, errz.Invalid), "%v", err)
		})
	}
}

func TestCompileRejects(t *testing.T) {
	tests := map[string]string{
		"no actions":         "name: x\nfingerprint: {method: run}\n",
		"two operations":     "name: x\nactions:\n  - erase: 1\n    insert: {index: 0, code: nop}\n",
		"bad code":           "name: x\nactions:\n  - insert: {index: 0, code: frob v0}\n",
		"bad flag":           "name: x\nfingerprint: {access: [shiny]}\nactions:\n  - erase: 0\n",
		"bad opcode":         "name: x\nfingerprint: {opcodes: [jump]}\nactions:\n  - erase: 0\n",
		"class and suffix":   "name: x\nfingerprint: {class: LA;, class_suffix: A;}\nactions:\n  - erase: 0\n",
		"two loads":          "name: x\nactions:\n  - return_constant: {code: \"nop\\nnop\"}\n",
		"negative status":    "name: x\nactions:\n  - substitute: {negative: -1, positive: 0}\n",
		"neutralize no name": "name: x\nactions:\n  - neutralize: {window: 2}\n",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			defs, err := Decode(strings.NewReader(src))
			require.NoError(t, err)
			_, err = Compile(defs)
			require.True(t, errz.Is(err, errz.Invalid), "%v", err)
		})
	}
}

func TestFingerprintCompile(t *testing.T) {
	f := Fingerprint{
		ClassSuffix: "Manager;",
		Method:      "status",
		Access:      []string{"public", "final"},
		Forbidden:   []string{"static"},
		Parameters:  []string{"L"},
		Opcodes:     []string{"sget-object", "return-object"},
		Scope:       Scope{Package: "com.app"},
	}
	fp, err := f.Compile()
	require.NoError(t, err)
	require.Equal(t, "*Manager;->status", fp.Name)
	require.Equal(t, program.AccPublic|program.AccFinal, fp.AccessFlags)
	require.Equal(t, program.AccStatic, fp.ForbiddenFlags)
	require.Equal(t, []program.Opcode{program.OpSgetObject, program.OpReturnObject}, fp.Opcodes)
	require.NotNil(t, fp.ClassCustom)
	require.NotNil(t, fp.Custom)
	require.Equal(t, "com.app", fp.Scope.Package)
}

func statusProgram(t *testing.T) *program.Program {
	t.Helper()
	own := func(name string) program.FieldDef {
		return program.FieldDef{Name: name, AccessFlags: program.AccPublic | program.AccStatic | program.AccFinal | program.AccEnum, Type: "Lcom/app/Status;"}
	}
	field := func(name string) program.FieldRef {
		return program.FieldRef{Class: "Lcom/app/Status;", Name: name, Type: "Lcom/app/Status;"}
	}
	nag := program.MethodRef{Class: "Lcom/app/Ui;", Name: "showNag", Return: "Z"}

	p, err := program.FromDefs([]program.ClassDef{
		{
			Name:   "Lcom/app/Status;",
			Fields: []program.FieldDef{own("EXPIRED"), own("ACTIVE")},
		},
		{
			Name: "Lcom/app/Billing;",
			Methods: []program.MethodDef{
				{
					Name:        "state",
					AccessFlags: program.AccPublic,
					Return:      "Lcom/app/Status;",
					Code: &program.CodeDef{Registers: 1, Instructions: []program.Instruction{
						program.ConstString(0, "subscription state"),
						program.StaticField(program.OpSgetObject, 0, field("EXPIRED")),
						program.Return(program.OpReturnObject, 0),
					}},
				},
				{
					Name:   "onStart",
					Return: "V",
					Code: &program.CodeDef{Registers: 1, Instructions: []program.Instruction{
						program.Invoke(program.OpInvokeStatic, nag),
						program.MoveResult(program.OpMoveResult, 0),
						program.Branch(program.OpIfEqz, 3, 0),
						program.ReturnVoid(),
					}},
				},
			},
		},
	})
	require.NoError(t, err)
	return p
}

func TestCompiledPatchesRun(t *testing.T) {
	defs, err := Decode(strings.NewReader(definitions))
	require.NoError(t, err)
	patches, err := Compile(defs[1:])
	require.NoError(t, err)

	s := patch.NewSession(statusProgram(t), "", patch.DefaultOptions())
	require.NoError(t, s.Run(patches...))

	out, err := s.Output()
	require.NoError(t, err)
	billing, _ := out.Lookup("Lcom/app/Billing;")

	state := billing.Method("state", "").Code()
	require.Equal(t, "ACTIVE", state.At(1).Ref.Field.Name)

	start := billing.Method("onStart", "").Code()
	require.Equal(t, 5, start.Len())
	require.Equal(t, program.Const(program.OpConst4, 0, 0), start.At(0))
	for i := 1; i <= 3; i++ {
		require.Equal(t, program.OpNop, start.At(i).Opcode)
	}
	require.Equal(t, 1, start.Registers())
}

func TestInsertKeepsFrame(t *testing.T) {
	defs, err := Decode(strings.NewReader(`
name: Wide Insert
fingerprint:
  method: onStart
actions:
  - insert:
      index: 0
      code: const/4 v3, 0x0
`))
	require.NoError(t, err)
	patches, err := Compile(defs)
	require.NoError(t, err)

	s := patch.NewSession(statusProgram(t), "", patch.DefaultOptions())
	err = s.Run(patches...)
	require.True(t, errz.Is(err, errz.InvalidEdit), "%v", err)

	repls, err := s.Replacements()
	require.NoError(t, err)
	require.Empty(t, repls)
}

func TestReadGlob(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte("name: second\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("name: first\n---\nname: also first\n"), 0o644))

	defs, err := ReadGlob(filepath.Join(dir, "*.yaml"))
	require.NoError(t, err)
	require.Len(t, defs, 3)
	require.Equal(t, "first", defs[0].Name)
	require.Equal(t, "second", defs[2].Name)
	require.Equal(t, filepath.Join(dir, "b.yaml"), defs[2].Source)
}

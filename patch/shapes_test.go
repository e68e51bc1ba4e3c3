package patch

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dhamidi/dexpatch/errz"
	"github.com/dhamidi/dexpatch/program"
)

const statusType = "Lcom/app/billing/Status;"

func mutableMethod(t *testing.T, def program.ClassDef, name string) *program.MutableMethod {
	t.Helper()
	c, err := program.NewClass(def)
	require.NoError(t, err)
	m := c.Mutable().Method(name, "")
	require.NotNil(t, m)
	return m
}

func permissions(t *testing.T) *program.MutableMethod {
	return mutableMethod(t, program.ClassDef{
		Name: "Lcom/app/auth/AuthUser;",
		Methods: []program.MethodDef{{
			Name:        "getPermissions",
			AccessFlags: program.AccPublic,
			Return:      "Ljava/lang/String;",
			Code: &program.CodeDef{Registers: 2, Instructions: []program.Instruction{
				program.StaticField(program.OpSgetBoolean, 1, program.FieldRef{Class: "Lcom/app/auth/AuthUser;", Name: "premium", Type: "Z"}),
				program.Branch(program.OpIfEqz, 4, 1),
				program.ConstString(0, "plus"),
				program.Return(program.OpReturnObject, 0),
				program.ConstString(0, "free"),
				program.Return(program.OpReturnObject, 0),
			}},
		}},
	}, "getPermissions")
}

func TestReturnConstantTruncates(t *testing.T) {
	m := permissions(t)

	require.NoError(t, ReturnConstant(m, program.ConstString(0, "plus"), true))
	require.Equal(t, []program.Instruction{
		program.ConstString(0, "plus"),
		program.Return(program.OpReturnObject, 0),
	}, m.Instructions())
}

func TestReturnConstantKeepsUnreachableBody(t *testing.T) {
	m := permissions(t)

	require.NoError(t, ReturnConstant(m, program.ConstString(3, "plus"), false))
	require.Equal(t, 8, m.Len())
	require.Equal(t, program.ConstString(3, "plus"), m.At(0))
	require.Equal(t, program.Return(program.OpReturnObject, 3), m.At(1))
	require.Equal(t, 6, m.At(3).Target, "old branch keeps its destination")
	require.Equal(t, 4, m.Registers())
}

func TestReturnConstantWide(t *testing.T) {
	m := mutableMethod(t, program.ClassDef{
		Name: "Lcom/app/Clock;",
		Methods: []program.MethodDef{{
			Name:   "expiry",
			Return: "J",
			Code: &program.CodeDef{Registers: 2, Instructions: []program.Instruction{
				program.Const(program.OpConstWide16, 0, 0),
				program.Return(program.OpReturnWide, 0),
			}},
		}},
	}, "expiry")

	require.NoError(t, ReturnConstant(m, program.Const(program.OpConstWide, 4, 1<<40), true))
	require.Equal(t, program.OpReturnWide, m.At(1).Opcode)
	require.Equal(t, 6, m.Registers())
}

func TestReturnConstantChecksReturnType(t *testing.T) {
	m := permissions(t)
	err := ReturnConstant(m, program.Const(program.OpConst4, 0, 1), true)
	require.True(t, errz.Is(err, errz.StructuralPrecondition), "%v", err)
	require.Equal(t, 6, m.Len())

	void := mutableMethod(t, program.ClassDef{
		Name: "Lcom/app/Nag;",
		Methods: []program.MethodDef{{
			Name:   "show",
			Return: "V",
			Code:   &program.CodeDef{Instructions: []program.Instruction{program.ReturnVoid()}},
		}},
	}, "show")
	err = ReturnConstant(void, program.ConstString(0, "x"), true)
	require.True(t, errz.Is(err, errz.StructuralPrecondition), "%v", err)

	err = ReturnConstant(permissions(t), program.Nop(), true)
	require.True(t, errz.Is(err, errz.InvalidEdit), "%v", err)
}

func statusClass(t *testing.T, n int) *program.ClassUnit {
	t.Helper()
	def := program.ClassDef{
		Name:        statusType,
		AccessFlags: program.AccPublic | program.AccFinal | program.AccEnum,
		Fields: []program.FieldDef{
			{Name: "label", AccessFlags: program.AccPrivate, Type: "Ljava/lang/String;"},
		},
	}
	for i := range n {
		def.Fields = append(def.Fields, program.FieldDef{
			Name:        fmt.Sprintf("S%d", i),
			AccessFlags: program.AccPublic | program.AccStatic | program.AccFinal | program.AccEnum,
			Type:        statusType,
		})
	}
	c, err := program.NewClass(def)
	require.NoError(t, err)
	return c
}

func TestStatusFields(t *testing.T) {
	fields, err := StatusFields(statusClass(t, 6), 6)
	require.NoError(t, err)
	require.Len(t, fields, 6)
	require.Equal(t, "S0", fields[0].Name())
	require.Equal(t, "S5", fields[5].Name())

	_, err = StatusFields(statusClass(t, 3), 6)
	require.True(t, errz.Is(err, errz.StructuralPrecondition), "%v", err)
}

func TestSubstituteStatus(t *testing.T) {
	fields, err := StatusFields(statusClass(t, 6), 6)
	require.NoError(t, err)
	inactive, active := fields[2].Ref(), fields[5].Ref()

	current := program.MethodRef{Class: "Lcom/app/billing/Store;", Name: "current", Return: statusType}
	m := mutableMethod(t, program.ClassDef{
		Name: "Lcom/app/billing/Gate;",
		Methods: []program.MethodDef{{
			Name:       "check",
			Parameters: []string{"Lcom/app/billing/Store;"},
			Return:     "Z",
			Code: &program.CodeDef{Registers: 4, Instructions: []program.Instruction{
				program.StaticField(program.OpSgetObject, 0, inactive),
				program.Invoke(program.OpInvokeVirtual, current, 3),
				program.MoveResult(program.OpMoveResultObject, 1),
				program.Branch(program.OpIfEq, 5, 0, 1),
				program.Return(program.OpReturn, 2),
				program.Return(program.OpReturn, 2),
			}},
		}},
	}, "check")
	before := m.Len()

	count, err := SubstituteStatus(m, statusType, inactive, active)
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.Equal(t, before-1, m.Len())
	require.Equal(t, []program.Instruction{
		program.StaticField(program.OpSgetObject, 0, active),
		program.StaticField(program.OpSgetObject, 1, active),
		program.Branch(program.OpIfEq, 4, 0, 1),
		program.Return(program.OpReturn, 2),
		program.Return(program.OpReturn, 2),
	}, m.Instructions())
}

func TestSubstituteStatusRequiresOccurrence(t *testing.T) {
	fields, err := StatusFields(statusClass(t, 2), 2)
	require.NoError(t, err)

	m := permissions(t)
	_, err = SubstituteStatus(m, statusType, fields[0].Ref(), fields[1].Ref())
	require.True(t, errz.Is(err, errz.NotFound), "%v", err)
	require.Equal(t, 6, m.Len())

	_, err = SubstituteStatus(m, statusType, fields[0].Ref(), fields[0].Ref())
	require.True(t, errz.Is(err, errz.Invalid), "%v", err)
}

func licenseCheck(t *testing.T) *program.MutableMethod {
	lic := func(name string) program.MethodRef {
		return program.MethodRef{Class: "Lcom/app/Lic;", Name: name, Return: "Z"}
	}
	nag := program.MethodRef{Class: "Lcom/app/Ui;", Name: "nag", Return: "V"}
	return mutableMethod(t, program.ClassDef{
		Name: "Lcom/app/Main;",
		Methods: []program.MethodDef{{
			Name:   "onStart",
			Return: "V",
			Code: &program.CodeDef{Registers: 1, Instructions: []program.Instruction{
				program.Invoke(program.OpInvokeStatic, lic("isLicensed")),
				program.MoveResult(program.OpMoveResult, 0),
				program.Branch(program.OpIfNez, 4, 0),
				program.Invoke(program.OpInvokeStatic, nag),
				program.Invoke(program.OpInvokeStatic, lic("hasLicense")),
				program.MoveResult(program.OpMoveResult, 0),
				program.Branch(program.OpIfEqz, 8, 0),
				program.ReturnVoid(),
				program.Invoke(program.OpInvokeStatic, nag),
				program.ReturnVoid(),
			}},
		}},
	}, "onStart")
}

func TestNeutralizeCalls(t *testing.T) {
	m := licenseCheck(t)

	count, err := NeutralizeCalls(m, CalleeName("License", "Licensed"), 5)
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.Equal(t, 10, m.Len())

	ops := make([]program.Opcode, m.Len())
	for i := range ops {
		ops[i] = m.At(i).Opcode
	}
	require.Equal(t, []program.Opcode{
		program.OpNop, program.OpNop, program.OpGoto, program.OpInvokeStatic,
		program.OpNop, program.OpNop, program.OpNop, program.OpReturnVoid,
		program.OpInvokeStatic, program.OpReturnVoid,
	}, ops)
	require.Equal(t, 4, m.At(2).Target)
}

func TestNeutralizeCallsWindow(t *testing.T) {
	m := licenseCheck(t)

	count, err := NeutralizeCalls(m, CalleeName("isLicensed"), 0)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Equal(t, program.OpIfNez, m.At(2).Opcode, "branch outside the window stays")
}

func TestNeutralizeCallsNoMatch(t *testing.T) {
	m := licenseCheck(t)
	_, err := NeutralizeCalls(m, CalleeName("verifySignature"), 5)
	require.True(t, errz.Is(err, errz.NotFound), "%v", err)
}

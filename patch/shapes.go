package patch

import (
	"fmt"
	"strings"

	"github.com/dhamidi/dexpatch/editor"
	"github.com/dhamidi/dexpatch/errz"
	"github.com/dhamidi/dexpatch/fingerprint"
	"github.com/dhamidi/dexpatch/predicate"
	"github.com/dhamidi/dexpatch/program"
)

// ReturnConstant makes m return the value produced by load. The load and a
// matching return are inserted at index 0; with truncate the original body
// is dropped, otherwise it stays behind as unreachable code.
func ReturnConstant(m *program.MutableMethod, load program.Instruction, truncate bool) error {
	reg, ok := load.WrittenRegister()
	if !ok {
		return errz.New(errz.InvalidEdit, m.String(), "%s does not produce a value", load.Opcode)
	}
	ret := returnFor(load.Opcode)
	if err := checkReturnType(m, ret); err != nil {
		return err
	}

	e, err := editor.Edit(m)
	if err != nil {
		return err
	}
	if err := e.InsertAt(0, load, program.Return(ret, reg)); err != nil {
		return err
	}
	if truncate {
		if err := e.Truncate(2); err != nil {
			return err
		}
	}
	width := 1
	if ret == program.OpReturnWide {
		width = 2
	}
	m.EnsureRegisters(int(reg) + width)
	return nil
}

func returnFor(op program.Opcode) program.Opcode {
	switch op {
	case program.OpConstWide16, program.OpConstWide, program.OpMoveWide,
		program.OpMoveResultWide, program.OpSgetWide, program.OpIgetWide:
		return program.OpReturnWide
	case program.OpConstString, program.OpConstClass, program.OpMoveObject,
		program.OpMoveResultObject, program.OpNewInstance, program.OpCheckCast,
		program.OpSgetObject, program.OpIgetObject:
		return program.OpReturnObject
	default:
		return program.OpReturn
	}
}

func checkReturnType(m *program.MutableMethod, ret program.Opcode) error {
	td := program.ParseType(m.ReturnType())
	var ok bool
	switch {
	case td == nil || m.ReturnType() == "V":
		ok = false
	case ret == program.OpReturnObject:
		ok = td.IsReference()
	case ret == program.OpReturnWide:
		ok = td.IsWide()
	default:
		ok = td.IsPrimitive() && !td.IsWide()
	}
	if !ok {
		return errz.New(errz.StructuralPrecondition, m.String(), "cannot %s from a method returning %s", ret, m.ReturnType())
	}
	return nil
}

// StatusFields returns the static fields of c whose type is c itself, in
// declaration order, and fails unless there are at least min of them.
// Picking a status value by position relies on the declaration order of
// these fields.
func StatusFields(c *program.ClassUnit, min int) ([]*program.FieldUnit, error) {
	fields := fingerprint.Fields(c,
		predicate.FieldFlags(program.AccStatic, 0),
		predicate.OwnType(),
	)
	if len(fields) < min {
		return nil, errz.New(errz.StructuralPrecondition, c.Name(), "expected at least %d status fields, found %d", min, len(fields))
	}
	return fields, nil
}

// SubstituteStatus rewrites every place in m that produces the negative
// status so that it produces the positive one instead:
//
//   - sget-object vX, negative becomes sget-object vX, positive
//   - invoke-* returning statusType followed by move-result-object vX has
//     the invoke erased and the move-result replaced by sget-object vX,
//     positive
//
// All occurrences are collected in one forward scan and applied as a batch.
// It returns the number of occurrences rewritten.
func SubstituteStatus(m *program.MutableMethod, statusType string, negative, positive program.FieldRef) (int, error) {
	if negative == positive {
		return 0, errz.New(errz.Invalid, m.String(), "negative and positive status are both %s", negative)
	}
	e, err := editor.Edit(m)
	if err != nil {
		return 0, err
	}

	var (
		b     editor.Batch
		count int
		n     = e.Len()
	)
	for i := 0; i < n; i++ {
		in := e.At(i)
		switch {
		case in.Opcode == program.OpSgetObject && in.Ref.Field == negative:
			r, err := e.WrittenRegister(i)
			if err != nil {
				return 0, err
			}
			b.Replace(i, program.StaticField(program.OpSgetObject, r, positive))
			count++

		case in.Opcode.IsInvoke() && in.Ref.Method.Return == statusType &&
			i+1 < n && e.At(i+1).Opcode == program.OpMoveResultObject:
			r, err := e.WrittenRegister(i + 1)
			if err != nil {
				return 0, err
			}
			b.Erase(i)
			b.Replace(i+1, program.StaticField(program.OpSgetObject, r, positive))
			count++
			i++
		}
	}
	if count == 0 {
		return 0, errz.New(errz.NotFound, m.String(), "no loads of %s", statusType)
	}
	if err := b.Apply(e); err != nil {
		return 0, err
	}
	return count, nil
}

// CallMatcher selects call sites by callee.
type CallMatcher func(program.MethodRef) bool

// CalleeName matches callees whose name contains any of the given
// fragments.
func CalleeName(fragments ...string) CallMatcher {
	return func(m program.MethodRef) bool {
		for _, f := range fragments {
			if strings.Contains(m.Name, f) {
				return true
			}
		}
		return false
	}
}

// NeutralizeCalls turns every call in m whose callee satisfies match into
// a nop, together with its move-result. Within the window instructions
// that follow, the first if-eqz becomes a nop and the first if-nez an
// unconditional goto, so the code path guarded by the call's result is
// always taken. It returns the number of neutralised calls.
func NeutralizeCalls(m *program.MutableMethod, match CallMatcher, window int) (int, error) {
	e, err := editor.Edit(m)
	if err != nil {
		return 0, err
	}

	var (
		b       editor.Batch
		count   int
		n       = e.Len()
		claimed = make(map[int]bool)
	)
	claim := func(i int, pe editor.PendingEdit) {
		claimed[i] = true
		b.Add(pe)
	}

	for i := 0; i < n; i++ {
		in := e.At(i)
		if claimed[i] || !in.Opcode.IsInvoke() || !match(in.Ref.Method) {
			continue
		}
		log.Debugf("neutralising call to %s at %d in %s", in.Ref.Method, i, m)
		claim(i, editor.Replace(i, program.Nop()))
		count++

		next := i + 1
		if next < n && e.At(next).Opcode.IsMoveResult() {
			claim(next, editor.Replace(next, program.Nop()))
			next++
		}
		for j := next; j < n && j < next+window; j++ {
			if claimed[j] {
				continue
			}
			op := e.At(j).Opcode
			if op == program.OpIfEqz {
				claim(j, editor.Replace(j, program.Nop()))
				break
			}
			if op == program.OpIfNez {
				claim(j, editor.Unconditional(j))
				break
			}
		}
	}
	if count == 0 {
		return 0, errz.New(errz.NotFound, m.String(), "no matching calls")
	}
	if err := b.Apply(e); err != nil {
		return 0, fmt.Errorf("neutralise calls: %w", err)
	}
	return count, nil
}

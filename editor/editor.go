// Package editor inserts, replaces and erases instructions in the body of a
// mutable method while keeping branch targets pointing at the instructions
// they pointed at before the edit.
//
// Indices handed to the editor refer to the body as it is when the call is
// made. A single edit shifts every index at or after its position, so
// edits collected during one scan must be applied through ApplyAll, which
// works from the highest index down.
package editor

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/dhamidi/dexpatch/errz"
	"github.com/dhamidi/dexpatch/program"
)

// Editor edits the body of one method. It performs no liveness analysis.
type Editor struct {
	method *program.MutableMethod
}

// Edit returns an editor for m. Methods without a body cannot be edited.
func Edit(m *program.MutableMethod) (*Editor, error) {
	if !m.HasCode() {
		return nil, errz.New(errz.InvalidEdit, m.String(), "method has no instruction block")
	}
	return &Editor{method: m}, nil
}

func (e *Editor) Method() *program.MutableMethod { return e.method }

func (e *Editor) Len() int { return e.method.Len() }

// At returns a copy of the instruction at index i.
func (e *Editor) At(i int) program.Instruction { return e.method.At(i) }

// WrittenRegister returns the register the instruction at index i stores
// into. Replacements of value-producing instructions must reuse it.
func (e *Editor) WrittenRegister(i int) (program.Register, error) {
	if i < 0 || i >= e.Len() {
		return 0, e.outOfRange(i, e.Len()-1)
	}
	r, ok := e.method.At(i).WrittenRegister()
	if !ok {
		return 0, errz.New(errz.InvalidEdit, e.method.String(), "instruction %d (%s) writes no register", i, e.method.At(i).Opcode)
	}
	return r, nil
}

// InsertAt inserts insns before position index; 0 prepends and Len()
// appends. Branch targets inside insns are relative to insns, where
// len(insns) denotes the instruction previously at index.
func (e *Editor) InsertAt(index int, insns ...program.Instruction) error {
	out, err := insert(e.method.Instructions(), index, insns)
	if err != nil {
		return e.wrap(err)
	}
	return e.commit(out)
}

// ReplaceAt replaces the single instruction at index with insns, which may
// be empty. Branches to the replaced instruction land on the first
// replacement, or on its successor when insns is empty.
func (e *Editor) ReplaceAt(index int, insns ...program.Instruction) error {
	out, err := replace(e.method.Instructions(), index, insns)
	if err != nil {
		return e.wrap(err)
	}
	return e.commit(out)
}

// EraseAt removes the instruction at index.
func (e *Editor) EraseAt(index int) error {
	return e.ReplaceAt(index)
}

// MakeUnconditional turns the conditional branch at index into a goto to
// the same destination. The body length is unchanged.
func (e *Editor) MakeUnconditional(index int) error {
	out, err := unconditional(e.method.Instructions(), index)
	if err != nil {
		return e.wrap(err)
	}
	return e.commit(out)
}

// Truncate keeps the first n instructions and drops the rest. Kept branches
// must not point into the dropped tail.
func (e *Editor) Truncate(n int) error {
	insns := e.method.Instructions()
	if n < 1 || n > len(insns) {
		return e.outOfRange(n, len(insns))
	}
	insns = insns[:n]
	if err := checkTargets(insns); err != nil {
		return e.wrap(err)
	}
	return e.commit(insns)
}

// ApplyAll applies edits whose indices all refer to the current body. The
// batch is checked before anything is touched and applied atomically: on
// error the body is unchanged.
func (e *Editor) ApplyAll(edits []PendingEdit) error {
	insns := e.method.Instructions()
	if err := checkBatch(edits, len(insns)); err != nil {
		return e.wrap(err)
	}

	ordered := slices.Clone(edits)
	slices.SortFunc(ordered, func(a, b PendingEdit) int {
		return cmp.Compare(b.Index, a.Index)
	})

	var err error
	for _, pe := range ordered {
		switch pe.Op {
		case OpInsert:
			insns, err = insert(insns, pe.Index, pe.Instructions)
		case OpReplace:
			insns, err = replace(insns, pe.Index, pe.Instructions)
		case OpErase:
			insns, err = replace(insns, pe.Index, nil)
		case OpUnconditional:
			insns, err = unconditional(insns, pe.Index)
		}
		if err != nil {
			return e.wrap(fmt.Errorf("%s at %d: %w", pe.Op, pe.Index, err))
		}
	}
	return e.commit(insns)
}

func (e *Editor) commit(insns []program.Instruction) error {
	return e.method.SetInstructions(insns)
}

func (e *Editor) wrap(err error) error {
	return fmt.Errorf("%s: %w", e.method, err)
}

func (e *Editor) outOfRange(i, max int) error {
	return errz.New(errz.InvalidEdit, e.method.String(), "index %d outside [0, %d]", i, max)
}

func checkBatch(edits []PendingEdit, n int) error {
	seen := make(map[int]Op, len(edits))
	for _, pe := range edits {
		if prev, dup := seen[pe.Index]; dup {
			return errz.New(errz.ConflictingEdit, fmt.Sprintf("index %d", pe.Index), "%s and %s target the same instruction", prev, pe.Op)
		}
		seen[pe.Index] = pe.Op

		max := n - 1
		if pe.Op == OpInsert {
			max = n
		}
		if pe.Index < 0 || pe.Index > max {
			return errz.New(errz.InvalidEdit, pe.Op.String(), "index %d outside [0, %d]", pe.Index, max)
		}
		if pe.Op > OpUnconditional {
			return errz.New(errz.InvalidEdit, pe.Op.String(), "unknown edit operation")
		}
	}
	return nil
}

func insert(insns []program.Instruction, index int, seq []program.Instruction) ([]program.Instruction, error) {
	if index < 0 || index > len(insns) {
		return nil, errz.New(errz.InvalidEdit, "insert", "index %d outside [0, %d]", index, len(insns))
	}
	if err := checkSequence(seq); err != nil {
		return nil, err
	}

	n := len(seq)
	out := make([]program.Instruction, 0, len(insns)+n)
	out = append(out, insns[:index]...)
	for _, in := range seq {
		in = in.Clone()
		if in.HasTarget() {
			in.Target += index
		}
		out = append(out, in)
	}
	out = append(out, insns[index:]...)

	for i := range out {
		if i >= index && i < index+n {
			continue
		}
		if out[i].HasTarget() && out[i].Target >= index {
			out[i].Target += n
		}
	}
	return out, checkTargets(out)
}

func replace(insns []program.Instruction, index int, seq []program.Instruction) ([]program.Instruction, error) {
	if index < 0 || index >= len(insns) {
		return nil, errz.New(errz.InvalidEdit, "replace", "index %d outside [0, %d]", index, len(insns)-1)
	}
	if err := checkSequence(seq); err != nil {
		return nil, err
	}

	n := len(seq)
	delta := n - 1
	out := make([]program.Instruction, 0, len(insns)+delta)
	out = append(out, insns[:index]...)
	for _, in := range seq {
		in = in.Clone()
		if in.HasTarget() {
			in.Target += index
		}
		out = append(out, in)
	}
	out = append(out, insns[index+1:]...)

	for i := range out {
		if i >= index && i < index+n {
			continue
		}
		if out[i].HasTarget() && out[i].Target > index {
			out[i].Target += delta
		}
	}
	return out, checkTargets(out)
}

func unconditional(insns []program.Instruction, index int) ([]program.Instruction, error) {
	if index < 0 || index >= len(insns) {
		return nil, errz.New(errz.InvalidEdit, "unconditional", "index %d outside [0, %d]", index, len(insns)-1)
	}
	in := insns[index]
	if !in.HasTarget() {
		return nil, errz.New(errz.InvalidEdit, fmt.Sprintf("instruction %d", index), "%s is not a branch", in.Opcode)
	}
	out := slices.Clone(insns)
	out[index] = program.Goto(in.Target)
	return out, nil
}

// checkSequence validates instructions before they enter a body. Relative
// targets may equal len(seq), meaning the instruction after the sequence.
func checkSequence(seq []program.Instruction) error {
	for i, in := range seq {
		if err := in.Validate(); err != nil {
			return errz.Wrap(errz.InvalidEdit, fmt.Sprintf("instruction %d of sequence", i), err)
		}
		if in.HasTarget() && in.Target > len(seq) {
			return errz.New(errz.InvalidEdit, fmt.Sprintf("instruction %d of sequence", i), "relative target %d beyond sequence of %d", in.Target, len(seq))
		}
	}
	return nil
}

func checkTargets(insns []program.Instruction) error {
	for i, in := range insns {
		if in.HasTarget() && in.Target >= len(insns) {
			return errz.New(errz.InvalidEdit, fmt.Sprintf("instruction %d", i), "branch target %d falls off the end of a %d instruction body", in.Target, len(insns))
		}
	}
	return nil
}

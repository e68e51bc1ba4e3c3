package editor

import "github.com/dhamidi/dexpatch/program"

type Op uint8

const (
	// OpInsert inserts a sequence before Index.
	OpInsert Op = iota
	// OpReplace replaces the instruction at Index with a sequence.
	OpReplace
	// OpErase removes the instruction at Index.
	OpErase
	// OpUnconditional turns the conditional branch at Index into a goto
	// with the same destination.
	OpUnconditional
)

func (op Op) String() string {
	switch op {
	case OpInsert:
		return "insert"
	case OpReplace:
		return "replace"
	case OpErase:
		return "erase"
	case OpUnconditional:
		return "unconditional"
	default:
		return "unknown"
	}
}

// PendingEdit is an edit recorded against the original index of a scan.
type PendingEdit struct {
	Index        int
	Op           Op
	Instructions []program.Instruction
}

func Insert(index int, insns ...program.Instruction) PendingEdit {
	return PendingEdit{Index: index, Op: OpInsert, Instructions: insns}
}

func Replace(index int, insns ...program.Instruction) PendingEdit {
	return PendingEdit{Index: index, Op: OpReplace, Instructions: insns}
}

func Erase(index int) PendingEdit {
	return PendingEdit{Index: index, Op: OpErase}
}

func Unconditional(index int) PendingEdit {
	return PendingEdit{Index: index, Op: OpUnconditional}
}

// Batch collects pending edits during a forward scan. Apply consumes the
// batch; it is empty afterwards whether or not applying succeeded.
type Batch struct {
	edits []PendingEdit
}

func (b *Batch) Add(pe PendingEdit) { b.edits = append(b.edits, pe) }

func (b *Batch) Insert(index int, insns ...program.Instruction) {
	b.Add(Insert(index, insns...))
}

func (b *Batch) Replace(index int, insns ...program.Instruction) {
	b.Add(Replace(index, insns...))
}

func (b *Batch) Erase(index int)         { b.Add(Erase(index)) }
func (b *Batch) Unconditional(index int) { b.Add(Unconditional(index)) }

func (b *Batch) Len() int { return len(b.edits) }

// Edits returns the recorded edits in the order they were added.
func (b *Batch) Edits() []PendingEdit {
	out := make([]PendingEdit, len(b.edits))
	copy(out, b.edits)
	return out
}

func (b *Batch) Apply(e *Editor) error {
	edits := b.edits
	b.edits = nil
	return e.ApplyAll(edits)
}

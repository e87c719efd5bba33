package VM

import (
	"fmt"
	"strings"

	"github.com/kitedb/kite/internal/SF/util"
)

// Instruction is one decoded VM instruction. P1..P3 are signed 32-bit
// integer operands; P4 carries an optional typed literal (int64,
// float64, string, []byte, *KeyInfo, *FuncDef or nil); P5 is a small
// flag word whose meaning is opcode-specific.
type Instruction struct {
	Op OpCode
	P1 int32
	P2 int32
	P3 int32
	P4 interface{}
	P5 uint16
}

// P5 flag values understood by individual opcodes.
const (
	// NullEq makes Eq/Ne treat two NULLs as equal (IS / IS NOT).
	NullEq uint16 = 0x80
	// OpflagSeekEQ makes a seek miss unless it lands on an exact match.
	OpflagSeekEQ uint16 = 0x02
	// NoOverwrite makes Insert raise a primary-key constraint instead
	// of replacing an existing rowid.
	NoOverwrite uint16 = 0x10
	// UniqueCheck makes IdxInsert raise a unique constraint when an
	// entry with the same key columns is already present.
	UniqueCheck uint16 = 0x20
)

// String renders the instruction the way the Explain opcode and the
// disassembler print it.
func (in Instruction) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%-14s %4d %4d %4d", in.Op, in.P1, in.P2, in.P3)
	switch p4 := in.P4.(type) {
	case nil:
		sb.WriteString("  .")
	case string:
		fmt.Fprintf(&sb, "  %q", p4)
	case []byte:
		fmt.Fprintf(&sb, "  x'%x'", p4)
	case *FuncDef:
		fmt.Fprintf(&sb, "  %s(%d)", p4.Name, p4.NArg)
	case *KeyInfo:
		fmt.Fprintf(&sb, "  keyinfo(%d)", p4.NField)
	default:
		fmt.Fprintf(&sb, "  %v", p4)
	}
	if in.P5 != 0 {
		fmt.Fprintf(&sb, "  p5=%#04x", in.P5)
	}
	return sb.String()
}

// Program is a complete instruction sequence plus the resource counts it
// declares. A program must pass Resolve before a VM will run it.
type Program struct {
	Instructions []Instruction
	NumRegs      int
	NumCursors   int
	// ErrorHandler, when >= 0, is the pc that constraint failures jump
	// to after the statement rollback instead of unwinding the program.
	ErrorHandler int

	resolved bool
}

// NewProgram returns an empty unresolved program with no error handler.
func NewProgram() *Program {
	return &Program{ErrorHandler: -1}
}

// Builder assembles a Program incrementally. Jump targets may be
// emitted before their destination exists: allocate a label, emit jumps
// against it, then resolve it once the destination pc is known.
type Builder struct {
	prog   *Program
	labels []int
	fixups []fixup
}

type fixup struct {
	pc    int
	label int
}

func NewBuilder() *Builder {
	return &Builder{prog: NewProgram()}
}

// AllocReg reserves the next free register and returns its index.
func (b *Builder) AllocReg() int32 {
	r := int32(b.prog.NumRegs)
	b.prog.NumRegs++
	return r
}

// AllocRegs reserves n contiguous registers and returns the first index.
func (b *Builder) AllocRegs(n int) int32 {
	r := int32(b.prog.NumRegs)
	b.prog.NumRegs += n
	return r
}

// AllocCursor reserves the next cursor slot.
func (b *Builder) AllocCursor() int32 {
	c := int32(b.prog.NumCursors)
	b.prog.NumCursors++
	return c
}

// AllocLabel allocates an unresolved label.
func (b *Builder) AllocLabel() int {
	idx := len(b.labels)
	b.labels = append(b.labels, -1)
	return idx
}

// ResolveLabel binds label to the current pc and patches every jump
// already emitted against it.
func (b *Builder) ResolveLabel(label int) {
	b.labels[label] = len(b.prog.Instructions)
	for _, f := range b.fixups {
		if f.label == label {
			b.prog.Instructions[f.pc].P2 = int32(b.labels[label])
		}
	}
}

// Emit appends an instruction and returns its pc.
func (b *Builder) Emit(op OpCode, p1, p2, p3 int32) int {
	pc := len(b.prog.Instructions)
	b.prog.Instructions = append(b.prog.Instructions, Instruction{Op: op, P1: p1, P2: p2, P3: p3})
	b.trackRegs(op, p1, p2, p3)
	return pc
}

// EmitP4 appends an instruction carrying a P4 literal.
func (b *Builder) EmitP4(op OpCode, p1, p2, p3 int32, p4 interface{}) int {
	pc := b.Emit(op, p1, p2, p3)
	b.prog.Instructions[pc].P4 = p4
	return pc
}

// EmitP5 appends an instruction carrying a P5 flag word.
func (b *Builder) EmitP5(op OpCode, p1, p2, p3 int32, p5 uint16) int {
	pc := b.Emit(op, p1, p2, p3)
	b.prog.Instructions[pc].P5 = p5
	return pc
}

// EmitJump appends a jump whose P2 is a forward reference to label. If
// the label is already bound the target is written immediately.
func (b *Builder) EmitJump(op OpCode, p1 int32, label int, p3 int32) int {
	util.Assert(op.IsJump(), "EmitJump called with non-jump opcode %s", op)
	pc := b.Emit(op, p1, 0, p3)
	if b.labels[label] >= 0 {
		b.prog.Instructions[pc].P2 = int32(b.labels[label])
	} else {
		b.fixups = append(b.fixups, fixup{pc: pc, label: label})
	}
	return pc
}

// SetErrorHandler records the pc constraint failures divert to.
func (b *Builder) SetErrorHandler(pc int) {
	b.prog.ErrorHandler = pc
}

// Finish returns the built program. It panics if any label was
// allocated but never resolved, since the program would carry a jump to
// pc 0 that the author never intended.
func (b *Builder) Finish() *Program {
	for i, pc := range b.labels {
		util.Assert(pc >= 0, "label %d allocated but never resolved", i)
	}
	return b.prog
}

// trackRegs keeps NumRegs ahead of any register operand so that
// hand-assembled programs that skip AllocReg still declare enough
// registers.
func (b *Builder) trackRegs(op OpCode, p1, p2, p3 int32) {
	fl := op.Flags()
	if fl&(OpflgIn1) != 0 && int(p1) >= b.prog.NumRegs {
		b.prog.NumRegs = int(p1) + 1
	}
	if fl&(OpflgIn2|OpflgOut2) != 0 && int(p2) >= b.prog.NumRegs {
		b.prog.NumRegs = int(p2) + 1
	}
	if fl&(OpflgIn3|OpflgOut3) != 0 && int(p3) >= b.prog.NumRegs {
		b.prog.NumRegs = int(p3) + 1
	}
}

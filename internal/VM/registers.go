package VM

import "github.com/kitedb/kite/internal/SF/util"

// RegisterFile is the flat addressable backing store for all instruction
// operands and results. It grows on demand but never past the register
// count the program declared at construction time; the resolution pass
// has already checked every static register reference against that
// count, so an out-of-range index here is a VM bug, not a runtime
// condition.
type RegisterFile struct {
	regs []Value
	max  int
}

// NewRegisterFile creates a file bounded at the program-declared count.
func NewRegisterFile(declared int) *RegisterFile {
	util.Assert(declared >= 0, "register count %d may not be negative", declared)
	n := declared
	if n > 64 {
		n = 64
	}
	return &RegisterFile{regs: make([]Value, n), max: declared}
}

func (rf *RegisterFile) grow(i int) {
	util.Assert(i >= 0 && i < rf.max, "register %d outside declared range [0,%d)", i, rf.max)
	if i >= len(rf.regs) {
		extra := make([]Value, i+1-len(rf.regs))
		rf.regs = append(rf.regs, extra...)
	}
}

// Read never fails: a register that was never written reads as NULL.
// Reading a moved-from register violates the program contract and
// panics via assert so tests catch it.
func (rf *RegisterFile) Read(i int) Value {
	rf.grow(i)
	v := rf.regs[i]
	util.Assert(!v.undef, "read of register %d after Move left it undefined", i)
	return v
}

// Write stores v, clearing the moved-from marker. The subtype of the
// slot is whatever v carries; handlers that preserve a subtype must do
// so explicitly.
func (rf *RegisterFile) Write(i int, v Value) {
	rf.grow(i)
	v.undef = false
	rf.regs[i] = v
}

// ptr exposes a slot for in-place mutation by handlers.
func (rf *RegisterFile) ptr(i int) *Value {
	rf.grow(i)
	return &rf.regs[i]
}

// CopyRange copies n registers from src to dst, a shallow value copy
// preserving type tags and subtypes.
func (rf *RegisterFile) CopyRange(src, dst, n int) {
	for k := 0; k < n; k++ {
		rf.Write(dst+k, rf.Read(src+k))
	}
}

// MoveRange transfers n registers from src to dst and marks every source
// register undefined; reading one again before a write is a
// programming-contract violation.
func (rf *RegisterFile) MoveRange(src, dst, n int) {
	util.Assert(src+n <= dst || dst+n <= src,
		"move ranges r[%d..%d) and r[%d..%d) overlap", src, src+n, dst, dst+n)
	for k := 0; k < n; k++ {
		rf.grow(src + k)
		rf.Write(dst+k, rf.regs[src+k])
		rf.regs[src+k] = undefValue()
	}
}

// Range returns a copy of n registers starting at start, used to shape a
// result row that survives the next instruction.
func (rf *RegisterFile) Range(start, n int) []Value {
	out := make([]Value, n)
	for k := 0; k < n; k++ {
		out[k] = rf.Read(start + k)
	}
	return out
}

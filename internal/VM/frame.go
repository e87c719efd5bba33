package VM

// Coroutine is the resumable frame created by InitCoroutine and stored
// in a register. Yield swaps the interpreter's program counter with the
// frame's saved pc; EndCoroutine marks the frame finished so that a
// further Yield into it is rejected as a contract violation.
type Coroutine struct {
	pc    int
	ended bool
}

// returnStack holds pending Gosub return addresses. Return pops the most
// recent entry, so nested subroutines unwind in LIFO order without the
// caller having to dedicate a register to the link address.
type returnStack struct {
	addrs []int
}

func (s *returnStack) push(pc int) {
	s.addrs = append(s.addrs, pc)
}

func (s *returnStack) pop() (int, bool) {
	if len(s.addrs) == 0 {
		return 0, false
	}
	pc := s.addrs[len(s.addrs)-1]
	s.addrs = s.addrs[:len(s.addrs)-1]
	return pc, true
}

func (s *returnStack) reset() {
	s.addrs = s.addrs[:0]
}

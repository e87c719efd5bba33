package VM

import "testing"

func TestJumpOpcodesGroupedLow(t *testing.T) {
	for op := OpCode(0); op < NumOpcodes; op++ {
		isJump := op.Flags()&OpflgJump != 0
		if op <= MxJumpOp && !isJump {
			t.Errorf("%s is at or below MxJumpOp but lacks the jump flag", op)
		}
		if op > MxJumpOp && isJump {
			t.Errorf("%s is above MxJumpOp but carries the jump flag", op)
		}
	}
}

func TestOpcodeNameRoundTrip(t *testing.T) {
	for op := OpCode(0); op < NumOpcodes; op++ {
		name := op.String()
		if name == "" || name == "Op?" {
			t.Fatalf("opcode %d has no name", op)
		}
		back, ok := OpcodeByName(name)
		if !ok || back != op {
			t.Errorf("OpcodeByName(%q) = %v, %v", name, back, ok)
		}
	}
}

func TestUnknownOpcode(t *testing.T) {
	bogus := NumOpcodes + 5
	if bogus.Flags() != 0 {
		t.Error("out-of-range opcode reports flags")
	}
	if bogus.String() != "Op?" {
		t.Errorf("out-of-range opcode name = %q", bogus.String())
	}
	if _, ok := OpcodeByName("NoSuchOpcode"); ok {
		t.Error("OpcodeByName accepted an unknown name")
	}
}

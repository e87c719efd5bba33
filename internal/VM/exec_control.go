package VM

import (
	"github.com/kitedb/kite/internal/SF/errors"
	"github.com/kitedb/kite/internal/SF/util"
)

func init() {
	handlers[OpInit] = execInit
	handlers[OpGoto] = execGoto
	handlers[OpGosub] = execGosub
	handlers[OpReturn] = execReturn
	handlers[OpInitCoroutine] = execInitCoroutine
	handlers[OpYield] = execYield
	handlers[OpEndCoroutine] = execEndCoroutine
	handlers[OpMustBeInt] = execMustBeInt
	handlers[OpJump] = execJump
	handlers[OpOnce] = execOnce
	handlers[OpIf] = execIf
	handlers[OpIfNot] = execIfNot
	handlers[OpIfPos] = execIfPos
	handlers[OpDecrJumpZero] = execDecrJumpZero
	handlers[OpIsNull] = execIsNull
	handlers[OpNotNull] = execNotNull
	handlers[OpHalt] = execHalt
	handlers[OpHaltIfNull] = execHaltIfNull
	handlers[OpNoop] = execNoop
	handlers[OpExplain] = execNoop
}

func execInit(vm *VM, in *Instruction) (int, error) {
	if in.P2 > 0 {
		return int(in.P2), nil
	}
	return vm.pc + 1, nil
}

func execGoto(vm *VM, in *Instruction) (int, error) {
	return int(in.P2), nil
}

func execGosub(vm *VM, in *Instruction) (int, error) {
	vm.rets.push(vm.pc + 1)
	return int(in.P2), nil
}

func execReturn(vm *VM, in *Instruction) (int, error) {
	pc, ok := vm.rets.pop()
	if !ok {
		return 0, errors.New(errors.KT_PROGRAM, "Return with empty return stack")
	}
	return pc, nil
}

// InitCoroutine stores a frame for the generator starting at P3 into
// r[P1], then either jumps past the generator body (P2 != 0) or falls
// through into it.
func execInitCoroutine(vm *VM, in *Instruction) (int, error) {
	vm.regs.Write(int(in.P1), frameValue(&Coroutine{pc: int(in.P3)}))
	if in.P2 > 0 {
		return int(in.P2), nil
	}
	return vm.pc + 1, nil
}

// Yield swaps the program counter with the frame in r[P1]. Executed by
// the consumer it resumes the generator; executed by the generator it
// hands the pending row back. When the generator has already ended, the
// consumer jumps to P2, or errors if no P2 was given.
func execYield(vm *VM, in *Instruction) (int, error) {
	v := vm.regs.Read(int(in.P1))
	if v.tag != TagFrame {
		return 0, errors.Errorf(errors.KT_PROGRAM, "Yield on r[%d] holding %s, not a coroutine", in.P1, v.Tag())
	}
	fr := v.frame
	if fr.ended {
		if in.P2 == 0 {
			return 0, errors.New(errors.KT_PROGRAM, "Yield into ended coroutine")
		}
		return int(in.P2), nil
	}
	next := fr.pc
	fr.pc = vm.pc + 1
	return next, nil
}

// EndCoroutine marks the frame in r[P1] finished and resumes the
// consumer after its Yield. The frame pc points at the instruction
// following the consumer's Yield, so the consumer's jump-if-ended
// target lives in the instruction just before it.
func execEndCoroutine(vm *VM, in *Instruction) (int, error) {
	v := vm.regs.Read(int(in.P1))
	if v.tag != TagFrame {
		return 0, errors.Errorf(errors.KT_PROGRAM, "EndCoroutine on r[%d] holding %s", in.P1, v.Tag())
	}
	fr := v.frame
	if fr.ended {
		return 0, errors.New(errors.KT_PROGRAM, "EndCoroutine on already-ended coroutine")
	}
	fr.ended = true
	caller := &vm.prog.Instructions[fr.pc-1]
	util.Assert(caller.Op == OpYield, "EndCoroutine resumes pc %d whose predecessor is %s, not Yield", fr.pc, caller.Op)
	if caller.P2 == 0 {
		return 0, errors.New(errors.KT_PROGRAM, "coroutine ended but the resuming Yield has no end target")
	}
	return int(caller.P2), nil
}

func execMustBeInt(vm *VM, in *Instruction) (int, error) {
	v := vm.regs.ptr(int(in.P1))
	if v.tag == TagInt {
		return vm.pc + 1, nil
	}
	if v.tag == TagReal && float64(int64(v.r)) == v.r {
		*v = IntValue(int64(v.r))
		return vm.pc + 1, nil
	}
	if in.P2 == 0 {
		return 0, errors.New(errors.KT_MISUSE, "datatype mismatch: integer required")
	}
	return int(in.P2), nil
}

// Jump transfers to P1, P2 or P3 depending on whether the most recent
// comparison came out less, equal or greater.
func execJump(vm *VM, in *Instruction) (int, error) {
	switch {
	case vm.lastCmp < 0:
		return int(in.P1), nil
	case vm.lastCmp == 0:
		return int(in.P2), nil
	default:
		return int(in.P3), nil
	}
}

func execOnce(vm *VM, in *Instruction) (int, error) {
	if vm.onceFired[vm.pc] {
		return int(in.P2), nil
	}
	vm.onceFired[vm.pc] = true
	return vm.pc + 1, nil
}

func execIf(vm *VM, in *Instruction) (int, error) {
	t, null := vm.regs.Read(int(in.P1)).Truth()
	if null {
		if in.P3 != 0 {
			return int(in.P2), nil
		}
		return vm.pc + 1, nil
	}
	if t {
		return int(in.P2), nil
	}
	return vm.pc + 1, nil
}

func execIfNot(vm *VM, in *Instruction) (int, error) {
	t, null := vm.regs.Read(int(in.P1)).Truth()
	if null {
		if in.P3 != 0 {
			return int(in.P2), nil
		}
		return vm.pc + 1, nil
	}
	if !t {
		return int(in.P2), nil
	}
	return vm.pc + 1, nil
}

// IfPos jumps when r[P1] > 0, decrementing it by P3 first.
func execIfPos(vm *VM, in *Instruction) (int, error) {
	v := vm.regs.ptr(int(in.P1))
	if v.tag == TagInt && v.n > 0 {
		v.n -= int64(in.P3)
		return int(in.P2), nil
	}
	return vm.pc + 1, nil
}

func execDecrJumpZero(vm *VM, in *Instruction) (int, error) {
	v := vm.regs.ptr(int(in.P1))
	if v.tag != TagInt {
		return 0, errors.Errorf(errors.KT_PROGRAM, "DecrJumpZero on non-integer r[%d]", in.P1)
	}
	if v.n > -9223372036854775808 {
		v.n--
	}
	if v.n == 0 {
		return int(in.P2), nil
	}
	return vm.pc + 1, nil
}

func execIsNull(vm *VM, in *Instruction) (int, error) {
	if vm.regs.Read(int(in.P1)).IsNull() {
		return int(in.P2), nil
	}
	return vm.pc + 1, nil
}

func execNotNull(vm *VM, in *Instruction) (int, error) {
	if !vm.regs.Read(int(in.P1)).IsNull() {
		return int(in.P2), nil
	}
	return vm.pc + 1, nil
}

// haltWith centralizes the Halt family: a non-OK status rolls back the
// statement's effects before the VM reports completion.
func haltWith(vm *VM, statusCode int32, msg string) (int, error) {
	switch statusCode {
	case 0:
		vm.status = StatusOK
		vm.haltErr = nil
	case int32(errors.KT_CONSTRAINT):
		vm.status = StatusConstraint
		if msg == "" {
			msg = "constraint failed"
		}
		vm.haltErr = errors.New(errors.KT_CONSTRAINT, msg)
	case int32(errors.KT_IOERR):
		vm.status = StatusIOErr
		if msg == "" {
			msg = "I/O error"
		}
		vm.haltErr = errors.New(errors.KT_IOERR, msg)
	default:
		vm.status = StatusAborted
		if msg == "" {
			msg = "program aborted"
		}
		vm.haltErr = errors.New(errors.KT_ABORT, msg)
	}
	if vm.status != StatusOK {
		if err := vm.txn.StatementRollback(); err != nil {
			vmLog.Errorf("statement rollback: %s", err.Error())
		}
	}
	return 0, errHalted
}

func execHalt(vm *VM, in *Instruction) (int, error) {
	msg, _ := in.P4.(string)
	return haltWith(vm, in.P1, msg)
}

func execHaltIfNull(vm *VM, in *Instruction) (int, error) {
	if !vm.regs.Read(int(in.P3)).IsNull() {
		return vm.pc + 1, nil
	}
	msg, _ := in.P4.(string)
	return haltWith(vm, in.P1, msg)
}

func execNoop(vm *VM, in *Instruction) (int, error) {
	return vm.pc + 1, nil
}

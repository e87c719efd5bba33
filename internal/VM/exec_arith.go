package VM

func init() {
	handlers[OpAdd] = binHandler(AddValues)
	handlers[OpSubtract] = binHandler(SubValues)
	handlers[OpMultiply] = binHandler(MulValues)
	handlers[OpDivide] = binHandler(DivValues)
	handlers[OpRemainder] = binHandler(RemValues)
	handlers[OpConcat] = binHandler(ConcatValues)
	handlers[OpBitAnd] = binHandler(BitAndValues)
	handlers[OpBitOr] = binHandler(BitOrValues)
	handlers[OpBitNot] = execBitNot
	handlers[OpShiftLeft] = execShiftLeft
	handlers[OpShiftRight] = execShiftRight
}

// binHandler adapts a two-operand value function to the common operand
// layout r[P3] = op(r[P2], r[P1]).
func binHandler(op func(a, b Value) Value) opHandler {
	return func(vm *VM, in *Instruction) (int, error) {
		vm.regs.Write(int(in.P3), op(vm.regs.Read(int(in.P2)), vm.regs.Read(int(in.P1))))
		return vm.pc + 1, nil
	}
}

func execBitNot(vm *VM, in *Instruction) (int, error) {
	vm.regs.Write(int(in.P2), BitNotValue(vm.regs.Read(int(in.P1))))
	return vm.pc + 1, nil
}

func execShiftLeft(vm *VM, in *Instruction) (int, error) {
	vm.regs.Write(int(in.P3), ShiftValues(vm.regs.Read(int(in.P2)), vm.regs.Read(int(in.P1)), true))
	return vm.pc + 1, nil
}

func execShiftRight(vm *VM, in *Instruction) (int, error) {
	vm.regs.Write(int(in.P3), ShiftValues(vm.regs.Read(int(in.P2)), vm.regs.Read(int(in.P1)), false))
	return vm.pc + 1, nil
}

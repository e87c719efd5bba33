package VM

func init() {
	handlers[OpEq] = cmpHandler(func(c int) bool { return c == 0 })
	handlers[OpNe] = cmpHandler(func(c int) bool { return c != 0 })
	handlers[OpLt] = cmpHandler(func(c int) bool { return c < 0 })
	handlers[OpLe] = cmpHandler(func(c int) bool { return c <= 0 })
	handlers[OpGt] = cmpHandler(func(c int) bool { return c > 0 })
	handlers[OpGe] = cmpHandler(func(c int) bool { return c >= 0 })
	handlers[OpCompare] = execCompare
	handlers[OpAnd] = execAnd
	handlers[OpOr] = execOr
	handlers[OpNot] = execNot
}

// cmpHandler builds the handler for one comparison opcode. Comparisons
// write a boolean result register; a NULL operand yields NULL unless
// the NullEq flag requests IS semantics, under which two NULLs compare
// equal and a single NULL compares unequal. Each comparison also
// records its raw ordering for a following Jump.
func cmpHandler(want func(c int) bool) opHandler {
	return func(vm *VM, in *Instruction) (int, error) {
		a := vm.regs.Read(int(in.P1))
		b := vm.regs.Read(int(in.P2))
		if a.IsNull() || b.IsNull() {
			if in.P5&NullEq != 0 {
				eq := a.IsNull() && b.IsNull()
				if eq {
					vm.lastCmp = 0
				} else {
					vm.lastCmp = 1
				}
				vm.regs.Write(int(in.P3), BoolValue(want(vm.lastCmp)))
				return vm.pc + 1, nil
			}
			vm.regs.Write(int(in.P3), NullValue())
			return vm.pc + 1, nil
		}
		coll, _ := in.P4.(*CollSeq)
		vm.lastCmp = Compare(a, b, coll)
		vm.regs.Write(int(in.P3), BoolValue(want(vm.lastCmp)))
		return vm.pc + 1, nil
	}
}

// Compare orders the register range r[P1@P3] against r[P2@P3] column
// by column under the P4 key description and records the result for
// the Jump that must follow. NULLs sort first, matching index order.
func execCompare(vm *VM, in *Instruction) (int, error) {
	ki, _ := in.P4.(*KeyInfo)
	vm.lastCmp = 0
	for i := 0; i < int(in.P3); i++ {
		a := vm.regs.Read(int(in.P1) + i)
		b := vm.regs.Read(int(in.P2) + i)
		c := Compare(a, b, ki.coll(i))
		if ki.desc(i) {
			c = -c
		}
		if c != 0 {
			vm.lastCmp = c
			break
		}
	}
	return vm.pc + 1, nil
}

// And implements three-valued conjunction: false dominates NULL.
func execAnd(vm *VM, in *Instruction) (int, error) {
	ta, na := vm.regs.Read(int(in.P1)).Truth()
	tb, nb := vm.regs.Read(int(in.P2)).Truth()
	switch {
	case (!na && !ta) || (!nb && !tb):
		vm.regs.Write(int(in.P3), BoolValue(false))
	case na || nb:
		vm.regs.Write(int(in.P3), NullValue())
	default:
		vm.regs.Write(int(in.P3), BoolValue(true))
	}
	return vm.pc + 1, nil
}

// Or implements three-valued disjunction: true dominates NULL.
func execOr(vm *VM, in *Instruction) (int, error) {
	ta, na := vm.regs.Read(int(in.P1)).Truth()
	tb, nb := vm.regs.Read(int(in.P2)).Truth()
	switch {
	case (!na && ta) || (!nb && tb):
		vm.regs.Write(int(in.P3), BoolValue(true))
	case na || nb:
		vm.regs.Write(int(in.P3), NullValue())
	default:
		vm.regs.Write(int(in.P3), BoolValue(false))
	}
	return vm.pc + 1, nil
}

func execNot(vm *VM, in *Instruction) (int, error) {
	t, null := vm.regs.Read(int(in.P1)).Truth()
	if null {
		vm.regs.Write(int(in.P2), NullValue())
	} else {
		vm.regs.Write(int(in.P2), BoolValue(!t))
	}
	return vm.pc + 1, nil
}

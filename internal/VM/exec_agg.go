package VM

import (
	"github.com/kitedb/kite/internal/SF/errors"
)

func init() {
	handlers[OpAggStep] = execAggStep
	handlers[OpAggFinal] = execAggFinal
	handlers[OpFunction] = execFunction
	// Purity is a compiler promise; execution is identical.
	handlers[OpPureFunc] = execFunction
}

func funcDef(in *Instruction) (*FuncDef, error) {
	def, ok := in.P4.(*FuncDef)
	if !ok || def == nil {
		return nil, errors.Errorf(errors.KT_PROGRAM, "%s carries %T in P4, want *FuncDef", in.Op, in.P4)
	}
	return def, nil
}

// AggStep folds r[P2 .. P2+P5) into the accumulator register r[P3],
// creating the accumulator on the first step.
func execAggStep(vm *VM, in *Instruction) (int, error) {
	def, err := funcDef(in)
	if err != nil {
		return 0, err
	}
	if !def.isAggregate() {
		return 0, errors.Errorf(errors.KT_PROGRAM, "AggStep on scalar function %s", def.Name)
	}
	slot := vm.regs.ptr(int(in.P3))
	var acc *aggAccum
	switch slot.tag {
	case TagAgg:
		acc = slot.agg
		if acc.fn != def {
			return 0, errors.Errorf(errors.KT_PROGRAM, "accumulator r[%d] belongs to %s, stepped with %s", in.P3, acc.fn.Name, def.Name)
		}
	case TagNull:
		acc = &aggAccum{fn: def}
		*slot = aggValue(acc)
	default:
		return 0, errors.Errorf(errors.KT_PROGRAM, "AggStep target r[%d] holds %s", in.P3, slot.Tag())
	}
	args := vm.regs.Range(int(in.P2), int(in.P5))
	if err := def.Step(acc, args); err != nil {
		return 0, err
	}
	return vm.pc + 1, nil
}

// AggFinal replaces the accumulator in r[P1] with the aggregate result.
// A register never stepped finalizes as if over zero rows.
func execAggFinal(vm *VM, in *Instruction) (int, error) {
	def, err := funcDef(in)
	if err != nil {
		return 0, err
	}
	slot := vm.regs.ptr(int(in.P1))
	acc := slot.agg
	if slot.tag != TagAgg {
		if slot.tag != TagNull {
			return 0, errors.Errorf(errors.KT_PROGRAM, "AggFinal target r[%d] holds %s", in.P1, slot.Tag())
		}
		acc = &aggAccum{fn: def}
	}
	out, err := acc.fn.Final(acc)
	if err != nil {
		return 0, err
	}
	vm.regs.Write(int(in.P1), out)
	return vm.pc + 1, nil
}

// Function applies a scalar function to r[P2 .. P2+P5), result in r[P3].
func execFunction(vm *VM, in *Instruction) (int, error) {
	def, err := funcDef(in)
	if err != nil {
		return 0, err
	}
	if def.Scalar == nil {
		return 0, errors.Errorf(errors.KT_PROGRAM, "Function on aggregate %s", def.Name)
	}
	args := vm.regs.Range(int(in.P2), int(in.P5))
	out, err := def.Scalar(args)
	if err != nil {
		return 0, err
	}
	vm.regs.Write(int(in.P3), out)
	return vm.pc + 1, nil
}

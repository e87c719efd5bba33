package VM

import (
	"github.com/kitedb/kite/internal/SF/errors"
)

func init() {
	handlers[OpInteger] = execInteger
	handlers[OpInt64] = execInt64
	handlers[OpReal] = execReal
	handlers[OpString8] = execString8
	handlers[OpBlob] = execBlob
	handlers[OpNull] = execNull
	handlers[OpSoftNull] = execSoftNull
	handlers[OpVariable] = execVariable
	handlers[OpMove] = execMove
	handlers[OpCopy] = execCopy
	handlers[OpSCopy] = execSCopy
	handlers[OpIntCopy] = execIntCopy
	handlers[OpResultRow] = execResultRow
	handlers[OpAddImm] = execAddImm
	handlers[OpCast] = execCast
	handlers[OpAffinity] = execAffinity
	handlers[OpRealAffinity] = execRealAffinity
	handlers[OpGetSubtype] = execGetSubtype
	handlers[OpSetSubtype] = execSetSubtype
	handlers[OpClrSubtype] = execClrSubtype
}

func execInteger(vm *VM, in *Instruction) (int, error) {
	vm.regs.Write(int(in.P2), IntValue(int64(in.P1)))
	return vm.pc + 1, nil
}

func execInt64(vm *VM, in *Instruction) (int, error) {
	n, ok := in.P4.(int64)
	if !ok {
		return 0, errors.Errorf(errors.KT_PROGRAM, "Int64 carries %T in P4", in.P4)
	}
	vm.regs.Write(int(in.P2), IntValue(n))
	return vm.pc + 1, nil
}

func execReal(vm *VM, in *Instruction) (int, error) {
	r, ok := in.P4.(float64)
	if !ok {
		return 0, errors.Errorf(errors.KT_PROGRAM, "Real carries %T in P4", in.P4)
	}
	vm.regs.Write(int(in.P2), RealValue(r))
	return vm.pc + 1, nil
}

func execString8(vm *VM, in *Instruction) (int, error) {
	s, ok := in.P4.(string)
	if !ok {
		return 0, errors.Errorf(errors.KT_PROGRAM, "String8 carries %T in P4", in.P4)
	}
	vm.regs.Write(int(in.P2), TextValue(s))
	return vm.pc + 1, nil
}

func execBlob(vm *VM, in *Instruction) (int, error) {
	b, ok := in.P4.([]byte)
	if !ok {
		return 0, errors.Errorf(errors.KT_PROGRAM, "Blob carries %T in P4", in.P4)
	}
	vm.regs.Write(int(in.P2), BlobValue(b))
	return vm.pc + 1, nil
}

// Null writes NULL into r[P2] through r[P3]; P3 of zero nulls only P2.
func execNull(vm *VM, in *Instruction) (int, error) {
	last := int(in.P3)
	if last < int(in.P2) {
		last = int(in.P2)
	}
	for i := int(in.P2); i <= last; i++ {
		vm.regs.Write(i, NullValue())
	}
	return vm.pc + 1, nil
}

// SoftNull nulls r[P1] but keeps its subtype, used between MakeRecord
// passes that reuse a register.
func execSoftNull(vm *VM, in *Instruction) (int, error) {
	v := vm.regs.ptr(int(in.P1))
	sub := v.subtype
	*v = NullValue()
	v.subtype = sub
	return vm.pc + 1, nil
}

func execVariable(vm *VM, in *Instruction) (int, error) {
	i := int(in.P1)
	if i < 0 || i >= len(vm.params) {
		vm.regs.Write(int(in.P2), NullValue())
		return vm.pc + 1, nil
	}
	vm.regs.Write(int(in.P2), vm.params[i])
	return vm.pc + 1, nil
}

// Move transfers P3 registers (at least one) and leaves the sources
// undefined.
func execMove(vm *VM, in *Instruction) (int, error) {
	n := int(in.P3)
	if n < 1 {
		n = 1
	}
	vm.regs.MoveRange(int(in.P1), int(in.P2), n)
	return vm.pc + 1, nil
}

// Copy duplicates P3+1 registers.
func execCopy(vm *VM, in *Instruction) (int, error) {
	vm.regs.CopyRange(int(in.P1), int(in.P2), int(in.P3)+1)
	return vm.pc + 1, nil
}

func execSCopy(vm *VM, in *Instruction) (int, error) {
	vm.regs.Write(int(in.P2), vm.regs.Read(int(in.P1)))
	return vm.pc + 1, nil
}

func execIntCopy(vm *VM, in *Instruction) (int, error) {
	vm.regs.Write(int(in.P2), IntValue(vm.regs.Read(int(in.P1)).AsInt()))
	return vm.pc + 1, nil
}

// ResultRow snapshots r[P1..P1+P2) and suspends execution so the caller
// can consume the row.
func execResultRow(vm *VM, in *Instruction) (int, error) {
	vm.row = vm.regs.Range(int(in.P1), int(in.P2))
	return vm.pc + 1, errRow
}

func execAddImm(vm *VM, in *Instruction) (int, error) {
	v := vm.regs.ptr(int(in.P1))
	*v = IntValue(v.AsInt() + int64(in.P2))
	return vm.pc + 1, nil
}

func execCast(vm *VM, in *Instruction) (int, error) {
	v := vm.regs.ptr(int(in.P1))
	*v = CastTo(*v, byte(in.P2))
	return vm.pc + 1, nil
}

// Affinity applies the affinity string in P4 to registers r[P1..P1+P2).
func execAffinity(vm *VM, in *Instruction) (int, error) {
	affs, ok := in.P4.(string)
	if !ok || len(affs) < int(in.P2) {
		return 0, errors.Errorf(errors.KT_PROGRAM, "Affinity needs %d affinities in P4", in.P2)
	}
	for i := 0; i < int(in.P2); i++ {
		v := vm.regs.ptr(int(in.P1) + i)
		*v = ApplyAffinity(*v, affs[i])
	}
	return vm.pc + 1, nil
}

func execRealAffinity(vm *VM, in *Instruction) (int, error) {
	v := vm.regs.ptr(int(in.P1))
	if v.tag == TagInt {
		*v = RealValue(float64(v.n))
	}
	return vm.pc + 1, nil
}

func execGetSubtype(vm *VM, in *Instruction) (int, error) {
	vm.regs.Write(int(in.P2), IntValue(int64(vm.regs.Read(int(in.P1)).Subtype())))
	return vm.pc + 1, nil
}

func execSetSubtype(vm *VM, in *Instruction) (int, error) {
	sub := vm.regs.Read(int(in.P1)).AsInt()
	if sub < 0 || sub > 255 {
		return 0, errors.Errorf(errors.KT_RANGE, "subtype %d outside [0,255]", sub)
	}
	v := vm.regs.ptr(int(in.P2))
	v.subtype = uint8(sub)
	return vm.pc + 1, nil
}

func execClrSubtype(vm *VM, in *Instruction) (int, error) {
	vm.regs.ptr(int(in.P1)).subtype = 0
	return vm.pc + 1, nil
}

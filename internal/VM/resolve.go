package VM

import (
	"github.com/kitedb/kite/internal/CF"
	"github.com/kitedb/kite/internal/SF/errors"
)

// Resolve validates a program before any VM will execute it: every jump
// target must land inside the instruction sequence, every register and
// cursor operand must fall inside the declared counts, and the declared
// counts must fit the configured limits. Resolve is idempotent; running
// an unresolved program is a misuse error.
func (p *Program) Resolve(cfg CF.Config) error {
	if p.resolved {
		return nil
	}
	n := len(p.Instructions)
	if n == 0 {
		return errors.New(errors.KT_PROGRAM, "program has no instructions")
	}
	if n > cfg.MaxInstructions {
		return errors.Errorf(errors.KT_RANGE, "program length %d exceeds limit %d", n, cfg.MaxInstructions)
	}
	if p.NumRegs > cfg.MaxRegisters {
		return errors.Errorf(errors.KT_RANGE, "program declares %d registers, limit is %d", p.NumRegs, cfg.MaxRegisters)
	}
	if p.NumCursors > cfg.MaxCursors {
		return errors.Errorf(errors.KT_RANGE, "program declares %d cursors, limit is %d", p.NumCursors, cfg.MaxCursors)
	}
	if p.ErrorHandler >= n {
		return errors.Errorf(errors.KT_PROGRAM, "error handler pc %d outside program", p.ErrorHandler)
	}
	for pc := range p.Instructions {
		in := &p.Instructions[pc]
		if int(in.Op) >= int(NumOpcodes) {
			return errors.Errorf(errors.KT_PROGRAM, "pc %d: unknown opcode %d", pc, in.Op)
		}
		fl := in.Op.Flags()
		if fl&OpflgJump != 0 {
			// Jump0 opcodes treat P2 == 0 as "fall through"; their
			// remaining operands are still checked below.
			fallsThrough := in.P2 == 0 && fl&OpflgJump0 != 0
			if !fallsThrough && (in.P2 < 0 || int(in.P2) >= n) {
				return errors.Errorf(errors.KT_PROGRAM, "pc %d: %s jumps to %d, outside [0,%d)", pc, in.Op, in.P2, n)
			}
		}
		switch in.Op {
		case OpJump:
			// Jump branches through all three operands.
			for _, t := range []int32{in.P1, in.P3} {
				if t < 0 || int(t) >= n {
					return errors.Errorf(errors.KT_PROGRAM, "pc %d: Jump target %d outside [0,%d)", pc, t, n)
				}
			}
		case OpInitCoroutine:
			if in.P3 < 0 || int(in.P3) >= n {
				return errors.Errorf(errors.KT_PROGRAM, "pc %d: InitCoroutine starts at %d, outside [0,%d)", pc, in.P3, n)
			}
			if in.P1 < 0 || int(in.P1) >= p.NumRegs {
				return errors.Errorf(errors.KT_PROGRAM, "pc %d: InitCoroutine frame register %d outside [0,%d)", pc, in.P1, p.NumRegs)
			}
		case OpNull:
			// Null writes r[P2..P3] when P3 > P2.
			if int(in.P3) >= p.NumRegs {
				return errors.Errorf(errors.KT_PROGRAM, "pc %d: Null range ends at %d, outside [0,%d)", pc, in.P3, p.NumRegs)
			}
		}
		if err := p.checkOperands(pc, in, fl); err != nil {
			return err
		}
	}
	p.resolved = true
	return nil
}

func (p *Program) checkOperands(pc int, in *Instruction, fl uint8) error {
	checkReg := func(r int32, name string) error {
		if r < 0 || int(r) >= p.NumRegs {
			return errors.Errorf(errors.KT_PROGRAM, "pc %d: %s register %s=%d outside [0,%d)", pc, in.Op, name, r, p.NumRegs)
		}
		return nil
	}
	if fl&OpflgIn1 != 0 {
		if err := checkReg(in.P1, "P1"); err != nil {
			return err
		}
	}
	if fl&(OpflgIn2|OpflgOut2) != 0 {
		if err := checkReg(in.P2, "P2"); err != nil {
			return err
		}
	}
	if fl&(OpflgIn3|OpflgOut3) != 0 {
		if err := checkReg(in.P3, "P3"); err != nil {
			return err
		}
	}
	if fl&OpflgNCycle != 0 {
		if in.P1 < 0 || int(in.P1) >= p.NumCursors {
			return errors.Errorf(errors.KT_PROGRAM, "pc %d: %s cursor %d outside [0,%d)", pc, in.Op, in.P1, p.NumCursors)
		}
	}
	return nil
}

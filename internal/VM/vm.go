package VM

import (
	"sync/atomic"

	"github.com/kitedb/kite/internal/CF"
	"github.com/kitedb/kite/internal/DS"
	"github.com/kitedb/kite/internal/SF/errors"
	"github.com/kitedb/kite/internal/SF/util"
	"github.com/kitedb/kite/internal/TM"
	"github.com/kitedb/kite/internal/log"
)

var vmLog = log.Get("kite.vm")

// opHandler executes one instruction and returns the next pc.
type opHandler func(vm *VM, in *Instruction) (int, error)

// handlers is the dispatch table, indexed by opcode. Filled by the
// per-family init functions in the exec_*.go files.
var handlers [NumOpcodes]opHandler

// Sentinel returns from handlers that are flow signals, not failures.
var (
	errRow    = errors.New(errors.KT_OK, "row available")
	errHalted = errors.New(errors.KT_OK, "halted")
)

// Status reports how a program run ended.
type Status int

const (
	StatusOK Status = iota
	StatusConstraint
	StatusAborted
	StatusIOErr
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusConstraint:
		return "constraint"
	case StatusAborted:
		return "aborted"
	case StatusIOErr:
		return "ioerr"
	}
	return "unknown"
}

// StepResult tells the caller what Step produced.
type StepResult int

const (
	// StepRow means a result row is waiting in Row().
	StepRow StepResult = iota
	// StepDone means the program halted.
	StepDone
)

// VM executes one resolved Program against a store. A VM is not safe
// for concurrent use except for Interrupt, which may be called from any
// goroutine.
type VM struct {
	prog *Program
	cfg  CF.Config

	store *DS.Store
	txn   *TM.Controller

	regs    *RegisterFile
	cursors []*Cursor
	rets    returnStack
	params  []Value

	pc        int
	started   bool
	halted    bool
	status    Status
	haltErr   error
	lastCmp   int
	onceFired []bool
	row       []Value

	interrupted atomic.Int32
}

// New prepares a VM for prog. The program must have passed Resolve.
func New(prog *Program, store *DS.Store, txn *TM.Controller, cfg CF.Config) (*VM, error) {
	if !prog.resolved {
		return nil, errors.New(errors.KT_MISUSE, "program has not been resolved")
	}
	util.AssertNotNil(store, "store")
	util.AssertNotNil(txn, "txn")
	return &VM{
		prog:      prog,
		cfg:       cfg,
		store:     store,
		txn:       txn,
		regs:      NewRegisterFile(prog.NumRegs),
		cursors:   make([]*Cursor, prog.NumCursors),
		onceFired: make([]bool, len(prog.Instructions)),
	}, nil
}

// Bind sets bound parameter i (zero-based) read by the Variable opcode.
func (vm *VM) Bind(i int, v Value) error {
	if vm.started {
		return errors.New(errors.KT_MISUSE, "cannot bind after execution has started")
	}
	if i < 0 {
		return errors.Errorf(errors.KT_RANGE, "parameter index %d", i)
	}
	for len(vm.params) <= i {
		vm.params = append(vm.params, NullValue())
	}
	vm.params[i] = v
	return nil
}

// Interrupt asks a running program to stop at the next instruction
// boundary. Safe to call from any goroutine.
func (vm *VM) Interrupt() {
	vm.interrupted.Store(1)
}

// Row returns the result row produced by the last StepRow. The slice is
// only valid until the next Step.
func (vm *VM) Row() []Value { return vm.row }

// HaltStatus reports how the program ended, valid after StepDone.
func (vm *VM) HaltStatus() (Status, error) { return vm.status, vm.haltErr }

// Step runs instructions until the program produces a row, halts, or
// fails. After StepDone the VM stays halted; further Steps are misuse.
func (vm *VM) Step() (StepResult, error) {
	if vm.halted {
		return StepDone, errors.New(errors.KT_MISUSE, "step after program completion")
	}
	vm.started = true
	prog := vm.prog.Instructions
	for {
		if vm.interrupted.Load() != 0 {
			return vm.unwind(StatusAborted, errors.New(errors.KT_INTERRUPT, "interrupted"))
		}
		if vm.pc < 0 || vm.pc >= len(prog) {
			// Running off the end is a clean halt, matching an
			// implicit trailing Halt instruction.
			return vm.finishHalt(StatusOK, nil)
		}
		in := &prog[vm.pc]
		h := handlers[in.Op]
		util.AssertNotNil(h, in.Op.String())
		next, err := h(vm, in)
		if err != nil {
			switch {
			case err == errRow:
				vm.pc = next
				return StepRow, nil
			case err == errHalted:
				return vm.finishHalt(vm.status, vm.haltErr)
			case errors.IsCode(err, errors.KT_CONSTRAINT):
				return vm.onConstraint(err)
			case errors.IsCode(err, errors.KT_IOERR):
				return vm.unwind(StatusIOErr, err)
			default:
				return vm.unwind(StatusAborted, err)
			}
		}
		vm.pc = next
	}
}

// Run drains the program, calling yield for every result row. A nil
// yield discards rows.
func (vm *VM) Run(yield func(row []Value) error) (Status, error) {
	for {
		res, err := vm.Step()
		if err != nil {
			return vm.status, err
		}
		if res == StepDone {
			return vm.status, vm.haltErr
		}
		if yield != nil {
			if err := yield(vm.row); err != nil {
				vm.Interrupt()
				_, serr := vm.Step()
				if serr != nil {
					vmLog.Errorf("unwind after yield error: %s", serr.Error())
				}
				return vm.status, err
			}
		}
	}
}

// onConstraint routes a constraint failure: the statement's effects are
// rolled back, then control moves to the program's error handler when
// one was declared, otherwise the whole program unwinds.
func (vm *VM) onConstraint(cause error) (StepResult, error) {
	if err := vm.txn.StatementRollback(); err != nil {
		vmLog.Errorf("statement rollback: %s", err.Error())
	}
	if vm.prog.ErrorHandler >= 0 {
		vmLog.Infof("constraint failure, diverting to handler at pc %d: %s", vm.prog.ErrorHandler, cause.Error())
		vm.pc = vm.prog.ErrorHandler
		return vm.Step()
	}
	vm.closeAllCursors()
	vm.halted = true
	vm.status = StatusConstraint
	vm.haltErr = cause
	return StepDone, cause
}

// unwind abandons the program: statement effects are rolled back and
// every cursor is closed.
func (vm *VM) unwind(status Status, cause error) (StepResult, error) {
	if err := vm.txn.StatementRollback(); err != nil {
		vmLog.Errorf("statement rollback: %s", err.Error())
	}
	vm.closeAllCursors()
	vm.halted = true
	vm.status = status
	vm.haltErr = cause
	return StepDone, cause
}

// finishHalt concludes a run that ended through Halt or by running off
// the end of the program.
func (vm *VM) finishHalt(status Status, cause error) (StepResult, error) {
	vm.closeAllCursors()
	vm.halted = true
	vm.status = status
	vm.haltErr = cause
	if status == StatusOK {
		if err := vm.txn.StatementCommit(); err != nil {
			vmLog.Errorf("statement commit: %s", err.Error())
		}
		return StepDone, nil
	}
	return StepDone, cause
}

// closeCursor releases slot i, dropping the transient tree backing an
// ephemeral cursor so it cannot outlive the program.
func (vm *VM) closeCursor(i int) error {
	c := vm.cursors[i]
	vm.cursors[i] = nil
	if c != nil && c.kind == cursorEphemeral {
		return vm.store.DropTree(c.root)
	}
	return nil
}

func (vm *VM) closeAllCursors() {
	for i := range vm.cursors {
		if err := vm.closeCursor(i); err != nil {
			vmLog.Errorf("dropping ephemeral tree: %s", err.Error())
		}
	}
}

// cursor fetches an open cursor slot; opcodes referencing a never-opened
// cursor are a program bug the resolution pass cannot see.
func (vm *VM) cursor(i int32) (*Cursor, error) {
	c := vm.cursors[i]
	if c == nil {
		return nil, errors.Errorf(errors.KT_MISUSE, "cursor %d is not open", i)
	}
	return c, nil
}

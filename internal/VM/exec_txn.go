package VM

import (
	"github.com/kitedb/kite/internal/SF/errors"
)

func init() {
	handlers[OpSavepoint] = execSavepoint
	handlers[OpTransaction] = execTransaction
	handlers[OpAutoCommit] = execAutoCommit
}

// Savepoint P1 values.
const (
	SavepointBegin    = 0
	SavepointRelease  = 1
	SavepointRollback = 2
)

func execSavepoint(vm *VM, in *Instruction) (int, error) {
	name, _ := in.P4.(string)
	switch in.P1 {
	case SavepointBegin:
		vm.txn.Savepoint(name)
	case SavepointRelease:
		if err := vm.txn.Release(name); err != nil {
			return 0, err
		}
	case SavepointRollback:
		if err := vm.txn.RollbackTo(name); err != nil {
			return 0, err
		}
	default:
		return 0, errors.Errorf(errors.KT_PROGRAM, "Savepoint P1=%d", in.P1)
	}
	return vm.pc + 1, nil
}

// Transaction opens the enclosing transaction if none is active and
// starts the statement savepoint for write programs (P2 != 0), so a
// failed statement can roll back without disturbing the transaction.
func execTransaction(vm *VM, in *Instruction) (int, error) {
	vm.txn.Begin()
	if in.P2 != 0 {
		vm.txn.StatementBegin()
	}
	return vm.pc + 1, nil
}

func execAutoCommit(vm *VM, in *Instruction) (int, error) {
	if in.P1 == 0 {
		return vm.pc + 1, vm.txn.Commit()
	}
	return vm.pc + 1, vm.txn.Rollback()
}

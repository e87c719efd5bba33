// Package TM tracks the transaction and savepoint obligations of one
// executing program: the enclosing transaction, named savepoints opened
// by control opcodes, and the anonymous statement savepoint the
// interpreter unwinds to on a fatal error.
package TM

import (
	"github.com/google/uuid"

	"github.com/kitedb/kite/internal/DS"
	"github.com/kitedb/kite/internal/SF/errors"
	"github.com/kitedb/kite/internal/SF/util"
	"github.com/kitedb/kite/internal/log"
)

var tmLog = log.Get("kite.tm")

// Controller mediates between the VM's transaction opcodes and the
// store's savepoint journal. It is owned by a single program and is not
// safe for concurrent use.
type Controller struct {
	store    *DS.Store
	txName   string   // "" when no transaction is open
	named    []string // user savepoints, innermost last
	stmt     string   // anonymous statement savepoint, "" when none
	stmtMark int      // len(named) when the statement savepoint opened
}

// NewController returns a controller bound to store.
func NewController(store *DS.Store) *Controller {
	util.AssertNotNil(store, "store")
	return &Controller{store: store}
}

// InTransaction reports whether a transaction is open.
func (c *Controller) InTransaction() bool { return c.txName != "" }

// Begin opens a transaction. Opening inside an open transaction is a
// no-op, matching the Transaction opcode's semantics.
func (c *Controller) Begin() {
	if c.txName != "" {
		return
	}
	c.txName = "tx-" + uuid.New().String()
	c.store.OpenSavepoint(c.txName)
	tmLog.Debugf("transaction %s open", c.txName)
}

// Commit releases the transaction savepoint, making every change since
// Begin permanent, and forgets all savepoints nested inside it.
func (c *Controller) Commit() error {
	if c.txName == "" {
		return errors.New(errors.KT_MISUSE, "commit without open transaction")
	}
	err := c.store.ReleaseSavepoint(c.txName)
	c.txName = ""
	c.named = nil
	c.stmt = ""
	return err
}

// Rollback undoes the whole transaction.
func (c *Controller) Rollback() error {
	if c.txName == "" {
		return errors.New(errors.KT_MISUSE, "rollback without open transaction")
	}
	if err := c.store.RollbackSavepoint(c.txName); err != nil {
		return err
	}
	err := c.store.ReleaseSavepoint(c.txName)
	c.txName = ""
	c.named = nil
	c.stmt = ""
	return err
}

// Savepoint opens a named savepoint. An empty name gets a generated one;
// the chosen name is returned.
func (c *Controller) Savepoint(name string) string {
	if name == "" {
		name = "sp-" + uuid.New().String()
	}
	c.store.OpenSavepoint(name)
	c.named = append(c.named, name)
	return name
}

// Release releases the named savepoint, keeping its changes.
func (c *Controller) Release(name string) error {
	i := c.findNamed(name)
	if i < 0 {
		return errors.Errorf(errors.KT_NOTFOUND, "no such savepoint: %s", name)
	}
	if err := c.store.ReleaseSavepoint(name); err != nil {
		return err
	}
	c.named = c.named[:i]
	return nil
}

// RollbackTo undoes changes back to the named savepoint, which stays
// open.
func (c *Controller) RollbackTo(name string) error {
	i := c.findNamed(name)
	if i < 0 {
		return errors.Errorf(errors.KT_NOTFOUND, "no such savepoint: %s", name)
	}
	if err := c.store.RollbackSavepoint(name); err != nil {
		return err
	}
	c.named = c.named[:i+1]
	return nil
}

func (c *Controller) findNamed(name string) int {
	for i := len(c.named) - 1; i >= 0; i-- {
		if c.named[i] == name {
			return i
		}
	}
	return -1
}

// StatementBegin opens the anonymous savepoint a statement unwinds to on
// error. Idempotent within one statement.
func (c *Controller) StatementBegin() {
	if c.stmt != "" {
		return
	}
	c.stmt = "stmt-" + uuid.New().String()
	c.stmtMark = len(c.named)
	c.store.OpenSavepoint(c.stmt)
}

// StatementCommit releases the statement savepoint after a successful
// halt. The store's release discards every savepoint opened after it,
// so named savepoints opened inside the statement are forgotten too.
func (c *Controller) StatementCommit() error {
	if c.stmt == "" {
		return nil
	}
	err := c.store.ReleaseSavepoint(c.stmt)
	c.stmt = ""
	c.dropInnerNamed()
	return err
}

// StatementRollback is the interpreter's unwind path: it restores the
// store to the statement start, discarding named savepoints the
// statement opened. With no statement savepoint open (the program never
// wrote), it falls back to rolling back the transaction if one is open.
func (c *Controller) StatementRollback() error {
	if c.stmt != "" {
		name := c.stmt
		c.stmt = ""
		c.dropInnerNamed()
		if err := c.store.RollbackSavepoint(name); err != nil {
			return err
		}
		return c.store.ReleaseSavepoint(name)
	}
	if c.txName != "" {
		return c.Rollback()
	}
	return nil
}

// dropInnerNamed forgets named savepoints opened after the statement
// savepoint, which the store no longer knows about.
func (c *Controller) dropInnerNamed() {
	if c.stmtMark <= len(c.named) {
		c.named = c.named[:c.stmtMark]
	}
}

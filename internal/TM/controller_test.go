package TM

import (
	"testing"

	"github.com/kitedb/kite/internal/DS"
	"github.com/kitedb/kite/internal/SF/errors"
)

func setup(t *testing.T) (*Controller, *DS.Store, int) {
	t.Helper()
	store := DS.NewStore()
	root := store.CreateTree(nil)
	return NewController(store), store, root
}

func TestCommitKeepsChanges(t *testing.T) {
	c, store, root := setup(t)
	c.Begin()
	if err := store.Insert(root, []byte("k"), []byte("v")); err != nil {
		t.Fatal(err)
	}
	if err := c.Commit(); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := store.Get(root, []byte("k")); !ok {
		t.Error("committed change lost")
	}
	if c.InTransaction() {
		t.Error("still in transaction after commit")
	}
}

func TestRollbackUndoesChanges(t *testing.T) {
	c, store, root := setup(t)
	c.Begin()
	if err := store.Insert(root, []byte("k"), []byte("v")); err != nil {
		t.Fatal(err)
	}
	if err := c.Rollback(); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := store.Get(root, []byte("k")); ok {
		t.Error("rolled-back change survived")
	}
}

func TestNestedSavepoints(t *testing.T) {
	c, store, root := setup(t)
	c.Begin()
	if err := store.Insert(root, []byte("a"), nil); err != nil {
		t.Fatal(err)
	}
	c.Savepoint("one")
	if err := store.Insert(root, []byte("b"), nil); err != nil {
		t.Fatal(err)
	}
	c.Savepoint("two")
	if err := store.Insert(root, []byte("c"), nil); err != nil {
		t.Fatal(err)
	}

	if err := c.RollbackTo("one"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := store.Get(root, []byte("b")); ok {
		t.Error("b should be undone")
	}
	if _, ok, _ := store.Get(root, []byte("c")); ok {
		t.Error("c should be undone")
	}
	// "two" was nested inside "one" and is gone now.
	if err := c.Release("two"); err == nil {
		t.Error("two should no longer exist")
	}
	if err := c.Commit(); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := store.Get(root, []byte("a")); !ok {
		t.Error("a should persist")
	}
}

func TestGeneratedSavepointNames(t *testing.T) {
	c, _, _ := setup(t)
	n1 := c.Savepoint("")
	n2 := c.Savepoint("")
	if n1 == "" || n1 == n2 {
		t.Errorf("generated names must be unique and non-empty: %q %q", n1, n2)
	}
}

func TestStatementRollbackRestoresStart(t *testing.T) {
	c, store, root := setup(t)
	if err := store.Insert(root, []byte("pre"), nil); err != nil {
		t.Fatal(err)
	}
	c.StatementBegin()
	if err := store.Insert(root, []byte("mid"), nil); err != nil {
		t.Fatal(err)
	}
	if err := c.StatementRollback(); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := store.Get(root, []byte("pre")); !ok {
		t.Error("pre-statement state must survive")
	}
	if _, ok, _ := store.Get(root, []byte("mid")); ok {
		t.Error("statement change must be undone")
	}
}

func TestStatementRollbackFallsBackToTransaction(t *testing.T) {
	c, store, root := setup(t)
	c.Begin()
	if err := store.Insert(root, []byte("k"), nil); err != nil {
		t.Fatal(err)
	}
	if err := c.StatementRollback(); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := store.Get(root, []byte("k")); ok {
		t.Error("fallback should roll back the transaction")
	}
	if c.InTransaction() {
		t.Error("transaction should be closed")
	}
}

func TestStatementRollbackDropsInnerSavepoints(t *testing.T) {
	// The store forgets savepoints opened after the statement savepoint
	// when the statement unwinds; the controller must not keep their
	// names alive.
	c, store, root := setup(t)
	c.Begin()
	outer := c.Savepoint("")
	c.StatementBegin()
	inner := c.Savepoint("")
	if err := store.Insert(root, []byte("k"), nil); err != nil {
		t.Fatal(err)
	}
	if err := c.StatementRollback(); err != nil {
		t.Fatal(err)
	}
	if err := c.Release(inner); !errors.IsCode(err, errors.KT_NOTFOUND) {
		t.Errorf("release of discarded savepoint: %v, want KT_NOTFOUND", err)
	}
	if err := c.RollbackTo(inner); !errors.IsCode(err, errors.KT_NOTFOUND) {
		t.Errorf("rollback-to discarded savepoint: %v, want KT_NOTFOUND", err)
	}
	if err := c.RollbackTo(outer); err != nil {
		t.Errorf("savepoint opened before the statement must survive: %v", err)
	}
}

func TestStatementCommitDropsInnerSavepoints(t *testing.T) {
	c, _, _ := setup(t)
	c.Begin()
	c.StatementBegin()
	inner := c.Savepoint("")
	if err := c.StatementCommit(); err != nil {
		t.Fatal(err)
	}
	if err := c.Release(inner); !errors.IsCode(err, errors.KT_NOTFOUND) {
		t.Errorf("release of discarded savepoint: %v, want KT_NOTFOUND", err)
	}
}

func TestMisuse(t *testing.T) {
	c, _, _ := setup(t)
	if err := c.Commit(); err == nil {
		t.Error("commit without begin should fail")
	}
	if err := c.Rollback(); err == nil {
		t.Error("rollback without begin should fail")
	}
	if err := c.RollbackTo("nope"); err == nil {
		t.Error("rollback to unknown savepoint should fail")
	}
}

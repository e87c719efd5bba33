package VM

import (
	"github.com/kitedb/kite/internal/DS"
	"github.com/kitedb/kite/internal/SF/errors"
	"github.com/kitedb/kite/internal/SF/util"
)

type cursorKind uint8

const (
	cursorBtree cursorKind = iota
	cursorEphemeral
	cursorPseudo
)

// Cursor wraps a storage cursor with the interpreter-level state the
// opcodes need: the null-row flag set by NullRow/IfNullRow, the
// per-cursor sequence counter, and the key description when the cursor
// reads an index tree rather than a rowid-keyed table.
type Cursor struct {
	kind    cursorKind
	root    int
	write   bool
	keyInfo *KeyInfo

	bt      *DS.Cursor
	nullRow bool
	seq     int64

	// pseudo cursors read the record image out of a register at access
	// time, so the interpreter resolves it per instruction.
	pseudoReg int
}

func (c *Cursor) isIndex() bool { return c.keyInfo != nil }

// record returns the serialized row under the cursor. For index cursors
// the key is the record; for table cursors the value is.
func (c *Cursor) record() ([]byte, error) {
	if c.nullRow {
		return nil, nil
	}
	util.Assert(c.kind != cursorPseudo, "pseudo cursor records live in a register")
	util.AssertNotNil(c.bt, "cursor")
	if !c.bt.Valid() {
		return nil, errors.New(errors.KT_MISUSE, "cursor is not positioned on a row")
	}
	if c.isIndex() {
		return c.bt.Key(), nil
	}
	return c.bt.Value(), nil
}

// rowid returns the integer key under a table cursor.
func (c *Cursor) rowid() (int64, error) {
	util.Assert(c.kind != cursorPseudo, "pseudo cursors have no rowid")
	util.Assert(!c.isIndex(), "rowid read on index cursor")
	if !c.bt.Valid() {
		return 0, errors.New(errors.KT_MISUSE, "cursor is not positioned on a row")
	}
	return DS.RowidForKey(c.bt.Key()), nil
}

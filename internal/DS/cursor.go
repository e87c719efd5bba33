package DS

import (
	"github.com/kitedb/kite/internal/SF/errors"
)

// SeekOp selects the relational predicate of a cursor seek.
type SeekOp int

const (
	SeekEQ SeekOp = iota
	SeekGE
	SeekGT
	SeekLE
	SeekLT
)

// Cursor is a position within one tree. A cursor is owned by exactly one
// executing program; mutating the tree through any cursor invalidates the
// positions of the other cursors on that tree, which must re-seek.
type Cursor struct {
	s     *Store
	t     *tree
	root  int
	write bool
	pos   int // index into t.entries; -1 means not positioned
	// skipNext is set by Delete, which leaves the cursor already on the
	// entry after the deleted one; the next Next consumes the flag
	// instead of advancing.
	skipNext bool
}

// OpenCursor positions a new cursor before the first entry of root.
func (s *Store) OpenCursor(root int, write bool) (*Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.treeLocked(root)
	if err != nil {
		return nil, err
	}
	return &Cursor{s: s, t: t, root: root, write: write, pos: -1}, nil
}

// Valid reports whether the cursor points at an entry.
func (c *Cursor) Valid() bool {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	return c.validLocked()
}

func (c *Cursor) validLocked() bool {
	return c.pos >= 0 && c.pos < len(c.t.entries)
}

// Seek repositions the cursor per the predicate and reports whether a
// qualifying entry was found. A miss leaves the cursor unpositioned; it
// is a normal outcome, never an error.
func (c *Cursor) Seek(op SeekOp, key []byte) bool {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	c.skipNext = false
	i, exact := c.t.find(key)
	switch op {
	case SeekEQ:
		if !exact {
			c.pos = -1
			return false
		}
		c.pos = i
	case SeekGE:
		c.pos = i
	case SeekGT:
		if exact {
			c.pos = i + 1
		} else {
			c.pos = i
		}
	case SeekLE:
		if exact {
			c.pos = i
		} else {
			c.pos = i - 1
		}
	case SeekLT:
		c.pos = i - 1
	}
	if c.pos < 0 || c.pos >= len(c.t.entries) {
		c.pos = -1
		return false
	}
	return true
}

// First positions at the smallest key; reports false on an empty tree.
func (c *Cursor) First() bool {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	c.skipNext = false
	if len(c.t.entries) == 0 {
		c.pos = -1
		return false
	}
	c.pos = 0
	return true
}

// Last positions at the largest key; reports false on an empty tree.
func (c *Cursor) Last() bool {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	c.skipNext = false
	if len(c.t.entries) == 0 {
		c.pos = -1
		return false
	}
	c.pos = len(c.t.entries) - 1
	return true
}

// Next advances one entry; reports false when it runs off the end.
// Immediately after a Delete the cursor already sits on the following
// entry, so the first Next stays put.
func (c *Cursor) Next() bool {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if c.pos < 0 {
		return false
	}
	if c.skipNext {
		c.skipNext = false
		return c.validLocked()
	}
	c.pos++
	if c.pos >= len(c.t.entries) {
		c.pos = -1
		return false
	}
	return true
}

// Prev steps back one entry; reports false when it runs off the start.
func (c *Cursor) Prev() bool {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	c.skipNext = false
	if c.pos < 0 {
		return false
	}
	c.pos--
	if c.pos < 0 {
		return false
	}
	return true
}

// Key returns the key at the cursor position.
func (c *Cursor) Key() []byte {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if !c.validLocked() {
		return nil
	}
	return c.t.entries[c.pos].key
}

// Value returns the value at the cursor position.
func (c *Cursor) Value() []byte {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if !c.validLocked() {
		return nil
	}
	return c.t.entries[c.pos].val
}

// Insert upserts through the cursor and leaves it positioned on the new
// entry.
func (c *Cursor) Insert(key, val []byte) error {
	if !c.write {
		return errors.New(errors.KT_READONLY, "insert through read-only cursor")
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	c.s.insertLocked(c.root, c.t, key, val)
	i, _ := c.t.find(key)
	c.pos = i
	c.skipNext = false
	return nil
}

// Delete removes the entry under the cursor. The cursor is left on the
// following entry (or unpositioned at the end) with the skip-next flag
// set, so Next-driven loops can Delete then jump back to Next without
// passing over a row.
func (c *Cursor) Delete() error {
	if !c.write {
		return errors.New(errors.KT_READONLY, "delete through read-only cursor")
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if !c.validLocked() {
		return errors.New(errors.KT_MISUSE, "delete with unpositioned cursor")
	}
	c.s.deleteLocked(c.root, c.t, c.pos)
	if c.pos >= len(c.t.entries) {
		c.pos = -1
		c.skipNext = false
	} else {
		c.skipNext = true
	}
	return nil
}

// NumEntries reports the entry count of the cursor's tree.
func (c *Cursor) NumEntries() int {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	return len(c.t.entries)
}

// Package DS is the storage layer beneath the VM's cursors: a set of
// ordered trees addressed by root number, with key-ordered cursors and a
// savepoint journal. The VM never touches tree contents except through
// this contract.
package DS

import (
	"bytes"
	"encoding/binary"
	"sort"
	"sync"

	"github.com/kitedb/kite/internal/SF/errors"
	"github.com/kitedb/kite/internal/log"
)

// Compare orders two keys. Index trees install a record-aware comparator;
// everything else uses bytes.Compare.
type Compare func(a, b []byte) int

type entry struct {
	key []byte
	val []byte
}

type tree struct {
	cmp     Compare
	entries []entry
}

// find returns the smallest index i with entries[i].key >= key, and
// whether entries[i].key == key.
func (t *tree) find(key []byte) (int, bool) {
	i := sort.Search(len(t.entries), func(i int) bool {
		return t.cmp(t.entries[i].key, key) >= 0
	})
	if i < len(t.entries) && t.cmp(t.entries[i].key, key) == 0 {
		return i, true
	}
	return i, false
}

// undo records the state of one key before a mutation.
type undo struct {
	root    int
	key     []byte
	val     []byte
	existed bool
}

type saveMark struct {
	name string
	mark int // journal length when the savepoint opened
}

// Store is an in-memory storage engine. All methods are safe for
// concurrent use; each executing program still owns its cursors
// exclusively.
type Store struct {
	mu       sync.Mutex
	trees    map[int]*tree
	nextRoot int
	journal  []undo
	saves    []saveMark
}

var dsLog = log.Get("kite.ds")

// NewStore returns an empty store with no trees.
func NewStore() *Store {
	return &Store{trees: make(map[int]*tree), nextRoot: 1}
}

// CreateTree allocates a new empty tree and returns its root number.
// A nil cmp means bytewise key order.
func (s *Store) CreateTree(cmp Compare) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cmp == nil {
		cmp = bytes.Compare
	}
	root := s.nextRoot
	s.nextRoot++
	s.trees[root] = &tree{cmp: cmp}
	return root
}

// DropTree removes a tree entirely. Changes are not journaled: dropping
// is reserved for ephemeral trees that never outlive their statement.
func (s *Store) DropTree(root int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trees[root]; !ok {
		return errors.Errorf(errors.KT_NOTFOUND, "no tree with root %d", root)
	}
	delete(s.trees, root)
	return nil
}

// ClearTree deletes every entry of a tree, journaling each one.
func (s *Store) ClearTree(root int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trees[root]
	if !ok {
		return errors.Errorf(errors.KT_NOTFOUND, "no tree with root %d", root)
	}
	for _, e := range t.entries {
		s.journal = append(s.journal, undo{root: root, key: e.key, val: e.val, existed: true})
	}
	t.entries = nil
	return nil
}

// NumEntries reports how many entries a tree holds.
func (s *Store) NumEntries(root int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trees[root]
	if !ok {
		return 0, errors.Errorf(errors.KT_NOTFOUND, "no tree with root %d", root)
	}
	return len(t.entries), nil
}

func (s *Store) treeLocked(root int) (*tree, error) {
	t, ok := s.trees[root]
	if !ok {
		return nil, errors.Errorf(errors.KT_NOTFOUND, "no tree with root %d", root)
	}
	return t, nil
}

// insertLocked journals the prior state of key, then upserts.
func (s *Store) insertLocked(root int, t *tree, key, val []byte) {
	i, exact := t.find(key)
	if exact {
		s.journal = append(s.journal, undo{root: root, key: key, val: t.entries[i].val, existed: true})
		t.entries[i].val = append([]byte(nil), val...)
		return
	}
	s.journal = append(s.journal, undo{root: root, key: key, existed: false})
	k := append([]byte(nil), key...)
	v := append([]byte(nil), val...)
	t.entries = append(t.entries, entry{})
	copy(t.entries[i+1:], t.entries[i:])
	t.entries[i] = entry{key: k, val: v}
}

func (s *Store) deleteLocked(root int, t *tree, i int) {
	e := t.entries[i]
	s.journal = append(s.journal, undo{root: root, key: e.key, val: e.val, existed: true})
	t.entries = append(t.entries[:i], t.entries[i+1:]...)
}

// Insert upserts key → val into the tree at root.
func (s *Store) Insert(root int, key, val []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.treeLocked(root)
	if err != nil {
		return err
	}
	s.insertLocked(root, t, key, val)
	return nil
}

// Delete removes key from the tree at root. Deleting an absent key is a
// no-op, matching the cursor contract (absence is control flow).
func (s *Store) Delete(root int, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.treeLocked(root)
	if err != nil {
		return err
	}
	if i, exact := t.find(key); exact {
		s.deleteLocked(root, t, i)
	}
	return nil
}

// Get looks up key, returning its value and whether it exists.
func (s *Store) Get(root int, key []byte) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.treeLocked(root)
	if err != nil {
		return nil, false, err
	}
	if i, exact := t.find(key); exact {
		return t.entries[i].val, true, nil
	}
	return nil, false, nil
}

// KeyForRowid encodes a signed rowid so that bytewise key order matches
// numeric order.
func KeyForRowid(rowid int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(rowid)^(1<<63))
	return b[:]
}

// RowidForKey is the inverse of KeyForRowid.
func RowidForKey(key []byte) int64 {
	return int64(binary.BigEndian.Uint64(key) ^ (1 << 63))
}

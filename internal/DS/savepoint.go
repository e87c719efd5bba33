package DS

import (
	"github.com/kitedb/kite/internal/SF/errors"
)

// OpenSavepoint marks the current journal position under name. Savepoints
// nest; re-using a name shadows the older savepoint until released.
func (s *Store) OpenSavepoint(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves = append(s.saves, saveMark{name: name, mark: len(s.journal)})
	dsLog.Debugf("savepoint %q opened at mark %d", name, len(s.journal))
}

// ReleaseSavepoint forgets the named savepoint and every savepoint opened
// after it. Changes made since are kept; once the outermost savepoint is
// released its journal span can never be rolled back, so it is discarded.
func (s *Store) ReleaseSavepoint(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.findSavepointLocked(name)
	if i < 0 {
		return errors.Errorf(errors.KT_NOTFOUND, "no such savepoint: %s", name)
	}
	s.saves = s.saves[:i]
	if len(s.saves) == 0 {
		s.journal = s.journal[:0]
	}
	dsLog.Debugf("savepoint %q released", name)
	return nil
}

// RollbackSavepoint undoes every change made since the named savepoint
// opened, discarding savepoints nested inside it. The savepoint itself
// stays open and can be rolled back to again.
func (s *Store) RollbackSavepoint(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.findSavepointLocked(name)
	if i < 0 {
		return errors.Errorf(errors.KT_NOTFOUND, "no such savepoint: %s", name)
	}
	mark := s.saves[i].mark
	s.rollbackToMarkLocked(mark)
	s.saves = s.saves[:i+1]
	dsLog.Debugf("savepoint %q rolled back to mark %d", name, mark)
	return nil
}

func (s *Store) findSavepointLocked(name string) int {
	for i := len(s.saves) - 1; i >= 0; i-- {
		if s.saves[i].name == name {
			return i
		}
	}
	return -1
}

// rollbackToMarkLocked replays the undo journal in reverse down to mark.
// Undo application bypasses journaling: the journal shrinks, never grows,
// so a rollback that is interrupted and retried remains convergent.
func (s *Store) rollbackToMarkLocked(mark int) {
	for j := len(s.journal) - 1; j >= mark; j-- {
		u := s.journal[j]
		t, ok := s.trees[u.root]
		if !ok {
			// Tree dropped after the mark; nothing to restore into.
			continue
		}
		i, exact := t.find(u.key)
		if u.existed {
			if exact {
				t.entries[i].val = u.val
			} else {
				t.entries = append(t.entries, entry{})
				copy(t.entries[i+1:], t.entries[i:])
				t.entries[i] = entry{key: u.key, val: u.val}
			}
		} else if exact {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
		}
	}
	s.journal = s.journal[:mark]
}

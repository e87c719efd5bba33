package VM

import (
	"github.com/kitedb/kite/internal/DS"
	"github.com/kitedb/kite/internal/SF/errors"
)

func init() {
	handlers[OpColumn] = execColumn
	handlers[OpMakeRecord] = execMakeRecord
	handlers[OpRowData] = execRowData
	handlers[OpInsert] = execInsert
	handlers[OpDelete] = execDelete
	handlers[OpIdxInsert] = execIdxInsert
	handlers[OpIdxDelete] = execIdxDelete
	handlers[OpRowSetAdd] = execRowSetAdd
	handlers[OpRowSetRead] = execRowSetRead
	handlers[OpRowSetTest] = execRowSetTest
}

// cursorRecord fetches the serialized row a cursor exposes, resolving
// pseudo cursors through their backing register.
func cursorRecord(vm *VM, c *Cursor) ([]byte, error) {
	if c.kind == cursorPseudo {
		v := vm.regs.Read(c.pseudoReg)
		if v.tag != TagBlob {
			return nil, errors.Errorf(errors.KT_MISUSE, "pseudo cursor register r[%d] holds %s, not a record", c.pseudoReg, v.Tag())
		}
		return v.b, nil
	}
	return c.record()
}

func execColumn(vm *VM, in *Instruction) (int, error) {
	c, err := vm.cursor(in.P1)
	if err != nil {
		return 0, err
	}
	if c.nullRow {
		vm.regs.Write(int(in.P3), NullValue())
		return vm.pc + 1, nil
	}
	rec, err := cursorRecord(vm, c)
	if err != nil {
		return 0, err
	}
	v, err := DecodeColumn(rec, int(in.P2))
	if err != nil {
		return 0, err
	}
	// A missing trailing column takes the default in P4 when one is
	// given.
	if v.IsNull() && in.P4 != nil {
		if dv := FromAny(in.P4); !dv.IsNull() {
			v = dv
		}
	}
	vm.regs.Write(int(in.P3), v)
	return vm.pc + 1, nil
}

func execMakeRecord(vm *VM, in *Instruction) (int, error) {
	vals := vm.regs.Range(int(in.P1), int(in.P2))
	if affs, ok := in.P4.(string); ok {
		for i := range vals {
			if i < len(affs) {
				vals[i] = ApplyAffinity(vals[i], affs[i])
			}
		}
	}
	vm.regs.Write(int(in.P3), BlobValue(EncodeRecord(vals)))
	return vm.pc + 1, nil
}

func execRowData(vm *VM, in *Instruction) (int, error) {
	c, err := vm.cursor(in.P1)
	if err != nil {
		return 0, err
	}
	rec, err := cursorRecord(vm, c)
	if err != nil {
		return 0, err
	}
	vm.regs.Write(int(in.P2), BlobValue(append([]byte(nil), rec...)))
	return vm.pc + 1, nil
}

// Insert writes the record in r[P2] under the rowid in r[P3].
func execInsert(vm *VM, in *Instruction) (int, error) {
	c, err := vm.cursor(in.P1)
	if err != nil {
		return 0, err
	}
	if c.isIndex() {
		return 0, errors.New(errors.KT_MISUSE, "Insert on index cursor")
	}
	rowid := vm.regs.Read(int(in.P3))
	if rowid.tag != TagInt {
		return 0, errors.New(errors.KT_MISUSE, "Insert rowid must be an integer")
	}
	rec := vm.regs.Read(int(in.P2))
	if rec.tag != TagBlob {
		return 0, errors.Errorf(errors.KT_MISUSE, "Insert record r[%d] holds %s", in.P2, rec.Tag())
	}
	key := DS.KeyForRowid(rowid.n)
	if in.P5&NoOverwrite != 0 {
		if _, ok, err := vm.store.Get(c.root, key); err != nil {
			return 0, err
		} else if ok {
			return 0, errors.Errorf(errors.KT_CONSTRAINT_PRIMARYKEY, "rowid %d already exists", rowid.n)
		}
	}
	if err := c.bt.Insert(key, rec.b); err != nil {
		return 0, err
	}
	c.nullRow = false
	return vm.pc + 1, nil
}

func execDelete(vm *VM, in *Instruction) (int, error) {
	c, err := vm.cursor(in.P1)
	if err != nil {
		return 0, err
	}
	if c.kind == cursorPseudo {
		return 0, errors.New(errors.KT_MISUSE, "Delete on pseudo cursor")
	}
	return vm.pc + 1, c.bt.Delete()
}

// IdxInsert writes the serialized key in r[P2] into an index tree.
func execIdxInsert(vm *VM, in *Instruction) (int, error) {
	c, err := vm.cursor(in.P1)
	if err != nil {
		return 0, err
	}
	if !c.isIndex() && c.kind != cursorEphemeral {
		return 0, errors.New(errors.KT_MISUSE, "IdxInsert needs an index cursor")
	}
	v := vm.regs.Read(int(in.P2))
	if v.tag != TagBlob {
		return 0, errors.Errorf(errors.KT_MISUSE, "IdxInsert key r[%d] holds %s", in.P2, v.Tag())
	}
	if in.P5&UniqueCheck != 0 && c.keyInfo != nil {
		if dup, err := indexHasPrefix(vm, c, v.b); err != nil {
			return 0, err
		} else if dup {
			return 0, errors.New(errors.KT_CONSTRAINT_UNIQUE, "unique index constraint failed")
		}
	}
	if err := c.bt.Insert(v.b, nil); err != nil {
		return 0, err
	}
	c.nullRow = false
	return vm.pc + 1, nil
}

// indexHasPrefix probes for an existing entry whose first NField
// columns match the candidate key. Trailing columns (typically the
// rowid) are ignored, which is what distinguishes a unique index from a
// plain one.
func indexHasPrefix(vm *VM, c *Cursor, key []byte) (bool, error) {
	vals, err := DecodeRecord(key)
	if err != nil {
		return false, err
	}
	n := c.keyInfo.NField
	if n <= 0 || n > len(vals) {
		n = len(vals)
	}
	probe := EncodeRecord(vals[:n])
	scan, err := vm.store.OpenCursor(c.root, false)
	if err != nil {
		return false, err
	}
	if !scan.Seek(DS.SeekGE, probe) {
		return false, nil
	}
	existing, err := DecodeRecord(scan.Key())
	if err != nil {
		return false, err
	}
	if len(existing) < n {
		return false, nil
	}
	for i := 0; i < n; i++ {
		if Compare(existing[i], vals[i], c.keyInfo.coll(i)) != 0 {
			return false, nil
		}
		// A NULL never collides with another NULL in a unique index.
		if vals[i].IsNull() {
			return false, nil
		}
	}
	return true, nil
}

// IdxDelete removes the entry matching the key r[P2@P3], or the
// serialized key in r[P2] when P3 is zero. A missing entry is not an
// error.
func execIdxDelete(vm *VM, in *Instruction) (int, error) {
	c, err := vm.cursor(in.P1)
	if err != nil {
		return 0, err
	}
	var key []byte
	if in.P3 > 0 {
		key = EncodeRecord(vm.regs.Range(int(in.P2), int(in.P3)))
	} else {
		v := vm.regs.Read(int(in.P2))
		if v.tag != TagBlob {
			return 0, errors.Errorf(errors.KT_MISUSE, "IdxDelete key r[%d] holds %s", in.P2, v.Tag())
		}
		key = v.b
	}
	return vm.pc + 1, vm.store.Delete(c.root, key)
}

// rowSet materializes the set in a register, creating it on first use.
func rowSet(vm *VM, reg int) (*RowSet, error) {
	v := vm.regs.ptr(reg)
	switch v.tag {
	case TagRowSet:
		return v.set, nil
	case TagNull:
		rs := NewRowSet()
		*v = rowSetValue(rs)
		return rs, nil
	}
	return nil, errors.Errorf(errors.KT_PROGRAM, "r[%d] holds %s, not a rowset", reg, v.Tag())
}

func execRowSetAdd(vm *VM, in *Instruction) (int, error) {
	rs, err := rowSet(vm, int(in.P1))
	if err != nil {
		return 0, err
	}
	v := vm.regs.Read(int(in.P2))
	if v.tag != TagInt {
		return 0, errors.New(errors.KT_MISUSE, "RowSetAdd value must be an integer")
	}
	rs.Add(v.n)
	return vm.pc + 1, nil
}

// RowSetRead pops the smallest rowid into r[P3], jumping to P2 once the
// set is empty.
func execRowSetRead(vm *VM, in *Instruction) (int, error) {
	rs, err := rowSet(vm, int(in.P1))
	if err != nil {
		return 0, err
	}
	id, ok := rs.TakeSmallest()
	if !ok {
		vm.regs.Write(int(in.P1), NullValue())
		return int(in.P2), nil
	}
	vm.regs.Write(int(in.P3), IntValue(id))
	return vm.pc + 1, nil
}

// RowSetTest jumps to P2 when r[P3] is already in the set, inserting it
// otherwise.
func execRowSetTest(vm *VM, in *Instruction) (int, error) {
	rs, err := rowSet(vm, int(in.P1))
	if err != nil {
		return 0, err
	}
	v := vm.regs.Read(int(in.P3))
	if v.tag != TagInt {
		return 0, errors.New(errors.KT_MISUSE, "RowSetTest value must be an integer")
	}
	if rs.Contains(v.n) {
		return int(in.P2), nil
	}
	rs.Add(v.n)
	return vm.pc + 1, nil
}

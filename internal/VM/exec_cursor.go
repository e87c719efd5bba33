package VM

import (
	"bytes"
	"math"

	"github.com/kitedb/kite/internal/DS"
	"github.com/kitedb/kite/internal/SF/errors"
	"github.com/kitedb/kite/internal/SF/util"
)

func init() {
	handlers[OpOpenRead] = execOpenRead
	handlers[OpOpenWrite] = execOpenWrite
	handlers[OpReopenIdx] = execReopenIdx
	handlers[OpOpenEphemeral] = execOpenEphemeral
	handlers[OpOpenPseudo] = execOpenPseudo
	handlers[OpClose] = execClose
	handlers[OpNullRow] = execNullRow
	handlers[OpIfNullRow] = execIfNullRow
	handlers[OpSeekLT] = seekHandler(DS.SeekLT)
	handlers[OpSeekLE] = seekHandler(DS.SeekLE)
	handlers[OpSeekGE] = seekHandler(DS.SeekGE)
	handlers[OpSeekGT] = seekHandler(DS.SeekGT)
	handlers[OpSeekRowid] = execSeekRowid
	handlers[OpNotExists] = execNotExists
	handlers[OpFound] = foundHandler(true)
	handlers[OpNotFound] = foundHandler(false)
	handlers[OpLast] = execLast
	handlers[OpRewind] = execRewind
	handlers[OpNext] = execNext
	handlers[OpPrev] = execPrev
	handlers[OpRowid] = execRowid
	handlers[OpNewRowid] = execNewRowid
	handlers[OpSequence] = execSequence
	handlers[OpCount] = execCount
}

func openCursor(vm *VM, in *Instruction, write bool) (int, error) {
	ki, _ := in.P4.(*KeyInfo)
	bt, err := vm.store.OpenCursor(int(in.P2), write)
	if err != nil {
		return 0, err
	}
	vm.cursors[in.P1] = &Cursor{
		kind:    cursorBtree,
		root:    int(in.P2),
		write:   write,
		keyInfo: ki,
		bt:      bt,
	}
	return vm.pc + 1, nil
}

func execOpenRead(vm *VM, in *Instruction) (int, error) {
	return openCursor(vm, in, false)
}

func execOpenWrite(vm *VM, in *Instruction) (int, error) {
	return openCursor(vm, in, true)
}

// ReopenIdx skips the open when the cursor already sits on the same
// root, preserving its position across loop restarts.
func execReopenIdx(vm *VM, in *Instruction) (int, error) {
	if c := vm.cursors[in.P1]; c != nil && c.kind == cursorBtree && c.root == int(in.P2) {
		return vm.pc + 1, nil
	}
	return openCursor(vm, in, false)
}

func execOpenEphemeral(vm *VM, in *Instruction) (int, error) {
	ki, _ := in.P4.(*KeyInfo)
	cmp := bytes.Compare
	if ki != nil {
		cmp = ki.Compare
	}
	root := vm.store.CreateTree(cmp)
	bt, err := vm.store.OpenCursor(root, true)
	if err != nil {
		return 0, err
	}
	vm.cursors[in.P1] = &Cursor{
		kind:    cursorEphemeral,
		root:    root,
		write:   true,
		keyInfo: ki,
		bt:      bt,
	}
	return vm.pc + 1, nil
}

func execOpenPseudo(vm *VM, in *Instruction) (int, error) {
	vm.cursors[in.P1] = &Cursor{
		kind:      cursorPseudo,
		pseudoReg: int(in.P2),
	}
	return vm.pc + 1, nil
}

func execClose(vm *VM, in *Instruction) (int, error) {
	if err := vm.closeCursor(int(in.P1)); err != nil {
		return 0, err
	}
	return vm.pc + 1, nil
}

func execNullRow(vm *VM, in *Instruction) (int, error) {
	c, err := vm.cursor(in.P1)
	if err != nil {
		return 0, err
	}
	c.nullRow = true
	return vm.pc + 1, nil
}

func execIfNullRow(vm *VM, in *Instruction) (int, error) {
	c, err := vm.cursor(in.P1)
	if err != nil {
		return 0, err
	}
	if c.nullRow {
		vm.regs.Write(int(in.P3), NullValue())
		return int(in.P2), nil
	}
	return vm.pc + 1, nil
}

// seekKey assembles the probe key for a seek into buf: index cursors
// serialize r[P3 .. P3+P4) into a record, table cursors take the rowid
// in r[P3]. The bool result is false when the operand cannot form a
// key, which the seek treats as a miss. The key is only alive for the
// duration of the seek, so callers hand in pooled scratch space.
func seekKey(vm *VM, c *Cursor, in *Instruction, buf []byte) ([]byte, bool) {
	if c.isIndex() {
		n, _ := in.P4.(int)
		if n <= 0 {
			n = 1
		}
		return AppendRecord(buf, vm.regs.Range(int(in.P3), n)), true
	}
	v := vm.regs.Read(int(in.P3))
	switch v.tag {
	case TagInt:
		return DS.KeyForRowid(v.n), true
	case TagReal:
		if float64(int64(v.r)) == v.r {
			return DS.KeyForRowid(int64(v.r)), true
		}
	}
	return nil, false
}

func seekHandler(op DS.SeekOp) opHandler {
	return func(vm *VM, in *Instruction) (int, error) {
		c, err := vm.cursor(in.P1)
		if err != nil {
			return 0, err
		}
		if c.kind == cursorPseudo {
			return 0, errors.New(errors.KT_MISUSE, "seek on pseudo cursor")
		}
		c.nullRow = false
		buf := util.GetByteBuffer()
		defer util.PutByteBuffer(buf)
		key, ok := seekKey(vm, c, in, *buf)
		if !ok || !c.bt.Seek(op, key) {
			return int(in.P2), nil
		}
		if in.P5&OpflagSeekEQ != 0 && !seekLandedExact(c, key) {
			return int(in.P2), nil
		}
		return vm.pc + 1, nil
	}
}

// seekLandedExact reports whether the cursor landed on an entry whose
// leading columns match the probe key. Table probes compare the rowid
// key bytes; index probes compare column by column under the key's
// collations, ignoring trailing columns the probe did not encode.
func seekLandedExact(c *Cursor, probe []byte) bool {
	if !c.isIndex() {
		return bytes.Equal(c.bt.Key(), probe)
	}
	want, err := DecodeRecord(probe)
	if err != nil {
		return false
	}
	got, err := DecodeRecord(c.bt.Key())
	if err != nil || len(got) < len(want) {
		return false
	}
	for i := range want {
		if Compare(got[i], want[i], c.keyInfo.coll(i)) != 0 {
			return false
		}
	}
	return true
}

func execSeekRowid(vm *VM, in *Instruction) (int, error) {
	c, err := vm.cursor(in.P1)
	if err != nil {
		return 0, err
	}
	c.nullRow = false
	v := vm.regs.Read(int(in.P3))
	miss := func() (int, error) {
		if in.P2 == 0 {
			return 0, errors.Errorf(errors.KT_NOTFOUND, "no row with rowid %s", v.String())
		}
		return int(in.P2), nil
	}
	if v.tag != TagInt {
		return miss()
	}
	if !c.bt.Seek(DS.SeekEQ, DS.KeyForRowid(v.n)) {
		return miss()
	}
	return vm.pc + 1, nil
}

func execNotExists(vm *VM, in *Instruction) (int, error) {
	c, err := vm.cursor(in.P1)
	if err != nil {
		return 0, err
	}
	c.nullRow = false
	v := vm.regs.Read(int(in.P3))
	if v.tag == TagInt && c.bt.Seek(DS.SeekEQ, DS.KeyForRowid(v.n)) {
		return vm.pc + 1, nil
	}
	return int(in.P2), nil
}

// foundHandler builds Found (jump when the key exists) and NotFound
// (jump when it does not). P4 > 0 serializes r[P3@P4] into the probe
// key; P4 == 0 takes the serialized record already in r[P3].
func foundHandler(jumpOnHit bool) opHandler {
	return func(vm *VM, in *Instruction) (int, error) {
		c, err := vm.cursor(in.P1)
		if err != nil {
			return 0, err
		}
		c.nullRow = false
		var key []byte
		if n, _ := in.P4.(int); n > 0 {
			buf := util.GetByteBuffer()
			defer util.PutByteBuffer(buf)
			key = AppendRecord(*buf, vm.regs.Range(int(in.P3), n))
		} else {
			v := vm.regs.Read(int(in.P3))
			if v.tag != TagBlob {
				return 0, errors.Errorf(errors.KT_PROGRAM, "Found probe r[%d] holds %s, not a record", in.P3, v.Tag())
			}
			key = v.b
		}
		hit := c.bt.Seek(DS.SeekEQ, key)
		if hit == jumpOnHit {
			return int(in.P2), nil
		}
		return vm.pc + 1, nil
	}
}

func execLast(vm *VM, in *Instruction) (int, error) {
	c, err := vm.cursor(in.P1)
	if err != nil {
		return 0, err
	}
	c.nullRow = false
	if !c.bt.Last() {
		if in.P2 != 0 {
			return int(in.P2), nil
		}
	}
	return vm.pc + 1, nil
}

func execRewind(vm *VM, in *Instruction) (int, error) {
	c, err := vm.cursor(in.P1)
	if err != nil {
		return 0, err
	}
	c.nullRow = false
	if !c.bt.First() {
		if in.P2 != 0 {
			return int(in.P2), nil
		}
	}
	return vm.pc + 1, nil
}

func execNext(vm *VM, in *Instruction) (int, error) {
	c, err := vm.cursor(in.P1)
	if err != nil {
		return 0, err
	}
	if c.bt.Next() {
		return int(in.P2), nil
	}
	return vm.pc + 1, nil
}

func execPrev(vm *VM, in *Instruction) (int, error) {
	c, err := vm.cursor(in.P1)
	if err != nil {
		return 0, err
	}
	if c.bt.Prev() {
		return int(in.P2), nil
	}
	return vm.pc + 1, nil
}

func execRowid(vm *VM, in *Instruction) (int, error) {
	c, err := vm.cursor(in.P1)
	if err != nil {
		return 0, err
	}
	if c.nullRow {
		vm.regs.Write(int(in.P2), NullValue())
		return vm.pc + 1, nil
	}
	id, err := c.rowid()
	if err != nil {
		return 0, err
	}
	vm.regs.Write(int(in.P2), IntValue(id))
	return vm.pc + 1, nil
}

// NewRowid hands out one past the largest key in the table. The cursor
// position is clobbered.
func execNewRowid(vm *VM, in *Instruction) (int, error) {
	c, err := vm.cursor(in.P1)
	if err != nil {
		return 0, err
	}
	if c.isIndex() || c.kind == cursorPseudo {
		return 0, errors.New(errors.KT_MISUSE, "NewRowid needs a table cursor")
	}
	next := int64(1)
	if c.bt.Last() {
		last := DS.RowidForKey(c.bt.Key())
		if last == math.MaxInt64 {
			return 0, errors.New(errors.KT_RANGE, "table rowids exhausted")
		}
		if last >= 0 {
			next = last + 1
		}
	}
	vm.regs.Write(int(in.P2), IntValue(next))
	return vm.pc + 1, nil
}

func execSequence(vm *VM, in *Instruction) (int, error) {
	c, err := vm.cursor(in.P1)
	if err != nil {
		return 0, err
	}
	vm.regs.Write(int(in.P2), IntValue(c.seq))
	c.seq++
	return vm.pc + 1, nil
}

func execCount(vm *VM, in *Instruction) (int, error) {
	c, err := vm.cursor(in.P1)
	if err != nil {
		return 0, err
	}
	if c.kind == cursorPseudo {
		return 0, errors.New(errors.KT_MISUSE, "Count on pseudo cursor")
	}
	vm.regs.Write(int(in.P2), IntValue(int64(c.bt.NumEntries())))
	return vm.pc + 1, nil
}

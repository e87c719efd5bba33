package VM

import (
	"testing"

	"github.com/kitedb/kite/internal/CF"
	"github.com/kitedb/kite/internal/DS"
	"github.com/kitedb/kite/internal/SF/errors"
	"github.com/kitedb/kite/internal/TM"
)

// runProgram resolves and drains a program, returning the collected
// rows and the final status.
func runProgram(t *testing.T, p *Program, store *DS.Store) ([][]Value, Status, error) {
	t.Helper()
	if store == nil {
		store = DS.NewStore()
	}
	if err := p.Resolve(CF.Default()); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	vm, err := New(p, store, TM.NewController(store), CF.Default())
	if err != nil {
		t.Fatalf("new vm: %v", err)
	}
	var rows [][]Value
	status, err := vm.Run(func(row []Value) error {
		cp := make([]Value, len(row))
		copy(cp, row)
		rows = append(rows, cp)
		return nil
	})
	return rows, status, err
}

func TestArithmeticResultRow(t *testing.T) {
	b := NewBuilder()
	r0, r1, r2 := b.AllocReg(), b.AllocReg(), b.AllocReg()
	b.Emit(OpInteger, 10, r0, 0)
	b.Emit(OpInteger, 32, r1, 0)
	b.Emit(OpAdd, r0, r1, r2)
	b.Emit(OpResultRow, r2, 1, 0)
	b.Emit(OpHalt, 0, 0, 0)

	rows, status, err := runProgram(t, b.Finish(), nil)
	if err != nil || status != StatusOK {
		t.Fatalf("run: status=%v err=%v", status, err)
	}
	if len(rows) != 1 || rows[0][0].Int() != 42 {
		t.Errorf("10+32 = %v, want 42", rows[0])
	}
}

func TestComparisonNullPropagation(t *testing.T) {
	// NULL == 1 must produce NULL, not false.
	b := NewBuilder()
	r0, r1, r2 := b.AllocReg(), b.AllocReg(), b.AllocReg()
	b.Emit(OpNull, 0, r0, 0)
	b.Emit(OpInteger, 1, r1, 0)
	b.Emit(OpEq, r0, r1, r2)
	b.Emit(OpResultRow, r2, 1, 0)
	b.Emit(OpHalt, 0, 0, 0)

	rows, _, err := runProgram(t, b.Finish(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !rows[0][0].IsNull() {
		t.Errorf("NULL == 1 = %v, want NULL", rows[0][0])
	}
}

func TestComparisonNullEq(t *testing.T) {
	// Under IS semantics two NULLs are equal and NULL-vs-value is not.
	b := NewBuilder()
	r0, r1, r2, r3, r4 := b.AllocReg(), b.AllocReg(), b.AllocReg(), b.AllocReg(), b.AllocReg()
	b.Emit(OpNull, 0, r0, 0)
	b.Emit(OpNull, 0, r1, 0)
	b.Emit(OpInteger, 7, r2, 0)
	b.EmitP5(OpEq, r0, r1, r3, NullEq)
	b.EmitP5(OpEq, r0, r2, r4, NullEq)
	b.Emit(OpResultRow, r3, 2, 0)
	b.Emit(OpHalt, 0, 0, 0)

	rows, _, err := runProgram(t, b.Finish(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if rows[0][0].Int() != 1 {
		t.Errorf("NULL IS NULL = %v, want 1", rows[0][0])
	}
	if rows[0][1].Int() != 0 {
		t.Errorf("NULL IS 7 = %v, want 0", rows[0][1])
	}
}

func TestCompareJumpThreeWay(t *testing.T) {
	// Compare orders two register ranges and the following Jump must
	// pick the less/equal/greater arm.
	run := func(a, b int64) int64 {
		bld := NewBuilder()
		r0, r1, rOut := bld.AllocReg(), bld.AllocReg(), bld.AllocReg()
		bld.EmitP4(OpInt64, 0, r0, 0, a)  // 0
		bld.EmitP4(OpInt64, 0, r1, 0, b)  // 1
		bld.Emit(OpCompare, r0, r1, 1)    // 2
		bld.Emit(OpJump, 4, 6, 8)         // 3
		bld.Emit(OpInteger, -1, rOut, 0)  // 4
		bld.Emit(OpGoto, 0, 9, 0)         // 5
		bld.Emit(OpInteger, 0, rOut, 0)   // 6
		bld.Emit(OpGoto, 0, 9, 0)         // 7
		bld.Emit(OpInteger, 1, rOut, 0)   // 8
		bld.Emit(OpResultRow, rOut, 1, 0) // 9
		bld.Emit(OpHalt, 0, 0, 0)

		rows, status, err := runProgram(t, bld.Finish(), nil)
		if err != nil || status != StatusOK {
			t.Fatalf("compare(%d,%d): status=%v err=%v", a, b, status, err)
		}
		return rows[0][0].Int()
	}

	if got := run(1, 2); got != -1 {
		t.Errorf("compare(1,2) arm = %d, want -1", got)
	}
	if got := run(2, 2); got != 0 {
		t.Errorf("compare(2,2) arm = %d, want 0", got)
	}
	if got := run(3, 2); got != 1 {
		t.Errorf("compare(3,2) arm = %d, want 1", got)
	}
}

func TestGosubReturn(t *testing.T) {
	b := NewBuilder()
	r0 := b.AllocReg()
	sub := b.AllocLabel()
	done := b.AllocLabel()

	b.Emit(OpInteger, 1, r0, 0)
	b.EmitJump(OpGosub, 0, sub, 0)
	b.EmitJump(OpGosub, 0, sub, 0)
	b.Emit(OpResultRow, r0, 1, 0)
	b.EmitJump(OpGoto, 0, done, 0)

	b.ResolveLabel(sub)
	b.Emit(OpAddImm, r0, 10, 0)
	b.Emit(OpReturn, 0, 0, 0)

	b.ResolveLabel(done)
	b.Emit(OpHalt, 0, 0, 0)

	rows, _, err := runProgram(t, b.Finish(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if rows[0][0].Int() != 21 {
		t.Errorf("two subroutine calls = %v, want 21", rows[0][0])
	}
}

func TestOnceRunsBodyOnce(t *testing.T) {
	b := NewBuilder()
	r0, r1 := b.AllocReg(), b.AllocReg()
	skip := b.AllocLabel()
	loop := b.AllocLabel()
	out := b.AllocLabel()

	b.Emit(OpInteger, 3, r0, 0) // loop counter
	b.Emit(OpInteger, 0, r1, 0)
	b.ResolveLabel(loop)
	b.EmitJump(OpOnce, 0, skip, 0)
	b.Emit(OpAddImm, r1, 100, 0)
	b.ResolveLabel(skip)
	b.Emit(OpAddImm, r1, 1, 0)
	b.EmitJump(OpDecrJumpZero, r0, out, 0)
	b.EmitJump(OpGoto, 0, loop, 0)
	b.ResolveLabel(out)
	b.Emit(OpResultRow, r1, 1, 0)
	b.Emit(OpHalt, 0, 0, 0)

	rows, _, err := runProgram(t, b.Finish(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if rows[0][0].Int() != 103 {
		t.Errorf("once body total = %v, want 103", rows[0][0])
	}
}

// buildInsert emits an Insert of (rowid, one text column) through an
// open write cursor.
func buildInsert(b *Builder, cur int32, rowid int64, text string) {
	rKey := b.AllocReg()
	rCol := b.AllocReg()
	rRec := b.AllocReg()
	b.EmitP4(OpInt64, 0, rKey, 0, rowid)
	b.EmitP4(OpString8, 0, rCol, 0, text)
	b.Emit(OpMakeRecord, rCol, 1, rRec)
	b.Emit(OpInsert, cur, rRec, rKey)
}

func TestInsertThenSeek(t *testing.T) {
	store := DS.NewStore()
	root := store.CreateTree(nil)

	b := NewBuilder()
	cur := b.AllocCursor()
	miss := b.AllocLabel()

	b.Emit(OpTransaction, 0, 1, 0)
	b.Emit(OpOpenWrite, cur, int32(root), 0)
	buildInsert(b, cur, 3, "three")
	buildInsert(b, cur, 5, "five")
	buildInsert(b, cur, 9, "nine")

	rProbe := b.AllocReg()
	rOut := b.AllocReg()
	b.EmitP4(OpInt64, 0, rProbe, 0, int64(5))
	b.EmitJump(OpSeekRowid, cur, miss, rProbe)
	b.Emit(OpColumn, cur, 0, rOut)
	b.Emit(OpResultRow, rOut, 1, 0)
	b.Emit(OpHalt, 0, 0, 0)
	b.ResolveLabel(miss)
	b.EmitP4(OpHalt, int32(errors.KT_ABORT), 0, 0, "rowid 5 not found")

	rows, status, err := runProgram(t, b.Finish(), store)
	if err != nil || status != StatusOK {
		t.Fatalf("run: status=%v err=%v", status, err)
	}
	if len(rows) != 1 || rows[0][0].Text() != "five" {
		t.Errorf("column under rowid 5 = %v, want five", rows[0])
	}
}

func TestSeekEQRequiresExactMatch(t *testing.T) {
	// With the exact-match flag a SeekGE that lands on a later key is a
	// miss, not a hit on the next row.
	store := DS.NewStore()
	root := store.CreateTree(nil)
	for _, rowid := range []int64{3, 9} {
		if err := store.Insert(root, DS.KeyForRowid(rowid), EncodeRecord([]Value{IntValue(rowid)})); err != nil {
			t.Fatal(err)
		}
	}

	run := func(probe int64) int64 {
		b := NewBuilder()
		cur := b.AllocCursor()
		rProbe, rOut := b.AllocReg(), b.AllocReg()
		miss := b.AllocLabel()
		out := b.AllocLabel()
		b.Emit(OpOpenRead, cur, int32(root), 0)
		b.EmitP4(OpInt64, 0, rProbe, 0, probe)
		pcSeek := b.EmitJump(OpSeekGE, cur, miss, rProbe)
		b.Emit(OpInteger, 1, rOut, 0)
		b.EmitJump(OpGoto, 0, out, 0)
		b.ResolveLabel(miss)
		b.Emit(OpInteger, 0, rOut, 0)
		b.ResolveLabel(out)
		b.Emit(OpResultRow, rOut, 1, 0)
		b.Emit(OpHalt, 0, 0, 0)
		p := b.Finish()
		p.Instructions[pcSeek].P5 = OpflagSeekEQ

		rows, status, err := runProgram(t, p, store)
		if err != nil || status != StatusOK {
			t.Fatalf("seek %d: status=%v err=%v", probe, status, err)
		}
		return rows[0][0].Int()
	}

	if got := run(3); got != 1 {
		t.Errorf("exact seek 3 = %d, want hit", got)
	}
	if got := run(4); got != 0 {
		t.Errorf("exact seek 4 = %d, want miss (lands on 9)", got)
	}
}

func TestFullScanWithNext(t *testing.T) {
	store := DS.NewStore()
	root := store.CreateTree(nil)
	for i, txt := range []string{"a", "b", "c"} {
		rec := EncodeRecord([]Value{TextValue(txt)})
		if err := store.Insert(root, DS.KeyForRowid(int64(i+1)), rec); err != nil {
			t.Fatal(err)
		}
	}

	b := NewBuilder()
	cur := b.AllocCursor()
	empty := b.AllocLabel()
	loop := b.AllocLabel()

	rOut := b.AllocReg()
	b.Emit(OpTransaction, 0, 0, 0)
	b.Emit(OpOpenRead, cur, int32(root), 0)
	b.EmitJump(OpRewind, cur, empty, 0)
	b.ResolveLabel(loop)
	b.Emit(OpColumn, cur, 0, rOut)
	b.Emit(OpResultRow, rOut, 1, 0)
	b.EmitJump(OpNext, cur, loop, 0)
	b.ResolveLabel(empty)
	b.Emit(OpHalt, 0, 0, 0)

	rows, _, err := runProgram(t, b.Finish(), store)
	if err != nil {
		t.Fatal(err)
	}
	got := ""
	for _, row := range rows {
		got += row[0].Text()
	}
	if got != "abc" {
		t.Errorf("scan order = %q, want abc", got)
	}
}

func TestCountAggregate(t *testing.T) {
	def, err := LookupFunc("count", -1)
	if err != nil {
		t.Fatal(err)
	}

	b := NewBuilder()
	rAcc := b.AllocReg()
	rN := b.AllocReg()
	b.Emit(OpNull, 0, rAcc, 0)
	b.Emit(OpInteger, 3, rN, 0)
	loop := b.AllocLabel()
	out := b.AllocLabel()
	b.ResolveLabel(loop)
	b.EmitP4(OpAggStep, 0, 0, rAcc, def)
	b.EmitJump(OpDecrJumpZero, rN, out, 0)
	b.EmitJump(OpGoto, 0, loop, 0)
	b.ResolveLabel(out)
	b.EmitP4(OpAggFinal, rAcc, 0, 0, def)
	b.Emit(OpResultRow, rAcc, 1, 0)
	b.Emit(OpHalt, 0, 0, 0)

	rows, _, err := runProgram(t, b.Finish(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if rows[0][0].Tag() != TagInt || rows[0][0].Int() != 3 {
		t.Errorf("count over 3 steps = %v, want Integer(3)", rows[0][0])
	}
}

func TestCoroutineProducesAllRows(t *testing.T) {
	// Generator yields 1, 2, 3; the consumer forwards each as a result
	// row and stops when the generator ends.
	b := NewBuilder()
	rFrame := b.AllocReg()
	rVal := b.AllocReg()
	genStart := b.AllocLabel()
	consumer := b.AllocLabel()
	done := b.AllocLabel()

	b.EmitJump(OpInitCoroutine, rFrame, consumer, 0)

	b.ResolveLabel(genStart)
	for i := int64(1); i <= 3; i++ {
		b.EmitP4(OpInt64, 0, rVal, 0, i)
		b.Emit(OpYield, rFrame, 0, 0)
	}
	b.Emit(OpEndCoroutine, rFrame, 0, 0)

	b.ResolveLabel(consumer)
	b.EmitJump(OpYield, rFrame, done, 0)
	b.Emit(OpResultRow, rVal, 1, 0)
	b.EmitJump(OpGoto, 0, consumer, 0)

	b.ResolveLabel(done)
	b.Emit(OpHalt, 0, 0, 0)

	// InitCoroutine's P3 is the generator entry point.
	prog := b.Finish()
	prog.Instructions[0].P3 = 1

	rows, status, err := runProgram(t, prog, nil)
	if err != nil || status != StatusOK {
		t.Fatalf("run: status=%v err=%v", status, err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	for i, row := range rows {
		if row[0].Int() != int64(i+1) {
			t.Errorf("row %d = %v, want %d", i, row[0], i+1)
		}
	}
}

func TestYieldIntoEndedCoroutineFails(t *testing.T) {
	b := NewBuilder()
	rFrame := b.AllocReg()
	consumer := b.AllocLabel()
	done := b.AllocLabel()

	b.EmitJump(OpInitCoroutine, rFrame, consumer, 0)
	b.Emit(OpEndCoroutine, rFrame, 0, 0) // generator body ends immediately

	b.ResolveLabel(consumer)
	b.EmitJump(OpYield, rFrame, done, 0)
	b.Emit(OpHalt, 0, 0, 0)
	b.ResolveLabel(done)
	// The frame has ended; a further Yield with no end target is a
	// contract violation.
	b.Emit(OpYield, rFrame, 0, 0)
	b.Emit(OpHalt, 0, 0, 0)

	prog := b.Finish()
	prog.Instructions[0].P3 = 1

	_, status, err := runProgram(t, prog, nil)
	if !errors.IsCode(err, errors.KT_PROGRAM) {
		t.Fatalf("yield into ended coroutine: status=%v err=%v, want KT_PROGRAM", status, err)
	}
}

func TestConstraintRollsBackStatement(t *testing.T) {
	store := DS.NewStore()
	root := store.CreateTree(nil)
	if err := store.Insert(root, DS.KeyForRowid(1), EncodeRecord([]Value{TextValue("orig")})); err != nil {
		t.Fatal(err)
	}

	b := NewBuilder()
	cur := b.AllocCursor()
	b.Emit(OpTransaction, 0, 1, 0)
	b.Emit(OpOpenWrite, cur, int32(root), 0)
	buildInsert(b, cur, 2, "new")
	// Re-inserting rowid 1 with NoOverwrite trips the primary-key
	// constraint; the whole statement, including rowid 2, must unwind.
	rKey := b.AllocReg()
	rCol := b.AllocReg()
	rRec := b.AllocReg()
	b.EmitP4(OpInt64, 0, rKey, 0, int64(1))
	b.EmitP4(OpString8, 0, rCol, 0, "dup")
	b.Emit(OpMakeRecord, rCol, 1, rRec)
	b.EmitP5(OpInsert, cur, rRec, rKey, NoOverwrite)
	b.Emit(OpHalt, 0, 0, 0)

	_, status, err := runProgram(t, b.Finish(), store)
	if status != StatusConstraint || !errors.IsCode(err, errors.KT_CONSTRAINT) {
		t.Fatalf("status=%v err=%v, want constraint", status, err)
	}
	if _, ok, _ := store.Get(root, DS.KeyForRowid(2)); ok {
		t.Error("rowid 2 survived the statement rollback")
	}
	if v, ok, _ := store.Get(root, DS.KeyForRowid(1)); !ok {
		t.Error("rowid 1 lost")
	} else if cols, _ := DecodeRecord(v); cols[0].Text() != "orig" {
		t.Errorf("rowid 1 = %v, want orig", cols[0])
	}
}

func TestConstraintDivertsToErrorHandler(t *testing.T) {
	store := DS.NewStore()
	root := store.CreateTree(nil)
	if err := store.Insert(root, DS.KeyForRowid(1), EncodeRecord([]Value{TextValue("orig")})); err != nil {
		t.Fatal(err)
	}

	b := NewBuilder()
	cur := b.AllocCursor()
	rKey := b.AllocReg()
	rCol := b.AllocReg()
	rRec := b.AllocReg()
	rFlag := b.AllocReg()
	b.Emit(OpTransaction, 0, 1, 0)
	b.Emit(OpOpenWrite, cur, int32(root), 0)
	b.EmitP4(OpInt64, 0, rKey, 0, int64(1))
	b.EmitP4(OpString8, 0, rCol, 0, "dup")
	b.Emit(OpMakeRecord, rCol, 1, rRec)
	b.EmitP5(OpInsert, cur, rRec, rKey, NoOverwrite)
	b.Emit(OpHalt, 0, 0, 0)
	handlerPC := b.Emit(OpInteger, -1, rFlag, 0)
	b.Emit(OpResultRow, rFlag, 1, 0)
	b.Emit(OpHalt, 0, 0, 0)
	b.SetErrorHandler(handlerPC)

	rows, status, err := runProgram(t, b.Finish(), store)
	if err != nil || status != StatusOK {
		t.Fatalf("handler run: status=%v err=%v", status, err)
	}
	if len(rows) != 1 || rows[0][0].Int() != -1 {
		t.Errorf("handler rows = %v, want [-1]", rows)
	}
}

func TestHaltClosesCursors(t *testing.T) {
	// Every halt path must leave the cursor table empty and drop the
	// trees backing ephemeral cursors, whether the program finished
	// cleanly or aborted.
	build := func(abort bool) *Program {
		b := NewBuilder()
		cur := b.AllocCursor()
		b.Emit(OpOpenEphemeral, cur, 1, 0)
		if abort {
			b.EmitP4(OpHalt, int32(errors.KT_ABORT), 0, 0, "gave up")
		} else {
			b.Emit(OpHalt, 0, 0, 0)
		}
		return b.Finish()
	}

	for _, abort := range []bool{false, true} {
		p := build(abort)
		if err := p.Resolve(CF.Default()); err != nil {
			t.Fatal(err)
		}
		store := DS.NewStore()
		vm, err := New(p, store, TM.NewController(store), CF.Default())
		if err != nil {
			t.Fatal(err)
		}
		vm.Run(nil)
		for i, c := range vm.cursors {
			if c != nil {
				t.Errorf("abort=%v: cursor %d still open after halt", abort, i)
			}
		}
		// The ephemeral cursor's tree (the store's first root) must be
		// gone, not leaked into the store for the engine's lifetime.
		if _, err := store.NumEntries(1); !errors.IsCode(err, errors.KT_NOTFOUND) {
			t.Errorf("abort=%v: ephemeral tree survived halt: %v", abort, err)
		}
	}
}

func TestInterruptStopsExecution(t *testing.T) {
	// An infinite loop must stop once Interrupt is set.
	b := NewBuilder()
	loop := b.AllocLabel()
	b.ResolveLabel(loop)
	b.EmitJump(OpGoto, 0, loop, 0)
	p := b.Finish()
	if err := p.Resolve(CF.Default()); err != nil {
		t.Fatal(err)
	}
	store := DS.NewStore()
	vm, err := New(p, store, TM.NewController(store), CF.Default())
	if err != nil {
		t.Fatal(err)
	}
	vm.Interrupt()
	_, runErr := vm.Step()
	if !errors.IsCode(runErr, errors.KT_INTERRUPT) {
		t.Fatalf("err = %v, want KT_INTERRUPT", runErr)
	}
	if status, _ := vm.HaltStatus(); status != StatusAborted {
		t.Errorf("status = %v, want aborted", status)
	}
}

func TestMoveLeavesSourceUndefined(t *testing.T) {
	b := NewBuilder()
	r0 := b.AllocReg()
	r1 := b.AllocReg()
	r2 := b.AllocReg()
	b.Emit(OpInteger, 7, r0, 0)
	b.Emit(OpMove, r0, r1, 1)
	b.Emit(OpSCopy, r0, r2, 0) // reads the moved-from register
	b.Emit(OpHalt, 0, 0, 0)
	p := b.Finish()
	if err := p.Resolve(CF.Default()); err != nil {
		t.Fatal(err)
	}
	store := DS.NewStore()
	vm, err := New(p, store, TM.NewController(store), CF.Default())
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if recover() == nil {
			t.Error("reading a moved-from register did not panic")
		}
	}()
	vm.Run(nil)
}

func TestUniqueIndexConstraint(t *testing.T) {
	store := DS.NewStore()
	ki := &KeyInfo{NField: 1}
	root := store.CreateTree(ki.Compare)

	// Two index entries share the key column "k" and differ only in the
	// trailing rowid, so a unique IdxInsert of the second must fail.
	build := func(rowid int64) *Program {
		b := NewBuilder()
		cur := b.AllocCursor()
		rCol := b.AllocReg()
		rID := b.AllocReg()
		rKey := b.AllocReg()
		b.Emit(OpTransaction, 0, 1, 0)
		b.EmitP4(OpOpenWrite, cur, int32(root), 0, ki)
		b.EmitP4(OpString8, 0, rCol, 0, "k")
		b.EmitP4(OpInt64, 0, rID, 0, rowid)
		b.Emit(OpMakeRecord, rCol, 2, rKey)
		b.EmitP5(OpIdxInsert, cur, rKey, 0, UniqueCheck)
		b.Emit(OpHalt, 0, 0, 0)
		return b.Finish()
	}

	_, status, err := runProgram(t, build(1), store)
	if err != nil || status != StatusOK {
		t.Fatalf("first insert: status=%v err=%v", status, err)
	}
	_, status, err = runProgram(t, build(2), store)
	if status != StatusConstraint || !errors.IsCode(err, errors.KT_CONSTRAINT_UNIQUE) {
		t.Fatalf("second insert: status=%v err=%v, want unique constraint", status, err)
	}
}

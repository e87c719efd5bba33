package VM

import (
	"bytes"
	"testing"

	"github.com/kitedb/kite/internal/SF/errors"
)

func buildImageProgram(t *testing.T) *Program {
	t.Helper()
	def, err := LookupFunc("upper", 1)
	if err != nil {
		t.Fatal(err)
	}
	b := NewBuilder()
	cur := b.AllocCursor()
	r0, r1 := b.AllocReg(), b.AllocReg()
	ki := &KeyInfo{NField: 1, Colls: []*CollSeq{NoCaseColl}, SortDesc: []bool{true}}
	b.EmitP4(OpOpenRead, cur, 1, 0, ki)
	b.EmitP4(OpString8, 0, r0, 0, "abc")
	pc := b.EmitP4(OpFunction, 0, r0, r1, def)
	b.prog.Instructions[pc].P5 = 1
	b.EmitP4(OpInt64, 0, r0, 0, int64(1<<40))
	b.EmitP4(OpReal, 0, r0, 0, 2.5)
	b.EmitP4(OpBlob, 0, r0, 0, []byte{1, 2})
	b.Emit(OpResultRow, r1, 1, 0)
	b.Emit(OpHalt, 0, 0, 0)
	return b.Finish()
}

func TestProgramImageRoundTrip(t *testing.T) {
	p := buildImageProgram(t)
	data, err := MarshalProgram(p)
	if err != nil {
		t.Fatal(err)
	}
	q, err := UnmarshalProgram(data)
	if err != nil {
		t.Fatal(err)
	}
	if q.NumRegs != p.NumRegs || q.NumCursors != p.NumCursors || q.ErrorHandler != p.ErrorHandler {
		t.Fatalf("counts changed: %+v vs %+v", q, p)
	}
	if len(q.Instructions) != len(p.Instructions) {
		t.Fatalf("instruction count %d, want %d", len(q.Instructions), len(p.Instructions))
	}
	for i := range p.Instructions {
		a, b := p.Instructions[i], q.Instructions[i]
		if a.Op != b.Op || a.P1 != b.P1 || a.P2 != b.P2 || a.P3 != b.P3 || a.P5 != b.P5 {
			t.Errorf("pc %d: %s vs %s", i, a, b)
		}
	}
	// Function references must resolve back to the live registry entry.
	if def, ok := q.Instructions[2].P4.(*FuncDef); !ok || def.Name != "upper" {
		t.Errorf("function reference = %v", q.Instructions[2].P4)
	}
	ki, ok := q.Instructions[0].P4.(*KeyInfo)
	if !ok || ki.NField != 1 || !ki.SortDesc[0] || ki.Colls[0] != NoCaseColl {
		t.Errorf("keyinfo = %+v", ki)
	}
}

func TestProgramImageDeterministic(t *testing.T) {
	p := buildImageProgram(t)
	a, err := MarshalProgram(p)
	if err != nil {
		t.Fatal(err)
	}
	b, err := MarshalProgram(p)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("two marshals of the same program differ")
	}
}

func TestUnmarshalGarbage(t *testing.T) {
	if _, err := UnmarshalProgram([]byte("not cbor")); !errors.IsCode(err, errors.KT_IOERR) {
		t.Fatalf("err = %v, want KT_IOERR", err)
	}
}

func TestLoadedProgramRuns(t *testing.T) {
	b := NewBuilder()
	r0 := b.AllocReg()
	b.Emit(OpInteger, 11, r0, 0)
	b.Emit(OpAddImm, r0, 31, 0)
	b.Emit(OpResultRow, r0, 1, 0)
	b.Emit(OpHalt, 0, 0, 0)
	data, err := MarshalProgram(b.Finish())
	if err != nil {
		t.Fatal(err)
	}
	p, err := UnmarshalProgram(data)
	if err != nil {
		t.Fatal(err)
	}
	rows, status, err := runProgram(t, p, nil)
	if err != nil || status != StatusOK {
		t.Fatalf("run: status=%v err=%v", status, err)
	}
	if rows[0][0].Int() != 42 {
		t.Errorf("row = %v, want 42", rows[0][0])
	}
}

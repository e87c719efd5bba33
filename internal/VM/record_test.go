package VM

import (
	"bytes"
	"testing"
)

func TestRecordRoundTrip(t *testing.T) {
	vals := []Value{
		NullValue(),
		IntValue(0),
		IntValue(1),
		IntValue(-1),
		IntValue(1 << 40),
		RealValue(3.25),
		TextValue("hello"),
		BlobValue([]byte{0xde, 0xad}),
	}
	rec := EncodeRecord(vals)
	got, err := DecodeRecord(rec)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(vals) {
		t.Fatalf("decoded %d columns, want %d", len(got), len(vals))
	}
	for i := range vals {
		if Compare(got[i], vals[i], nil) != 0 || got[i].Tag() != vals[i].Tag() {
			t.Errorf("column %d = %v, want %v", i, got[i], vals[i])
		}
	}
}

func TestDecodeColumnPastEndIsNull(t *testing.T) {
	rec := EncodeRecord([]Value{IntValue(1)})
	v, err := DecodeColumn(rec, 5)
	if err != nil {
		t.Fatal(err)
	}
	if !v.IsNull() {
		t.Errorf("column past end = %v, want NULL", v)
	}
}

func TestDecodeCorruptRecord(t *testing.T) {
	if _, err := DecodeRecord([]byte{0x09}); err == nil {
		t.Error("truncated record accepted")
	}
	if _, err := DecodeColumn([]byte{0x09}, 0); err == nil {
		t.Error("truncated record accepted by DecodeColumn")
	}
}

func TestVarintBoundaries(t *testing.T) {
	for _, v := range []uint64{0, 1, 0x7f, 0x80, 0x3fff, 0x4000, 1 << 28, 1 << 56, 1<<63 + 7} {
		enc := putVarint(nil, v)
		if len(enc) != varintLen(v) {
			t.Errorf("varint(%#x): encoded %d bytes, varintLen says %d", v, len(enc), varintLen(v))
		}
		got, n := getVarint(enc)
		if got != v || n != len(enc) {
			t.Errorf("varint(%#x) round trip = %#x (%d bytes)", v, got, n)
		}
	}
}

func TestKeyInfoOrdering(t *testing.T) {
	ki := &KeyInfo{NField: 1}
	a := EncodeRecord([]Value{TextValue("apple"), IntValue(9)})
	b := EncodeRecord([]Value{TextValue("banana"), IntValue(1)})
	if ki.Compare(a, b) >= 0 {
		t.Error("apple should sort before banana")
	}

	// Equal key columns fall back to the trailing rowid.
	a1 := EncodeRecord([]Value{TextValue("k"), IntValue(1)})
	a2 := EncodeRecord([]Value{TextValue("k"), IntValue(2)})
	if ki.Compare(a1, a2) >= 0 {
		t.Error("tie break on trailing column failed")
	}

	desc := &KeyInfo{NField: 1, SortDesc: []bool{true}}
	if desc.Compare(a, b) <= 0 {
		t.Error("descending order not honored")
	}
}

func TestKeyInfoNullsSortFirst(t *testing.T) {
	ki := &KeyInfo{NField: 1}
	null := EncodeRecord([]Value{NullValue()})
	one := EncodeRecord([]Value{IntValue(1)})
	if ki.Compare(null, one) >= 0 {
		t.Error("NULL must sort before any value")
	}
}

func TestAppendRecordReusesBuffer(t *testing.T) {
	buf := make([]byte, 0, 64)
	out := AppendRecord(buf, []Value{IntValue(7)})
	if cap(out) != cap(buf) {
		t.Skip("buffer grew; nothing to check")
	}
	if !bytes.Equal(out, EncodeRecord([]Value{IntValue(7)})) {
		t.Error("AppendRecord output differs from EncodeRecord")
	}
}

func TestZeroAndOneSerials(t *testing.T) {
	rec := EncodeRecord([]Value{IntValue(0), IntValue(1)})
	// Header: length varint, two serial types; both bodies are empty.
	if len(rec) != 3 {
		t.Errorf("record of literals 0 and 1 is %d bytes, want 3", len(rec))
	}
	got, err := DecodeRecord(rec)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Int() != 0 || got[1].Int() != 1 {
		t.Errorf("decoded %v", got)
	}
}

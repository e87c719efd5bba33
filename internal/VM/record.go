package VM

import (
	"encoding/binary"
	"math"

	"github.com/kitedb/kite/internal/SF/errors"
)

// Record format: a varint header length, then one varint serial type per
// column, then each column's body back to back.
//
//	0        NULL, zero bytes
//	1..6     big-endian signed int of 1, 2, 3, 4, 6 or 8 bytes
//	7        IEEE-754 float64, 8 bytes
//	8, 9     literal integers 0 and 1, zero bytes
//	N>=12 even  blob of (N-12)/2 bytes
//	N>=13 odd   text of (N-13)/2 bytes

func putVarint(dst []byte, v uint64) []byte {
	if v <= 0x7f {
		return append(dst, byte(v))
	}
	if v <= 0x3fff {
		return append(dst, byte(v>>7)|0x80, byte(v&0x7f))
	}
	if v > 0x00ffffffffffffff {
		// Nine-byte form: the final byte carries a full 8 bits.
		var buf [9]byte
		buf[8] = byte(v)
		v >>= 8
		for i := 7; i >= 0; i-- {
			buf[i] = byte(v&0x7f) | 0x80
			v >>= 7
		}
		return append(dst, buf[:]...)
	}
	var buf [8]byte
	i := 7
	buf[i] = byte(v & 0x7f)
	v >>= 7
	for v != 0 {
		i--
		buf[i] = byte(v&0x7f) | 0x80
		v >>= 7
	}
	return append(dst, buf[i:]...)
}

func getVarint(b []byte) (uint64, int) {
	var v uint64
	for i := 0; i < len(b) && i < 9; i++ {
		c := b[i]
		if i == 8 {
			return v<<8 | uint64(c), 9
		}
		v = v<<7 | uint64(c&0x7f)
		if c < 0x80 {
			return v, i + 1
		}
	}
	return 0, 0
}

func serialTypeOf(v Value) (uint64, int) {
	switch v.tag {
	case TagNull:
		return 0, 0
	case TagInt:
		n := v.n
		if n == 0 {
			return 8, 0
		}
		if n == 1 {
			return 9, 0
		}
		u := n
		if u < 0 {
			u = ^u
		}
		switch {
		case u < 1<<7:
			return 1, 1
		case u < 1<<15:
			return 2, 2
		case u < 1<<23:
			return 3, 3
		case u < 1<<31:
			return 4, 4
		case u < 1<<47:
			return 5, 6
		default:
			return 6, 8
		}
	case TagReal:
		return 7, 8
	case TagText:
		return uint64(len(v.s))*2 + 13, len(v.s)
	case TagBlob:
		return uint64(len(v.b))*2 + 12, len(v.b)
	}
	// RowSets, accumulators and frames never reach the record codec.
	return 0, 0
}

func serialBodyLen(st uint64) int {
	switch {
	case st == 0 || st == 8 || st == 9:
		return 0
	case st <= 4:
		return int(st)
	case st == 5:
		return 6
	case st == 6 || st == 7:
		return 8
	case st >= 12:
		return int(st-12) / 2
	}
	return 0
}

func putSerialBody(dst []byte, st uint64, v Value) []byte {
	switch {
	case st >= 1 && st <= 6:
		n := serialBodyLen(st)
		for i := n - 1; i >= 0; i-- {
			dst = append(dst, byte(v.n>>(uint(i)*8)))
		}
	case st == 7:
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(v.r))
		dst = append(dst, buf[:]...)
	case st >= 13 && st%2 == 1:
		dst = append(dst, v.s...)
	case st >= 12 && st%2 == 0:
		dst = append(dst, v.b...)
	}
	return dst
}

// EncodeRecord serializes values into the record wire format. The
// caller owns the returned slice.
func EncodeRecord(vals []Value) []byte {
	return AppendRecord(nil, vals)
}

// AppendRecord serializes values onto dst, for callers reusing scratch
// buffers.
func AppendRecord(dst []byte, vals []Value) []byte {
	serials := make([]uint64, len(vals))
	hdr := 0
	for i, v := range vals {
		st, _ := serialTypeOf(v)
		serials[i] = st
		hdr += varintLen(st)
	}
	// The header length varint counts itself, so iterate until the
	// size of the length field stops changing.
	hlen := hdr + 1
	for varintLen(uint64(hlen))+hdr != hlen {
		hlen = hdr + varintLen(uint64(hlen))
	}
	dst = putVarint(dst, uint64(hlen))
	for _, st := range serials {
		dst = putVarint(dst, st)
	}
	for i, v := range vals {
		dst = putSerialBody(dst, serials[i], v)
	}
	return dst
}

func varintLen(v uint64) int {
	n := 1
	for v > 0x7f {
		v >>= 7
		n++
		if n == 9 {
			return 9
		}
	}
	return n
}

func decodeSerial(st uint64, body []byte) Value {
	switch {
	case st == 0:
		return NullValue()
	case st >= 1 && st <= 6:
		n := serialBodyLen(st)
		var v int64
		if len(body) > 0 && body[0]&0x80 != 0 {
			v = -1
		}
		for i := 0; i < n; i++ {
			v = v<<8 | int64(body[i])&0xff
		}
		return IntValue(v)
	case st == 7:
		return RealValue(math.Float64frombits(binary.BigEndian.Uint64(body)))
	case st == 8:
		return IntValue(0)
	case st == 9:
		return IntValue(1)
	case st >= 13 && st%2 == 1:
		return TextValue(string(body[:int(st-13)/2]))
	case st >= 12:
		return BlobValue(append([]byte(nil), body[:int(st-12)/2]...))
	}
	return NullValue()
}

// DecodeRecord deserializes every column of a record.
func DecodeRecord(rec []byte) ([]Value, error) {
	hlen, n := getVarint(rec)
	if n == 0 || hlen > uint64(len(rec)) {
		return nil, errors.New(errors.KT_IOERR, "corrupt record header")
	}
	var out []Value
	hdr := rec[n:hlen]
	body := rec[hlen:]
	for len(hdr) > 0 {
		st, m := getVarint(hdr)
		if m == 0 {
			return nil, errors.New(errors.KT_IOERR, "corrupt record serial type")
		}
		hdr = hdr[m:]
		bl := serialBodyLen(st)
		if bl > len(body) {
			return nil, errors.New(errors.KT_IOERR, "record body truncated")
		}
		out = append(out, decodeSerial(st, body[:bl]))
		body = body[bl:]
	}
	return out, nil
}

// DecodeColumn extracts column i without materializing the others.
// Columns past the end of the record read as NULL, which lets rows
// written before a schema grew still satisfy newer programs.
func DecodeColumn(rec []byte, i int) (Value, error) {
	hlen, n := getVarint(rec)
	if n == 0 || hlen > uint64(len(rec)) {
		return Value{}, errors.New(errors.KT_IOERR, "corrupt record header")
	}
	hdr := rec[n:hlen]
	off := int(hlen)
	for col := 0; len(hdr) > 0; col++ {
		st, m := getVarint(hdr)
		if m == 0 {
			return Value{}, errors.New(errors.KT_IOERR, "corrupt record serial type")
		}
		hdr = hdr[m:]
		bl := serialBodyLen(st)
		if off+bl > len(rec) {
			return Value{}, errors.New(errors.KT_IOERR, "record body truncated")
		}
		if col == i {
			return decodeSerial(st, rec[off:off+bl]), nil
		}
		off += bl
	}
	return NullValue(), nil
}

// KeyInfo describes how to order serialized index keys: a collation and
// sort direction per key column. Trailing columns beyond NField break
// ties in ascending binary order.
type KeyInfo struct {
	NField   int
	Colls    []*CollSeq
	SortDesc []bool
}

func (ki *KeyInfo) coll(i int) *CollSeq {
	if ki != nil && i < len(ki.Colls) && ki.Colls[i] != nil {
		return ki.Colls[i]
	}
	return BinaryColl
}

func (ki *KeyInfo) desc(i int) bool {
	return ki != nil && i < len(ki.SortDesc) && ki.SortDesc[i]
}

// Compare orders two serialized records column by column under the key
// description. It is the comparator installed on index trees, so
// decoding errors cannot surface; malformed input sorts as NULL.
func (ki *KeyInfo) Compare(a, b []byte) int {
	av, erra := DecodeRecord(a)
	bv, errb := DecodeRecord(b)
	if erra != nil || errb != nil {
		return len(a) - len(b)
	}
	n := len(av)
	if len(bv) < n {
		n = len(bv)
	}
	for i := 0; i < n; i++ {
		c := Compare(av[i], bv[i], ki.coll(i))
		if c != 0 {
			if ki.desc(i) {
				return -c
			}
			return c
		}
	}
	return len(av) - len(bv)
}

package VM

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValTag identifies the runtime type of a Value.
type ValTag uint8

const (
	TagNull   ValTag = 0 // SQL NULL
	TagInt    ValTag = 1 // 64-bit signed integer
	TagReal   ValTag = 2 // float64
	TagText   ValTag = 3 // string payload
	TagBlob   ValTag = 4 // byte payload
	TagRowSet ValTag = 5 // sorted set of rowids
	TagAgg    ValTag = 6 // opaque aggregate accumulator
	TagFrame  ValTag = 7 // suspended coroutine frame
)

var tagNames = [...]string{
	TagNull:   "null",
	TagInt:    "integer",
	TagReal:   "real",
	TagText:   "text",
	TagBlob:   "blob",
	TagRowSet: "rowset",
	TagAgg:    "aggregate",
	TagFrame:  "coroutine",
}

func (t ValTag) String() string {
	if int(t) < len(tagNames) {
		return tagNames[t]
	}
	return "tag?"
}

// TextEnc tags the encoding of a Text value. Only UTF-8 is produced;
// the tag travels with the value so record decoding can round-trip it.
type TextEnc uint8

const EncUTF8 TextEnc = 1

// Value is one addressable typed slot in the register file. Overwriting
// a Value clears its subtype unless the opcode explicitly preserves it.
// The undef marker backs Move semantics: a moved-from register must be
// written before it is read again.
type Value struct {
	tag     ValTag
	n       int64
	r       float64
	s       string
	b       []byte
	set     *RowSet
	agg     *aggAccum
	frame   *Coroutine
	enc     TextEnc
	subtype uint8
	undef   bool
}

// Constructors.
func NullValue() Value           { return Value{tag: TagNull} }
func IntValue(n int64) Value     { return Value{tag: TagInt, n: n} }
func RealValue(r float64) Value  { return Value{tag: TagReal, r: r} }
func TextValue(s string) Value   { return Value{tag: TagText, s: s, enc: EncUTF8} }
func BlobValue(b []byte) Value   { return Value{tag: TagBlob, b: b} }
func undefValue() Value          { return Value{tag: TagNull, undef: true} }
func rowSetValue(rs *RowSet) Value { return Value{tag: TagRowSet, set: rs} }
func frameValue(fr *Coroutine) Value { return Value{tag: TagFrame, frame: fr} }
func aggValue(acc *aggAccum) Value   { return Value{tag: TagAgg, agg: acc} }

// BoolValue follows SQL convention: booleans are integers 0/1.
func BoolValue(b bool) Value {
	if b {
		return IntValue(1)
	}
	return IntValue(0)
}

// Accessors.
func (v Value) Tag() ValTag    { return v.tag }
func (v Value) IsNull() bool   { return v.tag == TagNull }
func (v Value) Int() int64     { return v.n }
func (v Value) Real() float64  { return v.r }
func (v Value) Text() string   { return v.s }
func (v Value) Blob() []byte   { return v.b }
func (v Value) Subtype() uint8 { return v.subtype }

// WithSubtype returns a copy of v carrying the given subtype.
func (v Value) WithSubtype(st uint8) Value {
	v.subtype = st
	return v
}

func (v Value) isNumeric() bool { return v.tag == TagInt || v.tag == TagReal }

// AsInt coerces v to an integer the way CAST(... AS INTEGER) does.
func (v Value) AsInt() int64 {
	switch v.tag {
	case TagInt:
		return v.n
	case TagReal:
		return int64(v.r)
	case TagText:
		n, _ := strconv.ParseInt(strings.TrimSpace(numericPrefix(v.s)), 10, 64)
		return n
	case TagBlob:
		n, _ := strconv.ParseInt(strings.TrimSpace(numericPrefix(string(v.b))), 10, 64)
		return n
	}
	return 0
}

// AsReal coerces v to a float.
func (v Value) AsReal() float64 {
	switch v.tag {
	case TagInt:
		return float64(v.n)
	case TagReal:
		return v.r
	case TagText:
		f, _ := strconv.ParseFloat(strings.TrimSpace(numericPrefix(v.s)), 64)
		return f
	case TagBlob:
		f, _ := strconv.ParseFloat(strings.TrimSpace(numericPrefix(string(v.b))), 64)
		return f
	}
	return 0
}

// AsText renders v the way column text conversion does.
func (v Value) AsText() string {
	switch v.tag {
	case TagText:
		return v.s
	case TagBlob:
		return string(v.b)
	case TagInt:
		return strconv.FormatInt(v.n, 10)
	case TagReal:
		return formatReal(v.r)
	}
	return ""
}

// Truth evaluates SQL truthiness. The second result reports a NULL
// operand, whose truth value is unknowable.
func (v Value) Truth() (truth, isNull bool) {
	switch v.tag {
	case TagNull:
		return false, true
	case TagInt:
		return v.n != 0, false
	case TagReal:
		return v.r != 0, false
	default:
		return v.AsReal() != 0, false
	}
}

// numericPrefix trims s to its longest leading numeric literal so that
// "3abc" coerces to 3 the way column affinity conversion does.
func numericPrefix(s string) string {
	s = strings.TrimSpace(s)
	end := 0
	seenDigit := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			seenDigit = true
			end = i + 1
		case (c == '+' || c == '-') && i == 0:
			end = i + 1
		case c == '.' || c == 'e' || c == 'E':
			if !seenDigit {
				return s[:end]
			}
			end = i + 1
		case (c == '+' || c == '-') && i > 0 && (s[i-1] == 'e' || s[i-1] == 'E'):
			end = i + 1
		default:
			return s[:end]
		}
	}
	return s[:end]
}

func formatReal(r float64) string {
	if r == math.Trunc(r) && math.Abs(r) < 1e15 {
		return strconv.FormatFloat(r, 'f', 1, 64)
	}
	return strconv.FormatFloat(r, 'g', -1, 64)
}

// String renders a value for traces and the disassembler, not for SQL.
func (v Value) String() string {
	if v.undef {
		return "undefined"
	}
	switch v.tag {
	case TagNull:
		return "NULL"
	case TagInt:
		return strconv.FormatInt(v.n, 10)
	case TagReal:
		return formatReal(v.r)
	case TagText:
		return fmt.Sprintf("%q", v.s)
	case TagBlob:
		return fmt.Sprintf("x'%x'", v.b)
	case TagRowSet:
		return fmt.Sprintf("rowset(%d)", v.set.Len())
	case TagAgg:
		return "agg"
	case TagFrame:
		return "frame"
	}
	return "?"
}

// ToAny converts a Value for the embedding API boundary. Not used on the
// instruction hot path.
func (v Value) ToAny() interface{} {
	switch v.tag {
	case TagNull:
		return nil
	case TagInt:
		return v.n
	case TagReal:
		return v.r
	case TagText:
		return v.s
	case TagBlob:
		return v.b
	}
	return nil
}

// FromAny builds a Value from a caller-supplied parameter.
func FromAny(val interface{}) Value {
	switch x := val.(type) {
	case nil:
		return NullValue()
	case int64:
		return IntValue(x)
	case int:
		return IntValue(int64(x))
	case int32:
		return IntValue(int64(x))
	case float64:
		return RealValue(x)
	case string:
		return TextValue(x)
	case []byte:
		return BlobValue(x)
	case bool:
		return BoolValue(x)
	}
	return TextValue(fmt.Sprintf("%v", val))
}

// CollSeq is a named text collation.
type CollSeq struct {
	Name string
	Cmp  func(a, b string) int
}

// BinaryColl orders text bytewise; it is the default collation.
var BinaryColl = &CollSeq{Name: "BINARY", Cmp: strings.Compare}

// NoCaseColl folds ASCII case before comparing.
var NoCaseColl = &CollSeq{
	Name: "NOCASE",
	Cmp: func(a, b string) int {
		return strings.Compare(strings.ToLower(a), strings.ToLower(b))
	},
}

// Compare orders two values: NULL < numeric < text < blob, numerics by
// value, text under coll, blobs bytewise. NULL against NULL is 0; the
// three-valued outcome of NULL comparisons is the caller's concern.
func Compare(a, b Value, coll *CollSeq) int {
	if coll == nil {
		coll = BinaryColl
	}
	ra, rb := compareRank(a), compareRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch ra {
	case 0: // both NULL
		return 0
	case 1: // both numeric
		if a.tag == TagInt && b.tag == TagInt {
			switch {
			case a.n < b.n:
				return -1
			case a.n > b.n:
				return 1
			}
			return 0
		}
		af, bf := a.AsReal(), b.AsReal()
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	case 2: // both text
		return coll.Cmp(a.s, b.s)
	default: // both blob
		return bytes.Compare(a.b, b.b)
	}
}

func compareRank(v Value) int {
	switch v.tag {
	case TagNull:
		return 0
	case TagInt, TagReal:
		return 1
	case TagText:
		return 2
	default:
		return 3
	}
}

// Column affinities, encoded one byte per column in P4 affinity strings.
const (
	AffBlob    byte = 'A'
	AffText    byte = 'B'
	AffNumeric byte = 'C'
	AffInteger byte = 'D'
	AffReal    byte = 'E'
)

// ApplyAffinity coerces v in place following the declared column
// affinity, mirroring pre-comparison and pre-storage conversion rules.
func ApplyAffinity(v Value, aff byte) Value {
	switch aff {
	case AffText:
		if v.isNumeric() {
			out := TextValue(v.AsText())
			return out
		}
	case AffNumeric, AffInteger:
		if v.tag == TagText || v.tag == TagBlob {
			if nv, ok := textToNumeric(v.AsText()); ok {
				return nv
			}
		}
		if aff == AffInteger && v.tag == TagReal && v.r == math.Trunc(v.r) {
			return IntValue(int64(v.r))
		}
	case AffReal:
		if v.tag == TagInt {
			return RealValue(float64(v.n))
		}
		if v.tag == TagText || v.tag == TagBlob {
			if nv, ok := textToNumeric(v.AsText()); ok {
				return RealValue(nv.AsReal())
			}
		}
	}
	return v
}

// CastTo forces v into the requested affinity. Unlike ApplyAffinity a
// cast always converts, using lossy prefix parsing when the text is not
// fully numeric. NULL survives every cast.
func CastTo(v Value, aff byte) Value {
	if v.tag == TagNull {
		return v
	}
	switch aff {
	case AffBlob:
		if v.tag == TagBlob {
			return v
		}
		return BlobValue([]byte(v.AsText()))
	case AffText:
		if v.tag == TagText {
			return v
		}
		return TextValue(v.AsText())
	case AffInteger:
		return IntValue(v.AsInt())
	case AffReal:
		return RealValue(v.AsReal())
	case AffNumeric:
		if v.isNumeric() {
			return v
		}
		if nv, ok := textToNumeric(v.AsText()); ok {
			return nv
		}
		r := v.AsReal()
		if r == math.Trunc(r) {
			return IntValue(int64(r))
		}
		return RealValue(r)
	}
	return v
}

// textToNumeric converts a fully numeric string, reporting failure for
// anything with trailing garbage so affinity never mangles real text.
func textToNumeric(s string) (Value, bool) {
	t := strings.TrimSpace(s)
	if t == "" {
		return NullValue(), false
	}
	if n, err := strconv.ParseInt(t, 10, 64); err == nil {
		return IntValue(n), true
	}
	if f, err := strconv.ParseFloat(t, 64); err == nil {
		if f == math.Trunc(f) && math.Abs(f) < 1e15 && !strings.ContainsAny(t, "eE.") {
			return IntValue(int64(f)), true
		}
		return RealValue(f), true
	}
	return NullValue(), false
}

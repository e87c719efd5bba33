package VM

import "math"

// Binary arithmetic over two values, NULL-propagating: any NULL operand
// makes the result NULL, as does division or remainder by zero.

func AddValues(a, b Value) Value {
	return numericBinop(a, b, func(x, y int64) int64 { return x + y },
		func(x, y float64) float64 { return x + y })
}

func SubValues(a, b Value) Value {
	return numericBinop(a, b, func(x, y int64) int64 { return x - y },
		func(x, y float64) float64 { return x - y })
}

func MulValues(a, b Value) Value {
	return numericBinop(a, b, func(x, y int64) int64 { return x * y },
		func(x, y float64) float64 { return x * y })
}

func DivValues(a, b Value) Value {
	if a.IsNull() || b.IsNull() {
		return NullValue()
	}
	if a.tag == TagInt && b.tag == TagInt {
		if b.n == 0 {
			return NullValue()
		}
		return IntValue(a.n / b.n)
	}
	bf := b.AsReal()
	if bf == 0 {
		return NullValue()
	}
	return RealValue(a.AsReal() / bf)
}

func RemValues(a, b Value) Value {
	if a.IsNull() || b.IsNull() {
		return NullValue()
	}
	if a.tag == TagInt && b.tag == TagInt {
		if b.n == 0 {
			return NullValue()
		}
		return IntValue(a.n % b.n)
	}
	bf := b.AsReal()
	if bf == 0 {
		return NullValue()
	}
	return RealValue(math.Mod(a.AsReal(), bf))
}

func numericBinop(a, b Value, fi func(x, y int64) int64, ff func(x, y float64) float64) Value {
	if a.IsNull() || b.IsNull() {
		return NullValue()
	}
	if a.tag == TagInt && b.tag == TagInt {
		return IntValue(fi(a.n, b.n))
	}
	return RealValue(ff(a.AsReal(), b.AsReal()))
}

// ConcatValues joins the text renderings of two values, NULL-propagating.
func ConcatValues(a, b Value) Value {
	if a.IsNull() || b.IsNull() {
		return NullValue()
	}
	return TextValue(a.AsText() + b.AsText())
}

// Bitwise operators treat operands as integers; NULL propagates.

func BitAndValues(a, b Value) Value {
	if a.IsNull() || b.IsNull() {
		return NullValue()
	}
	return IntValue(a.AsInt() & b.AsInt())
}

func BitOrValues(a, b Value) Value {
	if a.IsNull() || b.IsNull() {
		return NullValue()
	}
	return IntValue(a.AsInt() | b.AsInt())
}

func BitNotValue(a Value) Value {
	if a.IsNull() {
		return NullValue()
	}
	return IntValue(^a.AsInt())
}

// ShiftValues shifts x by amount bits. A negative amount shifts the
// other way; shifts of 64 or more saturate the way repeated one-bit
// shifts would.
func ShiftValues(x, amount Value, left bool) Value {
	if x.IsNull() || amount.IsNull() {
		return NullValue()
	}
	n := x.AsInt()
	sh := amount.AsInt()
	if sh < 0 {
		left = !left
		sh = -sh
	}
	if sh >= 64 {
		if left || n >= 0 {
			return IntValue(0)
		}
		return IntValue(-1)
	}
	if left {
		return IntValue(n << uint(sh))
	}
	return IntValue(n >> uint(sh))
}

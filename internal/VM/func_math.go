package VM

import (
	"math"

	"github.com/kitedb/kite/internal/SF/errors"
)

// Extended math functions beyond the core set. All of them propagate
// NULL and return NULL on domain errors (sqrt of a negative, log of a
// non-positive) rather than failing the statement.

func init() {
	RegisterFunc(&FuncDef{Name: "pow", NArg: 2, Scalar: fnPow})
	RegisterFunc(&FuncDef{Name: "power", NArg: 2, Scalar: fnPow})
	RegisterFunc(&FuncDef{Name: "sqrt", NArg: 1, Scalar: fnSqrt})
	RegisterFunc(&FuncDef{Name: "mod", NArg: 2, Scalar: fnMod})
	RegisterFunc(&FuncDef{Name: "pi", NArg: 0, Scalar: fnPi})
	RegisterFunc(&FuncDef{Name: "exp", NArg: 1, Scalar: fnExp})
	RegisterFunc(&FuncDef{Name: "ln", NArg: 1, Scalar: real1(math.Log, positiveOnly)})
	RegisterFunc(&FuncDef{Name: "log", NArg: 1, Scalar: real1(math.Log10, positiveOnly)})
	RegisterFunc(&FuncDef{Name: "log2", NArg: 1, Scalar: real1(math.Log2, positiveOnly)})
	RegisterFunc(&FuncDef{Name: "log10", NArg: 1, Scalar: real1(math.Log10, positiveOnly)})
	RegisterFunc(&FuncDef{Name: "sign", NArg: 1, Scalar: fnSign})
	RegisterFunc(&FuncDef{Name: "round", NArg: -1, Scalar: fnRound})
}

const positiveOnly = true

// real1 wraps a float64 unary into a NULL-propagating scalar.
func real1(f func(float64) float64, posOnly bool) func([]Value) (Value, error) {
	return func(args []Value) (Value, error) {
		v := args[0]
		if v.IsNull() {
			return NullValue(), nil
		}
		x := v.AsReal()
		if posOnly && x <= 0 {
			return NullValue(), nil
		}
		return RealValue(f(x)), nil
	}
}

func fnPow(args []Value) (Value, error) {
	if args[0].IsNull() || args[1].IsNull() {
		return NullValue(), nil
	}
	return RealValue(math.Pow(args[0].AsReal(), args[1].AsReal())), nil
}

func fnSqrt(args []Value) (Value, error) {
	v := args[0]
	if v.IsNull() {
		return NullValue(), nil
	}
	x := v.AsReal()
	if x < 0 {
		return NullValue(), nil
	}
	return RealValue(math.Sqrt(x)), nil
}

func fnMod(args []Value) (Value, error) {
	if args[0].IsNull() || args[1].IsNull() {
		return NullValue(), nil
	}
	d := args[1].AsReal()
	if d == 0 {
		return NullValue(), nil
	}
	return RealValue(math.Mod(args[0].AsReal(), d)), nil
}

func fnPi(_ []Value) (Value, error) {
	return RealValue(math.Pi), nil
}

func fnExp(args []Value) (Value, error) {
	if args[0].IsNull() {
		return NullValue(), nil
	}
	return RealValue(math.Exp(args[0].AsReal())), nil
}

func fnSign(args []Value) (Value, error) {
	v := args[0]
	if v.IsNull() {
		return NullValue(), nil
	}
	x := v.AsReal()
	switch {
	case x > 0:
		return IntValue(1), nil
	case x < 0:
		return IntValue(-1), nil
	default:
		return IntValue(0), nil
	}
}

// fnRound rounds half away from zero; the optional second argument
// gives the number of decimal places.
func fnRound(args []Value) (Value, error) {
	if len(args) < 1 || len(args) > 2 {
		return Value{}, errors.New(errors.KT_ERROR, "wrong number of arguments to function round()")
	}
	if args[0].IsNull() {
		return NullValue(), nil
	}
	places := int64(0)
	if len(args) == 2 {
		if args[1].IsNull() {
			return NullValue(), nil
		}
		places = args[1].AsInt()
		if places < 0 {
			places = 0
		}
		if places > 30 {
			places = 30
		}
	}
	scale := math.Pow(10, float64(places))
	return RealValue(math.Round(args[0].AsReal()*scale) / scale), nil
}

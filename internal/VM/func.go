package VM

import (
	"math"
	"strings"

	"github.com/kitedb/kite/internal/SF/errors"
)

// FuncDef describes a callable function. Scalar functions fill Scalar;
// aggregates fill Step and Final. NArg of -1 accepts any arity.
type FuncDef struct {
	Name   string
	NArg   int
	Scalar func(args []Value) (Value, error)
	Step   func(acc *aggAccum, args []Value) error
	Final  func(acc *aggAccum) (Value, error)
}

func (f *FuncDef) isAggregate() bool { return f.Step != nil }

// aggAccum is the per-register aggregate accumulator created lazily by
// the first AggStep against a register.
type aggAccum struct {
	fn    *FuncDef
	count int64
	isum  int64
	rsum  float64
	// approx flips once integer summation overflows or a real joins in.
	approx bool
	best   Value
	hasVal bool
}

// funcRegistry maps lower-cased names to definitions. Registration
// happens at init time; lookups during execution are read-only.
var funcRegistry = map[string]*FuncDef{}

// RegisterFunc installs a function definition, replacing any previous
// function of the same name.
func RegisterFunc(def *FuncDef) {
	funcRegistry[strings.ToLower(def.Name)] = def
}

// LookupFunc finds a function compatible with the requested arity.
func LookupFunc(name string, nArg int) (*FuncDef, error) {
	def, ok := funcRegistry[strings.ToLower(name)]
	if !ok {
		return nil, errors.Errorf(errors.KT_ERROR, "no such function: %s", name)
	}
	if def.NArg >= 0 && def.NArg != nArg {
		return nil, errors.Errorf(errors.KT_ERROR, "wrong number of arguments to function %s()", def.Name)
	}
	return def, nil
}

func init() {
	RegisterFunc(&FuncDef{Name: "length", NArg: 1, Scalar: fnLength})
	RegisterFunc(&FuncDef{Name: "upper", NArg: 1, Scalar: fnUpper})
	RegisterFunc(&FuncDef{Name: "lower", NArg: 1, Scalar: fnLower})
	RegisterFunc(&FuncDef{Name: "abs", NArg: 1, Scalar: fnAbs})
	RegisterFunc(&FuncDef{Name: "coalesce", NArg: -1, Scalar: fnCoalesce})
	RegisterFunc(&FuncDef{Name: "typeof", NArg: 1, Scalar: fnTypeof})

	RegisterFunc(&FuncDef{Name: "count", NArg: -1, Step: stepCount, Final: finalCount})
	RegisterFunc(&FuncDef{Name: "sum", NArg: 1, Step: stepSum, Final: finalSum})
	RegisterFunc(&FuncDef{Name: "total", NArg: 1, Step: stepSum, Final: finalTotal})
	RegisterFunc(&FuncDef{Name: "avg", NArg: 1, Step: stepSum, Final: finalAvg})
	RegisterFunc(&FuncDef{Name: "min", NArg: 1, Step: stepMin, Final: finalBest})
	RegisterFunc(&FuncDef{Name: "max", NArg: 1, Step: stepMax, Final: finalBest})
}

func fnLength(args []Value) (Value, error) {
	v := args[0]
	switch v.tag {
	case TagNull:
		return NullValue(), nil
	case TagBlob:
		return IntValue(int64(len(v.b))), nil
	default:
		return IntValue(int64(len([]rune(v.AsText())))), nil
	}
}

func fnUpper(args []Value) (Value, error) {
	if args[0].IsNull() {
		return NullValue(), nil
	}
	return TextValue(strings.ToUpper(args[0].AsText())), nil
}

func fnLower(args []Value) (Value, error) {
	if args[0].IsNull() {
		return NullValue(), nil
	}
	return TextValue(strings.ToLower(args[0].AsText())), nil
}

func fnAbs(args []Value) (Value, error) {
	v := args[0]
	switch v.tag {
	case TagNull:
		return NullValue(), nil
	case TagInt:
		if v.n == math.MinInt64 {
			return Value{}, errors.New(errors.KT_RANGE, "integer overflow in abs()")
		}
		if v.n < 0 {
			return IntValue(-v.n), nil
		}
		return v, nil
	default:
		return RealValue(math.Abs(v.AsReal())), nil
	}
}

func fnCoalesce(args []Value) (Value, error) {
	for _, v := range args {
		if !v.IsNull() {
			return v, nil
		}
	}
	return NullValue(), nil
}

func fnTypeof(args []Value) (Value, error) {
	switch args[0].tag {
	case TagNull:
		return TextValue("null"), nil
	case TagInt:
		return TextValue("integer"), nil
	case TagReal:
		return TextValue("real"), nil
	case TagText:
		return TextValue("text"), nil
	default:
		return TextValue("blob"), nil
	}
}

func stepCount(acc *aggAccum, args []Value) error {
	// count(*) takes no argument; count(x) skips NULLs.
	if len(args) == 1 && args[0].IsNull() {
		return nil
	}
	acc.count++
	return nil
}

func finalCount(acc *aggAccum) (Value, error) {
	return IntValue(acc.count), nil
}

func stepSum(acc *aggAccum, args []Value) error {
	v := args[0]
	if v.IsNull() {
		return nil
	}
	acc.count++
	if v.tag == TagInt && !acc.approx {
		s := acc.isum + v.n
		if (s > acc.isum) == (v.n > 0) || v.n == 0 {
			acc.isum = s
			return nil
		}
		acc.approx = true
		acc.rsum = float64(acc.isum)
	}
	if !acc.approx && v.tag != TagInt {
		acc.approx = true
		acc.rsum = float64(acc.isum)
	}
	acc.rsum += v.AsReal()
	return nil
}

func finalSum(acc *aggAccum) (Value, error) {
	if acc.count == 0 {
		return NullValue(), nil
	}
	if acc.approx {
		return RealValue(acc.rsum), nil
	}
	return IntValue(acc.isum), nil
}

func finalTotal(acc *aggAccum) (Value, error) {
	if acc.approx {
		return RealValue(acc.rsum), nil
	}
	return RealValue(float64(acc.isum)), nil
}

func finalAvg(acc *aggAccum) (Value, error) {
	if acc.count == 0 {
		return NullValue(), nil
	}
	sum := acc.rsum
	if !acc.approx {
		sum = float64(acc.isum)
	}
	return RealValue(sum / float64(acc.count)), nil
}

func stepMin(acc *aggAccum, args []Value) error {
	v := args[0]
	if v.IsNull() {
		return nil
	}
	if !acc.hasVal || Compare(v, acc.best, BinaryColl) < 0 {
		acc.best = v
		acc.hasVal = true
	}
	return nil
}

func stepMax(acc *aggAccum, args []Value) error {
	v := args[0]
	if v.IsNull() {
		return nil
	}
	if !acc.hasVal || Compare(v, acc.best, BinaryColl) > 0 {
		acc.best = v
		acc.hasVal = true
	}
	return nil
}

func finalBest(acc *aggAccum) (Value, error) {
	if !acc.hasVal {
		return NullValue(), nil
	}
	return acc.best, nil
}

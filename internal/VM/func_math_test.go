package VM

import (
	"math"
	"testing"
)

func callScalar(t *testing.T, name string, args ...Value) Value {
	t.Helper()
	def, err := LookupFunc(name, len(args))
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	out, err := def.Scalar(args)
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return out
}

func TestMathFunctions(t *testing.T) {
	if out := callScalar(t, "pow", IntValue(2), IntValue(10)); out.Real() != 1024 {
		t.Errorf("pow(2,10) = %v, want 1024", out)
	}
	if out := callScalar(t, "sqrt", IntValue(9)); out.Real() != 3 {
		t.Errorf("sqrt(9) = %v, want 3", out)
	}
	if out := callScalar(t, "pi"); math.Abs(out.Real()-math.Pi) > 1e-15 {
		t.Errorf("pi() = %v", out)
	}
	if out := callScalar(t, "sign", IntValue(-7)); out.Int() != -1 {
		t.Errorf("sign(-7) = %v, want -1", out)
	}
	if out := callScalar(t, "log2", IntValue(8)); out.Real() != 3 {
		t.Errorf("log2(8) = %v, want 3", out)
	}
	if out := callScalar(t, "round", RealValue(2.5)); out.Real() != 3 {
		t.Errorf("round(2.5) = %v, want 3", out)
	}
	if out := callScalar(t, "round", RealValue(2.347), IntValue(2)); out.Real() != 2.35 {
		t.Errorf("round(2.347, 2) = %v, want 2.35", out)
	}
}

func TestMathFunctionsDomainErrorsYieldNull(t *testing.T) {
	cases := []struct {
		name string
		args []Value
	}{
		{"sqrt", []Value{IntValue(-1)}},
		{"ln", []Value{IntValue(0)}},
		{"log", []Value{IntValue(-5)}},
		{"mod", []Value{IntValue(7), IntValue(0)}},
		{"pow", []Value{NullValue(), IntValue(2)}},
		{"exp", []Value{NullValue()}},
	}
	for _, tc := range cases {
		if out := callScalar(t, tc.name, tc.args...); !out.IsNull() {
			t.Errorf("%s(%v) = %v, want NULL", tc.name, tc.args, out)
		}
	}
}

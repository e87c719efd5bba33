package util

import (
	"fmt"
	"reflect"
)

// Assert panics with a formatted message if the condition is false.
// It guards programming contracts (operand roles, register definedness)
// whose violation is a bug in the program builder or the VM itself, never
// a runtime condition to report to the caller.
// Usage: util.Assert(n >= 0, "register count %d may not be negative", n)
func Assert(condition bool, format string, args ...interface{}) {
	if !condition {
		panic(fmt.Sprintf("assertion failed: "+format, args...))
	}
}

// AssertNotNil panics if the value is nil (including typed nils like (*int)(nil)).
func AssertNotNil(value interface{}, name string) {
	if value == nil {
		panic(fmt.Sprintf("assertion failed: %s must not be nil", name))
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Ptr, reflect.Func, reflect.Map, reflect.Slice, reflect.Chan, reflect.Interface:
		if v.IsNil() {
			panic(fmt.Sprintf("assertion failed: %s must not be nil", name))
		}
	}
}

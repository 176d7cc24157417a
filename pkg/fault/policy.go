package fault

import (
	"fmt"
	"reflect"
)

// Verdict is the judgement of a NilPolicy on a nil dereference.
type Verdict int

const (
	// CallerError means the nil dereference is attributed to the caller and is not a fault.
	CallerError Verdict = iota
	// Genuine means the nil dereference is a fault of the SUT.
	Genuine
	// Ambiguous means the nil dereference is recorded as a fault flagged as ambiguous.
	Ambiguous
)

// A NilPolicy decides whether a nil dereference raised by an uncontracted method is caused by
// a nil argument supplied by the caller.
type NilPolicy interface {
	Judge(call Call, err error) Verdict
}

// NilPolicyFunc adapts a function to a NilPolicy.
type NilPolicyFunc func(call Call, err error) Verdict

func (f NilPolicyFunc) Judge(call Call, err error) Verdict {
	return f(call, err)
}

var (
	// NilArgs attributes a nil dereference to the caller iff any reference argument,
	// receiver included, is nil.
	NilArgs NilPolicy = NilPolicyFunc(func(call Call, _ error) Verdict {
		if HasNilArgument(call.Args) {
			return CallerError
		}
		return Genuine
	})

	// Strict treats every nil dereference as a fault.
	Strict NilPolicy = NilPolicyFunc(func(Call, error) Verdict {
		return Genuine
	})

	// Flag records nil dereferences with nil arguments as ambiguous faults.
	Flag NilPolicy = NilPolicyFunc(func(call Call, _ error) Verdict {
		if HasNilArgument(call.Args) {
			return Ambiguous
		}
		return Genuine
	})
)

// NilPolicyByName returns the policy with the passed configuration name.
func NilPolicyByName(name string) (NilPolicy, error) {
	switch name {
	case "", "nil-args":
		return NilArgs, nil
	case "strict":
		return Strict, nil
	case "flag":
		return Flag, nil
	}
	return nil, fmt.Errorf("unknown nil policy %q", name)
}

// HasNilArgument reports whether any argument of a nilable kind is nil.
func HasNilArgument(args []reflect.Value) bool {
	for _, arg := range args {
		if !arg.IsValid() {
			return true
		}
		switch arg.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			if arg.IsNil() {
				return true
			}
		}
	}
	return false
}

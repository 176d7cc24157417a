// Package contract provides the executable checks that instrumented SUT code uses to state
// its preconditions, postconditions, invariants and assertions.
//
// A failing check panics with a *Violation wrapped by errors.WithStack, so the stack of the
// check site travels with the panic value.
package contract

import (
	"fmt"
	"runtime"

	"github.com/pkg/errors"
)

// Kind is the kind of contract that was violated.
type Kind int

const (
	PreconditionViolation Kind = iota
	PostconditionViolation
	InvariantViolation
	AssertionViolation
)

func (k Kind) String() string {
	switch k {
	case PreconditionViolation:
		return "precondition"
	case PostconditionViolation:
		return "postcondition"
	case InvariantViolation:
		return "invariant"
	case AssertionViolation:
		return "assertion"
	}
	return fmt.Sprintf("contract(%d)", int(k))
}

// A Violation describes a failed contract check.
type Violation struct {
	Kind     Kind
	Message  string
	Function string // Fully qualified name of the function that ran the check
}

func (v *Violation) Error() string {
	return fmt.Sprintf("%s violated in %s: %s", v.Kind, v.Function, v.Message)
}

// Require checks a precondition of the calling function.
func Require(cond bool, format string, args ...any) {
	if !cond {
		raise(PreconditionViolation, format, args...)
	}
}

// Ensure checks a postcondition of the calling function.
func Ensure(cond bool, format string, args ...any) {
	if !cond {
		raise(PostconditionViolation, format, args...)
	}
}

// Invariant checks a class invariant.
func Invariant(cond bool, format string, args ...any) {
	if !cond {
		raise(InvariantViolation, format, args...)
	}
}

// Assert checks an inline assertion.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		raise(AssertionViolation, format, args...)
	}
}

func raise(kind Kind, format string, args ...any) {
	panic(errors.WithStack(&Violation{
		Kind:     kind,
		Message:  fmt.Sprintf(format, args...),
		Function: callerFunction(3),
	}))
}

func callerFunction(skip int) string {
	pc, _, _, ok := runtime.Caller(skip)
	if !ok {
		return ""
	}
	if fn := runtime.FuncForPC(pc); fn != nil {
		return fn.Name()
	}
	return ""
}

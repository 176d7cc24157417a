// Package fault turns panics raised while running a candidate into canonical, comparable
// fault identities.
//
// A [Fault] is identified by its message and its stack trace pruned to the SUT boundary.
// The [Classifier] decides, based on the contract taxonomy, whether a panic is a fault at all
// and records faults in a [Coverage] dimension, where equal faults collapse.
package fault

import (
	"fmt"
	"strings"
)

// Kind is the classification of a fault.
type Kind int

const (
	UnexpectedException Kind = iota
	InternalPrecondition
	Postcondition
	Invariant
	Assertion
	Timeout
)

func (k Kind) String() string {
	switch k {
	case UnexpectedException:
		return "unexpected-exception"
	case InternalPrecondition:
		return "internal-precondition"
	case Postcondition:
		return "postcondition"
	case Invariant:
		return "invariant"
	case Assertion:
		return "assertion"
	case Timeout:
		return "timeout"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// A Frame is a single pruned stack frame.
type Frame struct {
	Function string `json:"function" yaml:"function"`
	File     string `json:"file,omitempty" yaml:"file,omitempty"`
	Line     int    `json:"line,omitempty" yaml:"line,omitempty"`
}

func (f Frame) String() string {
	if f.File == "" {
		return f.Function
	}
	return fmt.Sprintf("%s (%s:%d)", f.Function, f.File, f.Line)
}

// A Fault is the canonical identity of a failure.
// Kind and Ambiguous describe the fault but are not part of its identity.
type Fault struct {
	Kind      Kind    `json:"kind" yaml:"kind"`
	Message   string  `json:"message" yaml:"message"`
	Trace     []Frame `json:"trace" yaml:"trace"`
	Ambiguous bool    `json:"ambiguous,omitempty" yaml:"ambiguous,omitempty"`
}

// Key returns a string which is equal for two faults iff the faults are equal.
func (f *Fault) Key() string {
	var b strings.Builder
	b.WriteString(f.Message)
	for _, frame := range f.Trace {
		b.WriteByte('\n')
		b.WriteString(frame.String())
	}
	return b.String()
}

// Equal reports whether f and other have the same message and pruned trace.
func (f *Fault) Equal(other *Fault) bool {
	if len(f.Trace) != len(other.Trace) || f.Message != other.Message {
		return false
	}
	for i := range f.Trace {
		if f.Trace[i] != other.Trace[i] {
			return false
		}
	}
	return true
}

func (f *Fault) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", f.Kind, f.Message)
	if f.Ambiguous {
		b.WriteString(" (ambiguous)")
	}
	for _, frame := range f.Trace {
		b.WriteString("\n\tat ")
		b.WriteString(frame.String())
	}
	return b.String()
}

func (f *Fault) clone() *Fault {
	c := *f
	c.Trace = append([]Frame(nil), f.Trace...)
	return &c
}

// Error is raised in place of a panic that was classified as a fault.
type Error struct {
	Fault *Fault
	Err   error // The original panic value
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s fault: %s", e.Fault.Kind, e.Fault.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// InvalidError is raised in place of a precondition violation at the SUT's entry point.
// It marks an ill-formed candidate operation rather than a fault.
type InvalidError struct {
	Err error
}

func (e *InvalidError) Error() string {
	return "invalid candidate: " + e.Err.Error()
}

func (e *InvalidError) Unwrap() error {
	return e.Err
}

// PanicError wraps a panic value which is not an error.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprint(e.Value)
}

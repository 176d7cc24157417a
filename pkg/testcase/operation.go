package testcase

import (
	"fmt"
	"strings"
)

// A Reference is a typed slot of the repository of values available to a test.
type Reference struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
}

func (r Reference) String() string {
	return fmt.Sprintf("%s#%d", r.Type, r.Index)
}

// Kind identifies the kind of an operation.
type Kind int

const (
	CreateObjectKind Kind = iota
	InvokeKind
	AssignConstantKind
	ResetRepositoryKind
)

func (k Kind) String() string {
	switch k {
	case CreateObjectKind:
		return "create"
	case InvokeKind:
		return "invoke"
	case AssignConstantKind:
		return "assign"
	case ResetRepositoryKind:
		return "reset"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// An Operation is a single step of a test.
type Operation interface {
	Kind() Kind
	// Target returns the reference the operation binds, or nil if it binds none.
	Target() *Reference
	// Uses returns the references read by the operation, receiver first.
	Uses() []Reference
	// String returns the canonical form of the operation. Two operations are structurally
	// equal iff their canonical forms are equal.
	String() string
}

// CreateObject constructs a new object using one of the class' constructors.
type CreateObject struct {
	Result      *Reference
	Class       string
	Constructor string
	Args        []Reference
}

func (o CreateObject) Kind() Kind         { return CreateObjectKind }
func (o CreateObject) Target() *Reference { return o.Result }
func (o CreateObject) Uses() []Reference  { return append([]Reference(nil), o.Args...) }

func (o CreateObject) String() string {
	call := fmt.Sprintf("new %s.%s(%s)", o.Class, o.Constructor, joinRefs(o.Args))
	if o.Result == nil {
		return call
	}
	return fmt.Sprintf("%s = %s", o.Result, call)
}

// Invoke calls a method. Static methods have a nil Receiver.
type Invoke struct {
	Result   *Reference
	Receiver *Reference
	Class    string
	Method   string
	Args     []Reference
}

func (o Invoke) Kind() Kind         { return InvokeKind }
func (o Invoke) Target() *Reference { return o.Result }

func (o Invoke) Uses() []Reference {
	uses := make([]Reference, 0, len(o.Args)+1)
	if o.Receiver != nil {
		uses = append(uses, *o.Receiver)
	}
	return append(uses, o.Args...)
}

func (o Invoke) String() string {
	callee := o.Class
	if o.Receiver != nil {
		callee = o.Receiver.String()
	}
	call := fmt.Sprintf("%s.%s(%s)", callee, o.Method, joinRefs(o.Args))
	if o.Result == nil {
		return call
	}
	return fmt.Sprintf("%s = %s", o.Result, call)
}

// AssignConstant binds a literal to a reference of a primitive type.
type AssignConstant struct {
	Result Reference
	Value  any
}

func (o AssignConstant) Kind() Kind         { return AssignConstantKind }
func (o AssignConstant) Target() *Reference { r := o.Result; return &r }
func (o AssignConstant) Uses() []Reference  { return nil }

func (o AssignConstant) String() string {
	return fmt.Sprintf("%s = %#v", o.Result, o.Value)
}

// ResetRepository clears all bindings.
type ResetRepository struct{}

func (ResetRepository) Kind() Kind         { return ResetRepositoryKind }
func (ResetRepository) Target() *Reference { return nil }
func (ResetRepository) Uses() []Reference  { return nil }
func (ResetRepository) String() string     { return "reset" }

func joinRefs(refs []Reference) string {
	parts := make([]string, len(refs))
	for i, r := range refs {
		parts[i] = r.String()
	}
	return strings.Join(parts, ", ")
}

func copyRef(r *Reference) *Reference {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// cloneOperation deep copies an operation so that a Test never shares slices with its creator.
func cloneOperation(op Operation) Operation {
	switch o := op.(type) {
	case CreateObject:
		o.Result = copyRef(o.Result)
		o.Args = append([]Reference(nil), o.Args...)
		return o
	case *CreateObject:
		return cloneOperation(*o)
	case Invoke:
		o.Result = copyRef(o.Result)
		o.Receiver = copyRef(o.Receiver)
		o.Args = append([]Reference(nil), o.Args...)
		return o
	case *Invoke:
		return cloneOperation(*o)
	case AssignConstant:
		return o
	case *AssignConstant:
		return *o
	case ResetRepository, *ResetRepository:
		return ResetRepository{}
	}
	return op
}

// mapRefs returns a copy of op with every reference passed through f.
func mapRefs(op Operation, f func(Reference) Reference) Operation {
	mapPtr := func(r *Reference) *Reference {
		if r == nil {
			return nil
		}
		m := f(*r)
		return &m
	}
	mapAll := func(refs []Reference) []Reference {
		out := make([]Reference, len(refs))
		for i, r := range refs {
			out[i] = f(r)
		}
		return out
	}

	switch o := cloneOperation(op).(type) {
	case CreateObject:
		o.Args = mapAll(o.Args)
		o.Result = mapPtr(o.Result)
		return o
	case Invoke:
		o.Receiver = mapPtr(o.Receiver)
		o.Args = mapAll(o.Args)
		o.Result = mapPtr(o.Result)
		return o
	case AssignConstant:
		o.Result = f(o.Result)
		return o
	default:
		return o
	}
}

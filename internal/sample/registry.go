// Package sample is a small instrumented system under test with planted defects.
//
// Account states contracts; a cleared overdraft breaks its postcondition and transfers of
// non-positive amounts violate the precondition of Deposit internally. Stack and Calculator
// have no contracts: peeking an empty stack, dividing by zero and the steps of a
// non-positive number are faults.
package sample

import (
	"reflect"

	"github.com/DominicWuest/seqgen/pkg/sut"
)

// Classes returns fresh descriptions of all sample classes.
func Classes() []*sut.Class {
	return []*sut.Class{
		{
			Name:      "Account",
			Type:      reflect.TypeFor[*Account](),
			Contracts: true,
			Constructors: []*sut.Method{
				{Name: "New", Fn: NewAccount},
				{Name: "WithLimit", Fn: NewAccountWithLimit},
			},
			Methods: []*sut.Method{
				{Name: "Balance", Fn: (*Account).Balance},
				{Name: "Deposit", Fn: (*Account).Deposit},
				{Name: "Withdraw", Fn: (*Account).Withdraw},
				{Name: "Transfer", Fn: (*Account).Transfer},
			},
		},
		{
			Name: "Stack",
			Type: reflect.TypeFor[*Stack](),
			Constructors: []*sut.Method{
				{Name: "New", Fn: NewStack},
				{Name: "Of", Fn: NewStackOf},
			},
			Methods: []*sut.Method{
				{Name: "Push", Fn: (*Stack).Push},
				{Name: "Pop", Fn: (*Stack).Pop},
				{Name: "MustPop", Fn: (*Stack).MustPop, Throws: []error{ErrEmpty}},
				{Name: "Peek", Fn: (*Stack).Peek},
				{Name: "Size", Fn: (*Stack).Size},
				{Name: "Append", Fn: (*Stack).Append},
			},
		},
		{
			Name:         "Calculator",
			Type:         reflect.TypeFor[*Calculator](),
			Constructors: []*sut.Method{{Name: "New", Fn: NewCalculator}},
			Methods: []*sut.Method{
				{Name: "Memory", Fn: (*Calculator).Memory},
				{Name: "Divide", Fn: (*Calculator).Divide},
				{Name: "Sqrt", Fn: (*Calculator).Sqrt},
				{Name: "Steps", Fn: (*Calculator).Steps},
				{Name: "Abs", Fn: Abs, Static: true},
			},
		},
	}
}

// Registry returns a registry of all sample classes with cut as the class under test.
func Registry(cut string) (*sut.Registry, error) {
	return sut.NewRegistry(cut, Classes()...)
}

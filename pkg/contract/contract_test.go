package contract

import (
	"errors"
	"strings"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func withdraw(balance, amount int) int {
	Require(amount <= balance, "amount %d exceeds balance %d", amount, balance)
	return balance - amount
}

func recovered(f func()) (r any) {
	defer func() { r = recover() }()
	f()
	return nil
}

func TestRequire(t *testing.T) {
	assert.Nil(t, recovered(func() { withdraw(10, 5) }), "Satisfied precondition panicked")

	r := recovered(func() { withdraw(1, 5) })
	err, ok := r.(error)
	assert.True(t, ok, "Violated precondition did not panic with an error")

	var v *Violation
	assert.True(t, errors.As(err, &v), "Panic value does not wrap a violation")
	assert.Equal(t, PreconditionViolation, v.Kind)
	assert.Equal(t, "amount 5 exceeds balance 1", v.Message)
	assert.True(t, strings.HasSuffix(v.Function, "contract.withdraw"), "Wrong function %q", v.Function)

	_, hasStack := err.(interface{ StackTrace() pkgerrors.StackTrace })
	assert.True(t, hasStack, "Violation does not carry a stack")
}

func TestKinds(t *testing.T) {
	values := []struct {
		check func(bool, string, ...any)
		kind  Kind
	}{
		{Require, PreconditionViolation},
		{Ensure, PostconditionViolation},
		{Invariant, InvariantViolation},
		{Assert, AssertionViolation},
	}

	for _, v := range values {
		r := recovered(func() { v.check(false, "failed") })
		var violation *Violation
		assert.True(t, errors.As(r.(error), &violation))
		assert.Equal(t, v.kind, violation.Kind)
		assert.Equal(t, v.kind.String()+" violated in "+violation.Function+": failed", violation.Error())
	}
}

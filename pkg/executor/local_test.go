package executor_test

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DominicWuest/seqgen/pkg/contract"
	"github.com/DominicWuest/seqgen/pkg/coverage"
	"github.com/DominicWuest/seqgen/pkg/executor"
	"github.com/DominicWuest/seqgen/pkg/fault"
	"github.com/DominicWuest/seqgen/pkg/sut"
	"github.com/DominicWuest/seqgen/pkg/testcase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// account carries contracts
type account struct {
	balance int
}

func newAccount() *account { return &account{} }

func (a *account) Deposit(env *sut.Env, amount int) {
	env.Hit(10)
	contract.Require(amount > 0, "amount must be positive")
	env.Hit(11)
	a.balance += amount
}

func (a *account) Balance(env *sut.Env) int {
	env.Hit(12)
	return a.balance
}

func (a *account) Broken(env *sut.Env) int {
	env.Hit(13)
	contract.Ensure(false, "balance is never negative")
	return 0
}

func (a *account) Spin(env *sut.Env) {
	for {
		env.Hit(14)
	}
}

var stallSpins atomic.Int64

// Stall blocks without a safe point for longer than any grace period, then spins on one.
func (a *account) Stall(env *sut.Env) {
	time.Sleep(100 * time.Millisecond)
	for {
		stallSpins.Add(1)
		env.Hit(15)
	}
}

// calculator has no contracts
type calculator struct {
	hang chan struct{}
}

func newCalculator() *calculator { return &calculator{hang: hang} }

var hang = make(chan struct{})

//go:noinline
func divide(a, b int) int {
	return a / b
}

//go:noinline
func helper(b int) int {
	return divide(10, b) + 1
}

func (c *calculator) SutMethod(b int) int {
	return helper(b)
}

var errNegative = errors.New("negative operand")

func (c *calculator) Sqrt(x int) (int, error) {
	if x < 0 {
		return 0, errNegative
	}
	r := 0
	for (r+1)*(r+1) <= x {
		r++
	}
	return r, nil
}

func (c *calculator) Add(other *calculator) int {
	return len(other.hang)
}

func (c *calculator) Hang() {
	<-c.hang
}

func (c *calculator) Slow() {
	time.Sleep(60 * time.Millisecond)
}

func registry(t *testing.T) *sut.Registry {
	r, err := sut.NewRegistry("Account",
		&sut.Class{
			Name:         "Account",
			Type:         reflect.TypeFor[*account](),
			Contracts:    true,
			Constructors: []*sut.Method{{Name: "New", Fn: newAccount}},
			Methods: []*sut.Method{
				{Name: "Deposit", Fn: (*account).Deposit},
				{Name: "Balance", Fn: (*account).Balance},
				{Name: "Broken", Fn: (*account).Broken},
				{Name: "Spin", Fn: (*account).Spin},
				{Name: "Stall", Fn: (*account).Stall},
			},
		},
		&sut.Class{
			Name:         "Calculator",
			Type:         reflect.TypeFor[*calculator](),
			Constructors: []*sut.Method{{Name: "New", Fn: newCalculator}},
			Methods: []*sut.Method{
				{Name: "SutMethod", Fn: (*calculator).SutMethod},
				{Name: "Sqrt", Fn: (*calculator).Sqrt},
				{Name: "Add", Fn: (*calculator).Add},
				{Name: "Hang", Fn: (*calculator).Hang},
				{Name: "Slow", Fn: (*calculator).Slow},
			},
		},
	)
	require.NoError(t, err)
	return r
}

func ref(typ string, index int) *testcase.Reference {
	return &testcase.Reference{Type: typ, Index: index}
}

func newObject(class string, index int) testcase.Operation {
	return testcase.CreateObject{Result: ref(class, index), Class: class, Constructor: "New"}
}

func constant(typ string, index int, value any) testcase.Operation {
	return testcase.AssignConstant{Result: *ref(typ, index), Value: value}
}

func invoke(result *testcase.Reference, receiver *testcase.Reference, method string, args ...testcase.Reference) testcase.Operation {
	return testcase.Invoke{Result: result, Receiver: receiver, Class: receiver.Type, Method: method, Args: args}
}

func execute(t *testing.T, l *executor.Local, budget time.Duration, ops ...testcase.Operation) coverage.Set {
	set, err := l.Execute(context.Background(), testcase.New(ops, nil), executor.Aux{Budget: budget})
	require.NoError(t, err)
	return set
}

func faultsOf(set coverage.Set) []*fault.Fault {
	return set[coverage.FaultsKey].(*fault.Coverage).Faults()
}

func functions(frames []fault.Frame) []string {
	names := make([]string, len(frames))
	for i, frame := range frames {
		names[i] = frame.Function[strings.LastIndex(frame.Function, ".")+1:]
	}
	return names
}

func TestStackPruning(t *testing.T) {
	l := executor.NewLocal(registry(t), nil, time.Second, 0, nil)

	set := execute(t, l, 0,
		newObject("Calculator", 0),
		constant("int", 0, 0),
		invoke(nil, ref("Calculator", 0), "SutMethod", *ref("int", 0)),
		invoke(nil, ref("Calculator", 0), "SutMethod", *ref("int", 0)),
	)

	faults := faultsOf(set)
	require.Len(t, faults, 1)
	assert.Equal(t, fault.UnexpectedException, faults[0].Kind)
	assert.Equal(t, []string{"divide", "helper", "SutMethod"}, functions(faults[0].Trace))
}

func TestInvalidOperationLeavesNoTrace(t *testing.T) {
	l := executor.NewLocal(registry(t), nil, time.Second, 0, nil)

	set := execute(t, l, 0,
		newObject("Account", 0),
		constant("int", 0, -5),
		invoke(nil, ref("Account", 0), "Deposit", *ref("int", 0)),
	)

	assert.Empty(t, faultsOf(set))
	assert.Equal(t, []string{"Account.New"}, set[coverage.MethodsKey].(*coverage.Labels).Values())
	assert.Empty(t, set[coverage.BranchKey].(*coverage.Probes).IDs())
}

func TestFaultingOperationDoesNotEndExecution(t *testing.T) {
	l := executor.NewLocal(registry(t), nil, time.Second, 0, nil)

	set := execute(t, l, 0,
		newObject("Account", 0),
		constant("int", 0, 5),
		invoke(nil, ref("Account", 0), "Deposit", *ref("int", 0)),
		invoke(ref("int", 1), ref("Account", 0), "Broken"),
		// int#1 is unbound and passed as zero, which is an invalid amount
		invoke(nil, ref("Account", 0), "Deposit", *ref("int", 1)),
		invoke(ref("int", 2), ref("Account", 0), "Balance"),
	)

	faults := faultsOf(set)
	require.Len(t, faults, 1)
	assert.Equal(t, fault.Postcondition, faults[0].Kind)
	assert.Equal(t, []string{"Account.Balance", "Account.Deposit", "Account.New"}, set[coverage.MethodsKey].(*coverage.Labels).Values())
	assert.Equal(t, []uint64{10, 11, 12, 13}, set[coverage.BranchKey].(*coverage.Probes).IDs())
}

func TestDeclaredErrors(t *testing.T) {
	l := executor.NewLocal(registry(t), nil, time.Second, 0, nil)

	set := execute(t, l, 0,
		newObject("Calculator", 0),
		constant("int", 0, -4),
		invoke(ref("int", 1), ref("Calculator", 0), "Sqrt", *ref("int", 0)),
	)

	assert.Empty(t, faultsOf(set))
	assert.Contains(t, set[coverage.MethodsKey].(*coverage.Labels).Values(), "Calculator.Sqrt:error")
}

func TestNilArgumentIsCallerError(t *testing.T) {
	l := executor.NewLocal(registry(t), nil, time.Second, 0, nil)
	ops := []testcase.Operation{
		newObject("Calculator", 0),
		// Calculator#1 was never created
		invoke(nil, ref("Calculator", 0), "Add", *ref("Calculator", 1)),
	}

	set := execute(t, l, 0, ops...)
	assert.Empty(t, faultsOf(set))

	strict := executor.NewLocal(registry(t), fault.NewClassifier(fault.Strict, nil), time.Second, 0, nil)
	set = execute(t, strict, 0, ops...)
	assert.Len(t, faultsOf(set), 1)
}

func TestTimeoutAtSafePoint(t *testing.T) {
	l := executor.NewLocal(registry(t), nil, time.Second, 50*time.Millisecond, nil)

	start := time.Now()
	set := execute(t, l, 20*time.Millisecond,
		newObject("Account", 0),
		invoke(nil, ref("Account", 0), "Spin"),
		invoke(ref("int", 0), ref("Account", 0), "Balance"),
	)
	assert.Less(t, time.Since(start), time.Second)

	faults := faultsOf(set)
	require.Len(t, faults, 1)
	assert.Equal(t, fault.Timeout, faults[0].Kind)
	assert.Equal(t, "Spin", functions(faults[0].Trace)[len(faults[0].Trace)-1])
	assert.NotContains(t, set[coverage.MethodsKey].(*coverage.Labels).Values(), "Account.Balance")
}

func TestTimeoutWithoutSafePoint(t *testing.T) {
	l := executor.NewLocal(registry(t), nil, time.Second, 10*time.Millisecond, nil)
	ops := []testcase.Operation{
		newObject("Calculator", 0),
		invoke(nil, ref("Calculator", 0), "Hang"),
	}

	start := time.Now()
	first := execute(t, l, 20*time.Millisecond, ops...)
	second := execute(t, l, 20*time.Millisecond, ops...)
	assert.Less(t, time.Since(start), time.Second)

	faults := faultsOf(first)
	require.Len(t, faults, 1)
	assert.Equal(t, fault.Timeout, faults[0].Kind)
	assert.Equal(t, []string{"Hang"}, functions(faults[0].Trace))
	assert.True(t, faults[0].Equal(faultsOf(second)[0]))
}

func TestAbandonedExecutionStopsAtNextSafePoint(t *testing.T) {
	l := executor.NewLocal(registry(t), nil, time.Second, 10*time.Millisecond, nil)

	set := execute(t, l, 20*time.Millisecond,
		newObject("Account", 0),
		invoke(nil, ref("Account", 0), "Stall"),
	)
	require.Len(t, faultsOf(set), 1)
	assert.Equal(t, fault.Timeout, faultsOf(set)[0].Kind)

	// Outlast the blocking part of Stall
	time.Sleep(200 * time.Millisecond)
	spins := stallSpins.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, spins, stallSpins.Load(), "Abandoned execution kept running")
	assert.LessOrEqual(t, spins, int64(1))
}

func TestTimeoutBetweenOperations(t *testing.T) {
	l := executor.NewLocal(registry(t), nil, time.Second, time.Second, nil)

	set := execute(t, l, 20*time.Millisecond,
		newObject("Calculator", 0),
		invoke(nil, ref("Calculator", 0), "Slow"),
		invoke(nil, ref("Calculator", 0), "Hang"),
	)

	faults := faultsOf(set)
	require.Len(t, faults, 1)
	assert.Equal(t, fault.Timeout, faults[0].Kind)
	assert.Empty(t, faults[0].Trace, "Timeout blamed an operation which already returned")
	assert.Contains(t, faults[0].Message, "between operations")
	assert.Contains(t, set[coverage.MethodsKey].(*coverage.Labels).Values(), "Calculator.Slow")
}

func TestDimensions(t *testing.T) {
	l := executor.NewLocal(registry(t), nil, time.Second, 0, nil)

	set, err := l.Execute(context.Background(), testcase.New([]testcase.Operation{newObject("Account", 0)}, nil), executor.Aux{
		Dimensions: []string{coverage.MethodsKey},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{coverage.MethodsKey}, set.Keys())
}

func TestMalformedTests(t *testing.T) {
	l := executor.NewLocal(registry(t), nil, time.Second, 0, nil)

	tests := map[string]testcase.Operation{
		"unknown class":  testcase.CreateObject{Result: ref("Missing", 0), Class: "Missing", Constructor: "New"},
		"unknown method": invoke(nil, ref("Account", 0), "Missing"),
		"wrong arity":    invoke(nil, ref("Account", 0), "Deposit"),
		"wrong result":   invoke(ref("string", 0), ref("Account", 0), "Balance"),
		"bad constant":   constant("int", 0, "five"),
	}
	for name, op := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := l.Execute(context.Background(), testcase.New([]testcase.Operation{op}, nil), executor.Aux{})
			assert.ErrorIs(t, err, executor.ErrInfrastructure)
		})
	}
}

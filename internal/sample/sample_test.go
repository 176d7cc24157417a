package sample_test

import (
	"context"
	"testing"
	"time"

	"github.com/DominicWuest/seqgen/internal/sample"
	"github.com/DominicWuest/seqgen/pkg/coverage"
	"github.com/DominicWuest/seqgen/pkg/executor"
	"github.com/DominicWuest/seqgen/pkg/fault"
	"github.com/DominicWuest/seqgen/pkg/testcase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ref(typ string, index int) *testcase.Reference {
	return &testcase.Reference{Type: typ, Index: index}
}

func constant(index int, value int) testcase.Operation {
	return testcase.AssignConstant{Result: *ref("int", index), Value: value}
}

func create(class, ctor string, index int, args ...testcase.Reference) testcase.Operation {
	return testcase.CreateObject{Result: ref(class, index), Class: class, Constructor: ctor, Args: args}
}

func call(receiver *testcase.Reference, method string, args ...testcase.Reference) testcase.Operation {
	return testcase.Invoke{Receiver: receiver, Class: receiver.Type, Method: method, Args: args}
}

func TestPlantedDefects(t *testing.T) {
	r, err := sample.Registry("Account")
	require.NoError(t, err)
	l := executor.NewLocal(r, nil, time.Second, 20*time.Millisecond, nil)

	values := []struct {
		name   string
		ops    []testcase.Operation
		faults []fault.Kind
	}{
		{
			name: "cleared overdraft",
			ops: []testcase.Operation{
				constant(0, 10),
				create("Account", "WithLimit", 0, *ref("int", 0)),
				call(ref("Account", 0), "Deposit", *ref("int", 0)),
				call(ref("Account", 0), "Withdraw", *ref("int", 0)),
			},
			faults: []fault.Kind{fault.Postcondition},
		},
		{
			name: "transfer of nothing",
			ops: []testcase.Operation{
				constant(0, 0),
				create("Account", "New", 0),
				create("Account", "New", 1),
				call(ref("Account", 0), "Transfer", *ref("Account", 1), *ref("int", 0)),
			},
			faults: []fault.Kind{fault.InternalPrecondition},
		},
		{
			name: "transfer to nobody",
			ops: []testcase.Operation{
				constant(0, 1),
				create("Account", "New", 0),
				call(ref("Account", 0), "Transfer", *ref("Account", 1), *ref("int", 0)),
			},
		},
		{
			name: "peek on empty stack",
			ops: []testcase.Operation{
				create("Stack", "New", 0),
				call(ref("Stack", 0), "Peek"),
			},
			faults: []fault.Kind{fault.UnexpectedException},
		},
		{
			name: "declared panic",
			ops: []testcase.Operation{
				create("Stack", "New", 0),
				call(ref("Stack", 0), "MustPop"),
			},
		},
		{
			name: "append nil stack",
			ops: []testcase.Operation{
				create("Stack", "New", 0),
				call(ref("Stack", 0), "Append", *ref("Stack", 1)),
			},
		},
		{
			name: "division by zero",
			ops: []testcase.Operation{
				constant(0, 0),
				create("Calculator", "New", 0),
				call(ref("Calculator", 0), "Divide", *ref("int", 0), *ref("int", 0)),
			},
			faults: []fault.Kind{fault.UnexpectedException},
		},
		{
			name: "steps of zero",
			ops: []testcase.Operation{
				constant(0, 0),
				create("Calculator", "New", 0),
				call(ref("Calculator", 0), "Steps", *ref("int", 0)),
			},
			faults: []fault.Kind{fault.Timeout},
		},
		{
			name: "static method",
			ops: []testcase.Operation{
				constant(0, -3),
				testcase.Invoke{Result: ref("int", 1), Class: "Calculator", Method: "Abs", Args: []testcase.Reference{*ref("int", 0)}},
			},
		},
	}

	for _, v := range values {
		t.Run(v.name, func(t *testing.T) {
			set, err := l.Execute(context.Background(), testcase.New(v.ops, nil), executor.Aux{Budget: 50 * time.Millisecond})
			require.NoError(t, err)

			var kinds []fault.Kind
			for _, f := range set[coverage.FaultsKey].(*fault.Coverage).Faults() {
				kinds = append(kinds, f.Kind)
			}
			assert.Equal(t, v.faults, kinds)
		})
	}
}

func TestEveryCUTIsValid(t *testing.T) {
	for _, class := range sample.Classes() {
		_, err := sample.Registry(class.Name)
		assert.NoError(t, err, class.Name)
	}
}

package testcase

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ref(typ string, index int) *Reference {
	return &Reference{Type: typ, Index: index}
}

func sampleOps() []Operation {
	return []Operation{
		AssignConstant{Result: Reference{"int", 1}, Value: 42},
		CreateObject{Result: ref("Account", 0), Class: "Account", Constructor: "NewAccount", Args: []Reference{{"int", 1}}},
		Invoke{Receiver: ref("Account", 0), Class: "Account", Method: "Withdraw", Args: []Reference{{"int", 1}}},
		ResetRepository{},
		Invoke{Result: ref("int", 0), Class: "Math", Method: "Abs", Args: []Reference{{"int", 1}}},
	}
}

func TestOperationStrings(t *testing.T) {
	values := []struct {
		op       Operation
		expected string
	}{
		{sampleOps()[0], "int#1 = 42"},
		{sampleOps()[1], "Account#0 = new Account.NewAccount(int#1)"},
		{sampleOps()[2], "Account#0.Withdraw(int#1)"},
		{sampleOps()[3], "reset"},
		{sampleOps()[4], "int#0 = Math.Abs(int#1)"},
		{AssignConstant{Result: Reference{"string", 0}, Value: "a b"}, `string#0 = "a b"`},
	}

	for _, v := range values {
		assert.Equal(t, v.expected, v.op.String())
	}
}

func TestFingerprintIsStructural(t *testing.T) {
	a := New(sampleOps(), map[string]int{"int": 2})
	b := New(sampleOps(), map[string]int{"int": 2})
	assert.Equal(t, a.Fingerprint(), b.Fingerprint(), "Equal tests have different fingerprints")

	ops := sampleOps()
	ops[0] = AssignConstant{Result: Reference{"int", 1}, Value: 43}
	c := New(ops, nil)
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint(), "Different tests share a fingerprint")
}

func TestTestIsImmutable(t *testing.T) {
	ops := sampleOps()
	test := New(ops, nil)
	before := test.Fingerprint()

	ops[1].(CreateObject).Args[0] = Reference{"int", 0}
	ops[2].(Invoke).Receiver.Index = 7
	returned := test.Operations()
	returned[1].(CreateObject).Args[0] = Reference{"int", 0}

	assert.Equal(t, before, New(test.Operations(), nil).Fingerprint(), "Test was mutated through its inputs or outputs")
}

func TestSub(t *testing.T) {
	test := New(sampleOps(), nil)
	sub := test.Sub([]int{2, 0, 2, 9})

	require.Equal(t, 2, sub.Len())
	assert.Equal(t, "int#1 = 42", sub.Operation(0).String())
	assert.Equal(t, "Account#0.Withdraw(int#1)", sub.Operation(1).String())
}

func TestNormalize(t *testing.T) {
	a := New([]Operation{
		AssignConstant{Result: Reference{"int", 3}, Value: 1},
		CreateObject{Result: ref("Account", 2), Class: "Account", Constructor: "NewAccount", Args: []Reference{{"int", 3}}},
	}, nil)
	b := New([]Operation{
		AssignConstant{Result: Reference{"int", 0}, Value: 1},
		CreateObject{Result: ref("Account", 1), Class: "Account", Constructor: "NewAccount", Args: []Reference{{"int", 0}}},
	}, nil)

	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
	assert.Equal(t, Normalize(a).Fingerprint(), Normalize(b).Fingerprint(), "Normalized tests differ")
	assert.Equal(t, "int#0 = 1\nAccount#0 = new Account.NewAccount(int#0)\n", Normalize(a).String())
}

func TestWireCodec(t *testing.T) {
	ops := append(sampleOps(),
		AssignConstant{Result: Reference{"bool", 0}, Value: true},
		AssignConstant{Result: Reference{"string", 0}, Value: "x"},
		AssignConstant{Result: Reference{"float64", 0}, Value: 1.5},
	)
	test := New(ops, map[string]int{"int": 2, "Account": 1})

	raw, err := json.Marshal(test)
	require.Nil(t, err)

	var decoded Test
	require.Nil(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, test.Fingerprint(), decoded.Fingerprint())
	assert.Equal(t, test.Slots(), decoded.Slots())
	assert.IsType(t, 42, decoded.Operation(0).(AssignConstant).Value, "Integer constant changed type")
}

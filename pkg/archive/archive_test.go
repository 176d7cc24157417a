package archive

import (
	"math/rand"
	"testing"

	"github.com/DominicWuest/seqgen/pkg/coverage"
	"github.com/DominicWuest/seqgen/pkg/fault"
	"github.com/DominicWuest/seqgen/pkg/testcase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sample creates a test of the passed length covering the passed probes
func sample(length int, probes ...uint64) coverage.TestCoverage {
	ops := make([]testcase.Operation, length)
	for i := range ops {
		ops[i] = testcase.AssignConstant{Result: testcase.Reference{Type: "int", Index: i}, Value: int(probes[0])*100 + i}
	}
	return coverage.TestCoverage{
		Test:     testcase.New(ops, nil),
		Coverage: coverage.Set{coverage.BranchKey: coverage.NewProbes(probes...)},
	}
}

func probesOf(tc coverage.TestCoverage) []uint64 {
	return tc.Coverage[coverage.BranchKey].(*coverage.Probes).IDs()
}

func TestUpdate(t *testing.T) {
	a := New(nil)

	assert.True(t, a.Update(sample(2, 1, 2)))
	assert.False(t, a.Update(sample(1, 1)), "contained coverage is not retained")
	assert.True(t, a.Update(sample(2, 2, 3)))
	assert.Equal(t, 2, a.Len())

	// Subsumes both retained tests
	assert.True(t, a.Update(sample(3, 1, 2, 3, 4)))
	require.Equal(t, 1, a.Len())
	assert.Equal(t, []uint64{1, 2, 3, 4}, probesOf(a.Tests()[0]))
	assert.Equal(t, []uint64{1, 2, 3, 4}, a.Coverage()[coverage.BranchKey].(*coverage.Probes).IDs())
}

func TestPruneKeepsShorterTests(t *testing.T) {
	a := New(nil)

	a.Update(sample(5, 1, 2))
	a.Update(sample(1, 1))
	a.Update(sample(1, 3))
	require.Equal(t, 2, a.Len())

	// {1, 2} and {2, 4} together with {3}: the long test is now redundant
	a.Update(sample(2, 2, 4))
	a.Update(sample(1, 1, 5))

	lengths := []int{}
	for _, tc := range a.Tests() {
		lengths = append(lengths, tc.Test.Len())
	}
	assert.NotContains(t, lengths, 5)
}

func TestTiesPreferEarlierTests(t *testing.T) {
	a := New(nil)

	a.Update(sample(1, 1, 2))
	a.Update(sample(1, 2, 3))
	// Makes either of the first two redundant, but not both
	assert.True(t, a.Update(sample(1, 1, 3, 4)))

	tests := a.Tests()
	require.Len(t, tests, 2)
	assert.Equal(t, []uint64{1, 2}, probesOf(tests[0]))
	assert.Equal(t, []uint64{1, 3, 4}, probesOf(tests[1]))
}

func TestSoundnessAndMinimality(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	a := New(nil)
	processed := coverage.NewSet()

	for i := range 300 {
		n := 1 + rng.Intn(4)
		probes := make([]uint64, n)
		for j := range probes {
			probes[j] = uint64(1 + rng.Intn(40))
		}
		tc := sample(1+rng.Intn(6), probes...)
		tc.Test = testcase.New(append(tc.Test.Operations(), testcase.AssignConstant{Result: testcase.Reference{Type: "seq", Index: 0}, Value: i}), nil)

		a.Update(tc)
		require.NoError(t, processed.Merge(tc.Coverage))

		// Soundness
		assert.True(t, a.Coverage().Contains(processed))
	}

	// Minimality
	tests := a.Tests()
	for i := range tests {
		others := coverage.NewSet()
		for j, tc := range tests {
			if j != i {
				require.NoError(t, others.Merge(tc.Coverage))
			}
		}
		assert.False(t, others.Contains(tests[i].Coverage), "retained test %d is redundant", i)
	}

	// The retained tests reach the union
	retained := coverage.NewSet()
	for _, tc := range tests {
		require.NoError(t, retained.Merge(tc.Coverage))
	}
	assert.True(t, retained.Contains(a.Coverage()))
}

func TestFaultsDimension(t *testing.T) {
	a := New(nil)
	failing := func(length int, messages ...string) coverage.TestCoverage {
		faults := fault.NewCoverage()
		for _, msg := range messages {
			faults.Add(&fault.Fault{Kind: fault.UnexpectedException, Message: msg, Trace: []fault.Frame{{Function: "pkg.divide"}}})
		}
		tc := sample(length, 1)
		tc.Coverage[coverage.FaultsKey] = faults
		return tc
	}

	assert.True(t, a.Update(failing(3, "integer divide by zero")))
	assert.False(t, a.Update(failing(3, "integer divide by zero")), "the same fault is only retained once")
	assert.True(t, a.Update(failing(2, "index out of range")))
	assert.Equal(t, 2, a.Coverage()[coverage.FaultsKey].(*fault.Coverage).Len())
	assert.Equal(t, 2, a.Len())
}

func TestUpdateDoesNotAliasInput(t *testing.T) {
	a := New(nil)
	tc := sample(1, 1)
	a.Update(tc)

	tc.Coverage[coverage.BranchKey].(*coverage.Probes).Add(9)
	assert.Equal(t, []uint64{1}, a.Coverage()[coverage.BranchKey].(*coverage.Probes).IDs())
}

// Package testcase defines generated tests: ordered, immutable sequences of operations over a
// repository of typed reference slots.
package testcase

import (
	"sort"
	"strings"

	"github.com/opencontainers/go-digest"
)

// A Test is an immutable sequence of operations together with the repository layout needed
// to replay it.
type Test struct {
	ops   []Operation
	slots map[string]int // Number of reference slots per type

	fingerprint digest.Digest
}

// New creates a test from the passed operations. The operations and slots are copied.
func New(ops []Operation, slots map[string]int) *Test {
	t := &Test{
		ops:   make([]Operation, len(ops)),
		slots: make(map[string]int, len(slots)),
	}
	for i, op := range ops {
		t.ops[i] = cloneOperation(op)
	}
	for typ, n := range slots {
		t.slots[typ] = n
	}
	t.fingerprint = digest.FromString(t.canonical())
	return t
}

// Operations returns a copy of the test's operations.
func (t *Test) Operations() []Operation {
	ops := make([]Operation, len(t.ops))
	for i, op := range t.ops {
		ops[i] = cloneOperation(op)
	}
	return ops
}

// Operation returns the i-th operation.
func (t *Test) Operation(i int) Operation {
	return cloneOperation(t.ops[i])
}

// Len returns the number of operations.
func (t *Test) Len() int {
	return len(t.ops)
}

// Slots returns the number of reference slots per type.
func (t *Test) Slots() map[string]int {
	slots := make(map[string]int, len(t.slots))
	for typ, n := range t.slots {
		slots[typ] = n
	}
	return slots
}

// Fingerprint returns the structural identity of the test. Tests with equal operations
// (compared by value, references included) have equal fingerprints.
func (t *Test) Fingerprint() digest.Digest {
	return t.fingerprint
}

// Sub returns the test made of the operations at the passed indices, in ascending order.
func (t *Test) Sub(indices []int) *Test {
	sorted := append([]int(nil), indices...)
	sort.Ints(sorted)

	ops := make([]Operation, 0, len(sorted))
	last := -1
	for _, i := range sorted {
		if i == last || i < 0 || i >= len(t.ops) {
			continue
		}
		ops = append(ops, t.ops[i])
		last = i
	}
	return New(ops, t.slots)
}

func (t *Test) canonical() string {
	var b strings.Builder
	for _, op := range t.ops {
		b.WriteString(op.String())
		b.WriteByte('\n')
	}
	return b.String()
}

func (t *Test) String() string {
	return t.canonical()
}

// Normalize renumbers the reference slots of every type in order of first appearance,
// so that tests which differ only by the slots they happen to use become equal.
func Normalize(t *Test) *Test {
	next := make(map[string]int)
	mapping := make(map[Reference]Reference)
	rename := func(r Reference) Reference {
		if m, ok := mapping[r]; ok {
			return m
		}
		m := Reference{Type: r.Type, Index: next[r.Type]}
		next[r.Type]++
		mapping[r] = m
		return m
	}

	ops := make([]Operation, len(t.ops))
	for i, op := range t.ops {
		ops[i] = mapRefs(op, rename)
	}
	return New(ops, t.slots)
}

package generator

import (
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/opencontainers/go-digest"

	"github.com/DominicWuest/seqgen/pkg/testcase"
)

// Splitter cuts a growing sequence of operations into small tests.
//
// Every operation is attributed the slice of earlier operations it depends on through the
// references it reads. When an object is passed to an invocation, its slice grows by the
// invocation, as the invocation may have changed its state. Whenever the slice of a newly
// added invocation or construction, with its references normalized, was not seen before, it
// is emitted as a test.
type Splitter struct {
	// Immutable reports whether values of a type can't be changed by invocations they are
	// passed to. All types are considered mutable if nil.
	Immutable func(typ string) bool

	slots     map[string]int
	maxPrefix int

	prefix []testcase.Operation
	deps   map[testcase.Reference][]int
	last   []int // Slice of the last added operation

	seen    *lru.Cache[digest.Digest, struct{}]
	emitted bool // Whether the current prefix was emitted as a whole
}

// NewSplitter creates a splitter for tests with the passed slots. The prefix is restarted
// after maxPrefix operations; the last seenSize emitted slices are remembered.
func NewSplitter(slots map[string]int, maxPrefix, seenSize int) (*Splitter, error) {
	seen, err := lru.New[digest.Digest, struct{}](max(seenSize, 1))
	if err != nil {
		return nil, err
	}
	s := &Splitter{
		slots:     slots,
		maxPrefix: max(maxPrefix, 1),
		seen:      seen,
	}
	s.restart()
	return s, nil
}

func (s *Splitter) restart() {
	s.prefix = nil
	s.deps = make(map[testcase.Reference][]int)
	s.last = nil
	s.emitted = false
}

// Add appends op to the running prefix and returns the tests it gave rise to.
func (s *Splitter) Add(op testcase.Operation) []*testcase.Test {
	if _, ok := op.(testcase.ResetRepository); ok {
		emitted := s.Flush()
		return emitted
	}

	var emitted []*testcase.Test
	if len(s.prefix) >= s.maxPrefix {
		emitted = s.Flush()
	}

	i := len(s.prefix)
	s.prefix = append(s.prefix, op)

	slice := []int{i}
	for _, ref := range op.Uses() {
		slice = union(slice, s.deps[ref])
	}
	s.last = slice

	if target := op.Target(); target != nil {
		s.deps[*target] = slice
	}
	if _, ok := op.(testcase.AssignConstant); ok {
		return emitted
	}
	// Objects passed to an invocation may have been changed by it
	for _, ref := range op.Uses() {
		if s.Immutable == nil || !s.Immutable(ref.Type) {
			s.deps[ref] = slice
		}
	}

	if t := s.emit(slice); t != nil {
		emitted = append(emitted, t)
	}
	return emitted
}

// Flush emits the whole running prefix, unless it was emitted already, and restarts.
func (s *Splitter) Flush() []*testcase.Test {
	var emitted []*testcase.Test
	if !s.emitted && len(s.prefix) > 0 {
		all := make([]int, len(s.prefix))
		for i := range all {
			all[i] = i
		}
		if t := s.emit(all); t != nil {
			emitted = append(emitted, t)
		}
	}
	s.restart()
	return emitted
}

// emit returns the normalized test made of the slice if it is new.
func (s *Splitter) emit(slice []int) *testcase.Test {
	if len(slice) == len(s.prefix) {
		s.emitted = true
	}
	if isConstant(s.prefix, slice) {
		return nil
	}

	ops := make([]testcase.Operation, len(slice))
	for i, j := range slice {
		ops[i] = s.prefix[j]
	}
	t := testcase.Normalize(testcase.New(ops, s.slots))
	if ok, _ := s.seen.ContainsOrAdd(t.Fingerprint(), struct{}{}); ok {
		return nil
	}
	return t
}

// Len returns the length of the running prefix.
func (s *Splitter) Len() int {
	return len(s.prefix)
}

// Full reports whether the next added operation restarts the prefix.
func (s *Splitter) Full() bool {
	return len(s.prefix) >= s.maxPrefix
}

func isConstant(prefix []testcase.Operation, slice []int) bool {
	for _, i := range slice {
		if _, ok := prefix[i].(testcase.AssignConstant); !ok {
			return false
		}
	}
	return true
}

// union merges two sorted index sets.
func union(a, b []int) []int {
	set := make(map[int]struct{}, len(a)+len(b))
	for _, i := range a {
		set[i] = struct{}{}
	}
	for _, i := range b {
		set[i] = struct{}{}
	}
	merged := make([]int, 0, len(set))
	for i := range set {
		merged = append(merged, i)
	}
	sort.Ints(merged)
	return merged
}

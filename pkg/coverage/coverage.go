// Package coverage defines coverage dimensions and named sets of dimensions.
//
// Every dimension implements [Info]. A [Set] maps a dimension key to its Info and is what a
// single execution reports. Dimensions of different kinds never merge or compare.
package coverage

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/DominicWuest/seqgen/pkg/testcase"
)

// Keys of the dimensions reported by the executors.
const (
	BranchKey  = "branch"
	MethodsKey = "methods"
	FaultsKey  = "faults"
)

// ErrKindMismatch is returned when merging dimensions of different kinds.
var ErrKindMismatch = errors.New("coverage kinds do not match")

// Info is one measurable dimension of an execution outcome.
type Info interface {
	// Kind identifies the concrete dimension type.
	Kind() string
	// Quality returns a scalar fitness of the observations.
	Quality() float64
	// Merge unions other's observations into the receiver.
	Merge(other Info) error
	// Contains reports whether the receiver's observations are a superset of other's.
	Contains(other Info) bool
	CreateEmpty() Info
	Clone() Info
	// String returns a human readable description of the observations.
	String() string
}

// IsEmpty reports whether info holds no observations.
func IsEmpty(info Info) bool {
	return info.CreateEmpty().Contains(info)
}

// A Set maps dimension keys to dimensions.
type Set map[string]Info

// NewSet creates an empty set.
func NewSet() Set {
	return make(Set)
}

// Merge merges other into s key by key. Dimensions only present in other are cloned into s.
func (s Set) Merge(other Set) error {
	var errs []error
	for key, info := range other {
		mine, ok := s[key]
		if !ok {
			s[key] = info.Clone()
			continue
		}
		if err := mine.Merge(info); err != nil {
			errs = append(errs, fmt.Errorf("failed to merge dimension %s - %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// Contains reports whether every dimension of other is contained by the same dimension of s.
// A dimension missing from s only contains empty observations.
func (s Set) Contains(other Set) bool {
	for key, info := range other {
		mine, ok := s[key]
		if !ok {
			if !IsEmpty(info) {
				return false
			}
			continue
		}
		if !mine.Contains(info) {
			return false
		}
	}
	return true
}

// Clone deep copies the set.
func (s Set) Clone() Set {
	c := make(Set, len(s))
	for key, info := range s {
		c[key] = info.Clone()
	}
	return c
}

// Keys returns the sorted dimension keys.
func (s Set) Keys() []string {
	keys := make([]string, 0, len(s))
	for key := range s {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Quality returns the sum of the qualities of all dimensions.
func (s Set) Quality() float64 {
	var q float64
	for _, info := range s {
		q += info.Quality()
	}
	return q
}

func (s Set) String() string {
	parts := make([]string, 0, len(s))
	for _, key := range s.Keys() {
		parts = append(parts, fmt.Sprintf("%s: %.0f", key, s[key].Quality()))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// TestCoverage pairs a test with the coverage its execution observed.
type TestCoverage struct {
	Test     *testcase.Test
	Coverage Set
}

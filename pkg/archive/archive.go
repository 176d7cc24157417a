// Package archive keeps the smallest known set of tests which together achieve the best
// known coverage.
package archive

import (
	"io"
	"sort"
	"sync"

	"github.com/DominicWuest/seqgen/pkg/coverage"
	"github.com/sirupsen/logrus"
)

type entry struct {
	tc  coverage.TestCoverage
	seq int // Discovery order
}

// Archive holds, per dimension, the union of all coverage it was updated with, and the tests
// needed to reach that union. It has a single writer; reads may happen concurrently.
type Archive struct {
	mu sync.RWMutex

	union   coverage.Set
	entries []entry
	seq     int

	Log *logrus.Entry
}

// New creates an empty archive.
func New(log *logrus.Entry) *Archive {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = logrus.NewEntry(l)
	}
	return &Archive{
		union: coverage.NewSet(),
		Log:   log,
	}
}

// Update merges the coverage of a test into the union. If the test contributes to any
// dimension, it is retained and every previously retained test whose coverage is now
// reached by the others is removed. It reports whether the test was retained.
func (a *Archive) Update(tc coverage.TestCoverage) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	contributes := false
	for _, key := range tc.Coverage.Keys() {
		info := tc.Coverage[key]
		if coverage.IsEmpty(info) {
			continue
		}
		union, ok := a.union[key]
		if ok && union.Contains(info) {
			continue
		}

		if !ok {
			a.union[key] = info.Clone()
		} else if err := union.Merge(info); err != nil {
			// A dimension of a different kind under a known key can't be merged
			a.Log.Errorf("Dropping dimension %s of test %s - %v", key, tc.Test.Fingerprint().Encoded()[:12], err)
			continue
		}
		contributes = true
	}
	if !contributes {
		return false
	}

	a.entries = append(a.entries, entry{tc: tc, seq: a.seq})
	a.seq++
	if removed := a.prune(len(a.entries) - 1); removed > 0 {
		a.Log.Debugf("Archive pruned %d subsumed tests, %d retained", removed, len(a.entries))
	}
	return true
}

// prune removes retained tests whose coverage is contained in the union of the others,
// worst candidates first. The entry at index keep is never removed.
func (a *Archive) prune(keep int) int {
	candidates := make([]entry, 0, len(a.entries)-1)
	for i, e := range a.entries {
		if i != keep {
			candidates = append(candidates, e)
		}
	}
	// Longer tests first, later discovered tests first among equally long ones
	sort.Slice(candidates, func(i, j int) bool {
		li, lj := candidates[i].tc.Test.Len(), candidates[j].tc.Test.Len()
		if li != lj {
			return li > lj
		}
		return candidates[i].seq > candidates[j].seq
	})

	removed := make(map[int]bool)
	for _, c := range candidates {
		others := coverage.NewSet()
		for _, e := range a.entries {
			if e.seq != c.seq && !removed[e.seq] {
				// Kinds of retained dimensions always match
				_ = others.Merge(e.tc.Coverage)
			}
		}
		if others.Contains(c.tc.Coverage) {
			removed[c.seq] = true
		}
	}
	if len(removed) == 0 {
		return 0
	}

	retained := a.entries[:0]
	for _, e := range a.entries {
		if !removed[e.seq] {
			retained = append(retained, e)
		}
	}
	a.entries = retained
	return len(removed)
}

// Coverage returns a copy of the best known coverage.
func (a *Archive) Coverage() coverage.Set {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.union.Clone()
}

// Tests returns the retained tests in discovery order.
func (a *Archive) Tests() []coverage.TestCoverage {
	a.mu.RLock()
	defer a.mu.RUnlock()

	tests := make([]coverage.TestCoverage, len(a.entries))
	for i, e := range a.entries {
		tests[i] = e.tc
	}
	return tests
}

// Len returns the number of retained tests.
func (a *Archive) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.entries)
}

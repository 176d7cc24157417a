package scheduler

import (
	"context"
	"sync"

	"github.com/DominicWuest/seqgen/pkg/coverage"
)

// A Future is the pending result of an execution. It is resolved exactly once; every caller
// of Get observes the same result, which must not be modified.
type Future struct {
	once sync.Once
	done chan struct{}

	set coverage.Set
	err error
}

// NewFuture returns an unresolved future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolve sets the result of the future. It reports false if the future was already resolved.
func (f *Future) Resolve(set coverage.Set, err error) bool {
	resolved := false
	f.once.Do(func() {
		f.set, f.err = set, err
		close(f.done)
		resolved = true
	})
	return resolved
}

// Done returns a channel which is closed once the future is resolved.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Resolved reports whether the future is resolved.
func (f *Future) Resolved() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// failed reports whether the future is resolved with an error.
func (f *Future) failed() bool {
	return f.Resolved() && f.err != nil
}

// Get blocks until the future is resolved or ctx is done.
func (f *Future) Get(ctx context.Context) (coverage.Set, error) {
	select {
	case <-f.done:
		return f.set, f.err
	default:
	}

	select {
	case <-f.done:
		return f.set, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

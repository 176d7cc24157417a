// Package guard implements a per-execution watchdog.
//
// A Guard is bound to exactly one controlled execution. Once armed with [Guard.Start] it
// fires after the given budget, raising a stop condition that the controlled code observes
// at its safe points through [Guard.Check], and cancelling the context returned by
// [Guard.Context] so that blocking calls inside the controlled code can return early.
// Guards never share stop state with each other.
package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrStopped is matched by the panic value raised from Check once the guard fired.
	ErrStopped = errors.New("execution stopped")
	// ErrClosed is returned when arming a guard after Done was called.
	ErrClosed = errors.New("guard is closed")
)

// StoppedError is the distinguished fault raised by Check after the budget elapsed.
type StoppedError struct {
	Budget time.Duration
}

func (e *StoppedError) Error() string {
	return fmt.Sprintf("execution stopped: time budget of %s exceeded", e.Budget)
}

func (e *StoppedError) Is(target error) bool {
	return target == ErrStopped
}

// A Guard watches a single controlled execution.
type Guard struct {
	mu sync.Mutex

	timer      *time.Timer
	generation uint64 // Bumped on every Start/Stop so that a stale timer can't fire
	closed     bool

	stopped atomic.Bool
	budget  atomic.Int64

	ctx     context.Context
	cancel  context.CancelFunc
	expired chan struct{}
}

// New returns an unarmed guard.
func New() *Guard {
	ctx, cancel := context.WithCancel(context.Background())
	return &Guard{
		ctx:     ctx,
		cancel:  cancel,
		expired: make(chan struct{}),
	}
}

// Start arms the guard. If the guard was already armed, the previous timer is replaced.
func (g *Guard) Start(budget time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return ErrClosed
	}
	if g.timer != nil {
		g.timer.Stop()
	}
	g.cancel()

	g.ctx, g.cancel = context.WithCancel(context.Background())
	g.expired = make(chan struct{})
	g.stopped.Store(false)
	g.budget.Store(int64(budget))
	g.generation++

	gen := g.generation
	g.timer = time.AfterFunc(budget, func() { g.fire(gen) })
	return nil
}

func (g *Guard) fire(gen uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed || gen != g.generation {
		return
	}
	g.stopped.Store(true)
	g.cancel()
	close(g.expired)
}

// Stop disarms the guard and clears the stop condition. It has no effect on a released guard.
func (g *Guard) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return
	}
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.generation++
	g.stopped.Store(false)
}

// Done releases the guard. A closed guard can't be armed again and stays stopped, so
// controlled code still running after its release aborts at the next safe point.
func (g *Guard) Done() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return
	}
	g.closed = true
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.generation++
	g.stopped.Store(true)
	g.cancel()
}

// Stopped reports whether the guard fired and was not stopped since, or was released.
func (g *Guard) Stopped() bool {
	return g.stopped.Load()
}

// Check is a safe point. It panics with a *StoppedError if the guard fired.
func (g *Guard) Check() {
	if g.stopped.Load() {
		panic(&StoppedError{Budget: time.Duration(g.budget.Load())})
	}
}

// Context returns the context of the current arming. It is cancelled when the guard fires.
func (g *Guard) Context() context.Context {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ctx
}

// Expired returns a channel which is closed when the current arming fires.
func (g *Guard) Expired() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.expired
}

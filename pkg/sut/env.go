package sut

import (
	"context"
	"sync"

	"github.com/DominicWuest/seqgen/pkg/coverage"
	"github.com/DominicWuest/seqgen/pkg/guard"
)

// Env is the per-execution environment handed to instrumented SUT code. It records coverage
// probes and exposes the execution's stop condition. Methods whose first parameter after the
// receiver is a *Env get it injected by the executor.
type Env struct {
	guard *guard.Guard

	mu      sync.Mutex
	probes  *coverage.Probes
	pending []uint64 // Probes first hit by the current operation
}

// NewEnv creates an environment bound to the passed guard. g may be nil for unguarded runs.
func NewEnv(g *guard.Guard) *Env {
	return &Env{
		guard:  g,
		probes: coverage.NewProbes(),
	}
}

// Hit records a coverage probe. Every hit is also a safe point.
func (e *Env) Hit(probe uint64) {
	e.mu.Lock()
	if !e.probes.Has(probe) {
		e.probes.Add(probe)
		e.pending = append(e.pending, probe)
	}
	e.mu.Unlock()

	e.Checkpoint()
}

// Checkpoint is a safe point: it raises the execution stopped fault if the time budget of
// the execution is exhausted.
func (e *Env) Checkpoint() {
	if e.guard != nil {
		e.guard.Check()
	}
}

// Context is cancelled when the execution's time budget is exhausted. SUT code that blocks
// should select on it.
func (e *Env) Context() context.Context {
	if e.guard == nil {
		return context.Background()
	}
	return e.guard.Context()
}

// Begin marks the start of an operation.
func (e *Env) Begin() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = e.pending[:0]
}

// Rollback forgets the probes first hit since the last Begin.
func (e *Env) Rollback() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, probe := range e.pending {
		e.probes.Remove(probe)
	}
	e.pending = e.pending[:0]
}

// Probes returns a copy of the probes hit so far.
func (e *Env) Probes() *coverage.Probes {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.probes.Clone().(*coverage.Probes)
}

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/DominicWuest/seqgen/pkg/coverage"
	"github.com/DominicWuest/seqgen/pkg/executor"
	"github.com/DominicWuest/seqgen/pkg/testcase"
	"golang.org/x/sync/semaphore"
)

// A Worker executes tests, at most Capacity at once.
type Worker struct {
	Name     string
	Executor executor.Executor
	Capacity int64

	inflight   int64
	executions int64
}

// Pool is a bounded pool of workers. It implements [executor.Executor] by handing every test
// to the least loaded worker with free capacity.
type Pool struct {
	mu      sync.Mutex
	workers []*Worker

	slots *semaphore.Weighted
}

// NewPool creates a pool of the passed workers.
func NewPool(workers ...*Worker) (*Pool, error) {
	if len(workers) == 0 {
		return nil, errors.New("a pool needs at least one worker")
	}
	var capacity int64
	for _, w := range workers {
		if w.Capacity <= 0 {
			return nil, fmt.Errorf("worker %s has no capacity", w.Name)
		}
		capacity += w.Capacity
	}
	return &Pool{
		workers: workers,
		slots:   semaphore.NewWeighted(capacity),
	}, nil
}

// Execute waits for a free worker and executes the test on it.
func (p *Pool) Execute(ctx context.Context, t *testcase.Test, aux executor.Aux) (coverage.Set, error) {
	if err := p.slots.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.slots.Release(1)

	w := p.acquire()
	defer p.release(w)

	return w.Executor.Execute(ctx, t, aux)
}

// acquire picks the worker with the lowest relative load. The caller must hold a slot.
func (p *Pool) acquire() *Worker {
	p.mu.Lock()
	defer p.mu.Unlock()

	var best *Worker
	for _, w := range p.workers {
		if w.inflight >= w.Capacity {
			continue
		}
		if best == nil || w.inflight*best.Capacity < best.inflight*w.Capacity {
			best = w
		}
	}
	best.inflight++
	best.executions++
	return best
}

func (p *Pool) release(w *Worker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w.inflight--
}

// Executions returns the number of executions started per worker name.
func (p *Pool) Executions() map[string]int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	executions := make(map[string]int64, len(p.workers))
	for _, w := range p.workers {
		executions[w.Name] += w.executions
	}
	return executions
}

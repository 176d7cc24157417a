// Package scheduler dispatches tests to executors and delivers their results in submission
// order.
//
// [Scheduler.Submit] never blocks: it dedups tests by fingerprint through the [Cache] and
// dispatches the rest to an [executor.Executor], typically a [Pool]. The [Collector] waits
// for the futures in the order they were enqueued and hands the results to a [Sink].
package scheduler

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/DominicWuest/seqgen/pkg/executor"
	"github.com/DominicWuest/seqgen/pkg/testcase"
	"github.com/sirupsen/logrus"
)

// Scheduler dispatches tests to an executor.
type Scheduler struct {
	Executor executor.Executor
	Cache    *Cache // Nil disables the execution cache

	Log *logrus.Entry

	ctx context.Context
	wg  sync.WaitGroup

	submitted  atomic.Int64
	dispatched atomic.Int64
	completed  atomic.Int64
}

// New creates a scheduler. Executions are bound to ctx, which is independent of the context
// the tests are generated under so that in-flight executions survive the generation deadline.
func New(ctx context.Context, exec executor.Executor, cache *Cache, log *logrus.Entry) *Scheduler {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = logrus.NewEntry(l)
	}
	return &Scheduler{
		Executor: exec,
		Cache:    cache,
		Log:      log,
		ctx:      ctx,
	}
}

// Submit returns the future of the execution of t. If the cache is enabled and a test with
// the same fingerprint was submitted before, its future is returned and no execution starts.
// Executions which failed are not cached.
func (s *Scheduler) Submit(t *testcase.Test, aux executor.Aux) *Future {
	s.submitted.Add(1)

	if s.Cache == nil {
		f := NewFuture()
		s.dispatch(t, aux, f)
		return f
	}

	f, loaded := s.Cache.LoadOrStore(t.Fingerprint(), NewFuture)
	if loaded {
		s.Log.Tracef("Test %s is cached", t.Fingerprint().Encoded()[:12])
		return f
	}
	s.dispatch(t, aux, f)
	return f
}

func (s *Scheduler) dispatch(t *testcase.Test, aux executor.Aux, f *Future) {
	s.dispatched.Add(1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.completed.Add(1)

		set, err := s.Executor.Execute(s.ctx, t, aux)
		if s.Cache == nil {
			f.Resolve(set, err)
			return
		}
		if err != nil {
			s.Log.Debugf("Execution of test %s failed, it is not cached - %v", t.Fingerprint().Encoded()[:12], err)
		}
		s.Cache.Resolve(t.Fingerprint(), f, set, err)
	}()
}

// Wait blocks until all dispatched executions completed.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Stats returns the number of submitted tests, the number of executions that were started
// and the number of those which completed.
func (s *Scheduler) Stats() (submitted, dispatched, completed int64) {
	return s.submitted.Load(), s.dispatched.Load(), s.completed.Load()
}

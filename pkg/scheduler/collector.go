package scheduler

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/DominicWuest/seqgen/pkg/coverage"
	"github.com/DominicWuest/seqgen/pkg/testcase"
	"github.com/sirupsen/logrus"
)

// ErrCollectorClosed is returned when enqueueing into a closed collector.
var ErrCollectorClosed = errors.New("collector is closed")

// A Sink consumes the results of executed tests. It is only ever called from Collector.Run.
type Sink interface {
	Update(tc coverage.TestCoverage) bool
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(tc coverage.TestCoverage) bool

func (f SinkFunc) Update(tc coverage.TestCoverage) bool {
	return f(tc)
}

type pending struct {
	test   *testcase.Test
	future *Future
}

// Collector delivers execution results to its sink in the order the tests were enqueued,
// even if later futures resolve first.
type Collector struct {
	sink  Sink
	queue chan pending

	mu     sync.RWMutex
	closed bool

	Log *logrus.Entry

	delivered atomic.Int64
	retained  atomic.Int64
	failed    atomic.Int64
}

// NewCollector creates a collector whose queue holds up to size pending tests. Enqueue blocks
// while the queue is full.
func NewCollector(size int, sink Sink, log *logrus.Entry) *Collector {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = logrus.NewEntry(l)
	}
	return &Collector{
		sink:  sink,
		queue: make(chan pending, max(size, 1)),
		Log:   log,
	}
}

// Enqueue appends a test and the future of its execution to the queue.
func (c *Collector) Enqueue(ctx context.Context, t *testcase.Test, f *Future) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrCollectorClosed
	}
	select {
	case c.queue <- pending{test: t, future: f}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting tests. Run returns once all queued tests are delivered.
func (c *Collector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.queue)
	}
}

// Run delivers results until the collector is closed and drained. Failed executions are
// logged and skipped. Cancelling ctx is a shutdown: Run returns ctx's error without
// delivering the remaining results.
func (c *Collector) Run(ctx context.Context) error {
	for {
		var p pending
		var ok bool
		select {
		case p, ok = <-c.queue:
			if !ok {
				return nil
			}
		case <-ctx.Done():
			c.Log.Warnf("Collector interrupted with %d tests pending", len(c.queue))
			return ctx.Err()
		}

		set, err := p.future.Get(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.Log.Warnf("Collector interrupted with %d tests pending", len(c.queue)+1)
				return ctx.Err()
			}
			c.failed.Add(1)
			c.Log.Warnf("Skipping test %s - %v", p.test.Fingerprint().Encoded()[:12], err)
			continue
		}

		c.delivered.Add(1)
		if c.sink.Update(coverage.TestCoverage{Test: p.test, Coverage: set}) {
			c.retained.Add(1)
		}
	}
}

// Stats returns the number of delivered results, how many of them the sink retained, and the
// number of skipped failed executions.
func (c *Collector) Stats() (delivered, retained, failed int64) {
	return c.delivered.Load(), c.retained.Load(), c.failed.Load()
}
